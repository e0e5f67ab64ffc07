package store_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/alreadydone/alreadydone-server/internal/store"
)

func TestError_ErrorWithCause(t *testing.T) {
	cause := errors.New("disk full")
	err := store.ErrNotFound.WithCause(cause)

	assert.Equal(t, "resource not found: disk full", err.Error())
	assert.Equal(t, cause, err.Unwrap())
}

func TestError_IsMatchesMessageVariants(t *testing.T) {
	err := fmt.Errorf("get desire: %w", store.ErrNotFound.WithMessage("desire not found"))

	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.NotErrorIs(t, err, store.ErrAlreadyExists)
}

func TestError_HTTPCode(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, store.ErrNotFound.HTTPCode())
	assert.Equal(t, http.StatusConflict, store.ErrAlreadyExists.HTTPCode())
}
