package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/alreadydone/alreadydone-server/internal/domain"
	apperr "github.com/alreadydone/alreadydone-server/internal/errors"
	"github.com/alreadydone/alreadydone-server/internal/store"
	"github.com/alreadydone/alreadydone-server/internal/validation"
)

// PasswordHasher turns a plaintext password into a storable hash.
type PasswordHasher interface {
	Hash(password string) (string, error)
}

// UserService applies profile and settings changes.
type UserService struct {
	store     store.Store
	hasher    PasswordHasher
	validator *validation.Validator
	logger    *slog.Logger
}

// NewUserService creates a user service.
func NewUserService(s store.Store, hasher PasswordHasher, logger *slog.Logger) *UserService {
	return &UserService{
		store:     s,
		hasher:    hasher,
		validator: validation.New(),
		logger:    logger,
	}
}

// Get returns one user.
func (s *UserService) Get(ctx context.Context, userID int64) (*domain.User, error) {
	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, userLookupError(err)
	}
	return u, nil
}

// Update applies patch to userID and returns the updated user.
func (s *UserService) Update(ctx context.Context, userID int64, patch domain.UserPatch) (*domain.User, error) {
	if userID <= 0 {
		return nil, apperr.ValidationWithDetails("invalid user id", map[string]string{"id": "must be greater than 0"})
	}
	// Only the hashing step below may set this.
	patch.PasswordHash = nil

	if patch.IsEmpty() {
		return nil, apperr.Validation("no fields to update")
	}
	if err := s.validator.Validate(patch); err != nil {
		return nil, err
	}

	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		patch.Name = &name
	}
	if patch.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*patch.Email))
		patch.Email = &email
	}
	if patch.Password != nil {
		hash, err := s.hasher.Hash(*patch.Password)
		if err != nil {
			return nil, apperr.Validation("password could not be accepted").WithCause(err)
		}
		patch.PasswordHash = &hash
	}

	fields := patch.Fields()
	u, err := s.store.UpdateUser(ctx, userID, fields)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil, apperr.NotFound("user not found")
	case errors.Is(err, store.ErrAlreadyExists):
		return nil, apperr.Conflict("email is already in use")
	case err != nil:
		return nil, apperr.Storage(err, "failed to update user")
	}

	columns := make([]string, len(fields))
	for i, f := range fields {
		columns[i] = f.Column
	}
	s.logger.Info("user updated", "user_id", userID, "columns", columns)
	return u, nil
}
