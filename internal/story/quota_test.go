package story

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperr "github.com/alreadydone/alreadydone-server/internal/errors"
)

type fakeSubs struct {
	active map[int64]bool
	// known lists existing users; nil means every user exists.
	known map[int64]bool
	err   error
}

func (f *fakeSubs) IsActive(_ context.Context, userID int64) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if f.known != nil && !f.known[userID] {
		return false, apperr.NotFoundf("user %d not found", userID)
	}
	return f.active[userID], nil
}

type fakeCounter struct {
	count int
	err   error
	since time.Time
	calls int
}

func (f *fakeCounter) CountStoriesSince(_ context.Context, _ int64, since time.Time) (int, error) {
	f.calls++
	f.since = since
	return f.count, f.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestQuotaPolicy(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 5, 10, 15, 30, 0, 0, time.FixedZone("EST", -5*3600))

	t.Run("free user with no stories today", func(t *testing.T) {
		counter := &fakeCounter{}
		q := NewQuotaPolicy(&fakeSubs{}, counter, discardLogger())
		q.SetClock(func() time.Time { return now })

		ok, err := q.MayGenerate(ctx, 1)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, time.Date(2025, 5, 10, 0, 0, 0, 0, time.UTC), counter.since)
	})

	t.Run("free user who already generated today", func(t *testing.T) {
		q := NewQuotaPolicy(&fakeSubs{}, &fakeCounter{count: 1}, discardLogger())
		ok, err := q.MayGenerate(ctx, 1)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("subscriber skips the count", func(t *testing.T) {
		counter := &fakeCounter{count: 5}
		q := NewQuotaPolicy(&fakeSubs{active: map[int64]bool{7: true}}, counter, discardLogger())
		ok, err := q.MayGenerate(ctx, 7)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Zero(t, counter.calls)
	})

	t.Run("subscription read failure fails closed", func(t *testing.T) {
		q := NewQuotaPolicy(&fakeSubs{err: errors.New("db down")}, &fakeCounter{count: 1}, discardLogger())
		ok, err := q.MayGenerate(ctx, 7)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("unknown user is not found and never counted", func(t *testing.T) {
		counter := &fakeCounter{}
		q := NewQuotaPolicy(&fakeSubs{known: map[int64]bool{1: true}}, counter, discardLogger())
		ok, err := q.MayGenerate(ctx, 777)
		assert.False(t, ok)
		assert.ErrorIs(t, err, apperr.ErrNotFound)
		assert.Zero(t, counter.calls)
	})

	t.Run("count failure is a storage error", func(t *testing.T) {
		q := NewQuotaPolicy(&fakeSubs{}, &fakeCounter{err: errors.New("db down")}, discardLogger())
		ok, err := q.MayGenerate(ctx, 1)
		assert.False(t, ok)
		assert.ErrorIs(t, err, apperr.ErrStorage)
	})
}

func TestStartOfUTCDay(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*3600)
	got := StartOfUTCDay(time.Date(2025, 1, 2, 3, 0, 0, 0, tokyo))
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), got)
}
