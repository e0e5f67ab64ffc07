//go:build integration

package postgres

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/alreadydone/alreadydone-server/internal/domain"
	"github.com/alreadydone/alreadydone-server/internal/store"
)

func newIntegrationStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("alreadydone"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := Open(ctx, dsn, Options{Migrate: true}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPostgresStore(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()

	version, dirty, err := s.MigrationVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)

	u := &domain.User{ID: 42, Name: "Jordan", FCMToken: "tok", MorningReminderEnabled: true}
	require.NoError(t, s.CreateUser(ctx, u))
	assert.ErrorIs(t, s.CreateUser(ctx, &domain.User{ID: 42}), store.ErrAlreadyExists)

	name := "Jordan B"
	speed := domain.SpeedFast
	updated, err := s.UpdateUser(ctx, 42, (&domain.UserPatch{Name: &name, Speed: &speed}).Fields())
	require.NoError(t, err)
	assert.Equal(t, "Jordan B", updated.Name)
	assert.Equal(t, domain.SpeedFast, updated.Speed)

	reminders, err := s.ListReminderUsers(ctx)
	require.NoError(t, err)
	require.Len(t, reminders, 1)

	love := &domain.Desire{Category: domain.CategoryLove, Name: "Love"}
	require.NoError(t, s.UpsertDesire(ctx, love))

	desire, err := s.GetDesireByCategory(ctx, "Love")
	require.NoError(t, err)
	assert.Equal(t, love.ID, desire.ID)

	_, err = s.GetDesireByCategory(ctx, "love")
	assert.ErrorIs(t, err, store.ErrNotFound)

	midnight := time.Now().UTC().Truncate(24 * time.Hour)
	require.NoError(t, s.CreateStory(ctx, &domain.Story{UserID: 42, DesireID: love.ID, Theme: "old", Body: "b", CreatedAt: midnight.Add(-time.Minute)}))
	require.NoError(t, s.CreateStory(ctx, &domain.Story{UserID: 42, DesireID: love.ID, Theme: "new", Body: "b", CreatedAt: midnight.Add(time.Minute)}))

	count, err := s.CountStoriesSince(ctx, 42, midnight)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	history, err := s.ListStoriesForDesire(ctx, 42, love.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "old", history[0].Theme)

	listed, err := s.ListStoriesByUser(ctx, 42)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, "Love", listed[0].DesireName)

	require.NoError(t, s.MigrateDown())
	version, _, err = s.MigrationVersion()
	require.NoError(t, err)
	assert.Zero(t, version)
}
