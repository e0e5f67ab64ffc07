// Package store defines the persistence interface for the Already Done server.
package store

import (
	"context"
	"time"

	"github.com/alreadydone/alreadydone-server/internal/domain"
)

// Store defines every persistence operation the services need.
// Implementations live in store/sqlite and store/postgres.
type Store interface {
	// Lifecycle
	Close() error
	Ping(ctx context.Context) error

	// Users
	CreateUser(ctx context.Context, user *domain.User) error
	GetUser(ctx context.Context, id int64) (*domain.User, error)
	UpdateUser(ctx context.Context, id int64, fields []domain.PatchField) (*domain.User, error)
	SetUserVoice(ctx context.Context, id int64, voiceID string) error
	ListReminderUsers(ctx context.Context) ([]*domain.User, error)

	// Subscriptions
	SaveSubscription(ctx context.Context, userID int64, sub domain.Subscription) error
	UpdateSubscriptionByStripeID(ctx context.Context, stripeSubscriptionID string, sub SubscriptionUpdate) (int64, error)

	// Desires
	ListDesires(ctx context.Context) ([]*domain.Desire, error)
	GetDesireByCategory(ctx context.Context, category string) (*domain.Desire, error)
	UpsertDesire(ctx context.Context, desire *domain.Desire) error

	// Stories
	CreateStory(ctx context.Context, story *domain.Story) error
	GetStory(ctx context.Context, id int64) (*domain.Story, error)
	CountStoriesSince(ctx context.Context, userID int64, since time.Time) (int, error)
	ListStoriesForDesire(ctx context.Context, userID, desireID int64) ([]*domain.Story, error)
	ListStoriesByUser(ctx context.Context, userID int64) ([]*domain.StoryWithDesire, error)
}

// SubscriptionUpdate is applied to whichever user owns a provider subscription.
// Nil fields are left untouched.
type SubscriptionUpdate struct {
	Status   domain.SubscriptionStatus
	Plan     *domain.Plan
	TrialEnd *time.Time
}
