package story

import (
	"context"
	"log/slog"
	"time"

	apperr "github.com/alreadydone/alreadydone-server/internal/errors"
)

// FreeDailyLimit is how many stories a user without a subscription may
// generate per UTC day.
const FreeDailyLimit = 1

// SubscriptionSource reports whether a user holds an entitling subscription.
// A user that does not exist yields an error matching errors.ErrNotFound.
type SubscriptionSource interface {
	IsActive(ctx context.Context, userID int64) (bool, error)
}

// StoryCounter counts a user's stories created at or after a point in time.
type StoryCounter interface {
	CountStoriesSince(ctx context.Context, userID int64, since time.Time) (int, error)
}

// QuotaPolicy decides whether a user may generate another story today.
// It only reads; nothing reserves the slot it grants.
type QuotaPolicy struct {
	subs    SubscriptionSource
	stories StoryCounter
	now     func() time.Time
	logger  *slog.Logger
}

// NewQuotaPolicy creates a quota policy.
func NewQuotaPolicy(subs SubscriptionSource, stories StoryCounter, logger *slog.Logger) *QuotaPolicy {
	return &QuotaPolicy{
		subs:    subs,
		stories: stories,
		now:     time.Now,
		logger:  logger,
	}
}

// SetClock overrides the time source.
func (q *QuotaPolicy) SetClock(now func() time.Time) {
	q.now = now
}

// MayGenerate reports whether userID is allowed another story today.
// Subscribers always are. Everyone else is allowed while today's count is
// below FreeDailyLimit. A failed subscription read counts as unsubscribed,
// but an unknown user is returned as NOT_FOUND so no story is generated
// for a row that can never be saved.
func (q *QuotaPolicy) MayGenerate(ctx context.Context, userID int64) (bool, error) {
	active, err := q.subs.IsActive(ctx, userID)
	if apperr.Is(err, apperr.ErrNotFound) {
		return false, err
	}
	if err != nil {
		q.logger.Warn("subscription lookup failed, applying free tier",
			"user_id", userID,
			"error", err,
		)
		active = false
	}
	if active {
		return true, nil
	}

	count, err := q.stories.CountStoriesSince(ctx, userID, StartOfUTCDay(q.now()))
	if err != nil {
		return false, apperr.Storage(err, "failed to count today's stories")
	}
	return count < FreeDailyLimit, nil
}

// StartOfUTCDay returns midnight UTC of the day containing t.
func StartOfUTCDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
