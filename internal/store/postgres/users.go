package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/alreadydone/alreadydone-server/internal/domain"
	"github.com/alreadydone/alreadydone-server/internal/store"
)

const userColumns = `id, name, email, password_hash, created_at,
	speed, voice_id, fcm_token, timezone,
	morning_reminder_enabled, morning_reminder_time,
	bedtime_reminder_enabled, bedtime_reminder_time,
	subscription_status, subscription_plan, trial_end,
	stripe_customer_id, stripe_subscription_id`

// userRow mirrors the users table for pgxscan.
type userRow struct {
	ID                     int64      `db:"id"`
	Name                   string     `db:"name"`
	Email                  string     `db:"email"`
	PasswordHash           string     `db:"password_hash"`
	CreatedAt              time.Time  `db:"created_at"`
	Speed                  string     `db:"speed"`
	VoiceID                string     `db:"voice_id"`
	FCMToken               string     `db:"fcm_token"`
	Timezone               string     `db:"timezone"`
	MorningReminderEnabled bool       `db:"morning_reminder_enabled"`
	MorningReminderTime    string     `db:"morning_reminder_time"`
	BedtimeReminderEnabled bool       `db:"bedtime_reminder_enabled"`
	BedtimeReminderTime    string     `db:"bedtime_reminder_time"`
	SubscriptionStatus     string     `db:"subscription_status"`
	SubscriptionPlan       string     `db:"subscription_plan"`
	TrialEnd               *time.Time `db:"trial_end"`
	StripeCustomerID       string     `db:"stripe_customer_id"`
	StripeSubscriptionID   string     `db:"stripe_subscription_id"`
}

func (r *userRow) toDomain() *domain.User {
	return &domain.User{
		ID:                     r.ID,
		Name:                   r.Name,
		Email:                  r.Email,
		PasswordHash:           r.PasswordHash,
		CreatedAt:              r.CreatedAt.UTC(),
		Speed:                  domain.NarrationSpeed(r.Speed),
		VoiceID:                r.VoiceID,
		FCMToken:               r.FCMToken,
		Timezone:               r.Timezone,
		MorningReminderEnabled: r.MorningReminderEnabled,
		MorningReminderTime:    r.MorningReminderTime,
		BedtimeReminderEnabled: r.BedtimeReminderEnabled,
		BedtimeReminderTime:    r.BedtimeReminderTime,
		Subscription: domain.Subscription{
			Status:               domain.SubscriptionStatus(r.SubscriptionStatus),
			Plan:                 domain.Plan(r.SubscriptionPlan),
			TrialEnd:             r.TrialEnd,
			StripeCustomerID:     r.StripeCustomerID,
			StripeSubscriptionID: r.StripeSubscriptionID,
		},
	}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// CreateUser inserts a user. A zero ID lets the database assign one.
func (s *Store) CreateUser(ctx context.Context, u *domain.User) error {
	if u.Speed == "" {
		u.Speed = domain.SpeedNormal
	}
	if u.Subscription.Status == "" {
		u.Subscription.Status = domain.StatusFree
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}

	cols := `name, email, password_hash, created_at, speed, voice_id, fcm_token, timezone,
		morning_reminder_enabled, morning_reminder_time, bedtime_reminder_enabled, bedtime_reminder_time,
		subscription_status, subscription_plan, trial_end, stripe_customer_id, stripe_subscription_id`
	args := []any{
		u.Name, u.Email, u.PasswordHash, u.CreatedAt, string(u.Speed), u.VoiceID, u.FCMToken, u.Timezone,
		u.MorningReminderEnabled, u.MorningReminderTime, u.BedtimeReminderEnabled, u.BedtimeReminderTime,
		string(u.Subscription.Status), string(u.Subscription.Plan), u.Subscription.TrialEnd,
		u.Subscription.StripeCustomerID, u.Subscription.StripeSubscriptionID,
	}
	if u.ID != 0 {
		cols = "id, " + cols
		args = append([]any{u.ID}, args...)
	}

	err := s.pool.QueryRow(ctx,
		`INSERT INTO users (`+cols+`) VALUES (`+placeholders(len(args))+`) RETURNING id`, args...,
	).Scan(&u.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrAlreadyExists.WithCause(err)
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetUser retrieves a user by ID.
func (s *Store) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	var row userRow
	err := pgxscan.Get(ctx, s.pool, &row, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	if pgxscan.NotFound(err) {
		return nil, store.ErrNotFound.WithMessage("user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return row.toDomain(), nil
}

// UpdateUser applies the given column assignments and returns the updated user.
func (s *Store) UpdateUser(ctx context.Context, id int64, fields []domain.PatchField) (*domain.User, error) {
	if len(fields) == 0 {
		return s.GetUser(ctx, id)
	}

	sets := make([]string, 0, len(fields))
	args := make([]any, 0, len(fields)+1)
	for i, f := range fields {
		sets = append(sets, f.Column+" = $"+strconv.Itoa(i+1))
		args = append(args, f.Value)
	}
	args = append(args, id)

	var row userRow
	err := pgxscan.Get(ctx, s.pool, &row,
		`UPDATE users SET `+strings.Join(sets, ", ")+
			` WHERE id = $`+strconv.Itoa(len(args))+` RETURNING `+userColumns,
		args...)
	if pgxscan.NotFound(err) {
		return nil, store.ErrNotFound.WithMessage("user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}
	return row.toDomain(), nil
}

// SetUserVoice stores the cloned voice id on a user.
func (s *Store) SetUserVoice(ctx context.Context, id int64, voiceID string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE users SET voice_id = $1 WHERE id = $2`, voiceID, id)
	if err != nil {
		return fmt.Errorf("set voice: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound.WithMessage("user not found")
	}
	return nil
}

// ListReminderUsers returns users with a push token and at least one reminder enabled.
func (s *Store) ListReminderUsers(ctx context.Context) ([]*domain.User, error) {
	var rows []*userRow
	err := pgxscan.Select(ctx, s.pool, &rows, `SELECT `+userColumns+` FROM users
		WHERE fcm_token <> '' AND (morning_reminder_enabled OR bedtime_reminder_enabled)
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list reminder users: %w", err)
	}

	users := make([]*domain.User, 0, len(rows))
	for _, r := range rows {
		users = append(users, r.toDomain())
	}
	return users, nil
}

// SaveSubscription overwrites the billing fields of a user.
func (s *Store) SaveSubscription(ctx context.Context, userID int64, sub domain.Subscription) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE users SET
			subscription_status = $1,
			subscription_plan = $2,
			trial_end = $3,
			stripe_customer_id = $4,
			stripe_subscription_id = $5
		WHERE id = $6`,
		string(sub.Status), string(sub.Plan), sub.TrialEnd,
		sub.StripeCustomerID, sub.StripeSubscriptionID, userID,
	)
	if err != nil {
		return fmt.Errorf("save subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound.WithMessage("user not found")
	}
	return nil
}

// UpdateSubscriptionByStripeID updates the user owning a provider subscription.
func (s *Store) UpdateSubscriptionByStripeID(ctx context.Context, stripeSubscriptionID string, upd store.SubscriptionUpdate) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE users SET
			subscription_status = $1,
			subscription_plan = COALESCE($2, subscription_plan),
			trial_end = COALESCE($3, trial_end)
		WHERE stripe_subscription_id = $4`,
		string(upd.Status), planArg(upd.Plan), upd.TrialEnd, stripeSubscriptionID,
	)
	if err != nil {
		return 0, fmt.Errorf("update subscription: %w", err)
	}
	return tag.RowsAffected(), nil
}

func planArg(p *domain.Plan) *string {
	if p == nil {
		return nil
	}
	v := string(*p)
	return &v
}

func placeholders(n int) string {
	var b strings.Builder
	for i := 1; i <= n; i++ {
		if i > 1 {
			b.WriteString(", ")
		}
		b.WriteString("$" + strconv.Itoa(i))
	}
	return b.String()
}
