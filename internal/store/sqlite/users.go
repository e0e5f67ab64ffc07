package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/alreadydone/alreadydone-server/internal/domain"
	"github.com/alreadydone/alreadydone-server/internal/store"
)

// userColumns is the ordered list of columns selected in user queries.
// Must match the scan order in scanUser.
const userColumns = `id, name, email, password_hash, created_at,
	speed, voice_id, fcm_token, timezone,
	morning_reminder_enabled, morning_reminder_time,
	bedtime_reminder_enabled, bedtime_reminder_time,
	subscription_status, subscription_plan, trial_end,
	stripe_customer_id, stripe_subscription_id`

// scanUser scans a sql.Row (or sql.Rows via its Scan method) into a domain.User.
func scanUser(scanner interface{ Scan(dest ...any) error }) (*domain.User, error) {
	var u domain.User

	var (
		createdAt string
		speed     string
		morning   int
		bedtime   int
		status    string
		plan      string
		trialEnd  sql.NullString
	)

	err := scanner.Scan(
		&u.ID,
		&u.Name,
		&u.Email,
		&u.PasswordHash,
		&createdAt,
		&speed,
		&u.VoiceID,
		&u.FCMToken,
		&u.Timezone,
		&morning,
		&u.MorningReminderTime,
		&bedtime,
		&u.BedtimeReminderTime,
		&status,
		&plan,
		&trialEnd,
		&u.Subscription.StripeCustomerID,
		&u.Subscription.StripeSubscriptionID,
	)
	if err != nil {
		return nil, err
	}

	u.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	u.Subscription.TrialEnd, err = parseNullableTime(trialEnd)
	if err != nil {
		return nil, err
	}

	u.Speed = domain.NarrationSpeed(speed)
	u.MorningReminderEnabled = morning != 0
	u.BedtimeReminderEnabled = bedtime != 0
	u.Subscription.Status = domain.SubscriptionStatus(status)
	u.Subscription.Plan = domain.Plan(plan)

	return &u, nil
}

// CreateUser inserts a user. A zero ID lets the database assign one.
func (s *Store) CreateUser(ctx context.Context, u *domain.User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = s.now()
	}
	if u.Speed == "" {
		u.Speed = domain.SpeedNormal
	}
	if u.Subscription.Status == "" {
		u.Subscription.Status = domain.StatusFree
	}

	var id any
	if u.ID != 0 {
		id = u.ID
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, name, email, password_hash, created_at,
			speed, voice_id, fcm_token, timezone,
			morning_reminder_enabled, morning_reminder_time,
			bedtime_reminder_enabled, bedtime_reminder_time,
			subscription_status, subscription_plan, trial_end,
			stripe_customer_id, stripe_subscription_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, u.Name, u.Email, u.PasswordHash, formatTime(u.CreatedAt),
		string(u.Speed), u.VoiceID, u.FCMToken, u.Timezone,
		boolToInt(u.MorningReminderEnabled), u.MorningReminderTime,
		boolToInt(u.BedtimeReminderEnabled), u.BedtimeReminderTime,
		string(u.Subscription.Status), string(u.Subscription.Plan), nullTimeString(u.Subscription.TrialEnd),
		u.Subscription.StripeCustomerID, u.Subscription.StripeSubscriptionID,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return store.ErrAlreadyExists.WithCause(err)
		}
		return fmt.Errorf("insert user: %w", err)
	}

	if u.ID == 0 {
		u.ID, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("user id: %w", err)
		}
	}
	return nil
}

// GetUser retrieves a user by ID.
// Returns store.ErrNotFound if the user does not exist.
func (s *Store) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)

	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound.WithMessage("user not found")
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

// UpdateUser applies the given column assignments and returns the updated user.
func (s *Store) UpdateUser(ctx context.Context, id int64, fields []domain.PatchField) (*domain.User, error) {
	if len(fields) == 0 {
		return s.GetUser(ctx, id)
	}

	sets := make([]string, 0, len(fields))
	args := make([]any, 0, len(fields)+1)
	for _, f := range fields {
		sets = append(sets, f.Column+" = ?")
		if b, ok := f.Value.(bool); ok {
			args = append(args, boolToInt(b))
			continue
		}
		args = append(args, f.Value)
	}
	args = append(args, id)

	// Column names come from domain.UserPatch's static table, never from input.
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, store.ErrNotFound.WithMessage("user not found")
	}

	return s.GetUser(ctx, id)
}

// SetUserVoice stores the cloned voice id on a user.
func (s *Store) SetUserVoice(ctx context.Context, id int64, voiceID string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET voice_id = ? WHERE id = ?`, voiceID, id)
	if err != nil {
		return fmt.Errorf("set voice: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound.WithMessage("user not found")
	}
	return nil
}

// ListReminderUsers returns users with a push token and at least one reminder enabled.
func (s *Store) ListReminderUsers(ctx context.Context) ([]*domain.User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users
		WHERE fcm_token != ''
		AND (morning_reminder_enabled = 1 OR bedtime_reminder_enabled = 1)
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list reminder users: %w", err)
	}
	defer rows.Close()

	var users []*domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// SaveSubscription overwrites the billing fields of a user.
func (s *Store) SaveSubscription(ctx context.Context, userID int64, sub domain.Subscription) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET
			subscription_status = ?,
			subscription_plan = ?,
			trial_end = ?,
			stripe_customer_id = ?,
			stripe_subscription_id = ?
		WHERE id = ?`,
		string(sub.Status), string(sub.Plan), nullTimeString(sub.TrialEnd),
		sub.StripeCustomerID, sub.StripeSubscriptionID, userID,
	)
	if err != nil {
		return fmt.Errorf("save subscription: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound.WithMessage("user not found")
	}
	return nil
}

// UpdateSubscriptionByStripeID updates the user owning a provider subscription.
// Returns the number of users touched.
func (s *Store) UpdateSubscriptionByStripeID(ctx context.Context, stripeSubscriptionID string, upd store.SubscriptionUpdate) (int64, error) {
	sets := []string{"subscription_status = ?"}
	args := []any{string(upd.Status)}
	if upd.Plan != nil {
		sets = append(sets, "subscription_plan = ?")
		args = append(args, string(*upd.Plan))
	}
	if upd.TrialEnd != nil {
		sets = append(sets, "trial_end = ?")
		args = append(args, formatTime(*upd.TrialEnd))
	}
	args = append(args, stripeSubscriptionID)

	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET `+strings.Join(sets, ", ")+` WHERE stripe_subscription_id = ?`, args...)
	if err != nil {
		return 0, fmt.Errorf("update subscription: %w", err)
	}
	return res.RowsAffected()
}
