package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/alreadydone/alreadydone-server/internal/domain"
	apperr "github.com/alreadydone/alreadydone-server/internal/errors"
	"github.com/alreadydone/alreadydone-server/internal/metrics"
	"github.com/alreadydone/alreadydone-server/internal/push"
	"github.com/alreadydone/alreadydone-server/internal/store"
	"github.com/alreadydone/alreadydone-server/internal/validation"
)

// Reminder kinds.
const (
	ReminderMorning = "morning"
	ReminderBedtime = "bedtime"
)

var reminderCopy = map[string]push.Notification{
	ReminderMorning: {Title: "Good morning", Body: "Your daily story is ready."},
	ReminderBedtime: {Title: "Time to reflect", Body: "Evening reflection prompt."},
}

// SweepResult summarizes one reminder pass.
type SweepResult struct {
	Candidates int `json:"candidates"`
	Sent       int `json:"sent"`
	Failed     int `json:"failed"`
}

// ReminderService sends morning and bedtime pushes at each user's local time.
type ReminderService struct {
	store  store.Store
	sender push.Sender
	logger *slog.Logger
	now    func() time.Time

	cancel context.CancelFunc
	done   chan struct{}
	mu     sync.Mutex
}

// NewReminderService creates a reminder service.
func NewReminderService(s store.Store, sender push.Sender, logger *slog.Logger) *ReminderService {
	return &ReminderService{store: s, sender: sender, logger: logger, now: time.Now}
}

// Sweep sends every reminder due at now's minute. One user's failure never
// stops the pass.
func (s *ReminderService) Sweep(ctx context.Context, now time.Time) (SweepResult, error) {
	var result SweepResult

	users, err := s.store.ListReminderUsers(ctx)
	if err != nil {
		return result, apperr.Storage(err, "failed to list reminder users")
	}
	result.Candidates = len(users)

	for _, u := range users {
		local := now.In(userLocation(u.Timezone))
		for _, kind := range dueReminders(u, local) {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			if s.send(ctx, u, kind) {
				result.Sent++
			} else {
				result.Failed++
			}
		}
	}

	if result.Sent > 0 || result.Failed > 0 {
		s.logger.Info("reminder sweep finished", "candidates", result.Candidates, "sent", result.Sent, "failed", result.Failed)
	}
	return result, nil
}

func (s *ReminderService) send(ctx context.Context, u *domain.User, kind string) bool {
	err := s.sender.Send(ctx, strings.TrimSpace(u.FCMToken), reminderCopy[kind])
	metrics.ReminderSent(kind, err == nil)
	if err == nil {
		s.logger.Debug("reminder sent", "user_id", u.ID, "kind", kind)
		return true
	}

	s.logger.Warn("reminder push failed", "user_id", u.ID, "kind", kind, "error", err)
	if errors.Is(err, push.ErrInvalidToken) {
		empty := ""
		patch := domain.UserPatch{FCMToken: &empty}
		if _, err := s.store.UpdateUser(ctx, u.ID, patch.Fields()); err != nil {
			s.logger.Warn("failed to clear dead push token", "user_id", u.ID, "error", err)
		}
	}
	return false
}

// dueReminders lists the reminder kinds whose stored time equals local's
// hour and minute.
func dueReminders(u *domain.User, local time.Time) []string {
	var due []string
	if u.MorningReminderEnabled && clockMatches(u.MorningReminderTime, local) {
		due = append(due, ReminderMorning)
	}
	if u.BedtimeReminderEnabled && clockMatches(u.BedtimeReminderTime, local) {
		due = append(due, ReminderBedtime)
	}
	return due
}

func clockMatches(stored string, local time.Time) bool {
	hour, minute, ok := validation.ParseClock(stored)
	return ok && hour == local.Hour() && minute == local.Minute()
}

// userLocation resolves an IANA zone, falling back to UTC.
func userLocation(name string) *time.Location {
	name = strings.TrimSpace(name)
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Start runs Sweep at the top of every minute until Stop.
func (s *ReminderService) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.loop(ctx, s.done)
	s.logger.Info("reminder sweep started")
}

// Stop ends the loop and waits for an in-flight sweep.
func (s *ReminderService) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *ReminderService) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	timer := time.NewTimer(untilNextMinute(s.now()))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			tick := s.now().Truncate(time.Minute)
			if _, err := s.Sweep(ctx, tick); err != nil && ctx.Err() == nil {
				s.logger.Error("reminder sweep failed", "error", err)
			}
			timer.Reset(untilNextMinute(s.now()))
		}
	}
}

func untilNextMinute(now time.Time) time.Duration {
	return now.Truncate(time.Minute).Add(time.Minute).Sub(now)
}
