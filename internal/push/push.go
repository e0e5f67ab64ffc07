// Package push delivers notifications to mobile devices.
package push

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrInvalidToken means the device token will never work again and should
// be forgotten.
var ErrInvalidToken = errors.New("push: device token is invalid or unregistered")

// Notification is the visible part of a push message.
type Notification struct {
	Title string
	Body  string
}

// Sender delivers one notification to one device token.
type Sender interface {
	Send(ctx context.Context, token string, n Notification) error
}

// Stub logs notifications instead of sending them. It is used when no
// Firebase credentials are configured.
type Stub struct {
	logger *slog.Logger
}

// NewStub creates a logging sender.
func NewStub(logger *slog.Logger) *Stub {
	return &Stub{logger: logger}
}

// Send logs n and reports success.
func (s *Stub) Send(_ context.Context, token string, n Notification) error {
	s.logger.Info("push notification (stub)", "token_suffix", tokenSuffix(token), "title", n.Title, "body", n.Body)
	return nil
}

// Recorder keeps every notification it is asked to send. Failures can be
// scripted per token.
type Recorder struct {
	mu       sync.Mutex
	Sent     []Delivery
	Failures map[string]error
}

// Delivery is one recorded Send call.
type Delivery struct {
	Token        string
	Notification Notification
}

// Send records the call, or returns the scripted failure for token.
func (r *Recorder) Send(_ context.Context, token string, n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err, ok := r.Failures[token]; ok {
		return err
	}
	r.Sent = append(r.Sent, Delivery{Token: token, Notification: n})
	return nil
}

// Deliveries returns a copy of what was sent so far.
func (r *Recorder) Deliveries() []Delivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Delivery(nil), r.Sent...)
}

// tokenSuffix keeps device tokens out of logs while still telling them apart.
func tokenSuffix(token string) string {
	if len(token) <= 6 {
		return "***"
	}
	return "***" + token[len(token)-6:]
}
