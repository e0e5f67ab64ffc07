package push

import (
	"context"
	"fmt"
	"log/slog"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

// FCM sends through Firebase Cloud Messaging.
type FCM struct {
	client *messaging.Client
	logger *slog.Logger
}

// NewFCM initializes a Firebase app from a service account file.
func NewFCM(ctx context.Context, credentialsPath string, logger *slog.Logger) (*FCM, error) {
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsPath))
	if err != nil {
		return nil, fmt.Errorf("init firebase app from %s: %w", credentialsPath, err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("get messaging client: %w", err)
	}
	logger.Info("FCM sender initialized", "credentials_path", credentialsPath)
	return &FCM{client: client, logger: logger}, nil
}

// Send delivers n to token. Tokens FCM reports as dead come back wrapped
// in ErrInvalidToken.
func (f *FCM) Send(ctx context.Context, token string, n Notification) error {
	msg := &messaging.Message{
		Token: token,
		Notification: &messaging.Notification{
			Title: n.Title,
			Body:  n.Body,
		},
		Android: &messaging.AndroidConfig{Priority: "high"},
	}

	msgID, err := f.client.Send(ctx, msg)
	if err != nil {
		if messaging.IsUnregistered(err) || messaging.IsInvalidArgument(err) || messaging.IsSenderIDMismatch(err) {
			return fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
		return fmt.Errorf("fcm send: %w", err)
	}

	f.logger.Debug("push sent", "message_id", msgID, "token_suffix", tokenSuffix(token))
	return nil
}
