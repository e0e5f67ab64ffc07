package api

import (
	"context"

	"github.com/alreadydone/alreadydone-server/internal/service"
	"github.com/alreadydone/alreadydone-server/internal/story"
)

// StoryRunner runs one story generation.
type StoryRunner interface {
	Run(ctx context.Context, req story.Request) (*story.Outcome, error)
}

// Services groups all business logic services used by the API server.
// This reduces the parameter count for NewServer and improves testability.
type Services struct {
	Story        StoryRunner
	Catalog      *service.CatalogService
	User         *service.UserService
	Subscription *service.SubscriptionService
	Voice        *service.VoiceService
}
