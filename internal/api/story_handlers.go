package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/alreadydone/alreadydone-server/internal/domain"
	"github.com/alreadydone/alreadydone-server/internal/story"
)

func (s *Server) registerStoryRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "generateStory",
		Method:      http.MethodPost,
		Path:        "/api/generate-story",
		Summary:     "Generate story",
		Description: "Generates and stores the next story for a user in one desire category. Free users get one story per UTC day.",
		Tags:        []string{"Stories"},
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict, http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable},
	}, s.handleGenerateStory)

	huma.Register(s.api, huma.Operation{
		OperationID: "listStories",
		Method:      http.MethodGet,
		Path:        "/api/stories",
		Summary:     "List stories",
		Description: "Returns a user's stories in creation order with the desire display name",
		Tags:        []string{"Stories"},
	}, s.handleListStories)

	huma.Register(s.api, huma.Operation{
		OperationID: "listDesires",
		Method:      http.MethodGet,
		Path:        "/api/desires",
		Summary:     "List desires",
		Description: "Returns the desire catalog",
		Tags:        []string{"Stories"},
	}, s.handleListDesires)
}

// === DTOs ===

// GenerateStoryInput wraps the generation request for Huma.
type GenerateStoryInput struct {
	Body story.Request
}

// GenerateStoryResponse is the stored story.
type GenerateStoryResponse struct {
	ID    int64  `json:"id" doc:"Story ID"`
	Theme string `json:"theme" doc:"Story title"`
	Story string `json:"story" doc:"Story text"`
}

// GenerateStoryOutput wraps the generation response for Huma.
type GenerateStoryOutput struct {
	Body GenerateStoryResponse
}

// ListStoriesInput selects whose stories to list.
type ListStoriesInput struct {
	UserID int64 `query:"user_id" required:"true" doc:"Story owner"`
}

// ListStoriesOutput wraps the story list for Huma.
type ListStoriesOutput struct {
	Body []*domain.StoryWithDesire
}

// ListDesiresOutput wraps the desire catalog for Huma.
type ListDesiresOutput struct {
	Body []*domain.Desire
}

// === Handlers ===

func (s *Server) handleGenerateStory(ctx context.Context, input *GenerateStoryInput) (*GenerateStoryOutput, error) {
	out, err := s.services.Story.Run(ctx, input.Body)
	if err != nil {
		return nil, err
	}

	return &GenerateStoryOutput{
		Body: GenerateStoryResponse{
			ID:    out.ID,
			Theme: out.Theme,
			Story: out.Body,
		},
	}, nil
}

func (s *Server) handleListStories(ctx context.Context, input *ListStoriesInput) (*ListStoriesOutput, error) {
	stories, err := s.services.Catalog.ListStories(ctx, input.UserID)
	if err != nil {
		return nil, err
	}
	if stories == nil {
		stories = []*domain.StoryWithDesire{}
	}
	return &ListStoriesOutput{Body: stories}, nil
}

func (s *Server) handleListDesires(ctx context.Context, _ *struct{}) (*ListDesiresOutput, error) {
	desires, err := s.services.Catalog.ListDesires(ctx)
	if err != nil {
		return nil, err
	}
	if desires == nil {
		desires = []*domain.Desire{}
	}
	return &ListDesiresOutput{Body: desires}, nil
}
