package service

import (
	"context"
	"log/slog"

	"github.com/alreadydone/alreadydone-server/internal/domain"
	apperr "github.com/alreadydone/alreadydone-server/internal/errors"
	"github.com/alreadydone/alreadydone-server/internal/store"
)

// CatalogService serves the read-only listings.
type CatalogService struct {
	store  store.Store
	logger *slog.Logger
}

// NewCatalogService creates a listing service.
func NewCatalogService(s store.Store, logger *slog.Logger) *CatalogService {
	return &CatalogService{store: s, logger: logger}
}

// ListDesires returns every desire category.
func (s *CatalogService) ListDesires(ctx context.Context) ([]*domain.Desire, error) {
	desires, err := s.store.ListDesires(ctx)
	if err != nil {
		return nil, apperr.Storage(err, "failed to list desires")
	}
	if desires == nil {
		desires = []*domain.Desire{}
	}
	return desires, nil
}

// ListStories returns a user's stories with their category display names,
// oldest first.
func (s *CatalogService) ListStories(ctx context.Context, userID int64) ([]*domain.StoryWithDesire, error) {
	if userID <= 0 {
		return nil, apperr.ValidationWithDetails("invalid user id", map[string]string{"user_id": "must be greater than 0"})
	}
	stories, err := s.store.ListStoriesByUser(ctx, userID)
	if err != nil {
		return nil, apperr.Storage(err, "failed to list stories")
	}
	if stories == nil {
		stories = []*domain.StoryWithDesire{}
	}
	return stories, nil
}

// SeedDesires makes sure every category exists, keeping existing ids.
// Display names come from names; missing entries use the label.
func (s *CatalogService) SeedDesires(ctx context.Context, names map[domain.DesireCategory]string) ([]*domain.Desire, error) {
	out := make([]*domain.Desire, 0, len(domain.Categories))
	for _, c := range domain.Categories {
		name := names[c]
		if name == "" {
			name = string(c)
		}
		d := &domain.Desire{Category: c, Name: name}
		if err := s.store.UpsertDesire(ctx, d); err != nil {
			return nil, apperr.Storage(err, "failed to seed desire "+string(c))
		}
		out = append(out, d)
	}
	s.logger.Info("desire catalog seeded", "count", len(out))
	return out, nil
}

// DefaultDesireNames are the display names the app ships with.
var DefaultDesireNames = map[domain.DesireCategory]string{
	domain.CategoryLove:   "Love & Relationships",
	domain.CategoryMoney:  "Money & Abundance",
	domain.CategoryCareer: "Career & Purpose",
	domain.CategoryHealth: "Health & Vitality",
	domain.CategoryHome:   "Home & Belonging",
}
