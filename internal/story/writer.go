package story

import (
	"context"

	"github.com/alreadydone/alreadydone-server/internal/domain"
	apperr "github.com/alreadydone/alreadydone-server/internal/errors"
)

// StoryInserter persists a new story and fills in its id.
type StoryInserter interface {
	CreateStory(ctx context.Context, story *domain.Story) error
}

// Writer inserts finished stories.
type Writer struct {
	stories StoryInserter
}

// NewWriter creates a persistence writer.
func NewWriter(stories StoryInserter) *Writer {
	return &Writer{stories: stories}
}

// Insert stores one story and returns it with its assigned id.
func (w *Writer) Insert(ctx context.Context, userID, categoryID int64, theme, body string) (*domain.Story, error) {
	s := &domain.Story{
		UserID:   userID,
		DesireID: categoryID,
		Theme:    theme,
		Body:     body,
	}
	if err := w.stories.CreateStory(ctx, s); err != nil {
		return nil, apperr.Storage(err, "failed to save story")
	}
	return s, nil
}
