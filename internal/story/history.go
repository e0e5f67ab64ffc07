package story

import (
	"context"
	"strings"

	"github.com/alreadydone/alreadydone-server/internal/domain"
	apperr "github.com/alreadydone/alreadydone-server/internal/errors"
)

// HistorySource lists a user's stories in one category ordered by id.
type HistorySource interface {
	ListStoriesForDesire(ctx context.Context, userID, desireID int64) ([]*domain.Story, error)
}

// History summarizes earlier stories for one (user, category) pair.
type History struct {
	Count  int
	Themes []string
}

// NextSequence is the 1-based sequence number of the next story.
func (h History) NextSequence() int {
	return h.Count + 1
}

// HistoryReader reads prior stories for narrative evolution.
type HistoryReader struct {
	stories HistorySource
}

// NewHistoryReader creates a history reader.
func NewHistoryReader(stories HistorySource) *HistoryReader {
	return &HistoryReader{stories: stories}
}

// History returns the count and non-empty themes of the user's stories in
// categoryID, oldest first.
func (r *HistoryReader) History(ctx context.Context, userID, categoryID int64) (History, error) {
	stories, err := r.stories.ListStoriesForDesire(ctx, userID, categoryID)
	if err != nil {
		return History{}, apperr.Storage(err, "failed to read story history")
	}

	h := History{Count: len(stories)}
	for _, s := range stories {
		if t := strings.TrimSpace(s.Theme); t != "" {
			h.Themes = append(h.Themes, t)
		}
	}
	return h, nil
}
