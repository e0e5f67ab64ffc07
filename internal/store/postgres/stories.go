package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"

	"github.com/alreadydone/alreadydone-server/internal/domain"
	"github.com/alreadydone/alreadydone-server/internal/store"
)

type desireRow struct {
	ID       int64  `db:"id"`
	Category string `db:"category"`
	Name     string `db:"name"`
}

func (r *desireRow) toDomain() *domain.Desire {
	return &domain.Desire{ID: r.ID, Category: domain.DesireCategory(r.Category), Name: r.Name}
}

type storyRow struct {
	ID         int64     `db:"id"`
	UserID     int64     `db:"user_id"`
	DesireID   int64     `db:"desire_id"`
	Theme      string    `db:"theme"`
	Story      string    `db:"story"`
	CreatedAt  time.Time `db:"created_at"`
	DesireName string    `db:"desire_name"`
}

func (r *storyRow) toDomain() *domain.Story {
	return &domain.Story{
		ID:        r.ID,
		UserID:    r.UserID,
		DesireID:  r.DesireID,
		Theme:     r.Theme,
		Body:      r.Story,
		CreatedAt: r.CreatedAt.UTC(),
	}
}

const storyColumns = `id, user_id, desire_id, theme, story, created_at`

// ListDesires returns the whole catalog ordered by id.
func (s *Store) ListDesires(ctx context.Context) ([]*domain.Desire, error) {
	var rows []*desireRow
	if err := pgxscan.Select(ctx, s.pool, &rows, `SELECT id, category, name FROM desires ORDER BY id`); err != nil {
		return nil, fmt.Errorf("list desires: %w", err)
	}
	desires := make([]*domain.Desire, 0, len(rows))
	for _, r := range rows {
		desires = append(desires, r.toDomain())
	}
	return desires, nil
}

// GetDesireByCategory looks up a catalog row by its exact label.
func (s *Store) GetDesireByCategory(ctx context.Context, category string) (*domain.Desire, error) {
	var row desireRow
	err := pgxscan.Get(ctx, s.pool, &row, `SELECT id, category, name FROM desires WHERE category = $1`, category)
	if pgxscan.NotFound(err) {
		return nil, store.ErrNotFound.WithMessage("desire not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get desire: %w", err)
	}
	return row.toDomain(), nil
}

// UpsertDesire inserts a catalog row or renames the existing one for its category.
func (s *Store) UpsertDesire(ctx context.Context, d *domain.Desire) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO desires (category, name) VALUES ($1, $2)
		ON CONFLICT (category) DO UPDATE SET name = EXCLUDED.name
		RETURNING id`,
		string(d.Category), d.Name,
	).Scan(&d.ID)
	if err != nil {
		return fmt.Errorf("upsert desire: %w", err)
	}
	return nil
}

// CreateStory inserts a story and fills in its ID and CreatedAt.
func (s *Store) CreateStory(ctx context.Context, st *domain.Story) error {
	if st.CreatedAt.IsZero() {
		st.CreatedAt = time.Now().UTC()
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO stories (user_id, desire_id, theme, story, created_at) VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		st.UserID, st.DesireID, st.Theme, st.Body, st.CreatedAt,
	).Scan(&st.ID)
	if err != nil {
		return fmt.Errorf("insert story: %w", err)
	}
	return nil
}

// GetStory retrieves a story by ID.
func (s *Store) GetStory(ctx context.Context, id int64) (*domain.Story, error) {
	var row storyRow
	err := pgxscan.Get(ctx, s.pool, &row, `SELECT `+storyColumns+` FROM stories WHERE id = $1`, id)
	if pgxscan.NotFound(err) {
		return nil, store.ErrNotFound.WithMessage("story not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get story: %w", err)
	}
	return row.toDomain(), nil
}

// CountStoriesSince counts a user's stories created at or after since.
func (s *Store) CountStoriesSince(ctx context.Context, userID int64, since time.Time) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM stories WHERE user_id = $1 AND created_at >= $2`, userID, since,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count stories: %w", err)
	}
	return count, nil
}

// ListStoriesForDesire returns a user's stories in one category ordered by id.
func (s *Store) ListStoriesForDesire(ctx context.Context, userID, desireID int64) ([]*domain.Story, error) {
	var rows []*storyRow
	err := pgxscan.Select(ctx, s.pool, &rows,
		`SELECT `+storyColumns+` FROM stories WHERE user_id = $1 AND desire_id = $2 ORDER BY id ASC`,
		userID, desireID)
	if err != nil {
		return nil, fmt.Errorf("list stories: %w", err)
	}
	stories := make([]*domain.Story, 0, len(rows))
	for _, r := range rows {
		stories = append(stories, r.toDomain())
	}
	return stories, nil
}

// ListStoriesByUser returns every story of a user with its catalog display name.
func (s *Store) ListStoriesByUser(ctx context.Context, userID int64) ([]*domain.StoryWithDesire, error) {
	var rows []*storyRow
	err := pgxscan.Select(ctx, s.pool, &rows, `
		SELECT s.id, s.user_id, s.desire_id, s.theme, s.story, s.created_at,
			COALESCE(d.name, '') AS desire_name
		FROM stories s
		LEFT JOIN desires d ON d.id = s.desire_id
		WHERE s.user_id = $1
		ORDER BY s.id ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list user stories: %w", err)
	}
	stories := make([]*domain.StoryWithDesire, 0, len(rows))
	for _, r := range rows {
		stories = append(stories, &domain.StoryWithDesire{Story: *r.toDomain(), DesireName: r.DesireName})
	}
	return stories, nil
}
