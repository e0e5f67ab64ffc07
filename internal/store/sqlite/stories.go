package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alreadydone/alreadydone-server/internal/domain"
	"github.com/alreadydone/alreadydone-server/internal/store"
)

const storyColumns = `id, user_id, desire_id, theme, story, created_at`

func scanStory(scanner interface{ Scan(dest ...any) error }) (*domain.Story, error) {
	var (
		st        domain.Story
		createdAt string
	)
	if err := scanner.Scan(&st.ID, &st.UserID, &st.DesireID, &st.Theme, &st.Body, &createdAt); err != nil {
		return nil, err
	}
	var err error
	st.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// ListDesires returns the whole catalog ordered by id.
func (s *Store) ListDesires(ctx context.Context) ([]*domain.Desire, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, category, name FROM desires ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list desires: %w", err)
	}
	defer rows.Close()

	var desires []*domain.Desire
	for rows.Next() {
		var (
			d        domain.Desire
			category string
		)
		if err := rows.Scan(&d.ID, &category, &d.Name); err != nil {
			return nil, fmt.Errorf("scan desire: %w", err)
		}
		d.Category = domain.DesireCategory(category)
		desires = append(desires, &d)
	}
	return desires, rows.Err()
}

// GetDesireByCategory looks up a catalog row by its exact label.
// Returns store.ErrNotFound if no row matches.
func (s *Store) GetDesireByCategory(ctx context.Context, category string) (*domain.Desire, error) {
	var (
		d     domain.Desire
		label string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, category, name FROM desires WHERE category = ?`, category,
	).Scan(&d.ID, &label, &d.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound.WithMessage("desire not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get desire: %w", err)
	}
	d.Category = domain.DesireCategory(label)
	return &d, nil
}

// UpsertDesire inserts a catalog row or renames the existing one for its category.
func (s *Store) UpsertDesire(ctx context.Context, d *domain.Desire) error {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO desires (category, name) VALUES (?, ?)
		ON CONFLICT(category) DO UPDATE SET name = excluded.name
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
		st.CreatedAt = s.now()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO stories (user_id, desire_id, theme, story, created_at) VALUES (?, ?, ?, ?, ?)`,
		st.UserID, st.DesireID, st.Theme, st.Body, formatTime(st.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert story: %w", err)
	}
	st.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("story id: %w", err)
	}
	return nil
}

// GetStory retrieves a story by ID.
func (s *Store) GetStory(ctx context.Context, id int64) (*domain.Story, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+storyColumns+` FROM stories WHERE id = ?`, id)
	st, err := scanStory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound.WithMessage("story not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get story: %w", err)
	}
	return st, nil
}

// CountStoriesSince counts a user's stories created at or after since, across all categories.
func (s *Store) CountStoriesSince(ctx context.Context, userID int64, since time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM stories WHERE user_id = ? AND created_at >= ?`,
		userID, formatTime(since),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count stories: %w", err)
	}
	return count, nil
}

// ListStoriesForDesire returns a user's stories in one category ordered by id.
func (s *Store) ListStoriesForDesire(ctx context.Context, userID, desireID int64) ([]*domain.Story, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+storyColumns+` FROM stories WHERE user_id = ? AND desire_id = ? ORDER BY id ASC`,
		userID, desireID,
	)
	if err != nil {
		return nil, fmt.Errorf("list stories: %w", err)
	}
	defer rows.Close()

	var stories []*domain.Story
	for rows.Next() {
		st, err := scanStory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan story: %w", err)
		}
		stories = append(stories, st)
	}
	return stories, rows.Err()
}

// ListStoriesByUser returns every story of a user with its catalog display name.
func (s *Store) ListStoriesByUser(ctx context.Context, userID int64) ([]*domain.StoryWithDesire, error) {
	cols := strings.ReplaceAll("s."+storyColumns, ", ", ", s.")
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+cols+`, COALESCE(d.name, '') FROM stories s
		LEFT JOIN desires d ON d.id = s.desire_id
		WHERE s.user_id = ? ORDER BY s.id ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list user stories: %w", err)
	}
	defer rows.Close()

	var stories []*domain.StoryWithDesire
	for rows.Next() {
		var (
			sw        domain.StoryWithDesire
			createdAt string
		)
		if err := rows.Scan(&sw.ID, &sw.UserID, &sw.DesireID, &sw.Theme, &sw.Body, &createdAt, &sw.DesireName); err != nil {
			return nil, fmt.Errorf("scan story: %w", err)
		}
		if sw.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		stories = append(stories, &sw)
	}
	return stories, rows.Err()
}
