package story

import (
	"context"
	"errors"

	"github.com/alreadydone/alreadydone-server/internal/domain"
	apperr "github.com/alreadydone/alreadydone-server/internal/errors"
	"github.com/alreadydone/alreadydone-server/internal/store"
)

// DesireLookup finds a catalog row by its exact label.
type DesireLookup interface {
	GetDesireByCategory(ctx context.Context, category string) (*domain.Desire, error)
}

// Catalog resolves category labels to catalog ids.
type Catalog struct {
	desires DesireLookup
}

// NewCatalog creates a catalog lookup.
func NewCatalog(desires DesireLookup) *Catalog {
	return &Catalog{desires: desires}
}

// ResolveCategoryID returns the id of the catalog row labelled exactly label.
func (c *Catalog) ResolveCategoryID(ctx context.Context, label string) (int64, error) {
	d, err := c.desires.GetDesireByCategory(ctx, label)
	if errors.Is(err, store.ErrNotFound) {
		return 0, apperr.NotFoundf("desire category %q not found", label).
			WithDetails(map[string]string{"desireCategory": label})
	}
	if err != nil {
		return 0, apperr.Storage(err, "failed to look up desire category")
	}
	return d.ID, nil
}
