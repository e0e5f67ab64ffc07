package providers

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/samber/do/v2"

	"github.com/alreadydone/alreadydone-server/internal/config"
	"github.com/alreadydone/alreadydone-server/internal/domain"
	"github.com/alreadydone/alreadydone-server/internal/logger"
	"github.com/alreadydone/alreadydone-server/internal/service"
	"github.com/alreadydone/alreadydone-server/internal/store"
	"github.com/alreadydone/alreadydone-server/internal/store/postgres"
	"github.com/alreadydone/alreadydone-server/internal/store/sqlite"
)

// StoreHandle wraps the store with shutdown capability.
type StoreHandle struct {
	store.Store
}

// Shutdown implements do.Shutdownable.
func (h *StoreHandle) Shutdown() error {
	return h.Close()
}

// ProvideStore opens the datastore selected by DATABASE_DRIVER.
func ProvideStore(i do.Injector) (*StoreHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	st, err := OpenStore(context.Background(), cfg.Database, log.Logger)
	if err != nil {
		return nil, err
	}
	return &StoreHandle{Store: st}, nil
}

// OpenStore opens the configured datastore. It is shared with the CLI.
func OpenStore(ctx context.Context, cfg config.DatabaseConfig, log *slog.Logger) (store.Store, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		ctx, cancel := context.WithTimeout(ctx, connectTimeout)
		defer cancel()
		db, err := postgres.Open(ctx, cfg.DSN, postgres.Options{
			MaxConns: cfg.MaxConns,
			Migrate:  cfg.Migrate,
		}, log)
		if err != nil {
			return nil, err
		}
		log.Info("Database initialized", "driver", cfg.Driver, "migrate", cfg.Migrate)
		return db, nil
	case config.DriverSQLite, "":
		db, err := sqlite.Open(cfg.Path, log)
		if err != nil {
			return nil, err
		}
		log.Info("Database initialized", "driver", config.DriverSQLite, "path", cfg.Path)
		return db, nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

// Bootstrap records what startup seeding found.
type Bootstrap struct {
	Desires []*domain.Desire
}

// ProvideBootstrap makes sure the desire catalog has every category so
// generation never fails on a fresh database.
func ProvideBootstrap(i do.Injector) (*Bootstrap, error) {
	log := do.MustInvoke[*logger.Logger](i)
	catalog := do.MustInvoke[*service.CatalogService](i)

	desires, err := catalog.SeedDesires(context.Background(), service.DefaultDesireNames)
	if err != nil {
		return nil, err
	}

	log.Info("Desire catalog ready", "categories", len(desires))
	return &Bootstrap{Desires: desires}, nil
}
