package providers

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/samber/do/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alreadydone/alreadydone-server/internal/config"
	"github.com/alreadydone/alreadydone-server/internal/logger"
	"github.com/alreadydone/alreadydone-server/internal/service"
	"github.com/alreadydone/alreadydone-server/internal/story"
)

func newTestInjector(t *testing.T) *do.RootScope {
	t.Helper()

	cfg := &config.Config{
		App: config.AppConfig{Name: "test", Environment: "development"},
		Database: config.DatabaseConfig{
			Driver: config.DriverSQLite,
			Path:   filepath.Join(t.TempDir(), "di.db"),
		},
		Generation: config.GenerationConfig{Provider: "openai"},
	}

	injector := do.New()
	do.ProvideValue(injector, cfg)
	do.ProvideValue(injector, logger.New(logger.Config{Writer: io.Discard, Level: slog.LevelError}))
	do.Provide(injector, ProvideStore)
	do.Provide(injector, ProvideBootstrap)
	do.Provide(injector, ProvideCompleter)
	do.Provide(injector, ProvideLock)
	do.Provide(injector, ProvideBilling)
	do.Provide(injector, ProvideCatalogService)
	do.Provide(injector, ProvideSubscriptionService)
	do.Provide(injector, ProvideStoryPipeline)

	t.Cleanup(func() { _ = injector.Shutdown() })
	return injector
}

func TestProvideStoryPipeline_SeedsCategoriesFirst(t *testing.T) {
	injector := newTestInjector(t)

	pipeline, err := do.Invoke[*story.Pipeline](injector)
	require.NoError(t, err)
	require.NotNil(t, pipeline)

	storeHandle := do.MustInvoke[*StoreHandle](injector)
	desires, err := storeHandle.ListDesires(context.Background())
	require.NoError(t, err)
	assert.Len(t, desires, len(service.DefaultDesireNames))
}

func TestProvideLock_DisabledWithoutRedis(t *testing.T) {
	injector := newTestInjector(t)

	handle, err := do.Invoke[*LockHandle](injector)
	require.NoError(t, err)
	assert.Nil(t, handle.Locker)
	assert.NoError(t, handle.Shutdown())
}
