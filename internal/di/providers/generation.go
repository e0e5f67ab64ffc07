package providers

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/samber/do/v2"

	"github.com/alreadydone/alreadydone-server/internal/config"
	"github.com/alreadydone/alreadydone-server/internal/llm"
	"github.com/alreadydone/alreadydone-server/internal/lock"
	"github.com/alreadydone/alreadydone-server/internal/logger"
	"github.com/alreadydone/alreadydone-server/internal/service"
	"github.com/alreadydone/alreadydone-server/internal/story"
)

// ProvideCompleter provides the LLM client. It never fails on missing
// credentials; generation requests report NOT_CONFIGURED instead.
func ProvideCompleter(i do.Injector) (llm.Completer, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	return llm.New(cfg.LLM(), log.Logger)
}

// LockHandle owns the Redis connection behind the per-user story lock.
// Locker is nil when the lock is disabled.
type LockHandle struct {
	Locker *lock.Redis
	client *redis.Client
}

// Shutdown implements do.Shutdownable.
func (h *LockHandle) Shutdown() error {
	if h.client == nil {
		return nil
	}
	return h.client.Close()
}

// ProvideLock connects to Redis when STORY_USER_LOCK is enabled.
func ProvideLock(i do.Injector) (*LockHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	if !cfg.Redis.StoryUserLock {
		return &LockHandle{}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	client, err := lock.Connect(ctx, cfg.Redis.URL)
	if err != nil {
		return nil, err
	}

	log.Info("Story user lock enabled", "ttl", cfg.Redis.LockTTL)
	return &LockHandle{
		Locker: lock.NewRedis(client, cfg.Redis.LockTTL, log.Logger),
		client: client,
	}, nil
}

// ProvideStoryPipeline wires the generation state machine.
func ProvideStoryPipeline(i do.Injector) (*story.Pipeline, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	completer := do.MustInvoke[llm.Completer](i)
	lockHandle := do.MustInvoke[*LockHandle](i)
	subscriptions := do.MustInvoke[*service.SubscriptionService](i)
	// Categories must be seeded before the first run resolves one.
	bootstrap := do.MustInvoke[*Bootstrap](i)

	st := storeHandle.Store
	pipeline := story.NewPipeline(
		story.NewQuotaPolicy(subscriptions, st, log.Logger),
		story.NewCatalog(st),
		story.NewHistoryReader(st),
		story.NewGenerator(completer, story.GeneratorOptions{
			MaxTokens: cfg.Generation.MaxTokens,
			Model:     cfg.Generation.Model,
		}, log.Logger),
		story.NewWriter(st),
		log.Logger,
	)
	if lockHandle.Locker != nil {
		pipeline.SetLocker(lockHandle.Locker)
	}

	log.Info("Story pipeline ready",
		"categories", len(bootstrap.Desires),
		"user_lock", lockHandle.Locker != nil,
	)

	return pipeline, nil
}

// ProvideCatalogService provides desire and story listings.
func ProvideCatalogService(i do.Injector) (*service.CatalogService, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewCatalogService(storeHandle.Store, log.Logger), nil
}
