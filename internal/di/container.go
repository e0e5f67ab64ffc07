// Package di provides dependency injection configuration for the AlreadyDone server.
package di

import (
	"github.com/samber/do/v2"

	"github.com/alreadydone/alreadydone-server/internal/audiocache"
	"github.com/alreadydone/alreadydone-server/internal/billing"
	"github.com/alreadydone/alreadydone-server/internal/config"
	"github.com/alreadydone/alreadydone-server/internal/di/providers"
	"github.com/alreadydone/alreadydone-server/internal/elevenlabs"
	"github.com/alreadydone/alreadydone-server/internal/llm"
	"github.com/alreadydone/alreadydone-server/internal/logger"
	"github.com/alreadydone/alreadydone-server/internal/push"
	"github.com/alreadydone/alreadydone-server/internal/ratelimit"
	"github.com/alreadydone/alreadydone-server/internal/service"
	"github.com/alreadydone/alreadydone-server/internal/story"
)

// NewContainer creates and configures the DI container with all providers.
func NewContainer() *do.RootScope {
	injector := do.New()

	// Core infrastructure
	do.Provide(injector, providers.ProvideConfig)
	do.Provide(injector, providers.ProvideLogger)

	// Database layer
	do.Provide(injector, providers.ProvideStore)
	do.Provide(injector, providers.ProvideBootstrap)

	// External integrations
	do.Provide(injector, providers.ProvideCompleter)
	do.Provide(injector, providers.ProvideLock)
	do.Provide(injector, providers.ProvideBilling)
	do.Provide(injector, providers.ProvideVoiceClient)
	do.Provide(injector, providers.ProvideAudioCache)
	do.Provide(injector, providers.ProvidePushSender)
	do.Provide(injector, providers.ProvideRateLimiter)

	// Business services
	do.Provide(injector, providers.ProvideCatalogService)
	do.Provide(injector, providers.ProvideSubscriptionService)
	do.Provide(injector, providers.ProvideVoiceService)
	do.Provide(injector, providers.ProvideUserService)
	do.Provide(injector, providers.ProvideStoryPipeline)

	// Workers
	do.Provide(injector, providers.ProvideReminders)

	// Server
	do.Provide(injector, providers.ProvideHTTPServer)

	return injector
}

// Bootstrap initializes all services so configuration and connection errors
// surface before the server accepts traffic.
func Bootstrap(injector *do.RootScope) error {
	if _, err := do.Invoke[*config.Config](injector); err != nil {
		return err
	}
	_ = do.MustInvoke[*logger.Logger](injector)

	invokers := []func(do.Injector) error{
		invoke[*providers.StoreHandle],
		invoke[*providers.Bootstrap],
		invoke[llm.Completer],
		invoke[*providers.LockHandle],
		invoke[*billing.Stripe],
		invoke[*elevenlabs.Client],
		invoke[*audiocache.Cache],
		invoke[push.Sender],
		invoke[*ratelimit.KeyedRateLimiter],
		invoke[*service.CatalogService],
		invoke[*service.SubscriptionService],
		invoke[*service.VoiceService],
		invoke[*service.UserService],
		invoke[*story.Pipeline],
		invoke[*providers.ReminderHandle],
		invoke[*providers.HTTPServerHandle],
	}
	for _, fn := range invokers {
		if err := fn(injector); err != nil {
			return err
		}
	}
	return nil
}

func invoke[T any](i do.Injector) error {
	_, err := do.Invoke[T](i)
	return err
}
