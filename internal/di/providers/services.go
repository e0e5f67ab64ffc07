package providers

import (
	"github.com/samber/do/v2"

	"github.com/alreadydone/alreadydone-server/internal/audiocache"
	"github.com/alreadydone/alreadydone-server/internal/auth"
	"github.com/alreadydone/alreadydone-server/internal/billing"
	"github.com/alreadydone/alreadydone-server/internal/elevenlabs"
	"github.com/alreadydone/alreadydone-server/internal/logger"
	"github.com/alreadydone/alreadydone-server/internal/service"
)

// ProvideSubscriptionService provides checkout, status and webhook handling.
func ProvideSubscriptionService(i do.Injector) (*service.SubscriptionService, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	gateway := do.MustInvoke[*billing.Stripe](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewSubscriptionService(storeHandle.Store, gateway, log.Logger), nil
}

// ProvideVoiceService provides voice cloning and narration.
func ProvideVoiceService(i do.Injector) (*service.VoiceService, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	client := do.MustInvoke[*elevenlabs.Client](i)
	cache := do.MustInvoke[*audiocache.Cache](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewVoiceService(storeHandle.Store, client, cache, log.Logger), nil
}

// ProvideUserService provides the typed user patch.
func ProvideUserService(i do.Injector) (*service.UserService, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewUserService(storeHandle.Store, auth.NewHasher(auth.DefaultParams), log.Logger), nil
}
