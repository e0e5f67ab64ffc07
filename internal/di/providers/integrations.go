package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/alreadydone/alreadydone-server/internal/audiocache"
	"github.com/alreadydone/alreadydone-server/internal/billing"
	"github.com/alreadydone/alreadydone-server/internal/config"
	"github.com/alreadydone/alreadydone-server/internal/elevenlabs"
	"github.com/alreadydone/alreadydone-server/internal/logger"
	"github.com/alreadydone/alreadydone-server/internal/push"
	"github.com/alreadydone/alreadydone-server/internal/ratelimit"
)

// ProvideBilling provides the Stripe gateway.
func ProvideBilling(i do.Injector) (*billing.Stripe, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	gateway := billing.New(billing.Config{
		SecretKey:     cfg.Billing.SecretKey,
		WebhookSecret: cfg.Billing.WebhookSecret,
		PriceAnnual:   cfg.Billing.PriceAnnual,
		PriceWeekly:   cfg.Billing.PriceWeekly,
		TrialDays:     cfg.Billing.TrialDays,
	}, nil, log.Logger)

	if !gateway.Configured() {
		log.Warn("Billing disabled, STRIPE_SECRET_KEY not set")
	}
	return gateway, nil
}

// ProvideVoiceClient provides the ElevenLabs client.
// The client's Shutdown stops its outbound limiter.
func ProvideVoiceClient(i do.Injector) (*elevenlabs.Client, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	client := elevenlabs.NewClient(elevenlabs.Config{
		APIKey:            cfg.Voice.APIKey,
		BaseURL:           cfg.Voice.BaseURL,
		Timeout:           cfg.Voice.Timeout,
		RequestsPerSecond: cfg.Voice.RequestsPerSecond,
		Burst:             cfg.Voice.Burst,
	}, nil, log.Logger)

	if !client.Configured() {
		log.Warn("Voice disabled, ELEVENLABS_API_KEY not set")
	}
	return client, nil
}

// ProvideAudioCache opens the Badger TTS cache.
func ProvideAudioCache(i do.Injector) (*audiocache.Cache, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	if cfg.Cache.InMemory {
		return audiocache.OpenInMemory(cfg.Cache.TTL, log.Logger)
	}

	cache, err := audiocache.Open(cfg.Cache.Path, cfg.Cache.TTL, log.Logger)
	if err != nil {
		return nil, err
	}
	log.Info("Audio cache opened", "path", cfg.Cache.Path, "ttl", cfg.Cache.TTL)
	return cache, nil
}

// ProvidePushSender provides FCM when credentials are configured and a
// logging stub otherwise.
func ProvidePushSender(i do.Injector) (push.Sender, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	if cfg.Push.CredentialsPath == "" {
		log.Warn("Push notifications will be logged only, FIREBASE_CREDENTIALS not set")
		return push.NewStub(log.Logger), nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	return push.NewFCM(ctx, cfg.Push.CredentialsPath, log.Logger)
}

// ProvideRateLimiter provides the per-client limiter for /api routes.
func ProvideRateLimiter(i do.Injector) (*ratelimit.KeyedRateLimiter, error) {
	cfg := do.MustInvoke[*config.Config](i)

	return ratelimit.New(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst), nil
}
