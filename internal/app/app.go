// Package app wires the service together: storage backend selection, redis,
// the admission pipeline, webhook gateway, background sweeps, and routes.
package app

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"

	"tenantgate/internal/auth"
	"tenantgate/internal/common/logging"
	"tenantgate/internal/config"
	"tenantgate/internal/handlers"
	"tenantgate/internal/identity"
	"tenantgate/internal/ratelimit"
	"tenantgate/internal/redis"
	"tenantgate/internal/storage"
	"tenantgate/internal/tenant"
	"tenantgate/internal/webhook"
)

// App holds every long-lived component of the service.
type App struct {
	Config        *config.Config
	Storage       storage.Storage
	Redis         *redis.Client
	Limiter       *ratelimit.Limiter
	Authenticator *auth.Authenticator
	Resolver      *tenant.Resolver
	Extractor     *identity.Extractor
	Gateway       *webhook.Gateway
	Handlers      *handlers.Handlers

	ledger  webhook.Ledger
	sweeper ratelimit.Sweeper
	cron    *cron.Cron
}

// New builds the application from configuration. Components that hold
// connections are opened here and closed by Close.
func New(cfg *config.Config) (*App, error) {
	store, err := openStorage(cfg)
	if err != nil {
		return nil, err
	}

	app := &App{Config: cfg, Storage: store}

	if cfg.RedisEnabled {
		client, err := redis.NewClient(&redis.Config{
			Address:  cfg.RedisAddress,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			PoolSize: cfg.RedisPoolSize,
		})
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		app.Redis = client
	}

	app.Extractor = identity.NewExtractor(cfg.JWTSecret)
	app.Authenticator = auth.New(store, app.Extractor, cfg.JWTSecret, cfg.SystemAPIKey)
	app.Resolver = tenant.NewResolver(store, cfg.BypassPrefixes)

	app.Limiter = buildLimiter(cfg, app)
	app.Gateway = buildGateway(cfg, app)
	app.Handlers = handlers.New(store, cfg, app.Authenticator, app.Gateway)

	app.scheduleSweeps()

	return app, nil
}

func openStorage(cfg *config.Config) (storage.Storage, error) {
	switch cfg.StorageType {
	case "memory":
		return storage.NewMemoryStorage(), nil
	case "sqlite":
		return storage.NewSQLiteStorage(cfg.SQLitePath)
	case "postgres":
		return storage.NewPostgresStorage(context.Background(), cfg.PostgresURL)
	default:
		return nil, fmt.Errorf("unsupported storage type %q", cfg.StorageType)
	}
}

func buildLimiter(cfg *config.Config, app *App) *ratelimit.Limiter {
	classifier := ratelimit.NewClassifier(ratelimit.Class{
		Max:    cfg.RateLimitDefault.Max,
		Window: cfg.RateLimitDefault.Window,
	})
	classifier.AddRule("/api/auth/", []string{"POST"}, ratelimit.Class{
		Name: "auth", Max: cfg.RateLimitAuth.Max, Window: cfg.RateLimitAuth.Window,
	})
	classifier.AddRule("/webhooks/", nil, ratelimit.Class{
		Name: "webhook", Max: cfg.RateLimitWebhook.Max, Window: cfg.RateLimitWebhook.Window,
	})
	classifier.AddRule("/api/keys", []string{"POST"}, ratelimit.Class{
		Name: "bulk", Max: cfg.RateLimitBulk.Max, Window: cfg.RateLimitBulk.Window,
	})

	var store ratelimit.Store
	if app.Redis != nil {
		store = ratelimit.NewRedisStore(app.Redis)
	} else {
		memStore := ratelimit.NewMemoryStore()
		store = memStore
		app.sweeper = memStore
	}

	return ratelimit.NewLimiter(store, classifier, cfg.RateLimitEnabled)
}

func buildGateway(cfg *config.Config, app *App) *webhook.Gateway {
	verifier := webhook.NewVerifier(cfg.StripeWebhookSecret, cfg.GitHubWebhookSecret, cfg.WebhookSignatureTolerance)

	// The ledger rides redis when available so duplicates are caught across
	// processes; otherwise it persists in the primary store.
	if app.Redis != nil {
		app.ledger = webhook.NewRedisLedger(app.Redis, cfg.RateLimitRetention)
	} else {
		app.ledger = webhook.NewStorageLedger(app.Storage)
	}

	gateway := webhook.NewGateway(verifier, app.ledger, logging.GetGlobalLogger())
	registerEventHandlers(gateway)
	return gateway
}

// registerEventHandlers installs the event handlers the service acts on.
// Everything else is accepted and recorded without dispatch.
func registerEventHandlers(gateway *webhook.Gateway) {
	logEvent := func(msg string) webhook.Handler {
		return func(ctx context.Context, event webhook.Event) error {
			logging.WithContext(ctx).Info(msg,
				logging.String("provider", event.Provider),
				logging.String("event_id", event.ID),
				logging.String("event_type", event.Type),
			)
			return nil
		}
	}

	gateway.Register(webhook.ProviderStripe, "checkout.session.completed", logEvent("Checkout completed"))
	gateway.Register(webhook.ProviderStripe, "customer.subscription.updated", logEvent("Subscription updated"))
	gateway.Register(webhook.ProviderStripe, "payment_intent.succeeded", logEvent("Payment succeeded"))
	gateway.Register(webhook.ProviderGitHub, "push", logEvent("Repository push received"))
	gateway.Register(webhook.ProviderGitHub, "repository", logEvent("Repository event received"))
	gateway.Register(webhook.ProviderMailer, "delivered", logEvent("Email delivered"))
	gateway.Register(webhook.ProviderMailer, "opened", logEvent("Email opened"))
	gateway.Register(webhook.ProviderMailer, "clicked", logEvent("Email link clicked"))
	gateway.Register(webhook.ProviderMailer, "bounced", logEvent("Email bounced"))
}

// scheduleSweeps starts the hourly reaper for in-process stores. Redis-backed
// state expires by TTL and needs no sweeping.
func (a *App) scheduleSweeps() {
	a.cron = cron.New()

	if a.sweeper != nil {
		retention := a.Config.RateLimitRetention
		sweeper := a.sweeper
		a.cron.AddFunc("@hourly", func() {
			removed := sweeper.Sweep(retention)
			if removed > 0 {
				logging.Info("Swept idle rate-limit keys", logging.Int("removed", removed))
			}
		})
	}

	if memLedger, ok := a.ledger.(*webhook.MemoryLedger); ok {
		retention := a.Config.RateLimitRetention
		a.cron.AddFunc("@hourly", func() {
			removed := memLedger.Sweep(retention)
			if removed > 0 {
				logging.Info("Swept expired webhook ledger entries", logging.Int("removed", removed))
			}
		})
	}

	a.cron.Start()
}

// Close releases every connection the app holds.
func (a *App) Close() {
	if a.cron != nil {
		a.cron.Stop()
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			logging.Error("Failed to close redis client", err)
		}
	}
	if err := a.Limiter.Store().Close(); err != nil {
		logging.Error("Failed to close rate limit store", err)
	}
	if err := a.Storage.Close(); err != nil {
		logging.Error("Failed to close storage", err)
	}
}
