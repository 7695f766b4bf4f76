// Package app wires the service from configuration: store, cache,
// tenancies, gateways, the callback engine and the HTTP router.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/dropDatabas3/oauthcallback/internal/cache"
	"github.com/dropDatabas3/oauthcallback/internal/callback"
	"github.com/dropDatabas3/oauthcallback/internal/config"
	"github.com/dropDatabas3/oauthcallback/internal/http/controllers/health"
	"github.com/dropDatabas3/oauthcallback/internal/http/controllers/oauth"
	"github.com/dropDatabas3/oauthcallback/internal/http/router"
	"github.com/dropDatabas3/oauthcallback/internal/metrics"
	"github.com/dropDatabas3/oauthcallback/internal/observability/logger"
	"github.com/dropDatabas3/oauthcallback/internal/provider"
	"github.com/dropDatabas3/oauthcallback/internal/rate"
	"github.com/dropDatabas3/oauthcallback/internal/security/tokenbox"
	"github.com/dropDatabas3/oauthcallback/internal/store"
	"github.com/dropDatabas3/oauthcallback/internal/tenancy"
)

var _ callback.GatewayFactory = (*provider.Factory)(nil)

// Deps holds prebuilt dependencies (tests). Nil fields are built from the
// config.
type Deps struct {
	Store     store.Store
	Cache     cache.Client
	Tenancies tenancy.Store
	Gateways  callback.GatewayFactory
	Registry  *prometheus.Registry
}

// App is the wired service.
type App struct {
	Handler  http.Handler
	Engine   *callback.Engine
	Grants   *callback.GrantAuthorizer
	Store    store.Store
	Cache    cache.Client
	Registry *prometheus.Registry
}

// New builds the app. On error it releases whatever it already opened.
func New(ctx context.Context, cfg *config.Config, deps Deps) (_ *App, err error) {
	log := logger.From(ctx).With(logger.Component("app"))
	a := &App{Store: deps.Store, Cache: deps.Cache, Registry: deps.Registry}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	// 1. Infra
	if a.Store == nil {
		st, err := store.Open(ctx, store.Config{
			Driver:       cfg.Storage.Driver,
			DSN:          cfg.Storage.DSN,
			MaxOpenConns: cfg.Storage.MaxOpenConns,
			AutoMigrate:  cfg.Storage.AutoMigrate,
		})
		if err != nil {
			return nil, fmt.Errorf("app: store: %w", err)
		}
		a.Store = st
	}
	if a.Cache == nil {
		c, err := cache.New(ctx, cache.Config{
			Driver:   cfg.Cache.Kind,
			Addr:     cfg.Cache.Redis.Addr,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
			Prefix:   cfg.Cache.Redis.Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("app: cache: %w", err)
		}
		a.Cache = c
	}
	tenancies := deps.Tenancies
	if tenancies == nil {
		if tenancies, err = tenancy.NewFileStore(cfg.Tenancies.File, cfg.Tenancies.CacheTTL); err != nil {
			return nil, fmt.Errorf("app: tenancies: %w", err)
		}
	}
	box, err := tokenbox.New(cfg.Security.TokenSealKey)
	if err != nil {
		return nil, fmt.Errorf("app: token seal key: %w", err)
	}

	// 2. Metrics
	if a.Registry == nil {
		a.Registry = prometheus.NewRegistry()
		a.Registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	m, err := metrics.New(a.Registry)
	if err != nil {
		return nil, fmt.Errorf("app: metrics: %w", err)
	}

	// 3. Callback
	gateways := deps.Gateways
	if gateways == nil {
		gateways = provider.NewFactory(provider.Options{
			CallbackBaseURL:       cfg.Server.PublicURL,
			DefaultAccessTokenTTL: cfg.Provider.DefaultAccessTokenTTL,
			HTTPClient:            &http.Client{Timeout: cfg.Provider.HTTPTimeout},
		})
	}
	a.Grants = callback.NewGrantAuthorizer(a.Cache, m, callback.GrantConfig{
		CodeTTL:    cfg.Grant.CodeTTL,
		TokenTTL:   cfg.Grant.TokenTTL,
		SigningKey: []byte(cfg.Grant.SigningKey),
	}, nil)
	a.Engine = callback.NewEngine(callback.Config{
		ExchangeTimeout: cfg.Callback.ExchangeTimeout,
		ResolveTimeout:  cfg.Callback.ResolveTimeout,
	}, callback.Deps{
		Store:     a.Store,
		Tenancies: tenancies,
		Gateways:  gateways,
		Tokens:    callback.NewTokenPersister(box),
		Grants:    a.Grants,
		Metrics:   m,
	})

	// 4. HTTP
	var limiter *rate.Limiter
	if !cfg.RateLimit.Disabled {
		limiter = rate.New(a.Cache, "rl:callback:", cfg.RateLimit.Max, cfg.RateLimit.Window)
	}
	a.Handler = router.New(router.Deps{
		Callback: oauth.NewCallbackController(a.Engine, oauth.CookieOptions{
			Domain: cfg.Server.CookieDomain,
			Secure: cfg.Server.CookieSecure || cfg.IsProd(),
		}),
		Health: health.NewHealthController(
			health.Check{Name: "store", Ping: a.Store.Ping},
			health.Check{Name: "cache", Ping: a.Cache.Ping},
		),
		Metrics:        m,
		Gatherer:       a.Registry,
		RateLimit:      limiter,
		TrustForwarded: cfg.Server.TrustProxy,
	})

	log.Info("app wired",
		logger.String("storage", a.Store.Name()),
		logger.String("cache", cfg.Cache.Kind),
	)
	return a, nil
}

// PurgeExpired deletes outer requests that expired more than grace ago.
func (a *App) PurgeExpired(ctx context.Context, grace time.Duration) (int64, error) {
	return a.Store.OuterRequests().PurgeExpired(ctx, time.Now().Add(-grace))
}

// Close releases the store and the cache.
func (a *App) Close() error {
	var errs []error
	if a.Cache != nil {
		errs = append(errs, a.Cache.Close())
	}
	if a.Store != nil {
		errs = append(errs, a.Store.Close())
	}
	return errors.Join(errs...)
}
