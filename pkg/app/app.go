// Package app wires configuration, storage, cache, geo, services and the
// HTTP router into a runnable shortener.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/wadjakorntonsri/ns-shortener/pkg/adapters/authz"
	"github.com/wadjakorntonsri/ns-shortener/pkg/adapters/cache"
	"github.com/wadjakorntonsri/ns-shortener/pkg/adapters/geo"
	"github.com/wadjakorntonsri/ns-shortener/pkg/adapters/handler"
	"github.com/wadjakorntonsri/ns-shortener/pkg/adapters/repository/sqlite"
	"github.com/wadjakorntonsri/ns-shortener/pkg/config"
	"github.com/wadjakorntonsri/ns-shortener/pkg/core/domain"
	"github.com/wadjakorntonsri/ns-shortener/pkg/core/services"
	"github.com/wadjakorntonsri/ns-shortener/pkg/logging"
	"github.com/wadjakorntonsri/ns-shortener/pkg/ports"
	"github.com/wadjakorntonsri/ns-shortener/pkg/supervisor"
)

type App struct {
	Config     *config.Config
	Handler    http.Handler
	Repo       *sqlite.SQLiteRepository
	URLs       *services.URLService
	Namespaces *services.NamespaceService
	Analytics  *services.AnalyticsService
	Dispatcher *services.ClickDispatcher
	Enforcer   *authz.Enforcer

	closers []func() error
}

// InitLogging applies the logging section of cfg to the global logger.
func InitLogging(cfg *config.Config) {
	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
}

// New builds every component. The click dispatcher is not started; run it
// with Run or serve it yourself.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}
	clock := domain.RealClock{}

	repo, err := sqlite.NewSQLiteRepository(cfg.Database.URL, sqlite.WithOpTimeout(cfg.Database.OpTimeout))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	a.Repo = repo
	a.closers = append(a.closers, repo.Close)

	lru, hot, err := a.cacheBackend(ctx, clock)
	if err != nil {
		a.Close()
		return nil, err
	}
	urlCache := cache.NewURLCache(lru, hot, cache.Options{
		Backend:    cfg.Cache.Backend,
		MaxSize:    cfg.Cache.MaxSize,
		ObjectTTL:  cfg.Cache.ObjectTTL,
		ResolveTTL: cfg.Cache.ResolveTTL,
		OpTimeout:  cfg.Cache.OpTimeout,
	})

	geoResolver, err := a.geoResolver()
	if err != nil {
		a.Close()
		return nil, err
	}

	alloc := services.NewShortcodeAllocator(repo,
		services.WithDefaults(cfg.Allocator.DefaultLength, domain.GenerationMethod(cfg.Allocator.DefaultMethod)))
	a.URLs = services.NewURLService(repo, alloc, urlCache, clock)
	a.Namespaces = services.NewNamespaceService(repo, repo, a.URLs, clock)
	a.Analytics = services.NewAnalyticsService(repo, clock)
	a.Dispatcher = services.NewClickDispatcher(geoResolver, repo, urlCache, services.DispatcherConfig{
		QueueSize:     cfg.Analytics.QueueSize,
		Workers:       cfg.Analytics.Workers,
		AppendTimeout: cfg.Analytics.AppendTimeout,
		DrainTimeout:  cfg.Analytics.DrainTimeout,
	})
	resolver := services.NewResolver(a.Namespaces, repo, urlCache, a.Dispatcher, clock).
		WithStoreTimeout(cfg.Database.OpTimeout)

	a.Enforcer, err = authz.NewEnforcer(authz.Config{
		PolicyPath:  cfg.Security.PolicyPath,
		DefaultRole: cfg.Security.DefaultRole,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Handler = handler.NewRouter(cfg, handler.Services{
		URLs:        a.URLs,
		Namespaces:  a.Namespaces,
		Analytics:   a.Analytics,
		Resolver:    resolver,
		Permissions: a.Enforcer,
		Health:      func(r *http.Request) error { return repo.Ping(r.Context()) },
	})

	logging.Info().
		Str("cache", cfg.Cache.Backend).
		Str("environment", cfg.Server.Environment).
		Msg("application initialized")
	return a, nil
}

func (a *App) cacheBackend(ctx context.Context, clock domain.Clock) (ports.LRUCache, ports.HotTracker, error) {
	cfg := a.Config.Cache
	if cfg.Backend != "redis" {
		return cache.NewMemoryLRU(cfg.MaxSize, clock), cache.NewMemoryHotTracker(cfg.HotTTL, clock), nil
	}

	client, err := cache.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}
	a.closers = append(a.closers, client.Close)
	return cache.NewRedisLRU(client, cfg.MaxSize, clock), cache.NewRedisHotTracker(client, cfg.HotTTL), nil
}

func (a *App) geoResolver() (*services.GeoResolver, error) {
	cfg := a.Config.Geo
	city, err := geo.OpenCity(cfg.CityDBPath)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, city.Close)

	country, err := geo.OpenCountry(cfg.CountryDBPath)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, country.Close)

	cityDB, countries := geo.Sources(city, country)
	return services.NewGeoResolver(cityDB, countries, cfg.LookupTimeout), nil
}

// Run serves HTTP and the click dispatcher under one supervisor until ctx
// is cancelled.
func (a *App) Run(ctx context.Context) error {
	cfg := a.Config.Server
	root := supervisor.New("ns-shortener", supervisor.Config{ShutdownTimeout: cfg.ShutdownTimeout})
	root.Add(a.Dispatcher)
	root.Add(supervisor.NewHTTPService(&http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      a.Handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}, cfg.ShutdownTimeout))

	logging.Info().Str("port", cfg.Port).Msg("server starting")
	err := root.Serve(ctx)

	if unstopped, _ := root.UnstoppedServiceReport(); len(unstopped) > 0 {
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("service failed to stop")
		}
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
