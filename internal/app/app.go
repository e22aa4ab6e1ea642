package app

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bellvik/transport-planner/internal/config"
	"github.com/bellvik/transport-planner/internal/events"
	"github.com/bellvik/transport-planner/internal/geocode"
	"github.com/bellvik/transport-planner/internal/handler"
	"github.com/bellvik/transport-planner/internal/metrics"
	"github.com/bellvik/transport-planner/internal/middleware"
	"github.com/bellvik/transport-planner/internal/routing"
	"github.com/bellvik/transport-planner/internal/service"
	"github.com/bellvik/transport-planner/internal/storage"
)

// App holds the application-level dependencies.
type App struct {
	Router  *gin.Engine
	Planner *service.PlannerService
	Status  *service.StatusService
	Auth    *service.AuthService
	Metrics *metrics.Collector
	Stores  *Stores

	publisher *events.Publisher
	cfg       *config.Config
}

// New opens the configured stores, wires the routing pipeline and
// configures the HTTP engine with routes.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	stores, err := OpenStores(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a, err := build(cfg, stores)
	if err != nil {
		stores.Close()
		return nil, err
	}
	return a, nil
}

func build(cfg *config.Config, stores *Stores) (*App, error) {
	flags := cfg.Flags(log.Printf)
	collector := metrics.NewCollector(cfg.CacheTTL, flags)

	// --- Call log: database, metrics and, optionally, NATS ---
	sinks := callLogSinks(stores, collector)
	var publisher *events.Publisher
	if cfg.NATSURL != "" {
		p, err := events.Connect(cfg.NATSURL, cfg.NATSSubjectPrefix, collector)
		if err != nil {
			return nil, fmt.Errorf("app: %w", err)
		}
		publisher = p
		sinks = append(sinks, p)
		log.Printf("app: publishing call log to %s.*", cfg.NATSSubjectPrefix)
	}
	calls := routing.NewMultiCallLog(log.Printf, sinks...)

	// --- Routing core ---
	router := routing.NewModeRouter(buildProviders(cfg), flags,
		routing.WithLogger(log.Printf),
		routing.WithCallLog(calls),
	)
	cache := routing.NewRequestCache(stores.Cache,
		routing.WithTTL(cfg.CacheTTL),
		routing.WithLogger(log.Printf),
		routing.WithCallLog(calls),
	)

	var primary geocode.Geocoder
	if flags.UseLiveAPIs && cfg.TomTomAPIKey != "" {
		primary = geocode.NewTomTomGeocoder(cfg.TomTomAPIKey, cfg.TomTomBaseURL, cfg.ProviderTimeout)
	}
	geocoder := geocode.NewFallbackGeocoder(primary, calls, log.Printf)

	// --- Services ---
	planner := service.NewPlannerService(router, cache, geocoder, stores.History, log.Printf)
	status := service.NewStatusService(stores.Calls, stores.Cache, flags, cache.TTL())
	auth := service.NewAuthService(stores.Admins, stores.Tokens, cfg.JWTSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	if cfg.JWTSecret == "" {
		log.Println("app: JWT_SECRET not set; admin endpoints will reject every login")
	}

	a := &App{
		Planner:   planner,
		Status:    status,
		Auth:      auth,
		Metrics:   collector,
		Stores:    stores,
		publisher: publisher,
		cfg:       cfg,
	}
	a.Router = a.engine()
	return a, nil
}

// callLogSinks returns the database and metrics sinks. The memory driver's
// call log is gone when the process exits, so its entries are also written
// to the log.
func callLogSinks(stores *Stores, collector *metrics.Collector) []routing.CallLog {
	sinks := []routing.CallLog{
		storage.NewCallLog(stores.Calls, log.Printf),
		collector,
	}
	if stores.Driver == config.DriverMemory {
		sinks = append(sinks, routing.LoggerCallLog{Logger: log.Printf})
	}
	return sinks
}

// buildProviders creates the live providers that have credentials. A
// provider left nil is skipped by every chain, so requests go straight to
// the stub instead of failing upstream first.
func buildProviders(cfg *config.Config) routing.Providers {
	var p routing.Providers
	if cfg.TwoGISAPIKey != "" {
		p.Transit = routing.NewTransitProvider(cfg.TwoGISAPIKey,
			routing.WithTransitBaseURL(cfg.TwoGISTransitURL),
			routing.WithTransitTimeout(cfg.ProviderTimeout),
			routing.WithTransitLocale(cfg.TwoGISLocale),
		)
	}
	if cfg.TomTomAPIKey != "" {
		p.Street = routing.NewTomTomProvider(cfg.TomTomAPIKey,
			routing.WithTomTomBaseURL(cfg.TomTomBaseURL),
			routing.WithTomTomTimeout(cfg.ProviderTimeout),
		)
	}
	p.Stub = routing.NewStubProvider()
	return p
}

func (a *App) engine() *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Timeout(a.cfg.RequestTimeout))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(a.Metrics.Handler()))

	h := handler.New(a.Planner, a.Status)
	ah := handler.NewAuthHandler(a.Auth)

	api := router.Group("/api/v1")
	{
		api.GET("/routes", h.GetRoutes)
		api.GET("/routes/popular", h.PopularRoutes)
		api.GET("/plan", h.Plan)
		api.GET("/transport-types", h.TransportTypes)
		api.GET("/status", h.Status)

		auth := api.Group("/auth")
		{
			auth.POST("/login", ah.Login)
			auth.POST("/refresh", ah.Refresh)
			auth.POST("/logout", ah.Logout)
		}

		// Viewers may read cache statistics; only admins purge.
		admin := api.Group("/admin")
		admin.Use(middleware.JWTAuth(a.Auth))
		{
			admin.GET("/me", ah.Me)
			admin.GET("/cache/stats", middleware.RequireRole(service.RolesWith(service.PermCacheRead)...), h.CacheStats)
			admin.POST("/cache/purge", middleware.RequireRole(service.RolesWith(service.PermCachePurge)...), h.PurgeCache)
		}
	}
	return router
}

// Shutdown closes the event stream and the stores.
func (a *App) Shutdown() {
	if a.publisher != nil {
		a.publisher.Close()
		log.Println("app: nats connection closed")
	}
	if a.Stores != nil {
		a.Stores.Close()
	}
}
