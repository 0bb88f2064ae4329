// Package main is the entrypoint for the pantrynav dashboard API server.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/pantrynav/pantrynav/internal/alert"
	"github.com/pantrynav/pantrynav/internal/cache"
	"github.com/pantrynav/pantrynav/internal/config"
	"github.com/pantrynav/pantrynav/internal/directory"
	"github.com/pantrynav/pantrynav/internal/handler"
	"github.com/pantrynav/pantrynav/internal/httpclient"
	"github.com/pantrynav/pantrynav/internal/i18n"
	"github.com/pantrynav/pantrynav/internal/logging"
	"github.com/pantrynav/pantrynav/internal/metrics"
	"github.com/pantrynav/pantrynav/internal/middleware"
	"github.com/pantrynav/pantrynav/internal/predict"
	"github.com/pantrynav/pantrynav/internal/realtime"
	"github.com/pantrynav/pantrynav/internal/repository"
	"github.com/pantrynav/pantrynav/internal/routing"
	"github.com/pantrynav/pantrynav/internal/server"
	"github.com/pantrynav/pantrynav/internal/service"
)

// handlers groups everything the router mounts.
type handlers struct {
	base       *handler.Handler
	health     *handler.HealthHandler
	dashboard  *handler.DashboardHandler
	resources  *handler.ResourceHandler
	realtime   *handler.RealtimeHandler
	directions *handler.DirectionsHandler
	demand     *handler.DemandHandler
	admin      *handler.AdminHandler
	metrics    *handler.MetricsHandler
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := config.LoadDotEnv(); err != nil {
		slog.Error("failed to load .env", "error", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogConfig)

	// Postgres backs the provider tables; the resource directory is file based.
	repo, err := repository.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error(
			"failed to connect to database",
			slog.String("error", logging.SanitizeError(err, cfg.DatabaseURL)),
			slog.String("database_url", logging.RedactURL(cfg.DatabaseURL)),
		)
		os.Exit(1)
	}
	defer repo.Close()
	logger.Info("connected to database")

	// Redis holds the typed cache, rate limits and the realtime feed.
	cacheClient, err := cache.New(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error(
			"failed to connect to Redis",
			slog.String("error", logging.SanitizeError(err, cfg.RedisURL)),
			slog.String("redis_url", logging.RedactURL(cfg.RedisURL)),
		)
		os.Exit(1)
	}
	defer cacheClient.Close()
	logger.Info("connected to Redis")

	// Prometheus is scraped; the in-memory counters feed the alert monitor.
	prom := metrics.NewPrometheus()
	counters := metrics.NewInMemory()
	recorder := metrics.Tee(prom, counters)
	typed := cache.NewTyped(cacheClient, cache.TypesFromConfig(cfg.Cache), logger)
	limiter := cache.NewRateLimiter(cacheClient, cache.PoliciesFromConfig(cfg.RateLimits), logger)

	// Resource directory keeps its defaults when the file is missing.
	dir := directory.New(logger)
	_ = dir.Load(cfg.ResourcesFile)

	catalog, err := i18n.New()
	if err != nil {
		logger.Error("failed to load message catalogs", "error", err)
		os.Exit(1)
	}

	hub := realtime.NewHub(cacheClient, recorder, logger, realtime.HubOptions{
		PushInterval:   cfg.RealtimePushInterval,
		AllowedOrigins: cfg.CORSOrigins(),
	})

	retrier := httpclient.NewRetrier(httpclient.New(httpclient.Options{}))
	mapbox := routing.NewMapboxClient(cfg.MapboxURL, cfg.MapboxAccessToken, retrier, typed, logger)

	var weather predict.WeatherSource
	if cfg.WeatherAPIKey != "" {
		weather = predict.NewOpenWeather(cfg.WeatherURL, cfg.WeatherAPIKey, retrier)
	}
	predictor := predict.NewPredictor(cfg.DemandModelFile, predict.NewFeatureBuilder(weather, logger))

	dashboard, err := handler.NewDashboardHandler(
		service.NewDashboardService(repo, typed, recorder, logger),
		catalog,
		handler.MapOptions{
			CenterLat:       cfg.MapCenterLat,
			CenterLng:       cfg.MapCenterLng,
			Zoom:            cfg.MapZoom,
			DefaultLanguage: cfg.DefaultLanguage,
			SecureCookie:    cfg.IsProduction(),
		},
		logger,
	)
	if err != nil {
		logger.Error("failed to parse dashboard template", "error", err)
		os.Exit(1)
	}

	h := handlers{
		base: handler.New(),
		health: handler.NewHealthHandler(map[string]handler.HealthChecker{
			"postgres": repo,
			"redis":    cacheClient,
		}),
		dashboard:  dashboard,
		resources:  handler.NewResourceHandler(dir, logger),
		realtime:   handler.NewRealtimeHandler(cacheClient, hub, logger),
		directions: handler.NewDirectionsHandler(mapbox, logger),
		demand:     handler.NewDemandHandler(predictor, logger),
		admin:      handler.NewAdminHandler(typed, limiter, logger),
		metrics:    handler.NewMetricsHandler(prom.Handler(), nil),
	}

	r := setupRouter(h, limiter, recorder, cfg, logger)

	srv := server.New(r, server.Options{
		Port:            cfg.AppPort,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, logger)
	srv.Go(ctx, "realtime hub", hub.Run, hub.Shutdown)

	if cfg.AlertsEnabled {
		channels, err := alert.ChannelsFromConfig(cfg.AlertConfig, retrier)
		if err != nil {
			logger.Error("invalid alert configuration", "error", err)
			os.Exit(1)
		}
		monitor := alert.NewMonitor(counters, alert.ThresholdsFromConfig(cfg.AlertConfig), channels, "api", cfg.AlertCheckInterval, logger)
		srv.Go(ctx, "alert monitor", monitor.Run, monitor.Shutdown)
	}

	logger.Info("starting server",
		"port", cfg.AppPort,
		"env", cfg.AppEnv,
		"resources", len(dir.List(directory.Query{Limit: directory.DefaultLimit})),
	)

	if err := srv.Run(ctx); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// setupRouter mounts the dashboard, the JSON API, admin routes and health checks.
func setupRouter(
	h handlers,
	limiter middleware.Limiter,
	recorder metrics.Recorder,
	cfg *config.Config,
	logger *slog.Logger,
) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recoverer(logger, cfg.IsDevelopment()))
	r.Use(middleware.Security(middleware.SecurityConfig{IsDevelopment: cfg.IsDevelopment()}))
	r.Use(middleware.Metrics(recorder))

	corsCfg := middleware.CORSConfig{AllowedOrigins: cfg.CORSOrigins()}

	apiLimit := middleware.RateLimit(middleware.RateLimitConfig{
		Logger:   logger,
		Limiter:  limiter,
		Recorder: recorder,
		Enabled:  cfg.RateLimitEnabled,
		Service:  cache.ServiceAPI,
	})
	routeLimit := middleware.RateLimit(middleware.RateLimitConfig{
		Logger:   logger,
		Limiter:  limiter,
		Recorder: recorder,
		Enabled:  cfg.RateLimitEnabled,
		Service:  cache.ServiceRouteOptimization,
	})

	// Health and metrics endpoints (no auth required)
	r.Get("/healthz", h.health.Healthz)
	r.Get("/readyz", h.health.Readyz)
	r.Get("/metrics", h.metrics.Metrics)

	// Map dashboard
	r.With(apiLimit).Get("/", h.dashboard.Page)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.CORS(corsCfg))
		r.Use(apiLimit)

		r.Get("/services", h.dashboard.Services)
		r.Get("/categories/services", h.dashboard.Categories)

		r.Get("/resources", h.resources.List)
		r.Get("/resources/{id}", h.resources.Get)
		r.Get("/resources/{id}/transport", h.resources.Transport)
		r.Get("/categories", h.resources.Categories)

		r.Get("/realtime/{locationID}", h.realtime.Snapshot)
		r.Get("/demand", h.demand.Demand)

		r.With(
			routeLimit,
			middleware.MaxBodySize(cfg.MaxRequestBodySize),
		).Post("/directions", h.directions.Directions)
	})

	// Realtime websocket
	r.With(apiLimit).Get("/ws/{locationID}", h.realtime.Subscribe)

	// Admin operations
	// Throttled before auth: a failed Argon2 check is expensive.
	r.Route("/admin", func(r chi.Router) {
		r.Use(apiLimit)
		r.Use(middleware.AdminAuth(middleware.AdminAuthConfig{
			Logger:    logger,
			TokenHash: cfg.AdminTokenHash,
		}))

		r.Get("/cache/{type}/stats", h.admin.CacheStats)
		r.Delete("/cache/{type}", h.admin.ClearCache)
		r.Get("/ratelimit/{service}/{client}", h.admin.RateLimitInfo)
		r.Delete("/ratelimit/{service}/{client}", h.admin.ResetRateLimit)
	})

	r.NotFound(h.base.NotFound)
	r.MethodNotAllowed(h.base.MethodNotAllowed)

	return r
}
