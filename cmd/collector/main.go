// Package main runs the realtime data collector: it polls the food bank,
// weather and queue feeds into Redis until interrupted.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pantrynav/pantrynav/internal/alert"
	"github.com/pantrynav/pantrynav/internal/cache"
	"github.com/pantrynav/pantrynav/internal/config"
	"github.com/pantrynav/pantrynav/internal/geo"
	"github.com/pantrynav/pantrynav/internal/handler"
	"github.com/pantrynav/pantrynav/internal/httpclient"
	"github.com/pantrynav/pantrynav/internal/logging"
	"github.com/pantrynav/pantrynav/internal/metrics"
	"github.com/pantrynav/pantrynav/internal/realtime"
	"github.com/pantrynav/pantrynav/internal/server"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := config.LoadDotEnv(); err != nil {
		slog.Error("failed to load .env", "error", err)
		os.Exit(1)
	}

	cfg, err := config.LoadCollector()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogConfig)

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

	prom := metrics.NewPrometheus()
	counters := metrics.NewInMemory()
	recorder := metrics.Tee(prom, counters)
	retrier := httpclient.NewRetrier(httpclient.New(httpclient.Options{}))
	opts := realtime.OptionsFromConfig(cfg)
	if cfg.RateLimitEnabled {
		opts.Limiter = cache.NewRateLimiter(cacheClient, cache.PoliciesFromConfig(cfg.RateLimits), logger)
	}
	collector := realtime.NewCollector(
		cacheClient,
		geo.NewNominatim(cfg.GeocoderConfig, logger),
		retrier,
		recorder,
		logger,
		opts,
	)

	// The collector has no HTTP API; the server only exposes health checks and
	// /metrics and owns the shutdown sequence.
	r := chi.NewRouter()
	health := handler.NewHealthHandler(map[string]handler.HealthChecker{"redis": cacheClient})
	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)
	r.Get("/metrics", handler.NewMetricsHandler(prom.Handler(), nil).Metrics)

	srv := server.New(r, server.Options{
		Port:         cfg.MetricsPort,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}, logger)
	srv.Go(ctx, "realtime collector", collector.Run, collector.Shutdown)

	if cfg.AlertsEnabled {
		channels, err := alert.ChannelsFromConfig(cfg.AlertConfig, retrier)
		if err != nil {
			logger.Error("invalid alert configuration", "error", err)
			os.Exit(1)
		}
		monitor := alert.NewMonitor(counters, alert.ThresholdsFromConfig(cfg.AlertConfig), channels, "collector", cfg.AlertCheckInterval, logger)
		srv.Go(ctx, "alert monitor", monitor.Run, monitor.Shutdown)
	}

	logger.Info("collector started",
		"interval", cfg.CollectInterval,
		"foodbank", cfg.FoodbankEnabled,
		"weather", cfg.WeatherEnabled,
		"queue", cfg.QueueEnabled,
	)

	if err := srv.Run(ctx); err != nil {
		logger.Error("collector error", "error", err)
		os.Exit(1)
	}
}
