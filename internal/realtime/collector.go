// Package realtime polls external feeds into Redis and pushes per-location
// snapshots to websocket clients.
package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pantrynav/pantrynav/internal/cache"
	"github.com/pantrynav/pantrynav/internal/config"
	"github.com/pantrynav/pantrynav/internal/geo"
	"github.com/pantrynav/pantrynav/internal/httpclient"
	"github.com/pantrynav/pantrynav/internal/logging"
	"github.com/pantrynav/pantrynav/internal/metrics"
)

// Feed names, used as metric labels and as data_collection rate limit clients.
const (
	FeedFoodbank = "foodbank"
	FeedWeather  = "weather"
	FeedQueue    = "queue"
)

// DefaultInterval is the pause between collection rounds.
const DefaultInterval = 60 * time.Second

var (
	// errEmptyPayload marks a feed that answered with nothing worth storing.
	errEmptyPayload = errors.New("empty payload")
	errThrottled    = errors.New("feed throttled")
)

// FeedLimiter is satisfied by *cache.RateLimiter.
type FeedLimiter interface {
	CheckLimit(ctx context.Context, service, client string) (*cache.LimitResult, error)
}

// FeedStore persists feed payloads and lists the locations to collect for.
type FeedStore interface {
	SetFeed(ctx context.Context, key string, payload []byte, ttl time.Duration) error
	Locations(ctx context.Context) ([]string, error)
	LocationIDs(ctx context.Context) ([]string, error)
}

// Feed configures one upstream API.
type Feed struct {
	Enabled bool
	URL     string
	APIKey  string
	// TTL of the stored payload; also the nominal update interval.
	TTL time.Duration
}

// CollectorOptions configures a Collector.
type CollectorOptions struct {
	Interval time.Duration
	Foodbank Feed
	Weather  Feed
	Queue    Feed
	// Limiter gates every upstream call under the data_collection policy.
	// Nil disables the check.
	Limiter FeedLimiter
}

// OptionsFromConfig maps the collector configuration onto options.
func OptionsFromConfig(cfg *config.CollectorConfig) CollectorOptions {
	sec := func(n int) time.Duration { return time.Duration(n) * time.Second }
	return CollectorOptions{
		Interval: cfg.CollectInterval,
		Foodbank: Feed{
			Enabled: cfg.FoodbankEnabled,
			URL:     cfg.FoodbankURL,
			APIKey:  cfg.FoodbankAPIKey,
			TTL:     sec(cfg.FoodbankInterval),
		},
		Weather: Feed{
			Enabled: cfg.WeatherEnabled,
			URL:     cfg.WeatherURL,
			APIKey:  cfg.WeatherAPIKey,
			TTL:     sec(cfg.WeatherInterval),
		},
		Queue: Feed{
			Enabled: cfg.QueueEnabled,
			URL:     cfg.QueueURL,
			APIKey:  cfg.QueueAPIKey,
			TTL:     sec(cfg.QueueInterval),
		},
	}
}

// RoundStats summarizes one collection round.
type RoundStats struct {
	Stored  int
	Skipped int
	Failed  int
}

func (s *RoundStats) record(err error) {
	switch {
	case err == nil:
		s.Stored++
	case errors.Is(err, errEmptyPayload), errors.Is(err, errThrottled):
		s.Skipped++
	default:
		s.Failed++
	}
}

// Collector polls the configured feeds on a fixed interval.
type Collector struct {
	store    FeedStore
	geocoder geo.Geocoder
	retrier  *httpclient.Retrier
	metrics  metrics.Recorder
	logger   *slog.Logger
	opts     CollectorOptions

	started bool
	cancel  context.CancelFunc
	done    chan struct{}
	mu      sync.Mutex
}

// NewCollector creates a collector. geocoder may be nil, which skips the
// weather feed.
func NewCollector(store FeedStore, geocoder geo.Geocoder, retrier *httpclient.Retrier, recorder metrics.Recorder, logger *slog.Logger, opts CollectorOptions) *Collector {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	return &Collector{
		store:    store,
		geocoder: geocoder,
		retrier:  retrier,
		metrics:  recorder,
		logger:   logger.With("component", "realtime.collector"),
		opts:     opts,
	}
}

// Run collects immediately and then once per interval until ctx is cancelled.
func (c *Collector) Run(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return errors.New("collector already started")
	}
	c.started = true
	c.done = make(chan struct{})
	ctx, c.cancel = context.WithCancel(ctx)
	c.mu.Unlock()

	defer close(c.done)

	c.logger.Info("realtime collector started", "interval", c.opts.Interval)

	ticker := time.NewTicker(c.opts.Interval)
	defer ticker.Stop()

	for {
		stats := c.CollectOnce(ctx)
		c.logger.Info("collection round finished",
			"stored", stats.Stored,
			"skipped", stats.Skipped,
			"failed", stats.Failed,
		)

		select {
		case <-ctx.Done():
			c.logger.Info("realtime collector stopping")
			return nil
		case <-ticker.C:
		}
	}
}

// Shutdown stops Run and waits for the current round to finish.
func (c *Collector) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return nil
	}
	cancel := c.cancel
	done := c.done
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		c.logger.Warn("realtime collector shutdown timed out")
		return ctx.Err()
	}
}

// CollectOnce runs every enabled feed once. Failures are logged and counted.
func (c *Collector) CollectOnce(ctx context.Context) RoundStats {
	var stats RoundStats

	if c.opts.Foodbank.Enabled {
		stats.record(c.collectFoodbank(ctx))
	}

	if c.opts.Weather.Enabled {
		if c.geocoder == nil {
			c.logger.Warn("weather feed enabled without a geocoder, skipping")
		} else {
			locations, err := c.store.Locations(ctx)
			if err != nil {
				c.logger.Error("failed to list locations", "error", err)
				stats.Failed++
			}
			for _, loc := range locations {
				stats.record(c.collectWeather(ctx, loc))
			}
		}
	}

	if c.opts.Queue.Enabled {
		ids, err := c.store.LocationIDs(ctx)
		if err != nil {
			c.logger.Error("failed to list location ids", "error", err)
			stats.Failed++
		}
		for _, id := range ids {
			stats.record(c.collectQueue(ctx, id))
		}
	}

	return stats
}

func (c *Collector) collectFoodbank(ctx context.Context) error {
	feed := c.opts.Foodbank
	endpoint := strings.TrimRight(feed.URL, "/") + "/inventory"
	return c.collect(ctx, FeedFoodbank, "all", endpoint, feed, cache.FoodbankInventoryKey)
}

func (c *Collector) collectWeather(ctx context.Context, location string) error {
	place, err := c.geocoder.Geocode(ctx, location)
	if err != nil {
		c.logger.Warn("failed to geocode location", "location", location, "error", err)
		c.metrics.SetDataCollectionSuccess(FeedWeather, location, false)
		c.metrics.IncError("collector", "geocode")
		return err
	}

	feed := c.opts.Weather
	params := url.Values{}
	params.Set("lat", strconv.FormatFloat(place.Latitude, 'f', -1, 64))
	params.Set("lon", strconv.FormatFloat(place.Longitude, 'f', -1, 64))
	params.Set("appid", feed.APIKey)
	endpoint := strings.TrimRight(feed.URL, "/") + "/current?" + params.Encode()

	// The key travels in the query string, not a header.
	feed.APIKey = ""
	return c.collect(ctx, FeedWeather, location, endpoint, feed, cache.WeatherKey(location))
}

func (c *Collector) collectQueue(ctx context.Context, locationID string) error {
	feed := c.opts.Queue
	endpoint := strings.TrimRight(feed.URL, "/") + "/queue/" + url.PathEscape(locationID)
	return c.collect(ctx, FeedQueue, locationID, endpoint, feed, cache.QueueKey(locationID))
}

// collect fetches endpoint and stores the payload under key with the feed TTL.
func (c *Collector) collect(ctx context.Context, name, location, endpoint string, feed Feed, key string) error {
	start := time.Now()
	defer func() {
		c.metrics.ObserveProcessingTime(name, time.Since(start))
	}()

	if !c.allow(ctx, name, location) {
		return errThrottled
	}

	headers := http.Header{}
	if feed.APIKey != "" {
		headers.Set("Authorization", "Bearer "+feed.APIKey)
	}

	var payload json.RawMessage
	if err := c.retrier.GetJSON(ctx, endpoint, headers, &payload); err != nil {
		err = c.redactKeys(err)
		c.logger.Error("failed to fetch feed", "feed", name, "location", location, "error", err)
		c.metrics.SetDataCollectionSuccess(name, location, false)
		c.metrics.IncError("collector", "fetch")
		return err
	}

	if isEmpty(payload) {
		c.logger.Warn("feed returned no data", "feed", name, "location", location)
		c.metrics.SetDataCollectionSuccess(name, location, false)
		return errEmptyPayload
	}

	if err := c.store.SetFeed(ctx, key, payload, feed.TTL); err != nil {
		c.logger.Error("failed to store feed", "feed", name, "key", key, "error", err)
		c.metrics.SetDataCollectionSuccess(name, location, false)
		c.metrics.IncError("collector", "store")
		return err
	}

	c.metrics.SetDataCollectionSuccess(name, location, true)
	c.logger.Debug("feed stored", "feed", name, "key", key, "bytes", len(payload))
	return nil
}

// allow counts one call of feed against the data_collection policy. A limiter
// error skips the call like a denial.
func (c *Collector) allow(ctx context.Context, feed, location string) bool {
	if c.opts.Limiter == nil {
		return true
	}
	res, err := c.opts.Limiter.CheckLimit(ctx, cache.ServiceDataCollection, feed)
	switch {
	case err != nil:
		c.logger.Error("rate limit check failed, skipping feed", "feed", feed, "location", location, "error", err)
	case !res.Allowed:
		c.logger.Warn("feed throttled", "feed", feed, "location", location, "retry_after", res.RetryAfter)
	default:
		return true
	}
	c.metrics.IncError("collector", "throttled")
	return false
}

// redactKeys strips the feed API keys from err. The weather key travels in
// the query string, so transport and decode errors carry it.
func (c *Collector) redactKeys(err error) error {
	msg := logging.SanitizeError(err, c.opts.Foodbank.APIKey, c.opts.Weather.APIKey, c.opts.Queue.APIKey)
	if msg == err.Error() {
		return err
	}
	return &redactedError{msg: msg, err: err}
}

type redactedError struct {
	msg string
	err error
}

func (e *redactedError) Error() string { return e.msg }
func (e *redactedError) Unwrap() error { return e.err }

func isEmpty(payload json.RawMessage) bool {
	trimmed := bytes.TrimSpace(payload)
	switch string(trimmed) {
	case "", "null", "{}", "[]", `""`:
		return true
	}
	return false
}
