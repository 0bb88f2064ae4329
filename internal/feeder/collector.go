package feeder

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pantrynav/pantrynav/internal/config"
	"github.com/pantrynav/pantrynav/internal/httpclient"
	"github.com/pantrynav/pantrynav/internal/model"
)

// Collector fans out over its sources.
type Collector struct {
	sources []Source
	logger  *slog.Logger
	now     func() time.Time
}

// NewCollector creates a Collector over sources.
func NewCollector(sources []Source, logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{
		sources: sources,
		logger:  logger.With("component", "feeder.collector"),
		now:     time.Now,
	}
}

// DefaultSources returns the Grand Rapids provider sources.
func DefaultSources(cfg config.FeederConfig) []Source {
	client := httpclient.New(httpclient.Options{Timeout: cfg.HTTPTimeout})
	return defaultSources(cfg, client)
}

func defaultSources(cfg config.FeederConfig, client *http.Client) []Source {
	return []Source{
		NewHTMLSource("feeding_wm", cfg.FeedingWMURL, client, "Food Pantry"),
		NewHTMLSource("salvation_army", cfg.SalvationArmyURL, client, "Food Pantry", "Shelter", "Financial Assistance"),
		NewHTMLSource("ywca", cfg.YWCAURL, client, "Shelter", "Legal Aid", "Education"),
		DHHSSource(),
	}
}

// CollectAll runs every source concurrently. A failing source is logged and
// contributes no records; CollectAll itself only fails when ctx is done.
// Records keep source order.
func (c *Collector) CollectAll(ctx context.Context) ([]model.RawRecord, error) {
	results := make([][]model.RawRecord, len(c.sources))
	var mu sync.Mutex
	failed := make([]string, 0)

	g, gctx := errgroup.WithContext(ctx)
	for i, src := range c.sources {
		g.Go(func() error {
			start := c.now()
			records, err := src.Collect(gctx)
			if err != nil {
				c.logger.Error("source collection failed",
					"source", src.Name(),
					"error", err,
				)
				mu.Lock()
				failed = append(failed, src.Name())
				mu.Unlock()
				return nil
			}

			collectedAt := c.now().UTC()
			for j := range records {
				records[j].Source = src.Name()
				if records[j].LastUpdated.IsZero() {
					records[j].LastUpdated = collectedAt
				}
			}
			results[i] = records

			c.logger.Info("source collected",
				"source", src.Name(),
				"records", len(records),
				"duration_ms", c.now().Sub(start).Milliseconds(),
			)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var all []model.RawRecord
	for _, r := range results {
		all = append(all, r...)
	}

	if len(failed) > 0 {
		c.logger.Warn("some sources failed", "sources", failed)
	}
	return all, nil
}
