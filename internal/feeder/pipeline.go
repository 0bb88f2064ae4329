package feeder

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/pantrynav/pantrynav/internal/model"
	"github.com/pantrynav/pantrynav/internal/normalize"
)

// Store persists normalized records.
type Store interface {
	UpsertServiceRecord(ctx context.Context, rec model.ServiceRecord) (int64, error)
}

// Result summarizes one ingestion run.
type Result struct {
	BatchID   string    `json:"batch_id"`
	StartedAt time.Time `json:"started_at"`
	Collected int       `json:"collected"`
	Processed int       `json:"processed"`
	Stored    int       `json:"stored"`
	Failed    int       `json:"failed"`
	Files     []string  `json:"files"`
}

// Pipeline runs collect, normalize, export and store.
type Pipeline struct {
	collector *Collector
	processor *normalize.Processor
	store     Store
	dataDir   string
	logger    *slog.Logger
	now       func() time.Time
}

// NewPipeline creates a Pipeline. store may be nil to skip the database step.
func NewPipeline(collector *Collector, processor *normalize.Processor, store Store, dataDir string, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		collector: collector,
		processor: processor,
		store:     store,
		dataDir:   dataDir,
		logger:    logger.With("component", "feeder.pipeline"),
		now:       time.Now,
	}
}

// Run executes one ingestion batch.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	started := p.now().UTC()
	res := &Result{
		BatchID:   ulid.MustNew(ulid.Timestamp(started), rand.Reader).String(),
		StartedAt: started,
	}
	logger := p.logger.With("batch_id", res.BatchID)

	raw, err := p.collector.CollectAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("collect: %w", err)
	}
	res.Collected = len(raw)

	records := p.processor.Process(ctx, raw)
	res.Processed = len(records)

	files, err := Export(p.dataDir, started, records)
	if err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}
	res.Files = files

	if p.store != nil {
		for _, rec := range records {
			if _, err := p.store.UpsertServiceRecord(ctx, rec); err != nil {
				res.Failed++
				logger.Error("failed to store record",
					"name", rec.Name,
					"source", rec.Source,
					"error", err,
				)
				continue
			}
			res.Stored++
		}
	}

	logger.Info("ingestion complete",
		"collected", res.Collected,
		"processed", res.Processed,
		"stored", res.Stored,
		"failed", res.Failed,
	)
	return res, nil
}
