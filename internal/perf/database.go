package perf

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/pantrynav/pantrynav/internal/config"
)

// QueryRunner executes one query and discards its rows.
type QueryRunner interface {
	Query(ctx context.Context, sql string) error
}

// PoolRunner runs queries on a pgx pool.
type PoolRunner struct {
	pool *pgxpool.Pool
}

// NewPoolRunner wraps pool.
func NewPoolRunner(pool *pgxpool.Pool) *PoolRunner {
	return &PoolRunner{pool: pool}
}

func (p *PoolRunner) Query(ctx context.Context, sql string) error {
	rows, err := p.pool.Query(ctx, sql)
	if err != nil {
		return err
	}
	for rows.Next() {
	}
	rows.Close()
	return rows.Err()
}

// DBResult is the timing of one query set.
type DBResult struct {
	QuerySet         string  `json:"query_set"`
	Queries          int     `json:"queries"`
	Failures         int64   `json:"failures"`
	ExecutionTime    float64 `json:"execution_time"`
	QueriesPerSecond float64 `json:"queries_per_second"`
}

// RunDatabase runs each query set concurrency times in parallel and times
// the whole batch. ExecutionTime is in seconds.
func (t *Tester) RunDatabase(ctx context.Context, sets []config.PerfQuerySet, concurrency int) ([]DBResult, error) {
	if t.db == nil {
		return nil, fmt.Errorf("database test requires DATABASE_URL")
	}
	concurrency = max(concurrency, 1)

	results := make([]DBResult, 0, len(sets))
	for _, set := range sets {
		var failures atomic.Int64
		start := time.Now()

		g, gctx := errgroup.WithContext(ctx)
		for i := 0; i < concurrency; i++ {
			g.Go(func() error {
				if err := t.db.Query(gctx, set.Query); err != nil {
					failures.Add(1)
					t.logger.Warn("query failed", "query_set", set.Name, "error", err)
				}
				return nil
			})
		}
		_ = g.Wait()
		if err := ctx.Err(); err != nil {
			return results, err
		}

		elapsed := time.Since(start).Seconds()
		r := DBResult{
			QuerySet:      set.Name,
			Queries:       concurrency,
			Failures:      failures.Load(),
			ExecutionTime: elapsed,
		}
		if elapsed > 0 {
			r.QueriesPerSecond = math.Round(float64(concurrency)/elapsed*100) / 100
		}
		results = append(results, r)
	}

	t.logger.Info("database test completed", "query_sets", len(results))
	return results, nil
}
