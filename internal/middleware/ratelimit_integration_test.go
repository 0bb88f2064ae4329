//go:build integration

package middleware

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pantrynav/pantrynav/internal/cache"
	"github.com/pantrynav/pantrynav/internal/metrics"
	"github.com/pantrynav/pantrynav/internal/testutil"
)

// TestRateLimitConcurrency verifies the Lua script holds the burst ceiling
// under concurrent requests from one client.
func TestRateLimitConcurrency(t *testing.T) {
	ctx := context.Background()
	client := testutil.RedisClient(t)

	policies := map[string]cache.Policy{
		cache.ServiceAPI: {Requests: 10, Window: time.Minute, Burst: 5},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	limiter := cache.NewRateLimiter(cache.NewFromClient(client), policies, logger)
	clientID := testutil.UniqueID("client")

	var allowed, rejected atomic.Int64
	var g errgroup.Group
	for i := 0; i < 20; i++ {
		g.Go(func() error {
			for j := 0; j < 3; j++ {
				res, err := limiter.CheckLimit(ctx, cache.ServiceAPI, clientID)
				if err != nil {
					return err
				}
				if res.Allowed {
					allowed.Add(1)
				} else {
					rejected.Add(1)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("CheckLimit: %v", err)
	}

	if allowed.Load() != 5 {
		t.Errorf("allowed = %d, want exactly the burst of 5", allowed.Load())
	}
	if rejected.Load() != 55 {
		t.Errorf("rejected = %d, want 55", rejected.Load())
	}
}

// TestRateLimitMiddleware_Redis drives the middleware against a real limiter.
func TestRateLimitMiddleware_Redis(t *testing.T) {
	client := testutil.RedisClient(t)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	limiter := cache.NewRateLimiter(cache.NewFromClient(client), map[string]cache.Policy{
		cache.ServiceAPI: {Requests: 2, Window: time.Minute, Burst: 10},
	}, logger)
	rec := metrics.NewInMemory()

	handler := RateLimit(RateLimitConfig{
		Logger:   logger,
		Limiter:  limiter,
		Recorder: rec,
		Enabled:  true,
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/resources", nil)
		req.Header.Set("X-Real-IP", "203.0.113.7")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}

	if codes[0] != 200 || codes[1] != 200 || codes[2] != 429 {
		t.Errorf("status codes = %v, want [200 200 429]", codes)
	}
	if rec.Snapshot().RateLimited != 1 {
		t.Errorf("RateLimited = %d, want 1", rec.Snapshot().RateLimited)
	}
}
