package middleware

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pantrynav/pantrynav/internal/cache"
	"github.com/pantrynav/pantrynav/internal/metrics"
)

type fakeLimiter struct {
	result  *cache.LimitResult
	err     error
	clients []string
}

func (f *fakeLimiter) Policy(service string) (cache.Policy, error) {
	if service != cache.ServiceAPI {
		return cache.Policy{}, cache.ErrUnknownService
	}
	return cache.Policy{Requests: 1000, Window: time.Minute, Burst: 100}, nil
}

func (f *fakeLimiter) CheckLimit(_ context.Context, _ string, client string) (*cache.LimitResult, error) {
	f.clients = append(f.clients, client)
	return f.result, f.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimit_Allowed(t *testing.T) {
	t.Parallel()

	reset := time.Unix(1700000060, 0)
	limiter := &fakeLimiter{result: &cache.LimitResult{Allowed: true, Remaining: 99, ResetAt: reset}}
	handler := RateLimit(RateLimitConfig{Logger: discardLogger(), Limiter: limiter, Enabled: true})(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/services", nil)
	req.RemoteAddr = "198.51.100.4:51234"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Header().Get("X-RateLimit-Limit"); got != "1000" {
		t.Errorf("X-RateLimit-Limit = %q", got)
	}
	if got := rec.Header().Get("X-RateLimit-Remaining"); got != "99" {
		t.Errorf("X-RateLimit-Remaining = %q", got)
	}
	if got := rec.Header().Get("X-RateLimit-Reset"); got != "1700000060" {
		t.Errorf("X-RateLimit-Reset = %q", got)
	}
	if len(limiter.clients) != 1 || limiter.clients[0] != cache.HashIP("198.51.100.4") {
		t.Errorf("client ids = %v, want hashed address without port", limiter.clients)
	}
}

func TestRateLimit_Rejected(t *testing.T) {
	t.Parallel()

	rec := metrics.NewInMemory()
	limiter := &fakeLimiter{result: &cache.LimitResult{Allowed: false, RetryAfter: 42 * time.Second, ResetAt: time.Now()}}
	handler := RateLimit(RateLimitConfig{Logger: discardLogger(), Limiter: limiter, Recorder: rec, Enabled: true})(okHandler())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/resources", nil))

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
	if got := w.Header().Get("Retry-After"); got != "42" {
		t.Errorf("Retry-After = %q, want 42", got)
	}
	if !strings.Contains(w.Body.String(), `"code":"RATE_LIMITED"`) {
		t.Errorf("body = %s", w.Body.String())
	}
	if rec.Snapshot().RateLimited != 1 {
		t.Error("rejection not recorded")
	}
}

func TestRateLimit_FailOpenAndDisabled(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     RateLimitConfig
		wantHit bool
	}{
		{"limiter error", RateLimitConfig{Limiter: &fakeLimiter{err: errors.New("redis down")}, Enabled: true}, true},
		{"disabled", RateLimitConfig{Limiter: &fakeLimiter{}, Enabled: false}, false},
		{"no limiter", RateLimitConfig{Enabled: true}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			tt.cfg.Logger = discardLogger()
			w := httptest.NewRecorder()
			RateLimit(tt.cfg)(okHandler()).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/resources", nil))

			if w.Code != http.StatusOK {
				t.Errorf("status = %d, want 200", w.Code)
			}
			if fl, ok := tt.cfg.Limiter.(*fakeLimiter); ok && (len(fl.clients) > 0) != tt.wantHit {
				t.Errorf("limiter consulted = %v, want %v", len(fl.clients) > 0, tt.wantHit)
			}
		})
	}
}

func TestClientIP(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		xri        string
		want       string
	}{
		{"remote addr with port", "192.0.2.1:4444", "", "", "192.0.2.1"},
		{"remote addr without port", "192.0.2.1", "", "", "192.0.2.1"},
		{"forwarded for chain", "10.0.0.1:1", "203.0.113.9, 10.0.0.2", "", "203.0.113.9"},
		{"real ip", "10.0.0.1:1", "", "203.0.113.10", "203.0.113.10"},
		{"garbage forwarded for", "192.0.2.1:4444", "not-an-ip", "", "192.0.2.1"},
		{"mapped v4", "10.0.0.1:1", "::ffff:203.0.113.11", "", "203.0.113.11"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				req.Header.Set("X-Real-IP", tt.xri)
			}
			if got := clientIP(req); got != tt.want {
				t.Errorf("clientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRetrySeconds(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   time.Duration
		want int
	}{
		{0, 1},
		{200 * time.Millisecond, 1},
		{time.Second, 1},
		{1500 * time.Millisecond, 2},
		{42 * time.Second, 42},
	}
	for _, tt := range tests {
		if got := retrySeconds(tt.in); got != tt.want {
			t.Errorf("retrySeconds(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
