package middleware

import (
	"context"
	"log/slog"
	"math"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/pantrynav/pantrynav/internal/cache"
	"github.com/pantrynav/pantrynav/internal/metrics"
)

// Limiter is satisfied by *cache.RateLimiter.
type Limiter interface {
	Policy(service string) (cache.Policy, error)
	CheckLimit(ctx context.Context, service, client string) (*cache.LimitResult, error)
}

// RateLimitConfig configures RateLimit.
type RateLimitConfig struct {
	Logger   *slog.Logger
	Limiter  Limiter
	Recorder metrics.Recorder
	Enabled  bool
	// Service selects the policy. Defaults to cache.ServiceAPI.
	Service string
}

// RateLimit throttles requests per client address under one service policy.
// Addresses are hashed with cache.HashIP before they reach the limiter. A
// limiter error lets the request through.
func RateLimit(cfg RateLimitConfig) func(http.Handler) http.Handler {
	if cfg.Recorder == nil {
		cfg.Recorder = metrics.NewNoop()
	}
	if cfg.Service == "" {
		cfg.Service = cache.ServiceAPI
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	log := cfg.Logger.With("component", "middleware.ratelimit", "service", cfg.Service)

	return func(next http.Handler) http.Handler {
		if !cfg.Enabled || cfg.Limiter == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			client := cache.HashIP(clientIP(r))

			res, err := cfg.Limiter.CheckLimit(r.Context(), cfg.Service, client)
			if err != nil {
				log.Error("rate limit check failed, allowing request", "error", err)
				next.ServeHTTP(w, r)
				return
			}

			if p, err := cfg.Limiter.Policy(cfg.Service); err == nil && p.Requests > 0 {
				h := w.Header()
				h.Set("X-RateLimit-Limit", strconv.Itoa(p.Requests))
				h.Set("X-RateLimit-Remaining", strconv.FormatInt(res.Remaining, 10))
				h.Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))
			}

			if res.Allowed {
				next.ServeHTTP(w, r)
				return
			}

			wait := retrySeconds(res.RetryAfter)
			cfg.Recorder.IncRateLimited(cfg.Service)
			log.Warn("rate limit exceeded",
				"client", client,
				"route", r.Method+" "+r.URL.Path,
				"retry_after_seconds", wait,
				"request_id", GetRequestID(r.Context()),
			)

			w.Header().Set("Retry-After", strconv.Itoa(wait))
			writeError(w, http.StatusTooManyRequests, "RATE_LIMITED",
				"Rate limit exceeded. Retry after "+strconv.Itoa(wait)+" seconds.")
		})
	}
}

// retrySeconds rounds d up to whole seconds, never below one.
func retrySeconds(d time.Duration) int {
	s := int(math.Ceil(d.Seconds()))
	if s < 1 {
		return 1
	}
	return s
}

// clientIP returns the originating address of r. The first hop of
// X-Forwarded-For wins, then X-Real-IP, then the peer address. Header values
// that do not parse as an IP are ignored.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if addr, err := netip.ParseAddr(strings.TrimSpace(first)); err == nil {
			return addr.Unmap().String()
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		if addr, err := netip.ParseAddr(xri); err == nil {
			return addr.Unmap().String()
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
