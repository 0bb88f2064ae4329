package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pantrynav/pantrynav/internal/config"
)

// Rate limit services.
const (
	ServiceAPI               = "api"
	ServiceDataCollection    = "data_collection"
	ServiceRouteOptimization = "route_optimization"
)

const (
	rateLimitKeyPrefix  = "rate_limit:"
	burstLimitKeyPrefix = "burst_limit:"
)

// Policy is a fixed-window limit with a burst ceiling. Both counters expire
// with the window.
type Policy struct {
	Requests int
	Window   time.Duration
	Burst    int
}

// PoliciesFromConfig builds the policy table from configuration.
func PoliciesFromConfig(cfg config.RateLimitConfig) map[string]Policy {
	sec := func(n int) time.Duration { return time.Duration(n) * time.Second }
	return map[string]Policy{
		ServiceAPI: {
			Requests: cfg.APIRequests,
			Window:   sec(cfg.APIWindow),
			Burst:    cfg.APIBurst,
		},
		ServiceDataCollection: {
			Requests: cfg.DataCollectionRequests,
			Window:   sec(cfg.DataCollectionWindow),
			Burst:    cfg.DataCollectionBurst,
		},
		ServiceRouteOptimization: {
			Requests: cfg.RouteOptimizationRequests,
			Window:   sec(cfg.RouteOptimizationWindow),
			Burst:    cfg.RouteOptimizationBurst,
		},
	}
}

// LimitResult contains the result of a rate limit check.
type LimitResult struct {
	Allowed    bool
	Remaining  int64
	ResetAt    time.Time
	RetryAfter time.Duration
}

// LimitInfo describes the current counters of a client.
type LimitInfo struct {
	Service      string    `json:"service"`
	ClientID     string    `json:"client_id"`
	CurrentCount int64     `json:"current_count"`
	BurstCount   int64     `json:"burst_count"`
	Limit        int       `json:"limit"`
	MaxBurst     int       `json:"max_burst"`
	WindowSize   int       `json:"window_size"`
	ResetTime    time.Time `json:"reset_time"`
}

// fixedWindowScript checks the burst counter, then the window counter, and
// only then increments both. Returns {allowed, window_count, burst_count, burst_ttl}.
var fixedWindowScript = redis.NewScript(`
	local window_key = KEYS[1]
	local burst_key = KEYS[2]
	local limit = tonumber(ARGV[1])
	local max_burst = tonumber(ARGV[2])
	local window = tonumber(ARGV[3])

	local current = tonumber(redis.call('GET', window_key) or '0')
	local burst = tonumber(redis.call('GET', burst_key) or '0')

	if burst >= max_burst then
		return {0, current, burst, redis.call('TTL', burst_key)}
	end

	if current >= limit then
		return {0, current, burst, redis.call('TTL', burst_key)}
	end

	current = redis.call('INCR', window_key)
	burst = redis.call('INCR', burst_key)
	redis.call('EXPIRE', window_key, window)
	redis.call('EXPIRE', burst_key, window)

	return {1, current, burst, window}
`)

// RateLimiter enforces per-service policies per client.
type RateLimiter struct {
	cache    *Cache
	policies map[string]Policy
	logger   *slog.Logger
	now      func() time.Time
}

// NewRateLimiter creates a rate limiter over c.
func NewRateLimiter(c *Cache, policies map[string]Policy, logger *slog.Logger) *RateLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &RateLimiter{
		cache:    c,
		policies: policies,
		logger:   logger.With("component", "cache.ratelimit"),
		now:      time.Now,
	}
}

// Policy returns the policy of a service.
func (l *RateLimiter) Policy(service string) (Policy, error) {
	p, ok := l.policies[service]
	if !ok {
		return Policy{}, fmt.Errorf("%w: %s", ErrUnknownService, service)
	}
	return p, nil
}

func windowIndex(now time.Time, window time.Duration) int64 {
	secs := int64(window.Seconds())
	if secs <= 0 {
		secs = 1
	}
	return now.Unix() / secs
}

func windowKey(service, client string, index int64) string {
	return rateLimitKeyPrefix + service + ":" + client + ":" + strconv.FormatInt(index, 10)
}

func burstKey(service, client string) string {
	return burstLimitKeyPrefix + service + ":" + client
}

// windowEnd returns when the window containing now closes.
func windowEnd(now time.Time, window time.Duration) time.Time {
	secs := int64(window.Seconds())
	if secs <= 0 {
		secs = 1
	}
	return time.Unix((now.Unix()/secs+1)*secs, 0)
}

// CheckLimit counts one request of client against service. On a Redis error
// the result denies the request and the error is returned; callers that
// prefer to fail open decide so themselves.
func (l *RateLimiter) CheckLimit(ctx context.Context, service, client string) (*LimitResult, error) {
	policy, err := l.Policy(service)
	if err != nil {
		return nil, err
	}

	now := l.now()
	resetAt := windowEnd(now, policy.Window)

	res, err := fixedWindowScript.Run(ctx, l.cache.client,
		[]string{windowKey(service, client, windowIndex(now, policy.Window)), burstKey(service, client)},
		policy.Requests, policy.Burst, int(policy.Window.Seconds()),
	).Int64Slice()
	if err != nil {
		return &LimitResult{ResetAt: resetAt}, fmt.Errorf("failed to check rate limit: %w", err)
	}

	allowed := res[0] == 1
	current, burst, burstTTL := res[1], res[2], res[3]

	result := &LimitResult{
		Allowed:   allowed,
		Remaining: remaining(policy, current, burst),
		ResetAt:   resetAt,
	}

	if !allowed {
		if burst >= int64(policy.Burst) && burstTTL > 0 {
			result.RetryAfter = time.Duration(burstTTL) * time.Second
		} else {
			result.RetryAfter = resetAt.Sub(now).Round(time.Second)
		}
		if result.RetryAfter < time.Second {
			result.RetryAfter = time.Second
		}
		l.logger.Warn("rate limit exceeded",
			"service", service,
			"client", client,
			"current_count", current,
			"burst_count", burst,
		)
	}

	return result, nil
}

func remaining(p Policy, current, burst int64) int64 {
	r := int64(p.Requests) - current
	if b := int64(p.Burst) - burst; b < r {
		r = b
	}
	if r < 0 {
		return 0
	}
	return r
}

// ResetLimit deletes the current window counter and the burst counter.
func (l *RateLimiter) ResetLimit(ctx context.Context, service, client string) error {
	policy, err := l.Policy(service)
	if err != nil {
		return err
	}

	err = l.cache.client.Del(ctx,
		windowKey(service, client, windowIndex(l.now(), policy.Window)),
		burstKey(service, client),
	).Err()
	if err != nil {
		return fmt.Errorf("failed to reset rate limit: %w", err)
	}

	l.logger.Info("rate limit reset", "service", service, "client", client)
	return nil
}

// LimitInfo reads the counters of client without counting a request.
func (l *RateLimiter) LimitInfo(ctx context.Context, service, client string) (*LimitInfo, error) {
	policy, err := l.Policy(service)
	if err != nil {
		return nil, err
	}

	now := l.now()
	pipe := l.cache.client.Pipeline()
	cur := pipe.Get(ctx, windowKey(service, client, windowIndex(now, policy.Window)))
	bur := pipe.Get(ctx, burstKey(service, client))
	// A missing key surfaces as redis.Nil; its counter is 0.
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to read rate limit: %w", err)
	}
	current, err := counter(cur)
	if err != nil {
		return nil, err
	}
	burst, err := counter(bur)
	if err != nil {
		return nil, err
	}

	return &LimitInfo{
		Service:      service,
		ClientID:     client,
		CurrentCount: current,
		BurstCount:   burst,
		Limit:        policy.Requests,
		MaxBurst:     policy.Burst,
		WindowSize:   int(policy.Window.Seconds()),
		ResetTime:    windowEnd(now, policy.Window),
	}, nil
}

func counter(cmd *redis.StringCmd) (int64, error) {
	n, err := cmd.Int64()
	switch {
	case errors.Is(err, redis.Nil):
		return 0, nil
	case err != nil:
		return 0, fmt.Errorf("failed to read rate limit: %w", err)
	}
	return n, nil
}

// HashIP creates a truncated SHA256 hash of an IP address.
// Rate limit keys never contain raw addresses.
func HashIP(ip string) string {
	hash := sha256.Sum256([]byte(ip))
	return hex.EncodeToString(hash[:8]) // 16 hex chars
}
