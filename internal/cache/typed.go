package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pantrynav/pantrynav/internal/config"
)

// Cache types.
const (
	TypeServiceLocations  = "service_locations"
	TypeRouteOptimization = "route_optimization"
	TypeWeatherData       = "weather_data"
)

const (
	cacheKeyPrefix     = "cache:"
	timestampKeySuffix = ":timestamp"
)

// TypeConfig controls expiry and refresh for one cache type.
type TypeConfig struct {
	TTL             time.Duration
	RefreshInterval time.Duration
	// MaxSize is advisory; Set only warns once it is reached.
	MaxSize int
}

// TypeStats describes one cache type.
type TypeStats struct {
	KeyCount        int `json:"key_count"`
	TTL             int `json:"ttl"`
	RefreshInterval int `json:"refresh_interval"`
	MaxSize         int `json:"max_size"`
}

// TypesFromConfig builds the cache type table from configuration.
func TypesFromConfig(cfg config.CacheConfig) map[string]TypeConfig {
	sec := func(n int) time.Duration { return time.Duration(n) * time.Second }
	return map[string]TypeConfig{
		TypeServiceLocations: {
			TTL:             sec(cfg.ServiceLocationsTTL),
			RefreshInterval: sec(cfg.ServiceLocationsRefresh),
			MaxSize:         cfg.ServiceLocationsMaxSize,
		},
		TypeRouteOptimization: {
			TTL:             sec(cfg.RouteOptimizationTTL),
			RefreshInterval: sec(cfg.RouteOptimizationRefresh),
			MaxSize:         cfg.RouteOptimizationMaxSize,
		},
		TypeWeatherData: {
			TTL:             sec(cfg.WeatherDataTTL),
			RefreshInterval: sec(cfg.WeatherDataRefresh),
			MaxSize:         cfg.WeatherDataMaxSize,
		},
	}
}

// TypedCache stores JSON values under per-type TTLs.
type TypedCache struct {
	cache  *Cache
	types  map[string]TypeConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewTyped creates a typed cache over c.
func NewTyped(c *Cache, types map[string]TypeConfig, logger *slog.Logger) *TypedCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &TypedCache{
		cache:  c,
		types:  types,
		logger: logger.With("component", "cache.typed"),
		now:    time.Now,
	}
}

// Types returns the configured type names, sorted.
func (t *TypedCache) Types() []string {
	names := make([]string, 0, len(t.types))
	for name := range t.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func typedKey(cacheType, key string) string {
	return cacheKeyPrefix + cacheType + ":" + key
}

func (t *TypedCache) typeConfig(cacheType string) (TypeConfig, error) {
	cfg, ok := t.types[cacheType]
	if !ok {
		return TypeConfig{}, fmt.Errorf("%w: %s", ErrUnknownCacheType, cacheType)
	}
	return cfg, nil
}

// Set stores value under the type's TTL. Strings are stored verbatim,
// anything else as JSON.
func (t *TypedCache) Set(ctx context.Context, cacheType, key string, value any) error {
	cfg, err := t.typeConfig(cacheType)
	if err != nil {
		return err
	}

	var payload string
	switch v := value.(type) {
	case string:
		payload = v
	case []byte:
		payload = string(v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to encode cache value: %w", err)
		}
		payload = string(b)
	}

	if cfg.MaxSize > 0 {
		if n, err := t.keyCount(ctx, cacheType); err == nil && n >= cfg.MaxSize {
			t.logger.Warn("cache type at max size",
				"cache_type", cacheType,
				"key_count", n,
				"max_size", cfg.MaxSize,
			)
		}
	}

	if err := t.cache.client.Set(ctx, typedKey(cacheType, key), payload, cfg.TTL).Err(); err != nil {
		return fmt.Errorf("failed to set cache key: %w", err)
	}

	t.logger.Debug("cache set", "cache_type", cacheType, "key", key, "ttl", cfg.TTL)
	return nil
}

// GetRaw returns the stored string. Returns ErrCacheMiss if not found.
func (t *TypedCache) GetRaw(ctx context.Context, cacheType, key string) (string, error) {
	if _, err := t.typeConfig(cacheType); err != nil {
		return "", err
	}

	val, err := t.cache.client.Get(ctx, typedKey(cacheType, key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			t.logger.Debug("cache miss", "cache_type", cacheType, "key", key)
			return "", ErrCacheMiss
		}
		return "", fmt.Errorf("failed to get cache key: %w", err)
	}
	return val, nil
}

// Get decodes the stored JSON into dest. Returns ErrCacheMiss if not found.
func (t *TypedCache) Get(ctx context.Context, cacheType, key string, dest any) error {
	raw, err := t.GetRaw(ctx, cacheType, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		return fmt.Errorf("failed to decode cache value: %w", err)
	}
	return nil
}

// Delete removes a key and its refresh timestamp.
func (t *TypedCache) Delete(ctx context.Context, cacheType, key string) error {
	if _, err := t.typeConfig(cacheType); err != nil {
		return err
	}

	k := typedKey(cacheType, key)
	if err := t.cache.client.Del(ctx, k, k+timestampKeySuffix).Err(); err != nil {
		return fmt.Errorf("failed to delete cache key: %w", err)
	}
	return nil
}

// Clear deletes every key of cacheType, or of every type when cacheType is
// empty. It returns the number of keys removed.
func (t *TypedCache) Clear(ctx context.Context, cacheType string) (int, error) {
	pattern := cacheKeyPrefix + "*"
	if cacheType != "" {
		if _, err := t.typeConfig(cacheType); err != nil {
			return 0, err
		}
		pattern = cacheKeyPrefix + cacheType + ":*"
	}

	keys, err := t.cache.scanKeys(ctx, pattern)
	if err != nil {
		return 0, err
	}

	for start := 0; start < len(keys); start += 100 {
		end := min(start+100, len(keys))
		if err := t.cache.client.Del(ctx, keys[start:end]...).Err(); err != nil {
			return start, fmt.Errorf("failed to clear cache: %w", err)
		}
	}

	t.logger.Info("cache cleared", "cache_type", cacheType, "keys_cleared", len(keys))
	return len(keys), nil
}

// keyCount counts value keys of a type, ignoring refresh timestamps.
func (t *TypedCache) keyCount(ctx context.Context, cacheType string) (int, error) {
	keys, err := t.cache.scanKeys(ctx, cacheKeyPrefix+cacheType+":*")
	if err != nil {
		return 0, err
	}
	n := 0
	for _, k := range keys {
		if !strings.HasSuffix(k, timestampKeySuffix) {
			n++
		}
	}
	return n, nil
}

// Stats returns key count and settings for one type.
func (t *TypedCache) Stats(ctx context.Context, cacheType string) (TypeStats, error) {
	cfg, err := t.typeConfig(cacheType)
	if err != nil {
		return TypeStats{}, err
	}

	n, err := t.keyCount(ctx, cacheType)
	if err != nil {
		return TypeStats{}, err
	}

	return TypeStats{
		KeyCount:        n,
		TTL:             int(cfg.TTL.Seconds()),
		RefreshInterval: int(cfg.RefreshInterval.Seconds()),
		MaxSize:         cfg.MaxSize,
	}, nil
}

// AllStats returns Stats for every configured type.
func (t *TypedCache) AllStats(ctx context.Context) (map[string]TypeStats, error) {
	out := make(map[string]TypeStats, len(t.types))
	for _, name := range t.Types() {
		s, err := t.Stats(ctx, name)
		if err != nil {
			return nil, err
		}
		out[name] = s
	}
	return out, nil
}

// ShouldRefresh reports whether the key is missing or was last refreshed
// longer ago than the type's refresh interval.
func (t *TypedCache) ShouldRefresh(ctx context.Context, cacheType, key string) (bool, error) {
	cfg, err := t.typeConfig(cacheType)
	if err != nil {
		return true, err
	}

	k := typedKey(cacheType, key)
	exists, err := t.cache.client.Exists(ctx, k).Result()
	if err != nil {
		return true, fmt.Errorf("failed to check cache key: %w", err)
	}
	if exists == 0 {
		return true, nil
	}

	raw, err := t.cache.client.Get(ctx, k+timestampKeySuffix).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return true, nil
		}
		return true, fmt.Errorf("failed to read refresh timestamp: %w", err)
	}

	last, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return true, nil
	}

	age := t.now().Sub(time.Unix(0, int64(last*float64(time.Second))))
	return age > cfg.RefreshInterval, nil
}

// MarkRefreshed records the refresh time of a key. The timestamp expires
// together with the value.
func (t *TypedCache) MarkRefreshed(ctx context.Context, cacheType, key string) error {
	cfg, err := t.typeConfig(cacheType)
	if err != nil {
		return err
	}

	ts := strconv.FormatFloat(float64(t.now().UnixNano())/float64(time.Second), 'f', 3, 64)
	if err := t.cache.client.Set(ctx, typedKey(cacheType, key)+timestampKeySuffix, ts, cfg.TTL).Err(); err != nil {
		return fmt.Errorf("failed to mark refreshed: %w", err)
	}
	return nil
}
