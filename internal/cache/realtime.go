package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pantrynav/pantrynav/internal/model"
)

// Realtime feed keys.
const (
	FoodbankInventoryKey = "foodbank:inventory"
	LocationsSetKey      = "locations"
	LocationIDsSetKey    = "location_ids"
)

// WeatherKey is the key of the weather payload of a location.
func WeatherKey(location string) string {
	return "weather:" + location
}

// QueueKey is the key of the queue payload of a location id.
func QueueKey(locationID string) string {
	return "queue:" + locationID
}

// SetFeed stores a raw JSON payload with a TTL.
func (c *Cache) SetFeed(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store feed %s: %w", key, err)
	}
	return nil
}

// GetFeed returns a stored payload. Returns ErrCacheMiss if not found.
func (c *Cache) GetFeed(ctx context.Context, key string) (json.RawMessage, error) {
	val, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("failed to read feed %s: %w", key, err)
	}
	if !json.Valid(val) {
		return nil, fmt.Errorf("feed %s holds invalid JSON", key)
	}
	return json.RawMessage(val), nil
}

// Locations returns the members of the locations set.
func (c *Cache) Locations(ctx context.Context) ([]string, error) {
	return c.members(ctx, LocationsSetKey)
}

// LocationIDs returns the members of the location_ids set.
func (c *Cache) LocationIDs(ctx context.Context) ([]string, error) {
	return c.members(ctx, LocationIDsSetKey)
}

// AddLocations registers locations for weather collection.
func (c *Cache) AddLocations(ctx context.Context, locations ...string) error {
	return c.add(ctx, LocationsSetKey, locations)
}

// AddLocationIDs registers location ids for queue collection.
func (c *Cache) AddLocationIDs(ctx context.Context, ids ...string) error {
	return c.add(ctx, LocationIDsSetKey, ids)
}

func (c *Cache) members(ctx context.Context, key string) ([]string, error) {
	m, err := c.client.SMembers(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read set %s: %w", key, err)
	}
	return m, nil
}

func (c *Cache) add(ctx context.Context, key string, members []string) error {
	if len(members) == 0 {
		return nil
	}
	args := make([]any, len(members))
	for i, m := range members {
		args[i] = m
	}
	if err := c.client.SAdd(ctx, key, args...).Err(); err != nil {
		return fmt.Errorf("failed to add to set %s: %w", key, err)
	}
	return nil
}

// Snapshot assembles the realtime payload of a location. Feeds that are
// missing or unreadable are reported as empty objects.
func (c *Cache) Snapshot(ctx context.Context, locationID string, now time.Time) model.Snapshot {
	read := func(key string) json.RawMessage {
		v, err := c.GetFeed(ctx, key)
		if err != nil {
			return model.EmptyObject
		}
		return v
	}

	return model.Snapshot{
		Timestamp: now,
		Foodbank:  read(FoodbankInventoryKey),
		Weather:   read(WeatherKey(locationID)),
		Queue:     read(QueueKey(locationID)),
	}
}
