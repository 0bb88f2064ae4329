// Package testutil holds helpers for integration tests that need Postgres
// (DATABASE_URL) or Redis (REDIS_URL).
package testutil

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/pantrynav/pantrynav/internal/model"
	"github.com/pantrynav/pantrynav/migrations"
)

// RequireEnv returns the variable key, skipping the test when it is unset.
func RequireEnv(t testing.TB, key string) string {
	t.Helper()
	v := os.Getenv(key)
	if v == "" {
		t.Skipf("%s not set", key)
	}
	return v
}

// dbLockKey serializes database tests across packages, which go test runs
// in parallel processes.
const dbLockKey int64 = 0x70616e74 // "pant"

// LockDB holds a session advisory lock until the test ends.
func LockDB(t testing.TB, pool *pgxpool.Pool) {
	t.Helper()
	ctx := context.Background()

	conn, err := pool.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire connection: %v", err)
	}
	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", dbLockKey); err != nil {
		conn.Release()
		t.Fatalf("acquire advisory lock: %v", err)
	}
	t.Cleanup(func() {
		_, _ = conn.Exec(context.Background(), "SELECT pg_advisory_unlock($1)", dbLockKey)
		conn.Release()
	})
}

func execMigrations(ctx context.Context, pool *pgxpool.Pool, list func() ([]string, error)) error {
	names, err := list()
	if err != nil {
		return err
	}
	for _, name := range names {
		body, err := migrations.Read(name)
		if err != nil {
			return err
		}
		if _, err := pool.Exec(ctx, body); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// ResetSchema drops and recreates every table, leaving an empty schema.
func ResetSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if err := execMigrations(ctx, pool, migrations.Down); err != nil {
		return fmt.Errorf("drop schema: %w", err)
	}
	if err := execMigrations(ctx, pool, migrations.Up); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// RedisClient connects to REDIS_URL, flushes the selected database and
// closes the client when the test ends. It skips when REDIS_URL is unset.
func RedisClient(t testing.TB) *redis.Client {
	t.Helper()
	opts, err := redis.ParseURL(RequireEnv(t, "REDIS_URL"))
	if err != nil {
		t.Fatalf("parse REDIS_URL: %v", err)
	}
	client := redis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })

	if err := client.FlushDB(context.Background()).Err(); err != nil {
		t.Fatalf("flush redis: %v", err)
	}
	return client
}

// ServiceRecord returns a geocoded Grand Rapids pantry open 9 to 5 on
// weekdays.
func ServiceRecord(t testing.TB, name string) model.ServiceRecord {
	t.Helper()
	lat, lng := 42.9634, -85.6681
	hours := model.WeeklyHours{}
	for _, d := range model.Weekdays {
		hours[d] = "9:00 AM - 5:00 PM"
	}
	return model.ServiceRecord{
		Source:       "feeding_wm",
		Name:         name,
		Address:      "100 Test St, Grand Rapids, MI 49503",
		Latitude:     &lat,
		Longitude:    &lng,
		City:         "Grand Rapids",
		State:        "MI",
		ZipCode:      "49503",
		Services:     []string{"food assistance"},
		Hours:        hours,
		Phone:        "(616) 555-0100",
		Website:      "https://example.org",
		Requirements: []string{"Photo ID"},
		LastUpdated:  time.Now().UTC(),
	}
}

var seq atomic.Int64

// UniqueID returns prefix plus a value unique within the test binary.
func UniqueID(prefix string) string {
	return fmt.Sprintf("%s-%d-%d", prefix, time.Now().UnixNano(), seq.Add(1))
}
