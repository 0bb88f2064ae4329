package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/lib/pq"

	"github.com/pantrynav/pantrynav/migrations"
)

// ErrInvalidDatabaseURL is returned when the URL carries no database name.
var ErrInvalidDatabaseURL = errors.New("database URL has no database name")

const maintenanceDB = "postgres"

// splitDatabaseURL returns the target database name and a URL pointing at the
// maintenance database on the same server.
func splitDatabaseURL(databaseURL string) (string, string, error) {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return "", "", fmt.Errorf("failed to parse database URL: %w", err)
	}

	name := strings.TrimPrefix(u.Path, "/")
	if name == "" {
		return "", "", ErrInvalidDatabaseURL
	}

	admin := *u
	admin.Path = "/" + maintenanceDB
	return name, admin.String(), nil
}

// EnsureDatabase creates the database named in databaseURL if it does not
// exist. It reports whether the database was created.
func EnsureDatabase(ctx context.Context, databaseURL string) (bool, error) {
	name, adminURL, err := splitDatabaseURL(databaseURL)
	if err != nil {
		return false, err
	}

	db, err := sql.Open("postgres", adminURL)
	if err != nil {
		return false, fmt.Errorf("failed to open maintenance database: %w", err)
	}
	defer db.Close()

	var exists bool
	if err := db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)`, name,
	).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check database: %w", err)
	}
	if exists {
		return false, nil
	}

	// CREATE DATABASE does not accept bind parameters.
	if _, err := db.ExecContext(ctx, "CREATE DATABASE "+pq.QuoteIdentifier(name)); err != nil {
		return false, fmt.Errorf("failed to create database %s: %w", name, err)
	}
	return true, nil
}

// SeedCategories inserts one service per standard category so the dashboard
// filter lists them before any ingestion has run.
func SeedCategories(ctx context.Context, databaseURL string, categories []string) (int64, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return 0, fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	res, err := db.ExecContext(ctx, `
		INSERT INTO services (name, category)
		SELECT c, c FROM unnest($1::text[]) AS c
		ON CONFLICT (name) DO NOTHING
	`, pq.Array(categories))
	if err != nil {
		return 0, fmt.Errorf("failed to seed categories: %w", err)
	}
	return res.RowsAffected()
}

// ApplyMigrations executes the embedded up migrations in order.
// Every statement is idempotent so reruns are safe.
func (r *Repository) ApplyMigrations(ctx context.Context) ([]string, error) {
	names, err := migrations.Up()
	if err != nil {
		return nil, fmt.Errorf("failed to list migrations: %w", err)
	}

	for _, name := range names {
		body, err := migrations.Read(name)
		if err != nil {
			return nil, fmt.Errorf("failed to read migration %s: %w", name, err)
		}
		if _, err := r.pool.Exec(ctx, body); err != nil {
			return nil, fmt.Errorf("failed to apply migration %s: %w", name, err)
		}
	}
	return names, nil
}

// RevertMigrations executes the embedded down migrations, newest first.
func (r *Repository) RevertMigrations(ctx context.Context) error {
	names, err := migrations.Down()
	if err != nil {
		return fmt.Errorf("failed to list migrations: %w", err)
	}

	for _, name := range names {
		body, err := migrations.Read(name)
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", name, err)
		}
		if _, err := r.pool.Exec(ctx, body); err != nil {
			return fmt.Errorf("failed to revert migration %s: %w", name, err)
		}
	}
	return nil
}
