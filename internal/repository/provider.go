package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/pantrynav/pantrynav/internal/model"
)

// ErrInvalidRecord is returned when a record cannot be stored.
var ErrInvalidRecord = errors.New("invalid service record")

const serviceLocationsSelect = `
	SELECT
		o.id,
		l.id,
		o.name,
		o.type,
		l.address,
		l.city,
		l.state,
		l.zip_code,
		l.latitude,
		l.longitude,
		l.hours,
		l.wheelchair_accessible,
		COALESCE(string_agg(DISTINCT s.name, ', '), '') AS services,
		COALESCE(string_agg(DISTINCT r.requirement, ', '), '') AS requirements,
		COALESCE(string_agg(DISTINCT s.category, ', '), '') AS categories,
		o.website,
		o.phone
	FROM organizations o
	JOIN locations l ON o.id = l.organization_id
	LEFT JOIN organization_services os ON o.id = os.organization_id
	LEFT JOIN services s ON os.service_id = s.id
	LEFT JOIN requirements r ON o.id = r.organization_id AND (r.service_id IS NULL OR r.service_id = s.id)`

// buildServiceLocationsQuery renders the dashboard query with every filter bound as a parameter.
func buildServiceLocationsQuery(filter model.ServiceLocationFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)

	if len(filter.Types) > 0 {
		types := make([]string, len(filter.Types))
		for i, t := range filter.Types {
			types[i] = string(t)
		}
		args = append(args, types)
		conds = append(conds, fmt.Sprintf("o.type = ANY($%d)", len(args)))
	}

	if len(filter.Categories) > 0 {
		args = append(args, filter.Categories)
		conds = append(conds, fmt.Sprintf(`EXISTS (
		SELECT 1 FROM organization_services fos
		JOIN services fs ON fs.id = fos.service_id
		WHERE fos.organization_id = o.id AND fs.category = ANY($%d))`, len(args)))
	}

	if filter.AccessibleOnly {
		conds = append(conds, "l.wheelchair_accessible")
	}

	var b strings.Builder
	b.WriteString(serviceLocationsSelect)
	if len(conds) > 0 {
		b.WriteString("\n\tWHERE ")
		b.WriteString(strings.Join(conds, "\n\tAND "))
	}
	b.WriteString("\n\tGROUP BY o.id, l.id\n\tORDER BY o.type, o.name")

	return b.String(), args
}

// ListServiceLocations returns the aggregated dashboard rows matching filter.
func (r *Repository) ListServiceLocations(ctx context.Context, filter model.ServiceLocationFilter) ([]model.ServiceLocation, error) {
	query, args := buildServiceLocationsQuery(filter)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query service locations: %w", err)
	}
	defer rows.Close()

	var result []model.ServiceLocation
	for rows.Next() {
		var (
			sl      model.ServiceLocation
			orgType string
		)
		if err := rows.Scan(
			&sl.OrganizationID,
			&sl.LocationID,
			&sl.Name,
			&orgType,
			&sl.Address,
			&sl.City,
			&sl.State,
			&sl.ZipCode,
			&sl.Latitude,
			&sl.Longitude,
			&sl.Hours,
			&sl.WheelchairAccessible,
			&sl.Services,
			&sl.Requirements,
			&sl.Categories,
			&sl.Website,
			&sl.Phone,
		); err != nil {
			return nil, fmt.Errorf("failed to scan service location: %w", err)
		}
		sl.Type = model.OrganizationType(orgType)
		result = append(result, sl)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate service locations: %w", err)
	}

	return result, nil
}

// ListServiceCategories returns the distinct service categories, sorted.
func (r *Repository) ListServiceCategories(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT category FROM services ORDER BY category`)
	if err != nil {
		return nil, fmt.Errorf("failed to query service categories: %w", err)
	}

	categories, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan service categories: %w", err)
	}
	return categories, nil
}

// UpsertServiceRecord stores a normalized record in one transaction and
// returns the organization id. Re-ingesting the same record is idempotent.
func (r *Repository) UpsertServiceRecord(ctx context.Context, rec model.ServiceRecord) (int64, error) {
	if strings.TrimSpace(rec.Name) == "" || strings.TrimSpace(rec.Address) == "" {
		return 0, fmt.Errorf("%w: name and address are required", ErrInvalidRecord)
	}

	var orgID int64
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO organizations (name, type, website, phone)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (name, type) DO UPDATE
			SET website = EXCLUDED.website, phone = EXCLUDED.phone, updated_at = NOW()
			RETURNING id
		`, rec.Name, string(rec.OrganizationType()), rec.Website, rec.Phone).Scan(&orgID)
		if err != nil {
			return fmt.Errorf("upsert organization: %w", err)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO locations (organization_id, address, city, state, zip_code, latitude, longitude, hours)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (organization_id, address) DO UPDATE
			SET city = EXCLUDED.city,
				state = EXCLUDED.state,
				zip_code = EXCLUDED.zip_code,
				latitude = EXCLUDED.latitude,
				longitude = EXCLUDED.longitude,
				hours = EXCLUDED.hours,
				updated_at = NOW()
		`, orgID, rec.Address, rec.City, rec.State, rec.ZipCode, rec.Latitude, rec.Longitude, rec.Hours.Summary())
		if err != nil {
			return fmt.Errorf("upsert location: %w", err)
		}

		for _, name := range rec.Services {
			var serviceID int64
			err := tx.QueryRow(ctx, `
				INSERT INTO services (name, category)
				VALUES ($1, $2)
				ON CONFLICT (name) DO UPDATE SET category = EXCLUDED.category
				RETURNING id
			`, name, model.ServiceCategory(name)).Scan(&serviceID)
			if err != nil {
				return fmt.Errorf("upsert service %q: %w", name, err)
			}

			if _, err := tx.Exec(ctx, `
				INSERT INTO organization_services (organization_id, service_id)
				VALUES ($1, $2)
				ON CONFLICT DO NOTHING
			`, orgID, serviceID); err != nil {
				return fmt.Errorf("link service %q: %w", name, err)
			}
		}

		if _, err := tx.Exec(ctx, `DELETE FROM requirements WHERE organization_id = $1`, orgID); err != nil {
			return fmt.Errorf("clear requirements: %w", err)
		}
		for _, req := range rec.Requirements {
			if _, err := tx.Exec(ctx, `
				INSERT INTO requirements (organization_id, requirement) VALUES ($1, $2)
			`, orgID, req); err != nil {
				return fmt.Errorf("insert requirement: %w", err)
			}
		}

		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to upsert service record %q: %w", rec.Name, err)
	}

	return orgID, nil
}
