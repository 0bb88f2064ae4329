package normalize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pantrynav/pantrynav/internal/geo"
	"github.com/pantrynav/pantrynav/internal/model"
)

// ErrMissingName is returned for records without a provider name.
var ErrMissingName = errors.New("record has no name")

// Processor turns raw records into service records.
type Processor struct {
	geocoder geo.Geocoder
	logger   *slog.Logger
	now      func() time.Time
}

// NewProcessor creates a Processor. geocoder may be nil, in which case every
// address takes the fallback path.
func NewProcessor(geocoder geo.Geocoder, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		geocoder: geocoder,
		logger:   logger.With("component", "normalize.processor"),
		now:      time.Now,
	}
}

// Process standardizes every record. A record that fails is logged and skipped.
func (p *Processor) Process(ctx context.Context, records []model.RawRecord) []model.ServiceRecord {
	out := make([]model.ServiceRecord, 0, len(records))
	for _, raw := range records {
		rec, err := p.ProcessRecord(ctx, raw)
		if err != nil {
			p.logger.Error("failed to process record",
				"name", raw.Name,
				"source", raw.Source,
				"error", err,
			)
			continue
		}
		out = append(out, rec)
	}
	return out
}

// ProcessRecord standardizes one record.
func (p *Processor) ProcessRecord(ctx context.Context, raw model.RawRecord) (model.ServiceRecord, error) {
	if strings.TrimSpace(raw.Name) == "" {
		return model.ServiceRecord{}, ErrMissingName
	}
	if err := ctx.Err(); err != nil {
		return model.ServiceRecord{}, fmt.Errorf("processing cancelled: %w", err)
	}

	addr, err := StandardizeAddress(ctx, p.geocoder, raw.Address)
	if err != nil {
		p.logger.Warn("geocoding failed, keeping raw address",
			"address", raw.Address,
			"error", err,
		)
	}
	// Coordinates published by the source beat no coordinates at all.
	if addr.Latitude == nil && raw.Latitude != nil && raw.Longitude != nil {
		addr.Latitude, addr.Longitude = raw.Latitude, raw.Longitude
	}

	lastUpdated := raw.LastUpdated
	if lastUpdated.IsZero() {
		lastUpdated = p.now().UTC()
	}

	return model.ServiceRecord{
		Source:       raw.Source,
		Name:         raw.Name,
		Address:      addr.Address,
		Latitude:     addr.Latitude,
		Longitude:    addr.Longitude,
		City:         addr.City,
		State:        addr.State,
		ZipCode:      addr.ZipCode,
		Services:     StandardizeServices(raw.Services),
		Hours:        StandardizeHours(raw.Hours),
		Phone:        raw.Phone,
		Website:      raw.Website,
		Requirements: raw.Requirements,
		LastUpdated:  lastUpdated,
	}, nil
}
