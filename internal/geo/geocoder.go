// Package geo geocodes addresses through Nominatim and computes distances.
package geo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pantrynav/pantrynav/internal/config"
	"github.com/pantrynav/pantrynav/internal/httpclient"
)

// ErrNotFound is returned when an address has no match.
var ErrNotFound = errors.New("address not found")

// Place is a geocoding result.
type Place struct {
	Address   string
	Latitude  float64
	Longitude float64
	City      string
	State     string
	Postcode  string
}

// Geocoder resolves free-form addresses.
type Geocoder interface {
	Geocode(ctx context.Context, query string) (*Place, error)
}

// Nominatim is a Geocoder backed by the Nominatim search API. It spaces
// requests at least one second apart as the public instance requires.
type Nominatim struct {
	baseURL   string
	userAgent string
	retrier   *httpclient.Retrier
	logger    *slog.Logger

	mu       sync.Mutex
	last     time.Time
	interval time.Duration
}

// NewNominatim creates a geocoder from configuration.
func NewNominatim(cfg config.GeocoderConfig, logger *slog.Logger) *Nominatim {
	if logger == nil {
		logger = slog.Default()
	}
	return &Nominatim{
		baseURL:   strings.TrimRight(cfg.GeocoderURL, "/"),
		userAgent: cfg.GeocoderUserAgent,
		retrier:   httpclient.NewRetrier(httpclient.New(httpclient.Options{Timeout: cfg.GeocoderTimeout})),
		logger:    logger.With("component", "geo.nominatim"),
		interval:  time.Second,
	}
}

type nominatimResult struct {
	DisplayName string `json:"display_name"`
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	Address     struct {
		City     string `json:"city"`
		Town     string `json:"town"`
		Village  string `json:"village"`
		State    string `json:"state"`
		Postcode string `json:"postcode"`
	} `json:"address"`
}

// Geocode returns the best match for query. Returns ErrNotFound when there is none.
func (n *Nominatim) Geocode(ctx context.Context, query string) (*Place, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrNotFound
	}

	if err := n.wait(ctx); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "jsonv2")
	params.Set("addressdetails", "1")
	params.Set("limit", "1")

	var results []nominatimResult
	headers := http.Header{"User-Agent": {n.userAgent}}
	if err := n.retrier.GetJSON(ctx, n.baseURL+"/search?"+params.Encode(), headers, &results); err != nil {
		return nil, fmt.Errorf("geocode %q: %w", query, err)
	}

	if len(results) == 0 {
		n.logger.Debug("no geocoding match", "query", query)
		return nil, ErrNotFound
	}

	return results[0].place()
}

func (r nominatimResult) place() (*Place, error) {
	lat, err := strconv.ParseFloat(r.Lat, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid latitude %q: %w", r.Lat, err)
	}
	lon, err := strconv.ParseFloat(r.Lon, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid longitude %q: %w", r.Lon, err)
	}

	city := r.Address.City
	if city == "" {
		city = r.Address.Town
	}
	if city == "" {
		city = r.Address.Village
	}

	return &Place{
		Address:   r.DisplayName,
		Latitude:  lat,
		Longitude: lon,
		City:      city,
		State:     r.Address.State,
		Postcode:  r.Address.Postcode,
	}, nil
}

func (n *Nominatim) wait(ctx context.Context) error {
	n.mu.Lock()
	next := n.last.Add(n.interval)
	now := time.Now()
	if next.Before(now) {
		next = now
	}
	n.last = next
	n.mu.Unlock()

	d := time.Until(next)
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
