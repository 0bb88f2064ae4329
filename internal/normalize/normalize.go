// Package normalize standardizes raw provider records: addresses through a
// geocoder, opening hours into a weekly table, and services into categories.
package normalize

import (
	"context"
	"errors"
	"strings"

	"github.com/pantrynav/pantrynav/internal/geo"
	"github.com/pantrynav/pantrynav/internal/model"
)

// Defaults applied when geocoding yields no city or state.
const (
	DefaultCity  = "Grand Rapids"
	DefaultState = "MI"
)

// Address is a standardized address.
type Address struct {
	Address   string   `json:"address"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	City      string   `json:"city"`
	State     string   `json:"state"`
	ZipCode   string   `json:"zip_code"`
}

// StandardizeAddress geocodes raw. On a miss or an error it returns raw with
// no coordinates, the default city and state, and an empty zip. The error is
// returned for logging only; the address is always usable.
func StandardizeAddress(ctx context.Context, geocoder geo.Geocoder, raw string) (Address, error) {
	fallback := Address{
		Address: raw,
		City:    DefaultCity,
		State:   DefaultState,
	}

	if geocoder == nil {
		return fallback, nil
	}

	place, err := geocoder.Geocode(ctx, raw)
	if err != nil {
		if errors.Is(err, geo.ErrNotFound) {
			return fallback, nil
		}
		return fallback, err
	}

	lat, lng := place.Latitude, place.Longitude
	out := Address{
		Address:   place.Address,
		Latitude:  &lat,
		Longitude: &lng,
		City:      place.City,
		State:     place.State,
		ZipCode:   place.Postcode,
	}
	if out.Address == "" {
		out.Address = raw
	}
	if out.City == "" {
		out.City = DefaultCity
	}
	if out.State == "" {
		out.State = DefaultState
	}
	return out, nil
}

// StandardizeHours spreads a free-form hours string over every weekday.
func StandardizeHours(raw string) model.WeeklyHours {
	hours := make(model.WeeklyHours, len(model.Weekdays))
	for _, d := range model.Weekdays {
		hours[d] = ""
	}

	if raw == "" {
		return hours
	}

	lower := strings.ToLower(raw)
	switch {
	case strings.Contains(lower, "24 hours"):
		for _, d := range model.Weekdays {
			hours[d] = "24 hours"
		}
	case strings.Contains(lower, "closed"):
		// every day stays empty
	default:
		for _, d := range model.Weekdays {
			hours[d] = raw
		}
	}

	return hours
}

// serviceKeywords maps each standard category to the phrases that select it.
// Order follows model.StandardCategories.
var serviceKeywords = [][]string{
	{"food pantry", "food bank", "food distribution"},
	{"shelter", "housing assistance", "rental assistance"},
	{"medical", "healthcare", "clinic"},
	{"job assistance", "employment services", "career center"},
	{"education", "training", "tutoring"},
	{"legal aid", "legal assistance", "attorney"},
	{"financial assistance", "cash assistance", "food stamps"},
}

// StandardizeServices maps services onto categories. A service may select
// several categories; one that selects none is kept verbatim. The result
// holds each value once, in first-seen order.
func StandardizeServices(services []string) []string {
	seen := make(map[string]struct{}, len(services))
	out := make([]string, 0, len(services))

	add := func(v string) {
		if _, ok := seen[v]; ok {
			return
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}

	for _, service := range services {
		lower := strings.ToLower(service)
		matched := false
		for i, keywords := range serviceKeywords {
			for _, kw := range keywords {
				if strings.Contains(lower, kw) {
					add(model.StandardCategories[i])
					matched = true
					break
				}
			}
		}
		if !matched {
			add(service)
		}
	}

	return out
}
