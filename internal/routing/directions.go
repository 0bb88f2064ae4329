package routing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/pantrynav/pantrynav/internal/cache"
	"github.com/pantrynav/pantrynav/internal/httpclient"
)

// Directions errors.
var (
	ErrInvalidMode     = errors.New("invalid transport mode")
	ErrMissingPoints   = errors.New("start and end are required")
	ErrNotConfigured   = errors.New("directions provider is not configured")
	ErrInvalidResponse = errors.New("invalid directions response")
)

// Mode is a transport mode served by a Mapbox profile.
type Mode struct {
	Name    string `json:"name"`
	Profile string `json:"profile"`
	Color   string `json:"color"`
}

// Modes lists the supported transport modes by key.
var Modes = map[string]Mode{
	"car":  {Name: "Car", Profile: "driving-traffic", Color: "#FF0000"},
	"bike": {Name: "Bike", Profile: "cycling", Color: "#2196F3"},
	"walk": {Name: "Walk", Profile: "walking", Color: "#4CAF50"},
}

// ModeNames returns the supported mode keys, sorted.
func ModeNames() []string {
	names := make([]string, 0, len(Modes))
	for k := range Modes {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Point is a WGS84 coordinate.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// DirectionsRequest asks for a route between two points.
type DirectionsRequest struct {
	Start         *Point `json:"start"`
	End           *Point `json:"end"`
	TransportMode string `json:"transportMode"`
	Language      string `json:"language,omitempty"`
}

// Instruction is one maneuver of a route.
type Instruction struct {
	Instruction string  `json:"instruction"`
	Distance    float64 `json:"distance"`
	Duration    float64 `json:"duration"`
}

// Geometry is a GeoJSON LineString.
type Geometry struct {
	Type        string       `json:"type"`
	Coordinates [][2]float64 `json:"coordinates"`
}

// Feature is a GeoJSON feature.
type Feature struct {
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties"`
	Geometry   Geometry       `json:"geometry"`
}

// Summary totals a route.
type Summary struct {
	Distance float64 `json:"distance"`
	Duration float64 `json:"duration"`
}

// Directions is a GeoJSON FeatureCollection with route details attached.
type Directions struct {
	Type         string        `json:"type"`
	Features     []Feature     `json:"features"`
	Summary      Summary       `json:"summary"`
	Color        string        `json:"color"`
	Mode         string        `json:"mode"`
	Instructions []Instruction `json:"instructions"`
}

// ValueCache stores computed directions. *cache.TypedCache satisfies it.
type ValueCache interface {
	Get(ctx context.Context, cacheType, key string, dest any) error
	Set(ctx context.Context, cacheType, key string, value any) error
}

// MapboxClient fetches directions from the Mapbox Directions API.
type MapboxClient struct {
	baseURL string
	token   string
	retrier *httpclient.Retrier
	cache   ValueCache
	logger  *slog.Logger
}

// NewMapboxClient creates a client. cache may be nil.
func NewMapboxClient(baseURL, token string, retrier *httpclient.Retrier, c ValueCache, logger *slog.Logger) *MapboxClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &MapboxClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		retrier: retrier,
		cache:   c,
		logger:  logger.With("component", "routing.mapbox"),
	}
}

// Validate checks a request and returns its mode.
func (req DirectionsRequest) Validate() (Mode, error) {
	if req.Start == nil || req.End == nil || req.TransportMode == "" {
		return Mode{}, ErrMissingPoints
	}
	mode, ok := Modes[req.TransportMode]
	if !ok {
		return Mode{}, fmt.Errorf("%w: %s", ErrInvalidMode, req.TransportMode)
	}
	return mode, nil
}

// DirectionsLanguage reduces a language preference to "es" or "en".
func DirectionsLanguage(lang string) string {
	if strings.EqualFold(strings.TrimSpace(lang), "es") {
		return "es"
	}
	return "en"
}

func cacheKey(req DirectionsRequest, lang string) string {
	return fmt.Sprintf("%s:%s:%.5f,%.5f;%.5f,%.5f",
		req.TransportMode, lang, req.Start.Lng, req.Start.Lat, req.End.Lng, req.End.Lat)
}

type mapboxResponse struct {
	Routes []struct {
		Distance float64 `json:"distance"`
		Duration float64 `json:"duration"`
		Geometry struct {
			Coordinates [][2]float64 `json:"coordinates"`
		} `json:"geometry"`
		Legs []struct {
			Distance float64 `json:"distance"`
			Duration float64 `json:"duration"`
			Steps    []struct {
				Distance float64 `json:"distance"`
				Duration float64 `json:"duration"`
				Maneuver struct {
					Instruction string `json:"instruction"`
				} `json:"maneuver"`
			} `json:"steps"`
		} `json:"legs"`
	} `json:"routes"`
}

// Directions returns a route for req. Results are cached under the
// route_optimization cache type; cache failures only cost a refetch.
func (c *MapboxClient) Directions(ctx context.Context, req DirectionsRequest) (*Directions, error) {
	mode, err := req.Validate()
	if err != nil {
		return nil, err
	}
	if c.token == "" {
		return nil, ErrNotConfigured
	}

	lang := DirectionsLanguage(req.Language)
	key := cacheKey(req, lang)

	if c.cache != nil {
		var cached Directions
		if err := c.cache.Get(ctx, cache.TypeRouteOptimization, key, &cached); err == nil {
			return &cached, nil
		} else if !errors.Is(err, cache.ErrCacheMiss) {
			c.logger.Warn("directions cache read failed", "error", err)
		}
	}

	params := url.Values{}
	params.Set("steps", "true")
	params.Set("language", lang)
	params.Set("access_token", c.token)
	params.Set("geometries", "geojson")
	params.Set("overview", "full")
	endpoint := fmt.Sprintf("%s/%s/%f,%f;%f,%f?%s",
		c.baseURL, mode.Profile,
		req.Start.Lng, req.Start.Lat, req.End.Lng, req.End.Lat,
		params.Encode(),
	)

	var raw mapboxResponse
	headers := http.Header{"Accept": {"application/geo+json"}}
	if err := c.retrier.GetJSON(ctx, endpoint, headers, &raw); err != nil {
		// The URL carries the access token.
		return nil, fmt.Errorf("mapbox directions failed: %s", strings.ReplaceAll(err.Error(), c.token, "[redacted]"))
	}

	out, err := buildDirections(raw, req.TransportMode, mode)
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		if err := c.cache.Set(ctx, cache.TypeRouteOptimization, key, out); err != nil {
			c.logger.Warn("directions cache write failed", "error", err)
		}
	}
	return out, nil
}

func buildDirections(raw mapboxResponse, modeKey string, mode Mode) (*Directions, error) {
	if len(raw.Routes) == 0 {
		return nil, fmt.Errorf("%w: missing routes", ErrInvalidResponse)
	}
	route := raw.Routes[0]
	if len(route.Legs) == 0 || len(route.Geometry.Coordinates) == 0 {
		return nil, fmt.Errorf("%w: missing route data", ErrInvalidResponse)
	}

	leg := route.Legs[0]
	instructions := make([]Instruction, 0, len(leg.Steps))
	for _, s := range leg.Steps {
		instructions = append(instructions, Instruction{
			Instruction: s.Maneuver.Instruction,
			Distance:    s.Distance,
			Duration:    s.Duration,
		})
	}

	distance := route.Distance
	if distance == 0 {
		distance = leg.Distance
	}
	duration := route.Duration
	if duration == 0 {
		duration = leg.Duration
	}

	return &Directions{
		Type: "FeatureCollection",
		Features: []Feature{{
			Type:       "Feature",
			Properties: map[string]any{},
			Geometry: Geometry{
				Type:        "LineString",
				Coordinates: route.Geometry.Coordinates,
			},
		}},
		Summary:      Summary{Distance: distance, Duration: duration},
		Color:        mode.Color,
		Mode:         modeKey,
		Instructions: instructions,
	}, nil
}
