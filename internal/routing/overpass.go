package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/pantrynav/pantrynav/internal/geo"
	"github.com/pantrynav/pantrynav/internal/httpclient"
)

// BBox is a south, west, north, east bounding box in degrees.
type BBox struct {
	South, West, North, East float64
}

// ParseBBox parses "south,west,north,east".
func ParseBBox(raw string) (BBox, error) {
	parts := strings.Split(raw, ",")
	if len(parts) != 4 {
		return BBox{}, fmt.Errorf("bounding box %q: want south,west,north,east", raw)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return BBox{}, fmt.Errorf("bounding box %q: %w", raw, err)
		}
		v[i] = f
	}
	b := BBox{South: v[0], West: v[1], North: v[2], East: v[3]}
	if b.South >= b.North || b.West >= b.East {
		return BBox{}, fmt.Errorf("bounding box %q is empty", raw)
	}
	return b, nil
}

// drivable highway classes and their default speed in km/h.
var defaultSpeeds = map[string]float64{
	"motorway":       100,
	"motorway_link":  60,
	"trunk":          80,
	"trunk_link":     50,
	"primary":        65,
	"primary_link":   45,
	"secondary":      55,
	"secondary_link": 40,
	"tertiary":       50,
	"tertiary_link":  35,
	"unclassified":   40,
	"residential":    40,
	"living_street":  15,
	"service":        20,
}

const fallbackSpeed = 40.0

// Query returns the Overpass QL query for drivable ways inside b.
func Query(b BBox) string {
	classes := make([]string, 0, len(defaultSpeeds))
	for c := range defaultSpeeds {
		classes = append(classes, c)
	}
	sort.Strings(classes)
	return fmt.Sprintf(
		`[out:json][timeout:120];way["highway"~"^(%s)$"](%g,%g,%g,%g);(._;>;);out body;`,
		strings.Join(classes, "|"), b.South, b.West, b.North, b.East,
	)
}

type overpassResponse struct {
	Elements []overpassElement `json:"elements"`
}

type overpassElement struct {
	Type  string            `json:"type"`
	ID    int64             `json:"id"`
	Lat   float64           `json:"lat"`
	Lon   float64           `json:"lon"`
	Nodes []int64           `json:"nodes"`
	Tags  map[string]string `json:"tags"`
}

// ParseOverpass builds a graph from an Overpass JSON document. Ways without a
// highway tag are ignored; two-way streets produce an edge in each direction.
func ParseOverpass(r io.Reader) (*Graph, error) {
	var doc overpassResponse
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode overpass response: %w", err)
	}

	coords := make(map[int64]Node)
	for _, el := range doc.Elements {
		if el.Type == "node" {
			coords[el.ID] = Node{ID: el.ID, Lat: el.Lat, Lon: el.Lon}
		}
	}

	used := make(map[int64]struct{})
	var edges []Edge
	for _, el := range doc.Elements {
		if el.Type != "way" || el.Tags["highway"] == "" {
			continue
		}
		kph := WaySpeed(el.Tags)
		forward, backward := wayDirections(el.Tags["oneway"])

		for i := 1; i < len(el.Nodes); i++ {
			a, okA := coords[el.Nodes[i-1]]
			b, okB := coords[el.Nodes[i]]
			if !okA || !okB {
				continue
			}
			length := geo.Haversine(a.Lat, a.Lon, b.Lat, b.Lon)
			travel := length / (kph * 1000 / 3600)
			if forward {
				edges = append(edges, Edge{From: a.ID, To: b.ID, Length: length, TravelTime: travel})
			}
			if backward {
				edges = append(edges, Edge{From: b.ID, To: a.ID, Length: length, TravelTime: travel})
			}
			used[a.ID] = struct{}{}
			used[b.ID] = struct{}{}
		}
	}

	nodes := make([]Node, 0, len(used))
	for id := range used {
		nodes = append(nodes, coords[id])
	}
	return NewGraph(nodes, edges), nil
}

func wayDirections(oneway string) (forward, backward bool) {
	switch strings.ToLower(oneway) {
	case "yes", "true", "1":
		return true, false
	case "-1", "reverse":
		return false, true
	default:
		return true, true
	}
}

// WaySpeed returns the speed of a way in km/h from its maxspeed tag, falling
// back to the default of its highway class.
func WaySpeed(tags map[string]string) float64 {
	if v, ok := parseMaxspeed(tags["maxspeed"]); ok {
		return v
	}
	if v, ok := defaultSpeeds[tags["highway"]]; ok {
		return v
	}
	return fallbackSpeed
}

// parseMaxspeed understands "50", "50 km/h" and "25 mph". Lists such as
// "40;50" use the first value.
func parseMaxspeed(raw string) (float64, bool) {
	raw = strings.TrimSpace(strings.ToLower(raw))
	if raw == "" {
		return 0, false
	}
	if i := strings.IndexAny(raw, ";|"); i >= 0 {
		raw = raw[:i]
	}

	factor := 1.0
	switch {
	case strings.HasSuffix(raw, "mph"):
		factor = 1.609344
		raw = strings.TrimSuffix(raw, "mph")
	case strings.HasSuffix(raw, "km/h"):
		raw = strings.TrimSuffix(raw, "km/h")
	case strings.HasSuffix(raw, "kmh"):
		raw = strings.TrimSuffix(raw, "kmh")
	}

	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v * factor, true
}

// OverpassClient downloads street data.
type OverpassClient struct {
	url     string
	retrier *httpclient.Retrier
	logger  *slog.Logger
}

// NewOverpassClient creates a client for the interpreter endpoint at apiURL.
func NewOverpassClient(apiURL string, retrier *httpclient.Retrier, logger *slog.Logger) *OverpassClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &OverpassClient{
		url:     apiURL,
		retrier: retrier,
		logger:  logger.With("component", "routing.overpass"),
	}
}

// FetchGraph downloads the drivable street network inside b.
func (c *OverpassClient) FetchGraph(ctx context.Context, b BBox) (*Graph, error) {
	form := url.Values{"data": {Query(b)}}.Encode()

	resp, err := c.retrier.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, strings.NewReader(form))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
	if err != nil {
		return nil, fmt.Errorf("overpass request failed: %w", err)
	}
	defer resp.Body.Close()

	g, err := ParseOverpass(resp.Body)
	if err != nil {
		return nil, err
	}
	c.logger.Info("street graph downloaded", "nodes", g.NodeCount(), "edges", g.EdgeCount())
	return g, nil
}
