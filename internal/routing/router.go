package routing

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pantrynav/pantrynav/internal/geo"
)

// Route is a computed route between two addresses.
type Route struct {
	Nodes []int64 `json:"nodes"`
	// LengthM is the route length in meters.
	LengthM float64 `json:"length_m"`
	// TimeS is the travel time in seconds.
	TimeS float64 `json:"time_s"`
	// Coordinates are [lat, lon] pairs along the route.
	Coordinates [][2]float64 `json:"coordinates"`
}

// Router answers address-to-address route queries over a street graph.
type Router struct {
	graph    *Graph
	geocoder geo.Geocoder
	logger   *slog.Logger
}

// NewRouter creates a router.
func NewRouter(g *Graph, geocoder geo.Geocoder, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		graph:    g,
		geocoder: geocoder,
		logger:   logger.With("component", "routing.router"),
	}
}

// Route geocodes both addresses, snaps them to the nearest street nodes and
// returns the fastest path between them.
func (r *Router) Route(ctx context.Context, startAddr, endAddr string) (*Route, error) {
	start, err := r.geocoder.Geocode(ctx, startAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to geocode start address: %w", err)
	}
	end, err := r.geocoder.Geocode(ctx, endAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to geocode end address: %w", err)
	}
	return r.RouteCoords(start.Latitude, start.Longitude, end.Latitude, end.Longitude)
}

// RouteCoords is Route for known coordinates.
func (r *Router) RouteCoords(startLat, startLon, endLat, endLon float64) (*Route, error) {
	from, err := r.graph.NearestNode(startLat, startLon)
	if err != nil {
		return nil, err
	}
	to, err := r.graph.NearestNode(endLat, endLon)
	if err != nil {
		return nil, err
	}

	p, err := r.graph.ShortestPath(from.ID, to.ID)
	if err != nil {
		return nil, err
	}

	route := &Route{
		Nodes:       p.Nodes,
		LengthM:     p.Length,
		TimeS:       p.TravelTime,
		Coordinates: make([][2]float64, 0, len(p.Nodes)),
	}
	for _, id := range p.Nodes {
		n, _ := r.graph.Node(id)
		route.Coordinates = append(route.Coordinates, [2]float64{n.Lat, n.Lon})
	}

	r.logger.Debug("route computed",
		"from_node", from.ID,
		"to_node", to.ID,
		"length_m", route.LengthM,
		"time_s", route.TimeS,
	)
	return route, nil
}
