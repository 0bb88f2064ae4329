// Package routing computes shortest paths over a street graph built from
// OpenStreetMap data and proxies turn-by-turn directions from Mapbox.
package routing

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"

	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"

	"github.com/pantrynav/pantrynav/internal/geo"
)

// Routing errors.
var (
	ErrEmptyGraph = errors.New("street graph has no nodes")
	ErrNoRoute    = errors.New("no route between the given points")
)

// Node is a street intersection or shape point.
type Node struct {
	ID  int64   `json:"id"`
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Edge is a directed street segment.
type Edge struct {
	From int64 `json:"from"`
	To   int64 `json:"to"`
	// Length in meters.
	Length float64 `json:"length"`
	// TravelTime in seconds.
	TravelTime float64 `json:"travel_time"`
}

// Graph is a directed street graph weighted by travel time.
type Graph struct {
	nodes map[int64]Node
	edges map[[2]int64]Edge
	g     *simple.WeightedDirectedGraph
}

// NewGraph builds a graph. Self loops are dropped and parallel edges keep
// the fastest segment. Edges that reference unknown nodes are ignored.
func NewGraph(nodes []Node, edges []Edge) *Graph {
	g := &Graph{
		nodes: make(map[int64]Node, len(nodes)),
		edges: make(map[[2]int64]Edge, len(edges)),
		g:     simple.NewWeightedDirectedGraph(0, math.Inf(1)),
	}

	for _, n := range nodes {
		if _, ok := g.nodes[n.ID]; ok {
			continue
		}
		g.nodes[n.ID] = n
		g.g.AddNode(simple.Node(n.ID))
	}

	for _, e := range edges {
		if e.From == e.To {
			continue
		}
		if _, ok := g.nodes[e.From]; !ok {
			continue
		}
		if _, ok := g.nodes[e.To]; !ok {
			continue
		}
		key := [2]int64{e.From, e.To}
		if prev, ok := g.edges[key]; ok && prev.TravelTime <= e.TravelTime {
			continue
		}
		g.edges[key] = e
		g.g.SetWeightedEdge(g.g.NewWeightedEdge(simple.Node(e.From), simple.Node(e.To), e.TravelTime))
	}

	return g
}

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int {
	return len(g.nodes)
}

// EdgeCount returns the number of directed edges.
func (g *Graph) EdgeCount() int {
	return len(g.edges)
}

// Node returns a node by id.
func (g *Graph) Node(id int64) (Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// NearestNode returns the node closest to lat/lon by great-circle distance.
func (g *Graph) NearestNode(lat, lon float64) (Node, error) {
	if len(g.nodes) == 0 {
		return Node{}, ErrEmptyGraph
	}

	var (
		best     Node
		bestDist = math.Inf(1)
	)
	for _, n := range g.nodes {
		d := geo.Haversine(lat, lon, n.Lat, n.Lon)
		// Ties resolve to the lower id so results are stable.
		if d < bestDist || (d == bestDist && n.ID < best.ID) {
			best, bestDist = n, d
		}
	}
	return best, nil
}

// Path is a shortest path by travel time.
type Path struct {
	Nodes      []int64
	Length     float64
	TravelTime float64
}

// ShortestPath runs Dijkstra from one node to another over travel time.
func (g *Graph) ShortestPath(from, to int64) (*Path, error) {
	if _, ok := g.nodes[from]; !ok {
		return nil, fmt.Errorf("unknown node %d", from)
	}
	if _, ok := g.nodes[to]; !ok {
		return nil, fmt.Errorf("unknown node %d", to)
	}

	shortest := path.DijkstraFrom(simple.Node(from), g.g)
	nodes, weight := shortest.To(to)
	if len(nodes) == 0 || math.IsInf(weight, 1) {
		return nil, ErrNoRoute
	}

	p := &Path{
		Nodes:      make([]int64, len(nodes)),
		TravelTime: weight,
	}
	for i, n := range nodes {
		p.Nodes[i] = n.ID()
		if i > 0 {
			p.Length += g.edges[[2]int64{nodes[i-1].ID(), n.ID()}].Length
		}
	}
	return p, nil
}

type graphFile struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Save writes the graph as JSON, creating parent directories.
func (g *Graph) Save(file string) error {
	out := graphFile{
		Nodes: make([]Node, 0, len(g.nodes)),
		Edges: make([]Edge, 0, len(g.edges)),
	}
	for _, n := range g.nodes {
		out.Nodes = append(out.Nodes, n)
	}
	for _, e := range g.edges {
		out.Edges = append(out.Edges, e)
	}
	sort.Slice(out.Nodes, func(i, j int) bool { return out.Nodes[i].ID < out.Nodes[j].ID })
	sort.Slice(out.Edges, func(i, j int) bool {
		if out.Edges[i].From != out.Edges[j].From {
			return out.Edges[i].From < out.Edges[j].From
		}
		return out.Edges[i].To < out.Edges[j].To
	})

	data, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("failed to encode graph: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
		return fmt.Errorf("failed to create graph directory: %w", err)
	}
	if err := os.WriteFile(file, data, 0o644); err != nil {
		return fmt.Errorf("failed to write graph: %w", err)
	}
	return nil
}

// LoadGraph reads a graph written by Save.
func LoadGraph(file string) (*Graph, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read graph: %w", err)
	}
	var in graphFile
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("failed to decode graph: %w", err)
	}
	return NewGraph(in.Nodes, in.Edges), nil
}
