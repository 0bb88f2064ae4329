// Package perf drives load, stress and database performance tests against a
// running deployment and writes a JSON report.
package perf

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/pantrynav/pantrynav/internal/config"
)

// Endpoint is one weighted request of a scenario.
type Endpoint struct {
	Name   string         `yaml:"name"`
	Method string         `yaml:"method"`
	Path   string         `yaml:"path"`
	Body   map[string]any `yaml:"body"`
	Weight int            `yaml:"weight"`
	// ExpectStatus defaults to 200.
	ExpectStatus int `yaml:"expect_status"`
}

// Scenario is the set of endpoints virtual users pick from.
type Scenario struct {
	Endpoints []Endpoint `yaml:"endpoints"`
	total     int
}

// DefaultEndpoints mirror what a map visitor does: browse services, list
// resources and ask for directions.
func DefaultEndpoints() []Endpoint {
	return []Endpoint{
		{Name: "services", Method: http.MethodGet, Path: "/api/services?type=food_pantry", Weight: 3},
		{
			Name: "directions", Method: http.MethodPost, Path: "/api/directions", Weight: 2,
			Body: map[string]any{
				"start":         map[string]float64{"lat": 42.9634, "lng": -85.6681},
				"end":           map[string]float64{"lat": 42.9646, "lng": -85.6678},
				"transportMode": "walk",
			},
		},
		{Name: "resources", Method: http.MethodGet, Path: "/api/resources", Weight: 1},
	}
}

// LoadScenario reads a YAML scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}
	if err := s.normalize(); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", path, err)
	}
	return &s, nil
}

// ScenarioFromConfig loads PERF_SCENARIO_FILE when set. Otherwise it uses the
// default endpoints plus every API_TEST_ENDPOINTS entry as a GET of weight 1.
func ScenarioFromConfig(cfg *config.PerfConfig) (*Scenario, error) {
	if cfg.ScenarioFile != "" {
		return LoadScenario(cfg.ScenarioFile)
	}
	extra, err := cfg.EndpointList()
	if err != nil {
		return nil, err
	}
	eps := DefaultEndpoints()
	for _, e := range extra {
		eps = append(eps, Endpoint{Name: e.Name, Method: http.MethodGet, Path: e.Path, Weight: 1})
	}
	return NewScenario(eps)
}

// NewScenario validates endpoints and fills defaults.
func NewScenario(eps []Endpoint) (*Scenario, error) {
	s := &Scenario{Endpoints: eps}
	if err := s.normalize(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Scenario) normalize() error {
	if len(s.Endpoints) == 0 {
		return errors.New("no endpoints")
	}
	s.total = 0
	for i := range s.Endpoints {
		e := &s.Endpoints[i]
		if e.Path == "" || !strings.HasPrefix(e.Path, "/") {
			return fmt.Errorf("endpoint %d: path must start with /", i)
		}
		if e.Name == "" {
			e.Name = e.Path
		}
		e.Method = strings.ToUpper(e.Method)
		if e.Method == "" {
			e.Method = http.MethodGet
		}
		if e.Weight <= 0 {
			e.Weight = 1
		}
		if e.ExpectStatus == 0 {
			e.ExpectStatus = http.StatusOK
		}
		s.total += e.Weight
	}
	return nil
}

// Pick chooses an endpoint with probability proportional to its weight.
func (s *Scenario) Pick(r *rand.Rand) Endpoint {
	n := r.IntN(s.total)
	for _, e := range s.Endpoints {
		if n < e.Weight {
			return e
		}
		n -= e.Weight
	}
	return s.Endpoints[len(s.Endpoints)-1]
}
