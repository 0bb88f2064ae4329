// Package scaling resizes the managed instance group that runs the API from
// CPU, memory and request-rate metrics.
package scaling

import "github.com/pantrynav/pantrynav/internal/config"

// Metric names.
const (
	MetricCPU         = "cpu"
	MetricMemory      = "memory"
	MetricRequestRate = "request_rate"
)

// Group bounds the instance group size.
type Group struct {
	Enabled bool
	Name    string
	Min     int
	Max     int
	Desired int
}

// Policy holds the thresholds of one metric.
type Policy struct {
	Metric    string
	Enabled   bool
	Target    float64
	ScaleUp   float64
	ScaleDown float64
}

// Options configures a Scaler.
type Options struct {
	Group Group
	// Policies are evaluated in order.
	Policies          []Policy
	RequestRateMetric string
}

// OptionsFromConfig maps the environment configuration to Options.
func OptionsFromConfig(cfg *config.ScalerConfig) Options {
	return Options{
		Group: Group{
			Enabled: cfg.GroupEnabled,
			Name:    cfg.GroupName,
			Min:     cfg.MinSize,
			Max:     cfg.MaxSize,
			Desired: cfg.DesiredSize,
		},
		Policies: []Policy{
			{MetricCPU, cfg.CPUEnabled, cfg.CPUTarget, cfg.CPUScaleUp, cfg.CPUScaleDown},
			{MetricMemory, cfg.MemoryEnabled, cfg.MemoryTarget, cfg.MemoryScaleUp, cfg.MemoryScaleDown},
			{MetricRequestRate, cfg.RequestRateEnabled, cfg.RequestRateTarget, cfg.RequestRateScaleUp, cfg.RequestRateScaleDown},
		},
		RequestRateMetric: cfg.RequestRateMetric,
	}
}

// Decide returns the instance count p asks for given value, and whether a
// step was taken. A step never leaves the group bounds; a current count that
// is already out of bounds is not corrected on its own.
func Decide(p Policy, g Group, value float64, current int) (int, bool) {
	switch {
	case value > p.ScaleUp && current < g.Max:
		return min(max(current+1, g.Min), g.Max), true
	case value < p.ScaleDown && current > g.Min:
		return max(min(current-1, g.Max), g.Min), true
	}
	return current, false
}
