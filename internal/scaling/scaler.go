package scaling

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Metrics are the latest observed values: CPU and memory in percent, request
// rate in requests per second.
type Metrics map[string]float64

// Result is the outcome of one scaling pass.
type Result struct {
	Metrics          Metrics         `json:"metrics"`
	Decisions        map[string]bool `json:"decisions"`
	CurrentInstances int             `json:"current_instances"`
}

// Scaler applies the threshold policies to the instance group.
type Scaler struct {
	group  InstanceGroup
	source MetricsSource
	opts   Options
	window time.Duration
	logger *slog.Logger
}

// NewScaler creates a scaler. window is the metrics look-back, 5m if zero.
func NewScaler(group InstanceGroup, source MetricsSource, opts Options, window time.Duration, logger *slog.Logger) *Scaler {
	if logger == nil {
		logger = slog.Default()
	}
	if window <= 0 {
		window = 5 * time.Minute
	}
	return &Scaler{
		group:  group,
		source: source,
		opts:   opts,
		window: window,
		logger: logger.With("component", "scaling.scaler"),
	}
}

// CurrentMetrics reads every metric. Unreadable metrics are logged and
// reported as 0.
func (s *Scaler) CurrentMetrics(ctx context.Context) Metrics {
	queries := []struct {
		name       string
		metricType string
		filter     string
		scale      float64
	}{
		{MetricCPU, CPUMetricType, `resource.type = "gce_instance"`, 100},
		{MetricMemory, MemoryMetricType, `metric.label.state = "used"`, 1},
		{MetricRequestRate, s.opts.RequestRateMetric, "", 1},
	}

	out := Metrics{}
	for _, q := range queries {
		if q.metricType == "" {
			out[q.name] = 0
			continue
		}
		v, err := s.source.Latest(ctx, q.metricType, q.filter, s.window)
		if err != nil {
			s.logger.Error("error getting metric", "metric", q.name, "error", err)
			v = 0
		}
		out[q.name] = v * q.scale
	}
	s.logger.Info("metrics retrieved", "cpu", out[MetricCPU], "memory", out[MetricMemory], "request_rate", out[MetricRequestRate])
	return out
}

// InstanceCount returns the group's target size.
func (s *Scaler) InstanceCount(ctx context.Context) (int, error) {
	n, err := s.group.Size(ctx)
	if err != nil {
		return 0, fmt.Errorf("get instance count: %w", err)
	}
	return n, nil
}

// ScaleGroup resizes the group. It returns false when group scaling is
// disabled or the resize fails.
func (s *Scaler) ScaleGroup(ctx context.Context, size int) bool {
	if !s.opts.Group.Enabled {
		s.logger.Info("group scaling disabled")
		return false
	}
	if err := s.group.Resize(ctx, size); err != nil {
		s.logger.Error("error scaling group", "size", size, "error", err)
		return false
	}
	s.logger.Info("group scaled", "desired_capacity", size)
	return true
}

// ScaleOn applies p to value and reports whether the group was resized.
func (s *Scaler) ScaleOn(ctx context.Context, p Policy, value float64) bool {
	if !p.Enabled {
		s.logger.Info("metric scaling disabled", "metric", p.Metric)
		return false
	}
	current, err := s.InstanceCount(ctx)
	if err != nil {
		s.logger.Error("skipping scaling decision", "metric", p.Metric, "error", err)
		return false
	}
	next, changed := Decide(p, s.opts.Group, value, current)
	if !changed {
		return false
	}
	s.logger.Info("scaling decision", "metric", p.Metric, "value", value, "from", current, "to", next)
	return s.ScaleGroup(ctx, next)
}

// RunScalingDecision reads the metrics and applies each policy in order.
func (s *Scaler) RunScalingDecision(ctx context.Context) Result {
	m := s.CurrentMetrics(ctx)
	decisions := make(map[string]bool, len(s.opts.Policies))
	for _, p := range s.opts.Policies {
		decisions[p.Metric] = s.ScaleOn(ctx, p, m[p.Metric])
	}
	res := Result{Metrics: m, Decisions: decisions}
	if n, err := s.InstanceCount(ctx); err != nil {
		s.logger.Error("error getting instance count", "error", err)
	} else {
		res.CurrentInstances = n
	}
	s.logger.Info("scaling decisions made", "decisions", decisions, "current_instances", res.CurrentInstances)
	return res
}

// CreateScalingPolicies installs a managed autoscaler tracking the CPU target
// and the request-rate metric target.
func (s *Scaler) CreateScalingPolicies(ctx context.Context) error {
	spec := AutoscalerSpec{
		Min:               s.opts.Group.Min,
		Max:               s.opts.Group.Max,
		RequestRateMetric: s.opts.RequestRateMetric,
	}
	for _, p := range s.opts.Policies {
		switch p.Metric {
		case MetricCPU:
			spec.CPUTarget = p.Target
		case MetricRequestRate:
			spec.RequestRateTarget = p.Target
		}
	}
	if err := s.group.SetAutoscaler(ctx, spec); err != nil {
		s.logger.Error("error creating scaling policies", "error", err)
		return err
	}
	s.logger.Info("scaling policies created", "cpu_target", spec.CPUTarget, "request_rate_target", spec.RequestRateTarget)
	return nil
}
