package scaling

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	compute "google.golang.org/api/compute/v1"
	"google.golang.org/api/googleapi"
	monitoring "google.golang.org/api/monitoring/v3"
	"google.golang.org/api/option"
)

// Cloud Monitoring metric types read for the built-in policies.
const (
	CPUMetricType    = "compute.googleapis.com/instance/cpu/utilization"
	MemoryMetricType = "agent.googleapis.com/memory/percent_used"
)

// AutoscalerSpec is the managed autoscaler installed on the group.
type AutoscalerSpec struct {
	Min               int
	Max               int
	CPUTarget         float64
	RequestRateMetric string
	RequestRateTarget float64
}

// InstanceGroup is the resizable group of API instances.
type InstanceGroup interface {
	Size(ctx context.Context) (int, error)
	Resize(ctx context.Context, size int) error
	SetAutoscaler(ctx context.Context, spec AutoscalerSpec) error
}

// MetricsSource reads the latest aligned value of a metric type.
type MetricsSource interface {
	Latest(ctx context.Context, metricType, filter string, window time.Duration) (float64, error)
}

func clientOptions(credentialsFile string) []option.ClientOption {
	if credentialsFile == "" {
		return nil
	}
	return []option.ClientOption{option.WithCredentialsFile(credentialsFile)}
}

// ComputeGroup is a zonal managed instance group.
type ComputeGroup struct {
	svc     *compute.Service
	project string
	zone    string
	name    string
}

// NewComputeGroup creates the Compute Engine client for group name.
func NewComputeGroup(ctx context.Context, project, zone, name, credentialsFile string) (*ComputeGroup, error) {
	if project == "" || name == "" {
		return nil, errors.New("GCP_PROJECT_ID and INSTANCE_GROUP_NAME are required")
	}
	svc, err := compute.NewService(ctx, clientOptions(credentialsFile)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create compute client: %w", err)
	}
	return &ComputeGroup{svc: svc, project: project, zone: zone, name: name}, nil
}

func (g *ComputeGroup) Size(ctx context.Context) (int, error) {
	igm, err := g.svc.InstanceGroupManagers.Get(g.project, g.zone, g.name).Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("failed to read instance group %s: %w", g.name, err)
	}
	return int(igm.TargetSize), nil
}

func (g *ComputeGroup) Resize(ctx context.Context, size int) error {
	if _, err := g.svc.InstanceGroupManagers.Resize(g.project, g.zone, g.name, int64(size)).Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to resize instance group %s to %d: %w", g.name, size, err)
	}
	return nil
}

// SetAutoscaler creates the group's autoscaler or updates it when it exists.
func (g *ComputeGroup) SetAutoscaler(ctx context.Context, spec AutoscalerSpec) error {
	igm, err := g.svc.InstanceGroupManagers.Get(g.project, g.zone, g.name).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to read instance group %s: %w", g.name, err)
	}

	policy := &compute.AutoscalingPolicy{
		MinNumReplicas: int64(spec.Min),
		MaxNumReplicas: int64(spec.Max),
		CpuUtilization: &compute.AutoscalingPolicyCpuUtilization{
			UtilizationTarget: spec.CPUTarget / 100,
		},
	}
	if spec.RequestRateMetric != "" {
		policy.CustomMetricUtilizations = []*compute.AutoscalingPolicyCustomMetricUtilization{{
			Metric:                spec.RequestRateMetric,
			UtilizationTarget:     spec.RequestRateTarget,
			UtilizationTargetType: "GAUGE",
		}}
	}
	as := &compute.Autoscaler{
		Name:              g.name + "-autoscaler",
		Target:            igm.SelfLink,
		AutoscalingPolicy: policy,
	}

	_, err = g.svc.Autoscalers.Insert(g.project, g.zone, as).Context(ctx).Do()
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusConflict {
		_, err = g.svc.Autoscalers.Update(g.project, g.zone, as).Autoscaler(as.Name).Context(ctx).Do()
	}
	if err != nil {
		return fmt.Errorf("failed to install autoscaler %s: %w", as.Name, err)
	}
	return nil
}

// CloudMonitoring reads time series of one project.
type CloudMonitoring struct {
	svc     *monitoring.Service
	project string
	now     func() time.Time
}

// NewCloudMonitoring creates the Cloud Monitoring client.
func NewCloudMonitoring(ctx context.Context, project, credentialsFile string) (*CloudMonitoring, error) {
	svc, err := monitoring.NewService(ctx, clientOptions(credentialsFile)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create monitoring client: %w", err)
	}
	return &CloudMonitoring{svc: svc, project: project, now: time.Now}, nil
}

// Latest returns the mean of metricType over the window, averaged across
// series. A window with no points yields 0.
func (m *CloudMonitoring) Latest(ctx context.Context, metricType, filter string, window time.Duration) (float64, error) {
	end := m.now().UTC()
	start := end.Add(-window)

	f := fmt.Sprintf("metric.type = %q", metricType)
	if filter != "" {
		f += " AND " + filter
	}

	resp, err := m.svc.Projects.TimeSeries.List("projects/" + m.project).
		Filter(f).
		IntervalStartTime(start.Format(time.RFC3339)).
		IntervalEndTime(end.Format(time.RFC3339)).
		AggregationAlignmentPeriod(fmt.Sprintf("%ds", int(window.Seconds()))).
		AggregationPerSeriesAligner("ALIGN_MEAN").
		AggregationCrossSeriesReducer("REDUCE_MEAN").
		Context(ctx).
		Do()
	if err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", metricType, err)
	}

	for _, ts := range resp.TimeSeries {
		// Points are newest first.
		for _, p := range ts.Points {
			if p.Value == nil {
				continue
			}
			switch {
			case p.Value.DoubleValue != nil:
				return *p.Value.DoubleValue, nil
			case p.Value.Int64Value != nil:
				return float64(*p.Value.Int64Value), nil
			}
		}
	}
	return 0, nil
}
