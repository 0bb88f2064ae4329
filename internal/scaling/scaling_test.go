package scaling

import (
	"context"
	"errors"
	"testing"
	"time"
)

var testGroup = Group{Enabled: true, Name: "api", Min: 2, Max: 10, Desired: 3}

var cpuPolicy = Policy{Metric: MetricCPU, Enabled: true, Target: 70, ScaleUp: 80, ScaleDown: 30}

func TestDecide(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		value       float64
		current     int
		want        int
		wantChanged bool
	}{
		{"scale up", 85, 3, 4, true},
		{"at max", 95, 10, 10, false},
		{"scale down", 20, 3, 2, true},
		{"at min", 10, 2, 2, false},
		{"in band", 50, 5, 5, false},
		{"on up threshold", 80, 5, 5, false},
		{"below min in band", 50, 1, 1, false},
		{"above max in band", 50, 12, 12, false},
		{"scale up from below min", 85, 0, 2, true},
		{"scale down from above max", 20, 12, 10, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, changed := Decide(cpuPolicy, testGroup, tt.value, tt.current)
			if got != tt.want || changed != tt.wantChanged {
				t.Errorf("Decide(%v, %d) = %d, %v; want %d, %v",
					tt.value, tt.current, got, changed, tt.want, tt.wantChanged)
			}
		})
	}
}

type fakeGroup struct {
	size    int
	resizes []int
	spec    *AutoscalerSpec
	sizeErr error
	setErr  error
}

func (g *fakeGroup) Size(context.Context) (int, error) { return g.size, g.sizeErr }

func (g *fakeGroup) Resize(_ context.Context, size int) error {
	g.resizes = append(g.resizes, size)
	g.size = size
	return nil
}

func (g *fakeGroup) SetAutoscaler(_ context.Context, spec AutoscalerSpec) error {
	g.spec = &spec
	return g.setErr
}

type fakeSource map[string]float64

func (f fakeSource) Latest(_ context.Context, metricType, _ string, _ time.Duration) (float64, error) {
	v, ok := f[metricType]
	if !ok {
		return 0, errors.New("no data")
	}
	return v, nil
}

func testOptions() Options {
	return Options{
		Group: testGroup,
		Policies: []Policy{
			cpuPolicy,
			{Metric: MetricMemory, Enabled: true, Target: 70, ScaleUp: 80, ScaleDown: 30},
			{Metric: MetricRequestRate, Enabled: true, Target: 100, ScaleUp: 150, ScaleDown: 50},
		},
		RequestRateMetric: "custom.googleapis.com/pantrynav/api_request_rate",
	}
}

func TestCurrentMetrics(t *testing.T) {
	t.Parallel()

	src := fakeSource{
		CPUMetricType:    0.42,
		MemoryMetricType: 55,
	}
	s := NewScaler(&fakeGroup{size: 3}, src, testOptions(), 0, nil)

	m := s.CurrentMetrics(context.Background())
	if m[MetricCPU] != 42 {
		t.Errorf("cpu = %v, want 42", m[MetricCPU])
	}
	if m[MetricMemory] != 55 {
		t.Errorf("memory = %v", m[MetricMemory])
	}
	if v, ok := m[MetricRequestRate]; !ok || v != 0 {
		t.Errorf("request_rate = %v, %v; want 0 on error", v, ok)
	}
}

func TestRunScalingDecision(t *testing.T) {
	t.Parallel()

	// cpu scales up 3 -> 4; memory is in band; request rate 100 is in band.
	src := fakeSource{
		CPUMetricType:    0.9,
		MemoryMetricType: 60,
		"custom.googleapis.com/pantrynav/api_request_rate": 100,
	}
	g := &fakeGroup{size: 3}
	s := NewScaler(g, src, testOptions(), time.Minute, nil)

	res := s.RunScalingDecision(context.Background())
	want := map[string]bool{MetricCPU: true, MetricMemory: false, MetricRequestRate: false}
	for k, v := range want {
		if res.Decisions[k] != v {
			t.Errorf("decision[%s] = %v, want %v", k, res.Decisions[k], v)
		}
	}
	if res.CurrentInstances != 4 {
		t.Errorf("current_instances = %d, want 4", res.CurrentInstances)
	}
	if len(g.resizes) != 1 || g.resizes[0] != 4 {
		t.Errorf("resizes = %v", g.resizes)
	}
}

func TestRunScalingDecision_RereadsCount(t *testing.T) {
	t.Parallel()

	// Every metric is high: each policy sees the size left by the previous one.
	src := fakeSource{
		CPUMetricType:    0.95,
		MemoryMetricType: 95,
		"custom.googleapis.com/pantrynav/api_request_rate": 500,
	}
	g := &fakeGroup{size: 8}
	res := NewScaler(g, src, testOptions(), 0, nil).RunScalingDecision(context.Background())

	if got := g.resizes; len(got) != 2 || got[0] != 9 || got[1] != 10 {
		t.Errorf("resizes = %v, want [9 10]", got)
	}
	if res.Decisions[MetricRequestRate] {
		t.Error("request rate should not scale past max")
	}
}

func TestScaleOn_SizeReadFails(t *testing.T) {
	t.Parallel()

	for _, value := range []float64{50, 95, 5} {
		g := &fakeGroup{size: 8, sizeErr: errors.New("compute unavailable")}
		if NewScaler(g, fakeSource{}, testOptions(), 0, nil).ScaleOn(context.Background(), cpuPolicy, value) {
			t.Errorf("ScaleOn(%v) = true with unreadable size", value)
		}
		if len(g.resizes) != 0 {
			t.Errorf("ScaleOn(%v) resized to %v with unreadable size", value, g.resizes)
		}
	}
}

func TestRunScalingDecision_SizeReadFails(t *testing.T) {
	t.Parallel()

	src := fakeSource{CPUMetricType: 0.5, MemoryMetricType: 50}
	g := &fakeGroup{size: 8, sizeErr: errors.New("compute unavailable")}
	res := NewScaler(g, src, testOptions(), 0, nil).RunScalingDecision(context.Background())

	for metric, scaled := range res.Decisions {
		if scaled {
			t.Errorf("decision[%s] = true", metric)
		}
	}
	if len(g.resizes) != 0 {
		t.Errorf("resizes = %v, want none", g.resizes)
	}
	if res.CurrentInstances != 0 {
		t.Errorf("current_instances = %d, want 0 when unknown", res.CurrentInstances)
	}
}

func TestScaleGroup_Disabled(t *testing.T) {
	t.Parallel()

	opts := testOptions()
	opts.Group.Enabled = false
	g := &fakeGroup{size: 3}
	s := NewScaler(g, fakeSource{}, opts, 0, nil)

	if s.ScaleGroup(context.Background(), 5) {
		t.Error("disabled group should not resize")
	}
	if len(g.resizes) != 0 {
		t.Errorf("resizes = %v", g.resizes)
	}
}

func TestScaleOn_DisabledPolicy(t *testing.T) {
	t.Parallel()

	g := &fakeGroup{size: 3}
	p := cpuPolicy
	p.Enabled = false
	if NewScaler(g, fakeSource{}, testOptions(), 0, nil).ScaleOn(context.Background(), p, 99) {
		t.Error("disabled policy should not scale")
	}
}

func TestCreateScalingPolicies(t *testing.T) {
	t.Parallel()

	g := &fakeGroup{}
	if err := NewScaler(g, fakeSource{}, testOptions(), 0, nil).CreateScalingPolicies(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := AutoscalerSpec{
		Min: 2, Max: 10, CPUTarget: 70,
		RequestRateMetric: "custom.googleapis.com/pantrynav/api_request_rate",
		RequestRateTarget: 100,
	}
	if g.spec == nil || *g.spec != want {
		t.Errorf("spec = %+v, want %+v", g.spec, want)
	}

	g.setErr = errors.New("denied")
	if err := NewScaler(g, fakeSource{}, testOptions(), 0, nil).CreateScalingPolicies(context.Background()); err == nil {
		t.Error("expected error")
	}
}
