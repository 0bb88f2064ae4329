package perf

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/pantrynav/pantrynav/internal/config"
)

// Tester runs the configured performance tests against one base URL.
type Tester struct {
	client   *http.Client
	baseURL  string
	scenario *Scenario
	db       QueryRunner
	logger   *slog.Logger
	now      func() time.Time
}

// NewTester creates a tester. db may be nil when database tests are off.
func NewTester(client *http.Client, baseURL string, scenario *Scenario, db QueryRunner, logger *slog.Logger) *Tester {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tester{
		client:   client,
		baseURL:  baseURL,
		scenario: scenario,
		db:       db,
		logger:   logger.With("component", "perf.tester"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// TestResults holds the raw results of a full run.
type TestResults struct {
	LoadTest     *Result    `json:"load_test,omitempty"`
	StressTest   []Result   `json:"stress_test,omitempty"`
	DatabaseTest []DBResult `json:"database_test,omitempty"`
}

// Summary condenses TestResults.
type Summary struct {
	LoadTest struct {
		AvgResponseTime   float64 `json:"avg_response_time"`
		RequestsPerSecond float64 `json:"requests_per_second"`
		FailureRate       float64 `json:"failure_rate"`
	} `json:"load_test"`
	StressTest struct {
		MaxUsers             int     `json:"max_users"`
		MaxRequestsPerSecond float64 `json:"max_requests_per_second"`
		MaxResponseTime      float64 `json:"max_response_time"`
	} `json:"stress_test"`
	DatabaseTest struct {
		AvgExecutionTime float64 `json:"avg_execution_time"`
	} `json:"database_test"`
}

// Report is written to PERFORMANCE_REPORT_FILE.
type Report struct {
	ID          string      `json:"id"`
	Timestamp   time.Time   `json:"timestamp"`
	TestResults TestResults `json:"test_results"`
	Summary     Summary     `json:"summary"`
}

// Summarize computes the report summary. The stress figures come from the
// last (heaviest) step.
func Summarize(r TestResults) Summary {
	var s Summary
	if l := r.LoadTest; l != nil {
		s.LoadTest.AvgResponseTime = l.AvgResponseTime
		s.LoadTest.RequestsPerSecond = l.RequestsPerSecond
		s.LoadTest.FailureRate = float64(l.Failures) / float64(max(l.Requests, 1))
	}
	if n := len(r.StressTest); n > 0 {
		last := r.StressTest[n-1]
		s.StressTest.MaxUsers = last.Users
		s.StressTest.MaxRequestsPerSecond = last.RequestsPerSecond
		s.StressTest.MaxResponseTime = last.MaxResponseTime
	}
	if n := len(r.DatabaseTest); n > 0 {
		total := 0.0
		for _, d := range r.DatabaseTest {
			total += d.ExecutionTime
		}
		s.DatabaseTest.AvgExecutionTime = total / float64(n)
	}
	return s
}

// RunFullTest runs every enabled test and writes the report to
// cfg.ReportFile.
func (t *Tester) RunFullTest(ctx context.Context, cfg *config.PerfConfig) (Report, error) {
	var res TestResults

	if cfg.LoadEnabled {
		r := t.RunLoad(ctx, LoadOptions{
			Users:       cfg.LoadUsers,
			SpawnRate:   cfg.LoadSpawnRate,
			Duration:    time.Duration(cfg.LoadDuration) * time.Second,
			MaxRequests: int64(cfg.LoadMaxRequests),
			TargetRPS:   cfg.LoadTargetRPS,
		})
		res.LoadTest = &r
	} else {
		t.logger.Info("load testing disabled")
	}

	if cfg.StressEnabled {
		res.StressTest = t.RunStress(ctx, StressOptions{
			MaxUsers:     cfg.StressMaxUsers,
			Step:         cfg.StressStep,
			StepDuration: time.Duration(cfg.StressDuration) * time.Second,
		})
	} else {
		t.logger.Info("stress testing disabled")
	}

	if cfg.DatabaseEnabled {
		sets, err := cfg.QuerySets()
		if err != nil {
			return Report{}, err
		}
		res.DatabaseTest, err = t.RunDatabase(ctx, sets, cfg.DatabaseConcurrency)
		if err != nil {
			t.logger.Error("error running database test", "error", err)
		}
	} else {
		t.logger.Info("database testing disabled")
	}

	return t.WriteReport(res, cfg.ReportFile)
}

// WriteReport summarizes res and writes it to path.
func (t *Tester) WriteReport(res TestResults, path string) (Report, error) {
	r := Report{
		ID:          ulid.Make().String(),
		Timestamp:   t.now(),
		TestResults: res,
		Summary:     Summarize(res),
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return r, fmt.Errorf("marshal report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return r, fmt.Errorf("write report %s: %w", path, err)
	}
	t.logger.Info("performance report generated", "report_file", path, "report_id", r.ID)
	return r, nil
}
