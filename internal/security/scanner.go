package security

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/pantrynav/pantrynav/internal/config"
)

// Report statuses.
const (
	StatusPass = "PASS"
	StatusFail = "FAIL"
)

const maxOutput = 64 * 1024

// ToolResult is the outcome of one scanner.
type ToolResult struct {
	Command  []string `json:"command"`
	ExitCode int      `json:"exit_code"`
	Issues   int      `json:"issues"`
	Parsed   bool     `json:"parsed"`
	Output   string   `json:"output,omitempty"`
	Error    string   `json:"error,omitempty"`
}

// Results maps family to tool name to result.
type Results map[string]map[string]ToolResult

// Summary totals one family.
type Summary struct {
	TotalIssues int    `json:"total_issues"`
	Status      string `json:"status"`
}

// Report is the document written to the report file.
type Report struct {
	ID          string             `json:"id"`
	Timestamp   time.Time          `json:"timestamp"`
	ScanResults Results            `json:"scan_results"`
	Summary     map[string]Summary `json:"summary"`
}

// Scanner runs the enabled scan families.
type Scanner struct {
	runner  Runner
	tools   map[string][]Tool
	enabled map[string]bool
	dir     string
	target  string
	logger  *slog.Logger
	now     func() time.Time
}

// NewScanner creates a scanner from configuration.
func NewScanner(runner Runner, cfg *config.ScanConfig, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{
		runner: runner,
		tools:  Tools(),
		enabled: map[string]bool{
			FamilySAST:       cfg.SASTEnabled,
			FamilyDependency: cfg.DependencyEnabled,
			FamilySecret:     cfg.SecretEnabled,
			FamilyNetwork:    cfg.NetworkEnabled,
		},
		dir:    cfg.ScanDir,
		target: cfg.TargetHost,
		logger: logger.With("component", "security.scanner"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// RunScan runs every tool of family. A disabled family yields an empty map.
func (s *Scanner) RunScan(ctx context.Context, family string) map[string]ToolResult {
	results := map[string]ToolResult{}
	if !s.enabled[family] {
		s.logger.Info("scan disabled", "type", family)
		return results
	}

	for _, tool := range s.tools[family] {
		results[tool.Name] = s.runTool(ctx, family, tool)
	}
	return results
}

func (s *Scanner) runTool(ctx context.Context, family string, tool Tool) ToolResult {
	args := tool.Args(s.target)
	res := ToolResult{Command: append([]string{tool.Command}, args...)}

	out, err := s.runner.Run(ctx, s.dir, tool.Command, args...)
	if err != nil {
		s.logger.Error("error running scan", "type", family, "tool", tool.Name, "error", err)
		res.Error = err.Error()
		return res
	}
	res.ExitCode = out.ExitCode

	if tool.Parse != nil {
		n, perr := tool.Parse(out.Stdout)
		if perr == nil {
			res.Issues = n
			res.Parsed = true
		} else {
			s.logger.Warn("unparseable scanner output", "tool", tool.Name, "error", perr)
		}
	}
	if !res.Parsed {
		res.Output = truncate(string(out.Stdout) + string(out.Stderr))
	}

	s.logger.Info("scan completed", "type", family, "tool", tool.Name, "issues_found", res.Issues, "exit_code", res.ExitCode)
	return res
}

func truncate(s string) string {
	if len(s) <= maxOutput {
		return s
	}
	return s[:maxOutput] + "\n[truncated]"
}

// RunFullScan runs all families in order.
func (s *Scanner) RunFullScan(ctx context.Context) Results {
	out := make(Results, len(Families))
	for _, f := range Families {
		out[f] = s.RunScan(ctx, f)
	}
	return out
}

// BuildReport summarizes results. A family passes when no tool reported an
// issue.
func (s *Scanner) BuildReport(results Results) Report {
	r := Report{
		ID:          ulid.Make().String(),
		Timestamp:   s.now(),
		ScanResults: results,
		Summary:     make(map[string]Summary, len(results)),
	}
	for family, tools := range results {
		total := 0
		for _, t := range tools {
			total += t.Issues
		}
		status := StatusPass
		if total > 0 {
			status = StatusFail
		}
		r.Summary[family] = Summary{TotalIssues: total, Status: status}
	}
	return r
}

// GenerateReport writes the report for results to path.
func (s *Scanner) GenerateReport(results Results, path string) (Report, error) {
	r := s.BuildReport(results)
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return r, fmt.Errorf("marshal report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return r, fmt.Errorf("write report %s: %w", path, err)
	}
	s.logger.Info("security report generated", "report_file", path, "report_id", r.ID)
	return r, nil
}
