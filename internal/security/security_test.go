package security

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pantrynav/pantrynav/internal/config"
)

func TestParsers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		parse   func([]byte) (int, error)
		input   string
		want    int
		wantErr bool
	}{
		{"gosec issues", countGosec, `{"Issues":[{"rule_id":"G101"},{"rule_id":"G104"}],"Stats":{}}`, 2, false},
		{"gosec empty", countGosec, "", 0, false},
		{"gosec garbage", countGosec, "not json", 0, true},
		{"json lines", countJSONLines, "{\"a\":1}\n\n{\"b\":2}\n", 2, false},
		{"json lines invalid", countJSONLines, "{\"a\":1}\nnope\n", 0, true},
		{"json array", countJSONArray, `[{"RuleID":"aws"},{"RuleID":"gcp"},{}]`, 3, false},
		{"json array empty", countJSONArray, "  ", 0, false},
		{
			"govulncheck",
			countVulnFindings,
			`{"config":{}}{"osv":{"id":"GO-1"}}{"finding":{"osv":"GO-1"}}` + "\n" + `{"finding":{"osv":"GO-2"}}`,
			2, false,
		},
		{
			"nmap grepable",
			countOpenPorts,
			"# Nmap scan\nHost: 127.0.0.1 ()\tStatus: Up\nHost: 127.0.0.1 ()\tPorts: 22/open/tcp//ssh///, 8080/open/tcp//http///\n",
			2, false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := tt.parse([]byte(tt.input))
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}

type fakeRunner struct {
	outputs map[string]Output
	errs    map[string]error
	calls   []string
}

func (f *fakeRunner) Run(_ context.Context, dir, name string, args ...string) (Output, error) {
	f.calls = append(f.calls, dir+":"+name+" "+strings.Join(args, " "))
	if err, ok := f.errs[name]; ok {
		return Output{}, err
	}
	return f.outputs[name], nil
}

func testConfig() *config.ScanConfig {
	return &config.ScanConfig{
		SASTEnabled:       true,
		DependencyEnabled: true,
		SecretEnabled:     true,
		NetworkEnabled:    false,
		TargetHost:        "localhost",
		ScanDir:           "/src",
	}
}

func TestRunFullScan(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{
		outputs: map[string]Output{
			"gosec":       {Stdout: []byte(`{"Issues":[{}]}`), ExitCode: 1},
			"staticcheck": {Stdout: []byte(""), ExitCode: 0},
			"govulncheck": {Stdout: []byte("panic: bad"), ExitCode: 2},
			"gitleaks":    {Stdout: []byte("[]")},
		},
		errs: map[string]error{"trufflehog": ErrToolNotFound},
	}
	s := NewScanner(runner, testConfig(), nil)

	res := s.RunFullScan(context.Background())

	if len(res[FamilyNetwork]) != 0 {
		t.Errorf("network scan should be skipped, got %v", res[FamilyNetwork])
	}
	gosec := res[FamilySAST]["gosec"]
	if !gosec.Parsed || gosec.Issues != 1 || gosec.ExitCode != 1 {
		t.Errorf("gosec = %+v", gosec)
	}
	if gosec.Command[0] != "gosec" {
		t.Errorf("command = %v", gosec.Command)
	}
	vuln := res[FamilyDependency]["govulncheck"]
	if vuln.Parsed || vuln.Output != "panic: bad" || vuln.ExitCode != 2 {
		t.Errorf("govulncheck = %+v", vuln)
	}
	th := res[FamilySecret]["trufflehog"]
	if !strings.Contains(th.Error, "tool not found") {
		t.Errorf("trufflehog = %+v", th)
	}
	for _, c := range runner.calls {
		if !strings.HasPrefix(c, "/src:") {
			t.Errorf("tool ran outside scan dir: %s", c)
		}
	}

	report := s.BuildReport(res)
	want := map[string]Summary{
		FamilySAST:       {TotalIssues: 1, Status: StatusFail},
		FamilyDependency: {TotalIssues: 0, Status: StatusPass},
		FamilySecret:     {TotalIssues: 0, Status: StatusPass},
		FamilyNetwork:    {TotalIssues: 0, Status: StatusPass},
	}
	for k, v := range want {
		if report.Summary[k] != v {
			t.Errorf("summary[%s] = %+v, want %+v", k, report.Summary[k], v)
		}
	}
}

func TestNetworkScanTarget(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.NetworkEnabled = true
	cfg.TargetHost = "api.internal"
	runner := &fakeRunner{outputs: map[string]Output{"nmap": {Stdout: []byte("Ports: 443/open/tcp//https///\n")}}}

	res := NewScanner(runner, cfg, nil).RunScan(context.Background(), FamilyNetwork)
	if res["nmap"].Issues != 1 {
		t.Errorf("nmap = %+v", res["nmap"])
	}
	if len(runner.calls) != 1 || !strings.HasSuffix(runner.calls[0], " api.internal") {
		t.Errorf("calls = %v", runner.calls)
	}
}

func TestGenerateReport(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "security_report.json")
	s := NewScanner(&fakeRunner{}, testConfig(), nil)
	results := Results{FamilySAST: {"gosec": {Issues: 0, Parsed: true}}}

	r, err := s.GenerateReport(results, path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var got Report
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("report is not JSON: %v", err)
	}
	if got.ID != r.ID || got.ID == "" {
		t.Errorf("id = %q, want %q", got.ID, r.ID)
	}
	if got.Summary[FamilySAST].Status != StatusPass {
		t.Errorf("summary = %+v", got.Summary)
	}

	if _, err := s.GenerateReport(results, filepath.Join(t.TempDir(), "missing", "r.json")); err == nil {
		t.Error("expected write error")
	}
}

func TestExecRunner_MissingTool(t *testing.T) {
	t.Parallel()

	_, err := ExecRunner{}.Run(context.Background(), ".", "pantrynav-no-such-scanner")
	if !errors.Is(err, ErrToolNotFound) {
		t.Errorf("err = %v, want ErrToolNotFound", err)
	}
}
