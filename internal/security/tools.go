package security

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strings"
)

// Scan families.
const (
	FamilySAST       = "sast"
	FamilyDependency = "dependency_check"
	FamilySecret     = "secret_scan"
	FamilyNetwork    = "network_scan"
)

// Families lists the scan families in the order they run.
var Families = []string{FamilySAST, FamilyDependency, FamilySecret, FamilyNetwork}

// Tool is one scanner invocation. Parse counts findings in stdout; tools
// without a parser only record their output and exit code.
type Tool struct {
	Name    string
	Command string
	Args    func(target string) []string
	Parse   func(stdout []byte) (int, error)
}

// Tools returns the scanners of each family.
func Tools() map[string][]Tool {
	return map[string][]Tool{
		FamilySAST: {
			{
				Name: "gosec", Command: "gosec",
				Args:  fixedArgs("-fmt=json", "-quiet", "./..."),
				Parse: countGosec,
			},
			{
				Name: "staticcheck", Command: "staticcheck",
				Args:  fixedArgs("-f", "json", "./..."),
				Parse: countJSONLines,
			},
		},
		FamilyDependency: {
			{
				Name: "govulncheck", Command: "govulncheck",
				Args:  fixedArgs("-json", "./..."),
				Parse: countVulnFindings,
			},
		},
		FamilySecret: {
			{
				Name: "trufflehog", Command: "trufflehog",
				Args:  fixedArgs("filesystem", "--json", "--no-update", "."),
				Parse: countJSONLines,
			},
			{
				Name: "gitleaks", Command: "gitleaks",
				Args:  fixedArgs("detect", "--source", ".", "--no-banner", "--report-format", "json", "--report-path", "/dev/stdout"),
				Parse: countJSONArray,
			},
		},
		FamilyNetwork: {
			{
				Name: "nmap", Command: "nmap",
				Args: func(target string) []string {
					return []string{"-sV", "--open", "-oG", "-", target}
				},
				Parse: countOpenPorts,
			},
		},
	}
}

func fixedArgs(args ...string) func(string) []string {
	return func(string) []string { return args }
}

func countGosec(stdout []byte) (int, error) {
	var report struct {
		Issues []json.RawMessage `json:"Issues"`
	}
	if len(bytes.TrimSpace(stdout)) == 0 {
		return 0, nil
	}
	if err := json.Unmarshal(stdout, &report); err != nil {
		return 0, err
	}
	return len(report.Issues), nil
}

// countJSONLines counts newline-delimited JSON objects.
func countJSONLines(stdout []byte) (int, error) {
	n := 0
	sc := bufio.NewScanner(bytes.NewReader(stdout))
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		if !json.Valid(line) {
			return 0, errors.New("invalid JSON line")
		}
		n++
	}
	return n, sc.Err()
}

func countJSONArray(stdout []byte) (int, error) {
	if len(bytes.TrimSpace(stdout)) == 0 {
		return 0, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(stdout, &items); err != nil {
		return 0, err
	}
	return len(items), nil
}

// countVulnFindings counts "finding" messages in govulncheck's JSON stream.
func countVulnFindings(stdout []byte) (int, error) {
	dec := json.NewDecoder(bytes.NewReader(stdout))
	n := 0
	for {
		var msg map[string]json.RawMessage
		err := dec.Decode(&msg)
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			return 0, err
		}
		if _, ok := msg["finding"]; ok {
			n++
		}
	}
}

// countOpenPorts counts open ports in nmap grepable output.
func countOpenPorts(stdout []byte) (int, error) {
	n := 0
	for _, line := range strings.Split(string(stdout), "\n") {
		_, ports, ok := strings.Cut(line, "Ports: ")
		if !ok {
			continue
		}
		n += strings.Count(ports, "/open/")
	}
	return n, nil
}
