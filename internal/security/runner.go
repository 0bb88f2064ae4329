// Package security runs external static analysis, dependency, secret and
// network scanners and summarizes their findings in a JSON report.
package security

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

// ErrToolNotFound is returned when a scanner binary is not installed.
var ErrToolNotFound = errors.New("tool not found")

// ErrToolTimeout is returned when a scanner exceeds its timeout.
var ErrToolTimeout = errors.New("tool timed out")

// Output is what a finished process produced. Scanners commonly exit
// non-zero when they report findings, so ExitCode is data, not an error.
type Output struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// Runner executes a command in dir.
type Runner interface {
	Run(ctx context.Context, dir, name string, args ...string) (Output, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct {
	Timeout time.Duration
}

func (r ExecRunner) Run(ctx context.Context, dir, name string, args ...string) (Output, error) {
	if _, err := exec.LookPath(name); err != nil {
		return Output{}, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}

	timeout := r.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, name, args...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if errors.Is(cmdCtx.Err(), context.DeadlineExceeded) {
		return Output{}, fmt.Errorf("%w: %s after %s", ErrToolTimeout, name, timeout)
	}
	if ctx.Err() != nil {
		return Output{}, ctx.Err()
	}

	out := Output{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	var exitErr *exec.ExitError
	switch {
	case errors.As(err, &exitErr):
		out.ExitCode = exitErr.ExitCode()
	case err != nil:
		return Output{}, fmt.Errorf("failed to run %s: %w", name, err)
	}
	return out, nil
}
