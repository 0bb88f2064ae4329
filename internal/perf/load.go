package perf

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"math/rand/v2"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// LoadOptions configures one load run.
type LoadOptions struct {
	Users int
	// SpawnRate is users started per second; 0 starts all at once.
	SpawnRate int
	Duration  time.Duration
	// MaxRequests stops the run early; 0 means no limit.
	MaxRequests int64
	// TargetRPS caps the aggregate request rate; 0 means unlimited.
	TargetRPS int
}

// Result aggregates a load run. Times are in milliseconds.
type Result struct {
	Users             int     `json:"users"`
	Requests          int64   `json:"requests"`
	Failures          int64   `json:"failures"`
	AvgResponseTime   float64 `json:"avg_response_time"`
	MinResponseTime   float64 `json:"min_response_time"`
	MaxResponseTime   float64 `json:"max_response_time"`
	RequestsPerSecond float64 `json:"requests_per_second"`
}

type stats struct {
	mu       sync.Mutex
	requests int64
	failures int64
	total    time.Duration
	min      time.Duration
	max      time.Duration
}

func (s *stats) record(d time.Duration, failed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests++
	if failed {
		s.failures++
	}
	s.total += d
	if s.min == 0 || d < s.min {
		s.min = d
	}
	if d > s.max {
		s.max = d
	}
}

func (s *stats) result(users int, elapsed time.Duration) Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := Result{Users: users, Requests: s.requests, Failures: s.failures}
	if s.requests > 0 {
		r.AvgResponseTime = ms(s.total) / float64(s.requests)
		r.MinResponseTime = ms(s.min)
		r.MaxResponseTime = ms(s.max)
	}
	if elapsed > 0 {
		r.RequestsPerSecond = math.Round(float64(s.requests)/elapsed.Seconds()*100) / 100
	}
	return r
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// RunLoad runs opts.Users virtual users against the scenario until the
// duration elapses, MaxRequests is reached or ctx is cancelled.
func (t *Tester) RunLoad(ctx context.Context, opts LoadOptions) Result {
	st := &stats{}
	if opts.Users <= 0 {
		return st.result(0, 0)
	}

	runCtx := ctx
	if opts.Duration > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, opts.Duration)
		defer cancel()
	}

	limit := rate.Inf
	burst := 1
	if opts.TargetRPS > 0 {
		limit = rate.Limit(opts.TargetRPS)
		burst = opts.TargetRPS
	}
	limiter := rate.NewLimiter(limit, burst)

	var issued atomic.Int64
	start := time.Now()
	g, gctx := errgroup.WithContext(runCtx)
	for i := 0; i < opts.Users; i++ {
		delay := time.Duration(0)
		if opts.SpawnRate > 0 {
			delay = time.Duration(i/opts.SpawnRate) * time.Second
		}
		seed := uint64(i) + 1
		g.Go(func() error {
			if delay > 0 {
				select {
				case <-gctx.Done():
					return nil
				case <-time.After(delay):
				}
			}
			rng := rand.New(rand.NewPCG(seed, uint64(start.UnixNano())))
			for {
				if opts.MaxRequests > 0 && issued.Add(1) > opts.MaxRequests {
					return nil
				}
				if err := limiter.Wait(gctx); err != nil {
					return nil
				}
				ep := t.scenario.Pick(rng)
				d, ok := t.do(gctx, ep)
				if gctx.Err() != nil {
					return nil
				}
				st.record(d, !ok)
			}
		})
	}
	_ = g.Wait()

	res := st.result(opts.Users, time.Since(start))
	t.logger.Info("load run completed",
		"users", res.Users,
		"requests", res.Requests,
		"failures", res.Failures,
		"rps", res.RequestsPerSecond,
	)
	return res
}

// do issues one request and reports its latency and whether it matched the
// expected status.
func (t *Tester) do(ctx context.Context, ep Endpoint) (time.Duration, bool) {
	var body io.Reader
	if ep.Body != nil {
		b, err := json.Marshal(ep.Body)
		if err != nil {
			return 0, false
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, ep.Method, strings.TrimRight(t.baseURL, "/")+ep.Path, body)
	if err != nil {
		return 0, false
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	started := time.Now()
	resp, err := t.client.Do(req)
	if err != nil {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			t.logger.Debug("request failed", "endpoint", ep.Name, "error", err)
		}
		return time.Since(started), false
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	elapsed := time.Since(started)

	return elapsed, resp.StatusCode == ep.ExpectStatus
}

// StressOptions steps the user count from 0 to MaxUsers.
type StressOptions struct {
	MaxUsers     int
	Step         int
	StepDuration time.Duration
}

// RunStress runs one load step per user count and returns every step.
func (t *Tester) RunStress(ctx context.Context, opts StressOptions) []Result {
	step := opts.Step
	if step <= 0 {
		step = max(opts.MaxUsers, 1)
	}
	var results []Result
	for users := 0; users <= opts.MaxUsers; users += step {
		if ctx.Err() != nil {
			break
		}
		results = append(results, t.RunLoad(ctx, LoadOptions{
			Users:     users,
			SpawnRate: step,
			Duration:  opts.StepDuration,
		}))
	}
	if len(results) > 0 {
		last := results[len(results)-1]
		t.logger.Info("stress test completed", "max_users", last.Users, "rps", last.RequestsPerSecond)
	}
	return results
}
