package alert

import (
	"context"
	"crypto/rand"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/pantrynav/pantrynav/internal/metrics"
)

// DefaultInterval is the pause between checks.
const DefaultInterval = time.Minute

// Monitor periodically evaluates a metrics source and fans alerts out to
// its channels.
type Monitor struct {
	source     metrics.Snapshotter
	thresholds Thresholds
	channels   []Channel
	name       string
	interval   time.Duration
	logger     *slog.Logger
	now        func() time.Time

	mu      sync.Mutex
	last    *metrics.Snapshot
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewMonitor creates a monitor for the process called name ("api",
// "collector").
func NewMonitor(source metrics.Snapshotter, th Thresholds, channels []Channel, name string, interval time.Duration, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Monitor{
		source:     source,
		thresholds: th,
		channels:   channels,
		name:       name,
		interval:   interval,
		logger:     logger.With("component", "alert.monitor"),
		now:        time.Now,
	}
}

// CheckOnce evaluates activity since the previous check and triggers every
// resulting alert. The first call only records a baseline.
func (m *Monitor) CheckOnce(ctx context.Context) []Alert {
	cur := m.source.Snapshot()

	m.mu.Lock()
	prev := m.last
	m.last = &cur
	m.mu.Unlock()

	if prev == nil {
		return nil
	}

	alerts := Evaluate(*prev, cur, m.thresholds, m.now())
	for i := range alerts {
		alerts[i].ID = ulid.MustNew(ulid.Timestamp(alerts[i].FiredAt), rand.Reader).String()
		alerts[i].Source = m.name
		if err := m.Trigger(ctx, alerts[i]); err != nil {
			m.logger.Error("alert delivery failed", "alert_type", alerts[i].Type, "error", err)
		}
	}
	return alerts
}

// Trigger logs a and sends it to every channel. Channel errors are joined.
func (m *Monitor) Trigger(ctx context.Context, a Alert) error {
	m.logger.Warn("alert triggered",
		"alert_id", a.ID,
		"alert_type", a.Type,
		"message", a.Message,
		"value", a.Value,
		"threshold", a.Threshold,
	)

	var errs []error
	for _, ch := range m.channels {
		if err := ch.Send(ctx, a); err != nil {
			errs = append(errs, errors.New(ch.Name()+": "+err.Error()))
		}
	}
	return errors.Join(errs...)
}

// Run checks once per interval until ctx is cancelled or Shutdown is called.
func (m *Monitor) Run(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return errors.New("alert monitor already started")
	}
	m.started = true
	m.done = make(chan struct{})
	ctx, m.cancel = context.WithCancel(ctx)
	m.mu.Unlock()

	defer close(m.done)

	m.logger.Info("alert monitor started",
		"interval", m.interval,
		"channels", len(m.channels),
		"error_rate", m.thresholds.ErrorRate,
		"latency", m.thresholds.Latency,
		"data_collection_failure", m.thresholds.DataCollectionFailure,
	)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.CheckOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.CheckOnce(ctx)
		}
	}
}

// Shutdown stops Run and waits for it to return.
func (m *Monitor) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return nil
	}
	cancel, done := m.cancel, m.done
	m.mu.Unlock()

	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
