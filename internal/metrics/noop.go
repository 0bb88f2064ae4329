package metrics

import "time"

// NoopRecorder implements Recorder with no-op methods.
type NoopRecorder struct{}

// NewNoop returns a Recorder that discards all metrics.
func NewNoop() Recorder {
	return &NoopRecorder{}
}

// IncCacheHit is a no-op.
func (n *NoopRecorder) IncCacheHit(cacheType string) {}

// IncCacheMiss is a no-op.
func (n *NoopRecorder) IncCacheMiss(cacheType string) {}

// ObserveAPIRequest is a no-op.
func (n *NoopRecorder) ObserveAPIRequest(endpoint string, status int, duration time.Duration) {}

// IncRateLimited is a no-op.
func (n *NoopRecorder) IncRateLimited(service string) {}

// SetDataCollectionSuccess is a no-op.
func (n *NoopRecorder) SetDataCollectionSuccess(service, location string, success bool) {}

// ObserveProcessingTime is a no-op.
func (n *NoopRecorder) ObserveProcessingTime(service string, duration time.Duration) {}

// IncError is a no-op.
func (n *NoopRecorder) IncError(service, kind string) {}

// AddWebsocketConnections is a no-op.
func (n *NoopRecorder) AddWebsocketConnections(delta int) {}
