// Package metrics provides lightweight hooks for instrumentation.
package metrics

import "time"

// Recorder captures metric events for the application.
// Implementations can expose these to Prometheus or keep them in memory.
type Recorder interface {
	// Typed cache
	IncCacheHit(cacheType string)
	IncCacheMiss(cacheType string)

	// HTTP API
	ObserveAPIRequest(endpoint string, status int, duration time.Duration)
	IncRateLimited(service string)

	// Realtime data collection
	SetDataCollectionSuccess(service, location string, success bool)
	ObserveProcessingTime(service string, duration time.Duration)

	// Errors by component and kind
	IncError(service, kind string)

	// Websocket hub
	AddWebsocketConnections(delta int)
}

// Snapshotter exposes a snapshot of current metrics.
type Snapshotter interface {
	Snapshot() Snapshot
}
