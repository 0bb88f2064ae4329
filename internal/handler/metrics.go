package handler

import (
	"net/http"

	"github.com/pantrynav/pantrynav/internal/metrics"
)

// MetricsHandler serves /metrics from a Prometheus registry handler. Without
// one it falls back to a JSON snapshot of an in-memory recorder.
type MetricsHandler struct {
	exposer     http.Handler
	snapshotter metrics.Snapshotter
}

// NewMetricsHandler accepts nil for either argument.
func NewMetricsHandler(exposer http.Handler, snapshotter metrics.Snapshotter) *MetricsHandler {
	return &MetricsHandler{exposer: exposer, snapshotter: snapshotter}
}

// Metrics handles GET /metrics.
func (h *MetricsHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	switch {
	case h.exposer != nil:
		h.exposer.ServeHTTP(w, r)
	case h.snapshotter != nil:
		writeJSON(w, http.StatusOK, h.snapshotter.Snapshot())
	default:
		writeError(w, http.StatusServiceUnavailable, "METRICS_UNAVAILABLE", "metrics are not configured")
	}
}
