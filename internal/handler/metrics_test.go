package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pantrynav/pantrynav/internal/metrics"
)

func TestMetricsHandler_InMemory(t *testing.T) {
	t.Parallel()

	rec := metrics.NewInMemory()
	rec.IncCacheHit("service_locations")
	rec.ObserveAPIRequest("/api/resources", http.StatusOK, 10*time.Millisecond)
	rec.AddWebsocketConnections(2)

	h := NewMetricsHandler(nil, rec)
	w := httptest.NewRecorder()
	h.Metrics(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	var snap metrics.Snapshot
	if err := json.NewDecoder(w.Body).Decode(&snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snap.CacheHits != 1 || snap.APIRequests != 1 || snap.WebsocketClients != 2 {
		t.Errorf("snapshot = %+v", snap)
	}
	if snap.RequestsByEndpoint["/api/resources"] != 1 {
		t.Errorf("RequestsByEndpoint = %v", snap.RequestsByEndpoint)
	}
}

func TestMetricsHandler_Prometheus(t *testing.T) {
	t.Parallel()

	rec := metrics.NewPrometheus()
	rec.IncRateLimited("api")

	h := NewMetricsHandler(rec.Handler(), nil)
	w := httptest.NewRecorder()
	h.Metrics(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), `pantrynav_rate_limited_total{service="api"} 1`) {
		t.Error("prometheus output missing rate limit counter")
	}
}

func TestMetricsHandler_Unavailable(t *testing.T) {
	t.Parallel()

	h := NewMetricsHandler(nil, nil)
	w := httptest.NewRecorder()
	h.Metrics(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}
