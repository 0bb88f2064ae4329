package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pantrynav/pantrynav/internal/model"
)

type fakeSnapshots struct {
	feeds map[string]json.RawMessage
}

func (f *fakeSnapshots) Snapshot(ctx context.Context, locationID string, now time.Time) model.Snapshot {
	get := func(key string) json.RawMessage {
		if v, ok := f.feeds[key]; ok {
			return v
		}
		return model.EmptyObject
	}
	return model.Snapshot{
		Timestamp: now,
		Foodbank:  get("foodbank:inventory"),
		Weather:   get("weather:" + locationID),
		Queue:     get("queue:" + locationID),
	}
}

type fakeHub struct {
	served string
}

func (f *fakeHub) ServeWS(w http.ResponseWriter, r *http.Request, locationID string) {
	f.served = locationID
	w.WriteHeader(http.StatusSwitchingProtocols)
}

func TestRealtimeHandler_Snapshot(t *testing.T) {
	t.Parallel()

	source := &fakeSnapshots{feeds: map[string]json.RawMessage{
		"foodbank:inventory": json.RawMessage(`{"items":3}`),
		"queue:loc-1":        json.RawMessage(`{"length":7}`),
	}}
	h := NewRealtimeHandler(source, &fakeHub{}, nil)
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	h.now = func() time.Time { return fixed }

	req := withURLParams(httptest.NewRequest(http.MethodGet, "/api/realtime/loc-1", nil), "locationID", "loc-1")
	rec := httptest.NewRecorder()
	h.Snapshot(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var snap map[string]json.RawMessage
	if err := json.NewDecoder(rec.Body).Decode(&snap); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if string(snap["foodbank"]) != `{"items":3}` {
		t.Errorf("foodbank = %s", snap["foodbank"])
	}
	if string(snap["weather"]) != `{}` {
		t.Errorf("weather = %s, want {}", snap["weather"])
	}
	if string(snap["queue"]) != `{"length":7}` {
		t.Errorf("queue = %s", snap["queue"])
	}
	if string(snap["timestamp"]) != `"2024-03-01T12:00:00Z"` {
		t.Errorf("timestamp = %s", snap["timestamp"])
	}
}

func TestRealtimeHandler_Subscribe(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		locationID string
		wantCode   int
		wantServed string
	}{
		{"valid", "loc-1", http.StatusSwitchingProtocols, "loc-1"},
		{"invalid", "loc:1*", http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			hub := &fakeHub{}
			h := NewRealtimeHandler(&fakeSnapshots{}, hub, nil)

			req := withURLParams(httptest.NewRequest(http.MethodGet, "/ws/x", nil), "locationID", tt.locationID)
			rec := httptest.NewRecorder()
			h.Subscribe(rec, req)

			if rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			if hub.served != tt.wantServed {
				t.Errorf("served = %q, want %q", hub.served, tt.wantServed)
			}
		})
	}
}
