package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pantrynav/pantrynav/internal/middleware"
	"github.com/pantrynav/pantrynav/internal/model"
)

// SnapshotSource is implemented by *cache.Cache.
type SnapshotSource interface {
	Snapshot(ctx context.Context, locationID string, now time.Time) model.Snapshot
}

// WebsocketServer is implemented by *realtime.Hub.
type WebsocketServer interface {
	ServeWS(w http.ResponseWriter, r *http.Request, locationID string)
}

// RealtimeHandler exposes the realtime feeds of a location.
type RealtimeHandler struct {
	source SnapshotSource
	hub    WebsocketServer
	logger *slog.Logger
	now    func() time.Time
}

// NewRealtimeHandler creates a RealtimeHandler.
func NewRealtimeHandler(source SnapshotSource, hub WebsocketServer, logger *slog.Logger) *RealtimeHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RealtimeHandler{
		source: source,
		hub:    hub,
		logger: logger.With("component", "handler.realtime"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func locationParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "locationID")
	if err := middleware.ValidateIdentifier(id); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_LOCATION", err.Error())
		return "", false
	}
	return id, true
}

// Snapshot returns the current feeds of a location. Missing feeds are {}.
//
// GET /api/realtime/{locationID}
func (h *RealtimeHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	id, ok := locationParam(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.source.Snapshot(r.Context(), id, h.now()))
}

// Subscribe upgrades to a websocket that receives the location's snapshots.
//
// GET /ws/{locationID}
func (h *RealtimeHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	id, ok := locationParam(w, r)
	if !ok {
		return
	}
	h.hub.ServeWS(w, r, id)
}
