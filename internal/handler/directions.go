package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/pantrynav/pantrynav/internal/handler/dto"
	"github.com/pantrynav/pantrynav/internal/routing"
)

// DirectionsProvider is implemented by *routing.MapboxClient.
type DirectionsProvider interface {
	Directions(ctx context.Context, req routing.DirectionsRequest) (*routing.Directions, error)
}

// DirectionsHandler serves turn-by-turn directions.
type DirectionsHandler struct {
	provider DirectionsProvider
	logger   *slog.Logger
}

// NewDirectionsHandler creates a DirectionsHandler.
func NewDirectionsHandler(provider DirectionsProvider, logger *slog.Logger) *DirectionsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &DirectionsHandler{
		provider: provider,
		logger:   logger.With("component", "handler.directions"),
	}
}

// Directions returns a route between two points for a transport mode.
//
// POST /api/directions
func (h *DirectionsHandler) Directions(w http.ResponseWriter, r *http.Request) {
	var req routing.DirectionsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}

	// Validate before calling out so bad input never costs an upstream request.
	if _, err := req.Validate(); err != nil {
		h.handleServiceError(w, err)
		return
	}

	directions, err := h.provider.Directions(r.Context(), req)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, directions)
}

func (h *DirectionsHandler) handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, routing.ErrMissingPoints):
		writeError(w, http.StatusBadRequest, "MISSING_PARAMETERS", "Missing required parameters")
	case errors.Is(err, routing.ErrInvalidMode):
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{
			Error: "Invalid transport mode",
			Code:  "INVALID_TRANSPORT_MODE",
			Details: map[string]any{
				"availableModes": routing.ModeNames(),
			},
		})
	case errors.Is(err, routing.ErrNotConfigured):
		writeError(w, http.StatusServiceUnavailable, "DIRECTIONS_UNAVAILABLE", "Directions are not configured")
	case errors.Is(err, routing.ErrInvalidResponse):
		h.logger.Warn("directions provider returned no route", "error", err)
		writeError(w, http.StatusBadGateway, "NO_ROUTE", "No route found")
	default:
		h.logger.Error("directions request failed", "error", err)
		writeError(w, http.StatusBadGateway, "UPSTREAM_ERROR", "Failed to fetch directions")
	}
}
