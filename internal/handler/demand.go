package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/pantrynav/pantrynav/internal/handler/dto"
	"github.com/pantrynav/pantrynav/internal/middleware"
	"github.com/pantrynav/pantrynav/internal/predict"
)

// DemandPredictor is implemented by *predict.Predictor.
type DemandPredictor interface {
	Predict(ctx context.Context, lat, lon float64, at time.Time) (*predict.Prediction, error)
}

// DemandHandler serves demand predictions.
type DemandHandler struct {
	predictor DemandPredictor
	logger    *slog.Logger
	now       func() time.Time
}

// NewDemandHandler creates a DemandHandler.
func NewDemandHandler(predictor DemandPredictor, logger *slog.Logger) *DemandHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &DemandHandler{
		predictor: predictor,
		logger:    logger.With("component", "handler.demand"),
		now:       time.Now,
	}
}

// Demand predicts visitor demand at a point. at is RFC 3339 and defaults to now.
//
// GET /api/demand?lat=&lng=&at=
func (h *DemandHandler) Demand(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	lat, err := middleware.ParseCoordinate(q.Get("lat"), true)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_LATITUDE", err.Error())
		return
	}
	lng, err := middleware.ParseCoordinate(q.Get("lng"), false)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_LONGITUDE", err.Error())
		return
	}

	at := h.now()
	if raw := q.Get("at"); raw != "" {
		at, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_TIME", "at must be an RFC 3339 timestamp")
			return
		}
	}

	p, err := h.predictor.Predict(r.Context(), lat, lng, at)
	if err != nil {
		if errors.Is(err, predict.ErrModelNotTrained) {
			writeError(w, http.StatusServiceUnavailable, "MODEL_NOT_TRAINED", err.Error())
			return
		}
		h.logger.Error("demand prediction failed", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred")
		return
	}

	writeJSON(w, http.StatusOK, dto.DemandResponse{
		Latitude:        lat,
		Longitude:       lng,
		At:              p.At,
		PredictedDemand: p.Demand,
		Features:        p.Features,
	})
}
