package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pantrynav/pantrynav/internal/auth"
	"github.com/pantrynav/pantrynav/internal/cache"
	"github.com/pantrynav/pantrynav/internal/handler/dto"
	"github.com/pantrynav/pantrynav/internal/middleware"
)

// CacheAdmin is the subset of *cache.TypedCache used by admin routes.
type CacheAdmin interface {
	Stats(ctx context.Context, cacheType string) (cache.TypeStats, error)
	Clear(ctx context.Context, cacheType string) (int, error)
}

// LimitAdmin is the subset of *cache.RateLimiter used by admin routes.
type LimitAdmin interface {
	LimitInfo(ctx context.Context, service, client string) (*cache.LimitInfo, error)
	ResetLimit(ctx context.Context, service, client string) error
}

// AdminHandler provides admin-only endpoints for cache and rate limit operations.
type AdminHandler struct {
	cache   CacheAdmin
	limiter LimitAdmin
	logger  *slog.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(c CacheAdmin, limiter LimitAdmin, logger *slog.Logger) *AdminHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminHandler{
		cache:   c,
		limiter: limiter,
		logger:  logger.With("component", "handler.admin"),
	}
}

// CacheStats returns the key count and settings of a cache type.
//
// GET /admin/cache/{type}/stats
func (h *AdminHandler) CacheStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.cache.Stats(r.Context(), chi.URLParam(r, "type"))
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// ClearCache deletes every entry of a cache type.
//
// DELETE /admin/cache/{type}
func (h *AdminHandler) ClearCache(w http.ResponseWriter, r *http.Request) {
	cacheType := chi.URLParam(r, "type")
	n, err := h.cache.Clear(r.Context(), cacheType)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.logger.Info("cache cleared",
		"type", cacheType,
		"deleted", n,
		"admin", auth.AdminFromContext(r.Context()),
	)
	writeJSON(w, http.StatusOK, dto.CacheClearResponse{Type: cacheType, Deleted: n})
}

func limitParams(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	service, client := chi.URLParam(r, "service"), chi.URLParam(r, "client")
	if err := middleware.ValidateIdentifier(client); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_CLIENT", err.Error())
		return "", "", false
	}
	return service, client, true
}

// RateLimitInfo returns the counters of a client.
//
// GET /admin/ratelimit/{service}/{client}
func (h *AdminHandler) RateLimitInfo(w http.ResponseWriter, r *http.Request) {
	service, client, ok := limitParams(w, r)
	if !ok {
		return
	}
	info, err := h.limiter.LimitInfo(r.Context(), service, client)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// ResetRateLimit clears the counters of a client.
//
// DELETE /admin/ratelimit/{service}/{client}
func (h *AdminHandler) ResetRateLimit(w http.ResponseWriter, r *http.Request) {
	service, client, ok := limitParams(w, r)
	if !ok {
		return
	}
	if err := h.limiter.ResetLimit(r.Context(), service, client); err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.logger.Info("rate limit reset",
		"service", service,
		"client", client,
		"admin", auth.AdminFromContext(r.Context()),
	)
	writeJSON(w, http.StatusOK, dto.RateLimitResetResponse{Service: service, Client: client, Reset: true})
}

func (h *AdminHandler) handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, cache.ErrUnknownCacheType):
		writeError(w, http.StatusNotFound, "UNKNOWN_CACHE_TYPE", err.Error())
	case errors.Is(err, cache.ErrUnknownService):
		writeError(w, http.StatusNotFound, "UNKNOWN_SERVICE", err.Error())
	default:
		h.logger.Error("admin operation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred")
	}
}
