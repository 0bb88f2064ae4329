package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pantrynav/pantrynav/internal/directory"
	"github.com/pantrynav/pantrynav/internal/handler/dto"
	"github.com/pantrynav/pantrynav/internal/middleware"
	"github.com/pantrynav/pantrynav/internal/model"
)

// ResourceDirectory is implemented by *directory.Directory.
type ResourceDirectory interface {
	Get(id string) (model.Resource, bool)
	List(q directory.Query) []model.Resource
	Categories() []string
}

// ResourceHandler serves the resource directory API.
type ResourceHandler struct {
	dir    ResourceDirectory
	logger *slog.Logger
	now    func() time.Time
}

// NewResourceHandler creates a ResourceHandler.
func NewResourceHandler(dir ResourceDirectory, logger *slog.Logger) *ResourceHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ResourceHandler{
		dir:    dir,
		logger: logger.With("component", "handler.resources"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// resourceNotFound is the body of an unknown resource id.
var resourceNotFound = dto.ErrorResponse{Error: "Resource not found"}

// List returns resources filtered by category and search.
// total_count is the number of resources returned, after the limit.
//
// GET /api/resources?category=&search=&limit=100
func (h *ResourceHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	search := q.Get("search")
	if err := middleware.ValidateSearch(search); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_SEARCH", err.Error())
		return
	}
	limit, err := middleware.ParseLimit(q.Get("limit"), directory.DefaultLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_LIMIT", err.Error())
		return
	}

	resources := h.dir.List(directory.Query{
		Category: q.Get("category"),
		Search:   search,
		Limit:    limit,
	})

	writeJSON(w, http.StatusOK, dto.ResourcesResponse{
		Resources:  resources,
		TotalCount: len(resources),
		Timestamp:  h.now(),
	})
}

// lookup resolves the {id} URL param, writing 404 when it is unknown.
func (h *ResourceHandler) lookup(w http.ResponseWriter, r *http.Request) (model.Resource, bool) {
	id := chi.URLParam(r, "id")
	if err := middleware.ValidateIdentifier(id); err != nil {
		writeJSON(w, http.StatusNotFound, resourceNotFound)
		return model.Resource{}, false
	}
	res, ok := h.dir.Get(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, resourceNotFound)
		return model.Resource{}, false
	}
	return res, true
}

// Get returns one resource.
//
// GET /api/resources/{id}
func (h *ResourceHandler) Get(w http.ResponseWriter, r *http.Request) {
	res, ok := h.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Transport returns the ways of reaching a resource.
//
// GET /api/resources/{id}/transport
func (h *ResourceHandler) Transport(w http.ResponseWriter, r *http.Request) {
	res, ok := h.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, dto.TransportResponse{
		ResourceID: res.ID,
		Options:    res.TransportOptions(),
	})
}

// Categories returns the sorted union of resource categories.
//
// GET /api/categories
func (h *ResourceHandler) Categories(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.dir.Categories())
}
