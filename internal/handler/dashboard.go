package handler

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/pantrynav/pantrynav/internal/handler/dto"
	"github.com/pantrynav/pantrynav/internal/i18n"
	"github.com/pantrynav/pantrynav/internal/model"
	"github.com/pantrynav/pantrynav/internal/service"
)

//go:embed templates/dashboard.html
var templateFS embed.FS

// languageCookie remembers the dashboard language between visits.
const languageCookie = "language"

// DashboardReader is implemented by *service.DashboardService.
type DashboardReader interface {
	ServiceLocations(ctx context.Context, filter model.ServiceLocationFilter) ([]model.ServiceLocation, error)
	Categories(ctx context.Context) ([]string, error)
}

// MapOptions positions the dashboard map.
type MapOptions struct {
	CenterLat       float64
	CenterLng       float64
	Zoom            int
	DefaultLanguage string
	// SecureCookie marks the language cookie Secure.
	SecureCookie bool
}

// DashboardHandler serves the map page and its JSON twins.
type DashboardHandler struct {
	svc     DashboardReader
	catalog *i18n.Catalog
	opts    MapOptions
	tmpl    *template.Template
	logger  *slog.Logger
}

// NewDashboardHandler parses the page template and creates the handler.
func NewDashboardHandler(svc DashboardReader, catalog *i18n.Catalog, opts MapOptions, logger *slog.Logger) (*DashboardHandler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Zoom <= 0 {
		opts.Zoom = 13
	}
	tmpl, err := template.ParseFS(templateFS, "templates/dashboard.html")
	if err != nil {
		return nil, err
	}
	return &DashboardHandler{
		svc:     svc,
		catalog: catalog,
		opts:    opts,
		tmpl:    tmpl,
		logger:  logger.With("component", "handler.dashboard"),
	}, nil
}

// parseFilter reads repeated type and category params and accessible=true.
func parseFilter(r *http.Request) model.ServiceLocationFilter {
	q := r.URL.Query()

	var filter model.ServiceLocationFilter
	for _, t := range q["type"] {
		if t = strings.TrimSpace(t); t != "" {
			filter.Types = append(filter.Types, model.OrganizationType(t))
		}
	}
	for _, c := range q["category"] {
		if c = strings.TrimSpace(c); c != "" {
			filter.Categories = append(filter.Categories, c)
		}
	}
	switch strings.ToLower(q.Get("accessible")) {
	case "true", "1", "on", "yes":
		filter.AccessibleOnly = true
	}
	return filter
}

// language picks ?lang=, then the language cookie, then the default. An
// explicit supported ?lang= is remembered in the cookie.
func (h *DashboardHandler) language(w http.ResponseWriter, r *http.Request) string {
	if lang := r.URL.Query().Get("lang"); i18n.IsSupported(lang) {
		http.SetCookie(w, &http.Cookie{
			Name:     languageCookie,
			Value:    lang,
			Path:     "/",
			MaxAge:   int((365 * 24 * time.Hour).Seconds()),
			HttpOnly: true,
			Secure:   h.opts.SecureCookie,
			SameSite: http.SameSiteLaxMode,
		})
		return lang
	}
	if c, err := r.Cookie(languageCookie); err == nil && i18n.IsSupported(c.Value) {
		return c.Value
	}
	return i18n.Match(h.opts.DefaultLanguage)
}

type option struct {
	Value   string
	Label   string
	Checked bool
}

type marker struct {
	Name         string  `json:"name"`
	Lat          float64 `json:"lat"`
	Lng          float64 `json:"lng"`
	Color        string  `json:"color"`
	Address      string  `json:"address"`
	Hours        string  `json:"hours"`
	Services     string  `json:"services"`
	Requirements string  `json:"requirements"`
}

type group struct {
	Label string
	Rows  []model.ServiceLocation
}

type pageData struct {
	*i18n.Localizer

	Categories     []option
	Types          []option
	AccessibleOnly bool
	Found          string
	Groups         []group
	Markers        []marker
	PopupLabels    map[string]string
	Center         [2]float64
	Zoom           int
}

func selected[T comparable](values []T) map[T]bool {
	set := make(map[T]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}

func (h *DashboardHandler) buildPage(loc *i18n.Localizer, filter model.ServiceLocationFilter, rows []model.ServiceLocation, categories []string) pageData {
	data := pageData{
		Localizer:      loc,
		AccessibleOnly: filter.AccessibleOnly,
		Found:          loc.TData("dashboard.locations_found", map[string]any{"Count": len(rows)}),
		Center:         [2]float64{h.opts.CenterLat, h.opts.CenterLng},
		Zoom:           h.opts.Zoom,
		Markers:        []marker{},
		PopupLabels: map[string]string{
			"address":      loc.T("dashboard.address"),
			"hours":        loc.T("dashboard.hours"),
			"services":     loc.T("dashboard.services"),
			"requirements": loc.T("dashboard.requirements"),
		},
	}

	// No selection means everything is shown, so every box starts checked.
	selCats := selected(filter.Categories)
	for _, c := range categories {
		data.Categories = append(data.Categories, option{
			Value:   c,
			Label:   c,
			Checked: len(filter.Categories) == 0 || selCats[c],
		})
	}
	selTypes := selected(filter.Types)
	for _, t := range model.OrganizationTypes {
		data.Types = append(data.Types, option{
			Value:   string(t),
			Label:   loc.T("org_type." + string(t)),
			Checked: len(filter.Types) == 0 || selTypes[t],
		})
	}

	byType := make(map[model.OrganizationType][]model.ServiceLocation)
	for _, row := range rows {
		byType[row.Type] = append(byType[row.Type], row)
		if !row.HasCoordinates() {
			continue
		}
		data.Markers = append(data.Markers, marker{
			Name:         row.Name,
			Lat:          *row.Latitude,
			Lng:          *row.Longitude,
			Color:        row.MarkerColor(),
			Address:      row.Address,
			Hours:        row.Hours,
			Services:     row.Services,
			Requirements: row.Requirements,
		})
	}
	for _, t := range model.OrganizationTypes {
		if len(byType[t]) > 0 {
			data.Groups = append(data.Groups, group{
				Label: loc.T("org_type." + string(t)),
				Rows:  byType[t],
			})
		}
	}

	return data
}

// Page renders the map dashboard.
//
// GET /
func (h *DashboardHandler) Page(w http.ResponseWriter, r *http.Request) {
	filter := parseFilter(r)
	loc := h.catalog.Localizer(h.language(w, r))

	rows, err := h.svc.ServiceLocations(r.Context(), filter)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	categories, err := h.svc.Categories(r.Context())
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	var buf bytes.Buffer
	if err := h.tmpl.Execute(&buf, h.buildPage(loc, filter, rows, categories)); err != nil {
		h.logger.Error("failed to render dashboard", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred")
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Language", loc.Lang())
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

// Services returns the filtered dashboard rows as JSON.
//
// GET /api/services?type=&category=&accessible=true
func (h *DashboardHandler) Services(w http.ResponseWriter, r *http.Request) {
	filter := parseFilter(r)

	rows, err := h.svc.ServiceLocations(r.Context(), filter)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ServicesResponse{
		Locations:  dto.ToServiceLocationResponses(rows),
		TotalCount: len(rows),
		Filter:     filter,
	})
}

// Categories returns the distinct service categories.
//
// GET /api/categories/services
func (h *DashboardHandler) Categories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.svc.Categories(r.Context())
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, categories)
}

func (h *DashboardHandler) handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidOrganizationType):
		writeError(w, http.StatusBadRequest, "INVALID_ORGANIZATION_TYPE", err.Error())
	case errors.Is(err, context.Canceled):
		// client went away
	default:
		h.logger.Error("dashboard query failed", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred")
	}
}
