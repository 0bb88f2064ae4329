// Package service provides business logic for the application.
package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/pantrynav/pantrynav/internal/cache"
	"github.com/pantrynav/pantrynav/internal/metrics"
	"github.com/pantrynav/pantrynav/internal/model"
)

// Service errors.
var (
	ErrInvalidOrganizationType = errors.New("invalid organization type")
)

// categoriesKey caches the category list next to the filtered rows.
const categoriesKey = "categories"

// LocationStore reads the dashboard rows.
type LocationStore interface {
	ListServiceLocations(ctx context.Context, filter model.ServiceLocationFilter) ([]model.ServiceLocation, error)
	ListServiceCategories(ctx context.Context) ([]string, error)
}

// ValueCache is the subset of cache.TypedCache used here.
type ValueCache interface {
	Get(ctx context.Context, cacheType, key string, dest any) error
	Set(ctx context.Context, cacheType, key string, value any) error
}

// DashboardService serves the map and /api/services rows, cache-aside over
// the service_locations cache type.
type DashboardService struct {
	store   LocationStore
	cache   ValueCache
	metrics metrics.Recorder
	logger  *slog.Logger
}

// NewDashboardService creates a DashboardService. cache may be nil.
func NewDashboardService(store LocationStore, c ValueCache, recorder metrics.Recorder, logger *slog.Logger) *DashboardService {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DashboardService{
		store:   store,
		cache:   c,
		metrics: recorder,
		logger:  logger.With("component", "service.dashboard"),
	}
}

// FilterKey returns a stable cache key for filter. Selection order and
// duplicates do not change the key.
func FilterKey(filter model.ServiceLocationFilter) string {
	types := make([]string, 0, len(filter.Types))
	for _, t := range filter.Types {
		types = append(types, string(t))
	}

	var b strings.Builder
	b.WriteString("types=")
	b.WriteString(strings.Join(sortedUnique(types), ","))
	b.WriteString("|categories=")
	b.WriteString(strings.Join(sortedUnique(filter.Categories), ","))
	b.WriteString("|accessible=")
	b.WriteString(strconv.FormatBool(filter.AccessibleOnly))

	sum := sha256.Sum256([]byte(b.String()))
	return "locations:" + hex.EncodeToString(sum[:8])
}

func sortedUnique(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// ServiceLocations returns the rows matching filter.
func (s *DashboardService) ServiceLocations(ctx context.Context, filter model.ServiceLocationFilter) ([]model.ServiceLocation, error) {
	for _, t := range filter.Types {
		if !t.IsValid() {
			return nil, fmt.Errorf("%w: %q", ErrInvalidOrganizationType, t)
		}
	}

	key := FilterKey(filter)

	var rows []model.ServiceLocation
	if s.lookup(ctx, key, &rows) {
		return rows, nil
	}

	rows, err := s.store.ListServiceLocations(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list service locations: %w", err)
	}
	if rows == nil {
		rows = []model.ServiceLocation{}
	}

	s.remember(ctx, key, rows)
	return rows, nil
}

// Categories returns the distinct service categories.
func (s *DashboardService) Categories(ctx context.Context) ([]string, error) {
	var categories []string
	if s.lookup(ctx, categoriesKey, &categories) {
		return categories, nil
	}

	categories, err := s.store.ListServiceCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("list service categories: %w", err)
	}
	if categories == nil {
		categories = []string{}
	}

	s.remember(ctx, categoriesKey, categories)
	return categories, nil
}

// lookup reports a cache hit. Any cache error counts as a miss.
func (s *DashboardService) lookup(ctx context.Context, key string, dest any) bool {
	if s.cache == nil {
		return false
	}

	err := s.cache.Get(ctx, cache.TypeServiceLocations, key, dest)
	if err == nil {
		s.metrics.IncCacheHit(cache.TypeServiceLocations)
		return true
	}

	s.metrics.IncCacheMiss(cache.TypeServiceLocations)
	if !errors.Is(err, cache.ErrCacheMiss) {
		s.logger.Warn("cache lookup failed, falling back to database", "key", key, "error", err)
	}
	return false
}

func (s *DashboardService) remember(ctx context.Context, key string, value any) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, cache.TypeServiceLocations, key, value); err != nil {
		s.logger.Warn("failed to cache rows", "key", key, "error", err)
	}
}
