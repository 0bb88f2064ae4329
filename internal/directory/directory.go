// Package directory is the resource directory: a small set of providers
// kept in memory and persisted as a JSON file keyed by id.
package directory

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pantrynav/pantrynav/internal/model"
)

// DefaultLimit caps List results when no limit is given.
const DefaultLimit = 100

// Query filters List.
type Query struct {
	Category string
	Search   string
	Limit    int
}

// Directory holds resources by id. Safe for concurrent use.
type Directory struct {
	mu        sync.RWMutex
	resources map[string]model.Resource
	logger    *slog.Logger
}

// New creates a Directory seeded with the default resources.
func New(logger *slog.Logger) *Directory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Directory{
		resources: Defaults(time.Now().UTC()),
		logger:    logger.With("component", "directory"),
	}
}

// Load replaces the resources with the contents of path. On failure the
// current resources are kept, a warning is logged and the error returned.
func (d *Directory) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		d.logger.Warn("could not load resources, using defaults", "file", path, "error", err)
		return fmt.Errorf("read %s: %w", path, err)
	}

	var loaded map[string]model.Resource
	if err := json.Unmarshal(data, &loaded); err != nil {
		d.logger.Warn("could not load resources, using defaults", "file", path, "error", err)
		return fmt.Errorf("decode %s: %w", path, err)
	}

	for id, r := range loaded {
		r.ID = id
		loaded[id] = r
	}

	d.mu.Lock()
	d.resources = loaded
	d.mu.Unlock()

	d.logger.Info("resources loaded", "file", path, "count", len(loaded))
	return nil
}

// Save writes the resources to path as an indented JSON object.
func (d *Directory) Save(path string) error {
	d.mu.RLock()
	data, err := json.MarshalIndent(d.resources, "", "  ")
	d.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("marshal resources: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// Get returns the resource with id.
func (d *Directory) Get(id string) (model.Resource, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	r, ok := d.resources[id]
	return r, ok
}

// Put adds or replaces a resource.
func (d *Directory) Put(r model.Resource) {
	d.mu.Lock()
	d.resources[r.ID] = r
	d.mu.Unlock()
}

// List returns resources ordered by id. Category is an exact match; search is
// a case-insensitive substring of name, description or address.
func (d *Directory) List(q Query) []model.Resource {
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	search := strings.ToLower(strings.TrimSpace(q.Search))

	d.mu.RLock()
	out := make([]model.Resource, 0, len(d.resources))
	for _, r := range d.resources {
		if q.Category != "" && !r.HasCategory(q.Category) {
			continue
		}
		if search != "" && !matches(r, search) {
			continue
		}
		out = append(out, r)
	}
	d.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func matches(r model.Resource, search string) bool {
	return strings.Contains(strings.ToLower(r.Name), search) ||
		strings.Contains(strings.ToLower(r.Description), search) ||
		strings.Contains(strings.ToLower(r.Address), search)
}

// Categories returns the sorted union of all resource categories.
func (d *Directory) Categories() []string {
	d.mu.RLock()
	seen := make(map[string]struct{})
	for _, r := range d.resources {
		for _, c := range r.Categories {
			seen[c] = struct{}{}
		}
	}
	d.mu.RUnlock()

	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
