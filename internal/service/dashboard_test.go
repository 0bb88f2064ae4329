package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/pantrynav/pantrynav/internal/cache"
	"github.com/pantrynav/pantrynav/internal/metrics"
	"github.com/pantrynav/pantrynav/internal/model"
)

type fakeStore struct {
	rows       []model.ServiceLocation
	categories []string
	err        error
	calls      int
}

func (f *fakeStore) ListServiceLocations(context.Context, model.ServiceLocationFilter) ([]model.ServiceLocation, error) {
	f.calls++
	return f.rows, f.err
}

func (f *fakeStore) ListServiceCategories(context.Context) ([]string, error) {
	f.calls++
	return f.categories, f.err
}

// mapCache stores JSON like the Redis-backed cache does.
type mapCache struct {
	data   map[string][]byte
	getErr error
}

func newMapCache() *mapCache { return &mapCache{data: make(map[string][]byte)} }

func (m *mapCache) Get(_ context.Context, cacheType, key string, dest any) error {
	if m.getErr != nil {
		return m.getErr
	}
	raw, ok := m.data[cacheType+":"+key]
	if !ok {
		return cache.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *mapCache) Set(_ context.Context, cacheType, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.data[cacheType+":"+key] = raw
	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFilterKey(t *testing.T) {
	t.Parallel()

	a := FilterKey(model.ServiceLocationFilter{
		Types:      []model.OrganizationType{model.OrgTypeYWCA, model.OrgTypeDHHS},
		Categories: []string{"housing", "medical"},
	})
	b := FilterKey(model.ServiceLocationFilter{
		Types:      []model.OrganizationType{model.OrgTypeDHHS, model.OrgTypeYWCA, model.OrgTypeDHHS},
		Categories: []string{"medical", "housing"},
	})
	c := FilterKey(model.ServiceLocationFilter{
		Types:          []model.OrganizationType{model.OrgTypeDHHS, model.OrgTypeYWCA},
		Categories:     []string{"medical", "housing"},
		AccessibleOnly: true,
	})

	if a != b {
		t.Errorf("order should not change key: %q vs %q", a, b)
	}
	if a == c {
		t.Error("accessible flag should change key")
	}
	if a == FilterKey(model.ServiceLocationFilter{}) {
		t.Error("empty filter should have its own key")
	}
}

func TestDashboardService_CacheAside(t *testing.T) {
	t.Parallel()

	store := &fakeStore{rows: []model.ServiceLocation{{Name: "North End Pantry", Type: model.OrgTypeFoodPantry}}}
	rec := metrics.NewInMemory()
	svc := NewDashboardService(store, newMapCache(), rec, quietLogger())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		rows, err := svc.ServiceLocations(ctx, model.ServiceLocationFilter{})
		if err != nil {
			t.Fatalf("ServiceLocations() error = %v", err)
		}
		if len(rows) != 1 || rows[0].Name != "North End Pantry" {
			t.Fatalf("rows = %+v", rows)
		}
	}

	if store.calls != 1 {
		t.Errorf("store calls = %d, want 1", store.calls)
	}
	snap := rec.Snapshot()
	if snap.CacheMisses != 1 || snap.CacheHits != 1 {
		t.Errorf("hits/misses = %d/%d, want 1/1", snap.CacheHits, snap.CacheMisses)
	}
}

func TestDashboardService_CacheErrorFallsBack(t *testing.T) {
	t.Parallel()

	store := &fakeStore{rows: []model.ServiceLocation{{Name: "YWCA"}}}
	c := newMapCache()
	c.getErr = errors.New("connection refused")
	svc := NewDashboardService(store, c, nil, quietLogger())

	rows, err := svc.ServiceLocations(context.Background(), model.ServiceLocationFilter{})
	if err != nil {
		t.Fatalf("ServiceLocations() error = %v", err)
	}
	if len(rows) != 1 {
		t.Errorf("len(rows) = %d, want 1", len(rows))
	}
}

func TestDashboardService_NoCache(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	svc := NewDashboardService(store, nil, nil, quietLogger())

	rows, err := svc.ServiceLocations(context.Background(), model.ServiceLocationFilter{})
	if err != nil {
		t.Fatalf("ServiceLocations() error = %v", err)
	}
	if rows == nil || len(rows) != 0 {
		t.Errorf("rows = %#v, want empty slice", rows)
	}
}

func TestDashboardService_InvalidType(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	svc := NewDashboardService(store, nil, nil, quietLogger())

	_, err := svc.ServiceLocations(context.Background(), model.ServiceLocationFilter{
		Types: []model.OrganizationType{"church"},
	})
	if !errors.Is(err, ErrInvalidOrganizationType) {
		t.Errorf("error = %v, want ErrInvalidOrganizationType", err)
	}
	if store.calls != 0 {
		t.Error("store should not be queried for an invalid filter")
	}
}

func TestDashboardService_StoreError(t *testing.T) {
	t.Parallel()

	dbErr := errors.New("db down")
	svc := NewDashboardService(&fakeStore{err: dbErr}, newMapCache(), nil, quietLogger())

	if _, err := svc.ServiceLocations(context.Background(), model.ServiceLocationFilter{}); !errors.Is(err, dbErr) {
		t.Errorf("error = %v, want wrapped db error", err)
	}
	if _, err := svc.Categories(context.Background()); !errors.Is(err, dbErr) {
		t.Errorf("Categories() error = %v, want wrapped db error", err)
	}
}

func TestDashboardService_Categories(t *testing.T) {
	t.Parallel()

	store := &fakeStore{categories: []string{"food assistance", "housing"}}
	svc := NewDashboardService(store, newMapCache(), nil, quietLogger())

	for i := 0; i < 2; i++ {
		got, err := svc.Categories(context.Background())
		if err != nil {
			t.Fatalf("Categories() error = %v", err)
		}
		if len(got) != 2 || got[1] != "housing" {
			t.Errorf("Categories() = %v", got)
		}
	}
	if store.calls != 1 {
		t.Errorf("store calls = %d, want 1", store.calls)
	}
}
