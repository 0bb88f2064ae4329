//go:build integration

package repository

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/pantrynav/pantrynav/internal/model"
	"github.com/pantrynav/pantrynav/internal/testutil"
)

// ============================================================================
// Provider Repository Integration Tests
// ============================================================================

func TestIntegrationProvider_UpsertAndList(t *testing.T) {
	ctx, repo := newProviderTestEnv(t)

	rec := testutil.ServiceRecord(t, testutil.UniqueID("pantry"))
	rec.Services = []string{"food assistance", "housing"}

	orgID, err := repo.UpsertServiceRecord(ctx, rec)
	if err != nil {
		t.Fatalf("UpsertServiceRecord failed: %v", err)
	}
	if orgID == 0 {
		t.Fatal("expected organization id")
	}

	rows, err := repo.ListServiceLocations(ctx, model.ServiceLocationFilter{})
	if err != nil {
		t.Fatalf("ListServiceLocations failed: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}

	row := rows[0]
	if row.Name != rec.Name || row.Type != model.OrgTypeFoodPantry {
		t.Errorf("unexpected row %+v", row)
	}
	if row.Services != "food assistance, housing" {
		t.Errorf("Services = %q", row.Services)
	}
	if row.Requirements != "Photo ID" {
		t.Errorf("Requirements = %q", row.Requirements)
	}
	if row.Hours != "9:00 AM - 5:00 PM" {
		t.Errorf("Hours = %q", row.Hours)
	}
	if !row.HasCoordinates() {
		t.Error("expected coordinates")
	}
}

func TestIntegrationProvider_UpsertIsIdempotent(t *testing.T) {
	ctx, repo := newProviderTestEnv(t)

	rec := testutil.ServiceRecord(t, "Idempotent Pantry")
	first, err := repo.UpsertServiceRecord(ctx, rec)
	if err != nil {
		t.Fatalf("first upsert failed: %v", err)
	}

	rec.Phone = "(616) 555-0199"
	rec.Requirements = []string{"Proof of address"}
	second, err := repo.UpsertServiceRecord(ctx, rec)
	if err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}
	if first != second {
		t.Errorf("organization id changed: %d != %d", first, second)
	}

	rows, err := repo.ListServiceLocations(ctx, model.ServiceLocationFilter{})
	if err != nil {
		t.Fatalf("ListServiceLocations failed: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	if rows[0].Phone != "(616) 555-0199" || rows[0].Requirements != "Proof of address" {
		t.Errorf("record not replaced: %+v", rows[0])
	}
}

func TestIntegrationProvider_Filters(t *testing.T) {
	ctx, repo := newProviderTestEnv(t)

	pantry := testutil.ServiceRecord(t, "Filter Pantry")
	dhhs := testutil.ServiceRecord(t, "Filter DHHS")
	dhhs.Source = "dhhs"
	dhhs.Address = "701 Ball Ave NE, Grand Rapids, MI 49503"
	dhhs.Services = []string{"financial", "Medicaid"}

	for _, rec := range []model.ServiceRecord{pantry, dhhs} {
		if _, err := repo.UpsertServiceRecord(ctx, rec); err != nil {
			t.Fatalf("upsert %s: %v", rec.Name, err)
		}
	}

	byType, err := repo.ListServiceLocations(ctx, model.ServiceLocationFilter{
		Types: []model.OrganizationType{model.OrgTypeDHHS},
	})
	if err != nil {
		t.Fatalf("ListServiceLocations failed: %v", err)
	}
	if len(byType) != 1 || byType[0].Name != "Filter DHHS" {
		t.Errorf("type filter returned %+v", byType)
	}

	byCategory, err := repo.ListServiceLocations(ctx, model.ServiceLocationFilter{
		Categories: []string{"food assistance"},
	})
	if err != nil {
		t.Fatalf("ListServiceLocations failed: %v", err)
	}
	if len(byCategory) != 1 || byCategory[0].Name != "Filter Pantry" {
		t.Errorf("category filter returned %+v", byCategory)
	}

	accessible, err := repo.ListServiceLocations(ctx, model.ServiceLocationFilter{AccessibleOnly: true})
	if err != nil {
		t.Fatalf("ListServiceLocations failed: %v", err)
	}
	if len(accessible) != 0 {
		t.Errorf("expected no accessible rows, got %d", len(accessible))
	}

	categories, err := repo.ListServiceCategories(ctx)
	if err != nil {
		t.Fatalf("ListServiceCategories failed: %v", err)
	}
	if strings.Join(categories, ",") != "financial,food assistance,other" {
		t.Errorf("categories = %v", categories)
	}
}

func TestIntegrationProvider_InvalidRecord(t *testing.T) {
	ctx, repo := newProviderTestEnv(t)

	_, err := repo.UpsertServiceRecord(ctx, model.ServiceRecord{Name: "No Address"})
	if !errors.Is(err, ErrInvalidRecord) {
		t.Errorf("expected ErrInvalidRecord, got %v", err)
	}
}

func TestIntegrationProvider_SeedCategories(t *testing.T) {
	ctx, _ := newProviderTestEnv(t)
	dbURL := testutil.RequireEnv(t, "DATABASE_URL")

	n, err := SeedCategories(ctx, dbURL, model.StandardCategories)
	if err != nil {
		t.Fatalf("SeedCategories failed: %v", err)
	}
	if n != int64(len(model.StandardCategories)) {
		t.Errorf("seeded %d, want %d", n, len(model.StandardCategories))
	}

	again, err := SeedCategories(ctx, dbURL, model.StandardCategories)
	if err != nil {
		t.Fatalf("second SeedCategories failed: %v", err)
	}
	if again != 0 {
		t.Errorf("second seed inserted %d rows", again)
	}
}

// ============================================================================
// Test Environment Setup
// ============================================================================

func newProviderTestEnv(t *testing.T) (context.Context, *Repository) {
	t.Helper()
	ctx, repo := newTestRepo(t)
	if err := testutil.ResetSchema(ctx, repo.Pool()); err != nil {
		t.Fatalf("reset schema: %v", err)
	}
	return ctx, repo
}

// newTestRepo connects to DATABASE_URL and holds the shared database lock
// for the rest of the test.
func newTestRepo(t *testing.T) (context.Context, *Repository) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration tests in short mode")
	}

	ctx := context.Background()
	repo, err := New(ctx, testutil.RequireEnv(t, "DATABASE_URL"))
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(repo.Close)
	testutil.LockDB(t, repo.Pool())
	return ctx, repo
}
