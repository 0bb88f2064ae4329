package feeder

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pantrynav/pantrynav/internal/model"
	"github.com/pantrynav/pantrynav/internal/normalize"
)

const pantryPage = `<!doctype html>
<html><head>
<script type="application/ld+json">
{"@context":"https://schema.org","@graph":[
  {"@type":"WebSite","name":"Feeding West Michigan"},
  {"@type":"Place","name":"North End Pantry",
   "address":{"@type":"PostalAddress","streetAddress":"100 Plainfield Ave NE","addressLocality":"Grand Rapids","addressRegion":"MI","postalCode":"49505"},
   "telephone":"(616) 555-0100","openingHours":["Mo-Fr 09:00-17:00"],
   "geo":{"latitude":42.99,"longitude":"-85.66"}}
]}
</script>
<script type="application/ld+json">{not json</script>
<script type="application/LD+JSON">
[{"@type":["NGO","Organization"],"name":"Westside Meals","address":"45 Bridge St NW","serviceType":["Food Distribution"]}]
</script>
</head><body></body></html>`

func TestExtractJSONLD(t *testing.T) {
	t.Parallel()

	records, err := ExtractJSONLD(strings.NewReader(pantryPage))
	if err != nil {
		t.Fatalf("ExtractJSONLD() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("len(records) = %d, want 2", len(records))
	}

	first := records[0]
	if first.Name != "North End Pantry" {
		t.Errorf("Name = %q", first.Name)
	}
	if want := "100 Plainfield Ave NE, Grand Rapids, MI 49505"; first.Address != want {
		t.Errorf("Address = %q, want %q", first.Address, want)
	}
	if first.Hours != "Mo-Fr 09:00-17:00" {
		t.Errorf("Hours = %q", first.Hours)
	}
	if first.Latitude == nil || *first.Latitude != 42.99 || first.Longitude == nil || *first.Longitude != -85.66 {
		t.Errorf("coordinates = %v, %v", first.Latitude, first.Longitude)
	}

	second := records[1]
	if second.Address != "45 Bridge St NW" {
		t.Errorf("Address = %q", second.Address)
	}
	if len(second.Services) != 1 || second.Services[0] != "Food Distribution" {
		t.Errorf("Services = %v", second.Services)
	}
}

func TestHTMLSource_Collect(t *testing.T) {
	t.Parallel()

	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		_, _ = io.WriteString(w, pantryPage)
	}))
	defer srv.Close()

	src := NewHTMLSource("feeding_wm", srv.URL, srv.Client(), "Food Pantry")
	records, err := src.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}

	if !strings.HasPrefix(gotUA, "Mozilla/5.0") {
		t.Errorf("User-Agent = %q, want browser agent", gotUA)
	}
	if len(records) != 2 {
		t.Fatalf("len(records) = %d, want 2", len(records))
	}
	if got := records[0].Services; len(got) != 1 || got[0] != "Food Pantry" {
		t.Errorf("default services = %v", got)
	}
	if got := records[1].Services; got[0] != "Food Distribution" {
		t.Errorf("own services replaced: %v", got)
	}
}

func TestHTMLSource_CollectStatusError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "blocked", http.StatusForbidden)
	}))
	defer srv.Close()

	src := NewHTMLSource("ywca", srv.URL, srv.Client())
	if _, err := src.Collect(context.Background()); err == nil {
		t.Fatal("Collect() error = nil, want status error")
	}
}

type failingSource struct{ name string }

func (f failingSource) Name() string { return f.name }

func (f failingSource) Collect(context.Context) ([]model.RawRecord, error) {
	return nil, errors.New("connection refused")
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCollector_CollectAll(t *testing.T) {
	t.Parallel()

	c := NewCollector([]Source{
		failingSource{name: "salvation_army"},
		DHHSSource(),
	}, discardLogger())

	records, err := c.CollectAll(context.Background())
	if err != nil {
		t.Fatalf("CollectAll() error = %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("len(records) = %d, want 1", len(records))
	}
	if records[0].Source != "dhhs" {
		t.Errorf("Source = %q, want dhhs", records[0].Source)
	}
	if records[0].LastUpdated.IsZero() {
		t.Error("LastUpdated not set")
	}
}

func TestCollector_CollectAllCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewCollector([]Source{DHHSSource()}, discardLogger())
	if _, err := c.CollectAll(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("CollectAll() error = %v, want context.Canceled", err)
	}
}

func TestExportBaseName(t *testing.T) {
	t.Parallel()

	ts := time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)
	if got := ExportBaseName(ts); got != "social_services_20240309_140507" {
		t.Errorf("ExportBaseName() = %q", got)
	}
}

type recordingStore struct {
	names []string
	fail  string
}

func (s *recordingStore) UpsertServiceRecord(_ context.Context, rec model.ServiceRecord) (int64, error) {
	if rec.Name == s.fail {
		return 0, errors.New("constraint violation")
	}
	s.names = append(s.names, rec.Name)
	return int64(len(s.names)), nil
}

func TestPipeline_Run(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store := &recordingStore{fail: "Broken Pantry"}
	collector := NewCollector([]Source{
		DHHSSource(),
		NewStaticSource("feeding_wm",
			model.RawRecord{Name: "Broken Pantry", Address: "1 Main St", Services: []string{"food bank"}},
			model.RawRecord{Name: "", Address: "no name"},
		),
	}, discardLogger())

	p := NewPipeline(collector, normalize.NewProcessor(nil, discardLogger()), store, dir, discardLogger())
	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	p.now = func() time.Time { return fixed }

	res, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if res.Collected != 3 || res.Processed != 2 || res.Stored != 1 || res.Failed != 1 {
		t.Errorf("result = %+v", res)
	}
	if len(res.BatchID) != 26 {
		t.Errorf("BatchID = %q, want ULID", res.BatchID)
	}

	jsonPath := filepath.Join(dir, "social_services_20240102_030405.json")
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		t.Fatalf("read json export: %v", err)
	}
	var saved []model.ServiceRecord
	if err := json.Unmarshal(data, &saved); err != nil {
		t.Fatalf("decode json export: %v", err)
	}
	if len(saved) != 2 {
		t.Errorf("json export has %d records, want 2", len(saved))
	}

	f, err := os.Open(filepath.Join(dir, "social_services_20240102_030405.csv"))
	if err != nil {
		t.Fatalf("open csv export: %v", err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv export: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("csv rows = %d, want header + 2", len(rows))
	}
	if rows[0][0] != "source" || rows[1][1] != "Kent County DHHS" {
		t.Errorf("unexpected csv rows: %v", rows[:2])
	}
	if rows[1][8] != "Food Assistance; financial; Medicaid" {
		t.Errorf("services column = %q", rows[1][8])
	}
}

func TestPipeline_RunWithoutStore(t *testing.T) {
	t.Parallel()

	p := NewPipeline(
		NewCollector([]Source{DHHSSource()}, discardLogger()),
		normalize.NewProcessor(nil, discardLogger()),
		nil, t.TempDir(), discardLogger(),
	)

	res, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Stored != 0 || len(res.Files) != 2 {
		t.Errorf("result = %+v", res)
	}
}
