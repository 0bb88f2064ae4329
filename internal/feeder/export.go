package feeder

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pantrynav/pantrynav/internal/model"
)

// csvHeader is the column order of exported CSV files.
var csvHeader = []string{
	"source", "name", "address", "latitude", "longitude", "city", "state",
	"zip_code", "services", "hours", "phone", "website", "requirements", "last_updated",
}

// ExportBaseName returns the file stem for an export taken at t.
func ExportBaseName(t time.Time) string {
	return "social_services_" + t.Format("20060102_150405")
}

// SaveJSON writes records as an indented JSON array.
func SaveJSON(path string, records []model.ServiceRecord) error {
	if records == nil {
		records = []model.ServiceRecord{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal records: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// SaveCSV writes records with one row per provider. List fields are joined
// with "; " and hours are collapsed with WeeklyHours.Summary.
func SaveCSV(path string, records []model.ServiceRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for _, r := range records {
		row := []string{
			r.Source,
			r.Name,
			r.Address,
			formatCoord(r.Latitude),
			formatCoord(r.Longitude),
			r.City,
			r.State,
			r.ZipCode,
			strings.Join(r.Services, "; "),
			r.Hours.Summary(),
			r.Phone,
			r.Website,
			strings.Join(r.Requirements, "; "),
			r.LastUpdated.UTC().Format(time.RFC3339),
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return f.Close()
}

func formatCoord(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', 6, 64)
}

// Export writes both files into dir and returns their paths.
func Export(dir string, t time.Time, records []model.ServiceRecord) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	base := filepath.Join(dir, ExportBaseName(t))
	jsonPath, csvPath := base+".json", base+".csv"

	if err := SaveJSON(jsonPath, records); err != nil {
		return nil, err
	}
	if err := SaveCSV(csvPath, records); err != nil {
		return nil, err
	}
	return []string{jsonPath, csvPath}, nil
}
