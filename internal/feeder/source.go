// Package feeder collects provider records from public sources and runs
// them through normalization, export and storage.
package feeder

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/pantrynav/pantrynav/internal/httpclient"
	"github.com/pantrynav/pantrynav/internal/model"
)

// Source yields raw provider records.
type Source interface {
	Name() string
	Collect(ctx context.Context) ([]model.RawRecord, error)
}

// HTMLSource scrapes schema.org JSON-LD blocks from a provider web page.
type HTMLSource struct {
	name     string
	url      string
	client   *http.Client
	services []string
}

// NewHTMLSource creates a scraping source. services are attached to records
// that do not list their own.
func NewHTMLSource(name, url string, client *http.Client, services ...string) *HTMLSource {
	return &HTMLSource{name: name, url: url, client: client, services: services}
}

// Name returns the source name.
func (s *HTMLSource) Name() string { return s.name }

// Collect fetches the page and extracts places and organizations.
func (s *HTMLSource) Collect(ctx context.Context) ([]model.RawRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", httpclient.BrowserUserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", s.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("fetch %s: status %d", s.url, resp.StatusCode)
	}

	records, err := ExtractJSONLD(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", s.url, err)
	}

	for i := range records {
		if len(records[i].Services) == 0 {
			records[i].Services = append([]string(nil), s.services...)
		}
	}
	return records, nil
}

// StaticSource returns a fixed set of records.
type StaticSource struct {
	name    string
	records []model.RawRecord
}

// NewStaticSource creates a source over fixed records.
func NewStaticSource(name string, records ...model.RawRecord) *StaticSource {
	return &StaticSource{name: name, records: records}
}

// Name returns the source name.
func (s *StaticSource) Name() string { return s.name }

// Collect returns a copy of the fixed records.
func (s *StaticSource) Collect(context.Context) ([]model.RawRecord, error) {
	out := make([]model.RawRecord, len(s.records))
	copy(out, s.records)
	return out, nil
}

// DHHSSource is the Kent County DHHS office. The state publishes no feed,
// so the record is maintained here.
func DHHSSource() *StaticSource {
	return NewStaticSource("dhhs", model.RawRecord{
		Name:     "Kent County DHHS",
		Address:  "701 Ball Ave NE, Grand Rapids, MI 49503",
		Services: []string{"Food Assistance", "Cash Assistance", "Medicaid"},
		Hours:    "8:00 AM - 5:00 PM",
		Phone:    "(616) 632-7000",
		Website:  "https://www.accesskent.com/",
	})
}
