package feeder

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"

	"github.com/pantrynav/pantrynav/internal/model"
)

// placeTypes are the schema.org types read as providers.
var placeTypes = map[string]bool{
	"Place":             true,
	"Organization":      true,
	"LocalBusiness":     true,
	"NGO":               true,
	"GovernmentOffice":  true,
	"FoodEstablishment": true,
	"CivicStructure":    true,
}

// ExtractJSONLD parses an HTML document and returns one record per
// schema.org place or organization found in its JSON-LD blocks.
// Blocks that are not valid JSON are skipped.
func ExtractJSONLD(r io.Reader) ([]model.RawRecord, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	var records []model.RawRecord
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "script" && isJSONLD(n) && n.FirstChild != nil {
			var v any
			if err := json.Unmarshal([]byte(n.FirstChild.Data), &v); err == nil {
				records = append(records, collectNodes(v)...)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return records, nil
}

func isJSONLD(n *html.Node) bool {
	for _, a := range n.Attr {
		if a.Key == "type" && strings.EqualFold(strings.TrimSpace(a.Val), "application/ld+json") {
			return true
		}
	}
	return false
}

// collectNodes walks arrays and @graph containers.
func collectNodes(v any) []model.RawRecord {
	switch t := v.(type) {
	case []any:
		var out []model.RawRecord
		for _, item := range t {
			out = append(out, collectNodes(item)...)
		}
		return out
	case map[string]any:
		var out []model.RawRecord
		if graph, ok := t["@graph"]; ok {
			out = append(out, collectNodes(graph)...)
		}
		if hasPlaceType(t["@type"]) {
			if rec, ok := recordFromNode(t); ok {
				out = append(out, rec)
			}
		}
		return out
	default:
		return nil
	}
}

func hasPlaceType(v any) bool {
	switch t := v.(type) {
	case string:
		return placeTypes[t]
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok && placeTypes[s] {
				return true
			}
		}
	}
	return false
}

func recordFromNode(n map[string]any) (model.RawRecord, bool) {
	name := str(n["name"])
	if name == "" {
		return model.RawRecord{}, false
	}

	rec := model.RawRecord{
		Name:     name,
		Address:  address(n["address"]),
		Phone:    str(n["telephone"]),
		Website:  str(n["url"]),
		Hours:    strings.Join(strs(n["openingHours"]), ", "),
		Services: strs(n["serviceType"]),
	}

	if len(rec.Services) == 0 {
		rec.Services = strs(n["knowsAbout"])
	}

	if g, ok := n["geo"].(map[string]any); ok {
		lat, latOK := num(g["latitude"])
		lng, lngOK := num(g["longitude"])
		if latOK && lngOK {
			rec.Latitude, rec.Longitude = &lat, &lng
		}
	}

	return rec, true
}

func address(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case map[string]any:
		street := str(t["streetAddress"])
		locality := str(t["addressLocality"])
		region := str(t["addressRegion"])
		postal := str(t["postalCode"])

		parts := make([]string, 0, 3)
		if street != "" {
			parts = append(parts, street)
		}
		if locality != "" {
			parts = append(parts, locality)
		}
		tail := strings.TrimSpace(region + " " + postal)
		if tail != "" {
			parts = append(parts, tail)
		}
		return strings.Join(parts, ", ")
	case []any:
		if len(t) > 0 {
			return address(t[0])
		}
	}
	return ""
}

func str(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case []any:
		if len(t) > 0 {
			return str(t[0])
		}
	}
	return ""
}

func strs(v any) []string {
	switch t := v.(type) {
	case string:
		if s := strings.TrimSpace(t); s != "" {
			return []string{s}
		}
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s := str(item); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func num(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case string:
		var f float64
		if _, err := fmt.Sscanf(t, "%g", &f); err == nil {
			return f, true
		}
	}
	return 0, false
}
