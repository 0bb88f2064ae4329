package model

import "time"

// Resource is a flat directory entry for one provider.
type Resource struct {
	ID                    string    `json:"id"`
	Name                  string    `json:"name"`
	Description           string    `json:"description"`
	Website               string    `json:"website"`
	Phone                 string    `json:"phone"`
	Email                 string    `json:"email"`
	Address               string    `json:"address"`
	Hours                 string    `json:"hours"`
	Eligibility           string    `json:"eligibility"`
	Requirements          []string  `json:"requirements"`
	Categories            []string  `json:"categories"`
	LastUpdated           time.Time `json:"last_updated"`
	Latitude              float64   `json:"latitude,omitempty"`
	Longitude             float64   `json:"longitude,omitempty"`
	TransportationOptions []string  `json:"transportation_options,omitempty"`
	TransitRoutes         []string  `json:"transit_routes,omitempty"`
}

// HasCategory reports whether the resource is tagged with category.
func (r *Resource) HasCategory(category string) bool {
	for _, c := range r.Categories {
		if c == category {
			return true
		}
	}
	return false
}

// TransportOption describes one way of reaching a resource.
type TransportOption struct {
	Type          string   `json:"type"`
	Name          string   `json:"name,omitempty"`
	Website       string   `json:"website,omitempty"`
	Routes        []string `json:"routes,omitempty"`
	Stations      []string `json:"stations,omitempty"`
	Locations     []string `json:"locations,omitempty"`
	EstimatedTime string   `json:"estimated_time,omitempty"`
	Distance      string   `json:"distance,omitempty"`
}

// TransportOptions expands TransportationOptions into detail records.
// Unknown option names are ignored.
func (r *Resource) TransportOptions() []TransportOption {
	options := make([]TransportOption, 0, len(r.TransportationOptions))
	for _, opt := range r.TransportationOptions {
		switch opt {
		case "bus":
			options = append(options, TransportOption{
				Type:    "bus",
				Name:    "The Rapid",
				Website: "https://www.the-rapid.org",
				Routes:  r.TransitRoutes,
			})
		case "bike":
			options = append(options, TransportOption{
				Type:     "bike",
				Name:     "GR Bike Share",
				Website:  "https://grbikeshare.org",
				Stations: []string{},
			})
		case "carshare":
			options = append(options, TransportOption{
				Type:      "carshare",
				Name:      "MDO Carshare",
				Website:   "https://mdocarshare.com",
				Locations: []string{},
			})
		case "walk":
			options = append(options, TransportOption{Type: "walk"})
		}
	}
	return options
}
