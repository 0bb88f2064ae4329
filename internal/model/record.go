package model

import (
	"strings"
	"time"
)

// Weekdays are the keys of WeeklyHours, monday first.
var Weekdays = []string{"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday"}

// WeeklyHours maps a lowercase weekday to its opening hours.
type WeeklyHours map[string]string

// Summary collapses the week to one string when every day matches.
func (w WeeklyHours) Summary() string {
	first := w[Weekdays[0]]
	for _, d := range Weekdays[1:] {
		if w[d] != first {
			parts := make([]string, 0, len(Weekdays))
			for _, day := range Weekdays {
				if w[day] != "" {
					parts = append(parts, day+": "+w[day])
				}
			}
			return strings.Join(parts, "; ")
		}
	}
	return first
}

// RawRecord is a provider record as collected from a source, before normalization.
type RawRecord struct {
	Source       string    `json:"source"`
	Name         string    `json:"name"`
	Address      string    `json:"address"`
	Services     []string  `json:"services"`
	Hours        string    `json:"hours"`
	Phone        string    `json:"phone,omitempty"`
	Website      string    `json:"website,omitempty"`
	Requirements []string  `json:"requirements,omitempty"`
	Latitude     *float64  `json:"latitude"`
	Longitude    *float64  `json:"longitude"`
	LastUpdated  time.Time `json:"last_updated"`
}

// ServiceRecord is a normalized provider record ready for storage.
type ServiceRecord struct {
	Source    string      `json:"source"`
	Name      string      `json:"name"`
	Address   string      `json:"address"`
	Latitude  *float64    `json:"latitude"`
	Longitude *float64    `json:"longitude"`
	City      string      `json:"city"`
	State     string      `json:"state"`
	ZipCode   string      `json:"zip_code"`
	Services  []string    `json:"services"`
	Hours     WeeklyHours `json:"hours"`
	Phone     string      `json:"phone"`
	Website   string      `json:"website"`
	// Organization-wide eligibility requirements.
	Requirements []string  `json:"requirements,omitempty"`
	LastUpdated  time.Time `json:"last_updated"`
}

// OrganizationType maps the record source to an organization type.
// Unknown sources are treated as food pantries.
func (r *ServiceRecord) OrganizationType() OrganizationType {
	switch r.Source {
	case "dhhs":
		return OrgTypeDHHS
	case "ywca":
		return OrgTypeYWCA
	case "salvation_army":
		return OrgTypeSalvationArmy
	default:
		return OrgTypeFoodPantry
	}
}

// StandardCategories are the normalized service categories.
var StandardCategories = []string{
	"food assistance",
	"housing",
	"medical",
	"employment",
	"education",
	"legal",
	"financial",
}

// ServiceCategory returns the category stored for a service name: the name
// itself for a standard category, "other" for anything else.
func ServiceCategory(name string) string {
	for _, c := range StandardCategories {
		if c == name {
			return c
		}
	}
	return "other"
}
