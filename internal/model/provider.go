// Package model defines domain entities for the application.
package model

// OrganizationType classifies a provider. It drives marker color and filters.
type OrganizationType string

const (
	OrgTypeFoodPantry    OrganizationType = "food_pantry"
	OrgTypeDHHS          OrganizationType = "dhhs"
	OrgTypeYWCA          OrganizationType = "ywca"
	OrgTypeSalvationArmy OrganizationType = "salvation_army"
)

// OrganizationTypes lists the known types in display order.
var OrganizationTypes = []OrganizationType{
	OrgTypeFoodPantry,
	OrgTypeDHHS,
	OrgTypeYWCA,
	OrgTypeSalvationArmy,
}

// IsValid checks if the organization type is one of the known types.
func (t OrganizationType) IsValid() bool {
	for _, known := range OrganizationTypes {
		if t == known {
			return true
		}
	}
	return false
}

// MarkerColor returns the map marker color for an organization type.
func MarkerColor(t OrganizationType) string {
	switch t {
	case OrgTypeFoodPantry:
		return "green"
	case OrgTypeDHHS:
		return "blue"
	case OrgTypeYWCA:
		return "purple"
	default:
		return "red"
	}
}

// Organization is a service provider.
type Organization struct {
	ID      int64            `json:"id"`
	Name    string           `json:"name"`
	Type    OrganizationType `json:"type"`
	Website string           `json:"website,omitempty"`
	Phone   string           `json:"phone,omitempty"`
}

// Location is a physical site of an organization.
type Location struct {
	ID                   int64    `json:"id"`
	OrganizationID       int64    `json:"organization_id"`
	Address              string   `json:"address"`
	City                 string   `json:"city"`
	State                string   `json:"state"`
	ZipCode              string   `json:"zip_code"`
	Latitude             *float64 `json:"latitude"`
	Longitude            *float64 `json:"longitude"`
	Hours                string   `json:"hours"`
	WheelchairAccessible bool     `json:"wheelchair_accessible"`
}

// Service is an offering such as "Food Assistance".
type Service struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
}

// Requirement is an eligibility requirement for a service at an organization.
type Requirement struct {
	ID             int64  `json:"id"`
	OrganizationID int64  `json:"organization_id"`
	ServiceID      *int64 `json:"service_id,omitempty"`
	Requirement    string `json:"requirement"`
}

// ServiceLocation is one dashboard row: an organization location joined with
// its aggregated services, requirements and categories.
type ServiceLocation struct {
	OrganizationID       int64            `json:"organization_id"`
	LocationID           int64            `json:"location_id"`
	Name                 string           `json:"name"`
	Type                 OrganizationType `json:"type"`
	Address              string           `json:"address"`
	City                 string           `json:"city"`
	State                string           `json:"state"`
	ZipCode              string           `json:"zip_code"`
	Latitude             *float64         `json:"latitude"`
	Longitude            *float64         `json:"longitude"`
	Hours                string           `json:"hours"`
	WheelchairAccessible bool             `json:"wheelchair_accessible"`
	Services             string           `json:"services"`
	Requirements         string           `json:"requirements"`
	Categories           string           `json:"categories"`
	Website              string           `json:"website,omitempty"`
	Phone                string           `json:"phone,omitempty"`
}

// HasCoordinates reports whether the row can be placed on a map.
func (s *ServiceLocation) HasCoordinates() bool {
	return s.Latitude != nil && s.Longitude != nil
}

// MarkerColor returns the marker color for the row's organization type.
func (s *ServiceLocation) MarkerColor() string {
	return MarkerColor(s.Type)
}

// ServiceLocationFilter narrows the dashboard query. Empty slices mean no filter.
type ServiceLocationFilter struct {
	Types          []OrganizationType `json:"types,omitempty"`
	Categories     []string           `json:"categories,omitempty"`
	AccessibleOnly bool               `json:"accessible_only,omitempty"`
}
