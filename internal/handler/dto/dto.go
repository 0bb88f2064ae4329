// Package dto holds the JSON shapes of the HTTP API.
package dto

import (
	"time"

	"github.com/pantrynav/pantrynav/internal/model"
	"github.com/pantrynav/pantrynav/internal/predict"
)

// ErrorResponse represents an API error. Code is omitted for the plain
// {"error": "..."} bodies the resource API returns.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// ServiceLocationResponse is one dashboard row with its marker color.
type ServiceLocationResponse struct {
	model.ServiceLocation
	MarkerColor string `json:"marker_color"`
}

// ToServiceLocationResponses converts rows for /api/services.
func ToServiceLocationResponses(rows []model.ServiceLocation) []ServiceLocationResponse {
	out := make([]ServiceLocationResponse, len(rows))
	for i, r := range rows {
		out[i] = ServiceLocationResponse{
			ServiceLocation: r,
			MarkerColor:     r.MarkerColor(),
		}
	}
	return out
}

// ServicesResponse is returned by GET /api/services.
type ServicesResponse struct {
	Locations  []ServiceLocationResponse   `json:"locations"`
	TotalCount int                         `json:"total_count"`
	Filter     model.ServiceLocationFilter `json:"filter"`
}

// ResourcesResponse is returned by GET /api/resources.
type ResourcesResponse struct {
	Resources  []model.Resource `json:"resources"`
	TotalCount int              `json:"total_count"`
	Timestamp  time.Time        `json:"timestamp"`
}

// TransportResponse is returned by GET /api/resources/{id}/transport.
type TransportResponse struct {
	ResourceID string                  `json:"resource_id"`
	Options    []model.TransportOption `json:"options"`
}

// DemandResponse is returned by GET /api/demand.
type DemandResponse struct {
	Latitude        float64          `json:"latitude"`
	Longitude       float64          `json:"longitude"`
	At              time.Time        `json:"at"`
	PredictedDemand float64          `json:"predicted_demand"`
	Features        predict.Features `json:"features"`
}

// CacheClearResponse is returned by DELETE /admin/cache/{type}.
type CacheClearResponse struct {
	Type    string `json:"type"`
	Deleted int    `json:"deleted"`
}

// RateLimitResetResponse is returned by DELETE /admin/ratelimit/{service}/{client}.
type RateLimitResetResponse struct {
	Service string `json:"service"`
	Client  string `json:"client"`
	Reset   bool   `json:"reset"`
}
