package models

import "time"

// Incident family and boundary types.
const (
	FamilyMKN      = "MKN"
	FamilyBoundary = "BOUNDARY"

	IncidentBoundaryNear    = "BOUNDARY_NEAR"
	IncidentBoundaryCrossed = "BOUNDARY_CROSSED"
)

// Incident groups successive alerts for one ship into a single trackable problem.
type Incident struct {
	ID                          string     `json:"id"`
	ShipCode                    string     `json:"ship_code"`
	Family                      string     `json:"family"`
	Type                        string     `json:"type"`
	StartedAt                   time.Time  `json:"started_at"`
	UserReportTimestamp         *time.Time `json:"user_report_timestamp,omitempty"`
	ResolvedAt                  *time.Time `json:"resolved_at,omitempty"`
	ResponseMinutesFromBaseline *int       `json:"response_minutes_from_baseline,omitempty"`
	CreatedAt                   time.Time  `json:"created_at"`
	UpdatedAt                   time.Time  `json:"updated_at"`
}

// Open reports whether the incident has not been resolved.
func (i Incident) Open() bool {
	return i.ResolvedAt == nil
}
