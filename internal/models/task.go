package models

import "time"

// Submission is an inbound vessel alert, from the HTTP API or the Kafka stream.
type Submission struct {
	ClientRequestID    string           `json:"client_request_id" validate:"required,uuid"`
	ShipCode           string           `json:"ship_code" validate:"required,max=64"`
	OccurredAt         time.Time        `json:"occurred_at" validate:"required"`
	Content            string           `json:"content" validate:"max=500"`
	OwnerName          string           `json:"owner_name" validate:"required,max=255"`
	OwnerPhone         string           `json:"owner_phone" validate:"required,phone"`
	Type               NotificationType `json:"type" validate:"required,notification_type"`
	BoundaryStatusCode string           `json:"boundary_status_code,omitempty" validate:"omitempty,oneof=1 2 3"`
	Lat                *float64         `json:"lat,omitempty" validate:"omitempty,latitude"`
	Lng                *float64         `json:"lng,omitempty" validate:"omitempty,longitude"`
	AgentCode          string           `json:"agent_code,omitempty" validate:"max=64"`
}

// Report is an officer-filed report that resolves the incident behind a notification.
type Report struct {
	NotificationID string    `json:"notification_id" validate:"required"`
	ReportedAt     time.Time `json:"reported_at" validate:"required"`
}

// DeviceRegistration attaches a push token to the owner identified by phone.
type DeviceRegistration struct {
	Phone    string `json:"phone" validate:"required,phone"`
	Token    string `json:"token" validate:"required,max=512"`
	Platform string `json:"platform" validate:"omitempty,oneof=android ios telegram"`
}
