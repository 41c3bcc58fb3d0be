package models

import (
	"strings"
	"time"
)

// NotificationType is the alert kind reported for a vessel.
type NotificationType string

const (
	TypeNormal      NotificationType = "NORMAL"
	TypeMKN2H       NotificationType = "MKN_2H"
	TypeMKN5H       NotificationType = "MKN_5H"
	TypeMKN6H       NotificationType = "MKN_6H"
	TypeMKN8D       NotificationType = "MKN_8D"
	TypeMKN10D      NotificationType = "MKN_10D"
	TypeKNL         NotificationType = "KNL"
	TypeNearBorder  NotificationType = "NEAR_BORDER"
	TypeCrossBorder NotificationType = "CROSS_BORDER"
)

// AllTypes lists every accepted notification type.
var AllTypes = []NotificationType{
	TypeNormal, TypeMKN2H, TypeMKN5H, TypeMKN6H, TypeMKN8D, TypeMKN10D, TypeKNL, TypeNearBorder, TypeCrossBorder,
}

// IsMKN reports whether t belongs to the connection-loss family.
func (t NotificationType) IsMKN() bool {
	return strings.HasPrefix(string(t), "MKN")
}

// Valid reports whether t is a known type.
func (t NotificationType) Valid() bool {
	for _, k := range AllTypes {
		if k == t {
			return true
		}
	}
	return false
}

// Status is the delivery state of a notification.
type Status string

const (
	StatusQueued    Status = "QUEUED"
	StatusSending   Status = "SENDING"
	StatusSent      Status = "SENT"
	StatusDelivered Status = "DELIVERED"
	StatusFailed    Status = "FAILED"
	StatusDuplicate Status = "DUPLICATE"
)

// FailureReason classifies why a dispatch failed.
type FailureReason string

const (
	FailureUserNotFound   FailureReason = "USER_NOT_FOUND"
	FailureNoDeviceFound  FailureReason = "NO_DEVICE_FOUND"
	FailureTransportError FailureReason = "TRANSPORT_ERROR"
	FailureNetworkError   FailureReason = "NETWORK_ERROR"
	FailureUnknown        FailureReason = "UNKNOWN"
)

// Boundary status codes reported by the geofence.
const (
	BoundaryInside  = "1"
	BoundaryNear    = "2"
	BoundaryCrossed = "3"
)

// Notification is a single alert addressed to a ship owner together with its delivery state.
type Notification struct {
	ID                 string           `json:"id"`
	ClientRequestID    string           `json:"client_request_id"`
	RequestID          string           `json:"request_id"`
	ShipCode           string           `json:"ship_code"`
	OccurredAt         time.Time        `json:"occurred_at"`
	Type               NotificationType `json:"type"`
	Content            string           `json:"content"`
	OwnerName          string           `json:"owner_name"`
	OwnerPhone         string           `json:"owner_phone"`
	AgentCode          string           `json:"agent_code,omitempty"`
	Lat                *float64         `json:"lat,omitempty"`
	Lng                *float64         `json:"lng,omitempty"`
	BoundaryStatusCode string           `json:"boundary_status_code,omitempty"`
	Status             Status           `json:"status"`
	RetryCount         int              `json:"retry_count"`
	MaxRetry           int              `json:"max_retry"`
	NextRetryAt        *time.Time       `json:"next_retry_at,omitempty"`
	FailureReason      FailureReason    `json:"failure_reason,omitempty"`
	IncidentID         *string          `json:"incident_id,omitempty"`
	BoundaryIncidentID *string          `json:"boundary_incident_id,omitempty"`
	Priority           int              `json:"priority"`
	IsViewed           bool             `json:"is_viewed"`
	ViewedAt           *time.Time       `json:"viewed_at,omitempty"`
	FormattedMessage   string           `json:"formatted_message,omitempty"`
	CreatedAt          time.Time        `json:"created_at"`
	UpdatedAt          time.Time        `json:"updated_at"`
}

// Standalone reports whether the notification is linked to no incident at all.
func (n Notification) Standalone() bool {
	return n.IncidentID == nil && n.BoundaryIncidentID == nil
}

// Receipt is returned to callers of submit and status queries.
type Receipt struct {
	RequestID       string `json:"request_id"`
	ClientRequestID string `json:"client_request_id"`
	Status          Status `json:"status"`
}

// Receipt builds the caller-facing view of n.
func (n Notification) Receipt() Receipt {
	return Receipt{RequestID: n.RequestID, ClientRequestID: n.ClientRequestID, Status: n.Status}
}

// DeliveryRecord is the per-device audit row written for every transport attempt.
type DeliveryRecord struct {
	ID             string    `json:"id"`
	NotificationID string    `json:"notification_id"`
	UserID         string    `json:"user_id"`
	DeviceToken    string    `json:"device_token"`
	Title          string    `json:"title"`
	Body           string    `json:"body"`
	Success        bool      `json:"success"`
	Error          string    `json:"error,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// StatusEvent is published whenever a dispatch changes a notification's state.
type StatusEvent struct {
	NotificationID  string           `json:"notification_id"`
	ClientRequestID string           `json:"client_request_id"`
	ShipCode        string           `json:"ship_code"`
	Type            NotificationType `json:"type"`
	Status          Status           `json:"status"`
	FailureReason   FailureReason    `json:"failure_reason,omitempty"`
	At              time.Time        `json:"at"`
}
