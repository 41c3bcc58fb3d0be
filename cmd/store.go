package main

import (
	"context"
	"time"

	"ship-notification-service/internal/db"
	"ship-notification-service/internal/memstore"
	"ship-notification-service/internal/models"
)

// store is everything the engine persists, implemented by Postgres and by memstore.
type store interface {
	CreateNotification(ctx context.Context, n *models.Notification) error
	GetNotification(ctx context.Context, id string) (*models.Notification, error)
	GetNotificationByClientRequestID(ctx context.Context, clientRequestID string) (*models.Notification, error)
	GetNotificationByRequestID(ctx context.Context, requestID string) (*models.Notification, error)
	SweepDuplicates(ctx context.Context) (int64, error)
	ListDispatchable(ctx context.Context, now time.Time, includeFailed bool, limit int) ([]models.Notification, error)
	ClaimForSending(ctx context.Context, id string, from models.Status) (bool, error)
	MarkSent(ctx context.Context, id string, at time.Time) error
	MarkFailed(ctx context.Context, id string, reason models.FailureReason, retryCount int, nextRetryAt *time.Time, at time.Time) error
	SaveFormattedMessage(ctx context.Context, id, message string) error
	MarkViewed(ctx context.Context, id string, at time.Time) error
	ListNotificationsByShip(ctx context.Context, shipCode string, limit, offset int) ([]models.Notification, error)
	CreateDeliveryRecords(ctx context.Context, records []models.DeliveryRecord) error

	FindOpenIncident(ctx context.Context, shipCode, family string) (*models.Incident, error)
	CreateIncident(ctx context.Context, inc *models.Incident) error
	UpdateIncidentType(ctx context.Context, id, typ string, at time.Time) error
	ResolveOpenIncidents(ctx context.Context, shipCode, family string, resolvedAt time.Time) (int64, error)
	GetIncident(ctx context.Context, id string) (*models.Incident, error)
	RecordIncidentReport(ctx context.Context, id string, reportedAt time.Time, responseMinutes int, resolvedAt time.Time) (bool, error)
	ListIncidents(ctx context.Context, shipCode string, openOnly bool) ([]models.Incident, error)

	UpsertOwner(ctx context.Context, phone, name string) (*models.User, error)
	UpsertShip(ctx context.Context, code, ownerID string) error
	FindUserByPhone(ctx context.Context, phone string) (*models.User, error)
	RegisterDevice(ctx context.Context, d *models.Device) error
	ListDeviceTokens(ctx context.Context, userID string) ([]string, error)

	ListTypeDefinitions(ctx context.Context) ([]models.TypeDefinition, error)
	UpsertTypeDefinition(ctx context.Context, def models.TypeDefinition) error
}

var (
	_ store = (*db.DB)(nil)
	_ store = (*memstore.Store)(nil)
)
