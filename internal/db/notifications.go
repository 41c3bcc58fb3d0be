package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"ship-notification-service/internal/models"
)

const notificationColumns = `
	id, client_request_id, request_id, ship_code, occurred_at, type, content,
	owner_name, owner_phone, agent_code, lat, lng, boundary_status_code, status,
	retry_count, max_retry, next_retry_at, failure_reason, incident_id,
	boundary_incident_id, priority, is_viewed, viewed_at, formatted_message,
	created_at, updated_at`

func scanNotification(row scanner) (*models.Notification, error) {
	var n models.Notification
	err := row.Scan(
		&n.ID, &n.ClientRequestID, &n.RequestID, &n.ShipCode, &n.OccurredAt, &n.Type, &n.Content,
		&n.OwnerName, &n.OwnerPhone, &n.AgentCode, &n.Lat, &n.Lng, &n.BoundaryStatusCode, &n.Status,
		&n.RetryCount, &n.MaxRetry, &n.NextRetryAt, &n.FailureReason, &n.IncidentID,
		&n.BoundaryIncidentID, &n.Priority, &n.IsViewed, &n.ViewedAt, &n.FormattedMessage,
		&n.CreatedAt, &n.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func collectNotifications(rows pgx.Rows) ([]models.Notification, error) {
	defer rows.Close()
	var out []models.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		out = append(out, *n)
	}
	return out, rows.Err()
}

// CreateNotification inserts n. A repeated client_request_id maps to models.ErrConflict.
func (d *DB) CreateNotification(ctx context.Context, n *models.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	query := `
        INSERT INTO notifications (` + notificationColumns + `)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18,
                $19, $20, $21, $22, $23, $24, $25, $26)`
	_, err := d.Pool.Exec(ctx, query,
		n.ID, n.ClientRequestID, n.RequestID, n.ShipCode, n.OccurredAt, n.Type, n.Content,
		n.OwnerName, n.OwnerPhone, n.AgentCode, n.Lat, n.Lng, n.BoundaryStatusCode, n.Status,
		n.RetryCount, n.MaxRetry, n.NextRetryAt, n.FailureReason, n.IncidentID,
		n.BoundaryIncidentID, n.Priority, n.IsViewed, n.ViewedAt, n.FormattedMessage,
		n.CreatedAt, n.UpdatedAt,
	)
	return mapErr(err, "failed to create notification")
}

func (d *DB) getNotificationBy(ctx context.Context, column, value string) (*models.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE ` + column + ` = $1`
	n, err := scanNotification(d.Pool.QueryRow(ctx, query, value))
	if err != nil {
		return nil, mapErr(err, fmt.Sprintf("no notification found for %s %s", column, value))
	}
	return n, nil
}

func (d *DB) GetNotification(ctx context.Context, id string) (*models.Notification, error) {
	return d.getNotificationBy(ctx, "id", id)
}

func (d *DB) GetNotificationByClientRequestID(ctx context.Context, clientRequestID string) (*models.Notification, error) {
	return d.getNotificationBy(ctx, "client_request_id", clientRequestID)
}

func (d *DB) GetNotificationByRequestID(ctx context.Context, requestID string) (*models.Notification, error) {
	return d.getNotificationBy(ctx, "request_id", requestID)
}

// SweepDuplicates ranks QUEUED notifications per (incident_id, type) and per
// (boundary_incident_id, type), newest first, and marks everything below rank 1 DUPLICATE.
func (d *DB) SweepDuplicates(ctx context.Context) (int64, error) {
	query := `
        WITH ranked AS (
            SELECT id, ROW_NUMBER() OVER (
                       PARTITION BY incident_id, type ORDER BY created_at DESC, id DESC) AS rn
            FROM notifications
            WHERE status = 'QUEUED' AND incident_id IS NOT NULL
            UNION ALL
            SELECT id, ROW_NUMBER() OVER (
                       PARTITION BY boundary_incident_id, type ORDER BY created_at DESC, id DESC) AS rn
            FROM notifications
            WHERE status = 'QUEUED' AND boundary_incident_id IS NOT NULL
        )
        UPDATE notifications n
        SET status = 'DUPLICATE', updated_at = NOW()
        FROM (SELECT DISTINCT id FROM ranked WHERE rn > 1) losers
        WHERE n.id = losers.id AND n.status = 'QUEUED'`
	result, err := d.Pool.Exec(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep duplicates: %w", err)
	}
	return result.RowsAffected(), nil
}

// ListDispatchable selects QUEUED notifications that rank first in their
// (incident_id, type) and (boundary_incident_id, type) partitions, plus FAILED
// ones due for retry when includeFailed is set, oldest first. A row queued
// after the sweep never lets its superseded siblings through.
func (d *DB) ListDispatchable(ctx context.Context, now time.Time, includeFailed bool, limit int) ([]models.Notification, error) {
	query := `
        SELECT ` + notificationColumns + `
        FROM notifications n
        WHERE (n.status = 'QUEUED' AND NOT EXISTS (
                   SELECT 1 FROM notifications o
                   WHERE o.status = 'QUEUED' AND o.type = n.type AND o.id <> n.id
                     AND ((n.incident_id IS NOT NULL AND o.incident_id = n.incident_id)
                       OR (n.boundary_incident_id IS NOT NULL AND o.boundary_incident_id = n.boundary_incident_id))
                     AND (o.created_at > n.created_at OR (o.created_at = n.created_at AND o.id > n.id))))
           OR ($1 AND n.status = 'FAILED' AND n.retry_count < n.max_retry
               AND n.next_retry_at IS NOT NULL AND n.next_retry_at <= $2)
        ORDER BY n.created_at ASC, n.id ASC
        LIMIT $3`
	rows, err := d.Pool.Query(ctx, query, includeFailed, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list dispatchable notifications: %w", err)
	}
	return collectNotifications(rows)
}

// ClaimForSending is the optimistic QUEUED/FAILED -> SENDING transition.
func (d *DB) ClaimForSending(ctx context.Context, id string, from models.Status) (bool, error) {
	result, err := d.Pool.Exec(ctx, `
        UPDATE notifications SET status = 'SENDING', updated_at = NOW()
        WHERE id = $1 AND status = $2`, id, from)
	if err != nil {
		return false, fmt.Errorf("failed to claim notification %s: %w", id, err)
	}
	return result.RowsAffected() == 1, nil
}

func (d *DB) MarkSent(ctx context.Context, id string, at time.Time) error {
	result, err := d.Pool.Exec(ctx, `
        UPDATE notifications
        SET status = 'SENT', retry_count = 0, failure_reason = '', next_retry_at = NULL, updated_at = $2
        WHERE id = $1 AND status = 'SENDING'`, id, at)
	if err != nil {
		return fmt.Errorf("failed to mark notification %s sent: %w", id, err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("notification %s is not SENDING: %w", id, models.ErrConflict)
	}
	return nil
}

func (d *DB) MarkFailed(ctx context.Context, id string, reason models.FailureReason, retryCount int, nextRetryAt *time.Time, at time.Time) error {
	result, err := d.Pool.Exec(ctx, `
        UPDATE notifications
        SET status = 'FAILED', failure_reason = $2, retry_count = $3, next_retry_at = $4, updated_at = $5
        WHERE id = $1 AND status = 'SENDING'`, id, reason, retryCount, nextRetryAt, at)
	if err != nil {
		return fmt.Errorf("failed to mark notification %s failed: %w", id, err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("notification %s is not SENDING: %w", id, models.ErrConflict)
	}
	return nil
}

func (d *DB) SaveFormattedMessage(ctx context.Context, id, message string) error {
	_, err := d.Pool.Exec(ctx, `UPDATE notifications SET formatted_message = $2 WHERE id = $1`, id, message)
	if err != nil {
		return fmt.Errorf("failed to cache formatted message for %s: %w", id, err)
	}
	return nil
}

func (d *DB) MarkViewed(ctx context.Context, id string, at time.Time) error {
	result, err := d.Pool.Exec(ctx, `
        UPDATE notifications SET is_viewed = TRUE, viewed_at = COALESCE(viewed_at, $2)
        WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("failed to mark notification %s viewed: %w", id, err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("notification %s: %w", id, models.ErrNotFound)
	}
	return nil
}

func (d *DB) ListNotificationsByShip(ctx context.Context, shipCode string, limit, offset int) ([]models.Notification, error) {
	query := `
        SELECT ` + notificationColumns + `
        FROM notifications
        WHERE ship_code = $1
        ORDER BY created_at DESC
        LIMIT $2 OFFSET $3`
	rows, err := d.Pool.Query(ctx, query, shipCode, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications for ship %s: %w", shipCode, err)
	}
	return collectNotifications(rows)
}

// CreateDeliveryRecords writes one audit row per device token in a single batch.
func (d *DB) CreateDeliveryRecords(ctx context.Context, records []models.DeliveryRecord) error {
	if len(records) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, r := range records {
		if r.ID == "" {
			r.ID = uuid.NewString()
		}
		batch.Queue(`
            INSERT INTO notification_records (
                id, notification_id, user_id, device_token, title, body, success, error, created_at
            ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			r.ID, r.NotificationID, r.UserID, r.DeviceToken, r.Title, r.Body, r.Success, r.Error, r.CreatedAt)
	}
	if err := d.Pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to insert notification records: %w", err)
	}
	return nil
}
