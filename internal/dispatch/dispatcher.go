// Package dispatch resolves the recipient of a SENDING notification, renders
// it, hands it to the push transport and records the outcome.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"ship-notification-service/internal/models"
	"ship-notification-service/pkg/phone"
)

type notificationStore interface {
	SaveFormattedMessage(ctx context.Context, id, message string) error
	MarkSent(ctx context.Context, id string, at time.Time) error
	MarkFailed(ctx context.Context, id string, reason models.FailureReason, retryCount int, nextRetryAt *time.Time, at time.Time) error
	CreateDeliveryRecords(ctx context.Context, records []models.DeliveryRecord) error
}

type identityStore interface {
	FindUserByPhone(ctx context.Context, phone string) (*models.User, error)
	ListDeviceTokens(ctx context.Context, userID string) ([]string, error)
}

// Publisher receives a status event after every dispatch.
type Publisher interface {
	Publish(evt models.StatusEvent)
}

// Outcome is the result of one dispatch.
type Outcome struct {
	Success       bool
	FailureReason models.FailureReason
	Err           error
}

// errNoDelivery is returned when the transport accepted the call but no device took the message.
var errNoDelivery = fmt.Errorf("no device accepted the message: %w", models.ErrTransport)

type Dispatcher struct {
	notifications notificationStore
	identity      identityStore
	renderer      *Renderer
	transport     models.Transport
	publisher     Publisher
	logger        *logrus.Logger
	now           func() time.Time
}

func New(notifications notificationStore, identity identityStore, renderer *Renderer, transport models.Transport, logger *logrus.Logger) *Dispatcher {
	return &Dispatcher{
		notifications: notifications,
		identity:      identity,
		renderer:      renderer,
		transport:     transport,
		logger:        logger,
		now:           time.Now,
	}
}

// SetPublisher attaches a listener for status events.
func (d *Dispatcher) SetPublisher(p Publisher) {
	d.publisher = p
}

// Dispatch delivers n, which must already be SENDING, and moves it to SENT or FAILED.
// Every error is folded into the returned Outcome.
func (d *Dispatcher) Dispatch(ctx context.Context, n models.Notification) (out Outcome) {
	start := time.Now()
	log := d.logger.WithFields(logrus.Fields{
		"notification_id": n.ID,
		"request_id":      n.RequestID,
		"ship_code":       n.ShipCode,
		"type":            n.Type,
	})

	defer func() {
		if r := recover(); r != nil {
			log.Errorf("Dispatch panicked: %v", r)
			out = d.fail(ctx, n, models.FailureUnknown, fmt.Errorf("panic: %v", r), log)
		}
		dispatchDuration.Observe(time.Since(start).Seconds())
		outcome := "sent"
		if !out.Success {
			outcome = string(out.FailureReason)
		}
		dispatchTotal.WithLabelValues(outcome).Inc()
	}()

	user, err := d.resolveRecipient(ctx, n.OwnerPhone)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return d.fail(ctx, n, models.FailureUserNotFound, err, log)
		}
		return d.fail(ctx, n, Classify(err), err, log)
	}

	title, body := d.renderer.Render(n)
	if err := d.notifications.SaveFormattedMessage(ctx, n.ID, body); err != nil {
		log.Warnf("Failed to cache formatted message: %v", err)
	}

	tokens, err := d.identity.ListDeviceTokens(ctx, user.ID)
	if err != nil {
		return d.fail(ctx, n, Classify(err), err, log)
	}
	if len(tokens) == 0 {
		return d.fail(ctx, n, models.FailureNoDeviceFound, fmt.Errorf("user %s has no device: %w", user.ID, models.ErrNotFound), log)
	}

	msg := models.PushMessage{Title: title, Body: body, Data: payload(n)}
	result, sendErr := d.transport.SendBatch(ctx, msg, tokens)
	d.recordDeliveries(ctx, n, user.ID, msg, tokens, result, sendErr, log)

	if sendErr != nil {
		return d.fail(ctx, n, Classify(sendErr), sendErr, log)
	}
	if result.SuccessCount == 0 {
		return d.fail(ctx, n, models.FailureTransportError, errNoDelivery, log)
	}

	if err := d.notifications.MarkSent(ctx, n.ID, d.now()); err != nil {
		log.Errorf("Failed to mark notification sent: %v", err)
		return Outcome{Success: true, Err: err}
	}
	log.WithField("devices", result.SuccessCount).Info("Notification sent")
	d.publish(n, models.StatusSent, "")
	return Outcome{Success: true}
}

// resolveRecipient tries the raw phone and its 0 / +84 variants in order.
func (d *Dispatcher) resolveRecipient(ctx context.Context, raw string) (*models.User, error) {
	for _, candidate := range phone.Candidates(raw) {
		u, err := d.identity.FindUserByPhone(ctx, candidate)
		if err == nil {
			return u, nil
		}
		if !errors.Is(err, models.ErrNotFound) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("owner phone %s: %w", raw, models.ErrNotFound)
}

func (d *Dispatcher) fail(ctx context.Context, n models.Notification, reason models.FailureReason, cause error, log *logrus.Entry) Outcome {
	count, next := Backoff(n.RetryCount, n.MaxRetry, d.now())
	if err := d.notifications.MarkFailed(ctx, n.ID, reason, count, next, d.now()); err != nil {
		log.Errorf("Failed to mark notification failed: %v", err)
	}
	entry := log.WithFields(logrus.Fields{"reason": reason, "retry_count": count})
	if next != nil {
		entry.WithField("next_retry_at", next.Format(time.RFC3339)).Warnf("Dispatch failed: %v", cause)
	} else {
		entry.Errorf("Dispatch failed permanently: %v", cause)
	}
	d.publish(n, models.StatusFailed, reason)
	return Outcome{FailureReason: reason, Err: cause}
}

// recordDeliveries mirrors the attempt into one audit row per device token.
func (d *Dispatcher) recordDeliveries(ctx context.Context, n models.Notification, userID string, msg models.PushMessage, tokens []string, result models.BatchResult, sendErr error, log *logrus.Entry) {
	perToken := make(map[string]error, len(result.Results))
	accepted := make(map[string]bool, len(result.Results))
	for _, r := range result.Results {
		perToken[r.Token] = r.Err
		accepted[r.Token] = r.Err == nil
	}

	now := d.now()
	records := make([]models.DeliveryRecord, 0, len(tokens))
	for _, tok := range tokens {
		rec := models.DeliveryRecord{
			ID:             uuid.NewString(),
			NotificationID: n.ID,
			UserID:         userID,
			DeviceToken:    tok,
			Title:          msg.Title,
			Body:           msg.Body,
			Success:        sendErr == nil && accepted[tok],
			CreatedAt:      now,
		}
		switch {
		case sendErr != nil:
			rec.Error = sendErr.Error()
		case perToken[tok] != nil:
			rec.Error = perToken[tok].Error()
		}
		records = append(records, rec)
	}
	if err := d.notifications.CreateDeliveryRecords(ctx, records); err != nil {
		log.Warnf("Failed to write delivery records: %v", err)
	}
}

func (d *Dispatcher) publish(n models.Notification, status models.Status, reason models.FailureReason) {
	if d.publisher == nil {
		return
	}
	d.publisher.Publish(models.StatusEvent{
		NotificationID:  n.ID,
		ClientRequestID: n.ClientRequestID,
		ShipCode:        n.ShipCode,
		Type:            n.Type,
		Status:          status,
		FailureReason:   reason,
		At:              d.now(),
	})
}

func payload(n models.Notification) map[string]string {
	data := map[string]string{
		"notification_id":   n.ID,
		"client_request_id": n.ClientRequestID,
		"request_id":        n.RequestID,
		"ship_code":         n.ShipCode,
		"type":              string(n.Type),
		"occurred_at":       n.OccurredAt.UTC().Format(time.RFC3339),
	}
	if n.IncidentID != nil {
		data["incident_id"] = *n.IncidentID
	}
	if n.BoundaryIncidentID != nil {
		data["boundary_incident_id"] = *n.BoundaryIncidentID
	}
	return data
}
