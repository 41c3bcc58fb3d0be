// Package notification is the ingestion side of the engine: it validates
// submissions, correlates them under a per-ship lock, persists them and runs
// the immediate boundary sub-flow.
package notification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"

	"ship-notification-service/internal/dispatch"
	"ship-notification-service/internal/models"
	"ship-notification-service/internal/utils"
	"ship-notification-service/pkg/phone"
	"ship-notification-service/pkg/validate"
)

// boundaryNamespace derives the idempotency key of a synthesized boundary alert
// from the key of the submission that triggered it.
var boundaryNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:ship-notification:boundary"))

const immediateDispatchTimeout = 30 * time.Second

type store interface {
	CreateNotification(ctx context.Context, n *models.Notification) error
	GetNotification(ctx context.Context, id string) (*models.Notification, error)
	GetNotificationByClientRequestID(ctx context.Context, clientRequestID string) (*models.Notification, error)
	GetNotificationByRequestID(ctx context.Context, requestID string) (*models.Notification, error)
	ClaimForSending(ctx context.Context, id string, from models.Status) (bool, error)
	MarkViewed(ctx context.Context, id string, at time.Time) error
	ListNotificationsByShip(ctx context.Context, shipCode string, limit, offset int) ([]models.Notification, error)

	GetIncident(ctx context.Context, id string) (*models.Incident, error)
	ListIncidents(ctx context.Context, shipCode string, openOnly bool) ([]models.Incident, error)

	UpsertOwner(ctx context.Context, phone, name string) (*models.User, error)
	UpsertShip(ctx context.Context, code, ownerID string) error
	FindUserByPhone(ctx context.Context, phone string) (*models.User, error)
	RegisterDevice(ctx context.Context, d *models.Device) error
}

type correlator interface {
	Correlate(ctx context.Context, n *models.Notification) (boundary bool, err error)
	ResolveByReport(ctx context.Context, notificationID string, reportedAt time.Time) (*models.Incident, error)
}

type dispatcher interface {
	Dispatch(ctx context.Context, n models.Notification) dispatch.Outcome
}

type priorities interface {
	Priority(t models.NotificationType) int
}

// Service processes vessel alerts into persisted notifications.
type Service struct {
	store      store
	correlator correlator
	dispatcher dispatcher
	catalog    priorities
	locks      *utils.KeyedMutex
	logger     *logrus.Logger
	maxRetry   int
	now        func() time.Time
}

// New constructs a notification Service.
func New(store store, correlator correlator, dispatcher dispatcher, catalog priorities, maxRetry int, logger *logrus.Logger) *Service {
	if maxRetry < 1 {
		maxRetry = 1
	}
	return &Service{
		store:      store,
		correlator: correlator,
		dispatcher: dispatcher,
		catalog:    catalog,
		locks:      utils.NewKeyedMutex(),
		logger:     logger,
		maxRetry:   maxRetry,
		now:        time.Now,
	}
}

// Logger exposes the Service's logger to the Kafka consumer or caller.
func (s *Service) Logger() *logrus.Logger {
	return s.logger
}

// Submit ingests one alert. A repeated clientRequestId returns the receipt of
// the notification created the first time.
func (s *Service) Submit(ctx context.Context, sub models.Submission) (models.Receipt, error) {
	if err := validate.Struct(sub); err != nil {
		return models.Receipt{}, err
	}
	if existing, err := s.existing(ctx, sub.ClientRequestID); err != nil || existing != nil {
		return receiptOf(existing), err
	}

	owner, err := s.store.UpsertOwner(ctx, sub.OwnerPhone, sub.OwnerName)
	if err != nil {
		return models.Receipt{}, fmt.Errorf("failed to upsert owner %s: %w", sub.OwnerPhone, err)
	}
	if err := s.store.UpsertShip(ctx, sub.ShipCode, owner.ID); err != nil {
		return models.Receipt{}, fmt.Errorf("failed to upsert ship %s: %w", sub.ShipCode, err)
	}

	unlock := s.locks.Lock(sub.ShipCode)
	n, synthesized, err := s.record(ctx, sub)
	unlock()
	if err != nil {
		return models.Receipt{}, err
	}

	s.logger.WithFields(logrus.Fields{
		"notification_id": n.ID,
		"request_id":      n.RequestID,
		"ship_code":       n.ShipCode,
		"type":            n.Type,
		"status":          n.Status,
	}).Info("Notification accepted")

	if synthesized != nil {
		s.dispatchNow(ctx, *synthesized)
	}
	return n.Receipt(), nil
}

// record runs correlate-then-insert. The caller holds the ship lock.
func (s *Service) record(ctx context.Context, sub models.Submission) (*models.Notification, *models.Notification, error) {
	// a concurrent submission with the same key may have won the lock first
	if existing, err := s.existing(ctx, sub.ClientRequestID); err != nil || existing != nil {
		return existing, nil, err
	}

	now := s.now()
	n := &models.Notification{
		ID:                 uuid.NewString(),
		ClientRequestID:    sub.ClientRequestID,
		RequestID:          ulid.Make().String(),
		ShipCode:           sub.ShipCode,
		OccurredAt:         sub.OccurredAt,
		Type:               sub.Type,
		Content:            sub.Content,
		OwnerName:          sub.OwnerName,
		OwnerPhone:         sub.OwnerPhone,
		AgentCode:          sub.AgentCode,
		Lat:                sub.Lat,
		Lng:                sub.Lng,
		BoundaryStatusCode: sub.BoundaryStatusCode,
		MaxRetry:           s.maxRetry,
		Priority:           s.catalog.Priority(sub.Type),
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	boundary, err := s.correlator.Correlate(ctx, n)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to correlate %s: %w", n.ClientRequestID, err)
	}
	if err := s.store.CreateNotification(ctx, n); err != nil {
		if errors.Is(err, models.ErrConflict) {
			existing, getErr := s.store.GetNotificationByClientRequestID(ctx, sub.ClientRequestID)
			if getErr != nil {
				return nil, nil, getErr
			}
			return existing, nil, nil
		}
		return nil, nil, fmt.Errorf("failed to persist notification: %w", err)
	}

	if !boundary {
		return n, nil, nil
	}
	syn := s.synthesizeBoundary(*n)
	if syn == nil {
		return n, nil, nil
	}
	if err := s.store.CreateNotification(ctx, syn); err != nil {
		// the original is persisted; the boundary alert is lost, not the submission
		s.logger.WithField("notification_id", n.ID).Errorf("Failed to persist boundary alert: %v", err)
		return n, nil, nil
	}
	return n, syn, nil
}

// synthesizeBoundary builds the immediate NEAR_BORDER or CROSS_BORDER alert
// for a submission that opened a boundary incident. It returns nil when the
// submission already is that alert.
func (s *Service) synthesizeBoundary(orig models.Notification) *models.Notification {
	typ := models.TypeNearBorder
	if orig.BoundaryStatusCode == models.BoundaryCrossed {
		typ = models.TypeCrossBorder
	}
	if orig.Type == typ {
		return nil
	}
	now := s.now()
	return &models.Notification{
		ID:                 uuid.NewString(),
		ClientRequestID:    uuid.NewSHA1(boundaryNamespace, []byte(orig.ClientRequestID)).String(),
		RequestID:          ulid.Make().String(),
		ShipCode:           orig.ShipCode,
		OccurredAt:         orig.OccurredAt,
		Type:               typ,
		Content:            orig.Content,
		OwnerName:          orig.OwnerName,
		OwnerPhone:         orig.OwnerPhone,
		AgentCode:          orig.AgentCode,
		Lat:                orig.Lat,
		Lng:                orig.Lng,
		BoundaryStatusCode: orig.BoundaryStatusCode,
		Status:             models.StatusQueued,
		MaxRetry:           s.maxRetry,
		BoundaryIncidentID: orig.BoundaryIncidentID,
		Priority:           s.catalog.Priority(typ),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

// dispatchNow claims and delivers n without waiting for the scheduler. Losing
// the claim means a scheduler tick picked it up first.
func (s *Service) dispatchNow(ctx context.Context, n models.Notification) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), immediateDispatchTimeout)
	defer cancel()

	log := s.logger.WithFields(logrus.Fields{"notification_id": n.ID, "ship_code": n.ShipCode, "type": n.Type})
	ok, err := s.store.ClaimForSending(ctx, n.ID, models.StatusQueued)
	if err != nil {
		log.Errorf("Failed to claim boundary alert: %v", err)
		return
	}
	if !ok {
		log.Debug("Boundary alert already claimed")
		return
	}
	n.Status = models.StatusSending
	if out := s.dispatcher.Dispatch(ctx, n); !out.Success {
		log.WithField("reason", out.FailureReason).Warn("Immediate boundary dispatch failed")
	}
}

func (s *Service) existing(ctx context.Context, clientRequestID string) (*models.Notification, error) {
	n, err := s.store.GetNotificationByClientRequestID(ctx, clientRequestID)
	if err == nil {
		return n, nil
	}
	if errors.Is(err, models.ErrNotFound) {
		return nil, nil
	}
	return nil, fmt.Errorf("failed to look up client_request_id %s: %w", clientRequestID, err)
}

func receiptOf(n *models.Notification) models.Receipt {
	if n == nil {
		return models.Receipt{}
	}
	return n.Receipt()
}

// GetStatus looks key up as a clientRequestId, then as a requestId.
func (s *Service) GetStatus(ctx context.Context, key string) (models.Receipt, error) {
	n, err := s.store.GetNotificationByClientRequestID(ctx, key)
	if errors.Is(err, models.ErrNotFound) {
		n, err = s.store.GetNotificationByRequestID(ctx, key)
	}
	if err != nil {
		return models.Receipt{}, err
	}
	return n.Receipt(), nil
}

func (s *Service) GetNotification(ctx context.Context, id string) (*models.Notification, error) {
	return s.store.GetNotification(ctx, id)
}

// ResolveByReport closes the incident behind the reported notification. The
// returned incident is nil when the notification belongs to no MKN incident.
func (s *Service) ResolveByReport(ctx context.Context, report models.Report) (*models.Incident, error) {
	if err := validate.Struct(report); err != nil {
		return nil, err
	}
	return s.correlator.ResolveByReport(ctx, report.NotificationID, report.ReportedAt)
}

// MarkViewed flags the notification as read and returns it.
func (s *Service) MarkViewed(ctx context.Context, id string) (*models.Notification, error) {
	if err := s.store.MarkViewed(ctx, id, s.now()); err != nil {
		return nil, err
	}
	return s.store.GetNotification(ctx, id)
}

func (s *Service) ListByShip(ctx context.Context, shipCode string, limit, offset int) ([]models.Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.ListNotificationsByShip(ctx, shipCode, limit, offset)
}

func (s *Service) GetIncident(ctx context.Context, id string) (*models.Incident, error) {
	return s.store.GetIncident(ctx, id)
}

func (s *Service) ListIncidents(ctx context.Context, shipCode string, openOnly bool) ([]models.Incident, error) {
	return s.store.ListIncidents(ctx, shipCode, openOnly)
}

// RegisterDevice attaches a push token to the owner with the given phone,
// matching the phone the same way the dispatcher does.
func (s *Service) RegisterDevice(ctx context.Context, reg models.DeviceRegistration) (*models.Device, error) {
	if err := validate.Struct(reg); err != nil {
		return nil, err
	}
	var owner *models.User
	for _, candidate := range phone.Candidates(reg.Phone) {
		u, err := s.store.FindUserByPhone(ctx, candidate)
		if err == nil {
			owner = u
			break
		}
		if !errors.Is(err, models.ErrNotFound) {
			return nil, err
		}
	}
	if owner == nil {
		return nil, fmt.Errorf("owner with phone %s: %w", reg.Phone, models.ErrNotFound)
	}

	d := &models.Device{UserID: owner.ID, Token: reg.Token, Platform: reg.Platform, CreatedAt: s.now()}
	if err := s.store.RegisterDevice(ctx, d); err != nil {
		return nil, fmt.Errorf("failed to register device: %w", err)
	}
	s.logger.WithFields(logrus.Fields{"user_id": owner.ID, "platform": reg.Platform}).Info("Device registered")
	return d, nil
}
