// Package memstore is an in-memory implementation of every repository used by
// the engine. It backs unit tests and single-process runs with DB_DRIVER=memory.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"ship-notification-service/internal/models"
)

// Store keeps all records in maps guarded by a single mutex, so every method
// is one atomic step in the same way a single conditional UPDATE is.
type Store struct {
	mu            sync.Mutex
	notifications map[string]*models.Notification
	byClientReq   map[string]string
	byRequest     map[string]string
	incidents     map[string]*models.Incident
	users         map[string]*models.User
	usersByPhone  map[string]string
	ships         map[string]*models.Ship
	devices       map[string][]models.Device
	records       []models.DeliveryRecord
	types         map[models.NotificationType]models.TypeDefinition
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		notifications: make(map[string]*models.Notification),
		byClientReq:   make(map[string]string),
		byRequest:     make(map[string]string),
		incidents:     make(map[string]*models.Incident),
		users:         make(map[string]*models.User),
		usersByPhone:  make(map[string]string),
		ships:         make(map[string]*models.Ship),
		devices:       make(map[string][]models.Device),
		types:         make(map[models.NotificationType]models.TypeDefinition),
	}
}

func cloneNotification(n *models.Notification) *models.Notification {
	c := *n
	return &c
}

func cloneIncident(i *models.Incident) *models.Incident {
	c := *i
	return &c
}

// CreateNotification inserts n. A repeated client request id yields models.ErrConflict.
func (s *Store) CreateNotification(_ context.Context, n *models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byClientReq[n.ClientRequestID]; exists {
		return fmt.Errorf("client_request_id %s: %w", n.ClientRequestID, models.ErrConflict)
	}
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	s.notifications[n.ID] = cloneNotification(n)
	s.byClientReq[n.ClientRequestID] = n.ID
	s.byRequest[n.RequestID] = n.ID
	return nil
}

func (s *Store) getLocked(id string) (*models.Notification, error) {
	n, ok := s.notifications[id]
	if !ok {
		return nil, fmt.Errorf("notification %s: %w", id, models.ErrNotFound)
	}
	return n, nil
}

// GetNotification returns the notification with the given id.
func (s *Store) GetNotification(_ context.Context, id string) (*models.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, err := s.getLocked(id)
	if err != nil {
		return nil, err
	}
	return cloneNotification(n), nil
}

// GetNotificationByClientRequestID looks a notification up by its idempotency key.
func (s *Store) GetNotificationByClientRequestID(ctx context.Context, clientRequestID string) (*models.Notification, error) {
	s.mu.Lock()
	id, ok := s.byClientReq[clientRequestID]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("client_request_id %s: %w", clientRequestID, models.ErrNotFound)
	}
	return s.GetNotification(ctx, id)
}

// GetNotificationByRequestID looks a notification up by its server-assigned request id.
func (s *Store) GetNotificationByRequestID(ctx context.Context, requestID string) (*models.Notification, error) {
	s.mu.Lock()
	id, ok := s.byRequest[requestID]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("request_id %s: %w", requestID, models.ErrNotFound)
	}
	return s.GetNotification(ctx, id)
}

type partitionKey struct {
	incidentID string
	boundary   bool
	typ        models.NotificationType
}

// SweepDuplicates keeps the newest QUEUED notification per (incident, type) and
// per (boundary incident, type) and marks the rest DUPLICATE.
func (s *Store) SweepDuplicates(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	losers := s.supersededLocked()
	now := time.Now()
	for _, n := range losers {
		n.Status = models.StatusDuplicate
		n.UpdatedAt = now
	}
	return int64(len(losers)), nil
}

// supersededLocked returns the QUEUED notifications that rank below the newest
// of their (incident, type) or (boundary incident, type) partition.
func (s *Store) supersededLocked() map[string]*models.Notification {
	groups := make(map[partitionKey][]*models.Notification)
	for _, n := range s.notifications {
		if n.Status != models.StatusQueued {
			continue
		}
		if n.IncidentID != nil {
			k := partitionKey{incidentID: *n.IncidentID, typ: n.Type}
			groups[k] = append(groups[k], n)
		}
		if n.BoundaryIncidentID != nil {
			k := partitionKey{incidentID: *n.BoundaryIncidentID, boundary: true, typ: n.Type}
			groups[k] = append(groups[k], n)
		}
	}

	losers := make(map[string]*models.Notification)
	for _, group := range groups {
		sort.SliceStable(group, func(i, j int) bool {
			if group[i].CreatedAt.Equal(group[j].CreatedAt) {
				return group[i].ID > group[j].ID
			}
			return group[i].CreatedAt.After(group[j].CreatedAt)
		})
		for _, n := range group[1:] {
			losers[n.ID] = n
		}
	}
	return losers
}

// ListDispatchable returns QUEUED notifications that rank first in their
// partitions, and when includeFailed is set FAILED ones whose retry is due,
// oldest first.
func (s *Store) ListDispatchable(_ context.Context, now time.Time, includeFailed bool, limit int) ([]models.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	superseded := s.supersededLocked()
	var out []models.Notification
	for _, n := range s.notifications {
		switch {
		case n.Status == models.StatusQueued && superseded[n.ID] == nil:
		case includeFailed && n.Status == models.StatusFailed &&
			n.RetryCount < n.MaxRetry && n.NextRetryAt != nil && !n.NextRetryAt.After(now):
		default:
			continue
		}
		out = append(out, *n)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ClaimForSending moves the notification from `from` to SENDING and reports
// whether this caller won the transition.
func (s *Store) ClaimForSending(_ context.Context, id string, from models.Status) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, err := s.getLocked(id)
	if err != nil {
		return false, err
	}
	if n.Status != from {
		return false, nil
	}
	n.Status = models.StatusSending
	n.UpdatedAt = time.Now()
	return true, nil
}

// MarkSent records a successful dispatch of a SENDING notification.
func (s *Store) MarkSent(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, err := s.getLocked(id)
	if err != nil {
		return err
	}
	if n.Status != models.StatusSending {
		return fmt.Errorf("notification %s is %s, not SENDING: %w", id, n.Status, models.ErrConflict)
	}
	n.Status = models.StatusSent
	n.RetryCount = 0
	n.FailureReason = ""
	n.NextRetryAt = nil
	n.UpdatedAt = at
	return nil
}

// MarkFailed records a failed dispatch of a SENDING notification.
func (s *Store) MarkFailed(_ context.Context, id string, reason models.FailureReason, retryCount int, nextRetryAt *time.Time, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, err := s.getLocked(id)
	if err != nil {
		return err
	}
	if n.Status != models.StatusSending {
		return fmt.Errorf("notification %s is %s, not SENDING: %w", id, n.Status, models.ErrConflict)
	}
	n.Status = models.StatusFailed
	n.FailureReason = reason
	n.RetryCount = retryCount
	n.NextRetryAt = nextRetryAt
	n.UpdatedAt = at
	return nil
}

// SaveFormattedMessage caches the rendered message text.
func (s *Store) SaveFormattedMessage(_ context.Context, id, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, err := s.getLocked(id)
	if err != nil {
		return err
	}
	n.FormattedMessage = message
	return nil
}

// MarkViewed flags the notification as seen by its owner.
func (s *Store) MarkViewed(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, err := s.getLocked(id)
	if err != nil {
		return err
	}
	if !n.IsViewed {
		n.IsViewed = true
		n.ViewedAt = &at
	}
	return nil
}

// ListNotificationsByShip pages through a ship's notifications, newest first.
func (s *Store) ListNotificationsByShip(_ context.Context, shipCode string, limit, offset int) ([]models.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Notification
	for _, n := range s.notifications {
		if n.ShipCode == shipCode {
			out = append(out, *n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, limit, offset), nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}

// CreateDeliveryRecords appends per-device audit rows.
func (s *Store) CreateDeliveryRecords(_ context.Context, records []models.DeliveryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, records...)
	return nil
}

// DeliveryRecords returns the audit rows written for a notification.
func (s *Store) DeliveryRecords(notificationID string) []models.DeliveryRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.DeliveryRecord
	for _, r := range s.records {
		if r.NotificationID == notificationID {
			out = append(out, r)
		}
	}
	return out
}

// Notifications returns a snapshot of all notifications ordered by creation time.
func (s *Store) Notifications() []models.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Notification, 0, len(s.notifications))
	for _, n := range s.notifications {
		out = append(out, *n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}
