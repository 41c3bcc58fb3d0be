// Package incident correlates a ship's successive alerts into incidents and
// closes them on reconnection or an officer-filed report.
package incident

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"ship-notification-service/internal/models"
)

type incidentStore interface {
	FindOpenIncident(ctx context.Context, shipCode, family string) (*models.Incident, error)
	CreateIncident(ctx context.Context, inc *models.Incident) error
	UpdateIncidentType(ctx context.Context, id, typ string, at time.Time) error
	ResolveOpenIncidents(ctx context.Context, shipCode, family string, resolvedAt time.Time) (int64, error)
	GetIncident(ctx context.Context, id string) (*models.Incident, error)
	RecordIncidentReport(ctx context.Context, id string, reportedAt time.Time, responseMinutes int, resolvedAt time.Time) (bool, error)
}

type notificationLookup interface {
	GetNotification(ctx context.Context, id string) (*models.Notification, error)
}

type decider interface {
	Decide(n models.Notification, open *models.Incident) models.Status
}

// Correlator must be called with the per-ship lock held; it relies on the
// store alone and keeps nothing between calls.
type Correlator struct {
	incidents     incidentStore
	notifications notificationLookup
	dedup         decider
	logger        *logrus.Logger
	now           func() time.Time
}

func New(incidents incidentStore, notifications notificationLookup, dedup decider, logger *logrus.Logger) *Correlator {
	return &Correlator{
		incidents:     incidents,
		notifications: notifications,
		dedup:         dedup,
		logger:        logger,
		now:           time.Now,
	}
}

// Correlate links n to its incidents and sets its initial status. It reports
// whether a boundary incident was opened, in which case the caller synthesizes
// the immediate boundary alert.
func (c *Correlator) Correlate(ctx context.Context, n *models.Notification) (boundary bool, err error) {
	if n.Status == "" {
		n.Status = models.StatusQueued
	}

	switch {
	case n.Type.IsMKN():
		if err := c.correlateMKN(ctx, n); err != nil {
			return false, err
		}
	case n.Type == models.TypeKNL:
		closed, err := c.incidents.ResolveOpenIncidents(ctx, n.ShipCode, models.FamilyMKN, n.OccurredAt)
		if err != nil {
			return false, fmt.Errorf("close incidents for %s: %w", n.ShipCode, err)
		}
		if closed > 0 {
			c.logger.WithFields(logrus.Fields{"ship_code": n.ShipCode, "closed": closed}).
				Info("Reconnect resolved open incidents")
		}
	}

	if n.BoundaryStatusCode == models.BoundaryNear || n.BoundaryStatusCode == models.BoundaryCrossed {
		inc, err := c.openBoundaryIncident(ctx, n)
		if err != nil {
			return false, err
		}
		n.BoundaryIncidentID = &inc.ID
		return true, nil
	}
	return false, nil
}

func (c *Correlator) correlateMKN(ctx context.Context, n *models.Notification) error {
	open, err := c.incidents.FindOpenIncident(ctx, n.ShipCode, models.FamilyMKN)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("find open incident for %s: %w", n.ShipCode, err)
	}

	if open == nil {
		now := c.now()
		inc := &models.Incident{
			ShipCode:  n.ShipCode,
			Family:    models.FamilyMKN,
			Type:      string(n.Type),
			StartedAt: n.OccurredAt,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := c.incidents.CreateIncident(ctx, inc); err != nil {
			return fmt.Errorf("open incident for %s: %w", n.ShipCode, err)
		}
		c.logger.WithFields(logrus.Fields{"ship_code": n.ShipCode, "incident_id": inc.ID, "type": n.Type}).
			Info("Opened incident")
		n.IncidentID = &inc.ID
		n.Status = models.StatusQueued
		return nil
	}

	n.IncidentID = &open.ID
	n.Status = c.dedup.Decide(*n, open)
	if n.Status == models.StatusDuplicate {
		c.logger.WithFields(logrus.Fields{"ship_code": n.ShipCode, "incident_id": open.ID, "type": n.Type, "incident_type": open.Type}).
			Debug("Alert does not escalate open incident")
	}
	// The incident always carries the last correlated tier, duplicates included.
	if err := c.incidents.UpdateIncidentType(ctx, open.ID, string(n.Type), c.now()); err != nil {
		return fmt.Errorf("refresh incident %s: %w", open.ID, err)
	}
	return nil
}

func (c *Correlator) openBoundaryIncident(ctx context.Context, n *models.Notification) (*models.Incident, error) {
	typ := models.IncidentBoundaryNear
	if n.BoundaryStatusCode == models.BoundaryCrossed {
		typ = models.IncidentBoundaryCrossed
	}
	now := c.now()
	inc := &models.Incident{
		ShipCode:  n.ShipCode,
		Family:    models.FamilyBoundary,
		Type:      typ,
		StartedAt: n.OccurredAt,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := c.incidents.CreateIncident(ctx, inc); err != nil {
		return nil, fmt.Errorf("open boundary incident for %s: %w", n.ShipCode, err)
	}
	c.logger.WithFields(logrus.Fields{"ship_code": n.ShipCode, "incident_id": inc.ID, "type": typ}).
		Info("Opened boundary incident")
	return inc, nil
}

// ResolveByReport applies an officer report filed against a notification.
// It returns nil when the notification is not part of an MKN incident, and the
// incident unchanged when it was already resolved.
func (c *Correlator) ResolveByReport(ctx context.Context, notificationID string, reportedAt time.Time) (*models.Incident, error) {
	n, err := c.notifications.GetNotification(ctx, notificationID)
	if err != nil {
		return nil, err
	}
	if n.IncidentID == nil {
		return nil, nil
	}

	inc, err := c.incidents.GetIncident(ctx, *n.IncidentID)
	if err != nil {
		return nil, err
	}
	if !inc.Open() {
		return inc, nil
	}

	minutes := ResponseMinutes(inc.StartedAt, reportedAt)
	updated, err := c.incidents.RecordIncidentReport(ctx, inc.ID, reportedAt, minutes, c.now())
	if err != nil {
		return nil, fmt.Errorf("record report on incident %s: %w", inc.ID, err)
	}
	if updated {
		c.logger.WithFields(logrus.Fields{"incident_id": inc.ID, "ship_code": inc.ShipCode, "response_minutes": minutes}).
			Info("Incident resolved by report")
	}
	return c.incidents.GetIncident(ctx, inc.ID)
}

// ResponseMinutes is the whole number of minutes from startedAt to reportedAt, never negative.
func ResponseMinutes(startedAt, reportedAt time.Time) int {
	m := math.Round(reportedAt.Sub(startedAt).Minutes())
	if m < 0 {
		return 0
	}
	return int(m)
}
