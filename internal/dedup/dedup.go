// Package dedup decides whether a new alert is novel and sweeps superseded
// QUEUED notifications to DUPLICATE before each scheduling pass.
package dedup

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"

	"ship-notification-service/internal/models"
)

var sweptTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "ship_notification_dedup_swept_total",
	Help: "Total QUEUED notifications marked DUPLICATE by the sweep.",
})

type sweepStore interface {
	SweepDuplicates(ctx context.Context) (int64, error)
}

type priorities interface {
	Priority(t models.NotificationType) int
}

// Deduplicator holds no state of its own; every decision reads what is persisted.
type Deduplicator struct {
	store   sweepStore
	catalog priorities
	logger  *logrus.Logger
}

func New(store sweepStore, catalog priorities, logger *logrus.Logger) *Deduplicator {
	return &Deduplicator{store: store, catalog: catalog, logger: logger}
}

// Decide returns the initial status of n given the ship's open incident of the
// same family. Without an open incident, or for non-MKN types, n is QUEUED.
// An MKN alert must strictly escalate in priority over the incident's tier,
// which is the type of the last alert correlated into it.
func (d *Deduplicator) Decide(n models.Notification, open *models.Incident) models.Status {
	if !n.Type.IsMKN() || open == nil {
		return models.StatusQueued
	}
	last := models.NotificationType(open.Type)
	if last == n.Type {
		return models.StatusDuplicate
	}
	if d.catalog.Priority(n.Type) <= d.catalog.Priority(last) {
		return models.StatusDuplicate
	}
	return models.StatusQueued
}

// Sweep keeps one QUEUED winner per (incident, type) and per (boundary incident, type).
func (d *Deduplicator) Sweep(ctx context.Context) (int64, error) {
	n, err := d.store.SweepDuplicates(ctx)
	if err != nil {
		return 0, fmt.Errorf("dedup sweep: %w", err)
	}
	if n > 0 {
		sweptTotal.Add(float64(n))
		d.logger.WithField("count", n).Info("Marked superseded notifications as duplicate")
	}
	return n, nil
}
