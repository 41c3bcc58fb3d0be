package memstore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"ship-notification-service/internal/models"
)

// FindOpenIncident returns the most recent unresolved incident of family for the ship.
func (s *Store) FindOpenIncident(_ context.Context, shipCode, family string) (*models.Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var found *models.Incident
	for _, inc := range s.incidents {
		if inc.ShipCode != shipCode || inc.Family != family || !inc.Open() {
			continue
		}
		if found == nil || inc.StartedAt.After(found.StartedAt) {
			found = inc
		}
	}
	if found == nil {
		return nil, fmt.Errorf("open %s incident for %s: %w", family, shipCode, models.ErrNotFound)
	}
	return cloneIncident(found), nil
}

// CreateIncident inserts inc, assigning an id when empty.
func (s *Store) CreateIncident(_ context.Context, inc *models.Incident) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if inc.ID == "" {
		inc.ID = uuid.NewString()
	}
	if _, exists := s.incidents[inc.ID]; exists {
		return fmt.Errorf("incident %s: %w", inc.ID, models.ErrConflict)
	}
	s.incidents[inc.ID] = cloneIncident(inc)
	return nil
}

// UpdateIncidentType refreshes the incident's last-seen tier.
func (s *Store) UpdateIncidentType(_ context.Context, id, typ string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	inc, ok := s.incidents[id]
	if !ok {
		return fmt.Errorf("incident %s: %w", id, models.ErrNotFound)
	}
	inc.Type = typ
	inc.UpdatedAt = at
	return nil
}

// ResolveOpenIncidents closes every open incident of family for the ship.
func (s *Store) ResolveOpenIncidents(_ context.Context, shipCode, family string, resolvedAt time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, inc := range s.incidents {
		if inc.ShipCode == shipCode && inc.Family == family && inc.Open() {
			at := resolvedAt
			inc.ResolvedAt = &at
			inc.UpdatedAt = resolvedAt
			n++
		}
	}
	return n, nil
}

// GetIncident returns the incident with the given id.
func (s *Store) GetIncident(_ context.Context, id string) (*models.Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inc, ok := s.incidents[id]
	if !ok {
		return nil, fmt.Errorf("incident %s: %w", id, models.ErrNotFound)
	}
	return cloneIncident(inc), nil
}

// RecordIncidentReport stores the officer report on an open incident and resolves it.
// It reports false when the incident was already resolved.
func (s *Store) RecordIncidentReport(_ context.Context, id string, reportedAt time.Time, responseMinutes int, resolvedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inc, ok := s.incidents[id]
	if !ok {
		return false, fmt.Errorf("incident %s: %w", id, models.ErrNotFound)
	}
	if !inc.Open() {
		return false, nil
	}
	rep, res, mins := reportedAt, resolvedAt, responseMinutes
	inc.UserReportTimestamp = &rep
	inc.ResolvedAt = &res
	inc.ResponseMinutesFromBaseline = &mins
	inc.UpdatedAt = resolvedAt
	return true, nil
}

// ListIncidents returns a ship's incidents, newest first.
func (s *Store) ListIncidents(_ context.Context, shipCode string, openOnly bool) ([]models.Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Incident
	for _, inc := range s.incidents {
		if inc.ShipCode != shipCode || (openOnly && !inc.Open()) {
			continue
		}
		out = append(out, *inc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out, nil
}
