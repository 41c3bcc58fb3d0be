package memstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ship-notification-service/internal/models"
)

// UpsertOwner creates the user for phone or refreshes its name.
func (s *Store) UpsertOwner(_ context.Context, phone, name string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if id, ok := s.usersByPhone[phone]; ok {
		u := s.users[id]
		if name != "" && u.Name != name {
			u.Name = name
			u.UpdatedAt = now
		}
		c := *u
		return &c, nil
	}
	u := &models.User{ID: uuid.NewString(), Phone: phone, Name: name, CreatedAt: now, UpdatedAt: now}
	s.users[u.ID] = u
	s.usersByPhone[phone] = u.ID
	c := *u
	return &c, nil
}

// UpsertShip links the ship code to ownerID.
func (s *Store) UpsertShip(_ context.Context, code, ownerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if sh, ok := s.ships[code]; ok {
		sh.OwnerID = ownerID
		sh.UpdatedAt = now
		return nil
	}
	s.ships[code] = &models.Ship{Code: code, OwnerID: ownerID, CreatedAt: now, UpdatedAt: now}
	return nil
}

// FindUserByPhone returns the user registered with exactly this phone string.
func (s *Store) FindUserByPhone(_ context.Context, phone string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.usersByPhone[phone]
	if !ok {
		return nil, fmt.Errorf("user with phone %s: %w", phone, models.ErrNotFound)
	}
	c := *s.users[id]
	return &c, nil
}

// RegisterDevice attaches a push token to a user. Re-registering a token is a no-op.
func (s *Store) RegisterDevice(_ context.Context, d *models.Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[d.UserID]; !ok {
		return fmt.Errorf("user %s: %w", d.UserID, models.ErrNotFound)
	}
	for _, existing := range s.devices[d.UserID] {
		if existing.Token == d.Token {
			return nil
		}
	}
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}
	s.devices[d.UserID] = append(s.devices[d.UserID], *d)
	return nil
}

// ListDeviceTokens returns every token registered for the user.
func (s *Store) ListDeviceTokens(_ context.Context, userID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var tokens []string
	for _, d := range s.devices[userID] {
		tokens = append(tokens, d.Token)
	}
	return tokens, nil
}

// ListTypeDefinitions returns the notification-type catalog.
func (s *Store) ListTypeDefinitions(_ context.Context) ([]models.TypeDefinition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.TypeDefinition, 0, len(s.types))
	for _, d := range s.types {
		out = append(out, d)
	}
	return out, nil
}

// UpsertTypeDefinition writes a catalog entry.
func (s *Store) UpsertTypeDefinition(_ context.Context, def models.TypeDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.types[def.Type] = def
	return nil
}
