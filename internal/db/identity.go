package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"ship-notification-service/internal/models"
)

// UpsertOwner inserts the owner by phone or refreshes the stored name.
func (d *DB) UpsertOwner(ctx context.Context, phone, name string) (*models.User, error) {
	query := `
	INSERT INTO users (id, phone, name, created_at, updated_at)
	VALUES ($1, $2, $3, NOW(), NOW())
	ON CONFLICT (phone) DO UPDATE
	    SET name = CASE WHEN EXCLUDED.name <> '' THEN EXCLUDED.name ELSE users.name END,
	        updated_at = NOW()
	RETURNING id, phone, name, created_at, updated_at`

	var u models.User
	err := d.Pool.QueryRow(ctx, query, uuid.NewString(), phone, name).
		Scan(&u.ID, &u.Phone, &u.Name, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert owner %s: %w", phone, err)
	}
	return &u, nil
}

func (d *DB) UpsertShip(ctx context.Context, code, ownerID string) error {
	_, err := d.Pool.Exec(ctx, `
	INSERT INTO ships (code, owner_id, created_at, updated_at)
	VALUES ($1, $2, NOW(), NOW())
	ON CONFLICT (code) DO UPDATE SET owner_id = EXCLUDED.owner_id, updated_at = NOW()`, code, ownerID)
	if err != nil {
		return fmt.Errorf("failed to upsert ship %s: %w", code, err)
	}
	return nil
}

func (d *DB) FindUserByPhone(ctx context.Context, phone string) (*models.User, error) {
	var u models.User
	err := d.Pool.QueryRow(ctx, `
	SELECT id, phone, name, created_at, updated_at FROM users WHERE phone = $1`, phone).
		Scan(&u.ID, &u.Phone, &u.Name, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, mapErr(err, "user with phone "+phone)
	}
	return &u, nil
}

func (d *DB) RegisterDevice(ctx context.Context, dev *models.Device) error {
	if dev.ID == "" {
		dev.ID = uuid.NewString()
	}
	_, err := d.Pool.Exec(ctx, `
	INSERT INTO devices (id, user_id, token, platform, created_at)
	VALUES ($1, $2, $3, $4, NOW())
	ON CONFLICT (user_id, token) DO NOTHING`, dev.ID, dev.UserID, dev.Token, dev.Platform)
	return mapErr(err, "failed to register device")
}

func (d *DB) ListDeviceTokens(ctx context.Context, userID string) ([]string, error) {
	rows, err := d.Pool.Query(ctx, `SELECT token FROM devices WHERE user_id = $1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list devices for user %s: %w", userID, err)
	}
	defer rows.Close()

	var tokens []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("failed to scan device token: %w", err)
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}

func (d *DB) ListTypeDefinitions(ctx context.Context) ([]models.TypeDefinition, error) {
	rows, err := d.Pool.Query(ctx, `SELECT type, title, template, priority FROM notification_types`)
	if err != nil {
		return nil, fmt.Errorf("failed to list notification types: %w", err)
	}
	defer rows.Close()

	var defs []models.TypeDefinition
	for rows.Next() {
		var def models.TypeDefinition
		if err := rows.Scan(&def.Type, &def.Title, &def.Template, &def.Priority); err != nil {
			return nil, fmt.Errorf("failed to scan notification type: %w", err)
		}
		defs = append(defs, def)
	}
	return defs, rows.Err()
}

func (d *DB) UpsertTypeDefinition(ctx context.Context, def models.TypeDefinition) error {
	_, err := d.Pool.Exec(ctx, `
	INSERT INTO notification_types (type, title, template, priority)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (type) DO UPDATE
	    SET title = EXCLUDED.title, template = EXCLUDED.template, priority = EXCLUDED.priority`,
		def.Type, def.Title, def.Template, def.Priority)
	if err != nil {
		return fmt.Errorf("failed to upsert notification type %s: %w", def.Type, err)
	}
	return nil
}
