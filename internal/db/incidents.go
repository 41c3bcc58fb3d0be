package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ship-notification-service/internal/models"
)

const incidentColumns = `
	id, ship_code, family, type, started_at, user_report_timestamp, resolved_at,
	response_minutes_from_baseline, created_at, updated_at`

func scanIncident(row scanner) (*models.Incident, error) {
	var inc models.Incident
	err := row.Scan(
		&inc.ID, &inc.ShipCode, &inc.Family, &inc.Type, &inc.StartedAt, &inc.UserReportTimestamp,
		&inc.ResolvedAt, &inc.ResponseMinutesFromBaseline, &inc.CreatedAt, &inc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &inc, nil
}

func (d *DB) FindOpenIncident(ctx context.Context, shipCode, family string) (*models.Incident, error) {
	query := `
        SELECT ` + incidentColumns + `
        FROM incidents
        WHERE ship_code = $1 AND family = $2 AND resolved_at IS NULL
        ORDER BY started_at DESC
        LIMIT 1`
	inc, err := scanIncident(d.Pool.QueryRow(ctx, query, shipCode, family))
	if err != nil {
		return nil, mapErr(err, fmt.Sprintf("open %s incident for %s", family, shipCode))
	}
	return inc, nil
}

func (d *DB) CreateIncident(ctx context.Context, inc *models.Incident) error {
	if inc.ID == "" {
		inc.ID = uuid.NewString()
	}
	_, err := d.Pool.Exec(ctx, `
        INSERT INTO incidents (`+incidentColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		inc.ID, inc.ShipCode, inc.Family, inc.Type, inc.StartedAt, inc.UserReportTimestamp,
		inc.ResolvedAt, inc.ResponseMinutesFromBaseline, inc.CreatedAt, inc.UpdatedAt)
	return mapErr(err, "failed to create incident")
}

func (d *DB) UpdateIncidentType(ctx context.Context, id, typ string, at time.Time) error {
	result, err := d.Pool.Exec(ctx, `UPDATE incidents SET type = $2, updated_at = $3 WHERE id = $1`, id, typ, at)
	if err != nil {
		return fmt.Errorf("failed to update incident %s: %w", id, err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("incident %s: %w", id, models.ErrNotFound)
	}
	return nil
}

func (d *DB) ResolveOpenIncidents(ctx context.Context, shipCode, family string, resolvedAt time.Time) (int64, error) {
	result, err := d.Pool.Exec(ctx, `
        UPDATE incidents SET resolved_at = $3, updated_at = $3
        WHERE ship_code = $1 AND family = $2 AND resolved_at IS NULL`, shipCode, family, resolvedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve incidents for %s: %w", shipCode, err)
	}
	return result.RowsAffected(), nil
}

func (d *DB) GetIncident(ctx context.Context, id string) (*models.Incident, error) {
	inc, err := scanIncident(d.Pool.QueryRow(ctx, `SELECT `+incidentColumns+` FROM incidents WHERE id = $1`, id))
	if err != nil {
		return nil, mapErr(err, "incident "+id)
	}
	return inc, nil
}

// RecordIncidentReport resolves an open incident with the officer's report.
// It reports false when the incident had already been resolved.
func (d *DB) RecordIncidentReport(ctx context.Context, id string, reportedAt time.Time, responseMinutes int, resolvedAt time.Time) (bool, error) {
	result, err := d.Pool.Exec(ctx, `
        UPDATE incidents
        SET user_report_timestamp = $2, response_minutes_from_baseline = $3,
            resolved_at = $4, updated_at = $4
        WHERE id = $1 AND resolved_at IS NULL`, id, reportedAt, responseMinutes, resolvedAt)
	if err != nil {
		return false, fmt.Errorf("failed to record report on incident %s: %w", id, err)
	}
	return result.RowsAffected() == 1, nil
}

func (d *DB) ListIncidents(ctx context.Context, shipCode string, openOnly bool) ([]models.Incident, error) {
	rows, err := d.Pool.Query(ctx, `
        SELECT `+incidentColumns+`
        FROM incidents
        WHERE ship_code = $1 AND (NOT $2 OR resolved_at IS NULL)
        ORDER BY started_at DESC`, shipCode, openOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to list incidents for %s: %w", shipCode, err)
	}
	defer rows.Close()

	var out []models.Incident
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan incident: %w", err)
		}
		out = append(out, *inc)
	}
	return out, rows.Err()
}
