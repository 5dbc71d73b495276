// Screenline - Digital Out-of-Home Screen Network Operations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/screenline

package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/screenline/internal/models"
)

const alertColumns = `id, type, severity, screen_id, location_id, plan_id, message, metadata,
	acknowledged, acknowledged_by, acknowledged_at, created_at`

// CreateAlert stores a new alert, filling in the id and creation time.
func (db *DB) CreateAlert(ctx context.Context, alert *models.Alert) error {
	if alert.ID == "" {
		alert.ID = uuid.New().String()
	}
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = db.timestamp()
	}
	metadata := alert.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to encode alert metadata: %w", err)
	}

	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO alerts (id, type, severity, screen_id, location_id, plan_id, message, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		alert.ID, string(alert.Type), string(alert.Severity), alert.ScreenID, alert.LocationID,
		alert.PlanID, alert.Message, string(metaJSON), alert.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}
	return nil
}

// GetActiveAlerts returns unacknowledged alerts, newest first.
func (db *DB) GetActiveAlerts(ctx context.Context, filter models.AlertFilter) ([]models.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts WHERE acknowledged = false`
	var args []interface{}

	if filter.Type != "" {
		query += " AND type = ?"
		args = append(args, string(filter.Type))
	}
	if filter.LocationID != "" {
		query += " AND location_id = ?"
		args = append(args, filter.LocationID)
	}
	if filter.ScreenID > 0 {
		query += " AND screen_id = ?"
		args = append(args, filter.ScreenID)
	}
	query += " ORDER BY created_at DESC, id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer closeWithLog(rows, "rows")

	var alerts []models.Alert
	for rows.Next() {
		var a models.Alert
		if err := scanAlertRow(rows, &a); err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// HasActiveAlert reports whether an unacknowledged alert of the given type
// exists for the screen and plan (zero values match alerts without them).
func (db *DB) HasActiveAlert(ctx context.Context, alertType models.AlertType, screenID int, planID string) (bool, error) {
	var n int64
	err := db.conn.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM alerts
		WHERE acknowledged = false AND type = ? AND screen_id = ? AND plan_id = ?`,
		string(alertType), screenID, planID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to count alerts: %w", err)
	}
	return n > 0, nil
}

// AcknowledgeAlert marks an alert as handled by the given operator.
func (db *DB) AcknowledgeAlert(ctx context.Context, id, acknowledgedBy string) error {
	res, err := db.conn.ExecContext(ctx, `
		UPDATE alerts SET acknowledged = true, acknowledged_by = ?, acknowledged_at = ?
		WHERE id = ?`,
		acknowledgedBy, db.timestamp(), id)
	if err != nil {
		return fmt.Errorf("failed to acknowledge alert: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("alert %s: %w", id, ErrNotFound)
	}
	return nil
}

func scanAlertRow(scanner interface {
	Scan(dest ...interface{}) error
}, alert *models.Alert) error {
	var alertType, severity, metadata string
	var ackAt sql.NullTime
	if err := scanner.Scan(&alert.ID, &alertType, &severity, &alert.ScreenID, &alert.LocationID,
		&alert.PlanID, &alert.Message, &metadata, &alert.Acknowledged, &alert.AcknowledgedBy,
		&ackAt, &alert.CreatedAt); err != nil {
		return err
	}
	alert.Type = models.AlertType(alertType)
	alert.Severity = models.Severity(severity)
	if ackAt.Valid {
		t := ackAt.Time.UTC()
		alert.AcknowledgedAt = &t
	}
	if metadata != "" && metadata != "{}" {
		if err := json.Unmarshal([]byte(metadata), &alert.Metadata); err != nil {
			return fmt.Errorf("failed to decode alert metadata: %w", err)
		}
	}
	return nil
}
