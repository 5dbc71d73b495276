// Screenline - Digital Out-of-Home Screen Network Operations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/screenline

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/tomtom215/screenline/internal/models"
)

const screenStatusColumns = `screen_id, location_id, name, online, last_seen, content_status,
	unique_media_count, expected_media_ids, missing_media_ids, pointer_matches, compliant,
	drift_reasons, pushed, error, checked_at`

// UpsertScreenStatus stores the latest reconciled status of a screen.
func (db *DB) UpsertScreenStatus(ctx context.Context, s *models.ScreenStatus) error {
	expected, err := json.Marshal(nonNilInts(s.ExpectedMediaIDs))
	if err != nil {
		return fmt.Errorf("failed to encode expected media: %w", err)
	}
	missing, err := json.Marshal(nonNilInts(s.MissingMediaIDs))
	if err != nil {
		return fmt.Errorf("failed to encode missing media: %w", err)
	}
	drift, err := json.Marshal(nonNilStrings(s.DriftReasons))
	if err != nil {
		return fmt.Errorf("failed to encode drift reasons: %w", err)
	}
	var lastSeen sql.NullTime
	if s.LastSeen != nil {
		lastSeen = sql.NullTime{Time: s.LastSeen.UTC(), Valid: true}
	}
	if s.CheckedAt.IsZero() {
		s.CheckedAt = db.timestamp()
	}

	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO screen_status (`+screenStatusColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (screen_id) DO UPDATE SET
			location_id = EXCLUDED.location_id,
			name = EXCLUDED.name,
			online = EXCLUDED.online,
			last_seen = EXCLUDED.last_seen,
			content_status = EXCLUDED.content_status,
			unique_media_count = EXCLUDED.unique_media_count,
			expected_media_ids = EXCLUDED.expected_media_ids,
			missing_media_ids = EXCLUDED.missing_media_ids,
			pointer_matches = EXCLUDED.pointer_matches,
			compliant = EXCLUDED.compliant,
			drift_reasons = EXCLUDED.drift_reasons,
			pushed = EXCLUDED.pushed,
			error = EXCLUDED.error,
			checked_at = EXCLUDED.checked_at`,
		s.ScreenID, s.LocationID, s.Name, s.Online, lastSeen, s.ContentStatus,
		s.UniqueMediaCount, string(expected), string(missing), s.PointerMatches, s.Compliant,
		string(drift), s.Pushed, s.Error, s.CheckedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to upsert screen status %d: %w", s.ScreenID, err)
	}
	return nil
}

// ScreenStatuses returns the stored statuses of a location's screens.
func (db *DB) ScreenStatuses(ctx context.Context, locationID string) ([]models.ScreenStatus, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+screenStatusColumns+` FROM screen_status WHERE location_id = ? ORDER BY screen_id`, locationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query screen status: %w", err)
	}
	defer closeWithLog(rows, "rows")

	var out []models.ScreenStatus
	for rows.Next() {
		s, err := scanScreenStatus(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

// ScreenStatus returns the stored status of one screen.
func (db *DB) ScreenStatus(ctx context.Context, screenID int) (*models.ScreenStatus, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+screenStatusColumns+` FROM screen_status WHERE screen_id = ?`, screenID)
	s, err := scanScreenStatus(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("screen status %d: %w", screenID, ErrNotFound)
	}
	return s, err
}

func scanScreenStatus(scanner interface {
	Scan(dest ...interface{}) error
}) (*models.ScreenStatus, error) {
	var s models.ScreenStatus
	var lastSeen sql.NullTime
	var expected, missing, drift string
	if err := scanner.Scan(&s.ScreenID, &s.LocationID, &s.Name, &s.Online, &lastSeen, &s.ContentStatus,
		&s.UniqueMediaCount, &expected, &missing, &s.PointerMatches, &s.Compliant,
		&drift, &s.Pushed, &s.Error, &s.CheckedAt); err != nil {
		return nil, err
	}
	if lastSeen.Valid {
		t := lastSeen.Time.UTC()
		s.LastSeen = &t
	}
	if err := json.Unmarshal([]byte(expected), &s.ExpectedMediaIDs); err != nil {
		return nil, fmt.Errorf("failed to decode expected media: %w", err)
	}
	if err := json.Unmarshal([]byte(missing), &s.MissingMediaIDs); err != nil {
		return nil, fmt.Errorf("failed to decode missing media: %w", err)
	}
	if err := json.Unmarshal([]byte(drift), &s.DriftReasons); err != nil {
		return nil, fmt.Errorf("failed to decode drift reasons: %w", err)
	}
	return &s, nil
}
