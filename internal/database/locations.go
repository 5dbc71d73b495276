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
	"github.com/tomtom215/screenline/internal/yodeck"
)

const locationScreenColumns = `screen_id, location_id, name, playlist_id, region,
	excluded_categories, ad_capacity, baseline_type, baseline_id, baseline_name`

// UpsertLocationScreen registers a screen at a location or updates it.
func (db *DB) UpsertLocationScreen(ctx context.Context, ls *models.LocationScreen) error {
	excluded, err := json.Marshal(nonNilStrings(ls.ExcludedCategories))
	if err != nil {
		return fmt.Errorf("failed to encode excluded categories: %w", err)
	}
	var baseline yodeck.ContentRef
	if ls.Baseline != nil {
		baseline = *ls.Baseline
	}

	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO location_screens (`+locationScreenColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (screen_id) DO UPDATE SET
			location_id = EXCLUDED.location_id,
			name = EXCLUDED.name,
			playlist_id = EXCLUDED.playlist_id,
			region = EXCLUDED.region,
			excluded_categories = EXCLUDED.excluded_categories,
			ad_capacity = EXCLUDED.ad_capacity,
			baseline_type = EXCLUDED.baseline_type,
			baseline_id = EXCLUDED.baseline_id,
			baseline_name = EXCLUDED.baseline_name`,
		ls.ScreenID, ls.LocationID, ls.Name, ls.PlaylistID, ls.Region,
		string(excluded), ls.AdCapacity, baseline.SourceType, baseline.SourceID, baseline.SourceName)
	if err != nil {
		return fmt.Errorf("failed to upsert location screen %d: %w", ls.ScreenID, err)
	}
	return nil
}

// DeleteLocationScreen removes a screen from the directory.
func (db *DB) DeleteLocationScreen(ctx context.Context, screenID int) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM location_screens WHERE screen_id = ?`, screenID)
	if err != nil {
		return fmt.Errorf("failed to delete location screen %d: %w", screenID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("screen %d: %w", screenID, ErrNotFound)
	}
	return nil
}

// LocationScreens returns the screens of a location ordered by screen id.
func (db *DB) LocationScreens(ctx context.Context, locationID string) ([]models.LocationScreen, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+locationScreenColumns+` FROM location_screens WHERE location_id = ? ORDER BY screen_id`, locationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query location screens: %w", err)
	}
	defer closeWithLog(rows, "rows")

	var out []models.LocationScreen
	for rows.Next() {
		ls, err := scanLocationScreen(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *ls)
	}
	return out, rows.Err()
}

// LocationScreen returns the directory entry of one screen.
func (db *DB) LocationScreen(ctx context.Context, screenID int) (*models.LocationScreen, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+locationScreenColumns+` FROM location_screens WHERE screen_id = ?`, screenID)
	ls, err := scanLocationScreen(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("screen %d: %w", screenID, ErrNotFound)
	}
	return ls, err
}

// LocationIDs returns every location that has at least one screen.
func (db *DB) LocationIDs(ctx context.Context) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT DISTINCT location_id FROM location_screens ORDER BY location_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query locations: %w", err)
	}
	defer closeWithLog(rows, "rows")

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan location id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanLocationScreen(scanner interface {
	Scan(dest ...interface{}) error
}) (*models.LocationScreen, error) {
	var ls models.LocationScreen
	var excluded string
	var baseline yodeck.ContentRef
	if err := scanner.Scan(&ls.ScreenID, &ls.LocationID, &ls.Name, &ls.PlaylistID, &ls.Region,
		&excluded, &ls.AdCapacity, &baseline.SourceType, &baseline.SourceID, &baseline.SourceName); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(excluded), &ls.ExcludedCategories); err != nil {
		return nil, fmt.Errorf("failed to decode excluded categories: %w", err)
	}
	if !baseline.IsZero() {
		ls.Baseline = &baseline
	}
	return &ls, nil
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNilInts(s []int) []int {
	if s == nil {
		return []int{}
	}
	return s
}
