// Screenline - Digital Out-of-Home Screen Network Operations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/screenline

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/screenline/internal/logging"
)

// No secondary indexes on columns that are updated in place: DuckDB rewrites
// such updates as delete+insert, which trips the primary key check.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS placement_plans (
		id TEXT PRIMARY KEY,
		advertiser_id TEXT NOT NULL,
		state TEXT NOT NULL,
		version BIGINT NOT NULL,
		document TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS plan_targets (
		plan_id TEXT NOT NULL,
		screen_id INTEGER NOT NULL,
		playlist_id INTEGER NOT NULL,
		location_id TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS location_screens (
		screen_id INTEGER PRIMARY KEY,
		location_id TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		playlist_id INTEGER NOT NULL DEFAULT 0,
		region TEXT NOT NULL DEFAULT '',
		excluded_categories TEXT NOT NULL DEFAULT '[]',
		ad_capacity INTEGER NOT NULL DEFAULT 0,
		baseline_type TEXT NOT NULL DEFAULT '',
		baseline_id INTEGER NOT NULL DEFAULT 0,
		baseline_name TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS screen_status (
		screen_id INTEGER PRIMARY KEY,
		location_id TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		online BOOLEAN NOT NULL,
		last_seen TIMESTAMP,
		content_status TEXT NOT NULL,
		unique_media_count INTEGER NOT NULL DEFAULT 0,
		expected_media_ids TEXT NOT NULL DEFAULT '[]',
		missing_media_ids TEXT NOT NULL DEFAULT '[]',
		pointer_matches BOOLEAN NOT NULL,
		compliant BOOLEAN NOT NULL,
		drift_reasons TEXT NOT NULL DEFAULT '[]',
		pushed BOOLEAN NOT NULL DEFAULT false,
		error TEXT NOT NULL DEFAULT '',
		checked_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS alerts (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		severity TEXT NOT NULL,
		screen_id INTEGER NOT NULL DEFAULT 0,
		location_id TEXT NOT NULL DEFAULT '',
		plan_id TEXT NOT NULL DEFAULT '',
		message TEXT NOT NULL,
		metadata TEXT NOT NULL DEFAULT '{}',
		acknowledged BOOLEAN NOT NULL DEFAULT false,
		acknowledged_by TEXT NOT NULL DEFAULT '',
		acknowledged_at TIMESTAMP,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_plan_targets_screen ON plan_targets(screen_id)`,
	`CREATE INDEX IF NOT EXISTS idx_plan_targets_plan ON plan_targets(plan_id)`,
	`CREATE INDEX IF NOT EXISTS idx_alerts_created_at ON alerts(created_at)`,
}

func (db *DB) createTables(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// Migration is a versioned schema change applied once.
type Migration struct {
	Version     int
	Name        string
	Description string
	SQL         string
	AppliedAt   time.Time
}

const schemaMigrationsTable = `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version INTEGER PRIMARY KEY,
	name TEXT NOT NULL,
	description TEXT,
	applied_at TIMESTAMP NOT NULL
)`

// migrations are append-only. The initial schema lives in schemaStatements.
var migrations = []Migration{
	{
		Version:     1,
		Name:        "alerts_type_lookup",
		Description: "Index alert type for the active alert dedupe lookup",
		SQL:         `CREATE INDEX IF NOT EXISTS idx_alerts_type ON alerts(type)`,
	},
}

func (db *DB) runVersionedMigrations(ctx context.Context) error {
	if _, err := db.conn.ExecContext(ctx, schemaMigrationsTable); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := db.AppliedMigrations(ctx)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if _, ok := applied[m.Version]; ok {
			continue
		}
		if _, err := db.conn.ExecContext(ctx, m.SQL); err != nil {
			return fmt.Errorf("failed to execute migration v%d (%s): %w", m.Version, m.Name, err)
		}
		if _, err := db.conn.ExecContext(ctx,
			`INSERT INTO schema_migrations (version, name, description, applied_at) VALUES (?, ?, ?, ?)`,
			m.Version, m.Name, m.Description, db.timestamp()); err != nil {
			return fmt.Errorf("failed to record migration v%d: %w", m.Version, err)
		}
		logging.Info().Int("version", m.Version).Str("name", m.Name).Msg("Applied migration")
	}
	return nil
}

// AppliedMigrations returns applied migrations keyed by version.
func (db *DB) AppliedMigrations(ctx context.Context) (map[int]Migration, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT version, name, COALESCE(description, ''), applied_at FROM schema_migrations ORDER BY version`)
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer closeWithLog(rows, "rows")

	applied := make(map[int]Migration)
	for rows.Next() {
		var m Migration
		if err := rows.Scan(&m.Version, &m.Name, &m.Description, &m.AppliedAt); err != nil {
			return nil, fmt.Errorf("failed to scan migration row: %w", err)
		}
		applied[m.Version] = m
	}
	return applied, rows.Err()
}
