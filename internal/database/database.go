// Screenline - Digital Out-of-Home Screen Network Operations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/screenline

package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/tomtom215/screenline/internal/config"
	"github.com/tomtom215/screenline/internal/logging"
)

// DB wraps the DuckDB connection and provides data access methods.
type DB struct {
	conn *sql.DB
	cfg  *config.DatabaseConfig
	now  func() time.Time
}

// Open opens (creating if needed) the database at cfg.Path and applies the
// schema. ":memory:" opens a private in-memory database.
func Open(cfg *config.DatabaseConfig) (*DB, error) {
	path := cfg.Path
	if path == "" {
		path = ":memory:"
	}

	if path != ":memory:" {
		dbDir := filepath.Dir(path)
		if dbDir != "" && dbDir != "." {
			if err := os.MkdirAll(dbDir, 0o750); err != nil {
				return nil, fmt.Errorf("failed to create database directory %s: %w", dbDir, err)
			}
		}
	}

	connStr := path + "?access_mode=read_write&autoinstall_known_extensions=false&autoload_known_extensions=false"
	if cfg.MaxMemory != "" {
		connStr += "&max_memory=" + cfg.MaxMemory
	}

	conn, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db := &DB{conn: conn, cfg: cfg, now: time.Now}
	if err := db.initialize(); err != nil {
		closeQuietly(conn)
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	logging.Info().Str("path", path).Msg("Database opened")
	return db, nil
}

// Conn returns the underlying SQL connection.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// SetClock replaces the time source used for row timestamps. Intended for tests.
func (db *DB) SetClock(now func() time.Time) {
	db.now = now
}

func (db *DB) timestamp() time.Time {
	return db.now().UTC()
}

// Close checkpoints and closes the connection.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if _, err := db.conn.ExecContext(ctx, "CHECKPOINT"); err != nil {
		logging.Warn().Err(err).Msg("Failed to checkpoint database before close")
	}
	cancel()
	return db.conn.Close()
}

// Ping checks if the database connection is alive.
func (db *DB) Ping(ctx context.Context) error {
	if db.conn == nil {
		return fmt.Errorf("database connection is nil")
	}
	return db.conn.PingContext(ctx)
}

func (db *DB) initialize() error {
	ctx, cancel := schemaContext()
	defer cancel()

	if err := db.createTables(ctx); err != nil {
		return err
	}
	return db.runVersionedMigrations(ctx)
}

func schemaContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}
