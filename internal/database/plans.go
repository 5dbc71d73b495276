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
	"github.com/google/uuid"

	"github.com/tomtom215/screenline/internal/models"
)

// CreatePlan inserts a new plan at version 1. An empty ID or state is filled
// in (uuid, PROPOSED).
func (db *DB) CreatePlan(ctx context.Context, plan *models.PlacementPlan) error {
	if plan.ID == "" {
		plan.ID = uuid.New().String()
	}
	if plan.State == "" {
		plan.State = models.PlanProposed
	}
	now := db.timestamp()
	plan.CreatedAt = now
	plan.UpdatedAt = now
	plan.Version = 1

	doc, err := json.Marshal(plan)
	if err != nil {
		return fmt.Errorf("failed to encode plan: %w", err)
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO placement_plans (id, advertiser_id, state, version, document, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		plan.ID, plan.AdvertiserID, string(plan.State), plan.Version, string(doc), now, now); err != nil {
		rollbackQuietly(tx)
		return fmt.Errorf("failed to insert plan: %w", err)
	}
	if err := writeTargets(ctx, tx, plan); err != nil {
		rollbackQuietly(tx)
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit plan: %w", err)
	}
	return nil
}

// GetPlan loads a plan by id.
func (db *DB) GetPlan(ctx context.Context, id string) (*models.PlacementPlan, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT document, version FROM placement_plans WHERE id = ?`, id)
	plan, err := scanPlan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("plan %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load plan %s: %w", id, err)
	}
	return plan, nil
}

// SavePlan writes plan if its stored version still equals plan.Version and
// bumps plan.Version on success. A stale version, or a concurrent
// transaction writing the same row, yields ErrVersionConflict.
func (db *DB) SavePlan(ctx context.Context, plan *models.PlacementPlan) error {
	expected := plan.Version
	plan.Version = expected + 1
	if plan.UpdatedAt.IsZero() {
		plan.UpdatedAt = db.timestamp()
	}

	err := db.savePlan(ctx, plan, expected)
	if err != nil {
		plan.Version = expected
	}
	return err
}

func (db *DB) savePlan(ctx context.Context, plan *models.PlacementPlan, expected int64) error {
	doc, err := json.Marshal(plan)
	if err != nil {
		return fmt.Errorf("failed to encode plan: %w", err)
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE placement_plans
		 SET state = ?, version = ?, document = ?, advertiser_id = ?, updated_at = ?
		 WHERE id = ? AND version = ?`,
		string(plan.State), plan.Version, string(doc), plan.AdvertiserID, plan.UpdatedAt.UTC(), plan.ID, expected)
	if err != nil {
		rollbackQuietly(tx)
		if isTxConflict(err) {
			return fmt.Errorf("plan %s: %w", plan.ID, ErrVersionConflict)
		}
		return fmt.Errorf("failed to update plan: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		rollbackQuietly(tx)
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		rollbackQuietly(tx)
		if _, getErr := db.GetPlan(ctx, plan.ID); errors.Is(getErr, ErrNotFound) {
			return getErr
		}
		return fmt.Errorf("plan %s at version %d: %w", plan.ID, expected, ErrVersionConflict)
	}

	if err := writeTargets(ctx, tx, plan); err != nil {
		rollbackQuietly(tx)
		return err
	}
	if err := tx.Commit(); err != nil {
		if isTxConflict(err) {
			return fmt.Errorf("plan %s: %w", plan.ID, ErrVersionConflict)
		}
		return fmt.Errorf("failed to commit plan: %w", err)
	}
	return nil
}

// writeTargets replaces the plan's target index: approved targets once
// approved, proposed targets before.
func writeTargets(ctx context.Context, tx *sql.Tx, plan *models.PlacementPlan) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM plan_targets WHERE plan_id = ?`, plan.ID); err != nil {
		return fmt.Errorf("failed to clear plan targets: %w", err)
	}
	targets := plan.ApprovedTargets
	if len(targets) == 0 {
		targets = plan.ProposedTargets
	}
	for _, t := range targets {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO plan_targets (plan_id, screen_id, playlist_id, location_id) VALUES (?, ?, ?, ?)`,
			plan.ID, t.ScreenID, t.PlaylistID, t.LocationID); err != nil {
			return fmt.Errorf("failed to insert plan target: %w", err)
		}
	}
	return nil
}

// ListPlans returns plans matching filter, newest first.
func (db *DB) ListPlans(ctx context.Context, filter models.PlanFilter) ([]*models.PlacementPlan, error) {
	query := `SELECT p.document, p.version FROM placement_plans p WHERE 1=1`
	var args []interface{}

	if filter.State != "" {
		query += " AND p.state = ?"
		args = append(args, string(filter.State))
	}
	if filter.AdvertiserID != "" {
		query += " AND p.advertiser_id = ?"
		args = append(args, filter.AdvertiserID)
	}
	if filter.ScreenID > 0 {
		query += " AND EXISTS (SELECT 1 FROM plan_targets t WHERE t.plan_id = p.id AND t.screen_id = ?)"
		args = append(args, filter.ScreenID)
	}
	query += " ORDER BY p.created_at DESC, p.id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, filter.Offset)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query plans: %w", err)
	}
	defer closeWithLog(rows, "rows")

	var plans []*models.PlacementPlan
	for rows.Next() {
		plan, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan plan: %w", err)
		}
		plans = append(plans, plan)
	}
	return plans, rows.Err()
}

func scanPlan(scanner interface {
	Scan(dest ...interface{}) error
}) (*models.PlacementPlan, error) {
	var doc string
	var version int64
	if err := scanner.Scan(&doc, &version); err != nil {
		return nil, err
	}
	var plan models.PlacementPlan
	if err := json.Unmarshal([]byte(doc), &plan); err != nil {
		return nil, fmt.Errorf("failed to decode plan document: %w", err)
	}
	plan.Version = version
	return &plan, nil
}
