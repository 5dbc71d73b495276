// Screenline - Digital Out-of-Home Screen Network Operations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/screenline

package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/goccy/go-json"

	"github.com/tomtom215/screenline/internal/models"
)

// occupyingStates are the plan states that hold an ad slot on their targets.
var occupyingStates = []models.PlanState{
	models.PlanApproved,
	models.PlanPublishing,
	models.PlanPublished,
	models.PlanFailed,
}

// Candidates returns the screens a plan may be placed on, with their slot
// usage by other plans and last reconciled online state. Screens never
// reconciled count as online. Rules.ScreenIDs, when set, restricts the set.
func (db *DB) Candidates(ctx context.Context, plan *models.PlacementPlan) ([]models.Candidate, error) {
	states := make([]string, len(occupyingStates))
	args := []interface{}{plan.ID}
	for i, s := range occupyingStates {
		states[i] = "?"
		args = append(args, string(s))
	}

	query := `
		SELECT ls.screen_id, ls.playlist_id, ls.location_id, ls.name, ls.region,
			ls.excluded_categories, ls.ad_capacity,
			COALESCE(ss.online, true),
			(SELECT COUNT(DISTINCT t.plan_id)
			   FROM plan_targets t JOIN placement_plans p ON p.id = t.plan_id
			  WHERE t.screen_id = ls.screen_id AND p.id <> ? AND p.state IN (` + strings.Join(states, ",") + `))
		FROM location_screens ls
		LEFT JOIN screen_status ss ON ss.screen_id = ls.screen_id`

	if ids := plan.Rules.ScreenIDs; len(ids) > 0 {
		query += " WHERE ls.screen_id IN (" + strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",") + ")"
		for _, id := range ids {
			args = append(args, id)
		}
	}
	query += " ORDER BY ls.location_id, ls.screen_id"

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query candidates: %w", err)
	}
	defer closeWithLog(rows, "rows")

	var out []models.Candidate
	for rows.Next() {
		var c models.Candidate
		var excluded string
		var used int64
		if err := rows.Scan(&c.ScreenID, &c.PlaylistID, &c.LocationID, &c.ScreenName, &c.Region,
			&excluded, &c.Capacity, &c.Online, &used); err != nil {
			return nil, fmt.Errorf("failed to scan candidate: %w", err)
		}
		if err := json.Unmarshal([]byte(excluded), &c.ExcludedCategories); err != nil {
			return nil, fmt.Errorf("failed to decode excluded categories: %w", err)
		}
		c.UsedSlots = int(used)
		out = append(out, c)
	}
	return out, rows.Err()
}
