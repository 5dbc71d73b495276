// Screenline - Digital Out-of-Home Screen Network Operations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/screenline

/*
Package database is the DuckDB-backed store for the state Screenline owns.

Tables:

  - placement_plans, plan_targets: plan documents with an optimistic version
    column; SavePlan is a compare-and-set on (id, version)
  - location_screens: the location directory and placement inventory
  - screen_status: last reconciled state per screen
  - alerts: operator alerts with acknowledgement

Plan documents, reports and list columns are stored as JSON text encoded with
goccy/go-json, so the store does not depend on the DuckDB json extension.

Usage:

	db, err := database.Open(&cfg.Database)
	if err != nil {
	    return err
	}
	defer db.Close()

	plan, err := db.GetPlan(ctx, id)

Errors: ErrNotFound for missing rows, ErrVersionConflict when a concurrent
writer saved the plan first.
*/
package database
