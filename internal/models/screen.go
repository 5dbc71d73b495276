// Screenline - Digital Out-of-Home Screen Network Operations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/screenline

package models

import (
	"time"

	"github.com/tomtom215/screenline/internal/yodeck"
)

// LocationScreen is a screen installed at a location together with the
// neutral content it should show when no campaign overrides it.
type LocationScreen struct {
	LocationID string             `json:"location_id"`
	ScreenID   int                `json:"screen_id"`
	Name       string             `json:"name,omitempty"`
	PlaylistID int                `json:"playlist_id,omitempty"`
	Baseline   *yodeck.ContentRef `json:"baseline,omitempty"`

	Region             string   `json:"region,omitempty"`
	ExcludedCategories []string `json:"excluded_categories,omitempty"`
	// AdCapacity is the number of concurrent placements the screen accepts.
	AdCapacity int `json:"ad_capacity"`
}

// Candidate is a screen considered by simulation, with the occupancy and
// last known online state needed by the placement rules.
type Candidate struct {
	ScreenID           int
	PlaylistID         int
	LocationID         string
	ScreenName         string
	Region             string
	ExcludedCategories []string
	Capacity           int
	UsedSlots          int
	Online             bool
}

// Target converts the candidate to a plan target.
func (c Candidate) Target() Target {
	return Target{ScreenID: c.ScreenID, PlaylistID: c.PlaylistID, LocationID: c.LocationID, ScreenName: c.ScreenName}
}

// ScreenStatus is the last reconciled state of a screen.
type ScreenStatus struct {
	ScreenID         int        `json:"screen_id"`
	LocationID       string     `json:"location_id"`
	Name             string     `json:"name,omitempty"`
	Online           bool       `json:"online"`
	LastSeen         *time.Time `json:"last_seen,omitempty"`
	ContentStatus    string     `json:"content_status"`
	UniqueMediaCount int        `json:"unique_media_count"`
	ExpectedMediaIDs []int      `json:"expected_media_ids"`
	MissingMediaIDs  []int      `json:"missing_media_ids"`
	PointerMatches   bool       `json:"pointer_matches"`
	Compliant        bool       `json:"compliant"`
	DriftReasons     []string   `json:"drift_reasons,omitempty"`
	Pushed           bool       `json:"pushed"`
	Error            string     `json:"error,omitempty"`
	CheckedAt        time.Time  `json:"checked_at"`
}
