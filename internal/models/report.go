// Screenline - Digital Out-of-Home Screen Network Operations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/screenline

package models

import "time"

// Rejection reasons produced by simulation.
const (
	ReasonNoCapacity       = "NO_CAPACITY"
	ReasonOffline          = "OFFLINE"
	ReasonRegionMismatch   = "REGION_MISMATCH"
	ReasonCategoryExcluded = "CATEGORY_EXCLUDED"
	ReasonSurplus          = "SURPLUS"
)

// Rejection is a candidate screen a simulation did not accept.
type Rejection struct {
	ScreenID   int    `json:"screen_id"`
	LocationID string `json:"location_id,omitempty"`
	Reason     string `json:"reason"`
}

// SimulationReport is the outcome of the latest simulation.
type SimulationReport struct {
	RequiredCount int         `json:"required_count"`
	AcceptedCount int         `json:"accepted_count"`
	Accepted      []Target    `json:"accepted"`
	Rejected      []Rejection `json:"rejected"`
	OK            bool        `json:"ok"`
	SimulatedAt   time.Time   `json:"simulated_at"`
}

// Target outcome statuses.
const (
	TargetSuccess = "success"
	TargetFailed  = "failed"
)

// TargetResult is the outcome of one target within an attempt.
type TargetResult struct {
	TargetScreenID  int         `json:"target_screen_id"`
	PlaylistID      int         `json:"playlist_id"`
	LocationID      string      `json:"location_id,omitempty"`
	Status          string      `json:"status"`
	HTTPStatus      int         `json:"http_status,omitempty"`
	ErrorCode       string      `json:"error_code,omitempty"`
	Error           string      `json:"error,omitempty"`
	ErrorDetails    string      `json:"error_details,omitempty"`
	MediaResolution interface{} `json:"media_resolution,omitempty"`
	Pushed          bool        `json:"pushed"`
}

// PublishReport is produced once per publish, retry or rollback attempt.
type PublishReport struct {
	Operation    string         `json:"operation"`
	Attempt      int            `json:"attempt"`
	Targets      []TargetResult `json:"targets"`
	TotalTargets int            `json:"total_targets"`
	SuccessCount int            `json:"success_count"`
	FailedCount  int            `json:"failed_count"`
	StartedAt    time.Time      `json:"started_at"`
	FinishedAt   time.Time      `json:"finished_at"`
}

// Tally recomputes the counts from Targets.
func (r *PublishReport) Tally() {
	r.TotalTargets = len(r.Targets)
	r.SuccessCount, r.FailedCount = 0, 0
	for _, t := range r.Targets {
		if t.Status == TargetSuccess {
			r.SuccessCount++
		} else {
			r.FailedCount++
		}
	}
}

// AllSucceeded reports whether every target succeeded.
func (r *PublishReport) AllSucceeded() bool {
	return r.FailedCount == 0 && r.SuccessCount == r.TotalTargets
}
