// Screenline - Digital Out-of-Home Screen Network Operations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/screenline

package models

import (
	"errors"
	"fmt"
	"time"
)

// PlanState is the lifecycle state of a placement plan.
type PlanState string

const (
	PlanProposed      PlanState = "PROPOSED"
	PlanSimulatedOK   PlanState = "SIMULATED_OK"
	PlanSimulatedFail PlanState = "SIMULATED_FAIL"
	PlanApproved      PlanState = "APPROVED"
	PlanPublishing    PlanState = "PUBLISHING"
	PlanPublished     PlanState = "PUBLISHED"
	PlanFailed        PlanState = "FAILED"
	PlanRolledBack    PlanState = "ROLLED_BACK"
	PlanCanceled      PlanState = "CANCELED"
)

// ErrInvalidTransition is wrapped by every rejected state change.
var ErrInvalidTransition = errors.New("invalid plan transition")

var validPlanTransitions = map[PlanState]map[PlanState]bool{
	PlanProposed: {
		PlanSimulatedOK:   true,
		PlanSimulatedFail: true,
		PlanCanceled:      true,
	},
	PlanSimulatedOK: {
		PlanSimulatedOK:   true,
		PlanSimulatedFail: true,
		PlanApproved:      true,
		PlanCanceled:      true,
	},
	PlanSimulatedFail: {
		PlanSimulatedOK:   true,
		PlanSimulatedFail: true,
		PlanCanceled:      true,
	},
	PlanApproved: {
		PlanPublishing: true,
		PlanCanceled:   true,
	},
	PlanPublishing: {
		PlanPublished: true,
		PlanFailed:    true,
	},
	PlanFailed: {
		PlanPublishing: true,
	},
	// Published plans only leave through an explicit rollback.
	PlanPublished: {
		PlanRolledBack: true,
	},
}

var terminalPlanStates = map[PlanState]bool{
	PlanPublished:  true,
	PlanCanceled:   true,
	PlanRolledBack: true,
}

// IsTerminal reports whether s ends the regular lifecycle.
func (s PlanState) IsTerminal() bool { return terminalPlanStates[s] }

// Valid reports whether s is a known state.
func (s PlanState) Valid() bool {
	if _, ok := validPlanTransitions[s]; ok {
		return true
	}
	return s == PlanCanceled || s == PlanRolledBack
}

// ValidatePlanTransition checks from -> to against the transition table.
func ValidatePlanTransition(from, to PlanState) error {
	if !from.Valid() {
		return fmt.Errorf("%w: unknown plan state %q", ErrInvalidTransition, from)
	}
	if !validPlanTransitions[from][to] {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// Target is one screen a plan places its asset on.
type Target struct {
	ScreenID   int    `json:"screen_id" validate:"required,gt=0"`
	PlaylistID int    `json:"playlist_id" validate:"required,gt=0"`
	LocationID string `json:"location_id,omitempty"`
	ScreenName string `json:"screen_name,omitempty"`
}

// PlacementRules constrain which candidate screens a plan may use.
type PlacementRules struct {
	// Regions, when set, restricts candidates to these regions.
	Regions []string `json:"regions,omitempty"`
	// Category is the advertiser's category, matched against screen exclusions.
	Category string `json:"category,omitempty"`
	// RequireOnline rejects screens that are offline at simulation time.
	RequireOnline bool `json:"require_online"`
	// ScreenIDs, when set, restricts candidates to these screens.
	ScreenIDs []int `json:"screen_ids,omitempty"`
}

// PlacementPlan is an advertiser placement request and its lifecycle.
type PlacementPlan struct {
	ID              string   `json:"id"`
	AdvertiserID    string   `json:"advertiser_id"`
	AssetMediaID    int      `json:"asset_media_id"`
	AssetName       string   `json:"asset_name"`
	SearchNames     []string `json:"search_names,omitempty"`
	ItemDuration    int      `json:"item_duration"`
	RequiredTargets int      `json:"required_targets"`
	// PublishedMediaID is the media actually placed, which differs from
	// AssetMediaID when resolution found a replacement.
	PublishedMediaID int            `json:"published_media_id,omitempty"`
	Rules            PlacementRules `json:"rules"`
	State            PlanState      `json:"state"`

	ProposedTargets []Target          `json:"proposed_targets"`
	ApprovedTargets []Target          `json:"approved_targets"`
	Simulation      *SimulationReport `json:"simulation,omitempty"`
	PublishReport   *PublishReport    `json:"publish_report,omitempty"`
	RollbackReport  *PublishReport    `json:"rollback_report,omitempty"`

	RetryCount       int    `json:"retry_count"`
	LastErrorCode    string `json:"last_error_code,omitempty"`
	LastErrorMessage string `json:"last_error_message,omitempty"`
	LastErrorDetails string `json:"last_error_details,omitempty"`

	// Version increments on every save and guards concurrent writers.
	Version int64 `json:"version"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	SimulatedAt *time.Time `json:"simulated_at,omitempty"`
	ApprovedAt  *time.Time `json:"approved_at,omitempty"`
	// PublishingAt is when the latest publish or retry attempt started.
	PublishingAt *time.Time `json:"publishing_at,omitempty"`
	PublishedAt  *time.Time `json:"published_at,omitempty"`
	FailedAt     *time.Time `json:"failed_at,omitempty"`
	RolledBackAt *time.Time `json:"rolled_back_at,omitempty"`
	CanceledAt   *time.Time `json:"canceled_at,omitempty"`

	// RollbackStartedAt marks a rollback in progress. The plan stays
	// PUBLISHED until the rollback settles.
	RollbackStartedAt *time.Time `json:"rollback_started_at,omitempty"`
}

// Transition validates and applies a state change, stamping the matching
// timestamp.
func (p *PlacementPlan) Transition(to PlanState, at time.Time) error {
	if err := ValidatePlanTransition(p.State, to); err != nil {
		return err
	}
	at = at.UTC()
	switch to {
	case PlanSimulatedOK, PlanSimulatedFail:
		p.SimulatedAt = &at
	case PlanApproved:
		p.ApprovedAt = &at
	case PlanPublishing:
		p.PublishingAt = &at
	case PlanPublished:
		p.PublishedAt = &at
	case PlanFailed:
		p.FailedAt = &at
	case PlanRolledBack:
		p.RolledBackAt = &at
	case PlanCanceled:
		p.CanceledAt = &at
	}
	p.State = to
	p.UpdatedAt = at
	return nil
}

// SetError records the last error. An empty code clears it.
func (p *PlacementPlan) SetError(code, message, details string) {
	p.LastErrorCode = code
	p.LastErrorMessage = message
	p.LastErrorDetails = details
}

// LocationIDs returns the distinct locations of the approved (or, before
// approval, proposed) targets.
func (p *PlacementPlan) LocationIDs() []string {
	targets := p.ApprovedTargets
	if len(targets) == 0 {
		targets = p.ProposedTargets
	}
	seen := make(map[string]bool)
	var out []string
	for _, t := range targets {
		if t.LocationID == "" || seen[t.LocationID] {
			continue
		}
		seen[t.LocationID] = true
		out = append(out, t.LocationID)
	}
	return out
}

// PlanFilter narrows plan listings.
type PlanFilter struct {
	State        PlanState
	AdvertiserID string
	ScreenID     int
	Limit        int
	Offset       int
}
