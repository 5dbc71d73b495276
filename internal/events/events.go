// Screenline - Digital Out-of-Home Screen Network Operations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/screenline

// Package events carries plan lifecycle events between the publish
// orchestrator and the reconciler over a watermill bus: the in-process
// gochannel pub/sub by default, or core NATS when configured.
package events

import (
	"time"

	"github.com/google/uuid"
)

// Event types.
const (
	TypePlanPublished  = "plan.published"
	TypePlanFailed     = "plan.failed"
	TypePlanRolledBack = "plan.rolled_back"
)

// PlanEvent is emitted after a publish, retry or rollback attempt settles.
type PlanEvent struct {
	ID            string    `json:"id"`
	Type          string    `json:"type"`
	PlanID        string    `json:"plan_id"`
	State         string    `json:"state"`
	LocationIDs   []string  `json:"location_ids"`
	SuccessCount  int       `json:"success_count"`
	FailedCount   int       `json:"failed_count"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// NewPlanEvent returns an event with a fresh id and timestamp.
func NewPlanEvent(eventType, planID, state string, locationIDs []string) *PlanEvent {
	return &PlanEvent{
		ID:          uuid.New().String(),
		Type:        eventType,
		PlanID:      planID,
		State:       state,
		LocationIDs: locationIDs,
		OccurredAt:  time.Now().UTC(),
	}
}
