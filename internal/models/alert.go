// Screenline - Digital Out-of-Home Screen Network Operations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/screenline

package models

import "time"

// AlertType classifies operator alerts.
type AlertType string

const (
	AlertScreenOffline   AlertType = "screen_offline"
	AlertContentDrift    AlertType = "content_drift"
	AlertPublishFailed   AlertType = "publish_failed"
	AlertRollbackPartial AlertType = "rollback_partial"
)

// Severity of an alert.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Alert is raised for conditions an operator should look at.
type Alert struct {
	ID             string            `json:"id"`
	Type           AlertType         `json:"type"`
	Severity       Severity          `json:"severity"`
	ScreenID       int               `json:"screen_id,omitempty"`
	LocationID     string            `json:"location_id,omitempty"`
	PlanID         string            `json:"plan_id,omitempty"`
	Message        string            `json:"message"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	Acknowledged   bool              `json:"acknowledged"`
	AcknowledgedBy string            `json:"acknowledged_by,omitempty"`
	AcknowledgedAt *time.Time        `json:"acknowledged_at,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
}

// AlertFilter narrows active alert listings.
type AlertFilter struct {
	Type       AlertType
	LocationID string
	ScreenID   int
	Limit      int
}
