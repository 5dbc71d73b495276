// Screenline - Digital Out-of-Home Screen Network Operations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/screenline

package api

import (
	"github.com/goccy/go-json"

	"github.com/tomtom215/screenline/internal/yodeck"
)

// EnsureReadyRequest is the body of POST /media/{id}/ensure-ready.
type EnsureReadyRequest struct {
	ExpectedName string   `json:"expected_name" validate:"max=255"`
	SearchNames  []string `json:"search_names" validate:"omitempty,max=10,dive,required,max=255"`
}

// PatchArgumentsRequest is the body of PATCH /media/{id}/arguments. A null
// argument value removes the argument.
type PatchArgumentsRequest struct {
	Name      *string                    `json:"name" validate:"omitempty,min=1,max=255"`
	Arguments map[string]json.RawMessage `json:"arguments" validate:"required_without_all=Name Tags"`
	Tags      []string                   `json:"tags" validate:"omitempty,max=50,dive,required,max=64"`
}

// Patch converts the request to the gateway shape.
func (r PatchArgumentsRequest) Patch() yodeck.MediaPatch {
	return yodeck.MediaPatch{Name: r.Name, Arguments: r.Arguments, Tags: r.Tags}
}

// BulkRequest is the body of POST /plans/bulk/{action}.
type BulkRequest struct {
	PlanIDs []string `json:"plan_ids" validate:"required,min=1,max=100,dive,required,uuid"`
}

// ReconcileRequest is the optional body of POST /locations/{id}/reconcile.
type ReconcileRequest struct {
	Push   bool   `json:"push"`
	Reason string `json:"reason" validate:"max=64"`
}

// LocationScreenRequest is the body of PUT /locations/{id}/screens/{screenID}.
type LocationScreenRequest struct {
	Name               string             `json:"name" validate:"max=255"`
	PlaylistID         int                `json:"playlist_id" validate:"gte=0"`
	Baseline           *yodeck.ContentRef `json:"baseline"`
	Region             string             `json:"region" validate:"max=64"`
	ExcludedCategories []string           `json:"excluded_categories" validate:"omitempty,max=50,dive,required,max=64"`
	AdCapacity         int                `json:"ad_capacity" validate:"gte=0,lte=100"`
}

// AcknowledgeRequest is the body of POST /alerts/{id}/acknowledge.
type AcknowledgeRequest struct {
	AcknowledgedBy string `json:"acknowledged_by" validate:"required,max=128"`
}

// CredentialsRequest is the body of PUT /integration/credentials.
type CredentialsRequest struct {
	TokenLabel string `json:"token_label" validate:"required,max=128"`
	TokenValue string `json:"token_value" validate:"required,max=512"`
}
