// Screenline - Digital Out-of-Home Screen Network Operations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/screenline

package models

import "time"

// APIResponse is the envelope of every REST response.
//
//	{
//	  "status": "error",
//	  "error": {"code": "INVALID_STATE", "message": "plan is PUBLISHED"},
//	  "metadata": {"timestamp": "2026-03-01T12:00:00Z", "request_id": "..."}
//	}
type APIResponse struct {
	Status   string      `json:"status"`
	Data     interface{} `json:"data"`
	Metadata Metadata    `json:"metadata"`
	Error    *APIError   `json:"error,omitempty"`
}

// Metadata accompanies every response.
type Metadata struct {
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
	Total     *int      `json:"total,omitempty"`
}

// APIError describes a failed request.
type APIError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}
