// Screenline - Digital Out-of-Home Screen Network Operations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/screenline

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/tomtom215/screenline/internal/models"
	"github.com/tomtom215/screenline/internal/signage"
)

// HealthLive reports that the process is serving requests.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	respondData(w, r, http.StatusOK, map[string]interface{}{
		"alive":  true,
		"uptime": time.Since(h.startTime).Seconds(),
	})
}

// HealthReady returns 200 once the database answers. The signage integration
// state is reported without affecting readiness.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	dbConnected := h.store != nil && h.store.Ping(r.Context()) == nil

	signageStatus := "configured"
	if h.platforms == nil {
		signageStatus = "not_configured"
	} else if _, err := h.platforms.Platform(r.Context()); err != nil {
		signageStatus = "error"
		if errors.Is(err, signage.ErrNotConfigured) {
			signageStatus = "not_configured"
		}
	}

	statusCode := http.StatusOK
	status := "ready"
	if !dbConnected {
		statusCode = http.StatusServiceUnavailable
		status = "not_ready"
	}

	respondJSON(w, statusCode, &models.APIResponse{
		Status: status,
		Data: map[string]interface{}{
			"database_connected": dbConnected,
			"signage":            signageStatus,
			"uptime":             time.Since(h.startTime).Seconds(),
		},
		Metadata: metadata(r),
	})
}
