// Screenline - Digital Out-of-Home Screen Network Operations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/screenline

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/screenline/internal/models"
)

// ListAlerts returns unacknowledged alerts. Filters: type, location_id,
// screen_id, limit.
func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	filter := models.AlertFilter{
		Type:       models.AlertType(r.URL.Query().Get("type")),
		LocationID: r.URL.Query().Get("location_id"),
	}
	var err error
	if filter.ScreenID, err = queryInt(r, "screen_id", 0); err != nil {
		writeError(w, r, err)
		return
	}
	if filter.Limit, err = queryInt(r, "limit", 100); err != nil {
		writeError(w, r, err)
		return
	}
	alerts, err := h.store.GetActiveAlerts(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respondList(w, r, alerts)
}

// AcknowledgeAlert marks an alert as handled.
func (h *Handler) AcknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	var req AcknowledgeRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	id := chi.URLParam(r, "id")
	if err := h.store.AcknowledgeAlert(r.Context(), id, req.AcknowledgedBy); err != nil {
		writeError(w, r, err)
		return
	}
	respondData(w, r, http.StatusOK, map[string]interface{}{
		"id":              id,
		"acknowledged":    true,
		"acknowledged_by": req.AcknowledgedBy,
	})
}
