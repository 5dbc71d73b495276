// Screenline - Digital Out-of-Home Screen Network Operations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/screenline

package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/screenline/internal/database"
	"github.com/tomtom215/screenline/internal/models"
	"github.com/tomtom215/screenline/internal/publish"
	"github.com/tomtom215/screenline/internal/reconcile"
	"github.com/tomtom215/screenline/internal/validation"
	"github.com/tomtom215/screenline/internal/yodeck"
)

var baselineTypes = map[string]bool{
	yodeck.SourcePlaylist: true,
	yodeck.SourceLayout:   true,
	yodeck.SourceSchedule: true,
	yodeck.SourceTagbased: true,
}

func locationID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" || len(id) > 128 {
		respondError(w, r, http.StatusBadRequest, publish.CodeValidation, "location id must be 1-128 characters", nil)
		return "", false
	}
	return id, true
}

// ListLocationScreens lists the screens registered at a location.
func (h *Handler) ListLocationScreens(w http.ResponseWriter, r *http.Request) {
	loc, ok := locationID(w, r)
	if !ok {
		return
	}
	screens, err := h.store.LocationScreens(r.Context(), loc)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respondList(w, r, screens)
}

// PutLocationScreen registers a screen at a location, moving it when it was
// registered elsewhere.
func (h *Handler) PutLocationScreen(w http.ResponseWriter, r *http.Request) {
	loc, ok := locationID(w, r)
	if !ok {
		return
	}
	screenID, ok := pathInt(w, r, "screenID")
	if !ok {
		return
	}
	var req LocationScreenRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	if req.Baseline != nil && (!baselineTypes[req.Baseline.SourceType] || req.Baseline.SourceID <= 0) {
		writeError(w, r, &validation.RequestValidationError{Fields: []validation.FieldError{{
			Field:   "baseline",
			Tag:     "content_ref",
			Message: "baseline must reference a playlist, layout, schedule or tagbased-playlist by id",
		}}})
		return
	}

	ls := &models.LocationScreen{
		LocationID:         loc,
		ScreenID:           screenID,
		Name:               req.Name,
		PlaylistID:         req.PlaylistID,
		Baseline:           req.Baseline,
		Region:             req.Region,
		ExcludedCategories: req.ExcludedCategories,
		AdCapacity:         req.AdCapacity,
	}
	if err := h.store.UpsertLocationScreen(r.Context(), ls); err != nil {
		writeError(w, r, err)
		return
	}
	respondData(w, r, http.StatusOK, ls)
}

// DeleteLocationScreen removes a screen from a location.
func (h *Handler) DeleteLocationScreen(w http.ResponseWriter, r *http.Request) {
	loc, ok := locationID(w, r)
	if !ok {
		return
	}
	screenID, ok := pathInt(w, r, "screenID")
	if !ok {
		return
	}
	current, err := h.store.LocationScreen(r.Context(), screenID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if current.LocationID != loc {
		writeError(w, r, database.ErrNotFound)
		return
	}
	if err := h.store.DeleteLocationScreen(r.Context(), screenID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ReconcileLocation runs a reconcile pass for one location. The body is
// optional; without it the pass only reports drift.
func (h *Handler) ReconcileLocation(w http.ResponseWriter, r *http.Request) {
	loc, ok := locationID(w, r)
	if !ok {
		return
	}
	var req ReconcileRequest
	if !decodeJSON(w, r, &req, true) {
		return
	}
	if err := validateStruct(req); err != nil {
		writeError(w, r, err)
		return
	}
	reason := req.Reason
	if reason == "" {
		reason = reconcile.ReasonManual
	}
	report, err := h.reconciler.Reconcile(r.Context(), loc, req.Push, reason)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respondData(w, r, http.StatusOK, report)
}

// ScreenStatus returns the last reconciled state of every screen at a location.
func (h *Handler) ScreenStatus(w http.ResponseWriter, r *http.Request) {
	loc, ok := locationID(w, r)
	if !ok {
		return
	}
	statuses, err := h.store.ScreenStatuses(r.Context(), loc)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respondList(w, r, statuses)
}
