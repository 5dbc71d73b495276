// Screenline - Digital Out-of-Home Screen Network Operations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/screenline

package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/screenline/internal/models"
	"github.com/tomtom215/screenline/internal/publish"
	"github.com/tomtom215/screenline/internal/validation"
)

const maxPlanPageSize = 500

type planAction func(context.Context, string) (*models.PlacementPlan, error)

type bulkAction func(context.Context, []string) *publish.BulkResult

// CreatePlan stores a new PROPOSED plan.
func (h *Handler) CreatePlan(w http.ResponseWriter, r *http.Request) {
	var in publish.CreateInput
	if !decodeJSON(w, r, &in, false) {
		return
	}
	plan, err := h.plans.Create(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respondData(w, r, http.StatusCreated, plan)
}

// ListPlans lists plans, newest first. Filters: state, advertiser_id,
// screen_id, limit, offset.
func (h *Handler) ListPlans(w http.ResponseWriter, r *http.Request) {
	filter, err := planFilter(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	plans, err := h.plans.List(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respondList(w, r, plans)
}

func planFilter(r *http.Request) (models.PlanFilter, error) {
	q := r.URL.Query()
	filter := models.PlanFilter{
		State:        models.PlanState(q.Get("state")),
		AdvertiserID: q.Get("advertiser_id"),
	}
	if filter.State != "" && !filter.State.Valid() {
		return filter, &validation.RequestValidationError{Fields: []validation.FieldError{{
			Field: "state", Tag: "oneof", Message: "state is not a known plan state",
		}}}
	}
	var err error
	if filter.ScreenID, err = queryInt(r, "screen_id", 0); err != nil {
		return filter, err
	}
	if filter.Limit, err = queryInt(r, "limit", 100); err != nil {
		return filter, err
	}
	if filter.Limit > maxPlanPageSize {
		filter.Limit = maxPlanPageSize
	}
	if filter.Offset, err = queryInt(r, "offset", 0); err != nil {
		return filter, err
	}
	return filter, nil
}

// GetPlan returns one plan.
func (h *Handler) GetPlan(w http.ResponseWriter, r *http.Request) {
	plan, err := h.plans.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	respondData(w, r, http.StatusOK, plan)
}

// PlanAction runs one lifecycle step on a plan. Publish, retry and rollback
// return the plan in its settled state; a partial failure is a 200 whose
// plan is FAILED with the error recorded on it.
func (h *Handler) PlanAction(w http.ResponseWriter, r *http.Request) {
	action, ok := h.planActions()[chi.URLParam(r, "action")]
	if !ok {
		respondError(w, r, http.StatusNotFound, publish.CodeNotFound, "Unknown plan action", nil)
		return
	}
	plan, err := action(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	respondData(w, r, http.StatusOK, plan)
}

func (h *Handler) planActions() map[string]planAction {
	return map[string]planAction{
		"simulate": h.plans.Simulate,
		"approve":  h.plans.Approve,
		"publish":  h.plans.Publish,
		"retry":    h.plans.Retry,
		"rollback": h.plans.Rollback,
		"cancel":   h.plans.Cancel,
	}
}

// BulkPlanAction applies simulate, approve or publish to many plans. Per-plan
// failures are reported in the result, never as an HTTP error.
func (h *Handler) BulkPlanAction(w http.ResponseWriter, r *http.Request) {
	actions := map[string]bulkAction{
		"simulate": h.plans.BulkSimulate,
		"approve":  h.plans.BulkApprove,
		"publish":  h.plans.BulkPublish,
	}
	action, ok := actions[chi.URLParam(r, "action")]
	if !ok {
		respondError(w, r, http.StatusNotFound, publish.CodeNotFound, "Unknown bulk action", nil)
		return
	}
	var req BulkRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	respondData(w, r, http.StatusOK, action(r.Context(), req.PlanIDs))
}
