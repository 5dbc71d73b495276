// Screenline - Digital Out-of-Home Screen Network Operations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/screenline

package api

import (
	"net/http"

	"github.com/tomtom215/screenline/internal/media"
	"github.com/tomtom215/screenline/internal/resolver"
)

// ScreenContent resolves the content graph behind a screen.
func (h *Handler) ScreenContent(w http.ResponseWriter, r *http.Request) {
	screenID, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	platform, err := h.platforms.Platform(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	content, err := resolver.New(platform).ResolveScreenID(r.Context(), screenID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respondData(w, r, http.StatusOK, content)
}

// MediaEnsureReady resolves a media reference to a playable id, cleaning up
// stale shells on the way. An unresolved media is a 200 with a null
// resolved_id and the diagnostics explaining why.
func (h *Handler) MediaEnsureReady(w http.ResponseWriter, r *http.Request) {
	mediaID, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	var req EnsureReadyRequest
	if !decodeJSON(w, r, &req, true) {
		return
	}
	if err := validateStruct(req); err != nil {
		writeError(w, r, err)
		return
	}
	platform, err := h.platforms.Platform(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := media.NewResolver(platform, h.mediaOpts).EnsureReady(r.Context(), mediaID, req.ExpectedName, req.SearchNames)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respondData(w, r, http.StatusOK, res)
}

// MediaPatchArguments merges the given arguments into a media object without
// breaking its origin.
func (h *Handler) MediaPatchArguments(w http.ResponseWriter, r *http.Request) {
	mediaID, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	var req PatchArgumentsRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	platform, err := h.platforms.Platform(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	updated, err := media.NewResolver(platform, h.mediaOpts).PatchSafe(r.Context(), mediaID, req.Patch())
	if err != nil {
		writeError(w, r, err)
		return
	}
	respondData(w, r, http.StatusOK, updated)
}
