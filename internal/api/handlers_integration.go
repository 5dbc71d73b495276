// Screenline - Digital Out-of-Home Screen Network Operations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/screenline

package api

import (
	"net/http"

	"github.com/tomtom215/screenline/internal/config"
	"github.com/tomtom215/screenline/internal/logging"
	"github.com/tomtom215/screenline/internal/signage"
)

// CredentialStatus reports whether signage credentials are stored, with the
// token masked.
func (h *Handler) CredentialStatus(w http.ResponseWriter, r *http.Request) {
	if h.creds == nil {
		writeError(w, r, signage.ErrNotConfigured)
		return
	}
	status, err := h.creds.Status(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	respondData(w, r, http.StatusOK, status)
}

// PutCredentials stores signage credentials and rebuilds the platform so the
// next call uses them. Every cache is dropped with the old platform.
func (h *Handler) PutCredentials(w http.ResponseWriter, r *http.Request) {
	if h.creds == nil {
		writeError(w, r, signage.ErrNotConfigured)
		return
	}
	var req CredentialsRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	if err := h.creds.Set(r.Context(), req.TokenLabel, req.TokenValue); err != nil {
		writeError(w, r, err)
		return
	}
	h.platforms.Reset()

	logging.Ctx(r.Context()).Info().
		Str("token_label", req.TokenLabel).
		Str("token", config.MaskToken(req.TokenValue)).
		Msg("Signage credentials updated")

	status, err := h.creds.Status(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	respondData(w, r, http.StatusOK, status)
}

// ClearCache drops every signage cache of the current platform.
func (h *Handler) ClearCache(w http.ResponseWriter, r *http.Request) {
	h.platforms.ClearCaches()
	logging.Ctx(r.Context()).Info().Msg("Signage caches cleared")
	respondData(w, r, http.StatusOK, map[string]bool{"cleared": true})
}
