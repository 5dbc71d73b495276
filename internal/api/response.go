// Screenline - Digital Out-of-Home Screen Network Operations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/screenline

package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/tomtom215/screenline/internal/credentials"
	"github.com/tomtom215/screenline/internal/database"
	"github.com/tomtom215/screenline/internal/logging"
	"github.com/tomtom215/screenline/internal/media"
	"github.com/tomtom215/screenline/internal/models"
	"github.com/tomtom215/screenline/internal/publish"
	"github.com/tomtom215/screenline/internal/signage"
	"github.com/tomtom215/screenline/internal/validation"
	"github.com/tomtom215/screenline/internal/yodeck"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

func metadata(r *http.Request) models.Metadata {
	return models.Metadata{
		Timestamp: time.Now().UTC(),
		RequestID: logging.RequestIDFromContext(r.Context()),
	}
}

// respondJSON writes response with the given status.
func respondJSON(w http.ResponseWriter, status int, response *models.APIResponse) {
	data, err := json.Marshal(response)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.Error().Err(err).Msg("Failed to write JSON response")
	}
}

// respondData writes a success envelope around data.
func respondData(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	respondJSON(w, status, &models.APIResponse{
		Status:   "success",
		Data:     data,
		Metadata: metadata(r),
	})
}

// respondList writes a success envelope carrying the item count.
func respondList[T any](w http.ResponseWriter, r *http.Request, items []T) {
	if items == nil {
		items = []T{}
	}
	meta := metadata(r)
	total := len(items)
	meta.Total = &total
	respondJSON(w, http.StatusOK, &models.APIResponse{
		Status:   "success",
		Data:     items,
		Metadata: meta,
	})
}

// respondError writes an error envelope.
func respondError(w http.ResponseWriter, r *http.Request, status int, code, message string, details interface{}) {
	respondJSON(w, status, &models.APIResponse{
		Status:   "error",
		Metadata: metadata(r),
		Error: &models.APIError{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

// writeError maps a core error to its HTTP status and error code.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *validation.RequestValidationError
	switch {
	case errors.As(err, &verr):
		respondError(w, r, http.StatusBadRequest, publish.CodeValidation, verr.Error(), verr.Details())
	case errors.Is(err, publish.ErrAlreadyProcessing):
		respondError(w, r, http.StatusConflict, publish.CodeAlreadyProcessing, err.Error(), nil)
	case errors.Is(err, publish.ErrInvalidState), errors.Is(err, models.ErrInvalidTransition):
		respondError(w, r, http.StatusConflict, publish.CodeInvalidState, err.Error(), nil)
	case errors.Is(err, database.ErrVersionConflict):
		respondError(w, r, http.StatusConflict, publish.CodeVersionConflict, err.Error(), nil)
	case errors.Is(err, database.ErrNotFound), yodeck.IsNotFound(err):
		respondError(w, r, http.StatusNotFound, publish.CodeNotFound, err.Error(), nil)
	case errors.Is(err, signage.ErrNotConfigured):
		respondError(w, r, http.StatusServiceUnavailable, publish.CodeNotConfigured, "Signage integration is not configured", nil)
	case errors.Is(err, credentials.ErrInvalidCredentials):
		respondError(w, r, http.StatusBadRequest, publish.CodeValidation, err.Error(), nil)
	case media.Code(err) != "":
		respondError(w, r, http.StatusUnprocessableEntity, media.Code(err), err.Error(), nil)
	case yodeck.IsValidation(err):
		respondError(w, r, http.StatusUnprocessableEntity, "UPSTREAM_VALIDATION", "Signage platform rejected the request", upstreamDetails(err))
	case yodeck.KindOf(err) != "":
		respondError(w, r, http.StatusBadGateway, "UPSTREAM_ERROR", "Signage platform request failed", upstreamDetails(err))
	default:
		logging.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("Unhandled API error")
		respondError(w, r, http.StatusInternalServerError, publish.CodeInternal, "Internal server error", nil)
	}
}

func upstreamDetails(err error) map[string]interface{} {
	ye, ok := yodeck.AsError(err)
	if !ok {
		return nil
	}
	details := map[string]interface{}{
		"code":      ye.Code(),
		"method":    ye.Method,
		"endpoint":  ye.Endpoint,
		"retryable": ye.Retryable(),
	}
	if len(ye.Body) > 0 {
		if json.Valid(ye.Body) {
			details["body"] = json.RawMessage(ye.Body)
		} else {
			details["body"] = string(ye.Body)
		}
	}
	return details
}

// decodeJSON reads a JSON body into dst. An empty body leaves dst untouched
// when optional is true.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}, optional bool) bool {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		respondError(w, r, http.StatusRequestEntityTooLarge, "BODY_TOO_LARGE", "Request body too large", nil)
		return false
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		if optional {
			return true
		}
		respondError(w, r, http.StatusBadRequest, "INVALID_JSON", "Request body is required", nil)
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		respondError(w, r, http.StatusBadRequest, "INVALID_JSON", "Request body is not valid JSON", nil)
		return false
	}
	return true
}

// decodeAndValidate decodes a required body and runs struct validation.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if !decodeJSON(w, r, dst, false) {
		return false
	}
	if err := validateStruct(dst); err != nil {
		writeError(w, r, err)
		return false
	}
	return true
}

// validateStruct returns a nil error, not a typed nil, when s is valid.
func validateStruct(s interface{}) error {
	if verr := validation.ValidateStruct(s); verr != nil {
		return verr
	}
	return nil
}

// pathInt parses a positive integer URL parameter.
func pathInt(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	v, err := strconv.Atoi(chi.URLParam(r, name))
	if err != nil || v <= 0 {
		respondError(w, r, http.StatusBadRequest, publish.CodeValidation, name+" must be a positive integer", nil)
		return 0, false
	}
	return v, true
}

// queryInt parses an optional integer query parameter.
func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, &validation.RequestValidationError{Fields: []validation.FieldError{{
			Field:   name,
			Tag:     "numeric",
			Message: name + " must be a non-negative integer",
		}}}
	}
	return v, nil
}
