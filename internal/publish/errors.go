// Screenline - Digital Out-of-Home Screen Network Operations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/screenline

package publish

import (
	"errors"

	"github.com/tomtom215/screenline/internal/database"
	"github.com/tomtom215/screenline/internal/models"
	"github.com/tomtom215/screenline/internal/signage"
	"github.com/tomtom215/screenline/internal/validation"
)

var (
	// ErrInvalidState is returned when an operation is not allowed in the
	// plan's current state.
	ErrInvalidState = errors.New("invalid plan state")

	// ErrAlreadyProcessing is returned when a publish or retry finds the plan
	// already PUBLISHING, or loses the race to enter it.
	ErrAlreadyProcessing = errors.New("plan already processing")

	// ErrPlaylistUnverified is returned for a target whose playlist, read
	// back after the edit, does not show the expected items.
	ErrPlaylistUnverified = errors.New("playlist does not reflect the edit")
)

// Plan error codes.
const (
	CodeInvalidState        = "INVALID_STATE"
	CodeAlreadyProcessing   = "ALREADY_PROCESSING"
	CodeConcurrencyConflict = "concurrency_conflict"
	CodeNotFound            = "NOT_FOUND"
	CodeNotConfigured       = "NOT_CONFIGURED"
	CodeValidation          = "VALIDATION_ERROR"
	CodeInternal            = "INTERNAL_ERROR"
	CodePublishPartial      = "PUBLISH_PARTIAL"
	CodeRollbackPartial     = "ROLLBACK_PARTIAL"
	CodeMediaUnresolved     = "MEDIA_UNRESOLVED"
	CodeVersionConflict     = "VERSION_CONFLICT"
	CodePlaylistUnverified  = "PLAYLIST_UNVERIFIED"
)

// Code maps an orchestrator error to a stable code, or INTERNAL_ERROR.
func Code(err error) string {
	var verr *validation.RequestValidationError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAlreadyProcessing):
		return CodeAlreadyProcessing
	case errors.Is(err, ErrInvalidState), errors.Is(err, models.ErrInvalidTransition):
		return CodeInvalidState
	case errors.Is(err, database.ErrNotFound):
		return CodeNotFound
	case errors.Is(err, database.ErrVersionConflict):
		return CodeVersionConflict
	case errors.Is(err, signage.ErrNotConfigured):
		return CodeNotConfigured
	case errors.As(err, &verr):
		return CodeValidation
	default:
		return CodeInternal
	}
}
