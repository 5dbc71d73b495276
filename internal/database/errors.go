// Screenline - Digital Out-of-Home Screen Network Operations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/screenline

package database

import (
	"errors"
	"io"
	"strings"

	"github.com/tomtom215/screenline/internal/logging"
)

var (
	// ErrNotFound is returned when the requested row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrVersionConflict is returned when a plan was saved by someone else
	// since it was read.
	ErrVersionConflict = errors.New("version conflict")
)

// isTxConflict reports whether err is DuckDB's write-write conflict between
// two open transactions touching the same row.
func isTxConflict(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "conflict")
}

// closeWithLog closes a resource and logs any error.
func closeWithLog(closer io.Closer, resourceType string) {
	if closer == nil {
		return
	}
	if err := closer.Close(); err != nil {
		logging.Warn().Str("type", resourceType).Err(err).Msg("Failed to close resource")
	}
}

// closeQuietly closes a resource in error paths where the Close error is not actionable.
func closeQuietly(closer io.Closer) {
	if closer != nil {
		_ = closer.Close()
	}
}

// rollbackQuietly rolls back a transaction that failed midway.
func rollbackQuietly(tx interface{ Rollback() error }) {
	_ = tx.Rollback()
}
