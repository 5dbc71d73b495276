// Screenline - Digital Out-of-Home Screen Network Operations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/screenline

package media

import "errors"

// Error codes surfaced to operators.
const (
	CodeUploadNotReady = "UPLOAD_NOT_READY"
	CodeMediaFailed    = "MEDIA_FAILED"
	CodeMissingURL     = "MEDIA_URL_REQUIRED"
)

var (
	// ErrUploadNotReady means the media did not report a file (or did not
	// finish processing) before the deadline.
	ErrUploadNotReady = errors.New("media upload not ready")

	// ErrMediaFailed means the platform marked the media as failed.
	ErrMediaFailed = errors.New("media processing failed")

	// ErrMissingURL means a patch would leave URL-origin media without a URL.
	ErrMissingURL = errors.New("url media requires play_from_url or download_from_url")
)

// Code maps a media error to its operator code, or "".
func Code(err error) string {
	switch {
	case errors.Is(err, ErrUploadNotReady):
		return CodeUploadNotReady
	case errors.Is(err, ErrMediaFailed):
		return CodeMediaFailed
	case errors.Is(err, ErrMissingURL):
		return CodeMissingURL
	default:
		return ""
	}
}
