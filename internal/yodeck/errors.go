// Screenline - Digital Out-of-Home Screen Network Operations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/screenline

package yodeck

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
)

// Kind classifies a failed signage API call.
type Kind string

const (
	// KindTransport covers network failures, timeouts and an open breaker.
	KindTransport Kind = "transport"
	// KindRateLimited is HTTP 429 after the retry budget was spent.
	KindRateLimited Kind = "rate_limited"
	// KindNotFound is HTTP 404. Never retried.
	KindNotFound Kind = "not_found"
	// KindValidation is HTTP 400/422. Never retried; Body holds the platform payload.
	KindValidation Kind = "validation"
	// KindHTTP is any other non-2xx status.
	KindHTTP Kind = "http"
	// KindDecode means a 2xx response body could not be decoded.
	KindDecode Kind = "decode"
)

// Error is returned for every expected failure of a signage API call.
type Error struct {
	Kind     Kind
	Method   string
	Endpoint string
	Status   int
	Timeout  bool
	Body     []byte
	Err      error
}

func (e *Error) Error() string {
	switch {
	case e.Timeout:
		return fmt.Sprintf("yodeck %s %s: timeout", e.Method, e.Endpoint)
	case e.Status != 0:
		if len(e.Body) > 0 {
			return fmt.Sprintf("yodeck %s %s: %s: %s", e.Method, e.Endpoint, e.Code(), truncate(string(e.Body), 256))
		}
		return fmt.Sprintf("yodeck %s %s: %s", e.Method, e.Endpoint, e.Code())
	case e.Err != nil:
		return fmt.Sprintf("yodeck %s %s: %s: %v", e.Method, e.Endpoint, e.Kind, e.Err)
	default:
		return fmt.Sprintf("yodeck %s %s: %s", e.Method, e.Endpoint, e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code is a stable machine-readable identifier: "timeout", "http_<status>",
// "circuit_open", "transport" or "decode".
func (e *Error) Code() string {
	switch {
	case e.Timeout:
		return "timeout"
	case e.Status != 0:
		return "http_" + strconv.Itoa(e.Status)
	case errors.Is(e.Err, errCircuitOpen):
		return "circuit_open"
	default:
		return string(e.Kind)
	}
}

// Retryable reports whether an operator retry could plausibly succeed.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindTransport, KindRateLimited:
		return true
	case KindHTTP:
		return e.Status >= http.StatusInternalServerError
	default:
		return false
	}
}

// AsError extracts a *Error from err.
func AsError(err error) (*Error, bool) {
	var ye *Error
	if errors.As(err, &ye) {
		return ye, true
	}
	return nil, false
}

// KindOf returns the Kind of err, or "" when err is not a gateway error.
func KindOf(err error) Kind {
	if ye, ok := AsError(err); ok {
		return ye.Kind
	}
	return ""
}

// IsNotFound reports whether err is a 404 from the signage API.
func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }

// IsValidation reports whether err is a 400/422 from the signage API.
func IsValidation(err error) bool { return KindOf(err) == KindValidation }

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	if ye, ok := AsError(err); ok {
		return ye.Status
	}
	return 0
}

// CodeOf returns the Code of a gateway error, or "" for other errors.
func CodeOf(err error) string {
	if ye, ok := AsError(err); ok {
		return ye.Code()
	}
	return ""
}

func classifyStatus(status int) Kind {
	switch {
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return KindValidation
	default:
		return KindHTTP
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
