// Screenline - Digital Out-of-Home Screen Network Operations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/screenline

/*
Package middleware provides HTTP middleware shared by the REST surface.

  - RequestID: honors or generates X-Request-ID and seeds the logging
    context with the request and correlation ids
  - PrometheusMetrics: request counts, latency and in-flight gauge labelled
    by the chi route pattern, so path parameters never become label values

Both have the chi signature func(http.Handler) http.Handler:

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.PrometheusMetrics)
*/
package middleware
