// Screenline - Digital Out-of-Home Screen Network Operations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/screenline

/*
Package api exposes the Screenline core over HTTP.

Routes live under /api/v1 and are served by chi:

	GET    /health/live                    liveness
	GET    /health/ready                   database and signage readiness
	GET    /screens/{id}/content           resolve what a screen shows
	POST   /media/{id}/ensure-ready        resolve a media reference to a playable id
	PATCH  /media/{id}/arguments           origin-safe argument patch
	POST   /plans                          create a placement plan
	GET    /plans                          list plans
	GET    /plans/{id}                     fetch one plan
	POST   /plans/{id}/{action}            simulate|approve|publish|retry|rollback|cancel
	POST   /plans/bulk/{action}            simulate|approve|publish for many plans
	GET    /locations/{id}/screens         location directory
	PUT    /locations/{id}/screens/{sid}   register or update a screen at a location
	DELETE /locations/{id}/screens/{sid}   remove a screen from the directory
	POST   /locations/{id}/reconcile       run a reconcile pass
	GET    /locations/{id}/screen-status   last reconciled state per screen
	GET    /alerts                         active alerts
	POST   /alerts/{id}/acknowledge        acknowledge an alert
	GET    /integration/credentials        masked credential status
	PUT    /integration/credentials        store signage credentials
	DELETE /integration/cache              drop every signage cache

GET /metrics serves the Prometheus registry outside the versioned prefix.

Every JSON response uses the models.APIResponse envelope. Failures carry a
stable error code; see writeError for the mapping from core errors to HTTP
status codes.
*/
package api
