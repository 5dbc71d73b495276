// Screenline - Digital Out-of-Home Screen Network Operations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/screenline

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/screenline/internal/middleware"
)

// Router wires handlers and middleware into a chi mux.
type Router struct {
	handler       *Handler
	chiMiddleware *ChiMiddleware
}

// NewRouter creates a Router. A nil mw uses DefaultChiMiddlewareConfig.
func NewRouter(handler *Handler, mw *ChiMiddlewareConfig) *Router {
	return &Router{handler: handler, chiMiddleware: NewChiMiddleware(mw)}
}

// Setup builds the HTTP handler.
func (router *Router) Setup() http.Handler {
	h := router.handler
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(router.chiMiddleware.CORS())

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, r, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, r, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1/health", func(r chi.Router) {
		r.Use(APISecurityHeaders())
		r.Get("/live", h.HealthLive)
		r.Get("/ready", h.HealthReady)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimit())
		r.Use(APISecurityHeaders())
		r.Use(middleware.PrometheusMetrics)
		r.Use(chimiddleware.Compress(5, "application/json"))

		r.Get("/screens/{id}/content", h.ScreenContent)

		r.Route("/media/{id}", func(r chi.Router) {
			r.Post("/ensure-ready", h.MediaEnsureReady)
			r.Patch("/arguments", h.MediaPatchArguments)
		})

		r.Route("/plans", func(r chi.Router) {
			r.Post("/", h.CreatePlan)
			r.Get("/", h.ListPlans)
			r.Post("/bulk/{action}", h.BulkPlanAction)
			r.Get("/{id}", h.GetPlan)
			r.Post("/{id}/{action}", h.PlanAction)
		})

		r.Route("/locations/{id}", func(r chi.Router) {
			r.Get("/screens", h.ListLocationScreens)
			r.Put("/screens/{screenID}", h.PutLocationScreen)
			r.Delete("/screens/{screenID}", h.DeleteLocationScreen)
			r.Post("/reconcile", h.ReconcileLocation)
			r.Get("/screen-status", h.ScreenStatus)
		})

		r.Route("/alerts", func(r chi.Router) {
			r.Get("/", h.ListAlerts)
			r.Post("/{id}/acknowledge", h.AcknowledgeAlert)
		})

		r.Route("/integration", func(r chi.Router) {
			r.Get("/credentials", h.CredentialStatus)
			r.Put("/credentials", h.PutCredentials)
			r.Delete("/cache", h.ClearCache)
		})
	})

	return r
}
