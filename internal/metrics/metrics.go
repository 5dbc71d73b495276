// Screenline - Digital Out-of-Home Screen Network Operations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/screenline

// Package metrics holds the Prometheus collectors for Screenline:
// signage gateway traffic, TTL cache efficiency, publish attempts,
// reconcile passes and the REST API.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Signage gateway
	GatewayRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "yodeck_requests_total",
			Help: "Total number of signage API requests by endpoint and outcome",
		},
		[]string{"method", "endpoint", "outcome"}, // outcome: ok, not_found, validation, rate_limited, transport, http, decode
	)

	GatewayRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "yodeck_request_duration_seconds",
			Help:    "Duration of signage API requests including retries",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15, 30},
		},
		[]string{"method", "endpoint"},
	)

	GatewayRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "yodeck_retries_total",
			Help: "Total number of signage API retries by reason",
		},
		[]string{"reason"}, // rate_limited, transport
	)

	GatewayInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "yodeck_requests_in_flight",
			Help: "Signage API requests currently holding a concurrency permit",
		},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "yodeck_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "yodeck_circuit_breaker_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	// TTL caches
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total number of TTL cache hits",
		},
		[]string{"cache"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total number of TTL cache misses",
		},
		[]string{"cache"},
	)

	CacheInvalidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_invalidations_total",
			Help: "Total number of explicit cache invalidations after remote writes",
		},
		[]string{"cache"},
	)

	// Media lifecycle
	MediaResolutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_resolutions_total",
			Help: "Total number of media readiness resolutions by method",
		},
		[]string{"method"}, // direct, name_search, poll, unresolved
	)

	MediaStaleCleaned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_stale_cleaned_total",
			Help: "Total number of stale media shells deleted remotely",
		},
	)

	// Content resolution
	ContentResolutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "content_resolutions_total",
			Help: "Total number of screen content resolutions by status",
		},
		[]string{"status"},
	)

	// Publish orchestration
	PlanTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "placement_plan_transitions_total",
			Help: "Total number of placement plan state transitions",
		},
		[]string{"from", "to"},
	)

	PublishTargets = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "publish_targets_total",
			Help: "Total number of per-target publish operations by operation and status",
		},
		[]string{"operation", "status"}, // operation: publish, rollback
	)

	PublishDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "publish_duration_seconds",
			Help:    "Duration of publish and rollback attempts",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"operation"},
	)

	PublishConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "publish_conflicts_total",
			Help: "Total number of publish attempts rejected because the plan was already processing",
		},
	)

	// Truth reconciler
	ReconcileRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconcile_runs_total",
			Help: "Total number of location reconcile passes by result",
		},
		[]string{"result"}, // ok, degraded, error
	)

	ReconcileScreens = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconcile_screens_total",
			Help: "Total number of screens checked by compliance result",
		},
		[]string{"result"}, // compliant, drifted, corrected, error
	)

	// Event bus
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plan_events_total",
			Help: "Total number of plan events by type and result",
		},
		[]string{"type", "result"}, // result: published, error, handled, rejected
	)

	EventWALEntries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plan_event_wal_entries_total",
			Help: "Total number of plan events handled by the WAL by result",
		},
		[]string{"result"}, // deferred, replayed, expired, exhausted
	)

	EventWALPending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "plan_event_wal_pending",
			Help: "Plan events waiting in the WAL after the last retry pass",
		},
	)

	// REST API
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "Duration of API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Current number of active API requests",
		},
	)
)

// RecordGatewayRequest records one logical signage API call.
func RecordGatewayRequest(method, endpoint, outcome string, duration time.Duration) {
	GatewayRequests.WithLabelValues(method, endpoint, outcome).Inc()
	GatewayRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordGatewayRetry records a retry caused by reason.
func RecordGatewayRetry(reason string) {
	GatewayRetries.WithLabelValues(reason).Inc()
}

// TrackGatewayPermit tracks permits held against the concurrency bound.
func TrackGatewayPermit(acquired bool) {
	if acquired {
		GatewayInFlight.Inc()
	} else {
		GatewayInFlight.Dec()
	}
}

// RecordCacheLookup records a hit or miss on the named cache.
func RecordCacheLookup(cache string, hit bool) {
	if hit {
		CacheHits.WithLabelValues(cache).Inc()
		return
	}
	CacheMisses.WithLabelValues(cache).Inc()
}

// RecordCacheInvalidation records an invalidation on the named cache.
func RecordCacheInvalidation(cache string) {
	CacheInvalidations.WithLabelValues(cache).Inc()
}

// RecordMediaResolution records how a media readiness check concluded.
func RecordMediaResolution(method string, staleCleaned bool) {
	MediaResolutions.WithLabelValues(method).Inc()
	if staleCleaned {
		MediaStaleCleaned.Inc()
	}
}

// RecordContentResolution records the status of a content resolution.
func RecordContentResolution(status string) {
	ContentResolutions.WithLabelValues(status).Inc()
}

// RecordPlanTransition records a placement plan state change.
func RecordPlanTransition(from, to string) {
	PlanTransitions.WithLabelValues(from, to).Inc()
}

// RecordPublishAttempt records the per-target outcome counts of one attempt.
func RecordPublishAttempt(operation string, succeeded, failed int, duration time.Duration) {
	PublishTargets.WithLabelValues(operation, "success").Add(float64(succeeded))
	PublishTargets.WithLabelValues(operation, "failed").Add(float64(failed))
	PublishDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordReconcile records one location pass and its per-screen results.
func RecordReconcile(result string, screens map[string]int) {
	ReconcileRuns.WithLabelValues(result).Inc()
	for k, n := range screens {
		ReconcileScreens.WithLabelValues(k).Add(float64(n))
	}
}

// RecordEvent records a plan event publish or handle outcome.
func RecordEvent(eventType, result string) {
	EventsPublished.WithLabelValues(eventType, result).Inc()
}

// RecordWALEntry records a plan event the WAL deferred, replayed or dropped.
func RecordWALEntry(result string) {
	EventWALEntries.WithLabelValues(result).Inc()
}

// SetWALPending sets the number of events still pending in the WAL.
func SetWALPending(n int) {
	EventWALPending.Set(float64(n))
}

// RecordAPIRequest records an API request metric.
func RecordAPIRequest(method, endpoint string, statusCode int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest tracks active API requests.
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}
