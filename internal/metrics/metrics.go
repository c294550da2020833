// Gametime - Twitch EventSub ingestion and game time tracking
// Copyright 2026 FelpsBot contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/felpsbot/gametime

// Package metrics provides Prometheus instrumentation for the ingestion
// pipeline, the HTTP surface, and the Helix client.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Webhook ingestion metrics
	NotificationsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventsub_notifications_received_total",
			Help: "Total number of EventSub webhook deliveries by message type",
		},
		[]string{"message_type"}, // "notification", "webhook_callback_verification", "revocation"
	)

	SignatureFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventsub_signature_failures_total",
			Help: "Total number of rejected webhook deliveries by reason",
		},
		[]string{"reason"}, // "bad_signature", "stale_timestamp", "missing_header"
	)

	// Pipeline outcome metrics
	PipelineOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_outcomes_total",
			Help: "Total number of adjudicated canonical events by outcome",
		},
		[]string{"event_type", "outcome"}, // outcome: "applied", "duplicate", "stale", "skipped", "failed"
	)

	PipelineDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pipeline_duration_seconds",
			Help:    "End-to-end processing duration per notification",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"outcome"},
	)

	ReservationReleases = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pipeline_reservation_releases_total",
			Help: "Reservations released after a failed state write (event becomes retryable)",
		},
	)

	// Fan-out metrics
	PublishResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fanout_publish_total",
			Help: "Total number of fan-out publish attempts by result",
		},
		[]string{"result"}, // "ok", "error", "circuit_open"
	)

	CacheInvalidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fanout_cache_invalidations_total",
			Help: "Total number of cache invalidation attempts by result",
		},
		[]string{"result"}, // "ok", "error"
	)

	// Helix client metrics
	HelixRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "helix_requests_total",
			Help: "Total number of Twitch Helix API requests",
		},
		[]string{"operation", "status_code"},
	)

	TokenRefreshes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "helix_token_refreshes_total",
			Help: "Total number of app access token refreshes",
		},
	)

	// HTTP surface metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Current number of in-flight HTTP requests",
		},
	)

	// Database metrics
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Duration of PostgreSQL operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_query_errors_total",
			Help: "Total number of PostgreSQL operation errors",
		},
		[]string{"operation"},
	)
)

// RecordNotification records an inbound webhook delivery.
func RecordNotification(messageType string) {
	NotificationsReceived.WithLabelValues(messageType).Inc()
}

// RecordSignatureFailure records a rejected delivery.
func RecordSignatureFailure(reason string) {
	SignatureFailures.WithLabelValues(reason).Inc()
}

// RecordOutcome records the adjudicated outcome for a canonical event.
func RecordOutcome(eventType, outcome string, duration time.Duration) {
	PipelineOutcomes.WithLabelValues(eventType, outcome).Inc()
	PipelineDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordReservationRelease records a reservation rollback after persistence failure.
func RecordReservationRelease() {
	ReservationReleases.Inc()
}

// RecordPublish records a fan-out publish attempt.
func RecordPublish(result string) {
	PublishResults.WithLabelValues(result).Inc()
}

// RecordCacheInvalidation records a cache invalidation attempt.
func RecordCacheInvalidation(result string) {
	CacheInvalidations.WithLabelValues(result).Inc()
}

// RecordHelixRequest records a Twitch Helix API call.
func RecordHelixRequest(operation, statusCode string) {
	HelixRequests.WithLabelValues(operation, statusCode).Inc()
}

// RecordTokenRefresh records an app access token refresh.
func RecordTokenRefresh() {
	TokenRefreshes.Inc()
}

// RecordAPIRequest records an HTTP request with its response status and duration.
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest increments or decrements the in-flight request gauge.
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordDBQuery records a PostgreSQL operation.
func RecordDBQuery(operation string, duration time.Duration, err error) {
	DBQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		DBQueryErrors.WithLabelValues(operation).Inc()
	}
}
