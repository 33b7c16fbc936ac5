// Holdfast - Offline-First Edge Caching Gateway
// Copyright 2026 M. Waldrop (mwaldrop)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mwaldrop/holdfast

package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Cache Store Metrics
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"generation"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"generation"},
	)

	CacheEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cache_entries",
			Help: "Current number of entries per cache generation",
		},
		[]string{"generation"},
	)

	CacheEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_evictions_total",
			Help: "Total number of entries evicted by the trim policy",
		},
		[]string{"generation"},
	)

	CacheStoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_store_errors_total",
			Help: "Total number of cache storage failures (treated as fallback triggers)",
		},
		[]string{"generation", "operation"},
	)

	// Strategy Engine Metrics
	StrategyRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strategy_requests_total",
			Help: "Total number of requests served per strategy and source",
		},
		[]string{"strategy", "source"},
	)

	StrategyFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strategy_fallbacks_total",
			Help: "Total number of synthesized fallback responses",
		},
		[]string{"strategy", "kind"},
	)

	RevalidationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "revalidations_total",
			Help: "Total number of detached background revalidations",
		},
		[]string{"outcome"},
	)

	// Upstream / Network Metrics
	UpstreamRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstream_request_duration_seconds",
			Help:    "Upstream fetch duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method"},
	)

	UpstreamErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstream_errors_total",
			Help: "Total number of failed upstream fetches",
		},
		[]string{"method"},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Circuit breaker request outcomes",
		},
		[]string{"name", "outcome"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	// Lifecycle Metrics
	LifecycleState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lifecycle_state",
			Help: "Lifecycle state (0=installing, 1=waiting, 2=active, 3=redundant)",
		},
	)

	PrecacheFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "precache_failures_total",
			Help: "Total number of failed install-time precache attempts",
		},
	)

	GenerationsDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cache_generations_deleted_total",
			Help: "Total number of stale cache generations deleted during activation",
		},
	)

	// Sync Queue Metrics
	QueuePending = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sync_queue_pending",
			Help: "Current number of pending sync queue items",
		},
		[]string{"type"},
	)

	QueueEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_queue_enqueued_total",
			Help: "Total number of items enqueued for replay",
		},
		[]string{"type"},
	)

	ReplayAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_replay_attempts_total",
			Help: "Total number of replay attempts per outcome",
		},
		[]string{"type", "outcome"},
	)

	ReplayDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sync_replay_duration_seconds",
			Help:    "Duration of a full replay pass in seconds",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		},
	)

	// Notification Metrics
	NotificationsReceived = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notifications_received_total",
			Help: "Total number of push payloads received",
		},
	)

	NotificationsDisplayed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notifications_displayed_total",
			Help: "Total number of notifications dispatched for display",
		},
	)

	NotificationsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_dropped_total",
			Help: "Total number of push payloads dropped",
		},
		[]string{"reason"},
	)

	// API Endpoint Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Current number of active API requests",
		},
	)

	// WebSocket Hub Metrics
	HubClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hub_clients",
			Help: "Current number of connected page clients",
		},
	)

	HubMessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hub_messages_sent_total",
			Help: "Total number of messages broadcast to page clients",
		},
	)
)

// RecordCacheHit increments the hit counter for a generation.
func RecordCacheHit(generation string) {
	CacheHits.WithLabelValues(generation).Inc()
}

// RecordCacheMiss increments the miss counter for a generation.
func RecordCacheMiss(generation string) {
	CacheMisses.WithLabelValues(generation).Inc()
}

// RecordEvictions adds n to the eviction counter for a generation.
func RecordEvictions(generation string, n int) {
	if n > 0 {
		CacheEvictions.WithLabelValues(generation).Add(float64(n))
	}
}

// RecordStoreError increments the storage failure counter.
func RecordStoreError(generation, operation string) {
	CacheStoreErrors.WithLabelValues(generation, operation).Inc()
}

// RecordStrategyRequest records one request served by a strategy with
// the given response source (cache, network, fallback).
func RecordStrategyRequest(strategy, source string) {
	StrategyRequests.WithLabelValues(strategy, source).Inc()
}

// RecordFallback records a synthesized fallback response.
func RecordFallback(strategy, kind string) {
	StrategyFallbacks.WithLabelValues(strategy, kind).Inc()
}

// RecordRevalidation records the outcome of a detached background refresh.
func RecordRevalidation(outcome string) {
	RevalidationsTotal.WithLabelValues(outcome).Inc()
}

// RecordUpstreamRequest records one upstream fetch.
func RecordUpstreamRequest(method string, duration time.Duration, err error) {
	UpstreamRequestDuration.WithLabelValues(method).Observe(duration.Seconds())
	if err != nil {
		UpstreamErrors.WithLabelValues(method).Inc()
	}
}

// RecordAPIRequest records one API request for Prometheus.
func RecordAPIRequest(method, endpoint string, statusCode int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest adjusts the in-flight request gauge.
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordReplay records one replay attempt outcome for a queue item type.
func RecordReplay(itemType, outcome string) {
	ReplayAttempts.WithLabelValues(itemType, outcome).Inc()
}

// SetLifecycleState publishes the current lifecycle phase.
func SetLifecycleState(state string) {
	var v float64
	switch state {
	case "waiting":
		v = 1
	case "active":
		v = 2
	case "redundant":
		v = 3
	}
	LifecycleState.Set(v)
}

// RecordPrecacheFailure increments the failed-install counter.
func RecordPrecacheFailure() {
	PrecacheFailures.Inc()
}

// RecordGenerationsDeleted adds n to the stale-generation counter.
func RecordGenerationsDeleted(n int) {
	if n > 0 {
		GenerationsDeleted.Add(float64(n))
	}
}
