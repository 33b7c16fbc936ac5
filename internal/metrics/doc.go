// Holdfast - Offline-First Edge Caching Gateway
// Copyright 2026 M. Waldrop (mwaldrop)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mwaldrop/holdfast

/*
Package metrics provides Prometheus metrics collection for observability.

Metrics are registered via promauto at package load and exposed at the
/metrics endpoint in Prometheus text format.

The package instruments:
  - Cache generation hits, misses, entry counts, and evictions
  - Strategy engine request counts by response source and fallback kind
  - Upstream fetch latency, errors, and circuit breaker state
  - Lifecycle state and install-time precache failures
  - Sync queue depth and replay outcomes
  - Notification receipt and display counts
  - HTTP API latency and throughput
  - WebSocket hub client counts

Counters use the _total suffix; gauges report current values. Label
cardinality is bounded by configuration (generation purposes, item types,
strategy names), never by request URLs.
*/
package metrics
