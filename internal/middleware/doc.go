// Holdfast - Offline-First Edge Caching Gateway
// Copyright 2026 M. Waldrop (mwaldrop)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mwaldrop/holdfast

/*
Package middleware provides the HTTP middleware stack shared by the API
surface and the gateway catch-all.

Components:

  - RequestID: UUID request tracking via the X-Request-ID header
  - Prometheus: request count, duration, and in-flight instrumentation
  - Compression: gzip for clients that accept it
  - PerformanceMonitor: sliding-window latency percentiles for the
    stats endpoint

All middleware uses the func(http.Handler) http.Handler shape so it
composes with chi's Use.
*/
package middleware
