// Holdfast - Offline-First Edge Caching Gateway
// Copyright 2026 M. Waldrop (mwaldrop)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mwaldrop/holdfast

// Package api exposes the gateway's HTTP surface: the admin API under
// /api/v1 (lifecycle commands, sync triggers, queue intake, push
// delivery, stats), the Prometheus /metrics endpoint, the page-client
// WebSocket, and the catch-all route into the caching gateway.
//
// All admin endpoints use a standardized JSON envelope; see response.go.
package api
