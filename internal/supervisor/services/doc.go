// Holdfast - Offline-First Edge Caching Gateway
// Copyright 2026 M. Waldrop (mwaldrop)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mwaldrop/holdfast

// Package services wraps the gateway's long-running components as
// suture.Service implementations: the HTTP server, the page-client hub,
// the periodic replay loop, and the cache janitor.
package services
