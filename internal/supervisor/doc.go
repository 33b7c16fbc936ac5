// Holdfast - Offline-First Edge Caching Gateway
// Copyright 2026 M. Waldrop (mwaldrop)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mwaldrop/holdfast

// Package supervisor builds the Suture supervision tree for the
// gateway. Three child supervisors isolate failures: the data layer
// (replay and cache-cleanup loops), the messaging layer (page-client
// hub), and the API layer (HTTP server). A crash in one layer restarts
// only that layer's services.
package supervisor
