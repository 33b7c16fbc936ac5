// Holdfast - Offline-First Edge Caching Gateway
// Copyright 2026 M. Waldrop (mwaldrop)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mwaldrop/holdfast

package syncqueue

import (
	"net/http"
	"time"

	"github.com/goccy/go-json"
)

// Item types stored in the queue.
const (
	TypeOfflineData = "offline-data"
	TypeNewsletter  = "newsletter-signup"
	TypePreferences = "user-preferences"
)

// Sync tags accepted by Replayer.Replay. Each tag selects one replay
// flow; cache-cleanup runs the janitor instead of touching the queue.
const (
	TagOfflineData  = "sync-offline-data"
	TagNewsletter   = "sync-newsletter-signup"
	TagPreferences  = "sync-user-preferences"
	TagCacheCleanup = "cache-cleanup"
)

// Item is one queued request awaiting replay.
type Item struct {
	// ID is assigned by Enqueue; monotonically increasing.
	ID uint64 `json:"id"`

	// Type selects the replay flow (TypeOfflineData, TypeNewsletter,
	// TypePreferences).
	Type string `json:"type"`

	// URL, Method, Headers and Body describe the original request for
	// the generic replay flow.
	URL     string      `json:"url,omitempty"`
	Method  string      `json:"method,omitempty"`
	Headers http.Header `json:"headers,omitempty"`
	Body    []byte      `json:"body,omitempty"`

	// Data is the structured payload posted by the endpoint-bound
	// flows (newsletter signup, user preferences).
	Data json.RawMessage `json:"data,omitempty"`

	// Timestamp records when the item was enqueued.
	Timestamp time.Time `json:"timestamp"`
}
