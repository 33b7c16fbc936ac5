// Holdfast - Offline-First Edge Caching Gateway
// Copyright 2026 M. Waldrop (mwaldrop)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mwaldrop/holdfast

// Package syncqueue persists requests that failed while offline and
// replays them when connectivity returns.
//
// The queue is a BadgerDB keyspace separate from the response cache.
// Key layout:
//
//	q:e:<id-16hex>         -> item JSON
//	q:t:<type>:<id-16hex>  -> secondary index by item type
//
// Ids come from a BadgerDB sequence and are encoded as fixed-width hex,
// so lexicographic key order is id order, which is enqueue (and
// therefore timestamp) order.
//
// Replay semantics are at-least-once with per-item isolation: a
// successful re-issue removes the item, a failed one leaves it for the
// next pass, and one item's failure never aborts the batch. The queue
// does not schedule or back off; cadence belongs to the replay service.
package syncqueue
