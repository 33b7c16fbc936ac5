// Holdfast - Offline-First Edge Caching Gateway
// Copyright 2026 M. Waldrop (mwaldrop)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mwaldrop/holdfast

// Package eviction bounds cache generations to a configured entry count.
//
// The shipped policy is deliberately FIFO, not LRU: entries are removed
// oldest-first by insertion order and reads never promote an entry. This
// trades hit-rate optimality for simplicity; a response cache does not
// expose access recency cheaply, and the bounded sizes (<=100 entries)
// keep the O(n) re-scan on every write inexpensive. The Policy interface
// isolates the choice so an LRU or size-based policy can be substituted
// without touching strategy code.
package eviction

import (
	"context"
	"fmt"

	"github.com/mwaldrop/holdfast/internal/cachestore"
	"github.com/mwaldrop/holdfast/internal/logging"
	"github.com/mwaldrop/holdfast/internal/metrics"
)

// Policy bounds a cache generation to a maximum entry count.
type Policy interface {
	// Trim enforces the bound on a store, returning how many entries
	// were evicted.
	Trim(ctx context.Context, store *cachestore.Store, maxEntries int) (int, error)
}

// FIFO evicts oldest-inserted entries first.
//
// The list-keys-then-delete sequence is not atomic with respect to
// concurrent writers: a write landing between the scan and the deletes
// can leave the store one entry over or under the bound until the next
// trim. This is an accepted approximation; the bound is restored by the
// trim that follows every store.
type FIFO struct{}

// NewFIFO returns the FIFO trim policy.
func NewFIFO() *FIFO { return &FIFO{} }

// Trim lists keys in insertion order and deletes the oldest
// count-maxEntries entries when the store exceeds the bound.
func (f *FIFO) Trim(ctx context.Context, store *cachestore.Store, maxEntries int) (int, error) {
	if maxEntries < 1 {
		return 0, fmt.Errorf("maxEntries must be at least 1, got %d", maxEntries)
	}

	keys, err := store.Keys()
	if err != nil {
		return 0, fmt.Errorf("list keys: %w", err)
	}
	if len(keys) <= maxEntries {
		metrics.CacheEntries.WithLabelValues(store.Name()).Set(float64(len(keys)))
		return 0, nil
	}

	excess := len(keys) - maxEntries
	evicted := 0
	for _, key := range keys[:excess] {
		if err := ctx.Err(); err != nil {
			return evicted, err
		}
		found, err := store.Delete(key)
		if err != nil {
			return evicted, fmt.Errorf("delete %q: %w", key, err)
		}
		if found {
			evicted++
		}
	}

	metrics.RecordEvictions(store.Name(), evicted)
	metrics.CacheEntries.WithLabelValues(store.Name()).Set(float64(len(keys) - evicted))
	logging.Debug().
		Str("generation", store.Name()).
		Int("evicted", evicted).
		Int("limit", maxEntries).
		Msg("cache generation trimmed")
	return evicted, nil
}
