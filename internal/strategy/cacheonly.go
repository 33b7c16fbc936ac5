// Holdfast - Offline-First Edge Caching Gateway
// Copyright 2026 M. Waldrop (mwaldrop)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mwaldrop/holdfast

package strategy

import (
	"context"
	"net/http"

	"github.com/mwaldrop/holdfast/internal/cachestore"
	"github.com/mwaldrop/holdfast/internal/logging"
	"github.com/mwaldrop/holdfast/internal/metrics"
)

// CacheOnly answers exclusively from cache once an entry exists: a hit
// never touches the network, which keeps fixed reference data (phrase
// lists, static lookup tables) byte-stable and instant. Only a miss
// triggers a single opportunistic fetch to populate the cache.
type CacheOnly struct {
	store   *cachestore.Store
	fetcher Fetcher
}

// NewCacheOnly builds a cache-only strategy over the given generation.
func NewCacheOnly(store *cachestore.Store, fetcher Fetcher) *CacheOnly {
	return &CacheOnly{store: store, fetcher: fetcher}
}

// Name implements Strategy.
func (s *CacheOnly) Name() string { return "cache_only" }

// Serve implements Strategy.
func (s *CacheOnly) Serve(ctx context.Context, r *http.Request) (*Result, error) {
	key := cachestore.RequestKeyFor(r)

	entry, found, err := s.store.Match(key)
	if err != nil {
		logging.Err(err).Str("key", key).Str("generation", s.store.Name()).
			Msg("cache lookup failed")
	}
	if found {
		metrics.RecordCacheHit(s.store.Name())
		metrics.RecordStrategyRequest(s.Name(), string(SourceCache))
		return fromEntry(entry, SourceCache), nil
	}
	metrics.RecordCacheMiss(s.store.Name())

	resp, fetchErr := s.fetcher.FetchRequest(ctx, r)
	if fetchErr != nil {
		logging.Debug().Err(fetchErr).Str("key", key).Msg("cache-only population fetch failed")
		metrics.RecordStrategyRequest(s.Name(), string(SourceFallback))
		metrics.RecordFallback(s.Name(), "offline")
		return offlineResult(http.StatusNotFound, "not found in cache"), nil
	}
	if resp.OK() {
		if err := s.store.Put(ctx, resp.Entry(key)); err != nil {
			logging.Err(err).Str("key", key).Str("generation", s.store.Name()).
				Msg("failed to store population fetch")
		}
	}
	metrics.RecordStrategyRequest(s.Name(), string(SourceNetwork))
	return fromResponse(resp), nil
}
