// Holdfast - Offline-First Edge Caching Gateway
// Copyright 2026 M. Waldrop (mwaldrop)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mwaldrop/holdfast

package strategy

import (
	"context"
	"net/http"

	"github.com/mwaldrop/holdfast/internal/cachestore"
	"github.com/mwaldrop/holdfast/internal/eviction"
	"github.com/mwaldrop/holdfast/internal/logging"
	"github.com/mwaldrop/holdfast/internal/metrics"
	"github.com/mwaldrop/holdfast/internal/upstream"
)

// CacheFirst serves from cache when possible and only reaches the
// network on a miss. Successful fetches are stored and the generation
// trimmed back to its entry limit. Used for images and other immutable
// assets where staleness is acceptable and latency is not.
type CacheFirst struct {
	store   *cachestore.Store
	fetcher Fetcher
	policy  eviction.Policy
	limit   int

	// placeholder, when non-nil, supplies the fallback entry returned
	// when both cache and network fail (e.g. a generic image).
	placeholder func(ctx context.Context) (*cachestore.Entry, bool)
}

// NewCacheFirst builds a cache-first strategy over the given
// generation. A limit of 0 disables trimming. The placeholder lookup
// may be nil, in which case failures synthesize an empty 404.
func NewCacheFirst(store *cachestore.Store, fetcher Fetcher, policy eviction.Policy, limit int, placeholder func(ctx context.Context) (*cachestore.Entry, bool)) *CacheFirst {
	return &CacheFirst{
		store:       store,
		fetcher:     fetcher,
		policy:      policy,
		limit:       limit,
		placeholder: placeholder,
	}
}

// Name implements Strategy.
func (s *CacheFirst) Name() string { return "cache_first" }

// Serve implements Strategy.
func (s *CacheFirst) Serve(ctx context.Context, r *http.Request) (*Result, error) {
	key := cachestore.RequestKeyFor(r)

	entry, found, err := s.store.Match(key)
	if err != nil {
		// Storage trouble degrades to a network fetch, never an error.
		logging.Err(err).Str("key", key).Str("generation", s.store.Name()).
			Msg("cache lookup failed, falling through to network")
	}
	if found {
		metrics.RecordCacheHit(s.store.Name())
		metrics.RecordStrategyRequest(s.Name(), string(SourceCache))
		return fromEntry(entry, SourceCache), nil
	}
	metrics.RecordCacheMiss(s.store.Name())

	resp, err := s.fetcher.FetchRequest(ctx, r)
	if err != nil {
		logging.Debug().Err(err).Str("key", key).Msg("cache-first network fetch failed")
		return s.fallback(ctx, key), nil
	}
	if resp.OK() {
		s.storeAndTrim(ctx, key, resp)
	}
	metrics.RecordStrategyRequest(s.Name(), string(SourceNetwork))
	return fromResponse(resp), nil
}

func (s *CacheFirst) storeAndTrim(ctx context.Context, key string, resp *upstream.Response) {
	if err := s.store.Put(ctx, resp.Entry(key)); err != nil {
		logging.Err(err).Str("key", key).Str("generation", s.store.Name()).
			Msg("failed to store fetched response")
		return
	}
	if s.limit > 0 {
		if _, err := s.policy.Trim(ctx, s.store, s.limit); err != nil {
			logging.Err(err).Str("generation", s.store.Name()).Msg("eviction trim failed")
		}
	}
}

func (s *CacheFirst) fallback(ctx context.Context, key string) *Result {
	metrics.RecordStrategyRequest(s.Name(), string(SourceFallback))
	metrics.RecordFallback(s.Name(), "placeholder")
	if s.placeholder != nil {
		if entry, ok := s.placeholder(ctx); ok {
			return fromEntry(entry, SourceFallback)
		}
	}
	logging.Debug().Str("key", key).Msg("no placeholder available, synthesizing 404")
	return notFoundResult()
}
