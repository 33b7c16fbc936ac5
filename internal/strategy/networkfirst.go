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

// NetworkFirst always tries the origin first so freshness-critical data
// (weather, traffic, exchange rates) is current whenever the network is
// up. Successful responses refresh the cache; on network failure the
// cached copy answers with an offline marker header, and an outright
// miss resolves to a structured 503.
type NetworkFirst struct {
	store   *cachestore.Store
	fetcher Fetcher
	policy  eviction.Policy
	limit   int

	// offlineMessage fills the error field of the synthesized 503.
	offlineMessage string
}

// NewNetworkFirst builds a network-first strategy over the given
// generation. A limit of 0 disables trimming.
func NewNetworkFirst(store *cachestore.Store, fetcher Fetcher, policy eviction.Policy, limit int, offlineMessage string) *NetworkFirst {
	if offlineMessage == "" {
		offlineMessage = "service unavailable and no cached data"
	}
	return &NetworkFirst{
		store:          store,
		fetcher:        fetcher,
		policy:         policy,
		limit:          limit,
		offlineMessage: offlineMessage,
	}
}

// Name implements Strategy.
func (s *NetworkFirst) Name() string { return "network_first" }

// Serve implements Strategy.
func (s *NetworkFirst) Serve(ctx context.Context, r *http.Request) (*Result, error) {
	key := cachestore.RequestKeyFor(r)

	resp, err := s.fetcher.FetchRequest(ctx, r)
	if err == nil {
		if resp.OK() {
			s.refresh(ctx, key, resp)
		}
		metrics.RecordStrategyRequest(s.Name(), string(SourceNetwork))
		return fromResponse(resp), nil
	}
	logging.Debug().Err(err).Str("key", key).Msg("network-first fetch failed, trying cache")

	entry, found, lookupErr := s.store.Match(key)
	if lookupErr != nil {
		logging.Err(lookupErr).Str("key", key).Str("generation", s.store.Name()).
			Msg("cache lookup failed after network failure")
	}
	if found {
		metrics.RecordCacheHit(s.store.Name())
		metrics.RecordStrategyRequest(s.Name(), string(SourceCache))
		res := fromEntry(entry.Clone(), SourceCache)
		res.Header.Set(OfflineHeader, OfflineHeaderValue)
		return res, nil
	}
	metrics.RecordCacheMiss(s.store.Name())
	metrics.RecordStrategyRequest(s.Name(), string(SourceFallback))
	metrics.RecordFallback(s.Name(), "offline")
	return offlineResult(http.StatusServiceUnavailable, s.offlineMessage), nil
}

// refresh stores the fresh response and trims the generation. Failures
// are logged and otherwise ignored: the caller still gets the network
// response.
func (s *NetworkFirst) refresh(ctx context.Context, key string, resp *upstream.Response) {
	if err := s.store.Put(ctx, resp.Entry(key)); err != nil {
		logging.Err(err).Str("key", key).Str("generation", s.store.Name()).
			Msg("failed to refresh cached response")
		return
	}
	if s.limit > 0 {
		if _, err := s.policy.Trim(ctx, s.store, s.limit); err != nil {
			logging.Err(err).Str("generation", s.store.Name()).Msg("eviction trim failed")
		}
	}
}
