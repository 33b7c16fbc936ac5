// Holdfast - Offline-First Edge Caching Gateway
// Copyright 2026 M. Waldrop (mwaldrop)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mwaldrop/holdfast

package strategy

import (
	"context"
	"net/http"
	"time"

	"github.com/mwaldrop/holdfast/internal/cachestore"
	"github.com/mwaldrop/holdfast/internal/eviction"
	"github.com/mwaldrop/holdfast/internal/logging"
	"github.com/mwaldrop/holdfast/internal/metrics"
)

// defaultRefreshTimeout bounds detached background revalidations so a
// hung origin cannot pin goroutines forever.
const defaultRefreshTimeout = 30 * time.Second

// StaleWhileRevalidate serves a cached copy immediately and refreshes
// it in the background, trading bounded staleness for consistent
// latency. Misses degrade to network-first behavior. Used for
// slowly-changing reference data (news, events, tourism).
type StaleWhileRevalidate struct {
	store   *cachestore.Store
	fetcher Fetcher
	policy  eviction.Policy
	limit   int
	miss    *NetworkFirst

	refreshTimeout time.Duration

	// onRevalidate, when non-nil, observes background refresh
	// completion. Test hook.
	onRevalidate func(key string, err error)
}

// NewStaleWhileRevalidate builds an SWR strategy over the given
// generation. A limit of 0 disables trimming.
func NewStaleWhileRevalidate(store *cachestore.Store, fetcher Fetcher, policy eviction.Policy, limit int, offlineMessage string) *StaleWhileRevalidate {
	return &StaleWhileRevalidate{
		store:          store,
		fetcher:        fetcher,
		policy:         policy,
		limit:          limit,
		miss:           NewNetworkFirst(store, fetcher, policy, limit, offlineMessage),
		refreshTimeout: defaultRefreshTimeout,
	}
}

// Name implements Strategy.
func (s *StaleWhileRevalidate) Name() string { return "stale_while_revalidate" }

// Serve implements Strategy.
func (s *StaleWhileRevalidate) Serve(ctx context.Context, r *http.Request) (*Result, error) {
	key := cachestore.RequestKeyFor(r)

	entry, found, err := s.store.Match(key)
	if err != nil {
		logging.Err(err).Str("key", key).Str("generation", s.store.Name()).
			Msg("cache lookup failed, degrading to network")
	}
	if !found {
		metrics.RecordCacheMiss(s.store.Name())
		return s.miss.Serve(ctx, r)
	}
	metrics.RecordCacheHit(s.store.Name())
	metrics.RecordStrategyRequest(s.Name(), string(SourceCache))

	// The refresh is detached from the request: it must not delay the
	// response and must survive the request context being canceled.
	// Resolve here while the request is still in hand; the goroutine
	// only ever sees an absolute origin URL.
	go s.revalidate(key, r.Method, s.fetcher.Resolve(r.URL.RequestURI()), r.Header.Clone())

	return fromEntry(entry, SourceCache), nil
}

// revalidate fetches a fresh copy from the resolved origin URL and
// replaces the cached entry. All failures are swallowed after logging:
// the stale copy has already been served.
func (s *StaleWhileRevalidate) revalidate(key, method, target string, header http.Header) {
	ctx, cancel := context.WithTimeout(context.Background(), s.refreshTimeout)
	defer cancel()

	err := s.doRevalidate(ctx, key, method, target, header)
	if err != nil {
		metrics.RecordRevalidation("error")
		logging.Debug().Err(err).Str("key", key).Msg("background revalidation failed")
	} else {
		metrics.RecordRevalidation("ok")
	}
	if s.onRevalidate != nil {
		s.onRevalidate(key, err)
	}
}

func (s *StaleWhileRevalidate) doRevalidate(ctx context.Context, key, method, target string, header http.Header) error {
	resp, err := s.fetcher.Fetch(ctx, method, target, header, nil)
	if err != nil {
		return err
	}
	if !resp.OK() {
		// A non-2xx origin answer is not worth overwriting a good
		// cached copy with.
		return nil
	}
	if err := s.store.Put(ctx, resp.Entry(key)); err != nil {
		return err
	}
	if s.limit > 0 {
		if _, err := s.policy.Trim(ctx, s.store, s.limit); err != nil {
			return err
		}
	}
	return nil
}
