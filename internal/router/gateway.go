// Holdfast - Offline-First Edge Caching Gateway
// Copyright 2026 M. Waldrop (mwaldrop)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mwaldrop/holdfast

package router

import (
	"io"
	"net/http"
	"strings"

	"github.com/mwaldrop/holdfast/internal/cachestore"
	"github.com/mwaldrop/holdfast/internal/logging"
	"github.com/mwaldrop/holdfast/internal/metrics"
	"github.com/mwaldrop/holdfast/internal/strategy"
)

// maxBypassBody bounds the buffered body of proxied non-GET requests.
const maxBypassBody = 8 << 20

// GatewayConfig assembles the strategies behind each request class.
type GatewayConfig struct {
	Classifier *Classifier
	Fetcher    strategy.Fetcher

	// Image and Static are cache-first; Navigation is network-first
	// over the dynamic generation.
	Image      strategy.Strategy
	Static     strategy.Strategy
	Navigation strategy.Strategy

	// API strategies, selected by sub-dispatch pattern lists below.
	APINetworkFirst    strategy.Strategy
	APIStaleRevalidate strategy.Strategy
	APICacheOnly       strategy.Strategy

	NetworkFirstPatterns    []string
	StaleRevalidatePatterns []string
	CacheOnlyPatterns       []string

	// Catalog scans every generation for a failed navigation before
	// the offline document: a page pre-cached at install time lives in
	// the static generation, not the dynamic one the navigation
	// strategy consults.
	Catalog *cachestore.Catalog

	// StaticStore and OfflinePath locate the pre-cached offline
	// document served when a navigation fails end to end.
	StaticStore *cachestore.Store
	OfflinePath string
}

// Gateway routes every intercepted request through exactly one
// strategy and implements http.Handler.
type Gateway struct {
	cfg GatewayConfig
}

// NewGateway builds the catch-all gateway handler.
func NewGateway(cfg GatewayConfig) *Gateway {
	return &Gateway{cfg: cfg}
}

// ServeHTTP implements http.Handler.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	class := g.cfg.Classifier.Classify(r)

	switch class {
	case ClassBypass:
		g.serveBypass(w, r)
	case ClassImage:
		g.serve(w, r, g.cfg.Image)
	case ClassAPI:
		g.serve(w, r, g.apiStrategy(r.URL.Path))
	case ClassNavigation:
		g.serveNavigation(w, r)
	default:
		g.serve(w, r, g.cfg.Static)
	}
}

// apiStrategy sub-dispatches an API path against the configured
// pattern lists. A pattern matches as a path substring. Unmatched
// paths default to network-first.
func (g *Gateway) apiStrategy(path string) strategy.Strategy {
	for _, p := range g.cfg.NetworkFirstPatterns {
		if strings.Contains(path, p) {
			return g.cfg.APINetworkFirst
		}
	}
	for _, p := range g.cfg.StaleRevalidatePatterns {
		if strings.Contains(path, p) {
			return g.cfg.APIStaleRevalidate
		}
	}
	for _, p := range g.cfg.CacheOnlyPatterns {
		if strings.Contains(path, p) {
			return g.cfg.APICacheOnly
		}
	}
	return g.cfg.APINetworkFirst
}

func (g *Gateway) serve(w http.ResponseWriter, r *http.Request, s strategy.Strategy) {
	res, err := s.Serve(r.Context(), r)
	if err != nil {
		logging.Err(err).Str("strategy", s.Name()).Str("path", r.URL.Path).
			Msg("strategy failed to resolve request")
		http.Error(w, "gateway error", http.StatusBadGateway)
		return
	}
	res.Write(w)
}

// serveNavigation handles page loads: network first, then any cached
// copy across the generations, and finally the pre-cached offline
// document.
func (g *Gateway) serveNavigation(w http.ResponseWriter, r *http.Request) {
	res, err := g.cfg.Navigation.Serve(r.Context(), r)
	if err != nil {
		logging.Err(err).Str("path", r.URL.Path).Msg("navigation strategy failed")
		http.Error(w, "gateway error", http.StatusBadGateway)
		return
	}

	if res.Source == strategy.SourceFallback {
		res = g.navigationFallback(r, res)
	}
	res.Write(w)
}

// navigationFallback answers a failed page load from whichever
// generation still holds the page. A page pre-cached at install time
// sits in the static generation, which the dynamic-bound navigation
// strategy never sees. Only when no generation has it does the offline
// document go out.
func (g *Gateway) navigationFallback(r *http.Request, res *strategy.Result) *strategy.Result {
	if g.cfg.Catalog != nil {
		key := cachestore.RequestKeyFor(r)
		entry, generation, found, err := g.cfg.Catalog.MatchAny(key)
		if err != nil {
			logging.Err(err).Str("key", key).Msg("cross-generation lookup failed")
		}
		if found {
			metrics.RecordFallback("navigation", "cached_page")
			logging.Debug().Str("key", key).Str("generation", generation).
				Msg("navigation served from cached generation")
			cached := &strategy.Result{
				Status: entry.Status,
				Header: entry.Header.Clone(),
				Body:   entry.Body,
				Source: strategy.SourceCache,
			}
			cached.Header.Set(strategy.OfflineHeader, strategy.OfflineHeaderValue)
			return cached
		}
	}

	if g.cfg.StaticStore != nil {
		key := cachestore.RequestKey(http.MethodGet, g.cfg.OfflinePath)
		entry, found, err := g.cfg.StaticStore.Match(key)
		if err != nil {
			logging.Err(err).Str("key", key).Msg("offline document lookup failed")
		}
		if found {
			metrics.RecordFallback("navigation", "offline_page")
			return &strategy.Result{
				Status: http.StatusOK,
				Header: entry.Header,
				Body:   entry.Body,
				Source: strategy.SourceFallback,
			}
		}
	}
	return res
}

// serveBypass proxies the request to the network without any cache
// involvement.
func (g *Gateway) serveBypass(w http.ResponseWriter, r *http.Request) {
	var body []byte
	if r.Body != nil {
		var err error
		body, err = io.ReadAll(io.LimitReader(r.Body, maxBypassBody))
		if err != nil {
			http.Error(w, "failed to read request body", http.StatusBadRequest)
			return
		}
	}

	target := r.URL.String()
	if r.URL.Host == "" {
		target = g.cfg.Fetcher.Resolve(r.URL.RequestURI())
	}
	resp, err := g.cfg.Fetcher.Fetch(r.Context(), r.Method, target, r.Header, body)
	if err != nil {
		logging.Debug().Err(err).Str("target", target).Msg("bypass fetch failed")
		http.Error(w, "upstream unreachable", http.StatusBadGateway)
		return
	}

	for k, v := range resp.Header {
		w.Header()[k] = v
	}
	w.WriteHeader(resp.Status)
	if len(resp.Body) > 0 {
		w.Write(resp.Body) //nolint:errcheck
	}
}
