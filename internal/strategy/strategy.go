// Holdfast - Offline-First Edge Caching Gateway
// Copyright 2026 M. Waldrop (mwaldrop)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mwaldrop/holdfast

// Package strategy implements the four fetch strategies that answer
// intercepted requests from the durable response cache and the origin.
//
// Every strategy terminates in a Result: network failures, storage
// failures, and cache misses all resolve to an explicit fallback
// response rather than an error escaping to the caller.
package strategy

import (
	"context"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/mwaldrop/holdfast/internal/cachestore"
	"github.com/mwaldrop/holdfast/internal/upstream"
)

// OfflineHeader marks a response served from cache because the network
// failed. Pages use it to surface an "offline data" banner.
const OfflineHeader = "X-Cache-Status"

// OfflineHeaderValue is the marker header value.
const OfflineHeaderValue = "offline"

// Source identifies where a Result came from.
type Source string

const (
	SourceCache    Source = "cache"
	SourceNetwork  Source = "network"
	SourceFallback Source = "fallback"
)

// Result is the materialized answer to an intercepted request.
type Result struct {
	Status int
	Header http.Header
	Body   []byte
	Source Source
}

// Write sends the result to an http.ResponseWriter.
func (res *Result) Write(w http.ResponseWriter) {
	for k, v := range res.Header {
		w.Header()[k] = v
	}
	w.WriteHeader(res.Status)
	if len(res.Body) > 0 {
		w.Write(res.Body) //nolint:errcheck // client gone is not actionable
	}
}

// Fetcher is the network capability strategies depend on.
// Satisfied by *upstream.Client.
type Fetcher interface {
	FetchRequest(ctx context.Context, r *http.Request) (*upstream.Response, error)
	Fetch(ctx context.Context, method, target string, header http.Header, body []byte) (*upstream.Response, error)
	Resolve(pathAndQuery string) string
}

// Strategy answers one intercepted request.
type Strategy interface {
	// Name identifies the strategy in logs and metrics.
	Name() string

	// Serve resolves the request to a Result. Implementations must not
	// return an error for network or storage failures; those resolve to
	// fallback Results. A non-nil error indicates request handling
	// itself is impossible (e.g. canceled context).
	Serve(ctx context.Context, r *http.Request) (*Result, error)
}

func fromEntry(e *cachestore.Entry, source Source) *Result {
	return &Result{
		Status: e.Status,
		Header: e.Header,
		Body:   e.Body,
		Source: source,
	}
}

func fromResponse(resp *upstream.Response) *Result {
	return &Result{
		Status: resp.Status,
		Header: resp.Header,
		Body:   resp.Body,
		Source: SourceNetwork,
	}
}

type offlineBody struct {
	Error   string `json:"error"`
	Offline bool   `json:"offline"`
}

// offlineResult synthesizes the structured JSON failure response used
// when neither network nor cache can answer.
func offlineResult(status int, message string) *Result {
	body, err := json.Marshal(offlineBody{Error: message, Offline: true})
	if err != nil {
		body = []byte(`{"error":"offline","offline":true}`)
	}
	return &Result{
		Status: status,
		Header: http.Header{"Content-Type": []string{"application/json"}},
		Body:   body,
		Source: SourceFallback,
	}
}

// notFoundResult synthesizes an empty 404 for image fallbacks.
func notFoundResult() *Result {
	return &Result{
		Status: http.StatusNotFound,
		Header: http.Header{},
		Source: SourceFallback,
	}
}
