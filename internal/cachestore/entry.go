// Holdfast - Offline-First Edge Caching Gateway
// Copyright 2026 M. Waldrop (mwaldrop)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mwaldrop/holdfast

package cachestore

import (
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Generation purposes. The lifecycle manager pre-warms static, navigation
// responses land in dynamic, API responses in data, and images in image.
const (
	PurposeStatic  = "static"
	PurposeDynamic = "dynamic"
	PurposeData    = "data"
	PurposeImage   = "image"
)

// Entry is a stored response snapshot inside a generation.
type Entry struct {
	// Key is the request identity this entry answers.
	Key string `json:"key"`

	// Status is the upstream HTTP status code at store time.
	Status int `json:"status"`

	// Header is the response header snapshot.
	Header http.Header `json:"header"`

	// Body is the full response body.
	Body []byte `json:"body"`

	// StoredAt is when the snapshot was written.
	StoredAt time.Time `json:"stored_at"`
}

// Clone returns a deep copy safe to mutate (headers are copied).
// Strategies add marker headers to served copies without touching the
// stored snapshot.
func (e *Entry) Clone() *Entry {
	clone := &Entry{
		Key:      e.Key,
		Status:   e.Status,
		Header:   make(http.Header, len(e.Header)),
		Body:     e.Body,
		StoredAt: e.StoredAt,
	}
	for k, v := range e.Header {
		clone.Header[k] = append([]string(nil), v...)
	}
	return clone
}

// RequestKey derives the cache identity for a request.
// Only GET requests are cached, so the method is normalized but kept in
// the key to make that constraint visible in stored data. Fragments are
// never sent on the wire and are stripped.
func RequestKey(method, rawURL string) string {
	method = strings.ToUpper(method)
	if method == "" {
		method = http.MethodGet
	}
	if u, err := url.Parse(rawURL); err == nil {
		u.Fragment = ""
		rawURL = u.String()
	}
	return method + " " + rawURL
}

// RequestKeyFor derives the cache identity for an *http.Request.
func RequestKeyFor(r *http.Request) string {
	return RequestKey(r.Method, r.URL.String())
}
