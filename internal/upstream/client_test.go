// Holdfast - Offline-First Edge Caching Gateway
// Copyright 2026 M. Waldrop (mwaldrop)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mwaldrop/holdfast

package upstream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mwaldrop/holdfast/internal/config"
)

func testConfig(origin string) *config.UpstreamConfig {
	return &config.UpstreamConfig{
		Origin:       origin,
		AllowedHosts: []string{"localhost"},
		Timeout:      2 * time.Second,
		Breaker: config.BreakerConfig{
			MaxRequests:  3,
			Interval:     time.Minute,
			Timeout:      time.Minute,
			FailureRatio: 0.6,
			MinRequests:  10,
		},
	}
}

func TestFetchBuffersResponse(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"hello":"world"}`))
	}))
	defer backend.Close()

	client, err := New(testConfig(backend.URL))
	if err != nil {
		t.Fatal(err)
	}

	resp, err := client.Fetch(context.Background(), http.MethodGet, backend.URL+"/x", nil, nil)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if !resp.OK() {
		t.Errorf("status = %d, want 2xx", resp.Status)
	}
	if string(resp.Body) != `{"hello":"world"}` {
		t.Errorf("body = %q", resp.Body)
	}
	if resp.Header.Get("Content-Type") != "application/json" {
		t.Errorf("header lost: %v", resp.Header)
	}
}

func TestFetchErrorStatusIsNotATransportFailure(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer backend.Close()

	client, err := New(testConfig(backend.URL))
	if err != nil {
		t.Fatal(err)
	}

	resp, err := client.Fetch(context.Background(), http.MethodGet, backend.URL, nil, nil)
	if err != nil {
		t.Fatalf("HTTP 500 must not surface as fetch error, got %v", err)
	}
	if resp.Status != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", resp.Status)
	}
	if resp.OK() {
		t.Error("OK() true for 500")
	}
}

func TestFetchTransportFailure(t *testing.T) {
	client, err := New(testConfig("http://127.0.0.1:1")) // nothing listens here
	if err != nil {
		t.Fatal(err)
	}

	_, err = client.Fetch(context.Background(), http.MethodGet, "http://127.0.0.1:1/", nil, nil)
	if err == nil {
		t.Fatal("expected transport error for unreachable origin")
	}
}

func TestAllowed(t *testing.T) {
	backend := httptest.NewServer(http.NotFoundHandler())
	defer backend.Close()

	client, err := New(testConfig(backend.URL))
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		host string
		want bool
	}{
		{"", true}, // relative request
		{"localhost", true},
		{"localhost:3000", true},
		{"LOCALHOST", true},
		{"evil.example.com", false},
		{"evil.example.com:443", false},
	}
	for _, tt := range tests {
		if got := client.Allowed(tt.host); got != tt.want {
			t.Errorf("Allowed(%q) = %v, want %v", tt.host, got, tt.want)
		}
	}
}

func TestResolve(t *testing.T) {
	client, err := New(testConfig("http://backend:8080"))
	if err != nil {
		t.Fatal(err)
	}

	got := client.Resolve("/api/news?page=2")
	want := "http://backend:8080/api/news?page=2"
	if got != want {
		t.Errorf("Resolve = %q, want %q", got, want)
	}
}

func TestResponseEntry(t *testing.T) {
	resp := &Response{
		Status: http.StatusOK,
		Header: http.Header{"Content-Type": []string{"text/html"}},
		Body:   []byte("<html></html>"),
	}
	entry := resp.Entry("GET http://h/")
	if entry.Key != "GET http://h/" || entry.Status != http.StatusOK {
		t.Errorf("entry = %+v", entry)
	}
	if entry.StoredAt.IsZero() {
		t.Error("StoredAt not set")
	}
}
