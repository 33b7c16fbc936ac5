// Holdfast - Offline-First Edge Caching Gateway
// Copyright 2026 M. Waldrop (mwaldrop)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mwaldrop/holdfast

package middleware

import (
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestRequestIDGenerated(t *testing.T) {
	var captured string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = GetRequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if captured == "" {
		t.Fatal("expected request id in context")
	}
	if got := rec.Header().Get("X-Request-ID"); got != captured {
		t.Errorf("response header = %q, want %q", got, captured)
	}
}

func TestRequestIDHonorsUpstream(t *testing.T) {
	var captured string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "upstream-id-42")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if captured != "upstream-id-42" {
		t.Errorf("request id = %q, want upstream-id-42", captured)
	}
}

func TestGetRequestIDMissing(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if got := GetRequestID(req.Context()); got != "" {
		t.Errorf("expected empty id, got %q", got)
	}
}

func TestCompressionRoundTrip(t *testing.T) {
	body := strings.Repeat("holdfast offline cache ", 64)
	handler := Compression(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(body))
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("Content-Encoding"); got != "gzip" {
		t.Fatalf("Content-Encoding = %q, want gzip", got)
	}
	gz, err := gzip.NewReader(rec.Body)
	if err != nil {
		t.Fatalf("gzip reader: %v", err)
	}
	decoded, err := io.ReadAll(gz)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(decoded) != body {
		t.Error("decompressed body does not match original")
	}
}

func TestCompressionSkippedWithoutAcceptEncoding(t *testing.T) {
	handler := Compression(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("plain"))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Header().Get("Content-Encoding") != "" {
		t.Error("expected no Content-Encoding for client without gzip support")
	}
	if rec.Body.String() != "plain" {
		t.Errorf("body = %q, want plain", rec.Body.String())
	}
}

func TestCompressionSkipsWebSocketUpgrade(t *testing.T) {
	handler := Compression(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("upgrade"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	req.Header.Set("Upgrade", "websocket")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Header().Get("Content-Encoding") != "" {
		t.Error("websocket upgrade must not be compressed")
	}
}

func TestPrometheusCapturesStatus(t *testing.T) {
	handler := Prometheus(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tea", nil))

	if rec.Code != http.StatusTeapot {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusTeapot)
	}
}

func TestPerformanceMonitorWindow(t *testing.T) {
	pm := NewPerformanceMonitor(3)
	for i := 0; i < 5; i++ {
		pm.Record(RequestMetric{
			Path:       "/api/v1/stats",
			Method:     http.MethodGet,
			DurationMS: int64(i + 1),
			StatusCode: http.StatusOK,
			Timestamp:  time.Now().UTC(),
		})
	}

	stats := pm.Stats()
	if len(stats) != 1 {
		t.Fatalf("expected 1 endpoint, got %d", len(stats))
	}
	if stats[0].RequestCount != 3 {
		t.Errorf("window should cap at 3 entries, got %d", stats[0].RequestCount)
	}
	if stats[0].MinDuration != 3 || stats[0].MaxDuration != 5 {
		t.Errorf("window kept wrong entries: min=%d max=%d", stats[0].MinDuration, stats[0].MaxDuration)
	}
}

func TestPerformanceMonitorPercentiles(t *testing.T) {
	pm := NewPerformanceMonitor(200)
	for i := 1; i <= 100; i++ {
		pm.Record(RequestMetric{Path: "/x", Method: http.MethodGet, DurationMS: int64(i)})
	}

	stats := pm.Stats()
	if len(stats) != 1 {
		t.Fatalf("expected 1 endpoint, got %d", len(stats))
	}
	s := stats[0]
	if s.P50Duration != 50 {
		t.Errorf("p50 = %d, want 50", s.P50Duration)
	}
	if s.P95Duration != 95 {
		t.Errorf("p95 = %d, want 95", s.P95Duration)
	}
	if s.P99Duration != 99 {
		t.Errorf("p99 = %d, want 99", s.P99Duration)
	}
}

func TestPerformanceMiddlewareRecords(t *testing.T) {
	pm := NewPerformanceMonitor(10)
	handler := pm.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/queue", nil))

	stats := pm.Stats()
	if len(stats) != 1 {
		t.Fatalf("expected 1 endpoint, got %d", len(stats))
	}
	if stats[0].Path != "POST /api/v1/queue" {
		t.Errorf("endpoint = %q", stats[0].Path)
	}
}
