// Holdfast - Offline-First Edge Caching Gateway
// Copyright 2026 M. Waldrop (mwaldrop)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mwaldrop/holdfast

package router

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mwaldrop/holdfast/internal/cachestore"
	"github.com/mwaldrop/holdfast/internal/strategy"
	"github.com/mwaldrop/holdfast/internal/upstream"
)

type stubStrategy struct {
	name  string
	res   *strategy.Result
	calls int
}

func (s *stubStrategy) Name() string { return s.name }

func (s *stubStrategy) Serve(ctx context.Context, r *http.Request) (*strategy.Result, error) {
	s.calls++
	if s.res == nil {
		return &strategy.Result{
			Status: http.StatusOK,
			Header: http.Header{},
			Body:   []byte(s.name),
			Source: strategy.SourceCache,
		}, nil
	}
	return s.res, nil
}

type stubFetcher struct {
	calls  int
	fail   bool
	status int
	body   []byte
	method string
	target string
}

func (f *stubFetcher) Fetch(ctx context.Context, method, target string, header http.Header, body []byte) (*upstream.Response, error) {
	f.calls++
	f.method, f.target = method, target
	if f.fail {
		return nil, errors.New("origin unreachable")
	}
	status := f.status
	if status == 0 {
		status = http.StatusOK
	}
	return &upstream.Response{Status: status, Header: http.Header{}, Body: f.body}, nil
}

func (f *stubFetcher) FetchRequest(ctx context.Context, r *http.Request) (*upstream.Response, error) {
	return f.Fetch(ctx, r.Method, f.Resolve(r.URL.RequestURI()), r.Header, nil)
}

func (f *stubFetcher) Resolve(pathAndQuery string) string {
	return "http://origin.test" + pathAndQuery
}

func allowOwnOrigin(host string) bool {
	return host == "gateway.test" || host == "localhost"
}

func TestClassify(t *testing.T) {
	c := NewClassifier([]string{"/api/", "/proxy/"}, allowOwnOrigin)

	tests := []struct {
		name    string
		method  string
		target  string
		headers map[string]string
		want    Class
	}{
		{name: "post bypasses", method: http.MethodPost, target: "/api/queue", want: ClassBypass},
		{name: "foreign origin bypasses", method: http.MethodGet, target: "http://tracker.example/pixel.gif", want: ClassBypass},
		{name: "allow-listed absolute url classified", method: http.MethodGet, target: "http://localhost/icons/a.png", want: ClassImage},
		{name: "png extension", method: http.MethodGet, target: "/photos/a.png", want: ClassImage},
		{name: "uppercase extension", method: http.MethodGet, target: "/photos/B.JPG", want: ClassImage},
		{name: "fetch-dest image without extension", method: http.MethodGet, target: "/photos/dynamic",
			headers: map[string]string{"Sec-Fetch-Dest": "image"}, want: ClassImage},
		{name: "api prefix", method: http.MethodGet, target: "/api/weather", want: ClassAPI},
		{name: "proxy prefix", method: http.MethodGet, target: "/proxy/rates", want: ClassAPI},
		{name: "navigate mode", method: http.MethodGet, target: "/about",
			headers: map[string]string{"Sec-Fetch-Mode": "navigate"}, want: ClassNavigation},
		{name: "accept html", method: http.MethodGet, target: "/about",
			headers: map[string]string{"Accept": "text/html,application/xhtml+xml"}, want: ClassNavigation},
		{name: "plain asset is static", method: http.MethodGet, target: "/assets/app.js", want: ClassStatic},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(tt.method, tt.target, nil)
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			if got := c.Classify(r); got != tt.want {
				t.Errorf("Classify() = %q, want %q", got, tt.want)
			}
		})
	}
}

func newTestGateway(t *testing.T) (*Gateway, map[string]*stubStrategy, *stubFetcher) {
	t.Helper()
	stubs := map[string]*stubStrategy{
		"image":      {name: "image"},
		"static":     {name: "static"},
		"navigation": {name: "navigation"},
		"nf":         {name: "nf"},
		"swr":        {name: "swr"},
		"co":         {name: "co"},
	}
	fetcher := &stubFetcher{}
	g := NewGateway(GatewayConfig{
		Classifier:              NewClassifier([]string{"/api/"}, allowOwnOrigin),
		Fetcher:                 fetcher,
		Image:                   stubs["image"],
		Static:                  stubs["static"],
		Navigation:              stubs["navigation"],
		APINetworkFirst:         stubs["nf"],
		APIStaleRevalidate:      stubs["swr"],
		APICacheOnly:            stubs["co"],
		NetworkFirstPatterns:    []string{"/api/weather", "/api/traffic"},
		StaleRevalidatePatterns: []string{"/api/news", "/api/events"},
		CacheOnlyPatterns:       []string{"/api/phrases"},
		OfflinePath:             "/offline.html",
	})
	return g, stubs, fetcher
}

func TestGatewayAPIDispatch(t *testing.T) {
	g, stubs, _ := newTestGateway(t)

	tests := []struct {
		path string
		want string
	}{
		{path: "/api/weather", want: "nf"},
		{path: "/api/news", want: "swr"},
		{path: "/api/phrases", want: "co"},
		{path: "/api/unmapped", want: "nf"},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		g.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
		if rec.Body.String() != tt.want {
			t.Errorf("%s dispatched to %q, want %q", tt.path, rec.Body.String(), tt.want)
		}
	}
	if stubs["nf"].calls != 2 {
		t.Errorf("network-first calls = %d, want 2", stubs["nf"].calls)
	}
}

func TestGatewayNavigationOfflineDocument(t *testing.T) {
	g, stubs, _ := newTestGateway(t)

	catalog, err := cachestore.Open(&cachestore.Config{
		Prefix:       "holdfast",
		Version:      "v1",
		InMemory:     true,
		CloseTimeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("open catalog: %v", err)
	}
	t.Cleanup(func() { catalog.Close() })
	staticStore, err := catalog.Open(cachestore.PurposeStatic)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	err = staticStore.Put(context.Background(), &cachestore.Entry{
		Key:    cachestore.RequestKey(http.MethodGet, "/offline.html"),
		Status: http.StatusOK,
		Header: http.Header{"Content-Type": []string{"text/html"}},
		Body:   []byte("<h1>offline</h1>"),
	})
	if err != nil {
		t.Fatalf("seed offline document: %v", err)
	}
	g.cfg.StaticStore = staticStore

	// The navigation strategy exhausted network and cache.
	stubs["navigation"].res = &strategy.Result{
		Status: http.StatusServiceUnavailable,
		Header: http.Header{},
		Source: strategy.SourceFallback,
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/about", nil)
	req.Header.Set("Sec-Fetch-Mode", "navigate")
	g.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("Code = %d, want 200 offline page", rec.Code)
	}
	if rec.Body.String() != "<h1>offline</h1>" {
		t.Errorf("Body = %q, want offline document", rec.Body.String())
	}
}

func TestGatewayNavigationPrefersPrecachedPage(t *testing.T) {
	g, stubs, _ := newTestGateway(t)

	catalog, err := cachestore.Open(&cachestore.Config{
		Prefix:       "holdfast",
		Version:      "v1",
		InMemory:     true,
		CloseTimeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("open catalog: %v", err)
	}
	t.Cleanup(func() { catalog.Close() })
	staticStore, err := catalog.Open(cachestore.PurposeStatic)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	for path, body := range map[string]string{
		"/":             "<h1>home</h1>",
		"/offline.html": "<h1>offline</h1>",
	} {
		err = staticStore.Put(context.Background(), &cachestore.Entry{
			Key:    cachestore.RequestKey(http.MethodGet, path),
			Status: http.StatusOK,
			Header: http.Header{"Content-Type": []string{"text/html"}},
			Body:   []byte(body),
		})
		if err != nil {
			t.Fatalf("seed %s: %v", path, err)
		}
	}
	g.cfg.Catalog = catalog
	g.cfg.StaticStore = staticStore

	// The navigation strategy exhausted network and the dynamic
	// generation; the page itself was precached at install time.
	stubs["navigation"].res = &strategy.Result{
		Status: http.StatusServiceUnavailable,
		Header: http.Header{},
		Source: strategy.SourceFallback,
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Sec-Fetch-Mode", "navigate")
	g.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("Code = %d, want 200 precached page", rec.Code)
	}
	if rec.Body.String() != "<h1>home</h1>" {
		t.Errorf("Body = %q, want precached page, not offline document", rec.Body.String())
	}
	if rec.Header().Get(strategy.OfflineHeader) != strategy.OfflineHeaderValue {
		t.Errorf("%s = %q, want %q", strategy.OfflineHeader,
			rec.Header().Get(strategy.OfflineHeader), strategy.OfflineHeaderValue)
	}
}

func TestGatewayNavigationWithoutOfflineDocument(t *testing.T) {
	g, stubs, _ := newTestGateway(t)
	stubs["navigation"].res = &strategy.Result{
		Status: http.StatusServiceUnavailable,
		Header: http.Header{},
		Body:   []byte(`{"error":"offline","offline":true}`),
		Source: strategy.SourceFallback,
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/about", nil)
	req.Header.Set("Sec-Fetch-Mode", "navigate")
	g.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Code = %d, want 503 when no offline page is cached", rec.Code)
	}
}

func TestGatewayBypassProxiesNonGET(t *testing.T) {
	g, stubs, fetcher := newTestGateway(t)
	fetcher.body = []byte("created")
	fetcher.status = http.StatusCreated

	rec := httptest.NewRecorder()
	g.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/submit", nil))

	if fetcher.calls != 1 {
		t.Fatalf("fetcher calls = %d, want 1", fetcher.calls)
	}
	if fetcher.method != http.MethodPost {
		t.Errorf("proxied method = %q, want POST", fetcher.method)
	}
	if rec.Code != http.StatusCreated || rec.Body.String() != "created" {
		t.Errorf("response = %d %q, want 201 created", rec.Code, rec.Body.String())
	}
	for _, s := range stubs {
		if s.calls != 0 {
			t.Errorf("strategy %s invoked %d times on bypass", s.name, s.calls)
		}
	}
}

func TestGatewayBypassUpstreamFailure(t *testing.T) {
	g, _, fetcher := newTestGateway(t)
	fetcher.fail = true

	rec := httptest.NewRecorder()
	g.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/submit", nil))

	if rec.Code != http.StatusBadGateway {
		t.Errorf("Code = %d, want 502", rec.Code)
	}
}

func TestGatewayImageRoute(t *testing.T) {
	g, stubs, _ := newTestGateway(t)

	rec := httptest.NewRecorder()
	g.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/icons/icon-192.png", nil))

	if stubs["image"].calls != 1 {
		t.Errorf("image strategy calls = %d, want 1", stubs["image"].calls)
	}
	if rec.Body.String() != "image" {
		t.Errorf("Body = %q, want image strategy output", rec.Body.String())
	}
}
