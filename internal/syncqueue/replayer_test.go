// Holdfast - Offline-First Edge Caching Gateway
// Copyright 2026 M. Waldrop (mwaldrop)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mwaldrop/holdfast

package syncqueue

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/mwaldrop/holdfast/internal/upstream"
)

type recordedRequest struct {
	method string
	target string
	header http.Header
	body   []byte
}

type stubFetcher struct {
	requests    []recordedRequest
	failTargets map[string]bool
	status      int
}

func (f *stubFetcher) Fetch(ctx context.Context, method, target string, header http.Header, body []byte) (*upstream.Response, error) {
	f.requests = append(f.requests, recordedRequest{method: method, target: target, header: header, body: body})
	if f.failTargets[target] {
		return nil, errors.New("origin unreachable")
	}
	status := f.status
	if status == 0 {
		status = http.StatusOK
	}
	return &upstream.Response{Status: status, Header: http.Header{}}, nil
}

func (f *stubFetcher) FetchRequest(ctx context.Context, r *http.Request) (*upstream.Response, error) {
	return f.Fetch(ctx, r.Method, f.Resolve(r.URL.RequestURI()), r.Header, nil)
}

func (f *stubFetcher) Resolve(pathAndQuery string) string {
	return "http://origin.test" + pathAndQuery
}

type stubJanitor struct {
	calls int
	err   error
}

func (j *stubJanitor) Cleanup(ctx context.Context) error {
	j.calls++
	return j.err
}

func TestReplayOfflineDataRemovesSucceeded(t *testing.T) {
	q := newTestQueue(t)
	fetcher := &stubFetcher{}
	r := NewReplayer(q, fetcher, nil, nil, "/api/newsletter/signup", "/api/user/preferences")

	for _, url := range []string{"/api/a", "/api/b"} {
		if _, err := q.Enqueue(&Item{Type: TypeOfflineData, URL: url, Method: "POST", Body: []byte("x")}); err != nil {
			t.Fatalf("Enqueue() error = %v", err)
		}
	}

	res, err := r.Replay(context.Background(), TagOfflineData)
	if err != nil {
		t.Fatalf("Replay() error = %v", err)
	}
	if res.Attempted != 2 || res.Succeeded != 2 || res.Failed != 0 {
		t.Errorf("Result = %+v, want 2 attempted, 2 succeeded", res)
	}

	items, err := q.Items("")
	if err != nil {
		t.Fatalf("Items() error = %v", err)
	}
	if len(items) != 0 {
		t.Errorf("queue holds %d items after full success, want 0", len(items))
	}
}

func TestReplayPartialFailureKeepsFailedItem(t *testing.T) {
	q := newTestQueue(t)
	fetcher := &stubFetcher{failTargets: map[string]bool{"http://origin.test/api/broken": true}}
	r := NewReplayer(q, fetcher, nil, nil, "", "")

	for _, url := range []string{"/api/ok-1", "/api/broken", "/api/ok-2"} {
		if _, err := q.Enqueue(&Item{Type: TypeOfflineData, URL: url, Method: "POST"}); err != nil {
			t.Fatalf("Enqueue() error = %v", err)
		}
	}

	res, err := r.Replay(context.Background(), TagOfflineData)
	if err != nil {
		t.Fatalf("Replay() error = %v", err)
	}
	if res.Attempted != 3 || res.Succeeded != 2 || res.Failed != 1 {
		t.Errorf("Result = %+v, want 3/2/1", res)
	}

	// One item failed mid-batch; the others must still have been
	// attempted and removed.
	items, err := q.Items("")
	if err != nil {
		t.Fatalf("Items() error = %v", err)
	}
	if len(items) != 1 || items[0].URL != "/api/broken" {
		t.Fatalf("surviving items = %+v, want only the failed one", items)
	}

	// A later pass with the failure cleared drains the queue.
	fetcher.failTargets = nil
	res, err = r.Replay(context.Background(), TagOfflineData)
	if err != nil {
		t.Fatalf("second Replay() error = %v", err)
	}
	if res.Attempted != 1 || res.Succeeded != 1 {
		t.Errorf("second Result = %+v, want 1/1/0", res)
	}
}

func TestReplayEmptyQueueIsNoop(t *testing.T) {
	q := newTestQueue(t)
	fetcher := &stubFetcher{}
	r := NewReplayer(q, fetcher, nil, nil, "", "")

	res, err := r.Replay(context.Background(), TagOfflineData)
	if err != nil {
		t.Fatalf("Replay() error = %v", err)
	}
	if res.Attempted != 0 {
		t.Errorf("Attempted = %d, want 0", res.Attempted)
	}
	if len(fetcher.requests) != 0 {
		t.Errorf("fetcher called %d times on empty queue", len(fetcher.requests))
	}
}

func TestReplayNewsletterPostsFixedEndpoint(t *testing.T) {
	q := newTestQueue(t)
	fetcher := &stubFetcher{}
	r := NewReplayer(q, fetcher, nil, nil, "/api/newsletter/signup", "/api/user/preferences")

	payload := []byte(`{"email":"visitor@example.com"}`)
	if _, err := q.Enqueue(&Item{Type: TypeNewsletter, Data: payload}); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	if _, err := r.Replay(context.Background(), TagNewsletter); err != nil {
		t.Fatalf("Replay() error = %v", err)
	}

	if len(fetcher.requests) != 1 {
		t.Fatalf("fetcher calls = %d, want 1", len(fetcher.requests))
	}
	req := fetcher.requests[0]
	if req.method != http.MethodPost {
		t.Errorf("method = %q, want POST", req.method)
	}
	if req.target != "http://origin.test/api/newsletter/signup" {
		t.Errorf("target = %q, want newsletter endpoint", req.target)
	}
	if string(req.body) != string(payload) {
		t.Errorf("body = %q, want item payload", req.body)
	}
	if ct := req.header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
}

func TestReplayPreferencesPutsFixedEndpoint(t *testing.T) {
	q := newTestQueue(t)
	fetcher := &stubFetcher{}
	r := NewReplayer(q, fetcher, nil, nil, "/api/newsletter/signup", "/api/user/preferences")

	if _, err := q.Enqueue(&Item{Type: TypePreferences, Data: []byte(`{"lang":"en"}`)}); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if _, err := r.Replay(context.Background(), TagPreferences); err != nil {
		t.Fatalf("Replay() error = %v", err)
	}

	if len(fetcher.requests) != 1 {
		t.Fatalf("fetcher calls = %d, want 1", len(fetcher.requests))
	}
	req := fetcher.requests[0]
	if req.method != http.MethodPut {
		t.Errorf("method = %q, want PUT", req.method)
	}
	if req.target != "http://origin.test/api/user/preferences" {
		t.Errorf("target = %q, want preferences endpoint", req.target)
	}
}

func TestReplayHTTPErrorKeepsItem(t *testing.T) {
	q := newTestQueue(t)
	fetcher := &stubFetcher{status: http.StatusBadGateway}
	r := NewReplayer(q, fetcher, nil, nil, "", "")

	if _, err := q.Enqueue(&Item{Type: TypeOfflineData, URL: "/api/x", Method: "POST"}); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	res, err := r.Replay(context.Background(), TagOfflineData)
	if err != nil {
		t.Fatalf("Replay() error = %v", err)
	}
	if res.Failed != 1 {
		t.Errorf("Failed = %d, want 1 on 502 response", res.Failed)
	}
	items, _ := q.Items("")
	if len(items) != 1 {
		t.Errorf("queue holds %d items, want 1", len(items))
	}
}

func TestReplayCacheCleanupRunsJanitor(t *testing.T) {
	q := newTestQueue(t)
	janitor := &stubJanitor{}
	r := NewReplayer(q, &stubFetcher{}, janitor, nil, "", "")

	if _, err := r.Replay(context.Background(), TagCacheCleanup); err != nil {
		t.Fatalf("Replay() error = %v", err)
	}
	if janitor.calls != 1 {
		t.Errorf("janitor calls = %d, want 1", janitor.calls)
	}
}

func TestReplayUnknownTag(t *testing.T) {
	q := newTestQueue(t)
	r := NewReplayer(q, &stubFetcher{}, nil, nil, "", "")

	_, err := r.Replay(context.Background(), "sync-nonsense")
	if !errors.Is(err, ErrUnknownTag) {
		t.Errorf("Replay() error = %v, want ErrUnknownTag", err)
	}
}
