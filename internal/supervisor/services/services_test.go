// Holdfast - Offline-First Edge Caching Gateway
// Copyright 2026 M. Waldrop (mwaldrop)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mwaldrop/holdfast

package services

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mwaldrop/holdfast/internal/logging"
	"github.com/mwaldrop/holdfast/internal/syncqueue"
)

//nolint:gochecknoinits // init ensures consistent logging for tests
func init() {
	logging.Init(logging.Config{
		Level:  "error",
		Format: "console",
		Output: io.Discard,
	})
}

// stubHTTPServer fakes *http.Server lifecycle behavior.
type stubHTTPServer struct {
	listenErr error
	closed    chan struct{}
	shutdowns atomic.Int32
}

func newStubHTTPServer() *stubHTTPServer {
	return &stubHTTPServer{closed: make(chan struct{})}
}

func (s *stubHTTPServer) ListenAndServe() error {
	if s.listenErr != nil {
		return s.listenErr
	}
	<-s.closed
	return errors.New("http: Server closed")
}

func (s *stubHTTPServer) Shutdown(_ context.Context) error {
	s.shutdowns.Add(1)
	close(s.closed)
	return nil
}

func TestHTTPServiceGracefulShutdown(t *testing.T) {
	server := newStubHTTPServer()
	svc := NewHTTPServerService(server, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve returned %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("service did not stop")
	}
	if server.shutdowns.Load() != 1 {
		t.Errorf("shutdowns = %d, want 1", server.shutdowns.Load())
	}
}

func TestHTTPServiceListenFailure(t *testing.T) {
	server := newStubHTTPServer()
	server.listenErr = errors.New("bind: address already in use")
	svc := NewHTTPServerService(server, time.Second)

	err := svc.Serve(context.Background())
	if err == nil || !errors.Is(err, server.listenErr) {
		t.Errorf("Serve returned %v, want listen error", err)
	}
}

// stubContextHub counts RunWithContext invocations.
type stubContextHub struct {
	runs atomic.Int32
}

func (h *stubContextHub) RunWithContext(ctx context.Context) error {
	h.runs.Add(1)
	<-ctx.Done()
	return ctx.Err()
}

func TestHubServiceDelegates(t *testing.T) {
	h := &stubContextHub{}
	svc := NewHubService(h)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("hub service did not stop")
	}
	if h.runs.Load() != 1 {
		t.Errorf("runs = %d, want 1", h.runs.Load())
	}
}

// stubReplayer records which tags were replayed.
type stubReplayer struct {
	mu   sync.Mutex
	tags []string
}

func (r *stubReplayer) Replay(_ context.Context, tag string) (*syncqueue.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tags = append(r.tags, tag)
	return &syncqueue.Result{Tag: tag}, nil
}

func TestReplayServiceRunsAllFlows(t *testing.T) {
	r := &stubReplayer{}
	svc := NewReplayService(r, 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("replay service did not stop")
	}

	seen := make(map[string]bool)
	r.mu.Lock()
	for _, tag := range r.tags {
		seen[tag] = true
	}
	r.mu.Unlock()
	for _, tag := range []string{syncqueue.TagOfflineData, syncqueue.TagNewsletter, syncqueue.TagPreferences} {
		if !seen[tag] {
			t.Errorf("tag %s never replayed", tag)
		}
	}
}

// stubJanitor counts cleanup passes.
type stubJanitor struct {
	passes atomic.Int32
}

func (j *stubJanitor) Cleanup(_ context.Context) error {
	j.passes.Add(1)
	return nil
}

func TestCleanupServiceRunsPeriodically(t *testing.T) {
	j := &stubJanitor{}
	svc := NewCleanupService(j, 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	time.Sleep(110 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("cleanup service did not stop")
	}

	if j.passes.Load() < 2 {
		t.Errorf("passes = %d, want at least 2", j.passes.Load())
	}
}
