// Holdfast - Offline-First Edge Caching Gateway
// Copyright 2026 M. Waldrop (mwaldrop)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mwaldrop/holdfast

package hub

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/mwaldrop/holdfast/internal/logging"
)

//nolint:gochecknoinits // init ensures consistent logging for tests
func init() {
	logging.Init(logging.Config{
		Level:  "info",
		Format: "console",
		Output: io.Discard,
	})
}

// setupHub starts a hub under a cancellable context.
func setupHub(t *testing.T) (*Hub, context.CancelFunc) {
	t.Helper()
	h := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.RunWithContext(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("hub did not stop after cancel")
		}
	})
	time.Sleep(10 * time.Millisecond)
	return h, cancel
}

func createTestClient(h *Hub) *Client {
	return &Client{id: clientIDCounter.Add(1), hub: h, conn: nil, send: make(chan Message, 256)}
}

func registerClient(h *Hub, client *Client) {
	h.Register <- client
	time.Sleep(20 * time.Millisecond)
}

func TestNewHub(t *testing.T) {
	h := NewHub()
	if h == nil {
		t.Fatal("NewHub returned nil")
	}
	if h.clients == nil || h.broadcast == nil || h.Register == nil || h.Unregister == nil {
		t.Error("hub channels or client map not initialized")
	}
	if h.ClientCount() != 0 {
		t.Errorf("ClientCount() = %d, want 0", h.ClientCount())
	}
}

func TestHubRegisterUnregister(t *testing.T) {
	h, _ := setupHub(t)

	client := createTestClient(h)
	registerClient(h, client)
	if h.ClientCount() != 1 {
		t.Fatalf("ClientCount() = %d after register, want 1", h.ClientCount())
	}

	h.Unregister <- client
	time.Sleep(20 * time.Millisecond)
	if h.ClientCount() != 0 {
		t.Fatalf("ClientCount() = %d after unregister, want 0", h.ClientCount())
	}
	// The send channel is closed so the write pump exits.
	select {
	case _, ok := <-client.send:
		if ok {
			t.Error("send channel still open after unregister")
		}
	default:
		t.Error("send channel not closed after unregister")
	}
}

func TestHubBroadcastReachesAllClients(t *testing.T) {
	h, _ := setupHub(t)

	clients := []*Client{createTestClient(h), createTestClient(h), createTestClient(h)}
	for _, c := range clients {
		registerClient(h, c)
	}

	h.Broadcast(MessageTypeLifecycle, map[string]any{"state": "active"})
	time.Sleep(20 * time.Millisecond)

	for i, c := range clients {
		select {
		case msg := <-c.send:
			if msg.Type != MessageTypeLifecycle {
				t.Errorf("client %d received type %q, want lifecycle", i, msg.Type)
			}
		default:
			t.Errorf("client %d received nothing", i)
		}
	}
}

func TestHubBroadcastWithoutClients(t *testing.T) {
	h, _ := setupHub(t)
	// Must not block or panic.
	h.Broadcast(MessageTypeSyncComplete, map[string]int{"succeeded": 3})
	time.Sleep(10 * time.Millisecond)
}

func TestHubDropsStalledClient(t *testing.T) {
	h, _ := setupHub(t)

	stalled := createTestClient(h)
	stalled.send = make(chan Message) // unbuffered and never drained
	healthy := createTestClient(h)
	registerClient(h, stalled)
	registerClient(h, healthy)

	h.Broadcast(MessageTypeNotification, nil)
	time.Sleep(20 * time.Millisecond)

	if h.ClientCount() != 1 {
		t.Errorf("ClientCount() = %d, want 1 after dropping stalled client", h.ClientCount())
	}
	select {
	case msg := <-healthy.send:
		if msg.Type != MessageTypeNotification {
			t.Errorf("healthy client received type %q", msg.Type)
		}
	default:
		t.Error("healthy client received nothing")
	}
}

func TestHubShutdownClosesClients(t *testing.T) {
	h := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.RunWithContext(ctx) }()
	time.Sleep(10 * time.Millisecond)

	client := createTestClient(h)
	registerClient(h, client)

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("RunWithContext() error = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("hub did not stop")
	}

	if h.ClientCount() != 0 {
		t.Errorf("ClientCount() = %d after shutdown, want 0", h.ClientCount())
	}
	select {
	case _, ok := <-client.send:
		if ok {
			t.Error("send channel delivered a message instead of closing")
		}
	default:
		t.Error("send channel not closed after shutdown")
	}
}
