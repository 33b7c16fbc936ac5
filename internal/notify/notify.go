// Holdfast - Offline-First Edge Caching Gateway
// Copyright 2026 M. Waldrop (mwaldrop)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mwaldrop/holdfast

// Package notify handles the push notification lifecycle: payload
// parsing, normalization to display options, click routing, and
// subscription re-registration.
//
// A notification moves Received -> Displayed -> {Clicked | Dismissed}.
// Malformed payloads are logged and dropped; nothing in this package
// lets a bad payload escape as an error to the push sender.
package notify

import (
	"context"
	"fmt"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/mwaldrop/holdfast/internal/config"
	"github.com/mwaldrop/holdfast/internal/logging"
	"github.com/mwaldrop/holdfast/internal/metrics"
	"github.com/mwaldrop/holdfast/internal/strategy"
)

// Display defaults applied to sparse payloads.
const (
	defaultTitle = "Update available"
	defaultIcon  = "/icons/icon-192.png"
	defaultBadge = "/icons/icon-192.png"
	defaultURL   = "/"
)

// defaultVibration is the vibration pattern in milliseconds.
var defaultVibration = []int{100, 50, 100}

// CategoryEmergencies forces sticky display: the notification stays
// until the user interacts with it.
const CategoryEmergencies = "emergencies"

// Payload is the wire shape of a push message.
type Payload struct {
	Title    string `json:"title"`
	Body     string `json:"body"`
	Icon     string `json:"icon"`
	Badge    string `json:"badge"`
	URL      string `json:"url"`
	Tag      string `json:"tag"`
	Category string `json:"category"`
}

// Action is one button on a displayed notification.
type Action struct {
	Action string `json:"action"`
	Title  string `json:"title"`
}

// Options is the normalized display configuration.
type Options struct {
	Title              string   `json:"title"`
	Body               string   `json:"body"`
	Icon               string   `json:"icon"`
	Badge              string   `json:"badge"`
	URL                string   `json:"url"`
	Tag                string   `json:"tag"`
	Category           string   `json:"category"`
	Vibration          []int    `json:"vibration"`
	RequireInteraction bool     `json:"requireInteraction"`
	Actions            []Action `json:"actions"`
}

// ClickKind is the routing outcome of a notification click.
type ClickKind string

const (
	// CloseOnly dismisses without navigation.
	CloseOnly ClickKind = "close_only"
	// FocusExisting focuses a page client already showing the URL.
	FocusExisting ClickKind = "focus_existing"
	// OpenWindow opens a new page client at the URL.
	OpenWindow ClickKind = "open_window"
)

// ClickDecision tells the page-client layer what to do after a click.
type ClickDecision struct {
	Kind ClickKind `json:"kind"`
	URL  string    `json:"url,omitempty"`
}

// Broadcaster fans a displayed notification out to page clients.
// Satisfied by *hub.Hub.
type Broadcaster interface {
	Broadcast(msgType string, data any)
}

// Manager owns the notification lifecycle.
type Manager struct {
	cfg     config.PushConfig
	hub     Broadcaster
	fetcher strategy.Fetcher
}

// NewManager builds a notification manager. hub may be nil.
func NewManager(cfg config.PushConfig, hub Broadcaster, fetcher strategy.Fetcher) *Manager {
	return &Manager{cfg: cfg, hub: hub, fetcher: fetcher}
}

// Receive parses one push payload and, when valid, normalizes and
// dispatches it for display. Malformed payloads are logged and
// dropped. The returned bool reports whether anything was displayed.
func (m *Manager) Receive(payload []byte) (*Options, bool) {
	metrics.NotificationsReceived.Inc()

	if len(payload) == 0 {
		metrics.NotificationsDropped.WithLabelValues("empty").Inc()
		logging.Debug().Msg("empty push payload dropped")
		return nil, false
	}

	var p Payload
	if err := json.Unmarshal(payload, &p); err != nil {
		metrics.NotificationsDropped.WithLabelValues("malformed").Inc()
		logging.Warn().Err(err).Msg("malformed push payload dropped")
		return nil, false
	}

	opts := Normalize(&p)
	if m.hub != nil {
		m.hub.Broadcast("notification", opts)
	}
	metrics.NotificationsDisplayed.Inc()
	logging.Debug().Str("tag", opts.Tag).Str("category", opts.Category).Msg("notification displayed")
	return opts, true
}

// Normalize maps a payload onto display options with defaults filled
// in. category "emergencies" forces RequireInteraction.
func Normalize(p *Payload) *Options {
	opts := &Options{
		Title:     p.Title,
		Body:      p.Body,
		Icon:      p.Icon,
		Badge:     p.Badge,
		URL:       p.URL,
		Tag:       p.Tag,
		Category:  p.Category,
		Vibration: defaultVibration,
		Actions: []Action{
			{Action: "view", Title: "View"},
			{Action: "dismiss", Title: "Dismiss"},
		},
	}
	if opts.Title == "" {
		opts.Title = defaultTitle
	}
	if opts.Icon == "" {
		opts.Icon = defaultIcon
	}
	if opts.Badge == "" {
		opts.Badge = defaultBadge
	}
	if opts.URL == "" {
		opts.URL = defaultURL
	}
	if opts.Category == CategoryEmergencies {
		opts.RequireInteraction = true
	}
	return opts
}

// Click routes a notification click. openClients lists the URLs of
// currently open page clients.
func Click(action, url string, openClients []string) ClickDecision {
	if action == "dismiss" {
		return ClickDecision{Kind: CloseOnly}
	}
	if url == "" {
		url = defaultURL
	}
	for _, open := range openClients {
		if open == url {
			return ClickDecision{Kind: FocusExisting, URL: url}
		}
	}
	return ClickDecision{Kind: OpenWindow, URL: url}
}

// subscription is the re-registration payload forwarded to the server.
type subscription struct {
	Endpoint string `json:"endpoint"`
	Key      string `json:"key"`
}

// SubscriptionChange re-subscribes against the push service and
// forwards the new subscription to the configured server endpoint.
// Failures are returned for logging, never retried here.
func (m *Manager) SubscriptionChange(ctx context.Context) error {
	if m.cfg.VAPIDPublicKey == "" {
		logging.Warn().Msg("subscription change ignored: no VAPID public key configured")
		return nil
	}

	body, err := json.Marshal(map[string]string{"applicationServerKey": m.cfg.VAPIDPublicKey})
	if err != nil {
		return fmt.Errorf("marshal subscribe request: %w", err)
	}
	header := http.Header{"Content-Type": []string{"application/json"}}
	resp, err := m.fetcher.Fetch(ctx, http.MethodPost, m.cfg.ServiceURL, header, body)
	if err != nil {
		return fmt.Errorf("re-subscribe against push service: %w", err)
	}
	if !resp.OK() {
		return fmt.Errorf("push service returned status %d", resp.Status)
	}

	var sub subscription
	if err := json.Unmarshal(resp.Body, &sub); err != nil {
		return fmt.Errorf("decode push service subscription: %w", err)
	}

	raw, err := json.Marshal(&sub)
	if err != nil {
		return fmt.Errorf("marshal subscription: %w", err)
	}
	resp, err = m.fetcher.Fetch(ctx, http.MethodPost, m.fetcher.Resolve(m.cfg.SubscribeEndpoint), header, raw)
	if err != nil {
		return fmt.Errorf("forward subscription: %w", err)
	}
	if !resp.OK() {
		return fmt.Errorf("subscribe endpoint returned status %d", resp.Status)
	}

	logging.Info().Str("endpoint", sub.Endpoint).Msg("push subscription re-registered")
	return nil
}
