// Holdfast - Offline-First Edge Caching Gateway
// Copyright 2026 M. Waldrop (mwaldrop)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mwaldrop/holdfast

// Package lifecycle drives the gateway's install/activate state machine
// and the administrative command channel. Install pre-populates the
// static generation from a fixed manifest with all-or-nothing
// semantics; activate deletes every generation carrying the configured
// prefix but a stale version tag.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/mwaldrop/holdfast/internal/cachestore"
	"github.com/mwaldrop/holdfast/internal/logging"
	"github.com/mwaldrop/holdfast/internal/metrics"
	"github.com/mwaldrop/holdfast/internal/strategy"
)

// State is a phase of the gateway lifecycle.
type State string

const (
	StateInstalling State = "installing"
	StateWaiting    State = "waiting"
	StateActive     State = "active"
	StateRedundant  State = "redundant"
)

// Administrative command types.
const (
	CmdSkipWaiting     = "SKIP_WAITING"
	CmdClearAllCache   = "CLEAR_ALL_CACHE"
	CmdCacheURLs       = "CACHE_URLS"
	CmdRemoveFromCache = "REMOVE_FROM_CACHE"
)

// ErrUnknownCommand is returned for an unrecognized command type.
var ErrUnknownCommand = errors.New("unknown command type")

// ErrInstallFailed wraps the first failure of an install attempt.
var ErrInstallFailed = errors.New("install failed")

// Command is one administrative message. Commands are handled
// idempotently regardless of the current lifecycle state.
type Command struct {
	Type string `json:"type" validate:"required"`

	// URLs and CacheName apply to CACHE_URLS.
	URLs      []string `json:"urls,omitempty"`
	CacheName string   `json:"cacheName,omitempty"`

	// URL applies to REMOVE_FROM_CACHE.
	URL string `json:"url,omitempty"`
}

// Broadcaster announces lifecycle transitions to connected page
// clients. Satisfied by *hub.Hub.
type Broadcaster interface {
	Broadcast(msgType string, data any)
}

// Manager owns the lifecycle state machine.
type Manager struct {
	catalog  *cachestore.Catalog
	fetcher  strategy.Fetcher
	announce Broadcaster

	manifest []string

	mu    sync.RWMutex
	state State
}

// NewManager builds a lifecycle manager. announce may be nil.
func NewManager(catalog *cachestore.Catalog, fetcher strategy.Fetcher, manifest []string, announce Broadcaster) *Manager {
	return &Manager{
		catalog:  catalog,
		fetcher:  fetcher,
		announce: announce,
		manifest: manifest,
		state:    StateInstalling,
	}
}

// State returns the current lifecycle phase.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
	metrics.SetLifecycleState(string(s))
	logging.Info().Str("state", string(s)).Msg("lifecycle transition")
}

// Install pre-caches the asset manifest into the static generation.
// All-or-nothing: any fetch or store failure fails the install and no
// partial static cache remains. On success the manager enters Waiting.
func (m *Manager) Install(ctx context.Context) error {
	m.setState(StateInstalling)

	store, err := m.catalog.Open(cachestore.PurposeStatic)
	if err != nil {
		return fmt.Errorf("%w: open static generation: %w", ErrInstallFailed, err)
	}

	// Fetch everything before storing anything so a mid-manifest
	// network failure cannot leave a partial cache behind.
	entries := make([]*cachestore.Entry, 0, len(m.manifest))
	for _, path := range m.manifest {
		resp, err := m.fetcher.Fetch(ctx, http.MethodGet, m.fetcher.Resolve(path), nil, nil)
		if err != nil {
			metrics.RecordPrecacheFailure()
			return fmt.Errorf("%w: fetch %s: %w", ErrInstallFailed, path, err)
		}
		if !resp.OK() {
			metrics.RecordPrecacheFailure()
			return fmt.Errorf("%w: fetch %s: status %d", ErrInstallFailed, path, resp.Status)
		}
		entries = append(entries, resp.Entry(cachestore.RequestKey(http.MethodGet, path)))
	}

	for _, entry := range entries {
		if err := store.Put(ctx, entry); err != nil {
			if clearErr := store.Clear(); clearErr != nil {
				logging.Err(clearErr).Msg("failed to clear partial static cache")
			}
			metrics.RecordPrecacheFailure()
			return fmt.Errorf("%w: store %s: %w", ErrInstallFailed, entry.Key, err)
		}
	}

	logging.Info().Int("assets", len(entries)).Msg("precache complete")
	m.setState(StateWaiting)
	return nil
}

// Activate deletes every generation whose name carries the catalog
// prefix but a version tag other than the current one, then announces
// the activation so page clients are claimed immediately.
func (m *Manager) Activate(ctx context.Context) error {
	names, err := m.catalog.Names()
	if err != nil {
		return fmt.Errorf("enumerate generations: %w", err)
	}

	prefix := m.catalog.Prefix() + "-"
	suffix := "-" + m.catalog.Version()
	deleted := 0
	for _, name := range names {
		if !strings.HasPrefix(name, prefix) || strings.HasSuffix(name, suffix) {
			continue
		}
		if err := m.catalog.DeleteGeneration(name); err != nil {
			logging.Err(err).Str("generation", name).Msg("failed to delete stale generation")
			continue
		}
		deleted++
		logging.Info().Str("generation", name).Msg("deleted stale generation")
	}
	metrics.RecordGenerationsDeleted(deleted)

	m.setState(StateActive)
	if m.announce != nil {
		m.announce.Broadcast("lifecycle", map[string]any{
			"state":   string(StateActive),
			"version": m.catalog.Version(),
		})
	}
	return nil
}

// HandleCommand executes one administrative command. Idempotent: a
// repeat of any command is safe.
func (m *Manager) HandleCommand(ctx context.Context, cmd Command) error {
	logging.Debug().Str("type", cmd.Type).Msg("handling admin command")

	switch cmd.Type {
	case CmdSkipWaiting:
		if m.State() == StateActive {
			return nil
		}
		return m.Activate(ctx)

	case CmdClearAllCache:
		if err := m.catalog.DeleteAll(); err != nil {
			return fmt.Errorf("clear all caches: %w", err)
		}
		logging.Info().Msg("all cache generations cleared")
		return nil

	case CmdCacheURLs:
		return m.cacheURLs(ctx, cmd.URLs, cmd.CacheName)

	case CmdRemoveFromCache:
		key := cachestore.RequestKey(http.MethodGet, cmd.URL)
		removed, err := m.catalog.DeleteEverywhere(key)
		if err != nil {
			return fmt.Errorf("remove %s: %w", cmd.URL, err)
		}
		logging.Debug().Str("url", cmd.URL).Int("removed", removed).Msg("removed from cache")
		return nil

	default:
		return fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Type)
	}
}

// cacheURLs fetches and stores an explicit URL list. Unlike install,
// items are independent: one failure is logged and the rest proceed.
func (m *Manager) cacheURLs(ctx context.Context, urls []string, cacheName string) error {
	var store *cachestore.Store
	var err error
	if cacheName != "" {
		store, err = m.catalog.OpenNamed(cacheName)
	} else {
		store, err = m.catalog.Open(cachestore.PurposeDynamic)
	}
	if err != nil {
		return fmt.Errorf("open generation: %w", err)
	}

	var failed int
	for _, u := range urls {
		resp, err := m.fetcher.Fetch(ctx, http.MethodGet, m.fetcher.Resolve(u), nil, nil)
		if err != nil || !resp.OK() {
			failed++
			logging.Debug().Str("url", u).Msg("cache-urls fetch failed")
			continue
		}
		key := cachestore.RequestKey(http.MethodGet, u)
		if err := store.Put(ctx, resp.Entry(key)); err != nil {
			failed++
			logging.Err(err).Str("url", u).Msg("cache-urls store failed")
		}
	}
	if failed > 0 {
		logging.Warn().Int("failed", failed).Int("total", len(urls)).Msg("cache-urls completed with failures")
	}
	return nil
}
