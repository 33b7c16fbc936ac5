// Holdfast - Offline-First Edge Caching Gateway
// Copyright 2026 M. Waldrop (mwaldrop)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mwaldrop/holdfast

package cachestore

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/mwaldrop/holdfast/internal/logging"
)

// Errors
var (
	// ErrClosed is returned when the catalog has been closed.
	ErrClosed = errors.New("cache catalog is closed")

	// ErrNilEntry is returned when a nil entry is passed to Put.
	ErrNilEntry = errors.New("entry cannot be nil")
)

const keyspacePrefix = "g:"

// Config holds catalog settings.
type Config struct {
	// Path is the BadgerDB directory. Ignored when InMemory is set.
	Path string

	// Prefix and Version form generation names: {prefix}-{purpose}-{version}.
	Prefix  string
	Version string

	// SyncWrites enables fsync on every write.
	SyncWrites bool

	// CloseTimeout bounds Close; BadgerDB compaction can stall shutdown.
	CloseTimeout time.Duration

	// InMemory runs BadgerDB without disk persistence. Tests only.
	InMemory bool
}

// Validate checks the catalog configuration.
func (c *Config) Validate() error {
	if !c.InMemory && c.Path == "" {
		return fmt.Errorf("cache store path is required")
	}
	if c.Prefix == "" || c.Version == "" {
		return fmt.Errorf("cache prefix and version are required")
	}
	if strings.ContainsAny(c.Prefix+c.Version, ": ") {
		return fmt.Errorf("cache prefix and version must not contain ':' or spaces")
	}
	return nil
}

// Catalog owns the BadgerDB database holding every cache generation.
//
// All Store handles share the catalog's database; generations are
// separated by key prefix, not by separate databases, so activation can
// enumerate and delete stale generations with a single key scan.
type Catalog struct {
	db     *badger.DB
	config Config

	mu     sync.RWMutex
	closed bool
	stores map[string]*Store
}

// Open creates a Catalog backed by BadgerDB at the configured path.
func Open(cfg *Config) (*Catalog, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid cache store config: %w", err)
	}

	opts := badger.DefaultOptions(cfg.Path)
	opts.SyncWrites = cfg.SyncWrites
	opts.InMemory = cfg.InMemory
	if cfg.InMemory {
		opts.Dir = ""
		opts.ValueDir = ""
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}

	c := &Catalog{
		db:     db,
		config: *cfg,
		stores: make(map[string]*Store),
	}

	logging.Info().
		Str("path", cfg.Path).
		Str("prefix", cfg.Prefix).
		Str("version", cfg.Version).
		Bool("sync_writes", cfg.SyncWrites).
		Msg("cache catalog opened")
	return c, nil
}

// GenerationName returns the versioned name for a purpose,
// e.g. holdfast-image-v3.
func (c *Catalog) GenerationName(purpose string) string {
	return fmt.Sprintf("%s-%s-%s", c.config.Prefix, purpose, c.config.Version)
}

// Prefix returns the configured generation name prefix.
func (c *Catalog) Prefix() string { return c.config.Prefix }

// Version returns the configured generation version tag.
func (c *Catalog) Version() string { return c.config.Version }

// Open returns the Store for a purpose under the current version,
// creating the handle on first use.
func (c *Catalog) Open(purpose string) (*Store, error) {
	return c.OpenNamed(c.GenerationName(purpose))
}

// OpenNamed returns the Store for an explicit generation name. Used by
// administrative commands that target a caller-specified generation.
func (c *Catalog) OpenNamed(name string) (*Store, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}

	if s, ok := c.stores[name]; ok {
		return s, nil
	}

	seq, err := c.db.GetSequence([]byte(keyspacePrefix+name+":seq"), 64)
	if err != nil {
		return nil, fmt.Errorf("open sequence for %s: %w", name, err)
	}

	s := &Store{catalog: c, name: name, seq: seq}
	c.stores[name] = s
	return s, nil
}

// Names lists every generation present on disk, including stale versions
// left behind by earlier deployments. Sorted for deterministic scans.
func (c *Catalog) Names() ([]string, error) {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return nil, ErrClosed
	}
	c.mu.RUnlock()

	seen := make(map[string]struct{})
	err := c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(keyspacePrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := string(it.Item().Key())
			rest := key[len(keyspacePrefix):]
			// Generation names never contain ':' (validated in config),
			// so the name is everything up to the first separator.
			if idx := strings.IndexByte(rest, ':'); idx > 0 {
				seen[rest[:idx]] = struct{}{}
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan generation names: %w", err)
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// MatchAny scans all generations and returns the first entry stored for
// the request key, along with the generation name that held it.
// Generations are scanned in sorted-name order.
func (c *Catalog) MatchAny(key string) (*Entry, string, bool, error) {
	names, err := c.Names()
	if err != nil {
		return nil, "", false, err
	}

	for _, name := range names {
		store, err := c.OpenNamed(name)
		if err != nil {
			return nil, "", false, err
		}
		entry, found, err := store.Match(key)
		if err != nil {
			return nil, "", false, err
		}
		if found {
			return entry, name, true, nil
		}
	}
	return nil, "", false, nil
}

// DeleteGeneration removes every key belonging to a generation.
func (c *Catalog) DeleteGeneration(name string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if s, ok := c.stores[name]; ok {
		if err := s.seq.Release(); err != nil {
			logging.Warn().Err(err).Str("generation", name).Msg("release sequence before delete")
		}
		delete(c.stores, name)
	}
	c.mu.Unlock()

	if err := c.db.DropPrefix([]byte(keyspacePrefix + name + ":")); err != nil {
		return fmt.Errorf("drop generation %s: %w", name, err)
	}

	logging.Info().Str("generation", name).Msg("cache generation deleted")
	return nil
}

// DeleteAll removes every generation. Administrative command.
func (c *Catalog) DeleteAll() error {
	names, err := c.Names()
	if err != nil {
		return err
	}
	for _, name := range names {
		if err := c.DeleteGeneration(name); err != nil {
			return err
		}
	}
	return nil
}

// DeleteEverywhere removes one request key from every generation.
// Returns the number of generations that held the key.
func (c *Catalog) DeleteEverywhere(key string) (int, error) {
	names, err := c.Names()
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, name := range names {
		store, err := c.OpenNamed(name)
		if err != nil {
			return removed, err
		}
		found, err := store.Delete(key)
		if err != nil {
			return removed, err
		}
		if found {
			removed++
		}
	}
	return removed, nil
}

// Close releases sequences and shuts the database down, bounded by the
// configured close timeout.
func (c *Catalog) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	for _, s := range c.stores {
		if err := s.seq.Release(); err != nil {
			logging.Warn().Err(err).Str("generation", s.name).Msg("release sequence on close")
		}
	}
	c.stores = nil
	timeout := c.config.CloseTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	c.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		done <- c.db.Close()
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("close BadgerDB: %w", err)
		}
		logging.Info().Msg("cache catalog closed")
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("badgerdb close timeout after %v", timeout)
	}
}
