// Holdfast - Offline-First Edge Caching Gateway
// Copyright 2026 M. Waldrop (mwaldrop)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mwaldrop/holdfast

package syncqueue

import (
	"errors"
	"fmt"
	"sync"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/mwaldrop/holdfast/internal/logging"
	"github.com/mwaldrop/holdfast/internal/metrics"
)

const (
	entryPrefix = "q:e:"
	typePrefix  = "q:t:"

	seqKey       = "q:seq"
	seqBandwidth = 64
)

// ErrClosed is returned for operations against a closed queue.
var ErrClosed = errors.New("sync queue is closed")

// ErrItemType is returned when an item carries no recognized type.
var ErrItemType = errors.New("invalid item type")

// Config holds queue settings.
type Config struct {
	// Path is the BadgerDB directory. Must differ from the response
	// cache path.
	Path string

	SyncWrites   bool
	CloseTimeout time.Duration

	// InMemory backs the queue with a non-persistent database.
	// Tests only.
	InMemory bool
}

// Queue is the durable background-sync queue.
type Queue struct {
	db  *badger.DB
	seq *badger.Sequence

	closeTimeout time.Duration

	mu     sync.RWMutex
	closed bool
}

// Open creates or reopens the queue at the configured path.
func Open(cfg *Config) (*Queue, error) {
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

	seq, err := db.GetSequence([]byte(seqKey), seqBandwidth)
	if err != nil {
		db.Close() //nolint:errcheck
		return nil, fmt.Errorf("open id sequence: %w", err)
	}

	q := &Queue{db: db, seq: seq, closeTimeout: cfg.CloseTimeout}
	logging.Info().Str("path", cfg.Path).Bool("sync_writes", cfg.SyncWrites).Msg("sync queue opened")
	return q, nil
}

func (q *Queue) checkOpen() error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrClosed
	}
	return nil
}

func entryKey(id uint64) []byte {
	return []byte(fmt.Sprintf("%s%016x", entryPrefix, id))
}

func typeKey(itemType string, id uint64) []byte {
	return []byte(fmt.Sprintf("%s%s:%016x", typePrefix, itemType, id))
}

func validType(t string) bool {
	switch t {
	case TypeOfflineData, TypeNewsletter, TypePreferences:
		return true
	}
	return false
}

// Enqueue persists an item and assigns its id. A zero Timestamp is
// filled with the current time.
func (q *Queue) Enqueue(item *Item) (uint64, error) {
	if err := q.checkOpen(); err != nil {
		return 0, err
	}
	if !validType(item.Type) {
		return 0, fmt.Errorf("%w: %q", ErrItemType, item.Type)
	}

	id, err := q.seq.Next()
	if err != nil {
		return 0, fmt.Errorf("next id: %w", err)
	}
	item.ID = id
	if item.Timestamp.IsZero() {
		item.Timestamp = time.Now().UTC()
	}

	raw, err := json.Marshal(item)
	if err != nil {
		return 0, fmt.Errorf("marshal item: %w", err)
	}

	err = q.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(entryKey(id), raw); err != nil {
			return err
		}
		return txn.Set(typeKey(item.Type, id), nil)
	})
	if err != nil {
		return 0, fmt.Errorf("enqueue item %d: %w", id, err)
	}

	metrics.QueueEnqueued.WithLabelValues(item.Type).Inc()
	metrics.QueuePending.WithLabelValues(item.Type).Inc()
	logging.Debug().Uint64("id", id).Str("type", item.Type).Msg("item enqueued")
	return id, nil
}

// Items returns pending items in id (enqueue) order. A non-empty
// itemType filters via the secondary index.
func (q *Queue) Items(itemType string) ([]*Item, error) {
	if err := q.checkOpen(); err != nil {
		return nil, err
	}

	var items []*Item
	err := q.db.View(func(txn *badger.Txn) error {
		if itemType == "" {
			return q.scanAll(txn, &items)
		}
		return q.scanType(txn, itemType, &items)
	})
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	return items, nil
}

func (q *Queue) scanAll(txn *badger.Txn, items *[]*Item) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(entryPrefix)
	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Rewind(); it.Valid(); it.Next() {
		var item Item
		err := it.Item().Value(func(val []byte) error {
			return json.Unmarshal(val, &item)
		})
		if err != nil {
			logging.Warn().Err(err).Str("key", string(it.Item().Key())).Msg("skipping corrupt queue item")
			continue
		}
		*items = append(*items, &item)
	}
	return nil
}

func (q *Queue) scanType(txn *badger.Txn, itemType string, items *[]*Item) error {
	prefix := []byte(typePrefix + itemType + ":")
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Rewind(); it.Valid(); it.Next() {
		idHex := string(it.Item().Key()[len(prefix):])
		var id uint64
		if _, err := fmt.Sscanf(idHex, "%016x", &id); err != nil {
			continue
		}
		entry, err := txn.Get(entryKey(id))
		if err != nil {
			// Dangling index; the entry was removed.
			continue
		}
		var item Item
		err = entry.Value(func(val []byte) error {
			return json.Unmarshal(val, &item)
		})
		if err != nil {
			logging.Warn().Err(err).Uint64("id", id).Msg("skipping corrupt queue item")
			continue
		}
		*items = append(*items, &item)
	}
	return nil
}

// Remove deletes one item by id. Removing an absent id is not an
// error, so replay passes stay idempotent.
func (q *Queue) Remove(id uint64) error {
	if err := q.checkOpen(); err != nil {
		return err
	}

	var itemType string
	err := q.db.Update(func(txn *badger.Txn) error {
		entry, err := txn.Get(entryKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		var item Item
		if err := entry.Value(func(val []byte) error {
			return json.Unmarshal(val, &item)
		}); err == nil {
			itemType = item.Type
		}
		if err := txn.Delete(entryKey(id)); err != nil {
			return err
		}
		if itemType != "" {
			return txn.Delete(typeKey(itemType, id))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("remove item %d: %w", id, err)
	}
	if itemType != "" {
		metrics.QueuePending.WithLabelValues(itemType).Dec()
	}
	return nil
}

// Stats returns the pending item count per type.
func (q *Queue) Stats() (map[string]int, error) {
	items, err := q.Items("")
	if err != nil {
		return nil, err
	}
	stats := make(map[string]int)
	for _, item := range items {
		stats[item.Type]++
	}
	return stats, nil
}

// Close releases the id sequence and shuts the database down, bounded
// by the configured close timeout.
func (q *Queue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	if err := q.seq.Release(); err != nil {
		logging.Warn().Err(err).Msg("release queue sequence on close")
	}
	timeout := q.closeTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	q.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		done <- q.db.Close()
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("close BadgerDB: %w", err)
		}
		logging.Info().Msg("sync queue closed")
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("badgerdb close timeout after %v", timeout)
	}
}
