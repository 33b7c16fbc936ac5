// Holdfast - Offline-First Edge Caching Gateway
// Copyright 2026 M. Waldrop (mwaldrop)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mwaldrop/holdfast

package cachestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

// Store is one named cache generation.
//
// Entries keep insertion order via a persisted per-generation sequence:
// the entry key embeds a fixed-width hex sequence number, so BadgerDB's
// lexicographic iteration yields oldest-first enumeration without any
// secondary ordering index.
type Store struct {
	catalog *Catalog
	name    string
	seq     *badger.Sequence
}

// Name returns the full generation name.
func (s *Store) Name() string { return s.name }

func (s *Store) entryKey(seq string) []byte {
	return []byte(keyspacePrefix + s.name + ":e:" + seq)
}

func (s *Store) indexKey(requestKey string) []byte {
	return []byte(keyspacePrefix + s.name + ":k:" + requestKey)
}

func (s *Store) entryPrefix() []byte {
	return []byte(keyspacePrefix + s.name + ":e:")
}

func (s *Store) indexPrefix() []byte {
	return []byte(keyspacePrefix + s.name + ":k:")
}

func (s *Store) checkOpen() error {
	s.catalog.mu.RLock()
	defer s.catalog.mu.RUnlock()
	if s.catalog.closed {
		return ErrClosed
	}
	return nil
}

// Match returns the stored entry for a request key, if any.
// Reads never reorder entries; a hit does not bump insertion order.
func (s *Store) Match(requestKey string) (*Entry, bool, error) {
	if err := s.checkOpen(); err != nil {
		return nil, false, err
	}

	var entry *Entry
	err := s.catalog.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(s.indexKey(requestKey))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("get index: %w", err)
		}

		var seq string
		if err := item.Value(func(val []byte) error {
			seq = string(val)
			return nil
		}); err != nil {
			return fmt.Errorf("read index: %w", err)
		}

		entryItem, err := txn.Get(s.entryKey(seq))
		if errors.Is(err, badger.ErrKeyNotFound) {
			// Dangling index left by a kill between delete and re-insert.
			// Treated as a miss; the next Put repairs it.
			return nil
		}
		if err != nil {
			return fmt.Errorf("get entry: %w", err)
		}

		var e Entry
		if err := entryItem.Value(func(val []byte) error {
			return json.Unmarshal(val, &e)
		}); err != nil {
			return fmt.Errorf("unmarshal entry: %w", err)
		}
		entry = &e
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return entry, entry != nil, nil
}

// Put stores an entry under its request key. An existing entry for the
// same key is replaced and re-inserted at the tail (last-write-wins).
func (s *Store) Put(ctx context.Context, entry *Entry) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if entry == nil {
		return ErrNilEntry
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if entry.StoredAt.IsZero() {
		entry.StoredAt = time.Now().UTC()
	}

	next, err := s.seq.Next()
	if err != nil {
		return fmt.Errorf("next sequence: %w", err)
	}
	seq := fmt.Sprintf("%016x", next)

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}

	return s.catalog.db.Update(func(txn *badger.Txn) error {
		// Drop the superseded snapshot so the key occupies exactly one
		// position in insertion order.
		item, err := txn.Get(s.indexKey(entry.Key))
		if err == nil {
			var oldSeq string
			if err := item.Value(func(val []byte) error {
				oldSeq = string(val)
				return nil
			}); err != nil {
				return fmt.Errorf("read old index: %w", err)
			}
			if err := txn.Delete(s.entryKey(oldSeq)); err != nil {
				return fmt.Errorf("delete old entry: %w", err)
			}
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("get old index: %w", err)
		}

		if err := txn.Set(s.entryKey(seq), data); err != nil {
			return fmt.Errorf("set entry: %w", err)
		}
		if err := txn.Set(s.indexKey(entry.Key), []byte(seq)); err != nil {
			return fmt.Errorf("set index: %w", err)
		}
		return nil
	})
}

// Delete removes the entry for a request key.
// Returns whether an entry existed.
func (s *Store) Delete(requestKey string) (bool, error) {
	if err := s.checkOpen(); err != nil {
		return false, err
	}

	found := false
	err := s.catalog.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(s.indexKey(requestKey))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("get index: %w", err)
		}

		var seq string
		if err := item.Value(func(val []byte) error {
			seq = string(val)
			return nil
		}); err != nil {
			return fmt.Errorf("read index: %w", err)
		}

		if err := txn.Delete(s.entryKey(seq)); err != nil {
			return fmt.Errorf("delete entry: %w", err)
		}
		if err := txn.Delete(s.indexKey(requestKey)); err != nil {
			return fmt.Errorf("delete index: %w", err)
		}
		found = true
		return nil
	})
	return found, err
}

// Keys returns every request key in insertion order, oldest first.
// The eviction policy relies on this ordering.
func (s *Store) Keys() ([]string, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	var keys []string
	err := s.catalog.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := s.entryPrefix()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var e Entry
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &e)
			}); err != nil {
				// Skip a corrupt snapshot rather than failing the scan.
				continue
			}
			keys = append(keys, e.Key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return keys, nil
}

// Count returns the number of stored entries.
func (s *Store) Count() (int, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}

	count := 0
	err := s.catalog.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := s.indexPrefix()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("count entries: %w", err)
	}
	return count, nil
}

// Clear removes every entry from this generation.
func (s *Store) Clear() error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if err := s.catalog.db.DropPrefix([]byte(keyspacePrefix + s.name + ":e:")); err != nil {
		return fmt.Errorf("clear entries: %w", err)
	}
	if err := s.catalog.db.DropPrefix([]byte(keyspacePrefix + s.name + ":k:")); err != nil {
		return fmt.Errorf("clear index: %w", err)
	}
	return nil
}
