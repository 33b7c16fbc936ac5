// Holdfast - Offline-First Edge Caching Gateway
// Copyright 2026 M. Waldrop (mwaldrop)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mwaldrop/holdfast

/*
Package cachestore provides durable, versioned response caches on BadgerDB.

A Catalog owns one BadgerDB database and hands out named generations
(Store values). Generation names follow the {prefix}-{purpose}-{version}
convention; bumping the configured version makes every prior generation
stale, and the lifecycle manager deletes stale generations during its
activate transition.

Each Store maps a request key (method + normalized URL) to a stored
response snapshot. Insertion order is preserved through a persisted
per-generation sequence and is the sole basis for eviction ordering:
the trim policy removes oldest entries first, and reads never reorder
entries. Overwriting an existing key re-inserts it at the tail
(last-write-wins).

Key layout inside BadgerDB:

	g:<generation>:e:<seq>  -> entry snapshot (JSON)
	g:<generation>:k:<key>  -> seq (index for Match/Delete)
	g:<generation>:seq      -> badger.Sequence state

Every operation is durable and individually atomic; the process may be
killed between any two operations and the next start re-derives state
from the keys alone.
*/
package cachestore
