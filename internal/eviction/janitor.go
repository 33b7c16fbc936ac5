// Holdfast - Offline-First Edge Caching Gateway
// Copyright 2026 M. Waldrop (mwaldrop)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mwaldrop/holdfast

package eviction

import (
	"context"
	"errors"
	"fmt"

	"github.com/mwaldrop/holdfast/internal/cachestore"
	"github.com/mwaldrop/holdfast/internal/logging"
)

// Janitor runs periodic trim passes over every bounded generation.
// Strategies already trim after their own writes; the janitor catches
// entries written outside the strategy path (CACHE_URLS, crashed
// mid-eviction sequences).
type Janitor struct {
	catalog *cachestore.Catalog
	policy  Policy

	// limits maps purpose to max entries; purposes without a limit are
	// skipped.
	limits map[string]int
}

// NewJanitor builds a janitor over the given catalog.
func NewJanitor(catalog *cachestore.Catalog, policy Policy, limits map[string]int) *Janitor {
	return &Janitor{catalog: catalog, policy: policy, limits: limits}
}

// Cleanup trims every bounded generation. Per-generation failures are
// joined so one bad generation does not stop the rest.
func (j *Janitor) Cleanup(ctx context.Context) error {
	var errs []error
	for purpose, limit := range j.limits {
		if limit < 1 {
			continue
		}
		store, err := j.catalog.Open(purpose)
		if err != nil {
			errs = append(errs, fmt.Errorf("open %s: %w", purpose, err))
			continue
		}
		evicted, err := j.policy.Trim(ctx, store, limit)
		if err != nil {
			errs = append(errs, fmt.Errorf("trim %s: %w", store.Name(), err))
			continue
		}
		if evicted > 0 {
			logging.Info().Str("generation", store.Name()).Int("evicted", evicted).
				Msg("janitor trimmed generation")
		}
	}
	return errors.Join(errs...)
}
