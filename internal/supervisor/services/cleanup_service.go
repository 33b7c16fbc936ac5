// Holdfast - Offline-First Edge Caching Gateway
// Copyright 2026 M. Waldrop (mwaldrop)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mwaldrop/holdfast

package services

import (
	"context"
	"time"

	"github.com/mwaldrop/holdfast/internal/logging"
)

// Janitor matches *eviction.Janitor.
type Janitor interface {
	Cleanup(ctx context.Context) error
}

// CleanupService periodically trims every bounded cache generation back
// to its entry limit.
type CleanupService struct {
	janitor  Janitor
	interval time.Duration
}

// NewCleanupService creates the periodic cache janitor loop.
func NewCleanupService(janitor Janitor, interval time.Duration) *CleanupService {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &CleanupService{janitor: janitor, interval: interval}
}

// Serve implements suture.Service.
func (s *CleanupService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.janitor.Cleanup(ctx); err != nil {
				logging.Err(err).Msg("cache cleanup pass failed")
			}
		}
	}
}

func (s *CleanupService) String() string { return "cache-janitor" }
