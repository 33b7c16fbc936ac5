// Holdfast - Offline-First Edge Caching Gateway
// Copyright 2026 M. Waldrop (mwaldrop)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mwaldrop/holdfast

package services

import (
	"context"
	"time"

	"github.com/mwaldrop/holdfast/internal/logging"
	"github.com/mwaldrop/holdfast/internal/syncqueue"
)

// TagReplayer matches *syncqueue.Replayer.
type TagReplayer interface {
	Replay(ctx context.Context, tag string) (*syncqueue.Result, error)
}

// replayTags are the queue-backed flows attempted each pass. The
// cache-cleanup tag belongs to CleanupService, not here.
var replayTags = []string{
	syncqueue.TagOfflineData,
	syncqueue.TagNewsletter,
	syncqueue.TagPreferences,
}

// ReplayService periodically drains the background-sync queue. Each
// tick is one pass per flow; failed items stay queued for the next
// tick.
type ReplayService struct {
	replayer TagReplayer
	interval time.Duration
}

// NewReplayService creates the periodic replay loop.
func NewReplayService(replayer TagReplayer, interval time.Duration) *ReplayService {
	if interval <= 0 {
		interval = time.Minute
	}
	return &ReplayService{replayer: replayer, interval: interval}
}

// Serve implements suture.Service.
func (s *ReplayService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.pass(ctx)
		}
	}
}

func (s *ReplayService) pass(ctx context.Context) {
	for _, tag := range replayTags {
		result, err := s.replayer.Replay(ctx, tag)
		if err != nil {
			logging.Err(err).Str("tag", tag).Msg("replay pass failed")
			continue
		}
		if result.Attempted > 0 {
			logging.Info().
				Str("tag", tag).
				Int("attempted", result.Attempted).
				Int("succeeded", result.Succeeded).
				Int("failed", result.Failed).
				Msg("replay pass complete")
		}
	}
}

func (s *ReplayService) String() string { return "sync-replay" }
