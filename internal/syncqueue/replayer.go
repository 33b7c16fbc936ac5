// Holdfast - Offline-First Edge Caching Gateway
// Copyright 2026 M. Waldrop (mwaldrop)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mwaldrop/holdfast

package syncqueue

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mwaldrop/holdfast/internal/logging"
	"github.com/mwaldrop/holdfast/internal/metrics"
	"github.com/mwaldrop/holdfast/internal/strategy"
)

// ErrUnknownTag is returned for an unrecognized sync tag.
var ErrUnknownTag = errors.New("unknown sync tag")

// Janitor trims cache generations back to their entry limits.
// Satisfied by *eviction.Janitor.
type Janitor interface {
	Cleanup(ctx context.Context) error
}

// Result summarizes one replay pass.
type Result struct {
	Tag       string `json:"tag"`
	Attempted int    `json:"attempted"`
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`
}

// Notifier announces a completed replay pass to page clients.
// Satisfied by *hub.Hub.
type Notifier interface {
	Broadcast(msgType string, data any)
}

// Replayer re-issues queued requests. One Replay call is one pass:
// every pending item of the selected flow is attempted exactly once.
type Replayer struct {
	queue   *Queue
	fetcher strategy.Fetcher
	janitor Janitor
	notify  Notifier

	newsletterEndpoint  string
	preferencesEndpoint string
}

// NewReplayer builds a replayer. janitor and notify may be nil.
func NewReplayer(queue *Queue, fetcher strategy.Fetcher, janitor Janitor, notify Notifier, newsletterEndpoint, preferencesEndpoint string) *Replayer {
	return &Replayer{
		queue:               queue,
		fetcher:             fetcher,
		janitor:             janitor,
		notify:              notify,
		newsletterEndpoint:  newsletterEndpoint,
		preferencesEndpoint: preferencesEndpoint,
	}
}

// Replay runs the flow selected by tag.
func (r *Replayer) Replay(ctx context.Context, tag string) (*Result, error) {
	start := time.Now()
	defer func() {
		metrics.ReplayDuration.Observe(time.Since(start).Seconds())
	}()

	switch tag {
	case TagOfflineData:
		return r.replayItems(ctx, tag, TypeOfflineData, r.replayRequest)
	case TagNewsletter:
		return r.replayItems(ctx, tag, TypeNewsletter, r.replayNewsletter)
	case TagPreferences:
		return r.replayItems(ctx, tag, TypePreferences, r.replayPreferences)
	case TagCacheCleanup:
		return r.runCleanup(ctx)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTag, tag)
	}
}

// replayItems attempts every pending item of one type. Items are
// independent: success removes the item, failure leaves it in place
// and the pass continues.
func (r *Replayer) replayItems(ctx context.Context, tag, itemType string, attempt func(ctx context.Context, item *Item) error) (*Result, error) {
	items, err := r.queue.Items(itemType)
	if err != nil {
		return nil, fmt.Errorf("list %s items: %w", itemType, err)
	}

	res := &Result{Tag: tag, Attempted: len(items)}
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := attempt(ctx, item); err != nil {
			res.Failed++
			metrics.RecordReplay(itemType, "failure")
			logging.Debug().Err(err).Uint64("id", item.ID).Str("type", itemType).
				Msg("replay attempt failed, item kept")
			continue
		}
		if err := r.queue.Remove(item.ID); err != nil {
			// The request succeeded but the item survived; the next
			// pass will re-issue it. At-least-once, not exactly-once.
			res.Failed++
			metrics.RecordReplay(itemType, "remove_failed")
			logging.Err(err).Uint64("id", item.ID).Msg("failed to remove replayed item")
			continue
		}
		res.Succeeded++
		metrics.RecordReplay(itemType, "success")
	}

	logging.Info().Str("tag", tag).Int("attempted", res.Attempted).
		Int("succeeded", res.Succeeded).Int("failed", res.Failed).Msg("replay pass complete")
	if r.notify != nil && res.Attempted > 0 {
		r.notify.Broadcast("sync-complete", res)
	}
	return res, nil
}

// replayRequest re-issues the item's original request.
func (r *Replayer) replayRequest(ctx context.Context, item *Item) error {
	method := item.Method
	if method == "" {
		method = http.MethodPost
	}
	resp, err := r.fetcher.Fetch(ctx, method, r.target(item.URL), item.Headers, item.Body)
	if err != nil {
		return err
	}
	if !resp.OK() {
		return fmt.Errorf("replay got status %d", resp.Status)
	}
	return nil
}

func (r *Replayer) replayNewsletter(ctx context.Context, item *Item) error {
	return r.postJSON(ctx, http.MethodPost, r.newsletterEndpoint, item)
}

func (r *Replayer) replayPreferences(ctx context.Context, item *Item) error {
	return r.postJSON(ctx, http.MethodPut, r.preferencesEndpoint, item)
}

func (r *Replayer) postJSON(ctx context.Context, method, endpoint string, item *Item) error {
	header := http.Header{"Content-Type": []string{"application/json"}}
	resp, err := r.fetcher.Fetch(ctx, method, r.target(endpoint), header, item.Data)
	if err != nil {
		return err
	}
	if !resp.OK() {
		return fmt.Errorf("endpoint %s returned status %d", endpoint, resp.Status)
	}
	return nil
}

// target resolves gateway-relative URLs against the origin; absolute
// URLs pass through unchanged.
func (r *Replayer) target(u string) string {
	if strings.HasPrefix(u, "/") {
		return r.fetcher.Resolve(u)
	}
	return u
}

// runCleanup runs the janitor trim pass. Not a replay: the queue is
// untouched.
func (r *Replayer) runCleanup(ctx context.Context) (*Result, error) {
	if r.janitor == nil {
		return &Result{Tag: TagCacheCleanup}, nil
	}
	if err := r.janitor.Cleanup(ctx); err != nil {
		return nil, fmt.Errorf("cache cleanup: %w", err)
	}
	return &Result{Tag: TagCacheCleanup, Attempted: 1, Succeeded: 1}, nil
}
