// Holdfast - Offline-First Edge Caching Gateway
// Copyright 2026 M. Waldrop (mwaldrop)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mwaldrop/holdfast

package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/mwaldrop/holdfast/internal/lifecycle"
	"github.com/mwaldrop/holdfast/internal/logging"
	"github.com/mwaldrop/holdfast/internal/middleware"
	"github.com/mwaldrop/holdfast/internal/syncqueue"
)

// handleHealth reports liveness plus the lifecycle state.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	data := map[string]any{
		"status": "ok",
	}
	if s.lifecycle != nil {
		data["lifecycle"] = s.lifecycle.State()
	}
	if s.catalog != nil {
		data["cache_version"] = s.catalog.Version()
	}
	rw.Success(data)
}

// cacheStats is one generation's entry count.
type cacheStats struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// statsData is the /api/v1/stats payload.
type statsData struct {
	Lifecycle lifecycle.State            `json:"lifecycle"`
	Breaker   string                     `json:"breaker"`
	Clients   int                        `json:"clients"`
	Queue     map[string]int             `json:"queue"`
	Caches    []cacheStats               `json:"caches"`
	Endpoints []middleware.EndpointStats `json:"endpoints"`
}

// handleStats aggregates queue depth, cache sizes, breaker state, and
// endpoint latency.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	data := statsData{
		Breaker:   "unknown",
		Endpoints: s.perf.Stats(),
	}
	if s.lifecycle != nil {
		data.Lifecycle = s.lifecycle.State()
	}
	if s.origin != nil {
		data.Breaker = s.origin.BreakerState()
	}
	if s.hub != nil {
		data.Clients = s.hub.ClientCount()
	}

	if s.queue != nil {
		pending, err := s.queue.Stats()
		if err != nil {
			logging.Err(err).Msg("failed to read queue stats")
			rw.InternalError("failed to read queue stats")
			return
		}
		data.Queue = pending
	}

	if s.catalog != nil {
		names, err := s.catalog.Names()
		if err != nil {
			logging.Err(err).Msg("failed to list cache generations")
			rw.InternalError("failed to list cache generations")
			return
		}
		for _, name := range names {
			store, err := s.catalog.OpenNamed(name)
			if err != nil {
				continue
			}
			count, err := store.Count()
			if err != nil {
				continue
			}
			data.Caches = append(data.Caches, cacheStats{Name: name, Count: count})
		}
	}

	rw.Success(data)
}

// handleMessage executes one lifecycle command.
func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var cmd lifecycle.Command
	if err := decodeJSON(w, r, &cmd); err != nil {
		rw.BadRequest(err.Error())
		return
	}
	if err := s.validate.Struct(cmd); err != nil {
		rw.ValidationFailed("invalid command", validationDetails(err))
		return
	}

	if err := s.lifecycle.HandleCommand(r.Context(), cmd); err != nil {
		if errors.Is(err, lifecycle.ErrUnknownCommand) {
			rw.BadRequest("unknown command type: " + cmd.Type)
			return
		}
		logging.Err(err).Str("command", cmd.Type).Msg("command failed")
		rw.InternalError("command failed")
		return
	}

	rw.Success(map[string]any{
		"command": cmd.Type,
		"state":   s.lifecycle.State(),
	})
}

// handleSync runs one replay pass for the requested tag.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req syncRequest
	if err := decodeJSON(w, r, &req); err != nil {
		rw.BadRequest(err.Error())
		return
	}
	if err := s.validate.Struct(req); err != nil {
		rw.ValidationFailed("invalid sync request", validationDetails(err))
		return
	}

	result, err := s.replayer.Replay(r.Context(), req.Tag)
	if err != nil {
		if errors.Is(err, syncqueue.ErrUnknownTag) {
			rw.BadRequest("unknown sync tag: " + req.Tag)
			return
		}
		logging.Err(err).Str("tag", req.Tag).Msg("replay pass failed")
		rw.InternalError("replay pass failed")
		return
	}

	rw.Success(result)
}

// handleQueue enqueues one item for background replay.
func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var item syncqueue.Item
	if err := decodeJSON(w, r, &item); err != nil {
		rw.BadRequest(err.Error())
		return
	}

	id, err := s.queue.Enqueue(&item)
	if err != nil {
		switch {
		case errors.Is(err, syncqueue.ErrItemType):
			rw.BadRequest("invalid item type: " + item.Type)
		case errors.Is(err, syncqueue.ErrClosed):
			rw.ServiceUnavailable("sync queue is closed")
		default:
			logging.Err(err).Msg("enqueue failed")
			rw.InternalError("enqueue failed")
		}
		return
	}

	rw.Created(map[string]any{
		"id":   id,
		"type": item.Type,
	})
}

// handlePush accepts a push payload and broadcasts the normalized
// notification to page clients.
func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	body := http.MaxBytesReader(w, r.Body, maxRequestBody)
	payload, err := io.ReadAll(body)
	if err != nil {
		rw.BadRequest("failed to read payload")
		return
	}

	opts, ok := s.notify.Receive(payload)
	if !ok {
		rw.BadRequest("invalid push payload")
		return
	}
	rw.Success(opts)
}

// handleSubscriptionChange re-registers the push subscription with the
// origin.
func (s *Server) handleSubscriptionChange(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	if err := s.notify.SubscriptionChange(r.Context()); err != nil {
		logging.Err(err).Msg("subscription change failed")
		rw.Error(http.StatusBadGateway, ErrCodeExternalService, "re-subscription failed")
		return
	}
	rw.Success(map[string]any{"resubscribed": true})
}
