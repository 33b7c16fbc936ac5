// Holdfast - Offline-First Edge Caching Gateway
// Copyright 2026 M. Waldrop (mwaldrop)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mwaldrop/holdfast

package services

import "context"

// ContextHub matches *hub.Hub's RunWithContext method without importing
// the hub package.
type ContextHub interface {
	RunWithContext(ctx context.Context) error
}

// HubService supervises the page-client hub. RunWithContext already
// follows the suture.Service pattern, so this only adds a name.
type HubService struct {
	hub ContextHub
}

// NewHubService wraps the hub for supervision.
func NewHubService(hub ContextHub) *HubService {
	return &HubService{hub: hub}
}

// Serve implements suture.Service.
func (s *HubService) Serve(ctx context.Context) error {
	return s.hub.RunWithContext(ctx)
}

func (s *HubService) String() string { return "page-client-hub" }
