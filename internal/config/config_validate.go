// Holdfast - Offline-First Edge Caching Gateway
// Copyright 2026 M. Waldrop (mwaldrop)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mwaldrop/holdfast

package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validate checks the configuration for consistency.
// It is called by Load after all layers are merged.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateUpstream(); err != nil {
		return err
	}
	if err := c.validateCache(); err != nil {
		return err
	}
	if err := c.validatePrecache(); err != nil {
		return err
	}
	if err := c.validateSyncQueue(); err != nil {
		return err
	}
	return c.validatePush()
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server: port %d out of range", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server: shutdown_timeout must be positive")
	}
	return nil
}

func (c *Config) validateUpstream() error {
	if c.Upstream.Origin == "" {
		return fmt.Errorf("upstream: origin is required")
	}
	u, err := url.Parse(c.Upstream.Origin)
	if err != nil {
		return fmt.Errorf("upstream: invalid origin %q: %w", c.Upstream.Origin, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("upstream: origin scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("upstream: origin %q has no host", c.Upstream.Origin)
	}
	if len(c.Upstream.AllowedHosts) == 0 {
		return fmt.Errorf("upstream: allowed_hosts must not be empty")
	}
	if c.Upstream.Timeout <= 0 {
		return fmt.Errorf("upstream: timeout must be positive")
	}
	b := c.Upstream.Breaker
	if b.FailureRatio <= 0 || b.FailureRatio > 1 {
		return fmt.Errorf("upstream: breaker failure_ratio must be in (0, 1], got %v", b.FailureRatio)
	}
	return nil
}

func (c *Config) validateCache() error {
	if c.Cache.Path == "" {
		return fmt.Errorf("cache: path is required")
	}
	if c.Cache.Prefix == "" {
		return fmt.Errorf("cache: prefix is required")
	}
	if strings.Contains(c.Cache.Prefix, ":") || strings.Contains(c.Cache.Version, ":") {
		return fmt.Errorf("cache: prefix and version must not contain ':'")
	}
	if c.Cache.Version == "" {
		return fmt.Errorf("cache: version is required")
	}
	for name, limit := range map[string]int{
		"image_limit":   c.Cache.ImageLimit,
		"dynamic_limit": c.Cache.DynamicLimit,
		"data_limit":    c.Cache.DataLimit,
	} {
		if limit < 1 {
			return fmt.Errorf("cache: %s must be at least 1, got %d", name, limit)
		}
	}
	return nil
}

func (c *Config) validatePrecache() error {
	if len(c.Precache.Manifest) == 0 {
		return fmt.Errorf("precache: manifest must not be empty")
	}
	if c.Precache.OfflinePath == "" {
		return fmt.Errorf("precache: offline_path is required")
	}
	for _, p := range c.Precache.Manifest {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("precache: manifest entry %q must be an absolute path", p)
		}
	}
	found := false
	for _, p := range c.Precache.Manifest {
		if p == c.Precache.OfflinePath {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("precache: offline_path %q must appear in the manifest", c.Precache.OfflinePath)
	}
	return nil
}

func (c *Config) validateSyncQueue() error {
	if c.SyncQueue.Path == "" {
		return fmt.Errorf("sync_queue: path is required")
	}
	if c.SyncQueue.Path == c.Cache.Path {
		return fmt.Errorf("sync_queue: path must differ from cache path")
	}
	if c.SyncQueue.ReplayInterval <= 0 {
		return fmt.Errorf("sync_queue: replay_interval must be positive")
	}
	if c.SyncQueue.CleanupInterval <= 0 {
		return fmt.Errorf("sync_queue: cleanup_interval must be positive")
	}
	return nil
}

func (c *Config) validatePush() error {
	if !c.Push.Enabled {
		return nil
	}
	// VAPID keys are deployment secrets and never ship with a default.
	if c.Push.VAPIDPublicKey == "" || c.Push.VAPIDPrivateKey == "" {
		return fmt.Errorf("push: vapid_public_key and vapid_private_key are required when push is enabled")
	}
	if c.Push.SubscribeEndpoint == "" {
		return fmt.Errorf("push: subscribe_endpoint is required when push is enabled")
	}
	return nil
}
