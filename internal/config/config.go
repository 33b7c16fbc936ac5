// Holdfast - Offline-First Edge Caching Gateway
// Copyright 2026 M. Waldrop (mwaldrop)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mwaldrop/holdfast

// Package config loads gateway configuration from struct defaults, an
// optional YAML file, and HOLDFAST_* environment overrides, in that
// order.
package config

import "time"

// Config is the root configuration for the gateway.
//
// Configuration is immutable after Load: components receive the sections
// they need at construction time and never mutate them at runtime.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Logging   LoggingConfig   `koanf:"logging"`
	Upstream  UpstreamConfig  `koanf:"upstream"`
	Cache     CacheConfig     `koanf:"cache"`
	Router    RouterConfig    `koanf:"router"`
	Precache  PrecacheConfig  `koanf:"precache"`
	SyncQueue SyncQueueConfig `koanf:"sync_queue"`
	Push      PushConfig      `koanf:"push"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	// RateLimitRequests/RateLimitWindow bound the admin endpoints.
	RateLimitRequests int           `koanf:"rate_limit_requests"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`

	// CORSOrigins lists allowed browser origins for the admin API.
	CORSOrigins []string `koanf:"cors_origins"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// UpstreamConfig describes the origin the gateway fronts.
type UpstreamConfig struct {
	// Origin is the base URL of the backend, e.g. http://localhost:8080.
	Origin string `koanf:"origin"`

	// AllowedHosts lists hosts whose requests are intercepted; requests to
	// any other host bypass the strategy engine entirely.
	AllowedHosts []string `koanf:"allowed_hosts"`

	// Timeout bounds a single upstream fetch.
	Timeout time.Duration `koanf:"timeout"`

	Breaker BreakerConfig `koanf:"breaker"`
}

// BreakerConfig tunes the circuit breaker guarding upstream fetches.
type BreakerConfig struct {
	// MaxRequests allowed through in half-open state.
	MaxRequests uint32 `koanf:"max_requests"`

	// Interval resets failure counts in the closed state.
	Interval time.Duration `koanf:"interval"`

	// Timeout before transitioning from open to half-open.
	Timeout time.Duration `koanf:"timeout"`

	// FailureRatio opens the circuit once reached with MinRequests observed.
	FailureRatio float64 `koanf:"failure_ratio"`
	MinRequests  uint32  `koanf:"min_requests"`
}

// CacheConfig holds durable response-cache settings.
type CacheConfig struct {
	// Path is the BadgerDB directory for cached responses.
	Path string `koanf:"path"`

	// Prefix and Version form generation names: {prefix}-{purpose}-{version}.
	// Bumping Version makes every prior generation stale; stale generations
	// are deleted during the activate transition.
	Prefix  string `koanf:"prefix"`
	Version string `koanf:"version"`

	// SyncWrites enables fsync on every write (durability over throughput).
	SyncWrites   bool          `koanf:"sync_writes"`
	CloseTimeout time.Duration `koanf:"close_timeout"`

	// ImageLimit bounds the image generation (FIFO trim after each store).
	ImageLimit int `koanf:"image_limit"`

	// DynamicLimit bounds the navigation (dynamic) generation.
	DynamicLimit int `koanf:"dynamic_limit"`

	// DataLimit bounds the API data generation.
	DataLimit int `koanf:"data_limit"`
}

// RouterConfig holds request classification settings.
type RouterConfig struct {
	// APIPrefixes mark a request as an API request, e.g. /api/ and the
	// backend proxy path prefix.
	APIPrefixes []string `koanf:"api_prefixes"`

	// Pattern lists sub-dispatch API requests to a strategy. A pattern
	// matches when it is a substring of the request path. Unmatched API
	// requests default to network-first.
	NetworkFirstPatterns []string `koanf:"network_first_patterns"`
	StaleRevalidate      []string `koanf:"stale_while_revalidate_patterns"`
	CacheOnlyPatterns    []string `koanf:"cache_only_patterns"`
}

// PrecacheConfig lists the assets installed into the static generation.
type PrecacheConfig struct {
	// Manifest is the fixed list of essential URLs fetched at install time.
	// Install is all-or-nothing: any failure fails the install step.
	Manifest []string `koanf:"manifest"`

	// OfflinePath is the fallback document served when a navigation request
	// cannot be satisfied from network or cache. It must appear in Manifest.
	OfflinePath string `koanf:"offline_path"`

	// PlaceholderPath is the image served when an image fetch fails and no
	// cached copy exists. Optional; a synthesized 404 is used when empty.
	PlaceholderPath string `koanf:"placeholder_path"`
}

// SyncQueueConfig holds durable replay-queue settings.
type SyncQueueConfig struct {
	// Path is the BadgerDB directory for the queue (separate from the
	// response cache so queue compaction never stalls cache reads).
	Path string `koanf:"path"`

	SyncWrites   bool          `koanf:"sync_writes"`
	CloseTimeout time.Duration `koanf:"close_timeout"`

	// ReplayInterval is the cadence of the periodic replay service.
	ReplayInterval time.Duration `koanf:"replay_interval"`

	// CleanupInterval is the cadence of the cache janitor pass.
	CleanupInterval time.Duration `koanf:"cleanup_interval"`

	// NewsletterEndpoint receives replayed newsletter signups (POST).
	NewsletterEndpoint string `koanf:"newsletter_endpoint"`

	// PreferencesEndpoint receives replayed preference updates (PUT).
	PreferencesEndpoint string `koanf:"preferences_endpoint"`
}

// PushConfig holds push notification settings.
// VAPID keys must come from configuration; there is no built-in default.
type PushConfig struct {
	Enabled bool `koanf:"enabled"`

	VAPIDPublicKey  string `koanf:"vapid_public_key"`
	VAPIDPrivateKey string `koanf:"vapid_private_key"`

	// SubscribeEndpoint receives re-registered subscriptions after a
	// subscription-change event.
	SubscribeEndpoint string `koanf:"subscribe_endpoint"`

	// ServiceURL is the push service used for re-subscription.
	ServiceURL string `koanf:"service_url"`
}

// defaultConfig returns a Config with all default values.
// Defaults are applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              8437,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      60 * time.Second,
			ShutdownTimeout:   10 * time.Second,
			RateLimitRequests: 100,
			RateLimitWindow:   time.Minute,
			CORSOrigins:       []string{},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Upstream: UpstreamConfig{
			Origin:       "http://localhost:8080",
			AllowedHosts: []string{"localhost", "127.0.0.1"},
			Timeout:      15 * time.Second,
			Breaker: BreakerConfig{
				MaxRequests:  3,
				Interval:     time.Minute,
				Timeout:      2 * time.Minute,
				FailureRatio: 0.6,
				MinRequests:  10,
			},
		},
		Cache: CacheConfig{
			Path:         "/data/holdfast/cache",
			Prefix:       "holdfast",
			Version:      "v1",
			SyncWrites:   false,
			CloseTimeout: 30 * time.Second,
			ImageLimit:   50,
			DynamicLimit: 100,
			DataLimit:    100,
		},
		Router: RouterConfig{
			APIPrefixes: []string{"/api/"},
			NetworkFirstPatterns: []string{
				"/api/weather",
				"/api/traffic",
				"/api/rates",
			},
			StaleRevalidate: []string{
				"/api/news",
				"/api/events",
				"/api/tourism",
				"/api/government",
			},
			CacheOnlyPatterns: []string{
				"/api/phrases",
				"/api/static",
			},
		},
		Precache: PrecacheConfig{
			Manifest: []string{
				"/",
				"/offline.html",
				"/manifest.json",
				"/icons/icon-192.png",
				"/icons/icon-512.png",
			},
			OfflinePath: "/offline.html",
		},
		SyncQueue: SyncQueueConfig{
			Path:                "/data/holdfast/queue",
			SyncWrites:          true,
			CloseTimeout:        30 * time.Second,
			ReplayInterval:      time.Minute,
			CleanupInterval:     15 * time.Minute,
			NewsletterEndpoint:  "/api/newsletter/signup",
			PreferencesEndpoint: "/api/user/preferences",
		},
		Push: PushConfig{
			Enabled: false,
		},
	}
}
