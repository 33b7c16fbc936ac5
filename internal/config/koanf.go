// Holdfast - Offline-First Edge Caching Gateway
// Copyright 2026 M. Waldrop (mwaldrop)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mwaldrop/holdfast

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists where config files are searched in priority order.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/holdfast/config.yaml",
	"/etc/holdfast/config.yml",
}

// ConfigPathEnvVar overrides the config file search path.
const ConfigPathEnvVar = "CONFIG_PATH"

// Load builds the configuration from layered sources (highest priority wins):
//
//  1. Built-in defaults
//  2. Optional YAML config file
//  3. Environment variables
//
// The returned Config has passed Validate.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile returns the first existing config file, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths lists config paths parsed as comma-separated slices when
// supplied via environment variables.
var sliceConfigPaths = []string{
	"server.cors_origins",
	"upstream.allowed_hosts",
	"router.api_prefixes",
	"router.network_first_patterns",
	"router.stale_while_revalidate_patterns",
	"router.cache_only_patterns",
	"precache.manifest",
}

// processSliceFields converts comma-separated env values to string slices.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}
		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}

		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envTransformFunc maps environment variable names to koanf config paths.
//
// Examples:
//   - HTTP_PORT -> server.port
//   - UPSTREAM_ORIGIN -> upstream.origin
//   - CACHE_VERSION -> cache.version
//   - VAPID_PUBLIC_KEY -> push.vapid_public_key
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		// Server
		"http_host":           "server.host",
		"http_port":           "server.port",
		"http_read_timeout":   "server.read_timeout",
		"http_write_timeout":  "server.write_timeout",
		"shutdown_timeout":    "server.shutdown_timeout",
		"rate_limit_requests": "server.rate_limit_requests",
		"rate_limit_window":   "server.rate_limit_window",
		"cors_origins":        "server.cors_origins",

		// Logging
		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",

		// Upstream
		"upstream_origin":        "upstream.origin",
		"upstream_allowed_hosts": "upstream.allowed_hosts",
		"upstream_timeout":       "upstream.timeout",

		// Cache
		"cache_path":          "cache.path",
		"cache_prefix":        "cache.prefix",
		"cache_version":       "cache.version",
		"cache_sync_writes":   "cache.sync_writes",
		"cache_image_limit":   "cache.image_limit",
		"cache_dynamic_limit": "cache.dynamic_limit",
		"cache_data_limit":    "cache.data_limit",

		// Sync queue
		"queue_path":           "sync_queue.path",
		"queue_sync_writes":    "sync_queue.sync_writes",
		"replay_interval":      "sync_queue.replay_interval",
		"cleanup_interval":     "sync_queue.cleanup_interval",
		"newsletter_endpoint":  "sync_queue.newsletter_endpoint",
		"preferences_endpoint": "sync_queue.preferences_endpoint",

		// Push
		"push_enabled":            "push.enabled",
		"vapid_public_key":        "push.vapid_public_key",
		"vapid_private_key":       "push.vapid_private_key",
		"push_subscribe_endpoint": "push.subscribe_endpoint",
		"push_service_url":        "push.service_url",

		// Precache
		"precache_manifest": "precache.manifest",
		"offline_path":      "precache.offline_path",
		"placeholder_path":  "precache.placeholder_path",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}

	// Unknown variables are ignored rather than mapped blindly; a stray
	// PATH or HOME must never land in the config tree.
	return ""
}
