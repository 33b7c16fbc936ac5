// Holdfast - Offline-First Edge Caching Gateway
// Copyright 2026 M. Waldrop (mwaldrop)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mwaldrop/holdfast

// Command gateway runs the offline-first edge caching gateway: a
// caching reverse proxy with durable response generations, a
// background-sync replay queue, and a page-client notification hub,
// all under one suture supervision tree.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mwaldrop/holdfast/internal/api"
	"github.com/mwaldrop/holdfast/internal/cachestore"
	"github.com/mwaldrop/holdfast/internal/config"
	"github.com/mwaldrop/holdfast/internal/eviction"
	"github.com/mwaldrop/holdfast/internal/hub"
	"github.com/mwaldrop/holdfast/internal/lifecycle"
	"github.com/mwaldrop/holdfast/internal/logging"
	"github.com/mwaldrop/holdfast/internal/middleware"
	"github.com/mwaldrop/holdfast/internal/notify"
	"github.com/mwaldrop/holdfast/internal/router"
	"github.com/mwaldrop/holdfast/internal/strategy"
	"github.com/mwaldrop/holdfast/internal/supervisor"
	"github.com/mwaldrop/holdfast/internal/supervisor/services"
	"github.com/mwaldrop/holdfast/internal/syncqueue"
	"github.com/mwaldrop/holdfast/internal/upstream"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("origin", cfg.Upstream.Origin).
		Str("cache_version", cfg.Cache.Version).
		Msg("starting holdfast gateway")

	catalog, err := cachestore.Open(&cachestore.Config{
		Path:         cfg.Cache.Path,
		Prefix:       cfg.Cache.Prefix,
		Version:      cfg.Cache.Version,
		SyncWrites:   cfg.Cache.SyncWrites,
		CloseTimeout: cfg.Cache.CloseTimeout,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to open response cache")
	}
	defer func() {
		if err := catalog.Close(); err != nil {
			logging.Error().Err(err).Msg("error closing response cache")
		}
	}()

	queue, err := syncqueue.Open(&syncqueue.Config{
		Path:         cfg.SyncQueue.Path,
		SyncWrites:   cfg.SyncQueue.SyncWrites,
		CloseTimeout: cfg.SyncQueue.CloseTimeout,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to open sync queue")
	}
	defer func() {
		if err := queue.Close(); err != nil {
			logging.Error().Err(err).Msg("error closing sync queue")
		}
	}()

	origin, err := upstream.New(&cfg.Upstream)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to build upstream client")
	}

	pageHub := hub.NewHub()

	manager := lifecycle.NewManager(catalog, origin, cfg.Precache.Manifest, pageHub)
	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 2*time.Minute)
	if err := manager.Install(startupCtx); err != nil {
		// A failed install leaves no partial static cache; the gateway
		// still serves, it just cannot fall back to precached assets.
		logging.Error().Err(err).Msg("precache install failed")
	}
	if err := manager.Activate(startupCtx); err != nil {
		logging.Error().Err(err).Msg("activate failed")
	}
	cancelStartup()

	janitor := eviction.NewJanitor(catalog, eviction.NewFIFO(), map[string]int{
		cachestore.PurposeImage:   cfg.Cache.ImageLimit,
		cachestore.PurposeDynamic: cfg.Cache.DynamicLimit,
		cachestore.PurposeData:    cfg.Cache.DataLimit,
	})
	replayer := syncqueue.NewReplayer(queue, origin, janitor, pageHub,
		cfg.SyncQueue.NewsletterEndpoint, cfg.SyncQueue.PreferencesEndpoint)

	server, gatewayErr := buildServer(cfg, catalog, queue, origin, pageHub, manager, replayer)
	if gatewayErr != nil {
		logging.Fatal().Err(gatewayErr).Msg("failed to assemble gateway")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	tree.AddDataService(services.NewReplayService(replayer, cfg.SyncQueue.ReplayInterval))
	tree.AddDataService(services.NewCleanupService(janitor, cfg.SyncQueue.CleanupInterval))
	tree.AddMessagingService(services.NewHubService(pageHub))
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))
	logging.Info().Str("addr", server.Addr).Msg("gateway services assembled")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("received shutdown signal")
		cancel()
	}()

	errCh := tree.ServeBackground(ctx)
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("supervisor tree error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("service failed to stop within timeout")
	}

	logging.Info().Msg("gateway stopped")
}

// buildServer assembles the strategy engine, router, and HTTP surface.
func buildServer(
	cfg *config.Config,
	catalog *cachestore.Catalog,
	queue *syncqueue.Queue,
	origin *upstream.Client,
	pageHub *hub.Hub,
	manager *lifecycle.Manager,
	replayer *syncqueue.Replayer,
) (*http.Server, error) {
	staticStore, err := catalog.Open(cachestore.PurposeStatic)
	if err != nil {
		return nil, fmt.Errorf("open static generation: %w", err)
	}
	dynamicStore, err := catalog.Open(cachestore.PurposeDynamic)
	if err != nil {
		return nil, fmt.Errorf("open dynamic generation: %w", err)
	}
	dataStore, err := catalog.Open(cachestore.PurposeData)
	if err != nil {
		return nil, fmt.Errorf("open data generation: %w", err)
	}
	imageStore, err := catalog.Open(cachestore.PurposeImage)
	if err != nil {
		return nil, fmt.Errorf("open image generation: %w", err)
	}

	policy := eviction.NewFIFO()

	var placeholder func(ctx context.Context) (*cachestore.Entry, bool)
	if path := cfg.Precache.PlaceholderPath; path != "" {
		key := cachestore.RequestKey(http.MethodGet, path)
		placeholder = func(_ context.Context) (*cachestore.Entry, bool) {
			entry, found, err := staticStore.Match(key)
			if err != nil || !found {
				return nil, false
			}
			return entry, true
		}
	}

	gateway := router.NewGateway(router.GatewayConfig{
		Classifier: router.NewClassifier(cfg.Router.APIPrefixes, origin.Allowed),
		Fetcher:    origin,

		Image:      strategy.NewCacheFirst(imageStore, origin, policy, cfg.Cache.ImageLimit, placeholder),
		Static:     strategy.NewCacheFirst(staticStore, origin, policy, 0, nil),
		Navigation: strategy.NewNetworkFirst(dynamicStore, origin, policy, cfg.Cache.DynamicLimit, ""),

		APINetworkFirst:    strategy.NewNetworkFirst(dataStore, origin, policy, cfg.Cache.DataLimit, ""),
		APIStaleRevalidate: strategy.NewStaleWhileRevalidate(dataStore, origin, policy, cfg.Cache.DataLimit, ""),
		APICacheOnly:       strategy.NewCacheOnly(dataStore, origin),

		NetworkFirstPatterns:    cfg.Router.NetworkFirstPatterns,
		StaleRevalidatePatterns: cfg.Router.StaleRevalidate,
		CacheOnlyPatterns:       cfg.Router.CacheOnlyPatterns,

		Catalog:     catalog,
		StaticStore: staticStore,
		OfflinePath: cfg.Precache.OfflinePath,
	})

	surface := api.NewServer(&cfg.Server, api.Deps{
		Gateway:   gateway,
		Lifecycle: manager,
		Queue:     queue,
		Replayer:  replayer,
		Notify:    notify.NewManager(cfg.Push, pageHub, origin),
		Hub:       pageHub,
		Catalog:   catalog,
		Origin:    origin,
		Perf:      middleware.NewPerformanceMonitor(1000),
	})

	return &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      surface.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, nil
}
