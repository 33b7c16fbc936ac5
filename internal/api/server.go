// Holdfast - Offline-First Edge Caching Gateway
// Copyright 2026 M. Waldrop (mwaldrop)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mwaldrop/holdfast

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mwaldrop/holdfast/internal/cachestore"
	"github.com/mwaldrop/holdfast/internal/config"
	"github.com/mwaldrop/holdfast/internal/hub"
	"github.com/mwaldrop/holdfast/internal/lifecycle"
	"github.com/mwaldrop/holdfast/internal/middleware"
	"github.com/mwaldrop/holdfast/internal/notify"
	"github.com/mwaldrop/holdfast/internal/syncqueue"
	"github.com/mwaldrop/holdfast/internal/upstream"
)

// Server wires the admin API, metrics, WebSocket, and gateway catch-all
// into one handler.
type Server struct {
	cfg       *config.ServerConfig
	gateway   http.Handler
	lifecycle *lifecycle.Manager
	queue     *syncqueue.Queue
	replayer  *syncqueue.Replayer
	notify    *notify.Manager
	hub       *hub.Hub
	catalog   *cachestore.Catalog
	origin    *upstream.Client
	perf      *middleware.PerformanceMonitor
	validate  *validator.Validate
}

// Deps carries the components the server exposes. Gateway is the
// catch-all handler for non-admin traffic.
type Deps struct {
	Gateway   http.Handler
	Lifecycle *lifecycle.Manager
	Queue     *syncqueue.Queue
	Replayer  *syncqueue.Replayer
	Notify    *notify.Manager
	Hub       *hub.Hub
	Catalog   *cachestore.Catalog
	Origin    *upstream.Client
	Perf      *middleware.PerformanceMonitor
}

// NewServer creates the HTTP surface.
func NewServer(cfg *config.ServerConfig, deps Deps) *Server {
	perf := deps.Perf
	if perf == nil {
		perf = middleware.NewPerformanceMonitor(1000)
	}
	return &Server{
		cfg:       cfg,
		gateway:   deps.Gateway,
		lifecycle: deps.Lifecycle,
		queue:     deps.Queue,
		replayer:  deps.Replayer,
		notify:    deps.Notify,
		hub:       deps.Hub,
		catalog:   deps.Catalog,
		origin:    deps.Origin,
		perf:      perf,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Routes builds the chi router.
//
// The WebSocket endpoint stays outside the instrumented groups: any
// middleware that wraps the ResponseWriter would hide http.Hijacker
// from the upgrader.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/api/v1/ws", s.handleWebSocket)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(httprate.LimitByIP(s.cfg.RateLimitRequests, s.cfg.RateLimitWindow))
		r.Use(middleware.Prometheus)
		r.Use(middleware.Compression)
		r.Use(s.perf.Middleware)

		r.Get("/health", s.handleHealth)
		r.Get("/stats", s.handleStats)
		r.Post("/message", s.handleMessage)
		r.Post("/sync", s.handleSync)
		r.Post("/queue", s.handleQueue)
		r.Post("/push", s.handlePush)
		r.Post("/push/subscription-change", s.handleSubscriptionChange)
	})

	if s.gateway != nil {
		r.Handle("/*", s.gateway)
	}

	return r
}
