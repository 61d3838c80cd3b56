// SPDX-License-Identifier: MIT

// Package api provides the HTTP surface of the notification server: the SSE
// stream routes, the queue membership mutations, and the termination queue
// operations.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/kahvel/notifyd/internal/api/middleware"
	"github.com/kahvel/notifyd/internal/config"
	"github.com/kahvel/notifyd/internal/health"
	xglog "github.com/kahvel/notifyd/internal/log"
	"github.com/kahvel/notifyd/internal/notification"
	"github.com/kahvel/notifyd/internal/queue"
	"github.com/kahvel/notifyd/internal/termination"
)

// Server wires the core components to HTTP routes.
type Server struct {
	cfg       config.Config
	router    *chi.Mux
	store     *queue.Store
	source    *notification.Source
	scheduler *termination.Scheduler
	healthMgr *health.Manager
	logger    zerolog.Logger

	// endChatClient is shared by all termination actions.
	endChatClient *http.Client

	// baseCtx is cancelled by Close; every SSE session is bound to it so
	// graceful shutdown tears down streams the request context keeps alive.
	baseCtx    context.Context
	baseCancel context.CancelFunc
}

// Deps are the core components the route layer exposes.
type Deps struct {
	Store     *queue.Store
	Source    *notification.Source
	Scheduler *termination.Scheduler
	HealthMgr *health.Manager
}

// New builds the API server and its router.
func New(cfg config.Config, deps Deps) *Server {
	baseCtx, baseCancel := context.WithCancel(context.Background())

	s := &Server{
		cfg:       cfg,
		store:     deps.Store,
		source:    deps.Source,
		scheduler: deps.Scheduler,
		healthMgr: deps.HealthMgr,
		logger:    xglog.WithComponent("api"),
		endChatClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		baseCtx:    baseCtx,
		baseCancel: baseCancel,
	}

	r := middleware.NewRouter(middleware.StackConfig{
		AllowedOrigins: cfg.AllowedOrigins,
		EnableMetrics:  true,
		TracingService: cfg.TracingService,
		EnableLogging:  true,
	})

	r.Get("/sse/notifications/{channelID}", s.handleNotificationStream)
	r.Get("/sse/queue/{chatID}", s.handleQueueStream)

	r.Group(func(r chi.Router) {
		r.Use(middleware.MutationRateLimit(cfg.RateLimitPerMin))
		r.Post("/enqueue", s.handleEnqueue)
		r.Post("/dequeue", s.handleDequeue)
		r.Post("/add-chat-to-termination-queue", s.handleAddTermination)
		r.Post("/remove-chat-from-termination-queue", s.handleRemoveTermination)
		r.Post("/internal/notifications/{channelID}", s.handlePublishNotification)
	})

	if s.healthMgr != nil {
		r.Get("/healthz", s.healthMgr.ServeHealth)
		r.Get("/readyz", s.healthMgr.ServeReady)
	}
	r.Handle("/metrics", promhttp.Handler())

	s.router = r
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close cancels every open SSE session. Call before http.Server.Shutdown so
// the listener can drain; streams never end on their own.
func (s *Server) Close() {
	s.baseCancel()
}

// streamContext derives a context that ends when either the client
// disconnects or the server shuts down.
func (s *Server) streamContext(r *http.Request) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(r.Context())
	stop := context.AfterFunc(s.baseCtx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
