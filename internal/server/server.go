// Package server exposes the read-only scheduler status API.
package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/me/framephase/internal/jobpool"
	"github.com/me/framephase/internal/store"
	"github.com/me/framephase/pkg/model"
)

// Version is reported by the discovery and health endpoints.
const Version = "0.1.0"

// Status is the live scheduler view served by the API. *scheduler.Loop
// implements it.
type Status interface {
	Snapshot() []model.BlockState
	Ticks() uint64
	Running() bool
}

// PoolStats reports job pool counters.
type PoolStats interface {
	Stats() jobpool.Stats
}

// Server is the framephase status API server.
type Server struct {
	router    chi.Router
	logger    *slog.Logger
	startTime time.Time
	status    Status
	store     store.Store // optional; run endpoints answer 503 without it
	pool      PoolStats   // optional
	runID     string      // optional; the run being recorded by this process
}

// Option configures optional Server dependencies.
type Option func(*Server)

// WithStore serves recorded runs and events from st.
func WithStore(st store.Store) Option {
	return func(s *Server) {
		s.store = st
	}
}

// WithPool reports pool statistics on /health.
func WithPool(p PoolStats) Option {
	return func(s *Server) {
		s.pool = p
	}
}

// WithRunID names the run this process is recording.
func WithRunID(id string) Option {
	return func(s *Server) {
		s.runID = id
	}
}

// New creates a new Server with all routes registered.
func New(status Status, logger *slog.Logger, opts ...Option) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		logger:    logger.With("component", "server"),
		startTime: time.Now(),
		status:    status,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Handler returns the http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := s.router

	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", s.handleDiscovery)
		r.Get("/health", s.handleHealth)

		r.Get("/blocks", s.handleListBlocks)
		r.Get("/blocks/{index}", s.handleGetBlock)

		r.Route("/runs", func(r chi.Router) {
			r.Get("/", s.handleListRuns)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetRun)
				r.Get("/events", s.handleListEvents)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, RequestIDFromContext(r.Context()), http.StatusNotFound,
			model.NewNotFoundError("route", r.URL.Path))
	})
}
