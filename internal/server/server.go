// Package server provides the HTTP API for Kaiseki.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/kaiseki/internal/config"
	"github.com/hyperjump/kaiseki/internal/gateway"
	"github.com/hyperjump/kaiseki/internal/orchestrator"
	"github.com/hyperjump/kaiseki/internal/relevance"
)

// Server is the HTTP server for the Kaiseki API.
type Server struct {
	orchestrator *orchestrator.Orchestrator
	gateway      *gateway.Gateway
	relevance    *relevance.Service
	config       *config.ServerConfig
	logger       *zap.Logger
	server       *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(
	orch *orchestrator.Orchestrator,
	gw *gateway.Gateway,
	rel *relevance.Service,
	cfg *config.ServerConfig,
	logger *zap.Logger,
) *Server {
	return &Server{
		orchestrator: orch,
		gateway:      gw,
		relevance:    rel,
		config:       cfg,
		logger:       logger,
	}
}

// Router builds the chi router with all API routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(120 * time.Second))
	r.Use(middleware.Compress(5))

	r.Post("/api/v1/analyze", s.handleAnalyze)
	r.Route("/api/v1/sessions/{id}", func(r chi.Router) {
		r.Get("/", s.handleGetSession)
		r.Delete("/", s.handleDeleteSession)
		r.Get("/snapshot", s.handleSnapshot)
		r.Put("/topic", s.handleUpdateTopic)
		r.Post("/labels/refresh", s.handleRefreshLabels)
		r.Post("/merge", s.handleMerge)
		r.Post("/reorder", s.handleReorder)
		r.Post("/paragraphs/{pid}/split", s.handleSplit)
		r.Post("/paragraphs/{pid}/preview", s.handlePreview)
		r.Put("/paragraphs/{pid}", s.handleCommitParagraph)
		r.Delete("/paragraphs/{pid}", s.handleDeleteParagraph)
	})
	r.Get("/api/v1/status", s.handleStatus)
	r.Get("/health", s.handleHealth)

	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Router(),
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
