// Package server exposes the trace ingestion and QA evaluation REST API.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/tracelab-ai/tracelab/pkg/types"
)

// TraceStore is the persistence surface the API reads and writes.
type TraceStore interface {
	CreateTrace(ctx context.Context, trace *types.Trace) error
	AppendEvents(ctx context.Context, traceID string, events []types.Event) error
	GetTrace(ctx context.Context, traceID string) (*types.Trace, error)
}

// Finalizer runs the QA pipeline for one trace to a terminal status.
type Finalizer interface {
	Finalize(ctx context.Context, trace *types.Trace) (*types.QAResult, error)
}

// Config holds the dependencies and HTTP settings for a Server.
type Config struct {
	Store    TraceStore
	Pipeline Finalizer
	Logger   *slog.Logger
	Version  string

	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	MaxRequestBodyBytes int64
}

// Server is the tracelab HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     *slog.Logger
}

// New creates a Server with all routes configured.
func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	h := &handlers{
		store:    cfg.Store,
		pipeline: cfg.Pipeline,
		logger:   cfg.Logger,
		version:  cfg.Version,
		maxBody:  cfg.MaxRequestBodyBytes,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("POST /api/traces", h.handleCreateTrace)
	mux.HandleFunc("GET /api/traces/{trace_id}", h.handleGetTrace)
	mux.HandleFunc("POST /api/traces/{trace_id}/events", h.handleAddEvents)
	mux.HandleFunc("POST /api/traces/{trace_id}/finalize", h.handleFinalizeTrace)
	mux.HandleFunc("GET /api/traces/{trace_id}/report", h.handleTraceReport)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      mux,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		handler: mux,
		logger:  cfg.Logger,
	}
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ListenAndServe starts serving and blocks until the listener fails or the
// server is shut down.
func (s *Server) ListenAndServe() error {
	s.logger.Info("http server listening", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
