// ABOUTME: HTTP surface for turnstream built on chi
// ABOUTME: Serves the scripted chat stream, the live snapshot feed, health and metrics

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/2389/turnstream/internal/conversation"
	"github.com/2389/turnstream/internal/event"
)

// defaultHeartbeat keeps idle snapshot feeds from being cut by proxies.
const defaultHeartbeat = 30 * time.Second

// Config wires the server's dependencies. Source and Store are optional;
// routes whose dependency is missing are not registered.
type Config struct {
	// Source answers POST /api/chat/stream.
	Source event.Source
	// Store feeds GET /api/snapshots.
	Store *conversation.Store
	// Gatherer exposes GET /metrics when set.
	Gatherer  prometheus.Gatherer
	Heartbeat time.Duration
	Logger    *slog.Logger
}

// Server is the turnstream HTTP handler.
type Server struct {
	router    chi.Router
	source    event.Source
	store     *conversation.Store
	heartbeat time.Duration
	logger    *slog.Logger
}

// New builds the router.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	heartbeat := cfg.Heartbeat
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeat
	}

	s := &Server{
		router:    chi.NewRouter(),
		source:    cfg.Source,
		store:     cfg.Store,
		heartbeat: heartbeat,
		logger:    logger.With("component", "server"),
	}

	s.router.Use(middleware.Recoverer)
	s.router.Get("/health", s.handleHealth)
	if s.source != nil {
		s.router.Post("/api/chat/stream", s.handleChatStream)
	}
	if s.store != nil {
		s.router.Get("/api/snapshots", s.handleSnapshots)
	}
	if cfg.Gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Run listens on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	httpServer := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		s.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		s.logger.Error("server error", "error", serverErr)
	}

	// Snapshot feeds never end on their own
	if s.store != nil {
		s.store.Close()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil && serverErr == nil {
		serverErr = fmt.Errorf("shutting down: %w", err)
	}
	return serverErr
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// setSSEHeaders prepares a response for streaming.
func setSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

// sendJSONError writes a JSON error response.
func (s *Server) sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]string{"error": message}); err != nil {
		s.logger.Debug("failed to write error response", "error", err)
	}
}
