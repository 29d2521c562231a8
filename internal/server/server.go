// Package server provides the HTTP and WebSocket chat API.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/raphaelgruber/sitechat-go/internal/config"
	"github.com/raphaelgruber/sitechat-go/internal/metrics"
	"github.com/raphaelgruber/sitechat-go/internal/service"
)

// Server wraps the HTTP server with dependencies and lifecycle management.
type Server struct {
	http    *http.Server
	handler *handler
	logger  *slog.Logger
}

// New creates the API server. The metrics collector may be nil.
func New(cfg config.Config, chat *service.Chat, retriever service.ChunkRetriever, collector *metrics.Collector, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	h := &handler{
		chat:      chat,
		retriever: retriever,
		collector: collector,
		logger:    logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.health)
	mux.HandleFunc("GET /stats", h.stats)
	mux.HandleFunc("POST /v1/chat", h.chatOnce)
	mux.HandleFunc("GET /v1/chat/ws", h.chatStream)
	mux.HandleFunc("POST /v1/search", h.search)

	return &Server{
		http: &http.Server{
			Addr:              net.JoinHostPort("", cfg.ServerPort),
			Handler:           loggingMiddleware(logger)(mux),
			ReadHeaderTimeout: 10 * time.Second,
		},
		handler: h,
		logger:  logger,
	}
}

// Run starts the server and blocks until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.http.Addr)
		if err := s.http.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	s.logger.Info("http server shutting down")
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

// Handler exposes the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}
