// Package server provides the minimal HTTP surface the core pipeline
// needs locally: a health check, a read-only job-status endpoint, a
// metrics snapshot, and the mount point for the inbound webhook
// callback (spec §6 "outside the core" for submission/query, but a
// process needs something to bind while the worker loop runs).
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/recapforge/recap/internal/jobs"
	"github.com/recapforge/recap/internal/metrics"
	"github.com/recapforge/recap/internal/webhook"
)

// Server is recap's local HTTP surface.
type Server struct {
	httpServer *http.Server
	jobs       *jobs.Manager
	metrics    *metrics.Recorder
	logger     *slog.Logger
}

// Config configures a Server.
type Config struct {
	Host           string
	Port           string
	Jobs           *jobs.Manager
	Metrics        *metrics.Recorder
	WebhookHandler *webhook.Handler // may be nil to disable the callback route
	Logger         *slog.Logger
}

// New builds a Server and wires its routes.
func New(cfg Config) *Server {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{jobs: cfg.Jobs, metrics: cfg.Metrics, logger: logger}

	mux := http.NewServeMux()
	s.routes(mux, cfg.WebhookHandler)

	s.httpServer = &http.Server{
		Addr:         net.JoinHostPort(cfg.Host, cfg.Port),
		Handler:      s.withLogging(mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// Addr returns the server's bound listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Start runs the HTTP server until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	s.logger.Info("server stopped")
	return nil
}

// withLogging logs every request's method, path, status, and
// duration.
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		s.logger.Info("request completed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.status,
			"duration", time.Since(start).String(),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
