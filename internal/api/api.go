// Package api provides HTTP handlers and the main API server logic for Reverie.
//
// It exposes RESTful endpoints for submitting reflections, polling enrichment
// status, and driving reveal sessions.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// DefaultAddr is the default listen address.
const DefaultAddr = ":8080"

// shutdownTimeout bounds the graceful drain on exit.
const shutdownTimeout = 10 * time.Second

// Opts holds configuration options for the API server.
type Opts struct {
	Addr string
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// Run starts the HTTP server and blocks until the context is cancelled, then
// drains in-flight requests and tears down every live session.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.addr,
		Handler: s.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server listening", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		s.sessions.StopAll()
		return err
	case <-ctx.Done():
	}

	slog.Info("API server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.sessions.StopAll()
	return err
}

// Handler builds the route table. Split out from Run so tests can drive the
// server through httptest.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /reflections", s.createReflectionHandler)
	mux.HandleFunc("GET /reflections/{id}", s.getReflectionHandler)
	mux.HandleFunc("POST /sessions", s.createSessionHandler)
	mux.HandleFunc("GET /sessions/{id}", s.getSessionHandler)
	mux.HandleFunc("POST /sessions/{id}/advance", s.advanceSessionHandler)
	mux.HandleFunc("DELETE /sessions/{id}", s.deleteSessionHandler)
	mux.HandleFunc("GET /health", s.healthHandler)
	return mux
}
