// Viewfinder - Implicit-Feedback Video Recommendation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/viewfinder

package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/tomtom215/viewfinder/internal/config"
	"github.com/tomtom215/viewfinder/internal/logging"
)

// Server runs the HTTP listener under supervision. It implements
// suture.Service: Serve blocks until the listener fails or the context is
// cancelled, then shuts down gracefully within the configured deadline.
type Server struct {
	cfg     config.ServerConfig
	handler http.Handler
}

// NewServer creates a supervised HTTP server for the given handler.
func NewServer(cfg config.ServerConfig, handler http.Handler) *Server {
	return &Server{cfg: cfg, handler: handler}
}

// String names the service in supervisor logs.
func (s *Server) String() string { return "http-server" }

// Serve starts the listener and blocks until failure or cancellation.
func (s *Server) Serve(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.Host, fmt.Sprintf("%d", s.cfg.Port))
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadTimeout:       s.cfg.Timeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      s.cfg.Timeout,
		IdleTimeout:       2 * s.cfg.Timeout,
	}

	logger := logging.WithComponent("http")
	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Err(err).Msg("graceful shutdown failed, closing")
		_ = srv.Close()
	}
	logger.Info().Msg("http server stopped")

	// Drain the listener goroutine; ErrServerClosed is the expected
	// result of Shutdown.
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return ctx.Err()
}
