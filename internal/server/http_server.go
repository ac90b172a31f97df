// Package server constructs and runs the relay's HTTP service with helpers
// that apply production timeouts.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"
)

// Server bundles the hub, the websocket upgrader and the HTTP server.
type Server struct {
	cfg        Config
	hub        *Hub
	origins    *originPolicy
	upgrader   websocket.Upgrader
	httpServer *http.Server
	logger     *slog.Logger
}

// New builds a relay server from cfg. The hub is not running until Run (or
// StartHub) is called.
func New(cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = sanitizeConfig(cfg)

	s := &Server{
		cfg:     cfg,
		hub:     NewHub(logger),
		origins: newOriginPolicy(cfg.AllowedOrigin, logger),
		logger:  logger,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.origins.checkOrigin,
	}
	s.httpServer = CreateServer(cfg.Port, s.Routes())
	return s
}

// CreateServer creates and configures an HTTP server with the specified port and handler.
// It sets reasonable timeout values for production use.
func CreateServer(port string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// Hub returns the server's hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// HTTPServer returns the underlying http.Server.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// StartHub runs the hub loop in its own goroutine. Use it when serving
// Routes from a server other than the one Run manages, as tests do.
func (s *Server) StartHub() {
	go s.hub.Run()
}

// Run serves until ctx is cancelled or the listener fails, then shuts the
// HTTP server and the hub down within the configured timeout.
func (s *Server) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.hub.Run()
		return nil
	})

	g.Go(func() error {
		s.logger.Info("relay listening", "addr", s.httpServer.Addr, "allowed_origin", s.cfg.AllowedOrigin)
		s.logger.Info("chat page served at /chat; set ALLOWED_ORIGIN to this relay's own origin for it to connect")
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen on %s: %w", s.httpServer.Addr, err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		return s.Shutdown(s.cfg.ShutdownTimeout)
	})

	return g.Wait()
}

// Shutdown stops accepting HTTP requests, then closes every websocket and
// waits for the hub's goroutines.
func (s *Server) Shutdown(timeout time.Duration) error {
	httpErr := ShutdownServer(s.httpServer, timeout, s.logger)
	hubErr := s.hub.Shutdown(timeout)
	return errors.Join(httpErr, hubErr)
}

// ShutdownServer gracefully shuts down the HTTP server without interrupting active connections.
// Hijacked websocket connections are not tracked by net/http; the hub closes those.
func ShutdownServer(server *http.Server, timeout time.Duration, logger *slog.Logger) error {
	logger.Info("shutting down HTTP server")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "err", err)
		return fmt.Errorf("shutdown http server: %w", err)
	}

	logger.Info("HTTP server shutdown completed")
	return nil
}
