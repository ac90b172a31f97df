// Package server exposes HTTP handlers, including WebSocket upgrades, health
// checks, and the built-in chat page.
package server

import (
	_ "embed"
	"fmt"
	"net/http"
)

//go:embed static/chat.html
var chatPage []byte

// WebSocketHandler validates that the request uses GET, upgrades the
// connection, and hands the new client to the hub, which starts its pumps.
func (s *Server) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}

	client := NewClient(conn, s.hub, r.RemoteAddr, s.cfg.MaxMessageSize)
	if !s.hub.Register(client) {
		client.logger.Info("rejecting connection during shutdown")
		_ = conn.Close()
	}
}

// HealthHandler provides a simple health check endpoint that returns server status.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "Chat relay is running!")
}

// ChatPageHandler serves a minimal browser client for the event contract.
// The page dials /ws on the host it was loaded from, so its Origin is the
// relay's own origin; ALLOWED_ORIGIN must name that origin (or be "*") for
// the page to connect.
func (s *Server) ChatPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := w.Write(chatPage); err != nil {
		s.logger.Warn("error writing chat page", "err", err)
	}
}
