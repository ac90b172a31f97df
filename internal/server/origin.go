// Package server normalizes and validates HTTP origins for WebSocket requests
// to enforce the configured access control.
package server

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// originPolicy admits websocket upgrades from exactly one configured origin,
// or from any origin when configured with "*".
type originPolicy struct {
	allowed  string
	allowAll bool
	logger   *slog.Logger
}

func newOriginPolicy(origin string, logger *slog.Logger) *originPolicy {
	p := &originPolicy{logger: logger}

	trimmed := strings.TrimSpace(origin)
	switch {
	case trimmed == "":
		logger.Warn("no allowed origin configured; all websocket upgrades will be rejected")
	case trimmed == "*":
		p.allowAll = true
	default:
		normalized, ok := normalizeOrigin(trimmed)
		if !ok {
			logger.Warn("ignoring invalid origin in configuration", "origin", origin)
			break
		}
		p.allowed = normalized
	}

	return p
}

func normalizeOrigin(origin string) (string, bool) {
	parsed, err := url.Parse(origin)
	if err != nil {
		return "", false
	}

	if parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}

	normalized := strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host)
	return normalized, true
}

func (p *originPolicy) isAllowed(r *http.Request) bool {
	originHeader := r.Header.Get("Origin")
	if originHeader == "" {
		return false
	}

	normalizedOrigin, ok := normalizeOrigin(originHeader)
	if !ok {
		return false
	}

	if p.allowAll {
		return true
	}

	return p.allowed != "" && normalizedOrigin == p.allowed
}

// checkOrigin is installed as the upgrader's CheckOrigin.
func (p *originPolicy) checkOrigin(r *http.Request) bool {
	if p.isAllowed(r) {
		return true
	}

	p.logger.Warn("blocked websocket connection from disallowed origin", "origin", r.Header.Get("Origin"), "remote", r.RemoteAddr)
	return false
}
