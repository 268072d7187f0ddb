// Package server normalizes and validates HTTP origins for WebSocket
// requests on the sidecar.
package server

import (
	"net/http"
	"strings"
)

// normalizeOrigins lowercases and trims the configured allow-list and
// reports whether the wildcard "*" was present.
func normalizeOrigins(origins []string) (map[string]struct{}, bool) {
	allowed := make(map[string]struct{}, len(origins))
	allowAll := false
	for _, origin := range origins {
		origin = strings.ToLower(strings.TrimSpace(origin))
		if origin == "" {
			continue
		}
		if origin == "*" {
			allowAll = true
			continue
		}
		allowed[origin] = struct{}{}
	}
	return allowed, allowAll
}

// checkOrigin gates WebSocket upgrades. Requests without an Origin header
// (non-browser clients) are allowed; browsers must match the allow-list.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if s.allowAllOrigins {
		return true
	}
	_, ok := s.allowedOrigins[strings.ToLower(origin)]
	return ok
}
