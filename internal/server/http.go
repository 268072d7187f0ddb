// Package server exposes the HTTP sidecar: health check, Prometheus
// metrics, and the WebSocket bridge that carries the same line protocol as
// the TCP listener.
package server

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// HTTPHandler builds the sidecar mux. It is exported so tests can mount it
// on an httptest server without binding the configured port.
func (s *Server) HTTPHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.healthHandler)
	mux.Handle("/metrics", s.metrics.Handler())
	mux.HandleFunc("/ws", s.websocketHandler)
	return mux
}

// healthHandler reports liveness and the current connection count.
func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprintf(w, "chatline relay is running! %d connection(s) active\n", s.registry.Count())
}

// websocketHandler upgrades the request and hands the connection to the
// same handler pipeline as an accepted TCP socket: one text frame is one
// protocol line, starting with the nickname claim.
func (s *Server) websocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	s.serveConn(newWSConn(conn, s.cfg.MaxLineLength))
}

// newHTTPServer applies the sidecar's timeouts. Read/write timeouts stay
// off the /ws endpoint's long-lived streams by construction: gorilla hijacks
// the connection at upgrade time.
func newHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:        addr,
		Handler:     handler,
		IdleTimeout: 60 * time.Second,
	}
}
