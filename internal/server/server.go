// Package server implements the chat relay: a TCP listener (plus optional
// HTTP sidecar) that admits nicknamed connections into a shared registry and
// routes line-based messages between them.
package server

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/chatline/chatline/internal/agent"
	"github.com/chatline/chatline/internal/codec"
)

const shutdownTimeout = 5 * time.Second

// Server owns the process-wide state: registry, router, connection log, and
// metrics. It accepts connections until its context is cancelled; every
// per-connection failure stays inside that connection's handler.
type Server struct {
	cfg      Config
	cipher   codec.Cipher
	registry *Registry
	router   *Router
	connLog  *ConnectionLog
	metrics  *Metrics

	allowedOrigins  map[string]struct{}
	allowAllOrigins bool

	ln      net.Listener
	httpSrv *http.Server
	sem     chan struct{}

	mu    sync.Mutex
	conns map[*Client]struct{}
	wg    sync.WaitGroup
}

// NewServer assembles a relay from cfg. responder may be nil, in which case
// the built-in rule table answers assistant messages; either way it is
// wrapped so a stall degrades to a fallback reply.
func NewServer(cfg *Config, responder agent.Responder) (*Server, error) {
	if cfg == nil {
		cfg = NewConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	sane := cfg.sanitized()

	cipher, err := codec.New(sane.Codec, []byte(sane.Key))
	if err != nil {
		return nil, err
	}
	if responder == nil {
		responder = agent.NewRuleResponder()
	}

	metrics := NewMetrics()
	registry := NewRegistry(metrics)
	allowed, allowAll := normalizeOrigins(sane.AllowedOrigins)

	s := &Server{
		cfg:             sane,
		cipher:          cipher,
		registry:        registry,
		metrics:         metrics,
		connLog:         OpenConnectionLog(sane.ConnectionLog),
		allowedOrigins:  allowed,
		allowAllOrigins: allowAll,
		sem:             make(chan struct{}, sane.MaxConnections),
		conns:           make(map[*Client]struct{}),
	}
	s.router = NewRouter(registry, cipher, agent.Guard(responder, sane.AgentTimeout), metrics)
	return s, nil
}

// Registry exposes the live-user registry, mainly for tests and the sidecar.
func (s *Server) Registry() *Registry { return s.registry }

// Listen binds the chat listener. A bind failure here is the only error that
// is fatal to the whole process.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.ListenAddr, err)
	}
	s.ln = ln
	return nil
}

// Addr returns the bound listener address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Run binds and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve(ctx)
}

// Serve accepts connections in a loop, spawning one handler per connection,
// until ctx is cancelled. It then closes every connection and waits (with a
// timeout) for the handlers to finish.
func (s *Server) Serve(ctx context.Context) error {
	if s.ln == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}

	s.connLog.Started("listening on " + s.ln.Addr().String())

	if s.cfg.HTTPAddr != "" {
		s.httpSrv = newHTTPServer(s.cfg.HTTPAddr, s.HTTPHandler())
		go func() {
			if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("HTTP sidecar failed: %v", err)
			}
		}()
	}

	// Unblock Accept when the context expires.
	go func() {
		<-ctx.Done()
		s.ln.Close()
	}()

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return s.shutdown()
			default:
				s.shutdown()
				return fmt.Errorf("accept: %w", err)
			}
		}
		s.serveConn(newTCPConn(conn, s.cfg.MaxLineLength))
	}
}

// serveConn admits one transport connection, TCP or WebSocket, into the
// handler pipeline. At the connection cap the peer gets a busy notice and is
// closed before any handler state is built.
func (s *Server) serveConn(conn Conn) {
	if !s.acquire() {
		log.Printf("Connection from %s rejected: server at capacity", conn.RemoteAddr())
		s.rejectBusy(conn)
		return
	}

	c := newClient(s, conn)
	log.Printf("Accepted connection from %s (session %s)", c.addr, c.id)
	s.track(c)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.release()
		defer s.untrack(c)
		c.run()
	}()
}

func (s *Server) rejectBusy(conn Conn) {
	if enc, err := s.cipher.Encode("[Server] Server is full. Try again later."); err == nil {
		_ = conn.WriteLine(msgLine(ServerName, enc))
	}
	conn.Close()
}

func (s *Server) acquire() bool {
	select {
	case s.sem <- struct{}{}:
		return true
	default:
		return false
	}
}

func (s *Server) release() { <-s.sem }

func (s *Server) track(c *Client) {
	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) untrack(c *Client) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
}

// shutdown closes the sidecar and every live connection, then waits for the
// handler goroutines, giving up after shutdownTimeout.
func (s *Server) shutdown() error {
	log.Println("Shutting down relay...")

	if s.httpSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			log.Printf("HTTP sidecar shutdown: %v", err)
		}
		cancel()
	}

	s.mu.Lock()
	clients := make([]*Client, 0, len(s.conns))
	for c := range s.conns {
		clients = append(clients, c)
	}
	s.mu.Unlock()
	for _, c := range clients {
		c.close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
		log.Println("All connection handlers finished")
	case <-time.After(shutdownTimeout):
		log.Println("Shutdown timeout reached, some handlers may still be running")
		err = context.DeadlineExceeded
	}

	if cerr := s.connLog.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
