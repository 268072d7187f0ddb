// Package server manages individual client connections, handling the
// nickname handshake, read loop, write pump, rate limiting, and lifecycle
// control for each connection.
package server

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Client owns one connection's lifecycle: AwaitingNick until the handshake
// admits it, Active while the read loop runs, then Closing/Closed on EOF,
// I/O error, or shutdown. Its write pump is the only goroutine that touches
// the outbound stream, so concurrent sends never interleave partial lines.
type Client struct {
	id      string
	conn    Conn
	srv     *Server
	addr    string
	nick    string // set once by handshake; empty until then
	send    chan string
	done    chan struct{}
	closing sync.Once
	limiter *rateLimiter
}

func newClient(srv *Server, conn Conn) *Client {
	return &Client{
		id:      uuid.NewString(),
		conn:    conn,
		srv:     srv,
		addr:    conn.RemoteAddr(),
		send:    make(chan string, 256),
		done:    make(chan struct{}),
		limiter: newRateLimiter(srv.cfg.RateLimit.Burst, srv.cfg.RateLimit.RefillInterval),
	}
}

// run drives the connection state machine. It returns when the connection is
// fully torn down.
func (c *Client) run() {
	defer c.teardown()

	if !c.handshake() {
		return
	}

	go c.writePump()
	c.readLoop()
}

// handshake reads exactly one line and expects a nickname claim. The write
// pump is not running yet, so rejection notices are written synchronously
// and reach the peer before the socket closes.
func (c *Client) handshake() bool {
	c.armReadDeadline()

	line, err := c.conn.ReadLine()
	if err != nil {
		if !isExpectedCloseError(err) {
			log.Printf("Handshake read from %s failed: %v", c.addr, err)
		}
		return false
	}

	nick, ok := parseNickLine(line)
	if !ok {
		log.Printf("Handshake from %s rejected: no valid nickname claim", c.addr)
		c.writeNotice("No nickname provided. Connection closing.")
		return false
	}

	if !c.srv.registry.Admit(nick, c) {
		log.Printf("Handshake from %s rejected: nickname %q already taken", c.addr, nick)
		c.srv.metrics.HandshakesRejected.Inc()
		c.writeNotice(fmt.Sprintf("Nickname '%s' is already taken. Connection closing.", nick))
		return false
	}

	c.nick = nick
	c.srv.connLog.Connected(nick, c.addr)
	return true
}

// readLoop reads one line at a time and forwards well-formed message sends
// to the router. Malformed lines are logged and ignored; over-limit lines
// are dropped. Only a transport error ends the loop.
func (c *Client) readLoop() {
	for {
		c.armReadDeadline()

		line, err := c.conn.ReadLine()
		if err != nil {
			c.logReadError(err)
			return
		}
		if line == "" {
			continue
		}

		req, ok := parseMsgLine(line)
		if !ok {
			log.Printf("Ignoring malformed line from %s (%s)", c.nick, c.addr)
			continue
		}

		if !c.limiter.allow() {
			log.Printf("Rate limit exceeded for %s (%s); discarding message", c.nick, c.addr)
			continue
		}

		c.srv.router.Route(c.nick, req.target, req.payload)
	}
}

// deliver enqueues one complete protocol line for the write pump. It never
// blocks the caller: a peer whose buffer is full is considered stuck and is
// torn down, mirroring how a dead socket would surface.
func (c *Client) deliver(line string) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- line:
		return true
	default:
		log.Printf("Send buffer full for %s (%s); dropping connection", c.nick, c.addr)
		c.close()
		return false
	}
}

func (c *Client) writePump() {
	for {
		select {
		case <-c.done:
			return
		case line := <-c.send:
			if err := c.conn.WriteLine(line); err != nil {
				if !isExpectedCloseError(err) {
					log.Printf("Write to %s (%s) failed: %v", c.nick, c.addr, err)
				}
				c.close()
				return
			}
		}
	}
}

// writeNotice sends a server-origin notice synchronously. Only valid before
// the write pump starts.
func (c *Client) writeNotice(text string) {
	enc, err := c.srv.cipher.Encode("[Server] " + text)
	if err != nil {
		return
	}
	if err := c.conn.WriteLine(msgLine(ServerName, enc)); err != nil && !isExpectedCloseError(err) {
		log.Printf("Notice to %s failed: %v", c.addr, err)
	}
}

// close signals shutdown and unblocks the pending read. Safe to call from
// any goroutine, any number of times.
func (c *Client) close() {
	c.closing.Do(func() {
		close(c.done)
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			log.Printf("Error closing connection from %s: %v", c.addr, err)
		}
	})
}

// teardown moves the connection to its terminal state: socket closed,
// registry entry gone (a no-op when the handshake never admitted us), event
// logged. After this the client is unreachable except as garbage.
func (c *Client) teardown() {
	c.close()
	if c.nick != "" {
		c.srv.registry.Remove(c.nick)
		c.srv.connLog.Disconnected(c.nick)
	}
}

func (c *Client) armReadDeadline() {
	if c.srv.cfg.ReadDeadline <= 0 {
		return
	}
	if err := c.conn.SetReadDeadline(time.Now().Add(c.srv.cfg.ReadDeadline)); err != nil {
		log.Printf("Error setting read deadline for %s: %v", c.addr, err)
	}
}

func (c *Client) logReadError(err error) {
	var netErr net.Error
	switch {
	case errors.Is(err, io.EOF):
		log.Printf("Client %s (%s) disconnected", c.nick, c.addr)
	case errors.As(err, &netErr) && netErr.Timeout():
		log.Printf("Client %s (%s) idle past read deadline; closing", c.nick, c.addr)
	case errors.Is(err, bufio.ErrTooLong):
		log.Printf("Client %s (%s) sent an oversized line; closing", c.nick, c.addr)
	case isExpectedCloseError(err):
	default:
		log.Printf("Read error from %s (%s): %v", c.nick, c.addr, err)
	}
}
