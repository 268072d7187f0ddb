// Package server abstracts the TCP and WebSocket transports behind a single
// line-oriented connection interface.
package server

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// Conn abstracts one client transport so the handler, registry, and router
// never care whether a peer arrived over raw TCP or the WebSocket bridge.
// One protocol line maps to one ReadLine/WriteLine call.
type Conn interface {
	// ReadLine returns the next protocol line without its terminator.
	// It returns io.EOF when the peer hangs up.
	ReadLine() (string, error)

	// WriteLine sends one complete protocol line.
	WriteLine(line string) error

	// SetReadDeadline bounds the next ReadLine.
	SetReadDeadline(t time.Time) error

	// RemoteAddr identifies the peer for logging.
	RemoteAddr() string

	Close() error
}

// tcpConn frames newline-delimited lines over a stream socket.
type tcpConn struct {
	c  net.Conn
	sc *bufio.Scanner
}

func newTCPConn(c net.Conn, maxLineLength int) *tcpConn {
	// The scanner's limit is the larger of max and the initial capacity, so
	// the initial buffer must not exceed the configured line length.
	initial := 4096
	if maxLineLength < initial {
		initial = maxLineLength
	}
	sc := bufio.NewScanner(c)
	sc.Buffer(make([]byte, 0, initial), maxLineLength)
	return &tcpConn{c: c, sc: sc}
}

func (t *tcpConn) ReadLine() (string, error) {
	if !t.sc.Scan() {
		if err := t.sc.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return strings.TrimRight(t.sc.Text(), "\r"), nil
}

func (t *tcpConn) WriteLine(line string) error {
	_, err := fmt.Fprintf(t.c, "%s\n", line)
	return err
}

func (t *tcpConn) SetReadDeadline(deadline time.Time) error {
	return t.c.SetReadDeadline(deadline)
}

func (t *tcpConn) RemoteAddr() string { return t.c.RemoteAddr().String() }

func (t *tcpConn) Close() error { return t.c.Close() }

// wsConn carries the same protocol with one text frame per line, no
// terminator inside the frame.
type wsConn struct {
	c *websocket.Conn
}

func newWSConn(c *websocket.Conn, maxLineLength int) *wsConn {
	c.SetReadLimit(int64(maxLineLength))
	return &wsConn{c: c}
}

func (w *wsConn) ReadLine() (string, error) {
	for {
		kind, data, err := w.c.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure) {
				return "", io.EOF
			}
			return "", err
		}
		if kind != websocket.TextMessage {
			continue
		}
		return strings.TrimRight(string(data), "\r\n"), nil
	}
}

func (w *wsConn) WriteLine(line string) error {
	return w.c.WriteMessage(websocket.TextMessage, []byte(line))
}

func (w *wsConn) SetReadDeadline(deadline time.Time) error {
	return w.c.SetReadDeadline(deadline)
}

func (w *wsConn) RemoteAddr() string { return w.c.RemoteAddr().String() }

func (w *wsConn) Close() error { return w.c.Close() }

// isExpectedCloseError reports errors that routinely show up while tearing a
// connection down and are not worth logging as failures.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
