// Package testhelpers provides common utilities for exercising the chatline
// relay over real connections: starting a relay on an ephemeral port,
// dialing and handshaking clients, and asserting on protocol lines.
package testhelpers

import (
	"bufio"
	"context"
	"net"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/chatline/chatline/internal/codec"
	"github.com/chatline/chatline/internal/server"
)

// LineTimeout bounds every single-line read in the helpers.
const LineTimeout = 2 * time.Second

// StartRelay boots a relay on an ephemeral port and tears it down when the
// test finishes. It returns the relay and its dialable address.
func StartRelay(t *testing.T, cfg *server.Config) (*server.Server, string) {
	t.Helper()

	if cfg == nil {
		cfg = server.NewConfig()
	}
	cfg.ListenAddr = "127.0.0.1:0"
	cfg.ConnectionLog = ""

	srv, err := server.NewServer(cfg, nil)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	if err := srv.Listen(); err != nil {
		t.Fatalf("Listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := srv.Serve(ctx); err != nil && ctx.Err() == nil {
			t.Errorf("Serve: %v", err)
		}
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(10 * time.Second):
			t.Error("relay did not shut down in time")
		}
	})

	return srv, srv.Addr().String()
}

// ChatConn is one test client: a TCP connection plus a buffered line reader.
type ChatConn struct {
	Conn net.Conn
	r    *bufio.Reader
}

// Dial connects to the relay without handshaking.
func Dial(t *testing.T, addr string) *ChatConn {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, LineTimeout)
	if err != nil {
		t.Fatalf("dial %s: %v", addr, err)
	}
	t.Cleanup(func() { conn.Close() })
	return &ChatConn{Conn: conn, r: bufio.NewReader(conn)}
}

// Handshake dials and claims a nickname, consuming the first user-list
// broadcast so subsequent reads start from message traffic.
func Handshake(t *testing.T, addr, nick string) *ChatConn {
	t.Helper()
	c := Dial(t, addr)
	c.Send(t, "NICK::"+nick)

	line := c.ReadLine(t)
	if !strings.HasPrefix(line, "USERLIST::") {
		t.Fatalf("handshake as %q: first line %q, want a USERLIST", nick, line)
	}
	return c
}

// Send writes one protocol line.
func (c *ChatConn) Send(t *testing.T, line string) {
	t.Helper()
	if err := c.Conn.SetWriteDeadline(time.Now().Add(LineTimeout)); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Conn.Write([]byte(line + "\n")); err != nil {
		t.Fatalf("send %q: %v", line, err)
	}
}

// ReadLine returns the next protocol line, failing the test on timeout.
func (c *ChatConn) ReadLine(t *testing.T) string {
	t.Helper()
	if err := c.Conn.SetReadDeadline(time.Now().Add(LineTimeout)); err != nil {
		t.Fatal(err)
	}
	line, err := c.r.ReadString('\n')
	if err != nil {
		t.Fatalf("read line: %v", err)
	}
	return strings.TrimRight(line, "\r\n")
}

// TryReadLine returns the next line, or ok=false if the connection closes
// or nothing arrives before the timeout.
func (c *ChatConn) TryReadLine(timeout time.Duration) (string, bool) {
	if err := c.Conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return "", false
	}
	line, err := c.r.ReadString('\n')
	if err != nil {
		return "", false
	}
	return strings.TrimRight(line, "\r\n"), true
}

// ExpectUserList reads lines until a USERLIST arrives and asserts its
// nickname set, ignoring order.
func (c *ChatConn) ExpectUserList(t *testing.T, nicks ...string) {
	t.Helper()
	for {
		line := c.ReadLine(t)
		rest, ok := strings.CutPrefix(line, "USERLIST::")
		if !ok {
			continue
		}
		var got []string
		if rest != "" {
			got = strings.Split(rest, ",")
		}
		sort.Strings(got)
		want := append([]string(nil), nicks...)
		sort.Strings(want)
		if strings.Join(got, ",") != strings.Join(want, ",") {
			t.Fatalf("user list = %v, want %v", got, want)
		}
		return
	}
}

// ExpectMessage reads lines until a MSG arrives, then asserts its origin and
// decoded text.
func (c *ChatConn) ExpectMessage(t *testing.T, cipher codec.Cipher, from, text string) {
	t.Helper()
	for {
		line := c.ReadLine(t)
		if !strings.HasPrefix(line, "MSG::") {
			continue
		}
		parts := strings.SplitN(line, "::", 3)
		if len(parts) != 3 {
			t.Fatalf("malformed message line %q", line)
		}
		if parts[1] != from {
			t.Fatalf("message from %q, want %q (line %q)", parts[1], from, line)
		}
		got, err := cipher.Decode(parts[2])
		if err != nil {
			t.Fatalf("decode payload of %q: %v", line, err)
		}
		if got != text {
			t.Fatalf("message text = %q, want %q", got, text)
		}
		return
	}
}

// Cipher builds the default test cipher matching StartRelay's default key.
func Cipher(t *testing.T) codec.Cipher {
	t.Helper()
	c, err := codec.NewXORBase64([]byte("demo-key"))
	if err != nil {
		t.Fatal(err)
	}
	return c
}

// Encode encodes text with the test cipher, failing the test on error.
func Encode(t *testing.T, cipher codec.Cipher, text string) string {
	t.Helper()
	enc, err := cipher.Encode(text)
	if err != nil {
		t.Fatal(err)
	}
	return enc
}
