package integration

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/chatline/chatline/internal/server"
	"github.com/chatline/chatline/test/testhelpers"
)

// TestGracefulShutdown cancels the serve context and verifies that the
// accept loop returns, every client socket is closed, and nothing leaks past
// the shutdown timeout.
func TestGracefulShutdown(t *testing.T) {
	cfg := server.NewConfig()
	cfg.ListenAddr = "127.0.0.1:0"
	cfg.ConnectionLog = ""

	srv, err := server.NewServer(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := srv.Listen(); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- srv.Serve(ctx) }()

	addr := srv.Addr().String()
	alice := testhelpers.Handshake(t, addr, "alice")
	bob := testhelpers.Handshake(t, addr, "bob")
	alice.ExpectUserList(t, "alice", "bob")

	cancel()

	select {
	case err := <-served:
		if err != nil {
			t.Errorf("Serve returned %v after cancellation", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Serve did not return after cancellation")
	}

	// Both peers observe the close; a final broadcast may drain first, but
	// the socket must die within a few reads.
	for _, c := range []*testhelpers.ChatConn{alice, bob} {
		closed := false
		for i := 0; i < 5; i++ {
			if _, ok := c.TryReadLine(500 * time.Millisecond); !ok {
				closed = true
				break
			}
		}
		if !closed {
			t.Error("peer connection still readable after shutdown")
		}
	}

	// New connections are refused once the listener is down.
	if _, err := net.DialTimeout("tcp", addr, time.Second); err == nil {
		t.Error("dial succeeded after shutdown")
	}
}
