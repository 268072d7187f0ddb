package integration

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chatline/chatline/test/testhelpers"
)

// wsDial upgrades against the relay's HTTP handler, optionally with an
// Origin header.
func wsDial(t *testing.T, httpURL, origin string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(httpURL, "http") + "/ws"

	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	headers := http.Header{}
	if origin != "" {
		headers.Set("Origin", origin)
	}
	conn, resp, err := dialer.Dial(wsURL, headers)
	if conn != nil {
		t.Cleanup(func() { conn.Close() })
	}
	if resp != nil && resp.Body != nil {
		t.Cleanup(func() { resp.Body.Close() })
	}
	return conn, resp, err
}

func wsSend(t *testing.T, conn *websocket.Conn, line string) {
	t.Helper()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(line)); err != nil {
		t.Fatalf("ws send %q: %v", line, err)
	}
}

func wsReadLine(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(testhelpers.LineTimeout)); err != nil {
		t.Fatal(err)
	}
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ws read: %v", err)
	}
	return string(data)
}

// TestWebSocketBridge runs a browser-style client and a TCP client in the
// same room: both transports carry the identical line protocol, so they see
// each other through the one registry.
func TestWebSocketBridge(t *testing.T) {
	srv, addr := testhelpers.StartRelay(t, nil)
	cipher := testhelpers.Cipher(t)

	web := httptest.NewServer(srv.HTTPHandler())
	defer web.Close()

	alice := testhelpers.Handshake(t, addr, "alice")

	ws, _, err := wsDial(t, web.URL, "")
	if err != nil {
		t.Fatalf("ws dial: %v", err)
	}
	wsSend(t, ws, "NICK::wendy")
	if line := wsReadLine(t, ws); !strings.HasPrefix(line, "USERLIST::") {
		t.Fatalf("ws handshake got %q, want a USERLIST", line)
	}
	alice.ExpectUserList(t, "alice", "wendy")

	// TCP -> WS direct.
	alice.Send(t, "MSG::wendy::"+testhelpers.Encode(t, cipher, "hello bridge"))
	line := wsReadLine(t, ws)
	if !strings.HasPrefix(line, "MSG::alice::") {
		t.Fatalf("ws got %q, want a message from alice", line)
	}
	if text, err := cipher.Decode(strings.TrimPrefix(line, "MSG::alice::")); err != nil || text != "hello bridge" {
		t.Fatalf("ws payload = %q (err %v)", text, err)
	}

	// WS -> TCP broadcast, sender echo included.
	wsSend(t, ws, "MSG::*::"+testhelpers.Encode(t, cipher, "hi from the browser"))
	alice.ExpectMessage(t, cipher, "wendy", "hi from the browser")
	if line := wsReadLine(t, ws); !strings.HasPrefix(line, "MSG::wendy::") {
		t.Errorf("ws sender echo = %q", line)
	}

	// WS client leaving shrinks the list for TCP peers.
	ws.Close()
	alice.ExpectUserList(t, "alice")
}

func TestWebSocketOriginPolicy(t *testing.T) {
	srv, _ := testhelpers.StartRelay(t, nil)
	web := httptest.NewServer(srv.HTTPHandler())
	defer web.Close()

	// The default allow-list admits localhost:8080 and nothing else.
	if _, _, err := wsDial(t, web.URL, "http://evil.example"); err == nil {
		t.Error("upgrade succeeded from a disallowed origin")
	}
	if conn, _, err := wsDial(t, web.URL, "http://localhost:8080"); err != nil {
		t.Errorf("upgrade failed from an allowed origin: %v", err)
	} else {
		conn.Close()
	}
}

func TestHealthAndMetricsEndpoints(t *testing.T) {
	srv, addr := testhelpers.StartRelay(t, nil)
	web := httptest.NewServer(srv.HTTPHandler())
	defer web.Close()

	testhelpers.Handshake(t, addr, "alice")

	resp, err := http.Get(web.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "running") {
		t.Errorf("health = %d %q", resp.StatusCode, body)
	}

	resp, err = http.Get(web.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics status = %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), "chatline_active_connections 1") {
		t.Errorf("metrics output missing active connection gauge:\n%s", body)
	}
}
