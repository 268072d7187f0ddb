package server

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestConnectionLogAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conn.log")

	l := OpenConnectionLog(path)
	l.Started("listening on 127.0.0.1:0")
	l.Connected("alice", "127.0.0.1:50000")
	l.Disconnected("alice")
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// A second session appends; earlier entries are never rewritten.
	l = OpenConnectionLog(path)
	l.Connected("bob", "127.0.0.1:50001")
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("log has %d lines, want 4:\n%s", len(lines), data)
	}

	wantEvents := []string{"STARTED", "CONNECTED: alice", "DISCONNECTED: alice", "CONNECTED: bob"}
	for i, want := range wantEvents {
		if !strings.Contains(lines[i], want) {
			t.Errorf("line %d = %q, want it to contain %q", i, lines[i], want)
		}
	}
}

func TestConnectionLogDegradesWithoutFile(t *testing.T) {
	l := OpenConnectionLog("")
	l.Started("no file sink")
	l.Connected("alice", "127.0.0.1:50000")
	if err := l.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}

	// An unwritable path degrades instead of failing startup.
	l = OpenConnectionLog(filepath.Join(t.TempDir(), "missing", "deeply", "conn.log"))
	l.Disconnected("alice")
	if err := l.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}
