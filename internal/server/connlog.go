// Package server records connection lifecycle events to an append-only
// audit file alongside the process log.
package server

import (
	"fmt"
	"log"
	"os"
	"sync"
	"time"
)

// ConnectionLog is the append-only lifecycle sink: one line per event, in
// arrival order, never rewritten. Every entry is mirrored to the process
// log. A missing or unwritable file degrades to process-log only.
type ConnectionLog struct {
	mu sync.Mutex
	f  *os.File // nil when file logging is disabled
}

// OpenConnectionLog opens path for appending. path may be empty to disable
// the file sink; an open failure is logged and likewise degrades instead of
// failing startup.
func OpenConnectionLog(path string) *ConnectionLog {
	if path == "" {
		return &ConnectionLog{}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		log.Printf("Connection log %s unavailable, continuing without it: %v", path, err)
		return &ConnectionLog{}
	}
	return &ConnectionLog{f: f}
}

// Started records the listener coming up.
func (l *ConnectionLog) Started(detail string) { l.record("STARTED", detail) }

// Connected records an admitted nickname and its remote address.
func (l *ConnectionLog) Connected(nick, addr string) {
	l.record("CONNECTED", fmt.Sprintf("%s from %s", nick, addr))
}

// Disconnected records a nickname leaving the registry.
func (l *ConnectionLog) Disconnected(nick string) { l.record("DISCONNECTED", nick) }

func (l *ConnectionLog) record(event, detail string) {
	entry := fmt.Sprintf("%s - %s: %s", time.Now().Format(time.RFC3339), event, detail)
	log.Print(entry)

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return
	}
	if _, err := fmt.Fprintln(l.f, entry); err != nil {
		log.Printf("Connection log write failed: %v", err)
	}
}

// Close flushes and closes the file sink.
func (l *ConnectionLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}
	f := l.f
	l.f = nil
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
