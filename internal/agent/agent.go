// Package agent provides the assistant responder consulted when clients
// address the reserved AI target. The router only ever talks to a Guarded
// responder, so a slow or panicking implementation degrades to a fixed
// fallback instead of stalling the routing path.
package agent

import (
	"fmt"
	"strings"
	"time"
)

// Responder turns one plaintext message into one plaintext reply. It must
// always return a string; blocking and panics are handled by Guard.
type Responder interface {
	Reply(text string) string
}

// FallbackReply is returned whenever the underlying responder times out or
// panics.
const FallbackReply = "Sorry, the assistant is unavailable right now."

// RuleResponder is a small built-in rule table: a stand-in with the shape of
// a real model call. Replace it with a remote implementation for richer
// answers; the server does not care.
type RuleResponder struct {
	now func() time.Time
}

// NewRuleResponder returns the default rule-table responder.
func NewRuleResponder() *RuleResponder {
	return &RuleResponder{now: time.Now}
}

// Reply answers from the rule table, echoing unrecognized input.
func (r *RuleResponder) Reply(text string) string {
	lower := strings.ToLower(strings.TrimSpace(text))
	switch {
	case lower == "":
		return "I didn't get that."
	case strings.HasPrefix(lower, "hi"), strings.HasPrefix(lower, "hello"):
		return "Hello! I'm your chat assistant. Ask me anything or use /help."
	case strings.Contains(lower, "time"):
		return "Server time: " + r.now().Format(time.UnixDate)
	case strings.Contains(lower, "help"):
		return "Try commands: 'time', 'tell me a joke', or ask a question."
	case strings.Contains(lower, "joke"):
		return "Why do programmers prefer dark mode? Because light attracts bugs!"
	default:
		return fmt.Sprintf("I received %q. Hook up a real model for better answers.", text)
	}
}

// Guarded wraps a Responder with a reply deadline and panic containment.
type Guarded struct {
	inner   Responder
	timeout time.Duration
}

// Guard wraps r so that Reply never blocks longer than timeout and never
// propagates a panic. A non-positive timeout defaults to five seconds.
func Guard(r Responder, timeout time.Duration) *Guarded {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Guarded{inner: r, timeout: timeout}
}

// Reply runs the wrapped responder, substituting FallbackReply on timeout or
// panic. A reply that arrives after the deadline is discarded; the goroutine
// running it exits on its own.
func (g *Guarded) Reply(text string) string {
	done := make(chan string, 1)
	go func() {
		defer func() {
			if recover() != nil {
				done <- FallbackReply
			}
		}()
		done <- g.inner.Reply(text)
	}()

	select {
	case reply := <-done:
		return reply
	case <-time.After(g.timeout):
		return FallbackReply
	}
}
