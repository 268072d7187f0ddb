// Package server routes parsed messages to their targets: broadcast, a
// single nickname, or the assistant.
package server

import (
	"fmt"
	"log"
	"strings"

	"github.com/chatline/chatline/internal/agent"
	"github.com/chatline/chatline/internal/codec"
)

// Router decides where each parsed message goes: everyone, one nickname, or
// the assistant. It consults the registry for targets and never holds its
// lock across a delivery.
type Router struct {
	registry  *Registry
	cipher    codec.Cipher
	responder agent.Responder
	metrics   *Metrics
}

// NewRouter wires the router to its collaborators. responder should already
// be guarded against stalls; metrics may be nil in tests.
func NewRouter(registry *Registry, cipher codec.Cipher, responder agent.Responder, metrics *Metrics) *Router {
	return &Router{
		registry:  registry,
		cipher:    cipher,
		responder: responder,
		metrics:   metrics,
	}
}

// Route dispatches one message. A sender that is no longer registered lost a
// race with its own teardown; delivery is best-effort, so that is a silent
// no-op. Routing failures never propagate to the caller.
func (rt *Router) Route(from, to, payload string) {
	sender, ok := rt.registry.lookup(from)
	if !ok {
		return
	}

	switch {
	case to == BroadcastTarget:
		rt.broadcast(from, payload)
	case strings.EqualFold(to, AssistantName):
		rt.askAssistant(sender, payload)
	default:
		rt.direct(sender, from, to, payload)
	}
}

// broadcast fans the message out to every active connection. The sender is
// included on purpose: clients rely on seeing their own message echoed back.
func (rt *Router) broadcast(from, payload string) {
	line := msgLine(from, payload)
	for _, c := range rt.registry.snapshotClients() {
		c.deliver(line)
	}
	rt.count("broadcast")
}

// direct forwards the payload verbatim. The relay never decodes traffic
// between users, so end-to-end semantics survive even though it knows the
// key. An offline target turns into a notice to the sender alone.
func (rt *Router) direct(sender *Client, from, to, payload string) {
	target, ok := rt.registry.lookup(to)
	if !ok {
		rt.notify(sender, fmt.Sprintf("User '%s' not found.", to))
		rt.count("miss")
		return
	}
	target.deliver(msgLine(from, payload))
	rt.count("direct")
}

// askAssistant decodes the payload, consults the responder, and replies to
// the sender only, tagged as coming from the assistant. No other client's
// state is touched.
func (rt *Router) askAssistant(sender *Client, payload string) {
	plain, err := rt.cipher.Decode(payload)
	if err != nil {
		log.Printf("Assistant request from %s: %v", sender.nick, err)
		rt.notify(sender, "Your message could not be decoded.")
		return
	}

	reply := rt.responder.Reply(plain)
	enc, err := rt.cipher.Encode(reply)
	if err != nil {
		log.Printf("Assistant reply for %s: %v", sender.nick, err)
		return
	}
	sender.deliver(msgLine(AssistantName, enc))
	rt.count("ai")
}

// notify sends a server-origin text notice to one client. Notices are
// encoded like any other payload so clients decode every incoming line the
// same way.
func (rt *Router) notify(c *Client, text string) {
	enc, err := rt.cipher.Encode("[Server] " + text)
	if err != nil {
		return
	}
	c.deliver(msgLine(ServerName, enc))
}

func (rt *Router) count(kind string) {
	if rt.metrics != nil {
		rt.metrics.MessagesRouted.WithLabelValues(kind).Inc()
	}
}
