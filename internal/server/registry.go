// Package server coordinates nickname admission, user-list broadcast, and
// connection cleanup for the chatline relay via the Registry type.
package server

import "sync"

// Registry is the single source of truth for who is online. It maps active
// nicknames to their handlers and serializes every mutation and enumeration
// behind one mutex, so no reader can observe a half-updated set. Entries are
// non-owning: the registry broadcasts to clients but never manages their
// sockets.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]*Client
	metrics *Metrics
}

// NewRegistry creates an empty registry. metrics may be nil in tests.
func NewRegistry(metrics *Metrics) *Registry {
	return &Registry{
		clients: make(map[string]*Client),
		metrics: metrics,
	}
}

// Admit atomically claims nick for c and broadcasts the updated user list.
// It reports false without mutating anything when the nickname is already
// active; the incumbent connection is never evicted.
func (r *Registry) Admit(nick string, c *Client) bool {
	r.mu.Lock()
	if _, taken := r.clients[nick]; taken {
		r.mu.Unlock()
		return false
	}
	r.clients[nick] = c
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.ActiveConnections.Inc()
	}
	r.BroadcastUserList()
	return true
}

// Remove atomically drops nick and broadcasts the updated user list.
// Removing an absent nickname is a no-op, which keeps handler teardown
// idempotent from any state.
func (r *Registry) Remove(nick string) {
	r.mu.Lock()
	_, present := r.clients[nick]
	if present {
		delete(r.clients, nick)
	}
	r.mu.Unlock()

	if !present {
		return
	}
	if r.metrics != nil {
		r.metrics.ActiveConnections.Dec()
	}
	r.BroadcastUserList()
}

// lookup resolves an active nickname to its handler.
func (r *Registry) lookup(nick string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[nick]
	return c, ok
}

// SnapshotNicknames returns a point-in-time copy of the active nicknames.
// Callers own the slice; the live map is never exposed. Enumeration order is
// unspecified and may differ between calls.
func (r *Registry) SnapshotNicknames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	nicks := make([]string, 0, len(r.clients))
	for nick := range r.clients {
		nicks = append(nicks, nick)
	}
	return nicks
}

// snapshotClients copies the active handlers for a fan-out. Delivery happens
// on the copy, outside the lock, so a slow peer never stalls admission.
func (r *Registry) snapshotClients() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	clients := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		clients = append(clients, c)
	}
	return clients
}

// Count returns the number of active connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// BroadcastUserList sends the current user list to every active handler as a
// full replacement. The nickname snapshot and the handler snapshot are taken
// under one read lock so a single broadcast never mixes two generations of
// the set.
func (r *Registry) BroadcastUserList() {
	r.mu.RLock()
	nicks := make([]string, 0, len(r.clients))
	clients := make([]*Client, 0, len(r.clients))
	for nick, c := range r.clients {
		nicks = append(nicks, nick)
		clients = append(clients, c)
	}
	r.mu.RUnlock()

	line := userListLine(nicks)
	for _, c := range clients {
		c.deliver(line)
	}
}
