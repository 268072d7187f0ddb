// Package server implements the chatline relay: nickname handshake,
// live-user registry, message routing (broadcast, direct, and assistant),
// and the TCP and WebSocket transports that carry the line protocol.
package server
