// Package server defines the Prometheus instruments exported on the HTTP
// sidecar's /metrics endpoint.
package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the relay's Prometheus instruments behind one registry so
// tests can build isolated instances without collector name collisions.
type Metrics struct {
	ActiveConnections  prometheus.Gauge
	MessagesRouted     *prometheus.CounterVec
	HandshakesRejected prometheus.Counter

	registry *prometheus.Registry
}

// NewMetrics creates and registers the relay's instruments.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "chatline",
			Name:      "active_connections",
			Help:      "Number of connections currently admitted to the registry.",
		}),
		MessagesRouted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatline",
			Name:      "messages_routed_total",
			Help:      "Messages routed, by kind.",
		}, []string{"kind"}),
		HandshakesRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chatline",
			Name:      "handshakes_rejected_total",
			Help:      "Connections rejected during the nickname handshake.",
		}),
		registry: reg,
	}

	reg.MustRegister(m.ActiveConnections, m.MessagesRouted, m.HandshakesRejected)
	return m
}

// Handler serves this instance's metrics in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
