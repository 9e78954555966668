// Package `metrics` defines the Prometheus collectors exported by the server.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcomes of an authentication handshake.
const (
	AuthOK        = "ok"
	AuthFailed    = "failed"
	AuthTimeout   = "timeout"
	AuthMalformed = "malformed"
)

// Outcomes of a dispatched call.
const (
	CallOK     = "ok"
	CallFailed = "failed"
)

// Metrics holds the server's collectors on their own registry, so several
// servers (e.g. in tests) don't collide on the global one.
type Metrics struct {
	registry *prometheus.Registry

	Connections prometheus.Gauge
	Sessions    prometheus.Gauge
	Auth        *prometheus.CounterVec
	Calls       *prometheus.CounterVec
	Broadcasts  prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "dmbn",
			Name:      "connections",
			Help:      "Open connections, authenticated or not.",
		}),
		Sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "dmbn",
			Name:      "sessions",
			Help:      "Authenticated sessions.",
		}),
		Auth: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dmbn",
			Name:      "auth_total",
			Help:      "Authentication handshakes by result.",
		}, []string{"result"}),
		Calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dmbn",
			Name:      "calls_total",
			Help:      "Dispatched method calls by method and result.",
		}, []string{"method", "result"}),
		Broadcasts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dmbn",
			Name:      "broadcasts_total",
			Help:      "Broadcasts sent to all sessions.",
		}),
	}
	m.registry.MustRegister(
		m.Connections,
		m.Sessions,
		m.Auth,
		m.Calls,
		m.Broadcasts,
		collectors.NewGoCollector(),
	)
	return m
}

// Handler serves the collectors in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
