// Package metrics exposes operational counters for the session engine.
// Auth-failure reconnects are counted separately from transport drops
// so a credential loop is visible as such on a dashboard.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the counters. A nil *Metrics is a valid no-op receiver
// so tests and the listen-only deployment can skip it.
type Metrics struct {
	registry       *prometheus.Registry
	reconnects     *prometheus.CounterVec
	authFailures   prometheus.Counter
	dispatches     prometheus.Counter
	cooldownSkips  prometheus.Counter
	sessionsActive prometheus.Gauge
}

// New builds a Metrics instance with its own registry, so multiple
// instances can coexist in tests.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		reconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatlink_reconnect_attempts_total",
			Help: "Reconnect attempts, by failure code.",
		}, []string{"code"}),
		authFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatlink_auth_failures_total",
			Help: "Authentication-failure notices received.",
		}),
		dispatches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatlink_commands_dispatched_total",
			Help: "Command responses sent.",
		}),
		cooldownSkips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatlink_commands_cooldown_skips_total",
			Help: "Command triggers dropped by cooldown.",
		}),
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chatlink_sessions_active",
			Help: "Sessions currently registered.",
		}),
	}
	m.registry.MustRegister(m.reconnects, m.authFailures, m.dispatches, m.cooldownSkips, m.sessionsActive)
	return m
}

// Handler serves the registry in prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Reconnect(code string) {
	if m == nil {
		return
	}
	m.reconnects.WithLabelValues(code).Inc()
}

func (m *Metrics) AuthFailure() {
	if m == nil {
		return
	}
	m.authFailures.Inc()
}

func (m *Metrics) CommandDispatched() {
	if m == nil {
		return
	}
	m.dispatches.Inc()
}

func (m *Metrics) CooldownSkip() {
	if m == nil {
		return
	}
	m.cooldownSkips.Inc()
}

func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.sessionsActive.Set(float64(n))
}
