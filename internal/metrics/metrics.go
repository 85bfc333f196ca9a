// Package metrics exposes matchmaking and signaling counters to Prometheus.
//
// A nil *Metrics is valid and records nothing, so core components can be
// built in tests without a registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "roulette"

type Metrics struct {
	reg *prometheus.Registry

	online         prometheus.Gauge
	waiting        prometheus.Gauge
	activeSessions prometheus.Gauge
	pairs          prometheus.Counter
	closed         *prometheus.CounterVec
	signals        *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		online: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "online_users",
			Help: "Users currently connected.",
		}),
		waiting: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "queue_waiting",
			Help: "Users waiting in the match queue.",
		}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "sessions_open",
			Help: "Sessions not yet closed.",
		}),
		pairs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "pairs_total",
			Help: "Sessions created by the match queue.",
		}),
		closed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "sessions_closed_total",
			Help: "Sessions closed, by reason.",
		}, []string{"reason"}),
		signals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "signals_total",
			Help: "Signaling messages submitted, by kind and result code.",
		}, []string{"kind", "result"}),
	}
	m.reg.MustRegister(
		m.online, m.waiting, m.activeSessions, m.pairs, m.closed, m.signals,
		collectors.NewGoCollector(),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

func (m *Metrics) SetOnline(n int) {
	if m == nil {
		return
	}
	m.online.Set(float64(n))
}

func (m *Metrics) SetWaiting(n int) {
	if m == nil {
		return
	}
	m.waiting.Set(float64(n))
}

func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.pairs.Inc()
	m.activeSessions.Inc()
}

func (m *Metrics) SessionClosed(reason string) {
	if m == nil {
		return
	}
	m.activeSessions.Dec()
	m.closed.WithLabelValues(reason).Inc()
}

func (m *Metrics) Signal(kind, result string) {
	if m == nil {
		return
	}
	m.signals.WithLabelValues(kind, result).Inc()
}
