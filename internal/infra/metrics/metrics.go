// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups every collector on a private registry so tests and
// multiple servers in one process do not collide.
type Metrics struct {
	Registry *prometheus.Registry

	QueueDepth         prometheus.Gauge
	Invocations        *prometheus.CounterVec
	InvocationDuration *prometheus.HistogramVec
	SessionsCompleted  *prometheus.CounterVec
	HTTPRequests       *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "invoke",
			Name:      "queue_depth",
			Help:      "Number of invocations waiting in the queue.",
		}),
		Invocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "invoke",
			Name:      "invocations_total",
			Help:      "Invocations run, by node type and status.",
		}, []string{"type", "status"}),
		InvocationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "invoke",
			Name:      "invocation_duration_seconds",
			Help:      "Time spent running one invocation.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"type"}),
		SessionsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "invoke",
			Name:      "sessions_completed_total",
			Help:      "Sessions that finished, by outcome.",
		}, []string{"outcome"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "invoke",
			Name:      "http_requests_total",
			Help:      "API requests, by route and status code.",
		}, []string{"route", "code"}),
	}

	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.QueueDepth,
		m.Invocations,
		m.InvocationDuration,
		m.SessionsCompleted,
		m.HTTPRequests,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}
