// Package metrics holds Prometheus collectors for the service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "scorekeeper"

// Metrics groups every collector the service records.
type Metrics struct {
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
	LedgerOps    *prometheus.CounterVec
	ResetRuns    *prometheus.CounterVec
	ResetUsers   *prometheus.CounterVec
	GRPCRequests *prometheus.CounterVec
	Subscribers  prometheus.GaugeFunc
	gatherer     prometheus.Gatherer
}

// New registers collectors on reg. A nil reg uses a fresh private registry.
// subscribers reports the number of connected event stream clients and may be nil.
func New(reg *prometheus.Registry, subscribers func() float64) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	if subscribers == nil {
		subscribers = func() float64 { return 0 }
	}
	m := &Metrics{
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		LedgerOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "operations_total",
			Help:      "Ledger operations by name and outcome.",
		}, []string{"op", "outcome"}),
		ResetRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reset",
			Name:      "runs_total",
			Help:      "Weekly challenge reset runs by outcome.",
		}, []string{"outcome"}),
		ResetUsers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reset",
			Name:      "users_total",
			Help:      "Users processed by the weekly reset, by outcome.",
		}, []string{"outcome"}),
		GRPCRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "grpc",
			Name:      "requests_total",
			Help:      "gRPC requests by method and code.",
		}, []string{"method", "code"}),
		Subscribers: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "subscribers",
			Help:      "Connected event stream subscribers.",
		}, subscribers),
		gatherer: reg,
	}
	reg.MustRegister(
		m.HTTPRequests, m.HTTPDuration, m.LedgerOps,
		m.ResetRuns, m.ResetUsers, m.GRPCRequests, m.Subscribers,
	)
	return m
}

// Handler exposes the registry in Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Outcome maps an error to the "ok"/"error" label value.
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
