// Copyright 2025 Joseph Cumines
//
// Prometheus metrics for client calls and MCP tool requests

package transport

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc/codes"
)

// latencyBuckets are the histogram upper bounds, in seconds.
var latencyBuckets = []float64{
	0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0,
}

// Metrics holds the collectors of one process, on a private registry.
// It implements dispatch.Recorder.
type Metrics struct {
	registry        *prometheus.Registry
	calls           *prometheus.CounterVec
	callDuration    *prometheus.HistogramVec
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	rateLimited     *prometheus.CounterVec
}

// NewMetrics creates and registers the collectors. Go runtime and process
// collectors are included when withRuntime is set.
func NewMetrics(withRuntime bool) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lro_client_calls_total",
			Help: "Operations service calls by method and final status code.",
		}, []string{"method", "code"}),
		callDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lro_client_call_duration_seconds",
			Help:    "Operations service call latency, retries included.",
			Buckets: latencyBuckets,
		}, []string{"method"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lro_mcp_requests_total",
			Help: "MCP tool calls by tool and outcome.",
		}, []string{"tool", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lro_mcp_request_duration_seconds",
			Help:    "MCP tool call latency.",
			Buckets: latencyBuckets,
		}, []string{"tool"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lro_mcp_rate_limited_total",
			Help: "MCP tool calls rejected by the rate limiter.",
		}, []string{"tool"}),
	}
	m.registry.MustRegister(m.calls, m.callDuration, m.requests, m.requestDuration, m.rateLimited)
	if withRuntime {
		m.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return m
}

// RecordCall records one completed Operations service call.
func (m *Metrics) RecordCall(method string, code codes.Code, duration time.Duration) {
	m.calls.WithLabelValues(method, code.String()).Inc()
	m.callDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordRequest records one MCP tool call.
func (m *Metrics) RecordRequest(tool string, status string, duration time.Duration) {
	m.requests.WithLabelValues(tool, status).Inc()
	m.requestDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

// RecordRateLimited records a tool call rejected before it ran.
func (m *Metrics) RecordRateLimited(tool string) {
	m.rateLimited.WithLabelValues(tool).Inc()
}

// Gatherer exposes the registry, e.g. for tests.
func (m *Metrics) Gatherer() prometheus.Gatherer { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
