package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Tool calls are simulated in the low seconds; tests run them in milliseconds.
var durationBuckets = []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 4, 8, 16, 32, 64}

func (r *Registry) initRunMetrics() {
	r.RunsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "workflow_runs_total",
			Help: "Total number of finished workflow runs by final status",
		},
		[]string{"status"},
	)

	r.RunDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "workflow_run_duration_seconds",
			Help:    "Wall time of finished workflow runs",
			Buckets: durationBuckets,
		},
		[]string{"status"},
	)

	r.RunsInFlight = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "workflow_runs_in_flight",
			Help: "Number of workflow runs currently executing",
		},
	)
}

func (r *Registry) initNodeMetrics() {
	r.NodeExecutionsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "workflow_node_executions_total",
			Help: "Total number of settled node executions by type and status",
		},
		[]string{"type", "status"},
	)

	r.NodeDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "workflow_node_duration_seconds",
			Help:    "Time spent running a node, retries included",
			Buckets: durationBuckets,
		},
		[]string{"type"},
	)

	r.NodeRetriesTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "workflow_node_retries_total",
			Help: "Total number of node retry attempts",
		},
		[]string{"type"},
	)
}

func (r *Registry) initHTTPMetrics() {
	r.HTTPRequestsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "workflow_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	r.HTTPRequestDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "workflow_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
}
