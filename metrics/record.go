package metrics

import (
	"time"
)

// RunStarted marks a run as in flight.
func (r *Registry) RunStarted() {
	r.RunsInFlight.Inc()
}

// RunFinished records a run that reached a terminal status.
func (r *Registry) RunFinished(status string, duration time.Duration) {
	r.RunsInFlight.Dec()
	r.RunsTotal.WithLabelValues(status).Inc()
	r.RunDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordNode records one settled node.
func (r *Registry) RecordNode(nodeType, status string, duration time.Duration) {
	r.NodeExecutionsTotal.WithLabelValues(nodeType, status).Inc()
	if duration > 0 {
		r.NodeDuration.WithLabelValues(nodeType).Observe(duration.Seconds())
	}
}

// RecordRetry counts one retry attempt of a node.
func (r *Registry) RecordRetry(nodeType string) {
	r.NodeRetriesTotal.WithLabelValues(nodeType).Inc()
}

// RecordHTTPRequest records an HTTP request with its duration
func (r *Registry) RecordHTTPRequest(method, route, status string, duration time.Duration) {
	r.HTTPRequestsTotal.WithLabelValues(method, route, status).Inc()
	r.HTTPRequestDuration.WithLabelValues(method, route, status).Observe(duration.Seconds())
}
