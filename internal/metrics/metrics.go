// Package metrics holds the Prometheus collectors for outbound backend calls
// and backend health.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "voicegateway"

// Retry layers.
const (
	LayerTransport = "transport"
	LayerOperation = "operation"
)

var (
	// backendRequestDuration is a histogram of single outbound attempts.
	backendRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_request_duration_seconds",
			Help:      "Duration of single outbound backend attempts in seconds",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"service", "method"},
	)

	// backendRequestsTotal counts outbound attempts by outcome.
	backendRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_requests_total",
			Help:      "Total number of outbound backend attempts",
		},
		[]string{"service", "method", "outcome"}, // outcome: ok, 4xx, 5xx, error
	)

	// backendRetriesTotal counts retries per layer.
	backendRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_retries_total",
			Help:      "Total number of retried backend calls",
		},
		[]string{"service", "layer"},
	)

	// serviceUp is 1 when the last health check reported the backend healthy.
	serviceUp = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "service_up",
			Help:      "Whether the backend was healthy at the last health check",
		},
		[]string{"service"},
	)

	allMetrics = []prometheus.Collector{
		backendRequestDuration,
		backendRequestsTotal,
		backendRetriesTotal,
		serviceUp,
	}
)

// NewRegistry returns a registry holding the gateway collectors plus Go runtime metrics.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	for _, collector := range allMetrics {
		reg.MustRegister(collector)
	}
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

// Handler serves the given registry.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// RecordBackendRequest records one outbound attempt. status is zero when no response arrived.
func RecordBackendRequest(service, method string, status int, duration time.Duration) {
	backendRequestDuration.WithLabelValues(service, method).Observe(duration.Seconds())
	backendRequestsTotal.WithLabelValues(service, method, outcome(status)).Inc()
}

// RecordRetry records a retry at the given layer.
func RecordRetry(service, layer string) {
	backendRetriesTotal.WithLabelValues(service, layer).Inc()
}

// SetServiceUp records the result of a health check.
func SetServiceUp(service string, up bool) {
	v := 0.0
	if up {
		v = 1
	}
	serviceUp.WithLabelValues(service).Set(v)
}

func outcome(status int) string {
	switch {
	case status == 0:
		return "error"
	case status < 400:
		return "ok"
	case status < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
