// Package metrics exposes the service's Prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	deployments = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "meshgate",
			Subsystem: "deploy",
			Name:      "deployments_total",
			Help:      "Total number of finished mesh and gateway deployments.",
		},
		[]string{"backend", "result"},
	)

	deployDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "meshgate",
			Subsystem: "deploy",
			Name:      "duration_seconds",
			Help:      "Duration of mesh and gateway deployments.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		},
		[]string{"backend"},
	)

	healthProbes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "meshgate",
			Subsystem: "discovery",
			Name:      "health_probes_total",
			Help:      "Total number of endpoint health probes.",
		},
		[]string{"result"},
	)

	lbSelections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "meshgate",
			Subsystem: "loadbalancer",
			Name:      "selections_total",
			Help:      "Total number of load-balancer endpoint selections.",
		},
		[]string{"algorithm", "result"},
	)
)

func init() {
	Registry.MustRegister(
		deployments,
		deployDuration,
		healthProbes,
		lbSelections,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// RecordDeployment records the outcome of a finished deployment.
func RecordDeployment(backend, result string, elapsed time.Duration) {
	if elapsed <= 0 {
		elapsed = time.Millisecond
	}
	deployments.WithLabelValues(backend, result).Inc()
	deployDuration.WithLabelValues(backend).Observe(elapsed.Seconds())
}

// RecordHealthProbe records one endpoint probe attempt.
func RecordHealthProbe(healthy bool) {
	result := "unhealthy"
	if healthy {
		result = "healthy"
	}
	healthProbes.WithLabelValues(result).Inc()
}

// RecordSelection records one load-balancer pick.
func RecordSelection(algorithm string, found bool) {
	result := "selected"
	if !found {
		result = "no_healthy_endpoint"
	}
	lbSelections.WithLabelValues(algorithm, result).Inc()
}

// Recorder adapts the package-level recorders to the interfaces consumed by
// the deploy dispatcher.
type Recorder struct{}

// ObserveDeployment implements the dispatcher's metrics sink.
func (Recorder) ObserveDeployment(backend, result string, elapsed time.Duration) {
	RecordDeployment(backend, result, elapsed)
}
