// Package observability provides logging, metrics, and tracing.
//
// It integrates with OpenTelemetry for system monitoring.
// The package provides comprehensive observability features
// including metrics collection, distributed tracing, and logging.
package observability

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// HTTPRequestsTotal counts HTTP requests by route, method, and status label.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	// HTTPRequestDuration records request durations by route and method.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"route", "method"},
	)

	// JobsAdmittedTotal counts jobs admitted into the queue by capability.
	JobsAdmittedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_admitted_total",
			Help: "Total number of jobs admitted",
		},
		[]string{"capability"},
	)
	// JobsRunning is a gauge of the number of currently dispatched jobs by capability.
	JobsRunning = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "jobs_running",
			Help: "Number of jobs currently dispatched to a worker",
		},
		[]string{"capability"},
	)
	// JobsCompletedTotal counts jobs completed by capability.
	JobsCompletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_completed_total",
			Help: "Total number of jobs completed",
		},
		[]string{"capability"},
	)
	// JobsFailedTotal counts jobs failed by capability and error code.
	JobsFailedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_failed_total",
			Help: "Total number of jobs failed",
		},
		[]string{"capability", "error_code"},
	)
	// QueueDepth is a gauge of QUEUED jobs by capability, holding the value
	// last recorded through SetQueueDepth; the dispatch loop does not record it.
	QueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "jobs_queue_depth",
			Help: "Number of jobs currently queued",
		},
		[]string{"capability"},
	)
	// WorkerFleetSize is a gauge of known workers by status (idle/busy).
	WorkerFleetSize = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "worker_fleet_size",
			Help: "Number of known workers by status",
		},
		[]string{"status"},
	)
	// TokensConsumedTotal tracks token costs charged to users, by capability.
	TokensConsumedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tokens_consumed_total",
			Help: "Total tokens charged to users on job completion",
		},
		[]string{"capability"},
	)
)

// InitMetrics registers all Prometheus metrics with the default registry.
func InitMetrics() {
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(JobsAdmittedTotal)
	prometheus.MustRegister(JobsRunning)
	prometheus.MustRegister(JobsCompletedTotal)
	prometheus.MustRegister(JobsFailedTotal)
	prometheus.MustRegister(QueueDepth)
	prometheus.MustRegister(WorkerFleetSize)
	prometheus.MustRegister(TokensConsumedTotal)
}

// HTTPMetricsMiddleware records Prometheus metrics for each request.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		dur := time.Since(start).Seconds()
		// Route pattern may be unavailable outside chi router; guard nil
		var route string
		if rc := chi.RouteContext(r.Context()); rc != nil {
			route = rc.RoutePattern()
		}
		if route == "" {
			// fallback when route pattern is unavailable
			route = r.URL.Path
		}
		method := r.Method
		status := ww.Status()
		HTTPRequestsTotal.WithLabelValues(route, method, http.StatusText(status)).Inc()
		HTTPRequestDuration.WithLabelValues(route, method).Observe(dur)
	})
}

// AdmitJob increments the admitted jobs counter for the given capability.
func AdmitJob(capability string) {
	JobsAdmittedTotal.WithLabelValues(capability).Inc()
}

// StartDispatch increments the running gauge for the given capability.
func StartDispatch(capability string) {
	JobsRunning.WithLabelValues(capability).Inc()
}

// CompleteDispatch marks a job complete: decrements the running gauge,
// increments the completed counter, and adds the charged tokens.
func CompleteDispatch(capability string, tokens float64) {
	JobsRunning.WithLabelValues(capability).Dec()
	JobsCompletedTotal.WithLabelValues(capability).Inc()
	if tokens > 0 {
		TokensConsumedTotal.WithLabelValues(capability).Add(tokens)
	}
}

// FailDispatch marks a job failed: decrements the running gauge and
// increments the failed counter, labeled with the reported error code.
func FailDispatch(capability, errorCode string) {
	JobsRunning.WithLabelValues(capability).Dec()
	JobsFailedTotal.WithLabelValues(capability, errorCode).Inc()
}

// SetQueueDepth records the observed queue depth for a capability.
func SetQueueDepth(capability string, depth int) {
	QueueDepth.WithLabelValues(capability).Set(float64(depth))
}

// SetWorkerFleetSize records the observed worker counts by status.
func SetWorkerFleetSize(status string, count int) {
	WorkerFleetSize.WithLabelValues(status).Set(float64(count))
}
