package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// HTTPRequestDuration tracks HTTP request latency across all routes.
var HTTPRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "resumeforge",
		Subsystem: "api",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"method", "path", "status"},
)

var JobsEnqueuedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "resumeforge",
		Subsystem: "jobs",
		Name:      "enqueued_total",
		Help:      "Total number of extraction jobs enqueued.",
	},
)

var JobsCompletedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "resumeforge",
		Subsystem: "jobs",
		Name:      "completed_total",
		Help:      "Total number of extraction jobs that reached a terminal state, by outcome.",
	},
	[]string{"status"}, // "completed", "failed", "cancelled"
)

var JobErrorKindTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "resumeforge",
		Subsystem: "jobs",
		Name:      "error_kind_total",
		Help:      "Total number of failed jobs by classified error kind.",
	},
	[]string{"kind"},
)

var ExtractionDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "resumeforge",
		Subsystem: "extraction",
		Name:      "duration_seconds",
		Help:      "Duration of a single extraction call in seconds.",
		Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 30, 45, 60},
	},
	[]string{"provider"},
)

var AdmissionDeniedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "resumeforge",
		Subsystem: "admission",
		Name:      "denied_total",
		Help:      "Total number of admission denials by reason.",
	},
	[]string{"reason"}, // "pressure", "window", "daily_quota"
)

var PressureState = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "resumeforge",
		Subsystem: "pressure",
		Name:      "state",
		Help:      "Current memory pressure state (0 = normal, 1 = under pressure).",
	},
)

var SessionsActive = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "resumeforge",
		Subsystem: "credential",
		Name:      "sessions_active",
		Help:      "Approximate number of active (non-revoked, non-expired) sessions.",
	},
)

var RevocationsTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "resumeforge",
		Subsystem: "credential",
		Name:      "revocations_total",
		Help:      "Total number of credential revocations recorded.",
	},
)

// All returns every resumeforge-specific collector for registration.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		JobsEnqueuedTotal,
		JobsCompletedTotal,
		JobErrorKindTotal,
		ExtractionDuration,
		AdmissionDeniedTotal,
		PressureState,
		SessionsActive,
		RevocationsTotal,
	}
}

// NewMetricsRegistry creates a Prometheus registry with Go/process collectors,
// the shared HTTPRequestDuration metric, and any additional collectors passed in.
func NewMetricsRegistry(extra ...prometheus.Collector) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		HTTPRequestDuration,
	)
	for _, c := range extra {
		reg.MustRegister(c)
	}
	return reg
}
