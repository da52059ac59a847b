package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every Prometheus collector the kernel publishes.
type Metrics struct {
	QueueDepth        prometheus.Gauge
	TasksTotal        *prometheus.CounterVec
	GenerationLatency prometheus.Histogram
	EventsPublished   *prometheus.CounterVec
}

// NewMetrics registers and returns the kernel's metric collectors against a
// dedicated registry (never the global default, so repeated construction in
// tests does not panic on duplicate registration).
func NewMetrics() (*Metrics, *prometheus.Registry) {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		QueueDepth: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: "evkernel",
			Subsystem: "scheduler",
			Name:      "queue_depth",
			Help:      "Number of tasks currently queued awaiting a worker.",
		}),
		TasksTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "evkernel",
			Subsystem: "scheduler",
			Name:      "tasks_total",
			Help:      "Total tasks dispatched, labeled by terminal status.",
		}, []string{"status"}),
		GenerationLatency: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Namespace: "evkernel",
			Subsystem: "inference",
			Name:      "generation_duration_seconds",
			Help:      "Wall-clock duration of completed generation calls.",
			Buckets:   prometheus.DefBuckets,
		}),
		EventsPublished: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "evkernel",
			Subsystem: "eventbus",
			Name:      "events_published_total",
			Help:      "Total events published, labeled by event type.",
		}, []string{"type"}),
	}

	return m, reg
}

// Handler returns an http.Handler exposing reg in the Prometheus exposition
// format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
