package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// WorkerMetrics covers job throughput and how long jobs wait on the queue.
type WorkerMetrics struct {
	*PipelineMetrics

	registry *prometheus.Registry
	service  string

	jobs     *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inFlight prometheus.Gauge
	queueLag prometheus.Observer
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &WorkerMetrics{
		PipelineMetrics: newPipelineMetrics(registry, service),
		registry:        registry,
		service:         service,
		jobs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "job_process_total",
			Help:      "Analysis jobs processed, by outcome.",
		}, []string{"service", "status"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "job_process_duration_seconds",
			Help:      "Analysis job processing time, by outcome.",
			Buckets:   []float64{1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"service", "status"}),
		inFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "worker",
			Name:        "job_process_in_flight",
			Help:        "Analysis jobs currently running.",
			ConstLabels: prometheus.Labels{"service": service},
		}),
		queueLag: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "queue_lag_seconds",
			Help:      "Time between job submission and the start of processing.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2.5, 10),
		}, []string{"service"}).WithLabelValues(service),
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartJob() {
	m.inFlight.Inc()
}

func (m *WorkerMetrics) FinishJob(duration time.Duration, err error) {
	m.inFlight.Dec()
	status := "success"
	if err != nil {
		status = "error"
	}
	m.jobs.WithLabelValues(m.service, status).Inc()
	m.duration.WithLabelValues(m.service, status).Observe(duration.Seconds())
}

// ObserveQueueLag ignores negative lags caused by clock skew between api and worker hosts.
func (m *WorkerMetrics) ObserveQueueLag(lag time.Duration) {
	if lag >= 0 {
		m.queueLag.Observe(lag.Seconds())
	}
}
