package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "mda"

type HTTPServerMetrics struct {
	*PipelineMetrics

	registry *prometheus.Registry
	service  string

	requestTotal     *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	requestInFlight  prometheus.Gauge
	streamsInFlight  *prometheus.GaugeVec
	quotaRejections  prometheus.Counter
	emergencyFlagged prometheus.Counter
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	serviceLabel := prometheus.Labels{"service": service}

	return &HTTPServerMetrics{
		PipelineMetrics: newPipelineMetrics(registry, service),
		registry:        registry,
		service:         service,
		requestTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route pattern and status.",
		}, []string{"service", "method", "path", "status"}),
		// Analysis streams run for minutes, so the buckets reach five.
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration, including streamed responses.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"service", "method", "path"}),
		requestInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "http",
			Name:        "in_flight_requests",
			Help:        "HTTP requests currently being served.",
			ConstLabels: serviceLabel,
		}),
		streamsInFlight: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "sse",
			Name:        "streams_in_flight",
			Help:        "Open event streams by kind.",
			ConstLabels: serviceLabel,
		}, []string{"kind"}),
		quotaRejections: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "chat",
			Name:        "quota_rejections_total",
			Help:        "Session creations rejected by the free-tier quota.",
			ConstLabels: serviceLabel,
		}),
		emergencyFlagged: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "chat",
			Name:        "emergency_flagged_total",
			Help:        "Chat messages flagged by the emergency detector.",
			ConstLabels: serviceLabel,
		}),
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		recorder := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		timer := prometheus.NewTimer(prometheus.ObserverFunc(func(seconds float64) {
			// The mux fills r.Pattern while routing, so labels are resolved afterwards.
			m.requestDuration.WithLabelValues(m.service, r.Method, routeLabel(r)).Observe(seconds)
		}))
		next.ServeHTTP(recorder, r)
		timer.ObserveDuration()

		m.requestTotal.WithLabelValues(m.service, r.Method, routeLabel(r), strconv.Itoa(recorder.statusCode)).Inc()
	})
}

// StreamStarted tracks an open event stream; call the returned func when it ends.
func (m *HTTPServerMetrics) StreamStarted(kind string) func() {
	gauge := m.streamsInFlight.WithLabelValues(kind)
	gauge.Inc()
	return gauge.Dec
}

func (m *HTTPServerMetrics) RecordQuotaRejection() {
	m.quotaRejections.Inc()
}

func (m *HTTPServerMetrics) RecordEmergencyFlag() {
	m.emergencyFlagged.Inc()
}

// routeLabel prefers the matched mux pattern to keep label cardinality bounded.
func routeLabel(r *http.Request) string {
	if r.Pattern != "" {
		if _, path, ok := strings.Cut(r.Pattern, " "); ok {
			return path
		}
		return r.Pattern
	}
	return normalizePath(r.URL.Path)
}

func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/analysis-jobs/"):
		return "/v1/analysis-jobs/{id}"
	case path == "/v1/analyses/export.xlsx":
		return path
	case strings.HasPrefix(path, "/v1/analyses/"):
		return "/v1/analyses/{id}"
	case strings.HasPrefix(path, "/v1/chat/sessions/"):
		rest := strings.TrimPrefix(path, "/v1/chat/sessions/")
		if _, sub, ok := strings.Cut(rest, "/"); ok {
			return "/v1/chat/sessions/{id}/" + sub
		}
		return "/v1/chat/sessions/{id}"
	default:
		return path
	}
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}
