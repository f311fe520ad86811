package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker/v2"

	"github.com/kirillkom/medical-doc-assistant/internal/core/domain"
)

// PipelineMetrics observes analysis outcomes and upstream breaker state.
// It is registered on both the api and worker registries.
type PipelineMetrics struct {
	service string

	classificationsTotal *prometheus.CounterVec
	analysisTokens       *prometheus.HistogramVec
	truncatedTotal       *prometheus.CounterVec
	summaryFallbacks     prometheus.Counter
	persistFailures      prometheus.Counter
	breakerState         *prometheus.GaugeVec
}

func newPipelineMetrics(registry *prometheus.Registry, service string) *PipelineMetrics {
	classificationsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "classifications_total",
			Help:      "Document classifications by method and category.",
		},
		[]string{"service", "method", "category"},
	)
	analysisTokens := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "analysis_tokens",
			Help:      "Estimated tokens per streamed analysis.",
			Buckets:   []float64{50, 100, 250, 500, 1000, 2000, 3000, 4000},
		},
		[]string{"service", "category"},
	)
	truncatedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "truncated_total",
			Help:      "Analyses cut off by the token budget.",
		},
		[]string{"service", "category"},
	)
	summaryFallbacks := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "pipeline",
			Name:        "summary_fallbacks_total",
			Help:        "Summaries produced by the pattern fallback after a model failure.",
			ConstLabels: prometheus.Labels{"service": service},
		},
	)
	persistFailures := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "pipeline",
			Name:        "persist_failures_total",
			Help:        "Completed analyses that could not be stored.",
			ConstLabels: prometheus.Labels{"service": service},
		},
	)
	breakerState := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "resilience",
			Name:        "breaker_state",
			Help:        "Circuit breaker state per operation (0 closed, 1 half-open, 2 open).",
			ConstLabels: prometheus.Labels{"service": service},
		},
		[]string{"operation"},
	)

	registry.MustRegister(
		classificationsTotal,
		analysisTokens,
		truncatedTotal,
		summaryFallbacks,
		persistFailures,
		breakerState,
	)

	return &PipelineMetrics{
		service:              service,
		classificationsTotal: classificationsTotal,
		analysisTokens:       analysisTokens,
		truncatedTotal:       truncatedTotal,
		summaryFallbacks:     summaryFallbacks,
		persistFailures:      persistFailures,
		breakerState:         breakerState,
	}
}

func (m *PipelineMetrics) ObserveClassification(method domain.ClassificationMethod, category domain.CategoryCode) {
	m.classificationsTotal.WithLabelValues(m.service, string(method), string(category)).Inc()
}

func (m *PipelineMetrics) ObserveAnalysis(category domain.CategoryCode, tokens int, truncated bool) {
	m.analysisTokens.WithLabelValues(m.service, string(category)).Observe(float64(tokens))
	if truncated {
		m.truncatedTotal.WithLabelValues(m.service, string(category)).Inc()
	}
}

func (m *PipelineMetrics) ObserveSummaryFallback() {
	m.summaryFallbacks.Inc()
}

func (m *PipelineMetrics) ObservePersistFailure() {
	m.persistFailures.Inc()
}

// ObserveBreakerState matches resilience.StateObserver.
func (m *PipelineMetrics) ObserveBreakerState(operation string, _, to gobreaker.State) {
	m.breakerState.WithLabelValues(operation).Set(float64(to))
}
