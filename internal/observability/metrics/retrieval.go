package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker/v2"

	"github.com/kirillkom/dispute-retrieval/internal/core/domain"
)

// RetrievalMetrics implements ports.RetrievalObserver.
type RetrievalMetrics struct {
	service string

	corpusCalls     *prometheus.CounterVec
	corpusDuration  *prometheus.HistogramVec
	corpusResults   *prometheus.HistogramVec
	fallbackTotal   *prometheus.CounterVec
	embedDuration   *prometheus.HistogramVec
	embedErrors     *prometheus.CounterVec
	breakerState    *prometheus.GaugeVec
	breakerSwitches *prometheus.CounterVec
}

func NewRetrievalMetrics(service string, registerer prometheus.Registerer) *RetrievalMetrics {
	m := &RetrievalMetrics{
		service: service,
		corpusCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "corpus",
				Name:      "calls_total",
				Help:      "Corpus search calls by corpus and outcome.",
			},
			[]string{"service", "corpus", "status"},
		),
		corpusDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "corpus",
				Name:      "call_duration_seconds",
				Help:      "Corpus search call duration in seconds.",
				Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"service", "corpus"},
		),
		corpusResults: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "corpus",
				Name:      "results",
				Help:      "Passages returned per corpus call.",
				Buckets:   []float64{0, 1, 2, 3, 5, 8, 13},
			},
			[]string{"service", "corpus"},
		),
		fallbackTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "stage",
				Name:      "fallback_total",
				Help:      "Orchestration runs by whether the counsel fallback fired.",
			},
			[]string{"service", "triggered"},
		),
		embedDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "embedding",
				Name:      "duration_seconds",
				Help:      "Query embedding latency in seconds.",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
			[]string{"service"},
		),
		embedErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "embedding",
				Name:      "errors_total",
				Help:      "Query embeddings that failed and degraded search to lexical only.",
			},
			[]string{"service"},
		),
		breakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "resilience",
				Name:      "breaker_state",
				Help:      "Circuit breaker state per operation (0 closed, 1 half-open, 2 open).",
			},
			[]string{"service", "operation"},
		),
		breakerSwitches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "resilience",
				Name:      "breaker_transitions_total",
				Help:      "Circuit breaker state transitions.",
			},
			[]string{"service", "operation", "to"},
		),
	}
	registerer.MustRegister(
		m.corpusCalls,
		m.corpusDuration,
		m.corpusResults,
		m.fallbackTotal,
		m.embedDuration,
		m.embedErrors,
		m.breakerState,
		m.breakerSwitches,
	)
	return m
}

func (m *RetrievalMetrics) ObserveCorpusCall(corpus domain.DocType, count int, elapsed time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.corpusCalls.WithLabelValues(m.service, string(corpus), status).Inc()
	m.corpusDuration.WithLabelValues(m.service, string(corpus)).Observe(elapsed.Seconds())
	if err == nil {
		m.corpusResults.WithLabelValues(m.service, string(corpus)).Observe(float64(count))
	}
}

func (m *RetrievalMetrics) ObserveFallback(triggered bool) {
	label := "false"
	if triggered {
		label = "true"
	}
	m.fallbackTotal.WithLabelValues(m.service, label).Inc()
}

func (m *RetrievalMetrics) ObserveEmbedding(elapsed time.Duration, err error) {
	m.embedDuration.WithLabelValues(m.service).Observe(elapsed.Seconds())
	if err != nil {
		m.embedErrors.WithLabelValues(m.service).Inc()
	}
}

// ObserveBreaker matches resilience.StateListener.
func (m *RetrievalMetrics) ObserveBreaker(operation string, _, to gobreaker.State) {
	m.breakerState.WithLabelValues(m.service, operation).Set(breakerStateValue(to))
	m.breakerSwitches.WithLabelValues(m.service, operation, to.String()).Inc()
}

func breakerStateValue(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
