package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillkom/search-dsl-eval/internal/core/domain"
)

const namespace = "dsl_eval"

// EvalMetrics records evaluation telemetry in a private registry.
type EvalMetrics struct {
	registry *prometheus.Registry

	searchTotal      *prometheus.CounterVec
	searchDuration   *prometheus.HistogramVec
	weightLookups    *prometheus.CounterVec
	judgeTotal       *prometheus.CounterVec
	judgeDuration    prometheus.Histogram
	keywordDuration  prometheus.Histogram
	retriesTotal     *prometheus.CounterVec
	variantPrecision *prometheus.GaugeVec
	variantNDCG      *prometheus.GaugeVec
}

func NewEvalMetrics(service string) *EvalMetrics {
	registry := prometheus.NewRegistry()
	reg := prometheus.WrapRegistererWith(prometheus.Labels{"service": service}, registry)

	m := &EvalMetrics{
		registry: registry,
		searchTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "search",
				Name:      "requests_total",
				Help:      "Search requests by variant and status.",
			},
			[]string{"variant", "status"},
		),
		searchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "search",
				Name:      "duration_seconds",
				Help:      "Search request duration in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"variant"},
		),
		weightLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "weights",
				Name:      "lookups_total",
				Help:      "Weight provider lookups by depth and result.",
			},
			[]string{"depth", "result"},
		),
		judgeTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "judge",
				Name:      "calls_total",
				Help:      "Judge calls by status.",
			},
			[]string{"status"},
		),
		judgeDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "judge",
				Name:      "duration_seconds",
				Help:      "Judge call duration in seconds.",
				Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30, 60},
			},
		),
		keywordDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "keyword",
				Name:      "duration_seconds",
				Help:      "Time spent evaluating one keyword over all variants.",
				Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 80},
			},
		),
		retriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "resilience",
				Name:      "retries_total",
				Help:      "Retries performed by operation.",
			},
			[]string{"operation"},
		),
		variantPrecision: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "variant",
				Name:      "avg_precision",
				Help:      "Mean precision of the last finished run per variant.",
			},
			[]string{"variant"},
		),
		variantNDCG: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "variant",
				Name:      "avg_ndcg",
				Help:      "Mean NDCG of the last finished run per variant.",
			},
			[]string{"variant"},
		),
	}

	reg.MustRegister(
		m.searchTotal,
		m.searchDuration,
		m.weightLookups,
		m.judgeTotal,
		m.judgeDuration,
		m.keywordDuration,
		m.retriesTotal,
		m.variantPrecision,
		m.variantNDCG,
	)
	return m
}

func (m *EvalMetrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *EvalMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// WriteTextfile dumps the registry in the node exporter textfile format.
func (m *EvalMetrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}

func (m *EvalMetrics) ObserveSearch(variant string, took time.Duration, err error) {
	m.searchTotal.WithLabelValues(variant, status(err == nil)).Inc()
	m.searchDuration.WithLabelValues(variant).Observe(took.Seconds())
}

func (m *EvalMetrics) ObserveWeights(depth domain.Depth, empty bool) {
	result := "hit"
	if empty {
		result = "empty"
	}
	m.weightLookups.WithLabelValues(strconv.Itoa(int(depth)), result).Inc()
}

func (m *EvalMetrics) ObserveJudgement(ok bool, took time.Duration) {
	m.judgeTotal.WithLabelValues(status(ok)).Inc()
	m.judgeDuration.Observe(took.Seconds())
}

func (m *EvalMetrics) ObserveKeyword(took time.Duration) {
	m.keywordDuration.Observe(took.Seconds())
}

func (m *EvalMetrics) SetVariantMetrics(variant string, metrics domain.CorpusMetrics) {
	m.variantPrecision.WithLabelValues(variant).Set(metrics.AvgPrecision)
	m.variantNDCG.WithLabelValues(variant).Set(metrics.AvgNDCG)
}

func (m *EvalMetrics) ObserveRetry(operation string) {
	m.retriesTotal.WithLabelValues(operation).Inc()
}

func status(ok bool) string {
	if ok {
		return "success"
	}
	return "error"
}
