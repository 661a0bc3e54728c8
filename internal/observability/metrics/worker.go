package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// WorkerMetrics tracks evaluation requests consumed by the worker. They are
// registered next to the evaluation metrics so one endpoint serves both.
type WorkerMetrics struct {
	processTotal    *prometheus.CounterVec
	processDuration *prometheus.HistogramVec
	processInFlight prometheus.Gauge
}

func NewWorkerMetrics(service string, eval *EvalMetrics) *WorkerMetrics {
	reg := prometheus.WrapRegistererWith(prometheus.Labels{"service": service}, eval.Registry())

	processTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "request_process_total",
			Help:      "Total processed evaluation requests by status.",
		},
		[]string{"status"},
	)
	processDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "request_process_duration_seconds",
			Help:      "Evaluation request processing duration in seconds by status.",
			Buckets:   []float64{10, 30, 60, 120, 300, 600, 1200, 2400, 4800},
		},
		[]string{"status"},
	)
	processInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "request_process_in_flight",
			Help:      "Number of in-flight evaluation requests.",
		},
	)

	reg.MustRegister(processTotal, processDuration, processInFlight)

	return &WorkerMetrics{
		processTotal:    processTotal,
		processDuration: processDuration,
		processInFlight: processInFlight,
	}
}

func (m *WorkerMetrics) StartRequest() {
	m.processInFlight.Inc()
}

func (m *WorkerMetrics) FinishRequest(duration time.Duration, err error) {
	m.processInFlight.Dec()

	s := status(err == nil)
	m.processTotal.WithLabelValues(s).Inc()
	m.processDuration.WithLabelValues(s).Observe(duration.Seconds())
}
