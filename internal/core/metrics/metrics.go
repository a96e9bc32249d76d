// Package metrics exposes Prometheus collectors for receipt processing and
// segment evaluation.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/solatis/campaignkeeper/internal/delivery"
)

const namespace = "campaignkeeper"

// Metrics owns a private registry so tests and multiple servers in one
// process never collide on the global one.
type Metrics struct {
	registry *prometheus.Registry

	receipts     *prometheus.CounterVec
	receiptBatch *prometheus.HistogramVec
	evaluations  *prometheus.CounterVec
	evalDuration *prometheus.HistogramVec
	materialized prometheus.Counter
}

// New registers all collectors plus Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		receipts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "receipts_total",
			Help:      "Delivery receipts processed, by outcome (error for unexpected failures).",
		}, []string{"outcome"}),
		receiptBatch: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "receipt_batch_size",
			Help:      "Receipts per reported batch, by source.",
			Buckets:   []float64{1, 5, 10, 50, 100, 250, 500, 1000},
		}, []string{"source"}),
		evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segment_evaluations_total",
			Help:      "Segment evaluations, by operation and result.",
		}, []string{"op", "result"}),
		evalDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "segment_evaluation_seconds",
			Help:      "Segment evaluation latency, by operation.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		materialized: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_materialized_total",
			Help:      "Queued messages created by campaign materialization.",
		}),
	}

	m.registry.MustRegister(
		m.receipts,
		m.receiptBatch,
		m.evaluations,
		m.evalDuration,
		m.materialized,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveReceipt counts one tracker result. Suitable as delivery.Config.OnResult.
func (m *Metrics) ObserveReceipt(r delivery.Result) {
	outcome := string(r.Outcome)
	if r.Err != nil {
		outcome = "error"
	}
	m.receipts.WithLabelValues(outcome).Inc()
}

// ObserveBatch records the size of a receipt batch from source ("grpc", "webhook").
func (m *Metrics) ObserveBatch(source string, size int) {
	m.receiptBatch.WithLabelValues(source).Observe(float64(size))
}

// ObserveEvaluation records one Count/Select/Materialize evaluation.
func (m *Metrics) ObserveEvaluation(op string, started time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.evaluations.WithLabelValues(op, result).Inc()
	m.evalDuration.WithLabelValues(op).Observe(time.Since(started).Seconds())
}

// AddMaterialized counts newly queued messages.
func (m *Metrics) AddMaterialized(n int) {
	m.materialized.Add(float64(n))
}
