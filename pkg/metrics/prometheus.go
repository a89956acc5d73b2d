package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	cyclesTotal   *prometheus.CounterVec
	cyclesSkipped *prometheus.CounterVec
	cycleDuration *prometheus.HistogramVec
	adapterErrors *prometheus.CounterVec
	lastPrice     *prometheus.GaugeVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		cyclesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "investment_refresh_cycles_total",
				Help: "Total number of refresh cycles per table and result",
			},
			[]string{"table", "result"},
		),
		cyclesSkipped: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "investment_refresh_cycles_skipped_total",
				Help: "Ticks skipped because a cycle was still in flight",
			},
			[]string{"table"},
		),
		cycleDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "investment_refresh_cycle_duration_seconds",
				Help:    "Duration of one fetch-and-reconcile cycle",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"table"},
		),
		adapterErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "investment_adapter_errors_total",
				Help: "Source adapter failures by source and reason",
			},
			[]string{"source", "reason"},
		),
		lastPrice: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "investment_last_price",
				Help: "Last observed price per source and entity",
			},
			[]string{"source", "entity"},
		),
	}
}

// RecordCycle records a completed refresh cycle.
func (r *Recorder) RecordCycle(table, result string) {
	r.cyclesTotal.WithLabelValues(table, result).Inc()
}

// RecordCycleSkipped records a dropped tick.
func (r *Recorder) RecordCycleSkipped(table string) {
	r.cyclesSkipped.WithLabelValues(table).Inc()
}

// RecordCycleDuration records cycle latency in seconds.
func (r *Recorder) RecordCycleDuration(table string, seconds float64) {
	r.cycleDuration.WithLabelValues(table).Observe(seconds)
}

// RecordAdapterError records a per-source fetch failure.
func (r *Recorder) RecordAdapterError(source, reason string) {
	r.adapterErrors.WithLabelValues(source, reason).Inc()
}

// RecordLastPrice records the last observed price for an entity.
func (r *Recorder) RecordLastPrice(source, entity string, price float64) {
	r.lastPrice.WithLabelValues(source, entity).Set(price)
}
