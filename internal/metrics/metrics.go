// Package metrics counts screening outcomes in a private prometheus
// registry that can be exported as a node-exporter textfile.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"

	"github.com/sells-group/txscreen/internal/model"
)

// Metrics holds all Prometheus metrics for a screening run
type Metrics struct {
	transactionsTotal *prometheus.CounterVec
	detectionsTotal   *prometheus.CounterVec
	malformedTotal    prometheus.Counter

	batchFlushes  *prometheus.CounterVec
	batchSize     *prometheus.HistogramVec
	flushDuration *prometheus.HistogramVec

	runDuration prometheus.Gauge
	lastSuccess prometheus.Gauge

	registry *prometheus.Registry
}

// New creates a metrics instance registered in its own registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		transactionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "txscreen_transactions_total",
				Help: "Transactions screened by outcome",
			},
			[]string{"label"},
		),

		detectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "txscreen_detections_total",
				Help: "Sanction detections by kind and party",
			},
			[]string{"kind", "party"},
		),

		malformedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "txscreen_malformed_total",
				Help: "Transactions missing a required field",
			},
		),

		batchFlushes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "txscreen_batch_flushes_total",
				Help: "Output batches flushed by sink",
			},
			[]string{"sink"},
		),

		batchSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "txscreen_batch_size",
				Help:    "Rows per flushed batch",
				Buckets: []float64{1, 10, 100, 500, 1000, 5000, 10000},
			},
			[]string{"sink"},
		),

		flushDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "txscreen_flush_duration_seconds",
				Help:    "Time spent writing a batch",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"sink"},
		),

		runDuration: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "txscreen_run_duration_seconds",
				Help: "Wall time of the last run",
			},
		),

		lastSuccess: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "txscreen_last_success_timestamp_seconds",
				Help: "Unix time of the last successful run",
			},
		),

		registry: registry,
	}

	registry.MustRegister(
		m.transactionsTotal,
		m.detectionsTotal,
		m.malformedTotal,
		m.batchFlushes,
		m.batchSize,
		m.flushDuration,
		m.runDuration,
		m.lastSuccess,
	)

	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveResult counts one classified transaction and its detections.
func (m *Metrics) ObserveResult(r model.Result) {
	m.transactionsTotal.WithLabelValues(string(r.Label)).Inc()
	if r.Malformed {
		m.malformedTotal.Inc()
	}
	for _, d := range r.Detections {
		m.detectionsTotal.WithLabelValues(string(d.Kind), string(d.Party)).Inc()
	}
}

// ObserveFlush records one batch written to sink.
func (m *Metrics) ObserveFlush(sink string, rows int, took time.Duration) {
	m.batchFlushes.WithLabelValues(sink).Inc()
	m.batchSize.WithLabelValues(sink).Observe(float64(rows))
	m.flushDuration.WithLabelValues(sink).Observe(took.Seconds())
}

// ObserveRun records the run's wall time, and its completion time when it succeeded.
func (m *Metrics) ObserveRun(took time.Duration, succeeded bool) {
	m.runDuration.Set(took.Seconds())
	if succeeded {
		m.lastSuccess.SetToCurrentTime()
	}
}

// WriteTextfile writes all metrics to path in the text exposition format.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return eris.Wrapf(err, "metrics: write textfile %s", path)
	}
	return nil
}
