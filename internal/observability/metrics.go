// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Combination outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailed  = "failed"
	OutcomeCached  = "cached"
)

// Metrics holds all Prometheus metrics for a sweep run.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	// Sweep metrics
	Combinations         *prometheus.CounterVec
	Attempts             prometheus.Counter
	InstrumentsCompleted prometheus.Counter
	EvaluationSeconds    prometheus.Histogram

	// Persistence metrics
	Checkpoints       *prometheus.CounterVec
	CheckpointSeconds prometheus.Histogram

	// Health metrics
	LastCheckpoint prometheus.Gauge
}

// NewMetrics creates a Metrics instance registered on a private registry.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "sweep"
	}

	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		Combinations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "combinations_total",
			Help:      "Total number of combinations reaching a terminal state by outcome",
		}, []string{"outcome"}),
		Attempts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attempts_total",
			Help:      "Total number of evaluation attempts",
		}),
		InstrumentsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "instruments_completed_total",
			Help:      "Total number of instruments fully swept",
		}),
		EvaluationSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "evaluation_seconds",
			Help:      "Wall-clock duration of evaluated combinations in seconds",
			Buckets:   []float64{0.5, 1, 2, 4, 8, 16, 32, 64},
		}),

		Checkpoints: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkpoints_total",
			Help:      "Total number of checkpoint writes by result",
		}, []string{"result"}),
		CheckpointSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "checkpoint_seconds",
			Help:      "Checkpoint write duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),

		LastCheckpoint: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_checkpoint_timestamp",
			Help:      "Unix timestamp of the last successful checkpoint",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// RecordCombination counts a terminal combination.
func (m *Metrics) RecordCombination(outcome string) {
	if m == nil {
		return
	}
	m.Combinations.WithLabelValues(outcome).Inc()
}

// RecordAttempt counts one evaluation attempt.
func (m *Metrics) RecordAttempt() {
	if m == nil {
		return
	}
	m.Attempts.Inc()
}

// ObserveEvaluation records the duration of an evaluated combination.
func (m *Metrics) ObserveEvaluation(d time.Duration) {
	if m == nil {
		return
	}
	m.EvaluationSeconds.Observe(d.Seconds())
}

// RecordInstrumentCompleted counts a finished instrument.
func (m *Metrics) RecordInstrumentCompleted() {
	if m == nil {
		return
	}
	m.InstrumentsCompleted.Inc()
}

// RecordCheckpoint records a checkpoint write.
func (m *Metrics) RecordCheckpoint(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.CheckpointSeconds.Observe(d.Seconds())
	if err != nil {
		m.Checkpoints.WithLabelValues("error").Inc()
		return
	}
	m.Checkpoints.WithLabelValues("ok").Inc()
	m.LastCheckpoint.SetToCurrentTime()
}
