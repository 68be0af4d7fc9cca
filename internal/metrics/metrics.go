// Package metrics exposes Prometheus instruments for the question pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ragbook"

// Question outcomes.
const (
	OutcomeAnswered = "answered"
	OutcomeRefused  = "refused"
	OutcomeError    = "error"
)

// Metrics holds the pipeline instruments. A nil *Metrics is valid and records nothing.
type Metrics struct {
	questionsTotal         *prometheus.CounterVec
	gateRefusalsTotal      *prometheus.CounterVec
	stageDegradedTotal     *prometheus.CounterVec
	unsupportedClaimsTotal prometheus.Counter
	stageDuration          *prometheus.HistogramVec
}

// New registers the instruments with reg. Use prometheus.DefaultRegisterer to
// expose them on the default /metrics handler.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		questionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "questions_total",
				Help:      "Questions processed, by outcome",
			},
			[]string{"outcome"},
		),
		gateRefusalsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "gate_refusals_total",
				Help:      "Evidence gate refusals, by the check that fired",
			},
			[]string{"check"},
		),
		stageDegradedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stage_degraded_total",
				Help:      "Optional pipeline stages that failed open",
			},
			[]string{"stage"},
		),
		unsupportedClaimsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "unsupported_claims_total",
				Help:      "Answer sentences flagged as unsupported by the claim check",
			},
		),
		stageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Duration of pipeline stages in seconds",
				Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"stage"},
		),
	}
}

// RecordQuestion counts a finished question.
func (m *Metrics) RecordQuestion(outcome string) {
	if m == nil {
		return
	}
	m.questionsTotal.WithLabelValues(outcome).Inc()
}

// RecordGateRefusal counts a refusal by the check that fired.
func (m *Metrics) RecordGateRefusal(check string) {
	if m == nil {
		return
	}
	m.gateRefusalsTotal.WithLabelValues(check).Inc()
}

// RecordDegraded counts a stage that failed open.
func (m *Metrics) RecordDegraded(stage string) {
	if m == nil {
		return
	}
	m.stageDegradedTotal.WithLabelValues(stage).Inc()
}

// AddUnsupportedClaims adds n flagged claims.
func (m *Metrics) AddUnsupportedClaims(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.unsupportedClaimsTotal.Add(float64(n))
}

// ObserveStage records the duration of a stage.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}
