package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PredictMetrics holds metrics for the prediction fan-out.
type PredictMetrics struct {
	CollaboratorDuration *prometheus.HistogramVec
	Predictions          *prometheus.CounterVec
	UrgencyLevels        *prometheus.CounterVec
	UrgencyScore         prometheus.Histogram
}

// NewPredictMetrics creates and registers prediction metrics on the given registry.
func NewPredictMetrics(reg prometheus.Registerer) *PredictMetrics {
	m := &PredictMetrics{
		CollaboratorDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "collaborator_duration_seconds",
			Help:      "Duration of classifier collaborator calls in seconds.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"collaborator", "backend", "outcome"}),
		Predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "predictions_total",
			Help:      "Total number of predictions, by outcome.",
		}, []string{"outcome"}),
		UrgencyLevels: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "urgency_total",
			Help:      "Total number of urgency assessments, by level.",
		}, []string{"level"}),
		UrgencyScore: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "urgency_score",
			Help:      "Distribution of numeric urgency scores.",
			Buckets:   prometheus.LinearBuckets(0.1, 0.1, 10),
		}),
	}

	reg.MustRegister(m.CollaboratorDuration, m.Predictions, m.UrgencyLevels, m.UrgencyScore)
	return m
}

// ObserveCollaborator records one collaborator call. A nil receiver is a no-op.
func (m *PredictMetrics) ObserveCollaborator(collaborator, backend string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.CollaboratorDuration.WithLabelValues(collaborator, backend, outcome).Observe(elapsed.Seconds())
}

// ObservePrediction records the outcome of one prediction.
func (m *PredictMetrics) ObservePrediction(outcome string) {
	if m == nil {
		return
	}
	m.Predictions.WithLabelValues(outcome).Inc()
}

// ObserveUrgency records an urgency assessment.
func (m *PredictMetrics) ObserveUrgency(level string, score float64) {
	if m == nil {
		return
	}
	m.UrgencyLevels.WithLabelValues(level).Inc()
	m.UrgencyScore.Observe(score)
}
