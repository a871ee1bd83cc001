package aspect

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts gate outcomes, training time and reconciled opinions. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	instances *prometheus.CounterVec
	training  *prometheus.HistogramVec
	opinions  prometheus.Counter
}

// NewMetrics registers the pipeline collectors with reg. A nil reg leaves
// them unregistered, which is what tests usually want.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		instances: f.NewCounterVec(prometheus.CounterOpts{
			Name: "atc_gate_instances_total",
			Help: "Instances leaving a gate by stage and outcome (kept, dropped, synthesized)",
		}, []string{"stage", "outcome"}),
		training: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "atc_training_duration_seconds",
			Help:    "Time spent fitting a one-vs-all ensemble",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"field"}),
		opinions: f.NewCounter(prometheus.CounterOpts{
			Name: "atc_opinions_added_total",
			Help: "Opinions written back to the corpus by reconciliation",
		}),
	}
}

func (m *Metrics) observeGate(stage string, exp Expansion) {
	if m == nil {
		return
	}
	kept := exp.Table.Len() - len(exp.Synthesized)
	m.instances.WithLabelValues(stage, "kept").Add(float64(kept))
	m.instances.WithLabelValues(stage, "dropped").Add(float64(len(exp.Dropped)))
	m.instances.WithLabelValues(stage, "synthesized").Add(float64(len(exp.Synthesized)))
}

func (m *Metrics) observeTraining(field Field, d time.Duration) {
	if m == nil {
		return
	}
	m.training.WithLabelValues(string(field)).Observe(d.Seconds())
}

func (m *Metrics) addOpinions(n int) {
	if m == nil {
		return
	}
	m.opinions.Add(float64(n))
}
