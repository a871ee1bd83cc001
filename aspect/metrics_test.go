package aspect

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsObserveCascade(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()
	m := NewMetrics(reg)

	store := newMemStore()
	store.preload(t, "rest", FieldEntity, map[string]float64{"FOOD": 0.9, "DRINKS": 0.7})
	store.preload(t, "rest", FieldAttribute, map[string]float64{"QUALITY": 0.8, "PRICES": 0.3})

	c := singleSentence(t)
	run := newTestCascade(t, store)
	run.Metrics = m
	_, err := run.Run(context.Background(), c, extractorFor(t, c, 1), extractorFor(t, c, 1), true)
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.instances.WithLabelValues("stage1", "kept")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.instances.WithLabelValues("stage1", "synthesized")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.instances.WithLabelValues("stage1", "dropped")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.instances.WithLabelValues("stage2", "kept")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.opinions))

	n, err := testutil.GatherAndCount(reg, "atc_opinions_added_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.observeGate("stage1", Expansion{Table: NewTable(0)})
	m.observeTraining(FieldEntity, 0)
	m.addOpinions(3)
}
