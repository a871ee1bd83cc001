package classifier

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yashubustudio/aspectcat/aspect"
)

func separable() ([][]float64, []bool) {
	x := [][]float64{
		{1, 0, 0}, {0.9, 0.1, 0}, {0.8, 0, 0.2},
		{0, 1, 0}, {0.1, 0.9, 0}, {0, 0.8, 0.2},
		{0, 0, 1}, {0.1, 0, 0.9},
	}
	y := []bool{true, true, true, false, false, false, false, false}
	return x, y
}

func TestLogRegLearnsSeparableData(t *testing.T) {
	x, y := separable()
	m, err := NewLogReg(LogRegConfig{Epochs: 500, LearningRate: 1}).Train(context.Background(), x, y)
	require.NoError(t, err)

	p, err := m.Predict(context.Background(), x)
	require.NoError(t, err)
	for i, v := range p {
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 1.0)
		if y[i] {
			assert.Greater(t, v, 0.5, "row %d", i)
		} else {
			assert.Less(t, v, 0.5, "row %d", i)
		}
	}
}

func TestLogRegIsDeterministic(t *testing.T) {
	x, y := separable()
	lr := NewLogReg(LogRegConfig{Balanced: true})
	m1, err := lr.Train(context.Background(), x, y)
	require.NoError(t, err)
	m2, err := lr.Train(context.Background(), x, y)
	require.NoError(t, err)

	b1, err := m1.MarshalBinary()
	require.NoError(t, err)
	b2, err := m2.MarshalBinary()
	require.NoError(t, err)
	assert.Equal(t, b1, b2)
}

func TestLogRegBalancedFavorsMinority(t *testing.T) {
	x, y := separable()
	ctx := context.Background()
	plain, err := NewLogReg(LogRegConfig{Epochs: 20}).Train(ctx, x, y)
	require.NoError(t, err)
	balanced, err := NewLogReg(LogRegConfig{Epochs: 20, Balanced: true}).Train(ctx, x, y)
	require.NoError(t, err)

	sample := [][]float64{{0.5, 0.5, 0}}
	pp, err := plain.Predict(ctx, sample)
	require.NoError(t, err)
	pb, err := balanced.Predict(ctx, sample)
	require.NoError(t, err)
	assert.Greater(t, pb[0], pp[0])
}

func TestLogRegRoundTrip(t *testing.T) {
	x, y := separable()
	lr := NewLogReg(LogRegConfig{})
	m, err := lr.Train(context.Background(), x, y)
	require.NoError(t, err)

	data, err := m.MarshalBinary()
	require.NoError(t, err)
	loaded, err := lr.Load(data)
	require.NoError(t, err)

	want, err := m.Predict(context.Background(), x)
	require.NoError(t, err)
	got, err := loaded.Predict(context.Background(), x)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = lr.Load([]byte("{}"))
	assert.Error(t, err)
	_, err = lr.Load([]byte("not json"))
	assert.Error(t, err)
}

func TestLogRegRejectsBadInput(t *testing.T) {
	lr := NewLogReg(LogRegConfig{})
	ctx := context.Background()

	_, err := lr.Train(ctx, nil, nil)
	assert.Error(t, err)
	_, err = lr.Train(ctx, [][]float64{{1}, {1, 2}}, []bool{true, false})
	assert.Error(t, err)
	_, err = lr.Train(ctx, [][]float64{{1}}, []bool{true, false})
	assert.Error(t, err)

	m, err := lr.Train(ctx, [][]float64{{1, 0}, {0, 1}}, []bool{true, false})
	require.NoError(t, err)
	_, err = m.Predict(ctx, [][]float64{{1, 0, 0}})
	assert.Error(t, err)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = lr.Train(cancelled, [][]float64{{1}}, []bool{true})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestONNXCannotTrain(t *testing.T) {
	_, err := NewONNX(ONNXConfig{}).Train(context.Background(), [][]float64{{1}}, []bool{true})
	assert.True(t, errors.Is(err, aspect.ErrTraining))

	_, err = NewONNX(ONNXConfig{}).Load(nil)
	assert.Error(t, err)
}

func TestNew(t *testing.T) {
	b, err := New(aspect.ClassifierConfig{Kind: aspect.ClassifierLogReg, Epochs: 3})
	require.NoError(t, err)
	assert.IsType(t, &LogReg{}, b)

	b, err = New(aspect.ClassifierConfig{Kind: aspect.ClassifierONNX})
	require.NoError(t, err)
	assert.IsType(t, &ONNX{}, b)

	_, err = New(aspect.ClassifierConfig{Kind: "smo"})
	assert.True(t, errors.Is(err, aspect.ErrConfiguration))
}

// The logistic regression backend drives a real ensemble end to end.
func TestLogRegInEnsemble(t *testing.T) {
	table := aspect.NewTable(2)
	rows := []aspect.Instance{
		{ID: 1, Features: []float64{1, 0}, EntCat: "FOOD"},
		{ID: 2, Features: []float64{0.9, 0.1}, EntCat: "FOOD"},
		{ID: 3, Features: []float64{0, 1}, EntCat: "SERVICE"},
		{ID: 4, Features: []float64{0.1, 0.9}, EntCat: "SERVICE"},
	}
	for _, r := range rows {
		require.NoError(t, table.Add(r))
	}
	e := aspect.NewEnsemble(NewLogReg(LogRegConfig{Epochs: 300, LearningRate: 1}))
	require.NoError(t, e.Fit(context.Background(), table, aspect.FieldEntity))
	conf, err := e.Predict(context.Background(), table)
	require.NoError(t, err)
	assert.Greater(t, conf[1]["FOOD"], conf[1]["SERVICE"])
	assert.Greater(t, conf[4]["SERVICE"], conf[4]["FOOD"])
}
