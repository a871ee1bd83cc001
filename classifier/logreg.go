// Package classifier provides binary classifier backends for the one-vs-all
// ensembles.
package classifier

import (
	"context"
	"encoding/json"
	"math"

	"github.com/cockroachdb/errors"
	"gonum.org/v1/gonum/floats"

	"yashubustudio/aspectcat/aspect"
)

// LogRegConfig tunes logistic regression training.
type LogRegConfig struct {
	Epochs       int
	LearningRate float64
	L2           float64
	// Balanced weights both classes equally regardless of their frequency.
	Balanced bool
}

// LogReg trains L2 regularized logistic regression with full-batch gradient
// descent from a zero start, so training is deterministic.
type LogReg struct {
	cfg LogRegConfig
}

// NewLogReg returns a logistic regression backend.
func NewLogReg(cfg LogRegConfig) *LogReg {
	if cfg.Epochs <= 0 {
		cfg.Epochs = 200
	}
	if cfg.LearningRate <= 0 {
		cfg.LearningRate = 0.5
	}
	if cfg.L2 < 0 {
		cfg.L2 = 0
	}
	return &LogReg{cfg: cfg}
}

type logRegModel struct {
	Weights []float64 `json:"weights"`
	Bias    float64   `json:"bias"`
}

// Train implements aspect.Backend.
func (l *LogReg) Train(ctx context.Context, x [][]float64, y []bool) (aspect.Model, error) {
	if len(x) == 0 {
		return nil, errors.New("no training rows")
	}
	if len(x) != len(y) {
		return nil, errors.Newf("%d rows but %d labels", len(x), len(y))
	}
	dim := len(x[0])
	for i, row := range x {
		if len(row) != dim {
			return nil, errors.Newf("row %d has %d features, expected %d", i, len(row), dim)
		}
	}

	pos := 0
	for _, v := range y {
		if v {
			pos++
		}
	}
	wPos, wNeg := 1.0, 1.0
	if l.cfg.Balanced && pos > 0 && pos < len(y) {
		n := float64(len(y))
		wPos = n / (2 * float64(pos))
		wNeg = n / (2 * float64(len(y)-pos))
	}
	total := float64(pos)*wPos + float64(len(y)-pos)*wNeg

	m := &logRegModel{Weights: make([]float64, dim)}
	grad := make([]float64, dim)
	for epoch := 0; epoch < l.cfg.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for i := range grad {
			grad[i] = 0
		}
		var gb float64
		for i, row := range x {
			target, w := 0.0, wNeg
			if y[i] {
				target, w = 1, wPos
			}
			e := (sigmoid(floats.Dot(m.Weights, row)+m.Bias) - target) * w
			floats.AddScaled(grad, e, row)
			gb += e
		}
		floats.Scale(1/total, grad)
		floats.AddScaled(grad, l.cfg.L2, m.Weights)
		floats.AddScaled(m.Weights, -l.cfg.LearningRate, grad)
		m.Bias -= l.cfg.LearningRate * gb / total
	}
	return m, nil
}

// Load implements aspect.Backend.
func (l *LogReg) Load(data []byte) (aspect.Model, error) {
	var m logRegModel
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, errors.Wrap(err, "decode logistic regression model")
	}
	if len(m.Weights) == 0 {
		return nil, errors.New("logistic regression model has no weights")
	}
	return &m, nil
}

func (m *logRegModel) Predict(ctx context.Context, x [][]float64) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]float64, len(x))
	for i, row := range x {
		if len(row) != len(m.Weights) {
			return nil, errors.Newf("row %d has %d features, model expects %d", i, len(row), len(m.Weights))
		}
		out[i] = sigmoid(floats.Dot(m.Weights, row) + m.Bias)
	}
	return out, nil
}

func (m *logRegModel) MarshalBinary() ([]byte, error) {
	return json.Marshal(m)
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}
