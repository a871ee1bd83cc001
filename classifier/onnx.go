package classifier

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	ort "github.com/yalue/onnxruntime_go"

	"yashubustudio/aspectcat/aspect"
)

var (
	ortOnce sync.Once
	ortErr  error
)

func initORT(library string) error {
	ortOnce.Do(func() {
		if library != "" {
			ort.SetSharedLibraryPath(library)
		}
		ortErr = ort.InitializeEnvironment()
	})
	return ortErr
}

// ONNXConfig names the runtime library and the graph inputs and outputs.
type ONNXConfig struct {
	Library    string
	InputName  string
	OutputName string
}

// ONNX scores with binary classifiers exported to ONNX elsewhere. It cannot
// train; persisted models are the raw ONNX graphs.
type ONNX struct {
	cfg ONNXConfig
}

// NewONNX returns an inference only backend. The runtime is initialized on
// the first Load.
func NewONNX(cfg ONNXConfig) *ONNX {
	if cfg.InputName == "" {
		cfg.InputName = "input"
	}
	if cfg.OutputName == "" {
		cfg.OutputName = "probabilities"
	}
	return &ONNX{cfg: cfg}
}

// Train implements aspect.Backend and always fails.
func (o *ONNX) Train(context.Context, [][]float64, []bool) (aspect.Model, error) {
	return nil, errors.WithHint(
		errors.Wrap(aspect.ErrTraining, "the onnx backend is inference only"),
		"run with --test-only against exported models or use the logreg classifier")
}

// Load implements aspect.Backend.
func (o *ONNX) Load(data []byte) (aspect.Model, error) {
	if len(data) == 0 {
		return nil, errors.New("empty onnx model")
	}
	if err := initORT(o.cfg.Library); err != nil {
		return nil, errors.WithHint(
			errors.Wrapf(aspect.ErrConfiguration, "initialize onnxruntime: %v", err),
			"set classifier.ortLibrary to the onnxruntime shared library")
	}
	session, err := ort.NewDynamicAdvancedSessionWithONNXData(data,
		[]string{o.cfg.InputName}, []string{o.cfg.OutputName}, nil)
	if err != nil {
		return nil, errors.Wrap(err, "create onnx session")
	}
	return &onnxModel{session: session, data: data}, nil
}

type onnxModel struct {
	mu      sync.Mutex
	session *ort.DynamicAdvancedSession
	data    []byte
}

// Predict runs the graph on a (rows, features) float32 batch. The output is
// either one probability per row or a (rows, 2) matrix whose second column is
// the positive class.
func (m *onnxModel) Predict(ctx context.Context, x [][]float64) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(x) == 0 {
		return nil, nil
	}
	dim := len(x[0])
	flat := make([]float32, 0, len(x)*dim)
	for i, row := range x {
		if len(row) != dim {
			return nil, errors.Newf("row %d has %d features, expected %d", i, len(row), dim)
		}
		for _, v := range row {
			flat = append(flat, float32(v))
		}
	}
	input, err := ort.NewTensor(ort.NewShape(int64(len(x)), int64(dim)), flat)
	if err != nil {
		return nil, errors.Wrap(err, "create input tensor")
	}
	defer input.Destroy()

	outputs := []ort.Value{nil}
	m.mu.Lock()
	err = m.session.Run([]ort.Value{input}, outputs)
	m.mu.Unlock()
	if err != nil {
		return nil, errors.Wrap(err, "run onnx session")
	}
	defer outputs[0].Destroy()

	tensor, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, errors.New("onnx output is not a float32 tensor")
	}
	data := tensor.GetData()
	out := make([]float64, len(x))
	switch len(data) {
	case len(x):
		for i, v := range data {
			out[i] = float64(v)
		}
	case 2 * len(x):
		for i := range out {
			out[i] = float64(data[2*i+1])
		}
	default:
		return nil, errors.Newf("onnx output has %d values for %d rows", len(data), len(x))
	}
	return out, nil
}

func (m *onnxModel) MarshalBinary() ([]byte, error) {
	return append([]byte(nil), m.data...), nil
}

// Close releases the onnxruntime session.
func (m *onnxModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return nil
	}
	err := m.session.Destroy()
	m.session = nil
	return err
}
