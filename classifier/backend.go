package classifier

import (
	"github.com/cockroachdb/errors"

	"yashubustudio/aspectcat/aspect"
)

// New builds the backend selected by cfg.
func New(cfg aspect.ClassifierConfig) (aspect.Backend, error) {
	switch cfg.Kind {
	case aspect.ClassifierLogReg, "":
		return NewLogReg(LogRegConfig{
			Epochs:       cfg.Epochs,
			LearningRate: cfg.LearningRate,
			L2:           cfg.L2,
			Balanced:     cfg.Balanced,
		}), nil
	case aspect.ClassifierONNX:
		return NewONNX(ONNXConfig{
			Library:    cfg.OrtLibrary,
			InputName:  cfg.InputName,
			OutputName: cfg.OutputName,
		}), nil
	default:
		return nil, errors.Wrapf(aspect.ErrConfiguration, "unknown classifier %q", cfg.Kind)
	}
}
