package aspect

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 0.5, cfg.Thresholds.Entity)
	assert.Equal(t, 0.5, cfg.Thresholds.Attribute)
	assert.Equal(t, ClassifierLogReg, cfg.Classifier.Kind)
	assert.Equal(t, StoreFile, cfg.Store.Kind)
	assert.Equal(t, 10, cfg.Folds)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfigMissingDefaultFile(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfigMissingExplicitFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.True(t, errors.Is(err, ErrConfiguration))
}

func TestLoadConfigYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "atc.yaml")
	data := []byte(`modelName: laptops
thresholds:
  entity: 0.3
classifier:
  kind: onnx
  ortLibrary: /opt/onnxruntime.so
store:
  kind: badger
  dir: /var/lib/atc
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "laptops", cfg.ModelName)
	assert.Equal(t, 0.3, cfg.Thresholds.Entity)
	assert.Equal(t, 0.5, cfg.Thresholds.Attribute, "unset keys fall back to defaults")
	assert.Equal(t, ClassifierONNX, cfg.Classifier.Kind)
	assert.Equal(t, "/opt/onnxruntime.so", cfg.Classifier.OrtLibrary)
	assert.Equal(t, StoreBadger, cfg.Store.Kind)
	assert.Equal(t, "/var/lib/atc", cfg.Store.Dir)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("ATC_THRESHOLDS_ATTRIBUTE", "0.25")
	t.Setenv("ATC_MODELNAME", "hotels")
	t.Chdir(t.TempDir())

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, 0.25, cfg.Thresholds.Attribute)
	assert.Equal(t, "hotels", cfg.ModelName)
}

func TestLoadConfigRejectsBadThreshold(t *testing.T) {
	path := filepath.Join(t.TempDir(), "atc.yaml")
	require.NoError(t, os.WriteFile(path, []byte("thresholds:\n  entity: 1.2\n"), 0o644))
	_, err := LoadConfig(path)
	assert.True(t, errors.Is(err, ErrConfiguration))
}

func TestSaveConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "atc.yaml")
	cfg := DefaultConfig()
	cfg.ModelName = "rest16"
	cfg.Thresholds = Thresholds{Entity: 0.35, Attribute: 0.6}
	cfg.NullSentences = true
	cfg.Classifier.Balanced = true

	require.NoError(t, SaveConfig(path, cfg))
	_, err := os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestValidateRejectsUnknownKinds(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Classifier.Kind = "smo"
	assert.True(t, errors.Is(cfg.Validate(), ErrConfiguration))

	cfg = DefaultConfig()
	cfg.Store.Kind = "s3"
	assert.True(t, errors.Is(cfg.Validate(), ErrConfiguration))
}
