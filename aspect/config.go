package aspect

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const defaultConfigFile = "atc.yaml"

// Classifier backend kinds.
const (
	ClassifierLogReg = "logreg"
	ClassifierONNX   = "onnx"
)

// Model store kinds.
const (
	StoreFile   = "file"
	StoreBadger = "badger"
)

// Thresholds are the per-stage gate values. A category survives when its
// score is strictly greater than the threshold.
type Thresholds struct {
	Entity    float64 `mapstructure:"entity" yaml:"entity"`
	Attribute float64 `mapstructure:"attribute" yaml:"attribute"`
}

// ClassifierConfig selects and tunes the binary classifier backend.
type ClassifierConfig struct {
	Kind         string  `mapstructure:"kind" yaml:"kind"`
	Epochs       int     `mapstructure:"epochs" yaml:"epochs"`
	LearningRate float64 `mapstructure:"learningRate" yaml:"learningRate"`
	L2           float64 `mapstructure:"l2" yaml:"l2"`
	Balanced     bool    `mapstructure:"balanced" yaml:"balanced"`
	OrtLibrary   string  `mapstructure:"ortLibrary" yaml:"ortLibrary,omitempty"`
	InputName    string  `mapstructure:"inputName" yaml:"inputName,omitempty"`
	OutputName   string  `mapstructure:"outputName" yaml:"outputName,omitempty"`
}

// StoreConfig selects where trained models are persisted.
type StoreConfig struct {
	Kind string `mapstructure:"kind" yaml:"kind"`
	Dir  string `mapstructure:"dir" yaml:"dir"`
}

// LogConfig controls the zap logger built by the CLI.
type LogConfig struct {
	JSON  bool   `mapstructure:"json" yaml:"json"`
	Level string `mapstructure:"level" yaml:"level"`
}

// Config aggregates runtime settings persisted to atc.yaml.
type Config struct {
	Language      string           `mapstructure:"language" yaml:"language"`
	ModelName     string           `mapstructure:"modelName" yaml:"modelName"`
	Thresholds    Thresholds       `mapstructure:"thresholds" yaml:"thresholds"`
	Parallelism   int              `mapstructure:"parallelism" yaml:"parallelism"`
	NullSentences bool             `mapstructure:"nullSentences" yaml:"nullSentences"`
	Folds         int              `mapstructure:"folds" yaml:"folds"`
	Classifier    ClassifierConfig `mapstructure:"classifier" yaml:"classifier"`
	Store         StoreConfig      `mapstructure:"store" yaml:"store"`
	Log           LogConfig        `mapstructure:"log" yaml:"log"`
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() Config {
	var cfg Config
	cfg.Thresholds = Thresholds{Entity: 0.5, Attribute: 0.5}
	cfg.ApplyDefaults()
	return cfg
}

// Clone returns a copy the caller may mutate.
func (c Config) Clone() Config {
	return c
}

// ApplyDefaults populates zero values with sensible defaults. Thresholds are
// left alone since zero is a legal gate value.
func (c *Config) ApplyDefaults() {
	if c.Language == "" {
		c.Language = "en"
	}
	if c.ModelName == "" {
		c.ModelName = "atc"
	}
	if c.Parallelism <= 0 {
		c.Parallelism = 4
	}
	if c.Folds <= 1 {
		c.Folds = 10
	}
	if c.Classifier.Kind == "" {
		c.Classifier.Kind = ClassifierLogReg
	}
	if c.Classifier.Epochs <= 0 {
		c.Classifier.Epochs = 200
	}
	if c.Classifier.LearningRate <= 0 {
		c.Classifier.LearningRate = 0.5
	}
	if c.Classifier.L2 < 0 {
		c.Classifier.L2 = 0
	}
	if c.Store.Kind == "" {
		c.Store.Kind = StoreFile
	}
	if c.Store.Dir == "" {
		c.Store.Dir = "models"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate rejects settings the pipeline cannot run with.
func (c Config) Validate() error {
	if c.Thresholds.Entity < 0 || c.Thresholds.Entity > 1 {
		return errors.Wrapf(ErrConfiguration, "entity threshold %v outside [0,1]", c.Thresholds.Entity)
	}
	if c.Thresholds.Attribute < 0 || c.Thresholds.Attribute > 1 {
		return errors.Wrapf(ErrConfiguration, "attribute threshold %v outside [0,1]", c.Thresholds.Attribute)
	}
	switch c.Classifier.Kind {
	case ClassifierLogReg, ClassifierONNX:
	default:
		return errors.WithHint(
			errors.Wrapf(ErrConfiguration, "unknown classifier %q", c.Classifier.Kind),
			"use logreg or onnx")
	}
	switch c.Store.Kind {
	case StoreFile, StoreBadger:
	default:
		return errors.WithHint(
			errors.Wrapf(ErrConfiguration, "unknown model store %q", c.Store.Kind),
			"use file or badger")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("language", d.Language)
	v.SetDefault("modelName", d.ModelName)
	v.SetDefault("thresholds.entity", d.Thresholds.Entity)
	v.SetDefault("thresholds.attribute", d.Thresholds.Attribute)
	v.SetDefault("parallelism", d.Parallelism)
	v.SetDefault("nullSentences", d.NullSentences)
	v.SetDefault("folds", d.Folds)
	v.SetDefault("classifier.kind", d.Classifier.Kind)
	v.SetDefault("classifier.epochs", d.Classifier.Epochs)
	v.SetDefault("classifier.learningRate", d.Classifier.LearningRate)
	v.SetDefault("classifier.l2", d.Classifier.L2)
	v.SetDefault("classifier.balanced", d.Classifier.Balanced)
	v.SetDefault("store.kind", d.Store.Kind)
	v.SetDefault("store.dir", d.Store.Dir)
	v.SetDefault("log.json", d.Log.JSON)
	v.SetDefault("log.level", d.Log.Level)
}

// LoadConfig loads configuration from the given path or the default atc.yaml.
// A missing default file yields the defaults; a missing explicit path is an error.
// Values may be overridden with ATC_ prefixed environment variables
// (ATC_THRESHOLDS_ENTITY=0.4).
func LoadConfig(path string) (Config, error) {
	explicit := path != ""
	if !explicit {
		path = defaultConfigFile
	}
	v := viper.New()
	v.SetEnvPrefix("ATC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		_, statErr := os.Stat(path)
		switch {
		case errors.Is(statErr, os.ErrNotExist) && !explicit:
		case errors.Is(statErr, os.ErrNotExist):
			return Config{}, errors.WithHint(
				errors.Wrapf(ErrConfiguration, "config %s does not exist", path),
				"omit --config to run with defaults")
		default:
			return Config{}, errors.Wrapf(ErrConfiguration, "read config %s: %v", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errors.Wrapf(ErrConfiguration, "decode config: %v", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// SaveConfig persists configuration to disk as YAML.
func SaveConfig(path string, cfg Config) error {
	if path == "" {
		path = defaultConfigFile
	}
	tmp := path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "create config dir")
	}
	cfg.ApplyDefaults()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, "encode config")
	}
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.Wrap(err, "write temp config")
	}
	if err := os.Rename(tmp, path); err != nil {
		return errors.Wrap(err, "rename config")
	}
	return nil
}
