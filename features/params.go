package features

import (
	"bytes"
	_ "embed"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"

	"yashubustudio/aspectcat/aspect"
)

// DefaultParams names the built-in parameter set.
const DefaultParams = "default"

//go:embed default.properties
var defaultProperties []byte

// Params controls how a feature table is built from a corpus.
type Params struct {
	Name string `mapstructure:"name"`
	// NGrams is the largest word n-gram extracted. Unigrams are always included.
	NGrams int `mapstructure:"ngrams"`
	// Window limits features to this many tokens on each side of the opinion
	// target. Zero uses the whole sentence, as do opinions without a target.
	Window         int    `mapstructure:"window"`
	HashDim        int    `mapstructure:"hashDim"`
	Lowercase      bool   `mapstructure:"lowercase"`
	TargetFeatures bool   `mapstructure:"targetFeatures"`
	Tokenizer      string `mapstructure:"tokenizer"`
}

// ApplyDefaults populates zero values with sensible defaults.
func (p *Params) ApplyDefaults() {
	if p.NGrams <= 0 {
		p.NGrams = 1
	}
	if p.Window < 0 {
		p.Window = 0
	}
	if p.HashDim <= 0 {
		p.HashDim = 4096
	}
}

// LoadParams reads a parameter set. "default" resolves to the embedded set;
// .cfg and .properties files are read as Java properties, anything else by
// its extension (yaml, json, toml).
func LoadParams(path string) (Params, error) {
	v := newViper()
	switch {
	case path == DefaultParams:
		v.SetConfigType("properties")
		if err := v.ReadConfig(bytes.NewReader(defaultProperties)); err != nil {
			return Params{}, errors.Wrap(err, "read embedded parameters")
		}
	case path == "":
		return Params{}, errors.WithHint(
			errors.Wrap(aspect.ErrConfiguration, "no feature parameter file given"),
			`pass a properties file or "default"`)
	default:
		if _, err := os.Stat(path); err != nil {
			return Params{}, errors.WithHint(
				errors.Wrapf(aspect.ErrConfiguration, "parameter file %s: %v", path, err),
				`use "default" for the built-in parameters`)
		}
		v.SetConfigFile(path)
		switch strings.ToLower(filepath.Ext(path)) {
		case ".cfg", ".properties", ".prop":
			v.SetConfigType("properties")
		}
		if err := v.ReadInConfig(); err != nil {
			return Params{}, errors.Wrapf(aspect.ErrConfiguration, "read parameter file %s: %v", path, err)
		}
	}
	var p Params
	if err := v.Unmarshal(&p); err != nil {
		return Params{}, errors.Wrapf(aspect.ErrConfiguration, "decode parameters %s: %v", path, err)
	}
	if p.Name == "" {
		p.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	p.ApplyDefaults()
	return p, nil
}
