package features

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/magiconair/properties"
	"github.com/spf13/viper"
)

// propertiesCodec reads and writes Java style key=value parameter files.
// Keys stay flat; dots are not expanded into nested sections.
type propertiesCodec struct{}

func (propertiesCodec) Decode(b []byte, v map[string]any) error {
	p, err := properties.Load(b, properties.UTF8)
	if err != nil {
		return errors.Wrap(err, "parse properties")
	}
	for _, key := range p.Keys() {
		value, _ := p.Get(key)
		v[key] = value
	}
	return nil
}

func (propertiesCodec) Encode(v map[string]any) ([]byte, error) {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	p := properties.NewProperties()
	for _, k := range keys {
		if _, _, err := p.Set(k, fmt.Sprint(v[k])); err != nil {
			return nil, errors.Wrapf(err, "set %s", k)
		}
	}
	var buf bytes.Buffer
	if _, err := p.Write(&buf, properties.UTF8); err != nil {
		return nil, errors.Wrap(err, "write properties")
	}
	return buf.Bytes(), nil
}

var propertiesFormats = []string{"properties", "props", "prop"}

// newViper returns a viper instance that also understands properties files.
func newViper() *viper.Viper {
	codecs := viper.NewCodecRegistry()
	for _, format := range propertiesFormats {
		_ = codecs.RegisterCodec(format, propertiesCodec{})
	}
	return viper.NewWithOptions(viper.WithCodecRegistry(codecs))
}
