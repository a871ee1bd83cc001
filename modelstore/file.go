// Package modelstore persists serialized classifier models.
package modelstore

import (
	"context"
	"io"
	"net/url"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"yashubustudio/aspectcat/aspect"
)

// ErrNotFound is returned when no model is stored under a name.
var ErrNotFound = errors.New("model not found")

// Store is a closable aspect.ModelStore.
type Store interface {
	aspect.ModelStore
	io.Closer
}

// Open returns the store selected by cfg.
func Open(cfg aspect.StoreConfig, logger *zap.Logger) (Store, error) {
	switch cfg.Kind {
	case aspect.StoreFile, "":
		return NewFile(cfg.Dir)
	case aspect.StoreBadger:
		return OpenBadger(BadgerConfig{Dir: cfg.Dir, Logger: logger})
	default:
		return nil, errors.Wrapf(aspect.ErrConfiguration, "unknown model store %q", cfg.Kind)
	}
}

// File keeps one file per model in a directory.
type File struct {
	dir string
}

// NewFile returns a store rooted at dir, creating it if needed.
func NewFile(dir string) (*File, error) {
	if dir == "" {
		return nil, errors.Wrap(aspect.ErrConfiguration, "model directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create model dir")
	}
	return &File{dir: dir}, nil
}

func (f *File) path(name string) (string, error) {
	if name == "" || name == "." || name == ".." {
		return "", errors.Newf("invalid model name %q", name)
	}
	return filepath.Join(f.dir, url.PathEscape(name)+".bin"), nil
}

// Save writes data atomically.
func (f *File) Save(ctx context.Context, name string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := f.path(name)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.Wrapf(err, "write model %s", name)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return errors.Wrapf(err, "rename model %s", name)
	}
	return nil
}

// Load reads the model stored under name.
func (f *File) Load(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := f.path(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, errors.Wrapf(ErrNotFound, "%s in %s", name, f.dir)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read model %s", name)
	}
	return data, nil
}

// Close implements io.Closer.
func (f *File) Close() error { return nil }
