package aspect

import (
	"context"
	"encoding/json"
	"io"
	"math"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type manifest struct {
	Field      Field    `json:"field"`
	Categories []string `json:"categories"`
}

// Ensemble is a one-vs-all classifier over the values of one label field:
// one binary model per category.
type Ensemble struct {
	backend    Backend
	field      Field
	categories []string
	models     map[string]Model

	// Parallelism bounds the per-category goroutines. Values below 1 run serially.
	Parallelism int
	Logger      *zap.Logger
	Metrics     *Metrics
}

// NewEnsemble returns an untrained ensemble using backend.
func NewEnsemble(backend Backend) *Ensemble {
	return &Ensemble{backend: backend, Parallelism: 1}
}

// Field returns the label field the ensemble was fitted or loaded for.
func (e *Ensemble) Field() Field { return e.field }

// Categories returns the sorted categories, one per binary model.
func (e *Ensemble) Categories() []string { return append([]string(nil), e.categories...) }

func (e *Ensemble) logger() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

func (e *Ensemble) limit() int {
	if e.Parallelism < 1 {
		return 1
	}
	return e.Parallelism
}

// Fit trains one model per distinct non-empty value of field. Rows with an
// empty label take no part in training. The table is not modified.
func (e *Ensemble) Fit(ctx context.Context, table *Table, field Field) error {
	if e.backend == nil {
		return errors.Wrap(ErrConfiguration, "ensemble has no classifier backend")
	}
	cats := table.Values(field)
	if len(cats) < 2 {
		return trainingErr(field, "", errors.Newf("need at least two distinct values, found %d", len(cats)))
	}
	var (
		x      [][]float64
		labels []string
	)
	for _, row := range table.Rows() {
		l := row.Label(field)
		if l == "" {
			continue
		}
		x = append(x, row.Features)
		labels = append(labels, l)
	}

	start := time.Now()
	trained := make([]Model, len(cats))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.limit())
	for i, cat := range cats {
		g.Go(func() error {
			y := make([]bool, len(labels))
			pos := 0
			for j, l := range labels {
				if l == cat {
					y[j] = true
					pos++
				}
			}
			m, err := e.backend.Train(gctx, x, y)
			if err != nil {
				return trainingErr(field, cat, err)
			}
			trained[i] = m
			e.logger().Debug("trained category",
				zap.String("field", string(field)),
				zap.String("category", cat),
				zap.Int("positives", pos),
				zap.Int("rows", len(y)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		e.discard(closeModels(trained...))
		return err
	}

	e.discard(e.Close())
	e.field = field
	e.categories = cats
	e.models = make(map[string]Model, len(cats))
	for i, cat := range cats {
		e.models[cat] = trained[i]
	}
	e.Metrics.observeTraining(field, time.Since(start))
	e.logger().Info("ensemble trained",
		zap.String("field", string(field)),
		zap.Int("categories", len(cats)),
		zap.Int("rows", len(labels)),
		zap.Duration("took", time.Since(start)))
	return nil
}

// Predict scores every row of table against every category. The map is
// returned only once all categories are done.
func (e *Ensemble) Predict(ctx context.Context, table *Table) (ConfidenceMap, error) {
	if len(e.models) == 0 {
		return nil, errors.Wrap(ErrConfiguration, "ensemble has not been trained or loaded")
	}
	rows := table.Rows()
	x := make([][]float64, len(rows))
	for i, r := range rows {
		x[i] = r.Features
	}

	scores := make([][]float64, len(e.categories))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.limit())
	for i, cat := range e.categories {
		m := e.models[cat]
		g.Go(func() error {
			p, err := m.Predict(gctx, x)
			if err != nil {
				return errors.Wrapf(err, "predict %s=%s", e.field, cat)
			}
			if len(p) != len(x) {
				return errors.Newf("predict %s=%s: %d scores for %d rows", e.field, cat, len(p), len(x))
			}
			for j, v := range p {
				if math.IsNaN(v) || v < 0 || v > 1 {
					return errors.Newf("predict %s=%s: score %v for instance %s outside [0,1]", e.field, cat, v, rows[j].ID)
				}
			}
			scores[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(ConfidenceMap, len(rows))
	for j, r := range rows {
		row := make(map[string]float64, len(e.categories))
		for i, cat := range e.categories {
			row[cat] = scores[i][j]
		}
		out[r.ID] = row
	}
	return out, nil
}

func manifestKey(name string, field Field) string {
	return name + "-" + string(field) + ".categories"
}

func modelKey(name string, field Field, category string) string {
	return name + "-" + string(field) + "-" + category
}

// Save persists the manifest and every category model under name.
func (e *Ensemble) Save(ctx context.Context, store ModelStore, name string) error {
	if len(e.models) == 0 {
		return errors.Wrap(ErrConfiguration, "nothing to save: ensemble is empty")
	}
	for _, cat := range e.categories {
		data, err := e.models[cat].MarshalBinary()
		if err != nil {
			return errors.Wrapf(err, "encode model %s=%s", e.field, cat)
		}
		if err := store.Save(ctx, modelKey(name, e.field, cat), data); err != nil {
			return errors.Wrapf(err, "save model %s=%s", e.field, cat)
		}
	}
	data, err := json.Marshal(manifest{Field: e.field, Categories: e.categories})
	if err != nil {
		return errors.Wrap(err, "encode manifest")
	}
	if err := store.Save(ctx, manifestKey(name, e.field), data); err != nil {
		return errors.Wrap(err, "save manifest")
	}
	e.logger().Info("ensemble saved",
		zap.String("name", name),
		zap.String("field", string(e.field)),
		zap.Int("categories", len(e.categories)))
	return nil
}

// Load restores an ensemble saved under name for field. A missing manifest
// or model is a configuration error.
func (e *Ensemble) Load(ctx context.Context, store ModelStore, name string, field Field) error {
	if e.backend == nil {
		return errors.Wrap(ErrConfiguration, "ensemble has no classifier backend")
	}
	data, err := store.Load(ctx, manifestKey(name, field))
	if err != nil {
		return errors.WithHint(
			errors.Mark(errors.Wrapf(err, "load %s manifest for %q", field, name), ErrConfiguration),
			"train the models first or check the model name")
	}
	var man manifest
	if err := json.Unmarshal(data, &man); err != nil {
		return errors.Wrapf(ErrConfiguration, "decode %s manifest for %q: %v", field, name, err)
	}
	if len(man.Categories) == 0 {
		return errors.Wrapf(ErrConfiguration, "%s manifest for %q lists no categories", field, name)
	}
	models := make(map[string]Model, len(man.Categories))
	for _, cat := range man.Categories {
		raw, err := store.Load(ctx, modelKey(name, field, cat))
		if err != nil {
			e.discard(closeModels(modelList(models)...))
			return errors.Mark(errors.Wrapf(err, "load model %s=%s", field, cat), ErrConfiguration)
		}
		m, err := e.backend.Load(raw)
		if err != nil {
			e.discard(closeModels(modelList(models)...))
			return errors.Mark(errors.Wrapf(err, "decode model %s=%s", field, cat), ErrConfiguration)
		}
		models[cat] = m
	}
	e.discard(e.Close())
	e.field = field
	e.categories = append([]string(nil), man.Categories...)
	e.models = models
	e.logger().Info("ensemble loaded",
		zap.String("name", name),
		zap.String("field", string(field)),
		zap.Int("categories", len(models)))
	return nil
}

// Close releases every model that holds native resources and leaves the
// ensemble empty.
func (e *Ensemble) Close() error {
	models := modelList(e.models)
	e.models = nil
	e.categories = nil
	return closeModels(models...)
}

func (e *Ensemble) discard(err error) {
	if err != nil {
		e.logger().Warn("release models", zap.Error(err))
	}
}

func modelList(models map[string]Model) []Model {
	out := make([]Model, 0, len(models))
	for _, m := range models {
		out = append(out, m)
	}
	return out
}

func closeModels(models ...Model) error {
	var errs error
	for _, m := range models {
		if c, ok := m.(io.Closer); ok {
			errs = errors.CombineErrors(errs, c.Close())
		}
	}
	return errs
}
