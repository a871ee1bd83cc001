package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"yashubustudio/aspectcat/aspect"
	"yashubustudio/aspectcat/classifier"
	"yashubustudio/aspectcat/corpus"
	"yashubustudio/aspectcat/features"
	"yashubustudio/aspectcat/modelstore"
)

type runEnv struct {
	cfg      aspect.Config
	logger   *zap.Logger
	backend  aspect.Backend
	store    modelstore.Store
	registry *prometheus.Registry
	metrics  *aspect.Metrics
	out      io.Writer
}

func newRunEnv(cfg aspect.Config, logger *zap.Logger, out io.Writer) (*runEnv, error) {
	backend, err := classifier.New(cfg.Classifier)
	if err != nil {
		return nil, err
	}
	store, err := modelstore.Open(cfg.Store, logger)
	if err != nil {
		return nil, errors.Wrap(err, "open model store")
	}
	reg := prometheus.NewRegistry()
	return &runEnv{
		cfg:      cfg,
		logger:   logger,
		backend:  backend,
		store:    store,
		registry: reg,
		metrics:  aspect.NewMetrics(reg),
		out:      out,
	}, nil
}

func (e *runEnv) Close() {
	if err := e.store.Close(); err != nil {
		e.logger.Warn("close model store", zap.Error(err))
	}
}

func (e *runEnv) writeMetrics(path string) error {
	if path == "" {
		return nil
	}
	return errors.Wrap(prometheus.WriteToTextfile(path, e.registry), "write metrics")
}

func (e *runEnv) cascade() (*aspect.Cascade, error) {
	c, err := aspect.NewCascade(e.cfg, e.backend, e.store)
	if err != nil {
		return nil, err
	}
	c.Logger = e.logger
	c.Metrics = e.metrics
	return c, nil
}

func (e *runEnv) readCorpus(path, format string) (*corpus.Corpus, error) {
	c, err := corpus.ReadFile(path, corpus.Format(format), corpus.ReadOptions{
		NullSentences: e.cfg.NullSentences,
		Language:      e.cfg.Language,
	})
	if err != nil {
		return nil, err
	}
	e.logger.Info("corpus loaded",
		zap.String("path", path),
		zap.Int("sentences", len(c.Sentences())),
		zap.Int("opinions", c.Len()))
	return c, nil
}

func (e *runEnv) builder(c *corpus.Corpus, paramsPath string) (*features.Builder, error) {
	params, err := features.LoadParams(paramsPath)
	if err != nil {
		return nil, err
	}
	return features.NewBuilder(c, params, e.logger)
}

// tagFunc runs one annotation pass over c.
type tagFunc func(ctx context.Context, c *corpus.Corpus, testOnly bool) (aspect.Result, error)

// annotate trains on --input (unless --test-only), then annotates --testset
// when given, otherwise --input, and writes the result.
func (e *runEnv) annotate(ctx context.Context, opts cliOptions, tag tagFunc) error {
	target := opts.inputPath
	testOnly := opts.testOnly
	if opts.testset != "" {
		if !opts.testOnly {
			train, err := e.readCorpus(opts.inputPath, opts.format)
			if err != nil {
				return err
			}
			if _, err := tag(ctx, train, false); err != nil {
				return err
			}
			testOnly = true
		}
		target = opts.testset
	}
	c, err := e.readCorpus(target, opts.format)
	if err != nil {
		return err
	}
	res, err := tag(ctx, c, testOnly)
	if err != nil {
		return err
	}
	e.logger.Info("corpus annotated",
		zap.String("path", target),
		zap.Int("opinions", len(res.Added)))
	if opts.outputPath == "" {
		return corpus.Write(e.out, c, corpus.Format(opts.format))
	}
	return c.WriteAs(corpus.Format(opts.format), opts.outputPath)
}

func runCascade(ctx context.Context, env *runEnv, opts cliOptions) error {
	params2 := opts.params2
	if params2 == "" {
		params2 = opts.params
	}
	return env.annotate(ctx, opts, func(ctx context.Context, c *corpus.Corpus, testOnly bool) (aspect.Result, error) {
		stage1, err := env.builder(c, opts.params)
		if err != nil {
			return aspect.Result{}, err
		}
		stage2, err := env.builder(c, params2)
		if err != nil {
			return aspect.Result{}, err
		}
		run, err := env.cascade()
		if err != nil {
			return aspect.Result{}, err
		}
		return run.Run(ctx, c, stage1, stage2, testOnly)
	})
}

func runSingle(ctx context.Context, env *runEnv, opts cliOptions) error {
	return env.annotate(ctx, opts, func(ctx context.Context, c *corpus.Corpus, testOnly bool) (aspect.Result, error) {
		b, err := env.builder(c, opts.params)
		if err != nil {
			return aspect.Result{}, err
		}
		run, err := env.cascade()
		if err != nil {
			return aspect.Result{}, err
		}
		return run.RunSingle(ctx, c, b, testOnly)
	})
}

func runCrossValidate(ctx context.Context, env *runEnv, opts cliOptions) error {
	field := aspect.Field(opts.field)
	switch field {
	case aspect.FieldEntity, aspect.FieldAttribute, aspect.FieldEntityAttribute:
	default:
		return errors.Wrapf(aspect.ErrConfiguration, "unknown field %q", opts.field)
	}
	folds := opts.folds
	if folds <= 0 {
		folds = env.cfg.Folds
	}
	c, err := env.readCorpus(opts.inputPath, opts.format)
	if err != nil {
		return err
	}
	b, err := env.builder(c, opts.params)
	if err != nil {
		return err
	}
	table, _, err := b.Extract(ctx)
	if err != nil {
		return err
	}
	e := aspect.NewEnsemble(env.backend)
	e.Parallelism = env.cfg.Parallelism
	e.Logger = env.logger
	e.Metrics = env.metrics
	ev, err := aspect.CrossValidate(ctx, e, table, field, folds)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(env.out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "field\t%s\n", ev.Field)
	fmt.Fprintf(w, "folds\t%d\n", ev.Folds)
	fmt.Fprintf(w, "accuracy\t%.4f\t(%d/%d)\n\n", ev.Accuracy, ev.Correct, ev.Instances)
	fmt.Fprintln(w, "category\tprecision\trecall\tf1\tsupport")
	for _, cs := range ev.Categories {
		fmt.Fprintf(w, "%s\t%.4f\t%.4f\t%.4f\t%d\n", cs.Category, cs.Precision, cs.Recall, cs.F1, cs.Support)
	}
	return w.Flush()
}
