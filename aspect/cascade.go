package aspect

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// State is a step of the cascade state machine.
type State string

const (
	StateStart             State = "START"
	StateStage1TrainOrLoad State = "STAGE1_TRAIN_OR_LOAD"
	StateStage1Predict     State = "STAGE1_PREDICT"
	StateStage1Expand      State = "STAGE1_EXPAND"
	StateStage2TrainOrLoad State = "STAGE2_TRAIN_OR_LOAD"
	StateStage2Predict     State = "STAGE2_PREDICT"
	StateStage2Expand      State = "STAGE2_EXPAND"
	StateReconcile         State = "RECONCILE"
	StateDone              State = "DONE"
	StateFailed            State = "FAILED"
)

// Result summarizes a finished run.
type Result struct {
	// Stage1 and Stage2 hold the gate output of each stage. Stage2 is empty
	// for single classifier runs and when stage 1 kept nothing.
	Stage1 Expansion
	Stage2 Expansion
	// Final is the table whose rows became opinions.
	Final *Table
	// Added lists the reconciled opinion ids in insertion order.
	Added []string
	// Trace lists every state the run went through.
	Trace []State
}

// Cascade runs the two stage entity then attribute classification and writes
// the result back onto the corpus.
type Cascade struct {
	cfg     Config
	backend Backend
	store   ModelStore

	Logger  *zap.Logger
	Metrics *Metrics

	mu    sync.Mutex
	state State
	trace []State
}

// NewCascade validates cfg and returns a controller. store may be nil when
// models are neither saved nor loaded.
func NewCascade(cfg Config, backend Backend, store ModelStore) (*Cascade, error) {
	if backend == nil {
		return nil, errors.Wrap(ErrConfiguration, "classifier backend is required")
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Cascade{cfg: cfg, backend: backend, store: store, state: StateStart}, nil
}

// Config returns a copy of the configuration.
func (c *Cascade) Config() Config { return c.cfg.Clone() }

// State returns the current state.
func (c *Cascade) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Cascade) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}

func (c *Cascade) enter(s State) {
	c.mu.Lock()
	from := c.state
	c.state = s
	c.trace = append(c.trace, s)
	c.mu.Unlock()
	c.logger().Debug("cascade transition", zap.String("from", string(from)), zap.String("to", string(s)))
}

func (c *Cascade) reset() {
	c.mu.Lock()
	c.state = StateStart
	c.trace = []State{StateStart}
	c.mu.Unlock()
}

func (c *Cascade) fail(res *Result, err error) (Result, error) {
	c.enter(StateFailed)
	c.mu.Lock()
	res.Trace = append([]State(nil), c.trace...)
	c.mu.Unlock()
	c.logger().Error("cascade failed", zap.Error(err))
	return *res, err
}

func (c *Cascade) finish(res *Result) (Result, error) {
	c.enter(StateDone)
	c.mu.Lock()
	res.Trace = append([]State(nil), c.trace...)
	c.mu.Unlock()
	c.logger().Info("cascade done", zap.Int("opinions", len(res.Added)))
	return *res, nil
}

func (c *Cascade) newEnsemble() *Ensemble {
	e := NewEnsemble(c.backend)
	e.Parallelism = c.cfg.Parallelism
	e.Logger = c.Logger
	e.Metrics = c.Metrics
	return e
}

// trainOrLoad fits a fresh ensemble on table, or loads the persisted one when
// testOnly is set.
func (c *Cascade) trainOrLoad(ctx context.Context, table *Table, field Field, testOnly bool) (*Ensemble, error) {
	e := c.newEnsemble()
	if testOnly {
		if c.store == nil {
			return nil, errors.WithHint(
				errors.Wrap(ErrConfiguration, "test only run without a model store"),
				"configure store.dir")
		}
		if err := e.Load(ctx, c.store, c.cfg.ModelName, field); err != nil {
			return nil, err
		}
		return e, nil
	}
	if err := e.Fit(ctx, table, field); err != nil {
		return nil, err
	}
	if c.store != nil {
		if err := e.Save(ctx, c.store, c.cfg.ModelName); err != nil {
			c.release(e)
			return nil, err
		}
	}
	return e, nil
}

func (c *Cascade) release(e *Ensemble) {
	if err := e.Close(); err != nil {
		c.logger().Warn("release models", zap.String("field", string(e.Field())), zap.Error(err))
	}
}

func (c *Cascade) expand(stage string, table *Table, conf ConfidenceMap, field Field, threshold float64, idx *Index) (Expansion, error) {
	exp, err := Gate(table, conf, field, threshold, idx)
	if err != nil {
		return Expansion{}, err
	}
	if err := idx.Check(exp.Table.Handles()); err != nil {
		return Expansion{}, err
	}
	c.Metrics.observeGate(stage, exp)
	c.logger().Info("gate applied",
		zap.String("stage", stage),
		zap.String("field", string(field)),
		zap.Float64("threshold", threshold),
		zap.Int("kept", exp.Table.Len()-len(exp.Synthesized)),
		zap.Int("dropped", len(exp.Dropped)),
		zap.Int("synthesized", len(exp.Synthesized)))
	return exp, nil
}

// Run classifies every opinion of corp with the entity ensemble, then the
// attribute ensemble, and replaces the annotations of every processed sentence
// with the composed "entity#attribute" labels. stage1 and stage2 build the
// feature tables of each stage from corp. With testOnly the ensembles are
// loaded from the model store instead of being trained.
func (c *Cascade) Run(ctx context.Context, corp Corpus, stage1, stage2 FeatureExtractor, testOnly bool) (Result, error) {
	c.reset()
	var res Result

	table1, seeds, err := stage1.Extract(ctx)
	if err != nil {
		return c.fail(&res, errors.Wrap(err, "extract stage 1 features"))
	}
	idx, err := NewIndex(corp, seeds)
	if err != nil {
		return c.fail(&res, err)
	}
	c.logger().Info("cascade started",
		zap.Int("instances", table1.Len()),
		zap.Int("features", table1.Width()),
		zap.Bool("testOnly", testOnly))

	c.enter(StateStage1TrainOrLoad)
	ent, err := c.trainOrLoad(ctx, table1, FieldEntity, testOnly)
	if err != nil {
		return c.fail(&res, err)
	}
	defer c.release(ent)

	c.enter(StateStage1Predict)
	conf1, err := ent.Predict(ctx, table1)
	if err != nil {
		return c.fail(&res, err)
	}

	c.enter(StateStage1Expand)
	res.Stage1, err = c.expand("stage1", table1, conf1, FieldEntity, c.cfg.Thresholds.Entity, idx)
	if err != nil {
		return c.fail(&res, err)
	}

	final := NewTable(0)
	if res.Stage1.Table.Len() == 0 {
		c.logger().Warn("stage 1 kept no instances, skipping stage 2")
	} else {
		c.enter(StateStage2TrainOrLoad)
		proj, err := c.project(ctx, stage2, seeds, ent.Categories())
		if err != nil {
			return c.fail(&res, err)
		}
		table2, err := proj.table(res.Stage1.Table.Rows())
		if err != nil {
			return c.fail(&res, err)
		}
		var train *Table
		if !testOnly {
			if train, err = proj.table(trainingRows(table1, res.Stage1)); err != nil {
				return c.fail(&res, err)
			}
		}
		att, err := c.trainOrLoad(ctx, train, FieldAttribute, testOnly)
		if err != nil {
			return c.fail(&res, err)
		}
		defer c.release(att)

		c.enter(StateStage2Predict)
		conf2, err := att.Predict(ctx, table2)
		if err != nil {
			return c.fail(&res, err)
		}

		c.enter(StateStage2Expand)
		res.Stage2, err = c.expand("stage2", table2, conf2, FieldAttribute, c.cfg.Thresholds.Attribute, idx)
		if err != nil {
			return c.fail(&res, err)
		}
		final = res.Stage2.Table
	}

	c.enter(StateReconcile)
	res.Final = final
	res.Added, err = Reconcile(corp, idx, table1.Handles(), final, ComposeEntityAttribute)
	c.Metrics.addOpinions(len(res.Added))
	if err != nil {
		return c.fail(&res, err)
	}
	return c.finish(&res)
}

// RunSingle classifies the joint "entity#attribute" label with one ensemble
// and reconciles its survivors. It walks the stage 1 states only.
func (c *Cascade) RunSingle(ctx context.Context, corp Corpus, extractor FeatureExtractor, testOnly bool) (Result, error) {
	c.reset()
	var res Result

	table, seeds, err := extractor.Extract(ctx)
	if err != nil {
		return c.fail(&res, errors.Wrap(err, "extract features"))
	}
	idx, err := NewIndex(corp, seeds)
	if err != nil {
		return c.fail(&res, err)
	}

	c.enter(StateStage1TrainOrLoad)
	e, err := c.trainOrLoad(ctx, table, FieldEntityAttribute, testOnly)
	if err != nil {
		return c.fail(&res, err)
	}
	defer c.release(e)

	c.enter(StateStage1Predict)
	conf, err := e.Predict(ctx, table)
	if err != nil {
		return c.fail(&res, err)
	}

	c.enter(StateStage1Expand)
	res.Stage1, err = c.expand("single", table, conf, FieldEntityAttribute, c.cfg.Thresholds.Entity, idx)
	if err != nil {
		return c.fail(&res, err)
	}

	c.enter(StateReconcile)
	res.Final = res.Stage1.Table
	res.Added, err = Reconcile(corp, idx, table.Handles(), res.Final, EntityAttributeLabel)
	c.Metrics.addOpinions(len(res.Added))
	if err != nil {
		return c.fail(&res, err)
	}
	return c.finish(&res)
}

// projection maps stage 1 rows onto a fresh stage 2 extraction. A projected
// row takes the stage 2 features of the opinion it originated from, followed
// by a one-hot encoding of its entity. Handles and labels carry over.
type projection struct {
	base      *Table
	byOpinion map[string]Handle
	seeds     map[Handle]string
	slot      map[string]int
	width     int
}

func (c *Cascade) project(ctx context.Context, stage2 FeatureExtractor, seeds1 map[Handle]string, entities []string) (*projection, error) {
	base, seeds2, err := stage2.Extract(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "extract stage 2 features")
	}
	p := &projection{
		base:      base,
		byOpinion: make(map[string]Handle, len(seeds2)),
		seeds:     seeds1,
		slot:      make(map[string]int, len(entities)),
		width:     base.Width() + len(entities),
	}
	for h, id := range seeds2 {
		p.byOpinion[id] = h
	}
	for i, e := range entities {
		p.slot[e] = i
	}
	return p, nil
}

func (p *projection) row(in Instance) (Instance, error) {
	id, ok := p.seeds[in.Origin]
	if !ok {
		return Instance{}, lookupErr("instance %s originates from unseeded instance %s", in.ID, in.Origin)
	}
	h2, ok := p.byOpinion[id]
	if !ok {
		return Instance{}, lookupErr("opinion %q of instance %s is missing from the stage 2 features", id, in.ID)
	}
	src, ok := p.base.Get(h2)
	if !ok {
		return Instance{}, lookupErr("stage 2 instance %s is missing", h2)
	}
	features := make([]float64, p.width)
	copy(features, src.Features)
	if i, ok := p.slot[in.EntCat]; ok {
		features[p.base.Width()+i] = 1
	}
	next := in.Clone()
	next.Features = features
	return next, nil
}

func (p *projection) table(rows []Instance) (*Table, error) {
	out := NewTable(p.width)
	for _, r := range rows {
		next, err := p.row(r)
		if err != nil {
			return nil, err
		}
		if err := out.Add(next); err != nil {
			return nil, errors.Wrapf(err, "project instance %s", r.ID)
		}
	}
	return out, nil
}

// trainingRows is the attribute training set: every extracted row with its
// gold labels, plus the synthetic rows stage 1 added for extra entities.
// Rows stage 1 dropped stay in, so the attribute models do not depend on the
// entity threshold.
func trainingRows(extracted *Table, stage1 Expansion) []Instance {
	rows := extracted.Rows()
	for _, h := range stage1.Synthesized {
		if r, ok := stage1.Table.Get(h); ok {
			rows = append(rows, r)
		}
	}
	return rows
}
