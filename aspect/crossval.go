package aspect

import (
	"context"
	"sort"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// CategoryScore holds the per-category figures of an evaluation.
type CategoryScore struct {
	Category  string  `json:"category"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	Support   int     `json:"support"`
}

// Evaluation is the outcome of a cross-validation run.
type Evaluation struct {
	Field      Field           `json:"field"`
	Folds      int             `json:"folds"`
	Instances  int             `json:"instances"`
	Correct    int             `json:"correct"`
	Accuracy   float64         `json:"accuracy"`
	Categories []CategoryScore `json:"categories"`
}

// CrossValidate runs k-fold cross-validation of a one-vs-all ensemble on
// field. Row i (in handle order, unlabeled rows excluded) is held out in fold
// i mod folds. Each held-out row is assigned its best scoring category, ties
// going to the smaller label. The fold models are released before returning.
func CrossValidate(ctx context.Context, e *Ensemble, table *Table, field Field, folds int) (Evaluation, error) {
	defer func() { e.discard(e.Close()) }()
	var rows []Instance
	for _, r := range table.Rows() {
		if r.Label(field) != "" {
			rows = append(rows, r)
		}
	}
	if folds < 2 {
		return Evaluation{}, errors.Wrapf(ErrConfiguration, "cross-validation needs at least 2 folds, got %d", folds)
	}
	if folds > len(rows) {
		folds = len(rows)
	}
	if folds < 2 {
		return Evaluation{}, trainingErr(field, "", errors.Newf("%d labeled instances are too few to cross-validate", len(rows)))
	}

	tp := make(map[string]int)
	fp := make(map[string]int)
	support := make(map[string]int)
	ev := Evaluation{Field: field, Folds: folds, Instances: len(rows)}

	for k := 0; k < folds; k++ {
		if err := ctx.Err(); err != nil {
			return Evaluation{}, err
		}
		train := NewTable(table.Width())
		test := NewTable(table.Width())
		for i, r := range rows {
			dst := train
			if i%folds == k {
				dst = test
			}
			if err := dst.Add(r); err != nil {
				return Evaluation{}, err
			}
		}
		if err := e.Fit(ctx, train, field); err != nil {
			return Evaluation{}, errors.Wrapf(err, "fold %d", k+1)
		}
		conf, err := e.Predict(ctx, test)
		if err != nil {
			return Evaluation{}, errors.Wrapf(err, "fold %d", k+1)
		}
		for _, r := range test.Rows() {
			gold := r.Label(field)
			pred := argmax(conf[r.ID])
			support[gold]++
			if pred == gold {
				tp[gold]++
				ev.Correct++
			} else if pred != "" {
				fp[pred]++
			}
		}
		e.logger().Info("fold evaluated", zap.Int("fold", k+1), zap.Int("instances", test.Len()))
	}

	cats := make(map[string]struct{})
	for c := range support {
		cats[c] = struct{}{}
	}
	for c := range fp {
		cats[c] = struct{}{}
	}
	for c := range cats {
		ev.Categories = append(ev.Categories, score(c, tp[c], fp[c], support[c]))
	}
	sort.Slice(ev.Categories, func(i, j int) bool { return ev.Categories[i].Category < ev.Categories[j].Category })
	if ev.Instances > 0 {
		ev.Accuracy = float64(ev.Correct) / float64(ev.Instances)
	}
	return ev, nil
}

func argmax(scores map[string]float64) string {
	best, bestScore := "", -1.0
	for label, s := range scores {
		if s > bestScore || (s == bestScore && label < best) {
			best, bestScore = label, s
		}
	}
	return best
}

func score(category string, tp, fp, support int) CategoryScore {
	cs := CategoryScore{Category: category, Support: support}
	if tp+fp > 0 {
		cs.Precision = float64(tp) / float64(tp+fp)
	}
	if support > 0 {
		cs.Recall = float64(tp) / float64(support)
	}
	if cs.Precision+cs.Recall > 0 {
		cs.F1 = 2 * cs.Precision * cs.Recall / (cs.Precision + cs.Recall)
	}
	return cs
}
