package aspect

import (
	"fmt"

	"github.com/cockroachdb/errors"

	"yashubustudio/aspectcat/corpus"
)

// Error taxonomy. Wrap these with errors.Wrap to add context while keeping
// errors.Is checks working.
var (
	// ErrConfiguration reports a missing or invalid parameter file or model.
	ErrConfiguration = errors.New("configuration error")
	// ErrTraining reports a degenerate category field or a backend failure.
	ErrTraining = errors.New("training error")
	// ErrLookup reports an instance without an index entry. It always means an
	// invariant was broken upstream.
	ErrLookup = errors.New("lookup error")
	// ErrCorpus reports malformed or unreadable corpus input.
	ErrCorpus = corpus.ErrCorpus
)

// TrainingError names the field and category whose classifier could not be trained.
type TrainingError struct {
	Field    Field
	Category string
	Err      error
}

func (e *TrainingError) Error() string {
	if e.Category == "" {
		return fmt.Sprintf("training %s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("training %s=%s: %v", e.Field, e.Category, e.Err)
}

func (e *TrainingError) Unwrap() error { return e.Err }

// Is makes every TrainingError match ErrTraining.
func (e *TrainingError) Is(target error) bool { return target == ErrTraining }

func trainingErr(field Field, category string, err error) error {
	return errors.WithStack(&TrainingError{Field: field, Category: category, Err: err})
}

func lookupErr(format string, args ...any) error {
	return errors.Wrapf(ErrLookup, format, args...)
}
