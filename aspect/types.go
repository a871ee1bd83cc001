package aspect

import (
	"context"
	"sort"
	"strconv"

	"github.com/cockroachdb/errors"

	"yashubustudio/aspectcat/corpus"
)

// Field names a categorical label column of a feature table.
type Field string

const (
	// FieldEntity holds the entity half of the aspect category.
	FieldEntity Field = "entCat"
	// FieldAttribute holds the attribute half of the aspect category.
	FieldAttribute Field = "attCat"
	// FieldEntityAttribute holds the full "entity#attribute" label.
	FieldEntityAttribute Field = "entAttCat"
)

// Handle is the opaque id of an instance. The zero handle is never issued.
type Handle uint64

func (h Handle) String() string { return strconv.FormatUint(uint64(h), 10) }

// Instance is one row of a feature table.
type Instance struct {
	ID Handle
	// Origin is the row of the extracted table the features were copied from.
	Origin    Handle
	Features  []float64
	EntCat    string
	AttCat    string
	EntAttCat string
}

// Label returns the value of a label field.
func (in Instance) Label(f Field) string {
	switch f {
	case FieldEntity:
		return in.EntCat
	case FieldAttribute:
		return in.AttCat
	case FieldEntityAttribute:
		return in.EntAttCat
	}
	return ""
}

// WithLabel returns a copy of the instance with one label field rewritten.
// The feature vector is copied as well so the result never aliases in.
func (in Instance) WithLabel(f Field, value string) Instance {
	out := in.Clone()
	switch f {
	case FieldEntity:
		out.EntCat = value
	case FieldAttribute:
		out.AttCat = value
	case FieldEntityAttribute:
		out.EntAttCat = value
	}
	return out
}

// Clone returns a deep copy.
func (in Instance) Clone() Instance {
	out := in
	out.Features = append([]float64(nil), in.Features...)
	return out
}

// Table is a fixed-width feature table addressed by handle.
type Table struct {
	width int
	rows  []Instance
	pos   map[Handle]int
}

// NewTable returns an empty table whose rows have width features.
func NewTable(width int) *Table {
	return &Table{width: width, pos: make(map[Handle]int)}
}

// Add appends a row. Handles must be unique and non-zero and the feature
// vector must match the table width.
func (t *Table) Add(in Instance) error {
	if in.ID == 0 {
		return errors.New("instance handle must be non-zero")
	}
	if _, ok := t.pos[in.ID]; ok {
		return errors.Newf("duplicate instance %s", in.ID)
	}
	if len(in.Features) != t.width {
		return errors.Newf("instance %s has %d features, table width is %d", in.ID, len(in.Features), t.width)
	}
	if in.Origin == 0 {
		in.Origin = in.ID
	}
	t.pos[in.ID] = len(t.rows)
	t.rows = append(t.rows, in)
	return nil
}

// Get returns the row with the given handle.
func (t *Table) Get(h Handle) (Instance, bool) {
	i, ok := t.pos[h]
	if !ok {
		return Instance{}, false
	}
	return t.rows[i], true
}

// Rows returns the rows in ascending handle order.
func (t *Table) Rows() []Instance {
	out := append([]Instance(nil), t.rows...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Handles returns every handle in ascending order.
func (t *Table) Handles() []Handle {
	out := make([]Handle, 0, len(t.rows))
	for _, r := range t.rows {
		out = append(out, r.ID)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.rows) }

// Width returns the feature vector width.
func (t *Table) Width() int { return t.width }

// Values returns the distinct non-empty values of a label field, sorted.
func (t *Table) Values(f Field) []string {
	seen := make(map[string]struct{})
	for _, r := range t.rows {
		if v := r.Label(f); v != "" {
			seen[v] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// ConfidenceMap holds one score per (instance, category) for a classification round.
type ConfidenceMap map[Handle]map[string]float64

// Model scores feature vectors for a single binary category.
type Model interface {
	// Predict returns the positive-class probability of every row of x.
	Predict(ctx context.Context, x [][]float64) ([]float64, error)
	MarshalBinary() ([]byte, error)
}

// Backend trains and restores binary classifiers.
type Backend interface {
	Train(ctx context.Context, x [][]float64, y []bool) (Model, error)
	Load(data []byte) (Model, error)
}

// ModelStore persists serialized models by name.
type ModelStore interface {
	Save(ctx context.Context, name string, data []byte) error
	Load(ctx context.Context, name string) ([]byte, error)
}

// FeatureExtractor builds a feature table from a corpus together with the
// handle to opinion id mapping that seeds the Index.
type FeatureExtractor interface {
	Extract(ctx context.Context) (*Table, map[Handle]string, error)
}

// Corpus is the subset of corpus operations the pipeline needs.
type Corpus interface {
	Opinion(id string) (corpus.Opinion, bool)
	OpinionIDs() []string
	SentenceID(opinionID string) (string, error)
	RemoveOpinion(id string)
	RemoveSentenceOpinions(sentenceID string)
	AddOpinion(op corpus.Opinion) error
}
