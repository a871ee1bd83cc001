package corpus

import (
	"strings"

	"github.com/cockroachdb/errors"
)

// Format names an on-disk corpus layout.
type Format string

const (
	// FormatSemEval2015 is the SemEval-2015 ABSA XML schema (Reviews/Review/sentences).
	FormatSemEval2015 Format = "semeval2015"
	// FormatTab is a tab separated file with one opinion per row.
	FormatTab Format = "tab"
)

// NullLabel marks the entity or attribute of an opinion generated for a sentence
// without annotations.
const NullLabel = "NULL"

var (
	// ErrCorpus reports malformed or unreadable corpus input.
	ErrCorpus = errors.New("corpus error")
	// ErrNotFound is returned when an opinion or sentence id is unknown.
	ErrNotFound = errors.New("not found")
)

// Opinion is a target-level aspect annotation.
type Opinion struct {
	ID         string `json:"id"`
	SentenceID string `json:"sentenceId"`
	Target     string `json:"target,omitempty"`
	From       int    `json:"from"`
	To         int    `json:"to"`
	Polarity   string `json:"polarity,omitempty"`
	Category   string `json:"category,omitempty"`
}

// Entity returns the entity half of the category label.
func (o Opinion) Entity() string {
	e, _ := SplitCategory(o.Category)
	return e
}

// Attribute returns the attribute half of the category label.
func (o Opinion) Attribute() string {
	_, a := SplitCategory(o.Category)
	return a
}

// Sentence is a unit of annotated text.
type Sentence struct {
	ID       string `json:"id"`
	ReviewID string `json:"reviewId,omitempty"`
	// Text is kept exactly as read; opinion offsets index into it.
	Text string `json:"text"`
	// OutOfScope carries the SemEval OutOfScope attribute through unchanged.
	OutOfScope string `json:"outOfScope,omitempty"`
}

// ReadOptions controls corpus loading.
type ReadOptions struct {
	// NullSentences adds a NULL#NULL opinion to every sentence without annotations.
	NullSentences bool
	Language      string
}

// SplitCategory splits an "entity#attribute" label. A label without '#'
// is treated as an entity with an empty attribute.
func SplitCategory(cat string) (string, string) {
	cat = strings.TrimSpace(cat)
	if cat == "" {
		return "", ""
	}
	ent, att, ok := strings.Cut(cat, "#")
	if !ok {
		return cat, ""
	}
	return ent, att
}

// JoinCategory composes an "entity#attribute" label.
func JoinCategory(entity, attribute string) string {
	return entity + "#" + attribute
}

// IsNullCategory reports whether either half of the label is the null label.
func IsNullCategory(cat string) bool {
	e, a := SplitCategory(cat)
	return e == NullLabel || a == NullLabel
}
