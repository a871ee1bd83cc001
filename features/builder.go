package features

import (
	"context"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"

	"yashubustudio/aspectcat/aspect"
	"yashubustudio/aspectcat/corpus"
)

// Builder turns the opinions of a corpus into a hashed bag of n-grams table.
// It implements aspect.FeatureExtractor.
type Builder struct {
	corpus    *corpus.Corpus
	params    Params
	tokenizer Tokenizer
	logger    *zap.Logger
}

// NewBuilder prepares a builder over c. The tokenizer named in params is
// loaded once; without one a WordTokenizer for the corpus language is used.
func NewBuilder(c *corpus.Corpus, params Params, logger *zap.Logger) (*Builder, error) {
	if c == nil {
		return nil, errors.New("corpus is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	params.ApplyDefaults()
	var tok Tokenizer = NewWordTokenizer(c.Language, params.Lowercase)
	if params.Tokenizer != "" {
		hf, err := NewHFTokenizer(params.Tokenizer)
		if err != nil {
			return nil, err
		}
		tok = hf
	}
	return &Builder{corpus: c, params: params, tokenizer: tok, logger: logger}, nil
}

// WithTokenizer replaces the tokenizer.
func (b *Builder) WithTokenizer(t Tokenizer) *Builder {
	b.tokenizer = t
	return b
}

// Params returns the parameter set the builder was created with.
func (b *Builder) Params() Params { return b.params }

// Extract builds one row per opinion in corpus order. Handles start at 1 and
// the returned map binds each handle to its opinion id.
func (b *Builder) Extract(ctx context.Context) (*aspect.Table, map[aspect.Handle]string, error) {
	table := aspect.NewTable(b.params.HashDim)
	seeds := make(map[aspect.Handle]string)
	for i, id := range b.corpus.OpinionIDs() {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		op, ok := b.corpus.Opinion(id)
		if !ok {
			return nil, nil, errors.Wrapf(corpus.ErrNotFound, "opinion %q", id)
		}
		sent, ok := b.corpus.Sentence(op.SentenceID)
		if !ok {
			return nil, nil, errors.Wrapf(corpus.ErrNotFound, "sentence %q of opinion %q", op.SentenceID, id)
		}
		vec, err := b.vector(sent.Text, op)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "features of opinion %s", id)
		}
		h := aspect.Handle(i + 1)
		ent, att := corpus.SplitCategory(op.Category)
		if err := table.Add(aspect.Instance{
			ID:        h,
			Features:  vec,
			EntCat:    ent,
			AttCat:    att,
			EntAttCat: op.Category,
		}); err != nil {
			return nil, nil, err
		}
		seeds[h] = id
	}
	b.logger.Debug("features extracted",
		zap.String("params", b.params.Name),
		zap.Int("instances", table.Len()),
		zap.Int("dim", table.Width()))
	return table, seeds, nil
}

func (b *Builder) vector(text string, op corpus.Opinion) ([]float64, error) {
	tokens, err := b.tokenizer.Tokenize(text)
	if err != nil {
		return nil, err
	}
	words := make([]string, 0, len(tokens))
	for _, t := range window(tokens, op, b.params.Window) {
		words = append(words, t.Text)
	}

	vec := make([]float64, b.params.HashDim)
	for n := 1; n <= b.params.NGrams; n++ {
		for i := 0; i+n <= len(words); i++ {
			b.add(vec, "w", strings.Join(words[i:i+n], " "))
		}
	}
	if b.params.TargetFeatures && op.Target != "" {
		for _, t := range targetTokens(tokens, op) {
			b.add(vec, "t", t.Text)
		}
	}
	if norm := floats.Norm(vec, 2); norm > 0 {
		floats.Scale(1/norm, vec)
	}
	return vec, nil
}

func (b *Builder) add(vec []float64, namespace, gram string) {
	slot := xxhash.Sum64String(namespace+":"+gram) % uint64(len(vec))
	vec[slot]++
}

func overlaps(t Token, op corpus.Opinion) bool {
	return t.Start < op.To && t.End > op.From
}

func targetTokens(tokens []Token, op corpus.Opinion) []Token {
	var out []Token
	if op.To > op.From {
		for _, t := range tokens {
			if overlaps(t, op) {
				out = append(out, t)
			}
		}
	}
	return out
}

// window keeps the tokens within size positions of the target span. Opinions
// without a span, or a span matching no token, keep the whole sentence.
func window(tokens []Token, op corpus.Opinion, size int) []Token {
	if size <= 0 || op.To <= op.From {
		return tokens
	}
	first, last := -1, -1
	for i, t := range tokens {
		if overlaps(t, op) {
			if first < 0 {
				first = i
			}
			last = i
		}
	}
	if first < 0 {
		return tokens
	}
	lo := max(first-size, 0)
	hi := min(last+size+1, len(tokens))
	return tokens[lo:hi]
}
