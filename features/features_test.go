package features

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"

	"yashubustudio/aspectcat/aspect"
	"yashubustudio/aspectcat/corpus"
)

func TestLoadDefaultParams(t *testing.T) {
	p, err := LoadParams(DefaultParams)
	require.NoError(t, err)
	assert.Equal(t, "default", p.Name)
	assert.Equal(t, 2, p.NGrams)
	assert.Equal(t, 4096, p.HashDim)
	assert.True(t, p.Lowercase)
	assert.True(t, p.TargetFeatures)
	assert.Empty(t, p.Tokenizer)
}

func TestLoadParamsProperties(t *testing.T) {
	path := filepath.Join(t.TempDir(), "en-attributes.cfg")
	require.NoError(t, os.WriteFile(path, []byte("ngrams=3\nwindow=2\nhashDim=64\nlowercase=false\n"), 0o644))

	p, err := LoadParams(path)
	require.NoError(t, err)
	assert.Equal(t, "en-attributes", p.Name)
	assert.Equal(t, 3, p.NGrams)
	assert.Equal(t, 2, p.Window)
	assert.Equal(t, 64, p.HashDim)
	assert.False(t, p.Lowercase)
}

func TestLoadParamsPropertiesSyntax(t *testing.T) {
	path := filepath.Join(t.TempDir(), "targets.prop")
	data := "# target window features\nngrams : 1\nwindow 3\ntargetFeatures=false\ntokenizer=\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	p, err := LoadParams(path)
	require.NoError(t, err)
	assert.Equal(t, "targets", p.Name)
	assert.Equal(t, 1, p.NGrams)
	assert.Equal(t, 3, p.Window)
	assert.False(t, p.TargetFeatures)
	assert.Equal(t, 4096, p.HashDim)
}

func TestPropertiesCodecEncode(t *testing.T) {
	out, err := propertiesCodec{}.Encode(map[string]any{"window": 2, "name": "entity"})
	require.NoError(t, err)

	got := map[string]any{}
	require.NoError(t, propertiesCodec{}.Decode(out, got))
	assert.Equal(t, map[string]any{"window": "2", "name": "entity"}, got)
}

func TestLoadParamsYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "p.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: entity\nhashDim: 128\n"), 0o644))

	p, err := LoadParams(path)
	require.NoError(t, err)
	assert.Equal(t, "entity", p.Name)
	assert.Equal(t, 128, p.HashDim)
	assert.Equal(t, 1, p.NGrams)
}

func TestLoadParamsMissing(t *testing.T) {
	_, err := LoadParams(filepath.Join(t.TempDir(), "missing.cfg"))
	assert.True(t, errors.Is(err, aspect.ErrConfiguration))

	_, err = LoadParams("")
	assert.True(t, errors.Is(err, aspect.ErrConfiguration))
}

func TestWordTokenizer(t *testing.T) {
	toks, err := NewWordTokenizer("en", true).Tokenize("The Pasta, wasn't great!")
	require.NoError(t, err)
	assert.Equal(t, []Token{
		{Text: "the", Start: 0, End: 3},
		{Text: "pasta", Start: 4, End: 9},
		{Text: "wasn", Start: 11, End: 15},
		{Text: "t", Start: 16, End: 17},
		{Text: "great", Start: 18, End: 23},
	}, toks)

	toks, err = NewWordTokenizer("es", false).Tokenize("Café olé")
	require.NoError(t, err)
	require.Len(t, toks, 2)
	assert.Equal(t, "Café", toks[0].Text)
	assert.Equal(t, 5, toks[1].Start, "offsets count characters, not bytes")
}

func TestWordTokenizerKeepsRawOffsets(t *testing.T) {
	text := "  Cafe\u0301 \ufb01sh"
	toks, err := NewWordTokenizer("en", true).Tokenize(text)
	require.NoError(t, err)
	assert.Equal(t, []Token{
		{Text: "caf\u00e9", Start: 2, End: 7},
		{Text: "fish", Start: 8, End: 11},
	}, toks)

	runes := []rune(text)
	assert.Equal(t, "\ufb01sh", string(runes[toks[1].Start:toks[1].End]))
}

func TestWindow(t *testing.T) {
	toks, err := NewWordTokenizer("en", true).Tokenize("a b c pasta d e f")
	require.NoError(t, err)
	op := corpus.Opinion{Target: "pasta", From: 6, To: 11}

	got := window(toks, op, 1)
	require.Len(t, got, 3)
	assert.Equal(t, "c", got[0].Text)
	assert.Equal(t, "d", got[2].Text)

	assert.Len(t, window(toks, op, 0), 7)
	assert.Len(t, window(toks, corpus.Opinion{}, 1), 7, "no target span keeps the sentence")
	assert.Len(t, window(toks, op, 10), 7)
}

func testCorpus(t *testing.T) *corpus.Corpus {
	t.Helper()
	c := corpus.New("en")
	require.NoError(t, c.AddSentence(corpus.Sentence{ID: "s1", Text: "The pasta was great"}))
	require.NoError(t, c.AddSentence(corpus.Sentence{ID: "s2", Text: "Service was slow"}))
	require.NoError(t, c.AddOpinion(corpus.Opinion{ID: "o1", SentenceID: "s1", Target: "pasta", From: 4, To: 9, Category: "FOOD#QUALITY"}))
	require.NoError(t, c.AddOpinion(corpus.Opinion{ID: "o2", SentenceID: "s2", Category: "SERVICE#GENERAL"}))
	require.NoError(t, c.AddOpinion(corpus.Opinion{ID: "o3", SentenceID: "s1", Target: "pasta", From: 4, To: 9, Category: "FOOD#PRICES"}))
	return c
}

func TestBuilderExtract(t *testing.T) {
	p, err := LoadParams(DefaultParams)
	require.NoError(t, err)
	p.HashDim = 256

	b, err := NewBuilder(testCorpus(t), p, nil)
	require.NoError(t, err)
	table, seeds, err := b.Extract(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, table.Len())
	assert.Equal(t, 256, table.Width())
	assert.Equal(t, map[aspect.Handle]string{1: "o1", 2: "o2", 3: "o3"}, seeds)

	row, ok := table.Get(2)
	require.True(t, ok)
	assert.Equal(t, "SERVICE", row.EntCat)
	assert.Equal(t, "GENERAL", row.AttCat)
	assert.Equal(t, "SERVICE#GENERAL", row.EntAttCat)
	assert.InDelta(t, 1.0, floats.Norm(row.Features, 2), 1e-9)

	r1, _ := table.Get(1)
	r3, _ := table.Get(3)
	assert.Equal(t, r1.Features, r3.Features, "same sentence and target give the same vector")
	assert.NotEqual(t, r1.Features, row.Features)
}

func TestBuilderExtractIsDeterministic(t *testing.T) {
	c := testCorpus(t)
	p, err := LoadParams(DefaultParams)
	require.NoError(t, err)
	b, err := NewBuilder(c, p, nil)
	require.NoError(t, err)

	t1, _, err := b.Extract(context.Background())
	require.NoError(t, err)
	t2, _, err := b.Extract(context.Background())
	require.NoError(t, err)
	assert.Equal(t, t1.Rows(), t2.Rows())
}

func TestBuilderMissingTokenizer(t *testing.T) {
	p := Params{Tokenizer: filepath.Join(t.TempDir(), "tokenizer.json")}
	_, err := NewBuilder(testCorpus(t), p, nil)
	assert.True(t, errors.Is(err, aspect.ErrConfiguration))
}
