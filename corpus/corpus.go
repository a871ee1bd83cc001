package corpus

import (
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/cockroachdb/errors"
)

// Corpus is an in-memory opinion corpus. Opinions keep their insertion order,
// which is also the order they are serialized in.
type Corpus struct {
	Language string

	sentences    []*Sentence
	sentenceByID map[string]*Sentence

	opinions   map[string]*Opinion
	order      []string
	bySentence map[string][]string

	lastID int
}

// New returns an empty corpus.
func New(language string) *Corpus {
	return &Corpus{
		Language:     language,
		sentenceByID: make(map[string]*Sentence),
		opinions:     make(map[string]*Opinion),
		bySentence:   make(map[string][]string),
	}
}

// AddSentence registers a sentence. Sentence ids must be unique.
func (c *Corpus) AddSentence(s Sentence) error {
	if s.ID == "" {
		return errors.Wrap(ErrCorpus, "sentence without id")
	}
	if _, ok := c.sentenceByID[s.ID]; ok {
		return errors.Wrapf(ErrCorpus, "duplicate sentence id %q", s.ID)
	}
	sent := s
	c.sentences = append(c.sentences, &sent)
	c.sentenceByID[s.ID] = &sent
	return nil
}

// Sentence returns the sentence with the given id.
func (c *Corpus) Sentence(id string) (Sentence, bool) {
	s, ok := c.sentenceByID[id]
	if !ok {
		return Sentence{}, false
	}
	return *s, true
}

// Sentences returns all sentences in document order.
func (c *Corpus) Sentences() []Sentence {
	out := make([]Sentence, len(c.sentences))
	for i, s := range c.sentences {
		out[i] = *s
	}
	return out
}

// AddOpinion appends an opinion to its sentence. An empty id is replaced by
// the next free "o<n>" id.
func (c *Corpus) AddOpinion(op Opinion) error {
	if _, ok := c.sentenceByID[op.SentenceID]; !ok {
		return errors.Wrapf(ErrNotFound, "sentence %q for opinion %q", op.SentenceID, op.ID)
	}
	if op.ID == "" {
		op.ID = c.nextOpinionID()
	}
	if _, ok := c.opinions[op.ID]; ok {
		return errors.Wrapf(ErrCorpus, "duplicate opinion id %q", op.ID)
	}
	stored := op
	c.opinions[op.ID] = &stored
	c.order = append(c.order, op.ID)
	c.bySentence[op.SentenceID] = append(c.bySentence[op.SentenceID], op.ID)
	return nil
}

func (c *Corpus) nextOpinionID() string {
	for {
		c.lastID++
		id := "o" + strconv.Itoa(c.lastID)
		if _, ok := c.opinions[id]; !ok {
			return id
		}
	}
}

// Opinion returns the opinion with the given id.
func (c *Corpus) Opinion(id string) (Opinion, bool) {
	op, ok := c.opinions[id]
	if !ok {
		return Opinion{}, false
	}
	return *op, true
}

// Opinions returns a copy of every opinion keyed by id.
func (c *Corpus) Opinions() map[string]Opinion {
	out := make(map[string]Opinion, len(c.opinions))
	for id, op := range c.opinions {
		out[id] = *op
	}
	return out
}

// OpinionIDs returns the ids of the live opinions in insertion order.
func (c *Corpus) OpinionIDs() []string {
	return append([]string(nil), c.order...)
}

// SentenceID returns the sentence an opinion belongs to.
func (c *Corpus) SentenceID(opinionID string) (string, error) {
	op, ok := c.opinions[opinionID]
	if !ok {
		return "", errors.Wrapf(ErrNotFound, "opinion %q", opinionID)
	}
	return op.SentenceID, nil
}

// SentenceOpinions returns the opinions of a sentence in insertion order.
func (c *Corpus) SentenceOpinions(sentenceID string) []Opinion {
	ids := c.bySentence[sentenceID]
	out := make([]Opinion, 0, len(ids))
	for _, id := range ids {
		out = append(out, *c.opinions[id])
	}
	return out
}

// RemoveOpinion deletes an opinion. Unknown ids are ignored.
func (c *Corpus) RemoveOpinion(id string) {
	op, ok := c.opinions[id]
	if !ok {
		return
	}
	delete(c.opinions, id)
	c.order = removeString(c.order, id)
	c.bySentence[op.SentenceID] = removeString(c.bySentence[op.SentenceID], id)
}

// RemoveSentenceOpinions deletes every opinion attached to a sentence.
func (c *Corpus) RemoveSentenceOpinions(sentenceID string) {
	for _, id := range append([]string(nil), c.bySentence[sentenceID]...) {
		c.RemoveOpinion(id)
	}
}

// Len returns the number of live opinions.
func (c *Corpus) Len() int {
	return len(c.order)
}

// WriteAs serializes the corpus to path in the requested format.
func (c *Corpus) WriteAs(format Format, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "create output dir")
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return errors.Wrap(err, "create output file")
	}
	err = Write(f, c, format)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = errors.Wrap(cerr, "close output file")
	}
	if err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return errors.Wrap(os.Rename(tmp, path), "rename output file")
}

// Write serializes the corpus to w in the requested format.
func Write(w io.Writer, c *Corpus, format Format) error {
	switch format {
	case FormatSemEval2015, "":
		return WriteSemEval2015(w, c)
	case FormatTab:
		return WriteTab(w, c)
	default:
		return errors.Wrapf(ErrCorpus, "unsupported output format %q", format)
	}
}

func removeString(values []string, target string) []string {
	for i, v := range values {
		if v == target {
			return append(values[:i:i], values[i+1:]...)
		}
	}
	return values
}
