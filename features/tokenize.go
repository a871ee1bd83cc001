package features

import (
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/cockroachdb/errors"
	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"yashubustudio/aspectcat/aspect"
	"yashubustudio/aspectcat/corpus"
)

// Token is a piece of sentence text. Start and End are character offsets,
// the unit opinion spans are annotated in.
type Token struct {
	Text  string
	Start int
	End   int
}

// Tokenizer splits sentence text into tokens.
type Tokenizer interface {
	Tokenize(text string) ([]Token, error)
}

// WordTokenizer splits on anything that is not a letter, digit or mark.
type WordTokenizer struct {
	lang language.Tag
	// Lowercase folds tokens with the language's casing rules.
	Lowercase bool
}

// NewWordTokenizer returns a tokenizer for the BCP 47 language tag lang.
// Unknown tags fall back to language-neutral casing.
func NewWordTokenizer(lang string, lowercase bool) *WordTokenizer {
	tag, err := language.Parse(lang)
	if err != nil {
		tag = language.Und
	}
	return &WordTokenizer{lang: tag, Lowercase: lowercase}
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r)
}

// Tokenize implements Tokenizer. Offsets index the text as given; only the
// token text is normalized.
func (w *WordTokenizer) Tokenize(text string) ([]Token, error) {
	var lower cases.Caser
	if w.Lowercase {
		lower = cases.Lower(w.lang)
	}
	var (
		out   []Token
		start = -1
		from  int
		pos   int
	)
	flush := func(end int, byteEnd int) {
		if start < 0 {
			return
		}
		tok := corpus.NormalizeText(text[from:byteEnd])
		if w.Lowercase {
			tok = lower.String(tok)
		}
		out = append(out, Token{Text: tok, Start: start, End: end})
		start = -1
	}
	for i, r := range text {
		if isWordRune(r) {
			if start < 0 {
				start, from = pos, i
			}
		} else {
			flush(pos, i)
		}
		pos++
	}
	flush(pos, len(text))
	return out, nil
}

// HFTokenizer wraps a HuggingFace tokenizer.json for subword features.
type HFTokenizer struct {
	mu sync.Mutex
	tk *tokenizer.Tokenizer
}

// NewHFTokenizer loads a tokenizer.json file.
func NewHFTokenizer(path string) (*HFTokenizer, error) {
	tk, err := pretrained.FromFile(path)
	if err != nil {
		return nil, errors.WithHint(
			errors.Wrapf(aspect.ErrConfiguration, "load tokenizer %s: %v", path, err),
			"the tokenizer parameter must point at a tokenizer.json")
	}
	return &HFTokenizer{tk: tk}, nil
}

// Tokenize implements Tokenizer. Special tokens are not added and subword
// offsets are converted from bytes to characters.
func (h *HFTokenizer) Tokenize(text string) ([]Token, error) {
	h.mu.Lock()
	en, err := h.tk.EncodeSingle(text, false)
	h.mu.Unlock()
	if err != nil {
		return nil, errors.Wrap(err, "encode text")
	}
	tokens := en.GetTokens()
	offsets := en.GetOffsets()
	out := make([]Token, 0, len(tokens))
	for i, tok := range tokens {
		t := Token{Text: tok}
		if i < len(offsets) && len(offsets[i]) == 2 {
			t.Start = runeOffset(text, offsets[i][0])
			t.End = runeOffset(text, offsets[i][1])
		}
		out = append(out, t)
	}
	return out, nil
}

func runeOffset(text string, byteOff int) int {
	if byteOff <= 0 {
		return 0
	}
	if byteOff >= len(text) {
		return utf8.RuneCountInString(text)
	}
	return utf8.RuneCountInString(text[:byteOff])
}
