package corpus

import (
	"encoding/xml"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

type xmlReviews struct {
	XMLName xml.Name    `xml:"Reviews"`
	Reviews []xmlReview `xml:"Review"`
}

type xmlReview struct {
	RID       string        `xml:"rid,attr"`
	Sentences []xmlSentence `xml:"sentences>sentence"`
}

type xmlSentence struct {
	ID         string       `xml:"id,attr"`
	OutOfScope string       `xml:"OutOfScope,attr,omitempty"`
	Text       string       `xml:"text"`
	Opinions   *xmlOpinions `xml:"Opinions,omitempty"`
}

type xmlOpinions struct {
	Opinions []xmlOpinion `xml:"Opinion"`
}

type xmlOpinion struct {
	Target   string `xml:"target,attr"`
	Category string `xml:"category,attr"`
	Polarity string `xml:"polarity,attr,omitempty"`
	From     string `xml:"from,attr"`
	To       string `xml:"to,attr"`
}

// ReadFile loads a corpus from disk.
func ReadFile(path string, format Format, opts ReadOptions) (*Corpus, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.WithHint(
			errors.Wrapf(ErrCorpus, "open %s: %v", filepath.Base(path), err),
			"check the corpus path")
	}
	defer f.Close()
	return Read(f, format, opts)
}

// Read loads a corpus in the given format.
func Read(r io.Reader, format Format, opts ReadOptions) (*Corpus, error) {
	switch format {
	case FormatSemEval2015, "":
		return ReadSemEval2015(r, opts)
	case FormatTab:
		return ReadTab(r, opts)
	default:
		return nil, errors.Wrapf(ErrCorpus, "unsupported corpus format %q", format)
	}
}

// ReadSemEval2015 parses the SemEval-2015 ABSA XML format. Opinions are given
// ids o1..oN in document order.
func ReadSemEval2015(r io.Reader, opts ReadOptions) (*Corpus, error) {
	var doc xmlReviews
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, errors.Wrapf(ErrCorpus, "decode semeval2015 xml: %v", err)
	}
	c := New(opts.Language)
	for _, rev := range doc.Reviews {
		for _, xs := range rev.Sentences {
			if err := c.AddSentence(Sentence{ID: xs.ID, ReviewID: rev.RID, Text: xs.Text, OutOfScope: xs.OutOfScope}); err != nil {
				return nil, err
			}
			var ops []xmlOpinion
			if xs.Opinions != nil {
				ops = xs.Opinions.Opinions
			}
			if len(ops) == 0 && opts.NullSentences {
				if err := c.AddOpinion(Opinion{SentenceID: xs.ID, Category: JoinCategory(NullLabel, NullLabel)}); err != nil {
					return nil, err
				}
				continue
			}
			for _, xo := range ops {
				op, err := opinionFromXML(xs.ID, xo)
				if err != nil {
					return nil, err
				}
				if err := c.AddOpinion(op); err != nil {
					return nil, err
				}
			}
		}
	}
	return c, nil
}

func opinionFromXML(sentenceID string, xo xmlOpinion) (Opinion, error) {
	from, err := parseOffset(xo.From)
	if err != nil {
		return Opinion{}, errors.Wrapf(ErrCorpus, "sentence %s: bad from offset %q", sentenceID, xo.From)
	}
	to, err := parseOffset(xo.To)
	if err != nil {
		return Opinion{}, errors.Wrapf(ErrCorpus, "sentence %s: bad to offset %q", sentenceID, xo.To)
	}
	target := xo.Target
	if strings.TrimSpace(target) == NullLabel {
		target = ""
	}
	return Opinion{
		SentenceID: sentenceID,
		Target:     target,
		From:       from,
		To:         to,
		Polarity:   strings.TrimSpace(xo.Polarity),
		Category:   NormalizeLabel(xo.Category),
	}, nil
}

func parseOffset(v string) (int, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}

// WriteSemEval2015 serializes the corpus in the SemEval-2015 XML format.
// Opinions without a category are written with an empty category attribute.
func WriteSemEval2015(w io.Writer, c *Corpus) error {
	doc := xmlReviews{}
	reviewPos := make(map[string]int)
	for _, s := range c.Sentences() {
		pos, ok := reviewPos[s.ReviewID]
		if !ok {
			pos = len(doc.Reviews)
			reviewPos[s.ReviewID] = pos
			doc.Reviews = append(doc.Reviews, xmlReview{RID: s.ReviewID})
		}
		xs := xmlSentence{ID: s.ID, OutOfScope: s.OutOfScope, Text: s.Text}
		if ops := c.SentenceOpinions(s.ID); len(ops) > 0 {
			xs.Opinions = &xmlOpinions{}
			for _, op := range ops {
				xs.Opinions.Opinions = append(xs.Opinions.Opinions, opinionToXML(op))
			}
		}
		doc.Reviews[pos].Sentences = append(doc.Reviews[pos].Sentences, xs)
	}
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return errors.Wrap(err, "write xml header")
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "    ")
	if err := enc.Encode(doc); err != nil {
		return errors.Wrap(err, "encode semeval2015 xml")
	}
	_, err := io.WriteString(w, "\n")
	return errors.Wrap(err, "write xml trailer")
}

func opinionToXML(op Opinion) xmlOpinion {
	target := op.Target
	if target == "" {
		target = NullLabel
	}
	return xmlOpinion{
		Target:   target,
		Category: op.Category,
		Polarity: op.Polarity,
		From:     strconv.Itoa(op.From),
		To:       strconv.Itoa(op.To),
	}
}
