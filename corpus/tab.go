package corpus

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

type tabColumns struct {
	sentence, text, target, from, to, category, polarity int
}

// positional layout used when the file carries no recognizable header
var defaultTabColumns = tabColumns{0, 1, 2, 3, 4, 5, 6}

// ReadTab parses a tab separated corpus with one opinion per row. Rows sharing
// a sentence id belong to the same sentence; a row with neither target nor
// category only declares the sentence.
func ReadTab(r io.Reader, opts ReadOptions) (*Corpus, error) {
	reader := csv.NewReader(r)
	reader.Comma = '\t'
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, errors.Wrapf(ErrCorpus, "read tab corpus: %v", err)
	}
	if len(rows) == 0 {
		return nil, errors.Wrap(ErrCorpus, "empty tab corpus")
	}
	header := make([]string, len(rows[0]))
	for i, v := range rows[0] {
		header[i] = cleanCell(v)
	}
	cols, hasHeader := resolveTabColumns(header)
	start := 0
	if hasHeader {
		start = 1
	}

	c := New(opts.Language)
	annotated := make(map[string]bool)
	for n, row := range rows[start:] {
		line := n + start + 1
		sid := cell(row, cols.sentence)
		if sid == "" {
			return nil, errors.Wrapf(ErrCorpus, "line %d: missing sentence id", line)
		}
		if _, ok := c.Sentence(sid); !ok {
			if err := c.AddSentence(Sentence{ID: sid, Text: rawCell(row, cols.text)}); err != nil {
				return nil, err
			}
		}
		target := rawCell(row, cols.target)
		category := NormalizeLabel(cell(row, cols.category))
		if strings.TrimSpace(target) == "" && category == "" {
			continue
		}
		if strings.TrimSpace(target) == NullLabel {
			target = ""
		}
		from, err := parseOffset(cell(row, cols.from))
		if err != nil {
			return nil, errors.Wrapf(ErrCorpus, "line %d: bad from offset", line)
		}
		to, err := parseOffset(cell(row, cols.to))
		if err != nil {
			return nil, errors.Wrapf(ErrCorpus, "line %d: bad to offset", line)
		}
		op := Opinion{
			SentenceID: sid,
			Target:     target,
			From:       from,
			To:         to,
			Polarity:   cell(row, cols.polarity),
			Category:   category,
		}
		if err := c.AddOpinion(op); err != nil {
			return nil, err
		}
		annotated[sid] = true
	}
	if opts.NullSentences {
		for _, s := range c.Sentences() {
			if annotated[s.ID] {
				continue
			}
			if err := c.AddOpinion(Opinion{SentenceID: s.ID, Category: JoinCategory(NullLabel, NullLabel)}); err != nil {
				return nil, err
			}
		}
	}
	return c, nil
}

func resolveTabColumns(header []string) (tabColumns, bool) {
	cand := getColumnCandidates()
	cols := tabColumns{
		sentence: findColumn(header, cand.Sentence),
		text:     findColumn(header, cand.Text),
		target:   findColumn(header, cand.Target),
		from:     findColumn(header, cand.From),
		to:       findColumn(header, cand.To),
		category: findColumn(header, cand.Category),
		polarity: findColumn(header, cand.Polarity),
	}
	if cols.sentence < 0 || cols.category < 0 {
		return defaultTabColumns, false
	}
	return cols, true
}

// WriteTab serializes the corpus with a header row, one opinion per row.
// Sentences without opinions get a row with empty opinion columns.
func WriteTab(w io.Writer, c *Corpus) error {
	writer := csv.NewWriter(w)
	writer.Comma = '\t'
	if err := writer.Write([]string{"sentence_id", "text", "target", "from", "to", "category", "polarity"}); err != nil {
		return errors.Wrap(err, "write header")
	}
	for _, s := range c.Sentences() {
		ops := c.SentenceOpinions(s.ID)
		if len(ops) == 0 {
			if err := writer.Write([]string{s.ID, s.Text, "", "", "", "", ""}); err != nil {
				return errors.Wrapf(err, "write sentence %s", s.ID)
			}
			continue
		}
		for _, op := range ops {
			row := []string{s.ID, s.Text, op.Target, strconv.Itoa(op.From), strconv.Itoa(op.To), op.Category, op.Polarity}
			if err := writer.Write(row); err != nil {
				return errors.Wrapf(err, "write opinion %s", op.ID)
			}
		}
	}
	writer.Flush()
	return errors.Wrap(writer.Error(), "flush tab corpus")
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return cleanCell(row[idx])
}

// rawCell keeps surrounding whitespace, which offsets may count.
func rawCell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimPrefix(row[idx], "\ufeff")
}

func cleanCell(v string) string {
	v = strings.TrimSpace(v)
	v = strings.TrimPrefix(v, "\ufeff")
	return v
}
