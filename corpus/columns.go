package corpus

import (
	"strings"
	"sync"
)

// ColumnCandidates defines possible header names for auto-detecting tab corpus columns.
type ColumnCandidates struct {
	Sentence []string `json:"sentence"`
	Text     []string `json:"text"`
	Target   []string `json:"target"`
	From     []string `json:"from"`
	To       []string `json:"to"`
	Category []string `json:"category"`
	Polarity []string `json:"polarity"`
}

var (
	columnCandidatesMu  sync.RWMutex
	activeColumnOptions = defaultColumnCandidates()
)

func defaultColumnCandidates() ColumnCandidates {
	return ColumnCandidates{
		Sentence: []string{"sentence_id", "sid", "sentence", "id"},
		Text:     []string{"text", "sentence_text", "content"},
		Target:   []string{"target", "ote", "term"},
		From:     []string{"from", "start", "offset_from"},
		To:       []string{"to", "end", "offset_to"},
		Category: []string{"category", "aspect_category", "cat"},
		Polarity: []string{"polarity", "sentiment"},
	}
}

// DefaultColumnCandidates returns the built-in column detection candidates.
func DefaultColumnCandidates() ColumnCandidates {
	return defaultColumnCandidates().clone()
}

// SetColumnCandidates updates the candidates used during auto-detection.
// Fields left nil fall back to the built-in defaults.
func SetColumnCandidates(candidates ColumnCandidates) {
	columnCandidatesMu.Lock()
	defer columnCandidatesMu.Unlock()
	activeColumnOptions = candidates.withDefaults()
}

func getColumnCandidates() ColumnCandidates {
	columnCandidatesMu.RLock()
	defer columnCandidatesMu.RUnlock()
	return activeColumnOptions.clone()
}

func (c ColumnCandidates) withDefaults() ColumnCandidates {
	d := defaultColumnCandidates()
	return ColumnCandidates{
		Sentence: pickStrings(c.Sentence, d.Sentence),
		Text:     pickStrings(c.Text, d.Text),
		Target:   pickStrings(c.Target, d.Target),
		From:     pickStrings(c.From, d.From),
		To:       pickStrings(c.To, d.To),
		Category: pickStrings(c.Category, d.Category),
		Polarity: pickStrings(c.Polarity, d.Polarity),
	}
}

func (c ColumnCandidates) clone() ColumnCandidates {
	return ColumnCandidates{
		Sentence: cloneStrings(c.Sentence),
		Text:     cloneStrings(c.Text),
		Target:   cloneStrings(c.Target),
		From:     cloneStrings(c.From),
		To:       cloneStrings(c.To),
		Category: cloneStrings(c.Category),
		Polarity: cloneStrings(c.Polarity),
	}
}

func pickStrings(custom, fallback []string) []string {
	if custom == nil {
		return cloneStrings(fallback)
	}
	return cloneStrings(custom)
}

func cloneStrings(values []string) []string {
	if values == nil {
		return nil
	}
	out := make([]string, len(values))
	copy(out, values)
	return out
}

func findColumn(header []string, candidates []string) int {
	for i, col := range header {
		for _, cand := range candidates {
			if strings.EqualFold(col, cand) {
				return i
			}
		}
	}
	return -1
}
