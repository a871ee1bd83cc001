package corpus

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// NormalizeText performs Unicode normalization and trims whitespace.
func NormalizeText(text string) string {
	normed := norm.NFKC.String(text)
	normed = strings.TrimSpace(normed)
	// Drop control characters except newlines and tabs.
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, normed)
}

// NormalizeLabel canonicalizes a category label: NFKC, no surrounding
// whitespace, upper case on both sides of the '#'.
func NormalizeLabel(label string) string {
	label = strings.TrimSpace(norm.NFKC.String(label))
	if label == "" {
		return ""
	}
	ent, att := SplitCategory(label)
	upper := cases.Upper(language.Und)
	ent = upper.String(strings.TrimSpace(ent))
	att = upper.String(strings.TrimSpace(att))
	if att == "" && !strings.Contains(label, "#") {
		return ent
	}
	return JoinCategory(ent, att)
}
