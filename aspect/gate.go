package aspect

import (
	"sort"

	"github.com/cockroachdb/errors"
)

// Expansion is the result of gating one classification round.
type Expansion struct {
	Table       *Table
	Dropped     []Handle
	Synthesized []Handle
}

type scored struct {
	label string
	score float64
}

// survivors returns the labels scoring strictly above threshold, best first,
// ties broken by label.
func survivors(scores map[string]float64, threshold float64) []string {
	kept := make([]scored, 0, len(scores))
	for label, s := range scores {
		if s > threshold {
			kept = append(kept, scored{label: label, score: s})
		}
	}
	sort.Slice(kept, func(i, j int) bool {
		if kept[i].score == kept[j].score {
			return kept[i].label < kept[j].label
		}
		return kept[i].score > kept[j].score
	})
	out := make([]string, len(kept))
	for i, k := range kept {
		out[i] = k.label
	}
	return out
}

// Expand returns one copy of in per label with field set to that label. Every
// copy keeps the parent handle; callers assign new handles to all but the first.
func Expand(in Instance, field Field, labels []string) []Instance {
	out := make([]Instance, 0, len(labels))
	for _, l := range labels {
		out = append(out, in.WithLabel(field, l))
	}
	return out
}

// Gate applies threshold to conf and builds the next table. Rows without a
// surviving category are dropped; rows with several survivors are split into
// synthetic instances registered with idx.
func Gate(table *Table, conf ConfidenceMap, field Field, threshold float64, idx *Index) (Expansion, error) {
	out := Expansion{Table: NewTable(table.Width())}
	for _, row := range table.Rows() {
		scores, ok := conf[row.ID]
		if !ok {
			return Expansion{}, lookupErr("instance %s has no confidence scores", row.ID)
		}
		labels := survivors(scores, threshold)
		if len(labels) == 0 {
			out.Dropped = append(out.Dropped, row.ID)
			continue
		}
		for i, inst := range Expand(row, field, labels) {
			if i > 0 {
				h, err := idx.Allocate(row.ID)
				if err != nil {
					return Expansion{}, err
				}
				if _, err := idx.Fork(h); err != nil {
					return Expansion{}, err
				}
				inst.ID = h
				out.Synthesized = append(out.Synthesized, h)
			}
			if err := out.Table.Add(inst); err != nil {
				return Expansion{}, errors.Wrapf(err, "expand instance %s", row.ID)
			}
		}
	}
	return out, nil
}
