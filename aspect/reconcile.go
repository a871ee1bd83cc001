package aspect

import (
	"sort"

	"github.com/cockroachdb/errors"

	"yashubustudio/aspectcat/corpus"
)

// LabelFunc composes the category written back for a final instance.
type LabelFunc func(Instance) string

// ComposeEntityAttribute joins the entity and attribute labels as "E#A".
func ComposeEntityAttribute(in Instance) string {
	return corpus.JoinCategory(in.EntCat, in.AttCat)
}

// EntityAttributeLabel returns the joint label of single classifier runs.
func EntityAttributeLabel(in Instance) string {
	return in.EntAttCat
}

// Reconcile replaces the opinions of every sentence touched by the run with
// one opinion per final instance. touched lists the instances the run started
// from, final the instances that survived every gate. Opinions whose label
// names the null category are not written. It returns the ids of the added
// opinions in the order they were added.
func Reconcile(c Corpus, idx *Index, touched []Handle, final *Table, label LabelFunc) ([]string, error) {
	seeds := idx.Seeds()
	first := make(map[string]string)
	for _, h := range touched {
		sid, err := idx.LookupSentence(h)
		if err != nil {
			return nil, err
		}
		id, ok := seeds[h]
		if !ok {
			return nil, lookupErr("touched instance %s was not seeded", h)
		}
		if cur, seen := first[sid]; !seen || naturalLess(id, cur) {
			first[sid] = id
		}
	}

	pending := make(map[string][]corpus.Opinion, len(first))
	for _, row := range final.Rows() {
		op, err := idx.Opinion(row.ID)
		if err != nil {
			return nil, err
		}
		if _, ok := first[op.SentenceID]; !ok {
			return nil, lookupErr("instance %s belongs to sentence %q which the run did not touch", row.ID, op.SentenceID)
		}
		cat := label(row)
		if corpus.IsNullCategory(cat) {
			continue
		}
		op.Category = cat
		pending[op.SentenceID] = append(pending[op.SentenceID], op)
	}

	sentences := make([]string, 0, len(first))
	for sid := range first {
		sentences = append(sentences, sid)
	}
	sort.Slice(sentences, func(i, j int) bool {
		a, b := first[sentences[i]], first[sentences[j]]
		if a == b {
			return sentences[i] < sentences[j]
		}
		return naturalLess(a, b)
	})

	for _, sid := range sentences {
		c.RemoveSentenceOpinions(sid)
	}
	var added []string
	for _, sid := range sentences {
		ops := pending[sid]
		sort.Slice(ops, func(i, j int) bool { return naturalLess(ops[i].ID, ops[j].ID) })
		for _, op := range ops {
			if err := c.AddOpinion(op); err != nil {
				return added, errors.Wrapf(err, "add opinion %s to sentence %s", op.ID, sid)
			}
			added = append(added, op.ID)
		}
	}
	return added, nil
}
