package aspect

import (
	"strconv"
	"sync"

	"github.com/cockroachdb/errors"

	"yashubustudio/aspectcat/corpus"
)

// Index maps instance handles to the opinions they describe. It owns handle
// allocation for the whole run so synthetic handles never collide, and it
// keeps a snapshot of every opinion record it binds, including the clones
// created for synthetic instances.
type Index struct {
	mu sync.RWMutex

	bound   map[Handle]string
	records map[string]corpus.Opinion
	seeds   map[Handle]string
	sub     map[string]int
	root    map[string]string
	max     Handle
}

// NewIndex snapshots the opinions named by seeds. Every seeded opinion must
// exist in src.
func NewIndex(src Corpus, seeds map[Handle]string) (*Index, error) {
	idx := &Index{
		bound:   make(map[Handle]string, len(seeds)),
		records: make(map[string]corpus.Opinion, len(seeds)),
		seeds:   make(map[Handle]string, len(seeds)),
		sub:     make(map[string]int),
		root:    make(map[string]string),
	}
	for h, id := range seeds {
		if h == 0 {
			return nil, errors.Wrapf(ErrLookup, "opinion %q seeded with the zero handle", id)
		}
		op, ok := src.Opinion(id)
		if !ok {
			return nil, lookupErr("opinion %q for instance %s is not in the corpus", id, h)
		}
		idx.bound[h] = id
		idx.seeds[h] = id
		idx.records[id] = op
		if h > idx.max {
			idx.max = h
		}
	}
	return idx, nil
}

// LookupOpinion returns the opinion id bound to h.
func (idx *Index) LookupOpinion(h Handle) (string, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	id, ok := idx.bound[h]
	if !ok {
		return "", lookupErr("instance %s has no opinion", h)
	}
	return id, nil
}

// LookupSentence returns the sentence of the opinion bound to h.
func (idx *Index) LookupSentence(h Handle) (string, error) {
	op, err := idx.Opinion(h)
	if err != nil {
		return "", err
	}
	return op.SentenceID, nil
}

// Opinion returns the opinion record bound to h.
func (idx *Index) Opinion(h Handle) (corpus.Opinion, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	id, ok := idx.bound[h]
	if !ok {
		return corpus.Opinion{}, lookupErr("instance %s has no opinion", h)
	}
	op, ok := idx.records[id]
	if !ok {
		return corpus.Opinion{}, lookupErr("opinion %q of instance %s has no record", id, h)
	}
	return op, nil
}

// Allocate mints a handle one above every handle the index has seen and binds
// it to the opinion of parent.
func (idx *Index) Allocate(parent Handle) (Handle, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	id, ok := idx.bound[parent]
	if !ok {
		return 0, lookupErr("cannot allocate from instance %s: no opinion", parent)
	}
	idx.max++
	h := idx.max
	idx.bound[h] = id
	return h, nil
}

// Fork rebinds h to a clone of its current opinion. The clone id is the id
// of the original opinion suffixed with "_<n>", n counting up per original
// opinion for the whole run, so cloning a clone of o1 still yields o1_<n>.
func (idx *Index) Fork(h Handle) (string, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	cur, ok := idx.bound[h]
	if !ok {
		return "", lookupErr("cannot fork instance %s: no opinion", h)
	}
	rec, ok := idx.records[cur]
	if !ok {
		return "", lookupErr("cannot fork instance %s: opinion %q has no record", h, cur)
	}
	base := cur
	if r, ok := idx.root[cur]; ok {
		base = r
	}
	var id string
	for {
		idx.sub[base]++
		id = base + "_" + strconv.Itoa(idx.sub[base])
		if _, taken := idx.records[id]; !taken {
			break
		}
	}
	rec.ID = id
	idx.records[id] = rec
	idx.root[id] = base
	idx.bound[h] = id
	return id, nil
}

// Seeds returns a copy of the handle to opinion bindings the index started with.
func (idx *Index) Seeds() map[Handle]string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := make(map[Handle]string, len(idx.seeds))
	for h, id := range idx.seeds {
		out[h] = id
	}
	return out
}

// Max returns the largest handle issued so far.
func (idx *Index) Max() Handle {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.max
}

// Len returns the number of bound handles.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.bound)
}

// Check verifies that every live handle is bound and that no two live
// handles share an opinion.
func (idx *Index) Check(live []Handle) error {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	owner := make(map[string]Handle, len(live))
	for _, h := range live {
		id, ok := idx.bound[h]
		if !ok {
			return lookupErr("live instance %s has no opinion", h)
		}
		if prev, dup := owner[id]; dup {
			return lookupErr("instances %s and %s share opinion %q", prev, h, id)
		}
		owner[id] = h
	}
	return nil
}
