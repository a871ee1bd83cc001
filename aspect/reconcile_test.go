package aspect

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yashubustudio/aspectcat/corpus"
)

func TestReconcileOrdering(t *testing.T) {
	c := newCorpus(t, map[string][]corpus.Opinion{
		"s1": {{ID: "o10", Target: "steak", Category: "FOOD#QUALITY"}},
		"s2": {{ID: "o2", Target: "bar", Category: "AMBIENCE#GENERAL"}, {ID: "o3", Category: "SERVICE#GENERAL"}},
	})
	idx, err := NewIndex(c, map[Handle]string{1: "o10", 2: "o2", 3: "o3"})
	require.NoError(t, err)

	final := tableOf(t, 1,
		Instance{ID: 1, Features: []float64{0}, EntCat: "FOOD", AttCat: "PRICES"},
		Instance{ID: 2, Features: []float64{0}, EntCat: "AMBIENCE", AttCat: "GENERAL"},
	)
	// eleven clones of o10 so that o10_10 and o10_11 sort after o10_2
	for i := 0; i < 11; i++ {
		h, err := idx.Allocate(1)
		require.NoError(t, err)
		_, err = idx.Fork(h)
		require.NoError(t, err)
		require.NoError(t, final.Add(Instance{ID: h, Origin: 1, Features: []float64{0}, EntCat: "FOOD", AttCat: "STYLE"}))
	}

	added, err := Reconcile(c, idx, []Handle{1, 2, 3}, final, ComposeEntityAttribute)
	require.NoError(t, err)

	require.Len(t, added, 13)
	assert.Equal(t, "o2", added[0], "s2 goes first: its first opinion o2 precedes o10")
	assert.Equal(t, []string{"o10", "o10_1", "o10_2", "o10_3"}, added[1:5])
	assert.Equal(t, []string{"o10_10", "o10_11"}, added[11:])

	assert.Equal(t, []string{"o2=AMBIENCE#GENERAL"}, categories(c, "s2"), "o3 was dropped")
	op, ok := c.Opinion("o10_3")
	require.True(t, ok)
	assert.Equal(t, "steak", op.Target)
	assert.Equal(t, "s1", op.SentenceID)

	before := categories(c, "s1")
	again, err := Reconcile(c, idx, []Handle{1, 2, 3}, final, ComposeEntityAttribute)
	require.NoError(t, err)
	assert.Equal(t, added, again)
	assert.Equal(t, before, categories(c, "s1"))
}

func TestReconcileRejectsUnboundInstances(t *testing.T) {
	c := newCorpus(t, map[string][]corpus.Opinion{"s1": {{ID: "o1", Category: "FOOD#QUALITY"}}})
	idx, err := NewIndex(c, map[Handle]string{1: "o1"})
	require.NoError(t, err)

	final := tableOf(t, 1, Instance{ID: 7, Features: []float64{0}, EntCat: "FOOD", AttCat: "QUALITY"})
	_, err = Reconcile(c, idx, []Handle{1}, final, ComposeEntityAttribute)
	assert.True(t, errors.Is(err, ErrLookup))

	_, err = Reconcile(c, idx, []Handle{5}, NewTable(1), ComposeEntityAttribute)
	assert.True(t, errors.Is(err, ErrLookup))
}

func TestNaturalLess(t *testing.T) {
	ids := []string{"o10", "o2", "o1_10", "o1", "o1_2", "o10_1", "o02", "a", "o1_1"}
	sortNatural(ids)
	assert.Equal(t, []string{"a", "o1", "o1_1", "o1_2", "o1_10", "o02", "o2", "o10", "o10_1"}, ids)
	assert.False(t, naturalLess("o3", "o3"))
}
