package scanner

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIPSet_AddAllAndSortedOctets(t *testing.T) {
	s := newIPSet()
	s.addAll([]int{254, 1, 100})
	assert.Equal(t, 3, s.len())
	assert.Equal(t, []int{1, 100, 254}, s.sortedOctets())
	assert.Equal(t, []string{"1", "100", "254"}, s.addrs())
}

func TestIPSet_AddAllDeduplicates(t *testing.T) {
	s := newIPSet()
	s.addAll([]int{1, 1, 2})
	assert.Equal(t, 2, s.len())
}

func TestExpandHints(t *testing.T) {
	out := expandHints([]int{10})
	assert.ElementsMatch(t, []int{8, 9, 10, 11, 12}, out)
}

func TestExpandHints_ClampsToValidRange(t *testing.T) {
	out := expandHints([]int{1})
	assert.ElementsMatch(t, []int{1, 2, 3}, out)

	out = expandHints([]int{254})
	assert.ElementsMatch(t, []int{252, 253, 254}, out)
}

func TestExpandHints_Deduplicates(t *testing.T) {
	out := expandHints([]int{10, 11})
	seen := map[int]bool{}
	for _, o := range out {
		assert.False(t, seen[o], "duplicate octet %d", o)
		seen[o] = true
	}
}

func TestRemainingOctets_ExcludesFoundAndHinted(t *testing.T) {
	found := newIPSet()
	found.addAll([]int{1, 2, 3})
	out := remainingOctets(found, []int{4, 5})
	assert.NotContains(t, out, 1)
	assert.NotContains(t, out, 4)
	assert.Contains(t, out, 6)
	assert.Len(t, out, 254-5)
}
