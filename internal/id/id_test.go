package id

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIDCompare(t *testing.T) {
	a := NewID(1, 5)
	b := NewID(1, 6)
	c := NewID(2, 0)

	assert.True(t, a.Less(b))
	assert.True(t, b.Less(c))
	assert.False(t, c.Less(a))
	assert.Equal(t, 0, a.Compare(a))
}

func TestIdLpWins(t *testing.T) {
	low := NewIdLp(1, 9)
	high := NewIdLp(2, 1)
	assert.True(t, high.Wins(low))

	tieA := NewIdLp(5, 1)
	tieB := NewIdLp(5, 2)
	assert.True(t, tieB.Wins(tieA))
	assert.False(t, tieA.Wins(tieB))
}

func TestVersionVectorDiff(t *testing.T) {
	a := VersionVector{1: 5, 2: 3}
	b := VersionVector{1: 2, 3: 1}

	aOnly, bOnly := a.Diff(b)
	require.Len(t, aOnly, 2)
	require.Len(t, bOnly, 1)

	merged := Merge(a, b)
	assert.Equal(t, Counter(5), merged.Get(1))
	assert.Equal(t, Counter(3), merged.Get(2))
	assert.Equal(t, Counter(1), merged.Get(3))
}

func TestVersionVectorIncludes(t *testing.T) {
	vv := VersionVector{1: 5}
	assert.True(t, vv.Includes(NewID(1, 4)))
	assert.False(t, vv.Includes(NewID(1, 5)))
	assert.False(t, vv.Includes(NewID(2, 0)))
}

func TestFrontiersInsertDropsDominated(t *testing.T) {
	precedes := func(a, b ID) bool {
		return a.Peer == b.Peer && a.Counter <= b.Counter
	}

	f := Frontiers{NewID(1, 3)}
	f = f.Insert(NewID(1, 5), precedes)
	require.Len(t, f, 1)
	assert.Equal(t, NewID(1, 5), f[0])

	f = f.Insert(NewID(2, 0), precedes)
	require.Len(t, f, 2)
}

func TestIdSpanMerge(t *testing.T) {
	s1 := NewIdSpan(1, 0, 5)
	s2 := NewIdSpan(1, 5, 10)
	require.True(t, s1.CanMergeWith(s2))
	merged := s1.Merge(s2)
	assert.Equal(t, Counter(0), merged.Counter.Start)
	assert.Equal(t, Counter(10), merged.Counter.End)

	sliced := merged.Slice(2, 4)
	assert.Equal(t, Counter(2), sliced.Counter.Start)
	assert.Equal(t, Counter(4), sliced.Counter.End)
}
