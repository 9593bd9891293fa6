package list

import (
	"testing"

	"github.com/loro-dev/loro-go/internal/change"
	"github.com/loro-dev/loro-go/internal/id"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func insertAt(s *State, peer id.PeerID, counter id.Counter, lamport id.Lamport, pos int, v change.Value) id.ID {
	opID := id.NewID(peer, counter)
	ol, or := s.seq.NeighborsForVisiblePos(pos)
	op := change.Op{Counter: counter, Content: change.OpContent{
		Kind: change.OpListInsert, Value: v, OriginLeft: ol, OriginRight: or,
	}}
	s.Apply(lamport, peer, op)
	return opID
}

func TestListSequentialInserts(t *testing.T) {
	s := New(1)
	insertAt(s, 0, 0, 0, 0, change.I64Value(1))
	insertAt(s, 0, 1, 1, 1, change.I64Value(2))
	insertAt(s, 0, 2, 2, 1, change.I64Value(3))

	v := s.Value()
	require.Len(t, v.List, 3)
	assert.Equal(t, int64(1), v.List[0].I64)
	assert.Equal(t, int64(3), v.List[1].I64)
	assert.Equal(t, int64(2), v.List[2].I64)
}

func TestListConcurrentInsertsConverge(t *testing.T) {
	// Two replicas both insert at position 0 relative to the same origin;
	// both orderings of delivery must converge to the same result.
	base := New(1)
	insertAt(base, 0, 0, 0, 0, change.StringValue("base"))

	build := func(order []int) *State {
		s := New(2)
		insertAt(s, 0, 0, 0, 0, change.StringValue("base"))
		ol, or := s.seq.NeighborsForVisiblePos(1)
		ops := []change.Op{
			{Counter: 0, Content: change.OpContent{Kind: change.OpListInsert, Value: change.StringValue("A"), OriginLeft: ol, OriginRight: or}},
			{Counter: 0, Content: change.OpContent{Kind: change.OpListInsert, Value: change.StringValue("B"), OriginLeft: ol, OriginRight: or}},
		}
		peers := []id.PeerID{1, 2}
		lamports := []id.Lamport{1, 1}
		for _, i := range order {
			s.Apply(lamports[i], peers[i], ops[i])
		}
		return s
	}

	s1 := build([]int{0, 1})
	s2 := build([]int{1, 0})
	assert.Equal(t, s1.Value(), s2.Value())
}

func TestListDeleteIsIDAddressed(t *testing.T) {
	s := New(1)
	a := insertAt(s, 0, 0, 0, 0, change.I64Value(1))
	insertAt(s, 0, 1, 1, 1, change.I64Value(2))

	s.Apply(2, 0, change.Op{Content: change.OpContent{Kind: change.OpListDelete, DeleteTarget: a, DeleteLen: 1}})
	v := s.Value()
	require.Len(t, v.List, 1)
	assert.Equal(t, int64(2), v.List[0].I64)

	// Replaying the same delete must be a no-op.
	diff := s.Apply(2, 0, change.Op{Content: change.OpContent{Kind: change.OpListDelete, DeleteTarget: a, DeleteLen: 1}})
	assert.Equal(t, 0, diff.ListDeleteLen)
}

func TestListSnapshotRoundTrip(t *testing.T) {
	s := New(1)
	insertAt(s, 0, 0, 0, 0, change.I64Value(1))
	insertAt(s, 0, 1, 1, 1, change.I64Value(2))

	blob := s.EncodeSnapshot()
	s2 := New(1)
	require.NoError(t, s2.DecodeSnapshot(blob))
	assert.Equal(t, s.Value(), s2.Value())
}
