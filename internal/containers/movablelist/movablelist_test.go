package movablelist

import (
	"testing"

	"github.com/loro-dev/loro-go/internal/change"
	"github.com/loro-dev/loro-go/internal/id"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func insert(s *State, peer id.PeerID, counter id.Counter, lamport id.Lamport, pos int, v change.Value) id.ID {
	elemID := id.NewID(peer, counter)
	ol, or := s.NeighborsForVisiblePos(pos)
	s.Apply(lamport, peer, change.Op{Counter: counter, Content: change.OpContent{
		Kind: change.OpListInsert, Value: v, OriginLeft: ol, OriginRight: or,
	}})
	return elemID
}

func TestMovableListInsertAndMove(t *testing.T) {
	s := New(1)
	a := insert(s, 0, 0, 0, 0, change.StringValue("a"))
	insert(s, 0, 1, 1, 1, change.StringValue("b"))
	insert(s, 0, 2, 2, 2, change.StringValue("c"))

	require.Equal(t, []string{"a", "b", "c"}, valueStrs(s))

	// Move "a" to the end.
	diff := s.Apply(3, 0, change.Op{Counter: 3, Content: change.OpContent{
		Kind: change.OpListMove, FromID: a, ToPos: 3,
	}})
	assert.Equal(t, 0, diff.MoveFromPos)
	assert.Equal(t, []string{"b", "c", "a"}, valueStrs(s))
}

func TestMovableListConcurrentMovesLWW(t *testing.T) {
	s := New(1)
	a := insert(s, 0, 0, 0, 0, change.StringValue("a"))
	insert(s, 0, 1, 1, 1, change.StringValue("b"))

	// Two concurrent moves of "a" at the same lamport: the tie goes to
	// the smaller peer id, so peer 2's move loses to peer 1's.
	s.Apply(5, 2, change.Op{Counter: 20, Content: change.OpContent{Kind: change.OpListMove, FromID: a, ToPos: 0}})
	loserMarker := s.elems[a].currentMarker
	s.Apply(5, 1, change.Op{Counter: 10, Content: change.OpContent{Kind: change.OpListMove, FromID: a, ToPos: 2}})
	assert.NotEqual(t, loserMarker, s.elems[a].currentMarker)
	assert.Equal(t, id.PeerID(1), s.elems[a].moveWinner.Peer)
}

func TestMovableListSetChangesValueNotPosition(t *testing.T) {
	s := New(1)
	a := insert(s, 0, 0, 0, 0, change.I64Value(1))
	insert(s, 0, 1, 1, 1, change.I64Value(2))

	s.Apply(5, 0, change.Op{Content: change.OpContent{Kind: change.OpListSet, ElemID: a, Value: change.I64Value(99)}})
	v := s.Value()
	require.Len(t, v.List, 2)
	assert.Equal(t, int64(99), v.List[0].I64)
}

func TestMovableListSnapshotRoundTrip(t *testing.T) {
	s := New(1)
	a := insert(s, 0, 0, 0, 0, change.StringValue("a"))
	insert(s, 0, 1, 1, 1, change.StringValue("b"))
	s.Apply(2, 0, change.Op{Counter: 2, Content: change.OpContent{Kind: change.OpListMove, FromID: a, ToPos: 2}})

	blob := s.EncodeSnapshot()
	s2 := New(1)
	require.NoError(t, s2.DecodeSnapshot(blob))
	assert.Equal(t, s.Value(), s2.Value())
}

func valueStrs(s *State) []string {
	v := s.Value()
	out := make([]string, len(v.List))
	for i, e := range v.List {
		out[i] = e.Str
	}
	return out
}
