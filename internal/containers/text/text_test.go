package text

import (
	"testing"

	"github.com/loro-dev/loro-go/internal/change"
	"github.com/loro-dev/loro-go/internal/id"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func insertText(s *State, peer id.PeerID, counter id.Counter, lamport id.Lamport, pos int, text string) {
	ol, or := s.NeighborsForVisiblePos(pos)
	s.Apply(lamport, peer, change.Op{Counter: counter, Content: change.OpContent{
		Kind: change.OpTextInsert, Text: text, OriginLeft: ol, OriginRight: or,
	}})
}

func TestTextSequentialInsert(t *testing.T) {
	s := New(1)
	insertText(s, 0, 0, 0, 0, "Hello")
	insertText(s, 0, 5, 1, 5, " World")
	assert.Equal(t, "Hello World", s.Value().Str)
}

func TestTextConcurrentInsertsDoNotInterleave(t *testing.T) {
	// Two replicas both append "AAA" and "BBB" at the same position
	// concurrently; regardless of delivery order, each replica's run of
	// characters must stay contiguous (no interleaving), per the
	// non-interleaving property of the underlying Fugue-style integration.
	build := func(order []int) *State {
		s := New(2)
		insertText(s, 0, 0, 0, 0, "X")
		ol, or := s.NeighborsForVisiblePos(1)
		ops := []change.Op{
			{Counter: 0, Content: change.OpContent{Kind: change.OpTextInsert, Text: "AAA", OriginLeft: ol, OriginRight: or}},
			{Counter: 0, Content: change.OpContent{Kind: change.OpTextInsert, Text: "BBB", OriginLeft: ol, OriginRight: or}},
		}
		peers := []id.PeerID{1, 2}
		for _, i := range order {
			s.Apply(1, peers[i], ops[i])
		}
		return s
	}

	s1 := build([]int{0, 1})
	s2 := build([]int{1, 0})
	require.Equal(t, s1.Value().Str, s2.Value().Str)

	contiguous := func(str, run string) bool {
		i := 0
		for i < len(str) {
			if str[i] == run[0] {
				if i+len(run) > len(str) || str[i:i+len(run)] != run {
					return false
				}
				return true
			}
			i++
		}
		return false
	}
	assert.True(t, contiguous(s1.Value().Str, "AAA"))
	assert.True(t, contiguous(s1.Value().Str, "BBB"))
}

func TestTextDeleteIDAddressed(t *testing.T) {
	s := New(1)
	insertText(s, 0, 0, 0, 0, "Hello")
	s.Apply(1, 0, change.Op{Content: change.OpContent{Kind: change.OpTextDelete, DeleteTarget: id.NewID(0, 1), DeleteLen: 3}})
	assert.Equal(t, "Ho", s.Value().Str)
}

func TestTextMarkAndDelta(t *testing.T) {
	s := New(1)
	insertText(s, 0, 0, 0, 0, "Hello")
	startID := id.NewID(0, 0)
	endID := id.NewID(0, 4)
	s.Apply(1, 0, change.Op{Counter: 5, Content: change.OpContent{
		Kind: change.OpTextMark, MarkKey: "bold", MarkValue: change.BoolValue(true),
		MarkStartID: startID, MarkEndID: endID,
	}})

	delta := s.Delta()
	require.Len(t, delta, 1)
	assert.Equal(t, "Hello", delta[0].Insert)
	assert.Equal(t, true, delta[0].Attributes["bold"].Bool)
}

func TestTextMarkPartialRangeSplitsRuns(t *testing.T) {
	s := New(1)
	insertText(s, 0, 0, 0, 0, "Hello")
	startID := id.NewID(0, 0)
	endID := id.NewID(0, 1) // covers "He"
	s.Apply(1, 0, change.Op{Counter: 5, Content: change.OpContent{
		Kind: change.OpTextMark, MarkKey: "bold", MarkValue: change.BoolValue(true),
		MarkStartID: startID, MarkEndID: endID,
	}})

	delta := s.Delta()
	require.Len(t, delta, 2)
	assert.Equal(t, "He", delta[0].Insert)
	assert.Equal(t, true, delta[0].Attributes["bold"].Bool)
	assert.Equal(t, "llo", delta[1].Insert)
	assert.Nil(t, delta[1].Attributes)
}

func TestTextMarkExpandAfterGrowsOverAppends(t *testing.T) {
	s := New(1)
	insertText(s, 0, 0, 0, 0, "ab")
	s.Apply(1, 0, change.Op{Counter: 2, Content: change.OpContent{
		Kind: change.OpTextMark, MarkKey: "bold", MarkValue: change.BoolValue(true),
		MarkStartID: id.NewID(0, 0), MarkEndID: id.NewID(0, 1),
		ExpandPolicy: change.ExpandAfter,
	}})
	// Appended after the mark: inside the span under ExpandAfter.
	insertText(s, 0, 3, 2, 2, "c")

	delta := s.Delta()
	require.Len(t, delta, 1)
	assert.Equal(t, "abc", delta[0].Insert)
	assert.Equal(t, true, delta[0].Attributes["bold"].Bool)
}

func TestTextMarkExpandNoneExcludesAppends(t *testing.T) {
	s := New(1)
	insertText(s, 0, 0, 0, 0, "ab")
	s.Apply(1, 0, change.Op{Counter: 2, Content: change.OpContent{
		Kind: change.OpTextMark, MarkKey: "bold", MarkValue: change.BoolValue(true),
		MarkStartID: id.NewID(0, 0), MarkEndID: id.NewID(0, 1),
		ExpandPolicy: change.ExpandNone,
	}})
	insertText(s, 0, 3, 2, 2, "c")

	delta := s.Delta()
	require.Len(t, delta, 2)
	assert.Equal(t, "ab", delta[0].Insert)
	assert.Equal(t, "c", delta[1].Insert)
	assert.Nil(t, delta[1].Attributes)
}

func TestTextSnapshotRoundTrip(t *testing.T) {
	s := New(1)
	insertText(s, 0, 0, 0, 0, "Hello")
	s.Apply(1, 0, change.Op{Counter: 5, Content: change.OpContent{
		Kind: change.OpTextMark, MarkKey: "bold", MarkValue: change.BoolValue(true),
		MarkStartID: id.NewID(0, 0), MarkEndID: id.NewID(0, 1),
	}})

	blob := s.EncodeSnapshot()
	s2 := New(1)
	require.NoError(t, s2.DecodeSnapshot(blob))
	assert.Equal(t, s.Value(), s2.Value())
	assert.Equal(t, s.Delta(), s2.Delta())
}
