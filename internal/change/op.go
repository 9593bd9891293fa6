package change

import "github.com/loro-dev/loro-go/internal/id"

// OpKind discriminates the op content variants across every container.
type OpKind uint8

const (
	// Text
	OpTextInsert OpKind = iota
	OpTextDelete
	OpTextMark
	OpTextMarkEnd
	// List
	OpListInsert
	OpListDelete
	// MovableList (adds Move/Set on top of List's Insert/Delete)
	OpListMove
	OpListSet
	// Map
	OpMapInsert
	// Tree
	OpTreeMove
	OpTreeDelete
	// Counter
	OpCounterIncrement
)

// ExpandPolicy controls whether a rich-text mark's range grows when new
// characters are inserted at its boundary.
type ExpandPolicy uint8

const (
	ExpandNone ExpandPolicy = iota
	ExpandBefore
	ExpandAfter
	ExpandBoth
)

// TreeID identifies a node in a movable-tree container: the id of the op
// that created it.
type TreeID = id.ID

// OpContent is the tagged-variant payload of a single Op. Exactly the
// fields relevant to Kind are populated; callers switch on Kind.
type OpContent struct {
	Kind OpKind

	// Text: Insert(Pos, Text), Delete(Span), Mark(start,end,key,value,expand), MarkEnd
	Pos          int
	Text         string
	DeleteLen    int
	MarkStart    int
	MarkEnd      int
	// MarkStartID/MarkEndID pin a mark's boundaries to the character ids at
	// its start/end at authoring time (id.NullID meaning "start of text" /
	// "end of text" respectively), the same anchoring idea OriginLeft /
	// OriginRight use for inserts. MarkStart/MarkEnd are kept only as the
	// author's own position hint.
	MarkStartID  id.ID
	MarkEndID    id.ID
	MarkKey      string
	MarkValue    Value
	ExpandPolicy ExpandPolicy
	AllowOverlap bool

	// DeleteTarget names the id of the first element removed by a
	// Text/List/MovableList delete; DeleteLen further elements follow it at
	// DeleteTarget.Counter+1, +2, ... on the same peer (a delete always
	// spans one contiguous originally-inserted run, same as Insert does).
	// Deletes are id-addressed rather than position-addressed so replay
	// converges regardless of concurrent edits shifting positions.
	DeleteTarget id.ID

	// OriginLeft/OriginRight pin a Text/List/MovableList insert to the ids
	// of its immediate left/right neighbours in the author's sequence at
	// authoring time (id.NullID meaning "start of sequence" / "end of
	// sequence"). Every replica integrates the insert relative to these
	// anchors rather than Pos, so concurrent inserts converge regardless of
	// delivery order; Pos is kept only as the author's own hint and for
	// single-writer fast paths.
	OriginLeft  id.ID
	OriginRight id.ID

	// List/MovableList: Insert(Pos, Value), Delete(DeleteTarget, DeleteLen)
	Value Value

	// MovableList: Move(FromID, ToPos), Set(ElemID, Value)
	FromID id.ID
	ToPos  int
	ElemID id.ID

	// Map: Insert(Key, Value) — a present Value with Kind==KindNull and
	// MapDeleted set represents a tombstone write.
	Key        string
	MapDeleted bool

	// Tree: Move(Target, Parent?, FractionalIndex)
	Target       TreeID
	Parent       TreeID
	HasParent    bool
	FractIndex   string
	TreeDeleted  bool // true when this Move targets the reserved deleted-parent

	// Counter: Increment(Delta)
	Delta float64
}

// Op is a single operation within a Change: its container, its counter
// (local to the owning peer, contiguous within the Change), and its
// content.
type Op struct {
	Container ContainerIdx
	Counter   Counter
	Content   OpContent
}

// Len returns how many counter slots this op consumes — 1 for everything
// except text insert and text/list delete, which span the length of the
// inserted/deleted run so that id arithmetic (IdSpan slicing) lines up with
// the characters/elements actually touched.
func (o Op) Len() int {
	switch o.Content.Kind {
	case OpTextInsert:
		return runeLen(o.Content.Text)
	case OpTextDelete, OpListDelete:
		return o.Content.DeleteLen
	default:
		return 1
	}
}

func runeLen(s string) int {
	n := 0
	for range s {
		n++
	}
	return n
}

// SliceFrom returns the tail of o starting at the given span-relative
// offset, used when an imported change partially overlaps the receiver's
// version vector and the non-overlapping suffix must be sliced off. peer
// is the owning change's peer, needed to rebuild the
// continuation's own id-derived fields. Only Text insert and Text/List
// delete — the only op kinds with Len() > 1 — support a non-zero offset; every
// other kind occupies exactly one counter slot, so the caller never needs
// to slice into it.
func (o Op) SliceFrom(peer id.PeerID, offset int) Op {
	if offset <= 0 {
		return o
	}
	out := o
	out.Counter = o.Counter + Counter(offset)
	switch o.Content.Kind {
	case OpTextInsert:
		runes := []rune(o.Content.Text)
		out.Content.Text = string(runes[offset:])
		out.Content.OriginLeft = id.NewID(peer, o.Counter+Counter(offset)-1)
	case OpTextDelete, OpListDelete:
		out.Content.DeleteLen = o.Content.DeleteLen - offset
		out.Content.DeleteTarget = id.NewID(o.Content.DeleteTarget.Peer, o.Content.DeleteTarget.Counter+Counter(offset))
	default:
		panic("change: SliceFrom called with non-zero offset on a single-slot op")
	}
	return out
}

// SliceTo returns the head of o covering its first n counter slots, the
// mirror of SliceFrom used when an export must stop at a version-vector
// boundary that lands inside a multi-slot op.
func (o Op) SliceTo(n int) Op {
	if n >= o.Len() {
		return o
	}
	out := o
	switch o.Content.Kind {
	case OpTextInsert:
		runes := []rune(o.Content.Text)
		out.Content.Text = string(runes[:n])
	case OpTextDelete, OpListDelete:
		out.Content.DeleteLen = n
	default:
		panic("change: SliceTo called with a partial length on a single-slot op")
	}
	return out
}
