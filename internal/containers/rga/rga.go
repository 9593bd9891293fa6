// Package rga implements the ordering engine shared by the Text, List and
// MovableList containers: a sequence of items, each carrying the id of its
// immediate left/right neighbour at authoring time, integrated by the
// Fugue rule — an item whose origin-right lies inside its origin-left's
// subtree binds tighter (it joins the origin-right's subtree), same-side
// siblings order by (lamport desc, peer asc), and a sibling's subtree
// travels with it — so concurrent inserts converge with no cross-author
// interleaving regardless of delivery order. It sits on top of
// internal/rangetree for O(log n) position <-> id translation.
package rga

import (
	"sort"

	"github.com/loro-dev/loro-go/internal/id"
	"github.com/loro-dev/loro-go/internal/rangetree"
)

// Item is one entry in the sequence: a value plus the neighbour anchors
// captured when it was inserted. Parent/Side place the item in the Fugue
// tree; they are derived from the anchors at integration time and never
// serialized.
type Item[V any] struct {
	ID          id.ID
	Lamport     id.Lamport
	OriginLeft  id.ID
	OriginRight id.ID
	Deleted     bool
	Value       V

	Parent id.ID
	Side   int8 // sideLeft or sideRight
}

const (
	sideLeft  int8 = -1
	sideRight int8 = 1
)

// Len makes Item[V] a rangetree.Element: deleted items occupy no visible
// slots but stay in the tree as tombstones, preserving their position for
// future anchor lookups.
func (it Item[V]) Len() int {
	if it.Deleted {
		return 0
	}
	return 1
}

// Sequence is an RGA-ordered run of items addressable both by visible
// position and by item id.
type Sequence[V any] struct {
	tree *rangetree.Tree[Item[V]]
	byID map[id.ID]rangetree.Handle[Item[V]]
}

// NewSequence returns an empty sequence. seed only affects tree balance.
func NewSequence[V any](seed int64) *Sequence[V] {
	return &Sequence[V]{
		tree: rangetree.New[Item[V]](seed),
		byID: make(map[id.ID]rangetree.Handle[Item[V]]),
	}
}

// Len returns the number of live (non-deleted) items.
func (s *Sequence[V]) Len() int { return s.tree.Len() }

// Has reports whether id has ever been integrated into this sequence.
func (s *Sequence[V]) Has(target id.ID) bool {
	_, ok := s.byID[target]
	return ok
}

// ItemByID returns the item currently stored under target, if any.
func (s *Sequence[V]) ItemByID(target id.ID) (Item[V], bool) {
	h, ok := s.byID[target]
	if !ok {
		var zero Item[V]
		return zero, false
	}
	return s.tree.ValueOf(h), true
}

// IndexOf returns the current tree-order index of target (a live item or a
// tombstone), or -1 if target is id.NullID or has never been integrated.
// Unlike VisiblePosOf this counts tombstones, giving a stable total order
// usable for anchoring rich-text mark boundaries to specific ids.
func (s *Sequence[V]) IndexOf(target id.ID) int { return s.treeIndexOf(target) }

func (s *Sequence[V]) treeIndexOf(target id.ID) int {
	if target.IsNull() {
		return -1
	}
	h, ok := s.byID[target]
	if !ok {
		return -1
	}
	idx, _ := s.tree.IndexOf(h)
	return idx
}

// NeighborsForVisiblePos returns the origin-left/origin-right anchors for
// an insert landing at visible position p (0 <= p <= Len()).
func (s *Sequence[V]) NeighborsForVisiblePos(p int) (originLeft, originRight id.ID) {
	idx, _ := s.tree.FindByLenOffset(p)
	if idx > 0 {
		originLeft = s.tree.At(idx - 1).ID
	} else {
		originLeft = id.NullID
	}
	if idx < s.tree.Size() {
		originRight = s.tree.At(idx).ID
	} else {
		originRight = id.NullID
	}
	return originLeft, originRight
}

// VisiblePosOf returns the visible-position offset of the item currently
// holding target (for a tombstone, the number of visible items before it),
// or Len() if target is unknown.
func (s *Sequence[V]) VisiblePosOf(target id.ID) int {
	h, ok := s.byID[target]
	if !ok {
		return s.Len()
	}
	_, lenOffset := s.tree.IndexOf(h)
	return lenOffset
}

// NearestAliveVisiblePos resolves target — possibly a tombstoned item — to
// the visible position a cursor anchored on it should rebase to: the
// visible position of the nearest item at or after target in tree order
// that is still live, or Len() if everything from target onward has been
// deleted. ok is false only if target was never integrated into this
// sequence at all.
func (s *Sequence[V]) NearestAliveVisiblePos(target id.ID) (pos int, ok bool) {
	h, exists := s.byID[target]
	if !exists {
		return 0, false
	}
	treeIdx, _ := s.tree.IndexOf(h)
	visible := 0
	found := -1
	s.tree.Each(func(i int, it Item[V]) bool {
		if i < treeIdx {
			if !it.Deleted {
				visible++
			}
			return true
		}
		if !it.Deleted {
			found = visible
			return false
		}
		return true
	})
	if found == -1 {
		found = visible
	}
	return found, true
}

// bindsFirst reports whether a sibling authored under (aLam, aID) sorts
// before one authored under (bLam, bID) within the same side of the same
// Fugue parent: lamport desc, then peer asc, then counter asc.
func bindsFirst(aLam id.Lamport, aID id.ID, bLam id.Lamport, bID id.ID) bool {
	if aLam != bLam {
		return aLam > bLam
	}
	if aID.Peer != bID.Peer {
		return aID.Peer < bID.Peer
	}
	return aID.Counter < bID.Counter
}

// isDescendant reports whether a lies strictly inside b's Fugue subtree.
func (s *Sequence[V]) isDescendant(a, b id.ID) bool {
	for {
		it, ok := s.ItemByID(a)
		if !ok || it.Parent.IsNull() {
			return false
		}
		if it.Parent == b {
			return true
		}
		a = it.Parent
	}
}

// subtreeEnd returns the tree index just past x's Fugue subtree.
func (s *Sequence[V]) subtreeEnd(x id.ID) int {
	i := s.treeIndexOf(x) + 1
	for i < s.tree.Size() && s.isDescendant(s.tree.At(i).ID, x) {
		i++
	}
	return i
}

// subtreeStart returns the tree index of the first item in x's Fugue
// subtree (x's leftmost left-descendant, or x itself).
func (s *Sequence[V]) subtreeStart(x id.ID) int {
	i := s.treeIndexOf(x)
	for i > 0 && s.isDescendant(s.tree.At(i-1).ID, x) {
		i--
	}
	return i
}

// childRootUnder resolves the item at some tree position to the root of
// the Fugue subtree it belongs to among parent's direct children, by
// walking its parent chain. ok is false when the item does not descend
// from parent at all.
func (s *Sequence[V]) childRootUnder(target, parent id.ID) (id.ID, bool) {
	cur := target
	for {
		it, ok := s.ItemByID(cur)
		if !ok {
			return id.NullID, false
		}
		if it.Parent == parent {
			return cur, true
		}
		if it.Parent.IsNull() {
			return id.NullID, false
		}
		cur = it.Parent
	}
}

// Integrate places a new item with the given anchors into the sequence
// using the Fugue rule. The anchors pick the item's tree position: it
// becomes a right child of its origin-left unless the origin-right lies
// inside the origin-left's subtree (the tighter binding), in which case
// it becomes a left child of the origin-right. Same-side siblings of one
// parent are ordered by (lamport desc, peer asc), and a sibling's whole
// subtree travels with it, so two authors' concurrent runs never
// interleave. The subtree walks are linear scans; a real deployment
// would maintain subtree extents in the balanced tree. Returns the tree
// index the item landed at.
func (s *Sequence[V]) Integrate(itemID id.ID, lamport id.Lamport, originLeft, originRight id.ID, value V) int {
	lKnown := !originLeft.IsNull() && s.Has(originLeft)
	rKnown := !originRight.IsNull() && s.Has(originRight)

	var parent id.ID
	var side int8
	switch {
	case lKnown && (!rKnown || !s.isDescendant(originRight, originLeft)):
		parent, side = originLeft, sideRight
	case rKnown:
		parent, side = originRight, sideLeft
	default:
		parent, side = id.NullID, sideRight
	}

	var dest, limit int
	if side == sideRight {
		dest = s.treeIndexOf(parent) + 1 // -1 + 1 = 0 for the virtual root
		limit = s.tree.Size()
	} else {
		dest = s.subtreeStart(parent)
		limit = s.treeIndexOf(parent)
	}
	for dest < limit {
		root, ok := s.childRootUnder(s.tree.At(dest).ID, parent)
		if !ok {
			break // left parent's region entirely
		}
		sib, _ := s.ItemByID(root)
		if sib.Side != side {
			break
		}
		if !bindsFirst(sib.Lamport, sib.ID, lamport, itemID) {
			break
		}
		dest = s.subtreeEnd(root)
	}

	item := Item[V]{
		ID: itemID, Lamport: lamport, OriginLeft: originLeft, OriginRight: originRight,
		Value: value, Parent: parent, Side: side,
	}
	h := s.tree.InsertAt(dest, item)
	s.byID[itemID] = h
	return dest
}

// MarkDeleted tombstones target. Returns true if it was already deleted or
// is unknown (both are safe no-ops, keeping delete idempotent).
func (s *Sequence[V]) MarkDeleted(target id.ID) bool {
	h, ok := s.byID[target]
	if !ok {
		return true
	}
	it := s.tree.ValueOf(h)
	if it.Deleted {
		return true
	}
	it.Deleted = true
	s.tree.SetValue(h, it)
	return false
}

// SetValue overwrites the value stored at target without touching its
// position or deleted flag. No-op if target is unknown.
func (s *Sequence[V]) SetValue(target id.ID, value V) {
	h, ok := s.byID[target]
	if !ok {
		return
	}
	it := s.tree.ValueOf(h)
	it.Value = value
	s.tree.SetValue(h, it)
}

// MarkDeletedFromID tombstones the contiguous run of n items starting at
// startID.Counter on startID.Peer, the standard shape of a Text/List
// delete. Returns how many were newly tombstoned (already-tombstoned or
// never-seen ids are silently skipped, keeping deletes idempotent).
func (s *Sequence[V]) MarkDeletedFromID(startID id.ID, n int) int {
	removed := 0
	for i := 0; i < n; i++ {
		target := id.NewID(startID.Peer, startID.Counter+id.Counter(i))
		if !s.MarkDeleted(target) {
			removed++
		}
	}
	return removed
}

// Each visits every live item in visible order.
func (s *Sequence[V]) Each(f func(pos int, it Item[V])) {
	pos := 0
	s.tree.Each(func(_ int, it Item[V]) bool {
		if !it.Deleted {
			f(pos, it)
			pos++
		}
		return true
	})
}

// EachAll visits every item, live or tombstoned, in tree order — used by
// snapshot encoding, which must preserve tombstones for convergence.
func (s *Sequence[V]) EachAll(f func(it Item[V])) {
	s.tree.Each(func(_ int, it Item[V]) bool {
		f(it)
		return true
	})
}

// Rebuild resets the sequence and re-integrates items in causal order.
// Used by snapshot decoding and Fork: integration needs every anchor to
// exist before the items anchored on it, so the items are replayed sorted
// by (lamport, peer, counter) — a valid causal order, since an anchor is
// always causally prior to the insert that references it and therefore
// carries a strictly smaller sort key.
func (s *Sequence[V]) Rebuild(seed int64, items []Item[V]) {
	ordered := append([]Item[V](nil), items...)
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].Lamport != ordered[j].Lamport {
			return ordered[i].Lamport < ordered[j].Lamport
		}
		if ordered[i].ID.Peer != ordered[j].ID.Peer {
			return ordered[i].ID.Peer < ordered[j].ID.Peer
		}
		return ordered[i].ID.Counter < ordered[j].ID.Counter
	})
	s.tree = rangetree.New[Item[V]](seed)
	s.byID = make(map[id.ID]rangetree.Handle[Item[V]], len(items))
	for _, it := range ordered {
		s.Integrate(it.ID, it.Lamport, it.OriginLeft, it.OriginRight, it.Value)
		if it.Deleted {
			s.MarkDeleted(it.ID)
		}
	}
}
