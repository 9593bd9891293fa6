// Package rangetree provides a generic, randomized balanced tree
// (a treap) over a sequence of elements that each report their own length,
// giving O(log n) positional lookup and O(k log n) range operations
// without committing callers to one specific tree shape — the abstract
// interval-tree role the sequence containers need. Text, List and MovableList
// all thread their RGA-ordered elements through one of these, and keep a
// stable Handle to each element so that RGA integration (which reasons
// about specific element ids, not positions) can recover an element's
// current position in O(log n) via parent pointers instead of a linear
// scan.
package rangetree

import "math/rand"

// Element is anything that can live in a rangetree: it must report how
// many index units it occupies (its "length" — e.g. 1 for a live
// character/item, 0 once tombstoned).
type Element interface {
	Len() int
}

// Handle is an opaque, stable reference to a specific element previously
// inserted into a Tree. It remains valid (and cheap to re-locate) across
// any number of further inserts/removals elsewhere in the tree.
type Handle[E Element] *node[E]

type node[E Element] struct {
	elem        E
	priority    uint32
	left, right *node[E]
	parent      *node[E]
	subtreeLen  int
	subtreeSize int
}

func (n *node[E]) len() int {
	if n == nil {
		return 0
	}
	return n.subtreeLen
}

func (n *node[E]) size() int {
	if n == nil {
		return 0
	}
	return n.subtreeSize
}

func (n *node[E]) update() {
	n.subtreeLen = n.elem.Len() + n.left.len() + n.right.len()
	n.subtreeSize = 1 + n.left.size() + n.right.size()
}

func setChild[E Element](parent *node[E], child *node[E], isLeft bool) {
	if isLeft {
		parent.left = child
	} else {
		parent.right = child
	}
	if child != nil {
		child.parent = parent
	}
}

// Tree is an ordered sequence of elements supporting O(log n) insert-at,
// remove, len-prefix-sum and handle-to-index queries.
type Tree[E Element] struct {
	root *node[E]
	rnd  *rand.Rand
}

// New returns an empty tree. seed makes iteration order reproducible for
// tests; production callers should vary it (e.g. from a peer id) so
// different replicas don't share identical treap shapes for no reason —
// shape doesn't affect the sequence's logical content, only balance.
func New[E Element](seed int64) *Tree[E] {
	return &Tree[E]{rnd: rand.New(rand.NewSource(seed))}
}

// Len returns the sum of Len() across every element in the tree.
func (t *Tree[E]) Len() int { return t.root.len() }

// Size returns the number of elements stored, regardless of their Len().
func (t *Tree[E]) Size() int { return t.root.size() }

func mergeNodes[E Element](left, right *node[E]) *node[E] {
	if left == nil {
		if right != nil {
			right.parent = nil
		}
		return right
	}
	if right == nil {
		left.parent = nil
		return left
	}
	if left.priority > right.priority {
		setChild(left, mergeNodes(left.right, right), false)
		left.parent = nil
		left.update()
		return left
	}
	setChild(right, mergeNodes(left, right.left), true)
	right.parent = nil
	right.update()
	return right
}

// splitBySize splits n into [0,k) and [k,size) by element count.
func splitBySize[E Element](n *node[E], k int) (*node[E], *node[E]) {
	if n == nil {
		return nil, nil
	}
	leftSize := n.left.size()
	if k <= leftSize {
		l, r := splitBySize(n.left, k)
		setChild(n, r, true)
		n.parent = nil
		n.update()
		return l, n
	}
	l, r := splitBySize(n.right, k-leftSize-1)
	setChild(n, l, false)
	n.parent = nil
	n.update()
	return n, r
}

// InsertAt inserts elem so that it becomes the element at position idx
// (0-based, counting elements not Len units) and returns a stable handle
// to it.
func (t *Tree[E]) InsertAt(idx int, elem E) Handle[E] {
	l, r := splitBySize(t.root, idx)
	mid := &node[E]{elem: elem, priority: t.rnd.Uint32()}
	mid.update()
	t.root = mergeNodes(mergeNodes(l, mid), r)
	return Handle[E](mid)
}

// At returns the element at position idx.
func (t *Tree[E]) At(idx int) E {
	n := t.root
	for n != nil {
		leftSize := n.left.size()
		if idx < leftSize {
			n = n.left
			continue
		}
		if idx == leftSize {
			return n.elem
		}
		idx -= leftSize + 1
		n = n.right
	}
	var zero E
	return zero
}

// ValueOf returns the element a handle currently refers to.
func (t *Tree[E]) ValueOf(h Handle[E]) E { return (*node[E])(h).elem }

// SetValue replaces the element a handle refers to, keeping the handle
// valid.
func (t *Tree[E]) SetValue(h Handle[E], elem E) {
	n := (*node[E])(h)
	n.elem = elem
	for cur := n; cur != nil; cur = cur.parent {
		cur.update()
	}
}

// IndexOf returns the current position of the element h refers to, plus
// the Len-unit offset of that position — both computed in O(log n) by
// walking parent pointers from the handle to the root.
func (t *Tree[E]) IndexOf(h Handle[E]) (idx int, lenOffset int) {
	n := (*node[E])(h)
	idx = n.left.size()
	lenOffset = n.left.len()
	for cur := n; cur.parent != nil; cur = cur.parent {
		if cur.parent.right == cur {
			idx += cur.parent.left.size() + 1
			lenOffset += cur.parent.left.len() + cur.parent.elem.Len()
		}
	}
	return idx, lenOffset
}

// Remove deletes the element h refers to from the tree and returns it. The
// handle must not be used again afterwards.
func (t *Tree[E]) Remove(h Handle[E]) E {
	idx, _ := t.IndexOf(h)
	return t.RemoveAt(idx)
}

// RemoveAt removes and returns the element at position idx.
func (t *Tree[E]) RemoveAt(idx int) E {
	l, midAndRight := splitBySize(t.root, idx)
	mid, r := splitBySize(midAndRight, 1)
	t.root = mergeNodes(l, r)
	return mid.elem
}

// Each calls f for every element in order. Stops early if f returns false.
func (t *Tree[E]) Each(f func(idx int, elem E) bool) {
	i := 0
	var walk func(n *node[E]) bool
	walk = func(n *node[E]) bool {
		if n == nil {
			return true
		}
		if !walk(n.left) {
			return false
		}
		if !f(i, n.elem) {
			return false
		}
		i++
		return walk(n.right)
	}
	walk(t.root)
}

// LenOffsetAt returns the sum of Len() over all elements strictly before
// position idx.
func (t *Tree[E]) LenOffsetAt(idx int) int {
	n := t.root
	offset := 0
	for n != nil {
		leftSize := n.left.size()
		if idx < leftSize {
			n = n.left
			continue
		}
		offset += n.left.len()
		if idx == leftSize {
			return offset
		}
		offset += n.elem.Len()
		idx -= leftSize + 1
		n = n.right
	}
	return offset
}

// FindByLenOffset returns the index of the element whose [cumulative-len,
// cumulative-len+Len()) range contains Len-unit offset target, plus the
// offset within that element. If target is at or beyond the tree's total
// length, returns (Size(), 0).
func (t *Tree[E]) FindByLenOffset(target int) (idx int, withinElem int) {
	n := t.root
	idxBase := 0
	lenBase := 0
	for n != nil {
		leftLen := n.left.len()
		leftSize := n.left.size()
		if target < lenBase+leftLen {
			n = n.left
			continue
		}
		elemLen := n.elem.Len()
		if target < lenBase+leftLen+elemLen {
			return idxBase + leftSize, target - lenBase - leftLen
		}
		lenBase += leftLen + elemLen
		idxBase += leftSize + 1
		n = n.right
	}
	return t.Size(), 0
}
