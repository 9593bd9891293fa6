package loro

import (
	"fmt"

	"github.com/loro-dev/loro-go/internal/change"
	"github.com/loro-dev/loro-go/internal/errs"
	"github.com/loro-dev/loro-go/internal/id"
)

// Tree is a handle onto a movable-tree container: nodes keep a stable
// identity while their parent and sibling order change via Move.
type Tree struct{ handle }

// Children returns the live children of parent, ordered by fractional
// index. A nil parent means the top-level nodes.
func (h *Tree) Children(parent *change.TreeID) []change.TreeID {
	if parent == nil {
		return h.treeState().Children(change.TreeID{}, false)
	}
	return h.treeState().Children(*parent, true)
}

// Exists reports whether target has ever been created.
func (h *Tree) Exists(target change.TreeID) bool { return h.treeState().Exists(target) }

// IsDeleted reports whether target currently sits under the trash parent.
func (h *Tree) IsDeleted(target change.TreeID) bool { return h.treeState().IsDeleted(target) }

// CreateNode creates a new node under parent (nil for a top-level node) at
// sibling position index (appending at the end if index >= the current
// child count) and returns its stable id.
func (h *Tree) CreateNode(parent *change.TreeID, index int) (change.TreeID, error) {
	var newID change.TreeID
	err := h.doc.withTxn("tree.createNode", func(t *Txn) {
		ts := h.treeState()
		hasParent := parent != nil
		var p change.TreeID
		if hasParent {
			p = *parent
		}
		fract := ts.FractIndexForChildAt(p, hasParent, index)
		newID = id.NewID(t.peer, t.nextCounter)
		content := change.OpContent{
			Kind: change.OpTreeMove, Target: newID, Parent: p, HasParent: hasParent, FractIndex: string(fract),
		}
		t.appendOp(h.cid, h.idx, content)
	})
	if err != nil {
		return change.TreeID{}, err
	}
	return newID, nil
}

// Move relocates target to sibling position index under parent (nil for
// top-level), resolved by last-writer-wins against any concurrent move of
// the same node. Refuses (at Apply time, as a silent no-op diff) a move
// that would make target its own ancestor.
func (h *Tree) Move(target change.TreeID, parent *change.TreeID, index int) error {
	if !h.Exists(target) {
		return errs.New(errs.TreeNodeNotExist, fmt.Sprintf("tree node %s does not exist", target))
	}
	return h.doc.withTxn("tree.move", func(t *Txn) {
		ts := h.treeState()
		hasParent := parent != nil
		var p change.TreeID
		if hasParent {
			p = *parent
		}
		fract := ts.FractIndexForChildAt(p, hasParent, index)
		content := change.OpContent{
			Kind: change.OpTreeMove, Target: target, Parent: p, HasParent: hasParent, FractIndex: string(fract),
		}
		t.appendOp(h.cid, h.idx, content)
	})
}

// Delete moves target under the reserved trash parent. A later Move can
// resurrect it.
func (h *Tree) Delete(target change.TreeID) error {
	return h.doc.withTxn("tree.delete", func(t *Txn) {
		content := change.OpContent{Kind: change.OpTreeDelete, Target: target}
		t.appendOp(h.cid, h.idx, content)
	})
}

// Meta returns a handle onto target's metadata map — every tree node
// implicitly owns one, named after its own creation id, matching
// tree.State.ChildContainers's convention of exposing node data as a
// nested Map container.
func (h *Tree) Meta(target change.TreeID) *Map {
	cid := change.NormalContainerID(target.Peer, target.Counter, change.KindMap)
	idx := h.doc.ensureContainer(cid)
	return &Map{handle{doc: h.doc, idx: idx, cid: cid}}
}
