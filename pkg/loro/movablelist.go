package loro

import (
	"fmt"

	"github.com/loro-dev/loro-go/internal/change"
)

// MovableList is a handle onto a movable-list container: elements keep a
// stable identity across Move/Set, unlike List's plain insert/delete.
type MovableList struct{ handle }

// Len returns the number of currently visible elements.
func (h *MovableList) Len() int { return h.movableListState().Len() }

// Get returns the value at visible position pos, or the Null value if pos
// is out of range.
func (h *MovableList) Get(pos int) change.Value {
	v := h.movableListState().Value()
	if pos < 0 || pos >= len(v.List) {
		return change.NullValue()
	}
	return v.List[pos]
}

// Values returns every currently visible element, in order.
func (h *MovableList) Values() []change.Value { return h.movableListState().Value().List }

// Insert inserts value at visible position pos (0 <= pos <= Len()).
func (h *MovableList) Insert(pos int, value change.Value) error {
	if pos < 0 || pos > h.Len() {
		return fmt.Errorf("loro: movable list insert position %d out of bounds", pos)
	}
	return h.doc.withTxn("movablelist.insert", func(t *Txn) {
		ms := h.movableListState()
		ol, or := ms.NeighborsForVisiblePos(pos)
		content := change.OpContent{Kind: change.OpListInsert, Pos: pos, Value: value, OriginLeft: ol, OriginRight: or}
		t.appendOp(h.cid, h.idx, content)
	})
}

// Push appends value to the end of the list.
func (h *MovableList) Push(value change.Value) error { return h.Insert(h.Len(), value) }

// Delete removes the n elements starting at pos.
func (h *MovableList) Delete(pos, n int) error {
	if n <= 0 {
		return nil
	}
	return h.doc.withTxn("movablelist.delete", func(t *Txn) {
		ms := h.movableListState()
		elemID, ok := ms.ElemIDAtVisiblePos(pos)
		if !ok {
			return
		}
		content := change.OpContent{Kind: change.OpListDelete, Pos: pos, DeleteLen: n, DeleteTarget: elemID}
		t.appendOp(h.cid, h.idx, content)
	})
}

// Move relocates the element currently at fromPos to toPos, resolved by
// last-writer-wins against any concurrent move of the same element.
func (h *MovableList) Move(fromPos, toPos int) error {
	return h.doc.withTxn("movablelist.move", func(t *Txn) {
		ms := h.movableListState()
		elemID, ok := ms.ElemIDAtVisiblePos(fromPos)
		if !ok {
			return
		}
		content := change.OpContent{Kind: change.OpListMove, FromID: elemID, ToPos: toPos}
		t.appendOp(h.cid, h.idx, content)
	})
}

// Set overwrites the value of the element currently at pos, resolved by
// last-writer-wins against any concurrent Set of the same element.
func (h *MovableList) Set(pos int, value change.Value) error {
	return h.doc.withTxn("movablelist.set", func(t *Txn) {
		ms := h.movableListState()
		elemID, ok := ms.ElemIDAtVisiblePos(pos)
		if !ok {
			return
		}
		content := change.OpContent{Kind: change.OpListSet, ElemID: elemID, Value: value}
		t.appendOp(h.cid, h.idx, content)
	})
}
