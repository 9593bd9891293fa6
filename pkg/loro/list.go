package loro

import (
	"fmt"

	"github.com/loro-dev/loro-go/internal/change"
)

// List is a handle onto a plain list container (insert/delete only — see
// MovableList for move/set support).
type List struct{ handle }

// Len returns the number of currently visible elements.
func (h *List) Len() int { return h.listState().Len() }

// Get returns the value at visible position pos, or the Null value if pos
// is out of range.
func (h *List) Get(pos int) change.Value {
	v := h.listState().Value()
	if pos < 0 || pos >= len(v.List) {
		return change.NullValue()
	}
	return v.List[pos]
}

// Values returns every currently visible element, in order.
func (h *List) Values() []change.Value { return h.listState().Value().List }

// Insert inserts value at visible position pos (0 <= pos <= Len()).
func (h *List) Insert(pos int, value change.Value) error {
	if pos < 0 || pos > h.Len() {
		return fmt.Errorf("loro: list insert position %d out of bounds", pos)
	}
	return h.doc.withTxn("list.insert", func(t *Txn) {
		ls := h.listState()
		ol, or := ls.NeighborsForVisiblePos(pos)
		content := change.OpContent{Kind: change.OpListInsert, Pos: pos, Value: value, OriginLeft: ol, OriginRight: or}
		t.appendOp(h.cid, h.idx, content)
	})
}

// Push appends value to the end of the list.
func (h *List) Push(value change.Value) error { return h.Insert(h.Len(), value) }

// Delete removes the n elements starting at pos.
func (h *List) Delete(pos, n int) error {
	if n <= 0 {
		return nil
	}
	return h.doc.withTxn("list.delete", func(t *Txn) {
		ls := h.listState()
		target, ok := ls.IDAtVisiblePos(pos)
		if !ok {
			return
		}
		content := change.OpContent{Kind: change.OpListDelete, Pos: pos, DeleteLen: n, DeleteTarget: target}
		t.appendOp(h.cid, h.idx, content)
	})
}

// InsertContainer inserts a new, empty container of kind at pos and
// returns its id, so the caller can resolve a typed handle onto it via
// Document.TextAt/ListAt/etc.
func (h *List) InsertContainer(pos int, kind change.ContainerKind) (change.ContainerID, error) {
	if pos < 0 || pos > h.Len() {
		return change.ContainerID{}, fmt.Errorf("loro: list insert position %d out of bounds", pos)
	}
	var childCID change.ContainerID
	err := h.doc.withTxn("list.insertContainer", func(t *Txn) {
		ls := h.listState()
		ol, or := ls.NeighborsForVisiblePos(pos)
		childCID = change.NormalContainerID(t.peer, t.nextCounter, kind)
		content := change.OpContent{Kind: change.OpListInsert, Pos: pos, Value: change.ContainerValue(childCID), OriginLeft: ol, OriginRight: or}
		t.appendOp(h.cid, h.idx, content)
	})
	if err != nil {
		return change.ContainerID{}, err
	}
	h.doc.ensureContainer(childCID)
	return childCID, nil
}
