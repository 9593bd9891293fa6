package loro

import "github.com/loro-dev/loro-go/internal/change"

// Map is a handle onto an observed-remove map container: one
// last-writer-wins register per key.
type Map struct{ handle }

// Get returns the value at key and whether it is currently present
// (absent both when the key was never written and when its last write
// was a delete).
func (h *Map) Get(key string) (change.Value, bool) {
	v, ok := h.mapState().Value().Map[key]
	return v, ok
}

// Keys returns every currently present key.
func (h *Map) Keys() []string {
	m := h.mapState().Value().Map
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

// Len returns the number of currently present keys.
func (h *Map) Len() int { return len(h.mapState().Value().Map) }

// Set writes value at key.
func (h *Map) Set(key string, value change.Value) error {
	return h.doc.withTxn("map.set", func(t *Txn) {
		content := change.OpContent{Kind: change.OpMapInsert, Key: key, Value: value}
		t.appendOp(h.cid, h.idx, content)
	})
}

// Delete removes key (a tombstone write, not erasure — a concurrent Set
// of the same key still resolves by the normal LWW rule against it).
func (h *Map) Delete(key string) error {
	return h.doc.withTxn("map.delete", func(t *Txn) {
		content := change.OpContent{Kind: change.OpMapInsert, Key: key, Value: change.NullValue(), MapDeleted: true}
		t.appendOp(h.cid, h.idx, content)
	})
}

// SetContainer writes a new, empty container of kind at key and returns
// its id, so the caller can resolve a typed handle onto it via
// Document.TextAt/ListAt/etc.
func (h *Map) SetContainer(key string, kind change.ContainerKind) (change.ContainerID, error) {
	var childCID change.ContainerID
	err := h.doc.withTxn("map.setContainer", func(t *Txn) {
		childCID = change.NormalContainerID(t.peer, t.nextCounter, kind)
		content := change.OpContent{Kind: change.OpMapInsert, Key: key, Value: change.ContainerValue(childCID)}
		t.appendOp(h.cid, h.idx, content)
	})
	if err != nil {
		return change.ContainerID{}, err
	}
	h.doc.ensureContainer(childCID)
	return childCID, nil
}
