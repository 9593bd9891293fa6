package loro

import (
	"fmt"

	"github.com/loro-dev/loro-go/internal/change"
	"github.com/loro-dev/loro-go/internal/containers/counter"
	"github.com/loro-dev/loro-go/internal/containers/list"
	"github.com/loro-dev/loro-go/internal/containers/mapcrdt"
	"github.com/loro-dev/loro-go/internal/containers/movablelist"
	"github.com/loro-dev/loro-go/internal/containers/text"
	"github.com/loro-dev/loro-go/internal/containers/tree"
)

// handle is the state every container wrapper (Text, List, ...) shares:
// the document it belongs to and the id/idx pair the registry resolved it
// to. Container-specific methods live in their own files, each retrieving
// its concrete internal/containers/* state by type-asserting Container().
type handle struct {
	doc *Document
	idx change.ContainerIdx
	cid change.ContainerID
}

// ID returns the container's identity — a root name or the id of the op
// that created it.
func (h handle) ID() change.ContainerID { return h.cid }

// IsAttached reports whether this handle's container is reachable from a
// root in the document's currently materialized tree, i.e. whether it has
// ever been observed (every handle returned by Document is attached by
// construction; detached handles only arise once a container is deleted
// from its parent, which this engine does not yet track per-handle).
func (h handle) IsAttached() bool {
	_, ok := h.doc.docState.Container(h.idx)
	return ok
}

// GetValue returns the container's current shallow value; nested
// containers appear as references. Document.GetDeepValue resolves them.
func (h handle) GetValue() change.Value {
	st, ok := h.doc.docState.Container(h.idx)
	if !ok {
		return change.NullValue()
	}
	return st.Value()
}

// Parent returns the container whose current value nests this one, if
// any; root containers report no parent.
func (h handle) Parent() (change.ContainerID, bool) {
	if h.cid.IsRoot {
		return change.ContainerID{}, false
	}
	return h.doc.docState.ParentOf(h.cid)
}

// ensureContainer interns (if new) and materializes cid, returning its idx
// — the nested-container counterpart of Document.ensureRoot, used once a
// Map/List/MovableList/Tree op has authored a ContainerValue reference and
// the caller wants a handle onto the container it names.
func (d *Document) ensureContainer(cid change.ContainerID) change.ContainerIdx {
	idx := d.log.Registry().Intern(cid)
	d.docState.EnsureContainer(idx, cid.Kind)
	return idx
}

// Text returns a handle onto the root text container named name, creating
// it (empty) on first reference.
func (d *Document) Text(name string) *Text {
	idx, cid := d.ensureRoot(name, change.KindText)
	return &Text{handle{doc: d, idx: idx, cid: cid}}
}

// List returns a handle onto the root list container named name.
func (d *Document) List(name string) *List {
	idx, cid := d.ensureRoot(name, change.KindList)
	return &List{handle{doc: d, idx: idx, cid: cid}}
}

// MovableList returns a handle onto the root movable-list container named
// name.
func (d *Document) MovableList(name string) *MovableList {
	idx, cid := d.ensureRoot(name, change.KindMovableList)
	return &MovableList{handle{doc: d, idx: idx, cid: cid}}
}

// Map returns a handle onto the root map container named name.
func (d *Document) Map(name string) *Map {
	idx, cid := d.ensureRoot(name, change.KindMap)
	return &Map{handle{doc: d, idx: idx, cid: cid}}
}

// Tree returns a handle onto the root tree container named name.
func (d *Document) Tree(name string) *Tree {
	idx, cid := d.ensureRoot(name, change.KindTree)
	return &Tree{handle{doc: d, idx: idx, cid: cid}}
}

// Counter returns a handle onto the root counter container named name.
func (d *Document) Counter(name string) *Counter {
	idx, cid := d.ensureRoot(name, change.KindCounter)
	return &Counter{handle{doc: d, idx: idx, cid: cid}}
}

// TextAt, ListAt, ... resolve an already-known (typically nested) id into
// a typed handle, failing if the id's Kind doesn't match or it has never
// been interned in this document.

func (d *Document) TextAt(cid change.ContainerID) (*Text, error) {
	idx, err := d.openTyped(cid, change.KindText)
	if err != nil {
		return nil, err
	}
	return &Text{handle{doc: d, idx: idx, cid: cid}}, nil
}

func (d *Document) ListAt(cid change.ContainerID) (*List, error) {
	idx, err := d.openTyped(cid, change.KindList)
	if err != nil {
		return nil, err
	}
	return &List{handle{doc: d, idx: idx, cid: cid}}, nil
}

func (d *Document) MovableListAt(cid change.ContainerID) (*MovableList, error) {
	idx, err := d.openTyped(cid, change.KindMovableList)
	if err != nil {
		return nil, err
	}
	return &MovableList{handle{doc: d, idx: idx, cid: cid}}, nil
}

func (d *Document) MapAt(cid change.ContainerID) (*Map, error) {
	idx, err := d.openTyped(cid, change.KindMap)
	if err != nil {
		return nil, err
	}
	return &Map{handle{doc: d, idx: idx, cid: cid}}, nil
}

func (d *Document) TreeAt(cid change.ContainerID) (*Tree, error) {
	idx, err := d.openTyped(cid, change.KindTree)
	if err != nil {
		return nil, err
	}
	return &Tree{handle{doc: d, idx: idx, cid: cid}}, nil
}

func (d *Document) CounterAt(cid change.ContainerID) (*Counter, error) {
	idx, err := d.openTyped(cid, change.KindCounter)
	if err != nil {
		return nil, err
	}
	return &Counter{handle{doc: d, idx: idx, cid: cid}}, nil
}

func (d *Document) openTyped(cid change.ContainerID, want change.ContainerKind) (change.ContainerIdx, error) {
	if cid.Kind != want {
		return 0, fmt.Errorf("loro: container %s is not a %s", cid, want)
	}
	idx, err := d.resolve(cid)
	if err != nil {
		return 0, err
	}
	d.docState.EnsureContainer(idx, cid.Kind)
	return idx, nil
}

func (h handle) textState() *text.State {
	st, _ := h.doc.docState.Container(h.idx)
	return st.(*text.State)
}

func (h handle) listState() *list.State {
	st, _ := h.doc.docState.Container(h.idx)
	return st.(*list.State)
}

func (h handle) movableListState() *movablelist.State {
	st, _ := h.doc.docState.Container(h.idx)
	return st.(*movablelist.State)
}

func (h handle) mapState() *mapcrdt.State {
	st, _ := h.doc.docState.Container(h.idx)
	return st.(*mapcrdt.State)
}

func (h handle) treeState() *tree.State {
	st, _ := h.doc.docState.Container(h.idx)
	return st.(*tree.State)
}

func (h handle) counterState() *counter.State {
	st, _ := h.doc.docState.Container(h.idx)
	return st.(*counter.State)
}
