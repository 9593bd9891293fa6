// Package ifc defines the shared contract every container algorithm
// (text, list, movable list, map, tree, counter) implements, and the
// user-facing Diff/Event shapes the diff calculator emits from it. Kept in
// its own package so that internal/state (the orchestrator) and
// internal/containers/* (the six algorithms) can both depend on it without
// a cycle.
package ifc

import (
	"github.com/loro-dev/loro-go/internal/change"
	"github.com/loro-dev/loro-go/internal/id"
)

// ContainerState is the capability every container algorithm implements:
// apply an op minted locally or replayed from the log, read out the
// current materialized value, and (de)serialize a self-contained snapshot
// fragment.
type ContainerState interface {
	Kind() change.ContainerKind

	// Apply applies a single op (already known to be causally ready) to
	// the container, mutating its state and returning the user-facing
	// Diff the op produced. Applying the same op id twice must be a no-op
	// returning a nil Diff (idempotence).
	Apply(lamport id.Lamport, peer id.PeerID, op change.Op) Diff

	// Value returns the container's current materialized value.
	Value() change.Value

	// ChildContainers returns the ids of containers directly nested
	// inside this one's current (live) value.
	ChildContainers() []change.ContainerID

	// EncodeSnapshot serializes the container's full state (not the op
	// history) to a self-contained byte blob.
	EncodeSnapshot() []byte

	// DecodeSnapshot replaces the container's state with the snapshot
	// encoded by a prior EncodeSnapshot call.
	DecodeSnapshot([]byte) error

	// Fork returns a deep copy of the container state, used when
	// replaying from scratch during Checkout and when forking a document.
	Fork() ContainerState
}

// DiffKind discriminates the per-container Diff variants.
type DiffKind uint8

const (
	DiffNone DiffKind = iota
	DiffText
	DiffList
	DiffMovableList
	DiffMap
	DiffTree
	DiffCounter
	DiffReset // whole-container value replaced (used by Checkout)
)

// Diff is the user-facing event produced by applying one op (or, for
// Checkout, reconciling a whole container). It is intentionally a single
// flat struct rather than an interface hierarchy: callers switch on Kind
// and read the fields relevant to it, mirroring the tagged-variant style
// used for Op/Value.
type Diff struct {
	Kind DiffKind

	// Text
	TextInsertPos int
	TextInsertStr string
	TextDeletePos int
	TextDeleteLen int
	MarkStart     int
	MarkEnd       int
	MarkKey       string
	MarkValue     change.Value

	// List / MovableList
	ListInsertPos   int
	ListInsertValue change.Value
	ListDeletePos   int
	ListDeleteLen   int
	MoveFromPos     int
	MoveToPos       int
	SetPos          int
	SetValue        change.Value

	// Map
	MapKey      string
	MapValue    change.Value
	MapIsDelete bool

	// Tree
	TreeTarget      change.TreeID
	TreeParent      change.TreeID
	TreeHasParent   bool
	TreeIsDelete    bool
	TreeFractIndex  string

	// Counter
	CounterDelta float64

	// Reset carries the whole new value, used by Checkout.
	ResetValue change.Value
}

// IsZero reports whether d carries no event (DiffKind == DiffNone), used
// by callers to skip no-op applications (e.g. re-applying an id already
// seen).
func (d Diff) IsZero() bool { return d.Kind == DiffNone }
