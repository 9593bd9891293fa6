// Package state is the orchestrator that sits between the oplog and the
// container algorithms: it owns the dense ContainerIdx -> ContainerState
// table (parent pointers are indices, not owning references), materializes
// container state by replaying ops from the log, collects the Diffs that
// applying ops produces (a checkout reports a whole-container reset for
// every materialized container instead of a computed delta), and
// dispatches the resulting DocDiffs to subscribers.
package state

import (
	"github.com/loro-dev/loro-go/internal/change"
	"github.com/loro-dev/loro-go/internal/containers/counter"
	"github.com/loro-dev/loro-go/internal/containers/ifc"
	"github.com/loro-dev/loro-go/internal/containers/list"
	"github.com/loro-dev/loro-go/internal/containers/mapcrdt"
	"github.com/loro-dev/loro-go/internal/containers/movablelist"
	"github.com/loro-dev/loro-go/internal/containers/text"
	"github.com/loro-dev/loro-go/internal/containers/tree"
)

// newContainerState builds a fresh, empty container algorithm for kind —
// the factory half of the registry/arena pattern: the caller already has
// a ContainerIdx from change.Registry, this just mints the state object
// that index points at.
func newContainerState(kind change.ContainerKind) ifc.ContainerState {
	switch kind {
	case change.KindText:
		return text.New(1)
	case change.KindList:
		return list.New(1)
	case change.KindMovableList:
		return movablelist.New(1)
	case change.KindMap:
		return mapcrdt.New()
	case change.KindTree:
		return tree.New()
	case change.KindCounter:
		return counter.New()
	default:
		panic("state: unknown container kind")
	}
}
