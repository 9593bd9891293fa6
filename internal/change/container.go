package change

import (
	"fmt"

	"github.com/loro-dev/loro-go/internal/id"
)

type PeerID = id.PeerID
type Counter = id.Counter

// ContainerKind discriminates the six container algorithms.
type ContainerKind uint8

const (
	KindText ContainerKind = iota
	KindList
	KindMovableList
	KindMap
	KindTree
	KindCounter
)

func (k ContainerKind) String() string {
	switch k {
	case KindText:
		return "Text"
	case KindList:
		return "List"
	case KindMovableList:
		return "MovableList"
	case KindMap:
		return "Map"
	case KindTree:
		return "Tree"
	case KindCounter:
		return "Counter"
	default:
		return "Unknown"
	}
}

// ContainerID identifies a container: either a root container (named,
// implicitly existing) or a normal container derived from the op that
// created it.
type ContainerID struct {
	IsRoot bool
	// Root fields.
	Name string
	// Normal fields.
	Peer    PeerID
	Counter Counter
	// Kind is set for both variants.
	Kind ContainerKind
}

// RootContainerID builds a root ContainerID.
func RootContainerID(name string, kind ContainerKind) ContainerID {
	return ContainerID{IsRoot: true, Name: name, Kind: kind}
}

// NormalContainerID builds a ContainerID derived from the creating op.
func NormalContainerID(peer PeerID, counter Counter, kind ContainerKind) ContainerID {
	return ContainerID{IsRoot: false, Peer: peer, Counter: counter, Kind: kind}
}

func (c ContainerID) String() string {
	if c.IsRoot {
		return fmt.Sprintf("cid:root-%s:%s", c.Name, c.Kind)
	}
	return fmt.Sprintf("cid:%d@%d:%s", c.Counter, c.Peer, c.Kind)
}

// ContainerIdx is the dense, process-local index a ContainerID is
// translated to for O(1) lookups. Index 0 is never assigned to a real
// container so the zero value can serve as "no container".
type ContainerIdx uint32

const NoContainerIdx ContainerIdx = 0

// Registry assigns dense ContainerIdx values to ContainerIDs and resolves
// them back — an arena of indices in place of owning parent/child
// references.
type Registry struct {
	byID  map[ContainerID]ContainerIdx
	byIdx []ContainerID // index 0 unused
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byID:  make(map[ContainerID]ContainerIdx),
		byIdx: []ContainerID{{}}, // reserve index 0
	}
}

// Intern returns the idx for id, assigning a new one if id hasn't been seen.
func (r *Registry) Intern(cid ContainerID) ContainerIdx {
	if idx, ok := r.byID[cid]; ok {
		return idx
	}
	idx := ContainerIdx(len(r.byIdx))
	r.byIdx = append(r.byIdx, cid)
	r.byID[cid] = idx
	return idx
}

// Lookup returns the idx for id without creating it.
func (r *Registry) Lookup(cid ContainerID) (ContainerIdx, bool) {
	idx, ok := r.byID[cid]
	return idx, ok
}

// ID resolves an idx back to its ContainerID.
func (r *Registry) ID(idx ContainerIdx) (ContainerID, bool) {
	if int(idx) <= 0 || int(idx) >= len(r.byIdx) {
		return ContainerID{}, false
	}
	return r.byIdx[idx], true
}

// Len returns the number of interned containers (not counting the reserved
// zero index).
func (r *Registry) Len() int { return len(r.byIdx) - 1 }
