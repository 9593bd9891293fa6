// Package tree implements the movable-tree container: nodes keep a
// stable identity (the id of the op that created them) while their
// parent and sibling order can change via Move, resolved last-writer-wins
// by (lamport desc, peer asc) exactly as internal/containers/movablelist
// resolves concurrent moves. Each node
// carries a fractional-index key (internal/fractional) giving it a
// position among its siblings without renumbering them on insert.
// Deleting a node moves it under the reserved "trash" virtual parent
// rather than erasing it, so a later Move can resurrect it and so
// causally-prior concurrent moves of its descendants still have
// somewhere consistent to land.
//
// Cycle rejection depends on the ancestry every later move observed, so
// the state keeps the full move log in (lamport, peer) order: a move
// arriving out of that order is spliced in and the tree is rebuilt by
// replaying the log, which makes the ineffective-move decision identical
// on every replica regardless of delivery order.
package tree

import (
	"encoding/binary"
	"encoding/json"
	"sort"

	"github.com/loro-dev/loro-go/internal/change"
	"github.com/loro-dev/loro-go/internal/containers/ifc"
	"github.com/loro-dev/loro-go/internal/fractional"
	"github.com/loro-dev/loro-go/internal/id"
)

// TrashParent is the reserved virtual parent that deleted nodes are moved
// under. It can never collide with a real node id: no op ever mints
// counter -2.
var TrashParent = id.ID{Peer: 0, Counter: -2}

type nodeRecord struct {
	parent     change.TreeID
	hasParent  bool // false means top-level (root)
	fractIndex fractional.Key
	deleted    bool
	moveWinner id.IdLp
}

// moveEntry is one move/delete op in the container's total order.
type moveEntry struct {
	lamport    id.Lamport
	peer       id.PeerID
	counter    id.Counter
	target     change.TreeID
	parent     change.TreeID
	hasParent  bool
	fractIndex string
	isDelete   bool
}

// less orders entries by (lamport, peer, counter), with the target id as
// a final tiebreaker so replay order is total even for synthetic inputs
// sharing an op id.
func (e moveEntry) less(o moveEntry) bool {
	if e.lamport != o.lamport {
		return e.lamport < o.lamport
	}
	if e.peer != o.peer {
		return e.peer < o.peer
	}
	if e.counter != o.counter {
		return e.counter < o.counter
	}
	if e.target.Peer != o.target.Peer {
		return e.target.Peer < o.target.Peer
	}
	return e.target.Counter < o.target.Counter
}

type dedupKey struct {
	lamport id.Lamport
	peer    id.PeerID
	counter id.Counter
	target  change.TreeID
}

// State is the materialized tree: one record per node that has ever been
// created, keyed by its creation id, plus the totally-ordered move log
// the records are derived from.
type State struct {
	nodes map[change.TreeID]*nodeRecord
	// order preserves creation order among node ids, used only to make
	// Value()'s output deterministic when sorting siblings by fractional
	// index ties (which cannot actually tie since ids are unique, but keeps
	// iteration order reproducible for tests).
	order []change.TreeID

	moves []moveEntry
	seen  map[dedupKey]struct{}
}

// New returns an empty tree.
func New() *State {
	return &State{nodes: make(map[change.TreeID]*nodeRecord), seen: make(map[dedupKey]struct{})}
}

var _ ifc.ContainerState = (*State)(nil)

func (s *State) Kind() change.ContainerKind { return change.KindTree }

// Children returns the live children of parent, ordered by fractional
// index (or the top-level nodes if hasParent is false). Exposed so
// pkg/loro's tree handle can list a node's children and compute a new
// sibling's fractional index.
func (s *State) Children(parent change.TreeID, hasParent bool) []change.TreeID {
	return s.childrenOf(parent, hasParent)
}

// Exists reports whether target has ever been created.
func (s *State) Exists(target change.TreeID) bool {
	_, ok := s.nodes[target]
	return ok
}

// IsDeleted reports whether target currently sits under the trash parent.
func (s *State) IsDeleted(target change.TreeID) bool {
	rec, ok := s.nodes[target]
	return ok && rec.deleted
}

// FractIndexForChildAt returns a fresh fractional-index key placing a
// node at position idx among parent's current live children (idx ==
// len(children) appends at the end).
func (s *State) FractIndexForChildAt(parent change.TreeID, hasParent bool, idx int) fractional.Key {
	kids := s.childrenOf(parent, hasParent)
	var left, right fractional.Key
	if idx > 0 && idx-1 < len(kids) {
		left = s.nodes[kids[idx-1]].fractIndex
	}
	if idx < len(kids) {
		right = s.nodes[kids[idx]].fractIndex
	}
	return fractional.New(left, right, fractional.MaxJitterBytes)
}

func (s *State) Apply(lamport id.Lamport, peer id.PeerID, op change.Op) ifc.Diff {
	if op.Content.Kind != change.OpTreeMove && op.Content.Kind != change.OpTreeDelete {
		return ifc.Diff{}
	}
	key := dedupKey{lamport: lamport, peer: peer, counter: op.Counter, target: op.Content.Target}
	if _, dup := s.seen[key]; dup {
		return ifc.Diff{}
	}
	s.seen[key] = struct{}{}

	e := moveEntry{
		lamport: lamport, peer: peer, counter: op.Counter,
		target: op.Content.Target, parent: op.Content.Parent, hasParent: op.Content.HasParent,
		fractIndex: op.Content.FractIndex,
		isDelete:   op.Content.Kind == change.OpTreeDelete || op.Content.TreeDeleted,
	}

	if n := len(s.moves); n == 0 || s.moves[n-1].less(e) {
		s.moves = append(s.moves, e)
		return s.applyEntry(e)
	}

	// Out-of-order arrival: splice into the total order and rebuild, so
	// every replica decides effectiveness against the same ancestry.
	i := sort.Search(len(s.moves), func(i int) bool { return e.less(s.moves[i]) })
	s.moves = append(s.moves, moveEntry{})
	copy(s.moves[i+1:], s.moves[i:])
	s.moves[i] = e
	return s.rebuild(i)
}

// applyEntry mutates the node records per one move-log entry, returning
// the diff it produced (zero when the entry is ineffective).
func (s *State) applyEntry(e moveEntry) ifc.Diff {
	target := e.target
	rec, exists := s.nodes[target]

	if e.isDelete && !exists {
		return ifc.Diff{}
	}
	if !exists {
		rec = &nodeRecord{}
		s.nodes[target] = rec
		s.order = append(s.order, target)
	}

	candidate := id.NewIdLp(e.lamport, e.peer)
	if exists && !candidate.WinsMove(rec.moveWinner) {
		return ifc.Diff{}
	}

	newParent := e.parent
	newHasParent := e.hasParent
	if e.isDelete {
		newParent = TrashParent
		newHasParent = true
	}

	if newHasParent && !e.isDelete && s.wouldCycle(target, newParent) {
		// The move would make target its own ancestor; it stays in the log
		// but never touches the records (an ineffective move).
		return ifc.Diff{}
	}

	rec.parent = newParent
	rec.hasParent = newHasParent
	if !e.isDelete {
		rec.fractIndex = fractional.Key(e.fractIndex)
	}
	rec.deleted = e.isDelete
	rec.moveWinner = candidate

	return ifc.Diff{
		Kind: ifc.DiffTree, TreeTarget: target, TreeParent: newParent,
		TreeHasParent: newHasParent, TreeIsDelete: rec.deleted, TreeFractIndex: string(rec.fractIndex),
	}
}

// rebuild discards the node records and replays the whole move log,
// returning the diff of the entry at index just.
func (s *State) rebuild(just int) ifc.Diff {
	s.nodes = make(map[change.TreeID]*nodeRecord)
	s.order = nil
	var out ifc.Diff
	for i, e := range s.moves {
		diff := s.applyEntry(e)
		if i == just {
			out = diff
		}
	}
	return out
}

// wouldCycle reports whether setting target's parent to newParent would
// make target an ancestor of itself.
func (s *State) wouldCycle(target, newParent change.TreeID) bool {
	if newParent == target {
		return true
	}
	cur := newParent
	for {
		rec, ok := s.nodes[cur]
		if !ok || !rec.hasParent {
			return false
		}
		if rec.parent == target {
			return true
		}
		cur = rec.parent
	}
}

// childrenOf returns the live children of parent (or top-level nodes if
// parent is the zero TreeID with hasParent=false), ordered by fractional
// index.
func (s *State) childrenOf(parent change.TreeID, hasParent bool) []change.TreeID {
	var kids []change.TreeID
	for _, id := range s.order {
		rec := s.nodes[id]
		if rec.deleted {
			continue
		}
		if rec.hasParent != hasParent {
			continue
		}
		if hasParent && rec.parent != parent {
			continue
		}
		kids = append(kids, id)
	}
	sort.Slice(kids, func(i, j int) bool {
		return s.nodes[kids[i]].fractIndex.Compare(s.nodes[kids[j]].fractIndex) < 0
	})
	return kids
}

func (s *State) Value() change.Value {
	var build func(parent change.TreeID, hasParent bool) []change.Value
	build = func(parent change.TreeID, hasParent bool) []change.Value {
		var out []change.Value
		for _, nid := range s.childrenOf(parent, hasParent) {
			entry := map[string]change.Value{
				"id":       change.StringValue(nid.String()),
				"children": change.ListValue(build(nid, true)),
			}
			out = append(out, change.MapValue(entry))
		}
		return out
	}
	return change.ListValue(build(change.TreeID{}, false))
}

func (s *State) ChildContainers() []change.ContainerID {
	var out []change.ContainerID
	for _, nid := range s.order {
		rec := s.nodes[nid]
		if rec.deleted {
			continue
		}
		out = append(out, change.NormalContainerID(nid.Peer, nid.Counter, change.KindMap))
	}
	return out
}

func (s *State) Fork() ifc.ContainerState {
	out := New()
	out.order = append([]change.TreeID(nil), s.order...)
	for k, r := range s.nodes {
		cp := *r
		out.nodes[k] = &cp
	}
	out.moves = append([]moveEntry(nil), s.moves...)
	for k := range s.seen {
		out.seen[k] = struct{}{}
	}
	return out
}

type wireMove struct {
	Lamport    id.Lamport `json:"l"`
	Peer       id.PeerID  `json:"p"`
	Counter    id.Counter `json:"c"`
	TargetPeer id.PeerID  `json:"tp"`
	TargetCtr  id.Counter `json:"tc"`
	ParentPeer id.PeerID  `json:"pp"`
	ParentCtr  id.Counter `json:"pc"`
	HasParent  bool       `json:"hp"`
	FractIndex string     `json:"fi"`
	IsDelete   bool       `json:"d"`
}

// EncodeSnapshot serializes the move log; node records are derived state
// and are rebuilt by replay on decode.
func (s *State) EncodeSnapshot() []byte {
	wire := make([]wireMove, 0, len(s.moves))
	for _, e := range s.moves {
		wire = append(wire, wireMove{
			Lamport: e.lamport, Peer: e.peer, Counter: e.counter,
			TargetPeer: e.target.Peer, TargetCtr: e.target.Counter,
			ParentPeer: e.parent.Peer, ParentCtr: e.parent.Counter, HasParent: e.hasParent,
			FractIndex: e.fractIndex, IsDelete: e.isDelete,
		})
	}
	b, _ := json.Marshal(wire)
	header := make([]byte, 4)
	binary.LittleEndian.PutUint32(header, uint32(len(b)))
	return append(header, b...)
}

func (s *State) DecodeSnapshot(b []byte) error {
	s.nodes = make(map[change.TreeID]*nodeRecord)
	s.order = nil
	s.moves = nil
	s.seen = make(map[dedupKey]struct{})
	if len(b) < 4 {
		return nil
	}
	n := binary.LittleEndian.Uint32(b[:4])
	var wire []wireMove
	if n > 0 {
		if err := json.Unmarshal(b[4:4+n], &wire); err != nil {
			return err
		}
	}
	for _, w := range wire {
		e := moveEntry{
			lamport: w.Lamport, peer: w.Peer, counter: w.Counter,
			target: id.NewID(w.TargetPeer, w.TargetCtr),
			parent: id.NewID(w.ParentPeer, w.ParentCtr), hasParent: w.HasParent,
			fractIndex: w.FractIndex, isDelete: w.IsDelete,
		}
		s.moves = append(s.moves, e)
		s.seen[dedupKey{lamport: e.lamport, peer: e.peer, counter: e.counter, target: e.target}] = struct{}{}
		s.applyEntry(e)
	}
	return nil
}