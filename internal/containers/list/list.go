// Package list implements the plain List container: an RGA of arbitrary
// values with insert/delete only (no move/set — see movablelist for that).
// Ordering is delegated to internal/containers/rga.
package list

import (
	"encoding/binary"
	"encoding/json"

	"github.com/loro-dev/loro-go/internal/change"
	"github.com/loro-dev/loro-go/internal/containers/ifc"
	"github.com/loro-dev/loro-go/internal/containers/rga"
	"github.com/loro-dev/loro-go/internal/id"
)

// State is the materialized list.
type State struct {
	seq  *rga.Sequence[change.Value]
	seen map[id.ID]struct{}
}

// New returns an empty list.
func New(seed int64) *State {
	return &State{seq: rga.NewSequence[change.Value](seed), seen: make(map[id.ID]struct{})}
}

var _ ifc.ContainerState = (*State)(nil)

func (s *State) Kind() change.ContainerKind { return change.KindList }

// NeighborsForVisiblePos exposes the anchor lookup used when authoring an
// Insert op at a visible-index position.
func (s *State) NeighborsForVisiblePos(p int) (id.ID, id.ID) {
	return s.seq.NeighborsForVisiblePos(p)
}

// IDAtVisiblePos returns the element id currently occupying visible
// position p, used to author a Delete op targeting it.
func (s *State) IDAtVisiblePos(p int) (id.ID, bool) {
	var out id.ID
	found := false
	s.seq.Each(func(pos int, it rga.Item[change.Value]) {
		if pos == p {
			out, found = it.ID, true
		}
	})
	return out, found
}

// NearestAliveVisiblePos rebases target — possibly a tombstoned element
// id — to the visible position a Cursor anchored on it should resolve to.
func (s *State) NearestAliveVisiblePos(target id.ID) (int, bool) {
	return s.seq.NearestAliveVisiblePos(target)
}

// PosOf resolves a cursor anchor: the visible position of target if still
// alive, or the rebased position of the nearest live element after it.
// known is false if target was never integrated into this list.
func (s *State) PosOf(target id.ID) (pos int, alive bool, known bool) {
	it, ok := s.seq.ItemByID(target)
	if !ok {
		return 0, false, false
	}
	if it.Deleted {
		p, _ := s.seq.NearestAliveVisiblePos(target)
		return p, false, true
	}
	return s.seq.VisiblePosOf(target), true, true
}

// Len returns the number of currently visible elements.
func (s *State) Len() int {
	n := 0
	s.seq.Each(func(int, rga.Item[change.Value]) { n++ })
	return n
}

func (s *State) Apply(lamport id.Lamport, peer id.PeerID, op change.Op) ifc.Diff {
	opID := id.NewID(peer, op.Counter)

	switch op.Content.Kind {
	case change.OpListInsert:
		if _, dup := s.seen[opID]; dup {
			return ifc.Diff{}
		}
		s.seen[opID] = struct{}{}
		s.seq.Integrate(opID, lamport, op.Content.OriginLeft, op.Content.OriginRight, op.Content.Value)
		visPos := s.seq.VisiblePosOf(opID)
		return ifc.Diff{Kind: ifc.DiffList, ListInsertPos: visPos, ListInsertValue: op.Content.Value}

	case change.OpListDelete:
		visPos := s.seq.VisiblePosOf(op.Content.DeleteTarget)
		removed := s.seq.MarkDeletedFromID(op.Content.DeleteTarget, op.Content.DeleteLen)
		if removed == 0 {
			return ifc.Diff{}
		}
		return ifc.Diff{Kind: ifc.DiffList, ListDeletePos: visPos, ListDeleteLen: removed}

	default:
		return ifc.Diff{}
	}
}

func (s *State) Value() change.Value {
	var out []change.Value
	s.seq.Each(func(_ int, it rga.Item[change.Value]) {
		out = append(out, it.Value)
	})
	return change.ListValue(out)
}

func (s *State) ChildContainers() []change.ContainerID {
	var out []change.ContainerID
	s.seq.Each(func(_ int, it rga.Item[change.Value]) {
		if it.Value.Kind == change.KindContainer {
			out = append(out, it.Value.Container)
		}
	})
	return out
}

func (s *State) Fork() ifc.ContainerState {
	out := New(1)
	var items []rga.Item[change.Value]
	s.seq.EachAll(func(it rga.Item[change.Value]) { items = append(items, it) })
	out.seq.Rebuild(1, items)
	out.seen = make(map[id.ID]struct{}, len(s.seen))
	for k := range s.seen {
		out.seen[k] = struct{}{}
	}
	return out
}

type wireItem struct {
	Peer        id.PeerID  `json:"p"`
	Counter     id.Counter `json:"c"`
	Lamport     id.Lamport `json:"l"`
	OriginLeft  id.ID      `json:"ol"`
	OriginRight id.ID      `json:"or"`
	Deleted     bool       `json:"d"`
	Value       []byte     `json:"v"`
}

func (s *State) EncodeSnapshot() []byte {
	var wire []wireItem
	s.seq.EachAll(func(it rga.Item[change.Value]) {
		vb, _ := change.MarshalValueJSON(it.Value)
		wire = append(wire, wireItem{
			Peer: it.ID.Peer, Counter: it.ID.Counter, Lamport: it.Lamport,
			OriginLeft: it.OriginLeft, OriginRight: it.OriginRight, Deleted: it.Deleted, Value: vb,
		})
	})
	b, _ := json.Marshal(wire)
	header := make([]byte, 4)
	binary.LittleEndian.PutUint32(header, uint32(len(b)))
	return append(header, b...)
}

func (s *State) DecodeSnapshot(b []byte) error {
	s.seen = make(map[id.ID]struct{})
	if len(b) < 4 {
		s.seq = rga.NewSequence[change.Value](1)
		return nil
	}
	n := binary.LittleEndian.Uint32(b[:4])
	var wire []wireItem
	if n > 0 {
		if err := json.Unmarshal(b[4:4+n], &wire); err != nil {
			return err
		}
	}
	items := make([]rga.Item[change.Value], 0, len(wire))
	for _, w := range wire {
		v, err := change.UnmarshalValueJSON(w.Value)
		if err != nil {
			return err
		}
		itemID := id.NewID(w.Peer, w.Counter)
		s.seen[itemID] = struct{}{}
		items = append(items, rga.Item[change.Value]{
			ID: itemID, Lamport: w.Lamport, OriginLeft: w.OriginLeft, OriginRight: w.OriginRight,
			Deleted: w.Deleted, Value: v,
		})
	}
	s.seq = rga.NewSequence[change.Value](1)
	s.seq.Rebuild(1, items)
	return nil
}
