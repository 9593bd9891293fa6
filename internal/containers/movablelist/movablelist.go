// Package movablelist implements the movable-list container: elements
// keep a stable identity from the op that created them, independent of
// their current position (changed by Move) and their current value
// (changed by Set). Ordering reuses internal/containers/rga exactly as
// List does, but the sequence holds "placement markers" pointing at
// element ids rather than the elements' values directly — a Move
// retires the old marker and mints a new one at the new anchor, so
// concurrent moves of the same element converge via last-writer-wins on
// the move's own (lamport, peer) rather than by mutating history.
package movablelist

import (
	"encoding/binary"
	"encoding/json"

	"github.com/loro-dev/loro-go/internal/change"
	"github.com/loro-dev/loro-go/internal/containers/ifc"
	"github.com/loro-dev/loro-go/internal/containers/rga"
	"github.com/loro-dev/loro-go/internal/id"
)

type elemRecord struct {
	value         change.Value
	currentMarker id.ID
	moveWinner    id.IdLp
	setWinner     id.IdLp
	deleted       bool
}

// State is the materialized movable list.
type State struct {
	seq   *rga.Sequence[id.ID] // marker items; each item's Value is the elem id it currently places
	elems map[id.ID]*elemRecord
}

// New returns an empty movable list.
func New(seed int64) *State {
	return &State{seq: rga.NewSequence[id.ID](seed), elems: make(map[id.ID]*elemRecord)}
}

var _ ifc.ContainerState = (*State)(nil)

func (s *State) Kind() change.ContainerKind { return change.KindMovableList }

// NeighborsForVisiblePos exposes the underlying sequence's anchor lookup so
// callers (pkg/loro's list handle) can compute OriginLeft/OriginRight when
// authoring Insert/Move ops.
func (s *State) NeighborsForVisiblePos(p int) (id.ID, id.ID) {
	return s.seq.NeighborsForVisiblePos(p)
}

// ElemIDAtVisiblePos returns the stable element id currently placed at
// visible position p, used to author Delete/Move/Set ops against it.
func (s *State) ElemIDAtVisiblePos(p int) (id.ID, bool) {
	var out id.ID
	found := false
	s.seq.Each(func(pos int, it rga.Item[id.ID]) {
		if pos == p {
			out, found = it.Value, true
		}
	})
	return out, found
}

// NearestAliveVisiblePos rebases target — possibly a retired marker id —
// to the visible position a Cursor anchored on it should resolve to.
func (s *State) NearestAliveVisiblePos(target id.ID) (int, bool) {
	return s.seq.NearestAliveVisiblePos(target)
}

// CurrentPosForElem resolves an element's stable id to its current visible
// position, following the element's currentMarker even across Moves —
// unlike anchoring a Cursor on a marker id directly, this survives a Move
// relocating the element elsewhere in the sequence. deleted reports
// whether the element has since been removed, in which case pos is the
// nearest surviving position its retired marker rebases to.
func (s *State) CurrentPosForElem(elemID id.ID) (pos int, deleted bool, ok bool) {
	rec, exists := s.elems[elemID]
	if !exists {
		return 0, false, false
	}
	if rec.deleted {
		p, _ := s.seq.NearestAliveVisiblePos(rec.currentMarker)
		return p, true, true
	}
	return s.seq.VisiblePosOf(rec.currentMarker), false, true
}

// Len returns the number of currently visible elements.
func (s *State) Len() int {
	n := 0
	s.seq.Each(func(int, rga.Item[id.ID]) { n++ })
	return n
}

func (s *State) Apply(lamport id.Lamport, peer id.PeerID, op change.Op) ifc.Diff {
	switch op.Content.Kind {
	case change.OpListInsert:
		elemID := id.NewID(peer, op.Counter)
		if s.seq.Has(elemID) {
			return ifc.Diff{}
		}
		s.seq.Integrate(elemID, lamport, op.Content.OriginLeft, op.Content.OriginRight, elemID)
		winner := id.NewIdLp(lamport, peer)
		s.elems[elemID] = &elemRecord{value: op.Content.Value, currentMarker: elemID, moveWinner: winner, setWinner: winner}
		pos := s.seq.VisiblePosOf(elemID)
		return ifc.Diff{Kind: ifc.DiffMovableList, ListInsertPos: pos, ListInsertValue: op.Content.Value}

	case change.OpListDelete:
		removed := 0
		for i := 0; i < op.Content.DeleteLen; i++ {
			elemID := id.NewID(op.Content.DeleteTarget.Peer, op.Content.DeleteTarget.Counter+id.Counter(i))
			rec, ok := s.elems[elemID]
			if !ok || rec.deleted {
				continue
			}
			s.seq.MarkDeleted(rec.currentMarker)
			rec.deleted = true
			removed++
		}
		if removed == 0 {
			return ifc.Diff{}
		}
		firstPos := s.seq.VisiblePosOf(op.Content.DeleteTarget)
		return ifc.Diff{Kind: ifc.DiffMovableList, ListDeletePos: firstPos, ListDeleteLen: removed}

	case change.OpListMove:
		elemID := op.Content.FromID
		rec, ok := s.elems[elemID]
		if !ok || rec.deleted {
			return ifc.Diff{}
		}
		candidate := id.NewIdLp(lamport, peer)
		if !candidate.WinsMove(rec.moveWinner) {
			return ifc.Diff{}
		}
		fromPos := s.seq.VisiblePosOf(rec.currentMarker)
		s.seq.MarkDeleted(rec.currentMarker)

		markerID := id.NewID(peer, op.Counter)
		ol, or := s.seq.NeighborsForVisiblePos(op.Content.ToPos)
		s.seq.Integrate(markerID, lamport, ol, or, elemID)
		rec.currentMarker = markerID
		rec.moveWinner = candidate

		toPos := s.seq.VisiblePosOf(markerID)
		return ifc.Diff{Kind: ifc.DiffMovableList, MoveFromPos: fromPos, MoveToPos: toPos}

	case change.OpListSet:
		elemID := op.Content.ElemID
		rec, ok := s.elems[elemID]
		if !ok || rec.deleted {
			return ifc.Diff{}
		}
		candidate := id.NewIdLp(lamport, peer)
		if !candidate.WinsMove(rec.setWinner) {
			return ifc.Diff{}
		}
		rec.value = op.Content.Value
		rec.setWinner = candidate
		pos := s.seq.VisiblePosOf(rec.currentMarker)
		return ifc.Diff{Kind: ifc.DiffMovableList, SetPos: pos, SetValue: rec.value}

	default:
		return ifc.Diff{}
	}
}

func (s *State) Value() change.Value {
	var out []change.Value
	s.seq.Each(func(_ int, it rga.Item[id.ID]) {
		rec := s.elems[it.Value]
		if rec != nil && !rec.deleted {
			out = append(out, rec.value)
		}
	})
	return change.ListValue(out)
}

func (s *State) ChildContainers() []change.ContainerID {
	var out []change.ContainerID
	s.seq.Each(func(_ int, it rga.Item[id.ID]) {
		rec := s.elems[it.Value]
		if rec != nil && !rec.deleted && rec.value.Kind == change.KindContainer {
			out = append(out, rec.value.Container)
		}
	})
	return out
}

func (s *State) Fork() ifc.ContainerState {
	out := New(1)
	var items []rga.Item[id.ID]
	s.seq.EachAll(func(it rga.Item[id.ID]) { items = append(items, it) })
	out.seq.Rebuild(1, items)
	out.elems = make(map[id.ID]*elemRecord, len(s.elems))
	for k, r := range s.elems {
		cp := *r
		out.elems[k] = &cp
	}
	return out
}

type wireMarker struct {
	Peer        id.PeerID  `json:"p"`
	Counter     id.Counter `json:"c"`
	Lamport     id.Lamport `json:"l"`
	OriginLeft  id.ID      `json:"ol"`
	OriginRight id.ID      `json:"or"`
	Deleted     bool       `json:"d"`
	ElemPeer    id.PeerID  `json:"ep"`
	ElemCounter id.Counter `json:"ec"`
}

type wireElem struct {
	Peer           id.PeerID  `json:"p"`
	Counter        id.Counter `json:"c"`
	Value          []byte     `json:"v"`
	MarkerPeer     id.PeerID  `json:"mp"`
	MarkerCounter  id.Counter `json:"mc"`
	MoveLamport    id.Lamport `json:"ml"`
	MovePeer       id.PeerID  `json:"mwp"`
	SetLamport     id.Lamport `json:"sl"`
	SetPeer        id.PeerID  `json:"swp"`
	Deleted        bool       `json:"d"`
}

type wireSnapshot struct {
	Markers []wireMarker `json:"markers"`
	Elems   []wireElem   `json:"elems"`
}

func (s *State) EncodeSnapshot() []byte {
	var w wireSnapshot
	s.seq.EachAll(func(it rga.Item[id.ID]) {
		w.Markers = append(w.Markers, wireMarker{
			Peer: it.ID.Peer, Counter: it.ID.Counter, Lamport: it.Lamport,
			OriginLeft: it.OriginLeft, OriginRight: it.OriginRight, Deleted: it.Deleted,
			ElemPeer: it.Value.Peer, ElemCounter: it.Value.Counter,
		})
	})
	for elemID, rec := range s.elems {
		vb, _ := change.MarshalValueJSON(rec.value)
		w.Elems = append(w.Elems, wireElem{
			Peer: elemID.Peer, Counter: elemID.Counter, Value: vb,
			MarkerPeer: rec.currentMarker.Peer, MarkerCounter: rec.currentMarker.Counter,
			MoveLamport: rec.moveWinner.Lamport, MovePeer: rec.moveWinner.Peer,
			SetLamport: rec.setWinner.Lamport, SetPeer: rec.setWinner.Peer,
			Deleted: rec.deleted,
		})
	}
	b, _ := json.Marshal(w)
	header := make([]byte, 4)
	binary.LittleEndian.PutUint32(header, uint32(len(b)))
	return append(header, b...)
}

func (s *State) DecodeSnapshot(b []byte) error {
	s.seq = rga.NewSequence[id.ID](1)
	s.elems = make(map[id.ID]*elemRecord)
	if len(b) < 4 {
		return nil
	}
	n := binary.LittleEndian.Uint32(b[:4])
	var w wireSnapshot
	if n > 0 {
		if err := json.Unmarshal(b[4:4+n], &w); err != nil {
			return err
		}
	}
	items := make([]rga.Item[id.ID], 0, len(w.Markers))
	for _, m := range w.Markers {
		items = append(items, rga.Item[id.ID]{
			ID: id.NewID(m.Peer, m.Counter), Lamport: m.Lamport,
			OriginLeft: m.OriginLeft, OriginRight: m.OriginRight, Deleted: m.Deleted,
			Value: id.NewID(m.ElemPeer, m.ElemCounter),
		})
	}
	s.seq.Rebuild(1, items)
	for _, e := range w.Elems {
		v, err := change.UnmarshalValueJSON(e.Value)
		if err != nil {
			return err
		}
		s.elems[id.NewID(e.Peer, e.Counter)] = &elemRecord{
			value:         v,
			currentMarker: id.NewID(e.MarkerPeer, e.MarkerCounter),
			moveWinner:    id.NewIdLp(e.MoveLamport, e.MovePeer),
			setWinner:     id.NewIdLp(e.SetLamport, e.SetPeer),
			deleted:       e.Deleted,
		}
	}
	return nil
}
