// Package counter implements the PN-counter container: state is the sum
// of every Increment op's delta. Commutative and idempotent because every
// op carries a unique id.
package counter

import (
	"encoding/binary"
	"math"

	"github.com/loro-dev/loro-go/internal/change"
	"github.com/loro-dev/loro-go/internal/containers/ifc"
	"github.com/loro-dev/loro-go/internal/id"
)

// State is the materialized PN-counter: a running sum plus the set of op
// ids already folded in, so re-applying an id is a no-op.
type State struct {
	sum  float64
	seen map[id.ID]struct{}
}

// New returns an empty counter.
func New() *State {
	return &State{seen: make(map[id.ID]struct{})}
}

var _ ifc.ContainerState = (*State)(nil)

func (s *State) Kind() change.ContainerKind { return change.KindCounter }

func (s *State) Apply(lamport id.Lamport, peer id.PeerID, op change.Op) ifc.Diff {
	opID := id.NewID(peer, op.Counter)
	if _, ok := s.seen[opID]; ok {
		return ifc.Diff{}
	}
	s.seen[opID] = struct{}{}

	if op.Content.Kind != change.OpCounterIncrement {
		return ifc.Diff{}
	}
	s.sum += op.Content.Delta
	return ifc.Diff{Kind: ifc.DiffCounter, CounterDelta: op.Content.Delta}
}

func (s *State) Value() change.Value { return change.F64Value(s.sum) }

func (s *State) ChildContainers() []change.ContainerID { return nil }

func (s *State) Fork() ifc.ContainerState {
	out := &State{sum: s.sum, seen: make(map[id.ID]struct{}, len(s.seen))}
	for k := range s.seen {
		out.seen[k] = struct{}{}
	}
	return out
}

// EncodeSnapshot serializes the counter as its sum plus the set of ids
// that contributed to it, so importing two overlapping snapshots cannot
// double-count a delta.
func (s *State) EncodeSnapshot() []byte {
	buf := make([]byte, 8, 8+len(s.seen)*12)
	binary.LittleEndian.PutUint64(buf, math.Float64bits(s.sum))
	for opID := range s.seen {
		var idBuf [12]byte
		binary.LittleEndian.PutUint64(idBuf[0:8], uint64(opID.Peer))
		binary.LittleEndian.PutUint32(idBuf[8:12], uint32(opID.Counter))
		buf = append(buf, idBuf[:]...)
	}
	return buf
}

func (s *State) DecodeSnapshot(b []byte) error {
	if len(b) < 8 {
		s.sum = 0
		s.seen = make(map[id.ID]struct{})
		return nil
	}
	s.sum = math.Float64frombits(binary.LittleEndian.Uint64(b[:8]))
	rest := b[8:]
	s.seen = make(map[id.ID]struct{}, len(rest)/12)
	for i := 0; i+12 <= len(rest); i += 12 {
		peer := id.PeerID(binary.LittleEndian.Uint64(rest[i : i+8]))
		counter := id.Counter(binary.LittleEndian.Uint32(rest[i+8 : i+12]))
		s.seen[id.NewID(peer, counter)] = struct{}{}
	}
	return nil
}
