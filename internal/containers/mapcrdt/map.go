// Package mapcrdt implements the observed-remove map container: every key
// holds a single LWW register, writes winning by (lamport, peer) with no
// cross-key ordering. Grounded on the conflict-resolution rule of the
// knirvbase resolver package (ResolveConflict's Concurrent branch), which
// is not part of this repository, generalized from whole-document LWW to
// one independent register per key.
package mapcrdt

import (
	"encoding/json"

	"github.com/loro-dev/loro-go/internal/change"
	"github.com/loro-dev/loro-go/internal/containers/ifc"
	"github.com/loro-dev/loro-go/internal/id"
)

type register struct {
	value   change.Value
	deleted bool
	winner  id.IdLp
}

// State is the materialized map: one LWW register per key.
type State struct {
	regs map[string]*register
}

// New returns an empty map.
func New() *State {
	return &State{regs: make(map[string]*register)}
}

var _ ifc.ContainerState = (*State)(nil)

func (s *State) Kind() change.ContainerKind { return change.KindMap }

func (s *State) Apply(lamport id.Lamport, peer id.PeerID, op change.Op) ifc.Diff {
	if op.Content.Kind != change.OpMapInsert {
		return ifc.Diff{}
	}
	candidate := id.NewIdLp(lamport, peer)
	key := op.Content.Key

	cur, ok := s.regs[key]
	if ok && !candidate.Wins(cur.winner) {
		// An existing write dominates or ties (ties can't happen: ids are
		// unique, so Wins is a strict total order here); drop.
		return ifc.Diff{}
	}

	reg := &register{
		value:   op.Content.Value,
		deleted: op.Content.MapDeleted,
		winner:  candidate,
	}
	s.regs[key] = reg

	return ifc.Diff{
		Kind:        ifc.DiffMap,
		MapKey:      key,
		MapValue:    reg.value,
		MapIsDelete: reg.deleted,
	}
}

func (s *State) Value() change.Value {
	out := make(map[string]change.Value, len(s.regs))
	for k, r := range s.regs {
		if r.deleted {
			continue
		}
		out[k] = r.value
	}
	return change.MapValue(out)
}

func (s *State) ChildContainers() []change.ContainerID {
	var out []change.ContainerID
	for _, r := range s.regs {
		if !r.deleted && r.value.Kind == change.KindContainer {
			out = append(out, r.value.Container)
		}
	}
	return out
}

func (s *State) Fork() ifc.ContainerState {
	out := New()
	for k, r := range s.regs {
		cp := *r
		out.regs[k] = &cp
	}
	return out
}

type wireRegister struct {
	Value   json.RawMessage `json:"v"`
	Deleted bool            `json:"d"`
	Lamport id.Lamport      `json:"l"`
	Peer    id.PeerID       `json:"p"`
}

// EncodeSnapshot serializes the map's registers. The map CRDT's state is
// small relative to text/list, so a JSON encoding of the register table is
// used rather than a bespoke binary layout; internal/encoding wraps this
// blob in the shared snapshot framing (length-prefixed, checksummed).
func (s *State) EncodeSnapshot() []byte {
	wire := make(map[string]wireRegister, len(s.regs))
	for k, r := range s.regs {
		vb, _ := change.MarshalValueJSON(r.value)
		wire[k] = wireRegister{Value: vb, Deleted: r.deleted, Lamport: r.winner.Lamport, Peer: r.winner.Peer}
	}
	b, _ := json.Marshal(wire)
	return b
}

func (s *State) DecodeSnapshot(b []byte) error {
	wire := make(map[string]wireRegister)
	if len(b) > 0 {
		if err := json.Unmarshal(b, &wire); err != nil {
			return err
		}
	}
	s.regs = make(map[string]*register, len(wire))
	for k, w := range wire {
		v, err := change.UnmarshalValueJSON(w.Value)
		if err != nil {
			return err
		}
		s.regs[k] = &register{value: v, deleted: w.Deleted, winner: id.NewIdLp(w.Lamport, w.Peer)}
	}
	return nil
}
