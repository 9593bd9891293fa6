package encoding

import (
	"encoding/json"
	"fmt"

	"github.com/loro-dev/loro-go/internal/change"
	"github.com/loro-dev/loro-go/internal/errs"
	"github.com/loro-dev/loro-go/internal/id"
)

// wireContainerID is ContainerID's JSON wire shape — ContainerIdx values
// are process-local, so every encoded payload instead carries a table of
// ContainerIDs and op content refers to a position in that table.
type wireContainerID struct {
	IsRoot  bool                 `json:"root"`
	Name    string                `json:"name,omitempty"`
	Peer    id.PeerID             `json:"peer,omitempty"`
	Counter id.Counter            `json:"counter,omitempty"`
	Kind    change.ContainerKind  `json:"kind"`
}

func toWireContainerID(cid change.ContainerID) wireContainerID {
	return wireContainerID{IsRoot: cid.IsRoot, Name: cid.Name, Peer: cid.Peer, Counter: cid.Counter, Kind: cid.Kind}
}

func fromWireContainerID(w wireContainerID) change.ContainerID {
	if w.IsRoot {
		return change.RootContainerID(w.Name, w.Kind)
	}
	return change.NormalContainerID(w.Peer, w.Counter, w.Kind)
}

// wireOp is Op's wire shape: ContainerRef indexes into the payload's
// container table rather than carrying a raw, process-local ContainerIdx.
type wireOp struct {
	ContainerRef int            `json:"cr"`
	Counter      id.Counter     `json:"c"`
	Kind         change.OpKind  `json:"k"`

	Pos          int               `json:"pos,omitempty"`
	Text         string            `json:"text,omitempty"`
	DeleteLen    int               `json:"dl,omitempty"`
	MarkStart    int               `json:"ms,omitempty"`
	MarkEnd      int               `json:"me,omitempty"`
	MarkStartID  id.ID             `json:"msid,omitempty"`
	MarkEndID    id.ID             `json:"meid,omitempty"`
	MarkKey      string            `json:"mk,omitempty"`
	MarkValue    json.RawMessage   `json:"mv,omitempty"`
	ExpandPolicy change.ExpandPolicy `json:"ep,omitempty"`
	AllowOverlap bool              `json:"ao,omitempty"`
	DeleteTarget id.ID             `json:"dt,omitempty"`
	OriginLeft   id.ID             `json:"ol,omitempty"`
	OriginRight  id.ID             `json:"or,omitempty"`
	Value        json.RawMessage   `json:"v,omitempty"`
	FromID       id.ID             `json:"fid,omitempty"`
	ToPos        int               `json:"tp,omitempty"`
	ElemID       id.ID             `json:"eid,omitempty"`
	Key          string            `json:"key,omitempty"`
	MapDeleted   bool              `json:"md,omitempty"`
	Target       id.ID             `json:"tgt,omitempty"`
	Parent       id.ID             `json:"par,omitempty"`
	HasParent    bool              `json:"hp,omitempty"`
	FractIndex   string            `json:"fi,omitempty"`
	TreeDeleted  bool              `json:"td,omitempty"`
	Delta        float64           `json:"delta,omitempty"`
}

func toWireOp(op change.Op, containerRef int) (wireOp, error) {
	c := op.Content
	valBytes, err := change.MarshalValueJSON(c.Value)
	if err != nil {
		return wireOp{}, err
	}
	markValBytes, err := change.MarshalValueJSON(c.MarkValue)
	if err != nil {
		return wireOp{}, err
	}
	return wireOp{
		ContainerRef: containerRef, Counter: op.Counter, Kind: c.Kind,
		Pos: c.Pos, Text: c.Text, DeleteLen: c.DeleteLen,
		MarkStart: c.MarkStart, MarkEnd: c.MarkEnd, MarkStartID: c.MarkStartID, MarkEndID: c.MarkEndID,
		MarkKey: c.MarkKey, MarkValue: markValBytes, ExpandPolicy: c.ExpandPolicy, AllowOverlap: c.AllowOverlap,
		DeleteTarget: c.DeleteTarget, OriginLeft: c.OriginLeft, OriginRight: c.OriginRight, Value: valBytes,
		FromID: c.FromID, ToPos: c.ToPos, ElemID: c.ElemID, Key: c.Key, MapDeleted: c.MapDeleted,
		Target: c.Target, Parent: c.Parent, HasParent: c.HasParent, FractIndex: c.FractIndex, TreeDeleted: c.TreeDeleted,
		Delta: c.Delta,
	}, nil
}

func fromWireOp(w wireOp, containerIdx change.ContainerIdx) (change.Op, error) {
	val, err := change.UnmarshalValueJSON(w.Value)
	if err != nil {
		return change.Op{}, err
	}
	markVal, err := change.UnmarshalValueJSON(w.MarkValue)
	if err != nil {
		return change.Op{}, err
	}
	return change.Op{
		Container: containerIdx,
		Counter:   w.Counter,
		Content: change.OpContent{
			Kind: w.Kind, Pos: w.Pos, Text: w.Text, DeleteLen: w.DeleteLen,
			MarkStart: w.MarkStart, MarkEnd: w.MarkEnd, MarkStartID: w.MarkStartID, MarkEndID: w.MarkEndID,
			MarkKey: w.MarkKey, MarkValue: markVal, ExpandPolicy: w.ExpandPolicy, AllowOverlap: w.AllowOverlap,
			DeleteTarget: w.DeleteTarget, OriginLeft: w.OriginLeft, OriginRight: w.OriginRight, Value: val,
			FromID: w.FromID, ToPos: w.ToPos, ElemID: w.ElemID, Key: w.Key, MapDeleted: w.MapDeleted,
			Target: w.Target, Parent: w.Parent, HasParent: w.HasParent, FractIndex: w.FractIndex, TreeDeleted: w.TreeDeleted,
			Delta: w.Delta,
		},
	}, nil
}

// wireChange is Change's wire shape.
type wireChange struct {
	Peer      id.PeerID   `json:"peer"`
	Counter   id.Counter  `json:"counter"`
	Lamport   id.Lamport  `json:"lamport"`
	Deps      []id.ID     `json:"deps,omitempty"`
	Timestamp int64       `json:"ts"`
	Message   string      `json:"msg,omitempty"`
	Ops       []wireOp    `json:"ops"`
}

// containerTable accumulates the distinct ContainerIDs referenced by a
// batch of changes, in first-seen order, so ops can refer to them by a
// small table index instead of a process-local ContainerIdx.
type containerTable struct {
	ids []change.ContainerID
	idx map[change.ContainerID]int
}

func newContainerTable() *containerTable {
	return &containerTable{idx: make(map[change.ContainerID]int)}
}

func (t *containerTable) ref(cid change.ContainerID) int {
	if i, ok := t.idx[cid]; ok {
		return i
	}
	i := len(t.ids)
	t.ids = append(t.ids, cid)
	t.idx[cid] = i
	return i
}

func encodeChanges(changes []*change.Change, registry *change.Registry) ([]wireContainerID, []wireChange, error) {
	table := newContainerTable()
	wireChanges := make([]wireChange, 0, len(changes))
	for _, c := range changes {
		wc := wireChange{
			Peer: c.ID.Peer, Counter: c.ID.Counter, Lamport: c.Lamport,
			Deps: []id.ID(c.Deps), Timestamp: c.Timestamp, Message: c.Message,
		}
		for _, op := range c.Ops {
			cid, ok := registry.ID(op.Container)
			if !ok {
				continue
			}
			wo, err := toWireOp(op, table.ref(cid))
			if err != nil {
				return nil, nil, err
			}
			wc.Ops = append(wc.Ops, wo)
		}
		wireChanges = append(wireChanges, wc)
	}
	wireTable := make([]wireContainerID, len(table.ids))
	for i, cid := range table.ids {
		wireTable[i] = toWireContainerID(cid)
	}
	return wireTable, wireChanges, nil
}

func decodeChanges(table []wireContainerID, changes []wireChange, registry *change.Registry) ([]*change.Change, error) {
	idxByRef := make([]change.ContainerIdx, len(table))
	for i, w := range table {
		idxByRef[i] = registry.Intern(fromWireContainerID(w))
	}
	out := make([]*change.Change, 0, len(changes))
	for _, wc := range changes {
		for _, dep := range wc.Deps {
			if dep.Peer == wc.Peer && dep.Counter >= wc.Counter {
				return nil, errs.New(errs.DecodeError,
					fmt.Sprintf("change %d@%d depends on a future counter of its own peer (%s)", wc.Counter, wc.Peer, dep))
			}
		}
		c := &change.Change{
			ID: id.NewID(wc.Peer, wc.Counter), Lamport: wc.Lamport, Deps: id.Frontiers(wc.Deps),
			Timestamp: wc.Timestamp, Message: wc.Message, Frozen: true,
		}
		next := wc.Counter
		for _, wo := range wc.Ops {
			if wo.ContainerRef < 0 || wo.ContainerRef >= len(idxByRef) {
				return nil, errs.New(errs.DecodeError, "op references a container outside the payload table")
			}
			op, err := fromWireOp(wo, idxByRef[wo.ContainerRef])
			if err != nil {
				return nil, err
			}
			if op.Counter != next {
				return nil, errs.New(errs.DecodeError,
					fmt.Sprintf("change %d@%d has a counter gap at op %d (want %d)", wc.Counter, wc.Peer, op.Counter, next))
			}
			next += id.Counter(op.Len())
			c.Ops = append(c.Ops, op)
		}
		out = append(out, c)
	}
	return out, nil
}
