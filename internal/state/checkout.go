package state

import (
	"sort"

	"github.com/loro-dev/loro-go/internal/change"
	"github.com/loro-dev/loro-go/internal/containers/ifc"
	"github.com/loro-dev/loro-go/internal/errs"
	"github.com/loro-dev/loro-go/internal/id"
)

// Checkout recomputes state at target. When target is
// reachable from the current state by forward application only (the
// Linear case: targetVV dominates stateVV), it takes the fast path and
// applies just the missing ops directly. Otherwise it rebuilds every
// container from scratch by replaying the full topological order up to
// targetVV — the general "undo set / redo set" transition collapses to a
// full replay here rather than per-container incremental trackers. Either
// way the document becomes Detached; Attach() returns it to the oplog's
// latest frontier.
func (d *Doc) Checkout(target id.Frontiers, registry *change.Registry) error {
	targetVV := d.log.FrontiersToVV(target)

	d.mu.Lock()
	defer d.mu.Unlock()

	for _, tip := range target {
		if tip.Counter < d.shallowVV.Get(tip.Peer) && !d.shallowFrontiers.Contains(tip) {
			return errs.New(errs.HistoryCleared, "checkout target is below the shallow-snapshot cutoff")
		}
	}

	from := d.frontiers.Clone()

	if targetVV.DominatesOrEqual(d.stateVV) {
		d.applyForwardLocked(targetVV, registry)
	} else {
		d.replayFromScratchLocked(targetVV, registry)
		if d.metrics != nil {
			d.metrics.CheckoutReplays.Inc()
		}
	}

	d.stateVV = targetVV
	d.frontiers = target.Clone()
	d.mode = Detached

	idxs := make([]change.ContainerIdx, 0, len(d.containers))
	for idx := range d.containers {
		idxs = append(idxs, idx)
	}
	sort.Slice(idxs, func(i, j int) bool { return idxs[i] < idxs[j] })
	var diffs []ContainerDiff
	for _, idx := range idxs {
		if cid, ok := registry.ID(idx); ok {
			diffs = append(diffs, ContainerDiff{ID: cid, Diff: ifc.Diff{Kind: ifc.DiffReset, ResetValue: d.containers[idx].Value()}})
		}
	}

	dd := DocDiff{From: from, To: d.frontiers.Clone(), Origin: "checkout", Local: true, Diffs: diffs}
	d.dispatchLocked(dd)
	return nil
}

// Attach recomputes state at the oplog's current frontier and returns the
// document to Attached mode.
func (d *Doc) Attach(registry *change.Registry) {
	latest := d.log.Frontiers()
	_ = d.Checkout(latest, registry)
	d.mu.Lock()
	d.mode = Attached
	d.mu.Unlock()
}

// applyRecordLocked applies a single op record to its container, creating
// the container state lazily if this is its first op.
func (d *Doc) applyRecordLocked(registry *change.Registry, peer id.PeerID, lamport id.Lamport, op change.Op) ifc.Diff {
	cid, ok := registry.ID(op.Container)
	if !ok {
		return ifc.Diff{}
	}
	st := d.containerLocked(op.Container, cid.Kind)
	return st.Apply(lamport, peer, op)
}

// applyForwardLocked applies every op not yet covered by stateVV but
// covered by targetVV, in topological order — the fast path for a purely
// forward transition. An op straddling the already-known prefix is sliced
// so only its uncovered tail applies; whole-op dedup inside the containers
// handles exact duplicates.
func (d *Doc) applyForwardLocked(targetVV id.VersionVector, registry *change.Registry) {
	for _, rec := range d.log.TopoOpsUpTo(targetVV) {
		known := d.stateVV.Get(rec.Peer)
		opEnd := rec.Op.Counter + id.Counter(rec.Op.Len())
		if opEnd <= known {
			continue
		}
		op := rec.Op
		lamport := rec.Lamport
		if op.Counter < known {
			offset := int(known - op.Counter)
			op = op.SliceFrom(rec.Peer, offset)
			lamport += id.Lamport(offset)
		}
		d.applyRecordLocked(registry, rec.Peer, lamport, op)
		d.stateVV.SetEnd(rec.Peer, opEnd)
	}
}

// replayFromScratchLocked rebuilds every container touched by ops up to
// targetVV by discarding current state and reapplying the full history
// in topological order. A document built from a shallow snapshot has no
// history below the cutoff, so the replay restarts from the frozen gc
// state instead of from empty.
func (d *Doc) replayFromScratchLocked(targetVV id.VersionVector, registry *change.Registry) {
	d.containers = make(map[change.ContainerIdx]ifc.ContainerState)
	d.stateVV = id.NewVersionVector()
	if len(d.gcBlobs) > 0 {
		// Decode failures were already caught when the shallow snapshot was
		// first installed; the retained blobs cannot go bad afterwards.
		_ = d.decodeBlobsLocked(registry, d.gcBlobs)
		d.stateVV = d.shallowVV.Clone()
	}
	d.applyForwardLocked(targetVV, registry)
}

// MaterializeAt rebuilds, without touching the live state, every
// container's value as of targetVV and returns the per-container snapshot
// blobs — the frozen-at-version state an export needs for SnapshotAt and a
// shallow snapshot's gc-kv section.
func (d *Doc) MaterializeAt(targetVV id.VersionVector, registry *change.Registry) map[string][]byte {
	d.mu.RLock()
	defer d.mu.RUnlock()

	scratch := make(map[change.ContainerIdx]ifc.ContainerState)
	if len(d.gcBlobs) > 0 {
		for i := change.ContainerIdx(1); ; i++ {
			cid, ok := registry.ID(i)
			if !ok {
				break
			}
			blob, ok := d.gcBlobs[cid.String()]
			if !ok {
				continue
			}
			st := newContainerState(cid.Kind)
			if err := st.DecodeSnapshot(blob); err == nil {
				scratch[i] = st
			}
		}
	}
	seen := d.shallowVV.Clone()
	if seen == nil {
		seen = id.NewVersionVector()
	}
	for _, rec := range d.log.TopoOpsUpTo(targetVV) {
		known := seen.Get(rec.Peer)
		opEnd := rec.Op.Counter + id.Counter(rec.Op.Len())
		if opEnd <= known {
			continue
		}
		op := rec.Op
		lamport := rec.Lamport
		if op.Counter < known {
			offset := int(known - op.Counter)
			op = op.SliceFrom(rec.Peer, offset)
			lamport += id.Lamport(offset)
		}
		cid, ok := registry.ID(op.Container)
		if !ok {
			continue
		}
		st, ok := scratch[op.Container]
		if !ok {
			st = newContainerState(cid.Kind)
			scratch[op.Container] = st
		}
		st.Apply(lamport, rec.Peer, op)
		seen.SetEnd(rec.Peer, opEnd)
	}

	out := make(map[string][]byte, len(scratch))
	for idx, st := range scratch {
		if cid, ok := registry.ID(idx); ok {
			out[cid.String()] = st.EncodeSnapshot()
		}
	}
	return out
}
