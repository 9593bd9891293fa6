// Package oplog is the append-only change log: it orders incoming
// Changes by causal readiness, assigns lamport timestamps, merges
// same-peer changes under the size/time thresholds change.Change
// defines, and answers the version-vector / frontier queries the rest of
// the engine needs (find-common-ancestor, frontiers<->vv conversion,
// causal span diffing).
package oplog

import (
	"fmt"
	"sort"
	"sync"

	"github.com/loro-dev/loro-go/internal/change"
	"github.com/loro-dev/loro-go/internal/errs"
	"github.com/loro-dev/loro-go/internal/id"
)

// OpLog is the causal history of every change ever imported or
// committed locally.
type OpLog struct {
	mu sync.RWMutex

	registry *change.Registry

	// changesByPeer[p] holds every Change authored by peer p, sorted by
	// starting counter and never overlapping.
	changesByPeer map[id.PeerID][]*change.Change

	vv        id.VersionVector
	frontiers id.Frontiers

	// pending holds changes that arrived before one of their deps did,
	// keyed by the specific missing dependency id so it can be flushed the
	// moment that id becomes known.
	pending map[id.ID][]*change.Change

	localCounter map[id.PeerID]id.Counter

	// shallowVV is the floor below which this log holds no changes: set
	// once when a shallow/GC snapshot is imported, empty otherwise. Ops
	// below it are known-applied but unavailable for iteration.
	shallowVV id.VersionVector

	// shallowLamport is the largest lamport among the discarded prefix,
	// so lamport assignment stays monotonic when a local change's deps
	// resolve to cutoff tips whose owning changes are gone.
	shallowLamport id.Lamport
}

// New returns an empty OpLog.
func New() *OpLog {
	return &OpLog{
		registry:      change.NewRegistry(),
		changesByPeer: make(map[id.PeerID][]*change.Change),
		vv:            id.NewVersionVector(),
		pending:       make(map[id.ID][]*change.Change),
		localCounter:  make(map[id.PeerID]id.Counter),
	}
}

// Registry returns the container-id interner shared by every op this log
// stores.
func (o *OpLog) Registry() *change.Registry { return o.registry }

// InitShallow seeds an empty log with the cutoff of a shallow/GC
// snapshot: everything below vv is treated as already applied even though
// the changes themselves are gone, and f becomes the starting frontier
// the retained suffix builds on. Must be called before any change is
// imported or committed.
func (o *OpLog) InitShallow(vv id.VersionVector, f id.Frontiers, lamport id.Lamport) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.vv = vv.Clone()
	o.frontiers = f.Clone()
	o.shallowVV = vv.Clone()
	o.shallowLamport = lamport
	for p, end := range vv {
		if end > o.localCounter[p] {
			o.localCounter[p] = end
		}
	}
}

// ShallowSince returns the floor below which history has been discarded,
// or an empty vv for a full-history log.
func (o *OpLog) ShallowSince() id.VersionVector {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.shallowVV.Clone()
}

// VersionVector returns a copy of the log's current version vector.
func (o *OpLog) VersionVector() id.VersionVector {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.vv.Clone()
}

// Frontiers returns a copy of the log's current frontier set.
func (o *OpLog) Frontiers() id.Frontiers {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.frontiers.Clone()
}

// Contains reports whether target has already been imported.
func (o *OpLog) Contains(target id.ID) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.vv.Includes(target)
}

// findChange returns the Change owning target, via a linear scan over its
// peer's (typically short) change list. Real deployments would binary
// search; kept simple since each peer's list is usually tiny relative to
// total history thanks to change merging.
func (o *OpLog) findChange(target id.ID) (*change.Change, bool) {
	for _, c := range o.changesByPeer[target.Peer] {
		if c.IDSpan().Contains(target) {
			return c, true
		}
	}
	return nil, false
}

// LamportOf returns the lamport timestamp of a specific op id.
func (o *OpLog) LamportOf(target id.ID) (id.Lamport, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	c, ok := o.findChange(target)
	if !ok {
		return 0, false
	}
	return c.Lamport + id.Lamport(target.Counter-c.ID.Counter), true
}

// precedes reports whether a is a causal ancestor of (or equal to) b,
// walking b's change's deps transitively. Used as the Frontiers.Insert
// predicate, which needs exactly this DAG-aware comparison rather than
// the shallow placeholder id/frontier.go ships with.
func (o *OpLog) precedes(a, b id.ID) bool {
	if a == b {
		return true
	}
	visited := make(map[id.ID]bool)
	queue := []id.ID{b}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if visited[cur] {
			continue
		}
		visited[cur] = true
		c, ok := o.findChange(cur)
		if !ok {
			continue
		}
		if c.ID.Peer == a.Peer && a.Counter >= c.ID.Counter && a.Counter < cur.Counter {
			return true
		}
		if c.ID.Counter <= cur.Counter && cur.Counter > c.ID.Counter && c.ID.Peer == cur.Peer {
			// Walking backwards within the same change: the predecessor op
			// is the one right before cur in this change.
			queue = append(queue, id.ID{Peer: cur.Peer, Counter: cur.Counter - 1})
			if c.ID.Counter == cur.Counter {
				queue = append(queue, c.Deps...)
			}
			continue
		}
		queue = append(queue, c.Deps...)
	}
	return false
}

// Precedes reports whether a causally precedes or equals b. Exposed so
// internal/state can keep its own frontier up to date using the same
// DAG-aware comparison the log uses internally (id.Frontiers.Insert needs
// a precedesFn and has no DAG access of its own).
func (o *OpLog) Precedes(a, b id.ID) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.precedes(a, b)
}

// CommitResult describes what committing local ops produced.
type CommitResult struct {
	Change  *change.Change
	Merged  bool
	Applied []change.Op
}

// CommitLocal appends ops authored locally by peer as a new Change (or
// merges them into the peer's still-open tail change, per
// change.Change.CanMergeWith), assigns counters and a lamport, and
// advances the log's version vector and frontiers.
func (o *OpLog) CommitLocal(peer id.PeerID, ops []change.Op, msg string, now change.Timestamp) (*CommitResult, error) {
	if len(ops) == 0 {
		return nil, fmt.Errorf("oplog: commit with no ops")
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	counter := o.localCounter[peer]
	opLen := 0
	for _, op := range ops {
		opLen += op.Len()
	}

	deps := o.frontiers.Clone()
	candidate := &change.Change{
		ID:        id.NewID(peer, counter),
		Lamport:   o.depsMaxLamportLocked(deps),
		Deps:      deps,
		Timestamp: now,
		Message:   msg,
		Ops:       ops,
	}

	if tail := o.tailChangeLocked(peer); tail != nil && tail.CanMergeWith(candidate) {
		tail.MergeFrom(candidate)
		o.localCounter[peer] = counter + id.Counter(opLen)
		o.vv.SetEnd(peer, counter+id.Counter(opLen))
		o.frontiers = id.Frontiers{tail.ID.Inc(int32(tail.Len() - 1))}
		return &CommitResult{Change: tail, Merged: true, Applied: ops}, nil
	}

	if tail := o.tailChangeLocked(peer); tail != nil {
		tail.Frozen = true
	}

	o.changesByPeer[peer] = append(o.changesByPeer[peer], candidate)
	o.localCounter[peer] = counter + id.Counter(opLen)
	o.vv.SetEnd(peer, counter+id.Counter(opLen))
	o.frontiers = id.Frontiers{candidate.ID.Inc(int32(opLen - 1))}

	return &CommitResult{Change: candidate, Merged: false, Applied: ops}, nil
}

func (o *OpLog) tailChangeLocked(peer id.PeerID) *change.Change {
	list := o.changesByPeer[peer]
	if len(list) == 0 {
		return nil
	}
	return list[len(list)-1]
}

func (o *OpLog) depsMaxLamportLocked(deps id.Frontiers) id.Lamport {
	if len(deps) == 0 {
		return 0
	}
	var maxL id.Lamport
	first := true
	for _, d := range deps {
		c, ok := o.findChange(d)
		if !ok {
			// A dep at the shallow cutoff has no retained change; its
			// lamport is bounded by the cutoff's own maximum.
			if o.vv.Includes(d) && o.shallowLamport > 0 && (first || o.shallowLamport > maxL) {
				maxL = o.shallowLamport
				first = false
			}
			continue
		}
		l := c.Lamport + id.Lamport(d.Counter-c.ID.Counter)
		if first || l > maxL {
			maxL = l
			first = false
		}
	}
	if first {
		return 0
	}
	return maxL + 1
}

// FrontierLamport returns the lamport a change whose deps equal f would be
// assigned: deps-max-lamport-plus-one. Exposed so pkg/loro's Txn can learn
// a batch's lamport before any op in it is authored, keeping every op in
// the batch consistent with change.Change's own per-op lamport increment.
func (o *OpLog) FrontierLamport(f id.Frontiers) id.Lamport {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.depsMaxLamportLocked(f)
}

// CommitPrepared folds an already-built local Change into the log: ids
// were pre-reserved by the caller via AllocateCounter and its ops were
// already applied to DocState as they were authored, so unlike
// CommitLocal this does not mint counters or a lamport, it only merges the
// change into the peer's still-open tail (per change.Change.CanMergeWith)
// or appends it, advancing vv/frontiers to its end. Used by pkg/loro's
// Txn, which must apply ops to DocState one at a time (so a later op in
// the same txn sees an earlier one) before the owning Change exists in
// the log at all.
func (o *OpLog) CommitPrepared(c *change.Change) (*CommitResult, error) {
	if len(c.Ops) == 0 {
		return nil, fmt.Errorf("oplog: commit with no ops")
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	peer := c.ID.Peer
	opLen := c.Len()
	end := c.ID.Counter + id.Counter(opLen)

	if tail := o.tailChangeLocked(peer); tail != nil && tail.CanMergeWith(c) {
		tail.MergeFrom(c)
		o.localCounter[peer] = end
		o.vv.SetEnd(peer, end)
		o.frontiers = id.Frontiers{tail.ID.Inc(int32(tail.Len() - 1))}
		return &CommitResult{Change: tail, Merged: true, Applied: c.Ops}, nil
	}

	if tail := o.tailChangeLocked(peer); tail != nil {
		tail.Frozen = true
	}
	o.changesByPeer[peer] = append(o.changesByPeer[peer], c)
	o.localCounter[peer] = end
	o.vv.SetEnd(peer, end)
	o.frontiers = id.Frontiers{c.ID.Inc(int32(opLen - 1))}
	return &CommitResult{Change: c, Merged: false, Applied: c.Ops}, nil
}

// Import brings in a Change authored elsewhere (or re-delivered). If any
// of its deps are missing it is buffered and Import returns an empty,
// non-error result; the caller should keep calling Import as more
// changes arrive. A malformed change — a dep naming a future counter of
// its own peer, a counter gap against its peer's admitted prefix, or a
// lamport inconsistent with its deps — is rejected with a DecodeError
// and never touches the log. Returns every change that became causally
// ready as a result (including candidate itself and any it unblocked),
// in an order safe to apply front-to-back; when a rejection happens
// while draining buffered changes, the valid ones are still returned
// alongside the error.
func (o *OpLog) Import(c *change.Change) ([]*change.Change, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	for _, dep := range c.Deps {
		if dep.Peer == c.ID.Peer && dep.Counter >= c.ID.Counter {
			return nil, errs.New(errs.DecodeError,
				fmt.Sprintf("change %s depends on a future counter of its own peer (%s)", c.ID, dep))
		}
	}

	if o.vv.IncludesSpan(c.IDSpan()) {
		return nil, nil // already known; idempotent no-op
	}

	known := o.vv.Get(c.ID.Peer)
	if known > c.ID.Counter {
		// c straddles our current prefix of this peer's log: the part we
		// already have must be dropped before admitting the rest.
		offset := int(known - c.ID.Counter)
		sliced := c.SliceFrom(offset)
		if sliced == nil {
			return nil, nil
		}
		c = sliced
	}

	return o.admitLocked(c)
}

// validateReadyLocked checks a change whose deps are all admitted for the
// two consistency rules only decidable at that point: its counters must
// continue its own peer's admitted prefix with no gap, and its lamport
// must equal max(lamport(deps)) + 1. The lamport rule is skipped when a
// dep lies below the shallow cutoff, where the true dep lamport is gone.
func (o *OpLog) validateReadyLocked(c *change.Change) error {
	if known := o.vv.Get(c.ID.Peer); known < c.ID.Counter {
		return errs.New(errs.DecodeError,
			fmt.Sprintf("change %s skips counters %d..%d of its own peer", c.ID, known, c.ID.Counter))
	}
	for _, dep := range c.Deps {
		if dep.Counter < o.shallowVV.Get(dep.Peer) {
			return nil
		}
	}
	if want := o.depsMaxLamportLocked(c.Deps); c.Lamport != want {
		return errs.New(errs.DecodeError,
			fmt.Sprintf("change %s carries lamport %d, its deps imply %d", c.ID, c.Lamport, want))
	}
	return nil
}

// admitLocked attempts to admit c, buffering it if deps are missing, and
// returns the (possibly empty) list of changes newly admitted as a
// result, including cascaded unblocks. A change failing validation once
// its deps are present is dropped with the error; cascaded admissions
// continue past it.
func (o *OpLog) admitLocked(c *change.Change) ([]*change.Change, error) {
	for _, dep := range c.Deps {
		if !o.vv.Includes(dep) {
			o.pending[dep] = append(o.pending[dep], c)
			return nil, nil
		}
	}

	if err := o.validateReadyLocked(c); err != nil {
		return nil, err
	}

	c.Frozen = true
	o.changesByPeer[c.ID.Peer] = append(o.changesByPeer[c.ID.Peer], c)
	end := c.ID.Counter + id.Counter(c.Len())
	o.vv.SetEnd(c.ID.Peer, end)
	if end > o.localCounter[c.ID.Peer] {
		o.localCounter[c.ID.Peer] = end
	}
	o.frontiers = o.frontiers.Insert(c.ID.Inc(int32(c.Len()-1)), o.precedes)

	ready := []*change.Change{c}
	var firstErr error
	// Any change waiting on any op within c's span can now proceed.
	for i := c.ID.Counter; i < end; i++ {
		waitKey := id.NewID(c.ID.Peer, i)
		waiters := o.pending[waitKey]
		if len(waiters) == 0 {
			continue
		}
		delete(o.pending, waitKey)
		for _, w := range waiters {
			r, err := o.admitLocked(w)
			if err != nil && firstErr == nil {
				firstErr = err
			}
			ready = append(ready, r...)
		}
	}
	return ready, firstErr
}

// AllocateCounter reserves opLen counter slots for peer without recording
// a change yet — used by a Txn building up a batch of ops locally before
// committing them all at once via CommitPrepared.
func (o *OpLog) AllocateCounter(peer id.PeerID, opLen int) id.Counter {
	o.mu.Lock()
	defer o.mu.Unlock()
	c := o.localCounter[peer]
	o.localCounter[peer] = c + id.Counter(opLen)
	return c
}

// Changes returns every change known for peer, in counter order. Used by
// export and by diagnose_size.
func (o *OpLog) Changes(peer id.PeerID) []*change.Change {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return append([]*change.Change(nil), o.changesByPeer[peer]...)
}

// Peers returns every peer id with at least one change in the log.
func (o *OpLog) Peers() []id.PeerID {
	o.mu.RLock()
	defer o.mu.RUnlock()
	peers := make([]id.PeerID, 0, len(o.changesByPeer))
	for p := range o.changesByPeer {
		peers = append(peers, p)
	}
	sort.Slice(peers, func(i, j int) bool { return peers[i] < peers[j] })
	return peers
}

// ChangesSince returns every change not yet covered by vv, across every
// peer — the payload of an incremental export/update.
func (o *OpLog) ChangesSince(vv id.VersionVector) []*change.Change {
	o.mu.RLock()
	defer o.mu.RUnlock()
	var out []*change.Change
	for peer, list := range o.changesByPeer {
		known := vv.Get(peer)
		for _, c := range list {
			if c.ID.Counter+id.Counter(c.Len()) > known {
				out = append(out, c)
			}
		}
	}
	return out
}

// PendingCount returns the number of distinct changes currently buffered
// waiting on a missing causal dependency.
func (o *OpLog) PendingCount() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	seen := make(map[*change.Change]bool)
	for _, waiters := range o.pending {
		for _, w := range waiters {
			seen[w] = true
		}
	}
	return len(seen)
}

// MissingDeps returns every dependency id that at least one buffered
// change is still waiting on — the Document API's pending_changes query.
func (o *OpLog) MissingDeps() []id.ID {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]id.ID, 0, len(o.pending))
	for dep := range o.pending {
		out = append(out, dep)
	}
	return out
}

// OpRecord pairs a single op with the lamport/peer it was authored under,
// the unit the diff calculator's topological replay walks in.
type OpRecord struct {
	Peer    id.PeerID
	Lamport id.Lamport
	Op      change.Op
}

// ID returns the op's own id (the id of its first counter slot).
func (r OpRecord) ID() id.ID { return id.NewID(r.Peer, r.Op.Counter) }

// TopoOpsUpTo returns every op covered by vv, ordered by (lamport asc,
// peer asc) — a valid topological order of the DAG, since
// lamport(op) = 1 + max(lamport(deps)) guarantees every op sorts strictly
// after everything it depends on. Used by the diff calculator's replay
// path (checkout, shallow-snapshot reconstruction).
func (o *OpLog) TopoOpsUpTo(vv id.VersionVector) []OpRecord {
	o.mu.RLock()
	defer o.mu.RUnlock()

	var out []OpRecord
	for peer, list := range o.changesByPeer {
		limit := vv.Get(peer)
		for _, c := range list {
			if c.ID.Counter >= limit {
				continue
			}
			lamport := c.Lamport
			counter := c.ID.Counter
			for _, op := range c.Ops {
				if counter >= limit {
					break
				}
				if counter+id.Counter(op.Len()) > limit {
					// The target version cuts mid-op: emit only the covered
					// prefix so replay stops exactly at the boundary.
					out = append(out, OpRecord{Peer: peer, Lamport: lamport, Op: op.SliceTo(int(limit - counter))})
					break
				}
				out = append(out, OpRecord{Peer: peer, Lamport: lamport, Op: op})
				step := id.Lamport(op.Len())
				lamport += step
				counter += id.Counter(op.Len())
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Lamport != out[j].Lamport {
			return out[i].Lamport < out[j].Lamport
		}
		return out[i].Peer < out[j].Peer
	})
	return out
}

// FrontiersToVV converts a frontier into the version vector of everything
// it (transitively) dominates, by walking deps backward from each tip.
func (o *OpLog) FrontiersToVV(f id.Frontiers) id.VersionVector {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.frontiersToVVLocked(f)
}

func (o *OpLog) frontiersToVVLocked(f id.Frontiers) id.VersionVector {
	vv := id.NewVersionVector()
	visited := make(map[id.ID]bool)
	queue := append(id.Frontiers(nil), f...)
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if visited[cur] {
			continue
		}
		visited[cur] = true
		vv.SetEnd(cur.Peer, cur.Counter+1)
		c, ok := o.findChange(cur)
		if !ok {
			continue
		}
		if cur.Counter > c.ID.Counter {
			queue = append(queue, id.ID{Peer: cur.Peer, Counter: cur.Counter - 1})
		} else {
			queue = append(queue, c.Deps...)
		}
	}
	// Below the shallow cutoff the walk finds no changes to follow, so the
	// discarded prefix is folded in wholesale: every resolvable frontier in
	// a shallow log sits at or above the cutoff by construction.
	if len(o.shallowVV) > 0 {
		vv = id.Merge(vv, o.shallowVV)
	}
	return vv
}

// VVToFrontiers converts a complete version vector back into its minimal
// frontier, the inverse of FrontiersToVV when vv is closed under
// causality.
func (o *OpLog) VVToFrontiers(vv id.VersionVector) id.Frontiers {
	o.mu.RLock()
	defer o.mu.RUnlock()
	var f id.Frontiers
	for peer, end := range vv {
		if end <= 0 {
			continue
		}
		f = f.Insert(id.NewID(peer, end-1), o.precedes)
	}
	return f
}

// CommonAncestor returns the greatest frontier dominated by both f1 and
// f2, computed as the pointwise-min of their equivalent version vectors.
func (o *OpLog) CommonAncestor(f1, f2 id.Frontiers) id.Frontiers {
	o.mu.RLock()
	vv1 := o.frontiersToVVLocked(f1)
	vv2 := o.frontiersToVVLocked(f2)
	o.mu.RUnlock()

	meet := id.NewVersionVector()
	for p, c := range vv1 {
		if c2, ok := vv2[p]; ok {
			if c2 < c {
				c = c2
			}
			meet.SetEnd(p, c)
		}
	}
	return o.VVToFrontiers(meet)
}

// CompareResult is the outcome of comparing two frontiers.
type CompareResult int

const (
	CompareEqual CompareResult = iota
	CompareLess
	CompareGreater
	CompareConcurrent
)

// CompareFrontiers classifies the causal relationship between a and b.
func (o *OpLog) CompareFrontiers(a, b id.Frontiers) CompareResult {
	if a.Equal(b) {
		return CompareEqual
	}
	vvA := o.FrontiersToVV(a)
	vvB := o.FrontiersToVV(b)
	aDomB := vvA.DominatesOrEqual(vvB)
	bDomA := vvB.DominatesOrEqual(vvA)
	switch {
	case aDomB && bDomA:
		return CompareEqual
	case aDomB:
		return CompareGreater
	case bDomA:
		return CompareLess
	default:
		return CompareConcurrent
	}
}
