package state

import (
	"sort"
	"sync"

	"github.com/loro-dev/loro-go/internal/change"
	"github.com/loro-dev/loro-go/internal/containers/ifc"
	"github.com/loro-dev/loro-go/internal/errs"
	"github.com/loro-dev/loro-go/internal/id"
	"github.com/loro-dev/loro-go/internal/logging"
	"github.com/loro-dev/loro-go/internal/metrics"
	"github.com/loro-dev/loro-go/internal/oplog"
)

// Mode is the document's attach state.
type Mode uint8

const (
	Attached Mode = iota
	Detached
)

// ContainerDiff pairs a container id with the user-facing Diff one op (or
// a checkout reconciliation) produced for it.
type ContainerDiff struct {
	ID   change.ContainerID
	Diff ifc.Diff
}

// DocDiff is the event emitted to subscribers after a commit, import, or
// checkout: every container diff produced by that single causal
// transition, bundled with the frontier pair it moved between.
type DocDiff struct {
	From   id.Frontiers
	To     id.Frontiers
	Origin string
	Local  bool
	Diffs  []ContainerDiff
}

// Subscription is the handle returned by Doc.Subscribe; Unsubscribe stops
// future delivery. The zero value is a no-op Unsubscribe.
type Subscription struct {
	doc *Doc
	id  int
}

// Unsubscribe removes the callback this Subscription was created from.
func (s Subscription) Unsubscribe() {
	if s.doc == nil {
		return
	}
	s.doc.unsubscribe(s.id)
}

type subscriber struct {
	id        int
	container *change.ContainerID // nil means "root": fires for every DocDiff
	callback  func(DocDiff)
}

// Doc is the container-state orchestrator: the dense idx->state table,
// the current/state version vector and frontiers, attach mode, and the
// subscriber registry. It is mutated only while holding mu, matching the
// DocState position in the engine's fixed lock hierarchy
// (Txn -> OpLog -> DocState -> DiffCalculator).
type Doc struct {
	mu sync.RWMutex

	log *oplog.OpLog

	containers map[change.ContainerIdx]ifc.ContainerState
	stateVV    id.VersionVector
	frontiers  id.Frontiers
	mode       Mode

	// shallowVV is the cutoff below which history has been discarded by a
	// shallow/GC snapshot import; queries at or below it fail with
	// HistoryCleared. shallowFrontiers is the cutoff's frontier form, and
	// gcBlobs the frozen per-container state at the cutoff, kept so a
	// from-scratch replay can start there instead of from empty.
	shallowVV        id.VersionVector
	shallowFrontiers id.Frontiers
	gcBlobs          map[string][]byte

	subs    []subscriber
	nextSub int

	logger  *logging.Logger
	metrics *metrics.Metrics
}

// New returns an empty Doc bound to log. logger/metrics may be nil, in
// which case diffing and checkout proceed silently uninstrumented.
func New(log *oplog.OpLog, logger *logging.Logger, m *metrics.Metrics) *Doc {
	return &Doc{
		log:        log,
		containers: make(map[change.ContainerIdx]ifc.ContainerState),
		stateVV:    id.NewVersionVector(),
		shallowVV:  id.NewVersionVector(),
		logger:     logger,
		metrics:    m,
	}
}

// Mode returns the document's current attach state.
func (d *Doc) Mode() Mode {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.mode
}

// StateVV returns a copy of the version vector the materialized state
// reflects (may differ from the oplog's own vv when detached).
func (d *Doc) StateVV() id.VersionVector {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.stateVV.Clone()
}

// StateFrontiers returns a copy of the frontier the materialized state
// reflects.
func (d *Doc) StateFrontiers() id.Frontiers {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.frontiers.Clone()
}

// ShallowVV returns the cutoff below which history is unavailable, or an
// empty vv if this document has never imported a shallow snapshot.
func (d *Doc) ShallowVV() id.VersionVector {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.shallowVV.Clone()
}

// InstallShallowBase seeds a fresh document from a shallow snapshot's
// gc-kv blob: every container frozen at the cutoff is rebuilt from its
// blob, the blobs themselves are retained (a later from-scratch replay
// restarts from them, since the ops that produced them are gone), and
// stateVV/frontiers start at the cutoff. The retained oplog suffix is
// then applied on top via ApplyChanges.
func (d *Doc) InstallShallowBase(registry *change.Registry, gcBlobs map[string][]byte, cutoffVV id.VersionVector, cutoff id.Frontiers) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.decodeBlobsLocked(registry, gcBlobs); err != nil {
		return err
	}
	d.gcBlobs = make(map[string][]byte, len(gcBlobs))
	for k, v := range gcBlobs {
		d.gcBlobs[k] = v
	}
	d.shallowVV = cutoffVV.Clone()
	d.shallowFrontiers = cutoff.Clone()
	d.stateVV = cutoffVV.Clone()
	d.frontiers = cutoff.Clone()
	return nil
}

// decodeBlobsLocked rebuilds container states from per-container snapshot
// blobs keyed by ContainerID string, resolving against registry's
// already-interned ids.
func (d *Doc) decodeBlobsLocked(registry *change.Registry, blobs map[string][]byte) error {
	for i := change.ContainerIdx(1); ; i++ {
		cid, ok := registry.ID(i)
		if !ok {
			break
		}
		blob, ok := blobs[cid.String()]
		if !ok {
			continue
		}
		st := d.containerLocked(i, cid.Kind)
		if err := st.DecodeSnapshot(blob); err != nil {
			return errs.Wrap(errs.DecodeError, "container state blob failed to decode", err)
		}
	}
	return nil
}

// containerLocked returns (creating if necessary) the ContainerState for
// idx, given the kind it was registered under.
func (d *Doc) containerLocked(idx change.ContainerIdx, kind change.ContainerKind) ifc.ContainerState {
	st, ok := d.containers[idx]
	if !ok {
		st = newContainerState(kind)
		d.containers[idx] = st
	}
	return st
}

// Container returns the live ContainerState for idx, if any has been
// materialized yet.
func (d *Doc) Container(idx change.ContainerIdx) (ifc.ContainerState, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	st, ok := d.containers[idx]
	return st, ok
}

// EnsureContainer returns the ContainerState for idx, creating an empty
// one of the given kind if this is the first reference — used by
// container handles (pkg/loro) to materialize a root container lazily on
// first access, and by ApplyChange for containers a fresh op first
// references.
func (d *Doc) EnsureContainer(idx change.ContainerIdx, kind change.ContainerKind) ifc.ContainerState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.containerLocked(idx, kind)
}

// ApplyChange applies every op of c to the corresponding container
// states, in order, advancing stateVV/frontiers to c's end, and returns
// the DocDiff the whole change produced (container diffs grouped by
// creation order). origin/local are
// attached verbatim to the result.
func (d *Doc) ApplyChange(c *change.Change, registry *change.Registry, origin string, local bool) DocDiff {
	return d.ApplyChanges([]*change.Change{c}, registry, origin, local)
}

// ApplyChanges applies a batch of causally-ordered changes (the ready
// list one Import call drained) and dispatches a single DocDiff covering
// the whole batch: observers for one import observe
// exactly one event.
func (d *Doc) ApplyChanges(changes []*change.Change, registry *change.Registry, origin string, local bool) DocDiff {
	d.mu.Lock()
	defer d.mu.Unlock()

	from := d.frontiers.Clone()
	byContainer := make(map[change.ContainerIdx][]ifc.Diff)
	var order []change.ContainerIdx
	seen := make(map[change.ContainerIdx]bool)

	for _, c := range changes {
		lamport := c.Lamport
		counter := c.ID.Counter
		for _, op := range c.Ops {
			cid, ok := registry.ID(op.Container)
			if !ok {
				continue
			}
			st := d.containerLocked(op.Container, cid.Kind)
			diff := st.Apply(lamport, c.ID.Peer, op)
			if !diff.IsZero() {
				byContainer[op.Container] = append(byContainer[op.Container], diff)
				if !seen[op.Container] {
					seen[op.Container] = true
					order = append(order, op.Container)
				}
			}
			lamport += id.Lamport(op.Len())
			counter += id.Counter(op.Len())
		}
		d.stateVV.SetEnd(c.ID.Peer, counter)
		d.frontiers = d.frontiers.Insert(id.NewID(c.ID.Peer, counter-1), d.log.Precedes)
		if d.metrics != nil {
			d.metrics.OpsApplied.Add(float64(len(c.Ops)))
		}
	}

	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })
	var diffs []ContainerDiff
	for _, idx := range order {
		cid, _ := registry.ID(idx)
		for _, df := range byContainer[idx] {
			diffs = append(diffs, ContainerDiff{ID: cid, Diff: df})
		}
	}

	dd := DocDiff{From: from, To: d.frontiers.Clone(), Origin: origin, Local: local, Diffs: diffs}
	d.dispatchLocked(dd)
	return dd
}

// ApplyLocalOp applies a single freshly-authored local op to its
// container's state, using a lamport/peer the caller's txn already
// decided, and returns the Diff it produced. Unlike ApplyChange this does
// not touch stateVV/frontiers or dispatch to subscribers — it is the first
// half of authoring a local change, used by pkg/loro's Txn to materialize
// edits as they're issued (so a later op in the same txn observes an
// earlier one's effect on container state) before the owning Change has
// been committed to the oplog at all. CommitTxn finishes the job.
func (d *Doc) ApplyLocalOp(idx change.ContainerIdx, kind change.ContainerKind, lamport id.Lamport, peer id.PeerID, op change.Op) ifc.Diff {
	d.mu.Lock()
	defer d.mu.Unlock()
	st := d.containerLocked(idx, kind)
	return st.Apply(lamport, peer, op)
}

// CommitTxn finishes a batch of local ops already applied via
// ApplyLocalOp: advances stateVV/frontiers to c's end and dispatches one
// DocDiff bundling every diff the batch produced, in the container
// creation order the caller collected them in.
func (d *Doc) CommitTxn(c *change.Change, diffs []ContainerDiff, origin string) DocDiff {
	d.mu.Lock()
	defer d.mu.Unlock()

	from := d.frontiers.Clone()
	end := c.ID.Counter + id.Counter(c.Len())
	d.stateVV.SetEnd(c.ID.Peer, end)
	d.frontiers = d.frontiers.Insert(id.NewID(c.ID.Peer, end-1), d.log.Precedes)

	dd := DocDiff{From: from, To: d.frontiers.Clone(), Origin: origin, Local: true, Diffs: diffs}
	d.dispatchLocked(dd)
	if d.metrics != nil {
		d.metrics.OpsApplied.Add(float64(len(c.Ops)))
		d.metrics.ChangesCommitted.Inc()
	}
	return dd
}

// InstallSnapshot replaces container state wholesale from a decoded
// snapshot: every container named in stateBlobs (keyed by
// change.ContainerID.String(), resolved against registry's already-interned
// ids) is rebuilt fresh from its blob, and stateVV/frontiers are set
// directly rather than derived by replay — the fast path that lets a
// snapshot import skip reconstructing state from the full op history.
func (d *Doc) InstallSnapshot(registry *change.Registry, stateBlobs map[string][]byte, vv id.VersionVector, frontiers id.Frontiers) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.decodeBlobsLocked(registry, stateBlobs); err != nil {
		return err
	}

	d.stateVV = vv.Clone()
	d.frontiers = frontiers.Clone()
	return nil
}

// Subscribe registers callback to be invoked synchronously, on the
// caller's goroutine, with every DocDiff produced after this call —
// either for every container (container == nil) or only diffs touching
// that specific container id.
func (d *Doc) Subscribe(container *change.ContainerID, callback func(DocDiff)) Subscription {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.nextSub
	d.nextSub++
	d.subs = append(d.subs, subscriber{id: id, container: container, callback: callback})
	if d.metrics != nil {
		d.metrics.SubscriberCount.Set(float64(len(d.subs)))
	}
	return Subscription{doc: d, id: id}
}

func (d *Doc) unsubscribe(id int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, s := range d.subs {
		if s.id == id {
			d.subs = append(d.subs[:i], d.subs[i+1:]...)
			break
		}
	}
	if d.metrics != nil {
		d.metrics.SubscriberCount.Set(float64(len(d.subs)))
	}
}

// dispatchLocked fans dd out to every matching subscriber. Called with mu
// held: delivery is synchronous with the mutating
// call, before its lock is released to any other mutator — subscribers
// may safely read container state but must not call back into the Doc.
func (d *Doc) dispatchLocked(dd DocDiff) {
	if len(dd.Diffs) == 0 || len(d.subs) == 0 {
		return
	}
	touched := make(map[change.ContainerID]bool, len(dd.Diffs))
	for _, cd := range dd.Diffs {
		touched[cd.ID] = true
	}
	for _, s := range d.subs {
		if s.container == nil {
			s.callback(dd)
			continue
		}
		if touched[*s.container] {
			s.callback(dd)
		}
	}
}
