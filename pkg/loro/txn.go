package loro

import (
	"fmt"
	"time"

	"github.com/loro-dev/loro-go/internal/change"
	"github.com/loro-dev/loro-go/internal/containers/ifc"
	"github.com/loro-dev/loro-go/internal/id"
	"github.com/loro-dev/loro-go/internal/state"
)

// Txn batches a sequence of container edits into a single committed
// Change. Ops are applied to container state as they're authored (so a
// later op in the same Txn observes an earlier one), and only turned into
// an oplog Change once Commit is called.
type Txn struct {
	doc     *Document
	message string
	peer    id.PeerID

	deps         id.Frontiers
	startCounter id.Counter
	startLamport id.Lamport
	nextCounter  id.Counter
	curLamport   id.Lamport

	ops       []change.Op
	diffs     []state.ContainerDiff
	committed bool
}

// Begin opens an explicit transaction on d. Panics if one is already open —
// transactions do not nest; finish the current one with Commit first.
func (d *Document) Begin(message string) *Txn {
	d.mu.Lock()
	if d.txn != nil {
		d.mu.Unlock()
		panic("loro: a transaction is already open on this document")
	}
	deps := d.log.Frontiers()
	lamport := d.log.FrontierLamport(deps)
	start := d.log.AllocateCounter(d.peer, 0) // 0-length allocate: a peek, not a reservation
	t := &Txn{
		doc: d, message: message, peer: d.peer,
		deps: deps, startCounter: start, startLamport: lamport,
		nextCounter: start, curLamport: lamport,
	}
	d.txn = t
	d.mu.Unlock()
	return t
}

// appendOp authors one op against a container already materialized in the
// document's state, applying it immediately and queuing it for Commit.
func (t *Txn) appendOp(cid change.ContainerID, idx change.ContainerIdx, content change.OpContent) ifc.Diff {
	if t.committed {
		panic("loro: transaction already committed")
	}
	op := change.Op{Container: idx, Counter: t.nextCounter, Content: content}
	n := op.Len()
	diff := t.doc.docState.ApplyLocalOp(idx, cid.Kind, t.curLamport, t.peer, op)
	t.ops = append(t.ops, op)
	t.nextCounter += id.Counter(n)
	t.curLamport += id.Lamport(n)
	if !diff.IsZero() {
		t.diffs = append(t.diffs, state.ContainerDiff{ID: cid, Diff: diff})
	}
	return diff
}

// Commit finalizes the transaction: builds the Change covering every op
// authored since Begin, logs it (merging into the peer's tail change when
// possible), and dispatches one DocDiff for the whole batch. A Txn with no
// ops commits to a zero DocDiff without touching the oplog.
func (t *Txn) Commit() (state.DocDiff, error) {
	if t.committed {
		return state.DocDiff{}, fmt.Errorf("loro: transaction already committed")
	}
	t.committed = true
	defer func() {
		t.doc.mu.Lock()
		t.doc.txn = nil
		t.doc.mu.Unlock()
	}()

	if len(t.ops) == 0 {
		return state.DocDiff{}, nil
	}

	c := &change.Change{
		ID:        id.NewID(t.peer, t.startCounter),
		Lamport:   t.startLamport,
		Deps:      t.deps,
		Timestamp: time.Now().Unix(),
		Message:   t.message,
		Ops:       t.ops,
	}
	res, err := t.doc.log.CommitPrepared(c)
	if err != nil {
		return state.DocDiff{}, err
	}
	dd := t.doc.docState.CommitTxn(res.Change, t.diffs, "local")
	return dd, nil
}

// withTxn runs fn against the caller's already-open explicit Txn, or — the
// common case — against a fresh one committed immediately afterward. Every
// container handle method goes through this, so a bare Text.Insert call is
// its own one-op transaction unless the caller wrapped a Begin around it.
func (d *Document) withTxn(message string, fn func(t *Txn)) error {
	if d.docState.Mode() == state.Detached && !d.allowDetachedEdits {
		return fmt.Errorf("loro: document is detached; Attach before editing (or set AllowDetachedEdits)")
	}
	d.mu.Lock()
	existing := d.txn
	d.mu.Unlock()
	if existing != nil {
		fn(existing)
		return nil
	}
	t := d.Begin(message)
	fn(t)
	_, err := t.Commit()
	return err
}
