// Package loro is the public facade over the engine: internal/oplog's
// causal change log, internal/state's container orchestrator, and the six
// internal/containers algorithms behind a single validating entry point.
// Document owns a peer identity and every container a caller touches; Txn
// batches a sequence of edits into one committed Change.
package loro

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/loro-dev/loro-go/internal/change"
	"github.com/loro-dev/loro-go/internal/errs"
	"github.com/loro-dev/loro-go/internal/id"
	"github.com/loro-dev/loro-go/internal/integrity"
	"github.com/loro-dev/loro-go/internal/logging"
	"github.com/loro-dev/loro-go/internal/metrics"
	"github.com/loro-dev/loro-go/internal/oplog"
	"github.com/loro-dev/loro-go/internal/state"
)

// Options configures a new Document.
type Options struct {
	// PeerID identifies this replica. Zero means "generate a random one",
	// the common case for a fresh local document.
	PeerID id.PeerID

	Logger  *logging.Logger
	Metrics *metrics.Metrics

	// SigningKey, when set, enables ExportSigned: detached signatures
	// over export frames so an importer can verify provenance.
	SigningKey *integrity.KeyPair

	// AllowDetachedEdits relaxes the default rule that local edits are
	// refused while the document is checked out away from the latest
	// frontier.
	AllowDetachedEdits bool
}

// Document is a single replica of the CRDT: its own causal history
// (OpLog), its currently materialized container state (state.Doc), and
// the container-id registry the two share.
type Document struct {
	mu sync.Mutex

	peer     id.PeerID
	log      *oplog.OpLog
	docState *state.Doc
	logger   *logging.Logger
	metrics  *metrics.Metrics

	signingKey         *integrity.KeyPair
	allowDetachedEdits bool

	txn *Txn
}

// New returns an empty Document. opts.Logger/opts.Metrics may be left nil;
// the engine runs uninstrumented in that case.
func New(opts Options) (*Document, error) {
	peer := opts.PeerID
	if peer == 0 {
		peer = randomPeerID()
	}
	log := oplog.New()
	d := &Document{
		peer:               peer,
		log:                log,
		docState:           state.New(log, opts.Logger, opts.Metrics),
		logger:             opts.Logger,
		metrics:            opts.Metrics,
		signingKey:         opts.SigningKey,
		allowDetachedEdits: opts.AllowDetachedEdits,
	}
	return d, nil
}

func randomPeerID() id.PeerID {
	u := uuid.New()
	return id.PeerID(binary.BigEndian.Uint64(u[:8]))
}

// PeerID returns the replica's current peer id.
func (d *Document) PeerID() id.PeerID {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.peer
}

// SetPeerID changes the replica's peer id. Refused while a transaction is
// open, or if the requested id already has local history in this
// document's log (it would collide with its own earlier ops).
func (d *Document) SetPeerID(peer id.PeerID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.txn != nil {
		return fmt.Errorf("loro: cannot change peer id while a transaction is open")
	}
	if d.log.VersionVector().Get(peer) > 0 {
		return errs.New(errs.UsedOpID, fmt.Sprintf("peer %d already has history in this document", peer))
	}
	d.peer = peer
	return nil
}

// OplogVersion returns the version vector of every change known to the
// log, attached or not.
func (d *Document) OplogVersion() id.VersionVector { return d.log.VersionVector() }

// StateVersion returns the version vector the currently materialized
// container state reflects (differs from OplogVersion while Detached).
func (d *Document) StateVersion() id.VersionVector { return d.docState.StateVV() }

// OplogFrontiers returns the log's latest frontier.
func (d *Document) OplogFrontiers() id.Frontiers { return d.log.Frontiers() }

// StateFrontiers returns the frontier the materialized state reflects.
func (d *Document) StateFrontiers() id.Frontiers { return d.docState.StateFrontiers() }

// PendingChanges returns the number of imported changes still buffered
// waiting on a missing causal dependency.
func (d *Document) PendingChanges() int { return d.log.PendingCount() }

// MissingDeps returns every dependency id at least one buffered change is
// still waiting on.
func (d *Document) MissingDeps() []id.ID { return d.log.MissingDeps() }

// DiagnoseSize summarizes the engine's in-memory footprint.
func (d *Document) DiagnoseSize() state.DiagnoseSize { return d.docState.Diagnose() }

// IsDetached reports whether the document is currently checked out away
// from the oplog's latest frontier.
func (d *Document) IsDetached() bool { return d.docState.Mode() == state.Detached }

// Checkout moves the materialized state to target, detaching the
// document from the oplog's latest frontier until Attach is called.
func (d *Document) Checkout(target id.Frontiers) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.txn != nil {
		return fmt.Errorf("loro: cannot checkout while a transaction is open")
	}
	return d.docState.Checkout(target, d.log.Registry())
}

// Attach returns the document to the oplog's latest frontier.
func (d *Document) Attach() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.txn != nil {
		return fmt.Errorf("loro: cannot attach while a transaction is open")
	}
	d.docState.Attach(d.log.Registry())
	return nil
}

// Commit finalizes the currently open transaction, if any. A no-op when
// nothing is open — every edit issued outside an explicit Begin has
// already committed itself.
func (d *Document) Commit() error {
	d.mu.Lock()
	t := d.txn
	d.mu.Unlock()
	if t == nil {
		return nil
	}
	_, err := t.Commit()
	return err
}

// GetDeepValue returns the whole document as one value: a map from root
// container name to that container's deep value, with nested container
// references expanded recursively.
func (d *Document) GetDeepValue() change.Value {
	registry := d.log.Registry()
	out := make(map[string]change.Value)
	for i := change.ContainerIdx(1); ; i++ {
		cid, ok := registry.ID(i)
		if !ok {
			break
		}
		if cid.IsRoot {
			out[cid.Name] = d.docState.DeepValue(i, registry)
		}
	}
	return change.MapValue(out)
}

// Subscribe registers callback for every DocDiff the document produces,
// from any container, delivered synchronously on the committing/importing
// goroutine.
func (d *Document) Subscribe(callback func(state.DocDiff)) state.Subscription {
	return d.docState.Subscribe(nil, callback)
}

// SubscribeContainer registers callback for DocDiffs touching cid only.
func (d *Document) SubscribeContainer(cid change.ContainerID, callback func(state.DocDiff)) state.Subscription {
	c := cid
	return d.docState.Subscribe(&c, callback)
}

// ensureRoot interns (creating if new) the root container named name of
// the given kind and materializes its empty state on first reference.
func (d *Document) ensureRoot(name string, kind change.ContainerKind) (change.ContainerIdx, change.ContainerID) {
	cid := change.RootContainerID(name, kind)
	idx := d.log.Registry().Intern(cid)
	d.docState.EnsureContainer(idx, kind)
	return idx, cid
}

// resolve looks up an already-created container (root or nested) by id,
// failing if it has never been interned in this document.
func (d *Document) resolve(cid change.ContainerID) (change.ContainerIdx, error) {
	idx, ok := d.log.Registry().Lookup(cid)
	if !ok {
		return 0, errs.New(errs.NotFound, fmt.Sprintf("container %s not found", cid))
	}
	return idx, nil
}
