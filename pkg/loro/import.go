package loro

import (
	"context"
	"sort"
	"time"

	"github.com/cloudflare/circl/sign"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/loro-dev/loro-go/internal/change"
	"github.com/loro-dev/loro-go/internal/encoding"
	"github.com/loro-dev/loro-go/internal/errs"
	"github.com/loro-dev/loro-go/internal/integrity"
	"github.com/loro-dev/loro-go/internal/state"
	"github.com/loro-dev/loro-go/internal/tracing"
)

// Import brings a blob produced by any Export mode into this document.
// The format is discriminated by the frame header; a failed decode leaves
// the document untouched. Changes whose dependencies are not yet known
// are buffered (query PendingChanges/MissingDeps) and drained as the
// missing history arrives.
func (d *Document) Import(data []byte) error {
	return d.ImportWith(data, "import")
}

// ImportWith is Import with a caller-supplied origin tag, attached
// verbatim to the DocDiff the import dispatches.
func (d *Document) ImportWith(data []byte, origin string) error {
	if err := d.Commit(); err != nil {
		return err
	}

	_, span := tracing.StartSpan(context.Background(), "loro.import",
		attribute.Int("bytes", len(data)),
		attribute.Int64("peer", int64(d.PeerID())))
	defer span.End()
	start := time.Now()

	err := d.importFrame(data, origin)
	if err != nil {
		if d.metrics != nil {
			d.metrics.ImportErrors.Inc()
		}
		return err
	}
	if d.metrics != nil {
		d.metrics.SnapshotDecodeTime.Observe(time.Since(start).Seconds())
		d.metrics.PendingChanges.Set(float64(d.log.PendingCount()))
	}
	if d.logger != nil {
		d.logger.WithPeer(uint64(d.PeerID())).Debug("imported blob",
			zap.Int("bytes", len(data)), zap.String("origin", origin),
			zap.Int("pending", d.log.PendingCount()))
	}
	return nil
}

func (d *Document) importFrame(data []byte, origin string) error {
	format, err := encoding.DetectFormat(data)
	if err != nil {
		return err
	}
	registry := d.log.Registry()

	switch format {
	case encoding.FormatUpdates:
		changes, err := encoding.DecodeUpdates(data, registry)
		if err != nil {
			return err
		}
		return d.applyRemote(changes, origin)

	case encoding.FormatOutdated:
		changes, err := encoding.DecodeLegacy(data, registry)
		if err != nil {
			return err
		}
		return d.applyRemote(changes, origin)

	case encoding.FormatFastSnapshot:
		changes, stateBlobs, err := encoding.DecodeSnapshot(data, registry)
		if err != nil {
			return err
		}
		if !d.isEmpty() {
			// The receiver already has history: a snapshot degrades to its
			// oplog section and the state blobs are ignored.
			return d.applyRemote(changes, origin)
		}
		sortCausal(changes)
		var errAll error
		for _, c := range changes {
			if _, err := d.log.Import(c); err != nil {
				errAll = multierr.Append(errAll, err)
			}
		}
		if err := d.docState.InstallSnapshot(registry, stateBlobs, d.log.VersionVector(), d.log.Frontiers()); err != nil {
			return err
		}
		return errAll

	case encoding.FormatShallowSnapshot:
		payload, err := encoding.DecodeShallowSnapshot(data, registry)
		if err != nil {
			return err
		}
		if !d.isEmpty() {
			// A receiver that already holds the history below the cutoff can
			// treat the retained suffix as plain updates; anything else stays
			// pending until that history arrives.
			return d.applyRemote(payload.Changes, origin)
		}
		d.log.InitShallow(payload.CutoffVV, payload.Cutoff, payload.CutoffLamport)
		if err := d.docState.InstallShallowBase(registry, payload.GCBlobs, payload.CutoffVV, payload.Cutoff); err != nil {
			return err
		}
		return d.applyRemote(payload.Changes, origin)

	default:
		return errs.New(errs.DecodeError, "unknown frame format")
	}
}

// isEmpty reports whether this document has never seen a change — the
// precondition for the snapshot fast-install path.
func (d *Document) isEmpty() bool {
	return len(d.log.VersionVector()) == 0
}

// sortCausal orders changes by (lamport, peer): a valid topological order
// of the DAG, since a change's lamport strictly exceeds every
// dependency's.
func sortCausal(changes []*change.Change) {
	sort.Slice(changes, func(i, j int) bool {
		if changes[i].Lamport != changes[j].Lamport {
			return changes[i].Lamport < changes[j].Lamport
		}
		if changes[i].ID.Peer != changes[j].ID.Peer {
			return changes[i].ID.Peer < changes[j].ID.Peer
		}
		return changes[i].ID.Counter < changes[j].ID.Counter
	})
}

// applyRemote feeds decoded changes through the log's causal gate and
// applies whatever became ready to container state, dispatching one
// DocDiff for the whole batch. A malformed change is rejected by the log
// and reported, but the valid changes around it still land, so the log
// and state never fall out of step. A detached document only advances
// its log; state catches up on Attach.
func (d *Document) applyRemote(changes []*change.Change, origin string) error {
	sortCausal(changes)
	var ready []*change.Change
	var errAll error
	for _, c := range changes {
		r, err := d.log.Import(c)
		ready = append(ready, r...)
		if err != nil {
			errAll = multierr.Append(errAll, err)
		}
	}
	if len(ready) == 0 || d.docState.Mode() == state.Detached {
		return errAll
	}
	d.docState.ApplyChanges(ready, d.log.Registry(), origin, false)
	return errAll
}

// ImportBatch imports a list of blobs in order, continuing past
// individual failures and returning every error joined together — the
// batch counterpart of Import, useful when draining a sync
// backlog whose blobs may arrive out of causal order.
func (d *Document) ImportBatch(blobs [][]byte) error {
	var errAll error
	for _, b := range blobs {
		errAll = multierr.Append(errAll, d.Import(b))
	}
	return errAll
}

// ImportSigned verifies a detached signature against the expected
// public key before importing, rejecting tampered frames without
// touching the document.
func (d *Document) ImportSigned(se *SignedExport, from sign.PublicKey) error {
	if !integrity.Verify(from, se.Blob, se.Signature) {
		return errs.New(errs.DecodeError, "export signature verification failed")
	}
	return d.Import(se.Blob)
}
