package loro

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/loro-dev/loro-go/internal/encoding"
	"github.com/loro-dev/loro-go/internal/id"
	"github.com/loro-dev/loro-go/internal/integrity"
	"github.com/loro-dev/loro-go/internal/tracing"
)

// ExportMode selects what Document.Export produces. The variants mirror
// the five modes of the Document API surface plus the legacy "outdated"
// format kept for version negotiation.
type ExportMode interface{ isExportMode() }

// ExportSnapshot exports the full fast snapshot: the whole oplog plus
// every live container's current state.
type ExportSnapshot struct{}

// ExportSnapshotAt exports a snapshot as the document looked at an
// earlier frontier: the oplog trimmed to it, plus the state materialized
// there.
type ExportSnapshotAt struct{ Frontiers id.Frontiers }

// ExportUpdates exports every change the receiver (whose version vector
// is From) does not have yet.
type ExportUpdates struct{ From id.VersionVector }

// ExportUpdatesInRange exports exactly the ops covered by Spans.
type ExportUpdatesInRange struct{ Spans []id.IdSpan }

// ExportShallowSnapshot exports a GC'd snapshot that discards history
// below Frontiers (adjusted down to the common ancestor with the current
// frontier, so the cutoff is always an actual point in this document's
// history).
type ExportShallowSnapshot struct{ Frontiers id.Frontiers }

// ExportOutdated exports the legacy whole-log format, kept so
// format-version negotiation has a second real code path.
type ExportOutdated struct{}

func (ExportSnapshot) isExportMode()        {}
func (ExportSnapshotAt) isExportMode()      {}
func (ExportUpdates) isExportMode()         {}
func (ExportUpdatesInRange) isExportMode()  {}
func (ExportShallowSnapshot) isExportMode() {}
func (ExportOutdated) isExportMode()        {}

func modeName(mode ExportMode) string {
	switch mode.(type) {
	case ExportSnapshot:
		return "snapshot"
	case ExportSnapshotAt:
		return "snapshot_at"
	case ExportUpdates:
		return "updates"
	case ExportUpdatesInRange:
		return "updates_in_range"
	case ExportShallowSnapshot:
		return "shallow_snapshot"
	case ExportOutdated:
		return "outdated"
	default:
		return "unknown"
	}
}

// Export serializes the document per mode. The open transaction, if any,
// is committed first so the export reflects every edit issued so far.
func (d *Document) Export(mode ExportMode) ([]byte, error) {
	if err := d.Commit(); err != nil {
		return nil, err
	}

	_, span := tracing.StartSpan(context.Background(), "loro.export",
		attribute.String("mode", modeName(mode)),
		attribute.Int64("peer", int64(d.PeerID())))
	defer span.End()
	start := time.Now()

	registry := d.log.Registry()
	var blob []byte
	var err error
	switch m := mode.(type) {
	case ExportSnapshot:
		if d.IsDetached() {
			// Detached state lags the log; materialize the log's own tip so
			// the snapshot's state section matches its oplog section.
			vv := d.log.VersionVector()
			blobs := d.docState.MaterializeAt(vv, registry)
			blob, err = encoding.EncodeSnapshotAt(d.log, registry, vv, blobs)
		} else {
			blob, err = encoding.EncodeSnapshot(d.log, registry, d.docState)
		}
	case ExportSnapshotAt:
		vv := d.log.FrontiersToVV(m.Frontiers)
		blobs := d.docState.MaterializeAt(vv, registry)
		blob, err = encoding.EncodeSnapshotAt(d.log, registry, vv, blobs)
	case ExportUpdates:
		blob, err = encoding.EncodeUpdates(d.log, registry, m.From)
	case ExportUpdatesInRange:
		blob, err = encoding.EncodeUpdatesSpans(d.log, registry, m.Spans)
	case ExportShallowSnapshot:
		cutoff := d.log.CommonAncestor(m.Frontiers, d.log.Frontiers())
		cutVV := d.log.FrontiersToVV(cutoff)
		gcBlobs := d.docState.MaterializeAt(cutVV, registry)
		blob, err = encoding.EncodeShallowSnapshot(d.log, registry, cutoff, d.cutoffLamport(cutoff), d.docState, gcBlobs)
	case ExportOutdated:
		blob, err = encoding.EncodeLegacy(d.log, registry)
	default:
		err = fmt.Errorf("loro: unknown export mode %T", mode)
	}
	if err != nil {
		return nil, err
	}

	if d.metrics != nil {
		d.metrics.SnapshotEncodeTime.Observe(time.Since(start).Seconds())
		d.metrics.SnapshotBytes.Set(float64(len(blob)))
	}
	if d.logger != nil {
		d.logger.WithPeer(uint64(d.PeerID())).Debug("exported document",
			zap.String("mode", modeName(mode)), zap.Int("bytes", len(blob)))
	}
	return blob, nil
}

// cutoffLamport returns the largest lamport among the ops a shallow
// export discards, carried in the frame so importers assign monotonic
// lamports from the cutoff onward.
func (d *Document) cutoffLamport(cutoff id.Frontiers) id.Lamport {
	var maxL id.Lamport
	for _, tip := range cutoff {
		if l, ok := d.log.LamportOf(tip); ok && l > maxL {
			maxL = l
		}
	}
	return maxL
}

// SignedExport is an export blob plus a detached signature over it,
// proving which replica produced the bytes without any transport-layer
// trust.
type SignedExport struct {
	Blob      []byte
	Signature []byte
}

// ExportSigned exports per mode and signs the frame with the document's
// signing key. Fails if Options.SigningKey was not configured.
func (d *Document) ExportSigned(mode ExportMode) (*SignedExport, error) {
	if d.signingKey == nil {
		return nil, fmt.Errorf("loro: no signing key configured for this document")
	}
	blob, err := d.Export(mode)
	if err != nil {
		return nil, err
	}
	return &SignedExport{Blob: blob, Signature: integrity.Sign(d.signingKey.Private, blob)}, nil
}
