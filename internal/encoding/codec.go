// Package encoding implements the binary snapshot/update codec: a
// four-byte magic, a format byte and a semver header discriminate four
// coexisting formats — a legacy "outdated" whole-log encoding, the
// preferred "fast" snapshot (oplog-kv + state-kv + optional gc-kv), its
// shallow variant that drops history below a cutoff, and an "updates"
// encoding of an exported change range, each a deflated JSON payload — each footed
// with a truncated blake2b-256 checksum verified before any byte is
// staged into the receiver, so a bad frame never corrupts the receiver.
package encoding

import (
	"bytes"
	"compress/flate"
	"encoding/json"
	"fmt"
	"io"

	"github.com/loro-dev/loro-go/internal/change"
	"github.com/loro-dev/loro-go/internal/errs"
	"github.com/loro-dev/loro-go/internal/id"
	"github.com/loro-dev/loro-go/internal/oplog"
	"golang.org/x/crypto/blake2b"
)

// Format discriminates the four coexisting wire encodings.
type Format uint8

const (
	FormatOutdated Format = iota + 1
	FormatFastSnapshot
	FormatUpdates
	FormatShallowSnapshot
)

var magic = [4]byte{'L', 'O', 'R', 'O'}

const (
	formatMajor = 1
	formatMinor = 0
	formatPatch = 0
	checksumLen = 16
)

func writeHeader(format Format) []byte {
	h := make([]byte, 0, 8)
	h = append(h, magic[:]...)
	h = append(h, byte(format), formatMajor, formatMinor, formatPatch)
	return h
}

func readHeader(b []byte) (Format, error) {
	if len(b) < 8 {
		return 0, errs.New(errs.DecodeError, "buffer shorter than the format header")
	}
	if b[0] != magic[0] || b[1] != magic[1] || b[2] != magic[2] || b[3] != magic[3] {
		return 0, errs.New(errs.DecodeError, "bad magic bytes")
	}
	if b[5] != formatMajor {
		return 0, errs.New(errs.DecodeError, fmt.Sprintf("unsupported major format version %d", b[5]))
	}
	return Format(b[4]), nil
}

func checksum(b []byte) [checksumLen]byte {
	full := blake2b.Sum256(b)
	var out [checksumLen]byte
	copy(out[:], full[:checksumLen])
	return out
}

// deflate applies light block compression to a frame payload.
func deflate(payload []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.DefaultCompression)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(payload); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func inflate(compressed []byte) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(compressed))
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, errs.Wrap(errs.DecodeError, "payload failed to decompress", err)
	}
	return out, nil
}

// frame compresses payload, then wraps it with the format header and a
// trailing checksum computed over the compressed bytes.
func frame(format Format, payload []byte) []byte {
	// DefaultCompression is always a valid flate level, so this only
	// fails if the writer's underlying buffer write fails, which never
	// happens against a bytes.Buffer.
	compressed, _ := deflate(payload)
	body := append(writeHeader(format), compressed...)
	sum := checksum(body)
	return append(body, sum[:]...)
}

// unframe validates the header and checksum, then decompresses the
// payload back to its JSON form.
func unframe(b []byte) (Format, []byte, error) {
	if len(b) < 8+checksumLen {
		return 0, nil, errs.New(errs.DecodeError, "buffer shorter than header+checksum")
	}
	format, err := readHeader(b)
	if err != nil {
		return 0, nil, err
	}
	body := b[:len(b)-checksumLen]
	wantSum := b[len(b)-checksumLen:]
	gotSum := checksum(body)
	for i := range gotSum {
		if gotSum[i] != wantSum[i] {
			return 0, nil, errs.New(errs.DecodeError, "checksum mismatch: payload corrupt or truncated")
		}
	}
	payload, err := inflate(body[8:])
	if err != nil {
		return 0, nil, err
	}
	return format, payload, nil
}

// fastSnapshotPayload is the JSON-framed body of a fast snapshot: a
// container table, the oplog's changes, and per-container state blobs.
type fastSnapshotPayload struct {
	ContainerTable []wireContainerID `json:"table"`
	Changes        []wireChange      `json:"changes"`
	StateBlobs     map[string][]byte `json:"state"`
	GCBlobs        map[string][]byte `json:"gc,omitempty"`
	GCFrontiers    []id.ID           `json:"gc_frontiers,omitempty"`
	GCVV           id.VersionVector  `json:"gc_vv,omitempty"`
	GCLamport      id.Lamport        `json:"gc_lamport,omitempty"`
}

// ContainerStateSource is the minimal view of a document's materialized
// containers an encoder needs: every live container's id and its
// EncodeSnapshot blob.
type ContainerStateSource interface {
	ContainerIDs() []change.ContainerID
	EncodeContainerSnapshot(change.ContainerID) ([]byte, bool)
}

// EncodeSnapshot produces a full fast-snapshot export: every change in
// log plus every live container's state blob.
func EncodeSnapshot(log *oplog.OpLog, registry *change.Registry, states ContainerStateSource) ([]byte, error) {
	var allChanges []*change.Change
	for _, peer := range log.Peers() {
		allChanges = append(allChanges, log.Changes(peer)...)
	}
	table, wireChanges, err := encodeChanges(allChanges, registry)
	if err != nil {
		return nil, err
	}

	stateBlobs := make(map[string][]byte)
	for _, cid := range states.ContainerIDs() {
		blob, ok := states.EncodeContainerSnapshot(cid)
		if !ok {
			continue
		}
		stateBlobs[cid.String()] = blob
	}

	payload := fastSnapshotPayload{ContainerTable: table, Changes: wireChanges, StateBlobs: stateBlobs}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return frame(FormatFastSnapshot, body), nil
}

// DecodeSnapshot parses a fast-snapshot frame into the changes it carries
// (ready for OpLog.Import in order) plus the per-container state blobs,
// keyed by the ContainerID string they belong to (the caller resolves
// that back into a registered container and calls DecodeSnapshot on its
// ContainerState). Decode errors never mutate anything: the caller only
// receives a result after the whole frame parses successfully.
func DecodeSnapshot(b []byte, registry *change.Registry) (changes []*change.Change, stateBlobs map[string][]byte, err error) {
	format, body, err := unframe(b)
	if err != nil {
		return nil, nil, err
	}
	if format != FormatFastSnapshot && format != FormatShallowSnapshot {
		return nil, nil, errs.New(errs.DecodeError, "not a fast or shallow snapshot frame")
	}
	var payload fastSnapshotPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, nil, errs.Wrap(errs.DecodeError, "malformed snapshot payload", err)
	}
	changes, err = decodeChanges(payload.ContainerTable, payload.Changes, registry)
	if err != nil {
		return nil, nil, errs.Wrap(errs.DecodeError, "malformed snapshot ops", err)
	}
	return changes, payload.StateBlobs, nil
}

// EncodeShallowSnapshot exports a GC'd snapshot: the oplog restricted to
// [cutoff, current), the state at the cutoff frozen into gc-kv, and the
// current state blobs as normal. Spec.md §4.5's four-step shallow export.
// cutoffLamport is the largest lamport among the discarded prefix, carried
// so the importer's lamport assignment stays monotonic.
func EncodeShallowSnapshot(log *oplog.OpLog, registry *change.Registry, cutoff id.Frontiers, cutoffLamport id.Lamport, states ContainerStateSource, gcStateBlobs map[string][]byte) ([]byte, error) {
	cutoffVV := log.FrontiersToVV(cutoff)
	var changes []*change.Change
	for _, peer := range log.Peers() {
		for _, c := range log.Changes(peer) {
			if c.ID.Counter+id.Counter(c.Len()) <= cutoffVV.Get(peer) {
				continue // entirely below the cutoff: not retained
			}
			changes = append(changes, c)
		}
	}
	table, wireChanges, err := encodeChanges(changes, registry)
	if err != nil {
		return nil, err
	}

	stateBlobs := make(map[string][]byte)
	for _, cid := range states.ContainerIDs() {
		blob, ok := states.EncodeContainerSnapshot(cid)
		if !ok {
			continue
		}
		stateBlobs[cid.String()] = blob
	}

	payload := fastSnapshotPayload{
		ContainerTable: table, Changes: wireChanges, StateBlobs: stateBlobs,
		GCBlobs: gcStateBlobs, GCFrontiers: []id.ID(cutoff), GCVV: cutoffVV, GCLamport: cutoffLamport,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return frame(FormatShallowSnapshot, body), nil
}

// ShallowPayload is everything a decoded shallow snapshot carries: the
// retained change suffix, the live/current state blobs, the frozen gc
// state, and the cutoff in frontier, version-vector and lamport form.
type ShallowPayload struct {
	Changes       []*change.Change
	StateBlobs    map[string][]byte
	GCBlobs       map[string][]byte
	Cutoff        id.Frontiers
	CutoffVV      id.VersionVector
	CutoffLamport id.Lamport
}

// DecodeShallowSnapshot parses a shallow-snapshot frame. Decode errors
// never mutate anything; the caller only sees a payload after the whole
// frame parses.
func DecodeShallowSnapshot(b []byte, registry *change.Registry) (*ShallowPayload, error) {
	format, body, err := unframe(b)
	if err != nil {
		return nil, err
	}
	if format != FormatShallowSnapshot {
		return nil, errs.New(errs.DecodeError, "not a shallow snapshot frame")
	}
	var payload fastSnapshotPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, errs.Wrap(errs.DecodeError, "malformed shallow snapshot payload", err)
	}
	changes, err := decodeChanges(payload.ContainerTable, payload.Changes, registry)
	if err != nil {
		return nil, errs.Wrap(errs.DecodeError, "malformed shallow snapshot ops", err)
	}
	return &ShallowPayload{
		Changes:       changes,
		StateBlobs:    payload.StateBlobs,
		GCBlobs:       payload.GCBlobs,
		Cutoff:        id.Frontiers(payload.GCFrontiers),
		CutoffVV:      payload.GCVV,
		CutoffLamport: payload.GCLamport,
	}, nil
}

// EncodeSnapshotAt exports a snapshot as of vv: the log trimmed to vv
// (changes straddling the boundary are sliced) plus the caller-supplied
// per-container state blobs materialized at that same version.
func EncodeSnapshotAt(log *oplog.OpLog, registry *change.Registry, vv id.VersionVector, stateBlobs map[string][]byte) ([]byte, error) {
	var changes []*change.Change
	for _, peer := range log.Peers() {
		limit := vv.Get(peer)
		for _, c := range log.Changes(peer) {
			if c.ID.Counter >= limit {
				continue
			}
			if sliced := c.SliceTo(int(limit - c.ID.Counter)); sliced != nil {
				changes = append(changes, sliced)
			}
		}
	}
	table, wireChanges, err := encodeChanges(changes, registry)
	if err != nil {
		return nil, err
	}
	payload := fastSnapshotPayload{ContainerTable: table, Changes: wireChanges, StateBlobs: stateBlobs}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return frame(FormatFastSnapshot, body), nil
}

// EncodeUpdatesSpans exports every change overlapping one of the
// requested id-spans, trimmed to the span boundaries on both sides —
// Document.Export's UpdatesInRange mode.
func EncodeUpdatesSpans(log *oplog.OpLog, registry *change.Registry, spans []id.IdSpan) ([]byte, error) {
	var changes []*change.Change
	for _, span := range spans {
		if span.IsEmpty() {
			continue
		}
		for _, c := range log.Changes(span.Peer) {
			cs := c.IDSpan()
			if cs.Counter.End <= span.Counter.Start || cs.Counter.Start >= span.Counter.End {
				continue
			}
			sliced := c
			if span.Counter.Start > cs.Counter.Start {
				sliced = sliced.SliceFrom(int(span.Counter.Start - cs.Counter.Start))
			}
			if sliced == nil {
				continue
			}
			if span.Counter.End < cs.Counter.End {
				sliced = sliced.SliceTo(int(span.Counter.End - sliced.ID.Counter))
			}
			if sliced != nil {
				changes = append(changes, sliced)
			}
		}
	}
	table, wireChanges, err := encodeChanges(changes, registry)
	if err != nil {
		return nil, err
	}
	payload := fastSnapshotPayload{ContainerTable: table, Changes: wireChanges}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return frame(FormatUpdates, body), nil
}

// EncodeUpdates exports every change not yet covered by fromVV — an
// incremental update frame suitable for Document.Export(Updates{fromVV}).
func EncodeUpdates(log *oplog.OpLog, registry *change.Registry, fromVV id.VersionVector) ([]byte, error) {
	changes := log.ChangesSince(fromVV)
	table, wireChanges, err := encodeChanges(changes, registry)
	if err != nil {
		return nil, err
	}
	payload := fastSnapshotPayload{ContainerTable: table, Changes: wireChanges}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return frame(FormatUpdates, body), nil
}

// EncodeUpdatesInRange exports every whole change covered by fromVV..toVV:
// included only if none of its ops fall below fromVV and all of them fall
// at or below toVV. A change straddling the toVV boundary is left out
// entirely rather than split mid-change, so the caller may need a
// follow-up export to pick up the remainder once toVV catches up to it —
// a deliberate granularity simplification over a full sub-change splitter.
func EncodeUpdatesInRange(log *oplog.OpLog, registry *change.Registry, fromVV, toVV id.VersionVector) ([]byte, error) {
	var changes []*change.Change
	for _, c := range log.ChangesSince(fromVV) {
		end := c.ID.Counter + id.Counter(c.Len())
		if end <= toVV.Get(c.ID.Peer) {
			changes = append(changes, c)
		}
	}
	table, wireChanges, err := encodeChanges(changes, registry)
	if err != nil {
		return nil, err
	}
	payload := fastSnapshotPayload{ContainerTable: table, Changes: wireChanges}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return frame(FormatUpdates, body), nil
}

// DecodeUpdates parses an updates frame into the changes it carries.
func DecodeUpdates(b []byte, registry *change.Registry) ([]*change.Change, error) {
	format, body, err := unframe(b)
	if err != nil {
		return nil, err
	}
	if format != FormatUpdates {
		return nil, errs.New(errs.DecodeError, "not an updates frame")
	}
	var payload fastSnapshotPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, errs.Wrap(errs.DecodeError, "malformed updates payload", err)
	}
	changes, err := decodeChanges(payload.ContainerTable, payload.Changes, registry)
	if err != nil {
		return nil, errs.Wrap(errs.DecodeError, "malformed updates ops", err)
	}
	return changes, nil
}

// EncodeLegacy produces the "outdated" single-shot whole-log format: the
// full change set with no state-kv split, kept so format-version
// negotiation has two real decode paths.
func EncodeLegacy(log *oplog.OpLog, registry *change.Registry) ([]byte, error) {
	var allChanges []*change.Change
	for _, peer := range log.Peers() {
		allChanges = append(allChanges, log.Changes(peer)...)
	}
	table, wireChanges, err := encodeChanges(allChanges, registry)
	if err != nil {
		return nil, err
	}
	payload := fastSnapshotPayload{ContainerTable: table, Changes: wireChanges}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return frame(FormatOutdated, body), nil
}

// DecodeLegacy parses an "outdated"-format frame.
func DecodeLegacy(b []byte, registry *change.Registry) ([]*change.Change, error) {
	format, body, err := unframe(b)
	if err != nil {
		return nil, err
	}
	if format != FormatOutdated {
		return nil, errs.New(errs.DecodeError, "not a legacy-format frame")
	}
	var payload fastSnapshotPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, errs.Wrap(errs.DecodeError, "malformed legacy payload", err)
	}
	return decodeChanges(payload.ContainerTable, payload.Changes, registry)
}

// DetectFormat peeks a buffer's header without validating its checksum —
// used by Import to pick which Decode* path to take.
func DetectFormat(b []byte) (Format, error) {
	return readHeader(b)
}
