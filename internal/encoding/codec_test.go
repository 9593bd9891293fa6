package encoding

import (
	"testing"

	"github.com/loro-dev/loro-go/internal/change"
	"github.com/loro-dev/loro-go/internal/id"
	"github.com/loro-dev/loro-go/internal/oplog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStateSource struct {
	ids   []change.ContainerID
	blobs map[change.ContainerID][]byte
}

func (f *fakeStateSource) ContainerIDs() []change.ContainerID { return f.ids }

func (f *fakeStateSource) EncodeContainerSnapshot(cid change.ContainerID) ([]byte, bool) {
	b, ok := f.blobs[cid]
	return b, ok
}

func buildSampleLog(t *testing.T) (*oplog.OpLog, change.ContainerID) {
	t.Helper()
	log := oplog.New()
	registry := log.Registry()
	cid := change.RootContainerID("text", change.KindText)
	idx := registry.Intern(cid)

	_, err := log.CommitLocal(1, []change.Op{{
		Container: idx,
		Counter:   0,
		Content:   change.OpContent{Kind: change.OpTextInsert, Text: "hi"},
	}}, "insert", 1000)
	require.NoError(t, err)

	_, err = log.CommitLocal(2, []change.Op{{
		Container: idx,
		Counter:   0,
		Content:   change.OpContent{Kind: change.OpTextInsert, Text: "yo", OriginLeft: id.NewID(1, 1)},
	}}, "insert", 1001)
	require.NoError(t, err)

	return log, cid
}

func TestSnapshotRoundTrip(t *testing.T) {
	log, cid := buildSampleLog(t)
	registry := log.Registry()
	src := &fakeStateSource{
		ids:   []change.ContainerID{cid},
		blobs: map[change.ContainerID][]byte{cid: []byte("state-blob")},
	}

	blob, err := EncodeSnapshot(log, registry, src)
	require.NoError(t, err)
	assert.True(t, len(blob) > 8+checksumLen)

	format, err := DetectFormat(blob)
	require.NoError(t, err)
	assert.Equal(t, FormatFastSnapshot, format)

	changes, stateBlobs, err := DecodeSnapshot(blob, change.NewRegistry())
	require.NoError(t, err)
	assert.Len(t, changes, 2)
	assert.Equal(t, []byte("state-blob"), stateBlobs[cid.String()])
}

func TestSnapshotRejectsCorruption(t *testing.T) {
	log, cid := buildSampleLog(t)
	src := &fakeStateSource{ids: []change.ContainerID{cid}, blobs: map[change.ContainerID][]byte{}}

	blob, err := EncodeSnapshot(log, log.Registry(), src)
	require.NoError(t, err)

	corrupt := append([]byte(nil), blob...)
	corrupt[len(corrupt)-1] ^= 0xFF

	_, _, err = DecodeSnapshot(corrupt, change.NewRegistry())
	assert.Error(t, err)
}

func TestUpdatesRoundTrip(t *testing.T) {
	log, _ := buildSampleLog(t)
	registry := log.Registry()

	fromVV := id.NewVersionVector()
	fromVV.SetEnd(1, 2) // peer 1's change already known; peer 2's is not

	blob, err := EncodeUpdates(log, registry, fromVV)
	require.NoError(t, err)

	format, err := DetectFormat(blob)
	require.NoError(t, err)
	assert.Equal(t, FormatUpdates, format)

	changes, err := DecodeUpdates(blob, change.NewRegistry())
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, id.PeerID(2), changes[0].ID.Peer)
}

func TestShallowSnapshotRoundTrip(t *testing.T) {
	log, cid := buildSampleLog(t)
	registry := log.Registry()
	src := &fakeStateSource{
		ids:   []change.ContainerID{cid},
		blobs: map[change.ContainerID][]byte{cid: []byte("live-state")},
	}
	cutoff := log.Frontiers()
	gcBlobs := map[string][]byte{cid.String(): []byte("gc-state")}

	blob, err := EncodeShallowSnapshot(log, registry, cutoff, 7, src, gcBlobs)
	require.NoError(t, err)

	format, err := DetectFormat(blob)
	require.NoError(t, err)
	assert.Equal(t, FormatShallowSnapshot, format)

	payload, err := DecodeShallowSnapshot(blob, change.NewRegistry())
	require.NoError(t, err)
	assert.Equal(t, []byte("live-state"), payload.StateBlobs[cid.String()])
	assert.Equal(t, []byte("gc-state"), payload.GCBlobs[cid.String()])
	assert.Equal(t, cutoff, payload.Cutoff)
	assert.Equal(t, id.Lamport(7), payload.CutoffLamport)
	assert.Equal(t, log.FrontiersToVV(cutoff), payload.CutoffVV)
}

func TestLegacyRoundTrip(t *testing.T) {
	log, _ := buildSampleLog(t)
	registry := log.Registry()

	blob, err := EncodeLegacy(log, registry)
	require.NoError(t, err)

	format, err := DetectFormat(blob)
	require.NoError(t, err)
	assert.Equal(t, FormatOutdated, format)

	changes, err := DecodeLegacy(blob, change.NewRegistry())
	require.NoError(t, err)
	assert.Len(t, changes, 2)
}

func TestDecodeRejectsMalformedChanges(t *testing.T) {
	registry := change.NewRegistry()
	idx := registry.Intern(change.RootContainerID("text", change.KindText))

	gapped := &change.Change{
		ID: id.NewID(1, 0),
		Ops: []change.Op{{
			Container: idx,
			Counter:   5, // does not continue the change's own id
			Content:   change.OpContent{Kind: change.OpTextInsert, Text: "x"},
		}},
	}
	table, wireChanges, err := encodeChanges([]*change.Change{gapped}, registry)
	require.NoError(t, err)
	_, err = decodeChanges(table, wireChanges, change.NewRegistry())
	require.Error(t, err)

	selfDep := &change.Change{
		ID:   id.NewID(1, 0),
		Deps: id.Frontiers{id.NewID(1, 7)},
		Ops: []change.Op{{
			Container: idx,
			Counter:   0,
			Content:   change.OpContent{Kind: change.OpTextInsert, Text: "x"},
		}},
	}
	table, wireChanges, err = encodeChanges([]*change.Change{selfDep}, registry)
	require.NoError(t, err)
	_, err = decodeChanges(table, wireChanges, change.NewRegistry())
	require.Error(t, err)
}

func TestDecodeRejectsWrongFormat(t *testing.T) {
	log, _ := buildSampleLog(t)
	blob, err := EncodeLegacy(log, log.Registry())
	require.NoError(t, err)

	_, err = DecodeUpdates(blob, change.NewRegistry())
	assert.Error(t, err)
}
