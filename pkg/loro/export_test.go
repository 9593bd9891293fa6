package loro

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loro-dev/loro-go/internal/errs"
	"github.com/loro-dev/loro-go/internal/integrity"
)

func TestImportRejectsCorruptFrame(t *testing.T) {
	alice := newDoc(t, 1)
	require.NoError(t, alice.Text("doc").Insert(0, "payload"))
	blob, err := alice.Export(ExportUpdates{From: nil})
	require.NoError(t, err)

	corrupt := append([]byte(nil), blob...)
	corrupt[len(corrupt)/2] ^= 0xFF

	fresh := newDoc(t, 2)
	err = fresh.Import(corrupt)
	require.Error(t, err)
	assert.True(t, errs.HasKind(err, errs.DecodeError))

	// The failed import left no trace.
	assert.Empty(t, fresh.OplogVersion())
	assert.Equal(t, "", fresh.Text("doc").String())
}

func TestImportRejectsGarbage(t *testing.T) {
	fresh := newDoc(t, 1)
	err := fresh.Import([]byte("not a loro frame"))
	require.Error(t, err)
	assert.True(t, errs.HasKind(err, errs.DecodeError))
}

func TestExportCommitsOpenTransaction(t *testing.T) {
	alice := newDoc(t, 1)
	alice.Begin("open")
	require.NoError(t, alice.Text("doc").Insert(0, "buffered"))

	blob, err := alice.Export(ExportSnapshot{})
	require.NoError(t, err)

	fresh := newDoc(t, 2)
	require.NoError(t, fresh.Import(blob))
	assert.Equal(t, "buffered", fresh.Text("doc").String())
}

func TestImportBatchCollectsErrors(t *testing.T) {
	alice := newDoc(t, 1)
	require.NoError(t, alice.Text("doc").Insert(0, "ok"))
	good, err := alice.Export(ExportUpdates{From: nil})
	require.NoError(t, err)

	fresh := newDoc(t, 2)
	err = fresh.ImportBatch([][]byte{good, []byte("junk")})
	require.Error(t, err)
	// The good blob still landed.
	assert.Equal(t, "ok", fresh.Text("doc").String())
}

func TestSignedExportRoundTrip(t *testing.T) {
	kp, err := integrity.GenerateKeyPair()
	require.NoError(t, err)
	alice, err := New(Options{PeerID: 1, SigningKey: kp})
	require.NoError(t, err)
	require.NoError(t, alice.Text("doc").Insert(0, "signed"))

	se, err := alice.ExportSigned(ExportSnapshot{})
	require.NoError(t, err)

	fresh := newDoc(t, 2)
	require.NoError(t, fresh.ImportSigned(se, kp.Public))
	assert.Equal(t, "signed", fresh.Text("doc").String())
}

func TestSignedImportRejectsTampering(t *testing.T) {
	kp, err := integrity.GenerateKeyPair()
	require.NoError(t, err)
	alice, err := New(Options{PeerID: 1, SigningKey: kp})
	require.NoError(t, err)
	require.NoError(t, alice.Text("doc").Insert(0, "signed"))

	se, err := alice.ExportSigned(ExportUpdates{From: nil})
	require.NoError(t, err)
	se.Blob[0] ^= 0xFF

	fresh := newDoc(t, 2)
	err = fresh.ImportSigned(se, kp.Public)
	require.Error(t, err)
	assert.True(t, errs.HasKind(err, errs.DecodeError))
}

func TestExportSignedWithoutKeyFails(t *testing.T) {
	alice := newDoc(t, 1)
	_, err := alice.ExportSigned(ExportSnapshot{})
	assert.Error(t, err)
}

func TestSnapshotAtExportsHistoricalVersion(t *testing.T) {
	alice := newDoc(t, 1)
	require.NoError(t, alice.Text("doc").Insert(0, "Hello"))
	early := alice.OplogFrontiers()
	require.NoError(t, alice.Text("doc").Insert(5, " World"))

	blob, err := alice.Export(ExportSnapshotAt{Frontiers: early})
	require.NoError(t, err)

	fresh := newDoc(t, 2)
	require.NoError(t, fresh.Import(blob))
	assert.Equal(t, "Hello", fresh.Text("doc").String())
	assert.True(t, fresh.OplogFrontiers().Equal(early))
}

func TestDetachedSnapshotReflectsLogTip(t *testing.T) {
	alice := newDoc(t, 1)
	require.NoError(t, alice.Text("doc").Insert(0, "Hello"))
	early := alice.OplogFrontiers()
	require.NoError(t, alice.Text("doc").Insert(5, " World"))

	require.NoError(t, alice.Checkout(early))
	blob, err := alice.Export(ExportSnapshot{})
	require.NoError(t, err)

	// The export covers the full log even though state is checked out.
	fresh := newDoc(t, 2)
	require.NoError(t, fresh.Import(blob))
	assert.Equal(t, "Hello World", fresh.Text("doc").String())
}
