package loro

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loro-dev/loro-go/internal/change"
	"github.com/loro-dev/loro-go/internal/errs"
	"github.com/loro-dev/loro-go/internal/id"
	"github.com/loro-dev/loro-go/internal/state"
)

func newDoc(t *testing.T, peer id.PeerID) *Document {
	t.Helper()
	d, err := New(Options{PeerID: peer})
	require.NoError(t, err)
	return d
}

// sync exchanges updates both ways until a and b hold the same history.
func syncDocs(t *testing.T, a, b *Document) {
	t.Helper()
	ab, err := a.Export(ExportUpdates{From: b.OplogVersion()})
	require.NoError(t, err)
	ba, err := b.Export(ExportUpdates{From: a.OplogVersion()})
	require.NoError(t, err)
	require.NoError(t, b.Import(ab))
	require.NoError(t, a.Import(ba))
}

func TestConcurrentTextInsertsDoNotInterleave(t *testing.T) {
	alice := newDoc(t, 1)
	bob := newDoc(t, 2)

	require.NoError(t, alice.Text("doc").Insert(0, "Hello"))
	require.NoError(t, bob.Text("doc").Insert(0, " World!"))
	syncDocs(t, alice, bob)

	got := alice.Text("doc").String()
	assert.Equal(t, got, bob.Text("doc").String())
	assert.Contains(t, []string{"Hello World!", " World!Hello"}, got)
}

func TestConvergedReplicasExportIdenticalSnapshots(t *testing.T) {
	alice := newDoc(t, 1)
	bob := newDoc(t, 2)

	require.NoError(t, alice.Text("doc").Insert(0, "shared"))
	require.NoError(t, alice.List("items").Push(change.I64Value(1)))
	require.NoError(t, bob.Text("doc").Insert(0, "state"))
	require.NoError(t, bob.Map("meta").Set("k", change.StringValue("v")))
	require.NoError(t, bob.Counter("hits").Increment(2))
	syncDocs(t, alice, bob)

	require.True(t, alice.OplogVersion().Equal(bob.OplogVersion()))
	assert.True(t, alice.GetDeepValue().Equal(bob.GetDeepValue()))

	sa, err := alice.Export(ExportSnapshot{})
	require.NoError(t, err)
	sb, err := bob.Export(ExportSnapshot{})
	require.NoError(t, err)
	assert.Equal(t, sa, sb)
}

func TestMapLastWriterWins(t *testing.T) {
	alice := newDoc(t, 1)
	bob := newDoc(t, 2)

	require.NoError(t, alice.Map("m").Set("k", change.StringValue("a")))
	syncDocs(t, alice, bob)
	// Bob's write causally follows Alice's, so its lamport is higher.
	require.NoError(t, bob.Map("m").Set("k", change.StringValue("b")))
	syncDocs(t, alice, bob)

	v, ok := alice.Map("m").Get("k")
	require.True(t, ok)
	assert.Equal(t, "b", v.Str)
	v, ok = bob.Map("m").Get("k")
	require.True(t, ok)
	assert.Equal(t, "b", v.Str)
}

func TestCounterMergesToSumOfDeltas(t *testing.T) {
	docs := []*Document{newDoc(t, 1), newDoc(t, 2), newDoc(t, 3)}
	deltas := []float64{1.0, 2.5, -0.5}
	for i, d := range docs {
		require.NoError(t, d.Counter("c").Increment(deltas[i]))
	}
	syncDocs(t, docs[0], docs[1])
	syncDocs(t, docs[1], docs[2])
	syncDocs(t, docs[0], docs[2])
	syncDocs(t, docs[0], docs[1])

	for _, d := range docs {
		assert.InDelta(t, 3.0, d.Counter("c").Value(), 1e-9)
	}
}

func TestConcurrentTreeMovesNeverFormCycle(t *testing.T) {
	alice := newDoc(t, 1)
	bob := newDoc(t, 2)

	treeA := alice.Tree("t")
	a, err := treeA.CreateNode(nil, 0)
	require.NoError(t, err)
	b, err := treeA.CreateNode(&a, 0)
	require.NoError(t, err)
	syncDocs(t, alice, bob)

	treeB := bob.Tree("t")
	// Concurrently: Alice moves A under B, Bob moves B to top level then
	// back under... keep it the classic pair: A->B vs B->A.
	require.NoError(t, treeA.Move(a, &b, 0))
	require.NoError(t, treeB.Move(b, nil, 0))
	require.NoError(t, treeB.Move(b, &a, 0))
	syncDocs(t, alice, bob)

	for _, tr := range []*Tree{treeA, alice.Tree("t"), bob.Tree("t")} {
		aUnderB := containsTreeID(tr.Children(&b), a)
		bUnderA := containsTreeID(tr.Children(&a), b)
		assert.False(t, aUnderB && bUnderA, "cycle: A under B and B under A simultaneously")
		assert.True(t, aUnderB || bUnderA, "one of the two moves must be effective")
	}
	assert.Equal(t, alice.Tree("t").Children(nil), bob.Tree("t").Children(nil))
}

func containsTreeID(ids []change.TreeID, target change.TreeID) bool {
	for _, x := range ids {
		if x == target {
			return true
		}
	}
	return false
}

func TestImportIsIdempotent(t *testing.T) {
	alice := newDoc(t, 1)
	bob := newDoc(t, 2)
	require.NoError(t, alice.Text("doc").Insert(0, "hello"))

	blob, err := alice.Export(ExportUpdates{From: bob.OplogVersion()})
	require.NoError(t, err)
	require.NoError(t, bob.Import(blob))
	before := bob.GetDeepValue()

	require.NoError(t, bob.Import(blob))
	assert.True(t, before.Equal(bob.GetDeepValue()))
	assert.True(t, alice.OplogVersion().Equal(bob.OplogVersion()))
}

func TestSnapshotRoundTripReproducesDocument(t *testing.T) {
	alice := newDoc(t, 1)
	require.NoError(t, alice.Text("doc").Insert(0, "Hello"))
	require.NoError(t, alice.Map("meta").Set("title", change.StringValue("x")))
	require.NoError(t, alice.Counter("n").Increment(4))

	blob, err := alice.Export(ExportSnapshot{})
	require.NoError(t, err)

	fresh := newDoc(t, 9)
	require.NoError(t, fresh.Import(blob))

	assert.True(t, alice.GetDeepValue().Equal(fresh.GetDeepValue()))
	assert.True(t, fresh.OplogFrontiers().Equal(alice.OplogFrontiers()))
	assert.Equal(t, "Hello", fresh.Text("doc").String())
}

func TestIncrementalUpdatesEqualFullState(t *testing.T) {
	alice := newDoc(t, 1)
	follower := newDoc(t, 2)

	require.NoError(t, alice.Text("doc").Insert(0, "one"))
	blob, err := alice.Export(ExportUpdates{From: follower.OplogVersion()})
	require.NoError(t, err)
	require.NoError(t, follower.Import(blob))

	require.NoError(t, alice.Text("doc").Insert(3, " two"))
	blob, err = alice.Export(ExportUpdates{From: follower.OplogVersion()})
	require.NoError(t, err)
	require.NoError(t, follower.Import(blob))

	assert.True(t, alice.GetDeepValue().Equal(follower.GetDeepValue()))
	assert.Equal(t, "one two", follower.Text("doc").String())
}

func TestUpdatesInRangeExportsRequestedSpans(t *testing.T) {
	alice := newDoc(t, 1)
	require.NoError(t, alice.Text("doc").Insert(0, "abc"))

	blob, err := alice.Export(ExportUpdatesInRange{Spans: []id.IdSpan{id.NewIdSpan(1, 0, 2)}})
	require.NoError(t, err)

	fresh := newDoc(t, 2)
	require.NoError(t, fresh.Import(blob))
	assert.Equal(t, "ab", fresh.Text("doc").String())
}

func TestLegacyFormatRoundTrip(t *testing.T) {
	alice := newDoc(t, 1)
	require.NoError(t, alice.Text("doc").Insert(0, "old wine"))

	blob, err := alice.Export(ExportOutdated{})
	require.NoError(t, err)

	fresh := newDoc(t, 2)
	require.NoError(t, fresh.Import(blob))
	assert.Equal(t, "old wine", fresh.Text("doc").String())
}

func TestCheckoutAndAttachRestoreState(t *testing.T) {
	alice := newDoc(t, 1)
	require.NoError(t, alice.Text("doc").Insert(0, "Hello"))
	early := alice.OplogFrontiers()
	require.NoError(t, alice.Text("doc").Insert(5, " World"))
	full := alice.Text("doc").String()

	require.NoError(t, alice.Checkout(early))
	assert.True(t, alice.IsDetached())
	assert.Equal(t, "Hello", alice.Text("doc").String())

	// Local edits are refused while detached.
	err := alice.Text("doc").Insert(0, "x")
	assert.Error(t, err)

	require.NoError(t, alice.Attach())
	assert.False(t, alice.IsDetached())
	assert.Equal(t, full, alice.Text("doc").String())
	assert.True(t, alice.StateFrontiers().Equal(alice.OplogFrontiers()))
}

func TestDetachedImportOnlyAdvancesLog(t *testing.T) {
	alice := newDoc(t, 1)
	bob := newDoc(t, 2)
	require.NoError(t, alice.Text("doc").Insert(0, "base"))
	syncDocs(t, alice, bob)

	base := bob.OplogFrontiers()
	require.NoError(t, bob.Checkout(base))

	require.NoError(t, alice.Text("doc").Insert(4, "!"))
	blob, err := alice.Export(ExportUpdates{From: bob.OplogVersion()})
	require.NoError(t, err)
	require.NoError(t, bob.Import(blob))

	// State is pinned at the checkout target until Attach.
	assert.Equal(t, "base", bob.Text("doc").String())
	require.NoError(t, bob.Attach())
	assert.Equal(t, "base!", bob.Text("doc").String())
}

func TestForkProducesIndependentReplica(t *testing.T) {
	alice := newDoc(t, 1)
	require.NoError(t, alice.Text("doc").Insert(0, "shared"))

	clone, err := alice.Fork()
	require.NoError(t, err)
	assert.NotEqual(t, alice.PeerID(), clone.PeerID())
	assert.Equal(t, "shared", clone.Text("doc").String())

	require.NoError(t, clone.Text("doc").Insert(6, " fork"))
	assert.Equal(t, "shared", alice.Text("doc").String())

	syncDocs(t, alice, clone)
	assert.Equal(t, "shared fork", alice.Text("doc").String())
}

func TestForkAtReproducesEarlierVersion(t *testing.T) {
	alice := newDoc(t, 1)
	require.NoError(t, alice.Text("doc").Insert(0, "Hello"))
	early := alice.OplogFrontiers()
	require.NoError(t, alice.Text("doc").Insert(5, " World"))

	old, err := alice.ForkAt(early)
	require.NoError(t, err)
	assert.Equal(t, "Hello", old.Text("doc").String())
	assert.True(t, old.OplogFrontiers().Equal(early))
}

func TestShallowSnapshotTrimsHistory(t *testing.T) {
	alice := newDoc(t, 1)
	require.NoError(t, alice.Text("doc").Insert(0, "He"))
	veryEarly := alice.OplogFrontiers()
	require.NoError(t, alice.Text("doc").Insert(2, "llo"))
	cutoff := alice.OplogFrontiers()
	require.NoError(t, alice.Text("doc").Insert(5, " World"))

	blob, err := alice.Export(ExportShallowSnapshot{Frontiers: cutoff})
	require.NoError(t, err)

	fresh := newDoc(t, 2)
	require.NoError(t, fresh.Import(blob))
	assert.Equal(t, "Hello World", fresh.Text("doc").String())
	assert.True(t, fresh.GetDeepValue().Equal(alice.GetDeepValue()))

	// The cutoff itself is still reachable...
	require.NoError(t, fresh.Checkout(cutoff))
	assert.Equal(t, "Hello", fresh.Text("doc").String())
	require.NoError(t, fresh.Attach())

	// ...but anything below it is gone.
	err = fresh.Checkout(veryEarly)
	require.Error(t, err)
	assert.True(t, errs.HasKind(err, errs.HistoryCleared))
}

func TestTransactionBatchesOpsIntoOneEvent(t *testing.T) {
	alice := newDoc(t, 1)
	var events []state.DocDiff
	sub := alice.Subscribe(func(dd state.DocDiff) { events = append(events, dd) })
	defer sub.Unsubscribe()

	txn := alice.Begin("batch")
	require.NoError(t, alice.Text("doc").Insert(0, "hi"))
	require.NoError(t, alice.Counter("c").Increment(1))
	_, err := txn.Commit()
	require.NoError(t, err)

	require.Len(t, events, 1)
	assert.Equal(t, "local", events[0].Origin)
	assert.True(t, events[0].Local)
	assert.Len(t, events[0].Diffs, 2)
}

func TestImportDeliversOneEventPerBatch(t *testing.T) {
	alice := newDoc(t, 1)
	bob := newDoc(t, 2)
	require.NoError(t, alice.Text("doc").Insert(0, "one"))
	require.NoError(t, alice.Map("m").Set("k", change.I64Value(7)))

	var events []state.DocDiff
	sub := bob.Subscribe(func(dd state.DocDiff) { events = append(events, dd) })
	defer sub.Unsubscribe()

	blob, err := alice.Export(ExportUpdates{From: bob.OplogVersion()})
	require.NoError(t, err)
	require.NoError(t, bob.Import(blob))

	require.Len(t, events, 1)
	assert.Equal(t, "import", events[0].Origin)
	assert.False(t, events[0].Local)
	// The event moves state from bob's old frontier to alice's tip.
	assert.True(t, events[0].To.Equal(bob.StateFrontiers()))
}

func TestContainerSubscriptionFiltersByID(t *testing.T) {
	alice := newDoc(t, 1)
	textID := alice.Text("doc").ID()

	textEvents := 0
	sub := alice.SubscribeContainer(textID, func(dd state.DocDiff) { textEvents++ })
	defer sub.Unsubscribe()

	require.NoError(t, alice.Text("doc").Insert(0, "x"))
	require.NoError(t, alice.Counter("c").Increment(1))

	assert.Equal(t, 1, textEvents)
}

func TestPendingChangesDrainWhenDepsArrive(t *testing.T) {
	alice := newDoc(t, 1)
	bob := newDoc(t, 2)
	carol := newDoc(t, 3)

	require.NoError(t, alice.Text("doc").Insert(0, "a"))
	first, err := alice.Export(ExportUpdates{From: carol.OplogVersion()})
	require.NoError(t, err)
	require.NoError(t, bob.Import(first))
	require.NoError(t, bob.Text("doc").Insert(1, "b"))

	// Carol receives Bob's change (which depends on Alice's) first.
	second, err := bob.Export(ExportUpdates{From: alice.OplogVersion()})
	require.NoError(t, err)
	require.NoError(t, carol.Import(second))
	assert.Equal(t, 1, carol.PendingChanges())
	assert.NotEmpty(t, carol.MissingDeps())
	assert.Equal(t, "", carol.Text("doc").String())

	require.NoError(t, carol.Import(first))
	assert.Equal(t, 0, carol.PendingChanges())
	assert.Equal(t, "ab", carol.Text("doc").String())
}

func TestSetPeerIDRefusesExistingHistory(t *testing.T) {
	alice := newDoc(t, 1)
	bob := newDoc(t, 2)
	require.NoError(t, alice.Text("doc").Insert(0, "x"))
	syncDocs(t, alice, bob)

	assert.Error(t, bob.SetPeerID(1))
	assert.NoError(t, bob.SetPeerID(42))
	assert.Equal(t, uint64(42), uint64(bob.PeerID()))
}

func TestOutOfBoundsEditFailsWithoutLogging(t *testing.T) {
	alice := newDoc(t, 1)
	before := alice.OplogVersion()

	err := alice.Text("doc").Insert(10, "nope")
	assert.Error(t, err)
	assert.True(t, alice.OplogVersion().Equal(before))
}

func TestDiagnoseSizeCountsContainers(t *testing.T) {
	alice := newDoc(t, 1)
	require.NoError(t, alice.Text("doc").Insert(0, "x"))
	require.NoError(t, alice.Counter("c").Increment(1))

	diag := alice.DiagnoseSize()
	assert.Equal(t, 2, diag.ContainerCount)
	assert.Greater(t, diag.StateBytes, 0)
	assert.Equal(t, 0, diag.PendingChanges)
}

func TestNestedContainerParent(t *testing.T) {
	alice := newDoc(t, 1)
	child, err := alice.Map("root").SetContainer("inner", change.KindText)
	require.NoError(t, err)

	innerText, err := alice.TextAt(child)
	require.NoError(t, err)
	require.NoError(t, innerText.Insert(0, "nested"))

	parent, ok := innerText.Parent()
	require.True(t, ok)
	assert.Equal(t, alice.Map("root").ID(), parent)
}
