package oplog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loro-dev/loro-go/internal/change"
	"github.com/loro-dev/loro-go/internal/errs"
	"github.com/loro-dev/loro-go/internal/id"
)

func textOp(idx change.ContainerIdx, counter int32, text string) change.Op {
	return change.Op{
		Container: idx,
		Counter:   id.Counter(counter),
		Content:   change.OpContent{Kind: change.OpTextInsert, Text: text},
	}
}

func newLogWithRoot(t *testing.T) (*OpLog, change.ContainerIdx) {
	t.Helper()
	log := New()
	idx := log.Registry().Intern(change.RootContainerID("text", change.KindText))
	return log, idx
}

func TestCommitLocalAssignsCountersAndLamport(t *testing.T) {
	log, idx := newLogWithRoot(t)

	res, err := log.CommitLocal(1, []change.Op{textOp(idx, 0, "abc")}, "", 1000)
	require.NoError(t, err)
	assert.Equal(t, id.NewID(1, 0), res.Change.ID)
	assert.Equal(t, id.Lamport(0), res.Change.Lamport)
	assert.Equal(t, id.Counter(3), log.VersionVector().Get(1))

	f := log.Frontiers()
	require.Len(t, f, 1)
	assert.Equal(t, id.NewID(1, 2), f[0])
}

func TestLocalChangesMergeUnderThresholds(t *testing.T) {
	log, idx := newLogWithRoot(t)

	_, err := log.CommitLocal(1, []change.Op{textOp(idx, 0, "ab")}, "", 1000)
	require.NoError(t, err)
	res, err := log.CommitLocal(1, []change.Op{textOp(idx, 2, "cd")}, "", 1001)
	require.NoError(t, err)

	assert.True(t, res.Merged)
	assert.Len(t, log.Changes(1), 1)
	assert.Equal(t, 4, log.Changes(1)[0].Len())
}

func TestLocalChangesDoNotMergeAcrossTimestampGap(t *testing.T) {
	log, idx := newLogWithRoot(t)

	_, err := log.CommitLocal(1, []change.Op{textOp(idx, 0, "ab")}, "", 1000)
	require.NoError(t, err)
	res, err := log.CommitLocal(1, []change.Op{textOp(idx, 2, "cd")}, "", 1000+change.MaxMergeIntervalSecs+1)
	require.NoError(t, err)

	assert.False(t, res.Merged)
	assert.Len(t, log.Changes(1), 2)
}

func TestImportBuffersUntilDepsArrive(t *testing.T) {
	log, idx := newLogWithRoot(t)

	// Change B depends on change A, but B arrives first.
	a := &change.Change{
		ID: id.NewID(2, 0), Lamport: 0,
		Ops: []change.Op{textOp(idx, 0, "xy")},
	}
	b := &change.Change{
		ID: id.NewID(2, 2), Lamport: 2,
		Deps: id.Frontiers{id.NewID(2, 1)},
		Ops:  []change.Op{textOp(idx, 2, "z")},
	}

	ready, err := log.Import(b)
	require.NoError(t, err)
	assert.Empty(t, ready)
	assert.Equal(t, 1, log.PendingCount())
	assert.Equal(t, []id.ID{id.NewID(2, 1)}, log.MissingDeps())

	ready, err = log.Import(a)
	require.NoError(t, err)
	require.Len(t, ready, 2)
	assert.Equal(t, a, ready[0])
	assert.Equal(t, b, ready[1])
	assert.Equal(t, 0, log.PendingCount())
	assert.Equal(t, id.Counter(3), log.VersionVector().Get(2))
}

func TestImportDropsKnownRanges(t *testing.T) {
	log, idx := newLogWithRoot(t)

	c := &change.Change{ID: id.NewID(2, 0), Ops: []change.Op{textOp(idx, 0, "xy")}}
	ready, err := log.Import(c)
	require.NoError(t, err)
	assert.Len(t, ready, 1)

	dup := &change.Change{ID: id.NewID(2, 0), Ops: []change.Op{textOp(idx, 0, "xy")}}
	ready, err = log.Import(dup)
	require.NoError(t, err)
	assert.Empty(t, ready)
}

func TestImportSlicesStraddlingChange(t *testing.T) {
	log, idx := newLogWithRoot(t)

	prefix := &change.Change{ID: id.NewID(2, 0), Ops: []change.Op{textOp(idx, 0, "ab")}}
	_, err := log.Import(prefix)
	require.NoError(t, err)

	// A merged change covering [0, 4) arrives; only [2, 4) is new.
	straddle := &change.Change{ID: id.NewID(2, 0), Ops: []change.Op{textOp(idx, 0, "abcd")}}
	ready, err := log.Import(straddle)
	require.NoError(t, err)
	require.Len(t, ready, 1)
	assert.Equal(t, id.NewID(2, 2), ready[0].ID)
	assert.Equal(t, "cd", ready[0].Ops[0].Content.Text)
	assert.Equal(t, id.Counter(4), log.VersionVector().Get(2))
}

func TestFrontiersToVVRoundTrip(t *testing.T) {
	log, idx := newLogWithRoot(t)

	_, err := log.CommitLocal(1, []change.Op{textOp(idx, 0, "ab")}, "", 1000)
	require.NoError(t, err)

	remote := &change.Change{ID: id.NewID(2, 0), Ops: []change.Op{textOp(idx, 0, "cd")}}
	_, err = log.Import(remote)
	require.NoError(t, err)

	f := log.Frontiers()
	vv := log.FrontiersToVV(f)
	assert.Equal(t, id.Counter(2), vv.Get(1))
	assert.Equal(t, id.Counter(2), vv.Get(2))
	assert.True(t, log.VVToFrontiers(vv).Equal(f))
}

func TestCompareFrontiers(t *testing.T) {
	log, idx := newLogWithRoot(t)

	_, err := log.CommitLocal(1, []change.Op{textOp(idx, 0, "ab")}, "", 1000)
	require.NoError(t, err)
	early := log.Frontiers()

	remote := &change.Change{ID: id.NewID(2, 0), Ops: []change.Op{textOp(idx, 0, "cd")}}
	_, err = log.Import(remote)
	require.NoError(t, err)
	concurrent := id.Frontiers{id.NewID(2, 1)}

	assert.Equal(t, CompareEqual, log.CompareFrontiers(early, early))
	assert.Equal(t, CompareConcurrent, log.CompareFrontiers(early, concurrent))
	assert.Equal(t, CompareGreater, log.CompareFrontiers(log.Frontiers(), early))
	assert.Equal(t, CompareLess, log.CompareFrontiers(early, log.Frontiers()))
}

func TestCommonAncestor(t *testing.T) {
	log, idx := newLogWithRoot(t)

	_, err := log.CommitLocal(1, []change.Op{textOp(idx, 0, "ab")}, "", 1000)
	require.NoError(t, err)
	base := log.Frontiers()

	// Two changes concurrently extending base.
	c1 := &change.Change{ID: id.NewID(2, 0), Lamport: 2, Deps: base.Clone(), Ops: []change.Op{textOp(idx, 0, "x")}}
	c2 := &change.Change{ID: id.NewID(3, 0), Lamport: 2, Deps: base.Clone(), Ops: []change.Op{textOp(idx, 0, "y")}}
	_, err = log.Import(c1)
	require.NoError(t, err)
	_, err = log.Import(c2)
	require.NoError(t, err)

	meet := log.CommonAncestor(id.Frontiers{id.NewID(2, 0)}, id.Frontiers{id.NewID(3, 0)})
	assert.True(t, meet.Equal(base))
}

func TestTopoOpsRespectLamportOrder(t *testing.T) {
	log, idx := newLogWithRoot(t)

	_, err := log.CommitLocal(1, []change.Op{textOp(idx, 0, "ab")}, "", 1000)
	require.NoError(t, err)
	dep := log.Frontiers()
	c := &change.Change{ID: id.NewID(2, 0), Lamport: 2, Deps: dep, Ops: []change.Op{textOp(idx, 0, "cd")}}
	_, err = log.Import(c)
	require.NoError(t, err)

	recs := log.TopoOpsUpTo(log.VersionVector())
	require.Len(t, recs, 2)
	assert.Equal(t, id.PeerID(1), recs[0].Peer)
	assert.Equal(t, id.PeerID(2), recs[1].Peer)
}

func TestTopoOpsSliceAtBoundary(t *testing.T) {
	log, idx := newLogWithRoot(t)

	_, err := log.CommitLocal(1, []change.Op{textOp(idx, 0, "abcd")}, "", 1000)
	require.NoError(t, err)

	vv := id.NewVersionVector()
	vv.SetEnd(1, 2)
	recs := log.TopoOpsUpTo(vv)
	require.Len(t, recs, 1)
	assert.Equal(t, "ab", recs[0].Op.Content.Text)
}

func TestImportRejectsFutureSelfDep(t *testing.T) {
	log, idx := newLogWithRoot(t)

	c := &change.Change{
		ID:   id.NewID(2, 0),
		Deps: id.Frontiers{id.NewID(2, 5)},
		Ops:  []change.Op{textOp(idx, 0, "x")},
	}
	_, err := log.Import(c)
	require.Error(t, err)
	assert.True(t, errs.HasKind(err, errs.DecodeError))
	assert.Equal(t, id.Counter(0), log.VersionVector().Get(2))
}

func TestImportRejectsCounterGap(t *testing.T) {
	log, idx := newLogWithRoot(t)

	// No deps at all, yet the change claims to start at counter 5: the
	// peer's own counters 0..4 can never arrive through its deps.
	c := &change.Change{
		ID:  id.NewID(3, 5),
		Ops: []change.Op{textOp(idx, 5, "x")},
	}
	_, err := log.Import(c)
	require.Error(t, err)
	assert.True(t, errs.HasKind(err, errs.DecodeError))
	assert.Equal(t, id.Counter(0), log.VersionVector().Get(3))
}

func TestImportRejectsLamportMismatch(t *testing.T) {
	log, idx := newLogWithRoot(t)

	_, err := log.CommitLocal(1, []change.Op{textOp(idx, 0, "ab")}, "", 1000)
	require.NoError(t, err)
	dep := log.Frontiers()

	c := &change.Change{
		ID:      id.NewID(2, 0),
		Lamport: 99, // deps imply lamport 2
		Deps:    dep,
		Ops:     []change.Op{textOp(idx, 0, "x")},
	}
	_, err = log.Import(c)
	require.Error(t, err)
	assert.True(t, errs.HasKind(err, errs.DecodeError))
	assert.Equal(t, id.Counter(0), log.VersionVector().Get(2))
}

func TestDrainedPendingChangeIsStillValidated(t *testing.T) {
	log, idx := newLogWithRoot(t)

	// The waiter's lamport is wrong; it must be rejected when its dep
	// arrives, not silently admitted.
	waiter := &change.Change{
		ID:      id.NewID(2, 2),
		Lamport: 7, // dep implies lamport 2
		Deps:    id.Frontiers{id.NewID(2, 1)},
		Ops:     []change.Op{textOp(idx, 2, "z")},
	}
	_, err := log.Import(waiter)
	require.NoError(t, err)
	require.Equal(t, 1, log.PendingCount())

	dep := &change.Change{ID: id.NewID(2, 0), Ops: []change.Op{textOp(idx, 0, "xy")}}
	ready, err := log.Import(dep)
	require.Error(t, err)
	assert.True(t, errs.HasKind(err, errs.DecodeError))
	// The valid dep itself still landed.
	require.Len(t, ready, 1)
	assert.Equal(t, dep, ready[0])
	assert.Equal(t, id.Counter(2), log.VersionVector().Get(2))
}

func TestInitShallowSeedsVersionAndLamport(t *testing.T) {
	log, idx := newLogWithRoot(t)

	cutVV := id.NewVersionVector()
	cutVV.SetEnd(7, 10)
	cutoff := id.Frontiers{id.NewID(7, 9)}
	log.InitShallow(cutVV, cutoff, 9)

	assert.Equal(t, cutVV, log.VersionVector())
	assert.True(t, log.Frontiers().Equal(cutoff))
	assert.Equal(t, cutVV, log.ShallowSince())

	// A local commit on top of the cutoff continues the lamport sequence.
	res, err := log.CommitLocal(7, []change.Op{textOp(idx, 10, "x")}, "", 1000)
	require.NoError(t, err)
	assert.Equal(t, id.NewID(7, 10), res.Change.ID)
	assert.Equal(t, id.Lamport(10), res.Change.Lamport)
}
