package metrics

import "testing"

func TestNewMetrics(t *testing.T) {
	m := NewMetrics()
	if m == nil {
		t.Fatal("Expected Metrics, got nil")
	}
	if m.ChangesCommitted == nil {
		t.Error("Expected ChangesCommitted to be initialized")
	}
	if m.ChangeCommitLatency == nil {
		t.Error("Expected ChangeCommitLatency to be initialized")
	}
	if m.OpsApplied == nil {
		t.Error("Expected OpsApplied to be initialized")
	}
	if m.PendingChanges == nil {
		t.Error("Expected PendingChanges to be initialized")
	}
	if m.CheckoutReplays == nil {
		t.Error("Expected CheckoutReplays to be initialized")
	}
	if m.LinearDiffs == nil {
		t.Error("Expected LinearDiffs to be initialized")
	}
	if m.SnapshotEncodeTime == nil {
		t.Error("Expected SnapshotEncodeTime to be initialized")
	}
	if m.SnapshotDecodeTime == nil {
		t.Error("Expected SnapshotDecodeTime to be initialized")
	}
	if m.SnapshotBytes == nil {
		t.Error("Expected SnapshotBytes to be initialized")
	}
	if m.SubscriberCount == nil {
		t.Error("Expected SubscriberCount to be initialized")
	}
	if m.ImportErrors == nil {
		t.Error("Expected ImportErrors to be initialized")
	}
}
