// Package metrics exposes the engine's Prometheus instrumentation,
// one promauto-built struct holding every instrument, named in
// the document engine's own vocabulary: changes committed, ops applied,
// diff-calculator mode switches, snapshot encode/decode timings.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every counter/gauge/histogram the engine updates.
type Metrics struct {
	ChangesCommitted   prometheus.Counter
	ChangeCommitLatency prometheus.Histogram
	OpsApplied         prometheus.Counter
	PendingChanges     prometheus.Gauge
	CheckoutReplays    prometheus.Counter
	LinearDiffs        prometheus.Counter
	SnapshotEncodeTime prometheus.Histogram
	SnapshotDecodeTime prometheus.Histogram
	SnapshotBytes      prometheus.Gauge
	SubscriberCount    prometheus.Gauge
	ImportErrors       prometheus.Counter
}

// NewMetrics registers and returns a fresh Metrics set. Calling it more
// than once in the same process will panic (promauto registers into the
// default registry), a single-instance-per-process
// assumption.
func NewMetrics() *Metrics {
	return &Metrics{
		ChangesCommitted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "loro_changes_committed_total",
			Help: "Total number of changes committed to the local oplog",
		}),
		ChangeCommitLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "loro_change_commit_duration_seconds",
			Help:    "Time taken to commit a change",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12),
		}),
		OpsApplied: promauto.NewCounter(prometheus.CounterOpts{
			Name: "loro_ops_applied_total",
			Help: "Total number of ops applied to container states",
		}),
		PendingChanges: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "loro_pending_changes",
			Help: "Changes buffered waiting on missing causal dependencies",
		}),
		CheckoutReplays: promauto.NewCounter(prometheus.CounterOpts{
			Name: "loro_checkout_replays_total",
			Help: "Total number of full-replay checkouts performed",
		}),
		LinearDiffs: promauto.NewCounter(prometheus.CounterOpts{
			Name: "loro_linear_diffs_total",
			Help: "Total number of fast-path linear diffs computed",
		}),
		SnapshotEncodeTime: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "loro_snapshot_encode_duration_seconds",
			Help:    "Time taken to encode a snapshot or update",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12),
		}),
		SnapshotDecodeTime: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "loro_snapshot_decode_duration_seconds",
			Help:    "Time taken to decode a snapshot or update",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12),
		}),
		SnapshotBytes: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "loro_snapshot_bytes",
			Help: "Size in bytes of the most recently exported snapshot",
		}),
		SubscriberCount: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "loro_subscribers",
			Help: "Number of active diff subscriptions",
		}),
		ImportErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "loro_import_errors_total",
			Help: "Total number of failed import attempts (bad checksum, unknown version, corrupt frame)",
		}),
	}
}
