package loro

import "github.com/loro-dev/loro-go/internal/change"

// Counter is a handle onto a PN-counter container: state is the running
// sum of every Increment.
type Counter struct{ handle }

// Value returns the counter's current sum.
func (h *Counter) Value() float64 { return h.counterState().Value().F64 }

// Increment adds delta (negative to decrement) to the counter.
func (h *Counter) Increment(delta float64) error {
	return h.doc.withTxn("counter.increment", func(t *Txn) {
		content := change.OpContent{Kind: change.OpCounterIncrement, Delta: delta}
		t.appendOp(h.cid, h.idx, content)
	})
}
