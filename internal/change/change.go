package change

import "github.com/loro-dev/loro-go/internal/id"

// Timestamp is seconds since the Unix epoch, best-effort wall clock used
// only for display and change-merge heuristics — never for ordering.
type Timestamp = int64

// Change-merge thresholds: a change stops accepting merges once it covers
// this many counter slots, or when the wall-clock gap between commits
// grows past the interval.
const (
	MaxChangeLength      = 256
	MaxMergeIntervalSecs = 60
)

// Change is a contiguous batch of ops from one peer sharing an id range, a
// lamport range, a single deps frontier and timestamp.
type Change struct {
	ID        id.ID
	Lamport   id.Lamport
	Deps      id.Frontiers
	Timestamp Timestamp
	Message   string
	Ops       []Op

	// Frozen marks a change ineligible for further merging: set once a
	// change has been imported from a remote peer, or once something has
	// been appended after it (only the most recent local change is ever
	// mergeable).
	Frozen bool
}

// Len returns the number of counter slots (ops, weighted by their Len)
// this change covers.
func (c *Change) Len() int {
	n := 0
	for _, op := range c.Ops {
		n += op.Len()
	}
	return n
}

// IDSpan returns the IdSpan this change occupies in its peer's log.
func (c *Change) IDSpan() id.IdSpan {
	return id.NewIdSpan(c.ID.Peer, c.ID.Counter, c.ID.Counter+id.Counter(c.Len()))
}

// LamportEnd returns the exclusive end of the lamport range this change
// occupies: Lamport+Len().
func (c *Change) LamportEnd() id.Lamport { return c.Lamport + id.Lamport(c.Len()) }

// CanMergeWith reports whether other may be appended to c as part of the
// same change record: same peer, contiguous counters, c not yet frozen,
// other carrying no extra deps (deps come only from c's own tip), the
// combined length under MaxChangeLength, and the timestamp gap under
// MaxMergeIntervalSecs.
func (c *Change) CanMergeWith(other *Change) bool {
	if c.Frozen {
		return false
	}
	wantDep := id.ID{Peer: c.ID.Peer, Counter: c.ID.Counter + id.Counter(c.Len()) - 1}
	if len(other.Deps) != 1 || other.Deps[0] != wantDep {
		return false
	}
	if c.ID.Peer != other.ID.Peer || c.ID.Counter+id.Counter(c.Len()) != other.ID.Counter {
		return false
	}
	if c.Len()+other.Len() > MaxChangeLength {
		return false
	}
	if other.Timestamp-c.Timestamp > MaxMergeIntervalSecs {
		return false
	}
	return true
}

// MergeFrom appends other's ops onto c in place. Callers must have checked
// CanMergeWith first.
func (c *Change) MergeFrom(other *Change) {
	c.Ops = append(c.Ops, other.Ops...)
	if other.Timestamp > c.Timestamp {
		c.Timestamp = other.Timestamp
	}
}

// SliceTo returns the prefix of c covering its first n counter slots,
// used when an export stops at a version-vector boundary that lands
// mid-change. Identity, deps, lamport and timestamp are unchanged (the
// prefix starts where c starts); the op straddling the cut is trimmed via
// Op.SliceTo. Returns nil if n <= 0.
func (c *Change) SliceTo(n int) *Change {
	if n <= 0 {
		return nil
	}
	if n >= c.Len() {
		return c
	}
	cum := 0
	newOps := make([]Op, 0, len(c.Ops))
	for _, op := range c.Ops {
		l := op.Len()
		if cum+l <= n {
			newOps = append(newOps, op)
			cum += l
			continue
		}
		if n > cum {
			newOps = append(newOps, op.SliceTo(n-cum))
		}
		break
	}
	return &Change{
		ID:        c.ID,
		Lamport:   c.Lamport,
		Deps:      c.Deps.Clone(),
		Timestamp: c.Timestamp,
		Message:   c.Message,
		Ops:       newOps,
		Frozen:    true,
	}
}

// SliceFrom returns the suffix of c starting at span-relative offset: the
// ops already covered by a receiver's version vector are dropped, and the
// op straddling the cut (if any) is itself sliced via Op.SliceFrom. The
// result depends only on c's own already-applied prefix, so its Deps
// becomes a single dependency on the last op of that prefix. Returns nil
// if offset >= c.Len() (c is already fully known).
func (c *Change) SliceFrom(offset int) *Change {
	if offset <= 0 {
		return c
	}
	if offset >= c.Len() {
		return nil
	}
	cum := 0
	for i, op := range c.Ops {
		l := op.Len()
		if cum+l <= offset {
			cum += l
			continue
		}
		intra := offset - cum
		newOps := make([]Op, 0, len(c.Ops)-i)
		newOps = append(newOps, op.SliceFrom(c.ID.Peer, intra))
		newOps = append(newOps, c.Ops[i+1:]...)
		newCounter := c.ID.Counter + id.Counter(offset)
		return &Change{
			ID:        id.NewID(c.ID.Peer, newCounter),
			Lamport:   c.Lamport + id.Lamport(offset),
			Deps:      id.Frontiers{id.NewID(c.ID.Peer, newCounter-1)},
			Timestamp: c.Timestamp,
			Message:   c.Message,
			Ops:       newOps,
			Frozen:    true,
		}
	}
	return nil
}
