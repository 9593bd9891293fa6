package id

// VersionVector maps a PeerID to the exclusive-end counter of the ops from
// that peer known to be applied. A version vector is "complete" when it is
// closed under causality: every dependency of every op it covers is also
// covered.
type VersionVector map[PeerID]Counter

// NewVersionVector returns an empty version vector.
func NewVersionVector() VersionVector { return make(VersionVector) }

// Get returns the next-counter for peer, or 0 if the peer is unknown.
func (vv VersionVector) Get(peer PeerID) Counter {
	if vv == nil {
		return 0
	}
	return vv[peer]
}

// Includes reports whether id has already been applied according to vv.
func (vv VersionVector) Includes(target ID) bool {
	return vv.Get(target.Peer) > target.Counter
}

// IncludesSpan reports whether every id in span is covered by vv.
func (vv VersionVector) IncludesSpan(span IdSpan) bool {
	if span.IsEmpty() {
		return true
	}
	return vv.Get(span.Peer) >= span.Counter.End
}

// Clone returns a deep copy of vv.
func (vv VersionVector) Clone() VersionVector {
	if vv == nil {
		return nil
	}
	out := make(VersionVector, len(vv))
	for k, v := range vv {
		out[k] = v
	}
	return out
}

// SetEnd advances vv so that peer's next-counter is at least end; it never
// moves a peer's counter backwards.
func (vv VersionVector) SetEnd(peer PeerID, end Counter) {
	if cur, ok := vv[peer]; !ok || end > cur {
		vv[peer] = end
	}
}

// ExtendToInclude advances vv's counter for span.Peer to at least
// span.Counter.End, recording that every id in span is now covered.
func (vv VersionVector) ExtendToInclude(span IdSpan) {
	vv.SetEnd(span.Peer, span.Counter.End)
}

// Merge returns the pointwise-max of a and b: the smallest version vector
// that dominates both.
func Merge(a, b VersionVector) VersionVector {
	out := make(VersionVector, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		if cur, ok := out[k]; !ok || v > cur {
			out[k] = v
		}
	}
	return out
}

// Diff returns the spans present only in a ("aOnly") and only in b
// ("bOnly") — the set-difference of the two closed id-ranges the vectors
// represent.
func (a VersionVector) Diff(b VersionVector) (aOnly, bOnly []IdSpan) {
	peers := make(map[PeerID]struct{}, len(a)+len(b))
	for p := range a {
		peers[p] = struct{}{}
	}
	for p := range b {
		peers[p] = struct{}{}
	}
	for p := range peers {
		av, bv := a.Get(p), b.Get(p)
		if av > bv {
			aOnly = append(aOnly, NewIdSpan(p, bv, av))
		} else if bv > av {
			bOnly = append(bOnly, NewIdSpan(p, av, bv))
		}
	}
	return aOnly, bOnly
}

// DominatesOrEqual reports whether every counter in b is <= the
// corresponding counter in a, i.e. a's covered set is a superset of b's.
func (a VersionVector) DominatesOrEqual(b VersionVector) bool {
	for p, bv := range b {
		if a.Get(p) < bv {
			return false
		}
	}
	return true
}

// Equal reports whether a and b cover exactly the same set of ids.
func (a VersionVector) Equal(b VersionVector) bool {
	return a.DominatesOrEqual(b) && b.DominatesOrEqual(a)
}
