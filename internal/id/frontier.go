package id

// Frontiers is the minimal antichain of ids forming the tips of the causal
// DAG: every id in the log either precedes some id in Frontiers or is
// dominated by one, and no id in Frontiers causally precedes another.
type Frontiers []ID

// Empty reports whether the frontier set has no ids (the state before any
// change has been applied).
func (f Frontiers) Empty() bool { return len(f) == 0 }

// Clone returns a copy of f.
func (f Frontiers) Clone() Frontiers {
	if f == nil {
		return nil
	}
	out := make(Frontiers, len(f))
	copy(out, f)
	return out
}

// Contains reports whether target is present verbatim in f.
func (f Frontiers) Contains(target ID) bool {
	for _, x := range f {
		if x == target {
			return true
		}
	}
	return false
}

// Equal reports whether f and other contain the same set of ids,
// irrespective of order.
func (f Frontiers) Equal(other Frontiers) bool {
	if len(f) != len(other) {
		return false
	}
	seen := make(map[ID]struct{}, len(f))
	for _, x := range f {
		seen[x] = struct{}{}
	}
	for _, x := range other {
		if _, ok := seen[x]; !ok {
			return false
		}
	}
	return true
}

// precedesFn reports whether a causally precedes or equals b. Frontier
// insertion needs this to keep the antichain minimal; the DAG-aware
// implementation lives in the oplog package and is injected here so that
// the id package stays free of a dependency on the change log.
type precedesFn func(a, b ID) bool

// Insert adds target to f, dropping any existing member that target
// dominates and refusing to insert if target is dominated by an existing
// member. precedes(a, b) must report whether a causally precedes or equals
// b. Returns the updated (still-canonical) frontier set.
func (f Frontiers) Insert(target ID, precedes precedesFn) Frontiers {
	out := make(Frontiers, 0, len(f)+1)
	for _, existing := range f {
		if existing == target {
			return f
		}
		if precedes(target, existing) {
			// target precedes (or equals) an existing tip: existing already
			// dominates it, nothing to insert.
			return f
		}
		if precedes(existing, target) {
			// existing is dominated by the new id: drop it.
			continue
		}
		out = append(out, existing)
	}
	out = append(out, target)
	return out
}

// ToVersionVectorShallow converts f into a version vector by setting, for
// each member, its peer's end to counter+1. Transitive deps are not
// followed, so the result only covers the full history when f's members
// are themselves the per-peer maxima; general conversion (merging with
// transitive deps) belongs to the oplog package, which has DAG access.
func (f Frontiers) ToVersionVectorShallow() VersionVector {
	vv := NewVersionVector()
	for _, x := range f {
		vv.SetEnd(x.Peer, x.Counter+1)
	}
	return vv
}
