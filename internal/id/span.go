package id

// CounterSpan is a half-open range of counters [Start, End) minted by one
// peer.
type CounterSpan struct {
	Start Counter
	End   Counter
}

// Len returns the number of counters covered by the span.
func (s CounterSpan) Len() int { return int(s.End - s.Start) }

// Contains reports whether c falls inside the span.
func (s CounterSpan) Contains(c Counter) bool { return c >= s.Start && c < s.End }

// Slice returns the sub-span [from, to) of s, expressed in span-relative
// offsets (0 == s.Start).
func (s CounterSpan) Slice(from, to int) CounterSpan {
	return CounterSpan{Start: s.Start + Counter(from), End: s.Start + Counter(to)}
}

// IdSpan is a contiguous run of ids minted by a single peer: (peer,
// [start,end)).
type IdSpan struct {
	Peer    PeerID
	Counter CounterSpan
}

// NewIdSpan builds an IdSpan.
func NewIdSpan(peer PeerID, start, end Counter) IdSpan {
	return IdSpan{Peer: peer, Counter: CounterSpan{Start: start, End: end}}
}

// Len returns the number of ids in the span.
func (s IdSpan) Len() int { return s.Counter.Len() }

// IsEmpty reports whether the span covers zero ids.
func (s IdSpan) IsEmpty() bool { return s.Counter.Len() <= 0 }

// Start returns the first id in the span.
func (s IdSpan) Start() ID { return ID{Peer: s.Peer, Counter: s.Counter.Start} }

// End returns the exclusive-end id of the span (the id one past the last
// id actually in the span).
func (s IdSpan) End() ID { return ID{Peer: s.Peer, Counter: s.Counter.End} }

// Last returns the last id actually contained in the span. Panics if the
// span is empty.
func (s IdSpan) Last() ID {
	if s.IsEmpty() {
		panic("id: Last called on empty IdSpan")
	}
	return ID{Peer: s.Peer, Counter: s.Counter.End - 1}
}

// Contains reports whether the span contains the given id.
func (s IdSpan) Contains(target ID) bool {
	return s.Peer == target.Peer && s.Counter.Contains(target.Counter)
}

// Slice returns the sub-span of s covering span-relative offsets [from, to).
func (s IdSpan) Slice(from, to int) IdSpan {
	return IdSpan{Peer: s.Peer, Counter: s.Counter.Slice(from, to)}
}

// CanMergeWith reports whether s immediately precedes other from the same
// peer, i.e. whether the two spans can be combined into one contiguous
// span. Mirrors the RLE merge contract used by change-store blocks.
func (s IdSpan) CanMergeWith(other IdSpan) bool {
	return s.Peer == other.Peer && s.Counter.End == other.Counter.Start
}

// Merge combines s with an immediately-following span. Panics if the two
// spans are not mergeable; callers should check CanMergeWith first.
func (s IdSpan) Merge(other IdSpan) IdSpan {
	if !s.CanMergeWith(other) {
		panic("id: Merge called on non-contiguous IdSpans")
	}
	return IdSpan{Peer: s.Peer, Counter: CounterSpan{Start: s.Counter.Start, End: other.Counter.End}}
}
