// Package id implements the identifier and version algebra that every
// other package in the engine builds on: peer ids, per-peer counters,
// lamport timestamps, ids, id spans, frontiers and version vectors.
package id

import "fmt"

// PeerID is the 64-bit site identifier of a replica.
type PeerID uint64

// Counter is a per-peer operation slot index. Counters within a peer are
// dense and start at 0.
type Counter int32

// Lamport is a logical clock scalar: lamport(op) = 1 + max(lamport(deps)).
type Lamport uint32

// ID names a single operation slot: the PeerID that minted it and the
// Counter within that peer's log.
type ID struct {
	Peer    PeerID
	Counter Counter
}

// NewID builds an ID.
func NewID(peer PeerID, counter Counter) ID {
	return ID{Peer: peer, Counter: counter}
}

// IsNull reports whether id is the zero-value sentinel used in place of an
// absent dependency (e.g. the first op of a peer's log has no local pred).
func (a ID) IsNull() bool { return a == NullID }

// NullID is the sentinel "no id" value, distinct from any real id because
// no real log ever mints Counter == -1.
var NullID = ID{Peer: 0, Counter: -1}

// Compare orders ids by peer first, then counter — the total order used to
// break lamport ties throughout the container algorithms.
func (a ID) Compare(b ID) int {
	if a.Peer != b.Peer {
		if a.Peer < b.Peer {
			return -1
		}
		return 1
	}
	if a.Counter != b.Counter {
		if a.Counter < b.Counter {
			return -1
		}
		return 1
	}
	return 0
}

// Less reports whether a sorts before b under Compare.
func (a ID) Less(b ID) bool { return a.Compare(b) < 0 }

func (a ID) String() string { return fmt.Sprintf("%d@%d", a.Counter, a.Peer) }

// Inc returns the id obtained by advancing the counter by delta.
func (a ID) Inc(delta int32) ID { return ID{Peer: a.Peer, Counter: a.Counter + Counter(delta)} }

// IdLp adds a Lamport timestamp to an ID. Compare orders by lamport, then
// peer, both ascending; Wins and WinsMove build the two rules used to
// resolve concurrent operations on top of it.
type IdLp struct {
	Lamport Lamport
	Peer    PeerID
}

// NewIdLp builds an IdLp.
func NewIdLp(lamport Lamport, peer PeerID) IdLp { return IdLp{Lamport: lamport, Peer: peer} }

// Compare orders by Lamport ascending, then Peer ascending. The two LWW
// tiebreaks built on it differ only in which peer wins a lamport tie:
// Wins (registers and marks) prefers the greater peer, WinsMove (list and
// tree moves) the smaller one.
func (a IdLp) Compare(b IdLp) int {
	if a.Lamport != b.Lamport {
		if a.Lamport < b.Lamport {
			return -1
		}
		return 1
	}
	if a.Peer != b.Peer {
		if a.Peer < b.Peer {
			return -1
		}
		return 1
	}
	return 0
}

// Wins reports whether a is the winner over b under the register LWW
// rule (map keys, text marks): the greatest (lamport, peer) pair wins.
func (a IdLp) Wins(b IdLp) bool { return a.Compare(b) > 0 }

// WinsMove reports whether a beats b under the move-resolution rule used
// by the movable list and tree (lamport desc, peer asc): greater lamport
// wins, and a lamport tie goes to the smaller peer id.
func (a IdLp) WinsMove(b IdLp) bool {
	if a.Lamport != b.Lamport {
		return a.Lamport > b.Lamport
	}
	return a.Peer < b.Peer
}
