// Package text implements the rich-text container: a Fugue-flavoured RGA
// of runes (ordering delegated to internal/containers/rga, which already
// integrates concurrent inserts by left/right origin so two replicas
// typing at the same position never interleave each other's output) plus
// an independent set of style spans anchored to specific character ids.
// Overlapping spans on the same key resolve last-writer-wins by
// (lamport, peer), except keys marked AllowOverlap (e.g. comment
// threads), which accumulate every covering span's value into a list
// instead of picking one.
package text

import (
	"encoding/binary"
	"encoding/json"
	"sort"

	"github.com/loro-dev/loro-go/internal/change"
	"github.com/loro-dev/loro-go/internal/containers/ifc"
	"github.com/loro-dev/loro-go/internal/containers/rga"
	"github.com/loro-dev/loro-go/internal/id"
)

type styleSpan struct {
	key          string
	value        change.Value
	startID      id.ID // id.NullID means "from the start of the text"
	endID        id.ID // id.NullID means "to the end of the text"
	expand       change.ExpandPolicy
	allowOverlap bool
	winner       id.IdLp
}

// State is the materialized rich text.
type State struct {
	seq      *rga.Sequence[rune]
	spans    []*styleSpan
	markSeen map[id.ID]struct{}
}

// New returns an empty text container.
func New(seed int64) *State {
	return &State{seq: rga.NewSequence[rune](seed), markSeen: make(map[id.ID]struct{})}
}

var _ ifc.ContainerState = (*State)(nil)

func (s *State) Kind() change.ContainerKind { return change.KindText }

// NeighborsForVisiblePos exposes the anchor lookup used when authoring an
// Insert op at a rune position.
func (s *State) NeighborsForVisiblePos(p int) (id.ID, id.ID) {
	return s.seq.NeighborsForVisiblePos(p)
}

// IDAtVisiblePos returns the character id currently occupying visible
// rune-position p, used to author a Delete op or anchor a Cursor against
// it.
func (s *State) IDAtVisiblePos(p int) (id.ID, bool) {
	var out id.ID
	found := false
	s.seq.Each(func(pos int, it rgaItem) {
		if pos == p {
			out, found = it.ID, true
		}
	})
	return out, found
}

// NearestAliveVisiblePos rebases target — possibly a tombstoned character
// id — to the visible position a Cursor anchored on it should resolve to.
func (s *State) NearestAliveVisiblePos(target id.ID) (int, bool) {
	return s.seq.NearestAliveVisiblePos(target)
}

// PosOf resolves a cursor anchor: the visible position of target if it is
// still alive, or the rebased position of the nearest live character after
// it if it has been tombstoned. known is false if target was never
// integrated into this text at all.
func (s *State) PosOf(target id.ID) (pos int, alive bool, known bool) {
	it, ok := s.seq.ItemByID(target)
	if !ok {
		return 0, false, false
	}
	if it.Deleted {
		p, _ := s.seq.NearestAliveVisiblePos(target)
		return p, false, true
	}
	return s.seq.VisiblePosOf(target), true, true
}

func (s *State) Apply(lamport id.Lamport, peer id.PeerID, op change.Op) ifc.Diff {
	switch op.Content.Kind {
	case change.OpTextInsert:
		firstID := id.NewID(peer, op.Counter)
		if s.seq.Has(firstID) {
			return ifc.Diff{}
		}
		runes := []rune(op.Content.Text)
		originLeft := op.Content.OriginLeft
		for i, r := range runes {
			rid := id.NewID(peer, op.Counter+id.Counter(i))
			s.seq.Integrate(rid, lamport, originLeft, op.Content.OriginRight, r)
			originLeft = rid
		}
		pos := s.seq.VisiblePosOf(firstID)
		return ifc.Diff{Kind: ifc.DiffText, TextInsertPos: pos, TextInsertStr: op.Content.Text}

	case change.OpTextDelete:
		pos := s.seq.VisiblePosOf(op.Content.DeleteTarget)
		removed := s.seq.MarkDeletedFromID(op.Content.DeleteTarget, op.Content.DeleteLen)
		if removed == 0 {
			return ifc.Diff{}
		}
		return ifc.Diff{Kind: ifc.DiffText, TextDeletePos: pos, TextDeleteLen: removed}

	case change.OpTextMark, change.OpTextMarkEnd:
		markID := id.NewID(peer, op.Counter)
		if _, dup := s.markSeen[markID]; dup {
			return ifc.Diff{}
		}
		s.markSeen[markID] = struct{}{}

		value := op.Content.MarkValue
		if op.Content.Kind == change.OpTextMarkEnd {
			value = change.NullValue()
		}
		span := &styleSpan{
			key: op.Content.MarkKey, value: value,
			startID: op.Content.MarkStartID, endID: op.Content.MarkEndID,
			expand: op.Content.ExpandPolicy, allowOverlap: op.Content.AllowOverlap,
			winner: id.NewIdLp(lamport, peer),
		}
		// Spans are kept sorted by (lamport, peer) so that overlapping
		// allow-overlap values accumulate in the same order on every
		// replica regardless of delivery order.
		at := sort.Search(len(s.spans), func(i int) bool {
			return span.winner.Compare(s.spans[i].winner) < 0
		})
		s.spans = append(s.spans, nil)
		copy(s.spans[at+1:], s.spans[at:])
		s.spans[at] = span
		return ifc.Diff{
			Kind: ifc.DiffText, MarkStart: op.Content.MarkStart, MarkEnd: op.Content.MarkEnd,
			MarkKey: op.Content.MarkKey, MarkValue: value,
		}

	default:
		return ifc.Diff{}
	}
}

// Delta returns the text as a sequence of runs, each a maximal stretch of
// characters sharing identical resolved attributes — the Quill-style
// delta representation used to surface rich text to callers.
type DeltaRun struct {
	Insert     string
	Attributes map[string]change.Value
}

func (s *State) Delta() []DeltaRun {
	var runs []DeltaRun
	var curAttrs map[string]change.Value
	var curText []rune

	flush := func() {
		if len(curText) == 0 {
			return
		}
		runs = append(runs, DeltaRun{Insert: string(curText), Attributes: curAttrs})
		curText = nil
		curAttrs = nil
	}

	s.seq.Each(func(_ int, it rgaItem) {
		treeIdx := s.seq.IndexOf(it.ID)
		attrs := s.resolveAttrs(treeIdx)
		if !attrsEqual(attrs, curAttrs) {
			flush()
			curAttrs = attrs
		}
		curText = append(curText, it.Value)
	})
	flush()
	return runs
}

type rgaItem = rga.Item[rune]

func (s *State) resolveAttrs(treeIdx int) map[string]change.Value {
	if len(s.spans) == 0 {
		return nil
	}
	winners := make(map[string]id.IdLp)
	var out map[string]change.Value
	for _, sp := range s.spans {
		startIdx := -1
		if !sp.startID.IsNull() {
			startIdx = s.seq.IndexOf(sp.startID)
		}
		endIdx := s.seq.IndexOf(sp.endID)
		if sp.endID.IsNull() {
			endIdx = 1<<31 - 1
		}
		covered := treeIdx >= startIdx && treeIdx <= endIdx
		if !covered && treeIdx > endIdx &&
			(sp.expand == change.ExpandAfter || sp.expand == change.ExpandBoth) {
			// Characters appended at the end boundary after the mark was
			// authored fall inside an after-expanding span.
			covered = s.allNewerBetween(endIdx, treeIdx, sp.winner.Lamport)
		}
		if !covered && treeIdx < startIdx &&
			(sp.expand == change.ExpandBefore || sp.expand == change.ExpandBoth) {
			covered = s.allNewerBetween(treeIdx-1, startIdx-1, sp.winner.Lamport)
		}
		if !covered {
			continue
		}
		if out == nil {
			out = make(map[string]change.Value)
		}
		if sp.allowOverlap {
			existing := out[sp.key]
			lst := existing.List
			lst = append(lst, sp.value)
			out[sp.key] = change.ListValue(lst)
			continue
		}
		if w, ok := winners[sp.key]; !ok || sp.winner.Wins(w) {
			winners[sp.key] = sp.winner
			out[sp.key] = sp.value
		}
	}
	return out
}

// allNewerBetween reports whether every character with tree index in
// (lo, hi] was inserted at or after lamport lam — i.e. whether the run
// between a span boundary and a candidate character consists purely of
// post-mark insertions, which is what lets an expanding span grow over
// them.
func (s *State) allNewerBetween(lo, hi int, lam id.Lamport) bool {
	ok := true
	idx := 0
	s.seq.EachAll(func(it rgaItem) {
		if idx > lo && idx <= hi && it.Lamport < lam {
			ok = false
		}
		idx++
	})
	return ok
}

func attrsEqual(a, b map[string]change.Value) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		ov, ok := b[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}

func (s *State) Value() change.Value {
	var sb []rune
	s.seq.Each(func(_ int, it rgaItem) { sb = append(sb, it.Value) })
	return change.StringValue(string(sb))
}

func (s *State) ChildContainers() []change.ContainerID { return nil }

func (s *State) Fork() ifc.ContainerState {
	out := New(1)
	var items []rga.Item[rune]
	s.seq.EachAll(func(it rgaItem) { items = append(items, it) })
	out.seq.Rebuild(1, items)
	for _, sp := range s.spans {
		cp := *sp
		out.spans = append(out.spans, &cp)
	}
	for k := range s.markSeen {
		out.markSeen[k] = struct{}{}
	}
	return out
}

type wireChar struct {
	Peer        id.PeerID  `json:"p"`
	Counter     id.Counter `json:"c"`
	Lamport     id.Lamport `json:"l"`
	OriginLeft  id.ID      `json:"ol"`
	OriginRight id.ID      `json:"or"`
	Deleted     bool       `json:"d"`
	Rune        rune       `json:"r"`
}

type wireSpan struct {
	Key          string     `json:"k"`
	Value        []byte     `json:"v"`
	StartID      id.ID      `json:"s"`
	EndID        id.ID      `json:"e"`
	Expand       uint8      `json:"x"`
	AllowOverlap bool       `json:"ao"`
	WinLamport   id.Lamport `json:"wl"`
	WinPeer      id.PeerID  `json:"wp"`
}

type wireText struct {
	Chars []wireChar `json:"chars"`
	Spans []wireSpan `json:"spans"`
}

func (s *State) EncodeSnapshot() []byte {
	var w wireText
	s.seq.EachAll(func(it rgaItem) {
		w.Chars = append(w.Chars, wireChar{
			Peer: it.ID.Peer, Counter: it.ID.Counter, Lamport: it.Lamport,
			OriginLeft: it.OriginLeft, OriginRight: it.OriginRight, Deleted: it.Deleted, Rune: it.Value,
		})
	})
	for _, sp := range s.spans {
		vb, _ := change.MarshalValueJSON(sp.value)
		w.Spans = append(w.Spans, wireSpan{
			Key: sp.key, Value: vb, StartID: sp.startID, EndID: sp.endID,
			Expand: uint8(sp.expand), AllowOverlap: sp.allowOverlap,
			WinLamport: sp.winner.Lamport, WinPeer: sp.winner.Peer,
		})
	}
	b, _ := json.Marshal(w)
	header := make([]byte, 4)
	binary.LittleEndian.PutUint32(header, uint32(len(b)))
	return append(header, b...)
}

func (s *State) DecodeSnapshot(b []byte) error {
	s.seq = rga.NewSequence[rune](1)
	s.spans = nil
	s.markSeen = make(map[id.ID]struct{})
	if len(b) < 4 {
		return nil
	}
	n := binary.LittleEndian.Uint32(b[:4])
	var w wireText
	if n > 0 {
		if err := json.Unmarshal(b[4:4+n], &w); err != nil {
			return err
		}
	}
	items := make([]rga.Item[rune], 0, len(w.Chars))
	for _, c := range w.Chars {
		items = append(items, rga.Item[rune]{
			ID: id.NewID(c.Peer, c.Counter), Lamport: c.Lamport,
			OriginLeft: c.OriginLeft, OriginRight: c.OriginRight, Deleted: c.Deleted, Value: c.Rune,
		})
	}
	s.seq.Rebuild(1, items)
	for _, sp := range w.Spans {
		v, err := change.UnmarshalValueJSON(sp.Value)
		if err != nil {
			return err
		}
		s.spans = append(s.spans, &styleSpan{
			key: sp.Key, value: v, startID: sp.StartID, endID: sp.EndID,
			expand: change.ExpandPolicy(sp.Expand), allowOverlap: sp.AllowOverlap,
			winner: id.NewIdLp(sp.WinLamport, sp.WinPeer),
		})
	}
	return nil
}
