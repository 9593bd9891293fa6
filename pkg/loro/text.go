package loro

import (
	"fmt"

	"github.com/loro-dev/loro-go/internal/change"
	"github.com/loro-dev/loro-go/internal/containers/text"
	"github.com/loro-dev/loro-go/internal/id"
)

// Text is a handle onto a rich-text container: a Fugue-ordered run of
// runes plus independent style spans. Every method is its own
// transaction unless called inside a Document.Begin/Commit pair.
type Text struct{ handle }

// Len returns the text's current length in runes.
func (h *Text) Len() int { return runeLen(h.String()) }

// String returns the text's current materialized content.
func (h *Text) String() string {
	return h.textState().Value().Str
}

// Insert inserts s at rune position pos (0 <= pos <= Len()).
func (h *Text) Insert(pos int, s string) error {
	if s == "" {
		return nil
	}
	if pos < 0 || pos > runeLen(h.String()) {
		return fmt.Errorf("loro: text insert position %d out of bounds", pos)
	}
	return h.doc.withTxn("text.insert", func(t *Txn) {
		ts := h.textState()
		ol, or := ts.NeighborsForVisiblePos(pos)
		content := change.OpContent{Kind: change.OpTextInsert, Pos: pos, Text: s, OriginLeft: ol, OriginRight: or}
		t.appendOp(h.cid, h.idx, content)
	})
}

// Delete removes the n runes starting at pos.
func (h *Text) Delete(pos, n int) error {
	if n <= 0 {
		return nil
	}
	return h.doc.withTxn("text.delete", func(t *Txn) {
		ts := h.textState()
		target, ok := ts.IDAtVisiblePos(pos)
		if !ok {
			return
		}
		content := change.OpContent{Kind: change.OpTextDelete, Pos: pos, DeleteLen: n, DeleteTarget: target}
		t.appendOp(h.cid, h.idx, content)
	})
}

// Mark applies a style span over the half-open rune range [start, end)
// under key, resolved against any other span on the same key by
// last-writer-wins unless allowOverlap accumulates every covering value
// instead.
func (h *Text) Mark(start, end int, key string, value change.Value, expand change.ExpandPolicy, allowOverlap bool) error {
	return h.doc.withTxn("text.mark", func(t *Txn) {
		ts := h.textState()
		startID := id.NullID
		if start > 0 {
			if sid, ok := ts.IDAtVisiblePos(start); ok {
				startID = sid
			}
		}
		endID := id.NullID
		if end > start {
			if eid, ok := ts.IDAtVisiblePos(end - 1); ok {
				endID = eid
			}
		}
		content := change.OpContent{
			Kind: change.OpTextMark, MarkStart: start, MarkEnd: end, MarkStartID: startID, MarkEndID: endID,
			MarkKey: key, MarkValue: value, ExpandPolicy: expand, AllowOverlap: allowOverlap,
		}
		t.appendOp(h.cid, h.idx, content)
	})
}

// Unmark clears key over [start, end) by writing a MarkEnd op, the same
// tombstone-span idea Mark itself uses for an explicit removal.
func (h *Text) Unmark(start, end int, key string) error {
	return h.doc.withTxn("text.unmark", func(t *Txn) {
		ts := h.textState()
		startID := id.NullID
		if start > 0 {
			if sid, ok := ts.IDAtVisiblePos(start); ok {
				startID = sid
			}
		}
		endID := id.NullID
		if end > start {
			if eid, ok := ts.IDAtVisiblePos(end - 1); ok {
				endID = eid
			}
		}
		content := change.OpContent{Kind: change.OpTextMarkEnd, MarkStart: start, MarkEnd: end, MarkStartID: startID, MarkEndID: endID, MarkKey: key}
		t.appendOp(h.cid, h.idx, content)
	})
}

// Delta returns the text as Quill-style runs of (insert, attributes).
func (h *Text) Delta() []text.DeltaRun { return h.textState().Delta() }

func runeLen(s string) int {
	n := 0
	for range s {
		n++
	}
	return n
}
