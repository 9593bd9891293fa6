package loro

import (
	"encoding/binary"
	"fmt"

	"github.com/loro-dev/loro-go/internal/change"
	"github.com/loro-dev/loro-go/internal/containers/list"
	"github.com/loro-dev/loro-go/internal/containers/movablelist"
	"github.com/loro-dev/loro-go/internal/containers/text"
	"github.com/loro-dev/loro-go/internal/errs"
	"github.com/loro-dev/loro-go/internal/id"
)

// Side biases a cursor toward one side of the character/element it
// anchors on, so that inserts landing exactly at the cursor resolve
// predictably.
type Side int8

const (
	SideLeft   Side = -1
	SideMiddle Side = 0
	SideRight  Side = 1
)

// Cursor is a stable position in a sequence container: instead of a
// fragile integer index it pins the id of the character/element at the
// position, surviving concurrent edits that shift indexes around. A
// cursor with HasID false anchors to the end of the sequence.
type Cursor struct {
	Container change.ContainerID
	ID        id.ID
	HasID     bool
	Side      Side

	// OriginPos is the visible index at creation time, kept as a hint for
	// debugging and for containers that have lost the anchor entirely.
	OriginPos int
}

// CursorQueryResult is the current resolution of a cursor: its visible
// index now, and — when the anchored id has been deleted — a rebased
// replacement cursor the caller should store instead.
type CursorQueryResult struct {
	Pos    int
	Side   Side
	Update *Cursor
}

// Encode serializes the cursor to compact bytes: a flag byte, the
// container identity, the optional anchor id, the side and the origin
// position, all varint-packed.
func (c *Cursor) Encode() []byte {
	out := make([]byte, 0, 32)
	var flags byte
	if c.HasID {
		flags |= 1
	}
	if c.Container.IsRoot {
		flags |= 2
	}
	out = append(out, flags, byte(c.Container.Kind), byte(c.Side+1))
	if c.Container.IsRoot {
		out = binary.AppendUvarint(out, uint64(len(c.Container.Name)))
		out = append(out, c.Container.Name...)
	} else {
		out = binary.AppendUvarint(out, uint64(c.Container.Peer))
		out = binary.AppendUvarint(out, uint64(c.Container.Counter))
	}
	if c.HasID {
		out = binary.AppendUvarint(out, uint64(c.ID.Peer))
		out = binary.AppendUvarint(out, uint64(c.ID.Counter))
	}
	out = binary.AppendUvarint(out, uint64(c.OriginPos))
	return out
}

// DecodeCursor parses bytes produced by Cursor.Encode.
func DecodeCursor(b []byte) (*Cursor, error) {
	if len(b) < 3 {
		return nil, errs.New(errs.DecodeError, "cursor bytes too short")
	}
	flags, kind, side := b[0], b[1], b[2]
	if side > 2 {
		return nil, errs.New(errs.DecodeError, "cursor side out of range")
	}
	c := &Cursor{Side: Side(int8(side) - 1)}
	rest := b[3:]

	readUvarint := func() (uint64, error) {
		v, n := binary.Uvarint(rest)
		if n <= 0 {
			return 0, errs.New(errs.DecodeError, "cursor varint truncated")
		}
		rest = rest[n:]
		return v, nil
	}

	if flags&2 != 0 {
		n, err := readUvarint()
		if err != nil {
			return nil, err
		}
		if uint64(len(rest)) < n {
			return nil, errs.New(errs.DecodeError, "cursor name truncated")
		}
		c.Container = change.RootContainerID(string(rest[:n]), change.ContainerKind(kind))
		rest = rest[n:]
	} else {
		peer, err := readUvarint()
		if err != nil {
			return nil, err
		}
		counter, err := readUvarint()
		if err != nil {
			return nil, err
		}
		c.Container = change.NormalContainerID(id.PeerID(peer), id.Counter(counter), change.ContainerKind(kind))
	}
	if flags&1 != 0 {
		peer, err := readUvarint()
		if err != nil {
			return nil, err
		}
		counter, err := readUvarint()
		if err != nil {
			return nil, err
		}
		c.ID = id.NewID(id.PeerID(peer), id.Counter(counter))
		c.HasID = true
	}
	pos, err := readUvarint()
	if err != nil {
		return nil, err
	}
	c.OriginPos = int(pos)
	return c, nil
}

// GetCursor anchors a cursor at visible rune position pos. pos == Len()
// anchors to the end of the text.
func (h *Text) GetCursor(pos int, side Side) (*Cursor, error) {
	n := h.Len()
	if pos < 0 || pos > n {
		return nil, errs.New(errs.OutOfBound, fmt.Sprintf("cursor position %d outside [0, %d]", pos, n))
	}
	c := &Cursor{Container: h.cid, Side: side, OriginPos: pos}
	if pos < n {
		if anchor, ok := h.textState().IDAtVisiblePos(pos); ok {
			c.ID, c.HasID = anchor, true
		}
	}
	return c, nil
}

// GetCursor anchors a cursor at visible position pos; pos == Len()
// anchors to the end of the list.
func (h *List) GetCursor(pos int, side Side) (*Cursor, error) {
	n := h.Len()
	if pos < 0 || pos > n {
		return nil, errs.New(errs.OutOfBound, fmt.Sprintf("cursor position %d outside [0, %d]", pos, n))
	}
	c := &Cursor{Container: h.cid, Side: side, OriginPos: pos}
	if pos < n {
		if anchor, ok := h.listState().IDAtVisiblePos(pos); ok {
			c.ID, c.HasID = anchor, true
		}
	}
	return c, nil
}

// GetCursor anchors a cursor on the stable element id at visible position
// pos, so the cursor follows the element even across Moves.
func (h *MovableList) GetCursor(pos int, side Side) (*Cursor, error) {
	n := h.Len()
	if pos < 0 || pos > n {
		return nil, errs.New(errs.OutOfBound, fmt.Sprintf("cursor position %d outside [0, %d]", pos, n))
	}
	c := &Cursor{Container: h.cid, Side: side, OriginPos: pos}
	if pos < n {
		if elem, ok := h.movableListState().ElemIDAtVisiblePos(pos); ok {
			c.ID, c.HasID = elem, true
		}
	}
	return c, nil
}

// QueryCursor resolves a cursor against the document's current state:
// the anchored character/element's visible index now, or — when the
// anchor has been deleted — the rebased index plus a replacement cursor
// anchored there.
func (d *Document) QueryCursor(c *Cursor) (CursorQueryResult, error) {
	idx, ok := d.log.Registry().Lookup(c.Container)
	if !ok {
		return CursorQueryResult{}, errs.New(errs.NotFound, "cursor container unknown to this document")
	}
	st, ok := d.docState.Container(idx)
	if !ok {
		return CursorQueryResult{}, errs.New(errs.NotFound, "cursor container has no materialized state")
	}

	var seqLen int
	switch s := st.(type) {
	case *text.State:
		seqLen = textLen(s)
	case *list.State:
		seqLen = s.Len()
	case *movablelist.State:
		seqLen = s.Len()
	default:
		return CursorQueryResult{}, errs.New(errs.UnmatchedContext, "cursor container kind has no positional index")
	}
	if !c.HasID {
		return CursorQueryResult{Pos: seqLen, Side: c.Side}, nil
	}

	var pos int
	var alive, known bool
	switch s := st.(type) {
	case *text.State:
		pos, alive, known = s.PosOf(c.ID)
	case *list.State:
		pos, alive, known = s.PosOf(c.ID)
	case *movablelist.State:
		var deleted bool
		pos, deleted, known = s.CurrentPosForElem(c.ID)
		alive = !deleted
	}
	if !known {
		return CursorQueryResult{}, errs.New(errs.NotFound, "cursor anchor was never part of this sequence")
	}
	if alive {
		return CursorQueryResult{Pos: pos, Side: c.Side}, nil
	}
	update := d.rebasedCursor(c, st, pos, seqLen)
	return CursorQueryResult{Pos: pos, Side: c.Side, Update: update}, nil
}

// rebasedCursor re-anchors a cursor whose character was deleted onto
// whatever now occupies the rebased position (or the end of the
// sequence).
func (d *Document) rebasedCursor(c *Cursor, st interface{}, pos, seqLen int) *Cursor {
	update := &Cursor{Container: c.Container, Side: c.Side, OriginPos: pos}
	if pos >= seqLen {
		return update
	}
	switch s := st.(type) {
	case *text.State:
		if anchor, ok := s.IDAtVisiblePos(pos); ok {
			update.ID, update.HasID = anchor, true
		}
	case *list.State:
		if anchor, ok := s.IDAtVisiblePos(pos); ok {
			update.ID, update.HasID = anchor, true
		}
	case *movablelist.State:
		if elem, ok := s.ElemIDAtVisiblePos(pos); ok {
			update.ID, update.HasID = elem, true
		}
	}
	return update
}

func textLen(s *text.State) int {
	n := 0
	for range s.Value().Str {
		n++
	}
	return n
}
