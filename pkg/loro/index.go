package loro

import (
	"fmt"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/loro-dev/loro-go/internal/errs"
)

// PosUnit names the index space a text position is expressed in. The
// engine's native space is unicode scalar values; event indexes are the
// same space (events report rune offsets), and UTF-8/UTF-16 units are
// what byte-oriented and JavaScript-facing callers hold.
type PosUnit uint8

const (
	UnitUnicode PosUnit = iota
	UnitUTF16
	UnitUTF8
	UnitEvent
)

func (u PosUnit) String() string {
	switch u {
	case UnitUnicode:
		return "unicode"
	case UnitUTF16:
		return "utf16"
	case UnitUTF8:
		return "utf8"
	case UnitEvent:
		return "event"
	default:
		return "unknown"
	}
}

// LenIn returns the text's current length in the given unit.
func (h *Text) LenIn(unit PosUnit) int {
	s := h.String()
	switch unit {
	case UnitUTF8:
		return len(s)
	case UnitUTF16:
		n := 0
		for _, r := range s {
			n += utf16.RuneLen(r)
		}
		return n
	default:
		return runeLen(s)
	}
}

// ConvertPos translates a position between index units, scanning the
// current text once. Positions must land on a scalar-value boundary in
// the source unit; a position inside a surrogate pair or multi-byte rune
// is an OutOfBound error, as is anything past the end of the text.
func (h *Text) ConvertPos(pos int, from, to PosUnit) (int, error) {
	if from == to || (from == UnitUnicode && to == UnitEvent) || (from == UnitEvent && to == UnitUnicode) {
		if pos < 0 || pos > h.LenIn(from) {
			return 0, errs.New(errs.OutOfBound, fmt.Sprintf("position %d outside the text in %s units", pos, from))
		}
		return pos, nil
	}
	if pos < 0 {
		return 0, errs.New(errs.OutOfBound, fmt.Sprintf("negative position %d", pos))
	}

	s := h.String()
	uni, u16, u8 := 0, 0, 0
	at := func(unit PosUnit) int {
		switch unit {
		case UnitUTF16:
			return u16
		case UnitUTF8:
			return u8
		default:
			return uni
		}
	}
	for _, r := range s {
		if at(from) == pos {
			return at(to), nil
		}
		if at(from) > pos {
			return 0, errs.New(errs.OutOfBound, fmt.Sprintf("position %d splits a scalar value in %s units", pos, from))
		}
		uni++
		u16 += utf16.RuneLen(r)
		u8 += utf8.RuneLen(r)
	}
	if at(from) == pos {
		return at(to), nil
	}
	return 0, errs.New(errs.OutOfBound, fmt.Sprintf("position %d outside the text in %s units", pos, from))
}
