// Package errs defines the protocol-level error kinds the engine's
// external interfaces report: decode failures, bounds
// violations, and the handful of causality/consistency problems that are
// returned to the caller rather than silently absorbed.
package errs

import "fmt"

// Kind discriminates the error categories the Document API surface can
// return. Values are protocol-level, not Go-idiomatic sentinel errors;
// callers match a Kind with HasKind, or with errors.Is against an *Error
// of the same Kind (see Error.Is).
type Kind uint8

const (
	DecodeError Kind = iota
	OutOfBound
	UsedOpID
	UnmatchedContext
	CyclicMove
	TreeNodeNotExist
	HistoryCleared
	ContainerDeleted
	NotFound
)

func (k Kind) String() string {
	switch k {
	case DecodeError:
		return "DecodeError"
	case OutOfBound:
		return "OutOfBound"
	case UsedOpID:
		return "UsedOpID"
	case UnmatchedContext:
		return "UnmatchedContext"
	case CyclicMove:
		return "CyclicMove"
	case TreeNodeNotExist:
		return "TreeNodeNotExist"
	case HistoryCleared:
		return "HistoryCleared"
	case ContainerDeleted:
		return "ContainerDeleted"
	case NotFound:
		return "NotFound"
	default:
		return "Unknown"
	}
}

// Error wraps an error with the Kind the caller should switch on.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same Kind, so callers can
// write errors.Is(err, errs.New(errs.HistoryCleared, "")) or, more
// conveniently, use HasKind below.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New builds an *Error of the given kind.
func New(kind Kind, msg string) *Error { return &Error{Kind: kind, Msg: msg} }

// Wrap builds an *Error of the given kind, wrapping an underlying cause.
func Wrap(kind Kind, msg string, err error) *Error { return &Error{Kind: kind, Msg: msg, Err: err} }

// HasKind reports whether err (or anything it wraps) is an *Error of kind.
func HasKind(err error, kind Kind) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e.Kind == kind
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
