package storage

import (
	"errors"
	"fmt"
)

// Kind identifies the category of a storage error. The core never
// returns a bare string error; every fallible operation that can fail
// returns either a value or an *Error carrying one of these kinds, so
// callers can switch on Kind without parsing messages.
type Kind int

const (
	KindFileOpenFailed Kind = iota
	KindIoError
	KindShortWrite
	KindOutOfMemory
	KindCacheFull
	KindPageNotFound
	KindInvalidPageNum
	KindInvalidPageHeader
	KindInvalidCellPointer
	KindInvalidBounds
	KindCellDeserializeFailed
	KindSerializationFailed
	KindPageFull
	KindDuplicateRowid
	KindCellNotFound
)

func (k Kind) String() string {
	switch k {
	case KindFileOpenFailed:
		return "FileOpenFailed"
	case KindIoError:
		return "IoError"
	case KindShortWrite:
		return "ShortWrite"
	case KindOutOfMemory:
		return "OutOfMemory"
	case KindCacheFull:
		return "CacheFull"
	case KindPageNotFound:
		return "PageNotFound"
	case KindInvalidPageNum:
		return "InvalidPageNum"
	case KindInvalidPageHeader:
		return "InvalidPageHeader"
	case KindInvalidCellPointer:
		return "InvalidCellPointer"
	case KindInvalidBounds:
		return "InvalidBounds"
	case KindCellDeserializeFailed:
		return "CellDeserializeFailed"
	case KindSerializationFailed:
		return "SerializationFailed"
	case KindPageFull:
		return "PageFull"
	case KindDuplicateRowid:
		return "DuplicateRowid"
	case KindCellNotFound:
		return "CellNotFound"
	default:
		return "Unknown"
	}
}

// Error is the concrete error type returned by internal/storage and
// internal/schema. Op names the failing operation (e.g. "get_page",
// "insert"); Page is the offending page number, or 0 if not
// page-specific; Err is the wrapped cause, if any.
type Error struct {
	Kind Kind
	Op   string
	Page int
	Err  error
}

func (e *Error) Error() string {
	if e.Page != 0 {
		if e.Err != nil {
			return fmt.Sprintf("%s: page %d: %s: %v", e.Op, e.Page, e.Kind, e.Err)
		}
		return fmt.Sprintf("%s: page %d: %s", e.Op, e.Page, e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newErr(op string, kind Kind, page int, cause error) *Error {
	return &Error{Kind: kind, Op: op, Page: page, Err: cause}
}

// Is reports whether err is a storage *Error of the given kind.
func Is(err error, kind Kind) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind == kind
	}
	return false
}
