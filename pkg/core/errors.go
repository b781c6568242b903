package core

import "errors"

// ErrorCode enumerates every failure class surfaced by the public API.
type ErrorCode uint32

const (
	// Ok means no error.
	Ok ErrorCode = iota
	// DimensionMismatch: a vector's length differs from the configured dimension.
	DimensionMismatch
	// VectorNotFound: the id is not present in the database.
	VectorNotFound
	// IndexNotBuilt: the index has no searchable structure yet.
	IndexNotBuilt
	// InvalidParameter: a caller-supplied value is rejected (duplicate id,
	// empty data path on save, bad clustering config, unknown index type).
	InvalidParameter
	// InvalidState: the operation conflicts with current index state, e.g.
	// inserting an id the graph already holds.
	InvalidState
	// OutOfMemory: an allocation limit was exceeded.
	OutOfMemory
	// IOError: a file could not be opened, read, or written.
	IOError
	// NotImplemented: the feature is reserved but not available.
	NotImplemented
	// Busy: maintenance aborted because of write-log pressure.
	Busy
)

// One sentinel error per code. Components wrap these with fmt.Errorf and
// %w so callers can match with errors.Is while keeping context.
var (
	ErrDimensionMismatch = errors.New("dimension mismatch")
	ErrVectorNotFound    = errors.New("vector not found")
	ErrIndexNotBuilt     = errors.New("index not built")
	ErrInvalidParameter  = errors.New("invalid parameter")
	ErrInvalidState      = errors.New("invalid state")
	ErrOutOfMemory       = errors.New("out of memory")
	ErrIOError           = errors.New("io error")
	ErrNotImplemented    = errors.New("not implemented")
	ErrBusy              = errors.New("busy")
)

// ErrorString returns the canonical description of a code.
func ErrorString(code ErrorCode) string {
	switch code {
	case Ok:
		return "ok"
	case DimensionMismatch:
		return "dimension mismatch"
	case VectorNotFound:
		return "vector not found"
	case IndexNotBuilt:
		return "index not built"
	case InvalidParameter:
		return "invalid parameter"
	case InvalidState:
		return "invalid state"
	case OutOfMemory:
		return "out of memory"
	case IOError:
		return "io error"
	case NotImplemented:
		return "not implemented"
	case Busy:
		return "busy"
	default:
		return "unknown error"
	}
}

// String implements fmt.Stringer.
func (c ErrorCode) String() string { return ErrorString(c) }

// CodeOf maps an error back to its ErrorCode. A nil error is Ok; an error
// that wraps none of the sentinels reports Unknown.
func CodeOf(err error) ErrorCode {
	switch {
	case err == nil:
		return Ok
	case errors.Is(err, ErrDimensionMismatch):
		return DimensionMismatch
	case errors.Is(err, ErrVectorNotFound):
		return VectorNotFound
	case errors.Is(err, ErrIndexNotBuilt):
		return IndexNotBuilt
	case errors.Is(err, ErrInvalidParameter):
		return InvalidParameter
	case errors.Is(err, ErrInvalidState):
		return InvalidState
	case errors.Is(err, ErrOutOfMemory):
		return OutOfMemory
	case errors.Is(err, ErrIOError):
		return IOError
	case errors.Is(err, ErrNotImplemented):
		return NotImplemented
	case errors.Is(err, ErrBusy):
		return Busy
	default:
		return Unknown
	}
}

// Unknown is reported by CodeOf for errors that wrap no sentinel.
const Unknown ErrorCode = ^ErrorCode(0)
