// Package pgerr defines the closed error taxonomy shared across the
// session, pool, and decoder packages, plus the small set of byte-hashing
// helpers the wire protocol needs (MD5 password derivation, statement name
// hashing).
package pgerr

import "fmt"

// Kind identifies one of the fixed set of error conditions this client can
// raise. Callers should switch on Kind rather than match error strings.
type Kind int

const (
	// Io wraps an underlying read/write failure. Not recoverable on the
	// same session.
	Io Kind = iota
	// ConnectionClosed means a read returned zero bytes.
	ConnectionClosed
	// QueryError means the server sent ErrorResponse during the extended
	// query sub-protocol. The wire is re-synced at ReadyForQuery, but the
	// session is marked unhealthy for pool replacement.
	QueryError
	// BindError means the Bind message could not be constructed locally.
	BindError
	// ParamTypeMismatch means the cached parameter OIDs for a statement
	// name differ from the OIDs of the current call.
	ParamTypeMismatch
	// TooFewField means a DataRow carried fewer fields than the active
	// column builders.
	TooFewField
	// TooManyField means a DataRow carried more fields than the active
	// column builders.
	TooManyField
	// OnlyOneDimensionArraySupported means a text[] payload had ndim other
	// than 0 or 1.
	OnlyOneDimensionArraySupported
	// NotEnoughBytes means an array payload was too short for its ndim
	// field or header, or was truncated before or inside an element.
	NotEnoughBytes
	// PingFailed means the server returned ErrorResponse during the simple
	// query used by Ping.
	PingFailed
	// PoolError means pool construction or acquisition failed (timeout,
	// dial failure, or the pool is closed).
	PoolError
	// Unsupported means the server demanded an authentication method this
	// client does not implement (SASL/SCRAM).
	Unsupported
)

func (k Kind) String() string {
	switch k {
	case Io:
		return "io"
	case ConnectionClosed:
		return "connection_closed"
	case QueryError:
		return "query_error"
	case BindError:
		return "bind_error"
	case ParamTypeMismatch:
		return "param_type_mismatch"
	case TooFewField:
		return "too_few_field"
	case TooManyField:
		return "too_many_field"
	case OnlyOneDimensionArraySupported:
		return "only_one_dimension_array_supported"
	case NotEnoughBytes:
		return "not_enough_bytes"
	case PingFailed:
		return "ping_failed"
	case PoolError:
		return "pool_error"
	case Unsupported:
		return "unsupported"
	default:
		return "unknown"
	}
}

// Error is the concrete error type returned by every package in this
// module. It carries a Kind for programmatic dispatch and wraps an
// optional cause for %w-style unwrapping.
type Error struct {
	kind    Kind
	message string
	cause   error
}

// New builds an Error with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{kind: kind, message: message}
}

// Wrap builds an Error that wraps cause, following the chain with %w.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{kind: kind, message: message, cause: cause}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.kind, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.kind, e.message)
}

// Unwrap exposes the wrapped cause to errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.cause
}

// Kind returns the error's Kind.
func (e *Error) Kind() Kind {
	return e.kind
}

// Is reports whether target is an *Error of the same Kind, so callers can
// write errors.Is(err, pgerr.New(pgerr.QueryError, "")).
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.kind == other.kind
}

// KindOf extracts the Kind from err if it (or something in its chain) is a
// *Error, and reports whether one was found.
func KindOf(err error) (Kind, bool) {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e.kind, true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = unwrapper.Unwrap()
	}
	return 0, false
}

// TooFewFieldError builds the TooFewField error with its (got, expected) pair.
func TooFewFieldError(got, expected int) *Error {
	return New(TooFewField, fmt.Sprintf("row has %d fields, expected %d", got, expected))
}

// TooManyFieldError builds the TooManyField error with its expected count.
func TooManyFieldError(expected int) *Error {
	return New(TooManyField, fmt.Sprintf("row has more fields than expected (%d)", expected))
}
