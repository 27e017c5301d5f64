package common

import (
	"errors"
	"fmt"
)

// --------------------------------------------------------------------------
// Error Kinds
// --------------------------------------------------------------------------

// ErrorKind classifies where in the exchange a failure happened.
type ErrorKind uint8

const (
	// KindValidation is a local check that failed before any I/O
	KindValidation ErrorKind = iota + 1
	// KindEncode means a request could not be encoded
	KindEncode
	// KindConnection covers dial, checkout, timeout and socket I/O failures
	KindConnection
	// KindProtocol means the peer broke the framing contract
	KindProtocol
	// KindDeserialization means a response payload could not be decoded
	KindDeserialization
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindEncode:
		return "encode"
	case KindConnection:
		return "connection"
	case KindProtocol:
		return "protocol"
	case KindDeserialization:
		return "deserialization"
	default:
		return "unknown"
	}
}

// --------------------------------------------------------------------------
// Error Type
// --------------------------------------------------------------------------

// Error is the error type returned by every layer of the client.
// errors.Is(err, ErrProtocol) etc. matches on the kind only.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

// NewError creates a new *Error
func NewError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s error: %s", e.Kind, e.Op)
	}
	return fmt.Sprintf("%s error: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind. An empty Op on the
// target matches any operation.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Op == "" || t.Op == e.Op)
}

// --------------------------------------------------------------------------
// Sentinels
// --------------------------------------------------------------------------

// kind sentinels, use with errors.Is
var (
	ErrValidation      = &Error{Kind: KindValidation}
	ErrEncode          = &Error{Kind: KindEncode}
	ErrConnection      = &Error{Kind: KindConnection}
	ErrProtocol        = &Error{Kind: KindProtocol}
	ErrDeserialization = &Error{Kind: KindDeserialization}
)

// causes, wrapped into an *Error of the matching kind
var (
	ErrTimeout       = errors.New("timeout")
	ErrPoolClosed    = errors.New("connection pool closed")
	ErrBatchConsumed = errors.New("pipeline already executed")
	ErrEmptyBatch    = errors.New("pipeline is empty")
)

// KindOf returns the kind of the first *Error in err's chain, 0 if there is none.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// IsRetryable reports whether err may be retried on a fresh connection.
// Only connection failures are retryable, everything else would fail again.
func IsRetryable(err error) bool {
	return KindOf(err) == KindConnection
}
