package remotefs

import (
	"errors"
	"fmt"
)

// ErrKind is the machine-checkable classification carried by every
// provider failure. The engine decides cleanup policy from the kind
// without inspecting provider internals.
type ErrKind int

const (
	// KindIo - generic I/O failure talking to the backend
	KindIo ErrKind = iota
	// KindConnection - connection could not be established or was lost
	KindConnection
	// KindNotConnected - operation attempted before Connect
	KindNotConnected
	// KindAlreadyExists - directory creation hit an existing path
	KindAlreadyExists
	// KindNoSuchFile - path does not exist on the remote
	KindNoSuchFile
	// KindPermissionDenied - backend rejected the operation
	KindPermissionDenied
	// KindProtocol - backend answered with something unusable
	KindProtocol
	// KindUnsupported - operation not supported by this backend
	KindUnsupported
)

func (k ErrKind) String() string {
	switch k {
	case KindIo:
		return "I/O error"
	case KindConnection:
		return "connection error"
	case KindNotConnected:
		return "not connected"
	case KindAlreadyExists:
		return "directory already exists"
	case KindNoSuchFile:
		return "no such file or directory"
	case KindPermissionDenied:
		return "permission denied"
	case KindProtocol:
		return "protocol error"
	case KindUnsupported:
		return "unsupported operation"
	default:
		return "unknown error"
	}
}

// Error is the failure type returned by every Provider operation.
type Error struct {
	Kind ErrKind
	Msg  string
	Err  error // wrapped cause, may be nil
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	case e.Msg != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError builds a provider error with a wrapped cause.
func NewError(kind ErrKind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// NewErrorMsg builds a provider error with a message only.
func NewErrorMsg(kind ErrKind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Errorf builds a provider error with a formatted message.
func Errorf(kind ErrKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// KindOf extracts the kind from any error chain. Non-provider errors
// report KindIo.
func KindOf(err error) ErrKind {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Kind
	}
	return KindIo
}

// IsAlreadyExists reports whether the error is a directory-exists
// condition, which directory creation treats as success.
func IsAlreadyExists(err error) bool {
	var perr *Error
	return errors.As(err, &perr) && perr.Kind == KindAlreadyExists
}

// IsNotFound reports whether the error is a missing path condition.
func IsNotFound(err error) bool {
	var perr *Error
	return errors.As(err, &perr) && perr.Kind == KindNoSuchFile
}
