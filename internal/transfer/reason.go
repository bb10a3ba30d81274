package transfer

import (
	"errors"
	"fmt"
)

// Reason classifies why a file transfer failed. The classification
// drives the cleanup policy: aborts and write-side I/O errors leave a
// partial destination file that must be removed, read-side and
// stream-setup failures do not.
type Reason int

const (
	// ReasonAbrupted means the user cancelled mid-copy.
	ReasonAbrupted Reason = iota
	// ReasonCouldNotRewind means the source handle failed to seek back
	// to the start before copying began.
	ReasonCouldNotRewind
	// ReasonLocalIo is an I/O error on the local side of the copy.
	ReasonLocalIo
	// ReasonHost is a local provider failure opening the file.
	ReasonHost
	// ReasonRemoteIo is an I/O error on the remote side of the copy.
	ReasonRemoteIo
	// ReasonProtocol is a remote provider failure opening the stream.
	ReasonProtocol
)

func (r Reason) String() string {
	switch r {
	case ReasonAbrupted:
		return "transfer aborted"
	case ReasonCouldNotRewind:
		return "could not rewind local file"
	case ReasonLocalIo:
		return "local I/O error"
	case ReasonHost:
		return "host error"
	case ReasonRemoteIo:
		return "remote I/O error"
	case ReasonProtocol:
		return "protocol error"
	default:
		return "unknown error"
	}
}

// Error is the failure type returned by the per-file copy routines.
type Error struct {
	Reason Reason
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Reason, e.Err)
	}
	return e.Reason.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// newError builds a transfer error with the given classification.
func newError(reason Reason, err error) *Error {
	return &Error{Reason: reason, Err: err}
}

// ReasonOf extracts the classification from an error returned by the
// engine. Returns false if the error is not a transfer error.
func ReasonOf(err error) (Reason, bool) {
	var terr *Error
	if errors.As(err, &terr) {
		return terr.Reason, true
	}
	return 0, false
}

// IsAbrupted reports whether err is a cancellation.
func IsAbrupted(err error) bool {
	r, ok := ReasonOf(err)
	return ok && r == ReasonAbrupted
}
