package transfer

import "sync/atomic"

// TransferState carries the per-invocation accounting shared between the
// copy loop and whoever renders progress: the batch-wide counter, the
// current-entry counter, the cancellation flag and a count of entries
// that failed without aborting the batch.
//
// One TransferState lives for the whole session; Reset is called at the
// start of every Send/Recv. Once Abort sets the flag it never reverts
// within an invocation.
type TransferState struct {
	full    ProgressTracker
	partial ProgressTracker
	aborted atomic.Bool
	failed  atomic.Int64
}

// NewTransferState creates a fresh transfer state.
func NewTransferState() *TransferState {
	return &TransferState{}
}

// Reset clears both counters, the aborted flag and the failure count.
func (s *TransferState) Reset() {
	s.full.Init(0)
	s.partial.Init(0)
	s.aborted.Store(false)
	s.failed.Store(0)
}

// Full returns the batch-wide progress counter.
func (s *TransferState) Full() *ProgressTracker {
	return &s.full
}

// Partial returns the current-entry progress counter.
func (s *TransferState) Partial() *ProgressTracker {
	return &s.partial
}

// Abort requests cancellation. Safe to call from any goroutine; the
// copy loop observes it at its next poll point.
func (s *TransferState) Abort() {
	s.aborted.Store(true)
}

// Aborted reports whether cancellation has been requested.
func (s *TransferState) Aborted() bool {
	return s.aborted.Load()
}

// RecordFailure counts one entry that failed without stopping the batch.
func (s *TransferState) RecordFailure() {
	s.failed.Add(1)
}

// FailedEntries returns how many entries failed during the invocation.
func (s *TransferState) FailedEntries() int64 {
	return s.failed.Load()
}
