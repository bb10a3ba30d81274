// Package transfer implements the engine that moves files and directory
// trees between the local filesystem and a remote provider: recursive
// enumeration, chunked streaming, dual-level progress accounting,
// cooperative cancellation and cleanup of partial artifacts.
package transfer

import (
	"sync"
	"time"

	"github.com/flashlab/termscp/internal/constants"
)

// ProgressTracker is pure byte accounting for one progress counter.
// The engine keeps two of these: one for the whole batch and one for
// the entry currently streaming. No I/O, never blocks.
// Thread-safe: the copy loop writes while UI goroutines read.
type ProgressTracker struct {
	mu          sync.RWMutex
	total       int64
	transferred int64
	startedAt   time.Time
}

// Init records the expected total, zeroes the transferred counter and
// starts the clock. Must be called before Update.
func (p *ProgressTracker) Init(total int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.total = total
	p.transferred = 0
	p.startedAt = time.Now()
}

// Update adds delta bytes to the transferred counter. No upper clamp is
// enforced here; callers never report more than the total.
func (p *ProgressTracker) Update(delta int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.transferred += delta
}

// Progress returns the transferred/total ratio in [0, 1]. A zero total
// reports 1.0: a no-op transfer is complete by definition.
func (p *ProgressTracker) Progress() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.total == 0 {
		return 1.0
	}
	ratio := float64(p.transferred) / float64(p.total)
	if ratio > 1.0 {
		return 1.0
	}
	return ratio
}

// BytesPerSecond returns the average throughput since Init. The elapsed
// time is floored so near-instant transfers never divide by zero.
func (p *ProgressTracker) BytesPerSecond() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	elapsed := time.Since(p.startedAt)
	if elapsed < constants.SpeedElapsedFloor {
		elapsed = constants.SpeedElapsedFloor
	}
	return float64(p.transferred) / elapsed.Seconds()
}

// Started returns the Init time, used for duration reporting.
func (p *ProgressTracker) Started() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.startedAt
}

// Total returns the expected byte count.
func (p *ProgressTracker) Total() int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.total
}

// Transferred returns the bytes moved so far.
func (p *ProgressTracker) Transferred() int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.transferred
}
