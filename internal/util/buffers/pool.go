package buffers

import (
	"sync"
	"sync/atomic"

	"github.com/flashlab/termscp/internal/constants"
)

// Pool provides reusable byte buffers for the chunked copy loop. One
// buffer is checked out per file transfer and reused for every chunk of
// that file, so deep recursive walks do not allocate per entry.

// Pool monitoring counters
var (
	chunkAllocations int64 // Total chunk buffer allocations (new creates)
	chunkReuses      int64 // Total chunk buffer reuses from pool
)

var chunkSize atomic.Int64

func init() {
	chunkSize.Store(constants.TransferChunkSize)
}

// SetChunkSize resizes buffers handed out by the pool, honoring the
// transfer.chunk_size setting. Call once at startup before transfers
// begin; buffers of a stale size are discarded on checkout.
func SetChunkSize(n int) {
	if n < 4096 {
		n = 4096
	}
	chunkSize.Store(int64(n))
}

// ChunkSize reports the current buffer size in bytes.
func ChunkSize() int {
	return int(chunkSize.Load())
}

// chunkPool provides transfer-sized buffers for the copy loop.
var chunkPool = &sync.Pool{
	New: func() interface{} {
		atomic.AddInt64(&chunkAllocations, 1)
		buf := make([]byte, chunkSize.Load())
		return &buf
	},
}

// GetChunkBuffer retrieves a copy buffer from the pool.
// The buffer must be returned with PutChunkBuffer when the file is done.
//
// Usage:
//
//	buf := buffers.GetChunkBuffer()
//	defer buffers.PutChunkBuffer(buf)
//	n, err := reader.Read(*buf)
//	// Use (*buf)[:n] for actual data
func GetChunkBuffer() *[]byte {
	atomic.AddInt64(&chunkReuses, 1)
	buf := chunkPool.Get().(*[]byte)
	if len(*buf) != ChunkSize() {
		atomic.AddInt64(&chunkAllocations, 1)
		fresh := make([]byte, ChunkSize())
		return &fresh
	}
	return buf
}

// PutChunkBuffer returns a buffer to the pool for reuse.
// The buffer should not be used after calling this function.
// Only buffers of the current size are pooled; the buffer is cleared
// before being returned so stale file data never crosses transfers.
func PutChunkBuffer(buf *[]byte) {
	if buf != nil && len(*buf) == ChunkSize() {
		clear(*buf)
		chunkPool.Put(buf)
	}
}

// Stats returns current buffer pool statistics.
type Stats struct {
	ChunkBufferSize  int   // Size of chunk buffers (bytes)
	ChunkAllocations int64 // Total chunk buffer allocations (new creates)
	ChunkCheckouts   int64 // Total checkouts (allocations + reuses)
}

// GetStats reads the pool counters.
func GetStats() Stats {
	return Stats{
		ChunkBufferSize:  ChunkSize(),
		ChunkAllocations: atomic.LoadInt64(&chunkAllocations),
		ChunkCheckouts:   atomic.LoadInt64(&chunkReuses),
	}
}
