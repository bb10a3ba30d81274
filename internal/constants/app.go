package constants

import (
	"time"
)

// Transfer engine
const (
	// TransferChunkSize - size of the reusable copy buffer (64 KB)
	// One buffer is checked out of the pool per file and reused for every
	// chunk of that file. Small enough that the abort flag is observed
	// promptly even on slow links, large enough to keep syscall overhead low.
	TransferChunkSize = 64 * 1024

	// AbortPollInterval - maximum wall time between cancellation checks
	// during a chunked copy (500 ms). The copy loop re-checks the abort
	// flag at least this often regardless of chunk duration, and always
	// at least once per file.
	AbortPollInterval = 500 * time.Millisecond

	// ProgressRedrawStep - minimum change in the full-transfer ratio before
	// the UI is asked to redraw (1%). Bounds rendering cost on large batches
	// of tiny files.
	ProgressRedrawStep = 0.01

	// SpeedElapsedFloor - minimum elapsed duration used when deriving
	// bytes/second. Prevents division by zero for near-instant transfers.
	SpeedElapsedFloor = time.Millisecond
)

// Disk space safety margin
const (
	// DiskSpaceSafetyMargin - multiplier applied to a file's size when
	// preflight-checking free space before a local write (10% buffer).
	DiskSpaceSafetyMargin = 1.10
)

// Event system
const (
	// EventBusDefaultBuffer - default buffer size for event channels (256)
	// Events beyond a full buffer are dropped and counted, never blocked on.
	EventBusDefaultBuffer = 256
)

// Explorer
const (
	// DirStackDepth - maximum previous-directory entries retained per side (16)
	// Matches the bounded pushd/popd history of the interactive client.
	DirStackDepth = 16
)

// Remote providers
const (
	// ListPageSize - page size for paginated remote listings (1000)
	// Both S3 ListObjectsV2 and Azure ListBlobs accept this as max results.
	ListPageSize = 1000

	// ConnectTimeout - timeout applied to provider connection handshakes (30s)
	// Individual chunk I/O intentionally carries no timeout; only the
	// initial connect is bounded.
	ConnectTimeout = 30 * time.Second

	// AzureBlockSize - size of the staged blocks an upload is split into (4 MB)
	// Engine chunks are buffered up to this size before each StageBlock call.
	AzureBlockSize = 4 * 1024 * 1024

	// AzureCopyPollInterval - polling interval while a server-side blob
	// copy is pending (200ms). Same-account copies usually finish within
	// the first poll.
	AzureCopyPollInterval = 200 * time.Millisecond
)

// HTTP transport tuning (shared by the cloud providers and the
// update check)
const (
	// HTTPDialTimeout - timeout for establishing a connection (30 seconds)
	HTTPDialTimeout = 30 * time.Second

	// HTTPDialKeepAlive - keep-alive period for the dialer (30 seconds)
	HTTPDialKeepAlive = 30 * time.Second

	// HTTPIdleConnTimeout - how long idle connections stay open (90 seconds)
	HTTPIdleConnTimeout = 90 * time.Second

	// HTTPTLSHandshakeTimeout - timeout for the TLS handshake (60 seconds)
	HTTPTLSHandshakeTimeout = 60 * time.Second

	// HTTPExpectContinueTimeout - timeout for a 100-continue response (1 second)
	HTTPExpectContinueTimeout = 1 * time.Second
)

// Update check
const (
	// UpdateCheckTimeout - overall timeout for the release lookup (10s)
	UpdateCheckTimeout = 10 * time.Second

	// UpdateRetryMax - maximum retries for the release lookup (3)
	UpdateRetryMax = 3
)

// UI updates
const (
	// ProgressThrottleInterval - minimum time between progress bar updates (100ms)
	ProgressThrottleInterval = 100 * time.Millisecond

	// BatchUIRefreshRate - refresh rate for the multi-bar batch UI (300ms)
	BatchUIRefreshRate = 300 * time.Millisecond
)
