// Package remotefs defines the capability contract every remote
// filesystem backend implements. The transfer engine and the session
// controller are written once against Provider and stay
// backend-agnostic; s3fs, azurefs and memfs provide the
// implementations.
package remotefs

import (
	"context"
	"io"

	"github.com/flashlab/termscp/internal/models"
)

// Provider is the remote side of a transfer session.
//
// Streams returned by SendFile and RecvFile are scoped to a single
// file transfer: the caller writes or reads chunks and then MUST hand
// the stream to OnSent or OnRecv exactly once, on every exit path,
// before moving to the next entry. Backends that need an explicit
// commit step (multipart completion, block list put) perform it there.
//
// Every method returns *Error so callers can branch on ErrKind; in
// particular Mkdir reports KindAlreadyExists when the directory is
// already present, which callers treat as success.
type Provider interface {
	// Connect establishes the session. Must be called before any other
	// operation; failures are fatal to the whole session.
	Connect(ctx context.Context) error

	// Disconnect tears the session down. Safe to call once after a
	// successful Connect.
	Disconnect() error

	// IsConnected reports whether Connect has succeeded.
	IsConnected() bool

	// Description identifies the endpoint for logs, e.g. "s3://bucket/prefix".
	Description() string

	// Pwd returns the current remote working directory.
	Pwd() string

	// ChangeDir moves the remote working directory.
	ChangeDir(ctx context.Context, path string) error

	// List returns the entries of a remote directory.
	List(ctx context.Context, path string) ([]models.Entry, error)

	// Stat resolves a single remote path to an entry snapshot.
	Stat(ctx context.Context, path string) (models.Entry, error)

	// Mkdir creates a remote directory. Reports KindAlreadyExists when
	// the path is already a directory.
	Mkdir(ctx context.Context, path string) error

	// Remove deletes a remote entry; directories are removed recursively.
	Remove(ctx context.Context, entry models.Entry) error

	// Rename moves a remote entry to a new path.
	Rename(ctx context.Context, entry models.Entry, dst string) error

	// SendFile opens a writable stream that materializes the given local
	// file snapshot at the remote path.
	SendFile(ctx context.Context, local models.Entry, remotePath string) (io.WriteCloser, error)

	// RecvFile opens a readable stream for the given remote file snapshot.
	RecvFile(ctx context.Context, remote models.Entry) (io.ReadCloser, error)

	// OnSent finalizes a stream returned by SendFile.
	OnSent(stream io.WriteCloser) error

	// OnRecv finalizes a stream returned by RecvFile.
	OnRecv(stream io.ReadCloser) error
}

// Finder is implemented by providers that support server-side or
// walked glob search. The session controller falls back to a client
// side walk for providers that do not implement it.
type Finder interface {
	// Find returns entries under path whose path relative to it matches
	// the glob pattern. Implementations match the way the controller's
	// walk fallback does, so both routes return the same results.
	Find(ctx context.Context, path, pattern string) ([]models.Entry, error)
}
