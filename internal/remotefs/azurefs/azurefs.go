// Package azurefs implements the remote provider for Azure Blob
// Storage. It mirrors the key-prefix directory emulation used by the
// S3 provider: "/" delimited listings surface prefixes as directories
// and zero-byte blobs with a trailing "/" act as placeholders for
// empty ones. Uploads stage 4 MB blocks as the stream fills and commit
// the block list on finalize, so nothing is visible until the transfer
// completes or is explicitly finalized.
package azurefs

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	nethttp "net/http"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blockblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"
	"github.com/rs/zerolog/log"

	"github.com/flashlab/termscp/internal/constants"
	"github.com/flashlab/termscp/internal/filter"
	"github.com/flashlab/termscp/internal/httpx"
	"github.com/flashlab/termscp/internal/models"
	"github.com/flashlab/termscp/internal/remotefs"
)

// Options configures an Azure Blob provider. Either SASURL or the
// Account/Key pair must be set.
type Options struct {
	Container string
	Account   string
	Key       string
	SASURL    string // full service URL with SAS token, overrides Account/Key
	Endpoint  string // optional, for Azurite and sovereign clouds

	// HTTPClient is the shared transport built by httpx. When nil the
	// SDK falls back to its own default pipeline transport.
	HTTPClient *nethttp.Client
}

// Provider is the Azure Blob remote filesystem.
type Provider struct {
	opts      Options
	container string
	retry     httpx.Config

	mu        sync.RWMutex
	client    *azblob.Client
	wrkdir    string
	connected bool
}

// New creates an Azure Blob provider. Connect must be called before use.
func New(opts Options) (*Provider, error) {
	if opts.Container == "" {
		return nil, remotefs.NewErrorMsg(remotefs.KindProtocol, "container name is required")
	}
	return &Provider{
		opts:      opts,
		container: opts.Container,
		retry:     httpx.DefaultConfig(),
		wrkdir:    "/",
	}, nil
}

// Connect builds the SDK client and verifies the container is reachable.
func (p *Provider) Connect(ctx context.Context) error {
	clientOpts := &azblob.ClientOptions{}
	if p.opts.HTTPClient != nil {
		clientOpts.ClientOptions = azcore.ClientOptions{Transport: p.opts.HTTPClient}
	}

	var client *azblob.Client
	var err error
	switch {
	case p.opts.SASURL != "":
		client, err = azblob.NewClientWithNoCredential(p.opts.SASURL, clientOpts)
	case p.opts.Account != "" && p.opts.Key != "":
		cred, kerr := azblob.NewSharedKeyCredential(p.opts.Account, p.opts.Key)
		if kerr != nil {
			return remotefs.NewError(remotefs.KindConnection, kerr)
		}
		serviceURL := p.opts.Endpoint
		if serviceURL == "" {
			serviceURL = fmt.Sprintf("https://%s.blob.core.windows.net/", p.opts.Account)
		}
		client, err = azblob.NewClientWithSharedKeyCredential(serviceURL, cred, clientOpts)
	default:
		return remotefs.NewErrorMsg(remotefs.KindConnection, "either a SAS URL or an account name and key are required")
	}
	if err != nil {
		return remotefs.NewError(remotefs.KindConnection, err)
	}

	hctx, cancel := context.WithTimeout(ctx, constants.ConnectTimeout)
	defer cancel()
	if _, err := client.ServiceClient().NewContainerClient(p.container).GetProperties(hctx, nil); err != nil {
		return remotefs.NewError(remotefs.KindConnection, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.client = client
	p.wrkdir = "/"
	p.connected = true
	return nil
}

// Disconnect marks the provider disconnected.
func (p *Provider) Disconnect() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connected = false
	return nil
}

// IsConnected reports whether Connect has succeeded.
func (p *Provider) IsConnected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.connected
}

// Description identifies the endpoint for logs.
func (p *Provider) Description() string {
	return fmt.Sprintf("az://%s", p.container)
}

// Pwd returns the current remote working directory.
func (p *Provider) Pwd() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.wrkdir
}

// ChangeDir moves the working directory. The target must exist as a
// prefix, which means it holds at least one blob or a placeholder.
func (p *Provider) ChangeDir(ctx context.Context, dir string) error {
	if err := p.ready(); err != nil {
		return err
	}
	dir = clean(dir)
	if dir != "/" {
		ok, err := p.dirExists(ctx, dir)
		if err != nil {
			return mapError(err)
		}
		if !ok {
			return remotefs.Errorf(remotefs.KindNoSuchFile, "no such directory: %s", dir)
		}
	}
	p.mu.Lock()
	p.wrkdir = dir
	p.mu.Unlock()
	return nil
}

// List returns the direct children of dir, sorted by name. Blob
// prefixes become directories; the placeholder blob of the listed dir
// itself is skipped.
func (p *Provider) List(ctx context.Context, dir string) ([]models.Entry, error) {
	if err := p.ready(); err != nil {
		return nil, err
	}
	prefix := prefixOf(clean(dir))

	var entries []models.Entry
	pager := p.containerClient().NewListBlobsHierarchyPager("/", &container.ListBlobsHierarchyOptions{
		Prefix:     to.Ptr(prefix),
		MaxResults: to.Ptr(int32(constants.ListPageSize)),
	})
	for pager.More() {
		var page container.ListBlobsHierarchyResponse
		err := p.withRetry(ctx, "ListBlobsHierarchy", func() error {
			r, err := pager.NextPage(ctx)
			if err != nil {
				return err
			}
			page = r
			return nil
		})
		if err != nil {
			return nil, mapError(err)
		}

		for _, bp := range page.Segment.BlobPrefixes {
			sub := strv(bp.Name)
			name := path.Base(strings.TrimSuffix(sub, "/"))
			entries = append(entries, models.NewDirectory(pathOf(sub), name, time.Time{}, nil))
		}
		for _, item := range page.Segment.BlobItems {
			key := strv(item.Name)
			size := i64v(item.Properties.ContentLength)
			if isPlaceholder(key, size) {
				continue
			}
			entries = append(entries, models.NewFile(pathOf(key), path.Base(key), size, timev(item.Properties.LastModified), nil))
		}
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

// Stat resolves a path to an entry. A missing blob falls back to a
// prefix probe so directories without placeholders still resolve.
func (p *Provider) Stat(ctx context.Context, target string) (models.Entry, error) {
	if err := p.ready(); err != nil {
		return models.Entry{}, err
	}
	target = clean(target)
	if target == "/" {
		return models.NewDirectory("/", "/", time.Time{}, nil), nil
	}

	key := keyOf(target)
	var props blob.GetPropertiesResponse
	err := p.withRetry(ctx, "GetProperties", func() error {
		r, err := p.blobClient(key).GetProperties(ctx, nil)
		if err != nil {
			return err
		}
		props = r
		return nil
	})
	if err == nil {
		return models.NewFile(target, path.Base(target), i64v(props.ContentLength), timev(props.LastModified), nil), nil
	}
	if isNotFound(err) {
		ok, derr := p.dirExists(ctx, target)
		if derr == nil && ok {
			return models.NewDirectory(target, path.Base(target), time.Time{}, nil), nil
		}
		return models.Entry{}, remotefs.Errorf(remotefs.KindNoSuchFile, "no such file or directory: %s", target)
	}
	return models.Entry{}, mapError(err)
}

// Mkdir creates a directory placeholder. An existing prefix reports the
// distinguishable already-exists kind.
func (p *Provider) Mkdir(ctx context.Context, dir string) error {
	if err := p.ready(); err != nil {
		return err
	}
	dir = clean(dir)
	if dir == "/" {
		return remotefs.Errorf(remotefs.KindAlreadyExists, "directory already exists: %s", dir)
	}
	ok, err := p.dirExists(ctx, dir)
	if err != nil {
		return mapError(err)
	}
	if ok {
		return remotefs.Errorf(remotefs.KindAlreadyExists, "directory already exists: %s", dir)
	}

	err = p.withRetry(ctx, "Upload", func() error {
		_, err := p.blockClient(prefixOf(dir)).Upload(ctx, &readSeekCloser{Reader: bytes.NewReader(nil)}, nil)
		return err
	})
	if err != nil {
		return mapError(err)
	}
	return nil
}

// Remove deletes an entry. Directories are removed blob by blob under
// their prefix.
func (p *Provider) Remove(ctx context.Context, entry models.Entry) error {
	if err := p.ready(); err != nil {
		return err
	}
	if entry.IsDir {
		return p.removeTree(ctx, clean(entry.Path))
	}
	return p.deleteBlob(ctx, keyOf(clean(entry.Path)))
}

func (p *Provider) removeTree(ctx context.Context, dir string) error {
	keys, err := p.keysUnder(ctx, prefixOf(dir))
	if err != nil {
		return mapError(err)
	}
	for _, key := range keys {
		if err := p.deleteBlob(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

// Rename moves an entry with a server-side copy followed by a delete.
func (p *Provider) Rename(ctx context.Context, entry models.Entry, dst string) error {
	if err := p.ready(); err != nil {
		return err
	}
	src := clean(entry.Path)
	dst = clean(dst)
	if entry.IsDir {
		return p.renameTree(ctx, src, dst)
	}
	if err := p.copyBlob(ctx, keyOf(src), keyOf(dst)); err != nil {
		return err
	}
	return p.deleteBlob(ctx, keyOf(src))
}

func (p *Provider) renameTree(ctx context.Context, src, dst string) error {
	srcPrefix := prefixOf(src)
	dstPrefix := prefixOf(dst)
	keys, err := p.keysUnder(ctx, srcPrefix)
	if err != nil {
		return mapError(err)
	}
	for _, key := range keys {
		if err := p.copyBlob(ctx, key, dstPrefix+strings.TrimPrefix(key, srcPrefix)); err != nil {
			return err
		}
	}
	for _, key := range keys {
		if err := p.deleteBlob(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

// SendFile opens a write stream that stages blocks as they fill. The
// blob only becomes visible when the stream is finalized through
// OnSent, which commits the block list.
func (p *Provider) SendFile(ctx context.Context, local models.Entry, remotePath string) (io.WriteCloser, error) {
	if err := p.ready(); err != nil {
		return nil, err
	}
	return &azureWriter{ctx: ctx, p: p, key: keyOf(clean(remotePath))}, nil
}

// RecvFile opens a read stream over the blob body.
func (p *Provider) RecvFile(ctx context.Context, remote models.Entry) (io.ReadCloser, error) {
	if err := p.ready(); err != nil {
		return nil, err
	}
	key := keyOf(clean(remote.Path))
	var body io.ReadCloser
	err := p.withRetry(ctx, "DownloadStream", func() error {
		resp, err := p.blobClient(key).DownloadStream(ctx, nil)
		if err != nil {
			return err
		}
		body = resp.Body
		return nil
	})
	if err != nil {
		return nil, mapError(err)
	}
	return body, nil
}

// OnSent finalizes an upload stream, committing the staged block list.
func (p *Provider) OnSent(stream io.WriteCloser) error {
	w, ok := stream.(*azureWriter)
	if !ok {
		return stream.Close()
	}
	if err := w.finish(); err != nil {
		return mapError(err)
	}
	return nil
}

// OnRecv closes the blob body.
func (p *Provider) OnRecv(stream io.ReadCloser) error {
	return stream.Close()
}

// Find walks every blob under dir and matches each entry's path
// relative to dir against the glob pattern, the same way the session
// walk does for providers without a native search. Placeholder blobs
// surface as directory entries; the placeholder of dir itself is not
// a result.
func (p *Provider) Find(ctx context.Context, dir, pattern string) ([]models.Entry, error) {
	if err := p.ready(); err != nil {
		return nil, err
	}
	if !filter.ValidPattern(pattern) {
		return nil, remotefs.Errorf(remotefs.KindIo, "bad pattern %q", pattern)
	}
	root := clean(dir)
	prefix := prefixOf(root)

	var entries []models.Entry
	pager := p.containerClient().NewListBlobsFlatPager(&container.ListBlobsFlatOptions{
		Prefix:     to.Ptr(prefix),
		MaxResults: to.Ptr(int32(constants.ListPageSize)),
	})
	for pager.More() {
		var page container.ListBlobsFlatResponse
		err := p.withRetry(ctx, "ListBlobsFlat", func() error {
			r, err := pager.NextPage(ctx)
			if err != nil {
				return err
			}
			page = r
			return nil
		})
		if err != nil {
			return nil, mapError(err)
		}
		for _, item := range page.Segment.BlobItems {
			key := strv(item.Name)
			if key == prefix {
				continue
			}
			size := i64v(item.Properties.ContentLength)
			var e models.Entry
			if strings.HasSuffix(key, "/") {
				if size != 0 {
					continue
				}
				e = models.NewDirectory(pathOf(key), path.Base(pathOf(key)), timev(item.Properties.LastModified), nil)
			} else {
				e = models.NewFile(pathOf(key), path.Base(key), size, timev(item.Properties.LastModified), nil)
			}
			rel := strings.TrimPrefix(strings.TrimPrefix(e.Path, root), "/")
			if filter.MatchPattern(rel, pattern) {
				entries = append(entries, e)
			}
		}
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, nil
}

// keysUnder returns every blob name under prefix, placeholders included.
func (p *Provider) keysUnder(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	pager := p.containerClient().NewListBlobsFlatPager(&container.ListBlobsFlatOptions{
		Prefix:     to.Ptr(prefix),
		MaxResults: to.Ptr(int32(constants.ListPageSize)),
	})
	for pager.More() {
		var page container.ListBlobsFlatResponse
		err := p.withRetry(ctx, "ListBlobsFlat", func() error {
			r, err := pager.NextPage(ctx)
			if err != nil {
				return err
			}
			page = r
			return nil
		})
		if err != nil {
			return nil, err
		}
		for _, item := range page.Segment.BlobItems {
			keys = append(keys, strv(item.Name))
		}
	}
	return keys, nil
}

func (p *Provider) dirExists(ctx context.Context, dir string) (bool, error) {
	prefix := prefixOf(dir)
	if prefix == "" {
		return true, nil
	}
	var found bool
	err := p.withRetry(ctx, "ListBlobsFlat", func() error {
		pager := p.containerClient().NewListBlobsFlatPager(&container.ListBlobsFlatOptions{
			Prefix:     to.Ptr(prefix),
			MaxResults: to.Ptr(int32(1)),
		})
		page, err := pager.NextPage(ctx)
		if err != nil {
			return err
		}
		found = len(page.Segment.BlobItems) > 0
		return nil
	})
	return found, err
}

func (p *Provider) deleteBlob(ctx context.Context, key string) error {
	err := p.withRetry(ctx, "DeleteBlob", func() error {
		_, err := p.blobClient(key).Delete(ctx, nil)
		return err
	})
	if err != nil {
		return mapError(err)
	}
	return nil
}

// copyBlob starts a server-side copy and polls until it settles.
// Same-account copies are authorized by the destination credentials.
func (p *Provider) copyBlob(ctx context.Context, srcKey, dstKey string) error {
	srcURL := p.blobClient(srcKey).URL()
	err := p.withRetry(ctx, "StartCopyFromURL", func() error {
		_, err := p.blobClient(dstKey).StartCopyFromURL(ctx, srcURL, nil)
		return err
	})
	if err != nil {
		return mapError(err)
	}
	return p.waitCopy(ctx, dstKey)
}

func (p *Provider) waitCopy(ctx context.Context, dstKey string) error {
	for {
		var status *blob.CopyStatusType
		err := p.withRetry(ctx, "GetProperties", func() error {
			resp, err := p.blobClient(dstKey).GetProperties(ctx, nil)
			if err != nil {
				return err
			}
			status = resp.CopyStatus
			return nil
		})
		if err != nil {
			return mapError(err)
		}
		if status == nil || *status == blob.CopyStatusTypeSuccess {
			return nil
		}
		if *status != blob.CopyStatusTypePending {
			return remotefs.Errorf(remotefs.KindIo, "copy to %s finished with status %s", dstKey, *status)
		}
		select {
		case <-ctx.Done():
			return remotefs.NewError(remotefs.KindIo, ctx.Err())
		case <-time.After(constants.AzureCopyPollInterval):
		}
	}
}

func (p *Provider) withRetry(ctx context.Context, op string, fn func() error) error {
	cfg := p.retry
	cfg.OnRetry = func(attempt int, err error, errorType httpx.ErrorType) {
		log.Debug().
			Str("op", op).
			Int("attempt", attempt).
			Str("class", httpx.ErrorTypeName(errorType)).
			Err(err).
			Msg("retrying azure operation")
	}
	return httpx.ExecuteWithRetry(ctx, cfg, fn)
}

func (p *Provider) ready() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.connected || p.client == nil {
		return remotefs.NewErrorMsg(remotefs.KindNotConnected, "session not connected")
	}
	return nil
}

func (p *Provider) az() *azblob.Client {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.client
}

func (p *Provider) containerClient() *container.Client {
	return p.az().ServiceClient().NewContainerClient(p.container)
}

func (p *Provider) blobClient(key string) *blob.Client {
	return p.containerClient().NewBlobClient(key)
}

func (p *Provider) blockClient(key string) *blockblob.Client {
	return p.containerClient().NewBlockBlobClient(key)
}

// azureWriter buffers stream writes into fixed-size blocks, staging
// each as it fills. finish stages the tail block and commits the block
// list exactly once; later calls return the recorded result. A block
// that fails to stage poisons the writer so the committed list never
// has holes.
type azureWriter struct {
	ctx context.Context
	p   *Provider
	key string

	buf      bytes.Buffer
	blockIDs []string
	idx      int
	sticky   error

	once sync.Once
	err  error
}

func (w *azureWriter) Write(b []byte) (int, error) {
	if w.sticky != nil {
		return 0, w.sticky
	}
	total := len(b)
	for len(b) > 0 {
		room := constants.AzureBlockSize - w.buf.Len()
		if room > len(b) {
			room = len(b)
		}
		w.buf.Write(b[:room])
		b = b[room:]
		if w.buf.Len() >= constants.AzureBlockSize {
			if err := w.flushBlock(); err != nil {
				w.sticky = err
				return 0, err
			}
		}
	}
	return total, nil
}

func (w *azureWriter) Close() error {
	return w.finish()
}

func (w *azureWriter) flushBlock() error {
	if w.buf.Len() == 0 {
		return nil
	}
	blockID := base64.StdEncoding.EncodeToString([]byte(fmt.Sprintf("block-%010d", w.idx)))
	data := make([]byte, w.buf.Len())
	copy(data, w.buf.Bytes())
	w.buf.Reset()

	err := w.p.withRetry(w.ctx, "StageBlock", func() error {
		_, err := w.p.blockClient(w.key).StageBlock(w.ctx, blockID, &readSeekCloser{Reader: bytes.NewReader(data)}, nil)
		return err
	})
	if err != nil {
		return err
	}
	w.blockIDs = append(w.blockIDs, blockID)
	w.idx++
	return nil
}

func (w *azureWriter) finish() error {
	w.once.Do(func() {
		if w.sticky != nil {
			w.err = w.sticky
			return
		}
		if err := w.flushBlock(); err != nil {
			w.err = err
			return
		}
		w.err = w.p.withRetry(w.ctx, "CommitBlockList", func() error {
			_, err := w.p.blockClient(w.key).CommitBlockList(w.ctx, w.blockIDs, nil)
			return err
		})
	})
	return w.err
}

// readSeekCloser adapts bytes.Reader to the io.ReadSeekCloser the
// block staging API wants.
type readSeekCloser struct {
	*bytes.Reader
}

func (rsc *readSeekCloser) Close() error {
	return nil
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	var perr *remotefs.Error
	if errors.As(err, &perr) {
		return perr
	}
	var rerr *azcore.ResponseError
	if errors.As(err, &rerr) {
		switch rerr.StatusCode {
		case nethttp.StatusNotFound:
			if rerr.ErrorCode == "ContainerNotFound" {
				return remotefs.NewError(remotefs.KindConnection, err)
			}
			return remotefs.NewError(remotefs.KindNoSuchFile, err)
		case nethttp.StatusForbidden, nethttp.StatusUnauthorized:
			return remotefs.NewError(remotefs.KindPermissionDenied, err)
		}
	}
	return remotefs.NewError(remotefs.KindIo, err)
}

func isNotFound(err error) bool {
	var rerr *azcore.ResponseError
	return errors.As(err, &rerr) && rerr.StatusCode == nethttp.StatusNotFound
}

// isPlaceholder reports whether a blob is a zero-byte directory marker.
func isPlaceholder(key string, size int64) bool {
	return strings.HasSuffix(key, "/") && size == 0
}

func clean(p string) string {
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}

// keyOf maps a provider path to a blob name: "/a/b.txt" -> "a/b.txt".
func keyOf(target string) string {
	return strings.TrimPrefix(clean(target), "/")
}

// prefixOf maps a provider path to a directory prefix: "/a/b" -> "a/b/".
// The root maps to the empty prefix.
func prefixOf(target string) string {
	k := keyOf(target)
	if k == "" {
		return ""
	}
	return k + "/"
}

// pathOf maps a blob name or prefix back to a provider path.
func pathOf(key string) string {
	return "/" + strings.TrimSuffix(key, "/")
}

func strv(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func i64v(i *int64) int64 {
	if i == nil {
		return 0
	}
	return *i
}

func timev(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
