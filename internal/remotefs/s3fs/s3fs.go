// Package s3fs implements the remote provider for Amazon S3 and
// S3-compatible object stores. Directories are emulated with the usual
// key-prefix convention: a trailing "/" on a key marks a directory
// placeholder, and listing uses the "/" delimiter so prefixes show up
// as directories.
package s3fs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	nethttp "net/http"
	"net/url"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awscreds "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog/log"

	"github.com/flashlab/termscp/internal/constants"
	"github.com/flashlab/termscp/internal/filter"
	"github.com/flashlab/termscp/internal/httpx"
	"github.com/flashlab/termscp/internal/models"
	"github.com/flashlab/termscp/internal/remotefs"
)

// Options configures an S3 provider.
type Options struct {
	Bucket       string
	Region       string
	Endpoint     string // optional, for MinIO and other S3-compatible stores
	AccessKey    string
	SecretKey    string
	SessionToken string

	// HTTPClient is the shared transport built by httpx. When nil the
	// SDK falls back to its own default client.
	HTTPClient *nethttp.Client
}

// Provider is the S3 remote filesystem.
type Provider struct {
	opts   Options
	bucket string
	retry  httpx.Config

	mu        sync.RWMutex
	client    *s3.Client
	uploader  *manager.Uploader
	wrkdir    string
	connected bool
}

// New creates an S3 provider. Connect must be called before use.
func New(opts Options) (*Provider, error) {
	if opts.Bucket == "" {
		return nil, remotefs.NewErrorMsg(remotefs.KindProtocol, "bucket name is required")
	}
	if opts.Region == "" {
		// Custom endpoints ignore the region but the SDK insists on one.
		opts.Region = "us-east-1"
	}
	return &Provider{
		opts:   opts,
		bucket: opts.Bucket,
		retry:  httpx.DefaultConfig(),
		wrkdir: "/",
	}, nil
}

// Connect builds the SDK client and verifies the bucket is reachable.
func (p *Provider) Connect(ctx context.Context) error {
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(p.opts.Region),
	}
	if p.opts.HTTPClient != nil {
		loadOpts = append(loadOpts, awsconfig.WithHTTPClient(p.opts.HTTPClient))
	}
	if p.opts.AccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			aws.NewCredentialsCache(awscreds.NewStaticCredentialsProvider(
				p.opts.AccessKey, p.opts.SecretKey, p.opts.SessionToken,
			)),
		))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return remotefs.NewError(remotefs.KindConnection, err)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if p.opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(p.opts.Endpoint)
			o.UsePathStyle = true
		}
	})

	hctx, cancel := context.WithTimeout(ctx, constants.ConnectTimeout)
	defer cancel()
	if _, err := client.HeadBucket(hctx, &s3.HeadBucketInput{Bucket: aws.String(p.bucket)}); err != nil {
		return remotefs.NewError(remotefs.KindConnection, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.client = client
	p.uploader = manager.NewUploader(client)
	p.wrkdir = "/"
	p.connected = true
	return nil
}

// Disconnect marks the provider disconnected. The SDK client holds no
// persistent session, so there is nothing to tear down.
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
	return fmt.Sprintf("s3://%s", p.bucket)
}

// Pwd returns the current remote working directory.
func (p *Provider) Pwd() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.wrkdir
}

// ChangeDir moves the working directory. The target must exist as a
// prefix, which means it holds at least one key or a placeholder.
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

// List returns the direct children of dir, sorted by name. Common
// prefixes become directories; the placeholder key of the listed dir
// itself is skipped.
func (p *Provider) List(ctx context.Context, dir string) ([]models.Entry, error) {
	if err := p.ready(); err != nil {
		return nil, err
	}
	prefix := prefixOf(clean(dir))

	var entries []models.Entry
	var token *string
	for {
		var resp *s3.ListObjectsV2Output
		err := p.withRetry(ctx, "ListObjectsV2", func() error {
			r, err := p.s3().ListObjectsV2(ctx, &s3.ListObjectsV2Input{
				Bucket:            aws.String(p.bucket),
				Prefix:            aws.String(prefix),
				Delimiter:         aws.String("/"),
				MaxKeys:           aws.Int32(constants.ListPageSize),
				ContinuationToken: token,
			})
			if err != nil {
				return err
			}
			resp = r
			return nil
		})
		if err != nil {
			return nil, mapError(err)
		}

		for _, cp := range resp.CommonPrefixes {
			sub := aws.ToString(cp.Prefix)
			name := path.Base(strings.TrimSuffix(sub, "/"))
			entries = append(entries, models.NewDirectory(pathOf(sub), name, time.Time{}, nil))
		}
		for _, obj := range resp.Contents {
			key := aws.ToString(obj.Key)
			size := aws.ToInt64(obj.Size)
			if isPlaceholder(key, size) {
				continue
			}
			entries = append(entries, models.NewFile(pathOf(key), path.Base(key), size, aws.ToTime(obj.LastModified), nil))
		}

		if resp.NextContinuationToken == nil || *resp.NextContinuationToken == "" {
			break
		}
		token = resp.NextContinuationToken
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

// Stat resolves a path to an entry. A missing object falls back to a
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
	var head *s3.HeadObjectOutput
	err := p.withRetry(ctx, "HeadObject", func() error {
		h, err := p.s3().HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(p.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return err
		}
		head = h
		return nil
	})
	if err == nil {
		size := aws.ToInt64(head.ContentLength)
		return models.NewFile(target, path.Base(target), size, aws.ToTime(head.LastModified), nil), nil
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

	err = p.withRetry(ctx, "PutObject", func() error {
		_, err := p.s3().PutObject(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(p.bucket),
			Key:           aws.String(prefixOf(dir)),
			Body:          bytes.NewReader(nil),
			ContentLength: aws.Int64(0),
		})
		return err
	})
	if err != nil {
		return mapError(err)
	}
	return nil
}

// Remove deletes an entry. Directories are removed with their whole
// subtree in batched DeleteObjects calls.
func (p *Provider) Remove(ctx context.Context, entry models.Entry) error {
	if err := p.ready(); err != nil {
		return err
	}
	if entry.IsDir {
		return p.removeTree(ctx, clean(entry.Path))
	}
	key := keyOf(clean(entry.Path))
	err := p.withRetry(ctx, "DeleteObject", func() error {
		_, err := p.s3().DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(p.bucket),
			Key:    aws.String(key),
		})
		return err
	})
	if err != nil {
		return mapError(err)
	}
	return nil
}

func (p *Provider) removeTree(ctx context.Context, dir string) error {
	prefix := prefixOf(dir)
	var token *string
	for {
		resp, err := p.listPage(ctx, prefix, token)
		if err != nil {
			return mapError(err)
		}
		ids := make([]s3types.ObjectIdentifier, 0, len(resp.Contents))
		for _, obj := range resp.Contents {
			ids = append(ids, s3types.ObjectIdentifier{Key: obj.Key})
		}
		if len(ids) > 0 {
			if err := p.deleteBatch(ctx, ids); err != nil {
				return err
			}
		}
		if resp.NextContinuationToken == nil || *resp.NextContinuationToken == "" {
			return nil
		}
		token = resp.NextContinuationToken
	}
}

// Rename moves an entry. S3 has no rename, so this is copy plus delete
// per key; objects above the single-copy size cap are not handled.
func (p *Provider) Rename(ctx context.Context, entry models.Entry, dst string) error {
	if err := p.ready(); err != nil {
		return err
	}
	src := clean(entry.Path)
	dst = clean(dst)
	if entry.IsDir {
		return p.renameTree(ctx, src, dst)
	}
	if err := p.copyObject(ctx, keyOf(src), keyOf(dst)); err != nil {
		return err
	}
	err := p.withRetry(ctx, "DeleteObject", func() error {
		_, err := p.s3().DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(p.bucket),
			Key:    aws.String(keyOf(src)),
		})
		return err
	})
	if err != nil {
		return mapError(err)
	}
	return nil
}

func (p *Provider) renameTree(ctx context.Context, src, dst string) error {
	srcPrefix := prefixOf(src)
	dstPrefix := prefixOf(dst)
	var token *string
	for {
		resp, err := p.listPage(ctx, srcPrefix, token)
		if err != nil {
			return mapError(err)
		}
		ids := make([]s3types.ObjectIdentifier, 0, len(resp.Contents))
		for _, obj := range resp.Contents {
			key := aws.ToString(obj.Key)
			if err := p.copyObject(ctx, key, dstPrefix+strings.TrimPrefix(key, srcPrefix)); err != nil {
				return err
			}
			ids = append(ids, s3types.ObjectIdentifier{Key: obj.Key})
		}
		if len(ids) > 0 {
			if err := p.deleteBatch(ctx, ids); err != nil {
				return err
			}
		}
		if resp.NextContinuationToken == nil || *resp.NextContinuationToken == "" {
			return nil
		}
		token = resp.NextContinuationToken
	}
}

// SendFile opens a write stream that feeds a streaming upload through a
// pipe. The upload commits whatever was written when the stream is
// finalized, so an interrupted transfer leaves a partial object for the
// caller's cleanup to remove.
func (p *Provider) SendFile(ctx context.Context, local models.Entry, remotePath string) (io.WriteCloser, error) {
	if err := p.ready(); err != nil {
		return nil, err
	}
	key := keyOf(clean(remotePath))
	pr, pw := io.Pipe()
	stream := &uploadStream{pw: pw, done: make(chan error, 1)}
	up := p.up()
	go func() {
		_, err := up.Upload(ctx, &s3.PutObjectInput{
			Bucket: aws.String(p.bucket),
			Key:    aws.String(key),
			Body:   pr,
		})
		if err != nil {
			// Fail pending writes instead of deadlocking on the pipe.
			pr.CloseWithError(err)
		} else {
			pr.Close()
		}
		stream.done <- err
	}()
	return stream, nil
}

// RecvFile opens a read stream over the object body.
func (p *Provider) RecvFile(ctx context.Context, remote models.Entry) (io.ReadCloser, error) {
	if err := p.ready(); err != nil {
		return nil, err
	}
	key := keyOf(clean(remote.Path))
	var resp *s3.GetObjectOutput
	err := p.withRetry(ctx, "GetObject", func() error {
		r, err := p.s3().GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(p.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, mapError(err)
	}
	return resp.Body, nil
}

// OnSent closes the write side of the upload pipe and joins the upload
// goroutine, reporting its result.
func (p *Provider) OnSent(stream io.WriteCloser) error {
	s, ok := stream.(*uploadStream)
	if !ok {
		return stream.Close()
	}
	if err := s.finish(); err != nil {
		return mapError(err)
	}
	return nil
}

// OnRecv closes the object body.
func (p *Provider) OnRecv(stream io.ReadCloser) error {
	return stream.Close()
}

// Find walks every key under dir and matches each entry's path
// relative to dir against the glob pattern, the same way the session
// walk does for providers without a native search. Placeholder keys
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
	var token *string
	for {
		resp, err := p.listPage(ctx, prefix, token)
		if err != nil {
			return nil, mapError(err)
		}
		for _, obj := range resp.Contents {
			key := aws.ToString(obj.Key)
			if key == prefix {
				continue
			}
			size := aws.ToInt64(obj.Size)
			var e models.Entry
			if strings.HasSuffix(key, "/") {
				if size != 0 {
					continue
				}
				e = models.NewDirectory(pathOf(key), path.Base(pathOf(key)), aws.ToTime(obj.LastModified), nil)
			} else {
				e = models.NewFile(pathOf(key), path.Base(key), size, aws.ToTime(obj.LastModified), nil)
			}
			rel := strings.TrimPrefix(strings.TrimPrefix(e.Path, root), "/")
			if filter.MatchPattern(rel, pattern) {
				entries = append(entries, e)
			}
		}
		if resp.NextContinuationToken == nil || *resp.NextContinuationToken == "" {
			break
		}
		token = resp.NextContinuationToken
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, nil
}

// listPage fetches one flat (non-delimited) page of keys under prefix.
func (p *Provider) listPage(ctx context.Context, prefix string, token *string) (*s3.ListObjectsV2Output, error) {
	var resp *s3.ListObjectsV2Output
	err := p.withRetry(ctx, "ListObjectsV2", func() error {
		r, err := p.s3().ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(p.bucket),
			Prefix:            aws.String(prefix),
			MaxKeys:           aws.Int32(constants.ListPageSize),
			ContinuationToken: token,
		})
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	return resp, err
}

func (p *Provider) dirExists(ctx context.Context, dir string) (bool, error) {
	prefix := prefixOf(dir)
	if prefix == "" {
		return true, nil
	}
	var found bool
	err := p.withRetry(ctx, "ListObjectsV2", func() error {
		resp, err := p.s3().ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:  aws.String(p.bucket),
			Prefix:  aws.String(prefix),
			MaxKeys: aws.Int32(1),
		})
		if err != nil {
			return err
		}
		found = aws.ToInt32(resp.KeyCount) > 0
		return nil
	})
	return found, err
}

func (p *Provider) copyObject(ctx context.Context, srcKey, dstKey string) error {
	source := url.PathEscape(p.bucket + "/" + srcKey)
	err := p.withRetry(ctx, "CopyObject", func() error {
		_, err := p.s3().CopyObject(ctx, &s3.CopyObjectInput{
			Bucket:     aws.String(p.bucket),
			Key:        aws.String(dstKey),
			CopySource: aws.String(source),
		})
		return err
	})
	if err != nil {
		return mapError(err)
	}
	return nil
}

func (p *Provider) deleteBatch(ctx context.Context, ids []s3types.ObjectIdentifier) error {
	var resp *s3.DeleteObjectsOutput
	err := p.withRetry(ctx, "DeleteObjects", func() error {
		r, err := p.s3().DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(p.bucket),
			Delete: &s3types.Delete{Objects: ids, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		return mapError(err)
	}
	if len(resp.Errors) > 0 {
		first := resp.Errors[0]
		return remotefs.Errorf(remotefs.KindIo, "delete %s: %s", aws.ToString(first.Key), aws.ToString(first.Message))
	}
	return nil
}

func (p *Provider) withRetry(ctx context.Context, op string, fn func() error) error {
	cfg := p.retry
	cfg.OnRetry = func(attempt int, err error, errorType httpx.ErrorType) {
		log.Debug().
			Str("op", op).
			Int("attempt", attempt).
			Str("class", httpx.ErrorTypeName(errorType)).
			Err(err).
			Msg("retrying s3 operation")
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

func (p *Provider) s3() *s3.Client {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.client
}

func (p *Provider) up() *manager.Uploader {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.uploader
}

// uploadStream bridges chunk writes into the streaming upload running
// on the other end of the pipe. finish closes the write side and joins
// the upload exactly once; later calls return the recorded result.
type uploadStream struct {
	pw   *io.PipeWriter
	done chan error
	once sync.Once
	err  error
}

func (s *uploadStream) Write(b []byte) (int, error) {
	return s.pw.Write(b)
}

func (s *uploadStream) Close() error {
	return s.finish()
}

func (s *uploadStream) finish() error {
	s.once.Do(func() {
		s.pw.Close()
		s.err = <-s.done
	})
	return s.err
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	var perr *remotefs.Error
	if errors.As(err, &perr) {
		return perr
	}
	if isNotFound(err) {
		return remotefs.NewError(remotefs.KindNoSuchFile, err)
	}
	lower := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lower, "accessdenied"),
		strings.Contains(lower, "access denied"),
		strings.Contains(lower, "403"):
		return remotefs.NewError(remotefs.KindPermissionDenied, err)
	case strings.Contains(lower, "nosuchbucket"):
		return remotefs.NewError(remotefs.KindConnection, err)
	}
	return remotefs.NewError(remotefs.KindIo, err)
}

func isNotFound(err error) bool {
	var noKey *s3types.NoSuchKey
	var notFound *s3types.NotFound
	if errors.As(err, &noKey) || errors.As(err, &notFound) {
		return true
	}
	return strings.Contains(err.Error(), "StatusCode: 404")
}

// isPlaceholder reports whether a key is a zero-byte directory marker.
func isPlaceholder(key string, size int64) bool {
	return strings.HasSuffix(key, "/") && size == 0
}

func clean(p string) string {
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}

// keyOf maps a provider path to an object key: "/a/b.txt" -> "a/b.txt".
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

// pathOf maps an object key or prefix back to a provider path.
func pathOf(key string) string {
	return "/" + strings.TrimSuffix(key, "/")
}
