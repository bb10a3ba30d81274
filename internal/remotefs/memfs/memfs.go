// Package memfs implements an in-memory remote provider. It backs the
// mem:// scheme for trying the client without credentials, and gives
// the engine and session tests a remote with controllable failures.
package memfs

import (
	"bytes"
	"context"
	"io"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/flashlab/termscp/internal/models"
	"github.com/flashlab/termscp/internal/remotefs"
)

type node struct {
	isDir   bool
	data    []byte
	pex     *models.Pex
	modTime time.Time
}

// Provider is a map-backed remote filesystem. All paths are clean,
// slash-separated and absolute; the root directory always exists.
type Provider struct {
	mu        sync.RWMutex
	nodes     map[string]*node
	wrkdir    string
	connected bool

	listErr  map[string]error
	mkdirErr map[string]error
}

// New creates an empty in-memory provider rooted at "/".
func New() *Provider {
	return &Provider{
		nodes: map[string]*node{
			"/": {isDir: true, modTime: time.Now()},
		},
		wrkdir:   "/",
		listErr:  make(map[string]error),
		mkdirErr: make(map[string]error),
	}
}

// Connect marks the provider connected.
func (p *Provider) Connect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
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

// IsConnected reports whether Connect has been called.
func (p *Provider) IsConnected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.connected
}

// Description identifies the endpoint for logs.
func (p *Provider) Description() string {
	return "mem://"
}

// Pwd returns the current remote working directory.
func (p *Provider) Pwd() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.wrkdir
}

// ChangeDir moves the working directory. The target must exist and be
// a directory.
func (p *Provider) ChangeDir(ctx context.Context, dir string) error {
	dir = clean(dir)
	p.mu.Lock()
	defer p.mu.Unlock()
	n, ok := p.nodes[dir]
	if !ok {
		return remotefs.Errorf(remotefs.KindNoSuchFile, "no such directory: %s", dir)
	}
	if !n.isDir {
		return remotefs.Errorf(remotefs.KindIo, "not a directory: %s", dir)
	}
	p.wrkdir = dir
	return nil
}

// List returns the direct children of dir, sorted by name.
func (p *Provider) List(ctx context.Context, dir string) ([]models.Entry, error) {
	dir = clean(dir)
	p.mu.RLock()
	defer p.mu.RUnlock()
	if err, ok := p.listErr[dir]; ok {
		return nil, err
	}
	n, ok := p.nodes[dir]
	if !ok {
		return nil, remotefs.Errorf(remotefs.KindNoSuchFile, "no such directory: %s", dir)
	}
	if !n.isDir {
		return nil, remotefs.Errorf(remotefs.KindIo, "not a directory: %s", dir)
	}

	var entries []models.Entry
	for p2, n2 := range p.nodes {
		if parentOf(p2) == dir && p2 != "/" {
			entries = append(entries, entryOf(p2, n2))
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

// Stat returns the entry at the given path.
func (p *Provider) Stat(ctx context.Context, target string) (models.Entry, error) {
	target = clean(target)
	p.mu.RLock()
	defer p.mu.RUnlock()
	n, ok := p.nodes[target]
	if !ok {
		return models.Entry{}, remotefs.Errorf(remotefs.KindNoSuchFile, "no such file or directory: %s", target)
	}
	return entryOf(target, n), nil
}

// Mkdir creates a directory. The parent must already exist; an existing
// directory reports the distinguishable already-exists kind.
func (p *Provider) Mkdir(ctx context.Context, dir string) error {
	dir = clean(dir)
	p.mu.Lock()
	defer p.mu.Unlock()
	if err, ok := p.mkdirErr[dir]; ok {
		return err
	}
	if _, ok := p.nodes[dir]; ok {
		return remotefs.Errorf(remotefs.KindAlreadyExists, "directory already exists: %s", dir)
	}
	parent, ok := p.nodes[parentOf(dir)]
	if !ok || !parent.isDir {
		return remotefs.Errorf(remotefs.KindNoSuchFile, "no such directory: %s", parentOf(dir))
	}
	p.nodes[dir] = &node{isDir: true, modTime: time.Now()}
	return nil
}

// Remove deletes an entry. Directories are removed with their whole
// subtree.
func (p *Provider) Remove(ctx context.Context, entry models.Entry) error {
	target := clean(entry.Path)
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.nodes[target]; !ok {
		return remotefs.Errorf(remotefs.KindNoSuchFile, "no such file or directory: %s", target)
	}
	delete(p.nodes, target)
	prefix := target + "/"
	for p2 := range p.nodes {
		if strings.HasPrefix(p2, prefix) {
			delete(p.nodes, p2)
		}
	}
	return nil
}

// Rename moves an entry and, for directories, its whole subtree.
func (p *Provider) Rename(ctx context.Context, entry models.Entry, dst string) error {
	src := clean(entry.Path)
	dst = clean(dst)
	p.mu.Lock()
	defer p.mu.Unlock()
	n, ok := p.nodes[src]
	if !ok {
		return remotefs.Errorf(remotefs.KindNoSuchFile, "no such file or directory: %s", src)
	}
	if parent, ok := p.nodes[parentOf(dst)]; !ok || !parent.isDir {
		return remotefs.Errorf(remotefs.KindNoSuchFile, "no such directory: %s", parentOf(dst))
	}
	delete(p.nodes, src)
	p.nodes[dst] = n
	prefix := src + "/"
	for p2, n2 := range p.nodes {
		if strings.HasPrefix(p2, prefix) {
			delete(p.nodes, p2)
			p.nodes[dst+"/"+strings.TrimPrefix(p2, prefix)] = n2
		}
	}
	return nil
}

// SendFile opens a write stream for remotePath. Data is committed when
// the stream is finalized through OnSent.
func (p *Provider) SendFile(ctx context.Context, local models.Entry, remotePath string) (io.WriteCloser, error) {
	remotePath = clean(remotePath)
	p.mu.RLock()
	parent, ok := p.nodes[parentOf(remotePath)]
	p.mu.RUnlock()
	if !ok || !parent.isDir {
		return nil, remotefs.Errorf(remotefs.KindNoSuchFile, "no such directory: %s", parentOf(remotePath))
	}
	return &memWriter{fs: p, path: remotePath, pex: local.Pex}, nil
}

// RecvFile opens a read stream over the stored file data.
func (p *Provider) RecvFile(ctx context.Context, remote models.Entry) (io.ReadCloser, error) {
	target := clean(remote.Path)
	p.mu.RLock()
	defer p.mu.RUnlock()
	n, ok := p.nodes[target]
	if !ok {
		return nil, remotefs.Errorf(remotefs.KindNoSuchFile, "no such file: %s", target)
	}
	if n.isDir {
		return nil, remotefs.Errorf(remotefs.KindIo, "is a directory: %s", target)
	}
	return io.NopCloser(bytes.NewReader(n.data)), nil
}

// OnSent finalizes a write stream, committing the received bytes.
func (p *Provider) OnSent(stream io.WriteCloser) error {
	return stream.Close()
}

// OnRecv finalizes a read stream.
func (p *Provider) OnRecv(stream io.ReadCloser) error {
	return stream.Close()
}

// PutFile seeds a file, creating parent directories as needed.
func (p *Provider) PutFile(target string, data []byte, pex *models.Pex) {
	target = clean(target)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ensureDirs(parentOf(target))
	p.nodes[target] = &node{data: append([]byte(nil), data...), pex: pex, modTime: time.Now()}
}

// PutDir seeds a directory, creating parents as needed.
func (p *Provider) PutDir(target string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ensureDirs(clean(target))
}

// FileData returns a copy of a stored file's bytes, or nil if absent.
func (p *Provider) FileData(target string) []byte {
	p.mu.RLock()
	defer p.mu.RUnlock()
	n, ok := p.nodes[clean(target)]
	if !ok || n.isDir {
		return nil
	}
	return append([]byte(nil), n.data...)
}

// Exists reports whether a path holds a file or directory.
func (p *Provider) Exists(target string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.nodes[clean(target)]
	return ok
}

// FailList makes List fail for the given directory.
func (p *Provider) FailList(dir string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listErr[clean(dir)] = err
}

// FailMkdir makes Mkdir fail for the given directory.
func (p *Provider) FailMkdir(dir string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mkdirErr[clean(dir)] = err
}

func (p *Provider) ensureDirs(dir string) {
	for d := dir; ; d = parentOf(d) {
		if _, ok := p.nodes[d]; !ok {
			p.nodes[d] = &node{isDir: true, modTime: time.Now()}
		}
		if d == "/" {
			break
		}
	}
}

// memWriter accumulates stream bytes and commits them on Close.
type memWriter struct {
	fs     *Provider
	path   string
	pex    *models.Pex
	buf    bytes.Buffer
	closed bool
}

func (w *memWriter) Write(b []byte) (int, error) {
	return w.buf.Write(b)
}

func (w *memWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	w.fs.mu.Lock()
	defer w.fs.mu.Unlock()
	w.fs.nodes[w.path] = &node{data: w.buf.Bytes(), pex: w.pex, modTime: time.Now()}
	return nil
}

func entryOf(target string, n *node) models.Entry {
	if n.isDir {
		return models.NewDirectory(target, path.Base(target), n.modTime, n.pex)
	}
	return models.NewFile(target, path.Base(target), int64(len(n.data)), n.modTime, n.pex)
}

func clean(p string) string {
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}

func parentOf(p string) string {
	return path.Dir(clean(p))
}
