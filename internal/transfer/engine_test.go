package transfer

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/flashlab/termscp/internal/events"
	"github.com/flashlab/termscp/internal/localfs"
	"github.com/flashlab/termscp/internal/logging"
	"github.com/flashlab/termscp/internal/models"
	"github.com/flashlab/termscp/internal/remotefs"
	"github.com/flashlab/termscp/internal/remotefs/memfs"
)

func testEngine(t *testing.T) (*Engine, *localfs.Host, *memfs.Provider, *events.EventBus) {
	t.Helper()
	host, err := localfs.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	mem := memfs.New()
	bus := events.NewEventBus(1024)
	log := logging.NewLogger(bus)
	log.SetOutput(io.Discard)
	return NewEngine(host, mem, log, bus), host, mem, bus
}

// engineWith rebuilds the engine around a wrapped provider or host,
// keeping the logger quiet.
func engineWith(t *testing.T, host LocalFs, client remotefs.Provider) (*Engine, *events.EventBus) {
	t.Helper()
	bus := events.NewEventBus(1024)
	log := logging.NewLogger(bus)
	log.SetOutput(io.Discard)
	return NewEngine(host, client, log, bus), bus
}

func writeLocal(t *testing.T, host *localfs.Host, rel string, data []byte) models.Entry {
	t.Helper()
	full := filepath.Join(host.Pwd(), rel)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		t.Fatal(err)
	}
	entry, err := host.Stat(full)
	if err != nil {
		t.Fatal(err)
	}
	return entry
}

func drainEvents(ch <-chan events.Event) []events.Event {
	var out []events.Event
	for {
		select {
		case ev := <-ch:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestSendSingleFile(t *testing.T) {
	eng, host, mem, bus := testEngine(t)
	entry := writeLocal(t, host, "report.txt", []byte("twenty bytes of data"))

	started := bus.Subscribe(events.EventTransferStarted)
	completed := bus.Subscribe(events.EventTransferCompleted)

	err := eng.Send(context.Background(), FilePayload(entry), "/dest", "")
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if got := mem.FileData("/dest/report.txt"); !bytes.Equal(got, []byte("twenty bytes of data")) {
		t.Errorf("remote content = %q", got)
	}
	if eng.State().Full().Total() != 20 || eng.State().Full().Transferred() != 20 {
		t.Errorf("full counter: total=%d transferred=%d, want 20/20",
			eng.State().Full().Total(), eng.State().Full().Transferred())
	}
	if got := eng.State().Full().Progress(); got != 1.0 {
		t.Errorf("progress = %f, want 1.0", got)
	}
	if len(drainEvents(started)) != 1 {
		t.Error("expected one transfer-started event")
	}
	if len(drainEvents(completed)) != 1 {
		t.Error("expected one transfer-completed event")
	}
}

func TestSendSingleFileRename(t *testing.T) {
	eng, host, mem, _ := testEngine(t)
	entry := writeLocal(t, host, "orig.txt", []byte("abc"))

	if err := eng.Send(context.Background(), FilePayload(entry), "/dest", "renamed.txt"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if !mem.Exists("/dest/renamed.txt") {
		t.Error("renamed file missing on remote")
	}
	if mem.Exists("/dest/orig.txt") {
		t.Error("original name used despite rename")
	}
}

func TestSendDirectoryTree(t *testing.T) {
	eng, host, mem, _ := testEngine(t)
	writeLocal(t, host, "proj/a.txt", bytes.Repeat([]byte("a"), 10))
	writeLocal(t, host, "proj/b.txt", bytes.Repeat([]byte("b"), 20))
	writeLocal(t, host, "proj/sub/c.txt", bytes.Repeat([]byte("c"), 5))
	root, err := host.Stat(filepath.Join(host.Pwd(), "proj"))
	if err != nil {
		t.Fatal(err)
	}

	if err := eng.Send(context.Background(), EntryPayload(root), "/up", ""); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if got := eng.State().Full().Total(); got != 35 {
		t.Errorf("aggregate total = %d, want 35", got)
	}
	if got := eng.State().Full().Transferred(); got != 35 {
		t.Errorf("transferred = %d, want 35", got)
	}
	for path, size := range map[string]int{
		"/up/proj/a.txt":     10,
		"/up/proj/b.txt":     20,
		"/up/proj/sub/c.txt": 5,
	} {
		if got := mem.FileData(path); len(got) != size {
			t.Errorf("%s: got %d bytes, want %d", path, len(got), size)
		}
	}
	if eng.State().FailedEntries() != 0 {
		t.Errorf("FailedEntries = %d, want 0", eng.State().FailedEntries())
	}
}

func TestSendDirectoryFilterSkipsFiles(t *testing.T) {
	eng, host, mem, _ := testEngine(t)
	writeLocal(t, host, "logs/app.log", bytes.Repeat([]byte("l"), 30))
	writeLocal(t, host, "logs/core.tmp", bytes.Repeat([]byte("t"), 50))
	writeLocal(t, host, "logs/old/app.log", bytes.Repeat([]byte("o"), 20))
	root, err := host.Stat(filepath.Join(host.Pwd(), "logs"))
	if err != nil {
		t.Fatal(err)
	}

	eng.SetFilter(func(entry models.Entry) bool {
		return strings.HasSuffix(entry.Name, ".log")
	})
	if err := eng.Send(context.Background(), EntryPayload(root), "/up", ""); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	// Totals only count files that pass the filter
	if got := eng.State().Full().Total(); got != 50 {
		t.Errorf("filtered total = %d, want 50", got)
	}
	if !mem.Exists("/up/logs/app.log") || !mem.Exists("/up/logs/old/app.log") {
		t.Error("matching files missing on remote")
	}
	if mem.Exists("/up/logs/core.tmp") {
		t.Error("filtered file was transferred")
	}
}

func TestSendRenameAppliesToTopLevelOnly(t *testing.T) {
	eng, host, mem, _ := testEngine(t)
	writeLocal(t, host, "dir/inner.txt", []byte("x"))
	writeLocal(t, host, "dir/nested/deep.txt", []byte("y"))
	root, err := host.Stat(filepath.Join(host.Pwd(), "dir"))
	if err != nil {
		t.Fatal(err)
	}

	if err := eng.Send(context.Background(), EntryPayload(root), "/d", "renamed"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if !mem.Exists("/d/renamed/inner.txt") {
		t.Error("child lost its name under renamed top-level dir")
	}
	if !mem.Exists("/d/renamed/nested/deep.txt") {
		t.Error("nested child not under renamed root")
	}
	if mem.Exists("/d/dir") {
		t.Error("original top-level name used despite rename")
	}
}

func TestSendBatch(t *testing.T) {
	eng, host, mem, _ := testEngine(t)
	e1 := writeLocal(t, host, "one.bin", bytes.Repeat([]byte("1"), 7))
	writeLocal(t, host, "pack/two.bin", bytes.Repeat([]byte("2"), 11))
	e2, err := host.Stat(filepath.Join(host.Pwd(), "pack"))
	if err != nil {
		t.Fatal(err)
	}

	if err := eng.Send(context.Background(), BatchPayload([]models.Entry{e1, e2}), "/batch", ""); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if got := eng.State().Full().Total(); got != 18 {
		t.Errorf("batch total = %d, want 18", got)
	}
	if !mem.Exists("/batch/one.bin") || !mem.Exists("/batch/pack/two.bin") {
		t.Error("batch entries missing on remote")
	}
}

// sendAbortRemote triggers an abort once a single stream has accepted
// `after` bytes.
type sendAbortRemote struct {
	*memfs.Provider
	after int64
	abort func()
}

func (s *sendAbortRemote) SendFile(ctx context.Context, local models.Entry, remotePath string) (io.WriteCloser, error) {
	w, err := s.Provider.SendFile(ctx, local, remotePath)
	if err != nil {
		return nil, err
	}
	return &abortWriter{w: w, after: s.after, abort: s.abort}, nil
}

type abortWriter struct {
	w       io.WriteCloser
	after   int64
	written int64
	abort   func()
}

func (a *abortWriter) Write(p []byte) (int, error) {
	n, err := a.w.Write(p)
	a.written += int64(n)
	if a.abort != nil && a.written >= a.after {
		a.abort()
		a.abort = nil
	}
	return n, err
}

func (a *abortWriter) Close() error { return a.w.Close() }

func TestSendAbortRemovesPartialKeepsEarlier(t *testing.T) {
	host, err := localfs.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	mem := memfs.New()
	wrapped := &sendAbortRemote{Provider: mem, after: 65536}
	eng, _ := engineWith(t, host, wrapped)
	wrapped.abort = eng.State().Abort

	small := writeLocal(t, host, "first.bin", bytes.Repeat([]byte("s"), 100))
	big := writeLocal(t, host, "second.bin", bytes.Repeat([]byte("b"), 150000))

	err = eng.Send(context.Background(), BatchPayload([]models.Entry{small, big}), "/up", "")
	if !IsAbrupted(err) {
		t.Fatalf("got %v, want abrupted", err)
	}

	// The file completed before the abort stays; the aborted partial is
	// probed and removed
	if !mem.Exists("/up/first.bin") {
		t.Error("earlier completed file was removed")
	}
	if mem.Exists("/up/second.bin") {
		t.Error("partial file left on remote after abort")
	}
}

// failRemote makes a stream error after accepting `allow` bytes.
type failRemote struct {
	*memfs.Provider
	allow int64
}

func (f *failRemote) SendFile(ctx context.Context, local models.Entry, remotePath string) (io.WriteCloser, error) {
	w, err := f.Provider.SendFile(ctx, local, remotePath)
	if err != nil {
		return nil, err
	}
	return &failWriter{w: w, allow: f.allow}, nil
}

type failWriter struct {
	w       io.WriteCloser
	allow   int64
	written int64
}

func (f *failWriter) Write(p []byte) (int, error) {
	if f.written+int64(len(p)) > f.allow {
		return 0, errors.New("remote write failed")
	}
	n, err := f.w.Write(p)
	f.written += int64(n)
	return n, err
}

func (f *failWriter) Close() error { return f.w.Close() }

func TestSendRemoteIoErrorCleansPartial(t *testing.T) {
	host, err := localfs.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	mem := memfs.New()
	eng, _ := engineWith(t, host, &failRemote{Provider: mem, allow: 65536})

	big := writeLocal(t, host, "big.bin", bytes.Repeat([]byte("x"), 150000))

	err = eng.Send(context.Background(), FilePayload(big), "/up", "")
	if r, ok := ReasonOf(err); !ok || r != ReasonRemoteIo {
		t.Fatalf("got %v, want remote I/O reason", err)
	}
	if mem.Exists("/up/big.bin") {
		t.Error("partial file left on remote after write error")
	}
}

func TestSendMkdirAlreadyExistsContinues(t *testing.T) {
	eng, host, mem, _ := testEngine(t)
	mem.PutDir("/up/data")
	writeLocal(t, host, "data/f.txt", []byte("payload"))
	root, err := host.Stat(filepath.Join(host.Pwd(), "data"))
	if err != nil {
		t.Fatal(err)
	}

	if err := eng.Send(context.Background(), EntryPayload(root), "/up", ""); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if !mem.Exists("/up/data/f.txt") {
		t.Error("file under pre-existing directory was not sent")
	}
	if eng.State().FailedEntries() != 0 {
		t.Errorf("FailedEntries = %d, want 0", eng.State().FailedEntries())
	}
}

func TestSendMkdirFailureSkipsSubtreeOnly(t *testing.T) {
	eng, host, mem, _ := testEngine(t)
	mem.FailMkdir("/up/bad", remotefs.Errorf(remotefs.KindIo, "mkdir denied"))
	writeLocal(t, host, "bad/hidden.txt", []byte("never"))
	good := writeLocal(t, host, "good.txt", []byte("sibling"))
	badDir, err := host.Stat(filepath.Join(host.Pwd(), "bad"))
	if err != nil {
		t.Fatal(err)
	}

	err = eng.Send(context.Background(), BatchPayload([]models.Entry{badDir, good}), "/up", "")
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if mem.Exists("/up/bad") || mem.Exists("/up/bad/hidden.txt") {
		t.Error("failed subtree partially materialized")
	}
	if !mem.Exists("/up/good.txt") {
		t.Error("sibling after failed subtree was not sent")
	}
	if eng.State().FailedEntries() != 1 {
		t.Errorf("FailedEntries = %d, want 1", eng.State().FailedEntries())
	}
}

// scanFailFs simulates a permission error scanning one local directory.
type scanFailFs struct {
	LocalFs
	failPath string
}

func (s scanFailFs) ScanDir(path string) ([]models.Entry, error) {
	if path == s.failPath {
		return nil, errors.New("permission denied")
	}
	return s.LocalFs.ScanDir(path)
}

func TestSendLocalScanFailure(t *testing.T) {
	host, err := localfs.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	writeLocal(t, host, "tree/top.txt", bytes.Repeat([]byte("t"), 10))
	writeLocal(t, host, "tree/sub/blocked.txt", bytes.Repeat([]byte("x"), 99))

	mem := memfs.New()
	wrapped := scanFailFs{LocalFs: host, failPath: filepath.Join(host.Pwd(), "tree", "sub")}
	eng, _ := engineWith(t, wrapped, mem)

	root, err := host.Stat(filepath.Join(host.Pwd(), "tree"))
	if err != nil {
		t.Fatal(err)
	}
	if err := eng.Send(context.Background(), EntryPayload(root), "/up", ""); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	// The unscannable subtree contributes zero to the total and its
	// contents never move, but siblings still complete
	if got := eng.State().Full().Total(); got != 10 {
		t.Errorf("total = %d, want 10", got)
	}
	if !mem.Exists("/up/tree/top.txt") {
		t.Error("sibling file was not sent")
	}
	if mem.Exists("/up/tree/sub/blocked.txt") {
		t.Error("file under unscannable dir was sent")
	}
	if eng.State().FailedEntries() == 0 {
		t.Error("scan failure not counted")
	}
}

func TestSendMissingLocalFile(t *testing.T) {
	eng, host, _, _ := testEngine(t)
	ghost := models.NewFile(filepath.Join(host.Pwd(), "ghost.txt"), "ghost.txt", 5, time.Now(), nil)

	err := eng.Send(context.Background(), FilePayload(ghost), "/up", "")
	if r, ok := ReasonOf(err); !ok || r != ReasonHost {
		t.Fatalf("got %v, want host reason", err)
	}
}

func TestRecvSingleFile(t *testing.T) {
	eng, host, mem, _ := testEngine(t)
	data := bytes.Repeat([]byte("d"), 100)
	mem.PutFile("/remote/data.bin", data, &models.Pex{Owner: 7, Group: 5, Others: 0})

	entry, err := mem.Stat(context.Background(), "/remote/data.bin")
	if err != nil {
		t.Fatal(err)
	}
	dest := filepath.Join(host.Pwd(), "data.bin")
	if err := eng.Recv(context.Background(), FilePayload(entry), dest, ""); err != nil {
		t.Fatalf("Recv failed: %v", err)
	}

	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("local content mismatch: %d bytes", len(got))
	}
	if eng.State().Full().Progress() != 1.0 {
		t.Errorf("progress = %f, want 1.0", eng.State().Full().Progress())
	}

	if runtime.GOOS != "windows" {
		info, err := os.Stat(dest)
		if err != nil {
			t.Fatal(err)
		}
		if info.Mode().Perm() != 0o750 {
			t.Errorf("mode = %o, want 750 (source permissions re-applied)", info.Mode().Perm())
		}
	}
}

func TestRecvDirectoryTree(t *testing.T) {
	eng, host, mem, _ := testEngine(t)
	mem.PutFile("/src/a.txt", bytes.Repeat([]byte("a"), 10), nil)
	mem.PutFile("/src/b.txt", bytes.Repeat([]byte("b"), 20), nil)
	mem.PutFile("/src/sub/c.txt", bytes.Repeat([]byte("c"), 5), nil)

	root, err := mem.Stat(context.Background(), "/src")
	if err != nil {
		t.Fatal(err)
	}
	if err := eng.Recv(context.Background(), EntryPayload(root), host.Pwd(), ""); err != nil {
		t.Fatalf("Recv failed: %v", err)
	}

	if got := eng.State().Full().Total(); got != 35 {
		t.Errorf("total = %d, want 35", got)
	}
	for rel, size := range map[string]int{
		"src/a.txt":     10,
		"src/b.txt":     20,
		"src/sub/c.txt": 5,
	} {
		info, err := os.Stat(filepath.Join(host.Pwd(), rel))
		if err != nil {
			t.Errorf("%s: %v", rel, err)
			continue
		}
		if info.Size() != int64(size) {
			t.Errorf("%s: %d bytes, want %d", rel, info.Size(), size)
		}
	}
}

func TestRecvDirectoryFilterSkipsFiles(t *testing.T) {
	eng, host, mem, _ := testEngine(t)
	mem.PutFile("/src/keep.csv", bytes.Repeat([]byte("k"), 40), nil)
	mem.PutFile("/src/skip.bin", bytes.Repeat([]byte("s"), 60), nil)
	mem.PutFile("/src/sub/more.csv", bytes.Repeat([]byte("m"), 10), nil)

	root, err := mem.Stat(context.Background(), "/src")
	if err != nil {
		t.Fatal(err)
	}
	eng.SetFilter(func(entry models.Entry) bool {
		return strings.HasSuffix(entry.Name, ".csv")
	})
	if err := eng.Recv(context.Background(), EntryPayload(root), host.Pwd(), ""); err != nil {
		t.Fatalf("Recv failed: %v", err)
	}

	if got := eng.State().Full().Total(); got != 50 {
		t.Errorf("filtered total = %d, want 50", got)
	}
	for _, rel := range []string{"src/keep.csv", "src/sub/more.csv"} {
		if _, err := os.Stat(filepath.Join(host.Pwd(), rel)); err != nil {
			t.Errorf("%s missing: %v", rel, err)
		}
	}
	if _, err := os.Stat(filepath.Join(host.Pwd(), "src", "skip.bin")); !os.IsNotExist(err) {
		t.Error("filtered file was downloaded")
	}
}

// recvAbortRemote serves file data in fixed chunks and aborts once a
// stream has yielded `after` bytes.
type recvAbortRemote struct {
	*memfs.Provider
	chunk int
	after int
	abort func()
}

func (r *recvAbortRemote) RecvFile(ctx context.Context, remote models.Entry) (io.ReadCloser, error) {
	rc, err := r.Provider.RecvFile(ctx, remote)
	if err != nil {
		return nil, err
	}
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, err
	}
	return &chunkReader{data: data, chunk: r.chunk, onRead: func(total int) {
		if total >= r.after {
			r.abort()
		}
	}}, nil
}

type chunkReader struct {
	data   []byte
	pos    int
	chunk  int
	onRead func(total int)
}

func (c *chunkReader) Read(p []byte) (int, error) {
	if c.pos >= len(c.data) {
		return 0, io.EOF
	}
	n := c.chunk
	if rest := len(c.data) - c.pos; n > rest {
		n = rest
	}
	if n > len(p) {
		n = len(p)
	}
	copy(p, c.data[c.pos:c.pos+n])
	c.pos += n
	if c.onRead != nil {
		c.onRead(c.pos)
	}
	return n, nil
}

func (c *chunkReader) Close() error { return nil }

func TestRecvAbortRemovesPartial(t *testing.T) {
	host, err := localfs.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	mem := memfs.New()
	mem.PutFile("/remote/file.bin", bytes.Repeat([]byte("r"), 100), nil)
	wrapped := &recvAbortRemote{Provider: mem, chunk: 40, after: 40}
	eng, _ := engineWith(t, host, wrapped)
	wrapped.abort = eng.State().Abort

	entry, err := mem.Stat(context.Background(), "/remote/file.bin")
	if err != nil {
		t.Fatal(err)
	}
	dest := filepath.Join(host.Pwd(), "file.bin")

	err = eng.Recv(context.Background(), FilePayload(entry), dest, "")
	if !IsAbrupted(err) {
		t.Fatalf("got %v, want abrupted", err)
	}
	if got := eng.State().Full().Transferred(); got != 40 {
		t.Errorf("transferred = %d, want 40", got)
	}
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Error("partial local file not removed after abort")
	}
}

func TestRecvAbortKeepsCompletedEntriesAndDirs(t *testing.T) {
	host, err := localfs.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	mem := memfs.New()
	mem.PutFile("/src/a.bin", bytes.Repeat([]byte("a"), 5), nil)
	mem.PutFile("/src/b.bin", bytes.Repeat([]byte("b"), 100), nil)
	wrapped := &recvAbortRemote{Provider: mem, chunk: 40, after: 40}
	eng, _ := engineWith(t, host, wrapped)
	wrapped.abort = eng.State().Abort

	root, err := mem.Stat(context.Background(), "/src")
	if err != nil {
		t.Fatal(err)
	}
	err = eng.Recv(context.Background(), EntryPayload(root), host.Pwd(), "")
	if !IsAbrupted(err) {
		t.Fatalf("got %v, want abrupted", err)
	}

	// a.bin finished before the abort and stays; b.bin's partial is
	// removed; the created directory is not pruned
	if _, err := os.Stat(filepath.Join(host.Pwd(), "src", "a.bin")); err != nil {
		t.Error("completed file removed by abort cleanup")
	}
	if _, err := os.Stat(filepath.Join(host.Pwd(), "src", "b.bin")); !os.IsNotExist(err) {
		t.Error("partial file not removed")
	}
	if info, err := os.Stat(filepath.Join(host.Pwd(), "src")); err != nil || !info.IsDir() {
		t.Error("partially populated directory should remain")
	}
}

func TestRecvShortRemoteStream(t *testing.T) {
	eng, host, mem, _ := testEngine(t)
	// Remote advertises 100 bytes but the stream only carries 60
	mem.PutFile("/remote/short.bin", bytes.Repeat([]byte("s"), 60), nil)
	entry := models.NewFile("/remote/short.bin", "short.bin", 100, time.Now(), nil)

	dest := filepath.Join(host.Pwd(), "short.bin")
	err := eng.Recv(context.Background(), FilePayload(entry), dest, "")
	if r, ok := ReasonOf(err); !ok || r != ReasonRemoteIo {
		t.Fatalf("got %v, want remote I/O reason", err)
	}
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("got %v, want unexpected EOF in chain", err)
	}
	// Read-side failure: the partial local file is deliberately kept
	if info, err := os.Stat(dest); err != nil || info.Size() != 60 {
		t.Error("local partial should remain after a remote read error")
	}
}

func TestRecvLocalMkdirFailure(t *testing.T) {
	eng, host, mem, _ := testEngine(t)
	mem.PutFile("/d/child.txt", []byte("x"), nil)
	// A local file occupies the directory's target path
	writeLocal(t, host, "d", []byte("in the way"))

	root, err := mem.Stat(context.Background(), "/d")
	if err != nil {
		t.Fatal(err)
	}
	if err := eng.Recv(context.Background(), EntryPayload(root), host.Pwd(), ""); err != nil {
		t.Fatalf("Recv returned %v, want nil (per-entry failure only)", err)
	}
	if eng.State().FailedEntries() != 1 {
		t.Errorf("FailedEntries = %d, want 1", eng.State().FailedEntries())
	}
	if _, err := os.Stat(filepath.Join(host.Pwd(), "d", "child.txt")); !os.IsNotExist(err) {
		t.Error("children materialized under failed directory")
	}
}

func TestRecvRenameTopLevelOnly(t *testing.T) {
	eng, host, mem, _ := testEngine(t)
	mem.PutFile("/src/inner.txt", []byte("z"), nil)

	root, err := mem.Stat(context.Background(), "/src")
	if err != nil {
		t.Fatal(err)
	}
	if err := eng.Recv(context.Background(), EntryPayload(root), host.Pwd(), "copy"); err != nil {
		t.Fatalf("Recv failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(host.Pwd(), "copy", "inner.txt")); err != nil {
		t.Error("child not under renamed directory")
	}
	if _, err := os.Stat(filepath.Join(host.Pwd(), "src")); !os.IsNotExist(err) {
		t.Error("original top-level name used despite rename")
	}
}

func TestRecvInsufficientDiskSpace(t *testing.T) {
	eng, host, mem, _ := testEngine(t)
	mem.PutFile("/remote/huge.bin", []byte("tiny"), nil)
	// The advertised size drives the preflight check
	entry := models.NewFile("/remote/huge.bin", "huge.bin", 1<<62, time.Now(), nil)

	dest := filepath.Join(host.Pwd(), "huge.bin")
	err := eng.Recv(context.Background(), FilePayload(entry), dest, "")
	if err == nil {
		t.Fatal("expected insufficient-space error")
	}
	if _, ok := ReasonOf(err); ok {
		t.Errorf("disk-space failure should not be a transfer reason: %v", err)
	}
	if _, serr := os.Stat(dest); !os.IsNotExist(serr) {
		t.Error("destination created despite failed preflight")
	}
}

func TestTotalSizeRemoteScanFailure(t *testing.T) {
	eng, _, mem, _ := testEngine(t)
	mem.PutFile("/tree/ok.txt", bytes.Repeat([]byte("o"), 30), nil)
	mem.PutFile("/tree/sub/hidden.txt", bytes.Repeat([]byte("h"), 70), nil)
	mem.FailList("/tree/sub", remotefs.Errorf(remotefs.KindIo, "list denied"))

	root, err := mem.Stat(context.Background(), "/tree")
	if err != nil {
		t.Fatal(err)
	}
	if got := eng.TotalSizeRemote(context.Background(), root); got != 30 {
		t.Errorf("total = %d, want 30 (failed subtree contributes zero)", got)
	}
}

func TestContextCancellationAborts(t *testing.T) {
	host, err := localfs.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	mem := memfs.New()
	eng, _ := engineWith(t, host, mem)

	big := writeLocal(t, host, "big.bin", bytes.Repeat([]byte("x"), 200000))

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // cancelled before the first poll

	err = eng.Send(ctx, FilePayload(big), "/up", "")
	if !IsAbrupted(err) {
		t.Fatalf("got %v, want abrupted", err)
	}
	if mem.Exists("/up/big.bin") {
		t.Error("partial file left after context cancellation")
	}
}

func TestRefreshHookRunsPerEntry(t *testing.T) {
	eng, host, _, _ := testEngine(t)
	writeLocal(t, host, "r/x.txt", []byte("1"))
	writeLocal(t, host, "r/y.txt", []byte("2"))
	root, err := host.Stat(filepath.Join(host.Pwd(), "r"))
	if err != nil {
		t.Fatal(err)
	}

	var calls int
	eng.SetRefresh(func() { calls++ })

	if err := eng.Send(context.Background(), EntryPayload(root), "/up", ""); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	// One per file plus one for the directory frame
	if calls != 3 {
		t.Errorf("refresh ran %d times, want 3", calls)
	}
}

func TestProgressEventsPublished(t *testing.T) {
	eng, host, _, bus := testEngine(t)
	entry := writeLocal(t, host, "p.bin", bytes.Repeat([]byte("p"), 1000))

	progress := bus.Subscribe(events.EventProgress)
	if err := eng.Send(context.Background(), FilePayload(entry), "/up", ""); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	evs := drainEvents(progress)
	if len(evs) == 0 {
		t.Fatal("no progress events published")
	}
	last, ok := evs[len(evs)-1].(events.ProgressEvent)
	if !ok {
		t.Fatalf("unexpected event type %T", evs[len(evs)-1])
	}
	if last.Full != 1.0 {
		t.Errorf("final full progress = %f, want 1.0", last.Full)
	}
	if last.Transferred != 1000 || last.Total != 1000 {
		t.Errorf("final counters = %d/%d, want 1000/1000", last.Transferred, last.Total)
	}
}
