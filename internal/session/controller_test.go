package session

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/flashlab/termscp/internal/config"
	"github.com/flashlab/termscp/internal/events"
	"github.com/flashlab/termscp/internal/localfs"
	"github.com/flashlab/termscp/internal/logging"
	"github.com/flashlab/termscp/internal/models"
	"github.com/flashlab/termscp/internal/remotefs"
	"github.com/flashlab/termscp/internal/remotefs/memfs"
	"github.com/flashlab/termscp/internal/transfer"
)

func testController(t *testing.T) (*Controller, *memfs.Provider, *events.EventBus) {
	t.Helper()
	host, err := localfs.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	mem := memfs.New()
	bus := events.NewEventBus(1024)
	log := logging.NewLogger(bus)
	log.SetOutput(io.Discard)
	return NewController(host, mem, config.Default(), log, bus), mem, bus
}

func writeLocalFile(t *testing.T, ctl *Controller, rel string, data []byte) models.Entry {
	t.Helper()
	full := filepath.Join(ctl.LocalPwd(), rel)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		t.Fatal(err)
	}
	entry, err := ctl.LocalStat(full)
	if err != nil {
		t.Fatal(err)
	}
	return entry
}

func TestConnectLoadsListings(t *testing.T) {
	ctl, mem, bus := testController(t)
	mem.PutFile("/remote.txt", []byte("abc"), nil)
	writeLocalFile(t, ctl, "local.txt", []byte("xyz"))

	connected := bus.Subscribe(events.EventSessionConnected)
	if err := ctl.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if !ctl.IsConnected() {
		t.Error("controller should report connected")
	}
	if _, ok := ctl.Remote().Get("remote.txt"); !ok {
		t.Error("remote listing missing seeded file")
	}
	if _, ok := ctl.Local().Get("local.txt"); !ok {
		t.Error("local listing missing seeded file")
	}

	select {
	case ev := <-connected:
		se, ok := ev.(*events.SessionEvent)
		if !ok || se.SessionID != ctl.ID() {
			t.Errorf("unexpected session event: %+v", ev)
		}
	default:
		t.Error("no session-connected event published")
	}
}

// failingConnect wraps memfs so Connect fails without a network.
type failingConnect struct {
	*memfs.Provider
	err error
}

func (f *failingConnect) Connect(ctx context.Context) error { return f.err }

func TestConnectFailureIsFatal(t *testing.T) {
	host, err := localfs.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	boom := remotefs.NewErrorMsg(remotefs.KindConnection, "bucket unreachable")
	client := &failingConnect{Provider: memfs.New(), err: boom}
	bus := events.NewEventBus(8)
	log := logging.NewLogger(bus)
	log.SetOutput(io.Discard)
	ctl := NewController(host, client, config.Default(), log, bus)

	connected := bus.Subscribe(events.EventSessionConnected)
	if err := ctl.Connect(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("Connect error = %v, want wrapped %v", err, boom)
	}
	select {
	case <-connected:
		t.Error("session event published despite failed connect")
	default:
	}
}

func TestDisconnectPublishesEvent(t *testing.T) {
	ctl, _, bus := testController(t)
	if err := ctl.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}

	disconnected := bus.Subscribe(events.EventSessionDisconnected)
	if err := ctl.Disconnect(); err != nil {
		t.Fatalf("Disconnect failed: %v", err)
	}
	if ctl.IsConnected() {
		t.Error("still connected after Disconnect")
	}
	select {
	case <-disconnected:
	default:
		t.Error("no session-disconnected event published")
	}

	// A second disconnect is a no-op.
	if err := ctl.Disconnect(); err != nil {
		t.Errorf("second Disconnect: %v", err)
	}
}

func TestLocalChangeDirPushdAndPop(t *testing.T) {
	ctl, _, _ := testController(t)
	root := ctl.LocalPwd()
	sub := filepath.Join(root, "sub")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}

	if err := ctl.LocalChangeDir("sub", true); err != nil {
		t.Fatalf("LocalChangeDir failed: %v", err)
	}
	if got := ctl.LocalPwd(); got != sub {
		t.Errorf("pwd = %s, want %s", got, sub)
	}
	if err := ctl.PopDirLocal(); err != nil {
		t.Fatalf("PopDirLocal failed: %v", err)
	}
	if got := ctl.LocalPwd(); got != root {
		t.Errorf("pwd after pop = %s, want %s", got, root)
	}

	// Popping an empty stack changes nothing.
	if err := ctl.PopDirLocal(); err != nil {
		t.Fatalf("PopDirLocal on empty stack: %v", err)
	}
	if got := ctl.LocalPwd(); got != root {
		t.Errorf("pwd after empty pop = %s, want %s", got, root)
	}
}

func TestRemoteChangeDirRelative(t *testing.T) {
	ctl, mem, _ := testController(t)
	if err := ctl.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	mem.PutDir("/up/loads")

	if err := ctl.RemoteChangeDir(context.Background(), "up", true); err != nil {
		t.Fatalf("RemoteChangeDir failed: %v", err)
	}
	if got := ctl.RemotePwd(); got != "/up" {
		t.Errorf("remote pwd = %s, want /up", got)
	}
	if err := ctl.RemoteChangeDir(context.Background(), "loads", true); err != nil {
		t.Fatal(err)
	}
	if got := ctl.RemotePwd(); got != "/up/loads" {
		t.Errorf("remote pwd = %s, want /up/loads", got)
	}
	if err := ctl.PopDirRemote(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := ctl.RemotePwd(); got != "/up" {
		t.Errorf("remote pwd after pop = %s, want /up", got)
	}
}

func TestSendRefreshesRemoteListing(t *testing.T) {
	ctl, mem, _ := testController(t)
	if err := ctl.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	entry := writeLocalFile(t, ctl, "notes.txt", []byte("hello"))

	if err := ctl.Send(context.Background(), transfer.FilePayload(entry), "", ""); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if got := mem.FileData("/notes.txt"); !bytes.Equal(got, []byte("hello")) {
		t.Errorf("remote content = %q", got)
	}
	if _, ok := ctl.Remote().Get("notes.txt"); !ok {
		t.Error("remote listing not refreshed after send")
	}
}

func TestRecvRefreshesLocalListing(t *testing.T) {
	ctl, mem, _ := testController(t)
	if err := ctl.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	mem.PutFile("/data.bin", []byte("payload"), nil)
	remote, err := ctl.RemoteStat(context.Background(), "data.bin")
	if err != nil {
		t.Fatal(err)
	}

	if err := ctl.Recv(context.Background(), transfer.FilePayload(remote), "data.bin", ""); err != nil {
		t.Fatalf("Recv failed: %v", err)
	}
	got, err := os.ReadFile(filepath.Join(ctl.LocalPwd(), "data.bin"))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, []byte("payload")) {
		t.Errorf("local content = %q", got)
	}
	if _, ok := ctl.Local().Get("data.bin"); !ok {
		t.Error("local listing not refreshed after recv")
	}
}

func TestDownloadFileAsTemp(t *testing.T) {
	ctl, mem, _ := testController(t)
	if err := ctl.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	mem.PutFile("/doc.pdf", []byte("%PDF"), nil)
	remote, err := ctl.RemoteStat(context.Background(), "/doc.pdf")
	if err != nil {
		t.Fatal(err)
	}
	localBefore := len(ctl.Local().Entries())

	path, err := ctl.DownloadFileAsTemp(context.Background(), remote)
	if err != nil {
		t.Fatalf("DownloadFileAsTemp failed: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(filepath.Dir(path)) })

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, []byte("%PDF")) {
		t.Errorf("temp content = %q", got)
	}
	if filepath.Base(path) != "doc.pdf" {
		t.Errorf("temp file name = %s, want doc.pdf", filepath.Base(path))
	}
	if got := len(ctl.Local().Entries()); got != localBefore {
		t.Errorf("local listing changed: %d -> %d entries", localBefore, got)
	}
}

func TestFindRemoteWalk(t *testing.T) {
	ctl, mem, _ := testController(t)
	if err := ctl.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	mem.PutFile("/a.txt", []byte("1"), nil)
	mem.PutFile("/sub/b.txt", []byte("2"), nil)
	mem.PutFile("/sub/deep/c.log", []byte("3"), nil)

	found, err := ctl.FindRemote(context.Background(), "*.txt")
	if err != nil {
		t.Fatalf("FindRemote failed: %v", err)
	}
	want := []string{"/a.txt", "/sub/b.txt"}
	if len(found) != len(want) {
		t.Fatalf("found %d entries, want %d: %+v", len(found), len(want), found)
	}
	for i, p := range want {
		if found[i].Path != p {
			t.Errorf("found[%d] = %s, want %s", i, found[i].Path, p)
		}
	}
}

func TestFindLocal(t *testing.T) {
	ctl, _, _ := testController(t)
	writeLocalFile(t, ctl, "one.dat", []byte("1"))
	writeLocalFile(t, ctl, "nested/two.dat", []byte("2"))
	writeLocalFile(t, ctl, "nested/skip.txt", []byte("3"))

	found, err := ctl.FindLocal("*.dat")
	if err != nil {
		t.Fatalf("FindLocal failed: %v", err)
	}
	if len(found) != 2 {
		t.Fatalf("found %d entries, want 2: %+v", len(found), found)
	}
	// Sorted by path, so nested/two.dat comes before one.dat.
	if found[0].Name != "two.dat" || found[1].Name != "one.dat" {
		t.Errorf("found = %s, %s", found[0].Name, found[1].Name)
	}
}

func TestFindRejectsBadPattern(t *testing.T) {
	ctl, _, _ := testController(t)
	if err := ctl.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := ctl.FindLocal("["); err == nil {
		t.Error("FindLocal accepted malformed pattern")
	}
	if _, err := ctl.FindRemote(context.Background(), "["); err == nil {
		t.Error("FindRemote accepted malformed pattern")
	}
}

func TestLocalMkdirReloadsListing(t *testing.T) {
	ctl, _, _ := testController(t)
	if err := ctl.LocalMkdir("fresh"); err != nil {
		t.Fatalf("LocalMkdir failed: %v", err)
	}
	info, err := os.Stat(filepath.Join(ctl.LocalPwd(), "fresh"))
	if err != nil || !info.IsDir() {
		t.Fatalf("directory not created: %v", err)
	}
	if e, ok := ctl.Local().Get("fresh"); !ok || !e.IsDir {
		t.Error("listing missing created directory")
	}
}

func TestRemoteMkdirExistingSurfacesError(t *testing.T) {
	ctl, mem, bus := testController(t)
	if err := ctl.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	mem.PutDir("/taken")
	alerts := bus.Subscribe(events.EventAlert)

	err := ctl.RemoteMkdir(context.Background(), "taken")
	if !remotefs.IsAlreadyExists(err) {
		t.Fatalf("err = %v, want already-exists kind", err)
	}
	select {
	case <-alerts:
	default:
		t.Error("no alert published for failed mkdir")
	}
}

func TestRemoteRemoveReloadsListing(t *testing.T) {
	ctl, mem, _ := testController(t)
	if err := ctl.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	mem.PutFile("/junk.tmp", []byte("x"), nil)
	if err := ctl.ReloadRemoteDir(context.Background()); err != nil {
		t.Fatal(err)
	}
	entry, ok := ctl.Remote().Get("junk.tmp")
	if !ok {
		t.Fatal("seed file missing from listing")
	}

	if err := ctl.RemoteRemove(context.Background(), entry); err != nil {
		t.Fatalf("RemoteRemove failed: %v", err)
	}
	if mem.Exists("/junk.tmp") {
		t.Error("file still present on remote")
	}
	if _, ok := ctl.Remote().Get("junk.tmp"); ok {
		t.Error("listing still shows removed file")
	}
}

func TestLocalRenameReloadsListing(t *testing.T) {
	ctl, _, _ := testController(t)
	entry := writeLocalFile(t, ctl, "old.txt", []byte("x"))

	if err := ctl.LocalRename(entry, "new.txt"); err != nil {
		t.Fatalf("LocalRename failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(ctl.LocalPwd(), "new.txt")); err != nil {
		t.Errorf("renamed file missing: %v", err)
	}
	if _, ok := ctl.Local().Get("old.txt"); ok {
		t.Error("listing still shows the old name")
	}
	if _, ok := ctl.Local().Get("new.txt"); !ok {
		t.Error("listing missing the new name")
	}
}

func TestRemoteRenameRelativeDestination(t *testing.T) {
	ctl, mem, _ := testController(t)
	if err := ctl.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	mem.PutFile("/report.txt", []byte("q3"), nil)
	entry, err := ctl.RemoteStat(context.Background(), "report.txt")
	if err != nil {
		t.Fatal(err)
	}

	if err := ctl.RemoteRename(context.Background(), entry, "archived.txt"); err != nil {
		t.Fatalf("RemoteRename failed: %v", err)
	}
	if !mem.Exists("/archived.txt") || mem.Exists("/report.txt") {
		t.Error("rename did not move the file")
	}
}

func TestTotalSizeRemote(t *testing.T) {
	ctl, mem, _ := testController(t)
	if err := ctl.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	mem.PutFile("/tree/a", bytes.Repeat([]byte("x"), 10), nil)
	mem.PutFile("/tree/sub/b", bytes.Repeat([]byte("y"), 25), nil)
	entry, err := ctl.RemoteStat(context.Background(), "/tree")
	if err != nil {
		t.Fatal(err)
	}
	if got := ctl.TotalSizeRemote(context.Background(), entry); got != 35 {
		t.Errorf("total = %d, want 35", got)
	}
}

func TestReloadRemoteDirFailureKeepsStaleListing(t *testing.T) {
	ctl, mem, _ := testController(t)
	if err := ctl.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	mem.PutFile("/keep.txt", []byte("k"), nil)
	if err := ctl.ReloadRemoteDir(context.Background()); err != nil {
		t.Fatal(err)
	}

	mem.FailList("/", remotefs.NewErrorMsg(remotefs.KindIo, "listing backend down"))
	if err := ctl.ReloadRemoteDir(context.Background()); err == nil {
		t.Fatal("expected reload error")
	}
	if _, ok := ctl.Remote().Get("keep.txt"); !ok {
		t.Error("listing cleared on failed reload")
	}
}
