package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/flashlab/termscp/internal/config"
	"github.com/flashlab/termscp/internal/events"
	"github.com/flashlab/termscp/internal/filter"
	"github.com/flashlab/termscp/internal/localfs"
	"github.com/flashlab/termscp/internal/logging"
	"github.com/flashlab/termscp/internal/models"
	"github.com/flashlab/termscp/internal/pathutil"
	"github.com/flashlab/termscp/internal/remotefs"
	"github.com/flashlab/termscp/internal/transfer"
)

// Controller owns one session end to end. It wires the transfer engine
// to the local host and remote provider, keeps the two explorers
// truthful by reloading the affected listing after every mutating
// operation, and translates command requests into engine and provider
// calls.
//
// A controller drives one transfer at a time; it is not safe for
// concurrent use from multiple goroutines.
type Controller struct {
	id     string
	host   *localfs.Host
	client remotefs.Provider
	engine *transfer.Engine
	bus    *events.EventBus
	log    *logging.Logger

	local  *Explorer
	remote *Explorer
}

// NewController wires a session from its parts. The engine is created
// here, so callers hand over a host and a provider and get a ready
// surface back. A nil bus or logger is replaced with a default one.
func NewController(host *localfs.Host, client remotefs.Provider, cfg *config.Config, log *logging.Logger, bus *events.EventBus) *Controller {
	if bus == nil {
		bus = events.NewEventBus(0)
	}
	if log == nil {
		log = logging.NewLogger(bus)
	}
	groupDirs := ""
	if cfg != nil {
		groupDirs = cfg.Transfer.GroupDirs
	}
	return &Controller{
		id:     uuid.NewString(),
		host:   host,
		client: client,
		engine: transfer.NewEngine(host, client, log, bus),
		bus:    bus,
		log:    log,
		local:  NewExplorer(groupDirs),
		remote: NewExplorer(groupDirs),
	}
}

// ID returns the session identifier.
func (c *Controller) ID() string {
	return c.id
}

// Local returns the local-side explorer.
func (c *Controller) Local() *Explorer {
	return c.local
}

// Remote returns the remote-side explorer.
func (c *Controller) Remote() *Explorer {
	return c.remote
}

// LocalPwd returns the local working directory.
func (c *Controller) LocalPwd() string {
	return c.host.Pwd()
}

// RemotePwd returns the remote working directory.
func (c *Controller) RemotePwd() string {
	return c.client.Pwd()
}

// Description returns the remote endpoint description, e.g. "s3://bucket".
func (c *Controller) Description() string {
	return c.client.Description()
}

// IsConnected reports whether the remote session is established.
func (c *Controller) IsConnected() bool {
	return c.client.IsConnected()
}

// Connect establishes the remote session and loads both initial
// listings. A connection failure is fatal to the session and is
// returned rather than alerted; listing failures after a successful
// connect are only logged.
func (c *Controller) Connect(ctx context.Context) error {
	if err := c.client.Connect(ctx); err != nil {
		c.log.Error().Err(err).Str("remote", c.client.Description()).Msg("Connection failed")
		return fmt.Errorf("failed to connect to %s: %w", c.client.Description(), err)
	}
	c.log.Info().Str("remote", c.client.Description()).Msg("Connected")
	c.bus.PublishSession(events.EventSessionConnected, c.id, c.client.Description(), nil)

	if err := c.ReloadLocalDir(); err != nil {
		c.log.Errorf("Could not load local directory: %s", err)
	}
	if err := c.ReloadRemoteDir(ctx); err != nil {
		c.log.Errorf("Could not load remote directory: %s", err)
	}
	return nil
}

// Disconnect closes the remote session. Disconnecting a session that
// never connected is a no-op.
func (c *Controller) Disconnect() error {
	if !c.client.IsConnected() {
		return nil
	}
	err := c.client.Disconnect()
	c.bus.PublishSession(events.EventSessionDisconnected, c.id, c.client.Description(), err)
	if err != nil {
		return fmt.Errorf("failed to disconnect from %s: %w", c.client.Description(), err)
	}
	c.log.Info().Str("remote", c.client.Description()).Msg("Disconnected")
	return nil
}

// ReloadLocalDir refreshes the local explorer from the host working
// directory.
func (c *Controller) ReloadLocalDir() error {
	wrkdir := c.host.Pwd()
	entries, err := c.host.ScanDir(wrkdir)
	if err != nil {
		c.log.Errorf("Could not scan directory %q: %s", wrkdir, err)
		return err
	}
	c.local.SetWrkdir(wrkdir)
	c.local.SetEntries(entries)
	return nil
}

// ReloadRemoteDir refreshes the remote explorer from the provider
// working directory.
func (c *Controller) ReloadRemoteDir(ctx context.Context) error {
	wrkdir := c.client.Pwd()
	entries, err := c.client.List(ctx, wrkdir)
	if err != nil {
		c.log.Errorf("Could not scan directory %q: %s", wrkdir, err)
		return err
	}
	c.remote.SetWrkdir(wrkdir)
	c.remote.SetEntries(entries)
	return nil
}

// LocalChangeDir moves the local working directory. Relative paths
// resolve against the current directory. With pushd the previous
// directory is recorded for PopDirLocal.
func (c *Controller) LocalChangeDir(path string, pushd bool) error {
	prev := c.host.Pwd()
	if err := c.host.ChangeWrkdir(path); err != nil {
		c.log.Errorf("Could not change directory to %q: %s", path, err)
		return err
	}
	if pushd && prev != c.host.Pwd() {
		c.local.PushDir(prev)
	}
	c.log.Debugf("Changed local directory to %q", c.host.Pwd())
	return c.ReloadLocalDir()
}

// RemoteChangeDir moves the remote working directory. Relative paths
// resolve against the current remote directory. With pushd the previous
// directory is recorded for PopDirRemote.
func (c *Controller) RemoteChangeDir(ctx context.Context, path string, pushd bool) error {
	prev := c.client.Pwd()
	target := pathutil.AbsolutizeRemote(prev, path)
	if err := c.client.ChangeDir(ctx, target); err != nil {
		c.log.Errorf("Could not change directory to %q: %s", target, err)
		return err
	}
	if pushd && prev != c.client.Pwd() {
		c.remote.PushDir(prev)
	}
	c.log.Debugf("Changed remote directory to %q", c.client.Pwd())
	return c.ReloadRemoteDir(ctx)
}

// PopDirLocal returns to the most recently pushed local directory.
// An empty stack is a no-op.
func (c *Controller) PopDirLocal() error {
	prev, ok := c.local.PopDir()
	if !ok {
		return nil
	}
	return c.LocalChangeDir(prev, false)
}

// PopDirRemote returns to the most recently pushed remote directory.
// An empty stack is a no-op.
func (c *Controller) PopDirRemote(ctx context.Context) error {
	prev, ok := c.remote.PopDir()
	if !ok {
		return nil
	}
	return c.RemoteChangeDir(ctx, prev, false)
}

// Send uploads a payload into destDir on the remote, refreshing the
// remote listing as entries land. Empty destDir targets the remote
// working directory; relative paths resolve against it.
func (c *Controller) Send(ctx context.Context, payload transfer.Payload, destDir, rename string) error {
	destDir = pathutil.AbsolutizeRemote(c.client.Pwd(), destDir)
	c.engine.SetRefresh(func() {
		_ = c.ReloadRemoteDir(ctx)
	})
	defer c.engine.SetRefresh(nil)

	err := c.engine.Send(ctx, payload, destDir, rename)
	// Cleanup after an abort runs past the last per-entry refresh.
	_ = c.ReloadRemoteDir(ctx)
	return err
}

// Recv downloads a payload, refreshing the local listing as entries
// land. For file payloads localPath names the destination file itself;
// for the other kinds it is the destination directory. Empty localPath
// targets the local working directory; relative paths resolve against
// it.
func (c *Controller) Recv(ctx context.Context, payload transfer.Payload, localPath, rename string) error {
	if localPath == "" {
		localPath = c.host.Pwd()
	} else if !filepath.IsAbs(localPath) {
		localPath = filepath.Join(c.host.Pwd(), localPath)
	}
	c.engine.SetRefresh(func() {
		_ = c.ReloadLocalDir()
	})
	defer c.engine.SetRefresh(nil)

	err := c.engine.Recv(ctx, payload, localPath, rename)
	_ = c.ReloadLocalDir()
	return err
}

// DownloadFileAsTemp fetches a single remote file into a fresh
// temporary directory and returns the local path. Explorer state is
// left untouched, so preview flows never disturb the browsing view.
// The caller owns the returned file and its parent directory.
func (c *Controller) DownloadFileAsTemp(ctx context.Context, entry models.Entry) (string, error) {
	tmpDir, err := os.MkdirTemp("", "termscp-")
	if err != nil {
		return "", fmt.Errorf("failed to create temporary directory: %w", err)
	}
	target := filepath.Join(tmpDir, entry.Name)
	if err := c.engine.Recv(ctx, transfer.FilePayload(entry), target, ""); err != nil {
		_ = os.RemoveAll(tmpDir)
		return "", err
	}
	return target, nil
}

// SetTransferFilter restricts which files inside transferred
// directories move. Directories always recurse. Pass nil to clear.
func (c *Controller) SetTransferFilter(fn func(models.Entry) bool) {
	c.engine.SetFilter(fn)
}

// TotalSizeLocal returns the recursive size of a local entry in bytes.
func (c *Controller) TotalSizeLocal(entry models.Entry) int64 {
	return c.engine.TotalSizeLocal(entry)
}

// TotalSizeRemote returns the recursive size of a remote entry in bytes.
func (c *Controller) TotalSizeRemote(ctx context.Context, entry models.Entry) int64 {
	return c.engine.TotalSizeRemote(ctx, entry)
}

// Abort requests cancellation of the transfer in flight, if any.
func (c *Controller) Abort() {
	c.engine.State().Abort()
}

// LocalStat resolves a path against the local working directory and
// stats it.
func (c *Controller) LocalStat(path string) (models.Entry, error) {
	if !filepath.IsAbs(path) {
		path = filepath.Join(c.host.Pwd(), path)
	}
	return c.host.Stat(path)
}

// RemoteStat resolves a path against the remote working directory and
// stats it.
func (c *Controller) RemoteStat(ctx context.Context, path string) (models.Entry, error) {
	return c.client.Stat(ctx, pathutil.AbsolutizeRemote(c.client.Pwd(), path))
}

// FindLocal walks the local working directory and returns entries whose
// path relative to it matches the glob pattern. Results are sorted by
// path.
func (c *Controller) FindLocal(pattern string) ([]models.Entry, error) {
	if !filter.ValidPattern(pattern) {
		return nil, fmt.Errorf("invalid pattern %q", pattern)
	}
	root := c.host.Pwd()
	var found []models.Entry
	err := c.host.Walk(root, func(entry models.Entry) error {
		rel, rerr := filepath.Rel(root, entry.Path)
		if rerr != nil {
			rel = entry.Name
		}
		if filter.MatchPattern(rel, pattern) {
			found = append(found, entry)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(found, func(i, j int) bool { return found[i].Path < found[j].Path })
	return found, nil
}

// FindRemote searches the remote working directory for entries matching
// the glob pattern. Providers implementing remotefs.Finder run the
// search themselves; for the rest the controller walks the tree with
// List. Results are sorted by path.
func (c *Controller) FindRemote(ctx context.Context, pattern string) ([]models.Entry, error) {
	if !filter.ValidPattern(pattern) {
		return nil, fmt.Errorf("invalid pattern %q", pattern)
	}
	root := c.client.Pwd()
	if finder, ok := c.client.(remotefs.Finder); ok {
		return finder.Find(ctx, root, pattern)
	}
	var found []models.Entry
	if err := c.findRemoteWalk(ctx, root, root, pattern, &found); err != nil {
		return nil, err
	}
	sort.Slice(found, func(i, j int) bool { return found[i].Path < found[j].Path })
	return found, nil
}

func (c *Controller) findRemoteWalk(ctx context.Context, root, dir, pattern string, found *[]models.Entry) error {
	entries, err := c.client.List(ctx, dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		rel := strings.TrimPrefix(strings.TrimPrefix(entry.Path, root), "/")
		if rel == "" {
			rel = entry.Name
		}
		if filter.MatchPattern(rel, pattern) {
			*found = append(*found, entry)
		}
		if entry.IsDir {
			if err := c.findRemoteWalk(ctx, root, entry.Path, pattern, found); err != nil {
				return err
			}
		}
	}
	return nil
}

// LocalMkdir creates a directory, parents included, resolved against
// the local working directory, and reloads the listing.
func (c *Controller) LocalMkdir(name string) error {
	target := name
	if !filepath.IsAbs(target) {
		target = filepath.Join(c.host.Pwd(), target)
	}
	if err := c.host.Mkdir(target, true); err != nil {
		c.log.Errorf("Could not create directory %q: %s", target, err)
		c.bus.PublishAlert(events.ErrorLevel, fmt.Sprintf("Could not create directory %q: %s", name, err))
		return err
	}
	c.log.Infof("Created directory %q", target)
	return c.ReloadLocalDir()
}

// RemoteMkdir creates a remote directory and reloads the listing.
// Unlike the engine's implicit mkdirs, an explicit mkdir of an existing
// directory surfaces the error to the user.
func (c *Controller) RemoteMkdir(ctx context.Context, name string) error {
	target := pathutil.AbsolutizeRemote(c.client.Pwd(), name)
	if err := c.client.Mkdir(ctx, target); err != nil {
		c.log.Errorf("Could not create directory %q: %s", target, err)
		c.bus.PublishAlert(events.ErrorLevel, fmt.Sprintf("Could not create directory %q: %s", name, err))
		return err
	}
	c.log.Infof("Created directory %q", target)
	return c.ReloadRemoteDir(ctx)
}

// LocalRemove deletes a local entry, directories recursively, and
// reloads the listing.
func (c *Controller) LocalRemove(entry models.Entry) error {
	if err := c.host.Remove(entry); err != nil {
		c.log.Errorf("Could not remove %q: %s", entry.Path, err)
		c.bus.PublishAlert(events.ErrorLevel, fmt.Sprintf("Could not remove %q: %s", entry.Name, err))
		return err
	}
	c.log.Infof("Removed %q", entry.Path)
	return c.ReloadLocalDir()
}

// RemoteRemove deletes a remote entry, directories recursively, and
// reloads the listing.
func (c *Controller) RemoteRemove(ctx context.Context, entry models.Entry) error {
	if err := c.client.Remove(ctx, entry); err != nil {
		c.log.Errorf("Could not remove %q: %s", entry.Path, err)
		c.bus.PublishAlert(events.ErrorLevel, fmt.Sprintf("Could not remove %q: %s", entry.Name, err))
		return err
	}
	c.log.Infof("Removed %q", entry.Path)
	return c.ReloadRemoteDir(ctx)
}

// LocalRename moves a local entry to dst, resolved against the working
// directory when relative, and reloads the listing.
func (c *Controller) LocalRename(entry models.Entry, dst string) error {
	if !filepath.IsAbs(dst) {
		dst = filepath.Join(c.host.Pwd(), dst)
	}
	if err := c.host.Rename(entry, dst); err != nil {
		c.log.Errorf("Could not move %q to %q: %s", entry.Path, dst, err)
		c.bus.PublishAlert(events.ErrorLevel, fmt.Sprintf("Could not move %q: %s", entry.Name, err))
		return err
	}
	c.log.Infof("Moved %q to %q", entry.Path, dst)
	return c.ReloadLocalDir()
}

// RemoteRename moves a remote entry to dst, resolved against the remote
// working directory when relative, and reloads the listing.
func (c *Controller) RemoteRename(ctx context.Context, entry models.Entry, dst string) error {
	dst = pathutil.AbsolutizeRemote(c.client.Pwd(), dst)
	if err := c.client.Rename(ctx, entry, dst); err != nil {
		c.log.Errorf("Could not move %q to %q: %s", entry.Path, dst, err)
		c.bus.PublishAlert(events.ErrorLevel, fmt.Sprintf("Could not move %q: %s", entry.Name, err))
		return err
	}
	c.log.Infof("Moved %q to %q", entry.Path, dst)
	return c.ReloadRemoteDir(ctx)
}
