package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"path/filepath"
	"runtime"
	"time"

	"github.com/google/uuid"

	"github.com/flashlab/termscp/internal/constants"
	"github.com/flashlab/termscp/internal/diskspace"
	"github.com/flashlab/termscp/internal/events"
	"github.com/flashlab/termscp/internal/logging"
	"github.com/flashlab/termscp/internal/models"
	"github.com/flashlab/termscp/internal/remotefs"
	"github.com/flashlab/termscp/internal/util/buffers"
	"github.com/flashlab/termscp/internal/util/fmtutil"
)

// LocalFs is the engine's view of the local filesystem. *localfs.Host
// satisfies it; tests substitute their own.
type LocalFs interface {
	Pwd() string
	ScanDir(path string) ([]models.Entry, error)
	Stat(path string) (models.Entry, error)
	OpenRead(path string) (io.ReadSeekCloser, error)
	OpenWrite(path string) (io.WriteCloser, error)
	Mkdir(path string, recursive bool) error
	Remove(entry models.Entry) error
	Chmod(path string, pex models.Pex) error
}

// Engine orchestrates transfers between the local filesystem and a
// remote provider: it walks trees depth-first, streams files in chunks,
// updates the shared TransferState and cleans up partial artifacts on
// failure. One transfer runs at a time; recursion is strictly
// sequential. Cancellation is observed between chunk writes, at a
// bounded poll cadence.
type Engine struct {
	host    LocalFs
	client  remotefs.Provider
	state   *TransferState
	log     *logging.Logger
	bus     *events.EventBus
	refresh func()
	filter  func(models.Entry) bool
	taskID  string
}

// NewEngine creates a transfer engine bound to a local host and a
// remote provider. The engine owns its TransferState for its lifetime.
func NewEngine(host LocalFs, client remotefs.Provider, log *logging.Logger, bus *events.EventBus) *Engine {
	return &Engine{
		host:   host,
		client: client,
		state:  NewTransferState(),
		log:    log,
		bus:    bus,
	}
}

// State exposes the progress counters and the cancellation flag.
func (e *Engine) State() *TransferState {
	return e.state
}

// SetRefresh installs a hook invoked after each entry completes, so the
// session can reload the destination listing as data lands.
func (e *Engine) SetRefresh(fn func()) {
	e.refresh = fn
}

// SetFilter restricts which files inside transferred directories move.
// Directories always recurse; a nil filter transfers every file. Size
// totals honor the same filter so progress still reaches 100%.
func (e *Engine) SetFilter(fn func(models.Entry) bool) {
	e.filter = fn
}

// Send transfers a payload from the local filesystem into destDir on
// the remote. rename replaces the top-level entry's name only; nested
// children always keep their own names. Per-entry failures are logged
// and alerted without stopping the rest of the batch; the returned
// error is non-nil only when the whole operation failed or was aborted.
func (e *Engine) Send(ctx context.Context, payload Payload, destDir, rename string) error {
	e.state.Reset()
	e.taskID = uuid.NewString()

	switch payload.Kind {
	case PayloadFile:
		file := payload.entries[0]
		e.state.Full().Init(file.Size)
		e.begin(events.DirectionSend, file.Name, file.Size)
		remotePath := path.Join(destDir, nameOrDefault(rename, file.Name))
		err := e.sendOne(ctx, file, remotePath)
		if err != nil {
			if r, ok := ReasonOf(err); ok && (r == ReasonAbrupted || r == ReasonRemoteIo) {
				e.removeRemotePartial(ctx, remotePath)
			}
		}
		e.refreshListing()
		return e.finish(events.DirectionSend, file.Name, file.Size, err)

	case PayloadEntry:
		entry := payload.entries[0]
		total := e.TotalSizeLocal(entry)
		e.state.Full().Init(total)
		e.begin(events.DirectionSend, entry.Name, total)
		e.sendRecurse(ctx, entry, destDir, rename)
		return e.finish(events.DirectionSend, entry.Name, total, e.abortErr())

	case PayloadBatch:
		var total int64
		for _, entry := range payload.entries {
			total += e.TotalSizeLocal(entry)
		}
		e.state.Full().Init(total)
		name := payload.Name()
		e.begin(events.DirectionSend, name, total)
		for _, entry := range payload.entries {
			if e.state.Aborted() {
				break
			}
			e.sendRecurse(ctx, entry, destDir, "")
		}
		return e.finish(events.DirectionSend, name, total, e.abortErr())
	}
	return nil
}

// Recv transfers a payload from the remote into the local filesystem.
// For PayloadFile, localPath names the destination file itself and
// rename is ignored; for the other kinds localPath is the destination
// directory and rename applies to the top-level entry only.
func (e *Engine) Recv(ctx context.Context, payload Payload, localPath, rename string) error {
	e.state.Reset()
	e.taskID = uuid.NewString()

	switch payload.Kind {
	case PayloadFile:
		file := payload.entries[0]
		e.state.Full().Init(file.Size)
		if err := e.checkDiskSpace(localPath, file.Size); err != nil {
			return err
		}
		e.begin(events.DirectionRecv, file.Name, file.Size)
		err := e.recvOne(ctx, localPath, file)
		if err != nil {
			if r, ok := ReasonOf(err); ok && (r == ReasonAbrupted || r == ReasonLocalIo) {
				e.removeLocalPartial(localPath)
			}
		}
		e.refreshListing()
		return e.finish(events.DirectionRecv, file.Name, file.Size, err)

	case PayloadEntry:
		entry := payload.entries[0]
		total := e.TotalSizeRemote(ctx, entry)
		e.state.Full().Init(total)
		if err := e.checkDiskSpace(filepath.Join(localPath, entry.Name), total); err != nil {
			return err
		}
		e.begin(events.DirectionRecv, entry.Name, total)
		e.recvRecurse(ctx, entry, localPath, rename)
		return e.finish(events.DirectionRecv, entry.Name, total, e.abortErr())

	case PayloadBatch:
		var total int64
		for _, entry := range payload.entries {
			total += e.TotalSizeRemote(ctx, entry)
		}
		e.state.Full().Init(total)
		name := payload.Name()
		if err := e.checkDiskSpace(filepath.Join(localPath, name), total); err != nil {
			return err
		}
		e.begin(events.DirectionRecv, name, total)
		for _, entry := range payload.entries {
			if e.state.Aborted() {
				break
			}
			e.recvRecurse(ctx, entry, localPath, "")
		}
		return e.finish(events.DirectionRecv, name, total, e.abortErr())
	}
	return nil
}

// TotalSizeLocal computes the aggregate byte size of a local entry.
// Directories contribute the recursive sum of their children that pass
// the transfer filter; a failed scan is logged and contributes zero so
// the transfer still proceeds.
func (e *Engine) TotalSizeLocal(entry models.Entry) int64 {
	if !entry.IsDir {
		return entry.Size
	}
	children, err := e.host.ScanDir(entry.Path)
	if err != nil {
		e.log.Errorf("Could not list directory %s: %s", entry.Path, err)
		return 0
	}
	var total int64
	for _, child := range children {
		if !e.includeChild(child) {
			continue
		}
		total += e.TotalSizeLocal(child)
	}
	return total
}

// TotalSizeRemote computes the aggregate byte size of a remote entry,
// with the same zero-on-error policy as TotalSizeLocal.
func (e *Engine) TotalSizeRemote(ctx context.Context, entry models.Entry) int64 {
	if !entry.IsDir {
		return entry.Size
	}
	children, err := e.client.List(ctx, entry.Path)
	if err != nil {
		e.log.Errorf("Could not list directory %s: %s", entry.Path, err)
		return 0
	}
	var total int64
	for _, child := range children {
		if !e.includeChild(child) {
			continue
		}
		total += e.TotalSizeRemote(ctx, child)
	}
	return total
}

// sendRecurse materializes one local entry on the remote side, then
// descends into directories. Failures are reported per entry; siblings
// keep going unless the transfer was aborted.
func (e *Engine) sendRecurse(ctx context.Context, entry models.Entry, curRemoteDir, rename string) {
	remotePath := path.Join(curRemoteDir, nameOrDefault(rename, entry.Name))

	if !entry.IsDir {
		if err := e.sendOne(ctx, entry, remotePath); err != nil {
			e.logAndAlert(events.ErrorLevel, fmt.Sprintf("Failed to upload file %s: %s", entry.Name, err))
			e.state.RecordFailure()
			if r, ok := ReasonOf(err); ok && (r == ReasonAbrupted || r == ReasonRemoteIo) {
				e.removeRemotePartial(ctx, remotePath)
			}
		}
	} else {
		if err := e.client.Mkdir(ctx, remotePath); err != nil {
			if remotefs.IsAlreadyExists(err) {
				e.log.Infof("Directory %q already exists on remote", remotePath)
			} else {
				e.logAndAlert(events.ErrorLevel, fmt.Sprintf("Failed to create directory %q: %s", remotePath, err))
				e.state.RecordFailure()
				// Abort this subtree only; siblings continue
				return
			}
		} else {
			e.log.Infof("Created directory %q", remotePath)
		}
		children, err := e.host.ScanDir(entry.Path)
		if err != nil {
			e.logAndAlert(events.ErrorLevel, fmt.Sprintf("Could not scan directory %q: %s", entry.Path, err))
			e.state.RecordFailure()
		} else {
			for _, child := range children {
				if e.state.Aborted() {
					break
				}
				if !e.includeChild(child) {
					continue
				}
				e.sendRecurse(ctx, child, remotePath, "")
			}
		}
	}

	e.refreshListing()
	if e.state.Aborted() {
		e.logAndAlert(events.WarnLevel, fmt.Sprintf("Upload aborted for %q!", entry.Path))
	}
}

// recvRecurse materializes one remote entry on the local side. Note the
// asymmetry with sendRecurse: a failed local mkdir is logged without an
// alert, and the listing refresh still runs afterwards.
func (e *Engine) recvRecurse(ctx context.Context, entry models.Entry, localDir, rename string) {
	localPath := filepath.Join(localDir, nameOrDefault(rename, entry.Name))

	if !entry.IsDir {
		if err := e.recvOne(ctx, localPath, entry); err != nil {
			e.logAndAlert(events.ErrorLevel, fmt.Sprintf("Could not download file %s: %s", entry.Name, err))
			e.state.RecordFailure()
			if r, ok := ReasonOf(err); ok && (r == ReasonAbrupted || r == ReasonLocalIo) {
				e.removeLocalPartial(localPath)
			}
		}
	} else {
		if err := e.host.Mkdir(localPath, true); err != nil {
			e.log.Errorf("Failed to create directory %q: %s", localPath, err)
			e.state.RecordFailure()
		} else {
			e.applyLocalPex(localPath, entry)
			e.log.Infof("Created directory %q", localPath)
			children, err := e.client.List(ctx, entry.Path)
			if err != nil {
				e.logAndAlert(events.ErrorLevel, fmt.Sprintf("Could not scan directory %q: %s", entry.Path, err))
				e.state.RecordFailure()
			} else {
				for _, child := range children {
					if e.state.Aborted() {
						break
					}
					if !e.includeChild(child) {
						continue
					}
					e.recvRecurse(ctx, child, localPath, "")
				}
			}
		}
	}

	e.refreshListing()
	if e.state.Aborted() {
		e.logAndAlert(events.WarnLevel, fmt.Sprintf("Download aborted for %q!", entry.Path))
	}
}

// sendOne streams a single local file to remotePath. The local handle
// and the remote stream are both released on every exit path.
func (e *Engine) sendOne(ctx context.Context, file models.Entry, remotePath string) error {
	fhnd, err := e.host.OpenRead(file.Path)
	if err != nil {
		return newError(ReasonHost, err)
	}
	defer fhnd.Close()

	rhnd, err := e.client.SendFile(ctx, file, remotePath)
	if err != nil {
		return newError(ReasonProtocol, err)
	}
	finalized := false
	finalize := func() {
		if finalized {
			return
		}
		finalized = true
		if err := e.client.OnSent(rhnd); err != nil {
			e.log.Warnf("Could not finalize remote stream: %q", err)
		}
	}
	defer finalize()

	// Size the file through the handle, then rewind
	size, err := fhnd.Seek(0, io.SeekEnd)
	if err != nil {
		size = 0
	}
	e.state.Partial().Init(size)
	if _, err := fhnd.Seek(0, io.SeekStart); err != nil {
		return newError(ReasonCouldNotRewind, err)
	}

	bufp := buffers.GetChunkBuffer()
	defer buffers.PutChunkBuffer(bufp)
	buf := *bufp

	var written int64
	lastProgress := 0.0
	var lastEvent time.Time

	// Poll at least once per file, even a zero-length one, then at a
	// bounded cadence independent of chunk size
	e.pollAbort(ctx)
	lastPoll := time.Now()

	for written < size && !e.state.Aborted() {
		if time.Since(lastPoll) >= constants.AbortPollInterval {
			e.pollAbort(ctx)
			lastPoll = time.Now()
		}

		n, rerr := fhnd.Read(buf)
		if n > 0 {
			off := 0
			for off < n {
				m, werr := rhnd.Write(buf[off:n])
				if werr != nil {
					return newError(ReasonRemoteIo, werr)
				}
				off += m
			}
			written += int64(n)
			e.state.Partial().Update(int64(n))
			e.state.Full().Update(int64(n))
			if p := e.state.Partial().Progress(); p-lastProgress >= constants.ProgressRedrawStep ||
				time.Since(lastEvent) >= constants.ProgressThrottleInterval {
				e.publishProgress(file.Name)
				lastProgress = p
				lastEvent = time.Now()
			}
		}
		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				if written < size {
					// Source shrank mid-copy; fail instead of spinning
					return newError(ReasonLocalIo, io.ErrUnexpectedEOF)
				}
				break
			}
			return newError(ReasonLocalIo, rerr)
		}
	}

	finalize()
	if e.state.Aborted() {
		return newError(ReasonAbrupted, nil)
	}
	e.publishProgress(file.Name)
	e.log.Infof("Saved file %q to %q (took %.2f seconds; at %s)",
		file.Path, remotePath,
		time.Since(e.state.Partial().Started()).Seconds(),
		fmtutil.FormatRate(e.state.Partial().BytesPerSecond()))
	return nil
}

// recvOne streams a single remote file to localPath. The local file is
// closed before returning so a cleanup remove never races the handle.
func (e *Engine) recvOne(ctx context.Context, localPath string, remote models.Entry) error {
	lhnd, err := e.host.OpenWrite(localPath)
	if err != nil {
		return newError(ReasonHost, err)
	}
	defer lhnd.Close()

	rhnd, err := e.client.RecvFile(ctx, remote)
	if err != nil {
		return newError(ReasonProtocol, err)
	}
	finalized := false
	finalize := func() {
		if finalized {
			return
		}
		finalized = true
		if err := e.client.OnRecv(rhnd); err != nil {
			e.log.Warnf("Could not finalize remote stream: %q", err)
		}
	}
	defer finalize()

	size := remote.Size
	e.state.Partial().Init(size)

	bufp := buffers.GetChunkBuffer()
	defer buffers.PutChunkBuffer(bufp)
	buf := *bufp

	var written int64
	lastProgress := 0.0
	var lastEvent time.Time

	e.pollAbort(ctx)
	lastPoll := time.Now()

	for written < size && !e.state.Aborted() {
		if time.Since(lastPoll) >= constants.AbortPollInterval {
			e.pollAbort(ctx)
			lastPoll = time.Now()
		}

		n, rerr := rhnd.Read(buf)
		if n > 0 {
			off := 0
			for off < n {
				m, werr := lhnd.Write(buf[off:n])
				if werr != nil {
					return newError(ReasonLocalIo, werr)
				}
				off += m
			}
			written += int64(n)
			e.state.Partial().Update(int64(n))
			e.state.Full().Update(int64(n))
			if p := e.state.Partial().Progress(); p-lastProgress >= constants.ProgressRedrawStep ||
				time.Since(lastEvent) >= constants.ProgressThrottleInterval {
				e.publishProgress(remote.Name)
				lastProgress = p
				lastEvent = time.Now()
			}
		}
		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				if written < size {
					// Remote stream ended short of the advertised size
					return newError(ReasonRemoteIo, io.ErrUnexpectedEOF)
				}
				break
			}
			return newError(ReasonRemoteIo, rerr)
		}
	}

	finalize()
	if e.state.Aborted() {
		return newError(ReasonAbrupted, nil)
	}
	e.applyLocalPex(localPath, remote)
	e.publishProgress(remote.Name)
	e.log.Infof("Saved file %q to %q (took %.2f seconds; at %s)",
		remote.Path, localPath,
		time.Since(e.state.Partial().Started()).Seconds(),
		fmtutil.FormatRate(e.state.Partial().BytesPerSecond()))
	return nil
}

// removeRemotePartial probes remotePath and removes it if it exists.
// Nothing to remove is fine: providers that buffer uploads leave no
// artifact behind an aborted stream. Other cleanup failures get a log
// line but never abort the batch.
func (e *Engine) removeRemotePartial(ctx context.Context, remotePath string) {
	entry, err := e.client.Stat(ctx, remotePath)
	if err != nil {
		if remotefs.IsNotFound(err) {
			return
		}
		e.log.Errorf("Could not remove created file %s: %s", remotePath, err)
		return
	}
	if err := e.client.Remove(ctx, entry); err != nil {
		e.log.Errorf("Could not remove created file %s: %s", remotePath, err)
	}
}

// removeLocalPartial is the receive-side twin of removeRemotePartial.
func (e *Engine) removeLocalPartial(localPath string) {
	entry, err := e.host.Stat(localPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return
		}
		e.log.Errorf("Could not remove created file %s: %s", localPath, err)
		return
	}
	if err := e.host.Remove(entry); err != nil {
		e.log.Errorf("Could not remove created file %s: %s", localPath, err)
	}
}

// applyLocalPex re-applies the source permission triple to a local
// copy. Best effort: failures are logged, never fatal. No-op on
// Windows or when the source had no permission data.
func (e *Engine) applyLocalPex(localPath string, entry models.Entry) {
	if runtime.GOOS == "windows" || entry.Pex == nil {
		return
	}
	if err := e.host.Chmod(localPath, *entry.Pex); err != nil {
		e.log.Errorf("Could not apply file mode %s to %q: %s",
			fmtutil.FormatPex(entry.Pex.Owner, entry.Pex.Group, entry.Pex.Others), localPath, err)
	}
}

// checkDiskSpace verifies the receive destination has room for the
// transfer before any bytes move.
func (e *Engine) checkDiskSpace(target string, required int64) error {
	if err := diskspace.CheckAvailableSpace(target, required, constants.DiskSpaceSafetyMargin); err != nil {
		e.logAndAlert(events.ErrorLevel, err.Error())
		return err
	}
	return nil
}

// pollAbort promotes context cancellation into the shared abort flag.
func (e *Engine) pollAbort(ctx context.Context) {
	select {
	case <-ctx.Done():
		e.state.Abort()
	default:
	}
}

func (e *Engine) refreshListing() {
	if e.refresh != nil {
		e.refresh()
	}
}

func (e *Engine) abortErr() error {
	if e.state.Aborted() {
		return newError(ReasonAbrupted, nil)
	}
	return nil
}

func (e *Engine) begin(direction events.Direction, name string, size int64) {
	e.bus.PublishTransfer(events.EventTransferStarted, e.taskID, direction, name, size, nil)
}

func (e *Engine) finish(direction events.Direction, name string, size int64, err error) error {
	switch {
	case err == nil:
		e.bus.PublishTransfer(events.EventTransferCompleted, e.taskID, direction, name, size, nil)
	case IsAbrupted(err):
		e.bus.PublishTransfer(events.EventTransferCancelled, e.taskID, direction, name, size, err)
	default:
		e.bus.PublishTransfer(events.EventTransferFailed, e.taskID, direction, name, size, err)
	}
	return err
}

func (e *Engine) publishProgress(name string) {
	e.bus.PublishProgress(e.taskID, name,
		e.state.Full().Progress(), e.state.Partial().Progress(),
		e.state.Full().Transferred(), e.state.Full().Total(),
		e.state.Partial().BytesPerSecond())
}

// logAndAlert writes a log line and mirrors it as a user-visible alert.
func (e *Engine) logAndAlert(level events.LogLevel, msg string) {
	switch level {
	case events.DebugLevel:
		e.log.Debug().Msg(msg)
	case events.InfoLevel:
		e.log.Info().Msg(msg)
	case events.WarnLevel:
		e.log.Warn().Msg(msg)
	default:
		e.log.Error().Msg(msg)
	}
	e.bus.PublishAlert(level, msg)
}

// includeChild reports whether a walked child takes part in the
// transfer. Only files are filtered; directories always recurse.
func (e *Engine) includeChild(entry models.Entry) bool {
	if e.filter == nil || entry.IsDir {
		return true
	}
	return e.filter(entry)
}

func nameOrDefault(rename, name string) string {
	if rename != "" {
		return rename
	}
	return name
}
