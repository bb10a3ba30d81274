// Package localfs implements the local side of a transfer session:
// directory scanning, stat, open-for-read/write, mkdir, remove, chmod
// and working-directory state. Listings include hidden entries; view
// level filtering is the explorer's job, not the provider's.
package localfs

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/flashlab/termscp/internal/models"
)

// Host is the local filesystem provider. It keeps its own working
// directory instead of touching the process-wide one.
type Host struct {
	wrkdir string
}

// New creates a Host rooted at the given working directory.
func New(wrkdir string) (*Host, error) {
	abs, err := filepath.Abs(wrkdir)
	if err != nil {
		return nil, fmt.Errorf("could not resolve %s: %w", wrkdir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("could not stat %s: %w", abs, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", abs)
	}
	return &Host{wrkdir: abs}, nil
}

// Pwd returns the current working directory.
func (h *Host) Pwd() string {
	return h.wrkdir
}

// ChangeWrkdir moves the working directory. Relative paths resolve
// against the current working directory.
func (h *Host) ChangeWrkdir(path string) error {
	target := path
	if !filepath.IsAbs(target) {
		target = filepath.Join(h.wrkdir, target)
	}
	target = filepath.Clean(target)
	info, err := os.Stat(target)
	if err != nil {
		return fmt.Errorf("could not stat %s: %w", target, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", target)
	}
	h.wrkdir = target
	return nil
}

// ScanDir returns the contents of a directory as entry snapshots.
// Hidden entries are included; entries that cannot be stat'd are skipped.
func (h *Host) ScanDir(path string) ([]models.Entry, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("could not scan %s: %w", path, err)
	}

	result := make([]models.Entry, 0, len(entries))
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			// Skip entries we can't stat (permission issues, etc.)
			continue
		}
		result = append(result, entryFromInfo(filepath.Join(path, entry.Name()), info))
	}

	return result, nil
}

// Stat resolves a single path to an entry snapshot.
func (h *Host) Stat(path string) (models.Entry, error) {
	info, err := os.Stat(path)
	if err != nil {
		return models.Entry{}, fmt.Errorf("could not stat %s: %w", path, err)
	}
	return entryFromInfo(path, info), nil
}

// Exists reports whether a path exists.
func (h *Host) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// OpenRead opens a file for reading. The returned handle is seekable so
// the transfer engine can size and rewind it before copying.
func (h *Host) OpenRead(path string) (io.ReadSeekCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open %s for read: %w", path, err)
	}
	return f, nil
}

// OpenWrite creates or truncates a file for writing.
func (h *Host) OpenWrite(path string) (io.WriteCloser, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("could not open %s for write: %w", path, err)
	}
	return f, nil
}

// Mkdir creates a directory. With recursive set, missing parents are
// created too and an existing directory is not an error.
func (h *Host) Mkdir(path string, recursive bool) error {
	var err error
	if recursive {
		err = os.MkdirAll(path, 0o755)
	} else {
		err = os.Mkdir(path, 0o755)
	}
	if err != nil {
		return fmt.Errorf("could not create directory %s: %w", path, err)
	}
	return nil
}

// Remove deletes an entry. Directories are removed recursively.
func (h *Host) Remove(entry models.Entry) error {
	var err error
	if entry.IsDir {
		err = os.RemoveAll(entry.Path)
	} else {
		err = os.Remove(entry.Path)
	}
	if err != nil {
		return fmt.Errorf("could not remove %s: %w", entry.Path, err)
	}
	return nil
}

// Rename moves an entry to a new path.
func (h *Host) Rename(entry models.Entry, dst string) error {
	if err := os.Rename(entry.Path, dst); err != nil {
		return fmt.Errorf("could not move %s to %s: %w", entry.Path, dst, err)
	}
	return nil
}

// Chmod applies a Unix permission triple to a path. On platforms
// without full mode support this silently degrades to what os.Chmod
// can do there.
func (h *Host) Chmod(path string, pex models.Pex) error {
	if err := os.Chmod(path, pex.Mode()); err != nil {
		return fmt.Errorf("could not chmod %s: %w", path, err)
	}
	return nil
}

// WalkFunc is the callback signature for Walk.
// Return filepath.SkipDir to skip a directory, or any other error to stop walking.
type WalkFunc func(entry models.Entry) error

// Walk traverses a directory tree depth-first, calling fn for each file
// and directory below root. Unreadable paths are skipped rather than
// failing the whole walk.
func (h *Host) Walk(root string, fn WalkFunc) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Error accessing path - skip it
			return nil
		}
		if path == root {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			// Skip entries we can't stat
			return nil
		}

		return fn(entryFromInfo(path, info))
	})
}

// entryFromInfo converts a stat result into the shared entry model.
func entryFromInfo(path string, info fs.FileInfo) models.Entry {
	pex := models.PexFromMode(info.Mode())
	if info.IsDir() {
		return models.NewDirectory(path, info.Name(), info.ModTime(), &pex)
	}
	return models.NewFile(path, info.Name(), info.Size(), info.ModTime(), &pex)
}
