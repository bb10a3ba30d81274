//go:build !windows

package diskspace

import (
	"path/filepath"

	"golang.org/x/sys/unix"
)

// CheckAvailableSpace checks if there is sufficient disk space available
// for a file operation. It checks the filesystem where the target path
// will be created.
//
// Parameters:
//   - targetPath: The path where the file will be created (can be non-existent)
//   - requiredBytes: The number of bytes needed
//   - safetyMargin: Multiplier for safety (e.g., 1.1 for 10% buffer)
//
// Returns an InsufficientSpaceError if there is not enough space.
// A failed filesystem probe skips the check rather than failing it, which
// covers network and virtual filesystems that do not report usable stats.
func CheckAvailableSpace(targetPath string, requiredBytes int64, safetyMargin float64) error {
	return checkSpace(targetPath, requiredBytes, safetyMargin, GetAvailableSpace(targetPath))
}

// GetAvailableSpace returns the available space in bytes for the filesystem
// containing the given path. Returns 0 if unable to determine.
func GetAvailableSpace(path string) int64 {
	// The parent directory must exist for statfs
	dir := filepath.Dir(path)

	var stat unix.Statfs_t
	if err := unix.Statfs(dir, &stat); err != nil {
		return 0
	}

	// Bavail = blocks available to unprivileged users
	return int64(stat.Bavail) * int64(stat.Bsize)
}
