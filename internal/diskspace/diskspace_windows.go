//go:build windows

package diskspace

import (
	"path/filepath"

	"golang.org/x/sys/windows"
)

// CheckAvailableSpace checks if there is sufficient disk space available
// for a file operation. It checks the disk where the target path will be
// created.
//
// Parameters:
//   - targetPath: The path where the file will be created (can be non-existent)
//   - requiredBytes: The number of bytes needed
//   - safetyMargin: Multiplier for safety (e.g., 1.1 for 10% buffer)
//
// Returns an InsufficientSpaceError if there is not enough space.
// A failed probe skips the check rather than failing it.
func CheckAvailableSpace(targetPath string, requiredBytes int64, safetyMargin float64) error {
	return checkSpace(targetPath, requiredBytes, safetyMargin, GetAvailableSpace(targetPath))
}

// GetAvailableSpace returns the available space in bytes for the disk
// containing the given path. Returns 0 if unable to determine.
func GetAvailableSpace(path string) int64 {
	dir := filepath.Dir(path)

	pathPtr, err := windows.UTF16PtrFromString(dir)
	if err != nil {
		return 0
	}

	var freeBytesAvailable, totalBytes, totalFreeBytes uint64
	if err := windows.GetDiskFreeSpaceEx(pathPtr, &freeBytesAvailable, &totalBytes, &totalFreeBytes); err != nil {
		return 0
	}

	return int64(freeBytesAvailable)
}
