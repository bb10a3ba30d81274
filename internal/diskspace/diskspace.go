// Package diskspace provides utilities for checking available disk space
// before starting a download. Platform-specific probes live in the
// _unix and _windows files; this file holds the portable surface.
package diskspace

import "fmt"

// InsufficientSpaceError indicates that there is not enough disk space available.
type InsufficientSpaceError struct {
	Path           string
	RequiredBytes  int64
	AvailableBytes int64
}

func (e *InsufficientSpaceError) Error() string {
	requiredMB := float64(e.RequiredBytes) / (1024 * 1024)
	availableMB := float64(e.AvailableBytes) / (1024 * 1024)
	return fmt.Sprintf("insufficient disk space for %s: need %.2f MB, have %.2f MB available",
		e.Path, requiredMB, availableMB)
}

// IsInsufficientSpaceError checks if an error is an InsufficientSpaceError
func IsInsufficientSpaceError(err error) bool {
	_, ok := err.(*InsufficientSpaceError)
	return ok
}

// checkSpace compares available bytes against the requirement with the
// safety margin applied. availableBytes == 0 means the probe failed and
// the check is skipped so the transfer can proceed and fail naturally.
func checkSpace(targetPath string, requiredBytes int64, safetyMargin float64, availableBytes int64) error {
	if availableBytes == 0 {
		return nil
	}

	requiredWithMargin := int64(float64(requiredBytes) * safetyMargin)

	if availableBytes < requiredWithMargin {
		return &InsufficientSpaceError{
			Path:           targetPath,
			RequiredBytes:  requiredWithMargin,
			AvailableBytes: availableBytes,
		}
	}

	return nil
}
