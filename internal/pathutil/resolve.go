// Package pathutil provides path resolution helpers for local and remote paths.
// Local paths follow host OS conventions; remote paths are always
// slash-separated regardless of the platform termscp runs on.
package pathutil

import (
	"os"
	"path"
	"path/filepath"
	"strings"
)

// ResolveAbsolutePath converts a relative path to an absolute path.
// Resolves symlinks/junctions in the EXISTING portion of the path,
// then appends any non-existent components. This handles the case where
// user folders (like Downloads) are junction points but the target
// subdirectory doesn't exist yet.
func ResolveAbsolutePath(p string) (string, error) {
	if p == "" {
		return os.Getwd()
	}

	// Expand ~ to home directory
	if p[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		p = home + p[1:]
	}

	absPath, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}

	// Try to resolve the full path first (fast path if it exists)
	resolved, err := filepath.EvalSymlinks(absPath)
	if err == nil {
		return resolved, nil
	}

	// Path doesn't fully exist - find the deepest existing ancestor
	// and resolve junctions there, then append the rest
	current := absPath
	var remainder []string

	for {
		if _, err := os.Stat(current); err == nil {
			resolved, err := filepath.EvalSymlinks(current)
			if err != nil {
				resolved = current // fallback if resolution fails
			}
			// Append the non-existent remainder (collected bottom-up)
			if len(remainder) > 0 {
				for i := len(remainder) - 1; i >= 0; i-- {
					resolved = filepath.Join(resolved, remainder[i])
				}
			}
			return resolved, nil
		}

		parent := filepath.Dir(current)
		if parent == current {
			// Reached root without finding an existing dir
			return absPath, nil
		}
		remainder = append(remainder, filepath.Base(current))
		current = parent
	}
}

// AbsolutizeRemote resolves target against the remote working directory.
// Absolute targets are cleaned and returned as-is; relative targets
// (including "." and "..") are joined onto wrkdir. The result is always
// a clean, slash-separated absolute path.
func AbsolutizeRemote(wrkdir, target string) string {
	if target == "" {
		return path.Clean(wrkdir)
	}
	if strings.HasPrefix(target, "/") {
		return path.Clean(target)
	}
	return path.Join(wrkdir, target)
}
