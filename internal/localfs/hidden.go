package localfs

import (
	"path/filepath"
	"strings"
)

// IsHidden returns true if the file or directory at the given path is
// hidden by Unix convention (base name starts with a dot). Explorers
// use this for the show-hidden toggle; transfers never filter on it.
func IsHidden(path string) bool {
	return IsHiddenName(filepath.Base(path))
}

// IsHiddenName returns true if the given filename (not path) represents
// a hidden file. Special entries "." and ".." are not considered hidden.
func IsHiddenName(name string) bool {
	if name == "." || name == ".." {
		return false
	}
	return strings.HasPrefix(name, ".")
}
