// Package models holds the filesystem entry model shared by the local
// host, remote providers, transfer engine and session controller.
package models

import (
	"os"
	"sort"
	"time"
)

// Pex is a Unix permission triple (owner/group/others), each digit 0-7.
type Pex struct {
	Owner  uint8
	Group  uint8
	Others uint8
}

// PexFromMode extracts the permission triple from a file mode.
func PexFromMode(mode os.FileMode) Pex {
	perm := mode.Perm()
	return Pex{
		Owner:  uint8((perm >> 6) & 0x7),
		Group:  uint8((perm >> 3) & 0x7),
		Others: uint8(perm & 0x7),
	}
}

// Mode converts the triple back to a file mode permission set.
func (p Pex) Mode() os.FileMode {
	return os.FileMode(uint32(p.Owner)<<6 | uint32(p.Group)<<3 | uint32(p.Others))
}

// Entry is a read-only snapshot of a file or directory taken from a
// provider at scan time. Entries are not live references: the underlying
// object can change or disappear between scan and transfer, and that
// staleness is accepted rather than re-validated mid-transfer.
type Entry struct {
	Path    string // absolute path on its provider
	Name    string
	Size    int64 // bytes; 0 for directories
	IsDir   bool
	ModTime time.Time
	Pex     *Pex // optional Unix permission triple; nil when unknown
}

// NewFile builds a file entry snapshot.
func NewFile(path, name string, size int64, modTime time.Time, pex *Pex) Entry {
	return Entry{Path: path, Name: name, Size: size, ModTime: modTime, Pex: pex}
}

// NewDirectory builds a directory entry snapshot.
func NewDirectory(path, name string, modTime time.Time, pex *Pex) Entry {
	return Entry{Path: path, Name: name, IsDir: true, ModTime: modTime, Pex: pex}
}

// SortEntries orders a listing alphabetically, directories first when
// groupDirs is set. The sort is stable so equal names keep scan order.
func SortEntries(entries []Entry, groupDirs bool) {
	sort.SliceStable(entries, func(i, j int) bool {
		if groupDirs && entries[i].IsDir != entries[j].IsDir {
			return entries[i].IsDir
		}
		return entries[i].Name < entries[j].Name
	})
}
