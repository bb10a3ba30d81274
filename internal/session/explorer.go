// Package session owns a connected transfer session: the local host,
// the remote provider, the transfer engine and the two directory
// explorers the command surface browses with.
package session

import (
	"sort"

	"github.com/flashlab/termscp/internal/constants"
	"github.com/flashlab/termscp/internal/localfs"
	"github.com/flashlab/termscp/internal/models"
)

// Explorer holds the browsing state for one side of a session: the
// working directory, its cached listing and the previous-directory
// stack backing pushd/popd navigation.
//
// The explorer never talks to a filesystem itself; the controller
// scans and feeds it through SetEntries, so the cached listing is a
// snapshot that can go stale until the next reload.
type Explorer struct {
	wrkdir     string
	entries    []models.Entry
	stack      []string
	showHidden bool
	groupDirs  string
}

// NewExplorer creates an explorer. groupDirs controls listing order:
// "first", "last" or empty for strict name order.
func NewExplorer(groupDirs string) *Explorer {
	return &Explorer{groupDirs: groupDirs}
}

// Wrkdir returns the working directory the cached listing belongs to.
func (x *Explorer) Wrkdir() string {
	return x.wrkdir
}

// SetWrkdir records the directory the next SetEntries listing is for.
func (x *Explorer) SetWrkdir(path string) {
	x.wrkdir = path
}

// SetEntries replaces the cached listing and re-sorts it.
func (x *Explorer) SetEntries(entries []models.Entry) {
	x.entries = entries
	x.sortEntries()
}

// Entries returns the listing view: sorted, with hidden entries
// filtered out unless the show-hidden toggle is on.
func (x *Explorer) Entries() []models.Entry {
	if x.showHidden {
		return append([]models.Entry(nil), x.entries...)
	}
	visible := make([]models.Entry, 0, len(x.entries))
	for _, entry := range x.entries {
		if !localfs.IsHiddenName(entry.Name) {
			visible = append(visible, entry)
		}
	}
	return visible
}

// Get looks up an entry by name in the cached listing. Hidden entries
// are found regardless of the toggle, so exact names always resolve.
func (x *Explorer) Get(name string) (models.Entry, bool) {
	for _, entry := range x.entries {
		if entry.Name == name {
			return entry, true
		}
	}
	return models.Entry{}, false
}

// ShowHidden reports whether hidden entries are included in Entries.
func (x *Explorer) ShowHidden() bool {
	return x.showHidden
}

// SetShowHidden sets the hidden-entries toggle.
func (x *Explorer) SetShowHidden(show bool) {
	x.showHidden = show
}

// ToggleHidden flips the hidden-entries toggle and returns the new state.
func (x *Explorer) ToggleHidden() bool {
	x.showHidden = !x.showHidden
	return x.showHidden
}

// PushDir records a directory on the previous-directory stack. The
// stack is bounded: when full, the oldest entry is dropped.
func (x *Explorer) PushDir(path string) {
	if len(x.stack) >= constants.DirStackDepth {
		x.stack = x.stack[1:]
	}
	x.stack = append(x.stack, path)
}

// PopDir removes and returns the most recently pushed directory.
func (x *Explorer) PopDir() (string, bool) {
	if len(x.stack) == 0 {
		return "", false
	}
	last := x.stack[len(x.stack)-1]
	x.stack = x.stack[:len(x.stack)-1]
	return last, true
}

// Depth returns the number of directories on the stack.
func (x *Explorer) Depth() int {
	return len(x.stack)
}

func (x *Explorer) sortEntries() {
	switch x.groupDirs {
	case "first":
		models.SortEntries(x.entries, true)
	case "last":
		sort.SliceStable(x.entries, func(i, j int) bool {
			if x.entries[i].IsDir != x.entries[j].IsDir {
				return !x.entries[i].IsDir
			}
			return x.entries[i].Name < x.entries[j].Name
		})
	default:
		models.SortEntries(x.entries, false)
	}
}
