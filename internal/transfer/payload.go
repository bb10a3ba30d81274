package transfer

import "github.com/flashlab/termscp/internal/models"

// PayloadKind selects how a transfer request is interpreted.
type PayloadKind int

const (
	// PayloadFile is one file with a known size. On receive, the
	// destination argument names the full target file path.
	PayloadFile PayloadKind = iota
	// PayloadEntry is one entry of unknown kind, resolved during the walk.
	PayloadEntry
	// PayloadBatch is an ordered list of entries processed in sequence.
	PayloadBatch
)

// Payload is the unit of a transfer request. Entries are read-only
// snapshots from a provider scan; they are not re-validated mid-transfer.
type Payload struct {
	Kind    PayloadKind
	entries []models.Entry
}

// FilePayload wraps a single file entry.
func FilePayload(file models.Entry) Payload {
	return Payload{Kind: PayloadFile, entries: []models.Entry{file}}
}

// EntryPayload wraps a single entry that may be a file or a directory.
func EntryPayload(entry models.Entry) Payload {
	return Payload{Kind: PayloadEntry, entries: []models.Entry{entry}}
}

// BatchPayload wraps an ordered list of entries.
func BatchPayload(entries []models.Entry) Payload {
	return Payload{Kind: PayloadBatch, entries: entries}
}

// Entries returns the payload's entries in order.
func (p Payload) Entries() []models.Entry {
	return p.entries
}

// Name returns a display name for the payload: the single entry's name,
// or a count for batches.
func (p Payload) Name() string {
	switch p.Kind {
	case PayloadBatch:
		if len(p.entries) == 1 {
			return p.entries[0].Name
		}
		return "batch"
	default:
		if len(p.entries) > 0 {
			return p.entries[0].Name
		}
		return ""
	}
}

// TotalKnownSize sums the sizes already carried by the payload entries.
// Directory entries contribute zero; the engine walks providers for the
// real aggregate.
func (p Payload) TotalKnownSize() int64 {
	var total int64
	for _, e := range p.entries {
		if !e.IsDir {
			total += e.Size
		}
	}
	return total
}
