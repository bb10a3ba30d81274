package cli

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"

	"github.com/flashlab/termscp/internal/filter"
	"github.com/flashlab/termscp/internal/models"
	"github.com/flashlab/termscp/internal/pathutil"
	"github.com/flashlab/termscp/internal/session"
	"github.com/flashlab/termscp/internal/transfer"
)

// errAborted signals that the user chose to abort at a prompt.
var errAborted = errors.New("aborted by user")

// statLocalEntries resolves command arguments against the local host.
func statLocalEntries(ctl *session.Controller, args []string) ([]models.Entry, error) {
	entries := make([]models.Entry, 0, len(args))
	for _, arg := range args {
		entry, err := ctl.LocalStat(arg)
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", arg, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// statRemoteEntries resolves command arguments against the remote.
func statRemoteEntries(ctx context.Context, ctl *session.Controller, args []string) ([]models.Entry, error) {
	entries := make([]models.Entry, 0, len(args))
	for _, arg := range args {
		entry, err := ctl.RemoteStat(ctx, arg)
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", arg, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// transferFilter translates the --include/--exclude flags into a filter
// config. An empty config means no filtering.
func transferFilter(include, exclude string) filter.Config {
	return filter.Config{
		Include: filter.ParsePatternList(include),
		Exclude: filter.ParsePatternList(exclude),
	}
}

// applyTransferFilter installs the pattern filter on the session and
// drops non-matching top-level files. Directories stay: the engine
// filters their children during the walk.
func applyTransferFilter(ctl *session.Controller, entries []models.Entry, fcfg filter.Config) []models.Entry {
	if fcfg.Empty() {
		return entries
	}
	ctl.SetTransferFilter(func(entry models.Entry) bool {
		return filter.Matches(entry.Name, fcfg)
	})
	kept := entries[:0]
	for _, entry := range entries {
		if entry.IsDir || filter.Matches(entry.Name, fcfg) {
			kept = append(kept, entry)
		}
	}
	return kept
}

// classifyPayload picks the tightest payload kind for the entries: a
// single file gets the known-size fast path, a single directory walks,
// anything else is a batch.
func classifyPayload(entries []models.Entry) transfer.Payload {
	if len(entries) == 1 {
		if entries[0].IsDir {
			return transfer.EntryPayload(entries[0])
		}
		return transfer.FilePayload(entries[0])
	}
	return transfer.BatchPayload(entries)
}

// overwritePolicy tracks prompt answers across a batch.
type overwritePolicy struct {
	overwriteAll bool
	skipAll      bool
}

// decide reports whether an existing destination entry may be replaced.
func (p *overwritePolicy) decide(name, dest string) (bool, error) {
	if p.overwriteAll {
		return true, nil
	}
	if p.skipAll {
		return false, nil
	}
	action, err := promptOverwrite(name, dest)
	if err != nil {
		return false, err
	}
	switch action {
	case OverwriteOnce:
		return true, nil
	case OverwriteAll:
		p.overwriteAll = true
		return true, nil
	case SkipOnce:
		return false, nil
	case SkipAll:
		p.skipAll = true
		return false, nil
	default:
		return false, errAborted
	}
}

// filterSendConflicts drops entries whose remote destination already
// holds a file the user declined to replace. Directories merge without
// prompting, and a failed stat counts as absent; a real connectivity
// problem will surface during the transfer itself.
func filterSendConflicts(ctx context.Context, sess *cliSession, entries []models.Entry, destDir, rename string, overwrite bool) ([]models.Entry, error) {
	if overwrite || !sess.cfg.Transfer.PromptOnOverwrite {
		return entries, nil
	}
	base := pathutil.AbsolutizeRemote(sess.ctl.RemotePwd(), destDir)
	policy := &overwritePolicy{}
	kept := entries[:0]
	for _, entry := range entries {
		name := entry.Name
		if rename != "" && len(entries) == 1 {
			name = rename
		}
		existing, err := sess.ctl.RemoteStat(ctx, path.Join(base, name))
		if err != nil || existing.IsDir {
			kept = append(kept, entry)
			continue
		}
		keep, derr := policy.decide(name, base)
		if derr != nil {
			return nil, derr
		}
		if keep {
			kept = append(kept, entry)
		}
	}
	return kept, nil
}

// filterRecvConflicts is the local-side mirror of filterSendConflicts.
func filterRecvConflicts(sess *cliSession, entries []models.Entry, outdir, rename string, overwrite bool) ([]models.Entry, error) {
	if overwrite || !sess.cfg.Transfer.PromptOnOverwrite {
		return entries, nil
	}
	base := outdir
	if base == "" {
		base = sess.ctl.LocalPwd()
	} else if !filepath.IsAbs(base) {
		base = filepath.Join(sess.ctl.LocalPwd(), base)
	}
	policy := &overwritePolicy{}
	kept := entries[:0]
	for _, entry := range entries {
		name := entry.Name
		if rename != "" && len(entries) == 1 {
			name = rename
		}
		existing, err := sess.ctl.LocalStat(filepath.Join(base, name))
		if err != nil || existing.IsDir {
			kept = append(kept, entry)
			continue
		}
		keep, derr := policy.decide(name, base)
		if derr != nil {
			return nil, derr
		}
		if keep {
			kept = append(kept, entry)
		}
	}
	return kept, nil
}
