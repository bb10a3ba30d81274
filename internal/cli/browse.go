package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/flashlab/termscp/internal/models"
	"github.com/flashlab/termscp/internal/util/fmtutil"
)

// formatEntryLine renders one listing row: type, permissions, size,
// modification time, name.
func formatEntryLine(e models.Entry) string {
	typeChar := "-"
	if e.IsDir {
		typeChar = "d"
	}
	pex := "?????????"
	if e.Pex != nil {
		pex = fmtutil.FormatPex(e.Pex.Owner, e.Pex.Group, e.Pex.Others)
	}
	size := "-"
	if !e.IsDir {
		size = fmtutil.FormatSize(e.Size)
	}
	mtime := "-"
	if !e.ModTime.IsZero() {
		mtime = e.ModTime.Format("2006-01-02 15:04")
	}
	name := e.Name
	if e.IsDir {
		name += "/"
	}
	return fmt.Sprintf("%s%s  %10s  %16s  %s", typeChar, pex, size, mtime, name)
}

// newLsCmd creates the 'ls' command.
func newLsCmd() *cobra.Command {
	var showHidden bool

	cmd := &cobra.Command{
		Use:   "ls [path]",
		Short: "List a remote directory",
		Long: `List the remote working directory, or the given path.

Hidden entries (dot-prefixed) are omitted unless --hidden is set.
Sort order follows transfer.group_dirs from the config.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := GetContext()
			sess, err := openSession(ctx)
			if err != nil {
				return err
			}
			defer sess.close()

			if len(args) == 1 {
				if err := sess.ctl.RemoteChangeDir(ctx, args[0], false); err != nil {
					return fmt.Errorf("failed to list %s: %w", args[0], err)
				}
			}
			sess.ctl.Remote().SetShowHidden(showHidden)

			out := cmd.OutOrStdout()
			entries := sess.ctl.Remote().Entries()
			fmt.Fprintf(out, "%s:\n", sess.ctl.RemotePwd())
			if len(entries) == 0 {
				fmt.Fprintln(out, "(empty)")
				return nil
			}
			for _, e := range entries {
				fmt.Fprintln(out, formatEntryLine(e))
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&showHidden, "hidden", "a", false, "Show hidden entries")

	return cmd
}

// newStatCmd creates the 'stat' command.
func newStatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stat <path>",
		Short: "Show details for a remote entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := GetContext()
			sess, err := openSession(ctx)
			if err != nil {
				return err
			}
			defer sess.close()

			entry, err := sess.ctl.RemoteStat(ctx, args[0])
			if err != nil {
				return fmt.Errorf("failed to stat %s: %w", args[0], err)
			}

			out := cmd.OutOrStdout()
			kind := "file"
			if entry.IsDir {
				kind = "directory"
			}
			fmt.Fprintf(out, "Path:     %s\n", entry.Path)
			fmt.Fprintf(out, "Type:     %s\n", kind)
			if !entry.IsDir {
				fmt.Fprintf(out, "Size:     %s (%d bytes)\n", fmtutil.FormatSize(entry.Size), entry.Size)
			}
			if !entry.ModTime.IsZero() {
				fmt.Fprintf(out, "Modified: %s\n", entry.ModTime.Format(time.RFC3339))
			}
			if entry.Pex != nil {
				fmt.Fprintf(out, "Mode:     %s\n", fmtutil.FormatPex(entry.Pex.Owner, entry.Pex.Group, entry.Pex.Others))
			}
			if entry.IsDir {
				total := sess.ctl.TotalSizeRemote(ctx, entry)
				fmt.Fprintf(out, "Total:    %s recursive\n", fmtutil.FormatSize(total))
			}
			return nil
		},
	}
}

// newMkdirCmd creates the 'mkdir' command.
func newMkdirCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mkdir <dir> [dir...]",
		Short: "Create remote directories",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := GetContext()
			sess, err := openSession(ctx)
			if err != nil {
				return err
			}
			defer sess.close()

			for _, arg := range args {
				if err := sess.ctl.RemoteMkdir(ctx, arg); err != nil {
					return fmt.Errorf("failed to create %s: %w", arg, err)
				}
				fmt.Printf("✓ Created %s\n", arg)
			}
			return nil
		},
	}
}

// newRmCmd creates the 'rm' command.
func newRmCmd() *cobra.Command {
	var confirm bool

	cmd := &cobra.Command{
		Use:   "rm <path> [path...]",
		Short: "Remove remote files or directories",
		Long: `Remove one or more remote entries. Directories are removed
recursively.

WARNING: This operation cannot be undone!`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := GetContext()
			sess, err := openSession(ctx)
			if err != nil {
				return err
			}
			defer sess.close()

			entries, err := statRemoteEntries(ctx, sess.ctl, args)
			if err != nil {
				return err
			}

			if !confirm {
				fmt.Printf("You are about to remove %d remote entry(ies). This cannot be undone.\n", len(entries))
				if !promptConfirm("Are you sure?") {
					fmt.Println("Removal cancelled")
					return nil
				}
			}

			for _, entry := range entries {
				if err := sess.ctl.RemoteRemove(ctx, entry); err != nil {
					return fmt.Errorf("failed to remove %s: %w", entry.Path, err)
				}
				fmt.Printf("✓ Removed %s\n", entry.Path)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&confirm, "confirm", false, "Skip confirmation prompt")

	return cmd
}

// newMvCmd creates the 'mv' command.
func newMvCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mv <source> <dest>",
		Short: "Move or rename a remote entry",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := GetContext()
			sess, err := openSession(ctx)
			if err != nil {
				return err
			}
			defer sess.close()

			entry, err := sess.ctl.RemoteStat(ctx, args[0])
			if err != nil {
				return fmt.Errorf("failed to stat %s: %w", args[0], err)
			}
			if err := sess.ctl.RemoteRename(ctx, entry, args[1]); err != nil {
				return fmt.Errorf("failed to move %s: %w", args[0], err)
			}
			fmt.Printf("✓ Moved %s to %s\n", args[0], args[1])
			return nil
		},
	}
}

// newFindCmd creates the 'find' command.
func newFindCmd() *cobra.Command {
	var searchPath string

	cmd := &cobra.Command{
		Use:   "find <pattern>",
		Short: "Search the remote for entries matching a glob pattern",
		Long: `Search the remote working directory tree for entries whose path
matches the glob pattern. ** matches across directory levels.

Examples:
  termscp -r s3://backups find "*.csv"
  termscp -r s3://backups find "2026/**/report-*.pdf"
  termscp -r az://data find "*.log" --path /runs`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := GetContext()
			sess, err := openSession(ctx)
			if err != nil {
				return err
			}
			defer sess.close()

			if searchPath != "" {
				if err := sess.ctl.RemoteChangeDir(ctx, searchPath, false); err != nil {
					return fmt.Errorf("failed to enter %s: %w", searchPath, err)
				}
			}

			matches, err := sess.ctl.FindRemote(ctx, args[0])
			if err != nil {
				return fmt.Errorf("find failed: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(matches) == 0 {
				fmt.Fprintln(out, "No matches")
				return nil
			}
			for _, e := range matches {
				size := "-"
				if !e.IsDir {
					size = fmtutil.FormatSize(e.Size)
				}
				fmt.Fprintf(out, "%10s  %s\n", size, e.Path)
			}
			fmt.Fprintf(out, "\nFound %d match(es)\n", len(matches))
			return nil
		},
	}

	cmd.Flags().StringVar(&searchPath, "path", "", "Directory to search (default: remote working directory)")

	return cmd
}
