package cli

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/flashlab/termscp/internal/transfer"
)

// newRecvCmd creates the 'recv' command.
func newRecvCmd() *cobra.Command {
	var outDir string
	var rename string
	var overwrite bool
	var include string
	var exclude string

	cmd := &cobra.Command{
		Use:   "recv <remote-path> [remote-path...]",
		Short: "Download remote files or directories",
		Long: `Download one or more remote files or directories.

Paths are resolved against the remote working directory (the URL path
of --remote). Directories are fetched recursively; free disk space is
checked before data is written. --include and --exclude select files
by glob pattern; directories are always walked.

Examples:
  # Download a file into the current directory
  termscp -r s3://backups recv /2026/report.pdf

  # Download a directory into ./results under a new name
  termscp -r az://data recv /runs/latest -o ./results --rename run-42

  # Download several entries as one batch
  termscp -r s3://backups recv a.csv b.csv /logs -o ./in

  # Download only the CSVs from a run
  termscp -r az://data recv /runs/latest --include "*.csv" -o ./in`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if rename != "" && len(args) > 1 {
				return fmt.Errorf("--rename applies to a single source only")
			}

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
			entries = applyTransferFilter(sess.ctl, entries, transferFilter(include, exclude))
			entries, err = filterRecvConflicts(sess, entries, outDir, rename, overwrite)
			if err != nil {
				if errors.Is(err, errAborted) {
					fmt.Println("Transfer aborted")
					return nil
				}
				return err
			}
			if len(entries) == 0 {
				fmt.Println("Nothing to transfer")
				return nil
			}

			payload := classifyPayload(entries)
			err = runTransfer(sess.bus, newReporter(payload), func() error {
				if payload.Kind == transfer.PayloadFile {
					// A single file downloads straight to its target path.
					name := entries[0].Name
					if rename != "" {
						name = rename
					}
					return sess.ctl.Recv(ctx, payload, filepath.Join(outDir, name), "")
				}
				return sess.ctl.Recv(ctx, payload, outDir, rename)
			})
			if err != nil {
				return fmt.Errorf("recv failed: %w", err)
			}

			maybeNotifyUpdate(ctx, sess.cfg)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outDir, "outdir", "o", "", "Local destination directory (default: current directory)")
	cmd.Flags().StringVar(&rename, "rename", "", "Store the single source under a different name")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace existing local files without prompting")
	cmd.Flags().StringVar(&include, "include", "", "Comma-separated glob patterns; only matching files transfer")
	cmd.Flags().StringVar(&exclude, "exclude", "", "Comma-separated glob patterns; matching files are skipped")

	return cmd
}
