package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

// newSendCmd creates the 'send' command.
func newSendCmd() *cobra.Command {
	var destDir string
	var rename string
	var overwrite bool
	var include string
	var exclude string

	cmd := &cobra.Command{
		Use:   "send <path> [path...]",
		Short: "Upload local files or directories to the remote",
		Long: `Upload one or more local files or directories to the remote.

Directories are sent recursively. With several sources the transfer
runs as a batch and per-entry failures do not stop the rest.
--include and --exclude select files by glob pattern; directories are
always walked.

Examples:
  # Upload a single file into the remote working directory
  termscp -r s3://backups send report.pdf

  # Upload a directory under a different name
  termscp -r s3://backups send ./build --dest /releases --rename v1.4

  # Upload several sources as one batch
  termscp -r az://data send a.csv b.csv ./logs

  # Upload only the compressed logs
  termscp -r az://data send ./logs --include "*.gz" --exclude "debug*"`,
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

			entries, err := statLocalEntries(sess.ctl, args)
			if err != nil {
				return err
			}
			entries = applyTransferFilter(sess.ctl, entries, transferFilter(include, exclude))
			entries, err = filterSendConflicts(ctx, sess, entries, destDir, rename, overwrite)
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
				return sess.ctl.Send(ctx, payload, destDir, rename)
			})
			if err != nil {
				return fmt.Errorf("send failed: %w", err)
			}

			maybeNotifyUpdate(ctx, sess.cfg)
			return nil
		},
	}

	cmd.Flags().StringVarP(&destDir, "dest", "d", "", "Remote destination directory (default: remote working directory)")
	cmd.Flags().StringVar(&rename, "rename", "", "Store the single source under a different name")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace existing remote files without prompting")
	cmd.Flags().StringVar(&include, "include", "", "Comma-separated glob patterns; only matching files transfer")
	cmd.Flags().StringVar(&exclude, "exclude", "", "Comma-separated glob patterns; matching files are skipped")

	return cmd
}
