// Package cli provides the command-line interface for termscp.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/flashlab/termscp/internal/logging"
	"github.com/flashlab/termscp/internal/version"
)

var (
	// Global flags
	cfgFile      string
	remoteTarget string
	debug        bool
	quiet        bool

	// Global logger
	logger *logging.Logger

	// Global context for signal handling
	rootContext context.Context
	cancelFunc  context.CancelFunc
)

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "termscp",
		Short: "Terminal file transfer client for S3, Azure Blob and in-memory endpoints",
		Long: `termscp ` + version.Version + ` - transfer files between the local
filesystem and a remote endpoint from the terminal.

Remote targets are addressed as URLs via --remote:

  s3://bucket/path              Amazon S3 (credentials from the AWS
                                default chain; ?region= and ?endpoint=
                                for regions and S3-compatible stores)
  az://container/path           Azure Blob (?account= or
                                AZURE_STORAGE_ACCOUNT, key from
                                AZURE_STORAGE_KEY, or a SAS URL from
                                AZURE_STORAGE_SAS_URL)
  mem://                        In-memory throwaway store

A target without a scheme uses transfer.default_protocol from the
config file.

Examples:
  # Upload a directory to S3
  termscp --remote s3://backups/2026 send ./photos

  # Download two files from Azure into ./in
  termscp --remote az://data recv /results/a.csv /results/b.csv -o ./in

  # Browse a bucket
  termscp --remote "s3://backups?region=eu-central-1" ls /2026`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger = logging.NewDefaultLogger()
			switch {
			case debug:
				logging.SetGlobalLevel(zerolog.DebugLevel)
			case quiet:
				logging.SetGlobalLevel(zerolog.WarnLevel)
			}
		},
	}

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringVarP(&remoteTarget, "remote", "r", "", "Remote target URL (s3://, az://, mem://)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Suppress progress bars and info logs")

	rootCmd.Version = version.Version + " (" + version.BuildTime + ")"

	return rootCmd
}

// Execute runs the CLI.
func Execute() error {
	// Create a context that can be cancelled by signals
	rootContext, cancelFunc = context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		cancelled := false
		for sig := range sigChan {
			if cancelled {
				fmt.Fprintln(os.Stderr, "\nForced quit")
				os.Exit(130)
			}
			cancelled = true
			fmt.Fprintf(os.Stderr, "\nReceived %v, cancelling transfer... press again to force quit\n", sig)
			cancelFunc()
		}
	}()

	rootCmd := NewRootCmd()
	AddCommands(rootCmd)
	err := rootCmd.Execute()

	signal.Stop(sigChan)
	close(sigChan)

	return err
}

// AddCommands adds all subcommands to the root command.
func AddCommands(rootCmd *cobra.Command) {
	rootCmd.AddCommand(newSendCmd())
	rootCmd.AddCommand(newRecvCmd())
	rootCmd.AddCommand(newLsCmd())
	rootCmd.AddCommand(newStatCmd())
	rootCmd.AddCommand(newMkdirCmd())
	rootCmd.AddCommand(newRmCmd())
	rootCmd.AddCommand(newMvCmd())
	rootCmd.AddCommand(newFindCmd())
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newUpdateCmd())
	rootCmd.AddCommand(newVersionCmd())
}

// GetLogger returns the global CLI logger.
func GetLogger() *logging.Logger {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return logger
}

// GetContext returns the global CLI context with signal handling.
// It is cancelled when the user presses Ctrl+C.
func GetContext() context.Context {
	if rootContext == nil {
		return context.Background()
	}
	return rootContext
}
