package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/flashlab/termscp/internal/config"
	"github.com/flashlab/termscp/internal/httpx"
	"github.com/flashlab/termscp/internal/updates"
	"github.com/flashlab/termscp/internal/version"
)

// newUpdateCmd creates the 'update' command.
func newUpdateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "update",
		Short: "Check for a newer release",
		Long: `Query the project's GitHub releases for a version newer than the
running build. No download is performed; the release page URL is
printed when an update exists.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if err := promptProxyPassword(cfg); err != nil {
				return err
			}
			httpClient, err := httpx.NewTransferClient(cfg)
			if err != nil {
				return fmt.Errorf("failed to build HTTP client: %w", err)
			}

			checker := updates.NewChecker(httpClient, GetLogger())
			release, err := checker.Check(GetContext(), version.Version)
			if err != nil {
				return fmt.Errorf("update check failed: %w", err)
			}

			out := cmd.OutOrStdout()
			if release == nil {
				fmt.Fprintf(out, "termscp %s is up to date\n", version.Version)
				return nil
			}
			fmt.Fprintf(out, "New release available: v%s (running %s)\n", release.Version, version.Version)
			fmt.Fprintf(out, "Download: %s\n", release.URL)
			return nil
		},
	}
}

// maybeNotifyUpdate prints a one-line notice after a successful
// transfer when a newer release exists. Failures stay silent; the
// network may only reach the storage endpoint.
func maybeNotifyUpdate(ctx context.Context, cfg *config.Config) {
	if !cfg.Updates.CheckForUpdates {
		return
	}
	httpClient, err := httpx.NewTransferClient(cfg)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	checker := updates.NewChecker(httpClient, GetLogger())
	release, err := checker.Check(ctx, version.Version)
	if err != nil || release == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "\nA new release is available: v%s (%s)\n", release.Version, release.URL)
}
