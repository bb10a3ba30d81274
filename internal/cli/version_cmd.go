package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/flashlab/termscp/internal/version"
)

// newVersionCmd creates the 'version' command.
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "termscp %s\n", version.Version)
			fmt.Fprintf(out, "  built:    %s\n", version.BuildTime)
			fmt.Fprintf(out, "  platform: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}
