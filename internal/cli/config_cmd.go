package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/flashlab/termscp/internal/config"
)

// newConfigCmd creates the 'config' command group.
func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage termscp configuration",
		Long: `Configuration management commands.

Commands:
  init  - Write a config file with default values
  show  - Display the effective configuration
  path  - Show the config file path`,
	}

	configCmd.AddCommand(newConfigInitCmd())
	configCmd.AddCommand(newConfigShowCmd())
	configCmd.AddCommand(newConfigPathCmd())

	return configCmd
}

// effectiveConfigPath honors --config before the default location.
func effectiveConfigPath() (string, error) {
	if cfgFile != "" {
		return cfgFile, nil
	}
	return config.DefaultConfigPath()
}

// newConfigInitCmd creates the 'config init' command.
func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file with default values",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := effectiveConfigPath()
			if err != nil {
				return err
			}

			if !force {
				if _, err := os.Stat(path); err == nil {
					fmt.Printf("Configuration already exists at: %s\n", path)
					fmt.Println("Use --force to overwrite or 'config show' to view it.")
					return nil
				}
			}

			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return fmt.Errorf("failed to create config directory: %w", err)
			}
			if err := os.WriteFile(path, []byte(defaultTOML()), 0o600); err != nil {
				return fmt.Errorf("failed to write config: %w", err)
			}

			fmt.Printf("✓ Wrote %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config file")

	return cmd
}

// defaultTOML renders the default configuration, so 'config init'
// always matches what Load falls back to.
func defaultTOML() string {
	cfg := config.Default()
	return fmt.Sprintf(`[transfer]
default_protocol = %q
chunk_size = %d
prompt_on_overwrite = %v
group_dirs = %q

[updates]
check_for_updates = %v

[proxy]
mode = %q
url = ""
user = ""
password = ""
no_proxy = ""
`,
		cfg.Transfer.DefaultProtocol, cfg.Transfer.ChunkSize,
		cfg.Transfer.PromptOnOverwrite, cfg.Transfer.GroupDirs,
		cfg.Updates.CheckForUpdates, cfg.Proxy.Mode)
}

// newConfigShowCmd creates the 'config show' command.
func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			password := cfg.Proxy.Password
			if password != "" {
				password = "********"
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "[transfer]")
			fmt.Fprintf(out, "default_protocol    = %q\n", cfg.Transfer.DefaultProtocol)
			fmt.Fprintf(out, "chunk_size          = %d\n", cfg.Transfer.ChunkSize)
			fmt.Fprintf(out, "prompt_on_overwrite = %v\n", cfg.Transfer.PromptOnOverwrite)
			fmt.Fprintf(out, "group_dirs          = %q\n", cfg.Transfer.GroupDirs)
			fmt.Fprintln(out)
			fmt.Fprintln(out, "[updates]")
			fmt.Fprintf(out, "check_for_updates   = %v\n", cfg.Updates.CheckForUpdates)
			fmt.Fprintln(out)
			fmt.Fprintln(out, "[proxy]")
			fmt.Fprintf(out, "mode                = %q\n", cfg.Proxy.Mode)
			fmt.Fprintf(out, "url                 = %q\n", cfg.Proxy.URL)
			fmt.Fprintf(out, "user                = %q\n", cfg.Proxy.User)
			fmt.Fprintf(out, "password            = %q\n", password)
			fmt.Fprintf(out, "no_proxy            = %q\n", cfg.Proxy.NoProxy)
			return nil
		},
	}
}

// newConfigPathCmd creates the 'config path' command.
func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Show the config file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := effectiveConfigPath()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, path)
			if _, err := os.Stat(path); os.IsNotExist(err) {
				fmt.Fprintln(out, "(not created yet, defaults are in effect)")
			}
			return nil
		},
	}
}
