// Package config provides configuration management for termscp.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/flashlab/termscp/internal/constants"
)

// Config is the persisted user configuration.
//
// Config file location:
//   - Unix: ~/.config/termscp/termscp.toml
//   - Windows: %AppData%\termscp\termscp.toml
//
// Every key can be overridden through the environment with a TERMSCP_
// prefix, e.g. TERMSCP_TRANSFER_CHUNK_SIZE=131072.
//
// TOML format:
//
//	[transfer]
//	default_protocol = "s3"
//	chunk_size = 65536
//	prompt_on_overwrite = true
//	group_dirs = "first"
//
//	[updates]
//	check_for_updates = true
//
//	[proxy]
//	mode = "no-proxy"
//	url = ""
//	user = ""
//	password = ""
//	no_proxy = ""
type Config struct {
	Transfer TransferConfig `mapstructure:"transfer"`
	Updates  UpdatesConfig  `mapstructure:"updates"`
	Proxy    ProxyConfig    `mapstructure:"proxy"`
}

// TransferConfig contains settings consumed by the transfer engine and
// the directory explorer.
type TransferConfig struct {
	// DefaultProtocol is the remote scheme assumed when a target carries
	// none. One of "s3", "az", "mem".
	DefaultProtocol string `mapstructure:"default_protocol"`

	// ChunkSize is the copy buffer size in bytes.
	// Minimum: 4096, Default: 65536
	ChunkSize int `mapstructure:"chunk_size"`

	// PromptOnOverwrite asks for confirmation before a transfer replaces
	// an existing file at the destination.
	PromptOnOverwrite bool `mapstructure:"prompt_on_overwrite"`

	// GroupDirs controls where directories sort in listings:
	// "first", "last", or empty for strict name order.
	GroupDirs string `mapstructure:"group_dirs"`
}

// UpdatesConfig contains settings for the release check.
type UpdatesConfig struct {
	// CheckForUpdates enables the GitHub release lookup.
	// Default: true
	CheckForUpdates bool `mapstructure:"check_for_updates"`
}

// ProxyConfig contains the outbound HTTP proxy settings shared by the
// cloud providers and the update check.
type ProxyConfig struct {
	// Mode is one of "no-proxy" (or empty), "system", "basic", "ntlm".
	Mode string `mapstructure:"mode"`

	// URL is the proxy endpoint, e.g. "http://proxy.corp:8080".
	// Required for "basic" and "ntlm" modes.
	URL string `mapstructure:"url"`

	// User and Password authenticate against the proxy. The password is
	// stored in the file - ensure appropriate file permissions, or leave
	// it empty to be prompted at startup.
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`

	// NoProxy is a comma-separated bypass list of hosts and CIDRs.
	NoProxy string `mapstructure:"no_proxy"`
}

// Validation errors
var (
	ErrInvalidProtocol  = errors.New(`transfer.default_protocol must be one of "s3", "az", "mem"`)
	ErrInvalidChunkSize = errors.New("transfer.chunk_size must be at least 4096")
	ErrInvalidGroupDirs = errors.New(`transfer.group_dirs must be "first", "last" or empty`)
	ErrInvalidProxyMode = errors.New(`proxy.mode must be one of "no-proxy", "system", "basic", "ntlm"`)
	ErrMissingProxyURL  = errors.New(`proxy.url is required for "basic" and "ntlm" proxy modes`)
)

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Transfer: TransferConfig{
			DefaultProtocol:   "s3",
			ChunkSize:         constants.TransferChunkSize,
			PromptOnOverwrite: true,
			GroupDirs:         "first",
		},
		Updates: UpdatesConfig{
			CheckForUpdates: true,
		},
		Proxy: ProxyConfig{
			Mode: "no-proxy",
		},
	}
}

// DefaultConfigPath returns the default path for the config file.
func DefaultConfigPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		home, herr := os.UserHomeDir()
		if herr != nil {
			return "", fmt.Errorf("failed to locate config directory: %w", err)
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "termscp", "termscp.toml"), nil
}

// Load reads configuration from a TOML file, falling back to defaults
// when no file exists. An explicit path that exists but cannot be
// parsed is an error; a missing file never is, so first runs work
// without any setup. Environment variables override file values.
func Load(path string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("toml")
	setDefaults(v, cfg)
	v.SetEnvPrefix("TERMSCP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to load config: %w", err)
			}
		}
	} else {
		v.SetConfigName("termscp")
		for _, dir := range searchPaths() {
			v.AddConfigPath(dir)
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to load config: %w", err)
			}
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("transfer.default_protocol", cfg.Transfer.DefaultProtocol)
	v.SetDefault("transfer.chunk_size", cfg.Transfer.ChunkSize)
	v.SetDefault("transfer.prompt_on_overwrite", cfg.Transfer.PromptOnOverwrite)
	v.SetDefault("transfer.group_dirs", cfg.Transfer.GroupDirs)
	v.SetDefault("updates.check_for_updates", cfg.Updates.CheckForUpdates)
	v.SetDefault("proxy.mode", cfg.Proxy.Mode)
	v.SetDefault("proxy.url", cfg.Proxy.URL)
	v.SetDefault("proxy.user", cfg.Proxy.User)
	v.SetDefault("proxy.password", cfg.Proxy.Password)
	v.SetDefault("proxy.no_proxy", cfg.Proxy.NoProxy)
}

func searchPaths() []string {
	var paths []string
	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, "termscp"))
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "termscp"))
	}
	return append(paths, ".")
}

// Validate checks if the configuration is usable.
// Returns nil if valid, or an error describing what's wrong.
func (cfg *Config) Validate() error {
	switch cfg.Transfer.DefaultProtocol {
	case "s3", "az", "mem":
	default:
		return ErrInvalidProtocol
	}
	if cfg.Transfer.ChunkSize < 4096 {
		return ErrInvalidChunkSize
	}
	switch cfg.Transfer.GroupDirs {
	case "", "first", "last":
	default:
		return ErrInvalidGroupDirs
	}

	mode := strings.ToLower(cfg.Proxy.Mode)
	switch mode {
	case "", "no-proxy", "system":
	case "basic", "ntlm":
		if strings.TrimSpace(cfg.Proxy.URL) == "" {
			return ErrMissingProxyURL
		}
	default:
		return ErrInvalidProxyMode
	}
	return nil
}
