package cli

import (
	"fmt"

	"github.com/flashlab/termscp/internal/config"
	"github.com/flashlab/termscp/internal/httpx"
	"github.com/flashlab/termscp/internal/remotefs"
	"github.com/flashlab/termscp/internal/remotefs/factory"
)

// newProvider builds a remote provider from a target URL. The returned
// directory is the initial remote working directory encoded in the URL
// path, "/" when absent. Targets without a scheme assume
// transfer.default_protocol from the config.
//
//	s3://bucket/path?region=eu-west-1&endpoint=http://localhost:9000
//	az://container/path?account=myaccount
//	mem://
//
// S3 credentials come from the AWS default chain (environment, shared
// config, instance metadata). Azure reads AZURE_STORAGE_ACCOUNT,
// AZURE_STORAGE_KEY and AZURE_STORAGE_SAS_URL from the environment.
func newProvider(cfg *config.Config, target string) (remotefs.Provider, string, error) {
	if target == "" {
		return nil, "", fmt.Errorf("a remote target is required, pass --remote (e.g. --remote s3://bucket)")
	}
	t, err := factory.ParseTarget(target, cfg.Transfer.DefaultProtocol)
	if err != nil {
		return nil, "", err
	}
	httpClient, err := httpx.NewTransferClient(cfg)
	if err != nil {
		return nil, "", fmt.Errorf("failed to build HTTP client: %w", err)
	}
	provider, err := factory.Build(t, httpClient)
	if err != nil {
		return nil, "", err
	}
	return provider, t.Path, nil
}
