// Package factory parses remote target URLs and builds the matching
// provider. Credentials are never part of the target: the S3 provider
// falls back to the SDK credential chain and the Azure provider reads
// the usual AZURE_STORAGE_* variables. Non-secret connection options
// ride along as query parameters and win over the environment.
package factory

import (
	nethttp "net/http"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/flashlab/termscp/internal/remotefs"
	"github.com/flashlab/termscp/internal/remotefs/azurefs"
	"github.com/flashlab/termscp/internal/remotefs/memfs"
	"github.com/flashlab/termscp/internal/remotefs/s3fs"
)

// Target is a parsed remote endpoint.
//
//	s3://bucket/path?region=eu-west-1&endpoint=http://localhost:9000
//	az://container/path?account=myaccount
//	mem://scratch
type Target struct {
	Protocol string // "s3", "az" or "mem"
	Name     string // bucket or container name; empty for mem
	Path     string // initial remote working directory
	Region   string // s3 region override
	Endpoint string // custom service endpoint (MinIO, Azurite)
	Account  string // azure storage account name
}

// ParseTarget splits a remote target of the form scheme://name/path?opts.
// A target without a scheme is interpreted against defaultProtocol.
func ParseTarget(raw, defaultProtocol string) (Target, error) {
	if raw == "" {
		return Target{}, remotefs.NewErrorMsg(remotefs.KindProtocol, "remote target is required")
	}

	// Bucket names may contain characters url.Parse rejects in a host,
	// so the target is split by hand and only the query goes through
	// the stdlib parser.
	base, query, _ := strings.Cut(raw, "?")
	opts, err := url.ParseQuery(query)
	if err != nil {
		return Target{}, remotefs.Errorf(remotefs.KindProtocol, "bad options in target %q: %v", raw, err)
	}

	scheme := defaultProtocol
	rest := base
	if i := strings.Index(base, "://"); i >= 0 {
		scheme = base[:i]
		rest = base[i+3:]
	}

	t := Target{
		Protocol: scheme,
		Region:   opts.Get("region"),
		Endpoint: opts.Get("endpoint"),
		Account:  opts.Get("account"),
	}
	switch scheme {
	case "s3", "az":
		name, dir, _ := strings.Cut(rest, "/")
		if name == "" {
			return Target{}, remotefs.Errorf(remotefs.KindProtocol, "target %q is missing a %s name", raw, schemeNoun(scheme))
		}
		t.Name = name
		t.Path = cleanPath(dir)
		return t, nil
	case "mem":
		t.Path = cleanPath(rest)
		return t, nil
	default:
		return Target{}, remotefs.Errorf(remotefs.KindProtocol, "unsupported protocol %q (expected s3, az or mem)", scheme)
	}
}

// Build creates the provider for a parsed target. The returned provider
// is not yet connected; httpClient is the shared transport and may be
// nil.
func Build(t Target, httpClient *nethttp.Client) (remotefs.Provider, error) {
	switch t.Protocol {
	case "s3":
		region := t.Region
		if region == "" {
			region = envFirst("AWS_REGION", "AWS_DEFAULT_REGION")
		}
		endpoint := t.Endpoint
		if endpoint == "" {
			endpoint = envFirst("AWS_ENDPOINT_URL_S3", "AWS_ENDPOINT_URL")
		}
		return s3fs.New(s3fs.Options{
			Bucket:     t.Name,
			Region:     region,
			Endpoint:   endpoint,
			HTTPClient: httpClient,
		})
	case "az":
		account := t.Account
		if account == "" {
			account = os.Getenv("AZURE_STORAGE_ACCOUNT")
		}
		endpoint := t.Endpoint
		if endpoint == "" {
			endpoint = os.Getenv("AZURE_STORAGE_ENDPOINT")
		}
		return azurefs.New(azurefs.Options{
			Container:  t.Name,
			Account:    account,
			Key:        os.Getenv("AZURE_STORAGE_KEY"),
			SASURL:     os.Getenv("AZURE_STORAGE_SAS_URL"),
			Endpoint:   endpoint,
			HTTPClient: httpClient,
		})
	case "mem":
		p := memfs.New()
		// A scratch remote starts empty, so the requested directory is
		// seeded rather than required to exist.
		if t.Path != "/" {
			p.PutDir(t.Path)
		}
		return p, nil
	default:
		return nil, remotefs.Errorf(remotefs.KindProtocol, "unsupported protocol %q", t.Protocol)
	}
}

func cleanPath(p string) string {
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}

func schemeNoun(scheme string) string {
	if scheme == "az" {
		return "container"
	}
	return "bucket"
}

func envFirst(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

// Compile-time interface verification
var (
	_ remotefs.Provider = (*s3fs.Provider)(nil)
	_ remotefs.Provider = (*azurefs.Provider)(nil)
	_ remotefs.Provider = (*memfs.Provider)(nil)
	_ remotefs.Finder   = (*s3fs.Provider)(nil)
	_ remotefs.Finder   = (*azurefs.Provider)(nil)
)
