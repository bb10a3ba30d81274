// Package httpx builds the tuned HTTP clients shared by the cloud
// providers and the update check: proxy support (system, basic, NTLM),
// connection pooling and HTTP/2.
package httpx

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	ntlmssp "github.com/Azure/go-ntlmssp"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http/httpproxy"

	"github.com/flashlab/termscp/internal/config"
	"github.com/flashlab/termscp/internal/constants"
)

// Configure builds an HTTP client honoring the proxy settings.
func Configure(cfg *config.Config) (*http.Client, error) {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   constants.HTTPDialTimeout,
			KeepAlive: constants.HTTPDialKeepAlive,
		}).DialContext,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   100,
		MaxConnsPerHost:       100,
		IdleConnTimeout:       constants.HTTPIdleConnTimeout,
		TLSHandshakeTimeout:   constants.HTTPTLSHandshakeTimeout,
		ExpectContinueTimeout: constants.HTTPExpectContinueTimeout,
	}

	switch strings.ToLower(cfg.Proxy.Mode) {
	case "no-proxy", "":
		transport.Proxy = nil

	case "system":
		transport.Proxy = http.ProxyFromEnvironment

	case "ntlm":
		// Missing endpoint degrades to no-proxy rather than failing
		if strings.TrimSpace(cfg.Proxy.URL) == "" {
			log.Warn().Msg("Proxy mode is NTLM but url is missing; falling back to no-proxy mode")
			transport.Proxy = nil
			return &http.Client{Transport: transport, Timeout: 300 * time.Second}, nil
		}
		proxyURL, err := buildProxyURL(cfg.Proxy)
		if err != nil {
			return nil, err
		}
		transport.Proxy = proxyFuncWithBypass(proxyURL, cfg.Proxy.NoProxy)

		// NTLM negotiation wraps the whole round trip
		return &http.Client{
			Transport: ntlmssp.Negotiator{
				RoundTripper: transport,
			},
			Timeout: 300 * time.Second,
		}, nil

	case "basic":
		if strings.TrimSpace(cfg.Proxy.URL) == "" {
			log.Warn().Msg("Proxy mode is basic but url is missing; falling back to no-proxy mode")
			transport.Proxy = nil
			return &http.Client{Transport: transport, Timeout: 300 * time.Second}, nil
		}
		proxyURL, err := buildProxyURL(cfg.Proxy)
		if err != nil {
			return nil, err
		}
		transport.Proxy = proxyFuncWithBypass(proxyURL, cfg.Proxy.NoProxy)

		if cfg.Proxy.User != "" && cfg.Proxy.Password == "" {
			log.Warn().Msg("Proxy user configured but password missing; proxy auth disabled until password is set")
		}

	default:
		return nil, fmt.Errorf("unsupported proxy mode: %s", cfg.Proxy.Mode)
	}

	return &http.Client{Transport: transport, Timeout: 300 * time.Second}, nil
}

// buildProxyURL parses the configured proxy endpoint, defaulting the
// scheme to http and the port to 8080. Credentials are embedded only
// when both user and password are present; an empty password in the URL
// can break auth with some proxies.
func buildProxyURL(p config.ProxyConfig) (*url.URL, error) {
	raw := p.URL
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy url %q: %w", p.URL, err)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("invalid proxy url %q: missing host", p.URL)
	}
	if u.Port() == "" {
		u.Host = net.JoinHostPort(u.Hostname(), "8080")
	}
	if p.User != "" && p.Password != "" {
		u.User = url.UserPassword(p.User, p.Password)
	}
	return u, nil
}

// proxyFuncWithBypass returns a proxy function that respects the
// no_proxy bypass list. With an empty list it behaves identically to
// http.ProxyURL; otherwise golang.org/x/net/http/httpproxy matches
// hosts, domains and CIDRs.
func proxyFuncWithBypass(proxyURL *url.URL, noProxy string) func(*http.Request) (*url.URL, error) {
	if noProxy == "" {
		return http.ProxyURL(proxyURL)
	}
	cfg := httpproxy.Config{
		HTTPProxy:  proxyURL.String(),
		HTTPSProxy: proxyURL.String(),
		NoProxy:    noProxy,
	}
	proxyFunc := cfg.ProxyFunc()
	return func(req *http.Request) (*url.URL, error) {
		result, err := proxyFunc(req.URL)
		if result == nil {
			log.Debug().Msgf("proxy bypass: %s (direct connection)", req.URL.Host)
		} else {
			log.Debug().Msgf("proxied: %s via %s", req.URL.Host, result.Host)
		}
		return result, err
	}
}

// NeedsProxyPassword reports whether the proxy configuration requires a
// password that has not been provided. The CLI uses this to decide
// whether to prompt interactively before connecting.
func NeedsProxyPassword(cfg *config.Config) bool {
	mode := strings.ToLower(cfg.Proxy.Mode)
	if mode != "basic" && mode != "ntlm" {
		return false
	}
	return cfg.Proxy.User != "" && cfg.Proxy.Password == ""
}
