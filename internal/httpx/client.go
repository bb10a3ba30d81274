package httpx

import (
	"crypto/tls"
	"net/http"
	"os"
	"strings"

	"golang.org/x/net/http2"

	"github.com/flashlab/termscp/internal/config"
	"github.com/flashlab/termscp/internal/constants"
)

// NewTransferClient creates an HTTP client tuned for large object
// transfers, layered on the proxy-aware base from Configure.
//
// Key characteristics:
//   - Large connection pool for concurrent range reads (512 total,
//     100 per host)
//   - No overall timeout; operations bound themselves via context
//   - HTTP/2 with a runtime toggle (DISABLE_HTTP2=true forces 1.1)
//   - Compression disabled: payloads are opaque file bytes
//
// A nil cfg skips proxy configuration and reads the standard proxy
// environment variables instead.
func NewTransferClient(cfg *config.Config) (*http.Client, error) {
	var base *http.Client
	if cfg != nil {
		var err error
		base, err = Configure(cfg)
		if err != nil {
			return nil, err
		}
	} else {
		base = &http.Client{}
	}

	tr, ok := base.Transport.(*http.Transport)
	if !ok {
		// The NTLM negotiator wraps the transport, so the pool tuning
		// below cannot be applied. Clear the timeout and hand it back.
		base.Timeout = 0
		return base, nil
	}

	tr.MaxIdleConns = 512
	tr.MaxIdleConnsPerHost = 100
	tr.MaxConnsPerHost = 100
	tr.IdleConnTimeout = constants.HTTPIdleConnTimeout
	tr.TLSHandshakeTimeout = constants.HTTPTLSHandshakeTimeout
	tr.ExpectContinueTimeout = constants.HTTPExpectContinueTimeout
	tr.DisableCompression = true
	tr.ForceAttemptHTTP2 = true
	_ = http2.ConfigureTransport(tr)

	if os.Getenv("DISABLE_HTTP2") == "true" {
		disableHTTP2(tr)
	}

	// Proxies often mishandle HTTP/2 multiplexing mid-transfer, so
	// downgrade to 1.1 whenever a proxy is in the path. FORCE_HTTP2=true
	// overrides for proxies known to cope.
	if proxyActive(cfg) && os.Getenv("FORCE_HTTP2") != "true" {
		disableHTTP2(tr)
	}

	base.Transport = tr
	base.Timeout = 0
	return base, nil
}

func disableHTTP2(tr *http.Transport) {
	tr.ForceAttemptHTTP2 = false
	tr.TLSNextProto = make(map[string]func(string, *tls.Conn) http.RoundTripper)
}

// proxyActive reports whether requests will traverse a proxy. The
// configured mode wins; "system" mode and a nil config consult the
// environment.
func proxyActive(cfg *config.Config) bool {
	if cfg == nil {
		return envProxySet()
	}
	switch strings.ToLower(cfg.Proxy.Mode) {
	case "no-proxy", "":
		return false
	case "system":
		return envProxySet()
	default:
		return true
	}
}

func envProxySet() bool {
	return os.Getenv("HTTP_PROXY") != "" || os.Getenv("HTTPS_PROXY") != "" ||
		os.Getenv("http_proxy") != "" || os.Getenv("https_proxy") != ""
}
