// Package updates checks the project's GitHub releases for a newer
// published version. The check is best-effort: callers treat any error
// as "no update information" rather than a fatal condition.
package updates

import (
	"context"
	"encoding/json"
	"fmt"
	nethttp "net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/flashlab/termscp/internal/constants"
	"github.com/flashlab/termscp/internal/logging"
)

// DefaultReleaseURL is the GitHub endpoint queried for the latest
// published release.
const DefaultReleaseURL = "https://api.github.com/repos/flashlab/termscp/releases/latest"

// Release describes a published release that is newer than the running
// build.
type Release struct {
	// Version is the release version without the leading "v".
	Version string

	// URL points at the release page for the user to visit.
	URL string
}

// retryLogger adapts retryablehttp's logging interface to the
// structured logger. Debug and info chatter from the retry client is
// suppressed.
type retryLogger struct {
	log *logging.Logger
}

func (l *retryLogger) Error(msg string, keysAndValues ...interface{}) {
	l.log.Error().Fields(keysAndValues).Msg(msg)
}

func (l *retryLogger) Info(msg string, keysAndValues ...interface{}) {
}

func (l *retryLogger) Debug(msg string, keysAndValues ...interface{}) {
}

func (l *retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.log.Warn().Fields(keysAndValues).Msg(msg)
}

// Checker performs release lookups against the GitHub API.
type Checker struct {
	client     *nethttp.Client
	log        *logging.Logger
	releaseURL string
}

// NewChecker builds a Checker on top of httpClient, wrapping it with
// retry behaviour. A nil httpClient falls back to the retry client's
// default transport.
func NewChecker(httpClient *nethttp.Client, log *logging.Logger) *Checker {
	if log == nil {
		log = logging.NewDefaultLogger()
	}

	retryClient := retryablehttp.NewClient()
	if httpClient != nil {
		retryClient.HTTPClient = httpClient
	}
	retryClient.RetryMax = constants.UpdateRetryMax
	retryClient.RetryWaitMin = 500 * time.Millisecond
	retryClient.RetryWaitMax = 2 * time.Second
	retryClient.Logger = &retryLogger{log: log}

	return &Checker{
		client:     retryClient.StandardClient(),
		log:        log,
		releaseURL: DefaultReleaseURL,
	}
}

// githubRelease is the subset of the GitHub release payload the check
// cares about.
type githubRelease struct {
	TagName    string `json:"tag_name"`
	HTMLURL    string `json:"html_url"`
	Draft      bool   `json:"draft"`
	Prerelease bool   `json:"prerelease"`
}

// Check queries the releases endpoint and returns the latest release
// when it is strictly newer than current. It returns (nil, nil) when
// the running build is up to date, or when the latest release is a
// draft or prerelease.
func (c *Checker) Check(ctx context.Context, current string) (*Release, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.UpdateCheckTimeout)
	defer cancel()

	req, err := nethttp.NewRequestWithContext(ctx, nethttp.MethodGet, c.releaseURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create release request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("release lookup failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != nethttp.StatusOK {
		return nil, fmt.Errorf("release lookup returned %s", resp.Status)
	}

	var release githubRelease
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return nil, fmt.Errorf("failed to parse release response: %w", err)
	}

	if release.Draft || release.Prerelease {
		c.log.Debugf("Latest release %s is a draft or prerelease, skipping", release.TagName)
		return nil, nil
	}

	latest := strings.TrimPrefix(release.TagName, "v")
	if !IsNewer(current, latest) {
		return nil, nil
	}

	c.log.Info().
		Str("current", current).
		Str("latest", latest).
		Msg("Newer release available")

	return &Release{Version: latest, URL: release.HTMLURL}, nil
}

// IsNewer reports whether candidate is a strictly newer semantic
// version than current. Versions that do not parse as numeric
// major[.minor[.patch]] triples, such as development builds, never
// compare as newer.
func IsNewer(current, candidate string) bool {
	cur, ok := parseVersion(current)
	if !ok {
		return false
	}
	cand, ok := parseVersion(candidate)
	if !ok {
		return false
	}
	for i := 0; i < 3; i++ {
		if cand[i] != cur[i] {
			return cand[i] > cur[i]
		}
	}
	return false
}

// parseVersion splits a vX.Y.Z style string into its numeric parts.
// Pre-release and build suffixes after "-" or "+" are ignored.
func parseVersion(v string) ([3]int, bool) {
	v = strings.TrimPrefix(strings.TrimSpace(v), "v")
	if i := strings.IndexAny(v, "-+"); i >= 0 {
		v = v[:i]
	}
	if v == "" {
		return [3]int{}, false
	}
	parts := strings.Split(v, ".")
	if len(parts) > 3 {
		return [3]int{}, false
	}
	var out [3]int
	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return [3]int{}, false
		}
		out[i] = n
	}
	return out, true
}
