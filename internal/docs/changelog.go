package docs

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/blackwell-systems/docmirror/internal/fault"
)

// maxChangelogBytes caps the response body read by FetchChangelog.
const maxChangelogBytes = 4 << 20

// ChangelogClient fetches the host application's release notes.
type ChangelogClient struct {
	URL        string
	HTTPClient *http.Client
}

// NewChangelogClient returns a client for url with a 10s timeout.
func NewChangelogClient(url string) *ChangelogClient {
	return &ChangelogClient{
		URL:        url,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Fetch downloads the changelog markdown. Transport failures and non-2xx
// responses are KindNetwork faults.
func (c *ChangelogClient) Fetch(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build changelog request: %w", err)
	}
	req.Header.Set("Accept", "text/plain, text/markdown")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", fault.New(fault.KindNetwork, "fetch changelog", err).
			WithRemedy("check your network connection; local docs are still available")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fault.Errorf(fault.KindNetwork, "fetch changelog", "%s returned %s", c.URL, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxChangelogBytes))
	if err != nil {
		return "", fault.New(fault.KindNetwork, "read changelog", err)
	}
	return string(body), nil
}

// LatestReleases returns the preamble-free head of a changelog: the first n
// "## " sections.
func LatestReleases(changelog string, n int) string {
	lines := strings.Split(changelog, "\n")
	var out []string
	sections := 0
	for _, line := range lines {
		if strings.HasPrefix(line, "## ") {
			sections++
			if sections > n {
				break
			}
		}
		if sections > 0 {
			out = append(out, line)
		}
	}
	if sections == 0 {
		return changelog
	}
	return strings.TrimRight(strings.Join(out, "\n"), "\n") + "\n"
}
