// Package api is the thin admin HTTP client cmd/cachectl uses to talk to
// a running cmd/cached instance: purge a URL's vary chain, fetch runtime
// stats. Grounded on ais/target.go's jsoniter.Unmarshal idiom for wire
// decoding (the teacher's own api package wasn't part of this retrieval
// set; cmd/cli/commands/*.go shows the CLI-calls-api shape this package
// fills in).
package api

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	jsoniter "github.com/json-iterator/go"
)

// Stats mirrors the JSON body cmd/cached's /stats admin endpoint returns.
type Stats struct {
	Lookups   int64 `json:"lookups"`
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Passes    int64 `json:"passes"`
	Fetches   int64 `json:"fetches"`
	Errors    int64 `json:"errors"`
	Uptime    int64 `json:"uptime_seconds"`
}

// PurgeResult mirrors the JSON body cmd/cached's /purge admin endpoint
// returns.
type PurgeResult struct {
	Purged int `json:"purged"`
}

// Client is a thin wrapper over net/http for the admin surface. It holds
// no cache state of its own.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// NewClient builds a Client with a bounded default timeout.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		HTTP:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Purge asks the daemon to evict every variant cached for host+path.
func (c *Client) Purge(host, path string) (*PurgeResult, error) {
	u := fmt.Sprintf("%s/admin/purge?host=%s&path=%s", c.BaseURL, url.QueryEscape(host), url.QueryEscape(path))
	req, err := http.NewRequest(http.MethodPost, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("api: purge failed: %s", resp.Status)
	}
	var out PurgeResult
	if err := decodeJSON(resp.Body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetStats fetches the daemon's running counters.
func (c *Client) GetStats() (*Stats, error) {
	resp, err := c.HTTP.Get(c.BaseURL + "/admin/stats")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("api: stats failed: %s", resp.Status)
	}
	var out Stats
	if err := decodeJSON(resp.Body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func decodeJSON(r io.Reader, v any) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	return jsoniter.Unmarshal(b, v)
}
