// Package transport implements the backend-connection side of a fetch
// (spec §4.4 STARTFETCH's "open backend connection, send request, read
// response headers"). Adapted from send.go's Stream/Extra shape
// (idle-timeout field, compression knob, a pluggable http.Client) down
// to the narrower contract fetch.Backend needs: open one request, hand
// back a pull-style body reader instead of owning a long-lived stream.
package transport

import (
	"fmt"
	"net/http"
	"time"

	"github.com/vproxy-cache/vproxy/filter"
)

// HTTPBackend dials an origin over plain net/http, keeping Extra's
// IdleTimeout knob (no compression knob) but scoped to a single request/response
// instead of send.go's persistent Stream session (spec's backend-wire
// format is an explicit Non-goal; this type supplies a concrete,
// swappable default rather than leaving fetch.Backend unimplemented).
type HTTPBackend struct {
	Client      *http.Client
	IdleTimeout time.Duration
}

// NewHTTPBackend builds an HTTPBackend whose transport closes idle
// connections after idleTimeout (2s when idleTimeout <= 0). No overall
// client timeout is set.
func NewHTTPBackend(idleTimeout time.Duration) *HTTPBackend {
	if idleTimeout <= 0 {
		idleTimeout = 2 * time.Second
	}
	return &HTTPBackend{
		Client: &http.Client{
			Transport: &http.Transport{
				IdleConnTimeout: idleTimeout,
			},
		},
		IdleTimeout: idleTimeout,
	}
}

// Open implements fetch.Backend: issue the prepared request against addr
// and wrap the response body as a filter.SuckFunc so the fetch filter
// chain can pull it per spec §4.3's VFP contract.
func (b *HTTPBackend) Open(addr string, header http.Header) (int, http.Header, filter.SuckFunc, error) {
	req, err := http.NewRequest(http.MethodGet, addr, nil)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("transport: building backend request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := b.Client.Do(req)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("transport: backend request failed: %w", err)
	}

	suck := func(p []byte) (int, filter.PullStatus) {
		n, err := resp.Body.Read(p)
		if err != nil {
			resp.Body.Close()
			if n > 0 {
				return n, filter.PullOK
			}
			return 0, filter.PullEnd
		}
		return n, filter.PullOK
	}
	return resp.StatusCode, resp.Header, suck, nil
}
