package transport

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/vproxy-cache/vproxy/filter"
)

func TestHTTPBackendOpenReadsFullBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Test", "1")
		w.Write([]byte("origin body"))
	}))
	defer srv.Close()

	b := NewHTTPBackend(0)
	status, header, suck, err := b.Open(srv.URL, http.Header{"Accept": {"*/*"}})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if header.Get("X-Test") != "1" {
		t.Fatalf("expected response header to pass through, got %q", header.Get("X-Test"))
	}

	var got []byte
	buf := make([]byte, 4)
	for {
		n, s := suck(buf)
		got = append(got, buf[:n]...)
		if s == filter.PullEnd || s == filter.PullError {
			break
		}
	}
	if string(got) != "origin body" {
		t.Fatalf("unexpected body: %q", got)
	}
}
