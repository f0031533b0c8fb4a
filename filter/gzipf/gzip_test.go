package gzipf_test

import (
	"bytes"
	"compress/gzip"
	"testing"

	"github.com/vproxy-cache/vproxy/filter"
	"github.com/vproxy-cache/vproxy/filter/gzipf"
)

func TestGzipFetchCompressesUpstream(t *testing.T) {
	data := []byte("the quick brown fox jumps over the lazy dog, repeatedly, repeatedly, repeatedly")
	pos := 0
	suck := func(buf []byte) (int, filter.PullStatus) {
		if pos >= len(data) {
			return 0, filter.PullEnd
		}
		n := copy(buf, data[pos:])
		pos += n
		status := filter.PullOK
		if pos >= len(data) {
			status = filter.PullEnd
		}
		return n, status
	}
	ctx := filter.NewVFPCtx(suck, nil)
	bits := &gzipf.Bits{}
	if err := ctx.Push(gzipf.NewGzip(bits), nil); err != nil {
		t.Fatal(err)
	}

	var compressed bytes.Buffer
	buf := make([]byte, 16)
	for {
		n, status := ctx.Pull(buf)
		compressed.Write(buf[:n])
		if status == filter.PullEnd {
			break
		}
		if status == filter.PullError {
			t.Fatal("unexpected pull error")
		}
	}

	gr, err := gzip.NewReader(&compressed)
	if err != nil {
		t.Fatalf("compressed output is not valid gzip: %v", err)
	}
	var out bytes.Buffer
	if _, err := out.ReadFrom(gr); err != nil {
		t.Fatal(err)
	}
	if out.String() != string(data) {
		t.Fatalf("round trip mismatch: got %q", out.String())
	}
	if bits.TotalIn != int64(len(data)) {
		t.Fatalf("expected TotalIn=%d, got %d", len(data), bits.TotalIn)
	}
}

func TestGunzipDeliverClearsEncodingAndDecompresses(t *testing.T) {
	var raw bytes.Buffer
	gw := gzip.NewWriter(&raw)
	gw.Write([]byte("payload"))
	gw.Close()

	ctx := filter.NewVDPCtx()
	var cleared bool
	bits := &gzipf.Bits{}
	ctx.Push(gzipf.NewGunzipDeliver(func() { cleared = true }, bits), nil)
	var out []byte
	ctx.Push(&filter.VDPFilter{
		Name: "sink",
		Bytes: func(ctx *filter.VDPCtx, e *filter.VDPEntry, act filter.Action, p []byte) int {
			out = append(out, p...)
			return 0
		},
	}, nil)

	ctx.Bytes(0, filter.ActNull, raw.Bytes())
	ctx.Bytes(0, filter.ActEnd, nil)

	if !cleared {
		t.Fatal("expected Content-Encoding clear callback to fire")
	}
	if string(out) != "payload" {
		t.Fatalf("expected decompressed 'payload', got %q", out)
	}
}
