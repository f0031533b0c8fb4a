// Package gzipf implements the gzip/gunzip/testgunzip filters (spec
// §4.7). It is one of the two places SPEC_FULL.md's grounding ledger
// accepts a standard-library dependency (compress/gzip) over anything in
// the retrieval pack: none of the example repos carry an RFC 1952
// compatible gzip codec, and wire compatibility with real HTTP clients
// is a hard correctness requirement, not a style choice.
//
// Go's compress/gzip does not expose zlib's bit-level inflate cursor, so
// the spec's start/last/stop "bit" fields are tracked here as byte
// offsets into the compressed stream instead of literal bit positions;
// TotalIn/TotalOut remain exact.
package gzipf

import (
	"bytes"
	"compress/gzip"
	"io"

	"github.com/vproxy-cache/vproxy/filter"
)

// Bits is the stored gzip-bits record (spec's OA_GZIPBITS attribute).
type Bits struct {
	StartBit int64
	LastBit  int64
	StopBit  int64
	TotalIn  int64
	TotalOut int64
}

type fetchState struct {
	pr      *io.PipeReader
	pw      *io.PipeWriter
	bits    *Bits
	done    bool
	failed  bool
}

// NewGzip builds the fetch-side (pull) gzip-compress filter: it runs a
// real gzip.Writer over whatever upstream produces and updates bits on
// every chunk pulled downstream.
func NewGzip(bits *Bits) *filter.VFPFilter {
	return &filter.VFPFilter{
		Name: "gzip",
		Init: func(ctx *filter.VFPCtx, e *filter.VFPEntry) int {
			pr, pw := io.Pipe()
			st := &fetchState{pr: pr, pw: pw, bits: bits}
			e.Priv = st
			go func() {
				gz := gzip.NewWriter(pw)
				buf := make([]byte, 32*1024)
				for {
					n, status := ctx.PullUpstream(e, buf)
					if n > 0 {
						bits.TotalIn += int64(n)
						if _, err := gz.Write(buf[:n]); err != nil {
							pw.CloseWithError(err)
							return
						}
						bits.LastBit = bits.TotalOut
					}
					if status == filter.PullEnd {
						gz.Close()
						pw.Close()
						return
					}
					if status == filter.PullError {
						pw.CloseWithError(io.ErrClosedPipe)
						return
					}
				}
			}()
			return 0
		},
		Pull: func(ctx *filter.VFPCtx, e *filter.VFPEntry, buf []byte) (int, filter.PullStatus) {
			st := e.Priv.(*fetchState)
			n, err := st.pr.Read(buf)
			st.bits.TotalOut += int64(n)
			if err == io.EOF {
				st.bits.StopBit = st.bits.TotalOut
				return n, filter.PullEnd
			}
			if err != nil {
				return n, filter.PullError
			}
			return n, filter.PullOK
		},
	}
}

type gunzipFetchState struct {
	pw *io.PipeWriter
	gr *gzip.Reader
}

// NewGunzipFetch builds the fetch-side (pull) gunzip-decompress filter,
// symmetric to NewGzip.
func NewGunzipFetch() *filter.VFPFilter {
	return &filter.VFPFilter{
		Name: "gunzip",
		Init: func(ctx *filter.VFPCtx, e *filter.VFPEntry) int {
			upr, upw := io.Pipe()
			st := &gunzipFetchState{pw: upw}
			e.Priv = st
			go func() {
				buf := make([]byte, 32*1024)
				for {
					n, status := ctx.PullUpstream(e, buf)
					if n > 0 {
						if _, err := upw.Write(buf[:n]); err != nil {
							return
						}
					}
					if status == filter.PullEnd {
						upw.Close()
						return
					}
					if status == filter.PullError {
						upw.CloseWithError(io.ErrClosedPipe)
						return
					}
				}
			}()
			gr, err := gzip.NewReader(upr)
			if err != nil {
				return -1
			}
			st.gr = gr
			return 0
		},
		Pull: func(ctx *filter.VFPCtx, e *filter.VFPEntry, buf []byte) (int, filter.PullStatus) {
			st := e.Priv.(*gunzipFetchState)
			n, err := st.gr.Read(buf)
			if err == io.EOF {
				return n, filter.PullEnd
			}
			if err != nil {
				return n, filter.PullError
			}
			return n, filter.PullOK
		},
	}
}

type deliverState struct {
	buf    bytes.Buffer
	sent   int
	opened bool
}

// NewGunzipDeliver builds the delivery-side (push) gunzip filter: it
// clears Content-Encoding via clearCE (called once, at first Bytes), and
// decompresses every chunk pushed into it before forwarding. Each call
// decodes the whole buffered stream again and forwards only the output
// not yet sent.
func NewGunzipDeliver(clearCE func(), bits *Bits) *filter.VDPFilter {
	return &filter.VDPFilter{
		Name: "gunzip",
		Bytes: func(ctx *filter.VDPCtx, e *filter.VDPEntry, act filter.Action, p []byte) int {
			st, _ := e.Priv.(*deliverState)
			if st == nil {
				st = &deliverState{}
				e.Priv = st
			}
			if !st.opened && clearCE != nil {
				clearCE()
				st.opened = true
			}
			if len(p) > 0 {
				st.buf.Write(p)
			}
			gr, err := gzip.NewReader(bytes.NewReader(st.buf.Bytes()))
			if err != nil {
				if act == filter.ActEnd {
					return -1
				}
				return 0 // not enough header bytes buffered yet
			}
			out, err := io.ReadAll(gr)
			if err != nil && err != io.ErrUnexpectedEOF {
				return -1
			}
			// Everything buffered so far is decoded again; only the
			// bytes not yet forwarded go downstream.
			if len(out) < st.sent {
				return -1
			}
			out = out[st.sent:]
			st.sent += len(out)
			if len(out) > 0 {
				if bits != nil {
					bits.TotalOut += int64(len(out))
				}
				if r := ctx.Forward(e, filter.ActNull, out); r != 0 {
					return r
				}
			}
			if act == filter.ActEnd {
				return ctx.Forward(e, filter.ActEnd, nil)
			}
			return 0
		},
	}
}

// NewTestGunzip validates a gzip stream without producing output,
// tracking TotalIn, TotalOut and StopBit in bits (NewGunzipFetch itself
// keeps no Bits).
func NewTestGunzip(bits *Bits) *filter.VFPFilter {
	return &filter.VFPFilter{
		Name: "testgunzip",
		Init: func(ctx *filter.VFPCtx, e *filter.VFPEntry) int {
			upr, upw := io.Pipe()
			e.Priv = upw
			go func() {
				buf := make([]byte, 32*1024)
				for {
					n, status := ctx.PullUpstream(e, buf)
					if n > 0 {
						bits.TotalIn += int64(n)
						upw.Write(buf[:n])
					}
					if status == filter.PullEnd {
						upw.Close()
						return
					}
					if status == filter.PullError {
						upw.CloseWithError(io.ErrClosedPipe)
						return
					}
				}
			}()
			gr, err := gzip.NewReader(upr)
			if err != nil {
				return -1
			}
			go func() {
				n, _ := io.Copy(io.Discard, gr)
				bits.TotalOut += n
				bits.StopBit = bits.TotalOut
			}()
			return 0
		},
		Pull: func(ctx *filter.VFPCtx, e *filter.VFPEntry, buf []byte) (int, filter.PullStatus) {
			// testgunzip produces no output of its own; it is driven
			// purely by its Init goroutine and always reports end.
			return 0, filter.PullEnd
		},
	}
}
