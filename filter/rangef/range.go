// Package rangef implements the Range delivery filter (spec §4.6): a
// thin VDP that tracks a running offset, forwards only the bytes within
// [low, high), and requests early termination once high is reached.
// Grounded on the teacher's transport package, which is the only piece
// of the pack that already tracks a running byte offset across repeated
// writes to a connection.
package rangef

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/vproxy-cache/vproxy/cmn"
	"github.com/vproxy-cache/vproxy/filter"
)

// Spec is a parsed byte range, low inclusive and high exclusive.
type Spec struct {
	Low, High int64
}

// Parse parses a single-range "bytes=low-high" Range header against an
// object of the given total length. known reports whether total is
// authoritative (streaming objects may not know it yet). Only the
// single-range form is supported; a multi-range header returns ok=false,
// the same result as any other range this filter cannot honor.
func Parse(header string, total int64, known bool) (Spec, bool) {
	const prefix = "bytes="
	if !strings.HasPrefix(header, prefix) {
		return Spec{}, false
	}
	body := header[len(prefix):]
	if strings.Contains(body, ",") {
		return Spec{}, false
	}
	parts := strings.SplitN(body, "-", 2)
	if len(parts) != 2 {
		return Spec{}, false
	}
	startStr, endStr := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])

	var low, high int64
	switch {
	case startStr == "" && endStr == "":
		return Spec{}, false
	case startStr == "":
		// suffix range: last N bytes
		n, err := strconv.ParseInt(endStr, 10, 64)
		if err != nil || n < 0 {
			return Spec{}, false
		}
		if !known {
			return Spec{}, false
		}
		low = total - n
		if low < 0 {
			low = 0
		}
		high = total
	case endStr == "":
		n, err := strconv.ParseInt(startStr, 10, 64)
		if err != nil || n < 0 {
			return Spec{}, false
		}
		low = n
		if known {
			high = total
		} else {
			high = -1 // unknown upper bound, resolved lazily against fetched_so_far
		}
	default:
		s, err1 := strconv.ParseInt(startStr, 10, 64)
		e, err2 := strconv.ParseInt(endStr, 10, 64)
		if err1 != nil || err2 != nil || s < 0 || e < s {
			return Spec{}, false
		}
		low = s
		high = e + 1
	}

	if known {
		if low >= total || low < 0 {
			return Spec{}, false
		}
		if high > total {
			high = total
		}
	}
	return Spec{Low: low, High: high}, true
}

// UnsatisfiableResponse builds the 416 headers for an unsatisfiable
// range request against an object of known total length (spec §4.6:
// "emits a 416 with Content-Range: bytes */<total> and zero body").
func UnsatisfiableResponse(total int64) (status int, contentRange string) {
	return 416, fmt.Sprintf("bytes */%d", total)
}

type priv struct {
	spec    Spec
	offset  int64
	done    bool
	reached bool
}

// New builds the Range VDP filter instance for one delivery. The bounds
// are spec.Low and spec.High (High < 0: no upper bound); if the object
// ends before High is reached, Bytes returns -1 (SC_RANGE_SHORT).
func New(spec Spec) *filter.VDPFilter {
	return &filter.VDPFilter{
		Name: "range",
		Init: func(ctx *filter.VDPCtx, e *filter.VDPEntry) int {
			e.Priv = &priv{spec: spec}
			return 0
		},
		Bytes: func(ctx *filter.VDPCtx, e *filter.VDPEntry, act filter.Action, p []byte) int {
			st := e.Priv.(*priv)
			if st.done {
				return 0
			}
			start := st.offset
			end := st.offset + int64(len(p))
			st.offset = end

			loBound := st.spec.Low
			hiBound := st.spec.High

			var segment []byte
			switch {
			case end <= loBound:
				segment = nil
			case start >= hiBound && hiBound >= 0:
				segment = nil
			default:
				from := int64(0)
				to := int64(len(p))
				if start < loBound {
					from = loBound - start
				}
				if hiBound >= 0 && end > hiBound {
					to = hiBound - start
				}
				if from < to {
					segment = p[from:to]
				}
			}

			if len(segment) > 0 {
				if r := ctx.Forward(e, filter.ActNull, segment); r != 0 {
					return r
				}
			}

			if hiBound >= 0 && st.offset >= hiBound {
				st.done = true
				st.reached = true
				return ctx.Forward(e, filter.ActEnd, nil)
			}

			if act == filter.ActEnd {
				st.done = true
				if hiBound >= 0 && !st.reached {
					return -1 // SC_RANGE_SHORT: object ended before the requested range did
				}
				return ctx.Forward(e, filter.ActEnd, nil)
			}
			return 0
		},
	}
}

// ShortReason is the close reason a caller should log when Bytes
// returns the SC_RANGE_SHORT sentinel (-1) from this filter.
var ShortReason = cmn.ReasonRangeShort
