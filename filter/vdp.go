// Package filter implements the composable byte-transform pipeline used
// by both fetch (pull) and delivery (push), plus the zero-copy
// lease-based alternative (VAI). Spec §4.3. The package name and the
// "filter declines to participate" convention (a positive Init return
// removes the entry) are carried over from the teacher's own (much
// smaller) `filter` package, which this generalizes from a single
// duplicate-suppression filter into the full pipeline core.
package filter

import "github.com/vproxy-cache/vproxy/cmn"

// Action is the act argument to a delivery filter's Bytes call.
type Action int

const (
	ActNull Action = iota
	ActFlush
	ActEnd
)

// VDPFilter is the static descriptor for one delivery-side filter.
type VDPFilter struct {
	Name  string
	Init  func(ctx *VDPCtx, e *VDPEntry) int
	Bytes func(ctx *VDPCtx, e *VDPEntry, act Action, p []byte) int
	Fini  func(ctx *VDPCtx, e *VDPEntry)
}

// VDPEntry is one element of a delivery pipeline: per-instance state plus
// bookkeeping counters (spec §3 "Filter entry").
type VDPEntry struct {
	Def     *VDPFilter
	Priv    interface{}
	Idx     int
	Calls   int
	BytesIn int64
	End     bool // VDP_END already observed for this entry
}

// VDPCtx is the filter-pipeline context for delivery: the ordered entry
// list, the latched return value, and a content-length estimate the
// pipeline may update (e.g. gunzip replacing it with the decoded length).
type VDPCtx struct {
	entries    []*VDPEntry
	latched    bool
	retval     int
	CLEstimate *int64
}

// NewVDPCtx creates an empty delivery pipeline context.
func NewVDPCtx() *VDPCtx { return &VDPCtx{} }

// Push appends a filter to the chain (spec §4.3 "Stacking"). A negative
// Init return latches the pipeline's error and the entry is still
// dropped; a positive Init return means the filter declined to
// participate and is removed without being added to the chain.
func (ctx *VDPCtx) Push(f *VDPFilter, priv interface{}) {
	e := &VDPEntry{Def: f, Priv: priv, Idx: len(ctx.entries)}
	if f.Init != nil {
		r := f.Init(ctx, e)
		if r < 0 {
			ctx.latch(r)
			return
		}
		if r > 0 {
			return
		}
	}
	ctx.entries = append(ctx.entries, e)
}

// Len reports how many filters are actually in the chain (after any that
// declined to participate).
func (ctx *VDPCtx) Len() int { return len(ctx.entries) }

// Entries exposes the chain for diagnostics/tests.
func (ctx *VDPCtx) Entries() []*VDPEntry { return ctx.entries }

func (ctx *VDPCtx) latch(r int) {
	if r == 0 {
		return
	}
	if r < 0 {
		if !ctx.latched || ctx.retval >= 0 || r < ctx.retval {
			ctx.retval = r
			ctx.latched = true
		}
		return
	}
	if !ctx.latched {
		ctx.retval = r
		ctx.latched = true
	}
}

// Latched reports the pipeline's latched return value, if any.
func (ctx *VDPCtx) Latched() (int, bool) { return ctx.retval, ctx.latched }

// Bytes drives the filter at position idx with (act, p), implementing
// the VDP_END exclusivity invariant (spec §8 law 5, resolved as a
// universal invariant per spec §9's Open Question): a filter's Bytes may
// be called with ActEnd at most once. Driver code calls Bytes(0, ...) to
// start the chain; a filter forwards by calling ctx.Bytes(idx+1, ...).
func (ctx *VDPCtx) Bytes(idx int, act Action, p []byte) int {
	if ctx.latched {
		return ctx.retval
	}
	if idx >= len(ctx.entries) {
		return 0 // no more filters: identity passthrough
	}
	e := ctx.entries[idx]
	if act == ActEnd {
		cmn.Assert(!e.End)
		e.End = true
	}
	e.Calls++
	e.BytesIn += int64(len(p))
	r := e.Def.Bytes(ctx, e, act, p)
	ctx.latch(r)
	return ctx.retval
}

// Forward is the convenience a filter calls to push its own output to
// the next entry in the chain.
func (ctx *VDPCtx) Forward(e *VDPEntry, act Action, p []byte) int {
	return ctx.Bytes(e.Idx+1, act, p)
}

// Fini tears down every entry in reverse order, mirroring the teacher's
// scoped-acquisition discipline (every reservation/resource obtained on
// the way in is released on every exit path, spec §4.1).
func (ctx *VDPCtx) Fini() {
	for i := len(ctx.entries) - 1; i >= 0; i-- {
		e := ctx.entries[i]
		if e.Def.Fini != nil {
			e.Def.Fini(ctx, e)
		}
	}
}
