package filter

// VAI is the zero-copy alternative to VFP: instead of copying bytes into
// a caller-supplied buffer, a filter leases storage-owned byte ranges
// directly to the consumer, who must later return the lease tokens so
// storage knows the bytes are no longer referenced (spec §4.3 "Lease
// vector"). Every filter in the chain negotiates a minimum capacity with
// its downstream neighbor before the first lease is taken.

// Lease is one zero-copy byte range handed to a consumer, tagged with an
// opaque token the consumer must hand back via VAICtx.Return.
type Lease struct {
	Bytes []byte
	Token int64
}

// Vec is a vector of leases produced by one VAI_Lease call, plus whether
// this vector is the last one for the object.
type Vec struct {
	Leases []Lease
	End    bool
}

// IOSource is the storage-side producer of leases at the bottom of the
// VAI chain (spec's "caret" abstraction: a storage backend that hands
// out byte ranges and later reclaims them by token).
type IOSource interface {
	Lease(max int) (Vec, error)
	Return(tokens []int64)
}

// VAIFilter is the static descriptor for one lease-pipeline filter.
type VAIFilter struct {
	Name string
	// MinCapacity is given the minimum capacity folded so far from the
	// filters before this one (closer to the consumer; entry 0 receives
	// 1) and returns the minimum
	// capacity this filter itself requires, folding the negotiation
	// front-to-back across the whole chain (spec §4.3 "capacity
	// negotiation... the final value is the vector size used throughout
	// the request").
	MinCapacity func(downstreamMin int) int
	Lease       func(ctx *VAICtx, e *VAIEntry, max int) (Vec, error)
}

type VAIEntry struct {
	Def  *VAIFilter
	Idx  int
	Priv interface{}
}

type VAICtx struct {
	entries  []*VAIEntry
	source   IOSource
	capacity int
	caret    []int64
}

func NewVAICtx(source IOSource) *VAICtx { return &VAICtx{source: source, capacity: 1} }

func (ctx *VAICtx) Push(f *VAIFilter, priv interface{}) {
	ctx.entries = append(ctx.entries, &VAIEntry{Def: f, Idx: len(ctx.entries), Priv: priv})
}

// NegotiateCapacity walks the chain front-to-back, folding each filter's
// MinCapacity over the running value, and fixes ctx.capacity to the
// result. Must be called once after all filters are pushed and before
// the first Lease call.
func (ctx *VAICtx) NegotiateCapacity() int {
	cap := 1
	for _, e := range ctx.entries {
		if e.Def.MinCapacity != nil {
			cap = e.Def.MinCapacity(cap)
		}
	}
	ctx.capacity = cap
	return cap
}

func (ctx *VAICtx) Capacity() int { return ctx.capacity }

// Lease drives the topmost filter (index 0); max bounds the number of
// bytes the consumer wants leased this call.
func (ctx *VAICtx) Lease(max int) (Vec, error) {
	if max <= 0 {
		max = ctx.capacity
	}
	if len(ctx.entries) == 0 {
		return ctx.source.Lease(max)
	}
	return ctx.lease(0, max)
}

func (ctx *VAICtx) lease(idx int, max int) (Vec, error) {
	e := ctx.entries[idx]
	return e.Def.Lease(ctx, e, max)
}

// PullIO is what a filter calls to get leases from whatever sits above
// it (the next filter, or the raw storage source at the bottom).
func (ctx *VAICtx) PullIO(e *VAIEntry, max int) (Vec, error) {
	if e.Idx+1 >= len(ctx.entries) {
		return ctx.source.Lease(max)
	}
	return ctx.lease(e.Idx+1, max)
}

// Return queues lease tokens to be handed back to storage. Callers flush
// periodically rather than per-lease to batch the reclaim (spec's design
// note on avoiding lock churn under the per-bucket mutex).
func (ctx *VAICtx) Return(tokens []int64) {
	ctx.caret = append(ctx.caret, tokens...)
}

func (ctx *VAICtx) FlushCaret() {
	if len(ctx.caret) == 0 {
		return
	}
	ctx.source.Return(ctx.caret)
	ctx.caret = ctx.caret[:0]
}
