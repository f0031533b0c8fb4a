package filter

// Pull-style fetch filters (spec §4.3 "Fetch filters pull"). Status codes
// mirror the teacher's transport package convention of small named ints
// for stream state rather than error values, since END is not an error.
type PullStatus int

const (
	PullOK PullStatus = iota
	PullEnd
	PullError
)

// VFPFilter is the static descriptor for one fetch-side (pull) filter.
type VFPFilter struct {
	Name string
	Init func(ctx *VFPCtx, e *VFPEntry) int
	// Pull fills buf and reports how many bytes were written and the
	// resulting stream status. To obtain upstream bytes the filter calls
	// ctx.PullUpstream(e, buf).
	Pull func(ctx *VFPCtx, e *VFPEntry, buf []byte) (int, PullStatus)
	Fini func(ctx *VFPCtx, e *VFPEntry)
}

type VFPEntry struct {
	Def     *VFPFilter
	Priv    interface{}
	Idx     int
	Calls   int
	BytesIn int64
}

// SuckFunc is the raw upstream byte source below the bottom of the
// fetch filter chain (the backend connection reader, spec §3.7).
type SuckFunc func(buf []byte) (int, PullStatus)

// GetStorageFunc lets a filter request a buffer from the object's
// storage backend rather than allocating its own (spec §4.1: filters
// should reserve workspace/storage, not heap-allocate per call).
type GetStorageFunc func(sz int) []byte

type VFPCtx struct {
	entries     []*VFPEntry
	Suck        SuckFunc
	GetStorage  GetStorageFunc
	latched     bool
	errval      error
}

func NewVFPCtx(suck SuckFunc, getStorage GetStorageFunc) *VFPCtx {
	return &VFPCtx{Suck: suck, GetStorage: getStorage}
}

// Push appends a pull filter to the chain, closest-to-consumer first
// (index 0 is what the fetch FSM calls; the last entry sits just above
// the raw backend reader). A positive Init return means the filter
// declines to participate.
func (ctx *VFPCtx) Push(f *VFPFilter, priv interface{}) error {
	e := &VFPEntry{Def: f, Priv: priv, Idx: len(ctx.entries)}
	if f.Init != nil {
		r := f.Init(ctx, e)
		if r < 0 {
			ctx.latched = true
			return errVFPInit
		}
		if r > 0 {
			return nil
		}
	}
	ctx.entries = append(ctx.entries, e)
	return nil
}

func (ctx *VFPCtx) Len() int             { return len(ctx.entries) }
func (ctx *VFPCtx) Entries() []*VFPEntry { return ctx.entries }

// Pull drives the topmost filter (index 0). Called repeatedly by the
// fetch FSM's FETCHBODY state until status is PullEnd or PullError.
func (ctx *VFPCtx) Pull(buf []byte) (int, PullStatus) {
	if len(ctx.entries) == 0 {
		return ctx.Suck(buf)
	}
	return ctx.pull(0, buf)
}

func (ctx *VFPCtx) pull(idx int, buf []byte) (int, PullStatus) {
	e := ctx.entries[idx]
	n, status := e.Def.Pull(ctx, e, buf)
	e.Calls++
	e.BytesIn += int64(n)
	return n, status
}

// PullUpstream is what a filter calls to get bytes from whatever sits
// above it in fetch order (the next filter, or the raw backend reader if
// this filter is the bottom of the chain).
func (ctx *VFPCtx) PullUpstream(e *VFPEntry, buf []byte) (int, PullStatus) {
	if e.Idx+1 >= len(ctx.entries) {
		return ctx.Suck(buf)
	}
	return ctx.pull(e.Idx+1, buf)
}

func (ctx *VFPCtx) Fini() {
	for i := len(ctx.entries) - 1; i >= 0; i-- {
		e := ctx.entries[i]
		if e.Def.Fini != nil {
			e.Def.Fini(ctx, e)
		}
	}
}

type vfpError string

func (e vfpError) Error() string { return string(e) }

const errVFPInit = vfpError("vfp: filter init failed")
