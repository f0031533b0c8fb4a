package cache

import (
	"sync"

	"go.uber.org/atomic"
)

// BocState is the busy-object lifecycle state from spec §3, totally
// ordered, monotonically increasing, with FAILED reachable from any
// non-terminal state and absorbing (spec §8, law 1).
type BocState int32

const (
	BosInvalid BocState = iota
	BosReqDone
	BosPrepStream
	BosStream
	BosFinished
	BosFailed
)

func (s BocState) String() string {
	switch s {
	case BosInvalid:
		return "INVALID"
	case BosReqDone:
		return "REQ_DONE"
	case BosPrepStream:
		return "PREP_STREAM"
	case BosStream:
		return "STREAM"
	case BosFinished:
		return "FINISHED"
	case BosFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Boc is the busy-object control block: present only while an object is
// being filled or streamed (spec §3). Its state-publication discipline is
// generalized from the teacher's xaction/demand.XactDemandBase idle-tick
// pattern (demand.go): there, a single active/idle condition is tracked
// with an atomic counter and a condvar-backed "tick" channel; here the
// same shape — atomic counter plus condvar broadcast — is widened from
// two states to the five-state lattice above, and `fetched_so_far` is
// published under the same lock as the state change so that the
// happens-before relationship required by spec §5 ("fetched_so_far
// updates are published before the waking broadcast") holds.
type Boc struct {
	mu       sync.Mutex
	cond     *sync.Cond
	state    BocState
	fetched  atomic.Int64 // fetched_so_far; monotonically nondecreasing
	refs     atomic.Int32 // reference count
	vary     []byte       // vary header blob, committed before PREP_STREAM
	hwm      int64        // transit-buffer high-watermark for backpressure
}

// NewBoc creates a Boc in the INVALID state.
func NewBoc() *Boc {
	b := &Boc{state: BosInvalid}
	b.cond = sync.NewCond(&b.mu)
	b.refs.Store(1)
	return b
}

// SetState publishes the next state. Panics if the caller attempts to
// move state backwards (monotonicity is a core invariant, spec §8 law 1),
// except that FAILED may be set from any non-terminal state.
func (b *Boc) SetState(next BocState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == BosFinished || b.state == BosFailed {
		return // terminal; no further transitions (spec §3 invariants)
	}
	if next != BosFailed && next < b.state {
		panic("cache: boc state must not decrease")
	}
	b.state = next
	b.cond.Broadcast()
}

// State returns the current state.
func (b *Boc) State() BocState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// ExtendFetched publishes a new, larger fetched_so_far under the same
// lock as any pending state change, then broadcasts. Callers append
// bytes to storage first and only then call ExtendFetched, so that a
// waiter woken by the broadcast can safely read up to the new value.
func (b *Boc) ExtendFetched(n int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n < b.fetched.Load() {
		panic("cache: fetched_so_far must not decrease")
	}
	b.fetched.Store(n)
	b.cond.Broadcast()
}

// FetchedSoFar returns the current byte watermark.
func (b *Boc) FetchedSoFar() int64 { return b.fetched.Load() }

// WaitState blocks until state >= want or state == FAILED, then returns
// the observed state. This is the `wait_state(want)` primitive from
// spec §5.
func (b *Boc) WaitState(want BocState) BocState {
	b.mu.Lock()
	defer b.mu.Unlock()
	for b.state < want && b.state != BosFailed {
		b.cond.Wait()
	}
	return b.state
}

// WaitFetched blocks until fetched_so_far >= want or the state reaches
// FINISHED/FAILED, returning the observed (fetched, state) pair. Used by
// streaming delivery (ObjIterate) and by CONDFETCH's stale-object wait.
func (b *Boc) WaitFetched(want int64) (int64, BocState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for b.fetched.Load() < want && b.state != BosFinished && b.state != BosFailed {
		b.cond.Wait()
	}
	return b.fetched.Load(), b.state
}

// SetVary commits the encoded Vary blob. Must happen before PREP_STREAM
// per spec §5 ("Header allocations on the object ... are committed before
// PREP_STREAM -> STREAM").
func (b *Boc) SetVary(v []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.vary = v
}

func (b *Boc) Vary() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.vary
}

// SetHighWatermark records the transit-buffer backpressure threshold.
func (b *Boc) SetHighWatermark(n int64) { b.hwm = n }
func (b *Boc) HighWatermark() int64     { return b.hwm }

// IncRef/DecRef implement the Boc's reference count.
func (b *Boc) IncRef() { b.refs.Inc() }

// DecRef decrements the reference count and reports whether it reached
// zero (the caller is then responsible for releasing the Boc).
func (b *Boc) DecRef() bool { return b.refs.Dec() == 0 }
