// Package memsys implements the bump-pointer workspace ("arena") that
// backs every request and busyobj in the core: spec §4.1. It stands in
// for the teacher's referenced-but-not-included *memsys.MMSA/SGL slab
// allocator (see transport/send.go's `MMSA *memsys.MMSA` field) — this
// package is the reconstruction of that contract, sized down to what the
// core actually needs: one contiguous buffer, bump-allocated, with
// snapshot/rollback and a single active reservation.
package memsys

import (
	"fmt"
)

// Arena is a contiguous byte buffer with three cursors and a sticky
// overflow bit, scoped to one task's lifetime (a request or a busyobj).
type Arena struct {
	buf    []byte
	free   int  // offset of the next free byte
	resEnd int  // -1 when not reserved, else the end of the active reservation
	overflowed bool
	name   string // for diagnostics, e.g. "req" or "bo"
}

// Snapshot is an opaque token produced by Snapshot and consumed by Reset.
type Snapshot struct {
	free       int
	overflowed bool
}

const align = 8

// New allocates a fresh Arena backed by a buffer of the given size.
func New(name string, size int) *Arena {
	return &Arena{buf: make([]byte, size), resEnd: -1, name: name}
}

func alignUp(n int) int { return (n + align - 1) &^ (align - 1) }

// Alloc returns an aligned block of at least n bytes, or nil if the
// arena has no room; in that case the overflow bit is set (sticky until
// an explicit Rollback(0)).
func (a *Arena) Alloc(n int) []byte {
	if a.resEnd >= 0 {
		panic(fmt.Sprintf("memsys: Alloc called on %q while a reservation is active", a.name))
	}
	want := alignUp(n)
	if a.free+want > len(a.buf) {
		a.overflowed = true
		return nil
	}
	b := a.buf[a.free : a.free+n : a.free+want]
	a.free += want
	return b
}

// Overflowed reports whether this arena has ever failed an allocation
// since the last Rollback(0).
func (a *Arena) Overflowed() bool { return a.overflowed }

// Snapshot captures the current free pointer for later Reset.
func (a *Arena) Snapshot() Snapshot {
	return Snapshot{free: a.free, overflowed: a.overflowed}
}

// Reset rolls the free pointer back to a previously captured Snapshot.
// If the arena has overflowed since, Reset is a no-op unless the
// snapshot itself was taken in the overflowed state (an "overflowed
// snapshot" token), in which case it still rewinds free but leaves the
// sticky bit set.
func (a *Arena) Reset(s Snapshot) {
	if a.overflowed && !s.overflowed {
		return
	}
	a.free = s.free
}

// Rollback resets the arena to empty; the argument is ignored. Every call
// also clears the sticky overflow bit — the only way to clear it.
func (a *Arena) Rollback(_ int) {
	a.free = 0
	a.overflowed = false
	a.resEnd = -1
}

// Reservation is the live handle to a reserved tail block. At most one
// may be outstanding per Arena.
type Reservation struct {
	a     *Arena
	start int
	cap   int
}

// Bytes returns the reserved block (full capacity; caller tracks how much
// of it it has actually used).
func (r *Reservation) Bytes() []byte { return r.a.buf[r.start : r.start+r.cap] }

// ReserveAll reserves the entire remainder of the arena.
func (a *Arena) ReserveAll() *Reservation {
	return a.Reserve(len(a.buf) - a.free)
}

// Reserve reserves a contiguous tail block of n bytes (or less, if n
// exceeds the remainder — the reservation is then the remainder).
func (a *Arena) Reserve(n int) *Reservation {
	if a.resEnd >= 0 {
		panic(fmt.Sprintf("memsys: Reserve called on %q with a reservation already active", a.name))
	}
	avail := len(a.buf) - a.free
	if n > avail {
		n = avail
	}
	r := &Reservation{a: a, start: a.free, cap: n}
	a.resEnd = a.free + n
	return r
}

// Release commits `used` bytes of the reservation to the arena and
// clears the active-reservation lock. Every code path that obtained a
// Reservation must call Release or ReleaseTo exactly once, including
// error paths (scoped-acquisition discipline, spec §4.1).
func (r *Reservation) Release(used int) {
	if used < 0 || r.start+used > r.a.resEnd {
		panic("memsys: Release out of reservation bounds")
	}
	r.a.free = r.start + used
	r.a.resEnd = -1
}

// ReleaseTo is Release expressed as an absolute pointer (offset) rather
// than a byte count, for callers that tracked a cursor directly.
func (r *Reservation) ReleaseTo(ptr int) {
	r.Release(ptr - r.start)
}

// Reserved reports whether this arena currently has an active
// reservation (used by tests and by defensive assertions elsewhere).
func (a *Arena) Reserved() bool { return a.resEnd >= 0 }

// Len returns the number of bytes committed so far.
func (a *Arena) Len() int { return a.free }

// Cap returns the arena's total capacity.
func (a *Arena) Cap() int { return len(a.buf) }
