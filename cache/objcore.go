package cache

import (
	"sync"
	"time"

	"go.uber.org/atomic"
)

// OcFlag is the set-once bit set on an Objcore (spec §3).
type OcFlag uint32

const (
	OcBusy OcFlag = 1 << iota
	OcHFM         // hit-for-miss
	OcHFP         // hit-for-pass
	OcPrivate
	OcTransient
	OcIMSCand
	OcFailed
	OcCancel
)

// Storage is the minimal contract an Objcore needs from the (out-of-scope)
// storage backend: append bytes, read back a range, and report the
// committed length. Concrete stevedores (file/malloc/persistent/transient)
// implement this; the core never depends on their internals.
type Storage interface {
	Append(p []byte) (n int, err error)
	ReadAt(p []byte, off int64) (n int, err error)
	Len() int64
}

// Objcore is the shared cache record described in spec §3. Fields above
// the dashed line are immutable after insertion; fields below are
// mutable and must only be touched while the owning Objhead's mutex is
// held (spec §5, "Shared-resource policy").
type Objcore struct {
	Digest  Digest
	Xid     uint64
	VaryKey string

	// ---- mutable, guarded by the owning Objhead's mutex ----
	TOrigin time.Time
	TTL     time.Duration
	Grace   time.Duration
	Keep    time.Duration
	flags   atomic.Uint32

	Boc     *Boc     // non-nil only while being filled/streamed
	Store   Storage  // body storage once committed
	StaleOC *Objcore // set on a GRACE hit scheduling a background refetch, or an IMS candidate

	attrs map[string]string // OA_HEADERS/OA_VARY/OA_ESIDATA/OA_GZIPBITS/... (spec §6 "Object attributes")

	mu sync.Mutex
}

// Attr reads a persisted object attribute (spec §6's OA_* table). Empty
// string if unset.
func (oc *Objcore) Attr(name string) string {
	oc.mu.Lock()
	defer oc.mu.Unlock()
	return oc.attrs[name]
}

// SetAttr commits an object attribute. Spec §5's ordering guarantee
// ("header allocations... committed before PREP_STREAM -> STREAM") is
// the caller's responsibility: set attributes before advancing Boc state.
func (oc *Objcore) SetAttr(name, value string) {
	oc.mu.Lock()
	defer oc.mu.Unlock()
	if oc.attrs == nil {
		oc.attrs = make(map[string]string)
	}
	oc.attrs[name] = value
}

// NewObjcore creates a fresh, busy placeholder Objcore for a cache miss.
func NewObjcore(d Digest, varyKey string, xid uint64) *Objcore {
	oc := &Objcore{Digest: d, VaryKey: varyKey, Xid: xid, Boc: NewBoc()}
	oc.SetFlag(OcBusy)
	return oc
}

func (oc *Objcore) SetFlag(f OcFlag)    { oc.flags.Or(uint32(f)) }
func (oc *Objcore) ClearFlag(f OcFlag)  { oc.flags.And(^uint32(f)) }
func (oc *Objcore) HasFlag(f OcFlag) bool {
	return oc.flags.Load()&uint32(f) != 0
}

// Expired reports whether TOrigin+TTL has passed as of `now`.
func (oc *Objcore) Expired(now time.Time) bool {
	return now.After(oc.TOrigin.Add(oc.TTL))
}

// InGrace reports whether the object is past TTL but still within the
// grace window.
func (oc *Objcore) InGrace(now time.Time) bool {
	return oc.Expired(now) && now.Before(oc.TOrigin.Add(oc.TTL).Add(oc.Grace))
}

// InKeep reports whether the object is past grace but still within the
// keep window (usable only as a conditional-refetch template).
func (oc *Objcore) InKeep(now time.Time) bool {
	end := oc.TOrigin.Add(oc.TTL).Add(oc.Grace)
	return now.After(end) && now.Before(end.Add(oc.Keep))
}

// Age returns the elapsed time since t_origin, clamped at zero.
func (oc *Objcore) Age(now time.Time) time.Duration {
	d := now.Sub(oc.TOrigin)
	if d < 0 {
		return 0
	}
	return d
}

// IMSCandidate reports whether this object may serve as a conditional-
// refresh template (spec §3 invariant: requires a strong validator and
// excludes HFM/PRIVATE).
func (oc *Objcore) IMSCandidate(hasStrongValidator bool) bool {
	return hasStrongValidator && !oc.HasFlag(OcHFM) && !oc.HasFlag(OcPrivate)
}

// Lock/Unlock serialize mutation of the fields below the dashed line,
// standing in for the per-objhead lock spec §5 requires ("Operations on
// boc.state: acquire the owning mutex..."). Nothing in this package takes
// it on a caller's behalf: Objhead.Lookup holds only the objhead's own
// mutex. The fetch FSM writes TOrigin/TTL/Grace/Keep without it, before
// the object is unbusied.
func (oc *Objcore) Lock()   { oc.mu.Lock() }
func (oc *Objcore) Unlock() { oc.mu.Unlock() }
