package cache

import (
	"sync"
	"time"
)

// LookupOutcome is the result of a hash lookup (spec §4.5, LOOKUP state).
type LookupOutcome int

const (
	LookupHit LookupOutcome = iota
	LookupGrace
	LookupMiss
	LookupHitMiss
	LookupHitPass
	LookupBusy
)

// Waiter is a parked client request: a callback the Objhead invokes
// (exactly once) when it is rushed off the wait-list, either because the
// busy placeholder unbusied/published or because it was killed/failed.
type Waiter struct {
	Resume func()
}

// Objhead is the hash-bucket entry grouping every variant (Objcore) of
// one URL, and owning the busy wait-list (spec §3, "Objhead" in
// GLOSSARY; spec §5 "Objheads have per-instance mutexes protecting their
// wait-list, vary chain, and object-core list. Held briefly; never
// across I/O.").
type Objhead struct {
	mu      sync.Mutex
	digest  Digest
	variants []*Objcore // vary chain
	waiters  []*Waiter
}

// Table is the process-wide hash table of Objheads, one per distinct
// Digest. A real implementation shards this; the core specifies only the
// per-bucket contract, so a single map guarded by its own lock is
// sufficient here.
type Table struct {
	mu   sync.Mutex
	byDg map[Digest]*Objhead
}

func NewTable() *Table { return &Table{byDg: make(map[Digest]*Objhead)} }

func (t *Table) head(d Digest) *Objhead {
	t.mu.Lock()
	defer t.mu.Unlock()
	oh, ok := t.byDg[d]
	if !ok {
		oh = &Objhead{digest: d}
		t.byDg[d] = oh
	}
	return oh
}

// Lookup implements spec §4.5 LOOKUP: it consults the vary chain for a
// matching, non-failed variant. If a matching variant is busy, the
// caller is appended to the wait-list and LookupBusy is returned with a
// nil Objcore; the caller must arrange for its own resumption via the
// returned park function's Resume callback, which this method does not
// invoke itself (the worker "returns", per spec §5 suspension points).
//
// hashAlwaysMiss bypasses any hit and always returns LookupMiss/HitMiss
// semantics appropriate to a fresh placeholder (used by PURGE).
func (t *Table) Lookup(d Digest, varyKey string, now time.Time, hashAlwaysMiss, ignoreBusy bool, park func() *Waiter) (LookupOutcome, *Objcore) {
	oh := t.head(d)
	oh.mu.Lock()
	defer oh.mu.Unlock()

	if !hashAlwaysMiss {
		for _, oc := range oh.variants {
			if oc.VaryKey != varyKey {
				continue
			}
			if oc.HasFlag(OcFailed) {
				continue
			}
			if oc.HasFlag(OcBusy) {
				if ignoreBusy {
					continue
				}
				if park != nil {
					oh.waiters = append(oh.waiters, park())
				}
				return LookupBusy, nil
			}
			if oc.HasFlag(OcHFP) {
				return LookupHitPass, nil
			}
			if oc.HasFlag(OcHFM) {
				return LookupHitMiss, oc
			}
			if oc.Expired(now) {
				if oc.InGrace(now) {
					return LookupGrace, oc
				}
				return LookupMiss, oc // expired past grace: treat as miss, object may serve as IMS template via StaleOC
			}
			return LookupHit, oc
		}
	}

	// miss: create a busy placeholder and insert it into the vary chain
	// immediately so concurrent lookups coalesce onto its wait-list
	// (spec §8 law 3, "at most one filler").
	return LookupMiss, nil
}

// Insert adds a (now busy, or now published) Objcore into the vary
// chain. Called once by the request that created the placeholder.
func (oh *Objhead) Insert(oc *Objcore) {
	oh.mu.Lock()
	defer oh.mu.Unlock()
	oh.variants = append(oh.variants, oc)
}

// TableInsert is the Table-level convenience wrapper over Objhead.Insert.
func (t *Table) TableInsert(d Digest, oc *Objcore) {
	t.head(d).Insert(oc)
}

// Unbusy clears OcBusy on oc and rushes (wakes) every parked waiter on
// oh's wait-list; each waiter re-enters LOOKUP on its own worker. This
// is the "unbusy" operation spec §2 and §4.4 refer to (FETCH publishing
// PREP_STREAM/STREAM, FETCHEND, ERROR's synthetic path; FAIL uses Kill).
func (t *Table) Unbusy(d Digest, oc *Objcore) {
	oh := t.head(d)
	oh.mu.Lock()
	oc.ClearFlag(OcBusy)
	waiters := oh.waiters
	oh.waiters = nil
	oh.mu.Unlock()
	for _, w := range waiters {
		w.Resume()
	}
}

// Kill removes oc from the vary chain (used when a placeholder is
// abandoned — MISS->PASS demotion, or a failed fetch) and rushes
// waiters exactly as Unbusy does, since a killed placeholder must also
// release anyone parked behind it.
func (t *Table) Kill(d Digest, oc *Objcore) {
	oh := t.head(d)
	oh.mu.Lock()
	for i, v := range oh.variants {
		if v == oc {
			oh.variants = append(oh.variants[:i], oh.variants[i+1:]...)
			break
		}
	}
	waiters := oh.waiters
	oh.waiters = nil
	oh.mu.Unlock()
	for _, w := range waiters {
		w.Resume()
	}
}

// Replace swaps a stale Objcore out of the hash in favor of a newly
// finished one (HSH_Replace in spec §4.4 FETCHEND/CONDFETCH).
func (t *Table) Replace(d Digest, stale, fresh *Objcore) {
	oh := t.head(d)
	oh.mu.Lock()
	defer oh.mu.Unlock()
	for i, v := range oh.variants {
		if v == stale {
			oh.variants[i] = fresh
			return
		}
	}
	oh.variants = append(oh.variants, fresh)
}

// Purge evicts every variant in the vary chain sharing digest d
// (HSH_Purge, spec §4.5 PURGE), marking each OcFailed so that in-flight
// readers observe the failure without a further lock round-trip, and
// rushes any waiters.
func (t *Table) Purge(d Digest) int {
	oh := t.head(d)
	oh.mu.Lock()
	n := len(oh.variants)
	for _, v := range oh.variants {
		v.SetFlag(OcFailed)
	}
	oh.variants = nil
	waiters := oh.waiters
	oh.waiters = nil
	oh.mu.Unlock()
	for _, w := range waiters {
		w.Resume()
	}
	return n
}
