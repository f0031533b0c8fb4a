package cache_test

import (
	"testing"
	"time"

	"github.com/vproxy-cache/vproxy/cache"
)

func TestLookupCoalescesOnBusy(t *testing.T) {
	table := cache.NewTable()
	d := cache.HashKey("h", "/a")

	oc := cache.NewObjcore(d, "", 1)
	table.TableInsert(d, oc)

	var resumed bool
	park := func() *cache.Waiter {
		return &cache.Waiter{Resume: func() { resumed = true }}
	}

	outcome, _ := table.Lookup(d, "", time.Now(), false, false, park)
	if outcome != cache.LookupBusy {
		t.Fatalf("expected LookupBusy, got %v", outcome)
	}

	table.Unbusy(d, oc)
	if !resumed {
		t.Fatal("expected waiter to be resumed on unbusy")
	}
}

func TestLookupHitAfterUnbusy(t *testing.T) {
	table := cache.NewTable()
	d := cache.HashKey("h", "/a")
	oc := cache.NewObjcore(d, "", 1)
	oc.TOrigin = time.Now()
	oc.TTL = time.Minute
	table.TableInsert(d, oc)
	table.Unbusy(d, oc)

	outcome, got := table.Lookup(d, "", time.Now(), false, false, nil)
	if outcome != cache.LookupHit {
		t.Fatalf("expected LookupHit, got %v", outcome)
	}
	if got != oc {
		t.Fatal("expected the same objcore to be returned")
	}
}

func TestPurgeFailsVariants(t *testing.T) {
	table := cache.NewTable()
	d := cache.HashKey("h", "/a")
	oc := cache.NewObjcore(d, "", 1)
	table.TableInsert(d, oc)
	table.Unbusy(d, oc)

	n := table.Purge(d)
	if n != 1 {
		t.Fatalf("expected 1 purged variant, got %d", n)
	}
	if !oc.HasFlag(cache.OcFailed) {
		t.Fatal("expected purged variant to be flagged failed")
	}
}
