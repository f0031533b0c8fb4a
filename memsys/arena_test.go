package memsys

import "testing"

func TestAllocBumpsFree(t *testing.T) {
	a := New("test", 64)
	b := a.Alloc(10)
	if b == nil {
		t.Fatal("expected allocation to succeed")
	}
	if a.Len() == 0 {
		t.Fatal("expected free pointer to advance")
	}
}

func TestAllocOverflowSticky(t *testing.T) {
	a := New("test", 16)
	if a.Alloc(32) != nil {
		t.Fatal("expected nil on oversized alloc")
	}
	if !a.Overflowed() {
		t.Fatal("expected overflow to be set")
	}
	snap := a.Snapshot()
	a.Reset(snap)
	if !a.Overflowed() {
		t.Fatal("overflow must remain sticky across Reset")
	}
	a.Rollback(0)
	if a.Overflowed() {
		t.Fatal("Rollback(0) must clear overflow")
	}
}

func TestSnapshotReset(t *testing.T) {
	a := New("test", 64)
	a.Alloc(8)
	snap := a.Snapshot()
	a.Alloc(8)
	a.Alloc(8)
	a.Reset(snap)
	if a.Len() != snap.free {
		t.Fatalf("expected free=%d after reset, got %d", snap.free, a.Len())
	}
}

func TestReservationLifecycle(t *testing.T) {
	a := New("test", 64)
	r := a.Reserve(32)
	if !a.Reserved() {
		t.Fatal("expected arena to report an active reservation")
	}
	buf := r.Bytes()
	if len(buf) != 32 {
		t.Fatalf("expected 32-byte reservation, got %d", len(buf))
	}
	r.Release(10)
	if a.Reserved() {
		t.Fatal("expected reservation to be cleared after Release")
	}
	if a.Len() != 10 {
		t.Fatalf("expected free=10 after releasing 10 used bytes, got %d", a.Len())
	}
}

func TestAllocPanicsDuringReservation(t *testing.T) {
	a := New("test", 64)
	a.Reserve(16)
	defer func() {
		if recover() == nil {
			t.Fatal("expected Alloc to panic while a reservation is active")
		}
	}()
	a.Alloc(4)
}

func TestReserveAllUsesRemainder(t *testing.T) {
	a := New("test", 64)
	a.Alloc(40)
	r := a.ReserveAll()
	if len(r.Bytes()) != 24 {
		t.Fatalf("expected remainder of 24 bytes, got %d", len(r.Bytes()))
	}
	r.Release(0)
}
