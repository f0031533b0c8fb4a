package filter_test

import (
	"testing"

	"github.com/vproxy-cache/vproxy/filter"
)

func countingFilter(out *[]byte) *filter.VDPFilter {
	return &filter.VDPFilter{
		Name: "count",
		Bytes: func(ctx *filter.VDPCtx, e *filter.VDPEntry, act filter.Action, p []byte) int {
			*out = append(*out, p...)
			return ctx.Forward(e, act, p)
		},
	}
}

func TestVDPForwardsThroughChain(t *testing.T) {
	ctx := filter.NewVDPCtx()
	var seenA, seenB []byte
	ctx.Push(countingFilter(&seenA), nil)
	ctx.Push(countingFilter(&seenB), nil)

	ctx.Bytes(0, filter.ActNull, []byte("hello"))
	ctx.Bytes(0, filter.ActEnd, nil)

	if string(seenA) != "hello" || string(seenB) != "hello" {
		t.Fatalf("expected both filters to observe the bytes, got %q %q", seenA, seenB)
	}
}

func TestVDPDecliningFilterIsDropped(t *testing.T) {
	ctx := filter.NewVDPCtx()
	ctx.Push(&filter.VDPFilter{
		Name: "decline",
		Init: func(ctx *filter.VDPCtx, e *filter.VDPEntry) int { return 1 },
	}, nil)
	if ctx.Len() != 0 {
		t.Fatalf("expected declining filter to be dropped, got %d entries", ctx.Len())
	}
}

func TestVDPLatchesFirstNegative(t *testing.T) {
	ctx := filter.NewVDPCtx()
	ctx.Push(&filter.VDPFilter{
		Name: "fail",
		Bytes: func(ctx *filter.VDPCtx, e *filter.VDPEntry, act filter.Action, p []byte) int {
			return -3
		},
	}, nil)
	r := ctx.Bytes(0, filter.ActNull, []byte("x"))
	if r != -3 {
		t.Fatalf("expected latched -3, got %d", r)
	}
	// further calls should short-circuit without invoking the chain again
	calls := 0
	ctx2 := filter.NewVDPCtx()
	ctx2.Push(&filter.VDPFilter{
		Name: "spy",
		Bytes: func(ctx *filter.VDPCtx, e *filter.VDPEntry, act filter.Action, p []byte) int {
			calls++
			return -1
		},
	}, nil)
	ctx2.Bytes(0, filter.ActNull, nil)
	ctx2.Bytes(0, filter.ActNull, nil)
	if calls != 1 {
		t.Fatalf("expected chain to be invoked once after latching, got %d", calls)
	}
}

func TestVDPEndObservedTwicePanics(t *testing.T) {
	ctx := filter.NewVDPCtx()
	ctx.Push(&filter.VDPFilter{
		Name:  "sink",
		Bytes: func(ctx *filter.VDPCtx, e *filter.VDPEntry, act filter.Action, p []byte) int { return 0 },
	}, nil)

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on second VDP_END for the same entry")
		}
	}()
	ctx.Bytes(0, filter.ActEnd, nil)
	ctx.Bytes(0, filter.ActEnd, nil)
}
