package rangef_test

import (
	"testing"

	"github.com/vproxy-cache/vproxy/filter"
	"github.com/vproxy-cache/vproxy/filter/rangef"
)

func TestParseSimpleRange(t *testing.T) {
	spec, ok := rangef.Parse("bytes=2-5", 10, true)
	if !ok || spec.Low != 2 || spec.High != 6 {
		t.Fatalf("unexpected spec %+v ok=%v", spec, ok)
	}
}

func TestParseSuffixRange(t *testing.T) {
	spec, ok := rangef.Parse("bytes=-3", 10, true)
	if !ok || spec.Low != 7 || spec.High != 10 {
		t.Fatalf("unexpected spec %+v ok=%v", spec, ok)
	}
}

func TestParseUnsatisfiableBeyondEOF(t *testing.T) {
	_, ok := rangef.Parse("bytes=20-30", 10, true)
	if ok {
		t.Fatal("expected unsatisfiable range to be rejected")
	}
}

func TestRangeFilterForwardsOnlyWithinBounds(t *testing.T) {
	ctx := filter.NewVDPCtx()
	var out []byte
	sink := &filter.VDPFilter{
		Name: "sink",
		Bytes: func(ctx *filter.VDPCtx, e *filter.VDPEntry, act filter.Action, p []byte) int {
			out = append(out, p...)
			return 0
		},
	}
	spec := rangef.Spec{Low: 2, High: 5}
	ctx.Push(rangef.New(spec), nil)
	ctx.Push(sink, nil)

	ctx.Bytes(0, filter.ActNull, []byte("0123456789"))
	ctx.Bytes(0, filter.ActEnd, nil)

	if string(out) != "234" {
		t.Fatalf("expected '234', got %q", out)
	}
}

func TestRangeFilterShortRangeFails(t *testing.T) {
	ctx := filter.NewVDPCtx()
	ctx.Push(rangef.New(rangef.Spec{Low: 0, High: 100}), nil)
	ctx.Push(&filter.VDPFilter{
		Name:  "sink",
		Bytes: func(ctx *filter.VDPCtx, e *filter.VDPEntry, act filter.Action, p []byte) int { return 0 },
	}, nil)

	ctx.Bytes(0, filter.ActNull, []byte("short"))
	r := ctx.Bytes(0, filter.ActEnd, nil)
	if r >= 0 {
		t.Fatalf("expected negative (range short) result, got %d", r)
	}
}
