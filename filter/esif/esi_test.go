package esif_test

import (
	"testing"

	"github.com/vproxy-cache/vproxy/filter"
	"github.com/vproxy-cache/vproxy/filter/esif"
)

func TestParseSplitsLiteralsAndIncludes(t *testing.T) {
	body := []byte(`before<esi:include src="/header"/>middle<esi:include src="/footer"/>after`)
	prog := esif.Parse(body)
	if len(prog.Fragments) != 5 {
		t.Fatalf("expected 5 fragments, got %d: %+v", len(prog.Fragments), prog.Fragments)
	}
	if prog.Fragments[1].Include != "/header" || prog.Fragments[3].Include != "/footer" {
		t.Fatalf("unexpected includes: %+v", prog.Fragments)
	}
}

func TestESIFilterExpandsIncludes(t *testing.T) {
	ctx := filter.NewVDPCtx()
	fetch := func(src string) ([]byte, error) {
		return []byte("[" + src + "]"), nil
	}
	ctx.Push(esif.New(fetch, 0, 5), nil)
	var out []byte
	ctx.Push(&filter.VDPFilter{
		Name: "sink",
		Bytes: func(ctx *filter.VDPCtx, e *filter.VDPEntry, act filter.Action, p []byte) int {
			out = append(out, p...)
			return 0
		},
	}, nil)

	ctx.Bytes(0, filter.ActNull, []byte(`a<esi:include src="/x"/>b`))
	ctx.Bytes(0, filter.ActEnd, nil)

	if string(out) != "a[/x]b" {
		t.Fatalf("expected expanded body, got %q", out)
	}
}

func TestESIFilterRejectsExcessiveNesting(t *testing.T) {
	ctx := filter.NewVDPCtx()
	ctx.Push(esif.New(func(string) ([]byte, error) { return nil, nil }, 10, 5), nil)
	ctx.Push(&filter.VDPFilter{
		Name:  "sink",
		Bytes: func(ctx *filter.VDPCtx, e *filter.VDPEntry, act filter.Action, p []byte) int { return 0 },
	}, nil)

	ctx.Bytes(0, filter.ActNull, []byte("body"))
	r := ctx.Bytes(0, filter.ActEnd, nil)
	if r >= 0 {
		t.Fatalf("expected negative result for excessive nesting, got %d", r)
	}
}
