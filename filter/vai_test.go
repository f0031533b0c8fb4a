package filter_test

import (
	"testing"

	"github.com/vproxy-cache/vproxy/filter"
)

type fakeSource struct {
	data    []byte
	pos     int
	returned []int64
}

func (s *fakeSource) Lease(max int) (filter.Vec, error) {
	if s.pos >= len(s.data) {
		return filter.Vec{End: true}, nil
	}
	end := s.pos + max
	if end > len(s.data) {
		end = len(s.data)
	}
	b := s.data[s.pos:end]
	tok := int64(s.pos)
	s.pos = end
	return filter.Vec{Leases: []filter.Lease{{Bytes: b, Token: tok}}, End: s.pos >= len(s.data)}, nil
}

func (s *fakeSource) Return(tokens []int64) {
	s.returned = append(s.returned, tokens...)
}

func TestVAINegotiatesCapacityFrontToBack(t *testing.T) {
	ctx := filter.NewVAICtx(&fakeSource{data: []byte("0123456789")})
	ctx.Push(&filter.VAIFilter{
		Name:        "double",
		MinCapacity: func(downstream int) int { return downstream * 2 },
	}, nil)
	cap := ctx.NegotiateCapacity()
	if cap != 2 {
		t.Fatalf("expected capacity 2, got %d", cap)
	}
}

func TestVAILeaseDirectFromSourceWithEmptyChain(t *testing.T) {
	src := &fakeSource{data: []byte("abcdef")}
	ctx := filter.NewVAICtx(src)
	ctx.NegotiateCapacity()
	vec, err := ctx.Lease(3)
	if err != nil {
		t.Fatal(err)
	}
	if len(vec.Leases) != 1 || string(vec.Leases[0].Bytes) != "abc" {
		t.Fatalf("unexpected vec: %+v", vec)
	}
	ctx.Return([]int64{vec.Leases[0].Token})
	ctx.FlushCaret()
	if len(src.returned) != 1 || src.returned[0] != 0 {
		t.Fatalf("expected token 0 returned, got %v", src.returned)
	}
}
