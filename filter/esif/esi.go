// Package esif implements ESI include expansion (spec §4's filter
// ordering note: "ESI include expansion" sits between gunzip and range
// in the canonical delivery order). Adapted from the shape of the
// teacher's transform.Communicator.DoTransform — there a small in-tree
// program (a Kubernetes Job spec) is parsed and substituted into an
// outgoing message; here the same parse-and-substitute shape parses
// <esi:include> tags and substitutes fetched sub-resource bodies. The
// pod-orchestration half of Communicator (spinning up Job resources)
// has no analogue in this domain and is left out; see the grounding
// ledger for the per-dependency justification.
package esif

import (
	"bytes"
	"regexp"

	"github.com/vproxy-cache/vproxy/filter"
)

// Program is a pre-parsed ESI document: literal spans interleaved with
// include directives (spec's OA_ESIDATA attribute).
type Program struct {
	Fragments []Fragment
}

type Fragment struct {
	Literal []byte
	Include string // non-empty for an <esi:include src="..."/> node
}

var includeTag = regexp.MustCompile(`<esi:include\s+src="([^"]*)"\s*/?>`)

// Parse scans raw markup into a Program, the pre-parsed representation
// stored as OA_ESIDATA so repeated deliveries don't re-scan the body.
func Parse(body []byte) Program {
	var prog Program
	rest := body
	for {
		loc := includeTag.FindSubmatchIndex(rest)
		if loc == nil {
			prog.Fragments = append(prog.Fragments, Fragment{Literal: rest})
			break
		}
		if loc[0] > 0 {
			prog.Fragments = append(prog.Fragments, Fragment{Literal: rest[:loc[0]]})
		}
		src := string(rest[loc[2]:loc[3]])
		prog.Fragments = append(prog.Fragments, Fragment{Include: src})
		rest = rest[loc[1]:]
	}
	return prog
}

// Fetcher resolves one ESI include's src attribute to its body. The
// caller supplies the implementation; the client FSM in package proxy
// does not wire the ESI filter and provides none.
type Fetcher func(src string) ([]byte, error)

type priv struct {
	prog     Program
	fetch    Fetcher
	maxDepth int
	depth    int
	buf      bytes.Buffer
}

// New builds the delivery-side ESI expansion filter. It buffers the
// whole body (ESI programs are small control documents, not the bulk
// payload) before running substitution, matching the spec's framing of
// ESI as operating on pre-parsed, already-materialized program data
// rather than a byte stream.
func New(fetch Fetcher, nestingLevel, maxDepth int) *filter.VDPFilter {
	return &filter.VDPFilter{
		Name: "esi",
		Init: func(ctx *filter.VDPCtx, e *filter.VDPEntry) int {
			e.Priv = &priv{fetch: fetch, maxDepth: maxDepth, depth: nestingLevel}
			return 0
		},
		Bytes: func(ctx *filter.VDPCtx, e *filter.VDPEntry, act filter.Action, p []byte) int {
			st := e.Priv.(*priv)
			if len(p) > 0 {
				st.buf.Write(p)
			}
			if act != filter.ActEnd {
				return 0
			}
			if st.depth > st.maxDepth {
				return -1 // ESI nesting level exceeded
			}
			prog := Parse(st.buf.Bytes())
			var out bytes.Buffer
			for _, f := range prog.Fragments {
				if f.Include == "" {
					out.Write(f.Literal)
					continue
				}
				sub, err := st.fetch(f.Include)
				if err != nil {
					return -1
				}
				out.Write(sub)
			}
			if r := ctx.Forward(e, filter.ActNull, out.Bytes()); r != 0 {
				return r
			}
			return ctx.Forward(e, filter.ActEnd, nil)
		},
	}
}
