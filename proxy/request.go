// Package proxy implements the client request FSM (spec §4.5): the
// state machine that owns one client request from connection read
// through either a delivered object, a synthetic response, or a policy
// restart. Built in the same functions-returning-next-function shape as
// package fetch, matching the spec's explicit framing of both FSMs.
package proxy

import (
	"net/http"
	"sync/atomic"

	"github.com/vproxy-cache/vproxy/cache"
	"github.com/vproxy-cache/vproxy/cmn"
	"github.com/vproxy-cache/vproxy/fetch"
	"github.com/vproxy-cache/vproxy/filter"
	"github.com/vproxy-cache/vproxy/memsys"
)

// VclReturn is the policy-hook return value driving FSM dispatch (spec
// §4.5's return tables). The policy language itself is out of scope;
// Proxy.Hooks lets a caller wire in whatever decision logic it has.
type VclReturn string

const (
	RetHash    VclReturn = "hash"
	RetPass    VclReturn = "pass"
	RetPipe    VclReturn = "pipe"
	RetPurge   VclReturn = "purge"
	RetSynth   VclReturn = "synth"
	RetRestart VclReturn = "restart"
	RetFail    VclReturn = "fail"
	RetFetch   VclReturn = "fetch"
	RetDeliver VclReturn = "deliver"
)

// Hooks bundles the policy callbacks the FSM consults at each named
// state (vcl_recv, vcl_hit, ...). A nil hook takes the permissive
// default documented at its call site.
type Hooks struct {
	Recv    func(req *Request) VclReturn
	Hit     func(req *Request) VclReturn
	Miss    func(req *Request) VclReturn
	Pass    func(req *Request) VclReturn
	Pipe    func(req *Request) VclReturn
	Purge   func(req *Request) VclReturn
	Deliver func(req *Request) VclReturn
	Synth   func(req *Request) VclReturn
}

// Proxy is the shared, process-wide server object: the hash table,
// director pool, backend transport, and policy hooks every request's
// FSM consults.
type Proxy struct {
	Table     *cache.Table
	Directors *cache.Directors
	Backend   fetch.Backend
	Hooks     Hooks

	// NewStorage builds the cache.Storage a freshly-missed object
	// stores its body in. Storage backends are an explicit spec
	// Non-goal, but without one wired in, a real daemon fetches bytes
	// and immediately drops them (cache.Objcore.Store stays nil). Left
	// nil, the fetched body is dropped and the client receives the
	// response headers with no body.
	NewStorage func() cache.Storage

	xidNext atomic.Uint64
}

// NewProxy builds a Proxy with a fresh hash table and director pool.
func NewProxy(backend fetch.Backend) *Proxy {
	return &Proxy{
		Table:     cache.NewTable(),
		Directors: cache.NewDirectors(),
		Backend:   backend,
	}
}

func (p *Proxy) nextXid() uint64 { return p.xidNext.Add(1) }

// Request is the client-request context (spec §3 "Request"): parsed
// headers, per-request arena, current/stale objcore, the fetch task
// reference, accounting counters, the delivery-filter chain, FSM state,
// body status, and policy-side flags.
type Request struct {
	Proxy *Proxy

	W http.ResponseWriter
	R *http.Request

	Arena             *memsys.Arena
	TransportSnapshot memsys.Snapshot

	OC        *cache.Objcore
	StaleOC   *cache.Objcore
	FetchTask *fetch.Busyobj

	Digest  cache.Digest
	VaryKey string
	Xid     uint64

	BodyStatus cmn.BodyStatus

	HashAlwaysMiss bool
	HashIgnoreBusy bool
	HashIgnoreVary bool
	Want100Cont    bool
	IsHit          bool
	IsHitMiss      bool
	IsHitPass      bool

	Restarts   int
	ESINesting int

	VDP *filter.VDPCtx

	RespStatus  int
	ErrCode     int
	CloseReason cmn.CloseReason
}
