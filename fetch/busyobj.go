// Package fetch implements the backend Fetch FSM (spec §4.4): the state
// machine that owns one busyobj from request construction through
// either a finished, delivered object or a synthetic error response.
// States are functions returning the next state, the same
// continuation-passing shape the teacher uses nowhere directly but that
// its xaction package gestures at with its phase-by-phase Do* methods;
// here it is made explicit and literal, matching the spec's own
// framing ("States are functions returning the next state").
package fetch

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang/glog"

	"github.com/vproxy-cache/vproxy/cache"
	"github.com/vproxy-cache/vproxy/cmn"
	"github.com/vproxy-cache/vproxy/filter"
	"github.com/vproxy-cache/vproxy/memsys"
	"github.com/vproxy-cache/vproxy/xtask"
)

// Verdict is the result of a policy hook (vcl_backend_fetch /
// vcl_backend_response / vcl_backend_error). The concrete policy
// language is out of scope (spec §4.4); callers wire in whatever
// decision logic they have via the Hooks below.
type Verdict int

const (
	VerdictProceed Verdict = iota
	VerdictDeliver
	VerdictRetry
	VerdictPass
	VerdictAbandon
	VerdictFail
	VerdictError
)

// Backend sends a prepared backend request and returns its response.
// The fetch/transport boundary matches the spec's call to "send the
// request, read the response headers" without prescribing wire format
// (spec's explicit Non-goal).
type Backend interface {
	Open(addr string, header http.Header) (status int, respHeader http.Header, body filter.SuckFunc, err error)
}

// Hooks bundles the three out-of-scope policy callbacks. A nil hook
// behaves as the permissive default documented per state below.
type Hooks struct {
	BackendFetch    func(bo *Busyobj) Verdict
	BackendResponse func(bo *Busyobj) Verdict
	BackendError    func(bo *Busyobj) Verdict
}

// Busyobj is the fetch task context (spec §3 "Busyobj"): two header
// buffers, one response-header buffer, the fetch-filter chain, timeouts,
// a director reference, the objcore being filled, and retry/mode state.
type Busyobj struct {
	BereqOrig    http.Header
	Bereq        http.Header
	Beresp       http.Header
	Arena        *memsys.Arena
	Snapshot     memsys.Snapshot
	VFP          *filter.VFPCtx
	Director     cache.Director
	Backend      Backend
	Hooks        Hooks
	Table        *cache.Table
	Digest       cache.Digest

	OC       *cache.Objcore
	StaleOC  *cache.Objcore
	ReqBodyOC *cache.Objcore

	Mode    cmn.FetchMode
	Xid     uint64
	Retries int
	Timeout cmn.Timeout

	DoStream    bool
	Cacheable   bool
	Uncacheable bool
	Was304      bool
	FailReason  string

	Task *xtask.Task
}

// enter wraps xtask.Task.Enter with a diagnostic log line, grounded on
// the teacher's glog-everywhere logging idiom.
func (bo *Busyobj) enter(name string) {
	if bo.Task != nil {
		bo.Task.Enter(name)
	}
	glog.V(4).Infof("fetch[%d]: -> %s", bo.Xid, name)
}

// ttlFromHeaders computes t_origin/ttl/grace/keep from response headers,
// abstracted RFC-7234-like semantics per the spec's explicit
// "abstracted from the parser" framing. Cache-Control max-age wins over
// a default TTL; Expires is not separately modeled, matching the spec's
// level of abstraction.
func ttlFromHeaders(h http.Header, now time.Time, cfg *cmn.Config) (tOrigin time.Time, ttl, grace, keep time.Duration) {
	tOrigin = now
	ttl = cfg.ShortLived
	cc := h.Get(cmn.HeaderCacheControl)
	if maxAge, ok := parseMaxAge(cc); ok {
		ttl = maxAge
	}
	grace = ttl / 10
	keep = ttl
	return
}

func parseMaxAge(cacheControl string) (time.Duration, bool) {
	for _, part := range strings.Split(cacheControl, ",") {
		part = strings.TrimSpace(part)
		if rest, ok := strings.CutPrefix(part, "max-age="); ok {
			secs, err := strconv.Atoi(rest)
			if err != nil {
				return 0, false
			}
			return time.Duration(secs) * time.Second, true
		}
	}
	return 0, false
}
