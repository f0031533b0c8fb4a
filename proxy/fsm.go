package proxy

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang/glog"

	"github.com/vproxy-cache/vproxy/cache"
	"github.com/vproxy-cache/vproxy/cmn"
	"github.com/vproxy-cache/vproxy/fetch"
	"github.com/vproxy-cache/vproxy/filter"
	"github.com/vproxy-cache/vproxy/filter/gzipf"
	"github.com/vproxy-cache/vproxy/filter/rangef"
	"github.com/vproxy-cache/vproxy/memsys"
	"github.com/vproxy-cache/vproxy/xtask"
)

type stateFn func(req *Request) stateFn

// requestArenas pools per-request workspaces so a steady flow of client
// requests does not re-allocate its backing buffer every time; the pool
// itself is the teacher's *memsys.MMSA contract, narrowed as
// memsys.Pool.
var requestArenas = memsys.NewPool("request", 64*1024)

// ServeHTTP is the acceptor-side entry point: one Request per inbound
// connection's request, run to completion on its own goroutine (spec's
// DISEMBARK suspension points are realized here as a goroutine parking
// on a channel rather than an explicit worker-pool hand-back, since Go's
// net/http model already gives every request its own goroutine).
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	arena := requestArenas.Get()
	req := &Request{
		Proxy: p,
		W:     w,
		R:     r,
		Arena: arena,
		Xid:   p.nextXid(),
	}
	Run(req)
	arena.Rollback(0)
	requestArenas.Put(arena)
}

// Run drives the client FSM from TRANSPORT to DONE.
func Run(req *Request) {
	for s := stateTransport; s != nil; {
		s = s(req)
	}
}

func stateTransport(req *Request) stateFn {
	glog.V(4).Infof("req[%d]: -> TRANSPORT", req.Xid)

	if req.R.Header.Get(cmn.HeaderExpect) != "" {
		req.Want100Cont = strings.EqualFold(req.R.Header.Get(cmn.HeaderExpect), "100-continue")
	}
	switch {
	case req.R.ContentLength > 0:
		req.BodyStatus = cmn.BSLength
	case req.R.TransferEncoding != nil:
		req.BodyStatus = cmn.BSChunked
	default:
		req.BodyStatus = cmn.BSNone
	}
	req.TransportSnapshot = req.Arena.Snapshot()
	return stateRecv
}

func stateRecv(req *Request) stateFn {
	glog.V(4).Infof("req[%d]: -> RECV", req.Xid)

	if len(req.R.Header.Values("Host")) > 1 || len(req.R.Header.Values(cmn.HeaderContentLength)) > 1 {
		req.ErrCode = 400
		return stateSynth
	}

	req.Digest = cache.HashKey(req.R.Host, req.R.URL.RequestURI())
	req.VaryKey = cache.VaryKey(req.Digest, nil, req.R.Header.Get)

	ret := RetHash
	if req.Proxy.Hooks.Recv != nil {
		ret = req.Proxy.Hooks.Recv(req)
	}
	switch ret {
	case RetHash:
		return stateLookup
	case RetPass:
		return statePass
	case RetPipe:
		if req.R.ProtoMajor >= 2 {
			return statePass
		}
		return statePipe
	case RetPurge:
		return statePurge
	case RetSynth:
		return stateSynth
	case RetRestart:
		return stateRestart
	case RetFail:
		return stateVCLFail
	}
	return statePass
}

func stateLookup(req *Request) stateFn {
	glog.V(4).Infof("req[%d]: -> LOOKUP", req.Xid)
	for {
		var resumeCh chan struct{}
		park := func() *cache.Waiter {
			resumeCh = make(chan struct{})
			return &cache.Waiter{Resume: func() { close(resumeCh) }}
		}
		outcome, oc := req.Proxy.Table.Lookup(req.Digest, req.VaryKey, time.Now(), req.HashAlwaysMiss, req.HashIgnoreBusy, park)
		switch outcome {
		case cache.LookupBusy:
			<-resumeCh
			continue
		case cache.LookupHit, cache.LookupGrace:
			req.OC = oc
			req.IsHit = true
			if outcome == cache.LookupGrace {
				req.StaleOC = oc
			}
			return stateHit
		case cache.LookupMiss:
			req.StaleOC = oc
			req.IsHitMiss = oc != nil
			req.OC = cache.NewObjcore(req.Digest, req.VaryKey, req.Xid)
			if req.Proxy.NewStorage != nil {
				req.OC.Store = req.Proxy.NewStorage()
			}
			req.Proxy.Table.TableInsert(req.Digest, req.OC)
			return stateMiss
		case cache.LookupHitPass:
			req.IsHitPass = true
			return statePass
		}
		req.ErrCode = 503
		return stateSynth
	}
}

func stateHit(req *Request) stateFn {
	glog.V(4).Infof("req[%d]: -> HIT", req.Xid)
	ret := RetDeliver
	if req.Proxy.Hooks.Hit != nil {
		ret = req.Proxy.Hooks.Hit(req)
	}
	switch ret {
	case RetSynth:
		return stateSynth
	case RetRestart:
		return stateRestart
	}
	return stateDeliver
}

func stateMiss(req *Request) stateFn {
	glog.V(4).Infof("req[%d]: -> MISS", req.Xid)
	ret := RetFetch
	if req.Proxy.Hooks.Miss != nil {
		ret = req.Proxy.Hooks.Miss(req)
	}
	if ret == RetPass {
		req.Proxy.Table.Kill(req.Digest, req.OC)
		req.OC = nil
		return statePass
	}
	req.FetchTask = newBusyobj(req, cmn.ModeNormal)
	go fetch.Run(req.FetchTask)
	return stateFetch
}

func statePass(req *Request) stateFn {
	glog.V(4).Infof("req[%d]: -> PASS", req.Xid)
	if req.OC == nil {
		req.OC = cache.NewObjcore(req.Digest, req.VaryKey, req.Xid)
		req.OC.SetFlag(cache.OcPrivate)
		if req.Proxy.NewStorage != nil {
			req.OC.Store = req.Proxy.NewStorage()
		}
	}
	ret := RetFetch
	if req.Proxy.Hooks.Pass != nil {
		ret = req.Proxy.Hooks.Pass(req)
	}
	if ret != RetFetch {
		req.ErrCode = 503
		return stateSynth
	}
	req.FetchTask = newBusyobj(req, cmn.ModePass)
	go fetch.Run(req.FetchTask)
	return stateFetch
}

func statePipe(req *Request) stateFn {
	glog.V(4).Infof("req[%d]: -> PIPE", req.Xid)
	ret := RetPipe
	if req.Proxy.Hooks.Pipe != nil {
		ret = req.Proxy.Hooks.Pipe(req)
	}
	if ret == RetSynth {
		return stateSynth
	}
	req.CloseReason = cmn.ReasonTxPipe
	return stateDone
}

func statePurge(req *Request) stateFn {
	glog.V(4).Infof("req[%d]: -> PURGE", req.Xid)
	n := req.Proxy.Table.Purge(req.Digest)
	glog.V(2).Infof("req[%d]: purged %d variants", req.Xid, n)

	ret := RetSynth
	if req.Proxy.Hooks.Purge != nil {
		ret = req.Proxy.Hooks.Purge(req)
	}
	switch ret {
	case RetRestart:
		return stateRestart
	}
	req.ErrCode = 200
	return stateSynth
}

func stateFetch(req *Request) stateFn {
	glog.V(4).Infof("req[%d]: -> FETCH", req.Xid)

	state := req.OC.Boc.WaitState(cache.BosStream)
	if state == cache.BosFailed && req.OC.Boc.FetchedSoFar() == 0 {
		req.ErrCode = 503
		return stateSynth
	}
	return stateDeliver
}

// deliverSeedHeaders seeds req.W's header set from the stored object's
// OA_HEADERS attribute and stamps Age/Via/X-Varnish (spec §4.5 DELIVER:
// "seeds the response from the stored headers, sets Age, appends Via";
// spec §6: "Emits Via, X-Varnish: <xid> (and <xid> <xid> on hits),
// Age..."). Content-Length/Connection/Transfer-Encoding are deliberately
// dropped here: stateTransmit recomputes Content-Length from what is
// actually going to be written (the full object, or a Range slice).
func deliverSeedHeaders(req *Request) {
	oc := req.OC
	for k, vs := range cmn.DeserializeHeaders(oc.Attr(cmn.OAHeaders)) {
		switch k {
		case cmn.HeaderContentLength, cmn.HeaderConnection, cmn.HeaderTransferEncoding:
			continue
		}
		for _, v := range vs {
			req.W.Header().Add(k, v)
		}
	}
	req.RespStatus = statusFromAttr(oc.Attr(cmn.OAStatus))

	req.W.Header().Set(cmn.HeaderAge, strconv.FormatInt(int64(oc.Age(time.Now()).Seconds()), 10))
	req.W.Header().Set(cmn.HeaderVia, "1.1 "+cmn.ServerName)
	if req.IsHit {
		req.W.Header().Set(cmn.HeaderXVarnish, fmt.Sprintf("%d %d", req.Xid, oc.Xid))
	} else {
		req.W.Header().Set(cmn.HeaderXVarnish, strconv.FormatUint(req.Xid, 10))
	}
}

func statusFromAttr(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil || n == 0 {
		return http.StatusOK
	}
	return n
}

func stateDeliver(req *Request) stateFn {
	glog.V(4).Infof("req[%d]: -> DELIVER", req.Xid)
	if req.OC != nil {
		deliverSeedHeaders(req)
	}
	ret := RetDeliver
	if req.Proxy.Hooks.Deliver != nil {
		ret = req.Proxy.Hooks.Deliver(req)
	}
	switch ret {
	case RetRestart:
		return stateRestart
	case RetSynth:
		return stateSynth
	}
	return stateTransmit
}

func stateSynth(req *Request) stateFn {
	glog.V(4).Infof("req[%d]: -> SYNTH", req.Xid)
	if req.ErrCode == 0 {
		req.ErrCode = 503
	}
	if req.Proxy.Hooks.Synth != nil {
		req.Proxy.Hooks.Synth(req)
	}
	// spec §6: "Emits Via, X-Varnish: <xid>..., Age, and Server: Varnish
	// on synthetic responses." Synthetic responses have no stored
	// object, so Age is always 0 and Server is always stamped.
	req.W.Header().Set(cmn.HeaderServer, cmn.ServerName)
	req.W.Header().Set(cmn.HeaderVia, "1.1 "+cmn.ServerName)
	req.W.Header().Set(cmn.HeaderXVarnish, strconv.FormatUint(req.Xid, 10))
	req.W.Header().Set(cmn.HeaderAge, "0")
	http.Error(req.W, http.StatusText(req.ErrCode), req.ErrCode)
	return stateDone
}

func acceptsGzip(r *http.Request) bool {
	return strings.Contains(r.Header.Get(cmn.HeaderAcceptEncoding), "gzip")
}

// resolveDeliveryFilters stacks the request-specific delivery filter
// list (spec §4.5 TRANSMIT, §4.3 filter ordering: gunzip innermost,
// range outermost) and sets every header whose value depends on that
// list (Content-Encoding, Content-Range, Content-Length). Returns the
// final response status; the caller must not set Content-Length itself.
//
// filter/esif's ESI-include expansion is deliberately left out of this
// resolution: its Fetcher needs to re-enter the client FSM for each
// included sub-resource, and wiring that in is a separate, untested
// piece of plumbing — see DESIGN.md.
func resolveDeliveryFilters(req *Request, status int, total int64, knownTotal bool) int {
	if ce := req.W.Header().Get(cmn.HeaderContentEncoding); ce == "gzip" && !acceptsGzip(req.R) {
		req.W.Header().Del(cmn.HeaderContentEncoding)
		knownTotal = false
		req.VDP.Push(gzipf.NewGunzipDeliver(func() {}, nil), nil)
	}

	noBody := req.R.Method == http.MethodHead
	rh := req.R.Header.Get(cmn.HeaderRange)
	if cmn.GCO.Get().RangeEnabled && !noBody && status == http.StatusOK && rh != "" && !req.OC.HasFlag(cache.OcPrivate) && knownTotal {
		spec, ok := rangef.Parse(rh, total, knownTotal)
		if !ok {
			uStatus, contentRange := rangef.UnsatisfiableResponse(total)
			req.W.Header().Set(cmn.HeaderContentRange, contentRange)
			req.W.Header().Set(cmn.HeaderContentLength, "0")
			return uStatus
		}
		req.W.Header().Set(cmn.HeaderContentRange, fmt.Sprintf("bytes %d-%d/%d", spec.Low, spec.High-1, total))
		req.W.Header().Set(cmn.HeaderContentLength, strconv.FormatInt(spec.High-spec.Low, 10))
		req.VDP.Push(rangef.New(spec), nil)
		return http.StatusPartialContent
	}

	if knownTotal {
		req.W.Header().Set(cmn.HeaderContentLength, strconv.FormatInt(total, 10))
	}
	return status
}

func stateTransmit(req *Request) stateFn {
	glog.V(4).Infof("req[%d]: -> TRANSMIT", req.Xid)

	noBody := req.R.Method == http.MethodHead
	if req.VDP == nil {
		req.VDP = filter.NewVDPCtx()
	}

	status := http.StatusOK
	if req.OC != nil {
		status = req.RespStatus
		if status == 0 {
			status = http.StatusOK
		}
		var total int64
		knownTotal := false
		if s := req.OC.Attr(cmn.OALen); s != "" {
			if n, err := strconv.ParseInt(s, 10, 64); err == nil {
				total = n
				knownTotal = true
			}
		}
		status = resolveDeliveryFilters(req, status, total, knownTotal)
		if cmn.GCO.Get().RangeEnabled && !req.OC.HasFlag(cache.OcPrivate) && status == http.StatusOK {
			req.W.Header().Set(cmn.HeaderAcceptRanges, "bytes")
		}
	}

	req.VDP.Push(&filter.VDPFilter{
		Name: "wire-writer",
		Bytes: func(ctx *filter.VDPCtx, e *filter.VDPEntry, act filter.Action, p []byte) int {
			if len(p) > 0 {
				if _, err := req.W.Write(p); err != nil {
					return -1
				}
			}
			return 0
		},
	}, nil)

	req.W.WriteHeader(status)

	if !noBody && status != http.StatusNotModified && status != http.StatusRequestedRangeNotSatisfiable && req.OC != nil && req.OC.Store != nil {
		it := cache.NewIterator(req.OC.Store, req.OC.Boc, 0, -1, 32*1024)
		err := it.Run(func(p []byte) error {
			if r := req.VDP.Bytes(0, filter.ActNull, p); r < 0 {
				return errTransmit
			}
			return nil
		})
		if err != nil {
			req.CloseReason = cmn.ReasonTxError
		}
	}
	req.VDP.Bytes(0, filter.ActEnd, nil)

	if req.OC != nil && req.OC.HasFlag(cache.OcFailed) {
		req.CloseReason = cmn.ReasonTxError
	}
	req.OC = nil
	return stateDone
}

func stateRestart(req *Request) stateFn {
	glog.V(4).Infof("req[%d]: -> RESTART", req.Xid)
	req.Restarts++
	cfg := cmn.GCO.Get()
	if req.Restarts > cfg.MaxRestarts {
		req.ErrCode = 503
		return stateSynth
	}
	req.Xid++
	req.OC = nil
	req.StaleOC = nil
	req.FetchTask = nil
	if req.Arena != nil {
		req.Arena.Reset(req.TransportSnapshot)
	}
	return stateRecv
}

func stateVCLFail(req *Request) stateFn {
	glog.V(4).Infof("req[%d]: -> VCLFAIL", req.Xid)
	if req.Arena != nil {
		req.Arena.Rollback(0)
	}
	req.ErrCode = 503
	req.CloseReason = cmn.ReasonVCLFailure
	return stateSynth
}

func stateDone(req *Request) stateFn {
	glog.V(4).Infof("req[%d]: -> DONE", req.Xid)
	return nil
}

type transmitError string

func (e transmitError) Error() string { return string(e) }

const errTransmit = transmitError("proxy: delivery pipeline reported an error")

// newBusyobj builds the fetch task context for a scheduled fetch
// (spec §4.5 MISS/PASS: "schedules foreground fetch" / "schedules a
// fetch in mode PASS").
func newBusyobj(req *Request, mode cmn.FetchMode) *fetch.Busyobj {
	cfg := cmn.GCO.Get()
	bo := &fetch.Busyobj{
		BereqOrig: req.R.Header.Clone(),
		Table:     req.Proxy.Table,
		Digest:    req.Digest,
		OC:        req.OC,
		StaleOC:   req.StaleOC,
		Mode:      mode,
		Xid:       req.Xid,
		Timeout:   cfg.Timeout,
		Cacheable: mode == cmn.ModeNormal,
		DoStream:  true,
		Task:      xtask.NewTask(cfg.MaxRetries),
		VFP:       filter.NewVFPCtx(nil, nil),
	}
	if req.Proxy.Directors != nil {
		if d, ok := req.Proxy.Directors.Get("default"); ok {
			bo.Director = d
		}
	}
	bo.Backend = req.Proxy.Backend
	return bo
}
