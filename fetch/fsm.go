package fetch

import (
	"strconv"
	"time"

	"github.com/golang/glog"

	"github.com/vproxy-cache/vproxy/cache"
	"github.com/vproxy-cache/vproxy/cmn"
	"github.com/vproxy-cache/vproxy/filter"
)

func xidString(xid uint64) string     { return strconv.FormatUint(xid, 10) }
func int64ToString(n int64) string    { return strconv.FormatInt(n, 10) }

type stateFn func(bo *Busyobj) stateFn

// Run drives the Fetch FSM from MKBEREQ to a terminal state (spec §4.4).
// Entry state is MKBEREQ; Run returns once a state function returns nil
// (reached after DONE).
func Run(bo *Busyobj) {
	for s := stateMkbereq; s != nil; {
		s = s(bo)
	}
}

func stateMkbereq(bo *Busyobj) stateFn {
	bo.enter("MKBEREQ")

	if bo.Bereq == nil {
		bo.Bereq = bo.BereqOrig.Clone()
	}
	if !bo.Uncacheable {
		bo.Bereq.Set("Host", bo.Bereq.Get("Host"))
		bo.Bereq.Del("Connection")
	}
	cfg := cmn.GCO.Get()
	if cfg.GzipEnabled && bo.Cacheable {
		bo.Bereq.Set(cmn.HeaderAcceptEncoding, "gzip")
	}
	if bo.StaleOC != nil && bo.StaleOC.HasFlag(cache.OcIMSCand) {
		if lm := bo.StaleOC.Attr(cmn.OALastModified); lm != "" {
			bo.Bereq.Set(cmn.HeaderIfModifiedSince, lm)
		}
		if etag := bo.StaleOC.Attr(cmn.OAETag); etag != "" {
			bo.Bereq.Set(cmn.HeaderIfNoneMatch, etag)
		}
	}
	if bo.Arena != nil {
		bo.Snapshot = bo.Arena.Snapshot()
	}
	return stateStartfetch
}

func stateStartfetch(bo *Busyobj) stateFn {
	bo.enter("STARTFETCH")

	bo.Bereq.Set(cmn.HeaderXVarnish, xidString(bo.Xid))

	if bo.Hooks.BackendFetch != nil {
		switch bo.Hooks.BackendFetch(bo) {
		case VerdictAbandon, VerdictFail:
			return stateFail
		case VerdictError:
			return stateError
		}
	}

	addr, err := bo.Director.Dial()
	if err != nil {
		bo.FailReason = err.Error()
		return stateFail
	}

	status, respHeader, body, err := bo.Backend.Open(addr, bo.Bereq)
	if err != nil {
		bo.FailReason = err.Error()
		return stateError
	}
	bo.Beresp = respHeader
	if bo.VFP != nil {
		bo.VFP.Suck = body
	}
	if bo.Beresp.Get(cmn.HeaderDate) == "" {
		bo.Beresp.Set(cmn.HeaderDate, cmn.FormatHTTPDate(time.Now()))
	}

	// Serialize the response headers onto the object now, before the
	// PREP_STREAM -> STREAM transition below can let a consumer see
	// them (cache/objcore.go's Objcore.SetAttr doc: "set attributes
	// before advancing Boc state"). This is the write half of the
	// FETCH/DELIVER header round trip (spec §8 law).
	bo.OC.SetAttr(cmn.OAStatus, strconv.Itoa(status))
	bo.OC.SetAttr(cmn.OAHeaders, cmn.SerializeHeaders(bo.Beresp))
	if lm := bo.Beresp.Get(cmn.HeaderLastModified); lm != "" {
		bo.OC.SetAttr(cmn.OALastModified, lm)
	}
	if etag := bo.Beresp.Get(cmn.HeaderETag); etag != "" {
		bo.OC.SetAttr(cmn.OAETag, etag)
	}
	if bo.Beresp.Get(cmn.HeaderLastModified) != "" || bo.Beresp.Get(cmn.HeaderETag) != "" {
		bo.OC.SetFlag(cache.OcIMSCand)
	}

	now := time.Now()
	cfg := cmn.GCO.Get()
	tOrigin, ttl, grace, keep := ttlFromHeaders(bo.Beresp, now, cfg)
	bo.OC.TOrigin = tOrigin
	bo.OC.TTL = ttl
	bo.OC.Grace = grace
	bo.OC.Keep = keep

	if status == 304 {
		if bo.StaleOC != nil && bo.StaleOC.HasFlag(cache.OcIMSCand) {
			bo.Was304 = true
		} else if !bo.Uncacheable {
			bo.FailReason = "304 without IMS candidate"
			return stateFail
		}
	}

	if bo.Hooks.BackendResponse != nil {
		switch bo.Hooks.BackendResponse(bo) {
		case VerdictRetry:
			if bo.Task.UnderBudget() {
				return stateRetry
			}
			return stateError
		case VerdictPass:
			bo.OC.SetFlag(cache.OcHFP)
			bo.Uncacheable = true
		case VerdictAbandon:
			return stateFail
		case VerdictFail:
			return stateError
		}
	}

	if bo.Was304 {
		return stateCondfetch
	}
	return stateFetch
}

func stateFetch(bo *Busyobj) stateFn {
	bo.enter("FETCH")
	if bo.VFP == nil || bo.VFP.Suck == nil {
		return stateFetchend
	}
	if bo.DoStream && bo.Cacheable {
		bo.OC.Boc.SetState(cache.BosPrepStream)
		bo.OC.Boc.SetState(cache.BosStream)
		bo.Table.Unbusy(bo.Digest, bo.OC)
	}
	return stateFetchbody
}

func stateFetchbody(bo *Busyobj) stateFn {
	bo.enter("FETCHBODY")
	buf := make([]byte, 32*1024)
	for {
		if bo.OC.HasFlag(cache.OcCancel) {
			return stateFetchend
		}
		n, status := bo.VFP.Pull(buf)
		if n > 0 {
			if bo.OC.Store != nil {
				if _, err := bo.OC.Store.Append(buf[:n]); err != nil {
					return bo.pipelineFailure()
				}
			}
			bo.OC.Boc.ExtendFetched(bo.OC.Boc.FetchedSoFar() + int64(n))
		}
		switch status {
		case filter.PullEnd:
			return stateFetchend
		case filter.PullError:
			return bo.pipelineFailure()
		}
	}
}

func (bo *Busyobj) pipelineFailure() stateFn {
	if bo.OC.Boc.State() >= cache.BosStream {
		return stateFail
	}
	return stateError
}

func stateFetchend(bo *Busyobj) stateFn {
	bo.enter("FETCHEND")
	if bo.OC.Store != nil {
		bo.OC.SetAttr(cmn.OALen, int64ToString(bo.OC.Store.Len()))
	}
	if bo.OC.Boc.State() < cache.BosPrepStream {
		bo.OC.Boc.SetState(cache.BosPrepStream)
		bo.Table.Unbusy(bo.Digest, bo.OC)
	}
	bo.OC.Boc.SetState(cache.BosFinished)
	if bo.StaleOC != nil {
		bo.Table.Replace(bo.Digest, bo.StaleOC, bo.OC)
	}
	return nil
}

func stateCondfetch(bo *Busyobj) stateFn {
	bo.enter("CONDFETCH")
	bo.StaleOC.Boc.WaitState(cache.BosFinished)
	if bo.StaleOC.Boc.State() == cache.BosFailed {
		bo.FailReason = "stale object failed during conditional refresh"
		return stateFail
	}
	// A 304 response carries no representation of its own; the merged
	// object reports the stale object's original status/headers, not
	// "304" (stateStartfetch stamped OA_STATUS/OA_HEADERS from the 304
	// response itself before routing here, and that stamp is wrong for
	// a condfetch's end result).
	for _, attr := range []string{cmn.OAStatus, cmn.OAHeaders, cmn.OALastModified, cmn.OAETag, cmn.OAESIData, cmn.OAGzipBits} {
		if v := bo.StaleOC.Attr(attr); v != "" {
			bo.OC.SetAttr(attr, v)
		}
	}
	if bo.StaleOC.HasFlag(cache.OcIMSCand) {
		bo.OC.SetFlag(cache.OcIMSCand)
	}
	if bo.DoStream {
		bo.Table.Unbusy(bo.Digest, bo.OC)
	}
	if bo.StaleOC.Store != nil && bo.OC.Store != nil {
		it := cache.NewIterator(bo.StaleOC.Store, bo.StaleOC.Boc, 0, -1, 32*1024)
		if err := it.Run(func(p []byte) error {
			_, err := bo.OC.Store.Append(p)
			return err
		}); err != nil {
			bo.FailReason = err.Error()
			return stateFail
		}
	}
	return stateFetchend
}

func stateError(bo *Busyobj) stateFn {
	bo.enter("ERROR")
	status := 503
	if bo.Hooks.BackendError != nil {
		switch bo.Hooks.BackendError(bo) {
		case VerdictRetry:
			if bo.Task.UnderBudget() {
				return stateRetry
			}
		case VerdictAbandon, VerdictFail:
			return stateFail
		}
	}
	glog.Warningf("fetch[%d]: synthesizing %d, reason=%q", bo.Xid, status, bo.FailReason)
	bo.OC.SetAttr(cmn.OAFlags, "FAILED")
	bo.OC.SetAttr(cmn.OAStatus, strconv.Itoa(status))
	bo.OC.Boc.SetState(cache.BosPrepStream)
	bo.Table.Unbusy(bo.Digest, bo.OC)
	if bo.StaleOC != nil && bo.OC.TTL > 0 {
		bo.Table.Kill(bo.Digest, bo.StaleOC)
	}
	bo.OC.Boc.SetState(cache.BosFinished)
	return nil
}

func stateFail(bo *Busyobj) stateFn {
	bo.enter("FAIL")
	bo.OC.SetFlag(cache.OcFailed)
	if bo.OC.HasFlag(cache.OcBusy) {
		bo.Table.Kill(bo.Digest, bo.OC)
	}
	bo.OC.Boc.SetState(cache.BosFailed)
	return nil
}

func stateRetry(bo *Busyobj) stateFn {
	bo.enter("RETRY")
	bo.Retries++
	bo.Xid = bo.Xid + 1
	bo.Was304 = false
	bo.FailReason = ""
	if bo.Arena != nil {
		bo.Arena.Rollback(0)
	}
	return stateStartfetch
}
