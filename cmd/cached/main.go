// Command cached runs the caching reverse proxy: it listens for client
// requests, drives the client and fetch FSMs (packages proxy and fetch),
// and exposes a small admin surface (/admin/purge, /admin/stats) for
// cmd/cachectl. Bootstrap shape follows the teacher's daemon-main idiom
// (flag-parsed listen address, glog for diagnostics, hk-registered
// periodic maintenance) scaled down from a multi-role cluster daemon to
// a single reverse-proxy process.
package main

import (
	"flag"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/golang/glog"

	"github.com/vproxy-cache/vproxy/cache"
	"github.com/vproxy-cache/vproxy/cmn"
	"github.com/vproxy-cache/vproxy/hk"
	"github.com/vproxy-cache/vproxy/proxy"
	"github.com/vproxy-cache/vproxy/transport"
)

var (
	listenAddr = flag.String("listen", ":8080", "client-facing listen address")
	adminAddr  = flag.String("admin", ":8081", "admin listen address")
	originURL  = flag.String("origin", "", "origin backend base URL, e.g. http://origin:80")
)

// counters are the admin-surface stats, lock-free via sync/atomic.
type counters struct {
	lookups, hits, misses, passes, fetches, errors atomic.Int64
	start                                          time.Time
}

func main() {
	flag.Parse()
	if *originURL == "" {
		glog.Fatal("cached: -origin is required")
	}

	backend := transport.NewHTTPBackend(cmn.GCO.Get().Timeout.BetweenBytesTimeout)
	p := proxy.NewProxy(backend)
	p.Directors.Reg(&cache.StaticDirector{DName: "default", Addr: *originURL})
	p.NewStorage = func() cache.Storage { return newMemStorage() }

	st := &counters{start: time.Now()}
	wireStats(p, st)

	hk.Reg("stale-object-sweep", func() time.Duration {
		glog.V(3).Info("cached: housekeeping tick (eviction policy is out of scope)")
		return time.Minute
	})

	go serveAdmin(*adminAddr, p, st)

	glog.Infof("cached: listening on %s, origin=%s", *listenAddr, *originURL)
	if err := http.ListenAndServe(*listenAddr, p); err != nil {
		glog.Fatalf("cached: %v", err)
	}
}

// wireStats attaches counting hooks without altering FSM decisions: each
// hook defers to whatever the previous hook (if any) returned.
func wireStats(p *proxy.Proxy, st *counters) {
	prevRecv := p.Hooks.Recv
	p.Hooks.Recv = func(req *proxy.Request) proxy.VclReturn {
		st.lookups.Add(1)
		if prevRecv != nil {
			return prevRecv(req)
		}
		return proxy.RetHash
	}
	prevHit := p.Hooks.Hit
	p.Hooks.Hit = func(req *proxy.Request) proxy.VclReturn {
		st.hits.Add(1)
		if prevHit != nil {
			return prevHit(req)
		}
		return proxy.RetDeliver
	}
	prevMiss := p.Hooks.Miss
	p.Hooks.Miss = func(req *proxy.Request) proxy.VclReturn {
		st.misses.Add(1)
		st.fetches.Add(1)
		if prevMiss != nil {
			return prevMiss(req)
		}
		return proxy.RetFetch
	}
	prevPass := p.Hooks.Pass
	p.Hooks.Pass = func(req *proxy.Request) proxy.VclReturn {
		st.passes.Add(1)
		st.fetches.Add(1)
		if prevPass != nil {
			return prevPass(req)
		}
		return proxy.RetFetch
	}
	prevSynth := p.Hooks.Synth
	p.Hooks.Synth = func(req *proxy.Request) proxy.VclReturn {
		if req.ErrCode >= 500 {
			st.errors.Add(1)
		}
		if prevSynth != nil {
			return prevSynth(req)
		}
		return proxy.RetDeliver
	}
}
