package main

import (
	"net/http"
	"time"

	"github.com/golang/glog"
	jsoniter "github.com/json-iterator/go"

	"github.com/vproxy-cache/vproxy/api"
	"github.com/vproxy-cache/vproxy/cache"
	"github.com/vproxy-cache/vproxy/proxy"
)

// serveAdmin runs the /admin/purge and /admin/stats surface cmd/cachectl
// talks to via package api.
func serveAdmin(addr string, p *proxy.Proxy, st *counters) {
	mux := http.NewServeMux()
	mux.HandleFunc("/admin/purge", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		host := r.URL.Query().Get("host")
		path := r.URL.Query().Get("path")
		d := cache.HashKey(host, path)
		n := p.Table.Purge(d)
		writeJSON(w, api.PurgeResult{Purged: n})
	})
	mux.HandleFunc("/admin/stats", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, api.Stats{
			Lookups: st.lookups.Load(),
			Hits:    st.hits.Load(),
			Misses:  st.misses.Load(),
			Passes:  st.passes.Load(),
			Fetches: st.fetches.Load(),
			Errors:  st.errors.Load(),
			Uptime:  int64(time.Since(st.start).Seconds()),
		})
	})
	if err := http.ListenAndServe(addr, mux); err != nil {
		glog.Errorf("cached: admin listener: %v", err)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	b, err := jsoniter.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(b)
}
