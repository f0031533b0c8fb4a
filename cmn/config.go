package cmn

import (
	"sync"
	"sync/atomic"
	"time"
)

// Config is the process-wide, read-mostly parameter set: timeouts, retry
// and restart budgets, the shortlived-storage TTL, and gzip tuning. It is
// published as an immutable snapshot behind an atomic pointer (see GCO
// below) so that readers never lock, matching the teacher's
// `cmn.GCO.Get()` call sites (ais/target.go) and spec §5's "Global state"
// design note.
type Timeout struct {
	ConnectTimeout      time.Duration
	FirstByteTimeout    time.Duration
	BetweenBytesTimeout time.Duration
	SendTimeout         time.Duration
	CplaneOperation     time.Duration
}

type Config struct {
	Timeout       Timeout
	MaxRetries    int           // backend-connection retry budget, per busyobj
	MaxRestarts   int           // policy-restart budget, per request
	ShortLived    time.Duration // TTL for responses without Cache-Control max-age; there is no transient-storage fallback
	GzipBuffer    int           // not read: filter/gzipf uses fixed 32 KiB buffers
	GzipEnabled   bool          // whether Accept-Encoding: gzip is added to backend requests
	RangeEnabled  bool          // whether Range/Accept-Ranges is honored
	DefaultFilters struct {
		Fetch   []string
		Deliver []string
	}
}

// DefaultConfig returns the out-of-the-box parameter set.
func DefaultConfig() *Config {
	c := &Config{}
	c.Timeout.ConnectTimeout = 3 * time.Second
	c.Timeout.FirstByteTimeout = 60 * time.Second
	c.Timeout.BetweenBytesTimeout = 60 * time.Second
	c.Timeout.SendTimeout = 60 * time.Second
	c.Timeout.CplaneOperation = 2 * time.Second
	c.MaxRetries = 4
	c.MaxRestarts = 4
	c.ShortLived = 10 * time.Second
	c.GzipBuffer = 32 * 1024
	c.GzipEnabled = true
	c.RangeEnabled = true
	c.DefaultFilters.Fetch = []string{"backend-reader"}
	c.DefaultFilters.Deliver = []string{"wire-writer"}
	return c
}

// gco is the global config owner: an atomically-swapped pointer to an
// immutable *Config, mirroring the teacher's `cmn.GCO`.
type gco struct {
	mu  sync.Mutex // guards swaps only; readers never take it
	cur atomic.Pointer[Config]
}

// GCO is the single process-wide config owner. Call GCO.Get() on the hot
// path (lock-free); call GCO.Update() from the (out-of-scope) management
// plane.
var GCO = newGCO()

func newGCO() *gco {
	g := &gco{}
	g.cur.Store(DefaultConfig())
	return g
}

// Get returns the current immutable snapshot. Safe for concurrent use
// without locking.
func (g *gco) Get() *Config { return g.cur.Load() }

// Clone returns a deep-enough copy of the current snapshot for a caller
// that wants to construct an updated Config to publish via Update.
func (g *gco) Clone() Config { return *g.cur.Load() }

// Update atomically publishes a new snapshot.
func (g *gco) Update(c *Config) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cur.Store(c)
}
