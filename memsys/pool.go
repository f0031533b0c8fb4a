package memsys

import "sync"

// Pool is a free-list of Arenas of a single size, standing in for the
// teacher's *memsys.MMSA. The proxy allocates request workspaces from a
// Pool so repeated request/response cycles do not re-allocate the
// backing buffer.
type Pool struct {
	mu      sync.Mutex
	size    int
	name    string
	free    []*Arena
}

// NewPool creates a pool that hands out Arenas of `size` bytes.
func NewPool(name string, size int) *Pool {
	return &Pool{name: name, size: size}
}

// Get returns a ready-to-use Arena, reusing a freed one if available.
func (p *Pool) Get() *Arena {
	p.mu.Lock()
	n := len(p.free)
	if n > 0 {
		a := p.free[n-1]
		p.free = p.free[:n-1]
		p.mu.Unlock()
		a.Rollback(0)
		return a
	}
	p.mu.Unlock()
	return New(p.name, p.size)
}

// Put returns an Arena to the pool after the owning task is done with
// it. The caller must have already rolled it back (the proxy's ServeHTTP
// does this before returning a request arena to the pool).
func (p *Pool) Put(a *Arena) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.free = append(p.free, a)
}
