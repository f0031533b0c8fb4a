package cache

import "sync"

// Director is the backend-selection policy handle a fetch task resolves
// at MKBEREQ time (spec §3 "Busyobj ... a director reference", GLOSSARY
// "Director"). Only the dial contract is in scope here; selection policy
// (round-robin, DNS, health-weighted, ...) is explicitly out of scope
// (spec §1).
type Director interface {
	Name() string
	Dial() (addr string, err error)
}

// Directors is a named registry of backend Directors, adapted from the
// teacher's ais/fspathrgrp.go `fsprungroup` (`Reg`/`Unreg` over a
// map[string]... guarded by RWMutex) — there it tracks filesystem-path
// runners; here it tracks backend directors a fetch task looks up by
// name when building a bereq.
type Directors struct {
	mu  sync.RWMutex
	byName map[string]Director
}

func NewDirectors() *Directors {
	return &Directors{byName: make(map[string]Director, 8)}
}

func (g *Directors) Reg(d Director) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.byName[d.Name()] = d
}

func (g *Directors) Unreg(name string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.byName, name)
}

func (g *Directors) Get(name string) (Director, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	d, ok := g.byName[name]
	return d, ok
}

// StaticDirector is the simplest Director: a single fixed backend
// address, sufficient for tests and for the default/only-backend case.
type StaticDirector struct {
	DName string
	Addr  string
}

func (s *StaticDirector) Name() string             { return s.DName }
func (s *StaticDirector) Dial() (string, error)     { return s.Addr, nil }
