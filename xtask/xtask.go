// Package xtask provides the fetch-task bookkeeping surface: a static
// table of FSM-state descriptors carrying stable diagnostic names, and a
// per-busyobj task handle tracking the retry budget. Adapted from
// the teacher's cmn.XactsDtor (cmn/api_xaction.go): there a
// map[string]XactDescriptor records, per xaction kind, whether it is
// startable/metasync'd/owned; here the same "static table of named,
// statically-described states" shape records, per fetch-FSM state,
// whether reaching it consumes a unit of retry budget (spec's Design
// Note: "State descriptors carry a stable name for diagnostics").
package xtask

import "go.uber.org/atomic"

// State names for the fetch FSM (spec §4.4) and a flag for whether
// entering the state should be considered "a backend connection opened"
// for retry-accounting purposes (spec §9 Open Question: "one attempt per
// backend connection opened, not per VCL invocation").
type StateDescriptor struct {
	Name          string
	ChargesRetry  bool
}

var Descriptors = map[string]StateDescriptor{
	"MKBEREQ":    {Name: "MKBEREQ"},
	"STARTFETCH": {Name: "STARTFETCH", ChargesRetry: true},
	"FETCH":      {Name: "FETCH"},
	"FETCHBODY":  {Name: "FETCHBODY"},
	"FETCHEND":   {Name: "FETCHEND"},
	"CONDFETCH":  {Name: "CONDFETCH"},
	"ERROR":      {Name: "ERROR"},
	"FAIL":       {Name: "FAIL"},
	"RETRY":      {Name: "RETRY"},
	"DONE":       {Name: "DONE"},
}

// Task tracks one fetch task's retry budget and its current named state,
// for diagnostics and for enforcing spec §8 law 6 ("no single request
// triggers more than max_retries backend attempts").
type Task struct {
	maxRetries int
	attempts   atomic.Int32
	state      atomic.String
}

func NewTask(maxRetries int) *Task {
	t := &Task{maxRetries: maxRetries}
	t.state.Store("MKBEREQ")
	return t
}

// Enter records a transition into the named state, charging the retry
// budget if the state's descriptor says to.
func (t *Task) Enter(name string) {
	t.state.Store(name)
	if d, ok := Descriptors[name]; ok && d.ChargesRetry {
		t.attempts.Inc()
	}
}

// State returns the task's current named state.
func (t *Task) State() string { return t.state.Load() }

// Attempts returns how many backend connections this task has opened.
func (t *Task) Attempts() int { return int(t.attempts.Load()) }

// UnderBudget reports whether another STARTFETCH attempt is permitted.
func (t *Task) UnderBudget() bool { return int(t.attempts.Load()) < t.maxRetries }
