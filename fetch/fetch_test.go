package fetch_test

import (
	"net/http"
	"sync"
	"testing"

	"github.com/vproxy-cache/vproxy/cache"
	"github.com/vproxy-cache/vproxy/cmn"
	"github.com/vproxy-cache/vproxy/fetch"
	"github.com/vproxy-cache/vproxy/filter"
	"github.com/vproxy-cache/vproxy/xtask"
)

type memStorage struct {
	mu  sync.Mutex
	buf []byte
}

func (s *memStorage) Append(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf = append(s.buf, p...)
	return len(p), nil
}

func (s *memStorage) ReadAt(p []byte, off int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if off >= int64(len(s.buf)) {
		return 0, nil
	}
	n := copy(p, s.buf[off:])
	return n, nil
}

func (s *memStorage) Len() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.buf))
}

type staticDirector struct{ addr string }

func (d *staticDirector) Name() string            { return "static" }
func (d *staticDirector) Dial() (string, error)   { return d.addr, nil }

type fakeBackend struct {
	status int
	header http.Header
	body   []byte
}

func (b *fakeBackend) Open(addr string, h http.Header) (int, http.Header, filter.SuckFunc, error) {
	pos := 0
	data := b.body
	suck := func(buf []byte) (int, filter.PullStatus) {
		if pos >= len(data) {
			return 0, filter.PullEnd
		}
		n := copy(buf, data[pos:])
		pos += n
		status := filter.PullOK
		if pos >= len(data) {
			status = filter.PullEnd
		}
		return n, status
	}
	return b.status, b.header, suck, nil
}

func TestFetchRunsMissToFinished(t *testing.T) {
	table := cache.NewTable()
	d := cache.HashKey("h", "/x")
	oc := cache.NewObjcore(d, "", 1)
	oc.Store = &memStorage{}
	table.TableInsert(d, oc)

	bo := &fetch.Busyobj{
		BereqOrig: http.Header{"Host": {"h"}},
		Director:  &staticDirector{addr: "backend:80"},
		Backend:   &fakeBackend{status: 200, header: http.Header{}, body: []byte("hello world")},
		Table:     table,
		Digest:    d,
		OC:        oc,
		VFP:       filter.NewVFPCtx(nil, nil),
		Cacheable: true,
		DoStream:  true,
		Task:      newTask(),
	}

	fetch.Run(bo)

	if oc.Boc.State() != cache.BosFinished {
		t.Fatalf("expected FINISHED, got %v", oc.Boc.State())
	}
	if string(oc.Store.(*memStorage).buf) != "hello world" {
		t.Fatalf("unexpected stored body: %q", oc.Store.(*memStorage).buf)
	}
}

func TestFetchDirectorFailureGoesToFail(t *testing.T) {
	table := cache.NewTable()
	d := cache.HashKey("h", "/y")
	oc := cache.NewObjcore(d, "", 1)
	table.TableInsert(d, oc)

	bo := &fetch.Busyobj{
		BereqOrig: http.Header{},
		Director:  &failingDirector{},
		Backend:   &fakeBackend{},
		Table:     table,
		Digest:    d,
		OC:        oc,
		VFP:       filter.NewVFPCtx(nil, nil),
		Task:      newTask(),
	}

	fetch.Run(bo)

	if oc.Boc.State() != cache.BosFailed {
		t.Fatalf("expected FAILED, got %v", oc.Boc.State())
	}
	if !oc.HasFlag(cache.OcFailed) {
		t.Fatal("expected OcFailed flag set")
	}
}

// errBackend fails every Open call, modeling a backend connection that
// never succeeds (spec Scenario 4, §4.4).
type errBackend struct{}

func (b *errBackend) Open(addr string, h http.Header) (int, http.Header, filter.SuckFunc, error) {
	return 0, nil, nil, errDial
}

// TestFetchRetriesWithinBudgetThenSynthesizes exercises the retry path
// review comment 3 found broken: with BackendError asking for a retry on
// each failed attempt, the FSM must keep cycling ERROR -> RETRY ->
// STARTFETCH until the retry budget (2 attempts here) is exhausted, and
// only then fall through ERROR's synthesis branch to a 503 BosFinished
// object, never short-circuiting to stateFail after the first attempt.
func TestFetchRetriesWithinBudgetThenSynthesizes(t *testing.T) {
	table := cache.NewTable()
	d := cache.HashKey("h", "/retry")
	oc := cache.NewObjcore(d, "", 1)
	table.TableInsert(d, oc)

	bo := &fetch.Busyobj{
		BereqOrig: http.Header{},
		Director:  &staticDirector{addr: "backend:80"},
		Backend:   &errBackend{},
		Table:     table,
		Digest:    d,
		OC:        oc,
		VFP:       filter.NewVFPCtx(nil, nil),
		Task:      xtask.NewTask(2),
		Hooks: fetch.Hooks{
			BackendError: func(bo *fetch.Busyobj) fetch.Verdict { return fetch.VerdictRetry },
		},
	}

	fetch.Run(bo)

	if bo.Task.Attempts() != 2 {
		t.Fatalf("expected 2 backend attempts spent against the budget, got %d", bo.Task.Attempts())
	}
	if oc.Boc.State() != cache.BosFinished {
		t.Fatalf("expected synthesized FINISHED after budget exhaustion, got %v", oc.Boc.State())
	}
	if oc.HasFlag(cache.OcFailed) {
		t.Fatal("budget-exhausted synthesis should not set OcFailed (that's stateFail's marker)")
	}
	if got := oc.Attr(cmn.OAFlags); got != "FAILED" {
		t.Fatalf("expected OA_FLAGS=FAILED, got %q", got)
	}
}

type failingDirector struct{}

func (d *failingDirector) Name() string          { return "failing" }
func (d *failingDirector) Dial() (string, error) { return "", errDial }

type dialError string

func (e dialError) Error() string { return string(e) }

const errDial = dialError("dial refused")

func newTask() *xtask.Task { return xtask.NewTask(cmn.DefaultConfig().MaxRetries) }
