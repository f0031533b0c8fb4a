package main

import "sync"

// memStorage is the "transient" stevedore cache/objcore.go's Storage doc
// comment names but leaves out of scope: a process-memory byte buffer,
// grown by Append and read back by ReadAt. Durable stevedores (file,
// malloc-pool, persistent) are a spec Non-goal, but cmd/cached is a real
// daemon entrypoint — without some concrete Storage wired into
// Proxy.NewStorage, every fetched body is read from the origin and
// immediately dropped on the floor.
type memStorage struct {
	mu  sync.Mutex
	buf []byte
}

func newMemStorage() *memStorage { return &memStorage{} }

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
