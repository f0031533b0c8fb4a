package cache

// Iterator walks the bytes committed to an object's Storage, blocking on
// the owning Boc when it catches up to fetched_so_far and the object is
// still streaming. It is the `ObjIterate` collaborator spec §5 names as
// a suspension point ("Delivery suspends in ObjIterate waiting for more
// fetched_so_far when streaming").
//
// Modeled on the teacher's objwalk/walkinfo.WalkInfo: that type carries a
// cursor (Marker/markerDir), a target window (msg.PageSize), and invokes
// a PostCallbackFunc per entry as it walks a bucket's directory listing.
// Iterator narrows that shape from "directory entries, one callback per
// object" to "storage bytes, one callback per chunk", and trades the
// marker/prefix filter for an explicit [offset, offset+length) window —
// exactly what CONDFETCH's stale-object copy and range delivery need.
type Iterator struct {
	store  Storage
	boc    *Boc // nil for a non-streaming (already FINISHED) object
	offset int64
	limit  int64 // exclusive upper bound; <0 means "whole object"
	chunk  int
}

// NewIterator builds an Iterator over store starting at offset, stopping
// before limit (or at EOF if limit < 0), reading chunk-sized pieces. boc
// may be nil when the object is already FINISHED and no further bytes
// will ever be appended.
func NewIterator(store Storage, boc *Boc, offset, limit int64, chunk int) *Iterator {
	if chunk <= 0 {
		chunk = 64 * 1024
	}
	return &Iterator{store: store, boc: boc, offset: offset, limit: limit, chunk: chunk}
}

// Next blocks (if the object is still streaming) until either more bytes
// are available or the object reaches a terminal state, then delivers up
// to one chunk via cb. It returns done=true once the iteration window is
// exhausted or the underlying object failed.
func (it *Iterator) Next(cb func(p []byte) error) (done bool, err error) {
	if it.limit >= 0 && it.offset >= it.limit {
		return true, nil
	}
	want := it.offset + int64(it.chunk)
	if it.limit >= 0 && want > it.limit {
		want = it.limit
	}
	if it.boc != nil {
		fetched, state := it.boc.WaitFetched(want)
		if state == BosFailed {
			return true, errIterateFailed
		}
		if fetched < want {
			want = fetched
		}
		if want <= it.offset {
			// object finished with fewer bytes than we hoped to read
			return true, nil
		}
	} else if want > it.store.Len() {
		want = it.store.Len()
		if want <= it.offset {
			return true, nil
		}
	}
	buf := make([]byte, want-it.offset)
	n, rerr := it.store.ReadAt(buf, it.offset)
	if n > 0 {
		if cerr := cb(buf[:n]); cerr != nil {
			return true, cerr
		}
		it.offset += int64(n)
	}
	if rerr != nil {
		return true, rerr
	}
	if it.limit >= 0 && it.offset >= it.limit {
		return true, nil
	}
	return false, nil
}

// Run drives Next to completion, invoking cb for every chunk.
func (it *Iterator) Run(cb func(p []byte) error) error {
	for {
		done, err := it.Next(cb)
		if done {
			return err
		}
	}
}

type iterateError string

func (e iterateError) Error() string { return string(e) }

const errIterateFailed = iterateError("cache: object failed during streaming")
