package bgp

import (
	"encoding/binary"
	"sync"

	"github.com/minio/highwayhash"
)

// interningKey is a fixed HighwayHash key: a compile-time-fixed 32-byte
// key read once rather than computed per call.
var interningKey = []byte("xorpgo-fabric-bgp-attrlist-key!!")

// attrInterner owns one canonical *PathAttributeList per distinct
// attribute set, keyed by content hash, so logically equal sets share
// storage. Refcounted: a stage that copies
// a route into its own storage calls Retain/Release around that route's
// attribute list.
type attrInterner struct {
	mu      sync.Mutex
	byHash  map[uint64][]*PathAttributeList // collision chain per hash bucket
}

// newAttrInterner returns an empty interner.
func newAttrInterner() *attrInterner {
	return &attrInterner{byHash: make(map[uint64][]*PathAttributeList)}
}

func contentHash(p *PathAttributeList) uint64 {
	return highwayhash.Sum64(p.canonicalBytes(), interningKey)
}

// Intern returns the canonical, refcounted *PathAttributeList equal to p,
// creating and storing one if none exists yet. The caller's p is never
// retained directly unless it happens to be the first of its kind.
func (in *attrInterner) Intern(p *PathAttributeList) *PathAttributeList {
	var h = contentHash(p)

	in.mu.Lock()
	defer in.mu.Unlock()

	for _, existing := range in.byHash[h] {
		if existing.Equal(p) {
			existing.refs++
			return existing
		}
	}
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], h)
	copy(p.hash[:], b[:])
	p.refs = 1
	in.byHash[h] = append(in.byHash[h], p)
	return p
}

// Retain increments p's refcount. p must have been returned by Intern.
func (in *attrInterner) Retain(p *PathAttributeList) {
	in.mu.Lock()
	p.refs++
	in.mu.Unlock()
}

// Release decrements p's refcount, evicting it from the interner once
// it reaches zero.
func (in *attrInterner) Release(p *PathAttributeList) {
	in.mu.Lock()
	defer in.mu.Unlock()
	p.refs--
	if p.refs > 0 {
		return
	}
	var h = contentHash(p)
	var chain = in.byHash[h]
	for i, existing := range chain {
		if existing == p {
			chain = append(chain[:i], chain[i+1:]...)
			break
		}
	}
	if len(chain) == 0 {
		delete(in.byHash, h)
	} else {
		in.byHash[h] = chain
	}
}

// Refs reports p's current refcount, for tests.
func (in *attrInterner) Refs(p *PathAttributeList) int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return p.refs
}
