// Package bgp implements the BGP route-table pipeline:
// RibIn -> FilterIn -> CacheIn -> NextHopLookup -> Decision ->
// FilterSourceMatch -> Fanout -> {per-output: FilterOut -> CacheOut ->
// RibOut}, plus the attribute-sharing trie and policy tables that sit
// alongside it.
package bgp

import (
	"encoding/binary"
	"net"
	"sort"

	"github.com/minio/highwayhash"
)

// Origin is the BGP ORIGIN path attribute, ordered IGP < EGP < INCOMPLETE
// for Decision's tie-break.
type Origin uint8

const (
	OriginIGP Origin = iota
	OriginEGP
	OriginIncomplete
)

// PathAttributeList is the immutable, sorted, content-addressed
// attribute set of a route: two logically equal attribute sets compare
// equal and share storage. Construct one only through attrInterner.Intern
// so equal sets always share the one allocation the BgpTrie's circular
// per-attribute chains are keyed on.
type PathAttributeList struct {
	NextHop     net.IP
	ASPath      []uint32
	Origin      Origin
	MED         uint32
	HasMED      bool
	LocalPref   uint32
	HasLocalPref bool
	Communities []uint32
	Unknown     map[uint8][]byte

	hash    [highwayhash.Size]byte
	refs    int
}

// canonicalBytes renders the attribute set in the sorted field order the
// content hash is computed over: next-hop, AS-path, origin, MED,
// local-pref, communities, unknowns.
func (p *PathAttributeList) canonicalBytes() []byte {
	var buf []byte

	if p.NextHop != nil {
		buf = append(buf, p.NextHop.To16()...)
	}
	buf = append(buf, 0xff)

	for _, asn := range p.ASPath {
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], asn)
		buf = append(buf, b[:]...)
	}
	buf = append(buf, 0xff)

	buf = append(buf, byte(p.Origin))

	if p.HasMED {
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], p.MED)
		buf = append(buf, 1)
		buf = append(buf, b[:]...)
	} else {
		buf = append(buf, 0)
	}

	if p.HasLocalPref {
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], p.LocalPref)
		buf = append(buf, 1)
		buf = append(buf, b[:]...)
	} else {
		buf = append(buf, 0)
	}

	var comms = append([]uint32(nil), p.Communities...)
	sort.Slice(comms, func(i, j int) bool { return comms[i] < comms[j] })
	for _, c := range comms {
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], c)
		buf = append(buf, b[:]...)
	}
	buf = append(buf, 0xff)

	var keys = make([]int, 0, len(p.Unknown))
	for k := range p.Unknown {
		keys = append(keys, int(k))
	}
	sort.Ints(keys)
	for _, k := range keys {
		buf = append(buf, byte(k))
		buf = append(buf, p.Unknown[uint8(k)]...)
		buf = append(buf, 0xfe)
	}

	return buf
}

// Equal reports whether p and o have byte-identical canonical encodings.
// Used by attrInterner to confirm a hash match is not a collision.
func (p *PathAttributeList) Equal(o *PathAttributeList) bool {
	if p == o {
		return true
	}
	if p == nil || o == nil {
		return false
	}
	return string(p.canonicalBytes()) == string(o.canonicalBytes())
}

// Clone returns an uninterned copy of p's field values, suitable as the
// starting point for a policy rewrite.
func (p *PathAttributeList) Clone() *PathAttributeList {
	var c = &PathAttributeList{
		NextHop:      append(net.IP(nil), p.NextHop...),
		ASPath:       append([]uint32(nil), p.ASPath...),
		Origin:       p.Origin,
		MED:          p.MED,
		HasMED:       p.HasMED,
		LocalPref:    p.LocalPref,
		HasLocalPref: p.HasLocalPref,
		Communities:  append([]uint32(nil), p.Communities...),
	}
	if p.Unknown != nil {
		c.Unknown = make(map[uint8][]byte, len(p.Unknown))
		for k, v := range p.Unknown {
			c.Unknown[k] = append([]byte(nil), v...)
		}
	}
	return c
}
