package bgp

import (
	"bytes"
	"sort"
)

// DumpTable walks every route currently held across one or more RibIns,
// merged into a single ordered stream, for a full-table dump to a newly
// peering output. The walk's ordering is a snapshot fixed at
// construction time, but each entry's liveness is re-checked against
// the live RibIn at the moment it is visited — a route deleted after
// the dump started but before it is reached is simply skipped — while
// the walk itself survives being paused and resumed across many
// event-loop turns via its cursor.
type DumpTable struct {
	entries []dumpEntry
	pos     int
}

type dumpEntry struct {
	peerID string
	key    string
	rib    *RibIn
}

// NewDumpTable builds a dump walk over ribs, keyed by peerID for each. The
// ordering is most-specific-prefix-first within ascending network address,
// then ascending peerID for ties at the same prefix — mirroring
// ReaderIxTuple::operator< in route_table_reader.cc.
func NewDumpTable(ribs map[string]*RibIn) *DumpTable {
	var entries []dumpEntry
	for peerID, rib := range ribs {
		for key := range rib.trie.byKey {
			entries = append(entries, dumpEntry{peerID: peerID, key: key, rib: rib})
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		return dumpLess(entries[i], entries[j])
	})
	return &DumpTable{entries: entries}
}

func dumpLess(a, b dumpEntry) bool {
	ra, okA := a.rib.trie.Lookup(a.key)
	rb, okB := b.rib.trie.Lookup(b.key)
	if !okA || !okB {
		return a.key < b.key
	}
	na := a.rib.trie.Get(ra).Net
	nb := b.rib.trie.Get(rb).Net

	if c := bytes.Compare(na.IP, nb.IP); c != 0 {
		return c < 0
	}
	lenA, _ := na.Mask.Size()
	lenB, _ := nb.Mask.Size()
	if lenA != lenB {
		return lenA > lenB // most specific (longer mask) first
	}
	return a.peerID < b.peerID
}

// Next returns the next live route in the walk, skipping over entries
// whose route was deleted since NewDumpTable was called. ok is false once
// the walk is exhausted.
func (d *DumpTable) Next() (route SubnetRoute, peerID string, ok bool) {
	for d.pos < len(d.entries) {
		e := d.entries[d.pos]
		d.pos++
		h, present := e.rib.trie.Lookup(e.key)
		if !present {
			continue // withdrawn since the dump was started
		}
		return *e.rib.trie.Get(h), e.peerID, true
	}
	return SubnetRoute{}, "", false
}

// Remaining reports how many entries (including stale ones not yet
// skipped) are left to visit, for progress reporting.
func (d *DumpTable) Remaining() int {
	return len(d.entries) - d.pos
}

// Done reports whether the walk has been fully consumed.
func (d *DumpTable) Done() bool { return d.pos >= len(d.entries) }

// Reset rewinds the cursor to the start of the same fixed ordering,
// without re-snapshotting — used when a dump must be restarted from
// scratch after an interruption. If peer membership itself changed,
// construct a fresh DumpTable instead.
func (d *DumpTable) Reset() { d.pos = 0 }
