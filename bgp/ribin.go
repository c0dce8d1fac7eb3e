package bgp

import "github.com/xorpgo/fabric/ops"

// RibIn stores routes advertised by one peer, keyed by prefix in a
// BgpTrie, and maintains a genid bumped on every peer-down so stale
// references from before a peering bounce are detectable.
type RibIn struct {
	PeerID string
	GenID  uint64

	trie       *BgpTrie
	interner   *attrInterner
	downstream RouteTable
}

// NewRibIn constructs a RibIn for peerID, forwarding accepted updates to
// downstream (ordinarily FilterIn).
func NewRibIn(peerID string, interner *attrInterner, downstream RouteTable) *RibIn {
	if downstream == nil {
		downstream = DiscardTable
	}
	return &RibIn{
		PeerID:     peerID,
		GenID:      1,
		trie:       NewBgpTrie(),
		interner:   interner,
		downstream: downstream,
	}
}

// AddRoute interns route's attribute list, stores it keyed by prefix, and
// forwards it downstream tagged with the current genid.
func (r *RibIn) AddRoute(route SubnetRoute) {
	route.Attrs = r.interner.Intern(route.Attrs)
	route.GenID = r.GenID
	route.OriginPeer = r.PeerID
	r.trie.Insert(route)
	r.downstream.AddRoute(route)
}

// DeleteRoute removes key from this peer's trie, releasing its attribute
// list and forwarding the deletion downstream.
func (r *RibIn) DeleteRoute(key string) {
	old, ok := r.trie.Remove(key)
	if !ok {
		return
	}
	r.interner.Release(old.Attrs)
	r.downstream.DeleteRoute(key)
}

// ReplaceRoute swaps the route at route.Net's key, forwarding a replace
// downstream so Decision can re-run tie-break without an intermediate
// withdrawal being visible.
func (r *RibIn) ReplaceRoute(oldKey string, route SubnetRoute) {
	if old, ok := r.trie.Remove(oldKey); ok {
		r.interner.Release(old.Attrs)
	}
	route.Attrs = r.interner.Intern(route.Attrs)
	route.GenID = r.GenID
	route.OriginPeer = r.PeerID
	r.trie.Insert(route)
	r.downstream.ReplaceRoute(oldKey, route)
}

// Push forwards the end-of-burst barrier downstream.
func (r *RibIn) Push() { r.downstream.Push() }

// Routes returns the current route count, for diagnostics/tests.
func (r *RibIn) Routes() int { return r.trie.Len() }

// PeerDown bumps genid (retiring every handle a downstream stage may
// still hold from before the bounce) and hands every currently-held route
// to a DeletionTable for gradual withdrawal.
func (r *RibIn) PeerDown(batchSize int, dt *DeletionTable) {
	r.GenID++
	var keys []string
	for key := range r.trie.byKey {
		keys = append(keys, key)
	}
	dt.Enqueue(r, keys, batchSize)
	ops.FanoutQueueDepth.WithLabelValues("deletion:" + r.PeerID).Set(float64(len(keys)))
}
