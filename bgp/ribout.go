package bgp

// RibOut is the terminal stage of a per-output pipeline branch: it holds
// the set of routes currently advertised to one peer. Nothing in this
// repo reads it for the wire; package ripout works on its own RipRoute
// slices and does not import bgp.
type RibOut struct {
	trie    *BgpTrie
	updates *UpdateQueue // nil until AttachUpdateQueue
}

// NewRibOut returns an empty RibOut.
func NewRibOut() *RibOut {
	return &RibOut{trie: NewBgpTrie()}
}

// AttachUpdateQueue starts logging every subsequent add/replace/delete to
// q, for a triggered-update reader to consume at its own pace.
func (r *RibOut) AttachUpdateQueue(q *UpdateQueue) { r.updates = q }

func (r *RibOut) AddRoute(route SubnetRoute) {
	r.trie.Insert(route)
	if r.updates != nil {
		r.updates.Append(RouteUpdate{Kind: UpdateAdd, Key: route.Key(), Route: route})
	}
}

func (r *RibOut) DeleteRoute(key string) {
	r.trie.Remove(key)
	if r.updates != nil {
		r.updates.Append(RouteUpdate{Kind: UpdateDelete, Key: key})
	}
}

func (r *RibOut) ReplaceRoute(oldKey string, route SubnetRoute) {
	r.trie.Remove(oldKey)
	r.trie.Insert(route)
	if r.updates != nil {
		r.updates.Append(RouteUpdate{Kind: UpdateReplace, Key: route.Key(), OldKey: oldKey, Route: route})
	}
}

func (r *RibOut) Push() {}

// Lookup returns the currently advertised route for key, if any.
func (r *RibOut) Lookup(key string) (SubnetRoute, bool) {
	h, ok := r.trie.Lookup(key)
	if !ok {
		return SubnetRoute{}, false
	}
	return *r.trie.Get(h), true
}

// Snapshot returns every currently advertised route keyed by prefix.
func (r *RibOut) Snapshot() map[string]SubnetRoute {
	out := make(map[string]SubnetRoute, r.trie.Len())
	for key, h := range r.trie.byKey {
		out[key] = *r.trie.Get(h)
	}
	return out
}

// Len returns the number of routes currently advertised.
func (r *RibOut) Len() int { return r.trie.Len() }
