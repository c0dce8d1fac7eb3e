package bgp

// BgpTrie indexes SubnetRoutes primarily by prefix and secondarily by
// attribute list:
// every route sharing a *PathAttributeList is threaded into a circular
// doubly linked chain, giving O(chain-length) enumeration of all routes
// with a given attribute set.
//
// The primary index is a plain Go map keyed by CIDR string rather than
// a byte-trie over the prefix bits: nothing here needs longest-prefix
// matching, only exact prefix lookup, and a map answers that with far
// less machinery.
type BgpTrie struct {
	arena *routeArena
	byKey map[string]Handle

	// chainHead maps an interned attribute list to one handle in its
	// circular chain; any handle in the chain works as an entry point.
	chainHead map[*PathAttributeList]Handle
}

// NewBgpTrie returns an empty trie over its own private arena.
func NewBgpTrie() *BgpTrie {
	return &BgpTrie{
		arena:     newRouteArena(),
		byKey:     make(map[string]Handle),
		chainHead: make(map[*PathAttributeList]Handle),
	}
}

// Lookup returns the handle for prefix key (CIDR string), if present.
func (t *BgpTrie) Lookup(key string) (Handle, bool) {
	h, ok := t.byKey[key]
	return h, ok
}

// Get dereferences h.
func (t *BgpTrie) Get(h Handle) *SubnetRoute { return t.arena.Get(h) }

// Insert stores route under its own Net key, linking it into the
// circular chain for route.Attrs. If key already exists, the prior route
// is unlinked and freed first (matching replace_route semantics at the
// trie layer; RouteTable stages decide whether that's actually a replace
// or an error).
func (t *BgpTrie) Insert(route SubnetRoute) Handle {
	var key = route.Net.String()
	if old, ok := t.byKey[key]; ok {
		t.remove(old)
	}

	h := t.arena.Alloc(route)
	t.linkChain(h)
	t.byKey[key] = h
	return h
}

// Remove deletes the route at key, unlinking it from its attribute chain
// and freeing its arena slot.
func (t *BgpTrie) Remove(key string) (SubnetRoute, bool) {
	h, ok := t.byKey[key]
	if !ok {
		return SubnetRoute{}, false
	}
	removed := *t.arena.Get(h)
	delete(t.byKey, key)
	t.remove(h)
	return removed, true
}

func (t *BgpTrie) remove(h Handle) {
	t.unlinkChain(h)
	t.arena.Free(h)
}

// linkChain splices h's route into the circular chain for its Attrs
// pointer, creating a new singleton chain if none exists yet.
func (t *BgpTrie) linkChain(h Handle) {
	route := t.arena.Get(h)
	head, ok := t.chainHead[route.Attrs]
	if !ok {
		route.chainNext = h
		route.chainPrev = h
		t.chainHead[route.Attrs] = h
		return
	}
	headRoute := t.arena.Get(head)
	tail := headRoute.chainPrev
	tailRoute := t.arena.Get(tail)

	tailRoute.chainNext = h
	route.chainPrev = tail
	route.chainNext = head
	headRoute.chainPrev = h
}

// unlinkChain splices h out of its attribute chain, updating or removing
// the chain head as needed.
func (t *BgpTrie) unlinkChain(h Handle) {
	route := t.arena.Get(h)
	var attrs = route.Attrs

	if route.chainNext == h {
		// Singleton chain.
		delete(t.chainHead, attrs)
		return
	}

	prevRoute := t.arena.Get(route.chainPrev)
	nextRoute := t.arena.Get(route.chainNext)
	prevRoute.chainNext = route.chainNext
	nextRoute.chainPrev = route.chainPrev

	if t.chainHead[attrs] == h {
		t.chainHead[attrs] = route.chainNext
	}
}

// ChainLen returns the number of live routes sharing attrs's identity,
// by walking the circular chain from its head. O(chain length).
func (t *BgpTrie) ChainLen(attrs *PathAttributeList) int {
	head, ok := t.chainHead[attrs]
	if !ok {
		return 0
	}
	var n = 1
	for cur := t.arena.Get(head).chainNext; cur != head; cur = t.arena.Get(cur).chainNext {
		n++
	}
	return n
}

// WalkChain calls fn for every route sharing attrs's identity, in chain
// order, starting from the chain head.
func (t *BgpTrie) WalkChain(attrs *PathAttributeList, fn func(Handle, *SubnetRoute)) {
	head, ok := t.chainHead[attrs]
	if !ok {
		return
	}
	cur := head
	for {
		route := t.arena.Get(cur)
		var next = route.chainNext
		fn(cur, route)
		if next == head {
			return
		}
		cur = next
	}
}

// Len returns the number of routes currently in the trie.
func (t *BgpTrie) Len() int { return len(t.byKey) }
