package bgp

// CacheStage mirrors every route it has actually forwarded downstream in
// its own BgpTrie, used for both CacheIn (post-FilterIn, pre-NextHopLookup)
// and CacheOut (post-FilterOut, pre-RibOut). The cache's
// purpose is to let a later ReplaceRoute or Push-triggered re-walk read
// back what is currently held without re-deriving it from upstream.
type CacheStage struct {
	trie       *BgpTrie
	downstream RouteTable
}

// NewCacheStage constructs a cache forwarding to downstream.
func NewCacheStage(downstream RouteTable) *CacheStage {
	if downstream == nil {
		downstream = DiscardTable
	}
	return &CacheStage{trie: NewBgpTrie(), downstream: downstream}
}

func (c *CacheStage) AddRoute(route SubnetRoute) {
	c.trie.Insert(route)
	c.downstream.AddRoute(route)
}

func (c *CacheStage) DeleteRoute(key string) {
	if _, ok := c.trie.Remove(key); !ok {
		return
	}
	c.downstream.DeleteRoute(key)
}

func (c *CacheStage) ReplaceRoute(oldKey string, route SubnetRoute) {
	c.trie.Remove(oldKey)
	c.trie.Insert(route)
	c.downstream.ReplaceRoute(oldKey, route)
}

func (c *CacheStage) Push() { c.downstream.Push() }

// Lookup returns the currently cached route for key, if any.
func (c *CacheStage) Lookup(key string) (SubnetRoute, bool) {
	h, ok := c.trie.Lookup(key)
	if !ok {
		return SubnetRoute{}, false
	}
	return *c.trie.Get(h), true
}

// Snapshot returns every currently cached route keyed by prefix, in the
// shape FilterStage.ReapplyAll takes as its current route set.
func (c *CacheStage) Snapshot() map[string]SubnetRoute {
	out := make(map[string]SubnetRoute, c.trie.Len())
	for key, h := range c.trie.byKey {
		out[key] = *c.trie.Get(h)
	}
	return out
}

// Len returns the number of routes currently cached.
func (c *CacheStage) Len() int { return c.trie.Len() }
