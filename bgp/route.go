package bgp

import "net"

// RouteFlags are a route's per-pipeline state bits.
type RouteFlags struct {
	InUse           bool
	Filtered        bool
	NexthopResolved bool
}

// SubnetRoute is a BGP route keyed by prefix, bound to an interned
// attribute list. Stored by value inside a routeArena;
// pipeline stages pass SubnetRoute values, never *SubnetRoute, and a
// storing stage keeps its copy in its own BgpTrie, so the circular
// per-attribute chain below is a graph of stable slot Handles rather than
// raw pointers.
type SubnetRoute struct {
	Net        *net.IPNet
	Attrs      *PathAttributeList // always an interned (shared) value
	OriginPeer string
	Flags      RouteFlags
	PolicyTags []string
	GenID      uint64

	// chainNext/chainPrev link this route into the circular chain of
	// every other live route sharing the exact same Attrs pointer:
	// following chainNext from any node returns to it in exactly
	// chain-length steps. A singleton chain links to itself.
	chainNext Handle
	chainPrev Handle
}

// Key renders the route's prefix as a trie key (CIDR string).
func (r *SubnetRoute) Key() string { return r.Net.String() }
