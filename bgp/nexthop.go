package bgp

// NextHopResolver answers whether a next hop is currently reachable and, if
// so, its IGP metric. Production wiring wraps the IGP's own route table;
// tests wire a fixed map.
type NextHopResolver interface {
	Resolve(nextHop string) (cost uint32, reachable bool)
}

// StaticNextHopResolver is a fixed-map NextHopResolver for tests and for
// static next-hop configurations.
type StaticNextHopResolver map[string]uint32

func (s StaticNextHopResolver) Resolve(nextHop string) (uint32, bool) {
	cost, ok := s[nextHop]
	return cost, ok
}

// NextHopStage annotates each route's Flags.NexthopResolved using resolver,
// forwarding every route downstream regardless of resolvability — an
// unresolved next hop is Decision's concern (it loses Decision's IGP-cost
// step to a resolved one when the earlier steps tie), not a filtering
// concern.
type NextHopStage struct {
	resolver   NextHopResolver
	downstream RouteTable
	cost       map[string]uint32
}

// NewNextHopStage constructs a stage using resolver, forwarding to
// downstream.
func NewNextHopStage(resolver NextHopResolver, downstream RouteTable) *NextHopStage {
	if downstream == nil {
		downstream = DiscardTable
	}
	return &NextHopStage{resolver: resolver, downstream: downstream, cost: make(map[string]uint32)}
}

func (n *NextHopStage) annotate(route SubnetRoute) SubnetRoute {
	var nh string
	if route.Attrs.NextHop != nil {
		nh = route.Attrs.NextHop.String()
	}
	cost, reachable := n.resolver.Resolve(nh)
	route.Flags.NexthopResolved = reachable
	if reachable {
		n.cost[route.Key()] = cost
	} else {
		delete(n.cost, route.Key())
	}
	return route
}

func (n *NextHopStage) AddRoute(route SubnetRoute) {
	n.downstream.AddRoute(n.annotate(route))
}

func (n *NextHopStage) DeleteRoute(key string) {
	delete(n.cost, key)
	n.downstream.DeleteRoute(key)
}

func (n *NextHopStage) ReplaceRoute(oldKey string, route SubnetRoute) {
	if oldKey != route.Key() {
		delete(n.cost, oldKey)
	}
	n.downstream.ReplaceRoute(oldKey, n.annotate(route))
}

func (n *NextHopStage) Push() { n.downstream.Push() }

// IGPCost returns the last-resolved IGP cost to key's next hop, used by
// Decision's tie-break step 6. Zero, false if never resolved.
func (n *NextHopStage) IGPCost(key string) (uint32, bool) {
	cost, ok := n.cost[key]
	return cost, ok
}
