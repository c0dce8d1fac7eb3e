package bgp

// PeerInfo carries the per-peer facts Decision's tie-break needs beyond
// what's in a route's attribute list: which AS the route came from, over
// what session type, and that peer's BGP identifier.
type PeerInfo struct {
	PeerID     string
	NeighborAS uint32
	EBGP       bool
	RouterID   uint32
}

type decisionCandidate struct {
	route   SubnetRoute
	peer    PeerInfo
	igpCost uint32
	igpOK   bool
}

// DecisionStage selects, per prefix, the single best route among every
// peer currently advertising it, and forwards only changes to the winner
// downstream. Each peer feeds Decision through its own Input adapter rather
// than through the plain RouteTable interface, since Decision must know
// which peer a given add/delete/replace came from.
type DecisionStage struct {
	downstream RouteTable
	// candidates[key][peerID] is every currently live advertisement of key.
	candidates map[string]map[string]decisionCandidate
	// winner[key] is the peerID currently forwarded downstream, if any.
	winner map[string]string
}

// NewDecisionStage constructs a Decision stage forwarding winners to
// downstream (ordinarily FilterSourceMatch/Fanout).
func NewDecisionStage(downstream RouteTable) *DecisionStage {
	if downstream == nil {
		downstream = DiscardTable
	}
	return &DecisionStage{
		downstream: downstream,
		candidates: make(map[string]map[string]decisionCandidate),
		winner:     make(map[string]string),
	}
}

// decisionInput is the per-peer RouteTable adapter handed back by Input.
type decisionInput struct {
	d      *DecisionStage
	peer   PeerInfo
	costFn func(key string) (uint32, bool)
}

// Input returns the RouteTable a given peer's NextHopLookup stage should
// treat as its downstream. costFn looks up that peer's resolved IGP cost
// for a route key (ordinarily NextHopStage.IGPCost).
func (d *DecisionStage) Input(peer PeerInfo, costFn func(key string) (uint32, bool)) RouteTable {
	return &decisionInput{d: d, peer: peer, costFn: costFn}
}

func (in *decisionInput) AddRoute(route SubnetRoute) {
	in.d.set(in.peer, route, in.costFn)
}

func (in *decisionInput) DeleteRoute(key string) {
	in.d.clear(in.peer.PeerID, key)
}

func (in *decisionInput) ReplaceRoute(oldKey string, route SubnetRoute) {
	if oldKey != route.Key() {
		in.d.clear(in.peer.PeerID, oldKey)
	}
	in.d.set(in.peer, route, in.costFn)
}

func (in *decisionInput) Push() { in.d.downstream.Push() }

func (d *DecisionStage) set(peer PeerInfo, route SubnetRoute, costFn func(string) (uint32, bool)) {
	var key = route.Key()
	byPeer, ok := d.candidates[key]
	if !ok {
		byPeer = make(map[string]decisionCandidate)
		d.candidates[key] = byPeer
	}
	cost, costOK := costFn(key)
	byPeer[peer.PeerID] = decisionCandidate{route: route, peer: peer, igpCost: cost, igpOK: costOK}
	d.reconcile(key)
}

func (d *DecisionStage) clear(peerID, key string) {
	byPeer, ok := d.candidates[key]
	if !ok {
		return
	}
	delete(byPeer, peerID)
	if len(byPeer) == 0 {
		delete(d.candidates, key)
	}
	d.reconcile(key)
}

// reconcile recomputes the winner for key and forwards whatever add,
// delete or replace is needed to bring downstream in line.
func (d *DecisionStage) reconcile(key string) {
	byPeer := d.candidates[key]
	prevPeerID, hadWinner := d.winner[key]

	if len(byPeer) == 0 {
		if hadWinner {
			delete(d.winner, key)
			d.downstream.DeleteRoute(key)
		}
		return
	}

	var best decisionCandidate
	var have bool
	for _, c := range byPeer {
		if !have || better(c, best) {
			best = c
			have = true
		}
	}

	switch {
	case !hadWinner:
		d.winner[key] = best.peer.PeerID
		d.downstream.AddRoute(best.route)
	case prevPeerID == best.peer.PeerID:
		// Same peer still wins; re-push in case its route content changed.
		d.downstream.ReplaceRoute(key, best.route)
	default:
		d.winner[key] = best.peer.PeerID
		d.downstream.ReplaceRoute(key, best.route)
	}
}

// better reports whether a wins the tie-break over b, applying the
// seven selection steps in sequence, each only breaking the tie if the
// prior steps were equal.
func better(a, b decisionCandidate) bool {
	if lp1, lp2 := localPref(a), localPref(b); lp1 != lp2 {
		return lp1 > lp2
	}
	if l1, l2 := len(a.route.Attrs.ASPath), len(b.route.Attrs.ASPath); l1 != l2 {
		return l1 < l2
	}
	if a.route.Attrs.Origin != b.route.Attrs.Origin {
		return a.route.Attrs.Origin < b.route.Attrs.Origin
	}
	if a.peer.NeighborAS == b.peer.NeighborAS {
		if m1, m2 := a.route.Attrs.MED, b.route.Attrs.MED; m1 != m2 {
			return m1 < m2
		}
	}
	if a.peer.EBGP != b.peer.EBGP {
		return a.peer.EBGP
	}
	if a.igpOK != b.igpOK {
		return a.igpOK
	}
	if a.igpOK && b.igpOK && a.igpCost != b.igpCost {
		return a.igpCost < b.igpCost
	}
	return a.peer.RouterID < b.peer.RouterID
}

// localPref defaults to 100 (BGP's well-known default) when a route
// carries none.
func localPref(c decisionCandidate) uint32 {
	if c.route.Attrs.HasLocalPref {
		return c.route.Attrs.LocalPref
	}
	return 100
}

// Winner returns the currently winning route for key, if any.
func (d *DecisionStage) Winner(key string) (SubnetRoute, bool) {
	byPeer, ok := d.candidates[key]
	if !ok {
		return SubnetRoute{}, false
	}
	peerID, ok := d.winner[key]
	if !ok {
		return SubnetRoute{}, false
	}
	return byPeer[peerID].route, true
}
