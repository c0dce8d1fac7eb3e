package bgp

import "net"

// BGPVarRW is the variable read/write view a policy rule mutates. It
// exposes exactly the fields a policy is allowed to
// inspect or rewrite; anything else about the route is opaque to policy.
type BGPVarRW struct {
	NextHop     string
	ASPath      []uint32
	Origin      Origin
	MED         uint32
	HasMED      bool
	LocalPref   uint32
	HasLocalPref bool
	Communities []uint32
	PolicyTags  []string

	// NetworkPrefix and OriginPeer are read-only context a rule may match
	// on but never rewrites.
	NetworkPrefix string
	OriginPeer    string
}

func newVarRW(route SubnetRoute) *BGPVarRW {
	var nh string
	if route.Attrs.NextHop != nil {
		nh = route.Attrs.NextHop.String()
	}
	return &BGPVarRW{
		NextHop:      nh,
		ASPath:       append([]uint32(nil), route.Attrs.ASPath...),
		Origin:       route.Attrs.Origin,
		MED:          route.Attrs.MED,
		HasMED:       route.Attrs.HasMED,
		LocalPref:    route.Attrs.LocalPref,
		HasLocalPref: route.Attrs.HasLocalPref,
		Communities:  append([]uint32(nil), route.Attrs.Communities...),
		PolicyTags:   append([]string(nil), route.PolicyTags...),

		NetworkPrefix: route.Key(),
		OriginPeer:    route.OriginPeer,
	}
}

// apply writes rw's (possibly rewritten) fields back into a fresh,
// uninterned copy of route.
func (rw *BGPVarRW) apply(route SubnetRoute) SubnetRoute {
	var attrs = route.Attrs.Clone()
	if rw.NextHop != "" {
		attrs.NextHop = net.ParseIP(rw.NextHop)
	}
	attrs.ASPath = rw.ASPath
	attrs.Origin = rw.Origin
	attrs.MED = rw.MED
	attrs.HasMED = rw.HasMED
	attrs.LocalPref = rw.LocalPref
	attrs.HasLocalPref = rw.HasLocalPref
	attrs.Communities = rw.Communities

	route.Attrs = attrs
	route.PolicyTags = rw.PolicyTags
	return route
}

// PolicyRule inspects and optionally rewrites rw, returning false to
// reject the route outright.
type PolicyRule func(rw *BGPVarRW) bool

// PolicyTable runs a route through an ordered list of rules, used for
// Import, SourceMatch and Export alike.
type PolicyTable struct {
	interner *attrInterner
	rules    []PolicyRule
}

// NewPolicyTable returns an empty (accept-everything) policy table.
func NewPolicyTable(interner *attrInterner) *PolicyTable {
	return &PolicyTable{interner: interner}
}

// SetRules replaces the table's rule list. Used both at construction and
// by a live reconfiguration.
func (pt *PolicyTable) SetRules(rules []PolicyRule) { pt.rules = rules }

// Filter runs route through every rule in order. ok is false if any rule
// rejected it; otherwise route is the (possibly rewritten) result,
// re-interned through pt's interner so a rewrite that happens to collide
// with an existing attribute set shares its storage.
func (pt *PolicyTable) Filter(route SubnetRoute) (out SubnetRoute, ok bool) {
	rw := newVarRW(route)
	for _, rule := range pt.rules {
		if !rule(rw) {
			return SubnetRoute{}, false
		}
	}
	rewritten := rw.apply(route)
	rewritten.Attrs = pt.interner.Intern(rewritten.Attrs)
	return rewritten, true
}
