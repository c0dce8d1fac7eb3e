package bgp

// FilterStage applies a PolicyTable to every add/replace and forwards the
// (possibly rewritten) result downstream, tracking per-key acceptance so
// a later delete_route — which carries only a key, no route payload — is
// forwarded only if the key was actually accepted and forwarded on add.
// That is also what keeps deletions symmetric with additions under the
// same filter state: downstream never sees a route it wasn't already
// holding a consistent copy of.
//
// Role (Import/SourceMatch/Export) only affects which PolicyTable an
// instance is constructed with; the stage logic is identical for all
// three.
type FilterStage struct {
	policy     *PolicyTable
	downstream RouteTable
	accepted   map[string]bool
}

// NewFilterStage wraps policy, forwarding accepted routes to downstream.
func NewFilterStage(policy *PolicyTable, downstream RouteTable) *FilterStage {
	if downstream == nil {
		downstream = DiscardTable
	}
	return &FilterStage{policy: policy, downstream: downstream, accepted: make(map[string]bool)}
}

func (f *FilterStage) AddRoute(route SubnetRoute) {
	out, ok := f.policy.Filter(route)
	var key = route.Key()
	f.accepted[key] = ok
	if !ok {
		return
	}
	f.downstream.AddRoute(out)
}

func (f *FilterStage) DeleteRoute(key string) {
	if !f.accepted[key] {
		delete(f.accepted, key)
		return
	}
	delete(f.accepted, key)
	f.downstream.DeleteRoute(key)
}

func (f *FilterStage) ReplaceRoute(oldKey string, route SubnetRoute) {
	out, ok := f.policy.Filter(route)
	var wasAccepted = f.accepted[oldKey]
	var newKey = route.Key()

	switch {
	case wasAccepted && ok:
		f.downstream.ReplaceRoute(oldKey, out)
	case wasAccepted && !ok:
		f.downstream.DeleteRoute(oldKey)
	case !wasAccepted && ok:
		f.downstream.AddRoute(out)
	}
	if oldKey != newKey {
		delete(f.accepted, oldKey)
	}
	f.accepted[newKey] = ok
}

func (f *FilterStage) Push() { f.downstream.Push() }

// ReapplyAll re-runs the policy against every route in current, forwarding
// whatever adds/deletes/replaces are needed to bring downstream state in
// line with the new rule set, so a configuration change re-filters
// existing state without tearing down peerings. current is
// supplied by the upstream stage (e.g. Decision's winning-routes table);
// FilterStage itself holds no independent copy of route bodies.
func (f *FilterStage) ReapplyAll(current map[string]SubnetRoute) {
	for key, route := range current {
		out, ok := f.policy.Filter(route)
		var wasAccepted = f.accepted[key]
		switch {
		case wasAccepted && ok:
			f.downstream.ReplaceRoute(key, out)
		case wasAccepted && !ok:
			f.downstream.DeleteRoute(key)
		case !wasAccepted && ok:
			f.downstream.AddRoute(out)
		}
		f.accepted[key] = ok
	}
	f.downstream.Push()
}
