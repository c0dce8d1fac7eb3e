package ripout

// HorizonPolicy selects how a route learned on the same vif an update is
// being sent out on is treated, applied per candidate before assembly.
type HorizonPolicy int

const (
	// HorizonNone advertises every route unmodified.
	HorizonNone HorizonPolicy = iota
	// HorizonSplit drops routes learned on the outgoing vif entirely.
	HorizonSplit
	// HorizonPoisonReverse advertises routes learned on the outgoing vif
	// at RIPInfinity rather than omitting them.
	HorizonPoisonReverse
)

// applyHorizon applies policy to route as it would be sent out on
// outgoingVif, mirroring output_table.cc's inline horizon handling via
// Port::route_policy. ok is false if the route must be omitted from the
// packet outright (split horizon).
func applyHorizon(policy HorizonPolicy, outgoingVif string, route RipRoute) (out RipRoute, ok bool) {
	if route.LearnedVif != outgoingVif {
		return route, true
	}
	switch policy {
	case HorizonSplit:
		return RipRoute{}, false
	case HorizonPoisonReverse:
		route.Cost = RIPInfinity
		return route, true
	default:
		return route, true
	}
}
