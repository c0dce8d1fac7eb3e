package bgp

import "testing"

// TestFilterRewriteSymmetricOnDelete: an export filter
// that forces local-pref to 200 on a route with none. The add observed
// downstream must carry local-pref=200, and deleting the same route must
// also be reported symmetrically (the filter either forwards the delete,
// matching whatever it forwarded on add, or doesn't — here the route was
// accepted, so the delete must propagate for that same key).
func TestFilterRewriteSymmetricOnDelete(t *testing.T) {
	interner := newAttrInterner()
	setLocalPref200 := func(rw *BGPVarRW) bool {
		rw.LocalPref = 200
		rw.HasLocalPref = true
		return true
	}
	policy := NewPolicyTable(interner)
	policy.SetRules([]PolicyRule{setLocalPref200})

	downstream := &recordingTable{}
	stage := NewFilterStage(policy, downstream)

	prefix := mustNet(t, "203.0.113.0/24")
	route := SubnetRoute{Net: prefix, Attrs: &PathAttributeList{}} // no local-pref set
	stage.AddRoute(route)

	if len(downstream.adds) != 1 {
		t.Fatalf("downstream adds = %d, want 1", len(downstream.adds))
	}
	if !downstream.adds[0].Attrs.HasLocalPref || downstream.adds[0].Attrs.LocalPref != 200 {
		t.Fatalf("downstream add local-pref = %+v, want HasLocalPref=true LocalPref=200", downstream.adds[0].Attrs)
	}

	stage.DeleteRoute(route.Key())
	if len(downstream.deletes) != 1 || downstream.deletes[0] != route.Key() {
		t.Fatalf("downstream deletes = %v, want [%s]", downstream.deletes, route.Key())
	}
}

func TestFilterRejectedRouteNeverDeletesDownstream(t *testing.T) {
	interner := newAttrInterner()
	rejectAll := func(rw *BGPVarRW) bool { return false }
	policy := NewPolicyTable(interner)
	policy.SetRules([]PolicyRule{rejectAll})

	downstream := &recordingTable{}
	stage := NewFilterStage(policy, downstream)

	prefix := mustNet(t, "198.51.100.0/24")
	route := SubnetRoute{Net: prefix, Attrs: &PathAttributeList{}}
	stage.AddRoute(route)
	if len(downstream.adds) != 0 {
		t.Fatalf("rejected route must not reach downstream, got %d adds", len(downstream.adds))
	}

	stage.DeleteRoute(route.Key())
	if len(downstream.deletes) != 0 {
		t.Fatalf("deleting a never-accepted route must not propagate, got %d deletes", len(downstream.deletes))
	}
}

func TestFilterReplaceTransitionsAcrossAcceptance(t *testing.T) {
	interner := newAttrInterner()
	var allow bool
	conditional := func(rw *BGPVarRW) bool { return allow }
	policy := NewPolicyTable(interner)
	policy.SetRules([]PolicyRule{conditional})

	downstream := &recordingTable{}
	stage := NewFilterStage(policy, downstream)
	prefix := mustNet(t, "192.0.2.0/24")
	key := prefix.String()

	allow = false
	stage.AddRoute(SubnetRoute{Net: prefix, Attrs: &PathAttributeList{}})
	if len(downstream.adds) != 0 {
		t.Fatal("initial reject must not reach downstream")
	}

	allow = true
	stage.ReplaceRoute(key, SubnetRoute{Net: prefix, Attrs: &PathAttributeList{MED: 5, HasMED: true}})
	if len(downstream.adds) != 1 {
		t.Fatalf("transition reject->accept must surface as an add, got %d adds", len(downstream.adds))
	}
}
