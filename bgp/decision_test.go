package bgp

import "testing"

func peerCost(cost uint32, ok bool) func(string) (uint32, bool) {
	return func(string) (uint32, bool) { return cost, ok }
}

func TestDecisionPrefersHigherLocalPref(t *testing.T) {
	d := NewDecisionStage(nil)
	prefix := mustNet(t, "10.0.0.0/24")

	peerA := PeerInfo{PeerID: "A", RouterID: 1}
	peerB := PeerInfo{PeerID: "B", RouterID: 2}

	inA := d.Input(peerA, peerCost(0, false))
	inB := d.Input(peerB, peerCost(0, false))

	inA.AddRoute(SubnetRoute{Net: prefix, Attrs: &PathAttributeList{HasLocalPref: true, LocalPref: 100}})
	inB.AddRoute(SubnetRoute{Net: prefix, Attrs: &PathAttributeList{HasLocalPref: true, LocalPref: 200}})

	winner, ok := d.Winner("10.0.0.0/24")
	if !ok {
		t.Fatal("expected a winner")
	}
	if winner.Attrs.LocalPref != 200 {
		t.Fatalf("winner local-pref = %d, want 200", winner.Attrs.LocalPref)
	}
}

func TestDecisionShorterASPathBreaksLocalPrefTie(t *testing.T) {
	d := NewDecisionStage(nil)
	prefix := mustNet(t, "10.0.1.0/24")

	peerA := PeerInfo{PeerID: "A", RouterID: 1}
	peerB := PeerInfo{PeerID: "B", RouterID: 2}

	d.Input(peerA, peerCost(0, false)).AddRoute(SubnetRoute{
		Net: prefix, Attrs: &PathAttributeList{ASPath: []uint32{1, 2, 3}},
	})
	d.Input(peerB, peerCost(0, false)).AddRoute(SubnetRoute{
		Net: prefix, Attrs: &PathAttributeList{ASPath: []uint32{1}},
	})

	winner, _ := d.Winner("10.0.1.0/24")
	if len(winner.Attrs.ASPath) != 1 {
		t.Fatalf("winner AS-path length = %d, want 1", len(winner.Attrs.ASPath))
	}
}

func TestDecisionEBGPOverIBGPAfterEarlierTies(t *testing.T) {
	d := NewDecisionStage(nil)
	prefix := mustNet(t, "10.0.2.0/24")

	ibgp := PeerInfo{PeerID: "ibgp", RouterID: 1, EBGP: false}
	ebgp := PeerInfo{PeerID: "ebgp", RouterID: 2, EBGP: true}

	same := &PathAttributeList{ASPath: []uint32{5}}
	d.Input(ibgp, peerCost(0, false)).AddRoute(SubnetRoute{Net: prefix, Attrs: same})
	d.Input(ebgp, peerCost(0, false)).AddRoute(SubnetRoute{Net: prefix, Attrs: same})

	winner, ok := d.Winner("10.0.2.0/24")
	if !ok {
		t.Fatal("expected a winner")
	}
	if winner.OriginPeer != "" && winner.OriginPeer != "ebgp" {
		// OriginPeer isn't stamped by Decision itself and is empty here,
		// so this block checks nothing; the winning peer is asserted
		// through d.winner below.
	}
	_ = winner
	// Assert indirectly: lowest router-id alone would pick ibgp (id 1),
	// so if eBGP-over-iBGP fired, the eBGP candidate (router-id 2) wins.
	if d.winner["10.0.2.0/24"] != "ebgp" {
		t.Fatalf("winning peer = %q, want ebgp", d.winner["10.0.2.0/24"])
	}
}

func TestDecisionLowerRouterIDFinalTiebreak(t *testing.T) {
	d := NewDecisionStage(nil)
	prefix := mustNet(t, "10.0.3.0/24")

	peerA := PeerInfo{PeerID: "A", RouterID: 50, EBGP: true}
	peerB := PeerInfo{PeerID: "B", RouterID: 10, EBGP: true}

	same := &PathAttributeList{}
	d.Input(peerA, peerCost(0, false)).AddRoute(SubnetRoute{Net: prefix, Attrs: same})
	d.Input(peerB, peerCost(0, false)).AddRoute(SubnetRoute{Net: prefix, Attrs: same})

	if d.winner["10.0.3.0/24"] != "B" {
		t.Fatalf("winning peer = %q, want B (lower router-id)", d.winner["10.0.3.0/24"])
	}
}

func TestDecisionWithdrawalFallsBackToRemainingPeer(t *testing.T) {
	d := NewDecisionStage(nil)
	prefix := mustNet(t, "10.0.4.0/24")

	peerA := PeerInfo{PeerID: "A", RouterID: 1}
	peerB := PeerInfo{PeerID: "B", RouterID: 2}

	inA := d.Input(peerA, peerCost(0, false))
	inB := d.Input(peerB, peerCost(0, false))

	inA.AddRoute(SubnetRoute{Net: prefix, Attrs: &PathAttributeList{HasLocalPref: true, LocalPref: 300}})
	inB.AddRoute(SubnetRoute{Net: prefix, Attrs: &PathAttributeList{HasLocalPref: true, LocalPref: 100}})

	if d.winner["10.0.4.0/24"] != "A" {
		t.Fatal("expected peer A (higher local-pref) to win initially")
	}

	inA.DeleteRoute("10.0.4.0/24")
	winner, ok := d.Winner("10.0.4.0/24")
	if !ok {
		t.Fatal("expected peer B's route to become the winner after A withdraws")
	}
	if winner.Attrs.LocalPref != 100 {
		t.Fatalf("fallback winner local-pref = %d, want 100", winner.Attrs.LocalPref)
	}

	inB.DeleteRoute("10.0.4.0/24")
	if _, ok := d.Winner("10.0.4.0/24"); ok {
		t.Fatal("expected no winner once every peer has withdrawn")
	}
}
