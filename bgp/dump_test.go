package bgp

import "testing"

func TestDumpTableOrdersMostSpecificFirstThenPeer(t *testing.T) {
	interner := newAttrInterner()
	ribA := NewRibIn("A", interner, DiscardTable)
	ribB := NewRibIn("B", interner, DiscardTable)

	ribA.AddRoute(SubnetRoute{Net: mustNet(t, "10.0.0.0/16"), Attrs: &PathAttributeList{}})
	ribA.AddRoute(SubnetRoute{Net: mustNet(t, "10.0.0.0/24"), Attrs: &PathAttributeList{}})
	ribB.AddRoute(SubnetRoute{Net: mustNet(t, "10.0.0.0/24"), Attrs: &PathAttributeList{}})

	dt := NewDumpTable(map[string]*RibIn{"A": ribA, "B": ribB})

	route, peer, ok := dt.Next()
	if !ok {
		t.Fatal("expected a first entry")
	}
	if ones, _ := route.Net.Mask.Size(); ones != 24 {
		t.Fatalf("first entry mask = /%d, want /24 (most specific first)", ones)
	}
	if peer != "A" {
		t.Fatalf("first /24 entry peer = %q, want A (peer id tiebreak)", peer)
	}

	route2, peer2, ok := dt.Next()
	if !ok {
		t.Fatal("expected a second entry")
	}
	if ones, _ := route2.Net.Mask.Size(); ones != 24 {
		t.Fatalf("second entry mask = /%d, want /24", ones)
	}
	if peer2 != "B" {
		t.Fatalf("second /24 entry peer = %q, want B", peer2)
	}

	route3, _, ok := dt.Next()
	if !ok {
		t.Fatal("expected a third entry")
	}
	if ones, _ := route3.Net.Mask.Size(); ones != 16 {
		t.Fatalf("third entry mask = /%d, want /16 (least specific last)", ones)
	}

	if _, _, ok := dt.Next(); ok {
		t.Fatal("expected the walk to be exhausted")
	}
	if !dt.Done() {
		t.Fatal("Done() should report true once exhausted")
	}
}

func TestDumpTableSkipsWithdrawnEntries(t *testing.T) {
	interner := newAttrInterner()
	rib := NewRibIn("A", interner, DiscardTable)
	rib.AddRoute(SubnetRoute{Net: mustNet(t, "192.0.2.0/24"), Attrs: &PathAttributeList{}})
	rib.AddRoute(SubnetRoute{Net: mustNet(t, "198.51.100.0/24"), Attrs: &PathAttributeList{}})

	dt := NewDumpTable(map[string]*RibIn{"A": rib})
	rib.DeleteRoute("192.0.2.0/24")

	route, _, ok := dt.Next()
	if !ok {
		t.Fatal("expected one surviving entry")
	}
	if route.Key() != "198.51.100.0/24" {
		t.Fatalf("surviving entry = %q, want 198.51.100.0/24 (withdrawn entry must be skipped)", route.Key())
	}
	if _, _, ok := dt.Next(); ok {
		t.Fatal("expected the walk to be exhausted after skipping the withdrawn entry")
	}
}
