package bgp

import "testing"

func TestCacheStageMirrorsForwardedRoutes(t *testing.T) {
	downstream := &recordingTable{}
	cache := NewCacheStage(downstream)
	prefix := mustNet(t, "10.7.0.0/24")

	cache.AddRoute(SubnetRoute{Net: prefix, Attrs: &PathAttributeList{}})
	if cache.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", cache.Len())
	}
	if len(downstream.adds) != 1 {
		t.Fatalf("downstream adds = %d, want 1", len(downstream.adds))
	}

	if _, ok := cache.Lookup("10.7.0.0/24"); !ok {
		t.Fatal("expected cached lookup to find the route")
	}

	cache.DeleteRoute("10.7.0.0/24")
	if cache.Len() != 0 {
		t.Fatalf("Len() after delete = %d, want 0", cache.Len())
	}
	if len(downstream.deletes) != 1 {
		t.Fatalf("downstream deletes = %d, want 1", len(downstream.deletes))
	}

	// Deleting an unknown key must not forward anything downstream.
	cache.DeleteRoute("does-not-exist/32")
	if len(downstream.deletes) != 1 {
		t.Fatal("delete of an unknown key must not propagate")
	}
}

func TestCacheStageSnapshot(t *testing.T) {
	cache := NewCacheStage(DiscardTable)
	cache.AddRoute(SubnetRoute{Net: mustNet(t, "10.8.0.0/24"), Attrs: &PathAttributeList{}})
	cache.AddRoute(SubnetRoute{Net: mustNet(t, "10.8.1.0/24"), Attrs: &PathAttributeList{}})

	snap := cache.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("Snapshot() size = %d, want 2", len(snap))
	}
}
