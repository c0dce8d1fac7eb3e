package ripout

import (
	"testing"
	"time"
)

func sampleRoutes(t *testing.T, n int) []RipRoute {
	t.Helper()
	routes := make([]RipRoute, n)
	for i := range routes {
		routes[i] = RipRoute{Net: mustRipNet(t, cidrAt(i))}
	}
	return routes
}

func cidrAt(i int) string {
	return []string{
		"10.1.0.0/24", "10.1.1.0/24", "10.1.2.0/24", "10.1.3.0/24",
	}[i]
}

func TestWalkerIteratesInOrder(t *testing.T) {
	w := NewRouteWalker(sampleRoutes(t, 3), nil)
	w.Reset()

	var keys []string
	for route, ok := w.CurrentRoute(); ok; route, ok = w.NextRoute() {
		keys = append(keys, route.Key())
	}
	if len(keys) != 3 {
		t.Fatalf("walked %d routes, want 3", len(keys))
	}
	if keys[0] != "10.1.0.0/24" || keys[2] != "10.1.2.0/24" {
		t.Fatalf("unexpected walk order: %v", keys)
	}
}

func TestWalkerPauseExtendsCurrentRouteDeletionTimer(t *testing.T) {
	var extendedKey string
	var extendedBy time.Duration
	extend := func(key string, by time.Duration) {
		extendedKey = key
		extendedBy = by
	}

	w := NewRouteWalker(sampleRoutes(t, 2), extend)
	w.Reset()
	w.NextRoute() // point at the second route

	w.Pause(5 * time.Second)
	if extendedKey != "10.1.1.0/24" {
		t.Fatalf("Pause extended %q, want the currently-pointed-at route 10.1.1.0/24", extendedKey)
	}
	if extendedBy != 5*time.Second {
		t.Fatalf("Pause extension = %v, want 5s", extendedBy)
	}
}

func TestWalkerInvalidateRequiresReset(t *testing.T) {
	w := NewRouteWalker(sampleRoutes(t, 1), nil)
	w.Reset()
	w.Invalidate()
	if _, ok := w.CurrentRoute(); ok {
		t.Fatal("an invalidated walker must not yield a current route before Reset")
	}
	w.Reset()
	if _, ok := w.CurrentRoute(); !ok {
		t.Fatal("Reset must make the walker yield its first route again")
	}
}
