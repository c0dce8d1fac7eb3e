package bgp

import "fmt"

// Handle is a stable reference into a routeArena: (slot, generation).
// Downstream pipeline stages hold handles, not pointers, so the trie's
// circular per-attribute chains have no raw reference cycles.
type Handle struct {
	slot       uint32
	generation uint32
}

// NilHandle is the zero Handle, never a valid allocation.
var NilHandle = Handle{}

func (h Handle) IsNil() bool { return h == NilHandle }

// routeArena owns SubnetRoute storage for one BgpTrie. Slots are reused
// after Free; a reused slot's generation is bumped so any handle retained
// past a Free is detectably stale.
type routeArena struct {
	slots []arenaSlot
	free  []uint32
}

type arenaSlot struct {
	generation uint32
	live       bool
	route      SubnetRoute
}

func newRouteArena() *routeArena {
	return &routeArena{}
}

// Alloc stores route and returns its handle.
func (a *routeArena) Alloc(route SubnetRoute) Handle {
	if n := len(a.free); n > 0 {
		idx := a.free[n-1]
		a.free = a.free[:n-1]
		a.slots[idx].live = true
		a.slots[idx].route = route
		return Handle{slot: idx, generation: a.slots[idx].generation}
	}
	a.slots = append(a.slots, arenaSlot{generation: 1, live: true, route: route})
	return Handle{slot: uint32(len(a.slots) - 1), generation: 1}
}

// Get dereferences h, panicking (a fatal invariant violation)
// if h is stale or out of range — a caller holding a handle past Free is
// a programmer error, never a peer-triggerable condition.
func (a *routeArena) Get(h Handle) *SubnetRoute {
	if int(h.slot) >= len(a.slots) {
		panic(fmt.Sprintf("bgp: route arena: handle %+v out of range", h))
	}
	s := &a.slots[h.slot]
	if !s.live || s.generation != h.generation {
		panic(fmt.Sprintf("bgp: route arena: stale handle %+v (current generation %d, live=%v)", h, s.generation, s.live))
	}
	return &s.route
}

// Valid reports whether h currently refers to a live slot, without
// panicking — used by cleanup paths that may race a concurrent Free.
func (a *routeArena) Valid(h Handle) bool {
	if int(h.slot) >= len(a.slots) {
		return false
	}
	s := &a.slots[h.slot]
	return s.live && s.generation == h.generation
}

// Free releases h's slot for reuse, bumping its generation.
func (a *routeArena) Free(h Handle) {
	if !a.Valid(h) {
		return
	}
	s := &a.slots[h.slot]
	s.live = false
	s.route = SubnetRoute{}
	s.generation++
	a.free = append(a.free, h.slot)
}
