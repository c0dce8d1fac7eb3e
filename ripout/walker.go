package ripout

import "time"

// DeletionExtender extends the deletion timer of the route identified by
// key by extension, so a route the walker is currently pointed at cannot
// be freed out from under it while the walker is paused between packet
// assembly ticks: pausing extends the deletion timer of the route the
// walker is currently pointed at, so resuming never dereferences a
// freed entry.
type DeletionExtender func(key string, extension time.Duration)

// RouteWalker iterates a fixed snapshot of routes to dump, pausing and
// resuming across many OutputBase ticks.
type RouteWalker struct {
	routes []RipRoute
	pos    int
	valid  bool
	extend DeletionExtender
}

// NewRouteWalker returns a walker over routes, using extend (may be nil)
// to protect the currently-pointed-at route across a Pause.
func NewRouteWalker(routes []RipRoute, extend DeletionExtender) *RouteWalker {
	if extend == nil {
		extend = func(string, time.Duration) {}
	}
	return &RouteWalker{routes: routes, extend: extend}
}

// Reset rewinds the walker to its first route and marks it valid.
func (w *RouteWalker) Reset() {
	w.pos = 0
	w.valid = true
}

// Valid reports whether the walker has been Reset since it was last
// exhausted.
func (w *RouteWalker) Valid() bool { return w.valid }

// Invalidate marks the walker exhausted, requiring a Reset before the
// next CurrentRoute call returns anything.
func (w *RouteWalker) Invalidate() { w.valid = false }

// CurrentRoute returns the route the walker is presently pointed at, if
// any route remains.
func (w *RouteWalker) CurrentRoute() (RipRoute, bool) {
	if !w.valid || w.pos >= len(w.routes) {
		return RipRoute{}, false
	}
	return w.routes[w.pos], true
}

// NextRoute advances the walker and returns the new current route, if
// any.
func (w *RouteWalker) NextRoute() (RipRoute, bool) {
	if !w.valid {
		return RipRoute{}, false
	}
	w.pos++
	return w.CurrentRoute()
}

// Pause extends the deletion timer of the currently-pointed-at route by
// gap before an OutputBase goes idle until its next tick.
func (w *RouteWalker) Pause(gap time.Duration) {
	if route, ok := w.CurrentRoute(); ok {
		w.extend(route.Key(), gap)
	}
}

// Resume is a no-op hook invoked at the top of every tick; kept
// distinct from Pause
// so a future walker implementation backed by a live, mutable table (as
// opposed to this package's fixed snapshot) has an obvious seam to
// re-validate its position against concurrent deletions.
func (w *RouteWalker) Resume() {}
