// Package cmdmap implements the L2 command map: a
// name -> handler table populated at startup, consulted by the Messenger
// for every inbound request.
package cmdmap

import (
	"fmt"
	"sync"

	"github.com/xorpgo/fabric/wire"
	"github.com/xorpgo/fabric/xrl"
)

// Handler executes one command against the request's Xrl and returns the
// outcome: an error code, an optional human-readable note, and (only
// meaningful when error is OKAY) reply arguments.
type Handler func(x xrl.Xrl) (code wire.ErrorCode, note string, args []xrl.Atom)

// CommandMap is a name -> Handler table. Names are global within the map;
// registering a duplicate name is rejected. Lookup is O(1) average.
//
// Every method takes an internal RWMutex: Add and Remove hold the write
// lock and Lookup, Names and Dispatch the read lock, so handlers may be
// registered from a different goroutine than the one driving the owning
// Messenger's callbacks.
type CommandMap struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// New returns an empty CommandMap.
func New() *CommandMap {
	return &CommandMap{handlers: make(map[string]Handler)}
}

// Add registers handler under name. It returns an error if name is already
// registered.
func (c *CommandMap) Add(name string, handler Handler) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.handlers[name]; exists {
		return fmt.Errorf("cmdmap: command %q already registered", name)
	}
	c.handlers[name] = handler
	return nil
}

// Remove unregisters name, if present.
func (c *CommandMap) Remove(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.handlers, name)
}

// Lookup returns the handler registered for name, if any.
func (c *CommandMap) Lookup(name string) (Handler, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	h, ok := c.handlers[name]
	return h, ok
}

// Names returns the currently registered command names, for diagnostics.
func (c *CommandMap) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out = make([]string, 0, len(c.handlers))
	for name := range c.handlers {
		out = append(out, name)
	}
	return out
}

// Dispatch looks up and invokes the handler for x.Command(), returning
// NO_SUCH_METHOD if none is registered.
func (c *CommandMap) Dispatch(x xrl.Xrl) (code wire.ErrorCode, note string, args []xrl.Atom) {
	h, ok := c.Lookup(x.Command())
	if !ok {
		return wire.NO_SUCH_METHOD, fmt.Sprintf("no such method %q", x.Command()), nil
	}
	return h(x)
}
