package finder

import (
	"github.com/xorpgo/fabric/messenger"
	"github.com/xorpgo/fabric/wire"
	"github.com/xorpgo/fabric/xrl"
)

// Server adapts a Finder's push notifications (birth/death events,
// resolution-cache invalidation hints) into outbound RPCs sent back down
// each watching or connected client's own Messenger. Clients must
// register "notify_event", "invalidate_xrl" and "invalidate_target"
// handlers in their command map to receive these (see xrlrouter).
type Server struct {
	finder *Finder
}

// NewServer wraps f. Callers should then call f.SetNotifier(srv) and
// f.SetCacheInvalidator(srv) to wire push delivery.
func NewServer(f *Finder) *Server {
	return &Server{finder: f}
}

// NotifyEvent implements Notifier: it sends a "notify_event" RPC to
// watcherTarget's owning Messenger, fire-and-forget (the Finder does not
// block its own event-queue drain on the client's reply).
func (s *Server) NotifyEvent(watcherTarget string, ev Event) {
	owner, ok := s.finder.ownerMessenger(watcherTarget)
	if !ok {
		return
	}
	x := xrl.New(watcherTarget, "notify_event",
		xrl.NewTxtAtom("kind", ev.Kind.String()),
		xrl.NewTxtAtom("class", ev.Class),
		xrl.NewTxtAtom("instance", ev.Instance),
	)
	owner.Send(x, func(code wire.ErrorCode, note string, args []xrl.Atom) {
		if code != wire.OKAY {
			s.finder.log.WithFields(map[string]interface{}{
				"watcher": watcherTarget, "code": code.String(), "note": note,
			}).Warn("finder: notify_event delivery failed")
		}
	})
}

// InvalidateXrl implements CacheInvalidator: broadcasts a remove-from-
// cache hint for target/command to every currently-owned connection.
func (s *Server) InvalidateXrl(target, command string) {
	s.broadcast(xrl.New(target, "invalidate_xrl",
		xrl.NewTxtAtom("target", target),
		xrl.NewTxtAtom("command", command),
	))
}

// InvalidateTarget implements CacheInvalidator: broadcasts a remove-all-
// xrls-for-target hint to every currently-owned connection.
func (s *Server) InvalidateTarget(target string) {
	s.broadcast(xrl.New(target, "invalidate_target",
		xrl.NewTxtAtom("target", target),
	))
}

func (s *Server) broadcast(x xrl.Xrl) {
	s.finder.mu.Lock()
	var owners = make([]*messenger.Messenger, 0, len(s.finder.ownedByMessenger))
	for m := range s.finder.ownedByMessenger {
		owners = append(owners, m)
	}
	s.finder.mu.Unlock()

	for _, m := range owners {
		m.Send(x, func(code wire.ErrorCode, note string, args []xrl.Atom) {})
	}
}
