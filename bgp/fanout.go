package bgp

import "github.com/xorpgo/fabric/ops"

// fanoutOp identifies which RouteTable operation a queued FanoutMessage
// replays.
type fanoutOp int

const (
	fanoutAdd fanoutOp = iota
	fanoutDelete
	fanoutReplace
	fanoutPush
)

// FanoutMessage is one queued-or-delivered event, replayed against a
// subscriber's downstream RouteTable exactly once.
type FanoutMessage struct {
	op     fanoutOp
	route  SubnetRoute
	key    string
	oldKey string
}

func (m FanoutMessage) deliver(to RouteTable) {
	switch m.op {
	case fanoutAdd:
		to.AddRoute(m.route)
	case fanoutDelete:
		to.DeleteRoute(m.key)
	case fanoutReplace:
		to.ReplaceRoute(m.oldKey, m.route)
	case fanoutPush:
		to.Push()
	}
}

type fanoutSubscriber struct {
	id         string
	downstream RouteTable
	ready      bool
	queue      []FanoutMessage
}

// FanoutStage has one upstream and N downstream subscribers, each with an
// independent FIFO and busy/ready flag. A ready subscriber with an
// empty queue receives a new message immediately; a
// busy subscriber's message is enqueued until it is marked ready and pulls
// it via GetNextMessage. Per-subscriber delivery is FIFO; there is no
// ordering guarantee across subscribers.
type FanoutStage struct {
	subs map[string]*fanoutSubscriber
	// order preserves subscriber iteration order for deterministic tests.
	order []string
}

// NewFanoutStage returns a Fanout with no subscribers yet.
func NewFanoutStage() *FanoutStage {
	return &FanoutStage{subs: make(map[string]*fanoutSubscriber)}
}

// AddSubscriber registers a new subscriber starting in the busy state:
// nothing is delivered until the subscriber explicitly signals
// readiness.
func (f *FanoutStage) AddSubscriber(id string, downstream RouteTable) {
	if downstream == nil {
		downstream = DiscardTable
	}
	if _, exists := f.subs[id]; exists {
		return
	}
	f.subs[id] = &fanoutSubscriber{id: id, downstream: downstream}
	f.order = append(f.order, id)
}

// RemoveSubscriber drops id, discarding its pending queue — a subscriber
// may skip its queue on teardown.
func (f *FanoutStage) RemoveSubscriber(id string) {
	delete(f.subs, id)
	for i, sid := range f.order {
		if sid == id {
			f.order = append(f.order[:i], f.order[i+1:]...)
			break
		}
	}
	ops.FanoutQueueDepth.DeleteLabelValues("fanout:" + id)
}

// SetReady marks id ready or busy. Becoming ready does not itself drain
// the queue: a ready subscriber must still pull each backlog entry via
// GetNextMessage.
func (f *FanoutStage) SetReady(id string, ready bool) {
	if s, ok := f.subs[id]; ok {
		s.ready = ready
	}
}

func (f *FanoutStage) enqueue(m FanoutMessage) {
	for _, id := range f.order {
		s := f.subs[id]
		if s.ready && len(s.queue) == 0 {
			m.deliver(s.downstream)
			continue
		}
		s.queue = append(s.queue, m)
		ops.FanoutQueueDepth.WithLabelValues("fanout:" + id).Set(float64(len(s.queue)))
	}
}

func (f *FanoutStage) AddRoute(route SubnetRoute) {
	f.enqueue(FanoutMessage{op: fanoutAdd, route: route})
}

func (f *FanoutStage) DeleteRoute(key string) {
	f.enqueue(FanoutMessage{op: fanoutDelete, key: key})
}

func (f *FanoutStage) ReplaceRoute(oldKey string, route SubnetRoute) {
	f.enqueue(FanoutMessage{op: fanoutReplace, oldKey: oldKey, route: route})
}

func (f *FanoutStage) Push() {
	f.enqueue(FanoutMessage{op: fanoutPush})
}

// GetNextMessage delivers id's single oldest pending message, if any, and
// reports whether one was delivered. Callers ordinarily invoke this in a
// loop after SetReady(id, true) until it returns false.
func (f *FanoutStage) GetNextMessage(id string) bool {
	s, ok := f.subs[id]
	if !ok || len(s.queue) == 0 {
		return false
	}
	m := s.queue[0]
	s.queue = s.queue[1:]
	ops.FanoutQueueDepth.WithLabelValues("fanout:" + id).Set(float64(len(s.queue)))
	m.deliver(s.downstream)
	return true
}

// QueueDepth returns id's current pending-message count (inserts minus
// gets since the last flush).
func (f *FanoutStage) QueueDepth(id string) int {
	s, ok := f.subs[id]
	if !ok {
		return 0
	}
	return len(s.queue)
}

// IsReady reports id's current busy/ready flag.
func (f *FanoutStage) IsReady(id string) bool {
	s, ok := f.subs[id]
	return ok && s.ready
}
