// Package messenger implements the L1 Messenger: it wraps
// one carrier.Carrier and turns its byte stream into typed RPC traffic,
// matching replies to requests and signaling lifecycle events to a
// Manager.
package messenger

import (
	"net"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/xorpgo/fabric/carrier"
	"github.com/xorpgo/fabric/cmdmap"
	"github.com/xorpgo/fabric/ops"
	"github.com/xorpgo/fabric/wire"
	"github.com/xorpgo/fabric/xrl"
)

// DefaultTimeout is the default per-request deadline if none is given to
// Send.
const DefaultTimeout = 30 * time.Second

// Callback receives the outcome of an outbound request: an error code, an
// optional note, and (only meaningful on OKAY) reply arguments.
type Callback func(code wire.ErrorCode, note string, args []xrl.Atom)

// Manager is notified of a Messenger's death. The Finder is the manager on
// the server (accept) side; XrlRouter is the manager on the client (dial)
// side.
type Manager interface {
	OnMessengerDeath(m *Messenger, reason error)
}

type pendingRequest struct {
	xrl      xrl.Xrl
	callback Callback
	timer    *time.Timer
}

// Messenger binds one Carrier to a CommandMap (for inbound dispatch) and a
// Manager (for lifecycle notification).
type Messenger struct {
	carrier *carrier.Carrier
	cmds    *cmdmap.CommandMap
	manager Manager
	timeout time.Duration
	label   string // identifies the remote endpoint, for logs and metrics

	mu          sync.Mutex
	nextSeqno   uint32
	outstanding map[uint32]*pendingRequest
	closed      bool

	log *log.Entry
}

// New dials no connection itself: conn must already be
// established (accepted or dialed by the caller). It constructs the
// Carrier over conn wired to this Messenger's callbacks and constructs the
// Messenger, but does not start the Carrier's pump goroutines — call
// Start once the Messenger is fully wired (e.g. after a caller that needs
// to register command handlers closing over this Messenger's identity has
// done so; see finder.BindConnection). label identifies the remote
// endpoint for logs and metrics (e.g. "bgp-1@10.0.0.5:19999").
func New(conn net.Conn, cfg carrier.Config, cmds *cmdmap.CommandMap, manager Manager, label string) *Messenger {
	m := &Messenger{
		cmds:        cmds,
		manager:     manager,
		timeout:     DefaultTimeout,
		label:       label,
		outstanding: make(map[uint32]*pendingRequest),
		log:         ops.Component("messenger").WithField("remote", label),
	}
	m.carrier = carrier.New(conn, cfg, m.onMessage, m.onClose)
	return m
}

// Start launches the underlying Carrier's reader/writer goroutines. The
// Messenger begins dispatching inbound traffic and may begin delivering
// callbacks only after this is called.
func (m *Messenger) Start() { m.carrier.Start() }

// NewOverCarrier is New followed immediately by Start, for callers with
// no need to install handlers between construction and start.
func NewOverCarrier(conn net.Conn, cfg carrier.Config, cmds *cmdmap.CommandMap, manager Manager, label string) *Messenger {
	m := New(conn, cfg, cmds, manager, label)
	m.Start()
	return m
}

// SetTimeout overrides the per-request timeout used by future Send calls.
func (m *Messenger) SetTimeout(d time.Duration) { m.timeout = d }

// Label returns the identifying label this Messenger was constructed with.
func (m *Messenger) Label() string { return m.label }

// Send issues an outbound RPC request. callback fires exactly once: on
// reply, on timeout, or on transport failure.
func (m *Messenger) Send(x xrl.Xrl, callback Callback) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		callback(wire.TRANSPORT_FAILED, "messenger: carrier already closed", nil)
		return
	}
	m.nextSeqno++
	var seqno = m.nextSeqno

	var pending = &pendingRequest{xrl: x, callback: callback}
	pending.timer = time.AfterFunc(m.timeout, func() { m.onTimeout(seqno) })
	m.outstanding[seqno] = pending
	var count = len(m.outstanding)
	m.mu.Unlock()

	ops.MessengerOutstandingRequests.WithLabelValues(m.label).Set(float64(count))

	if err := m.carrier.Send(wire.EncodeRequest(wire.Request{Seqno: seqno, Xrl: x})); err != nil {
		m.failOutstanding(seqno, wire.TRANSPORT_FAILED, err.Error())
	}
}

// SendHello transmits a liveness HELLO. There is no reply.
func (m *Messenger) SendHello() error {
	return m.carrier.Send(wire.EncodeHello())
}

// SendBye transmits a graceful disconnect notice and then closes the
// carrier.
func (m *Messenger) SendBye(reason string) error {
	if err := m.carrier.Send(wire.EncodeBye(wire.Bye{Reason: reason})); err != nil {
		return err
	}
	return m.carrier.Close()
}

// OutstandingCount returns the number of requests awaiting a reply or
// timeout.
func (m *Messenger) OutstandingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.outstanding)
}

// Carrier returns the underlying carrier.
func (m *Messenger) Carrier() *carrier.Carrier { return m.carrier }

func (m *Messenger) onTimeout(seqno uint32) {
	m.failOutstanding(seqno, wire.TIMEOUT, "request timed out")
}

func (m *Messenger) failOutstanding(seqno uint32, code wire.ErrorCode, note string) {
	m.mu.Lock()
	pending, ok := m.outstanding[seqno]
	if ok {
		delete(m.outstanding, seqno)
	}
	var count = len(m.outstanding)
	m.mu.Unlock()

	if !ok {
		return // Already resolved (late reply/timeout race); discard.
	}
	pending.timer.Stop()
	ops.MessengerOutstandingRequests.WithLabelValues(m.label).Set(float64(count))
	pending.callback(code, note, nil)
}

// onMessage is the carrier.MessageHandler for this Messenger.
func (m *Messenger) onMessage(payload []byte) {
	kind, v, err := wire.Decode(payload)
	if err != nil {
		m.log.WithError(err).Warn("messenger: discarding malformed frame")
		return
	}

	switch kind {
	case wire.KindRequest:
		m.handleInboundRequest(v.(wire.Request))
	case wire.KindReply:
		m.handleInboundReply(v.(wire.ReplyMsg))
	case wire.KindHello:
		// Liveness only; no action required.
	case wire.KindBye:
		m.carrier.Close()
	}
}

func (m *Messenger) handleInboundRequest(req wire.Request) {
	code, note, args := m.cmds.Dispatch(req.Xrl)
	if err := m.carrier.Send(wire.EncodeReply(wire.ReplyMsg{
		Seqno: req.Seqno,
		Error: code,
		Note:  note,
		Args:  args,
	})); err != nil {
		m.log.WithError(err).Warn("messenger: failed to send reply")
	}
}

func (m *Messenger) handleInboundReply(rep wire.ReplyMsg) {
	m.mu.Lock()
	pending, ok := m.outstanding[rep.Seqno]
	if ok {
		delete(m.outstanding, rep.Seqno)
	}
	var count = len(m.outstanding)
	m.mu.Unlock()

	if !ok {
		return // Unknown seqno (stale timeout race, or peer bug): discard.
	}
	pending.timer.Stop()
	ops.MessengerOutstandingRequests.WithLabelValues(m.label).Set(float64(count))
	pending.callback(rep.Error, rep.Note, rep.Args)
}

// onClose is the carrier.CloseHandler for this Messenger. It fails every
// outstanding request with TRANSPORT_FAILED and reports death to the
// manager.
func (m *Messenger) onClose(reason error) {
	m.mu.Lock()
	m.closed = true
	var pendings = m.outstanding
	m.outstanding = make(map[uint32]*pendingRequest)
	m.mu.Unlock()

	ops.MessengerOutstandingRequests.DeleteLabelValues(m.label)

	for _, p := range pendings {
		p.timer.Stop()
		p.callback(wire.TRANSPORT_FAILED, closeNote(reason), nil)
	}
	if m.manager != nil {
		m.manager.OnMessengerDeath(m, reason)
	}
}

func closeNote(reason error) string {
	if reason == nil {
		return "transport closed"
	}
	return reason.Error()
}
