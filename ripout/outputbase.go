package ripout

import (
	"net"
	"time"
)

// ExportFilter decides whether route is advertised at all, optionally
// rewriting it first.
type ExportFilter func(route RipRoute) (RipRoute, bool)

// Clock abstracts packet-train scheduling so tests can drive ticks
// directly instead of sleeping real interpacket gaps.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is the subset of *time.Timer OutputBase needs.
type Timer interface {
	Stop() bool
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) Timer { return realClockTimer{time.AfterFunc(d, f)} }

type realClockTimer struct{ t *time.Timer }

func (r realClockTimer) Stop() bool { return r.t.Stop() }

// RealClock is the production Clock, backed by the time package.
var RealClock Clock = realClock{}

// OutputBase pairs a RouteWalker with a PacketQueue, assembling one
// MTU-bounded packet per tick and re-arming an interpacket-gap timer
// until the walker is exhausted.
type OutputBase struct {
	walker         *RouteWalker
	pktQueue       PacketQueue
	destAddr       net.IP
	destPort       uint16
	interpacketGap time.Duration
	horizon        HorizonPolicy
	outgoingVif    string
	exportFilter   ExportFilter
	clock          Clock

	timer   Timer
	pktsOut uint64
	running bool
}

// Config holds OutputBase's construction parameters.
type Config struct {
	DestAddr       net.IP
	DestPort       uint16
	InterpacketGap time.Duration
	Horizon        HorizonPolicy
	OutgoingVif    string
	ExportFilter   ExportFilter // nil accepts every route unmodified
	Clock          Clock        // nil uses RealClock
}

// NewOutputBase constructs an OutputBase walking walker's routes into
// pktQueue per cfg.
func NewOutputBase(walker *RouteWalker, pktQueue PacketQueue, cfg Config) *OutputBase {
	clock := cfg.Clock
	if clock == nil {
		clock = RealClock
	}
	exportFilter := cfg.ExportFilter
	if exportFilter == nil {
		exportFilter = func(r RipRoute) (RipRoute, bool) { return r, true }
	}
	return &OutputBase{
		walker:         walker,
		pktQueue:       pktQueue,
		destAddr:       cfg.DestAddr,
		destPort:       cfg.DestPort,
		interpacketGap: cfg.InterpacketGap,
		horizon:        cfg.Horizon,
		outgoingVif:    cfg.OutgoingVif,
		exportFilter:   exportFilter,
		clock:          clock,
	}
}

// Running reports whether a packet train is currently in progress.
func (o *OutputBase) Running() bool { return o.running }

// PacketsSent returns the number of packets placed on the queue so far.
func (o *OutputBase) PacketsSent() uint64 { return o.pktsOut }

// Start begins a packet train if one isn't already running.
func (o *OutputBase) Start() {
	if !o.running {
		o.running = true
		o.outputPacket()
	}
}

// Stop halts any in-progress packet train, cancelling its pending timer.
func (o *OutputBase) Stop() {
	if o.timer != nil {
		o.timer.Stop()
	}
	o.running = false
}

// outputPacket assembles and enqueues one packet, then either reschedules
// itself after the interpacket gap (pausing the walker so its current
// route's deletion timer is protected) or, once the walker is exhausted,
// stops the train.
func (o *OutputBase) outputPacket() {
	if !o.walker.Valid() {
		o.walker.Reset()
	}
	o.walker.Resume()

	pkt := &Packet{DestAddr: o.destAddr, DestPort: o.destPort}
	var done int
	route, ok := o.walker.CurrentRoute()
	for ok {
		if route.Filtered {
			route, ok = o.walker.NextRoute()
			continue
		}

		horizoned, keep := applyHorizon(o.horizon, o.outgoingVif, route)
		if !keep {
			route, ok = o.walker.NextRoute()
			continue
		}

		filtered, accepted := o.exportFilter(horizoned)
		if !accepted {
			route, ok = o.walker.NextRoute()
			continue
		}

		pkt.AddRoute(filtered.Net, filtered.NextHop, filtered.Cost, filtered.Tag)
		done++

		if pkt.Full() {
			o.walker.NextRoute()
			ok = false
			break
		}
		route, ok = o.walker.NextRoute()
	}

	if done > 0 {
		o.pktQueue.EnqueuePacket(pkt)
		o.pktsOut++
	}

	if _, more := o.walker.CurrentRoute(); !more {
		o.walker.Invalidate()
		o.running = false
		return
	}

	o.walker.Pause(o.interpacketGap)
	o.timer = o.clock.AfterFunc(o.interpacketGap, o.outputPacket)
}
