// Package ripout implements the RIP output-processing path: OutputBase
// pairs a route walker with a packet queue, assembling one MTU-bounded
// response packet per tick and re-arming an interpacket timer until the
// walker is exhausted. It deliberately stops at that boundary — RIP's
// own packet parsing, UDP socket handling, and protocol timers live
// with the daemon driving it, not here.
package ripout

import "net"

// RIPInfinity is RIP's metric for an unreachable route (RFC 2453 §1.1);
// poison-reverse advertises a route at this cost rather than withdrawing
// it outright.
const RIPInfinity = 16

// Per RFC 2453 §4: a 512-byte UDP datagram holds a 4-byte RIP header plus
// up to 25 twenty-byte route entries.
const (
	ripHeaderSize     = 4
	ripRouteEntrySize = 20
	ripDatagramSize   = 512
	// MaxRoutesPerPacket is the route-entry capacity of one RIP response
	// packet at the standard datagram size.
	MaxRoutesPerPacket = (ripDatagramSize - ripHeaderSize) / ripRouteEntrySize
)

// RipRoute is the subset of a RIP route's state OutputBase needs: enough
// to run horizon policy and export filtering and to render a wire route
// entry.
type RipRoute struct {
	Net        *net.IPNet
	NextHop    net.IP
	Cost       uint16
	Tag        uint16
	LearnedVif string
	Filtered   bool
	PolicyTags []string
}

// Key renders the route's prefix as a stable identifier, used by the
// walker and by deletion-timer extension bookkeeping.
func (r RipRoute) Key() string { return r.Net.String() }
