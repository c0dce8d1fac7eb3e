package carrier

import (
	"net"
	"sync"
)

// PermitList is the listener's access-control gate: per-address-family
// sets of permitted single hosts and permitted prefixes. A connecting peer
// whose address matches neither set is dropped. The host-preferred address
// (the address the local process advertises for itself) is always
// implicitly permitted.
//
// PermitList has no wire format: it's mutated only in-process,
// and only by privileged callers before the listener is enabled.
type PermitList struct {
	mu       sync.RWMutex
	hosts    map[string]struct{} // net.IP.String() -> present
	prefixes []*net.IPNet
	self     net.IP
}

// NewPermitList returns an empty PermitList whose implicitly-permitted
// host-preferred address is self.
func NewPermitList(self net.IP) *PermitList {
	return &PermitList{
		hosts: make(map[string]struct{}),
		self:  self,
	}
}

// PermitHost adds a single permitted host address.
func (p *PermitList) PermitHost(ip net.IP) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hosts[ip.String()] = struct{}{}
}

// UnpermitHost removes a previously permitted host address.
func (p *PermitList) UnpermitHost(ip net.IP) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.hosts, ip.String())
}

// PermitPrefix adds a permitted address prefix.
func (p *PermitList) PermitPrefix(prefix *net.IPNet) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prefixes = append(p.prefixes, prefix)
}

// UnpermitPrefix removes a previously permitted prefix (matched by string
// form, since *net.IPNet isn't comparable).
func (p *PermitList) UnpermitPrefix(prefix *net.IPNet) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var want = prefix.String()
	for i, existing := range p.prefixes {
		if existing.String() == want {
			p.prefixes = append(p.prefixes[:i], p.prefixes[i+1:]...)
			return
		}
	}
}

// Permitted reports whether ip is permitted: it is the host-preferred
// address, an explicitly permitted host, or within an explicitly permitted
// prefix.
func (p *PermitList) Permitted(ip net.IP) bool {
	if p.self != nil && p.self.Equal(ip) {
		return true
	}
	p.mu.RLock()
	defer p.mu.RUnlock()

	if _, ok := p.hosts[ip.String()]; ok {
		return true
	}
	for _, prefix := range p.prefixes {
		if prefix.Contains(ip) {
			return true
		}
	}
	return false
}
