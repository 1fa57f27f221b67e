// Package arp implements the per-router address resolution module from
// spec §4.2: resolving an IGP neighbor's IP to its MAC over the port it
// is reachable on.
package arp

import (
	"net/netip"

	"github.com/packetloom/netlab/pkg/wire"
)

// ARP holds one router's resolved IP->MAC mapping.
type ARP struct {
	selfIP  netip.Addr
	selfMAC wire.MAC
	mapping map[netip.Addr]wire.MAC
}

// New creates ARP state for a router identified by selfIP/selfMAC.
func New(selfIP netip.Addr, selfMAC wire.MAC) *ARP {
	return &ARP{selfIP: selfIP, selfMAC: selfMAC, mapping: make(map[netip.Addr]wire.MAC)}
}

// Handle processes one inbound ARP message. It returns a reply to send
// back out the same port, or nil if nothing should be sent.
func (a *ARP) Handle(msg wire.ARPMessage) *wire.ARPReply {
	switch m := msg.(type) {
	case wire.ARPRequest:
		if m.IP != a.selfIP {
			return nil // not for us, ignore
		}
		return &wire.ARPReply{IP: a.selfIP, MAC: a.selfMAC}
	case wire.ARPReply:
		a.mapping[m.IP] = m.MAC
		return nil
	default:
		return nil
	}
}

// Lookup returns the MAC resolved for ip, if any.
func (a *ARP) Lookup(ip netip.Addr) (wire.MAC, bool) {
	mac, ok := a.mapping[ip]
	return mac, ok
}

// Mapping snapshots the current IP->MAC table, for inspection/logging.
func (a *ARP) Mapping() map[netip.Addr]wire.MAC {
	out := make(map[netip.Addr]wire.MAC, len(a.mapping))
	for k, v := range a.mapping {
		out[k] = v
	}
	return out
}
