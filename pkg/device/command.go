// Package device implements the per-router and per-switch actors from
// spec §4.5/§4.1: one goroutine per device, owning all of that device's
// state, driven by a command queue and a set of link endpoints.
package device

import (
	"net/netip"

	"github.com/packetloom/netlab/pkg/bgp"
	"github.com/packetloom/netlab/pkg/igp"
	"github.com/packetloom/netlab/pkg/link"
	"github.com/packetloom/netlab/pkg/spt"
	"github.com/packetloom/netlab/pkg/trie"
)

// Command is the façade-to-device control message, per spec §6.
type Command interface{ command() }

// AddLink binds an internal IGP-speaking port to endpoint at the given
// link cost.
type AddLink struct {
	Port     int
	Cost     uint32
	Endpoint *link.Endpoint
}

// AddPeerLink binds an eBGP port with Peer relationship (local_pref 100).
type AddPeerLink struct {
	Port     int
	OtherIP  netip.Addr
	Endpoint *link.Endpoint
}

// AddProvider binds an eBGP port with Provider relationship (local_pref 50).
type AddProvider struct {
	Port     int
	OtherIP  netip.Addr
	Endpoint *link.Endpoint
}

// AddCustomer binds an eBGP port with Customer relationship (local_pref 150).
type AddCustomer struct {
	Port     int
	OtherIP  netip.Addr
	Endpoint *link.Endpoint
}

// AddIBGP registers a full-mesh iBGP peer by loopback address.
type AddIBGP struct {
	PeerIP netip.Addr
}

// AnnouncePrefix self-originates prefix with empty AS path and pref 150.
type AnnouncePrefix struct {
	Prefix trie.Prefix
}

// Ping originates a Ping toward dst.
type Ping struct {
	Dst netip.Addr
}

// RoutingTableQuery asks a router for its current IGP routing table.
type RoutingTableQuery struct{}

// BGPRoutesQuery asks a router for its current best BGP routes.
type BGPRoutesQuery struct{}

// StatePortsQuery asks a switch for its current per-port SPT state.
type StatePortsQuery struct{}

// Quit terminates the device's event loop.
type Quit struct{}

func (AddLink) command()           {}
func (AddPeerLink) command()       {}
func (AddProvider) command()       {}
func (AddCustomer) command()       {}
func (AddIBGP) command()           {}
func (AnnouncePrefix) command()    {}
func (Ping) command()              {}
func (RoutingTableQuery) command() {}
func (BGPRoutesQuery) command()    {}
func (StatePortsQuery) command()   {}
func (Quit) command()              {}

// Response is the device-to-façade reply, per spec §6.
type Response interface{ response() }

// Ack acknowledges a command with no interesting payload.
type Ack struct{}

// StatePortsResponse answers StatePortsQuery.
type StatePortsResponse struct {
	States map[int]spt.PortState
}

// RoutingTableResponse answers RoutingTableQuery.
type RoutingTableResponse struct {
	Table map[trie.Prefix]igp.RouteEntry
}

// BGPRoutesResponse answers BGPRoutesQuery.
type BGPRoutesResponse struct {
	Best map[trie.Prefix]bgp.Route
}

func (Ack) response()                 {}
func (StatePortsResponse) response()  {}
func (RoutingTableResponse) response() {}
func (BGPRoutesResponse) response()   {}

// pending pairs a command with the channel its response is delivered on.
type pending struct {
	cmd   Command
	reply chan Response
}
