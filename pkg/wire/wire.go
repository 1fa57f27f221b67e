// Package wire defines the on-link message types exchanged between
// device actors: BPDUs, OSPF-like hello/LSP messages, BGP-like
// update/withdraw messages, ARP messages, and the IP packets carried
// inside Ethernet frames. These are in-memory tagged unions, not wire
// bytes — bit-exact encoding of real protocols is explicitly out of
// scope; only the tag and field ordering need to round-trip through the
// logger and inspectors.
package wire

import (
	"fmt"
	"net/netip"

	"github.com/packetloom/netlab/pkg/trie"
)

// MAC is a device's link-layer address. An integer suffices, per spec.
type MAC uint32

func (m MAC) String() string { return fmt.Sprintf("mac:%d", uint32(m)) }

// LoopbackPrefix builds a router's per-AS loopback address 10.0.<as>.<id>/32.
func LoopbackPrefix(as, id int) trie.Prefix {
	addr := netip.AddrFrom4([4]byte{10, 0, byte(as), byte(id)})
	return trie.Prefix{Addr: addr, Bits: 32}
}

// BPDU is the spanning-tree control message, compared lexicographically
// on (Root, Distance, Switch, SenderPort) — smaller is better.
type BPDU struct {
	Root       uint32
	Distance   uint32
	Switch     uint32
	SenderPort int
}

// Less reports whether b is strictly better than other.
func (b BPDU) Less(other BPDU) bool {
	if b.Root != other.Root {
		return b.Root < other.Root
	}
	if b.Distance != other.Distance {
		return b.Distance < other.Distance
	}
	if b.Switch != other.Switch {
		return b.Switch < other.Switch
	}
	return b.SenderPort < other.SenderPort
}

func (b BPDU) String() string {
	return fmt.Sprintf("<%d,%d,%d,%d>", b.Root, b.Distance, b.Switch, b.SenderPort)
}

// OSPFMessage is the IGP's tagged union: Hello | HelloReply | LSP.
type OSPFMessage interface{ ospfMessage() }

// Hello is sent periodically on every IGP port to discover neighbors.
type Hello struct{}

// HelloReply answers a Hello with the sender's own loopback prefix.
type HelloReply struct {
	Prefix trie.Prefix
}

// LSPNeighbor is one edge advertised inside an LSP.
type LSPNeighbor struct {
	Cost   uint32
	Prefix trie.Prefix
}

// LSP floods one originator's current neighbor set.
type LSP struct {
	Origin    netip.Addr
	Seq       uint32
	Neighbors []LSPNeighbor
}

func (Hello) ospfMessage()      {}
func (HelloReply) ospfMessage() {}
func (LSP) ospfMessage()        {}

// ARPMessage is ARP's tagged union: Request | Reply.
type ARPMessage interface{ arpMessage() }

// ARPRequest asks "who has IP?".
type ARPRequest struct {
	IP netip.Addr
}

// ARPReply answers a request with the owner's MAC.
type ARPReply struct {
	IP  netip.Addr
	MAC MAC
}

func (ARPRequest) arpMessage() {}
func (ARPReply) arpMessage()   {}

// BGPMessage is BGP's eBGP tagged union: Update | Withdraw.
type BGPMessage interface{ bgpMessage() }

// BGPUpdate announces a route.
type BGPUpdate struct {
	Prefix   trie.Prefix
	NextHop  netip.Addr
	ASPath   []int
	MED      uint32
	RouterID uint32
}

// BGPWithdraw retracts a previously announced route.
type BGPWithdraw struct {
	Prefix   trie.Prefix
	NextHop  netip.Addr
	ASPath   []int
	RouterID uint32
}

func (BGPUpdate) bgpMessage()   {}
func (BGPWithdraw) bgpMessage() {}

// IBGPMessage travels inside an IPPacket addressed to a peer's loopback,
// forwarded by the IGP rather than sent on a direct eBGP port.
type IBGPMessage interface{ ibgpMessage() }

// IBGPUpdate is the iBGP analog of BGPUpdate, carrying the originator's
// local preference since iBGP has no per-port policy to derive it from.
type IBGPUpdate struct {
	Prefix   trie.Prefix
	NextHop  netip.Addr
	ASPath   []int
	LocalPref uint32
	MED      uint32
	RouterID uint32
}

// IBGPWithdraw is the iBGP analog of BGPWithdraw.
type IBGPWithdraw struct {
	Prefix   trie.Prefix
	NextHop  netip.Addr
	ASPath   []int
	RouterID uint32
}

func (IBGPUpdate) ibgpMessage()   {}
func (IBGPWithdraw) ibgpMessage() {}

// IPContent is the payload carried inside an IPPacket.
type IPContent interface{ ipContent() }

// Ping requests a Pong from the destination.
type Ping struct{}

// Pong answers a Ping.
type Pong struct{}

// Data is an opaque application payload, logged on arrival.
type Data struct {
	Payload string
}

// IBGP carries one iBGP control message over the IGP overlay.
type IBGP struct {
	Message IBGPMessage
}

func (Ping) ipContent() {}
func (Pong) ipContent() {}
func (Data) ipContent() {}
func (IBGP) ipContent() {}

// IPPacket is the simulation's L3 datagram: no byte encoding, just the
// addresses and a typed payload.
type IPPacket struct {
	Src     netip.Addr
	Dst     netip.Addr
	Content IPContent
}

// EthernetFrame carries one IPPacket to a specific link-layer address.
type EthernetFrame struct {
	DstMAC MAC
	Packet IPPacket
}

// Frame is the tagged union carried over a Link: BPDU | OSPF |
// EthernetFrame | BGP | ARP.
type Frame interface{ frame() }

// BPDUFrame carries a spanning-tree BPDU.
type BPDUFrame struct{ BPDU BPDU }

// OSPFFrame carries one IGP control message.
type OSPFFrame struct{ Message OSPFMessage }

// EthernetFrameMsg carries one Ethernet-framed IP packet.
type EthernetFrameMsg struct{ Frame EthernetFrame }

// BGPFrame carries one eBGP control message.
type BGPFrame struct{ Message BGPMessage }

// ARPFrame carries one ARP message.
type ARPFrame struct{ Message ARPMessage }

func (BPDUFrame) frame()         {}
func (OSPFFrame) frame()         {}
func (EthernetFrameMsg) frame()  {}
func (BGPFrame) frame()          {}
func (ARPFrame) frame()          {}
