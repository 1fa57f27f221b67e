package device

import (
	"net/netip"
	"time"

	"github.com/packetloom/netlab/internal/neterr"
	"github.com/packetloom/netlab/internal/netlog"
	"github.com/packetloom/netlab/pkg/arp"
	"github.com/packetloom/netlab/pkg/bgp"
	"github.com/packetloom/netlab/pkg/igp"
	"github.com/packetloom/netlab/pkg/link"
	"github.com/packetloom/netlab/pkg/trie"
	"github.com/packetloom/netlab/pkg/wire"
)

// routerTick is the periodic Hello/ARP-refresh interval from spec §4.5.
const routerTick = 200 * time.Millisecond

// Router is a layer-3 actor owning ARP, IGP, and BGP modules plus every
// port's link endpoint, per spec §4.5. One goroutine mutates all of it.
type Router struct {
	name    string
	selfAS  int
	selfIP  netip.Addr
	selfMAC wire.MAC
	logger  *netlog.Logger

	arpMod *arp.ARP
	igpMod *igp.IGP
	bgpMod *bgp.BGP

	ports map[int]*link.Endpoint

	commands chan pending
	quit     chan struct{}
	done     chan struct{}
}

// NewRouter creates a router actor identified by selfIP (its loopback)
// and selfMAC, in AS selfAS with router ID routerID.
func NewRouter(name string, selfAS int, selfIP netip.Addr, selfMAC wire.MAC, routerID uint32, logger *netlog.Logger) *Router {
	return &Router{
		name:     name,
		selfAS:   selfAS,
		selfIP:   selfIP,
		selfMAC:  selfMAC,
		logger:   logger,
		arpMod:   arp.New(selfIP, selfMAC),
		igpMod:   igp.New(name, selfIP, logger),
		bgpMod:   bgp.New(name, selfAS, selfIP, routerID, logger),
		ports:    make(map[int]*link.Endpoint),
		commands: make(chan pending, 64),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// SetMissedHelloThreshold overrides the IGP's default link-failure
// detection threshold, per an engine-tuning labconfig override. Must be
// called before Run starts polling.
func (r *Router) SetMissedHelloThreshold(n int) {
	r.igpMod.SetMissedHelloThreshold(n)
}

// Stop signals the event loop to exit without going through Quit.
func (r *Router) Stop() {
	select {
	case <-r.quit:
	default:
		close(r.quit)
	}
}

// Send enqueues cmd and blocks for its response.
func (r *Router) Send(cmd Command) Response {
	reply := make(chan Response, 1)
	select {
	case r.commands <- pending{cmd: cmd, reply: reply}:
	case <-r.done:
		return Ack{}
	}
	select {
	case resp := <-reply:
		return resp
	case <-r.done:
		return Ack{}
	}
}

// Run is the router's event loop, per spec §4.5: drain one command,
// poll every port, and on each tick emit IGP Hellos and ARP refreshes.
func (r *Router) Run() {
	defer close(r.done)
	ticker := time.NewTicker(routerTick)
	defer ticker.Stop()
	pollTicker := time.NewTicker(pollTick)
	defer pollTicker.Stop()

	for {
		select {
		case <-r.quit:
			return
		case p := <-r.commands:
			if r.handleCommand(p) {
				return
			}
		case <-ticker.C:
			r.tick()
		case <-pollTicker.C:
			r.pollPorts()
		}
	}
}

func (r *Router) handleCommand(p pending) (stop bool) {
	switch cmd := p.cmd.(type) {
	case AddLink:
		r.ports[cmd.Port] = cmd.Endpoint
		r.igpMod.RegisterPort(cmd.Port, cmd.Cost)
		p.reply <- Ack{}

	case AddPeerLink:
		r.ports[cmd.Port] = cmd.Endpoint
		r.bgpMod.AddPeerLink(cmd.Port, bgp.Peer)
		r.igpMod.InstallDirectRoute(trie.Prefix{Addr: cmd.OtherIP, Bits: 32}, cmd.Port, 1)
		p.reply <- Ack{}

	case AddProvider:
		r.ports[cmd.Port] = cmd.Endpoint
		r.bgpMod.AddPeerLink(cmd.Port, bgp.Provider)
		r.igpMod.InstallDirectRoute(trie.Prefix{Addr: cmd.OtherIP, Bits: 32}, cmd.Port, 1)
		p.reply <- Ack{}

	case AddCustomer:
		r.ports[cmd.Port] = cmd.Endpoint
		r.bgpMod.AddPeerLink(cmd.Port, bgp.Customer)
		r.igpMod.InstallDirectRoute(trie.Prefix{Addr: cmd.OtherIP, Bits: 32}, cmd.Port, 1)
		p.reply <- Ack{}

	case AddIBGP:
		r.bgpMod.AddIBGPPeer(cmd.PeerIP)
		p.reply <- Ack{}

	case AnnouncePrefix:
		advertise, ibgpAdv, _ := r.bgpMod.Announce(cmd.Prefix)
		r.sendBGPAdvertisements(advertise)
		r.sendIBGPAdvertisements(ibgpAdv)
		p.reply <- Ack{}

	case Ping:
		r.sendIP(cmd.Dst, wire.Ping{})
		p.reply <- Ack{}

	case RoutingTableQuery:
		p.reply <- RoutingTableResponse{Table: r.igpMod.RoutingTable()}

	case BGPRoutesQuery:
		p.reply <- BGPRoutesResponse{Best: r.bgpMod.Routes()}

	case Quit:
		for _, ep := range r.ports {
			ep.Close()
		}
		p.reply <- Ack{}
		return true

	default:
		p.reply <- Ack{}
	}
	return false
}

func (r *Router) pollPorts() {
	for port, ep := range r.ports {
		frame, ok := ep.TryRecv()
		if !ok {
			continue
		}
		r.handleFrame(port, frame)
	}
}

// handleFrame dispatches one inbound frame by kind, per spec §4.5 step c:
// BPDUs are ignored (routers don't run SPT); OSPF/BGP/ARP go to their
// module; an EthernetFrame addressed to self is unwrapped and processed
// at L3, otherwise dropped.
func (r *Router) handleFrame(port int, frame wire.Frame) {
	switch f := frame.(type) {
	case wire.BPDUFrame:
		// routers do not participate in spanning tree

	case wire.OSPFFrame:
		r.handleOSPF(port, f.Message)

	case wire.BGPFrame:
		r.handleBGP(port, f.Message)

	case wire.ARPFrame:
		r.handleARP(port, f.Message)

	case wire.EthernetFrameMsg:
		if f.Frame.DstMAC != r.selfMAC {
			return
		}
		r.handleIPPacket(f.Frame.Packet)
	}
}

func (r *Router) handleOSPF(port int, msg wire.OSPFMessage) {
	switch m := msg.(type) {
	case wire.Hello:
		reply := r.igpMod.ProcessHello(port)
		r.sendOSPF(reply.Port, reply.Message)

	case wire.HelloReply:
		lsp, ok := r.igpMod.ProcessHelloReply(port, m.Prefix)
		if ok {
			r.floodLSP(lsp, -1)
		}

	case wire.LSP:
		if r.igpMod.ProcessLSP(m) {
			r.floodLSP(m, port)
		}
	}
}

// floodLSP sends lsp out every IGP port except excludePort (-1 means
// none excluded — a freshly originated LSP floods everywhere).
func (r *Router) floodLSP(lsp wire.LSP, excludePort int) {
	for _, h := range r.igpMod.HelloOutbound() {
		if h.Port == excludePort {
			continue
		}
		r.sendOSPF(h.Port, lsp)
	}
}

func (r *Router) handleBGP(port int, msg wire.BGPMessage) {
	var advertise []bgp.PortAdvertisement
	var ibgpAdv []bgp.IBGPAdvertisement
	switch m := msg.(type) {
	case wire.BGPUpdate:
		advertise, ibgpAdv, _ = r.bgpMod.ReceiveUpdate(port, m, r.igpMod)
	case wire.BGPWithdraw:
		advertise, ibgpAdv, _ = r.bgpMod.ReceiveWithdraw(port, m, r.igpMod)
	}
	r.installBestRoutes()
	r.sendBGPAdvertisements(advertise)
	r.sendIBGPAdvertisements(ibgpAdv)
}

// installBestRoutes mirrors spec §4.4's "install the new best into the
// IGP routing table by setting routing_table[prefix] = (port-toward-
// new-best.nexthop, 0)" for every currently-chosen best route.
func (r *Router) installBestRoutes() {
	for prefix, best := range r.bgpMod.Routes() {
		port, ok := r.igpMod.GetPort(best.NextHop)
		if !ok {
			continue
		}
		r.igpMod.InstallDirectRoute(prefix, port, 0)
	}
}

func (r *Router) handleARP(port int, msg wire.ARPMessage) {
	reply := r.arpMod.Handle(msg)
	if reply != nil {
		r.sendARP(port, *reply)
	}
}

// handleIPPacket processes an IP payload delivered locally, per spec
// §4.5: Ping replies with Pong, Pong/Data are logged, IBGP goes to BGP.
func (r *Router) handleIPPacket(pkt wire.IPPacket) {
	if pkt.Dst != r.selfIP {
		r.forwardIP(pkt)
		return
	}
	switch content := pkt.Content.(type) {
	case wire.Ping:
		r.logger.Log(netlog.SourcePing, "%s received ping from %s", r.name, pkt.Src)
		r.sendIPFrom(pkt.Src, wire.Pong{})
	case wire.Pong:
		r.logger.Log(netlog.SourcePing, "%s received pong from %s", r.name, pkt.Src)
	case wire.Data:
		r.logger.Log(netlog.SourceIP, "%s received data from %s: %q", r.name, pkt.Src, content.Payload)
	case wire.IBGP:
		var advertise []bgp.PortAdvertisement
		switch m := content.Message.(type) {
		case wire.IBGPUpdate:
			advertise, _ = r.bgpMod.ReceiveIBGPUpdate(m, r.igpMod)
		case wire.IBGPWithdraw:
			advertise, _ = r.bgpMod.ReceiveIBGPWithdraw(m, r.igpMod)
		}
		r.installBestRoutes()
		r.sendBGPAdvertisements(advertise)
	}
}

// forwardIP re-dispatches a transit packet toward its destination,
// rather than delivering it locally.
func (r *Router) forwardIP(pkt wire.IPPacket) {
	if err := r.sendIPPacket(pkt); err != nil {
		r.logger.Log(netlog.SourceDebug, "%s dropping packet to %s: %v", r.name, pkt.Dst, err)
	}
}

// sendIP originates a new IP packet from self to dst.
func (r *Router) sendIP(dst netip.Addr, content wire.IPContent) {
	if err := r.sendIPPacket(wire.IPPacket{Src: r.selfIP, Dst: dst, Content: content}); err != nil {
		r.logger.Log(netlog.SourceDebug, "%s dropping packet to %s: %v", r.name, dst, err)
	}
}

// sendIPFrom originates a reply addressed back to src (used for Pong).
func (r *Router) sendIPFrom(dst netip.Addr, content wire.IPContent) {
	if err := r.sendIPPacket(wire.IPPacket{Src: r.selfIP, Dst: dst, Content: content}); err != nil {
		r.logger.Log(netlog.SourceDebug, "%s dropping packet to %s: %v", r.name, dst, err)
	}
}

// sendIPPacket implements the IGP forwarding hook from spec §4.3:
// longest-prefix match for the outgoing port, ARP resolution of the
// port's neighbor MAC, silent drop if either is missing.
func (r *Router) sendIPPacket(pkt wire.IPPacket) error {
	port, ok := r.igpMod.GetPort(pkt.Dst)
	if !ok {
		return neterr.ErrNoRoute
	}
	ep, ok := r.ports[port]
	if !ok {
		return neterr.ErrNoRoute
	}
	nextHop := pkt.Dst
	for _, n := range r.igpMod.DirectNeighborPorts() {
		if n.Port == port {
			nextHop = n.IP
			break
		}
	}
	mac, ok := r.arpMod.Lookup(nextHop)
	if !ok {
		return neterr.ErrNoARPEntry
	}
	if err := ep.Send(wire.EthernetFrameMsg{Frame: wire.EthernetFrame{DstMAC: mac, Packet: pkt}}); err != nil {
		return neterr.ErrPeerGone
	}
	return nil
}

func (r *Router) sendOSPF(port int, msg wire.OSPFMessage) {
	ep, ok := r.ports[port]
	if !ok {
		return
	}
	if err := ep.Send(wire.OSPFFrame{Message: msg}); err != nil {
		r.logger.Log(netlog.SourceDebug, "%s dropping OSPF message on port %d: %v", r.name, port, neterr.ErrPeerGone)
	}
}

func (r *Router) sendARP(port int, msg wire.ARPMessage) {
	ep, ok := r.ports[port]
	if !ok {
		return
	}
	if err := ep.Send(wire.ARPFrame{Message: msg}); err != nil {
		r.logger.Log(netlog.SourceDebug, "%s dropping ARP message on port %d: %v", r.name, port, neterr.ErrPeerGone)
	}
}

func (r *Router) sendBGPAdvertisements(advs []bgp.PortAdvertisement) {
	for _, a := range advs {
		ep, ok := r.ports[a.Port]
		if !ok {
			continue
		}
		if err := ep.Send(wire.BGPFrame{Message: a.Message}); err != nil {
			r.logger.Log(netlog.SourceDebug, "%s dropping BGP message on port %d: %v", r.name, a.Port, neterr.ErrPeerGone)
		}
	}
}

func (r *Router) sendIBGPAdvertisements(advs []bgp.IBGPAdvertisement) {
	for _, a := range advs {
		r.sendIP(a.PeerIP, wire.IBGP{Message: a.Message})
	}
}

// tick drives the periodic IGP Hello emission and ARP neighbor refresh
// from spec §4.5.
func (r *Router) tick() {
	for _, hello := range r.igpMod.HelloOutbound() {
		r.sendOSPF(hello.Port, hello.Message)
	}
	for _, flood := range r.igpMod.Tick() {
		r.floodLSP(flood, -1)
	}
	for _, n := range r.igpMod.DirectNeighborPorts() {
		r.sendARP(n.Port, wire.ARPRequest{IP: n.IP})
	}
}
