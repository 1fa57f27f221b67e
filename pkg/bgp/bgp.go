// Package bgp implements the policy-routing module from spec §4.4: a
// per-prefix RIB-In fed by eBGP and iBGP updates, a six-step
// deterministic decision process, valley-free export filtering, and
// iBGP re-advertisement across a full mesh with no reflection.
package bgp

import (
	"net/netip"
	"strconv"

	"github.com/packetloom/netlab/internal/neterr"
	"github.com/packetloom/netlab/internal/netlog"
	"github.com/packetloom/netlab/pkg/trie"
	"github.com/packetloom/netlab/pkg/wire"
)

// Relationship classifies a peer for export policy and local
// preference, per spec §4.4.
type Relationship int

const (
	Peer Relationship = iota
	Provider
	Customer
)

// LocalPref returns the preference a route learned from a peer in this
// relationship is assigned on import.
func (r Relationship) LocalPref() uint32 {
	switch r {
	case Customer:
		return 150
	case Peer:
		return 100
	default: // Provider
		return 50
	}
}

// Route is one candidate path to a prefix, held in the per-prefix
// RIB-In.
type Route struct {
	Prefix    trie.Prefix
	NextHop   netip.Addr
	ASPath    []int
	LocalPref uint32
	MED       uint32
	RouterID  uint32
	FromIBGP  bool
	// IGPDistance is the IGP distance to NextHop, read once when the
	// route enters the RIB-In. The decision process compares these stored
	// values, so no distance shifts mid-comparison; the value is not
	// refreshed when the IGP table changes later.
	IGPDistance uint32
}

// routeKey identifies a Route within one prefix's RIB-In set. It
// includes every advertised field the decision process compares on
// (next hop, AS path, local preference, router ID, MED, iBGP/eBGP
// source) so that two distinct advertisements for the same prefix never
// collide into one entry, matching the reference implementation's
// BGPRoute equality over all of those fields.
func routeKey(r Route) string {
	key := r.NextHop.String() + "|" + strconv.FormatUint(uint64(r.RouterID), 10) + "|" + strconv.FormatUint(uint64(r.MED), 10)
	key += "|" + strconv.FormatUint(uint64(r.LocalPref), 10) + "|" + strconv.FormatBool(r.FromIBGP)
	for _, as := range r.ASPath {
		key += "|" + strconv.Itoa(as)
	}
	return key
}

// withdrawMatches reports whether a RIB-In entry is the one a Withdraw
// retracts, per spec §4.4: matched on (next_hop, router_id, as_path).
// MED is deliberately excluded since withdraw messages never carry it.
func withdrawMatches(entry, w Route) bool {
	if entry.NextHop != w.NextHop || entry.RouterID != w.RouterID {
		return false
	}
	if len(entry.ASPath) != len(w.ASPath) {
		return false
	}
	for i, as := range entry.ASPath {
		if w.ASPath[i] != as {
			return false
		}
	}
	return true
}

// peerLink describes one eBGP-speaking port.
type peerLink struct {
	port         int
	relationship Relationship
}

// igpDistance abstracts the one piece of IGP state the decision process
// needs: current path cost to a BGP route's next hop.
type igpDistance interface {
	DistanceTo(addr netip.Addr) (uint32, bool)
}

// BGP holds one router's policy-routing state.
type BGP struct {
	name     string
	selfAS   int
	selfIP   netip.Addr
	routerID uint32
	logger   *netlog.Logger

	ribIn map[trie.Prefix]map[string]Route
	best  map[trie.Prefix]Route

	ebgpPeers map[int]peerLink        // port -> relationship
	ibgpPeers map[netip.Addr]struct{} // peer loopback addrs
}

// New creates BGP state for a router in selfAS at selfIP (its loopback)
// with the given router ID.
func New(name string, selfAS int, selfIP netip.Addr, routerID uint32, logger *netlog.Logger) *BGP {
	return &BGP{
		name:      name,
		selfAS:    selfAS,
		selfIP:    selfIP,
		routerID:  routerID,
		logger:    logger,
		ribIn:     make(map[trie.Prefix]map[string]Route),
		best:      make(map[trie.Prefix]Route),
		ebgpPeers: make(map[int]peerLink),
		ibgpPeers: make(map[netip.Addr]struct{}),
	}
}

// AddPeerLink registers port as an eBGP peer relationship, per spec
// §4.5's AddPeerLink/AddProvider/AddCustomer commands.
func (b *BGP) AddPeerLink(port int, rel Relationship) {
	b.ebgpPeers[port] = peerLink{port: port, relationship: rel}
}

// AddIBGPPeer registers peerIP as a full-mesh iBGP neighbor.
func (b *BGP) AddIBGPPeer(peerIP netip.Addr) {
	b.ibgpPeers[peerIP] = struct{}{}
}

// IBGPPeers lists all configured iBGP neighbor loopbacks.
func (b *BGP) IBGPPeers() []netip.Addr {
	out := make([]netip.Addr, 0, len(b.ibgpPeers))
	for p := range b.ibgpPeers {
		out = append(out, p)
	}
	return out
}

// Announce self-originates a route for prefix, as spec §4.5's
// AnnouncePrefix command: empty AS path, customer-level preference,
// next hop is this router's own loopback.
func (b *BGP) Announce(prefix trie.Prefix) (advertise []PortAdvertisement, ibgp []IBGPAdvertisement, changed bool) {
	r := Route{
		Prefix:    prefix,
		NextHop:   b.selfIP,
		ASPath:    nil,
		LocalPref: Customer.LocalPref(),
		RouterID:  b.routerID,
	}
	return b.ingest(r, igpDistanceZero{})
}

// PortAdvertisement is an eBGP Update/Withdraw to send out one port.
type PortAdvertisement struct {
	Port    int
	Message wire.BGPMessage
}

// IBGPAdvertisement is an iBGP Update/Withdraw to send to one peer,
// wrapped by the caller inside an IPPacket addressed to PeerIP and
// routed over the IGP overlay.
type IBGPAdvertisement struct {
	PeerIP  netip.Addr
	Message wire.IBGPMessage
}

type igpDistanceZero struct{}

func (igpDistanceZero) DistanceTo(netip.Addr) (uint32, bool) { return 0, true }

// ReceiveUpdate processes an eBGP Update arriving on port, per spec
// §4.4: reject on AS-path loop, else install into RIB-In under
// (prefix, routeKey) and rerun the decision process. Crossing an
// eBGP session always applies next-hop-self: the stored next hop is
// this router's own loopback, not the sender's, so that an iBGP peer
// this route gets relayed to routes toward us rather than toward a
// neighbor AS it cannot reach directly.
func (b *BGP) ReceiveUpdate(port int, msg wire.BGPUpdate, igp igpDistance) (advertise []PortAdvertisement, ibgp []IBGPAdvertisement, changed bool) {
	for _, as := range msg.ASPath {
		if as == b.selfAS {
			b.logger.Log(netlog.SourceBGP, "%s rejecting update for %s: %v", b.name, msg.Prefix, neterr.ErrBGPLoop)
			return nil, nil, false
		}
	}
	link, ok := b.ebgpPeers[port]
	if !ok {
		return nil, nil, false
	}
	r := Route{
		Prefix:    msg.Prefix,
		NextHop:   b.selfIP,
		ASPath:    msg.ASPath,
		LocalPref: link.relationship.LocalPref(),
		MED:       msg.MED,
		RouterID:  msg.RouterID,
	}
	return b.ingest(r, igp)
}

// ReceiveWithdraw processes an eBGP Withdraw arriving on port.
func (b *BGP) ReceiveWithdraw(port int, msg wire.BGPWithdraw, igp igpDistance) (advertise []PortAdvertisement, ibgp []IBGPAdvertisement, changed bool) {
	r := Route{Prefix: msg.Prefix, NextHop: b.selfIP, ASPath: msg.ASPath, RouterID: msg.RouterID}
	return b.withdraw(r, igp)
}

// ReceiveIBGPUpdate processes an iBGP Update carried inside an IPPacket,
// per spec §4.4: installed with FromIBGP=true and never re-advertised
// to other iBGP peers (full mesh, no reflection).
func (b *BGP) ReceiveIBGPUpdate(msg wire.IBGPUpdate, igp igpDistance) (advertise []PortAdvertisement, changed bool) {
	r := Route{
		Prefix:    msg.Prefix,
		NextHop:   msg.NextHop,
		ASPath:    msg.ASPath,
		LocalPref: msg.LocalPref,
		MED:       msg.MED,
		RouterID:  msg.RouterID,
		FromIBGP:  true,
	}
	adv, _, ch := b.ingest(r, igp)
	return adv, ch
}

// ReceiveIBGPWithdraw processes an iBGP Withdraw.
func (b *BGP) ReceiveIBGPWithdraw(msg wire.IBGPWithdraw, igp igpDistance) (advertise []PortAdvertisement, changed bool) {
	r := Route{Prefix: msg.Prefix, NextHop: msg.NextHop, ASPath: msg.ASPath, RouterID: msg.RouterID, FromIBGP: true}
	adv, _, ch := b.withdraw(r, igp)
	return adv, ch
}

func (b *BGP) ingest(r Route, igp igpDistance) (advertise []PortAdvertisement, ibgp []IBGPAdvertisement, changed bool) {
	if r.IGPDistance == 0 {
		if d, ok := igp.DistanceTo(r.NextHop); ok {
			r.IGPDistance = d
		}
	}
	set := b.ribIn[r.Prefix]
	if set == nil {
		set = make(map[string]Route)
		b.ribIn[r.Prefix] = set
	}
	set[routeKey(r)] = r

	return b.rerunDecisionProcess(r.Prefix)
}

func (b *BGP) withdraw(r Route, igp igpDistance) (advertise []PortAdvertisement, ibgp []IBGPAdvertisement, changed bool) {
	set := b.ribIn[r.Prefix]
	for key, entry := range set {
		if withdrawMatches(entry, r) {
			delete(set, key)
		}
	}
	return b.rerunDecisionProcess(r.Prefix)
}

// rerunDecisionProcess picks the new best route for prefix (if any),
// compares it to the previously installed best, and if it differs,
// builds the resulting eBGP/iBGP re-advertisement per spec §4.4's
// export policy, returning changed=true.
func (b *BGP) rerunDecisionProcess(prefix trie.Prefix) (advertise []PortAdvertisement, ibgp []IBGPAdvertisement, changed bool) {
	candidates := b.ribIn[prefix]
	newBest, hasBest := decide(candidates)
	oldBest, hadBest := b.best[prefix]

	if hasBest == hadBest && hasBest && routeKey(newBest) == routeKey(oldBest) {
		return nil, nil, false
	}

	if !hasBest {
		delete(b.best, prefix)
		if hadBest {
			advertise = b.withdrawToPeers(prefix, oldBest)
			ibgp = b.withdrawToIBGP(prefix, oldBest)
			b.logger.Log(netlog.SourceBGP, "%s lost best route to %s", b.name, prefix)
			return advertise, ibgp, true
		}
		return nil, nil, false
	}

	b.best[prefix] = newBest
	advertise = b.advertiseToPeers(prefix, newBest)
	ibgp = b.advertiseToIBGP(prefix, newBest)
	b.logger.Log(netlog.SourceBGP, "%s new best route to %s via AS-path %v pref=%d", b.name, prefix, newBest.ASPath, newBest.LocalPref)
	return advertise, ibgp, true
}

// decide runs the six-step ladder from spec §4.4 over candidates,
// returning the winner. ok is false if candidates is empty.
func decide(candidates map[string]Route) (Route, bool) {
	if len(candidates) == 0 {
		return Route{}, false
	}
	pool := make([]Route, 0, len(candidates))
	for _, r := range candidates {
		pool = append(pool, r)
	}

	// Step 1: highest local preference.
	pool = filterMax(pool, func(r Route) int64 { return int64(r.LocalPref) })
	if len(pool) == 1 {
		return pool[0], true
	}

	// Step 2: shortest AS path.
	pool = filterMin(pool, func(r Route) int64 { return int64(len(r.ASPath)) })
	if len(pool) == 1 {
		return pool[0], true
	}

	// Step 3: lowest MED, compared only among routes sharing the same
	// first AS in the path (a MED from a different neighbor AS isn't
	// comparable).
	pool = filterMedFloor(pool)
	if len(pool) == 1 {
		return pool[0], true
	}

	// Step 4: prefer eBGP-learned over iBGP-learned.
	anyEBGP := false
	for _, r := range pool {
		if !r.FromIBGP {
			anyEBGP = true
			break
		}
	}
	if anyEBGP {
		pool = filterBool(pool, func(r Route) bool { return !r.FromIBGP })
	}
	if len(pool) == 1 {
		return pool[0], true
	}

	// Step 5: among remaining iBGP-learned survivors, lowest IGP
	// distance to next hop.
	pool = filterMin(pool, func(r Route) int64 { return int64(r.IGPDistance) })
	if len(pool) == 1 {
		return pool[0], true
	}

	// Step 6: lowest router ID breaks any remaining tie.
	pool = filterMin(pool, func(r Route) int64 { return int64(r.RouterID) })
	return pool[0], true
}

func filterMax(routes []Route, key func(Route) int64) []Route {
	best := key(routes[0])
	for _, r := range routes[1:] {
		if k := key(r); k > best {
			best = k
		}
	}
	out := routes[:0:0]
	for _, r := range routes {
		if key(r) == best {
			out = append(out, r)
		}
	}
	return out
}

func filterMin(routes []Route, key func(Route) int64) []Route {
	best := key(routes[0])
	for _, r := range routes[1:] {
		if k := key(r); k < best {
			best = k
		}
	}
	out := routes[:0:0]
	for _, r := range routes {
		if key(r) == best {
			out = append(out, r)
		}
	}
	return out
}

func filterBool(routes []Route, pred func(Route) bool) []Route {
	out := routes[:0:0]
	for _, r := range routes {
		if pred(r) {
			out = append(out, r)
		}
	}
	return out
}

// filterMedFloor groups by first-hop AS (the neighbor we learned the
// route from) and keeps only routes tied for the lowest MED within
// their own group, then returns the union of those per-group winners.
func filterMedFloor(routes []Route) []Route {
	groups := make(map[int][]Route)
	for _, r := range routes {
		firstAS := 0
		if len(r.ASPath) > 0 {
			firstAS = r.ASPath[0]
		}
		groups[firstAS] = append(groups[firstAS], r)
	}
	var out []Route
	for _, g := range groups {
		out = append(out, filterMin(g, func(r Route) int64 { return int64(r.MED) })...)
	}
	return out
}

// advertiseToPeers applies the valley-free export policy from spec
// §4.4: a route learned from a peer or provider is only re-advertised
// to customers; a route learned from a customer goes to everyone. Every
// eBGP export prepends self_as to the path and rewrites the next hop to
// this router's own loopback (next-hop-self).
func (b *BGP) advertiseToPeers(prefix trie.Prefix, r Route) []PortAdvertisement {
	var out []PortAdvertisement
	exportPath := append([]int{b.selfAS}, r.ASPath...)
	for port, link := range b.ebgpPeers {
		if r.LocalPref != Customer.LocalPref() && link.relationship != Customer {
			continue
		}
		out = append(out, PortAdvertisement{
			Port: port,
			Message: wire.BGPUpdate{
				Prefix:   prefix,
				NextHop:  b.selfIP,
				ASPath:   exportPath,
				MED:      r.MED,
				RouterID: r.RouterID,
			},
		})
	}
	return out
}

func (b *BGP) withdrawToPeers(prefix trie.Prefix, r Route) []PortAdvertisement {
	var out []PortAdvertisement
	exportPath := append([]int{b.selfAS}, r.ASPath...)
	for port, link := range b.ebgpPeers {
		if r.LocalPref != Customer.LocalPref() && link.relationship != Customer {
			continue
		}
		out = append(out, PortAdvertisement{
			Port:    port,
			Message: wire.BGPWithdraw{Prefix: prefix, NextHop: b.selfIP, ASPath: exportPath, RouterID: r.RouterID},
		})
	}
	return out
}

// advertiseToIBGP re-advertises r to every iBGP peer, unless r was
// itself learned via iBGP (full mesh never reflects).
func (b *BGP) advertiseToIBGP(prefix trie.Prefix, r Route) []IBGPAdvertisement {
	if r.FromIBGP {
		return nil
	}
	var out []IBGPAdvertisement
	for peer := range b.ibgpPeers {
		out = append(out, IBGPAdvertisement{
			PeerIP: peer,
			Message: wire.IBGPUpdate{
				Prefix:    prefix,
				NextHop:   r.NextHop,
				ASPath:    r.ASPath,
				LocalPref: r.LocalPref,
				MED:       r.MED,
				RouterID:  r.RouterID,
			},
		})
	}
	return out
}

func (b *BGP) withdrawToIBGP(prefix trie.Prefix, r Route) []IBGPAdvertisement {
	if r.FromIBGP {
		return nil
	}
	var out []IBGPAdvertisement
	for peer := range b.ibgpPeers {
		out = append(out, IBGPAdvertisement{
			PeerIP:  peer,
			Message: wire.IBGPWithdraw{Prefix: prefix, NextHop: r.NextHop, ASPath: r.ASPath, RouterID: r.RouterID},
		})
	}
	return out
}

// Best returns the currently-installed best route for prefix, if any.
func (b *BGP) Best(prefix trie.Prefix) (Route, bool) {
	r, ok := b.best[prefix]
	return r, ok
}

// Routes snapshots every currently-installed best route, for the
// BGPRoutes command.
func (b *BGP) Routes() map[trie.Prefix]Route {
	out := make(map[trie.Prefix]Route, len(b.best))
	for k, v := range b.best {
		out[k] = v
	}
	return out
}
