// Package igp implements the OSPF-like link-state IGP described in
// spec §4.3: Hello-based neighbor discovery, LSP flooding, Dijkstra SPF,
// and the routing table/prefix trie that §4.4's BGP module installs
// routes into and that forwarding consults for the next hop.
package igp

import (
	"container/heap"
	"net/netip"

	"github.com/packetloom/netlab/internal/neterr"
	"github.com/packetloom/netlab/internal/netlog"
	"github.com/packetloom/netlab/pkg/trie"
	"github.com/packetloom/netlab/pkg/wire"
)

// MissedHelloThreshold is how many consecutive ticks a direct neighbor
// may go unheard-from before it is demoted (SPEC_FULL §9 decision: the
// spec leaves link-failure detection as an open question).
const MissedHelloThreshold = 6

// RouteEntry is one routing-table value: the outgoing port and the
// total path cost to reach the owning prefix.
type RouteEntry struct {
	Port     int
	Distance uint32
}

type edgeKey struct {
	cost   uint32
	prefix trie.Prefix
}

type neighborKey struct {
	cost   uint32
	port   int
	prefix trie.Prefix
}

type lspKey struct {
	origin netip.Addr
	seq    uint32
}

// PortMessage pairs an outbound OSPF message with the port to send it
// on; IGP returns these rather than touching links directly so it stays
// testable without a running actor.
type PortMessage struct {
	Port    int
	Message wire.OSPFMessage
}

// IGP holds one router's link-state state.
type IGP struct {
	name     string
	selfIP   netip.Addr
	selfPfx  trie.Prefix
	logger   *netlog.Logger

	topology map[netip.Addr]map[edgeKey]struct{}
	neighbors map[neighborKey]struct{}

	routingTable map[trie.Prefix]RouteEntry
	prefixes     *trie.Trie[RouteEntry]

	portCost map[int]uint32

	seenLSP map[lspKey]struct{}
	lspSeq  uint32

	heardThisTick map[int]bool
	missedStreak  map[int]int

	missedHelloThreshold int
}

// New creates IGP state for a router at selfIP, named name for logging.
func New(name string, selfIP netip.Addr, logger *netlog.Logger) *IGP {
	selfPfx := trie.Prefix{Addr: selfIP, Bits: 32}
	g := &IGP{
		name:                 name,
		selfIP:               selfIP,
		selfPfx:              selfPfx,
		logger:               logger,
		topology:             make(map[netip.Addr]map[edgeKey]struct{}),
		neighbors:            make(map[neighborKey]struct{}),
		routingTable:         make(map[trie.Prefix]RouteEntry),
		prefixes:             trie.New[RouteEntry](),
		portCost:             make(map[int]uint32),
		seenLSP:              make(map[lspKey]struct{}),
		heardThisTick:        make(map[int]bool),
		missedStreak:         make(map[int]int),
		missedHelloThreshold: MissedHelloThreshold,
	}
	g.installRoute(selfPfx, RouteEntry{Port: 0, Distance: 0})
	return g
}

// SetMissedHelloThreshold overrides the default demotion threshold, per
// an engine-tuning labconfig override. n <= 0 is ignored.
func (g *IGP) SetMissedHelloThreshold(n int) {
	if n > 0 {
		g.missedHelloThreshold = n
	}
}

func (g *IGP) installRoute(prefix trie.Prefix, entry RouteEntry) {
	g.routingTable[prefix] = entry
	g.prefixes.Insert(prefix, entry)
}

func (g *IGP) removeRoute(prefix trie.Prefix) {
	delete(g.routingTable, prefix)
	g.prefixes.Delete(prefix)
}

// RegisterPort binds an IGP-speaking port with its link cost; only
// ports registered here participate in Hello/LSP exchange.
func (g *IGP) RegisterPort(port int, cost uint32) {
	g.portCost[port] = cost
}

// InstallDirectRoute installs a route outside of SPF — used when a BGP
// link is added, since the eBGP peer's loopback is reachable over a
// link the IGP never ran Hello on (spec §4.5's AddPeerLink/Provider/
// Customer handlers insert directly into the routing table).
func (g *IGP) InstallDirectRoute(prefix trie.Prefix, port int, distance uint32) {
	g.installRoute(prefix, RouteEntry{Port: port, Distance: distance})
}

// SelfPrefix returns this router's /32 loopback prefix.
func (g *IGP) SelfPrefix() trie.Prefix { return g.selfPfx }

// HelloOutbound returns the periodic Hello emission for every
// registered IGP port (spec §4.3).
func (g *IGP) HelloOutbound() []PortMessage {
	out := make([]PortMessage, 0, len(g.portCost))
	for p := range g.portCost {
		out = append(out, PortMessage{Port: p, Message: wire.Hello{}})
	}
	return out
}

// ProcessHello answers a Hello with our own loopback prefix.
func (g *IGP) ProcessHello(port int) PortMessage {
	g.logger.Log(netlog.SourceOSPF, "%s sending hello reply on port %d", g.name, port)
	return PortMessage{Port: port, Message: wire.HelloReply{Prefix: g.selfPfx}}
}

// ProcessHelloReply records a new direct neighbor, if this is the first
// time we've heard this (cost, port, prefix) combination, and returns
// the freshly-originated LSP to flood. ok is false if nothing new
// happened and there is nothing to flood.
func (g *IGP) ProcessHelloReply(port int, prefix trie.Prefix) (lsp wire.LSP, ok bool) {
	if prefix.Addr == g.selfIP {
		return wire.LSP{}, false
	}
	cost, known := g.portCost[port]
	if !known {
		return wire.LSP{}, false
	}

	g.heardThisTick[port] = true
	g.missedStreak[port] = 0

	key := neighborKey{cost: cost, port: port, prefix: prefix}
	if _, seen := g.neighbors[key]; seen {
		return wire.LSP{}, false
	}
	g.neighbors[key] = struct{}{}
	g.installRoute(prefix, RouteEntry{Port: port, Distance: cost})

	set := g.topology[g.selfIP]
	if set == nil {
		set = make(map[edgeKey]struct{})
		g.topology[g.selfIP] = set
	}
	set[edgeKey{cost: cost, prefix: prefix}] = struct{}{}

	g.runSPF()

	seq := g.lspSeq
	g.lspSeq++
	lsp = wire.LSP{Origin: g.selfIP, Seq: seq, Neighbors: g.currentNeighborEdges()}
	g.logger.Log(netlog.SourceOSPF, "%s originates LSP seq=%d neighbors=%d", g.name, seq, len(lsp.Neighbors))
	return lsp, true
}

func (g *IGP) currentNeighborEdges() []wire.LSPNeighbor {
	seen := make(map[edgeKey]struct{})
	out := make([]wire.LSPNeighbor, 0, len(g.neighbors))
	for k := range g.neighbors {
		ek := edgeKey{cost: k.cost, prefix: k.prefix}
		if _, dup := seen[ek]; dup {
			continue
		}
		seen[ek] = struct{}{}
		out = append(out, wire.LSPNeighbor{Cost: k.cost, Prefix: k.prefix})
	}
	return out
}

// ProcessLSP applies flooding de-duplication (spec §4.3): a duplicate
// (origin, seq) is dropped silently; otherwise the neighbor set is
// merged into the topology, SPF reruns, and the caller should flood the
// unchanged LSP to every IGP port other than the one it arrived on
// (accepted == true).
func (g *IGP) ProcessLSP(msg wire.LSP) (accepted bool) {
	key := lspKey{origin: msg.Origin, seq: msg.Seq}
	if _, dup := g.seenLSP[key]; dup {
		g.logger.Log(netlog.SourceOSPF, "%s dropping LSP from %s seq=%d: %v", g.name, msg.Origin, msg.Seq, neterr.ErrStaleLSP)
		return false
	}
	g.seenLSP[key] = struct{}{}

	set := g.topology[msg.Origin]
	if set == nil {
		set = make(map[edgeKey]struct{})
		g.topology[msg.Origin] = set
	}
	for _, n := range msg.Neighbors {
		set[edgeKey{cost: n.Cost, prefix: n.Prefix}] = struct{}{}
	}

	g.runSPF()
	return true
}

// Tick advances the per-port missed-Hello counters and demotes any
// neighbor that has gone MissedHelloThreshold ticks without a
// HelloReply, returning the resulting LSPs to flood.
func (g *IGP) Tick() []wire.LSP {
	var floods []wire.LSP
	for port := range g.portCost {
		if g.heardThisTick[port] {
			g.missedStreak[port] = 0
			g.heardThisTick[port] = false
		}
		g.missedStreak[port]++
		if g.missedStreak[port] < g.missedHelloThreshold {
			continue
		}
		if lsp, ok := g.demoteNeighborOnPort(port); ok {
			floods = append(floods, lsp)
		}
		g.missedStreak[port] = 0
	}
	return floods
}

func (g *IGP) demoteNeighborOnPort(port int) (wire.LSP, bool) {
	var demoted *neighborKey
	for k := range g.neighbors {
		if k.port == port {
			kk := k
			demoted = &kk
			break
		}
	}
	if demoted == nil {
		return wire.LSP{}, false
	}
	delete(g.neighbors, *demoted)
	if set := g.topology[g.selfIP]; set != nil {
		delete(set, edgeKey{cost: demoted.cost, prefix: demoted.prefix})
	}
	g.removeRoute(demoted.prefix)

	g.logger.Log(netlog.SourceOSPF, "%s demoting neighbor %s on port %d after %d missed hellos", g.name, demoted.prefix, port, g.missedHelloThreshold)

	g.runSPF()

	seq := g.lspSeq
	g.lspSeq++
	return wire.LSP{Origin: g.selfIP, Seq: seq, Neighbors: g.currentNeighborEdges()}, true
}

// dijkstraNode is one entry in the SPF priority queue.
type dijkstraNode struct {
	distance uint32
	addr     netip.Addr
	prefix   trie.Prefix
	port     int
}

type nodeHeap []dijkstraNode

func (h nodeHeap) Len() int            { return len(h) }
func (h nodeHeap) Less(i, j int) bool  { return h[i].distance < h[j].distance }
func (h nodeHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *nodeHeap) Push(x interface{}) { *h = append(*h, x.(dijkstraNode)) }
func (h *nodeHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// runSPF recomputes the shortest-path tree from self over the current
// topology (spec §4.3): Dijkstra, one path per destination, no ECMP.
// The heap orders by distance only, so between equal-distance paths the
// one popped first is kept; that is not necessarily the one relaxed first.
func (g *IGP) runSPF() {
	visited := map[netip.Addr]struct{}{g.selfIP: {}}
	pq := &nodeHeap{}
	heap.Init(pq)

	for k := range g.neighbors {
		heap.Push(pq, dijkstraNode{distance: k.cost, addr: k.prefix.Addr, prefix: k.prefix, port: k.port})
	}

	for pq.Len() > 0 {
		n := heap.Pop(pq).(dijkstraNode)
		if _, done := visited[n.addr]; done {
			continue
		}
		visited[n.addr] = struct{}{}
		g.installRoute(n.prefix, RouteEntry{Port: n.port, Distance: n.distance})

		for edge := range g.topology[n.addr] {
			if _, done := visited[edge.prefix.Addr]; done {
				continue
			}
			heap.Push(pq, dijkstraNode{distance: n.distance + edge.cost, addr: edge.prefix.Addr, prefix: edge.prefix, port: n.port})
		}
	}
	g.logger.Log(netlog.SourceOSPF, "%s recomputed routing table: %d entries", g.name, len(g.routingTable))
}

// GetPort resolves the outgoing port toward dst via longest-prefix
// match, per the forwarding hook in spec §4.3.
func (g *IGP) GetPort(dst netip.Addr) (int, bool) {
	entry, ok := g.prefixes.LongestMatch(dst)
	if !ok {
		return 0, false
	}
	return entry.Port, true
}

// DistanceTo returns the current shortest-path distance to addr, if a
// route exists. Used by the BGP decision process's step 5 (IGP
// distance tie-break among iBGP survivors).
func (g *IGP) DistanceTo(addr netip.Addr) (uint32, bool) {
	entry, ok := g.prefixes.LongestMatch(addr)
	if !ok {
		return 0, false
	}
	return entry.Distance, true
}

// RoutingTable snapshots the full prefix -> (port, distance) table, for
// the RoutingTable command response.
func (g *IGP) RoutingTable() map[trie.Prefix]RouteEntry {
	out := make(map[trie.Prefix]RouteEntry, len(g.routingTable))
	for k, v := range g.routingTable {
		out[k] = v
	}
	return out
}

// DirectNeighborPorts lists the ports of all current direct IGP
// neighbors, used to drive periodic ARP refresh (spec §4.2).
func (g *IGP) DirectNeighborPorts() []struct {
	Port int
	IP   netip.Addr
} {
	out := make([]struct {
		Port int
		IP   netip.Addr
	}, 0, len(g.neighbors))
	seen := make(map[int]bool)
	for k := range g.neighbors {
		if seen[k.port] {
			continue
		}
		seen[k.port] = true
		out = append(out, struct {
			Port int
			IP   netip.Addr
		}{Port: k.port, IP: k.prefix.Addr})
	}
	return out
}
