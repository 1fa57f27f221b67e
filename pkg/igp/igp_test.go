package igp

import (
	"io"
	"net/netip"
	"testing"

	"github.com/packetloom/netlab/internal/netlog"
	"github.com/packetloom/netlab/pkg/trie"
	"github.com/packetloom/netlab/pkg/wire"
)

func testLogger(t *testing.T) *netlog.Logger {
	l := netlog.New(io.Discard, 64)
	t.Cleanup(l.Close)
	return l
}

func TestDirectNeighborInstallsRouteAndFloodsLSP(t *testing.T) {
	self := netip.MustParseAddr("10.0.1.1")
	other := trie.MustPrefix("10.0.1.2", 32)
	g := New("r1", self, testLogger(t))
	g.RegisterPort(1, 1)

	lsp, ok := g.ProcessHelloReply(1, other)
	if !ok {
		t.Fatal("expected a new neighbor to originate an LSP")
	}
	if lsp.Origin != self || lsp.Seq != 0 {
		t.Fatalf("unexpected LSP: %+v", lsp)
	}

	port, ok := g.GetPort(other.Addr)
	if !ok || port != 1 {
		t.Fatalf("expected route to %s via port 1, got port=%d ok=%v", other, port, ok)
	}
}

func TestDuplicateHelloReplyDoesNotReflood(t *testing.T) {
	self := netip.MustParseAddr("10.0.1.1")
	other := trie.MustPrefix("10.0.1.2", 32)
	g := New("r1", self, testLogger(t))
	g.RegisterPort(1, 1)

	if _, ok := g.ProcessHelloReply(1, other); !ok {
		t.Fatal("first reply should be new")
	}
	if _, ok := g.ProcessHelloReply(1, other); ok {
		t.Fatal("duplicate reply should not originate a second LSP")
	}
}

func TestProcessLSPDropsDuplicateOriginSeq(t *testing.T) {
	self := netip.MustParseAddr("10.0.1.1")
	g := New("r1", self, testLogger(t))

	msg := wire.LSP{Origin: netip.MustParseAddr("10.0.1.9"), Seq: 0, Neighbors: nil}
	if !g.ProcessLSP(msg) {
		t.Fatal("first LSP with a given (origin,seq) should be accepted")
	}
	if g.ProcessLSP(msg) {
		t.Fatal("duplicate (origin,seq) LSP should be dropped")
	}
}

// TestSquareTopologyShortestPaths mirrors the spec's worked IGP example:
// r1-r2 (1), r1-r3 (1), r3-r4 (1), r2-r3 (1), expecting r1's table to
// prefer the direct 1-hop paths to r2/r3 and a 2-hop path to r4.
func TestSquareTopologyShortestPaths(t *testing.T) {
	r1 := netip.MustParseAddr("10.0.1.1")
	r2 := netip.MustParseAddr("10.0.1.2")
	r3 := netip.MustParseAddr("10.0.1.3")
	r4 := netip.MustParseAddr("10.0.1.4")

	g := New("r1", r1, testLogger(t))
	g.RegisterPort(1, 1) // toward r2
	g.RegisterPort(2, 1) // toward r3

	g.ProcessHelloReply(1, trie.Prefix{Addr: r2, Bits: 32})
	g.ProcessHelloReply(2, trie.Prefix{Addr: r3, Bits: 32})

	// r2 and r3 each flood an LSP describing their own direct neighbors,
	// which is how r1 learns about r4 two hops away via r3.
	g.ProcessLSP(wire.LSP{
		Origin: r2,
		Seq:    0,
		Neighbors: []wire.LSPNeighbor{
			{Cost: 1, Prefix: trie.Prefix{Addr: r1, Bits: 32}},
			{Cost: 1, Prefix: trie.Prefix{Addr: r3, Bits: 32}},
		},
	})
	g.ProcessLSP(wire.LSP{
		Origin: r3,
		Seq:    0,
		Neighbors: []wire.LSPNeighbor{
			{Cost: 1, Prefix: trie.Prefix{Addr: r1, Bits: 32}},
			{Cost: 1, Prefix: trie.Prefix{Addr: r2, Bits: 32}},
			{Cost: 1, Prefix: trie.Prefix{Addr: r4, Bits: 32}},
		},
	})

	table := g.RoutingTable()

	check := func(addr netip.Addr, wantPort int, wantDist uint32) {
		t.Helper()
		entry, ok := table[trie.Prefix{Addr: addr, Bits: 32}]
		if !ok {
			t.Fatalf("missing route to %s", addr)
		}
		if entry.Port != wantPort || entry.Distance != wantDist {
			t.Fatalf("route to %s = %+v, want port=%d distance=%d", addr, entry, wantPort, wantDist)
		}
	}

	check(r1, 0, 0)
	check(r2, 1, 1)
	check(r3, 2, 1)
	check(r4, 2, 2)
}

func TestTickDemotesNeighborAfterMissedHellos(t *testing.T) {
	self := netip.MustParseAddr("10.0.1.1")
	other := trie.MustPrefix("10.0.1.2", 32)
	g := New("r1", self, testLogger(t))
	g.RegisterPort(1, 1)
	g.ProcessHelloReply(1, other)

	if _, ok := g.GetPort(other.Addr); !ok {
		t.Fatal("expected route installed before any ticks pass")
	}

	var floods []wire.LSP
	for i := 0; i < MissedHelloThreshold; i++ {
		floods = g.Tick()
	}

	if len(floods) == 0 {
		t.Fatal("expected a re-flooded LSP after demoting the neighbor")
	}
	if _, ok := g.GetPort(other.Addr); ok {
		t.Fatal("expected route removed after neighbor demotion")
	}
}

func TestTickResetsStreakWhenHeardFrom(t *testing.T) {
	self := netip.MustParseAddr("10.0.1.1")
	other := trie.MustPrefix("10.0.1.2", 32)
	g := New("r1", self, testLogger(t))
	g.RegisterPort(1, 1)
	g.ProcessHelloReply(1, other)

	for i := 0; i < MissedHelloThreshold-1; i++ {
		g.Tick()
	}
	// Hearing from the neighbor again before the threshold resets the streak.
	g.ProcessHelloReply(1, other)
	floods := g.Tick()

	if len(floods) != 0 {
		t.Fatal("streak should have reset, neighbor should not be demoted yet")
	}
	if _, ok := g.GetPort(other.Addr); !ok {
		t.Fatal("route should still be present")
	}
}
