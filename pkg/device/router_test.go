package device

import (
	"net/netip"
	"testing"
	"time"

	"github.com/packetloom/netlab/pkg/link"
	"github.com/packetloom/netlab/pkg/trie"
	"github.com/packetloom/netlab/pkg/wire"
)

func waitForIGPConvergence() { time.Sleep(8 * routerTick) }

func newTestRouter(t *testing.T, name string, as int, ip string, mac, id uint32) *Router {
	logger := testLogger(t)
	r := NewRouter(name, as, netip.MustParseAddr(ip), wire.MAC(mac), id, logger)
	go r.Run()
	t.Cleanup(r.Stop)
	return r
}

func TestTwoRoutersDiscoverEachOtherOverIGP(t *testing.T) {
	r1 := newTestRouter(t, "r1", 1, "10.0.1.1", 1, 1)
	r2 := newTestRouter(t, "r2", 1, "10.0.1.2", 2, 2)

	a1, a2 := link.New(link.DefaultCapacity)
	r1.Send(AddLink{Port: 1, Cost: 1, Endpoint: a1})
	r2.Send(AddLink{Port: 1, Cost: 1, Endpoint: a2})

	waitForIGPConvergence()

	resp := r1.Send(RoutingTableQuery{}).(RoutingTableResponse)
	entry, ok := resp.Table[trie.Prefix{Addr: netip.MustParseAddr("10.0.1.2"), Bits: 32}]
	if !ok {
		t.Fatalf("expected r1 to learn a route to r2, table=%v", resp.Table)
	}
	if entry.Port != 1 || entry.Distance != 1 {
		t.Fatalf("expected route via port 1 distance 1, got %+v", entry)
	}
}

func TestSquareTopologyShortestPaths(t *testing.T) {
	r1 := newTestRouter(t, "r1", 1, "10.0.1.1", 1, 1)
	r2 := newTestRouter(t, "r2", 1, "10.0.1.2", 2, 2)
	r3 := newTestRouter(t, "r3", 1, "10.0.1.3", 3, 3)
	r4 := newTestRouter(t, "r4", 1, "10.0.1.4", 4, 4)

	link12a, link12b := link.New(link.DefaultCapacity)
	r1.Send(AddLink{Port: 1, Cost: 1, Endpoint: link12a})
	r2.Send(AddLink{Port: 1, Cost: 1, Endpoint: link12b})

	link13a, link13b := link.New(link.DefaultCapacity)
	r1.Send(AddLink{Port: 2, Cost: 1, Endpoint: link13a})
	r3.Send(AddLink{Port: 1, Cost: 1, Endpoint: link13b})

	link34a, link34b := link.New(link.DefaultCapacity)
	r3.Send(AddLink{Port: 2, Cost: 1, Endpoint: link34a})
	r4.Send(AddLink{Port: 1, Cost: 1, Endpoint: link34b})

	link23a, link23b := link.New(link.DefaultCapacity)
	r2.Send(AddLink{Port: 2, Cost: 1, Endpoint: link23a})
	r3.Send(AddLink{Port: 3, Cost: 1, Endpoint: link23b})

	waitForIGPConvergence()

	resp := r1.Send(RoutingTableQuery{}).(RoutingTableResponse)
	check := func(addr string, wantDist uint32) {
		t.Helper()
		entry, ok := resp.Table[trie.Prefix{Addr: netip.MustParseAddr(addr), Bits: 32}]
		if !ok {
			t.Fatalf("missing route to %s, table=%v", addr, resp.Table)
		}
		if entry.Distance != wantDist {
			t.Fatalf("route to %s: got distance %d, want %d", addr, entry.Distance, wantDist)
		}
	}
	check("10.0.1.1", 0)
	check("10.0.1.2", 1)
	check("10.0.1.3", 1)
	check("10.0.1.4", 2)
}

func TestEBGPPolicyTriangleInstallsExpectedBestRoutes(t *testing.T) {
	// r2 is provider of r1 and r4; r4 is provider of r3; r1 peers with r4.
	r1 := newTestRouter(t, "r1", 1, "10.0.1.1", 1, 1)
	r2 := newTestRouter(t, "r2", 2, "10.0.2.1", 2, 2)
	r3 := newTestRouter(t, "r3", 3, "10.0.3.1", 3, 3)
	r4 := newTestRouter(t, "r4", 4, "10.0.4.1", 4, 4)

	l21a, l21b := link.New(link.DefaultCapacity) // r2 <-customer- r1
	r2.Send(AddCustomer{Port: 1, OtherIP: netip.MustParseAddr("10.0.1.1"), Endpoint: l21a})
	r1.Send(AddProvider{Port: 1, OtherIP: netip.MustParseAddr("10.0.2.1"), Endpoint: l21b})

	l24a, l24b := link.New(link.DefaultCapacity) // r2 <-customer- r4
	r2.Send(AddCustomer{Port: 2, OtherIP: netip.MustParseAddr("10.0.4.1"), Endpoint: l24a})
	r4.Send(AddProvider{Port: 1, OtherIP: netip.MustParseAddr("10.0.2.1"), Endpoint: l24b})

	l43a, l43b := link.New(link.DefaultCapacity) // r4 <-customer- r3
	r4.Send(AddCustomer{Port: 2, OtherIP: netip.MustParseAddr("10.0.3.1"), Endpoint: l43a})
	r3.Send(AddProvider{Port: 1, OtherIP: netip.MustParseAddr("10.0.4.1"), Endpoint: l43b})

	l14a, l14b := link.New(link.DefaultCapacity) // r1 <-peer- r4
	r1.Send(AddPeerLink{Port: 2, OtherIP: netip.MustParseAddr("10.0.4.1"), Endpoint: l14a})
	r4.Send(AddPeerLink{Port: 3, OtherIP: netip.MustParseAddr("10.0.1.1"), Endpoint: l14b})

	waitForIGPConvergence()

	r1.Send(AnnouncePrefix{Prefix: trie.MustPrefix("10.0.1.0", 24)})

	waitForIGPConvergence()

	prefix := trie.MustPrefix("10.0.1.0", 24)

	r4Routes := r4.Send(BGPRoutesQuery{}).(BGPRoutesResponse)
	best4, ok := r4Routes.Best[prefix]
	if !ok {
		t.Fatalf("expected r4 to have a best route for %s", prefix)
	}
	if best4.LocalPref != 100 {
		t.Fatalf("expected r4's route learned via peer to have pref=100, got %d", best4.LocalPref)
	}

	r2Routes := r2.Send(BGPRoutesQuery{}).(BGPRoutesResponse)
	best2, ok := r2Routes.Best[prefix]
	if !ok {
		t.Fatalf("expected r2 to have a best route for %s", prefix)
	}
	if best2.LocalPref != 150 {
		t.Fatalf("expected r2's route learned via customer to have pref=150, got %d", best2.LocalPref)
	}

	r3Routes := r3.Send(BGPRoutesQuery{}).(BGPRoutesResponse)
	best3, ok := r3Routes.Best[prefix]
	if !ok {
		t.Fatalf("expected r3 to have a best route for %s", prefix)
	}
	if best3.LocalPref != 50 {
		t.Fatalf("expected r3's route learned via provider to have pref=50, got %d", best3.LocalPref)
	}
}
