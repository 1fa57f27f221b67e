package network

import (
	"io"
	"net/netip"
	"testing"
	"time"

	"github.com/packetloom/netlab/internal/neterr"
	"github.com/packetloom/netlab/internal/netlog"
	"github.com/packetloom/netlab/pkg/trie"
	"github.com/packetloom/netlab/pkg/wire"
)

func testLogger(t *testing.T) *netlog.Logger {
	l := netlog.New(io.Discard, 64)
	t.Cleanup(l.Close)
	return l
}

func newTestNetwork(t *testing.T) *Network {
	n := New(testLogger(t), nil)
	t.Cleanup(n.Quit)
	return n
}

func TestAddLinkRejectsUnknownDevice(t *testing.T) {
	n := newTestNetwork(t)
	if err := n.AddRouter("r1", 1, netip.MustParseAddr("10.0.1.1"), wire.MAC(1), 1); err != nil {
		t.Fatalf("AddRouter() error = %v", err)
	}
	err := n.AddLink("r1", 1, "ghost", 1, 1)
	var cfgErr *neterr.ConfigError
	if err == nil {
		t.Fatal("expected an error linking to an unregistered device")
	}
	if _, ok := err.(*neterr.ConfigError); !ok {
		_ = cfgErr
		t.Fatalf("expected a *neterr.ConfigError, got %T: %v", err, err)
	}
}

func TestAddLinkRejectsDuplicatePort(t *testing.T) {
	n := newTestNetwork(t)
	mustAddRouter(t, n, "r1", 1, "10.0.1.1", 1, 1)
	mustAddRouter(t, n, "r2", 1, "10.0.1.2", 2, 2)
	mustAddRouter(t, n, "r3", 1, "10.0.1.3", 3, 3)

	if err := n.AddLink("r1", 1, "r2", 1, 1); err != nil {
		t.Fatalf("first AddLink() error = %v", err)
	}
	if err := n.AddLink("r1", 1, "r3", 2, 1); err == nil {
		t.Fatal("expected duplicate-port error reusing r1's port 1")
	}
}

func TestPingUnsupportedOnSwitch(t *testing.T) {
	n := newTestNetwork(t)
	if err := n.AddSwitch("s1", 1); err != nil {
		t.Fatalf("AddSwitch() error = %v", err)
	}
	if err := n.Ping("s1", netip.MustParseAddr("10.0.1.1")); err == nil {
		t.Fatal("expected Ping on a switch to be rejected")
	}
}

func TestStatePortsUnsupportedOnRouter(t *testing.T) {
	n := newTestNetwork(t)
	mustAddRouter(t, n, "r1", 1, "10.0.1.1", 1, 1)
	if _, err := n.StatePorts("r1"); err == nil {
		t.Fatal("expected StatePorts on a router to be rejected")
	}
}

func TestSquareTopologyConvergesThroughFacade(t *testing.T) {
	n := newTestNetwork(t)
	mustAddRouter(t, n, "r1", 1, "10.0.1.1", 1, 1)
	mustAddRouter(t, n, "r2", 1, "10.0.1.2", 2, 2)
	mustAddRouter(t, n, "r3", 1, "10.0.1.3", 3, 3)
	mustAddRouter(t, n, "r4", 1, "10.0.1.4", 4, 4)

	must(t, n.AddLink("r1", 1, "r2", 1, 1))
	must(t, n.AddLink("r1", 2, "r3", 1, 1))
	must(t, n.AddLink("r3", 2, "r4", 1, 1))
	must(t, n.AddLink("r2", 2, "r3", 3, 1))

	time.Sleep(2 * time.Second)

	table, err := n.RoutingTable("r1")
	if err != nil {
		t.Fatalf("RoutingTable() error = %v", err)
	}
	entry, ok := table[trie.Prefix{Addr: netip.MustParseAddr("10.0.1.4"), Bits: 32}]
	if !ok {
		t.Fatalf("expected r1 to have converged a route to r4, table=%v", table)
	}
	if entry.Distance != 2 {
		t.Fatalf("expected distance 2 to r4, got %d", entry.Distance)
	}

	if err := n.Ping("r1", netip.MustParseAddr("10.0.1.4")); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
}

func TestIBGPFullMeshScenario(t *testing.T) {
	// AS1 = {r1,r2,r3} full-mesh iBGP; r4 in AS2 is customer of r1;
	// r5 in AS3 is customer of r3. Mirrors the iBGP scenario of spec §8.
	n := newTestNetwork(t)
	mustAddRouter(t, n, "r1", 1, "10.0.1.1", 1, 1)
	mustAddRouter(t, n, "r2", 1, "10.0.1.2", 2, 2)
	mustAddRouter(t, n, "r3", 1, "10.0.1.3", 3, 3)
	mustAddRouter(t, n, "r4", 2, "10.0.2.1", 4, 4)
	mustAddRouter(t, n, "r5", 3, "10.0.3.1", 5, 5)

	must(t, n.AddLink("r1", 1, "r2", 1, 1))
	must(t, n.AddLink("r2", 2, "r3", 1, 1))
	must(t, n.AddLink("r1", 2, "r3", 2, 1))

	must(t, n.AddProviderCustomer("r1", 3, netip.MustParseAddr("10.0.1.1"), "r4", 1, netip.MustParseAddr("10.0.2.1")))
	must(t, n.AddProviderCustomer("r3", 3, netip.MustParseAddr("10.0.1.3"), "r5", 1, netip.MustParseAddr("10.0.3.1")))

	must(t, n.AddIBGPMesh("r1", "r2", "r3"))

	time.Sleep(2 * time.Second)

	must(t, n.AnnouncePrefix("r4", trie.MustPrefix("10.0.2.0", 24)))
	must(t, n.AnnouncePrefix("r5", trie.MustPrefix("10.0.3.0", 24)))

	time.Sleep(2 * time.Second)

	best2, err := n.BGPRoutes("r2")
	if err != nil {
		t.Fatalf("BGPRoutes(r2) error = %v", err)
	}
	route, ok := best2[trie.MustPrefix("10.0.2.0", 24)]
	if !ok {
		t.Fatal("expected r2 to have a route for 10.0.2.0/24 via iBGP")
	}
	if !route.FromIBGP || route.NextHop != netip.MustParseAddr("10.0.1.1") || route.LocalPref != 150 {
		t.Fatalf("unexpected r2 route for 10.0.2.0/24: %+v", route)
	}

	route, ok = best2[trie.MustPrefix("10.0.3.0", 24)]
	if !ok {
		t.Fatal("expected r2 to have a route for 10.0.3.0/24 via iBGP")
	}
	if !route.FromIBGP || route.NextHop != netip.MustParseAddr("10.0.1.3") || route.LocalPref != 150 {
		t.Fatalf("unexpected r2 route for 10.0.3.0/24: %+v", route)
	}
}

func mustAddRouter(t *testing.T, n *Network, name string, as int, ip string, mac uint32, id uint32) {
	t.Helper()
	if err := n.AddRouter(name, as, netip.MustParseAddr(ip), wire.MAC(mac), id); err != nil {
		t.Fatalf("AddRouter(%s) error = %v", name, err)
	}
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
