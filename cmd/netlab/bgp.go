package main

import (
	"fmt"
	"net/netip"
	"time"

	"github.com/packetloom/netlab/pkg/trie"
	"github.com/packetloom/netlab/pkg/wire"
	"github.com/spf13/cobra"
)

var bgpCmd = &cobra.Command{
	Use:   "bgp",
	Short: "Run an iBGP full-mesh transit AS with two eBGP customers and print the resulting routes",
	Long: `Builds an AS1 transit core of three routers (r1, r2, r3) in full-mesh
iBGP, each pair also linked physically and running link-state routing. r4
(AS2) and r5 (AS3) attach to r1 and r3 respectively as eBGP customers.
Once both customers announce a prefix, the command prints the best BGP
route every AS1 router holds for each prefix, including the routes r2
learns purely via iBGP relay.`,
	RunE: runBGP,
}

func init() {
	rootCmd.AddCommand(bgpCmd)
}

func runBGP(cmd *cobra.Command, args []string) error {
	n, cleanup, err := buildNetwork()
	if err != nil {
		return err
	}
	defer cleanup()

	type router struct {
		name string
		as   int
		ip   string
		mac  uint32
		id   uint32
	}
	routers := []router{
		{"r1", 1, "10.0.1.1", 1, 1},
		{"r2", 1, "10.0.1.2", 2, 2},
		{"r3", 1, "10.0.1.3", 3, 3},
		{"r4", 2, "10.0.2.1", 4, 4},
		{"r5", 3, "10.0.3.1", 5, 5},
	}
	for _, r := range routers {
		if err := n.AddRouter(r.name, r.as, netip.MustParseAddr(r.ip), wire.MAC(r.mac), r.id); err != nil {
			return fmt.Errorf("add %s: %w", r.name, err)
		}
	}

	if err := n.AddLink("r1", 1, "r2", 1, 1); err != nil {
		return err
	}
	if err := n.AddLink("r2", 2, "r3", 1, 1); err != nil {
		return err
	}
	if err := n.AddLink("r1", 2, "r3", 2, 1); err != nil {
		return err
	}

	if err := n.AddProviderCustomer("r1", 3, netip.MustParseAddr("10.0.1.1"), "r4", 1, netip.MustParseAddr("10.0.2.1")); err != nil {
		return fmt.Errorf("provider-customer r1-r4: %w", err)
	}
	if err := n.AddProviderCustomer("r3", 3, netip.MustParseAddr("10.0.1.3"), "r5", 1, netip.MustParseAddr("10.0.3.1")); err != nil {
		return fmt.Errorf("provider-customer r3-r5: %w", err)
	}

	if err := n.AddIBGPMesh("r1", "r2", "r3"); err != nil {
		return fmt.Errorf("ibgp mesh: %w", err)
	}

	fmt.Println("converging link-state routing and iBGP sessions...")
	time.Sleep(2 * time.Second)

	customerPrefixes := []struct {
		dev    string
		prefix trie.Prefix
	}{
		{"r4", trie.MustPrefix("10.0.2.0", 24)},
		{"r5", trie.MustPrefix("10.0.3.0", 24)},
	}
	for _, c := range customerPrefixes {
		if err := n.AnnouncePrefix(c.dev, c.prefix); err != nil {
			return fmt.Errorf("announce %s from %s: %w", c.prefix, c.dev, err)
		}
	}

	fmt.Println("propagating BGP updates...")
	time.Sleep(2 * time.Second)

	for _, name := range []string{"r1", "r2", "r3"} {
		routes, err := n.BGPRoutes(name)
		if err != nil {
			return fmt.Errorf("bgp-routes %s: %w", name, err)
		}
		fmt.Printf("%s best routes:\n", name)
		for prefix, route := range routes {
			fmt.Printf("  %s via %s as-path=%v local-pref=%d ibgp=%v\n",
				prefix, route.NextHop, route.ASPath, route.LocalPref, route.FromIBGP)
		}
	}
	return nil
}
