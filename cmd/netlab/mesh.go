package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var meshCmd = &cobra.Command{
	Use:   "mesh",
	Short: "Converge a four-switch loop via spanning tree and print port roles",
	Long: `Builds four switches wired in a loop (s1-s2-s3-s4-s1) plus a
diagonal s1-s3 link, lets BPDUs converge, then prints every switch's
per-port spanning-tree role. Two ports block, one on each of the two
redundant links.`,
	RunE: runMesh,
}

func init() {
	rootCmd.AddCommand(meshCmd)
}

func runMesh(cmd *cobra.Command, args []string) error {
	n, cleanup, err := buildNetwork()
	if err != nil {
		return err
	}
	defer cleanup()

	switches := []string{"s1", "s2", "s3", "s4"}
	ids := []uint32{1, 2, 3, 4}
	for i, name := range switches {
		if err := n.AddSwitch(name, ids[i]); err != nil {
			return fmt.Errorf("add %s: %w", name, err)
		}
	}

	type link struct {
		dev1 string
		p1   int
		dev2 string
		p2   int
	}
	links := []link{
		{"s1", 1, "s2", 1},
		{"s2", 2, "s3", 1},
		{"s3", 2, "s4", 1},
		{"s4", 2, "s1", 2},
		{"s1", 3, "s3", 3},
	}
	for _, l := range links {
		if err := n.AddLink(l.dev1, l.p1, l.dev2, l.p2, 1); err != nil {
			return fmt.Errorf("link %s-%s: %w", l.dev1, l.dev2, err)
		}
	}

	fmt.Println("converging spanning tree...")
	time.Sleep(2 * time.Second)

	for _, name := range switches {
		states, err := n.StatePorts(name)
		if err != nil {
			return fmt.Errorf("state-ports %s: %w", name, err)
		}
		fmt.Printf("%s:\n", name)
		for port, st := range states {
			fmt.Printf("  port %d: %s\n", port, st)
		}
	}
	return nil
}
