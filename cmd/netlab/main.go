// Command netlab runs fixed-topology demonstrations of the network
// simulation engine: spanning-tree convergence, link-state routing, and
// eBGP/iBGP policy routing, each as its own subcommand.
package main

func main() {
	Execute()
}
