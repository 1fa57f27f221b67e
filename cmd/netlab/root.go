package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "v0.1.0"
	commit  = "dev"
)

var rootCmd = &cobra.Command{
	Use:   "netlab",
	Short: "Simulated packet-switched internetwork",
	Long: `netlab runs a small internetwork of simulated switches and routers as
concurrent actors over in-process links.

Each scenario subcommand builds a fixed topology, lets it converge, and
prints the resulting spanning-tree, routing, or BGP state. There is no
topology file format: topologies are wired up directly in Go.`,
	Version: version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("netlab %s (commit: %s)\n", version, commit))
	rootCmd.PersistentFlags().StringVar(&globalOpts.logSources, "log", "", "comma-separated log sources to show (OSPF,SPT,PING,IP,BGP,ARP,DEBUG); empty uses the config file's sources, or shows all")
	rootCmd.PersistentFlags().BoolVar(&globalOpts.noColor, "no-color", false, "disable colorized log output")
	rootCmd.PersistentFlags().StringVar(&globalOpts.journalPath, "journal", "", "optional bbolt path recording every command issued to the network")
	rootCmd.PersistentFlags().StringVar(&globalOpts.configPath, "config", "", "optional labconfig YAML overriding link/threshold tuning and log settings")
}

var globalOpts struct {
	logSources  string
	noColor     bool
	journalPath string
	configPath  string
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
