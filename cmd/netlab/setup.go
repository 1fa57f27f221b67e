package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/packetloom/netlab/internal/netlog"
	"github.com/packetloom/netlab/pkg/journal"
	"github.com/packetloom/netlab/pkg/labconfig"
	"github.com/packetloom/netlab/pkg/network"
)

// buildNetwork wires a Network from the persistent flags shared by every
// scenario subcommand: log filtering, optional tuning overrides, and an
// optional command journal.
func buildNetwork() (*network.Network, func(), error) {
	tuning := labconfig.Default()
	if globalOpts.configPath != "" {
		loaded, err := labconfig.Load(globalOpts.configPath)
		if err != nil {
			return nil, nil, fmt.Errorf("load labconfig: %w", err)
		}
		tuning = loaded
	}

	logger := netlog.New(os.Stdout, 4096)
	logger.SetColor(!globalOpts.noColor && tuning.ColorEnabled())
	if globalOpts.logSources != "" {
		logger.SetFilter(parseSources(globalOpts.logSources)...)
	} else if len(tuning.Sources()) > 0 {
		logger.SetFilter(tuning.Sources()...)
	}

	var store *journal.Store
	if globalOpts.journalPath != "" {
		s, err := journal.Open(globalOpts.journalPath)
		if err != nil {
			logger.Close()
			return nil, nil, fmt.Errorf("open journal: %w", err)
		}
		store = s
	}

	n := network.NewWithConfig(logger, store, tuning)
	cleanup := func() {
		n.Quit()
		store.Close()
		logger.Close()
	}
	return n, cleanup, nil
}

func parseSources(csv string) []netlog.Source {
	parts := strings.Split(csv, ",")
	out := make([]netlog.Source, 0, len(parts))
	for _, p := range parts {
		out = append(out, netlog.Source(strings.ToUpper(strings.TrimSpace(p))))
	}
	return out
}
