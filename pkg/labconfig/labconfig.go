// Package labconfig loads engine-tuning configuration for the network
// simulation: tick intervals, link buffer capacity, the link-failure
// threshold, and the logger's initial source filter. It deliberately
// does not describe topology — devices, links, and BGP roles are built
// in Go by the façade's caller, not read from this file.
package labconfig

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/packetloom/netlab/internal/netlog"
)

// Default tuning values, matching the constants used when no config
// file is supplied.
const (
	DefaultTickMillis           = 200
	DefaultLinkCapacity         = 1024
	DefaultMissedHelloThreshold = 6
)

// Config holds the engine-tuning knobs read from YAML.
type Config struct {
	TickMillis           int       `yaml:"tick_millis"`
	LinkCapacity         int       `yaml:"link_capacity"`
	MissedHelloThreshold int       `yaml:"missed_hello_threshold"`
	Log                  LogConfig `yaml:"log"`
}

// LogConfig is the logger's initial source filter and color setting.
type LogConfig struct {
	Sources []string `yaml:"sources"`
	Color   *bool    `yaml:"color"`
}

// Default returns the tuning values the engine uses absent a config
// file.
func Default() Config {
	return Config{
		TickMillis:           DefaultTickMillis,
		LinkCapacity:         DefaultLinkCapacity,
		MissedHelloThreshold: DefaultMissedHelloThreshold,
	}
}

// Load reads and parses a labconfig YAML document from path, filling in
// defaults for any field left at its zero value.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read labconfig: %w", err)
	}
	return Parse(data)
}

// Parse parses a labconfig YAML document from data, filling in defaults
// for any field left at its zero value.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse labconfig: %w", err)
	}
	if cfg.TickMillis <= 0 {
		cfg.TickMillis = DefaultTickMillis
	}
	if cfg.LinkCapacity <= 0 {
		cfg.LinkCapacity = DefaultLinkCapacity
	}
	if cfg.MissedHelloThreshold <= 0 {
		cfg.MissedHelloThreshold = DefaultMissedHelloThreshold
	}
	return cfg, nil
}

// Tick returns the configured tick interval as a time.Duration.
func (c Config) Tick() time.Duration {
	return time.Duration(c.TickMillis) * time.Millisecond
}

// Sources converts the configured source names into netlog.Source
// values for Logger.SetFilter. Unrecognized names are skipped.
func (c Config) Sources() []netlog.Source {
	known := map[string]netlog.Source{
		"OSPF":  netlog.SourceOSPF,
		"SPT":   netlog.SourceSPT,
		"PING":  netlog.SourcePing,
		"DEBUG": netlog.SourceDebug,
		"IP":    netlog.SourceIP,
		"BGP":   netlog.SourceBGP,
		"ARP":   netlog.SourceARP,
	}
	out := make([]netlog.Source, 0, len(c.Log.Sources))
	for _, name := range c.Log.Sources {
		if s, ok := known[name]; ok {
			out = append(out, s)
		}
	}
	return out
}

// ColorEnabled reports whether colorized output was requested, defaulting
// to true when unset.
func (c Config) ColorEnabled() bool {
	if c.Log.Color == nil {
		return true
	}
	return *c.Log.Color
}
