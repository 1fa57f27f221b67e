// Package network implements the façade from spec §4.6: the device
// registry, each device's set of bound ports, and the process logger.
// It is the only place topology is built — callers register switches
// and routers, wire links and eBGP/iBGP relationships between them, and
// issue commands, without ever touching a device actor directly.
package network

import (
	"fmt"
	"net/netip"
	"sync"
	"time"

	"github.com/packetloom/netlab/internal/neterr"
	"github.com/packetloom/netlab/internal/netlog"
	"github.com/packetloom/netlab/pkg/bgp"
	"github.com/packetloom/netlab/pkg/device"
	"github.com/packetloom/netlab/pkg/igp"
	"github.com/packetloom/netlab/pkg/journal"
	"github.com/packetloom/netlab/pkg/labconfig"
	"github.com/packetloom/netlab/pkg/link"
	"github.com/packetloom/netlab/pkg/spt"
	"github.com/packetloom/netlab/pkg/trie"
	"github.com/packetloom/netlab/pkg/wire"
)

// actor is the device-actor surface the façade drives, satisfied by
// both *device.Router and *device.Switch.
type actor interface {
	Send(cmd device.Command) device.Response
	Stop()
}

type kind int

const (
	kindSwitch kind = iota
	kindRouter
)

func (k kind) String() string {
	if k == kindRouter {
		return "router"
	}
	return "switch"
}

type entry struct {
	actor  actor
	kind   kind
	selfIP netip.Addr // zero Addr for switches
	ports  map[int]bool
}

// Network is the façade. It owns the device registry and is not itself
// an actor: every method runs on the calling goroutine and mutates the
// registry directly, serialized by mu.
type Network struct {
	mu      sync.Mutex
	devices map[string]*entry
	logger  *netlog.Logger
	journal *journal.Store
	tuning  labconfig.Config
}

// New creates an empty façade writing protocol logs through logger and,
// if j is non-nil, journaling every issued command and its response. It
// runs with the engine's default tuning; use NewWithConfig to override
// it.
func New(logger *netlog.Logger, j *journal.Store) *Network {
	return NewWithConfig(logger, j, labconfig.Default())
}

// NewWithConfig is New, but with explicit engine tuning read from
// labconfig: link buffer capacity and missed-hello threshold are
// applied. The tick interval in tuning is not applied; devices tick on
// fixed 200 ms timers.
func NewWithConfig(logger *netlog.Logger, j *journal.Store, tuning labconfig.Config) *Network {
	return &Network{
		devices: make(map[string]*entry),
		logger:  logger,
		journal: j,
		tuning:  tuning,
	}
}

// AddSwitch registers and starts a new switch named name with bridge ID
// id, per spec §4.1.
func (n *Network) AddSwitch(name string, id uint32) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, exists := n.devices[name]; exists {
		return neterr.NewConfigError("add-switch", fmt.Sprintf("device %q already registered", name))
	}
	sw := device.NewSwitch(name, id, n.logger)
	go sw.Run()
	n.devices[name] = &entry{actor: sw, kind: kindSwitch, ports: make(map[int]bool)}
	return nil
}

// AddRouter registers and starts a new router named name in AS as, at
// loopback selfIP with link-layer address selfMAC and router ID id, per
// spec §4.5.
func (n *Network) AddRouter(name string, as int, selfIP netip.Addr, selfMAC wire.MAC, id uint32) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, exists := n.devices[name]; exists {
		return neterr.NewConfigError("add-router", fmt.Sprintf("device %q already registered", name))
	}
	r := device.NewRouter(name, as, selfIP, selfMAC, id, n.logger)
	r.SetMissedHelloThreshold(n.tuning.MissedHelloThreshold)
	go r.Run()
	n.devices[name] = &entry{actor: r, kind: kindRouter, selfIP: selfIP, ports: make(map[int]bool)}
	return nil
}

func (n *Network) lookup(name string) (*entry, error) {
	e, ok := n.devices[name]
	if !ok {
		return nil, neterr.UnknownDeviceError(name)
	}
	return e, nil
}

func (n *Network) bindPort(e *entry, dev string, port int) error {
	if e.ports[port] {
		return neterr.DuplicatePortError(dev, port)
	}
	e.ports[port] = true
	return nil
}

func (n *Network) requireKind(e *entry, device, op string, want kind) error {
	if e.kind != want {
		return neterr.UnsupportedCommandError(device, op, e.kind.String())
	}
	return nil
}

// AddLink wires an internal IGP/SPT-speaking link between dev1's p1 and
// dev2's p2, at the given cost, per spec §4.6's add_link.
func (n *Network) AddLink(dev1 string, p1 int, dev2 string, p2 int, cost uint32) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	e1, err := n.lookup(dev1)
	if err != nil {
		return err
	}
	e2, err := n.lookup(dev2)
	if err != nil {
		return err
	}
	if err := n.bindPort(e1, dev1, p1); err != nil {
		return err
	}
	if err := n.bindPort(e2, dev2, p2); err != nil {
		return err
	}

	a, b := link.New(n.tuning.LinkCapacity)
	n.record(dev1, "AddLink", fmt.Sprintf("port=%d other=%s:%d cost=%d", p1, dev2, p2, cost),
		e1.actor.Send(device.AddLink{Port: p1, Cost: cost, Endpoint: a}))
	n.record(dev2, "AddLink", fmt.Sprintf("port=%d other=%s:%d cost=%d", p2, dev1, p1, cost),
		e2.actor.Send(device.AddLink{Port: p2, Cost: cost, Endpoint: b}))
	return nil
}

// AddPeerLink wires a symmetric eBGP peer relationship (local_pref 100
// on both sides) between dev1's p1 (loopback ip1) and dev2's p2
// (loopback ip2), per spec §4.4.
func (n *Network) AddPeerLink(dev1 string, p1 int, ip1 netip.Addr, dev2 string, p2 int, ip2 netip.Addr) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	e1, e2, err := n.lookupBothRouters(dev1, dev2, "AddPeerLink")
	if err != nil {
		return err
	}
	if err := n.bindPort(e1, dev1, p1); err != nil {
		return err
	}
	if err := n.bindPort(e2, dev2, p2); err != nil {
		return err
	}

	a, b := link.New(n.tuning.LinkCapacity)
	n.record(dev1, "AddPeerLink", fmt.Sprintf("port=%d peer=%s", p1, ip2),
		e1.actor.Send(device.AddPeerLink{Port: p1, OtherIP: ip2, Endpoint: a}))
	n.record(dev2, "AddPeerLink", fmt.Sprintf("port=%d peer=%s", p2, ip1),
		e2.actor.Send(device.AddPeerLink{Port: p2, OtherIP: ip1, Endpoint: b}))
	return nil
}

// AddProviderCustomer wires an asymmetric eBGP relationship: provider
// learns providerDev is customer's provider (local_pref 150 import at
// the provider, 50 at the customer), per spec §4.4.
func (n *Network) AddProviderCustomer(providerDev string, providerPort int, providerIP netip.Addr, customerDev string, customerPort int, customerIP netip.Addr) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	provider, customer, err := n.lookupBothRouters(providerDev, customerDev, "AddProviderCustomer")
	if err != nil {
		return err
	}
	if err := n.bindPort(provider, providerDev, providerPort); err != nil {
		return err
	}
	if err := n.bindPort(customer, customerDev, customerPort); err != nil {
		return err
	}

	a, b := link.New(n.tuning.LinkCapacity)
	n.record(providerDev, "AddCustomer", fmt.Sprintf("port=%d customer=%s", providerPort, customerIP),
		provider.actor.Send(device.AddCustomer{Port: providerPort, OtherIP: customerIP, Endpoint: a}))
	n.record(customerDev, "AddProvider", fmt.Sprintf("port=%d provider=%s", customerPort, providerIP),
		customer.actor.Send(device.AddProvider{Port: customerPort, OtherIP: providerIP, Endpoint: b}))
	return nil
}

func (n *Network) lookupBothRouters(dev1, dev2, op string) (*entry, *entry, error) {
	e1, err := n.lookup(dev1)
	if err != nil {
		return nil, nil, err
	}
	e2, err := n.lookup(dev2)
	if err != nil {
		return nil, nil, err
	}
	if err := n.requireKind(e1, dev1, op, kindRouter); err != nil {
		return nil, nil, err
	}
	if err := n.requireKind(e2, dev2, op, kindRouter); err != nil {
		return nil, nil, err
	}
	return e1, e2, nil
}

// AddIBGP registers dev1 and dev2 as full-mesh iBGP peers of each other,
// by their already-registered loopback addresses. No link is created:
// iBGP messages travel over the already-converged IGP, per spec §4.4.
func (n *Network) AddIBGP(dev1, dev2 string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	e1, e2, err := n.lookupBothRouters(dev1, dev2, "AddIBGP")
	if err != nil {
		return err
	}
	n.record(dev1, "AddIBGP", fmt.Sprintf("peer=%s", e2.selfIP), e1.actor.Send(device.AddIBGP{PeerIP: e2.selfIP}))
	n.record(dev2, "AddIBGP", fmt.Sprintf("peer=%s", e1.selfIP), e2.actor.Send(device.AddIBGP{PeerIP: e1.selfIP}))
	return nil
}

// AddIBGPMesh wires every pair in devs as full-mesh iBGP peers.
func (n *Network) AddIBGPMesh(devs ...string) error {
	for i := 0; i < len(devs); i++ {
		for j := i + 1; j < len(devs); j++ {
			if err := n.AddIBGP(devs[i], devs[j]); err != nil {
				return err
			}
		}
	}
	return nil
}

// AnnouncePrefix has dev self-originate prefix into BGP, per spec §4.6.
func (n *Network) AnnouncePrefix(dev string, prefix trie.Prefix) error {
	n.mu.Lock()
	e, err := n.lookup(dev)
	if err == nil {
		err = n.requireKind(e, dev, "AnnouncePrefix", kindRouter)
	}
	n.mu.Unlock()
	if err != nil {
		return err
	}
	n.record(dev, "AnnouncePrefix", prefix.String(), e.actor.Send(device.AnnouncePrefix{Prefix: prefix}))
	return nil
}

// Ping originates a Ping from dev toward dst, per spec §4.6.
func (n *Network) Ping(dev string, dst netip.Addr) error {
	n.mu.Lock()
	e, err := n.lookup(dev)
	if err == nil {
		err = n.requireKind(e, dev, "Ping", kindRouter)
	}
	n.mu.Unlock()
	if err != nil {
		return err
	}
	n.record(dev, "Ping", dst.String(), e.actor.Send(device.Ping{Dst: dst}))
	return nil
}

// RoutingTable returns dev's current IGP routing table.
func (n *Network) RoutingTable(dev string) (map[trie.Prefix]igp.RouteEntry, error) {
	n.mu.Lock()
	e, err := n.lookup(dev)
	if err == nil {
		err = n.requireKind(e, dev, "RoutingTable", kindRouter)
	}
	n.mu.Unlock()
	if err != nil {
		return nil, err
	}
	resp := e.actor.Send(device.RoutingTableQuery{})
	n.record(dev, "RoutingTable", "", resp)
	return resp.(device.RoutingTableResponse).Table, nil
}

// BGPRoutes returns dev's current best BGP routes.
func (n *Network) BGPRoutes(dev string) (map[trie.Prefix]bgp.Route, error) {
	n.mu.Lock()
	e, err := n.lookup(dev)
	if err == nil {
		err = n.requireKind(e, dev, "BGPRoutes", kindRouter)
	}
	n.mu.Unlock()
	if err != nil {
		return nil, err
	}
	resp := e.actor.Send(device.BGPRoutesQuery{})
	n.record(dev, "BGPRoutes", "", resp)
	return resp.(device.BGPRoutesResponse).Best, nil
}

// StatePorts returns dev's current per-port spanning-tree state.
func (n *Network) StatePorts(dev string) (map[int]spt.PortState, error) {
	n.mu.Lock()
	e, err := n.lookup(dev)
	if err == nil {
		err = n.requireKind(e, dev, "StatePorts", kindSwitch)
	}
	n.mu.Unlock()
	if err != nil {
		return nil, err
	}
	resp := e.actor.Send(device.StatePortsQuery{})
	n.record(dev, "StatePorts", "", resp)
	return resp.(device.StatePortsResponse).States, nil
}

// Quit terminates every registered device and empties the registry.
func (n *Network) Quit() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for name, e := range n.devices {
		n.record(name, "Quit", "", e.actor.Send(device.Quit{}))
		e.actor.Stop()
	}
	n.devices = make(map[string]*entry)
}

func (n *Network) record(dev, cmd, detail string, resp device.Response) {
	if n.journal == nil {
		return
	}
	_ = n.journal.Record(dev, cmd, detail, fmt.Sprintf("%T", resp), time.Now())
}
