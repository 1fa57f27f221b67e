// Package spt implements the switch-side spanning-tree protocol state
// machine described in spec §4.1: electing a single root bridge and a
// loop-free forwarding subgraph from periodic BPDU exchange. It is pure
// state — no goroutines, no channels — so spec §8's SPT convergence
// property can be tested by feeding it BPDUs directly.
package spt

import "github.com/packetloom/netlab/pkg/wire"

// PortState is one of a switch port's three spanning-tree roles.
type PortState int

const (
	// Designated is the default: the port forwards and emits BPDUs.
	Designated PortState = iota
	// Root is the single port on the path toward the root bridge.
	Root
	// Blocked ports neither forward data nor accept it, in either direction.
	Blocked
)

func (s PortState) String() string {
	switch s {
	case Root:
		return "Root"
	case Blocked:
		return "Blocked"
	default:
		return "Designated"
	}
}

type portRecord struct {
	bpdu  wire.BPDU
	cost  uint32
	known bool
}

// Switch is one bridge's spanning-tree state.
type Switch struct {
	selfID   uint32
	bpduBest wire.BPDU
	rootPort int

	ports map[int]*portRecord // every bound port, registered or not yet heard from
}

// NewSwitch creates a switch with the initial self-is-root assumption
// from spec §4.1: bpdu_best = (self_id, 0, self_id, 0), root_port = 0.
func NewSwitch(selfID uint32) *Switch {
	return &Switch{
		selfID:   selfID,
		bpduBest: wire.BPDU{Root: selfID, Distance: 0, Switch: selfID, SenderPort: 0},
		rootPort: 0,
		ports:    make(map[int]*portRecord),
	}
}

// RegisterPort binds port with the given link cost, starting Designated
// as every freshly added link does before any BPDU has been exchanged.
func (s *Switch) RegisterPort(port int, cost uint32) {
	if _, ok := s.ports[port]; ok {
		return
	}
	s.ports[port] = &portRecord{cost: cost}
}

func (s *Switch) recordFor(port int) *portRecord {
	r, ok := s.ports[port]
	if !ok {
		r = &portRecord{}
		s.ports[port] = r
	}
	return r
}

// currentBest is the BPDU to beat: the root port's stored BPDU adjusted
// by its link cost, or bpdu_best itself if no root BPDU is stored yet.
func (s *Switch) currentBest() wire.BPDU {
	if r, ok := s.ports[s.rootPort]; ok && r.known {
		return wire.BPDU{
			Root:       r.bpdu.Root,
			Distance:   r.bpdu.Distance + r.cost,
			Switch:     r.bpdu.Switch,
			SenderPort: r.bpdu.SenderPort,
		}
	}
	return s.bpduBest
}

// ReceiveBPDU processes one BPDU arriving on port at the given link
// cost, per spec §4.1 steps 1-4. It reports whether the switch's own
// BPDUs changed and must be rebroadcast on every Designated port.
func (s *Switch) ReceiveBPDU(port int, b wire.BPDU, cost uint32) (broadcast bool) {
	rec := s.recordFor(port)
	rec.cost = cost

	if rec.known && rec.bpdu.Less(b) {
		return false // step 1: strictly-better stored BPDU wins, discard
	}
	rec.bpdu = b
	rec.known = true // step 2

	adjusted := wire.BPDU{Root: b.Root, Distance: b.Distance + cost, Switch: b.Switch, SenderPort: b.SenderPort}
	if adjusted.Less(s.currentBest()) || port == s.rootPort {
		s.bpduBest = wire.BPDU{Root: b.Root, Distance: b.Distance + cost, Switch: s.selfID, SenderPort: 0}
		s.rootPort = port
		broadcast = true
	}

	return broadcast
}

// PortState derives port p's current role, per spec §4.1 step 4.
func (s *Switch) PortState(p int) PortState {
	if p == s.rootPort {
		return Root
	}
	rec, ok := s.ports[p]
	if !ok || !rec.known {
		return Designated
	}
	if rec.bpdu.Less(s.bpduBest) {
		return Blocked
	}
	return Designated
}

// States snapshots every registered port's role, for the StatePorts
// command.
func (s *Switch) States() map[int]PortState {
	out := make(map[int]PortState, len(s.ports))
	for p := range s.ports {
		out[p] = s.PortState(p)
	}
	return out
}

// OutgoingBPDUs builds the periodic BPDU emission for every Designated
// port: (bpdu_best.root, bpdu_best.distance, self_id, p).
func (s *Switch) OutgoingBPDUs() map[int]wire.BPDU {
	out := make(map[int]wire.BPDU)
	for p := range s.ports {
		if s.PortState(p) != Designated {
			continue
		}
		out[p] = wire.BPDU{Root: s.bpduBest.Root, Distance: s.bpduBest.Distance, Switch: s.selfID, SenderPort: p}
	}
	return out
}

// IsRoot reports whether this switch is itself the elected root bridge.
func (s *Switch) IsRoot() bool {
	return s.bpduBest.Root == s.selfID && s.bpduBest.Switch == s.selfID
}
