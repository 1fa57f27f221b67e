package device

import (
	"time"

	"github.com/packetloom/netlab/internal/neterr"
	"github.com/packetloom/netlab/internal/netlog"
	"github.com/packetloom/netlab/pkg/link"
	"github.com/packetloom/netlab/pkg/spt"
	"github.com/packetloom/netlab/pkg/wire"
)

// bpduTick is the periodic BPDU emission interval from spec §4.1.
const bpduTick = 200 * time.Millisecond

// pollTick bounds how often idle port polling happens, so the event
// loop yields the CPU between rounds instead of busy-spinning.
const pollTick = 2 * time.Millisecond

// Switch is a spanning-tree bridge actor: one goroutine owns the
// spt.Switch state and every port's link endpoint.
type Switch struct {
	name   string
	logger *netlog.Logger

	state *spt.Switch
	ports map[int]*link.Endpoint
	cost  map[int]uint32

	commands chan pending
	quit     chan struct{}
	done     chan struct{}
}

// NewSwitch creates a switch actor with the given self ID, not yet
// started.
func NewSwitch(name string, selfID uint32, logger *netlog.Logger) *Switch {
	return &Switch{
		name:     name,
		logger:   logger,
		state:    spt.NewSwitch(selfID),
		ports:    make(map[int]*link.Endpoint),
		cost:     make(map[int]uint32),
		commands: make(chan pending, 64),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Stop signals the event loop to exit without going through Quit, for
// façade-level cleanup when a device never acknowledged its command.
func (s *Switch) Stop() {
	select {
	case <-s.quit:
	default:
		close(s.quit)
	}
}

// Send enqueues cmd and blocks for its response.
func (s *Switch) Send(cmd Command) Response {
	reply := make(chan Response, 1)
	select {
	case s.commands <- pending{cmd: cmd, reply: reply}:
	case <-s.done:
		return Ack{}
	}
	select {
	case r := <-reply:
		return r
	case <-s.done:
		return Ack{}
	}
}

// Run is the switch's event loop, per spec §4.5's router loop shape
// adapted to switch behavior: drain one command, poll every port,
// periodically re-emit BPDUs on Designated ports.
func (s *Switch) Run() {
	defer close(s.done)
	bpduTicker := time.NewTicker(bpduTick)
	defer bpduTicker.Stop()
	pollTicker := time.NewTicker(pollTick)
	defer pollTicker.Stop()

	for {
		select {
		case <-s.quit:
			return
		case p := <-s.commands:
			if s.handleCommand(p) {
				return
			}
		case <-bpduTicker.C:
			s.emitBPDUs()
		case <-pollTicker.C:
			s.pollPorts()
		}
	}
}

func (s *Switch) handleCommand(p pending) (stop bool) {
	switch cmd := p.cmd.(type) {
	case AddLink:
		s.ports[cmd.Port] = cmd.Endpoint
		s.cost[cmd.Port] = cmd.Cost
		s.state.RegisterPort(cmd.Port, cmd.Cost)
		p.reply <- Ack{}
	case StatePortsQuery:
		p.reply <- StatePortsResponse{States: s.state.States()}
	case Quit:
		for _, ep := range s.ports {
			ep.Close()
		}
		p.reply <- Ack{}
		return true
	default:
		p.reply <- Ack{}
	}
	return false
}

func (s *Switch) pollPorts() {
	for port, ep := range s.ports {
		frame, ok := ep.TryRecv()
		if !ok {
			continue
		}
		s.handleFrame(port, frame)
	}
}

func (s *Switch) handleFrame(port int, frame wire.Frame) {
	bpdu, isBPDU := frame.(wire.BPDUFrame)
	if isBPDU {
		cost := s.cost[port]
		if s.state.ReceiveBPDU(port, bpdu.BPDU, cost) {
			s.emitBPDUs()
		}
		return
	}
	if s.state.PortState(port) == spt.Blocked {
		return // blocked ports drop all frames in both directions
	}
	for q, ep := range s.ports {
		if q == port {
			continue
		}
		if s.state.PortState(q) == spt.Blocked {
			continue
		}
		if err := ep.Send(frame); err != nil {
			s.logger.Log(netlog.SourceDebug, "%s dropping frame on port %d: %v", s.name, q, neterr.ErrPeerGone)
		}
	}
}

func (s *Switch) emitBPDUs() {
	for port, b := range s.state.OutgoingBPDUs() {
		ep, ok := s.ports[port]
		if !ok {
			continue
		}
		if err := ep.Send(wire.BPDUFrame{BPDU: b}); err != nil {
			s.logger.Log(netlog.SourceDebug, "%s dropping BPDU on port %d: %v", s.name, port, neterr.ErrPeerGone)
		}
	}
}
