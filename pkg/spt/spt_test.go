package spt

import (
	"testing"

	"github.com/packetloom/netlab/pkg/wire"
)

func TestBPDULessLexicographic(t *testing.T) {
	cases := []struct {
		a, b wire.BPDU
		less bool
	}{
		{wire.BPDU{Root: 1}, wire.BPDU{Root: 2}, true},
		{wire.BPDU{Root: 2}, wire.BPDU{Root: 1}, false},
		{wire.BPDU{Root: 1, Distance: 1}, wire.BPDU{Root: 1, Distance: 2}, true},
		{wire.BPDU{Root: 1, Distance: 1, Switch: 5}, wire.BPDU{Root: 1, Distance: 1, Switch: 3}, false},
		{wire.BPDU{Root: 1, Distance: 1, Switch: 3, SenderPort: 2}, wire.BPDU{Root: 1, Distance: 1, Switch: 3, SenderPort: 5}, true},
	}
	for i, c := range cases {
		if got := c.a.Less(c.b); got != c.less {
			t.Errorf("case %d: Less(%v,%v) = %v, want %v", i, c.a, c.b, got, c.less)
		}
	}
}

func TestSwitchBecomesRootWhenNoBetterBPDUHeard(t *testing.T) {
	s := NewSwitch(9)
	s.RegisterPort(1, 1)
	if !s.IsRoot() {
		t.Fatal("switch with no neighbors should consider itself root")
	}
	if got := s.PortState(1); got != Designated {
		t.Fatalf("lone switch port should be Designated, got %v", got)
	}
}

func TestSwitchAdoptsBetterRootAndMarksRootPort(t *testing.T) {
	s := NewSwitch(3)
	s.RegisterPort(10, 1)

	broadcast := s.ReceiveBPDU(10, wire.BPDU{Root: 1, Distance: 0, Switch: 1, SenderPort: 5}, 1)
	if !broadcast {
		t.Fatal("expected broadcast after adopting better root")
	}
	if s.PortState(10) != Root {
		t.Fatalf("port 10 should become Root, got %v", s.PortState(10))
	}
	if s.IsRoot() {
		t.Fatal("switch 3 should no longer consider itself root")
	}
}

func TestStaleBPDUIsDiscarded(t *testing.T) {
	s := NewSwitch(3)
	s.RegisterPort(10, 1)
	s.ReceiveBPDU(10, wire.BPDU{Root: 1, Distance: 0, Switch: 1, SenderPort: 0}, 1)

	// A strictly worse BPDU on the same port must not overwrite the stored one.
	broadcast := s.ReceiveBPDU(10, wire.BPDU{Root: 9, Distance: 9, Switch: 9, SenderPort: 0}, 1)
	if broadcast {
		t.Fatal("stale/worse BPDU should not trigger broadcast")
	}
	if s.PortState(10) != Root {
		t.Fatalf("port 10 should remain Root after discarding stale BPDU, got %v", s.PortState(10))
	}
}

func TestRedundantPathToRootIsBlocked(t *testing.T) {
	s := NewSwitch(3)
	s.RegisterPort(10, 1)
	s.RegisterPort(20, 1)

	s.ReceiveBPDU(10, wire.BPDU{Root: 1, Distance: 0, Switch: 1, SenderPort: 0}, 1)
	s.ReceiveBPDU(20, wire.BPDU{Root: 1, Distance: 0, Switch: 1, SenderPort: 0}, 1)

	if s.PortState(10) != Root {
		t.Fatalf("port 10 expected Root, got %v", s.PortState(10))
	}
	if s.PortState(20) != Blocked {
		t.Fatalf("port 20 expected Blocked (redundant path to same root), got %v", s.PortState(20))
	}
}

func TestOutgoingBPDUsOnlyOnDesignatedPorts(t *testing.T) {
	s := NewSwitch(3)
	s.RegisterPort(10, 1)
	s.RegisterPort(20, 1)
	s.ReceiveBPDU(10, wire.BPDU{Root: 1, Distance: 0, Switch: 1, SenderPort: 0}, 1)
	s.ReceiveBPDU(20, wire.BPDU{Root: 1, Distance: 0, Switch: 1, SenderPort: 0}, 1)

	out := s.OutgoingBPDUs()
	if _, ok := out[10]; ok {
		t.Fatal("root port must not emit periodic BPDUs")
	}
	if _, ok := out[20]; ok {
		t.Fatal("blocked port must not emit periodic BPDUs")
	}
}
