package device

import (
	"io"
	"testing"
	"time"

	"github.com/packetloom/netlab/internal/netlog"
	"github.com/packetloom/netlab/pkg/link"
	"github.com/packetloom/netlab/pkg/spt"
)

func testLogger(t *testing.T) *netlog.Logger {
	l := netlog.New(io.Discard, 64)
	t.Cleanup(l.Close)
	return l
}

func waitForConvergence() { time.Sleep(10 * bpduTick) }

func TestTwoSwitchesWithParallelLinksBlockOneRedundantPort(t *testing.T) {
	logger := testLogger(t)
	s1 := NewSwitch("s1", 1, logger)
	s2 := NewSwitch("s2", 2, logger)
	go s1.Run()
	go s2.Run()
	t.Cleanup(func() { s1.Stop(); s2.Stop() })

	a1, a2 := link.New(link.DefaultCapacity)
	b1, b2 := link.New(link.DefaultCapacity)

	s1.Send(AddLink{Port: 10, Cost: 1, Endpoint: a1})
	s2.Send(AddLink{Port: 10, Cost: 1, Endpoint: a2})
	s1.Send(AddLink{Port: 20, Cost: 1, Endpoint: b1})
	s2.Send(AddLink{Port: 20, Cost: 1, Endpoint: b2})

	waitForConvergence()

	resp := s2.Send(StatePortsQuery{}).(StatePortsResponse)
	roots, blocked := 0, 0
	for _, state := range resp.States {
		switch state {
		case spt.Root:
			roots++
		case spt.Blocked:
			blocked++
		}
	}
	if roots != 1 || blocked != 1 {
		t.Fatalf("expected exactly one Root and one Blocked port on s2, got states=%v", resp.States)
	}

	resp1 := s1.Send(StatePortsQuery{}).(StatePortsResponse)
	for port, state := range resp1.States {
		if state != spt.Designated {
			t.Fatalf("lower-ID switch s1 should be root with all Designated ports, port %d is %v", port, state)
		}
	}
}

func TestSwitchQuitClosesEndpoints(t *testing.T) {
	logger := testLogger(t)
	s1 := NewSwitch("s1", 1, logger)
	go s1.Run()

	a1, a2 := link.New(link.DefaultCapacity)
	s1.Send(AddLink{Port: 10, Cost: 1, Endpoint: a1})
	s1.Send(Quit{})

	time.Sleep(10 * time.Millisecond)
	if err := a2.Send(nil); err != link.ErrClosed {
		t.Fatalf("expected peer endpoint closed after Quit, got %v", err)
	}
}
