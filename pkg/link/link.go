// Package link implements the bounded bidirectional FIFO pair that
// models a half-duplex physical link between two device ports (spec
// §3). Senders block on a full queue; per-direction delivery is FIFO;
// no ordering is assumed across different links.
package link

import (
	"errors"
	"sync"

	"github.com/packetloom/netlab/pkg/wire"
)

// DefaultCapacity is the minimum buffer capacity spec §3 requires.
const DefaultCapacity = 1024

// ErrClosed is returned by Send once the link has been torn down by Quit.
var ErrClosed = errors.New("link: endpoint closed")

// shared is the state two Endpoints on the same link hold in common, so
// that either side closing the link tears it down exactly once.
type shared struct {
	once sync.Once
	stop chan struct{}
}

func (s *shared) close() {
	s.once.Do(func() { close(s.stop) })
}

// Endpoint is one device's view of one direction-pair of a link: it
// sends on its own outbound queue and receives on the peer's outbound
// queue (this endpoint's inbound).
type Endpoint struct {
	out chan wire.Frame
	in  chan wire.Frame

	link *shared
}

// New creates a bounded link and returns the two endpoints bound to its
// opposite ends. capacity is clamped up to DefaultCapacity.
func New(capacity int) (a, b *Endpoint) {
	if capacity < DefaultCapacity {
		capacity = DefaultCapacity
	}
	ab := make(chan wire.Frame, capacity)
	ba := make(chan wire.Frame, capacity)
	l := &shared{stop: make(chan struct{})}
	a = &Endpoint{out: ab, in: ba, link: l}
	b = &Endpoint{out: ba, in: ab, link: l}
	return a, b
}

// Send enqueues f, blocking while the outbound queue is full. It
// returns ErrClosed once the link has been closed from either end.
func (e *Endpoint) Send(f wire.Frame) error {
	select {
	case <-e.link.stop:
		return ErrClosed
	default:
	}
	select {
	case e.out <- f:
		return nil
	case <-e.link.stop:
		return ErrClosed
	}
}

// TryRecv performs the non-blocking poll the device event loop uses: it
// returns the next queued frame, or ok=false if none is pending.
func (e *Endpoint) TryRecv() (f wire.Frame, ok bool) {
	select {
	case f, open := <-e.in:
		if !open {
			return nil, false
		}
		return f, true
	default:
		return nil, false
	}
}

// Close tears down the link for both endpoints. Pending and future
// sends from either side surface as ErrClosed; the peer is treated as
// permanently down, per spec §7.
func (e *Endpoint) Close() {
	e.link.close()
}
