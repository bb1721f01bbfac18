package syncnet

import (
	"fmt"
	"net"
	"sync"
	"time"
)

// Loopback is an in-memory datagram fabric connecting Transport endpoints
// by address. It exists for tests and in-process wiring; datagrams are
// delivered reliably and in order, which real UDP does not guarantee.
type Loopback struct {
	mu        sync.Mutex
	endpoints map[string]*LoopbackEndpoint
	next      int
}

// NewLoopback creates an empty fabric.
func NewLoopback() *Loopback {
	return &Loopback{endpoints: make(map[string]*LoopbackEndpoint)}
}

// Open attaches an endpoint at addr. An empty addr is assigned a unique one.
func (l *Loopback) Open(addr string) *LoopbackEndpoint {
	l.mu.Lock()
	defer l.mu.Unlock()
	if addr == "" {
		l.next++
		addr = fmt.Sprintf("loopback:%d", l.next)
	}
	ep := &LoopbackEndpoint{
		fabric: l,
		addr:   addr,
		inbox:  make(chan datagram, 256),
	}
	l.endpoints[addr] = ep
	return ep
}

func (l *Loopback) deliver(to string, d datagram) error {
	l.mu.Lock()
	ep, ok := l.endpoints[to]
	l.mu.Unlock()
	if !ok {
		return fmt.Errorf("syncnet: no endpoint at %s", to)
	}
	return ep.accept(d)
}

func (l *Loopback) detach(addr string) {
	l.mu.Lock()
	delete(l.endpoints, addr)
	l.mu.Unlock()
}

type datagram struct {
	from string
	data []byte
}

// LoopbackEndpoint implements Transport over a Loopback fabric.
type LoopbackEndpoint struct {
	fabric *Loopback
	addr   string

	mu     sync.Mutex
	closed bool
	inbox  chan datagram
}

// Send delivers one datagram to the endpoint at addr.
func (e *LoopbackEndpoint) Send(addr string, b []byte) error {
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return net.ErrClosed
	}
	data := make([]byte, len(b))
	copy(data, b)
	return e.fabric.deliver(addr, datagram{from: e.addr, data: data})
}

// accept enqueues one inbound datagram. The endpoint lock serializes the
// channel send against Close so a racing Close cannot close the inbox
// mid-send. A closed endpoint drops the datagram, matching UDP semantics.
func (e *LoopbackEndpoint) accept(d datagram) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	select {
	case e.inbox <- d:
	default:
		// Full inbox drops the datagram, matching UDP semantics.
	}
	return nil
}

// Recv waits up to wait for one datagram.
func (e *LoopbackEndpoint) Recv(buf []byte, wait time.Duration) (int, string, error) {
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case d, ok := <-e.inbox:
		if !ok {
			return 0, "", net.ErrClosed
		}
		n := copy(buf, d.data)
		return n, d.from, nil
	case <-timer.C:
		return 0, "", ErrRecvTimeout
	}
}

// LocalAddr returns the endpoint's fabric address.
func (e *LoopbackEndpoint) LocalAddr() string { return e.addr }

// Close detaches the endpoint and unblocks any Recv.
func (e *LoopbackEndpoint) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	close(e.inbox)
	e.mu.Unlock()
	e.fabric.detach(e.addr)
	return nil
}
