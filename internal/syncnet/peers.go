// Package syncnet broadcasts region changes to peers over best-effort
// datagrams and applies the changes arriving from them. It holds the peer
// directory, the datagram transport, the per-region broadcaster and the
// per-node receiver.
package syncnet

import (
	"net"
	"sort"
	"strconv"
	"sync"
)

// Peer is one remote endpoint this node broadcasts to.
type Peer struct {
	Host string
	Port int
}

// Addr returns the peer's host:port form.
func (p Peer) Addr() string {
	return net.JoinHostPort(p.Host, strconv.Itoa(p.Port))
}

// Peers is the directory of known remote endpoints. Adding is idempotent,
// keyed by host:port; there is no removal and liveness is not tracked.
// Broadcast is fire-and-forget regardless of peer health.
type Peers struct {
	mu    sync.Mutex
	peers map[string]Peer
}

// NewPeers creates an empty directory.
func NewPeers() *Peers {
	return &Peers{peers: make(map[string]Peer)}
}

// Add registers a peer. Re-adding an existing endpoint is a no-op.
// Returns true when the peer was new.
func (d *Peers) Add(host string, port int) bool {
	p := Peer{Host: host, Port: port}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.peers[p.Addr()]; ok {
		return false
	}
	d.peers[p.Addr()] = p
	return true
}

// List returns a snapshot of the directory, ordered by address for
// deterministic iteration.
func (d *Peers) List() []Peer {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Peer, 0, len(d.peers))
	for _, p := range d.peers {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Addr() < out[j].Addr() })
	return out
}

// Len returns the number of known peers.
func (d *Peers) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.peers)
}
