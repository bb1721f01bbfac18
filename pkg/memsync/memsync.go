// Package memsync mirrors small named byte records ("regions") across
// processes over best-effort UDP. Each node owns one authoritative region
// and observes read-only mirrors of regions owned by its peers; byte-level
// edits are tracked, batched into datagrams and reassembled on receivers
// that tolerate loss, duplication and reordering.
//
// Example usage:
//
//	cfg := memsync.DefaultConfig()
//	cfg.InstanceID = 1
//	cfg.ListenPort = 8080
//	cfg.Peers = []memsync.Peer{{Host: "127.0.0.1", Port: 8081, InstanceID: 2}}
//
//	n, err := memsync.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := n.Start(context.Background()); err != nil {
//	    log.Fatal(err)
//	}
//	defer n.Stop()
//
//	n.OnUpdate(func(region string, off, length uint64) {
//	    // a mirror changed
//	})
//
//	// edit the owned region and let the broadcaster pick it up
//	n.Write(memsync.RegionName(1), 0, []byte{1, 2, 3, 4})
package memsync

import (
	"context"
	"fmt"
	"time"

	"github.com/bft-labs/memsync/internal/clock"
	"github.com/bft-labs/memsync/internal/node"
	"github.com/bft-labs/memsync/internal/syncnet"
	"github.com/bft-labs/memsync/pkg/log"
)

// Peer identifies a remote node: where to send datagrams, and which
// instance's region to mirror locally.
type Peer struct {
	Host       string
	Port       int
	InstanceID int
}

// Config holds the configuration for a memsync node.
// Use DefaultConfig() to get a Config with sensible defaults.
type Config struct {
	// ListenHost and ListenPort bind the node's UDP socket.
	ListenHost string
	ListenPort int

	// InstanceID names this node; the owned region is RegionName(InstanceID).
	InstanceID int

	// RegionSize is the byte size of every region this node opens.
	RegionSize uint64

	// PollInterval is the broadcaster poll tick.
	PollInterval time.Duration

	// InflightTimeout is the inactivity window for multi-part reassembly.
	InflightTimeout time.Duration

	// ShutdownTimeout bounds how long Stop waits for workers to join.
	ShutdownTimeout time.Duration

	// Peers are the remote nodes to broadcast to and mirror.
	Peers []Peer
}

// DefaultConfig returns a Config with sensible default values.
// At minimum, set InstanceID and ListenPort before calling New.
func DefaultConfig() Config {
	return Config{
		ListenHost:      "127.0.0.1",
		ListenPort:      8080,
		InstanceID:      1,
		RegionSize:      256,
		PollInterval:    10 * time.Millisecond,
		InflightTimeout: 5 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}

// RegionName returns the region name owned by the given instance.
func RegionName(instanceID int) string {
	return fmt.Sprintf("memsync_%d", instanceID)
}

// UpdateFunc is invoked after any applied network update with the region
// name and the byte range that changed.
type UpdateFunc = syncnet.UpdateFunc

type options struct {
	logger    log.Logger
	transport syncnet.Transport
	clock     clock.Clock
}

// Option customizes a Node at construction.
type Option func(*options)

// WithLogger sets the structured logger used by all components.
func WithLogger(l log.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithTransport injects a datagram transport instead of binding a UDP
// socket. Useful for tests and in-process wiring.
func WithTransport(t syncnet.Transport) Option {
	return func(o *options) { o.transport = t }
}

// WithClock injects a tick source instead of the system clock.
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// Node is a running memsync participant: one owned region broadcast to
// peers, plus a mirror region per peer kept current by the receive loop.
type Node struct {
	cfg   Config
	inner *node.Node
}

// New creates a node from cfg. The node does not touch the network until
// Start.
func New(cfg Config, opts ...Option) (*Node, error) {
	if cfg.InstanceID <= 0 {
		return nil, fmt.Errorf("memsync: instance id must be positive")
	}
	if cfg.RegionSize == 0 {
		return nil, fmt.Errorf("memsync: region size must be positive")
	}
	for _, p := range cfg.Peers {
		if p.InstanceID <= 0 {
			return nil, fmt.Errorf("memsync: peer %s:%d: instance id must be positive", p.Host, p.Port)
		}
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	inner := node.New(node.Config{
		ListenHost:      cfg.ListenHost,
		ListenPort:      cfg.ListenPort,
		PollInterval:    cfg.PollInterval,
		InflightTimeout: cfg.InflightTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, o.transport, o.clock, o.logger)

	return &Node{cfg: cfg, inner: inner}, nil
}

// Start binds the transport, opens the owned region and one mirror per
// configured peer, registers the peers, and begins synchronizing the owned
// region.
func (n *Node) Start(ctx context.Context) error {
	if err := n.inner.Start(ctx); err != nil {
		return err
	}

	owned := RegionName(n.cfg.InstanceID)
	if _, err := n.inner.Open(owned, n.cfg.RegionSize); err != nil {
		n.inner.Stop()
		return fmt.Errorf("open region %s: %w", owned, err)
	}
	if err := n.inner.StartSync(owned); err != nil {
		n.inner.Stop()
		return fmt.Errorf("start sync %s: %w", owned, err)
	}

	for _, p := range n.cfg.Peers {
		if err := n.AddPeerWithMirror(p); err != nil {
			n.inner.Stop()
			return err
		}
	}
	return nil
}

// AddPeerWithMirror registers a peer endpoint and opens the local mirror of
// the region that peer owns. Idempotent for both the peer and the mirror.
func (n *Node) AddPeerWithMirror(p Peer) error {
	n.inner.AddPeer(p.Host, p.Port)
	mirror := RegionName(p.InstanceID)
	if _, err := n.inner.Open(mirror, n.cfg.RegionSize); err != nil {
		return fmt.Errorf("open mirror %s: %w", mirror, err)
	}
	return nil
}

// Stop shuts the node down gracefully.
func (n *Node) Stop() error {
	return n.inner.Stop()
}

// Write copies p into a region at off and records the edit so the next
// broadcast ships exactly this byte range.
func (n *Node) Write(region string, off uint64, p []byte) error {
	reg, err := n.inner.Registry().Get(region)
	if err != nil {
		return err
	}
	if err := reg.WriteAt(off, p); err != nil {
		return err
	}
	n.inner.RecordEdit(region, off, uint64(len(p)))
	return nil
}

// Read copies length bytes at off out of a region.
func (n *Node) Read(region string, off, length uint64) ([]byte, error) {
	reg, err := n.inner.Registry().Get(region)
	if err != nil {
		return nil, err
	}
	return reg.ReadAt(off, length)
}

// RecordEdit records a byte-range edit made directly through a region
// handle. Unknown regions are logged and ignored.
func (n *Node) RecordEdit(region string, off, length uint64) {
	n.inner.RecordEdit(region, off, length)
}

// StartSync begins broadcasting changes of an additional region.
func (n *Node) StartSync(region string) error {
	return n.inner.StartSync(region)
}

// StopSync stops broadcasting one region without disturbing others.
func (n *Node) StopSync(region string) error {
	return n.inner.StopSync(region)
}

// AddPeer registers another endpoint to broadcast to. Idempotent.
func (n *Node) AddPeer(host string, port int) {
	n.inner.AddPeer(host, port)
}

// OnUpdate registers the update-notification callback.
func (n *Node) OnUpdate(fn UpdateFunc) {
	n.inner.OnUpdate(fn)
}

// OwnedRegion returns the name of the region this node broadcasts.
func (n *Node) OwnedRegion() string {
	return RegionName(n.cfg.InstanceID)
}

// Run starts a node and blocks until ctx is canceled, then stops it.
func Run(ctx context.Context, cfg Config, opts ...Option) error {
	n, err := New(cfg, opts...)
	if err != nil {
		return err
	}
	if err := n.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	if err := n.Stop(); err != nil {
		return err
	}
	return ctx.Err()
}
