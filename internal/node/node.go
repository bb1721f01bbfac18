// Package node ties the synchronization core together: it owns the region
// registry, the change ledger, the peer directory and the transport, runs
// the single receive loop and one broadcaster per synchronized region, and
// exposes the surface the host process drives.
package node

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bft-labs/memsync/internal/clock"
	"github.com/bft-labs/memsync/internal/ledger"
	"github.com/bft-labs/memsync/internal/region"
	"github.com/bft-labs/memsync/internal/syncnet"
	"github.com/bft-labs/memsync/internal/wire"
	"github.com/bft-labs/memsync/pkg/log"
)

// probeRegion is the reserved region name carried by the zero-length
// message sent to verify a freshly added peer is reachable. Receivers treat
// it as an update for an unheld region and ignore it.
const probeRegion = "TEST"

// Config holds the node-level synchronization settings.
type Config struct {
	// ListenHost and ListenPort bind the UDP socket when no transport is
	// injected.
	ListenHost string
	ListenPort int

	// PollInterval is the broadcaster poll tick and the receiver's idle
	// cadence.
	PollInterval time.Duration

	// InflightTimeout is the inactivity window for multi-part reassembly.
	InflightTimeout time.Duration

	// ShutdownTimeout bounds how long Stop waits for workers to join.
	ShutdownTimeout time.Duration
}

// Node is one synchronization participant.
type Node struct {
	cfg       Config
	registry  *region.Registry
	ledger    *ledger.Ledger
	inflights *ledger.Inflights
	peers     *syncnet.Peers
	ids       *ledger.IDSource
	clock     clock.Clock
	logger    log.Logger

	life *lifecycle

	mu        sync.Mutex
	transport syncnet.Transport
	ownsConn  bool
	receiver  *syncnet.Receiver
	onUpdate  syncnet.UpdateFunc
	runCtx    context.Context
	syncers   map[string]*regionSyncer
}

// regionSyncer is one running broadcaster with its cooperative stop handle.
type regionSyncer struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a node. transport may be nil, in which case Start binds a UDP
// socket at the configured listen address. clk and logger fall back to the
// system clock and a no-op logger.
func New(cfg Config, transport syncnet.Transport, clk clock.Clock, logger log.Logger) *Node {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = syncnet.DefaultPollInterval
	}
	if cfg.InflightTimeout <= 0 {
		cfg.InflightTimeout = syncnet.DefaultInflightTimeout
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
	if clk == nil {
		clk = clock.NewSystem()
	}
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &Node{
		cfg:       cfg,
		registry:  region.NewRegistry(),
		ledger:    ledger.New(),
		inflights: ledger.NewInflights(),
		peers:     syncnet.NewPeers(),
		ids:       ledger.NewIDSource(),
		clock:     clk,
		logger:    logger,
		life:      newLifecycle(logger),
		transport: transport,
		syncers:   make(map[string]*regionSyncer),
	}
}

// State returns the node's lifecycle state.
func (n *Node) State() State {
	return n.life.State()
}

// Registry exposes the region registry for the host process.
func (n *Node) Registry() *region.Registry {
	return n.registry
}

// Start binds the transport if needed and launches the receive loop.
func (n *Node) Start(ctx context.Context) error {
	if err := n.life.transitionTo(StateStarting, "start requested"); err != nil {
		return err
	}

	n.mu.Lock()
	if n.transport == nil {
		t, err := syncnet.NewUDPTransport(n.cfg.ListenHost, n.cfg.ListenPort)
		if err != nil {
			n.mu.Unlock()
			n.life.transitionTo(StateCrashed, "bind failed")
			return fmt.Errorf("start node: %w", err)
		}
		n.transport = t
		n.ownsConn = true
	}

	runCtx, cancel := context.WithCancel(ctx)
	n.runCtx = runCtx
	n.life.setCancel(cancel)

	n.receiver = syncnet.NewReceiver(n.registry, n.inflights, n.transport, n.clock, n.logger, n.cfg.PollInterval, n.cfg.InflightTimeout)
	if n.onUpdate != nil {
		n.receiver.OnUpdate(n.onUpdate)
	}
	receiver := n.receiver
	n.mu.Unlock()

	n.life.addWorker()
	go func() {
		defer n.life.workerDone()
		receiver.Run(runCtx)
	}()

	if err := n.life.transitionTo(StateRunning, "started"); err != nil {
		return err
	}
	n.logger.Info("node started", log.String("listen", n.transport.LocalAddr()))
	return nil
}

// Stop cancels every broadcaster and the receive loop, closes the
// transport and releases all regions. Workers are joined, never killed.
func (n *Node) Stop() error {
	if err := n.life.transitionTo(StateStopping, "stop requested"); err != nil {
		return err
	}

	n.life.stop()

	n.mu.Lock()
	for name, s := range n.syncers {
		s.cancel()
		delete(n.syncers, name)
	}
	transport := n.transport
	owns := n.ownsConn
	n.mu.Unlock()

	// Closing the socket unblocks the receive loop.
	if owns && transport != nil {
		transport.Close()
	}

	err := n.life.waitWithTimeout(n.cfg.ShutdownTimeout)

	n.registry.Close()

	if terr := n.life.transitionTo(StateStopped, "stopped"); terr != nil {
		return terr
	}
	n.logger.Info("node stopped")
	return err
}

// Open creates or returns the named region.
func (n *Node) Open(name string, size uint64) (*region.Region, error) {
	return n.registry.Open(name, size)
}

// Release stops tracking name: pending edits are dropped, the region is
// unmapped and all handles are invalidated. A running broadcaster for the
// region should be stopped first.
func (n *Node) Release(name string) error {
	n.ledger.Forget(name)
	return n.registry.Release(name)
}

// RecordEdit records a byte-range edit to a region and marks it dirty.
// Unknown regions and out-of-range spans are logged and ignored, never
// fatal.
func (n *Node) RecordEdit(name string, off, length uint64) {
	reg, err := n.registry.Get(name)
	if err != nil {
		n.logger.Warn("record edit for unknown region", log.String("region", name))
		return
	}
	if off > reg.Size() || length > reg.Size()-off {
		n.logger.Warn("record edit out of range",
			log.String("region", name),
			log.Uint64("offset", off),
			log.Uint64("length", length),
		)
		return
	}

	n.ledger.Record(name, off, length)
	if err := reg.Bump(n.clock.Ticks()); err != nil {
		n.logger.Warn("bump failed", log.String("region", name), log.Err(err))
	}
}

// StartSync launches a broadcaster for the named region. Idempotent: a
// second call for a region already being synchronized is a no-op.
func (n *Node) StartSync(name string) error {
	if n.life.State() != StateRunning {
		return ErrNotRunning
	}
	reg, err := n.registry.Get(name)
	if err != nil {
		return err
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.syncers[name]; ok {
		return nil
	}

	ctx, cancel := context.WithCancel(n.runCtx)
	s := &regionSyncer{cancel: cancel, done: make(chan struct{})}
	n.syncers[name] = s

	b := syncnet.NewBroadcaster(reg, n.ledger, n.peers, n.transport, n.ids, n.clock, n.logger, n.cfg.PollInterval)
	n.life.addWorker()
	go func() {
		defer n.life.workerDone()
		defer close(s.done)
		b.Run(ctx)
	}()

	n.logger.Info("sync started", log.String("region", name))
	return nil
}

// StopSync stops the named region's broadcaster and joins it, without
// disturbing other regions or the receive loop.
func (n *Node) StopSync(name string) error {
	n.mu.Lock()
	s, ok := n.syncers[name]
	if ok {
		delete(n.syncers, name)
	}
	n.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: no sync running for %q", ErrNotRunning, name)
	}

	s.cancel()
	<-s.done
	n.logger.Info("sync stopped", log.String("region", name))
	return nil
}

// AddPeer registers a remote endpoint to broadcast to. Idempotent. A new
// peer gets a best-effort zero-length probe message; failure to send it is
// logged and otherwise ignored.
func (n *Node) AddPeer(host string, port int) {
	if !n.peers.Add(host, port) {
		return
	}
	n.logger.Info("peer added", log.String("peer", syncnet.Peer{Host: host, Port: port}.Addr()))

	n.mu.Lock()
	transport := n.transport
	n.mu.Unlock()
	if transport == nil {
		return
	}

	probe := wire.Message{
		Region:    probeRegion,
		Kind:      wire.SingleUpdate,
		UpdateID:  n.ids.Next(n.clock.Ticks()),
		Timestamp: uint32(n.clock.Ticks()),
	}
	data, err := probe.Marshal()
	if err != nil {
		return
	}
	addr := syncnet.Peer{Host: host, Port: port}.Addr()
	if err := transport.Send(addr, data); err != nil {
		n.logger.Warn("peer probe failed", log.String("peer", addr), log.Err(err))
	}
}

// Peers returns a snapshot of the peer directory.
func (n *Node) Peers() []syncnet.Peer {
	return n.peers.List()
}

// OnUpdate registers the callback invoked after any applied network update
// with the region name and changed byte range.
func (n *Node) OnUpdate(fn syncnet.UpdateFunc) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.onUpdate = fn
	if n.receiver != nil {
		n.receiver.OnUpdate(fn)
	}
}
