package syncnet

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bft-labs/memsync/internal/clock"
	"github.com/bft-labs/memsync/internal/ledger"
	"github.com/bft-labs/memsync/internal/region"
	"github.com/bft-labs/memsync/internal/wire"
	"github.com/bft-labs/memsync/pkg/log"
)

// DefaultInflightTimeout is the inactivity window after which a multi-part
// update under reassembly is evicted.
const DefaultInflightTimeout = 5 * time.Second

// UpdateFunc is invoked after any successfully applied update with the
// region name and the byte range that changed.
type UpdateFunc func(region string, offset, length uint64)

// Receiver is the single inbound loop of a node. It decodes datagrams,
// routes them by message kind, applies region bytes, and evicts timed-out
// multi-part updates at the same cadence as receiving.
type Receiver struct {
	registry  *region.Registry
	inflights *ledger.Inflights
	transport Transport
	clock     clock.Clock
	logger    log.Logger
	interval  time.Duration
	timeout   time.Duration

	mu       sync.RWMutex
	onUpdate UpdateFunc
}

// NewReceiver creates a receiver. interval bounds how long one Recv blocks
// (and therefore the eviction cadence); timeout is the in-flight
// inactivity window. Both fall back to defaults when zero.
func NewReceiver(reg *region.Registry, inflights *ledger.Inflights, t Transport, clk clock.Clock, logger log.Logger, interval, timeout time.Duration) *Receiver {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if timeout <= 0 {
		timeout = DefaultInflightTimeout
	}
	return &Receiver{
		registry:  reg,
		inflights: inflights,
		transport: t,
		clock:     clk,
		logger:    logger,
		interval:  interval,
		timeout:   timeout,
	}
}

// OnUpdate registers the update-notification callback. A single callback is
// supported; registering replaces the previous one.
func (r *Receiver) OnUpdate(fn UpdateFunc) {
	r.mu.Lock()
	r.onUpdate = fn
	r.mu.Unlock()
}

// Run receives until ctx is canceled or the transport closes. Malformed
// datagrams, unknown regions and orphan chunks are logged and never abort
// the loop.
func (r *Receiver) Run(ctx context.Context) {
	buf := make([]byte, wire.MessageSize)
	r.logger.Debug("receiver started", log.String("addr", r.transport.LocalAddr()))

	for {
		if ctx.Err() != nil {
			r.logger.Debug("receiver stopped")
			return
		}

		n, from, err := r.transport.Recv(buf, r.interval)
		switch {
		case err == nil:
			r.handle(buf[:n], from)
		case errors.Is(err, ErrRecvTimeout):
			// Idle tick, still run eviction below.
		default:
			// Closed transport or a hard socket error ends the loop.
			if ctx.Err() == nil {
				r.logger.Debug("receive loop ending", log.Err(err))
			}
			return
		}

		r.evict()
	}
}

// Handle decodes and routes one datagram. Exposed for in-process delivery;
// Run uses it for every received datagram.
func (r *Receiver) Handle(data []byte, from string) {
	r.handle(data, from)
}

func (r *Receiver) handle(data []byte, from string) {
	msg, err := wire.Unmarshal(data)
	if err != nil {
		r.logger.Warn("dropping malformed datagram", log.String("from", from), log.Err(err))
		return
	}

	switch msg.Kind {
	case wire.SingleUpdate:
		r.apply(msg)

	case wire.StartUpdate:
		// A start arriving after its batch already completed (the end
		// overtook it) is applied directly.
		if r.inflights.WasCompleted(msg.UpdateID) {
			r.apply(msg)
			return
		}
		r.inflights.Begin(msg, r.clock.Ticks())

	case wire.UpdateChunk:
		if r.inflights.WasCompleted(msg.UpdateID) {
			r.apply(msg)
			return
		}
		if err := r.inflights.Append(msg); err != nil {
			// The start message was lost; the chunk cannot be placed
			// and is dropped.
			r.logger.Warn("orphan chunk",
				log.String("region", msg.Region),
				log.Uint64("update_id", msg.UpdateID),
			)
		}

	case wire.EndUpdate:
		if r.inflights.WasCompleted(msg.UpdateID) {
			r.apply(msg)
			return
		}
		if err := r.inflights.Append(msg); err != nil {
			// Start was lost. Applying the end chunk alone recovers
			// only its own bytes; earlier chunks of the batch are
			// gone and nothing records that they are missing.
			r.logger.Warn("orphan end, applying alone",
				log.String("region", msg.Region),
				log.Uint64("update_id", msg.UpdateID),
			)
			r.inflights.MarkCompleted(msg.UpdateID, r.clock.Ticks())
			r.apply(msg)
			return
		}
		chunks, err := r.inflights.Take(msg.UpdateID, r.clock.Ticks())
		if err != nil {
			return
		}
		for _, c := range chunks {
			r.apply(c)
		}
	}
}

// apply copies one message's payload into its region and fires the update
// callback. An unknown region is a no-op, observable at debug level.
func (r *Receiver) apply(msg wire.Message) {
	reg, err := r.registry.Get(msg.Region)
	if err != nil {
		r.logger.Debug("update for unheld region",
			log.String("region", msg.Region),
			log.Uint64("offset", msg.Offset),
			log.Uint64("length", msg.Length),
		)
		return
	}
	if msg.Length == 0 {
		// Peer probes carry no bytes.
		return
	}

	if err := reg.Apply(msg.Offset, msg.Payload, r.clock.Ticks()); err != nil {
		r.logger.Warn("apply failed",
			log.String("region", msg.Region),
			log.Uint64("offset", msg.Offset),
			log.Uint64("length", msg.Length),
			log.Err(err),
		)
		return
	}

	r.mu.RLock()
	fn := r.onUpdate
	r.mu.RUnlock()
	if fn != nil {
		fn(msg.Region, msg.Offset, msg.Length)
	}
}

func (r *Receiver) evict() {
	expired := r.inflights.EvictExpired(r.clock.Ticks(), uint64(r.timeout/time.Millisecond))
	for _, id := range expired {
		r.logger.Warn("in-flight update timed out", log.Uint64("update_id", id))
	}
}
