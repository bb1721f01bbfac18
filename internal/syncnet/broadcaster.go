package syncnet

import (
	"context"
	"time"

	"github.com/bft-labs/memsync/internal/clock"
	"github.com/bft-labs/memsync/internal/ledger"
	"github.com/bft-labs/memsync/internal/region"
	"github.com/bft-labs/memsync/internal/wire"
	"github.com/bft-labs/memsync/pkg/log"
)

// DefaultPollInterval is how often a broadcaster checks its region's
// version counter. The design trades a short poll for simplicity over an
// event-driven wake.
const DefaultPollInterval = 10 * time.Millisecond

// Broadcaster watches one region and ships its changes to every known peer.
// It moves between two states: idle while the region's version matches the
// last version it sent, and dirty once the version has advanced with the
// dirty flag set, at which point it drains pending edits and broadcasts.
type Broadcaster struct {
	region    *region.Region
	ledger    *ledger.Ledger
	peers     *Peers
	transport Transport
	ids       *ledger.IDSource
	clock     clock.Clock
	logger    log.Logger
	interval  time.Duration

	lastSent uint64
}

// NewBroadcaster creates a broadcaster for r. The poll interval falls back
// to DefaultPollInterval when zero.
func NewBroadcaster(r *region.Region, led *ledger.Ledger, peers *Peers, t Transport, ids *ledger.IDSource, clk clock.Clock, logger log.Logger, interval time.Duration) *Broadcaster {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Broadcaster{
		region:    r,
		ledger:    led,
		peers:     peers,
		transport: t,
		ids:       ids,
		clock:     clk,
		logger:    logger,
		interval:  interval,
		lastSent:  r.Version(),
	}
}

// Run polls until ctx is canceled. Every tick that finds the region dirty
// with an advanced version triggers one broadcast sweep. Send failures are
// logged and never abort the loop.
func (b *Broadcaster) Run(ctx context.Context) {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	b.logger.Debug("broadcaster started", log.String("region", b.region.Name()))
	for {
		select {
		case <-ctx.Done():
			b.logger.Debug("broadcaster stopped", log.String("region", b.region.Name()))
			return
		case <-ticker.C:
			b.sweep()
		}
	}
}

// sweep performs one change check and, when the region is dirty, one
// broadcast of everything accumulated since the last send.
func (b *Broadcaster) sweep() {
	version, dirty := b.region.Snapshot()
	if version <= b.lastSent || !dirty {
		return
	}

	name := b.region.Name()
	spans := drainSpans(b.ledger, name)
	if len(spans) == 0 {
		// No fine-grained tracking for this batch: fall back to
		// broadcasting the whole region image.
		spans = []wire.Span{{Offset: 0, Length: b.region.Size()}}
	}

	now := b.clock.Ticks()
	msgs, err := wire.PlanBatch(name, b.ids.Next(now), uint32(now), spans, b.region.ReadAt)
	if err != nil {
		b.logger.Error("encode batch", log.String("region", name), log.Err(err))
		return
	}

	b.send(msgs)
	b.lastSent = version
	b.region.ClearDirty()
}

func (b *Broadcaster) send(msgs []wire.Message) {
	peers := b.peers.List()
	for i := range msgs {
		data, err := msgs[i].Marshal()
		if err != nil {
			b.logger.Error("marshal message", log.String("region", msgs[i].Region), log.Err(err))
			continue
		}
		for _, p := range peers {
			if err := b.transport.Send(p.Addr(), data); err != nil {
				// Best effort: log and move on to the next peer.
				b.logger.Warn("send failed",
					log.String("region", msgs[i].Region),
					log.String("peer", p.Addr()),
					log.Err(err),
				)
			}
		}
	}
	if len(msgs) > 0 {
		b.logger.Debug("broadcast",
			log.String("region", msgs[0].Region),
			log.Uint64("update_id", msgs[0].UpdateID),
			log.Int("messages", len(msgs)),
			log.Int("peers", len(peers)),
		)
	}
}

func drainSpans(led *ledger.Ledger, name string) []wire.Span {
	edits := led.Drain(name)
	if len(edits) == 0 {
		return nil
	}
	spans := make([]wire.Span, len(edits))
	for i, e := range edits {
		spans[i] = wire.Span{Offset: e.Offset, Length: e.Length}
	}
	return spans
}
