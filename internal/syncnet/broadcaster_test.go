package syncnet

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bft-labs/memsync/internal/clock"
	"github.com/bft-labs/memsync/internal/ledger"
	"github.com/bft-labs/memsync/internal/region"
	"github.com/bft-labs/memsync/internal/wire"
	"github.com/bft-labs/memsync/pkg/log"
)

// captureTransport records every sent datagram and never receives.
type captureTransport struct {
	mu   sync.Mutex
	sent []sentDatagram
}

type sentDatagram struct {
	addr string
	data []byte
}

func (c *captureTransport) Send(addr string, b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	data := make([]byte, len(b))
	copy(data, b)
	c.sent = append(c.sent, sentDatagram{addr: addr, data: data})
	return nil
}

func (c *captureTransport) Recv(buf []byte, wait time.Duration) (int, string, error) {
	return 0, "", ErrRecvTimeout
}

func (c *captureTransport) LocalAddr() string { return "capture" }
func (c *captureTransport) Close() error      { return nil }

func (c *captureTransport) messages(t *testing.T) []wire.Message {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]wire.Message, 0, len(c.sent))
	for _, d := range c.sent {
		m, err := wire.Unmarshal(d.data)
		if err != nil {
			t.Fatalf("sent datagram does not decode: %v", err)
		}
		out = append(out, m)
	}
	return out
}

type broadcastFixture struct {
	region    *region.Region
	ledger    *ledger.Ledger
	peers     *Peers
	transport *captureTransport
	clock     *clock.Fake
	b         *Broadcaster
}

func newBroadcastFixture(t *testing.T, size uint64) *broadcastFixture {
	t.Helper()
	reg := region.NewRegistry()
	r, err := reg.Open("memsync_1", size)
	if err != nil {
		t.Fatal(err)
	}
	f := &broadcastFixture{
		region:    r,
		ledger:    ledger.New(),
		peers:     NewPeers(),
		transport: &captureTransport{},
		clock:     clock.NewFake(),
	}
	f.b = NewBroadcaster(r, f.ledger, f.peers, f.transport, ledger.NewIDSource(), f.clock, log.NewNoopLogger(), time.Millisecond)
	return f
}

// edit writes bytes into the fixture region and records the range, the way
// a local writer does.
func (f *broadcastFixture) edit(t *testing.T, off uint64, p []byte) {
	t.Helper()
	if err := f.region.WriteAt(off, p); err != nil {
		t.Fatal(err)
	}
	f.ledger.Record(f.region.Name(), off, uint64(len(p)))
	if err := f.region.Bump(f.clock.Ticks()); err != nil {
		t.Fatal(err)
	}
}

func TestSweepSingleEdit(t *testing.T) {
	f := newBroadcastFixture(t, 32)
	f.peers.Add("10.0.0.2", 9000)

	f.edit(t, 0, []byte{1, 2, 3, 4})
	f.b.sweep()

	msgs := f.transport.messages(t)
	if len(msgs) != 1 {
		t.Fatalf("sent %d messages, want 1", len(msgs))
	}
	m := msgs[0]
	if m.Kind != wire.SingleUpdate {
		t.Errorf("Kind = %v, want SingleUpdate", m.Kind)
	}
	if m.Region != "memsync_1" || m.Offset != 0 || m.Length != 4 {
		t.Errorf("header = (%s,%d,%d)", m.Region, m.Offset, m.Length)
	}
	if !bytes.Equal(m.Payload, []byte{1, 2, 3, 4}) {
		t.Errorf("payload = %v", m.Payload)
	}

	// The sweep consumed the change: dirty cleared, edits drained.
	if _, dirty := f.region.Snapshot(); dirty {
		t.Error("region still dirty after sweep")
	}
	if f.ledger.Pending("memsync_1") != 0 {
		t.Error("edits left pending after sweep")
	}
}

func TestSweepBatchSharedID(t *testing.T) {
	f := newBroadcastFixture(t, 32)
	f.peers.Add("10.0.0.2", 9000)

	f.edit(t, 0, []byte{1, 2, 3, 4})
	f.edit(t, 8, []byte{5, 6, 7, 8})
	f.edit(t, 16, []byte{9, 10, 11, 12, 13, 14, 15, 16})
	f.b.sweep()

	msgs := f.transport.messages(t)
	if len(msgs) != 3 {
		t.Fatalf("sent %d messages, want 3", len(msgs))
	}
	wantKinds := []wire.Kind{wire.StartUpdate, wire.UpdateChunk, wire.EndUpdate}
	for i, m := range msgs {
		if m.Kind != wantKinds[i] {
			t.Errorf("message %d kind = %v, want %v", i, m.Kind, wantKinds[i])
		}
		if m.UpdateID != msgs[0].UpdateID {
			t.Errorf("message %d id = %d, want shared %d", i, m.UpdateID, msgs[0].UpdateID)
		}
	}
}

func TestSweepFansOutToAllPeers(t *testing.T) {
	f := newBroadcastFixture(t, 32)
	f.peers.Add("10.0.0.2", 9000)
	f.peers.Add("10.0.0.3", 9000)

	f.edit(t, 0, []byte{1})
	f.b.sweep()

	f.transport.mu.Lock()
	defer f.transport.mu.Unlock()
	if len(f.transport.sent) != 2 {
		t.Fatalf("sent %d datagrams, want one per peer", len(f.transport.sent))
	}
	addrs := map[string]bool{}
	for _, d := range f.transport.sent {
		addrs[d.addr] = true
	}
	if !addrs["10.0.0.2:9000"] || !addrs["10.0.0.3:9000"] {
		t.Errorf("datagram targets = %v", addrs)
	}
}

func TestSweepFullRegionFallback(t *testing.T) {
	f := newBroadcastFixture(t, 32)
	f.peers.Add("10.0.0.2", 9000)

	// Dirty without recorded edits: a writer that never calls RecordEdit.
	if err := f.region.WriteAt(4, []byte{0xaa, 0xbb}); err != nil {
		t.Fatal(err)
	}
	if err := f.region.Bump(0); err != nil {
		t.Fatal(err)
	}
	f.b.sweep()

	msgs := f.transport.messages(t)
	if len(msgs) != 1 {
		t.Fatalf("sent %d messages, want 1", len(msgs))
	}
	m := msgs[0]
	if m.Kind != wire.SingleUpdate || m.Offset != 0 || m.Length != 32 {
		t.Fatalf("fallback message = (%v,%d,%d), want whole region", m.Kind, m.Offset, m.Length)
	}
	want, _ := f.region.ReadAt(0, 32)
	if !bytes.Equal(m.Payload, want) {
		t.Error("fallback payload differs from region image")
	}
}

func TestSweepIdleDoesNothing(t *testing.T) {
	f := newBroadcastFixture(t, 32)
	f.peers.Add("10.0.0.2", 9000)

	f.b.sweep()
	if len(f.transport.messages(t)) != 0 {
		t.Fatal("idle sweep sent messages")
	}

	// A clean region with an advanced version (already broadcast) also
	// stays quiet.
	f.edit(t, 0, []byte{1})
	f.b.sweep()
	before := len(f.transport.messages(t))
	f.b.sweep()
	if got := len(f.transport.messages(t)); got != before {
		t.Fatalf("second sweep sent %d more messages", got-before)
	}
}

func TestBroadcasterRunStops(t *testing.T) {
	f := newBroadcastFixture(t, 32)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.b.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("broadcaster did not stop on cancel")
	}
}
