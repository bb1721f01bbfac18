package ledger

import (
	"errors"
	"sort"
	"sync"

	"github.com/bft-labs/memsync/internal/wire"
)

// ErrUnknownUpdate reports a chunk for an update ID with no in-flight entry,
// meaning the StartUpdate was lost or the entry already timed out.
var ErrUnknownUpdate = errors.New("ledger: unknown update id")

// InflightState tags the lifecycle of an in-flight update.
type InflightState int

const (
	// StatePending means chunks are still being collected.
	StatePending InflightState = iota

	// StateComplete means the EndUpdate arrived and the entry was taken
	// for application.
	StateComplete

	// StateExpired means the entry aged past the inactivity timeout and
	// was evicted; its edits are permanently lost.
	StateExpired
)

// inflight is one multi-part update under reassembly.
type inflight struct {
	id        uint64
	chunks    []wire.Message
	startedAt uint64
	state     InflightState
}

// Inflights is the table of multi-part updates under reassembly, keyed by
// update ID. All operations are mutually exclusive under one table lock;
// contention is bounded by the receive cadence.
//
// Completed batch IDs are remembered for one timeout window so that pieces
// of an already-applied batch arriving late (or an entire batch arriving
// after its EndUpdate) can still be applied instead of stranding in a new
// entry that never completes.
type Inflights struct {
	mu        sync.Mutex
	entries   map[uint64]*inflight
	completed map[uint64]uint64
}

// NewInflights creates an empty in-flight table.
func NewInflights() *Inflights {
	return &Inflights{
		entries:   make(map[uint64]*inflight),
		completed: make(map[uint64]uint64),
	}
}

// Begin opens an entry for msg's update ID with the given start tick.
// If an entry already exists (a duplicated StartUpdate), the chunk is
// appended to it instead.
func (t *Inflights) Begin(msg wire.Message, now uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[msg.UpdateID]
	if !ok {
		e = &inflight{id: msg.UpdateID, startedAt: now, state: StatePending}
		t.entries[msg.UpdateID] = e
	}
	e.chunks = append(e.chunks, msg)
}

// Append adds msg to its update's entry. Returns ErrUnknownUpdate when no
// entry exists; the caller decides the orphan policy.
func (t *Inflights) Append(msg wire.Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[msg.UpdateID]
	if !ok {
		return ErrUnknownUpdate
	}
	e.chunks = append(e.chunks, msg)
	return nil
}

// Take removes the entry for id and returns its chunks sorted by offset,
// ready to apply. The id is remembered as completed until the next eviction
// window passes. Returns ErrUnknownUpdate when no entry exists.
func (t *Inflights) Take(id, now uint64) ([]wire.Message, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[id]
	if !ok {
		return nil, ErrUnknownUpdate
	}
	delete(t.entries, id)
	e.state = StateComplete
	t.completed[id] = now

	sort.SliceStable(e.chunks, func(i, j int) bool {
		return e.chunks[i].Offset < e.chunks[j].Offset
	})
	return e.chunks, nil
}

// MarkCompleted remembers id as an applied batch without an entry ever
// having existed, the orphan-EndUpdate case.
func (t *Inflights) MarkCompleted(id, now uint64) {
	t.mu.Lock()
	t.completed[id] = now
	t.mu.Unlock()
}

// WasCompleted reports whether id belongs to a recently applied batch.
func (t *Inflights) WasCompleted(id uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.completed[id]
	return ok
}

// EvictExpired removes every entry whose start tick is older than timeout
// milliseconds before now and returns their update IDs. Evicted edits are
// permanently lost; no retransmission is requested. Completed-batch memory
// older than the same window is pruned silently.
func (t *Inflights) EvictExpired(now, timeout uint64) []uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	var expired []uint64
	for id, e := range t.entries {
		if now-e.startedAt > timeout {
			e.state = StateExpired
			delete(t.entries, id)
			expired = append(expired, id)
		}
	}
	for id, doneAt := range t.completed {
		if now-doneAt > timeout {
			delete(t.completed, id)
		}
	}
	return expired
}

// Len returns the number of updates under reassembly.
func (t *Inflights) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
