// Package ledger tracks byte-range changes between their occurrence and
// their broadcast, and reassembles multi-part updates arriving from the
// network. It owns two independently locked tables: per-region pending
// edits and in-flight updates keyed by update ID.
package ledger

import (
	"sync"
)

// Edit is one recorded, not-yet-broadcast byte range change to a region.
type Edit struct {
	Offset uint64
	Length uint64
}

// Ledger holds the pending-edit table. Edits for a region are appended by
// local writers and drained wholesale by that region's broadcaster; the two
// never race beyond the table lock.
type Ledger struct {
	mu      sync.Mutex
	pending map[string][]Edit
}

// New creates an empty ledger.
func New() *Ledger {
	return &Ledger{pending: make(map[string][]Edit)}
}

// Record appends a pending edit for region.
func (l *Ledger) Record(region string, off, n uint64) {
	l.mu.Lock()
	l.pending[region] = append(l.pending[region], Edit{Offset: off, Length: n})
	l.mu.Unlock()
}

// Drain atomically removes and returns every pending edit for region in
// recording order. An empty result signals that no fine-grained tracking is
// available and the whole region should be broadcast.
func (l *Ledger) Drain(region string) []Edit {
	l.mu.Lock()
	defer l.mu.Unlock()
	edits := l.pending[region]
	if len(edits) == 0 {
		return nil
	}
	delete(l.pending, region)
	return edits
}

// Pending returns the number of recorded edits for region.
func (l *Ledger) Pending(region string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending[region])
}

// Forget drops any pending edits for region. Used when a region is released
// while edits are still queued.
func (l *Ledger) Forget(region string) {
	l.mu.Lock()
	delete(l.pending, region)
	l.mu.Unlock()
}
