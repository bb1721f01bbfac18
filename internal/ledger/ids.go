package ledger

import (
	"math/rand"
	"sync"
)

// IDSource generates update IDs unique per batch for this sender: the
// sender's coarse tick count in the high 32 bits plus a random low word.
// An exact repeat of the previous ID is broken deterministically by
// bumping. IDs from different senders can still collide; embedding a
// sender identity would be required to rule that out.
type IDSource struct {
	mu   sync.Mutex
	last uint64
}

// NewIDSource creates an ID source.
func NewIDSource() *IDSource {
	return &IDSource{}
}

// Next returns a fresh update ID for a batch encoded at the given tick.
func (s *IDSource) Next(nowTicks uint64) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := nowTicks<<32 | uint64(rand.Uint32())
	if id == s.last {
		id++
	}
	s.last = id
	return id
}
