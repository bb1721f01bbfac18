// Package clock provides the monotonic millisecond tick source used for
// message timestamps and in-flight timeout bookkeeping.
package clock

import (
	"sync"
	"time"
)

// Clock supplies monotonic time to the synchronization core.
type Clock interface {
	// Ticks returns milliseconds elapsed on a monotonic clock.
	Ticks() uint64

	// Now returns the current wall-clock time.
	Now() time.Time
}

// System implements Clock using the runtime monotonic clock.
// Ticks counts milliseconds since the System clock was created.
type System struct {
	start time.Time
}

// NewSystem creates a system clock anchored at the current instant.
func NewSystem() *System {
	return &System{start: time.Now()}
}

// Ticks returns milliseconds elapsed since the clock was created.
func (s *System) Ticks() uint64 {
	return uint64(time.Since(s.start) / time.Millisecond)
}

// Now returns the current time.
func (s *System) Now() time.Time {
	return time.Now()
}

// Fake implements Clock with a manually advanced tick counter for tests.
type Fake struct {
	mu    sync.Mutex
	ticks uint64
}

// NewFake creates a fake clock starting at tick zero.
func NewFake() *Fake {
	return &Fake{}
}

// Ticks returns the current fake tick count.
func (f *Fake) Ticks() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ticks
}

// Now returns the zero time advanced by the current tick count.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return time.Time{}.Add(time.Duration(f.ticks) * time.Millisecond)
}

// Advance moves the fake clock forward by d.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ticks += uint64(d / time.Millisecond)
}

// Set pins the fake clock to an absolute tick count.
func (f *Fake) Set(ticks uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ticks = ticks
}
