// Package region owns the set of named byte regions a process holds: their
// contents, their version and dirty metadata, and the bounds-checked views
// the rest of the core uses to read and write them.
package region

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrNotFound reports an operation on a region this process does not
	// hold (never opened, or already released).
	ErrNotFound = errors.New("region: not found")

	// ErrOutOfRange reports an offset/length pair that falls outside the
	// region's byte image.
	ErrOutOfRange = errors.New("region: offset out of range")

	// ErrSizeMismatch reports reopening a held region with a different size.
	ErrSizeMismatch = errors.New("region: size mismatch")

	// ErrNameTooLong reports a region name beyond the wire format bound.
	ErrNameTooLong = errors.New("region: name too long")

	// ErrInvalidName reports a region name that cannot survive the wire
	// format's NUL-padded encoding.
	ErrInvalidName = errors.New("region: invalid name")

	// ErrInvalidSize reports a non-positive region size.
	ErrInvalidSize = errors.New("region: size must be positive")
)

// Region is one named block of bytes mirrored between nodes, together with
// the version counter and dirty flag change detection depends on.
//
// The version strictly increases on every edit. The dirty flag is true
// exactly when edits exist that have not been broadcast since the last
// clear. Both are kept consistent with the byte contents under the region's
// write lock.
type Region struct {
	name string

	mu           sync.RWMutex
	data         []byte
	version      uint64
	dirty        bool
	lastModified uint64
	released     bool

	notify func(name string)
}

// Name returns the region's name.
func (r *Region) Name() string { return r.name }

// Size returns the region's byte size.
func (r *Region) Size() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return uint64(len(r.data))
}

// Version returns the current version counter.
func (r *Region) Version() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.version
}

// Snapshot returns the version counter and dirty flag as one consistent pair.
func (r *Region) Snapshot() (version uint64, dirty bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.version, r.dirty
}

// LastModified returns the tick recorded by the most recent Bump.
func (r *Region) LastModified() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastModified
}

// ReadAt copies n bytes starting at off out of the region.
func (r *Region) ReadAt(off, n uint64) ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.released {
		return nil, ErrNotFound
	}
	if err := r.checkRange(off, n); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, r.data[off:off+n])
	return out, nil
}

// WriteAt copies p into the region at off without touching version or dirty
// state. Callers recording a local edit pair this with Bump through the
// change ledger.
func (r *Region) WriteAt(off uint64, p []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.released {
		return ErrNotFound
	}
	if err := r.checkRange(off, uint64(len(p))); err != nil {
		return err
	}
	copy(r.data[off:], p)
	return nil
}

// Bump increments the version counter, sets the dirty flag and records the
// modification tick. Every writer, local or applying a network update, calls
// this immediately after mutating the region's bytes; it is the single
// integration point change detection depends on.
func (r *Region) Bump(now uint64) error {
	r.mu.Lock()
	if r.released {
		r.mu.Unlock()
		return ErrNotFound
	}
	r.version++
	r.dirty = true
	r.lastModified = now
	notify := r.notify
	r.mu.Unlock()

	if notify != nil {
		notify(r.name)
	}
	return nil
}

// Apply writes p at off and bumps version and dirty state under one write
// lock, keeping metadata consistent with the bytes. Used when applying a
// received network update.
func (r *Region) Apply(off uint64, p []byte, now uint64) error {
	r.mu.Lock()
	if r.released {
		r.mu.Unlock()
		return ErrNotFound
	}
	if err := r.checkRange(off, uint64(len(p))); err != nil {
		r.mu.Unlock()
		return err
	}
	copy(r.data[off:], p)
	r.version++
	r.dirty = true
	r.lastModified = now
	notify := r.notify
	r.mu.Unlock()

	if notify != nil {
		notify(r.name)
	}
	return nil
}

// ClearDirty resets the dirty flag after a broadcast.
func (r *Region) ClearDirty() {
	r.mu.Lock()
	r.dirty = false
	r.mu.Unlock()
}

func (r *Region) checkRange(off, n uint64) error {
	size := uint64(len(r.data))
	if off > size || n > size-off {
		return fmt.Errorf("%w: [%d,%d) in region of %d bytes", ErrOutOfRange, off, off+n, size)
	}
	return nil
}

func (r *Region) release() {
	r.mu.Lock()
	r.released = true
	r.data = nil
	r.mu.Unlock()
}
