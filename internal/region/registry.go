package region

import (
	"fmt"
	"strings"
	"sync"

	"github.com/bft-labs/memsync/internal/wire"
)

// Registry owns every region this process has opened. It hands out stable
// *Region handles, serializes open/release against each other, and carries
// the change-notification hook fired on every bump.
type Registry struct {
	mu       sync.Mutex
	regions  map[string]*Region
	onChange func(name string)
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{regions: make(map[string]*Region)}
}

// OnChange registers a hook invoked with the region name after every Bump.
// Applies to regions opened before and after the call. A single hook is
// supported; registering replaces the previous one.
func (g *Registry) OnChange(fn func(name string)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onChange = fn
	for _, r := range g.regions {
		r.mu.Lock()
		r.notify = fn
		r.mu.Unlock()
	}
}

// Open creates a zero-initialized region of exactly size bytes, or returns
// the handle already held for name. Reopening with a different size fails.
func (g *Registry) Open(name string, size uint64) (*Region, error) {
	if name == "" || len(name) > wire.MaxRegionName {
		return nil, fmt.Errorf("%w: %q (%d bytes, max %d)", ErrNameTooLong, name, len(name), wire.MaxRegionName)
	}
	// Names are NUL-padded on the wire and decoded up to the first NUL; an
	// embedded NUL would make sender and receiver disagree on the name.
	if strings.IndexByte(name, 0) >= 0 {
		return nil, fmt.Errorf("%w: %q contains a NUL byte", ErrInvalidName, name)
	}
	if size == 0 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSize, name)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if r, ok := g.regions[name]; ok {
		if uint64(len(r.data)) != size {
			return nil, fmt.Errorf("%w: %q held with %d bytes, requested %d", ErrSizeMismatch, name, len(r.data), size)
		}
		return r, nil
	}

	r := &Region{
		name:   name,
		data:   make([]byte, size),
		notify: g.onChange,
	}
	g.regions[name] = r
	return r, nil
}

// Get returns the handle for name, or ErrNotFound.
func (g *Registry) Get(name string) (*Region, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.regions[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return r, nil
}

// Release invalidates every handle to name and forgets the region. Further
// access through old handles fails with ErrNotFound.
func (g *Registry) Release(name string) error {
	g.mu.Lock()
	r, ok := g.regions[name]
	if ok {
		delete(g.regions, name)
	}
	g.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	r.release()
	return nil
}

// Names returns a snapshot of the held region names.
func (g *Registry) Names() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	names := make([]string, 0, len(g.regions))
	for name := range g.regions {
		names = append(names, name)
	}
	return names
}

// Close releases every held region.
func (g *Registry) Close() {
	g.mu.Lock()
	regions := g.regions
	g.regions = make(map[string]*Region)
	g.mu.Unlock()

	for _, r := range regions {
		r.release()
	}
}
