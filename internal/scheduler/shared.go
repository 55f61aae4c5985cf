package scheduler

import (
	"fmt"
	"sync"

	"github.com/trustplatform/trustrun/internal/runtime"
	"github.com/trustplatform/trustrun/internal/value"
)

// SharedGlobals synchronizes a named subset of globals across resources
// (spec.md §4.6). The lock is held for an entire cycle: values are copied
// in, the cycle runs, values are copied back out, so no partial update is
// ever visible to another resource.
type SharedGlobals struct {
	names []string
	mu    sync.Mutex
	vals  map[string]value.Value
}

// NewSharedGlobalsFromRuntime snapshots names out of rt's storage to seed
// the shared set.
func NewSharedGlobalsFromRuntime(rt *runtime.Runtime, names []string) (*SharedGlobals, error) {
	vals := make(map[string]value.Value, len(names))
	for _, n := range names {
		v, err := rt.Storage.GetGlobal(n)
		if err != nil {
			return nil, err
		}
		vals[n] = v
	}
	cp := make([]string, len(names))
	copy(cp, names)
	return &SharedGlobals{names: cp, vals: vals}, nil
}

// Get reads a shared global's current value.
func (g *SharedGlobals) Get(name string) (value.Value, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	v, ok := g.vals[name]
	return v, ok
}

// RunLocked copies the shared set into rt, runs fn (typically a single
// ExecuteCycle call) with the lock held, then copies the (possibly
// changed) values back out.
func (g *SharedGlobals) RunLocked(rt *runtime.Runtime, fn func() error) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, n := range g.names {
		v, ok := g.vals[n]
		if !ok {
			return fmt.Errorf("shared global %q not present", n)
		}
		if err := rt.Storage.SetGlobal(n, v); err != nil {
			return err
		}
	}

	err := fn()

	for _, n := range g.names {
		v, gerr := rt.Storage.GetGlobal(n)
		if gerr != nil {
			if err == nil {
				err = gerr
			}
			continue
		}
		g.vals[n] = v
	}
	return err
}
