package libbasin

import (
	"sync"

	"github.com/basin-systems/gobasin/gobasin"
)

// RunContext bundles one analysis run's read-only inputs: the sequence
// store handle plus the reverse index active for each rule.  Passing
// it explicitly (instead of module-level caches) keeps parallel basin
// computations free of hidden shared state.
type RunContext struct {
	Store gobasin.SequenceStore

	mu      sync.Mutex
	indexes map[gobasin.NRule]gobasin.ReverseIndex
	closed  chan struct{}
}

func NewRunContext(store gobasin.SequenceStore) *RunContext {
	return &RunContext{
		Store:   store,
		indexes: make(map[gobasin.NRule]gobasin.ReverseIndex),
		closed:  make(chan struct{}),
	}
}

// AttachIndex registers the reverse index serving rule n for the
// lifetime of the run.
func (rc *RunContext) AttachIndex(ix gobasin.ReverseIndex) {
	rc.mu.Lock()
	rc.indexes[ix.Rule()] = ix
	rc.mu.Unlock()
}

// Index returns the attached index for rule n, or nil.
func (rc *RunContext) Index(n gobasin.NRule) gobasin.ReverseIndex {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.indexes[n]
}

// Close closes every attached index.  The store is owned by the caller
// and stays open.
func (rc *RunContext) Close() error {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	var firstErr error
	for n, ix := range rc.indexes {
		if err := ix.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(rc.indexes, n)
	}
	select {
	case <-rc.closed:
	default:
		close(rc.closed)
	}
	return firstErr
}

// Done signals when Close has completed.
func (rc *RunContext) Done() <-chan struct{} {
	return rc.closed
}
