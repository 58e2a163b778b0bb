package worker

import (
	"fmt"
	"sync"
)

// Registry tracks which (employer, state) pairs currently hold a running
// submission inside this process. Cross-process exclusivity is enforced at
// job creation by the partial unique index over non-terminal jobs, so at
// most one active job per pair exists; the registry keeps two pool workers
// in the same process from racing that one job's queue entries between the
// status guard and the channel call.
type Registry struct {
	mu     sync.Mutex
	active map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{active: map[string]struct{}{}}
}

func inflightKey(employerID int64, stateCode string) string {
	return fmt.Sprintf("%d/%s", employerID, stateCode)
}

// Acquire claims the pair's token. It returns false when another worker
// already holds it.
func (r *Registry) Acquire(employerID int64, stateCode string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := inflightKey(employerID, stateCode)
	if _, held := r.active[key]; held {
		return false
	}
	r.active[key] = struct{}{}
	return true
}

// Release returns the pair's token. Safe to call for a token not held.
func (r *Registry) Release(employerID int64, stateCode string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.active, inflightKey(employerID, stateCode))
}
