package scheduler

import (
	"sort"
	"sync"
)

// ResourceLockManager serializes tasks that declare the same resource in
// Descriptor.Resources. Each resource name gets its own mutex, so
// members touching disjoint resources still run concurrently.
type ResourceLockManager struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewResourceLockManager creates an empty lock manager.
func NewResourceLockManager() *ResourceLockManager {
	return &ResourceLockManager{
		locks: make(map[string]*sync.Mutex),
	}
}

func (r *ResourceLockManager) lockFor(resource string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[resource]
	if !ok {
		l = &sync.Mutex{}
		r.locks[resource] = l
	}
	return l
}

// Acquire locks every named resource and returns the function that releases
// them. Names are deduplicated and taken in sorted order so two callers can
// never deadlock on each other.
func (r *ResourceLockManager) Acquire(resources []string) (release func()) {
	if len(resources) == 0 {
		return func() {}
	}

	sorted := make([]string, 0, len(resources))
	seen := make(map[string]bool, len(resources))
	for _, res := range resources {
		if !seen[res] {
			seen[res] = true
			sorted = append(sorted, res)
		}
	}
	sort.Strings(sorted)

	held := make([]*sync.Mutex, 0, len(sorted))
	for _, res := range sorted {
		l := r.lockFor(res)
		l.Lock()
		held = append(held, l)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			for i := len(held) - 1; i >= 0; i-- {
				held[i].Unlock()
			}
		})
	}
}
