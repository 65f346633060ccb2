package corotask

import (
	"sync"
	"weak"
)

// taskRegistry tracks every ACTIVE task using weak pointers, so a task
// whose creator drops every strong reference remains collectible even
// though the registry still names its id — the process-wide "weak
// registry of all ACTIVE tasks" required by §3. Grounded on
// eventloop/registry.go's promise registry, simplified: unlike a promise,
// a Task proactively unregisters itself (Task.finish calls
// Runtime.unregisterTask), so no scavenging pass is required to reclaim
// settled entries — only GC'd ones, which Snapshot and CancelAll already
// skip via a nil weak.Pointer.Value().
type taskRegistry struct {
	mu   sync.RWMutex
	data map[uint64]weak.Pointer[Task]
}

func newTaskRegistry() *taskRegistry {
	return &taskRegistry{data: make(map[uint64]weak.Pointer[Task])}
}

func (r *taskRegistry) register(t *Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[t.id] = weak.Make(t)
}

func (r *taskRegistry) unregister(t *Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.data, t.id)
}

// Snapshot returns every still-live (not yet GC'd) registered task.
func (r *taskRegistry) Snapshot() []*Task {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Task, 0, len(r.data))
	for _, wp := range r.data {
		if t := wp.Value(); t != nil {
			out = append(out, t)
		}
	}
	return out
}

// CancelAll cancels every still-live registered task. Used by
// Runtime.Clear to drain the active-task registry to empty.
func (r *taskRegistry) CancelAll() {
	for _, t := range r.Snapshot() {
		t.Cancel(nil)
	}
}

func (r *taskRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.data)
}
