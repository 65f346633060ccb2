package corotask

import (
	"strconv"
	"sync"
)

// TaskSet is a thread-safe collection of tasks, supporting add/remove/
// fetch/cancel-all/finalize and ambient-scope registration (§4.4). The two
// co-present revisions of this type observed in the source this runtime is
// modeled on (a plain collection, and a scope-capable variant) are merged
// into one type here, per SPEC_FULL.md §4: scoping is one capability of
// TaskSet, not a second type.
type TaskSet struct {
	name string

	mu        sync.Mutex
	tasks     map[*Task]struct{}
	finalized bool
}

// NewTaskSet constructs an empty TaskSet. name is used only for debug
// output.
func NewTaskSet(name string) *TaskSet {
	return &TaskSet{name: name, tasks: make(map[*Task]struct{})}
}

// Name returns the TaskSet's debug name.
func (ts *TaskSet) Name() string { return ts.name }

// Add inserts task into the set, under task lock then set lock (§4.4's
// stated acquisition order, to avoid deadlock with Task.finish). It
// refuses a non-ACTIVE task or a finalized set (S1). If removeOnDone is
// true, the task is automatically removed from the set when it
// terminates. Every successful Add severs any existing parent link (I4) —
// the task then lives as long as the set cares to hold it, not as long as
// its creator.
func (ts *TaskSet) Add(t *Task, removeOnDone bool) bool {
	t.doneMu.Lock()
	if t.state.Load() != stateActive {
		t.doneMu.Unlock()
		return false
	}

	ts.mu.Lock()
	if ts.finalized {
		ts.mu.Unlock()
		t.doneMu.Unlock()
		return false
	}
	if ts.tasks == nil {
		ts.tasks = make(map[*Task]struct{})
	}
	ts.tasks[t] = struct{}{}
	ts.mu.Unlock()

	parent := t.parent
	t.parent = nil
	if removeOnDone {
		t.onDone = append(t.onDone, func(done *Task) { ts.Remove(done) })
	}
	t.doneMu.Unlock()

	if parent != nil {
		parent.removeChild(t)
	}
	return true
}

// Remove deletes task from the set if present; a no-op on a finalized
// set (ignored, per §4.4).
func (ts *TaskSet) Remove(t *Task) {
	t.doneMu.Lock()
	defer t.doneMu.Unlock()
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if ts.finalized {
		return
	}
	delete(ts.tasks, t)
}

// Count returns the current membership size.
func (ts *TaskSet) Count() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return len(ts.tasks)
}

// IsEmpty reports whether the set currently has no members.
func (ts *TaskSet) IsEmpty() bool {
	return ts.Count() == 0
}

// CancelAll atomically empties the set, then cancels every task that was a
// member (outside the set's lock, since Task.Cancel may recurse into
// other locks).
func (ts *TaskSet) CancelAll() {
	ts.mu.Lock()
	tasks := ts.tasks
	ts.tasks = make(map[*Task]struct{})
	ts.mu.Unlock()
	for t := range tasks {
		t.Cancel(nil)
	}
}

// Finalize atomically empties the set and marks it rejecting further
// additions, then cancels every task that was a member (S3).
func (ts *TaskSet) Finalize() {
	ts.mu.Lock()
	tasks := ts.tasks
	ts.tasks = nil
	ts.finalized = true
	ts.mu.Unlock()
	for t := range tasks {
		t.Cancel(nil)
	}
}

// Fetch returns, and removes from the set, every member matching both
// optional predicates. A nil predicate matches anything; done matches
// Task.IsDone, success matches Task.IsSucceeded.
func (ts *TaskSet) Fetch(done, success *bool) []*Task {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	var out []*Task
	for t := range ts.tasks {
		if done != nil && t.IsDone() != *done {
			continue
		}
		if success != nil && t.IsSucceeded() != *success {
			continue
		}
		out = append(out, t)
		delete(ts.tasks, t)
	}
	return out
}

// AsScope runs f with ts pushed onto the calling goroutine's current
// Thread ts-scope stack: every task created (via Go) during f, on this
// same thread, is auto-added to ts with remove-on-done and created
// without a parent link (§4.4 as_scope, P9). The scope is always popped
// before AsScope returns, even if f panics — expressed here as ordinary
// Go closure/defer scoping rather than a separate enter/leave object,
// since that is the idiomatic equivalent of a push/pop context manager.
func (ts *TaskSet) AsScope(rt *Runtime, f func()) {
	th := rt.currentThread()
	th.tls.scopeStack = append(th.tls.scopeStack, ts)
	defer func() {
		stack := th.tls.scopeStack
		th.tls.scopeStack = stack[:len(stack)-1]
	}()
	f()
}

func (ts *TaskSet) String() string {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return "[TaskSet][" + ts.name + "][count=" + strconv.Itoa(len(ts.tasks)) + "]"
}
