package corotask

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Task is the unit of cooperative execution: a lifecycle state, a stored
// result or cancellation cause, parent/child links, on-done callbacks and
// currently-held Sections.
//
// Two non-reentrant mutexes guard a Task, in place of the single re-entrant
// lock used by the implementation this runtime is modeled on (see
// DESIGN.md, Open Question 2): execMu serializes TaskExecutor's drive loop
// for this task (T1's "never driven by two host threads at once"); doneMu
// guards only the terminal-transition critical section. finish never
// acquires execMu, so there is no reentrancy to manage.
type Task struct {
	id   uint64
	name string
	rt   *Runtime

	state atomicState

	execMu sync.Mutex

	doneMu   sync.Mutex
	result   any
	cause    error
	parent   *Task
	children map[*Task]struct{}
	sections []*Section
	onDone   []func(*Task)

	executor *TaskExecutor
}

var taskIDs atomic.Uint64

// newTask allocates a Task in state ACTIVE, registers it in the Runtime's
// active-task registry, and binds it to an ambient parent/scope computed
// from the calling goroutine's TLS (§4.1 create): the topmost entry of the
// current thread's task-execution stack becomes the parent, unless the
// current thread's ts-scope stack is non-empty, in which case every
// TaskSet on that stack adopts the task (remove-on-done) and the
// parent-child link is not formed at all, per §4.4 as_scope.
func newTask(rt *Runtime, name string) *Task {
	t := &Task{
		id:   taskIDs.Add(1),
		name: name,
		rt:   rt,
	}
	rt.registerTask(t)
	rt.logger.trace("task created", map[string]string{"task": t.String()})

	th := rt.currentThread()
	scopes := th.tls.scopeStack
	if len(scopes) > 0 {
		for _, ts := range scopes {
			ts.Add(t, true)
		}
		return t
	}
	if n := len(th.tls.execStack); n > 0 {
		parent := th.tls.execStack[n-1]
		if parent.addChild(t) {
			t.parent = parent
		}
	}
	return t
}

// addChild records child as currently held by t, returning false if t is
// already terminal (in which case the caller must not set its own parent
// pointer to t, since t will never cancel it).
func (t *Task) addChild(child *Task) bool {
	t.doneMu.Lock()
	defer t.doneMu.Unlock()
	if t.state.Load() != stateActive {
		return false
	}
	if t.children == nil {
		t.children = make(map[*Task]struct{})
	}
	t.children[child] = struct{}{}
	return true
}

func (t *Task) removeChild(child *Task) {
	t.doneMu.Lock()
	defer t.doneMu.Unlock()
	delete(t.children, child)
}

// Name returns the task's optional name.
func (t *Task) Name() string { return t.name }

// IsDone reports whether the task has reached a terminal state (P1: this
// becomes true at most once and stays true).
func (t *Task) IsDone() bool { return t.state.Load() != stateActive }

// IsSucceeded reports whether the task terminated successfully.
func (t *Task) IsSucceeded() bool { return t.state.Load() == stateSucceeded }

// State returns the task's current lifecycle state.
func (t *Task) State() taskState { return t.state.Load() }

// Result returns the task's stored result. It panics (misuse) if the task
// has not terminated with SUCCEEDED.
func (t *Task) Result() any {
	if t.state.Load() != stateSucceeded {
		misuse("Result() called on task %s not in SUCCEEDED state", t)
	}
	return t.result
}

// Exception returns the cancellation cause, which may be nil (a clean
// cancellation carries none). It panics (misuse) if the task has not
// terminated with CANCELLED.
func (t *Task) Exception() error {
	if t.state.Load() != stateCancelled {
		misuse("Exception() called on task %s not in CANCELLED state", t)
	}
	return t.cause
}

// CallOnDone registers f to run once the task terminates. If the task is
// already done, f runs immediately (synchronously, on the calling
// goroutine). Otherwise f is queued and invoked, in registration order,
// exactly once, after the terminal state (and every effect required by the
// terminal-ordering rule) is observable elsewhere (P2).
func (t *Task) CallOnDone(f func(*Task)) {
	t.doneMu.Lock()
	if t.state.Load() == stateActive {
		t.onDone = append(t.onDone, f)
		t.doneMu.Unlock()
		return
	}
	t.doneMu.Unlock()
	f(t)
}

// Succeed terminates the task with success and the given result. It is
// idempotent: a task already done is unaffected.
func (t *Task) Succeed(result any) {
	t.finish(stateSucceeded, result, nil)
}

// Cancel terminates the task with CANCELLED, optionally carrying cause. It
// is idempotent: a task already done is unaffected.
func (t *Task) Cancel(cause error) {
	t.finish(stateCancelled, nil, cause)
}

// finish implements the single terminal transition both Succeed and
// Cancel delegate through, double-checked against a concurrent terminal
// transition, exactly as described in §4.1 step (a)-(g), except that
// section release, parent detachment, child cancellation and callbacks
// all run with doneMu released (see
// DESIGN.md, Open Question 1 — this runtime follows that ordering, not the
// original's literal held-locks behavior).
func (t *Task) finish(newState taskState, result any, cause error) {
	if t.state.Load() != stateActive {
		return
	}

	t.doneMu.Lock()
	if t.state.Load() != stateActive {
		t.doneMu.Unlock()
		return
	}

	t.result = result
	t.cause = cause
	t.state.store(newState)

	if newState == stateCancelled {
		if _, uncaught := cause.(*panicError); uncaught {
			t.rt.logger.critical("unhandled exception in task body", t.String(), cause)
		}
	}
	t.rt.logger.trace("task finished", map[string]string{"task": t.String()})

	sections := t.sections
	t.sections = nil

	children := make([]*Task, 0, len(t.children))
	for c := range t.children {
		children = append(children, c)
	}
	t.children = nil

	parent := t.parent
	t.parent = nil

	callbacks := t.onDone
	t.onDone = nil

	t.doneMu.Unlock()

	for _, s := range sections {
		s.leave(t)
	}
	if parent != nil {
		parent.removeChild(t)
	}
	for _, c := range children {
		c.Cancel(nil)
	}

	for _, f := range callbacks {
		f(t)
	}

	t.rt.unregisterTask(t)
}

// Wait blocks the calling goroutine, draining its current Thread's
// runqueue, until the task is done. It panics (misuse) if called from
// within a task body currently being driven on that thread — there is no
// re-entrant waiting.
func (t *Task) Wait() {
	th := t.rt.currentThread()
	if len(th.tls.execStack) > 0 {
		misuse("Wait() called from within a running task on thread %s", th.name)
	}
	for !t.IsDone() {
		if th.ExecuteTasksOnce() == 0 {
			th.idleSleep()
		}
	}
}

// Propagate links self so that, when other terminates, self inherits the
// same terminal state and result/exception (P6).
func (t *Task) Propagate(other *Task) {
	other.CallOnDone(func(o *Task) {
		if o.IsSucceeded() {
			t.Succeed(o.Result())
		} else {
			t.Cancel(o.Exception())
		}
	})
}

func (t *Task) addSection(s *Section) {
	t.doneMu.Lock()
	defer t.doneMu.Unlock()
	t.sections = append(t.sections, s)
}

func (t *Task) removeSection(s *Section) {
	t.doneMu.Lock()
	defer t.doneMu.Unlock()
	for i, have := range t.sections {
		if have == s {
			t.sections = append(t.sections[:i], t.sections[i+1:]...)
			return
		}
	}
}

func (t *Task) String() string {
	name := t.name
	if name == "" {
		name = fmt.Sprintf("task-%d", t.id)
	}
	switch t.state.Load() {
	case stateSucceeded:
		return fmt.Sprintf("[Task][%s][SUCCEEDED][Result: %v]", name, t.result)
	case stateCancelled:
		return fmt.Sprintf("[Task][%s][CANCELLED][Exception: %v]", name, t.cause)
	default:
		return fmt.Sprintf("[Task][%s][ACTIVE]", name)
	}
}
