package corotask

import (
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// threadLocal is the per-Thread goroutine-local state referenced from
// task.go, taskset.go and executor.go: the task-execution stack (for parent
// inference and Wait's re-entrancy check) and the TaskSet-scope stack (for
// as_scope adoption). It is touched only by the goroutine that owns the
// Thread and by the body goroutine of the task that goroutine is currently
// driving, which runs only while the driver is blocked handing control to
// it (§5's locking discipline), so it carries no lock of its own.
type threadLocal struct {
	execStack  []*Task
	scopeStack []*TaskSet
}

// Thread is one host goroutine driving a FIFO runqueue of tasks (§4.3). A
// registered Thread wraps an already-running goroutine that calls into the
// runtime (created via Runtime.currentThread on first contact); a spawned
// Thread (NewThread) owns a dedicated goroutine running ExecuteTasksLoop for
// its entire lifetime.
type Thread struct {
	name string
	rt   *Runtime
	gid  uint64

	// created is true for a Thread whose goroutine was spawned by NewThread,
	// false for one lazily registered for a goroutine that called into the
	// runtime of its own accord.
	created bool

	pacing pacingConfig

	mu   sync.Mutex
	runq *taskRing

	finalizing   atomic.Bool
	finalizeOnce sync.Once
	finalizedCh  chan struct{}

	tls threadLocal
}

func newThread(rt *Runtime, name string, gid uint64, created bool, pacing pacingConfig) *Thread {
	return &Thread{
		name:        name,
		rt:          rt,
		gid:         gid,
		created:     created,
		pacing:      pacing,
		runq:        newTaskRing(),
		finalizedCh: make(chan struct{}),
	}
}

// NewThread spawns a dedicated goroutine which registers itself as a new
// Thread and immediately begins ExecuteTasksLoop(nil), returning once the
// Thread has registered (so the returned value's Name and AddTask are
// immediately usable). The goroutine runs until Finalize is called on the
// returned Thread.
func (rt *Runtime) NewThread(name string, opts ...ThreadOption) *Thread {
	cfg := resolveThreadOptions(rt.pacing(), opts)
	ready := make(chan *Thread, 1)
	go func() {
		gid := goroutineID()
		th := newThread(rt, name, gid, true, cfg.pacing)
		rt.registerThread(gid, th)
		rt.logger.trace("thread started", map[string]string{"thread": th.name})
		ready <- th
		th.ExecuteTasksLoop(nil)
	}()
	return <-ready
}

// Name returns the Thread's debug name.
func (th *Thread) Name() string { return th.name }

// AddTask enqueues t onto this Thread's runqueue for its next drive cycle,
// returning false (without enqueuing) if the Thread is finalizing or
// finalized.
func (th *Thread) AddTask(t *Task) bool { return th.addTask(t) }

func (th *Thread) addTask(t *Task) bool {
	th.mu.Lock()
	defer th.mu.Unlock()
	if th.finalizing.Load() {
		return false
	}
	th.runq.PushBack(t)
	return true
}

// ExecuteTasksOnce drains and drives exactly one batch (the tasks enqueued
// as of the call) of this Thread's runqueue, returning how many tasks were
// driven. It must be called from the Thread's own goroutine (misuse
// otherwise), matching T1: a task is only ever driven by its Thread's own
// goroutine.
func (th *Thread) ExecuteTasksOnce() int {
	if goroutineID() != th.gid {
		misuse("ExecuteTasksOnce() called on thread %s from a foreign goroutine", th.name)
	}
	th.mu.Lock()
	tasks := th.runq.Snapshot()
	th.mu.Unlock()
	for _, t := range tasks {
		t.executor.exec()
	}
	return len(tasks)
}

// ExecuteTasksLoop repeatedly calls ExecuteTasksOnce, pacing itself per
// §4.3 (a forced sleep of forcedSleepDuration at least every
// forcedSleepInterval, and a floor of minCycleTime per cycle, enforced by
// sleeping for whatever remains of it after the drain),
// until Finalize is called on this Thread or condition returns true.
// Returning via condition leaves the Thread's runqueue untouched; returning
// because of Finalize additionally drains the queue, cancelling every
// remaining task, before ExecuteTasksLoop returns.
func (th *Thread) ExecuteTasksLoop(condition func() bool) {
	lastForced := time.Now()
	for {
		if th.finalizing.Load() {
			th.drainFinalize()
			return
		}
		if condition != nil && condition() {
			return
		}

		cycleStart := time.Now()
		th.ExecuteTasksOnce()
		if elapsed := time.Since(cycleStart); elapsed < th.pacing.minCycleTime {
			time.Sleep(th.pacing.minCycleTime - elapsed)
		}
		if time.Since(lastForced) >= th.pacing.forcedSleepInterval {
			time.Sleep(th.pacing.forcedSleepDuration)
			lastForced = time.Now()
		}
	}
}

// idleSleep is the short pause Task.Wait takes between empty drive cycles,
// so a busy-wait on an otherwise-idle Thread still yields the host CPU.
func (th *Thread) idleSleep() {
	time.Sleep(th.pacing.forcedSleepDuration)
}

// Finalize cancels every task currently queued on this Thread and marks it
// as rejecting further enqueues, then returns once that drain has
// completed (§4.3 finalize). Called from the Thread's own goroutine (the
// usual case for a registered Thread, which has no separate driver), the
// drain runs inline. Called from any other goroutine against a spawned
// Thread, Finalize signals its driver loop and waits for it to perform the
// drain itself, preserving T1. Calling it from a foreign goroutine against
// a registered Thread is misuse: there is no driver goroutine to converge
// on.
func (th *Thread) Finalize() {
	if goroutineID() == th.gid {
		th.finalizing.Store(true)
		th.drainFinalize()
		return
	}
	if !th.created {
		misuse("Finalize() of registered thread %s called from a foreign goroutine", th.name)
	}
	th.finalizing.Store(true)
	<-th.finalizedCh
}

// finalizeOrphan finalizes a registered (non-created) Thread inline,
// regardless of which goroutine calls it. Thread.Finalize deliberately
// misuse-panics when a foreign goroutine calls it against a registered
// Thread, since there is normally no driver goroutine to converge on for
// one — but Runtime.Clear is not "normal" use: it must also reach
// registered Threads whose one-off owning goroutine already exited
// without ever finalizing itself (e.g. a goroutine that only ever called
// Go targeting some other, different Thread). Safe to call concurrently
// with anything else touching th, since drainFinalize only touches th.mu
// and th.finalizeOnce.
func (th *Thread) finalizeOrphan() {
	th.finalizing.Store(true)
	th.drainFinalize()
}

// drainFinalize cancels every remaining queued task (including ones
// enqueued mid-drain by cancellation side-effects) until the runqueue is
// empty, then unregisters the Thread and signals anyone blocked in
// Finalize. Idempotent: only the first caller (whether that is Finalize
// itself or ExecuteTasksLoop noticing finalizing) performs the drain.
func (th *Thread) drainFinalize() {
	th.finalizeOnce.Do(func() {
		for {
			th.mu.Lock()
			tasks := th.runq.Snapshot()
			th.mu.Unlock()
			if len(tasks) == 0 {
				break
			}
			for _, t := range tasks {
				t.Cancel(nil)
			}
		}
		th.rt.unregisterThread(th.gid)
		th.rt.logger.trace("thread finalized", map[string]string{"thread": th.name})
		close(th.finalizedCh)
	})
}

// queuedTasks returns a snapshot of the tasks currently waiting on this
// Thread's runqueue, without draining it. Used only for debug reporting.
func (th *Thread) queuedTasks() []*Task {
	th.mu.Lock()
	defer th.mu.Unlock()
	return th.runq.Peek()
}

func (th *Thread) String() string {
	th.mu.Lock()
	n := th.runq.Len()
	th.mu.Unlock()
	return "[Thread][" + th.name + "][queued=" + strconv.Itoa(n) + "]"
}
