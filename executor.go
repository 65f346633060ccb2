package corotask

import (
	"sync/atomic"
	"time"
)

// Yielder is passed to every task body; its methods are the only way a
// body requests a scheduling action. Each method blocks the calling
// goroutine (the task's body goroutine, never a Thread's drain goroutine)
// until the executor resumes it, returning ErrTaskDone if the task was
// terminated externally while parked.
type Yielder struct {
	yieldCh  chan Yield
	resumeCh chan error
}

func newYielder() *Yielder {
	return &Yielder{
		yieldCh:  make(chan Yield),
		resumeCh: make(chan error),
	}
}

func (y *Yielder) yield(v Yield) error {
	y.yieldCh <- v
	return <-y.resumeCh
}

// AddTo requests that the task join ts, with remove-on-done, per §4.5
// add_to. If ts is finalized, the task is cancelled without exception.
func (y *Yielder) AddTo(ts *TaskSet) error { return y.yield(yieldAddTo{set: ts}) }

// SwitchThread requests that the task migrate to t, resuming there on its
// next drive cycle.
func (y *Yielder) SwitchThread(t *Thread) error { return y.yield(yieldSwitchThread{thread: t}) }

// Wait suspends the task until every given task is done.
func (y *Yielder) Wait(tasks ...*Task) error { return y.yield(yieldWait{tasks: tasks}) }

// Succeed terminates the task immediately with the given result, giving
// the body an explicit way to finish from a nested loop without returning
// directly.
func (y *Yielder) Succeed(result any) error { return y.yield(yieldSuccess{result: result}) }

// CancelSelf terminates the task immediately as CANCELLED, carrying the
// optional cause.
func (y *Yielder) CancelSelf(cause error) error { return y.yield(yieldCancel{err: cause}) }

// PropagateFrom links the task so it inherits other's terminal outcome;
// the task is never resumed normally afterward (it is instead terminated
// directly, from other's on-done callback).
func (y *Yielder) PropagateFrom(other *Task) error { return y.yield(yieldPropagate{other: other}) }

// Sleep suspends the task for at least d.
func (y *Yielder) Sleep(d time.Duration) error {
	return y.yield(yieldSleep{deadline: time.Now().Add(d)})
}

// SleepTick suspends the task for a single scheduling tick — the minimum
// possible amount of time between two drive cycles.
func (y *Yielder) SleepTick() error { return y.yield(yieldSleepTick{remaining: 1}) }

// Enter attempts to claim s, non-blocking at the host level: on failure
// the task is simply rescheduled and retries on its next drive.
func (y *Yielder) Enter(s *Section) error { return y.yield(yieldEnter{section: s}) }

// Leave releases s if the task currently holds it.
func (y *Yielder) Leave(s *Section) error { return y.yield(yieldLeave{section: s}) }

// CancelAll cancels every given task as a single yield.
func (y *Yielder) CancelAll(tasks ...*Task) error { return y.yield(yieldCancelAll{tasks: tasks}) }

// TaskExecutor drives exactly one coroutine-backed task through its
// yields, on its currently-bound Thread (§4.2). The coroutine body runs on
// a dedicated goroutine; TaskExecutor and the body goroutine hand off
// control over a pair of channels, a stand-in for the generator
// send/throw/close protocol the implementation this runtime is modeled on
// relies on — the mechanism is a free choice per §9, the dispatch
// contract in §4.5 is not.
type TaskExecutor struct {
	task    *Task
	yielder *Yielder
	done    chan struct{}

	continueExecution bool
	currentThread     *Thread
	lastYield         Yield
	bodyParked        atomic.Bool

	// bodyGID is the body goroutine's own id, aliased to currentThread in
	// Runtime's thread registry (see the goroutine func in attachExecutor)
	// so lookups made from inside body resolve to the Task's actual bound
	// Thread. Re-aliased on SwitchThread, below.
	bodyGID uint64
}

// attachExecutor wires a fresh TaskExecutor to t, starts the body
// goroutine, registers the termination cleanup hook, and drives the first
// exec() cycle — inline, if the calling goroutine is already thread's own
// driving goroutine (mirroring the task factory semantics of §6: "if a
// coroutine, attaches a TaskExecutor which begins driving on the calling
// thread"), or by enqueuing onto thread otherwise, preserving T1 (a task
// is only ever driven by its own Thread's goroutine).
func attachExecutor[T any](t *Task, thread *Thread, body func(*Yielder) (T, error)) {
	y := newYielder()
	ex := &TaskExecutor{
		task:              t,
		yielder:           y,
		done:              make(chan struct{}),
		continueExecution: true,
		currentThread:     thread,
	}
	// The body goroutine starts parked on its initial resumeCh receive,
	// below, and stays "parked" (bodyParked == true) for as long as it is
	// blocked on that channel — which, after its first yield, may span
	// many exec() drive cycles (sleeping, waiting, switching threads) or
	// indeed the task's entire remaining lifetime (propagate). See
	// onTaskDone and exec below.
	ex.bodyParked.Store(true)
	t.executor = ex

	t.CallOnDone(ex.onTaskDone)

	go func() {
		// The body runs on its own dedicated goroutine (see TaskExecutor's
		// doc comment), distinct from thread's driving goroutine — so
		// without this, any Runtime.currentThread lookup made from inside
		// body (newTask's parent inference, Task.Wait's re-entrancy check,
		// TaskSet.AsScope) would resolve a different, freshly-registered
		// Thread rather than the one this task is actually bound to.
		// Aliasing this goroutine's id to thread fixes that; it never
		// affects thread.gid, so foreign-goroutine misuse checks against
		// thread itself (ExecuteTasksOnce, Finalize) are unaffected.
		gid := goroutineID()
		ex.bodyGID = gid
		t.rt.registerThread(gid, thread)
		defer t.rt.unregisterThread(gid)

		defer close(ex.done)
		defer func() {
			if r := recover(); r != nil {
				t.Cancel(&panicError{value: r})
			}
		}()
		if startErr := <-y.resumeCh; startErr != nil {
			return
		}
		result, err := body(y)
		if err != nil {
			t.Cancel(err)
		} else {
			t.Succeed(result)
		}
	}()

	// exec() must only ever run on thread's own driving goroutine (T1). If
	// the calling goroutine already is that goroutine (the common case: no
	// explicit thread override, or a body creating a child on its own
	// thread), drive the first cycle inline, exactly as if the task had
	// just been dequeued. Otherwise — creating a task explicitly targeted
	// at a different Thread, e.g. handing work to a worker spawned via
	// Runtime.NewThread — just enqueue it; thread's own loop drives the
	// first cycle on its next pass.
	if goroutineID() == thread.gid {
		ex.exec()
	} else if !thread.addTask(t) {
		t.Cancel(nil)
	}
}

// onTaskDone injects ErrTaskDone into the coroutine body if it is still
// parked on a yield, giving user code a single chance to clean up before
// the body is abandoned. Once the body has received it, onTaskDone waits
// until the body either exits or yields again (that yield is taken and
// never answered), so its cleanup has run by the time onTaskDone returns.
// If the body is not currently parked (e.g. it is running and is itself
// terminating the task, or has already exited), the send is skipped
// entirely and onTaskDone returns at once.
func (ex *TaskExecutor) onTaskDone(*Task) {
	if ex.bodyParked.Load() {
		select {
		case ex.yielder.resumeCh <- ErrTaskDone:
			select {
			case <-ex.done:
			case <-ex.yielder.yieldCh:
			}
		default:
		}
	}
}

// exec is the drive loop (§4.2), invoked synchronously at task creation
// when the creating goroutine is the task's Thread's own (see
// attachExecutor), and again each time the task is dequeued from a
// Thread's runqueue. It always runs under the task's execMu, so a task is never
// driven by two goroutines at once (§5).
func (ex *TaskExecutor) exec() {
	t := ex.task
	if t.State() != stateActive {
		return
	}

	t.execMu.Lock()
	defer t.execMu.Unlock()
	if t.State() != stateActive {
		return
	}

	th := ex.currentThread
	th.tls.execStack = append(th.tls.execStack, t)
	defer func() {
		stack := th.tls.execStack
		th.tls.execStack = stack[:len(stack)-1]
	}()

	for {
		if ex.continueExecution {
			select {
			case ex.yielder.resumeCh <- nil:
				// Body received the resume signal and is now running;
				// it is not parked again until it next calls yield (or
				// exits, in which case done closes instead).
				ex.bodyParked.Store(false)
			case <-ex.done:
				return
			}

			var (
				yv   Yield
				live bool
			)
			select {
			case yv = <-ex.yielder.yieldCh:
				live = true
			case <-ex.done:
				live = false
			}
			// The body has either sent its next yield and immediately
			// blocked again on resumeCh (live), or exited (!live, in
			// which case bodyParked no longer matters: done is closed).
			ex.bodyParked.Store(true)
			if !live {
				// Body returned (or panicked); it already applied its own
				// terminal transition.
				return
			}
			ex.lastYield = yv
		}

		ex.dispatch(ex.lastYield)

		if t.IsDone() {
			return
		}
		if !ex.continueExecution {
			if ex.currentThread != nil {
				if !ex.currentThread.addTask(t) {
					t.Cancel(nil)
				}
			}
			return
		}
	}
}

func (ex *TaskExecutor) dispatch(y Yield) {
	t := ex.task
	switch v := y.(type) {
	case yieldAddTo:
		if v.set.Add(t, true) {
			ex.continueExecution = true
		} else {
			t.Cancel(nil)
			ex.continueExecution = false
		}

	case yieldSwitchThread:
		if ex.currentThread == v.thread {
			ex.continueExecution = true
		} else {
			ex.continueExecution = false
			ex.currentThread = v.thread
			t.rt.registerThread(ex.bodyGID, ex.currentThread)
		}

	case yieldWait:
		ex.continueExecution = allDone(v.tasks)

	case yieldSuccess:
		t.Succeed(v.result)
		ex.continueExecution = false

	case yieldCancel:
		t.Cancel(v.err)
		ex.continueExecution = false

	case yieldPropagate:
		t.Propagate(v.other)
		ex.continueExecution = false
		ex.currentThread = nil

	case yieldSleep:
		ex.continueExecution = !time.Now().Before(v.deadline)

	case yieldSleepTick:
		if v.remaining == 0 {
			ex.continueExecution = true
		} else {
			ex.continueExecution = false
			ex.lastYield = yieldSleepTick{remaining: v.remaining - 1}
		}

	case yieldEnter:
		if v.section.tryEnter(t) {
			t.addSection(v.section)
			ex.continueExecution = true
		} else {
			ex.continueExecution = false
		}

	case yieldLeave:
		v.section.leave(t)
		t.removeSection(v.section)
		ex.continueExecution = true

	case yieldCancelAll:
		for _, tt := range v.tasks {
			tt.Cancel(nil)
		}
		ex.continueExecution = true

	default:
		// Unknown yield variant: defensive cancellation (§4.2).
		t.Cancel(nil)
		ex.continueExecution = false
	}
}

func allDone(tasks []*Task) bool {
	for _, t := range tasks {
		if !t.IsDone() {
			return false
		}
	}
	return true
}
