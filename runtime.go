package corotask

import (
	"sync"

	"golang.org/x/sync/errgroup"
)

// Runtime is the explicit, non-global context a cooperative task runtime
// needs (§9's "global state as explicit context" design note): a registry
// of Threads keyed by owning goroutine, the active-task weak registry, and
// resolved configuration (pacing, logging). Apart from the counter that
// assigns task ids (task.go), nothing in this package keeps package-level
// state; Go, NamedGo and the scheduling entry points take a *Runtime.
type Runtime struct {
	cfg    *runtimeConfig
	logger *runtimeLogger

	registry *taskRegistry

	mu           sync.Mutex
	threadsByGID map[uint64]*Thread
}

// NewRuntime constructs a Runtime ready for use, applying opts (see
// WithLogger, WithLogLevel, WithPacing).
func NewRuntime(opts ...RuntimeOption) *Runtime {
	cfg := resolveRuntimeOptions(opts)
	rt := &Runtime{
		cfg:          cfg,
		registry:     newTaskRegistry(),
		threadsByGID: make(map[uint64]*Thread),
	}
	rt.logger = newRuntimeLogger(cfg)
	return rt
}

func (rt *Runtime) pacing() pacingConfig { return rt.cfg.pacing }

// currentThread returns the Thread registered for the calling goroutine,
// lazily registering a new one on first contact — the "registered Thread"
// half of §4.3's Thread lifecycle.
func (rt *Runtime) currentThread() *Thread {
	gid := goroutineID()

	rt.mu.Lock()
	if th, ok := rt.threadsByGID[gid]; ok {
		rt.mu.Unlock()
		return th
	}
	rt.mu.Unlock()

	th := newThread(rt, "", gid, false, rt.cfg.pacing)

	rt.mu.Lock()
	if existing, ok := rt.threadsByGID[gid]; ok {
		rt.mu.Unlock()
		return existing
	}
	rt.threadsByGID[gid] = th
	rt.mu.Unlock()
	return th
}

// CurrentThread is the exported form of currentThread, for callers that
// just want "the Thread representing me" without creating a Task.
func (rt *Runtime) CurrentThread() *Thread { return rt.currentThread() }

// GetCurrentThread is an alias for CurrentThread, matching the free
// function named in §6.
func (rt *Runtime) GetCurrentThread() *Thread { return rt.currentThread() }

// GetCurrentTask returns the task currently being driven on the calling
// goroutine's Thread, or nil if none is (§6's get_current_task).
func (rt *Runtime) GetCurrentTask() *Task {
	th := rt.currentThread()
	if n := len(th.tls.execStack); n > 0 {
		return th.tls.execStack[n-1]
	}
	return nil
}

func (rt *Runtime) registerThread(gid uint64, th *Thread) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.threadsByGID[gid] = th
}

func (rt *Runtime) unregisterThread(gid uint64) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	delete(rt.threadsByGID, gid)
}

func (rt *Runtime) registerTask(t *Task) { rt.registry.register(t) }

func (rt *Runtime) unregisterTask(t *Task) { rt.registry.unregister(t) }

// Clear finalizes every Thread the Runtime knows about (cancelling every
// task still queued on each) and then cancels anything left in the
// active-task registry — the reset §6 describes for get-back-to-empty test
// teardown. Spawned (created) Threads are finalized concurrently via an
// errgroup, since Thread.Finalize on one just signals its own driver loop
// and waits. Registered (non-created) Threads are finalized inline instead:
// they have no dedicated driver goroutine of their own, and the goroutine
// that registered one may well have already exited without ever finalizing
// it itself (any goroutine that calls Go targeting some other Thread
// registers itself this way, whether or not it ever touches the runtime
// again) — fanning those out through the same errgroup would call
// Thread.Finalize from a foreign goroutine against a registered Thread,
// which is misuse and panics uncatchably inside errgroup.Go. The caller's
// own Thread is always finalized inline last, since Clear runs on its
// goroutine by definition.
func (rt *Runtime) Clear() {
	self := rt.currentThread()

	rt.mu.Lock()
	var created, registered []*Thread
	for _, th := range rt.threadsByGID {
		if th == self {
			continue
		}
		if th.created {
			created = append(created, th)
		} else {
			registered = append(registered, th)
		}
	}
	rt.mu.Unlock()

	for _, th := range registered {
		th.finalizeOrphan()
	}

	var g errgroup.Group
	for _, th := range created {
		th := th
		g.Go(func() error {
			th.Finalize()
			return nil
		})
	}
	_ = g.Wait()

	self.Finalize()

	rt.registry.CancelAll()
}

// SetLogLevel adjusts the Runtime's log level (0 silent, 1 critical, 2
// verbose), taking effect immediately for subsequent events.
func (rt *Runtime) SetLogLevel(n int) { rt.logger.level.store(n) }

// GetLogLevel returns the Runtime's current log level.
func (rt *Runtime) GetLogLevel() int { return rt.logger.level.load() }
