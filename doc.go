// Package corotask implements a cooperative task runtime: a user-space
// scheduler that runs many lightweight coroutine-backed tasks on top of a
// small pool of host goroutines standing in for OS threads.
//
// A Task is created by calling Go with a body function that receives a
// *Yielder. The body runs on whichever Thread is current (the calling
// goroutine is registered as a Thread on first contact) until it either
// returns or calls one of the Yielder's methods to request a scheduling
// action: sleeping, waiting on other tasks, switching threads, entering a
// Section, joining a TaskSet, or terminating early.
//
// The runtime does no I/O of its own and is not a work-stealing executor:
// a task is pinned to exactly one Thread at a time and only migrates when
// its body calls Yielder.SwitchThread. Preemption, fairness stronger than
// per-thread FIFO, priorities and persistence are all out of scope.
//
// # Thread-safety
//
// Task, Thread, TaskSet and Section are all safe for concurrent use by
// multiple goroutines. A Task's own state transition is driven under a
// pair of non-reentrant mutexes (see task.go): one serializes the drive
// loop for that task, the other guards the terminal transition. Locking
// order, where more than one is required, is always Task(exec) ->
// Task(done) -> TaskSet; the Thread and Section mutexes are never held
// while acquiring another lock.
//
// # Minimal usage
//
//	rt := corotask.NewRuntime()
//	t := corotask.Go(rt, nil, func(y *corotask.Yielder) (int, error) {
//		y.Sleep(10 * time.Millisecond)
//		return 42, nil
//	})
//	rt.CurrentThread().ExecuteTasksLoop(func() bool { return t.IsDone() })
//	result := corotask.ResultAs[int](t)
package corotask
