package corotask

// Go implements the task factory (§6): it creates an unnamed Task (callers
// name tasks via NamedGo, below, since Go has no runtime
// function-name-of-value equivalent to the source language's
// introspection) and drives body on it as a coroutine.
//
// Every Go body in this runtime is driven identically whether or not it
// ever calls a Yielder method: unlike the generator-based source, there is
// no separate "did the function return a generator or a plain value"
// branch to take, since the goroutine+channel coroutine mechanism handles
// both uniformly (a body that never yields simply runs to completion on
// its first resume). thread, if nil, defaults to the calling goroutine's
// current Thread.
func Go[T any](rt *Runtime, thread *Thread, body func(*Yielder) (T, error)) *Task {
	return NamedGo(rt, "", thread, body)
}

// NamedGo is Go with an explicit task name, used for debug output.
func NamedGo[T any](rt *Runtime, name string, thread *Thread, body func(*Yielder) (T, error)) *Task {
	t := newTask(rt, name)
	if thread == nil {
		thread = rt.currentThread()
	}
	attachExecutor(t, thread, body)
	return t
}

// ResultAs returns t's stored result, type-asserted to T. It panics
// (misuse, via Task.Result) if t has not terminated with SUCCEEDED, and
// panics with a runtime type-assertion failure if the stored result is
// not a T — the generic sugar layered over the non-generic *Task core
// described in DESIGN.md.
func ResultAs[T any](t *Task) T {
	return t.Result().(T)
}
