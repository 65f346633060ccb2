package corotask

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskSucceedIsIdempotent(t *testing.T) {
	rt := NewRuntime()
	task := newTask(rt, "succeed-once")
	attachExecutor(task, rt.currentThread(), func(y *Yielder) (int, error) {
		return 1, nil
	})

	require.True(t, task.IsDone())
	require.True(t, task.IsSucceeded())
	assert.Equal(t, 1, task.Result())

	task.Succeed(2)
	assert.Equal(t, 1, task.Result(), "a second Succeed must not overwrite the first terminal result")

	task.Cancel(errors.New("too late"))
	assert.True(t, task.IsSucceeded(), "Cancel after a terminal Succeed must be a no-op")
}

func TestTaskCancelCarriesCause(t *testing.T) {
	rt := NewRuntime()
	cause := errors.New("boom")
	task := newTask(rt, "cancel-with-cause")
	attachExecutor(task, rt.currentThread(), func(y *Yielder) (int, error) {
		return 0, cause
	})

	require.True(t, task.IsDone())
	assert.False(t, task.IsSucceeded())
	assert.Same(t, cause, task.Exception())
}

func TestTaskResultMisuseBeforeDone(t *testing.T) {
	rt := NewRuntime()
	task := newTask(rt, "blocked")
	attachExecutor(task, rt.currentThread(), func(y *Yielder) (int, error) {
		y.Sleep(time.Hour)
		return 1, nil
	})

	require.False(t, task.IsDone())
	assert.Panics(t, func() { task.Result() })
	assert.Panics(t, func() { task.Exception() })

	task.Cancel(nil)
}

func TestTaskCallOnDoneAfterTerminationRunsImmediately(t *testing.T) {
	rt := NewRuntime()
	task := newTask(rt, "already-done")
	attachExecutor(task, rt.currentThread(), func(y *Yielder) (int, error) {
		return 7, nil
	})
	require.True(t, task.IsDone())

	var called bool
	var doneArg *Task
	task.CallOnDone(func(done *Task) {
		called = true
		doneArg = done
	})
	assert.True(t, called, "CallOnDone on an already-done task must invoke synchronously")
	assert.Same(t, task, doneArg)
}

func TestTaskCallOnDoneQueuesInOrder(t *testing.T) {
	rt := NewRuntime()
	task := newTask(rt, "pending")
	var order []int
	task.CallOnDone(func(*Task) { order = append(order, 1) })
	task.CallOnDone(func(*Task) { order = append(order, 2) })
	attachExecutor(task, rt.currentThread(), func(y *Yielder) (int, error) {
		return 0, nil
	})

	require.True(t, task.IsDone())
	assert.Equal(t, []int{1, 2}, order)
}

// TestTaskChildCancellationCascade exercises I3: cancelling a parent task
// must cancel every still-active child, even one suspended deep in a sleep.
func TestTaskChildCancellationCascade(t *testing.T) {
	rt := NewRuntime()
	th := rt.currentThread()

	var child *Task
	parent := newTask(rt, "parent")
	attachExecutor(parent, th, func(y *Yielder) (int, error) {
		child = Go(rt, th, func(y *Yielder) (int, error) {
			y.Sleep(time.Hour)
			return 0, nil
		})
		y.Sleep(time.Hour)
		return 0, nil
	})

	require.NotNil(t, child)
	require.False(t, child.IsDone())
	require.False(t, parent.IsDone())

	parent.Cancel(nil)

	assert.True(t, parent.IsDone())
	assert.True(t, child.IsDone(), "cancelling the parent must cascade-cancel its still-active child (I3)")
	assert.False(t, child.IsSucceeded())
}

func TestTaskWaitDrainsCurrentThread(t *testing.T) {
	rt := NewRuntime()
	th := rt.currentThread()

	task := Go(rt, th, func(y *Yielder) (int, error) {
		y.SleepTick()
		y.SleepTick()
		return 42, nil
	})

	task.Wait()
	assert.True(t, task.IsDone())
	assert.True(t, task.IsSucceeded())
	assert.Equal(t, 42, ResultAs[int](task))
}

func TestTaskWaitFromWithinRunningTaskPanics(t *testing.T) {
	rt := NewRuntime()
	th := rt.currentThread()

	inner := Go(rt, th, func(y *Yielder) (int, error) { return 1, nil })

	var panicked bool
	outer := Go(rt, th, func(y *Yielder) (int, error) {
		func() {
			defer func() {
				if recover() != nil {
					panicked = true
				}
			}()
			inner.Wait()
		}()
		return 0, nil
	})
	th.ExecuteTasksOnce()
	require.True(t, outer.IsDone())
	assert.True(t, panicked, "Wait() called from within a running task must misuse-panic")
}

func TestTaskPropagateInheritsOutcome(t *testing.T) {
	rt := NewRuntime()
	th := rt.currentThread()

	source := Go(rt, th, func(y *Yielder) (int, error) {
		y.SleepTick()
		return 9, nil
	})

	target := newTask(rt, "follower")
	attachExecutor(target, th, func(y *Yielder) (int, error) {
		y.PropagateFrom(source)
		return 0, nil
	})

	source.Wait()
	target.Wait()

	assert.True(t, target.IsSucceeded())
	assert.Equal(t, 9, target.Result())
}

func TestTaskPanicBodyCancelsWithPanicError(t *testing.T) {
	rt := NewRuntime()
	th := rt.currentThread()

	task := newTask(rt, "panicker")
	attachExecutor(task, th, func(y *Yielder) (int, error) {
		panic("kaboom")
	})

	require.True(t, task.IsDone())
	require.False(t, task.IsSucceeded())
	var pe *panicError
	require.ErrorAs(t, task.Exception(), &pe)
	assert.Equal(t, "kaboom", pe.value)
}
