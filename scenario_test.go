package corotask

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
)

// The eight end-to-end scenarios below mirror spec.md §8's testable
// properties, except that wall-clock durations are shortened (to tens of
// milliseconds) so the suite runs quickly, and the branch scenario's false
// path ends by returning an error rather than cancelling without one; the
// assertions on elapsed time, final values and cascade behavior are kept.

func TestScenarioSimpleReturn(t *testing.T) {
	rt := NewRuntime()
	task := Go(rt, rt.currentThread(), func(y *Yielder) (int, error) {
		return 1, nil
	})
	require.True(t, task.IsDone())
	assert.True(t, task.IsSucceeded())
	assert.Equal(t, 1, task.Result())
}

func TestScenarioBranchTrueFalse(t *testing.T) {
	rt := NewRuntime()
	th := rt.currentThread()

	truePath := Go(rt, th, func(y *Yielder) (int, error) {
		y.SleepTick()
		return 1, nil
	})
	truePath.Wait()
	assert.True(t, truePath.IsSucceeded())
	assert.Equal(t, 1, truePath.Result())

	falsePath := Go(rt, th, func(y *Yielder) (int, error) {
		y.SleepTick()
		return 0, errors.New("branch: false")
	})
	falsePath.Wait()
	assert.False(t, falsePath.IsSucceeded())
}

func TestScenarioSleepThenReturn(t *testing.T) {
	rt := NewRuntime(WithPacing(2*time.Millisecond, 2*time.Millisecond, 2*time.Millisecond))
	th := rt.currentThread()
	const sleepFor = 30 * time.Millisecond

	start := time.Now()
	task := Go(rt, th, func(y *Yielder) (int, error) {
		y.Sleep(sleepFor)
		return 1, nil
	})
	task.Wait()

	assert.GreaterOrEqual(t, time.Since(start), sleepFor)
	assert.True(t, task.IsSucceeded())
	assert.Equal(t, 1, task.Result())
}

func TestScenarioComputeInSingleThread(t *testing.T) {
	rt := NewRuntime()
	th := rt.currentThread()

	const n = 128
	tasks := make([]*Task, n)
	for i := 0; i < n; i++ {
		i := i
		tasks[i] = Go(rt, th, func(y *Yielder) (int, error) {
			sum := 0
			for j := 0; j < i; j++ {
				y.SleepTick()
				sum += j
			}
			return sum, nil
		})
	}

	for _, task := range tasks {
		task.Wait()
	}

	total := 0
	for _, task := range tasks {
		total += ResultAs[int](task)
	}
	assert.Equal(t, 341376, total)
}

func TestScenarioMultiThread(t *testing.T) {
	rt := NewRuntime(WithPacing(2*time.Millisecond, 2*time.Millisecond, 2*time.Millisecond))
	parent := rt.currentThread()

	var mu sync.Mutex
	var shared []int

	const n = 8
	children := make([]*Task, n)
	for i := 0; i < n; i++ {
		i := i
		children[i] = Go(rt, parent, func(y *Yielder) (int, error) {
			worker := rt.NewThread(fmt.Sprintf("multi-thread-worker-%d", i))
			if err := y.SwitchThread(worker); err != nil {
				return 0, err
			}
			y.Sleep(time.Duration(rand.Intn(20)) * time.Millisecond)
			mu.Lock()
			shared = append(shared, 1)
			mu.Unlock()
			if err := y.SwitchThread(parent); err != nil {
				return 0, err
			}
			worker.Finalize()
			return 1, nil
		})
	}

	total := 0
	for _, c := range children {
		c.Wait()
		total += ResultAs[int](c)
	}

	assert.Equal(t, n, total)
	assert.Len(t, shared, n)
}

func TestScenarioSection(t *testing.T) {
	rt := NewRuntime(WithPacing(time.Millisecond, time.Millisecond, time.Millisecond))
	parent := rt.currentThread()
	sec := NewSection("scenario-section")
	var counter int32

	const threads, perThread = 10, 10
	tasks := make([]*Task, threads)
	for i := 0; i < threads; i++ {
		i := i
		explicitLeave := i%2 == 0
		tasks[i] = Go(rt, parent, func(y *Yielder) (int, error) {
			worker := rt.NewThread(fmt.Sprintf("section-worker-%d", i))
			if err := y.SwitchThread(worker); err != nil {
				return 0, err
			}
			if err := y.Enter(sec); err != nil {
				return 0, err
			}
			for j := 0; j < perThread; j++ {
				atomic.AddInt32(&counter, 1)
			}
			if explicitLeave {
				if err := y.Leave(sec); err != nil {
					return 0, err
				}
			} // else: released automatically when this task terminates
			if err := y.SwitchThread(parent); err != nil {
				return 0, err
			}
			worker.Finalize()
			return perThread, nil
		})
	}

	total := 0
	for _, task := range tasks {
		task.Wait()
		total += ResultAs[int](task)
	}

	assert.Equal(t, threads*perThread, int(counter))
	assert.Equal(t, threads*perThread, total)
	assert.Nil(t, sec.Holder())
}

func TestScenarioDoneExceptionNaturalCompletion(t *testing.T) {
	rt := NewRuntime(WithPacing(2*time.Millisecond, 2*time.Millisecond, 2*time.Millisecond))
	th := rt.currentThread()
	var cleanedUp bool

	task := Go(rt, th, func(y *Yielder) (int, error) {
		defer func() { cleanedUp = true }()
		y.Sleep(10 * time.Millisecond)
		y.Succeed(1)
		return 0, nil
	})
	task.Wait()

	assert.True(t, cleanedUp, "cleanup must run on the natural-success path")
	assert.True(t, task.IsSucceeded())
	assert.Equal(t, 1, task.Result())
}

func TestScenarioDoneExceptionEarlyCancel(t *testing.T) {
	rt := NewRuntime()
	th := rt.currentThread()
	var cleanedUp, sawTaskDone bool

	task := newTask(rt, "done-exception-early-cancel")
	attachExecutor(task, th, func(y *Yielder) (int, error) {
		defer func() { cleanedUp = true }()
		err := y.Sleep(time.Hour)
		if errors.Is(err, ErrTaskDone) {
			sawTaskDone = true
		}
		return 0, err
	})
	require.False(t, task.IsDone())

	task.Cancel(nil)

	assert.True(t, cleanedUp, "cleanup must also run when cancelled from outside")
	assert.True(t, sawTaskDone, "the body must observe ErrTaskDone from its pending yield")
	assert.False(t, task.IsSucceeded())
}

func TestScenarioChildTasksCascade(t *testing.T) {
	rt := NewRuntime()
	th := rt.currentThread()

	var mu sync.Mutex
	var all []*Task

	var makeBody func(depth int) func(*Yielder) (int, error)
	makeBody = func(depth int) func(*Yielder) (int, error) {
		return func(y *Yielder) (int, error) {
			if depth < 2 {
				child := Go(rt, th, makeBody(depth+1))
				mu.Lock()
				all = append(all, child)
				mu.Unlock()
			}
			y.Sleep(time.Hour)
			return 0, nil
		}
	}

	root := Go(rt, th, makeBody(0))
	mu.Lock()
	all = append([]*Task{root}, all...)
	mu.Unlock()

	// Each level's child is only created once its own body actually runs,
	// which (per T1) only happens once th drives it — drive a few cycles
	// so depth 1 and depth 2 both get a chance to spawn their child.
	for i := 0; i < 5; i++ {
		th.ExecuteTasksOnce()
	}

	require.Len(t, all, 3)
	for _, task := range all {
		require.False(t, task.IsDone())
	}

	root.Cancel(nil)

	for _, task := range all {
		assert.True(t, task.IsDone(), "cancelling the root must leave every descendant done")
		assert.False(t, task.IsSucceeded())
	}
}
