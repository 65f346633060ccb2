package corotask

import (
	"errors"
	"fmt"
)

// ErrTaskDone is injected into a coroutine body still parked on a yield
// when its task terminates (parent cancellation, thread finalize, TaskSet
// finalize, or the body's own Succeed/CancelSelf yield). User code may
// recognize it, via errors.Is, to run cleanup before the body returns. It
// is never itself surfaced as a task failure: the task has already reached
// its terminal state when the body receives it, so a body that returns it
// leaves that state, and any carried exception, unchanged.
var ErrTaskDone = errors.New("corotask: task is done")

// panicError wraps a value recovered from a task body panic so it can be
// carried as the task's cancellation cause without losing the original
// value via errors.As/errors.Unwrap.
type panicError struct {
	value any
}

func (p *panicError) Error() string {
	return fmt.Sprintf("corotask: task body panicked: %v", p.value)
}

func (p *panicError) Unwrap() error {
	if err, ok := p.value.(error); ok {
		return err
	}
	return nil
}

// misuse panics with a message identifying a programmer error (§7 of the
// runtime's error handling design): calling Result/Exception on a task in
// the wrong state, waiting from within a task, or finalizing a registered
// Thread from a foreign goroutine. These are not runtime conditions and are
// never returned as errors.
func misuse(format string, args ...any) {
	panic(fmt.Sprintf("corotask: misuse: "+format, args...))
}
