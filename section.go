package corotask

import "sync"

// Section is a task-level mutual-exclusion primitive: at most one task
// holds it at a time (X1), and holding survives across yields. Acquisition
// is opportunistic and non-blocking at the host level: a task that fails
// to enter is simply rescheduled by the executor and retries on its next
// drain. There is no wait queue and no FIFO guarantee (§9's noted
// ambiguity is preserved as observed, not "fixed": starvation under heavy
// contention is possible).
type Section struct {
	name string

	mu     sync.Mutex
	holder *Task
}

// NewSection constructs a free Section. name is used only for debug output.
func NewSection(name string) *Section {
	return &Section{name: name}
}

// tryEnter attempts to claim the Section for t. Returns true on success.
func (s *Section) tryEnter(t *Task) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.holder != nil {
		return false
	}
	s.holder = t
	return true
}

// leave releases the Section if t is the current holder; a no-op
// otherwise (mirrors Section.py's _leave, which only clears the holder
// when it matches self).
func (s *Section) leave(t *Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.holder == t {
		s.holder = nil
	}
}

// Holder reports the task currently holding the Section, or nil.
func (s *Section) Holder() *Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.holder
}

func (s *Section) String() string {
	if s.name == "" {
		return "[Section]"
	}
	return "[Section][" + s.name + "]"
}
