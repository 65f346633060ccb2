package corotask

import (
	"fmt"
	"io"
)

// PrintDebugInfo writes a human-readable report of every Thread the
// Runtime still knows about (with the tasks queued on each) and every
// active task not currently queued on any of them, to w. It is the
// exported counterpart of debug.py's print_debug_info in the
// implementation this runtime is modeled on, adapted to take an io.Writer
// instead of writing straight to stdout, so callers can direct it at a
// test log or any other sink.
func (rt *Runtime) PrintDebugInfo(w io.Writer) {
	rt.mu.Lock()
	threads := make([]*Thread, 0, len(rt.threadsByGID))
	for _, th := range rt.threadsByGID {
		threads = append(threads, th)
	}
	rt.mu.Unlock()

	active := rt.registry.Snapshot()
	queued := make(map[*Task]struct{}, len(active))

	var out string
	if len(threads) != 0 {
		out += "\nUnfinalized threads: "
		for i, th := range threads {
			tasks := th.queuedTasks()
			for _, t := range tasks {
				queued[t] = struct{}{}
			}
			out += fmt.Sprintf("\n[%d]: %s (tasks: %d)", i, th, len(tasks))
			for j, t := range tasks {
				out += fmt.Sprintf("\n    [%d]: %s", j, t)
			}
		}
	}

	var orphaned []*Task
	for _, t := range active {
		if _, ok := queued[t]; !ok {
			orphaned = append(orphaned, t)
		}
	}
	if len(orphaned) != 0 {
		out += "\nTasks not attached to threads: "
		for i, t := range orphaned {
			out += fmt.Sprintf("\n[%d]: %s", i, t)
		}
	}

	if out != "" {
		fmt.Fprintf(w, "\ncorotask debug info:%s\n", out)
	}
}
