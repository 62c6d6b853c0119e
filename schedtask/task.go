// Package schedtask implements the scheduler task record of spec.md
// §3/§4.8/§4.9 (C9): (name, callable, period, initial_delay,
// next_instant), plus a persistence layer for the execution history of
// each firing, adapted from the teacher's
// internal/scheduler/store.go (SQLite-backed task/execution rows).
package schedtask

// Callable is invoked when a task fires, with the instant it fired at
// (nanoseconds, spec.md §3 signed 64-bit timestamp domain).
type Callable func(instant int64)

// Task is one periodic or single-shot scheduler entry (spec.md §3
// "Scheduler task"). Period == 0 means single-shot. Names are unique
// within a single executor instance — enforced by the executor that
// owns the Task, not by Task itself.
type Task struct {
	Name         string
	Callable     Callable
	Period       int64 // nanoseconds; 0 == single-shot
	InitialDelay int64 // nanoseconds
	NextInstant  int64 // nanoseconds
}

// Run invokes the task's callable at the given instant.
func (t *Task) Run(instant int64) {
	t.Callable(instant)
}

// IsSingleShot reports whether the task fires exactly once.
func (t *Task) IsSingleShot() bool {
	return t.Period == 0
}
