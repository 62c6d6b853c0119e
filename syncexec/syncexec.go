// Package syncexec implements the discrete-clock ("sync") task
// executor and invoker of spec.md §4.8 (C10).
//
// Grounded line-for-line on
// original_source/src/fep3/native_components/scheduler/clock_based/
// simulation_clock/synchronous_task_executor.cpp and
// task_storage.cpp: the catch-up loop (getNearestSubStep /
// taskHasTobeRun / waitForTasksInQueue / taskToBeWaited), the
// timeReset forward-shift-then-clamp, and the stop backtrack-one-period
// rule are carried over unchanged in meaning, translated from Boost
// range adaptors and std::future to plain Go slices and
// threadpool.Future.
package syncexec

import (
	"fmt"
	"sync"

	"github.com/cariad-tech/fep3-participant-sub000/coreerr"
	"github.com/cariad-tech/fep3-participant-sub000/schedtask"
	"github.com/cariad-tech/fep3-participant-sub000/threadpool"
)

// Invoker is the sync (discrete-clock) task executor of spec.md §4.8.
// It serializes time_updating/time_reset/stop against each other with
// an internal processing mutex, held across the pool waits — this is
// deliberate (spec.md §9): the tick must not overlap stop, and turning
// this into a try-lock would break property P4.
type Invoker struct {
	pool *threadpool.Pool

	mu         sync.Mutex // processing mutex
	tasks      []*schedtask.Task
	waitTokens map[*schedtask.Task]*threadpool.Future
}

// NewInvoker creates a sync invoker dispatching onto pool.
func NewInvoker(pool *threadpool.Pool) *Invoker {
	return &Invoker{pool: pool, waitTokens: make(map[*schedtask.Task]*threadpool.Future)}
}

// AddTask registers a new scheduler task. Fails with ERR_FAILED if the
// name already exists or the period is negative (mirrors
// TaskStorage::addTask).
func (inv *Invoker) AddTask(task *schedtask.Task) error {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	for _, t := range inv.tasks {
		if t.Name == task.Name {
			return coreerr.New(coreerr.Failed, fmt.Sprintf("task %q already exists", task.Name))
		}
	}
	if task.Period < 0 {
		return coreerr.New(coreerr.Failed, fmt.Sprintf("task %q has negative period", task.Name))
	}
	inv.tasks = append(inv.tasks, task)
	return nil
}

// Tasks returns the currently registered tasks (for inspection/tests).
func (inv *Invoker) Tasks() []*schedtask.Task {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	out := make([]*schedtask.Task, len(inv.tasks))
	copy(out, inv.tasks)
	return out
}

// taskHasToBeRun reports whether task fires in this sub-step (spec.md
// §4.8 step 3 / original taskHasTobeRun).
func taskHasToBeRun(task *schedtask.Task, subStep *int64) bool {
	if task.Period == 0 {
		return true
	}
	if subStep == nil {
		return false
	}
	return task.NextInstant == *subStep
}

// taskToBeWaited reports whether task's completion future must be
// awaited before time_updating returns (spec.md §4.8 step 5 / original
// taskToBeWaited).
func taskToBeWaited(task *schedtask.Task, currentTime int64, next *int64) bool {
	if task.Period == 0 {
		return true
	}
	if next == nil {
		return true
	}
	if currentTime >= *next {
		return true
	}
	return task.NextInstant <= *next
}

func nearestSubStep(tasks []*schedtask.Task, currentTime int64) *int64 {
	var min *int64
	for _, t := range tasks {
		if t.NextInstant > currentTime {
			continue
		}
		if min == nil || t.NextInstant < *min {
			v := t.NextInstant
			min = &v
		}
	}
	return min
}

// TimeUpdating runs the catch-up algorithm of spec.md §4.8 for one
// clock tick (t, next). next is the clock's optional known next tick.
func (inv *Invoker) TimeUpdating(t int64, next *int64) {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	for {
		subStep := nearestSubStep(inv.tasks, t)

		var due []*schedtask.Task
		for _, task := range inv.tasks {
			if taskHasToBeRun(task, subStep) {
				due = append(due, task)
			}
		}

		executionTime := t
		if subStep != nil {
			executionTime = *subStep
		}

		for _, task := range due {
			task := task
			fut := inv.pool.PostWithCompletionFuture(func() {
				task.Run(executionTime)
			})
			inv.waitTokens[task] = fut
		}

		for _, task := range due {
			task.NextInstant += task.Period
		}

		for _, task := range inv.tasks {
			if !taskToBeWaited(task, t, next) {
				continue
			}
			if fut, ok := inv.waitTokens[task]; ok {
				fut.Wait()
				delete(inv.waitTokens, task)
			}
		}

		inv.tasks = removeSingleShot(inv.tasks)

		more := false
		for _, task := range inv.tasks {
			if task.NextInstant <= t {
				more = true
				break
			}
		}
		if !more {
			return
		}
	}
}

func removeSingleShot(tasks []*schedtask.Task) []*schedtask.Task {
	out := tasks[:0]
	for _, t := range tasks {
		if !t.IsSingleShot() {
			out = append(out, t)
		}
	}
	return out
}

func (inv *Invoker) waitForAllLocked() {
	for task, fut := range inv.waitTokens {
		fut.Wait()
		delete(inv.waitTokens, task)
	}
}

// TimeReset implements spec.md §4.8's time_reset: wait for all
// outstanding futures, then shift every task's next_instant forward by
// (new − old), clamping to new + initial_delay if the shift still
// leaves it before new.
func (inv *Invoker) TimeReset(oldTime, newTime int64) {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	inv.waitForAllLocked()
	diff := newTime - oldTime
	for _, task := range inv.tasks {
		task.NextInstant += diff
		if task.NextInstant < newTime {
			task.NextInstant = newTime + task.InitialDelay
		}
	}
}

// Stop waits for all outstanding futures, then backtracks every task's
// next_instant by one period (clamped to not go negative — mirroring
// TaskStorage::stop's `next_instant >= period` guard) so a subsequent
// start/reset fires the task at the same clock time it last fired at
// (spec.md §4.8, §9).
func (inv *Invoker) Stop() {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	inv.waitForAllLocked()
	for _, task := range inv.tasks {
		if task.NextInstant >= task.Period {
			task.NextInstant -= task.Period
		}
	}
}
