package asyncexec

import (
	"sync"
	"testing"
	"time"

	"github.com/cariad-tech/fep3-participant-sub000/schedtask"
	"github.com/cariad-tech/fep3-participant-sub000/threadpool"
)

func newTestPool(t *testing.T) *threadpool.Pool {
	t.Helper()
	pool := threadpool.New(4)
	pool.Start()
	t.Cleanup(pool.Stop)
	return pool
}

// TestAsyncSkipScenario is spec.md §8 end-to-end scenario 3: a
// continuous clock advances from 0 to 20ms in one tick with a 10ms
// period job. The job fires at exactly 0 and 20, the 10ms instant is
// skipped, never caught up.
func TestAsyncSkipScenario(t *testing.T) {
	pool := newTestPool(t)
	inv := NewInvoker(pool, nil)

	var mu sync.Mutex
	var calls []int64
	done := make(chan struct{}, 8)
	task := &schedtask.Task{
		Name:   "job",
		Period: 10,
		Callable: func(instant int64) {
			mu.Lock()
			calls = append(calls, instant)
			mu.Unlock()
			done <- struct{}{}
		},
	}
	inv.AddTask(task)
	inv.runningFlag.Store(true)

	inv.Run(0)
	waitFor(t, done)

	inv.Run(20)
	waitFor(t, done)

	mu.Lock()
	got := append([]int64(nil), calls...)
	mu.Unlock()
	want := []int64{0, 20}
	if len(got) != len(want) {
		t.Fatalf("expected exactly 2 firings, got %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("firing %d: expected %d, got %d", i, want[i], got[i])
		}
	}
}

// TestNoCatchUpAcrossManyMissedInstants further exercises property P5:
// a huge clock jump still fires a periodic task only once per Run call.
func TestNoCatchUpAcrossManyMissedInstants(t *testing.T) {
	pool := newTestPool(t)
	inv := NewInvoker(pool, nil)

	var count int
	var mu sync.Mutex
	done := make(chan struct{}, 8)
	task := &schedtask.Task{
		Name:   "job",
		Period: 10,
		Callable: func(int64) {
			mu.Lock()
			count++
			mu.Unlock()
			done <- struct{}{}
		},
	}
	inv.AddTask(task)
	inv.runningFlag.Store(true)

	inv.Run(0)
	waitFor(t, done)

	// Jump 100 periods ahead in a single Run call — no catch-up means
	// exactly one firing, not 100.
	inv.Run(1000)
	waitFor(t, done)

	mu.Lock()
	got := count
	mu.Unlock()
	if got != 2 {
		t.Fatalf("expected exactly 2 firings across the whole jump, got %d", got)
	}
}

// TestDispatchSkippedWhilePreviousStillRunning is spec.md §4.9 step 2:
// if a task's previous dispatch has not completed, a new due firing is
// skipped rather than queued.
func TestDispatchSkippedWhilePreviousStillRunning(t *testing.T) {
	pool := newTestPool(t)
	inv := NewInvoker(pool, nil)

	release := make(chan struct{})
	started := make(chan struct{}, 1)
	var mu sync.Mutex
	var count int
	task := &schedtask.Task{
		Name:   "job",
		Period: 10,
		Callable: func(int64) {
			mu.Lock()
			count++
			mu.Unlock()
			started <- struct{}{}
			<-release
		},
	}
	inv.AddTask(task)
	inv.runningFlag.Store(true)

	inv.Run(0)
	<-started // first dispatch is now blocked inside the callable

	// Due again at t=10 while the first call has not completed: must be
	// skipped, not queued.
	inv.Run(10)

	close(release)
	time.Sleep(20 * time.Millisecond) // let the first callable return

	mu.Lock()
	got := count
	mu.Unlock()
	if got != 1 {
		t.Fatalf("expected exactly 1 dispatch while previous was in flight, got %d", got)
	}
}

func TestGetContinousTaskNextTimestampAdvancesStrictlyForward(t *testing.T) {
	cases := []struct {
		next, current, period, want int64
	}{
		{0, 0, 10, 10},
		{0, 5, 10, 10},
		{0, 9, 10, 10},
		{0, 10, 10, 20},
		{10, 20, 10, 30},
		{0, 1000, 10, 1010},
	}
	for _, c := range cases {
		got := getContinousTaskNextTimestamp(c.next, c.current, c.period)
		if got != c.want {
			t.Fatalf("getContinousTaskNextTimestamp(%d, %d, %d) = %d, want %d", c.next, c.current, c.period, got, c.want)
		}
		if got <= c.current {
			t.Fatalf("result %d must be strictly greater than current time %d", got, c.current)
		}
	}
}

func TestRunReturnsEmptyQueueWaitWhenNoTasks(t *testing.T) {
	pool := newTestPool(t)
	inv := NewInvoker(pool, nil)
	inv.runningFlag.Store(true)
	if wait := inv.Run(0); wait != emptyQueueWait {
		t.Fatalf("expected empty-queue wait, got %v", wait)
	}
}

func TestRunReturnsZeroWaitWhenNotRunning(t *testing.T) {
	pool := newTestPool(t)
	inv := NewInvoker(pool, nil)
	task := &schedtask.Task{Name: "job", Period: 10, Callable: func(int64) {}}
	inv.AddTask(task)
	if wait := inv.Run(0); wait != 0 {
		t.Fatalf("expected zero wait when not running, got %v", wait)
	}
}

func TestStartStopDrivesScheduleLoop(t *testing.T) {
	pool := newTestPool(t)
	var tick int64
	var tickMu sync.Mutex
	clock := func() int64 {
		tickMu.Lock()
		defer tickMu.Unlock()
		t := tick
		tick += 5
		return t
	}
	inv := NewInvoker(pool, clock)

	fired := make(chan int64, 16)
	task := &schedtask.Task{
		Name:   "job",
		Period: 5,
		Callable: func(instant int64) {
			fired <- instant
		},
	}
	inv.AddTask(task)

	inv.Start()
	t.Cleanup(inv.Stop)

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatalf("expected the schedule loop to fire at least once")
	}
}

func TestNotifierWaitTimeoutReturnsFalseOnTimeout(t *testing.T) {
	n := NewNotifier(true)
	if n.WaitTimeout(10 * time.Millisecond) {
		t.Fatalf("expected timeout, got notified")
	}
}

func TestNotifierNotifyWakesWaiter(t *testing.T) {
	n := NewNotifier(true)
	go func() {
		time.Sleep(5 * time.Millisecond)
		n.Notify()
	}()
	if !n.WaitTimeout(time.Second) {
		t.Fatalf("expected Notify to wake the waiter")
	}
}

func TestTimeResetShiftsAsyncNextInstant(t *testing.T) {
	pool := newTestPool(t)
	inv := NewInvoker(pool, nil)
	task := &schedtask.Task{Name: "job", Period: 100, NextInstant: 300}
	inv.AddTask(task)

	inv.TimeReset(200, 0)
	if task.NextInstant != 100 {
		t.Fatalf("expected next_instant shifted to 100, got %d", task.NextInstant)
	}
}

func waitFor(t *testing.T, done chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for dispatched task to complete")
	}
}
