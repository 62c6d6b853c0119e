package datatrigger

import (
	"bytes"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cariad-tech/fep3-participant-sub000/sample"
	"github.com/cariad-tech/fep3-participant-sub000/threadpool"
)

type fakeClock struct{ t atomic.Int64 }

func (c *fakeClock) Now() int64 { return c.t.Load() }

func newTestExecutor(t *testing.T) (*Executor, *threadpool.Pool) {
	t.Helper()
	pool := threadpool.New(4)
	pool.Start()
	t.Cleanup(pool.Stop)
	exec := NewExecutor(pool)
	exec.Start()
	t.Cleanup(exec.Stop)
	return exec, pool
}

func TestReceiverDispatchesJobWithClockTimestamp(t *testing.T) {
	exec, _ := newTestExecutor(t)
	clock := &fakeClock{}
	clock.t.Store(42)

	done := make(chan int64, 1)
	r := NewReceiver("speed", clock, func(ts int64) {
		done <- ts
	}, exec, nil)

	r.OnReceive(sample.NewHeapSample([]byte("x")))

	select {
	case ts := <-done:
		if ts != 42 {
			t.Fatalf("expected job called with timestamp 42, got %d", ts)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for job dispatch")
	}
}

func TestReceiverDropsTriggerWhileRunning(t *testing.T) {
	exec, _ := newTestExecutor(t)
	clock := &fakeClock{}

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	release := make(chan struct{})
	started := make(chan struct{}, 1)
	var calls int32
	r := NewReceiver("speed", clock, func(int64) {
		atomic.AddInt32(&calls, 1)
		started <- struct{}{}
		<-release
	}, exec, logger)

	r.OnReceive(sample.NewHeapSample(nil))
	<-started

	// Second arrival while the first dispatch is still in flight must be
	// dropped, not queued.
	r.OnReceive(sample.NewHeapSample(nil))

	close(release)
	time.Sleep(20 * time.Millisecond)

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected exactly 1 dispatch, got %d", got)
	}
	if !strings.Contains(buf.String(), "dropped") {
		t.Fatalf("expected a drop warning logged, got: %s", buf.String())
	}
}

func TestReceiverAcceptsNextTriggerAfterCompletion(t *testing.T) {
	exec, _ := newTestExecutor(t)
	clock := &fakeClock{}

	var mu sync.Mutex
	var calls int
	done := make(chan struct{}, 4)
	r := NewReceiver("speed", clock, func(int64) {
		mu.Lock()
		calls++
		mu.Unlock()
		done <- struct{}{}
	}, exec, nil)

	r.OnReceive(sample.NewHeapSample(nil))
	<-done
	r.OnReceive(sample.NewHeapSample(nil))
	<-done

	mu.Lock()
	got := calls
	mu.Unlock()
	if got != 2 {
		t.Fatalf("expected 2 dispatches across two non-overlapping triggers, got %d", got)
	}
}

func TestExecutorPostReturnsFalseWhenStopped(t *testing.T) {
	pool := threadpool.New(2)
	pool.Start()
	t.Cleanup(pool.Stop)
	exec := NewExecutor(pool)

	posted := exec.Post(func() {})
	if posted {
		t.Fatalf("expected Post to fail before Start")
	}

	exec.Start()
	if !exec.Post(func() {}) {
		t.Fatalf("expected Post to succeed once started")
	}

	exec.Stop()
	if exec.Post(func() {}) {
		t.Fatalf("expected Post to fail after Stop")
	}
}
