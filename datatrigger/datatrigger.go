// Package datatrigger implements the data-triggered receiver and
// executor of spec.md §4.10 (C12): a signal listener that, on each
// sample arrival, dispatches the bound job onto a dedicated executor —
// dropping (never queueing) a trigger that arrives while the previous
// dispatch is still in flight.
//
// Grounded in internal/mqtt.Publisher's AddOnPublishReceived handler
// (subscriber.go): one callback invoked per inbound message, gated by
// messageRateLimiter.allow() — the running-flag coalescing here plays
// the same "drop, don't queue" role the rate limiter's gate plays there,
// generalized from a token-bucket to a single in-flight slot per
// spec.md §4.10.
package datatrigger

import (
	"log/slog"
	"sync/atomic"

	"github.com/cariad-tech/fep3-participant-sub000/sample"
	"github.com/cariad-tech/fep3-participant-sub000/threadpool"
)

// Clock supplies the current simulation time stamped onto a dispatched
// job callable (spec.md §4.10: "timestamp = current clock time").
type Clock interface {
	Now() int64
}

// JobCallable is the job bound to a data-triggered receiver.
type JobCallable func(timestamp int64)

// Executor is the dedicated data-triggered executor of spec.md §4.10: a
// thin wrapper over the thread pool that honors a running/stopped flag,
// rather than accepting posts unconditionally once the pool itself is
// running.
type Executor struct {
	pool    *threadpool.Pool
	running atomic.Bool
}

// NewExecutor wraps pool. The executor itself is stopped until Start is
// called, independent of the pool's own running state.
func NewExecutor(pool *threadpool.Pool) *Executor {
	return &Executor{pool: pool}
}

// Start begins accepting Post calls.
func (e *Executor) Start() { e.running.Store(true) }

// Stop stops accepting Post calls. Tasks already posted to the pool run
// to completion.
func (e *Executor) Stop() { e.running.Store(false) }

// Post dispatches f onto the pool if the executor is running. Reports
// false (and does not dispatch) if stopped.
func (e *Executor) Post(f func()) bool {
	if !e.running.Load() {
		return false
	}
	e.pool.Post(f)
	return true
}

// Receiver is a data-triggered receiver bound to one input signal
// (spec.md §4.10). It implements datasignal.Listener — register it via
// Input.RegisterDataListener.
//
// The outer running check and the set-true-then-post sequencing below
// are deliberately not a single compare-and-swap: spec.md §9's open
// question describes the original as setting `running` after posting,
// then toggling it again inside the dispatched task via atomic_exchange,
// leaving a window where two concurrent arrivals can both pass the
// outer check before either dispatch begins. That is reproduced here
// rather than closed with a single CAS, so the documented at-most-two-
// overlapping-dispatches behavior is preserved rather than silently
// tightened.
type Receiver struct {
	name     string
	clock    Clock
	job      JobCallable
	executor *Executor
	logger   *slog.Logger
	running  atomic.Bool
}

// NewReceiver constructs a data-triggered receiver for signal name,
// dispatching job onto executor with timestamps from clock.
func NewReceiver(name string, clock Clock, job JobCallable, executor *Executor, logger *slog.Logger) *Receiver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Receiver{name: name, clock: clock, job: job, executor: executor, logger: logger}
}

// OnReceive implements datasignal.Listener. Stream-type items never
// reach here (datasignal.Input only forwards samples to listeners,
// spec.md §4.10: "stream-type items are ignored").
func (r *Receiver) OnReceive(_ sample.Sample) {
	if r.running.Load() {
		r.logger.Warn("data-triggered job dropped: previous dispatch still running", "signal", r.name)
		return
	}
	r.running.Store(true)

	posted := r.executor.Post(func() {
		r.running.Store(true)
		defer r.running.Store(false)
		r.job(r.clock.Now())
	})
	if !posted {
		r.running.Store(false)
	}
}
