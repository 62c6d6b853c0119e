// Package threadpool implements the fixed-size worker pool of spec.md
// §4.7 (C8): post, delayed post, periodic post with cancel, and
// post-with-completion-future.
//
// Go has no native bounded goroutine pool; this one is built the way
// the teacher builds bounded concurrency elsewhere (a buffered job
// channel plus a fixed number of worker goroutines, cf.
// internal/mqtt's rate limiter's single ticking goroutine), enriched
// with golang.org/x/sync/semaphore to bound the number of pending
// delayed (PostAt) timers at the worker count; each PostPeriodic loop
// runs in its own goroutine (see SPEC_FULL.md's domain-stack table).
package threadpool

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// job is a unit of work queued to the pool.
type job func()

// Pool is a fixed-size worker pool. Worker count is fixed at
// construction (spec.md §4.7: "Worker count is fixed at construction
// (≥1)"). Task ordering between posts from one thread is FIFO (golang
// channels preserve send order; ordering between different submitters
// is unspecified, matching the spec).
type Pool struct {
	size int
	sem  *semaphore.Weighted

	mu       sync.Mutex
	running  bool
	jobs     chan job
	wg       sync.WaitGroup
	stopCh   chan struct{}

	timerMu sync.Mutex
	timers  map[uint64]*periodicHandle
	nextID  uint64
}

// periodicHandle tracks one postPeriodic loop so Cancel can stop it.
type periodicHandle struct {
	stop chan struct{}
	once sync.Once
}

// Handle identifies a cancellable periodic post.
type Handle uint64

// New creates a Pool with the given fixed worker count (clamped to at
// least 1). The pool is not started until Start is called.
func New(workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{
		size:   workers,
		sem:    semaphore.NewWeighted(int64(workers)),
		timers: make(map[uint64]*periodicHandle),
	}
}

// Start begins worker goroutines. Idempotent (spec.md §4.7: "start /
// stop are idempotent").
func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}
	p.running = true
	p.jobs = make(chan job, p.size*4)
	p.stopCh = make(chan struct{})

	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.stopCh:
			return
		case j, ok := <-p.jobs:
			if !ok {
				return
			}
			j()
		}
	}
}

// Stop joins all workers, draining queued jobs first. Idempotent.
// Destruction of a Pool implies Stop should have been called; Go has no
// destructors, so callers must call Stop explicitly (documented
// departure from the C++ RAII original, per spec.md §9's translation
// guidance toward explicit-close idioms).
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.jobs)
	p.mu.Unlock()

	p.wg.Wait()
}

// Post enqueues a single-shot task. A concurrent Stop may close the job
// channel between the running check and the send below; that race is
// harmless (the task is simply dropped during shutdown rather than
// panicking the caller), so the send is guarded with recover instead of
// relying on the running check alone.
func (p *Pool) Post(f func()) {
	p.mu.Lock()
	jobs := p.jobs
	running := p.running
	p.mu.Unlock()
	if !running {
		return
	}
	defer func() { recover() }()
	jobs <- job(f)
}

// PostAt executes f after at least delay has elapsed from the call to
// PostAt. The number of pending delayed timers is bounded by the pool's
// worker count via a weighted semaphore, so a burst of PostAt calls
// cannot accumulate unbounded background goroutines ahead of the pool
// actually being able to run them.
func (p *Pool) PostAt(delay time.Duration, f func()) {
	if err := p.sem.Acquire(context.Background(), 1); err != nil {
		return
	}
	time.AfterFunc(delay, func() {
		defer p.sem.Release(1)
		p.Post(f)
	})
}

// PostPeriodic executes f at approximately every period. The loop
// terminates when f returns false or Cancel(handle) is called. Cancel
// is best-effort: an invocation already dispatched to a worker runs to
// completion (spec.md §4.7).
func (p *Pool) PostPeriodic(period time.Duration, f func() bool) Handle {
	p.timerMu.Lock()
	p.nextID++
	id := p.nextID
	h := &periodicHandle{stop: make(chan struct{})}
	p.timers[id] = h
	p.timerMu.Unlock()

	go func() {
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		for {
			select {
			case <-h.stop:
				return
			case <-ticker.C:
				done := make(chan bool, 1)
				p.Post(func() {
					done <- f()
				})
				select {
				case cont := <-done:
					if !cont {
						p.removeTimer(id)
						return
					}
				case <-h.stop:
					return
				}
			}
		}
	}()

	return Handle(id)
}

func (p *Pool) removeTimer(id uint64) {
	p.timerMu.Lock()
	defer p.timerMu.Unlock()
	delete(p.timers, id)
}

// Cancel stops a periodic post identified by handle. Returns true if
// the handle was found, false otherwise (spec.md §4.7).
func (p *Pool) Cancel(handle Handle) bool {
	p.timerMu.Lock()
	h, ok := p.timers[uint64(handle)]
	if ok {
		delete(p.timers, uint64(handle))
	}
	p.timerMu.Unlock()
	if !ok {
		return false
	}
	h.once.Do(func() { close(h.stop) })
	return true
}

// Future is the result of PostWithCompletionFuture: ready once f has
// returned.
type Future struct {
	done chan struct{}
}

// Wait blocks until the underlying task has completed.
func (fut *Future) Wait() {
	<-fut.done
}

// WaitContext blocks until the task completes or ctx is done, whichever
// happens first. Returns ctx.Err() on timeout/cancellation, nil on
// completion.
func (fut *Future) WaitContext(ctx context.Context) error {
	select {
	case <-fut.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PostWithCompletionFuture enqueues f and returns a Future that becomes
// ready when f returns (spec.md §4.7).
func (p *Pool) PostWithCompletionFuture(f func()) *Future {
	fut := &Future{done: make(chan struct{})}
	p.Post(func() {
		defer close(fut.done)
		f()
	})
	return fut
}
