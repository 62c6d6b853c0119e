// Package clockscheduler implements the clock event sink and
// clock-based scheduler of spec.md §4.11 (C13): the top-level
// composition that owns a thread pool (C8), the sync or async invoker
// (C10/C11) matching the clock's type, the data-triggered executor
// (C12), and the job-runner wrapper that enforces each job's
// max_runtime/violation_strategy contract.
//
// Grounded in internal/scheduler.Scheduler's Start/Stop mutex
// idempotency discipline and internal/events.Bus's nil-safe fan-out
// shape (adapted, not copied, for the two clock-sink adapters below).
package clockscheduler

import (
	"fmt"
	"sync"
	"time"

	"github.com/cariad-tech/fep3-participant-sub000/asyncexec"
	"github.com/cariad-tech/fep3-participant-sub000/clocksvc"
	"github.com/cariad-tech/fep3-participant-sub000/datatrigger"
	"github.com/cariad-tech/fep3-participant-sub000/healthsvc"
	"github.com/cariad-tech/fep3-participant-sub000/jobregistry"
	"github.com/cariad-tech/fep3-participant-sub000/logsvc"
	"github.com/cariad-tech/fep3-participant-sub000/registry"
	"github.com/cariad-tech/fep3-participant-sub000/schedtask"
	"github.com/cariad-tech/fep3-participant-sub000/syncexec"
	"github.com/cariad-tech/fep3-participant-sub000/threadpool"
)

// RunnerHooks are the side effects a Runner triggers on a max_runtime
// violation that the scheduler itself cannot perform generically
// (spec.md §4.11's skip_output_publish and set_stm_to_error strategies
// depend on which output signals/health surface a concrete deployment
// wires up). Both are optional; nil hooks are simply skipped.
type RunnerHooks struct {
	SkipOutputPublish func(jobName string)
	SetSTMToError     func(jobName string, err error)
}

// Runner wraps one job invocation: timestamps the start, calls the job,
// measures duration, and compares against max_runtime, applying
// violation_strategy on overrun (spec.md §4.11 "Job runner").
type Runner struct {
	name       string
	job        jobregistry.Callable
	maxRuntime int64
	strategy   jobregistry.ViolationStrategy
	health     healthsvc.Service
	logger     logsvc.Logger
	hooks      RunnerHooks
	store      *schedtask.Store
}

// NewRunner constructs a Runner for one job-registry entry. store may be
// nil, in which case executions are reported to health only, not
// persisted.
func NewRunner(name string, job jobregistry.Callable, maxRuntime int64, strategy jobregistry.ViolationStrategy, health healthsvc.Service, logger logsvc.Logger, hooks RunnerHooks, store *schedtask.Store) *Runner {
	return &Runner{name: name, job: job, maxRuntime: maxRuntime, strategy: strategy, health: health, logger: logger, hooks: hooks, store: store}
}

// Run executes the wrapped job at timestamp, applying the violation
// strategy and reporting the outcome to the health service (spec.md
// §4.11: "Report every outcome to the health service when present") and,
// when a store is configured, to the execution-history table.
func (r *Runner) Run(timestamp int64) {
	start := time.Now()
	r.job(timestamp)
	completed := time.Now()
	duration := completed.Sub(start)

	violated := r.maxRuntime > 0 && duration.Nanoseconds() > r.maxRuntime
	var violationErr error
	if violated {
		switch r.strategy {
		case jobregistry.Ignore:
			// nothing
		case jobregistry.Warn:
			if r.logger != nil {
				r.logger.Warning("job exceeded max_runtime",
					"job", r.name, "max_runtime_ns", r.maxRuntime, "observed_ns", duration.Nanoseconds())
			}
		case jobregistry.SkipOutputPublish:
			if r.hooks.SkipOutputPublish != nil {
				r.hooks.SkipOutputPublish(r.name)
			}
		case jobregistry.SetSTMToError:
			violationErr = fmt.Errorf("job %q exceeded max_runtime (%d ns > %d ns)", r.name, duration.Nanoseconds(), r.maxRuntime)
			if r.hooks.SetSTMToError != nil {
				r.hooks.SetSTMToError(r.name, violationErr)
			}
		}
	}

	if r.health != nil {
		r.health.UpdateJobStatus(r.name, healthsvc.Result{
			JobName:    r.name,
			Timestamp:  timestamp,
			DurationNs: duration.Nanoseconds(),
			Violated:   violated,
			MaxRuntime: r.maxRuntime,
		})
	}

	if r.store != nil {
		result := ""
		if violationErr != nil {
			result = schedtask.MarshalResult(map[string]string{"error": violationErr.Error()})
		}
		if err := r.store.RecordExecution(&schedtask.Execution{
			TaskName:    r.name,
			ScheduledAt: timestamp,
			StartedAt:   start,
			CompletedAt: completed,
			DurationNs:  duration.Nanoseconds(),
			Violated:    violated,
			Strategy:    string(r.strategy),
			Result:      result,
		}); err != nil && r.logger != nil {
			r.logger.Warning("failed to record job execution", "job", r.name, "error", err)
		}
	}
}

// syncSink adapts the sync invoker to clocksvc.Sink.
type syncSink struct{ inv *syncexec.Invoker }

func (s syncSink) TimeUpdateBegin()                  {}
func (s syncSink) TimeUpdateEnd()                    {}
func (s syncSink) TimeUpdating(t int64, next *int64) { s.inv.TimeUpdating(t, next) }
func (s syncSink) TimeResetBegin(old, new int64)     { s.inv.TimeReset(old, new) }
func (s syncSink) TimeResetEnd(new int64)            {}

// asyncSink adapts the async invoker to clocksvc.Sink. The invoker's own
// scheduling goroutine free-runs via Start; the sink only needs to
// forward resets so the invoker's tasks reposition (spec.md §4.9's
// closing paragraph: "a subsequent time_reset repositions them").
type asyncSink struct{ inv *asyncexec.Invoker }

func (s asyncSink) TimeUpdateBegin()                  {}
func (s asyncSink) TimeUpdateEnd()                    {}
func (s asyncSink) TimeUpdating(t int64, next *int64) {}
func (s asyncSink) TimeResetBegin(old, new int64)     { s.inv.TimeReset(old, new) }
func (s asyncSink) TimeResetEnd(new int64)            {}

// Scheduler is the clock-based scheduler of spec.md §4.11.
type Scheduler struct {
	pool   *threadpool.Pool
	dtExec *datatrigger.Executor
	clock  clocksvc.Clock

	discrete bool
	syncInv  *syncexec.Invoker
	asyncInv *asyncexec.Invoker
	sink     clocksvc.Sink

	health healthsvc.Service
	logger logsvc.Logger
	hooks  RunnerHooks
	store  *schedtask.Store

	mu        sync.Mutex
	receivers []receiverBinding
	running   bool
}

type receiverBinding struct {
	signalName string
	receiver   *datatrigger.Receiver
}

// New constructs an uninitialized Scheduler. store is optional
// (spec.md §4.11's health reporting is the only required outcome
// surface); when non-nil, every job firing is also persisted to the
// execution-history table for later audit (C9 Task Storage).
func New(health healthsvc.Service, logger logsvc.Logger, hooks RunnerHooks, store *schedtask.Store) *Scheduler {
	return &Scheduler{health: health, logger: logger, hooks: hooks, store: store}
}

// Initialize performs spec.md §4.11's initialization sequence: consult
// the job registry, size the pool, construct the data-triggered
// executor, construct the invoker matching clock.Type(), register it as
// a clock sink, and bind every job to its executor.
func (s *Scheduler) Initialize(jobs jobregistry.Registry, clock clocksvc.Clock, reg *registry.Registry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := jobs.Jobs()
	poolSize := len(entries)
	if poolSize == 0 {
		poolSize = 1
	}
	s.pool = threadpool.New(poolSize)
	s.dtExec = datatrigger.NewExecutor(s.pool)
	s.clock = clock

	switch clock.Type() {
	case clocksvc.Discrete:
		s.discrete = true
		s.syncInv = syncexec.NewInvoker(s.pool)
		s.sink = syncSink{inv: s.syncInv}
	case clocksvc.Continuous:
		s.discrete = false
		s.asyncInv = asyncexec.NewInvoker(s.pool, clock.Now)
		s.sink = asyncSink{inv: s.asyncInv}
	default:
		return fmt.Errorf("clockscheduler: unknown clock type %v", clock.Type())
	}
	clock.RegisterSink(s.sink)

	for _, entry := range entries {
		if err := s.bindJobLocked(entry, reg); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scheduler) bindJobLocked(entry jobregistry.Entry, reg *registry.Registry) error {
	switch {
	case entry.Configuration.ClockTriggered != nil:
		cfg := entry.Configuration.ClockTriggered
		runner := NewRunner(entry.Name, entry.Callable, cfg.MaxRuntime, cfg.ViolationStrategy, s.health, s.logger, s.hooks, s.store)
		task := &schedtask.Task{
			Name:         entry.Name,
			Callable:     runner.Run,
			Period:       cfg.Period,
			InitialDelay: cfg.InitialDelay,
			NextInstant:  s.clock.Now() + cfg.InitialDelay,
		}
		if s.discrete {
			return s.syncInv.AddTask(task)
		}
		s.asyncInv.AddTask(task)
		return nil

	case entry.Configuration.DataTriggered != nil:
		cfg := entry.Configuration.DataTriggered
		runner := NewRunner(entry.Name, entry.Callable, cfg.MaxRuntime, cfg.ViolationStrategy, s.health, s.logger, s.hooks, s.store)
		for _, signalName := range cfg.SignalNames {
			receiver := datatrigger.NewReceiver(signalName, clockAdapter{s.clock}, runner.Run, s.dtExec, nil)
			if err := reg.RegisterDataReceiveListener(signalName, receiver); err != nil {
				return fmt.Errorf("clockscheduler: bind data-triggered job %q on %q: %w", entry.Name, signalName, err)
			}
			s.receivers = append(s.receivers, receiverBinding{signalName: signalName, receiver: receiver})
		}
		return nil

	default:
		return fmt.Errorf("clockscheduler: job %q has no configuration variant", entry.Name)
	}
}

// clockAdapter satisfies datatrigger.Clock over a clocksvc.Clock.
type clockAdapter struct{ clock clocksvc.Clock }

func (c clockAdapter) Now() int64 { return c.clock.Now() }

// Start starts the pool, the data-triggered executor, then the invoker
// (spec.md §4.11 "Start"). Idempotent.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.pool.Start()
	s.dtExec.Start()
	if !s.discrete {
		s.asyncInv.Start()
	}
	s.running = true
}

// Stop stops the invoker, the data-triggered executor, then the pool —
// the exact reverse of Start (spec.md §4.11 "Stop"). Idempotent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	if s.discrete {
		s.syncInv.Stop()
	} else {
		s.asyncInv.Stop()
	}
	s.dtExec.Stop()
	s.pool.Stop()
	s.running = false
}

// Deinitialize unregisters the event sink, releases the invoker, and
// unregisters every data-triggered listener (spec.md §4.11
// "Deinitialize").
func (s *Scheduler) Deinitialize(reg *registry.Registry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.clock != nil && s.sink != nil {
		s.clock.UnregisterSink(s.sink)
	}
	s.syncInv = nil
	s.asyncInv = nil
	s.sink = nil

	for _, b := range s.receivers {
		_ = reg.UnregisterDataReceiveListener(b.signalName)
	}
	s.receivers = nil
}
