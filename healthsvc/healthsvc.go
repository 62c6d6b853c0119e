// Package healthsvc defines the external health-service interface of
// spec.md §6 ("updateJobStatus(name, JobExecuteResult)") plus an
// in-memory recorder used by clockscheduler's tests and by
// cmd/fepcore-demo when no richer health backend is wired.
package healthsvc

import "sync"

// Result is spec.md §6's JobExecuteResult: the outcome of one job
// invocation reported by the job runner (spec.md §4.11).
type Result struct {
	JobName     string
	Timestamp   int64
	DurationNs  int64
	Violated    bool
	MaxRuntime  int64
	Err         error
}

// Service is the external health-service surface the core reports to.
type Service interface {
	UpdateJobStatus(name string, result Result)
}

// Recorder is an in-memory Service that keeps the most recent Result per
// job name plus the full history, for assertions in tests.
type Recorder struct {
	mu      sync.Mutex
	latest  map[string]Result
	history []Result
}

// NewRecorder constructs an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{latest: make(map[string]Result)}
}

func (r *Recorder) UpdateJobStatus(name string, result Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.latest[name] = result
	r.history = append(r.history, result)
}

// Latest returns the most recent Result reported for name, if any.
func (r *Recorder) Latest(name string) (Result, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.latest[name]
	return res, ok
}

// History returns every Result reported, in report order.
func (r *Recorder) History() []Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Result, len(r.history))
	copy(out, r.history)
	return out
}
