// Package jobregistry defines the external job-registry interface of
// spec.md §6: a read-only enumeration of job entries, each a name,
// callable, and job-configuration variant (clock-triggered or
// data-triggered), plus an in-memory concrete implementation the core's
// wiring uses to populate clockscheduler.
package jobregistry

// ViolationStrategy names spec.md §4.11's job-runner response to a
// max_runtime violation.
type ViolationStrategy string

const (
	Ignore            ViolationStrategy = "ignore"
	Warn              ViolationStrategy = "warn"
	SkipOutputPublish ViolationStrategy = "skip_output_publish"
	SetSTMToError     ViolationStrategy = "set_stm_to_error"
)

// Callable is a job's compute unit, invoked with the timestamp it fired
// at (spec.md §3 "Job configuration variants").
type Callable func(timestamp int64)

// ClockTriggered is spec.md §3's ClockTriggered job-configuration
// variant.
type ClockTriggered struct {
	Period            int64
	InitialDelay      int64
	MaxRuntime        int64
	ViolationStrategy ViolationStrategy
}

// DataTriggered is spec.md §3's DataTriggered job-configuration variant.
type DataTriggered struct {
	SignalNames       []string
	MaxRuntime        int64
	ViolationStrategy ViolationStrategy
}

// Configuration is the tagged union of the two job-configuration
// variants; exactly one of ClockTriggered/DataTriggered is non-nil.
type Configuration struct {
	ClockTriggered *ClockTriggered
	DataTriggered  *DataTriggered
}

// Entry is one job-registry record (spec.md §6 JobEntry).
type Entry struct {
	Name          string
	Callable      Callable
	Configuration Configuration
}

// Registry is the read-only job-enumeration surface clockscheduler
// consults at initialize.
type Registry interface {
	Jobs() []Entry
}

// Static is an in-memory Registry populated once at construction — the
// out-of-scope collaborator spec.md §1 places outside the core, stood
// in here as the simplest concrete implementation.
type Static struct {
	entries []Entry
}

// NewStatic constructs a Static registry over entries.
func NewStatic(entries []Entry) *Static {
	return &Static{entries: entries}
}

func (s *Static) Jobs() []Entry {
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}
