// Package clocksvc defines the external clock-service interface of
// spec.md §6 ("the external clock service itself... the core consumes
// its events; it does not produce time") plus an in-memory manually
// driven test double used to exercise the end-to-end scenarios of
// spec.md §8.
//
// The core never implements a clock; this package exists only so
// clockscheduler has something concrete to subscribe to in tests, the
// way the teacher's internal/connwatch is driven by a fake prober in its
// own tests rather than a real network socket.
package clocksvc

import "sync"

// Type is the clock kind spec.md §6's getType() reports.
type Type int

const (
	Discrete Type = iota
	Continuous
)

func (t Type) String() string {
	if t == Continuous {
		return "continuous"
	}
	return "discrete"
}

// Sink receives the clock event sequence of spec.md §6: begin/end
// brackets around a time update, the update itself (with an optional
// known next tick), and begin/end brackets around a reset.
type Sink interface {
	TimeUpdateBegin()
	TimeUpdating(t int64, next *int64)
	TimeUpdateEnd()
	TimeResetBegin(old, new int64)
	TimeResetEnd(new int64)
}

// Clock is the external clock service surface the core consumes.
type Clock interface {
	Type() Type
	Now() int64
	RegisterSink(s Sink)
	UnregisterSink(s Sink)
}

// Manual is an in-memory Clock a test drives explicitly via Tick/Reset,
// fanning out to every registered Sink synchronously — standing in for
// the real external clock service during end-to-end scenario tests
// (spec.md §8 scenarios 2 and 3).
type Manual struct {
	kind Type

	mu    sync.Mutex
	now   int64
	sinks []Sink
}

// NewManual constructs a Manual clock of the given kind, starting at t=0.
func NewManual(kind Type) *Manual {
	return &Manual{kind: kind}
}

func (m *Manual) Type() Type { return m.kind }

func (m *Manual) Now() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) RegisterSink(s Sink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sinks = append(m.sinks, s)
}

func (m *Manual) UnregisterSink(s Sink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.sinks {
		if existing == s {
			m.sinks = append(m.sinks[:i], m.sinks[i+1:]...)
			return
		}
	}
}

func (m *Manual) snapshotSinks() []Sink {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Sink, len(m.sinks))
	copy(out, m.sinks)
	return out
}

// Tick advances the clock to t (with an optional known next tick) and
// fans out TimeUpdateBegin/TimeUpdating/TimeUpdateEnd to every
// registered sink.
func (m *Manual) Tick(t int64, next *int64) {
	m.mu.Lock()
	m.now = t
	m.mu.Unlock()

	for _, s := range m.snapshotSinks() {
		s.TimeUpdateBegin()
		s.TimeUpdating(t, next)
		s.TimeUpdateEnd()
	}
}

// Reset fans out TimeResetBegin/TimeResetEnd and sets the clock to
// newTime.
func (m *Manual) Reset(oldTime, newTime int64) {
	for _, s := range m.snapshotSinks() {
		s.TimeResetBegin(oldTime, newTime)
	}
	m.mu.Lock()
	m.now = newTime
	m.mu.Unlock()
	for _, s := range m.snapshotSinks() {
		s.TimeResetEnd(newTime)
	}
}
