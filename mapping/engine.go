package mapping

import (
	"sync"

	"github.com/cariad-tech/fep3-participant-sub000/coreerr"
)

// Source describes one source signal a target mapping draws from.
type Source struct {
	Name string
	Type string // DDL struct name, resolved via DDLManager.ResolveType
}

// Synthesizer assembles a target sample's bytes from the current
// last-seen values of every configured source. It is the "cooperating
// opaque subcomponent" of spec.md §4.6: the engine only owns caching
// and trigger dispatch, not field-level byte transcoding.
type Synthesizer func(lastSeen map[string][]byte) []byte

// TargetMapping is one target signal's mapping configuration: a set of
// source signals, which one of them triggers synthesis (empty means
// every source arrival triggers), and the function that assembles the
// target payload.
type TargetMapping struct {
	TargetName    string
	TargetType    string
	Sources       []Source
	TriggerSource string
	Synthesize    Synthesizer
}

// Sink receives a synthesized target sample.
type Sink func(payload []byte, t int64)

type registeredTarget struct {
	config   TargetMapping
	sink     Sink
	lastSeen map[string][]byte
}

// Engine is the mapping engine of spec.md §4.6: "given a configuration
// and a data-description, produce target samples whenever the trigger
// source produces one; values of non-trigger sources are last-seen."
type Engine struct {
	mu      sync.Mutex
	ddl     *DDLManager
	targets map[string]*registeredTarget
	running bool
}

// NewEngine creates a mapping Engine bound to ddl for type resolution.
func NewEngine(ddl *DDLManager) *Engine {
	return &Engine{ddl: ddl, targets: make(map[string]*registeredTarget)}
}

// RegisterTarget makes config's target signal known to the engine and
// installs sink as where synthesized samples are delivered. Returns
// ERR_INVALID_ARG if the target is already registered or has no
// sources.
func (e *Engine) RegisterTarget(config TargetMapping, sink Sink) error {
	if len(config.Sources) == 0 {
		return coreerr.New(coreerr.InvalidArg, "mapping target "+config.TargetName+" has no sources")
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.targets[config.TargetName]; exists {
		return coreerr.New(coreerr.InvalidArg, "mapping target already registered: "+config.TargetName)
	}
	e.targets[config.TargetName] = &registeredTarget{
		config:   config,
		sink:     sink,
		lastSeen: make(map[string][]byte),
	}
	return nil
}

// UnregisterTarget removes a previously registered target mapping.
func (e *Engine) UnregisterTarget(targetName string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.targets[targetName]; !ok {
		return coreerr.New(coreerr.NotFound, "mapping target not registered: "+targetName)
	}
	delete(e.targets, targetName)
	return nil
}

// IsMapped reports whether targetName has a registered mapping (spec.md
// §4.6 "checkMappingConfiguration").
func (e *Engine) IsMapped(targetName string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.targets[targetName]
	return ok
}

// Sources returns the source signal list for targetName, or nil if not
// mapped. Used by the registry to register every mapping source as a
// normal input (spec.md §4.6).
func (e *Engine) Sources(targetName string) []Source {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.targets[targetName]
	if !ok {
		return nil
	}
	out := make([]Source, len(t.config.Sources))
	copy(out, t.config.Sources)
	return out
}

// Start marks the engine running; samples delivered to OnSourceSample
// while stopped are ignored: they are neither cached nor trigger
// synthesis.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return coreerr.New(coreerr.InvalidState, "mapping engine already running")
	}
	e.running = true
	return nil
}

// Stop marks the engine stopped.
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running {
		return coreerr.New(coreerr.InvalidState, "mapping engine not running")
	}
	e.running = false
	return nil
}

// OnSourceSample records sourceName's payload as the last-seen value
// for every target mapping that references it, and synthesizes/sinks a
// target sample for any target whose TriggerSource is sourceName (or
// whose TriggerSource is "", meaning any source arrival triggers).
func (e *Engine) OnSourceSample(sourceName string, payload []byte, t int64) {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	var toFire []*registeredTarget
	for _, target := range e.targets {
		referenced := false
		for _, s := range target.config.Sources {
			if s.Name == sourceName {
				referenced = true
				break
			}
		}
		if !referenced {
			continue
		}
		target.lastSeen[sourceName] = payload
		if target.config.TriggerSource == "" || target.config.TriggerSource == sourceName {
			toFire = append(toFire, target)
		}
	}
	// Snapshot last-seen maps under the lock so synthesis below runs
	// without holding it across the user-supplied Synthesize callback
	// (spec.md §5: "no lock is held across a user callback").
	type pending struct {
		sink    Sink
		snap    map[string][]byte
		synth   Synthesizer
	}
	var work []pending
	for _, target := range toFire {
		snap := make(map[string][]byte, len(target.lastSeen))
		for k, v := range target.lastSeen {
			snap[k] = v
		}
		work = append(work, pending{sink: target.sink, snap: snap, synth: target.config.Synthesize})
	}
	e.mu.Unlock()

	for _, w := range work {
		payload := w.synth(w.snap)
		w.sink(payload, t)
	}
}
