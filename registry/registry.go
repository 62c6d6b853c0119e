// Package registry implements the data registry of spec.md §4.6 (C7):
// the per-participant broker composing stream types (C1), data queues
// (C3), signal input/output (C4), the mapping engine (C5), and
// renaming (C6) behind a lifecycle state machine.
//
// Grounded in internal/scheduler.Scheduler's mutex-guarded
// Start/Stop idempotency discipline and internal/mqtt.Publisher's
// "wire discovery, then subscribe" ordering, generalized to the
// tense/relax ordering contract of spec.md §4.6.
package registry

import (
	"fmt"
	"regexp"
	"sync"

	"github.com/cariad-tech/fep3-participant-sub000/coreerr"
	"github.com/cariad-tech/fep3-participant-sub000/datasignal"
	"github.com/cariad-tech/fep3-participant-sub000/mapping"
	"github.com/cariad-tech/fep3-participant-sub000/rename"
	"github.com/cariad-tech/fep3-participant-sub000/sample"
	"github.com/cariad-tech/fep3-participant-sub000/streamtype"
)

// State is a node in the registry's lifecycle state machine (spec.md
// §4.6): unloaded → loaded → initialized → tensed → running → tensed →
// initialized → loaded → unloaded.
type State int

const (
	StateUnloaded State = iota
	StateLoaded
	StateInitialized
	StateTensed
	StateRunning
)

func (s State) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateLoaded:
		return "loaded"
	case StateInitialized:
		return "initialized"
	case StateTensed:
		return "tensed"
	case StateRunning:
		return "running"
	default:
		return "unknown"
	}
}

// Bus is the transport surface the registry needs beyond plain
// reader/writer registration (spec.md §6): the blocking-reception loop
// tense starts in a dedicated goroutine and relax stops.
type Bus interface {
	datasignal.Transport
	StartBlockingReception(onReady func()) error
	StopBlockingReception() error
}

// ConfigSource is the minimal read surface of the external
// configuration/property-tree service (spec.md §6) the registry
// consults at initialize. The live property-tree service itself is an
// out-of-scope surrounding collaborator.
type ConfigSource interface {
	GetString(path string) (string, bool)
	GetStringList(path string) ([]string, bool)
}

// FileReader abstracts reading a DDL file by path (spec.md §6
// "Relative paths resolve against the binary location" — path
// resolution is the caller's concern; FileReader just returns content).
type FileReader interface {
	ReadFile(path string) (string, error)
}

var signalNamePattern = regexp.MustCompile(`^[A-Za-z0-9_./]+$`)

type signalIn struct {
	name         string
	registeredType *streamtype.StreamType
	dynamic      bool
	input        *datasignal.Input
	mapped       bool
	listenerID   uint64
}

type signalOut struct {
	name         string
	registeredType *streamtype.StreamType
	dynamic      bool
	output       *datasignal.Output
}

// Registry is the data registry of spec.md §4.6.
type Registry struct {
	mu    sync.Mutex
	state State

	in  map[string]*signalIn
	out map[string]*signalOut

	aliasIn  *rename.Table
	aliasOut *rename.Table

	ddl    *mapping.DDLManager
	engine *mapping.Engine

	pendingMappings map[string]mapping.TargetMapping

	bus            Bus
	receptionDone  chan struct{}
}

// New creates an unloaded Registry.
func New() *Registry {
	return &Registry{
		in:              make(map[string]*signalIn),
		out:             make(map[string]*signalOut),
		ddl:             mapping.NewDDLManager(),
		pendingMappings: make(map[string]mapping.TargetMapping),
	}
}

// State returns the registry's current lifecycle state.
func (r *Registry) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Registry) requireState(want State) error {
	if r.state != want {
		return coreerr.New(coreerr.InvalidState, fmt.Sprintf("expected state %s, got %s", want, r.state))
	}
	return nil
}

// Create moves the registry from unloaded to loaded (spec.md §4.6
// "create: register RPC service, register configuration node" — the
// RPC/config registration itself is delegated to the out-of-scope
// rpcsvc/configsvc collaborators; Create only advances the state).
func (r *Registry) Create() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.requireState(StateUnloaded); err != nil {
		return err
	}
	r.state = StateLoaded
	return nil
}

// SetMappingConfig registers the mapping-engine target configurations
// to be compiled at Initialize. Spec.md is silent on the mapping
// configuration file's concrete syntax (only DDL's and renaming's
// textual formats are specified) — by design this is supplied
// programmatically rather than parsed from a file (see DESIGN.md).
func (r *Registry) SetMappingConfig(targets []mapping.TargetMapping) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pendingMappings = make(map[string]mapping.TargetMapping, len(targets))
	for _, t := range targets {
		r.pendingMappings[t.TargetName] = t
	}
}

// Initialize reads configuration (renaming tables, DDL file list),
// merges DDL, and compiles the pending mapping configuration (spec.md
// §4.6 "initialize").
func (r *Registry) Initialize(cfg ConfigSource, files FileReader) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.requireState(StateLoaded); err != nil {
		return err
	}

	if spec, ok := cfg.GetString("data_registry/renaming_input"); ok {
		tbl, err := rename.Parse(spec)
		if err != nil {
			return fmt.Errorf("initialize: renaming_input: %w", err)
		}
		r.aliasIn = tbl
	} else {
		r.aliasIn, _ = rename.Parse("")
	}
	if spec, ok := cfg.GetString("data_registry/renaming_output"); ok {
		tbl, err := rename.Parse(spec)
		if err != nil {
			return fmt.Errorf("initialize: renaming_output: %w", err)
		}
		r.aliasOut = tbl
	} else {
		r.aliasOut, _ = rename.Parse("")
	}

	inNames := make([]string, 0, len(r.in))
	for name := range r.in {
		inNames = append(inNames, name)
	}
	if err := validateAliasUniqueness(inNames, r.aliasIn); err != nil {
		return fmt.Errorf("initialize: renaming_input: %w", err)
	}
	outNames := make([]string, 0, len(r.out))
	for name := range r.out {
		outNames = append(outNames, name)
	}
	if err := validateAliasUniqueness(outNames, r.aliasOut); err != nil {
		return fmt.Errorf("initialize: renaming_output: %w", err)
	}

	if paths, ok := cfg.GetStringList("data_registry/mapping_ddl_file_paths"); ok {
		for _, p := range paths {
			text, err := files.ReadFile(p)
			if err != nil {
				return coreerr.New(coreerr.InvalidFile, "initialize: read DDL file "+p+": "+err.Error())
			}
			if err := r.ddl.MergeDDL(text); err != nil {
				return fmt.Errorf("initialize: merge DDL %s: %w", p, err)
			}
		}
	}

	r.engine = mapping.NewEngine(r.ddl)
	for name, target := range r.pendingMappings {
		target := target
		if err := r.engine.RegisterTarget(target, func(payload []byte, t int64) {
			r.deliverMappedSample(name, payload, t)
		}); err != nil {
			return fmt.Errorf("initialize: compile mapping %s: %w", name, err)
		}
	}

	r.state = StateInitialized
	return nil
}

func (r *Registry) deliverMappedSample(targetName string, payload []byte, t int64) {
	r.mu.Lock()
	entry, ok := r.in[targetName]
	r.mu.Unlock()
	if !ok {
		return
	}
	s := sample.NewHeapSample(payload)
	s.SetTime(t)
	entry.input.OnReceiveSample(s, t)
}

// RegisterDataIn registers an input signal (spec.md §4.6
// registerDataIn, P1, P2).
func (r *Registry) RegisterDataIn(name string, t *streamtype.StreamType, dynamic bool) error {
	if !signalNamePattern.MatchString(name) {
		return coreerr.New(coreerr.InvalidArg, "register data in: invalid name "+name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.in[name]; ok {
		return compatibleOrFail(existing.registeredType, t)
	}

	alias := r.aliasIn.Alias(name)
	if r.aliasIn.HasAlias(alias, name) {
		return coreerr.New(coreerr.NotSupported, "register data in: alias collision for "+name)
	}

	if target, isMapped := r.pendingMappings[name]; isMapped {
		return r.registerMappedInputLocked(name, target, dynamic)
	}

	r.in[name] = &signalIn{
		name:           name,
		registeredType: t,
		dynamic:        dynamic,
		input:          datasignal.NewInput(name),
	}
	return nil
}

// registerMappedInputLocked implements spec.md §4.6's mapping
// indirection: the named signal is moved to the mapped-inputs
// collection (never attached to transport directly) and each of its
// configured sources is registered as a normal input instead.
func (r *Registry) registerMappedInputLocked(name string, target mapping.TargetMapping, dynamic bool) error {
	r.in[name] = &signalIn{
		name:           name,
		registeredType: streamtype.New(target.TargetType),
		dynamic:        dynamic,
		input:          datasignal.NewInput(name),
		mapped:         true,
	}

	for _, src := range target.Sources {
		if _, already := r.in[src.Name]; already {
			continue
		}
		var derived *streamtype.StreamType
		if src.Type != "" {
			derived = streamtype.New(streamtype.MetaDDL)
			derived.Props.SetProperty("ddlstruct", src.Type, "string")
		} else {
			derived = streamtype.New(streamtype.MetaAnonymous)
		}
		r.in[src.Name] = &signalIn{
			name:           src.Name,
			registeredType: derived,
			dynamic:        true,
			input:          datasignal.NewInput(src.Name),
		}
	}
	return nil
}

func compatibleOrFail(existing, candidate *streamtype.StreamType) error {
	if existing == nil || candidate == nil {
		if existing == candidate {
			return nil
		}
		return coreerr.New(coreerr.InvalidType, "type mismatch on re-registration")
	}
	if existing.IsDDLFamily() && candidate.IsDDLFamily() {
		if existing.DDLStruct() == candidate.DDLStruct() {
			return nil
		}
		return coreerr.New(coreerr.InvalidType, "conflicting ddlstruct on re-registration")
	}
	if existing.IsEqual(candidate) {
		return nil
	}
	return coreerr.New(coreerr.InvalidType, "type mismatch on re-registration")
}

// validateAliasUniqueness checks that every name in names computes to a
// distinct alias under table, catching a renaming collision between two
// signals that were both registered before the renaming table was
// parsed (spec.md §8 scenario 5: register x and y first, then
// Initialize with renaming_input "x:y" must fail, since x's alias and
// y's passthrough name both resolve to "y").
func validateAliasUniqueness(names []string, table *rename.Table) error {
	seen := make(map[string]string, len(names))
	for _, name := range names {
		alias := table.Alias(name)
		if other, ok := seen[alias]; ok {
			return coreerr.New(coreerr.NotSupported, fmt.Sprintf("renaming collision: %q and %q both resolve to alias %q", other, name, alias))
		}
		seen[alias] = name
	}
	return nil
}

// RegisterDataOut registers an output signal (spec.md §4.6
// registerDataOut).
func (r *Registry) RegisterDataOut(name string, t *streamtype.StreamType, dynamic bool) error {
	if !signalNamePattern.MatchString(name) {
		return coreerr.New(coreerr.InvalidArg, "register data out: invalid name "+name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.out[name]; ok {
		return compatibleOrFail(existing.registeredType, t)
	}

	alias := r.aliasOut.Alias(name)
	if r.aliasOut.HasAlias(alias, name) {
		return coreerr.New(coreerr.NotSupported, "register data out: alias collision for "+name)
	}

	r.out[name] = &signalOut{
		name:           name,
		registeredType: t,
		dynamic:        dynamic,
		output:         datasignal.NewOutput(name),
	}
	return nil
}

// UnregisterDataIn removes a previously registered input signal.
func (r *Registry) UnregisterDataIn(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.in[name]; !ok {
		return coreerr.New(coreerr.NotFound, "unregister data in: "+name)
	}
	delete(r.in, name)
	return nil
}

// UnregisterDataOut removes a previously registered output signal.
func (r *Registry) UnregisterDataOut(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.out[name]; !ok {
		return coreerr.New(coreerr.NotFound, "unregister data out: "+name)
	}
	delete(r.out, name)
	return nil
}

// RegisterDataReceiveListener registers l on the named input signal's
// fast-path fan-out.
func (r *Registry) RegisterDataReceiveListener(name string, l datasignal.Listener) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.in[name]
	if !ok {
		return coreerr.New(coreerr.NotFound, "register data receive listener: "+name)
	}
	entry.listenerID = entry.input.RegisterDataListener(l)
	return nil
}

// UnregisterDataReceiveListener removes a previously registered
// listener.
func (r *Registry) UnregisterDataReceiveListener(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.in[name]
	if !ok {
		return coreerr.New(coreerr.NotFound, "unregister data receive listener: "+name)
	}
	entry.input.UnregisterDataListener(entry.listenerID)
	return nil
}

// GetReader returns a reader proxy for name, or nil if the signal is
// not registered (spec.md §4.6 getReader).
func (r *Registry) GetReader(name string, capacity int) *datasignal.ReaderProxy {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.in[name]
	if !ok {
		return nil
	}
	return entry.input.GetReader(capacity)
}

// GetWriter returns a writer proxy for name, or nil if the signal is
// not registered (spec.md §4.6 getWriter).
func (r *Registry) GetWriter(name string, capacity int) *datasignal.WriterProxy {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.out[name]
	if !ok {
		return nil
	}
	return entry.output.GetWriter(capacity)
}

// GetStreamType returns name's current stream type: the most recently
// observed active type if any has arrived, else the type it was
// registered with, else the "hook" sentinel if the signal is unknown
// (spec.md §4.6 getStreamType).
func (r *Registry) GetStreamType(name string) *streamtype.StreamType {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry, ok := r.in[name]; ok {
		if active := entry.input.ActiveType(); active != nil {
			return active
		}
		if entry.registeredType != nil {
			return entry.registeredType
		}
		return streamtype.New(streamtype.MetaHook)
	}
	if entry, ok := r.out[name]; ok {
		if active := entry.output.ActiveType(); active != nil {
			return active
		}
		if entry.registeredType != nil {
			return entry.registeredType
		}
		return streamtype.New(streamtype.MetaHook)
	}
	return streamtype.New(streamtype.MetaHook)
}

// GetSignalInNames returns registered input signal names: original
// names before tense, alias names from tense onward (spec.md §8 P9).
func (r *Registry) GetSignalInNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.in))
	tensed := r.state >= StateTensed
	for name := range r.in {
		if tensed {
			out = append(out, r.aliasIn.Alias(name))
		} else {
			out = append(out, name)
		}
	}
	return out
}

// GetSignalOutNames returns registered output signal names, aliased
// from tense onward exactly as GetSignalInNames.
func (r *Registry) GetSignalOutNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.out))
	tensed := r.state >= StateTensed
	for name := range r.out {
		if tensed {
			out = append(out, r.aliasOut.Alias(name))
		} else {
			out = append(out, name)
		}
	}
	return out
}

// Tense attaches every output, then every input, to bus, starts its
// blocking-reception loop in a dedicated goroutine, then wires mapping
// sinks (spec.md §4.6 "tense"). The explicit outputs-before-inputs
// order is a contract, not an optimization (avoids deadlocks when two
// endpoints within one process observe each other).
func (r *Registry) Tense(bus Bus) error {
	r.mu.Lock()
	if err := r.requireState(StateInitialized); err != nil {
		r.mu.Unlock()
		return err
	}

	for _, entry := range r.out {
		if err := entry.output.RegisterAtTransport(bus); err != nil {
			r.mu.Unlock()
			return err
		}
	}
	for _, entry := range r.in {
		if entry.mapped {
			continue
		}
		if err := entry.input.RegisterAtTransport(bus); err != nil {
			r.mu.Unlock()
			return err
		}
	}

	ready := make(chan struct{})
	done := make(chan struct{})
	r.bus = bus
	r.receptionDone = done
	r.mu.Unlock()

	go func() {
		defer close(done)
		_ = bus.StartBlockingReception(func() {
			select {
			case <-ready:
			default:
				close(ready)
			}
		})
	}()
	<-ready

	r.mu.Lock()
	defer r.mu.Unlock()
	r.wireMappingSinksLocked()
	r.state = StateTensed
	return nil
}

func (r *Registry) wireMappingSinksLocked() {
	if r.engine == nil {
		return
	}
	for _, target := range r.pendingMappings {
		for _, src := range target.Sources {
			srcEntry, ok := r.in[src.Name]
			if !ok {
				continue
			}
			srcEntry.input.RegisterDataListener(mappingForwarder{
				sourceName: src.Name,
				engine:     r.engine,
			})
		}
	}
}

// mappingForwarder adapts a signal Input's fast-path listener surface
// into mapping.Engine.OnSourceSample calls.
type mappingForwarder struct {
	sourceName string
	engine     *mapping.Engine
}

func (f mappingForwarder) OnReceive(s sample.Sample) {
	buf := make([]byte, s.GetSize())
	s.Read(buf)
	f.engine.OnSourceSample(f.sourceName, buf, s.GetTime())
}

// StartEngine runs the mapping engine, moving the registry from tensed
// to running (spec.md §4.6 "start: start the mapping engine").
func (r *Registry) StartEngine() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.requireState(StateTensed); err != nil {
		return err
	}
	if r.engine != nil {
		if err := r.engine.Start(); err != nil {
			return err
		}
	}
	r.state = StateRunning
	return nil
}

// StopEngine stops the mapping engine, moving the registry from
// running back to tensed (spec.md §4.6 "stop: stop the mapping
// engine").
func (r *Registry) StopEngine() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.requireState(StateRunning); err != nil {
		return err
	}
	if r.engine != nil {
		if err := r.engine.Stop(); err != nil {
			return err
		}
	}
	r.state = StateTensed
	return nil
}

// Relax stops the transport's blocking reception (the last thing Tense
// started), joins the reception goroutine, then detaches outputs, then
// inputs (spec.md §4.6 "relax").
func (r *Registry) Relax() error {
	r.mu.Lock()
	if err := r.requireState(StateTensed); err != nil {
		r.mu.Unlock()
		return err
	}
	bus := r.bus
	done := r.receptionDone
	r.mu.Unlock()

	if bus != nil {
		_ = bus.StopBlockingReception()
	}
	if done != nil {
		<-done
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, entry := range r.out {
		entry.output.UnregisterFromTransport()
	}
	for _, entry := range r.in {
		if entry.mapped {
			continue
		}
		entry.input.UnregisterFromTransport()
	}
	r.bus = nil
	r.receptionDone = nil
	r.state = StateInitialized
	return nil
}

// Deinitialize clears renaming/DDL/mapping state, returning to loaded.
func (r *Registry) Deinitialize() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.requireState(StateInitialized); err != nil {
		return err
	}
	r.aliasIn = nil
	r.aliasOut = nil
	r.ddl = mapping.NewDDLManager()
	r.engine = nil
	r.state = StateLoaded
	return nil
}

// Destroy returns the registry to unloaded, dropping all registered
// signals.
func (r *Registry) Destroy() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.requireState(StateLoaded); err != nil {
		return err
	}
	r.in = make(map[string]*signalIn)
	r.out = make(map[string]*signalOut)
	r.state = StateUnloaded
	return nil
}
