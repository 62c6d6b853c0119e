package registry

import (
	"errors"
	"testing"

	"github.com/cariad-tech/fep3-participant-sub000/coreerr"
	"github.com/cariad-tech/fep3-participant-sub000/datasignal"
	"github.com/cariad-tech/fep3-participant-sub000/mapping"
	"github.com/cariad-tech/fep3-participant-sub000/sample"
	"github.com/cariad-tech/fep3-participant-sub000/streamtype"
)

// fakeConfig is a minimal in-memory ConfigSource test double.
type fakeConfig struct {
	strings map[string]string
	lists   map[string][]string
}

func newFakeConfig() *fakeConfig {
	return &fakeConfig{strings: map[string]string{}, lists: map[string][]string{}}
}

func (c *fakeConfig) GetString(path string) (string, bool) {
	v, ok := c.strings[path]
	return v, ok
}
func (c *fakeConfig) GetStringList(path string) ([]string, bool) {
	v, ok := c.lists[path]
	return v, ok
}

type fakeFiles map[string]string

func (f fakeFiles) ReadFile(path string) (string, error) {
	text, ok := f[path]
	if !ok {
		return "", errors.New("not found: " + path)
	}
	return text, nil
}

// fakeBus is an in-memory Bus test double.
type fakeBus struct {
	readers     map[string]bool
	writers     map[string]bool
	onReceivers map[string]func(sample.Sample, int64)
	stop        chan struct{}
}

func newFakeBus() *fakeBus {
	return &fakeBus{
		readers:     map[string]bool{},
		writers:     map[string]bool{},
		onReceivers: map[string]func(sample.Sample, int64){},
		stop:        make(chan struct{}),
	}
}

// Deliver simulates the transport's reception thread handing an inbound
// sample to the reader registered for name, returning false if no
// reader is currently registered under that name.
func (b *fakeBus) Deliver(name string, s sample.Sample, t int64) bool {
	cb, ok := b.onReceivers[name]
	if !ok {
		return false
	}
	cb(s, t)
	return true
}

type fakeReader struct{}

func (fakeReader) Unregister() {}

type fakeWriter struct{}

func (fakeWriter) WriteSample(sample.Sample) error        { return nil }
func (fakeWriter) WriteType(*streamtype.StreamType) error { return nil }
func (fakeWriter) Transmit() error                        { return nil }
func (fakeWriter) Unregister()                            {}

func (b *fakeBus) RegisterReader(name string, capacity int, onReceive func(sample.Sample, int64), onType func(*streamtype.StreamType)) (datasignal.TransportReader, error) {
	b.readers[name] = true
	b.onReceivers[name] = onReceive
	return &fakeReader{}, nil
}

func (b *fakeBus) RegisterWriter(name string, capacity int) (datasignal.TransportWriter, error) {
	b.writers[name] = true
	return &fakeWriter{}, nil
}

func (b *fakeBus) StartBlockingReception(onReady func()) error {
	onReady()
	<-b.stop
	return nil
}

func (b *fakeBus) StopBlockingReception() error {
	close(b.stop)
	return nil
}

func newTensedRegistry(t *testing.T) (*Registry, *fakeBus) {
	t.Helper()
	r := New()
	if err := r.Create(); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := r.Initialize(newFakeConfig(), fakeFiles{}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	bus := newFakeBus()
	if err := r.Tense(bus); err != nil {
		t.Fatalf("Tense: %v", err)
	}
	return r, bus
}

func TestRegistryLifecycleHappyPath(t *testing.T) {
	r := New()
	if r.State() != StateUnloaded {
		t.Fatalf("expected initial state unloaded, got %s", r.State())
	}
	if err := r.Create(); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := r.Initialize(newFakeConfig(), fakeFiles{}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	st := streamtype.New(streamtype.MetaPlainCType)
	if err := r.RegisterDataIn("speed", st, false); err != nil {
		t.Fatalf("RegisterDataIn: %v", err)
	}

	bus := newFakeBus()
	if err := r.Tense(bus); err != nil {
		t.Fatalf("Tense: %v", err)
	}
	if r.State() != StateTensed {
		t.Fatalf("expected tensed state, got %s", r.State())
	}
	if !bus.readers["speed"] {
		t.Fatalf("expected transport reader registered for speed")
	}

	if err := r.StartEngine(); err != nil {
		t.Fatalf("StartEngine: %v", err)
	}
	if r.State() != StateRunning {
		t.Fatalf("expected running state, got %s", r.State())
	}
	if err := r.StopEngine(); err != nil {
		t.Fatalf("StopEngine: %v", err)
	}
	if err := r.Relax(); err != nil {
		t.Fatalf("Relax: %v", err)
	}
	if r.State() != StateInitialized {
		t.Fatalf("expected initialized state after relax, got %s", r.State())
	}
	if err := r.Deinitialize(); err != nil {
		t.Fatalf("Deinitialize: %v", err)
	}
	if err := r.Destroy(); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	if r.State() != StateUnloaded {
		t.Fatalf("expected unloaded state, got %s", r.State())
	}
}

func TestRegistryWrongStateTransitionFails(t *testing.T) {
	r := New()
	err := r.Initialize(newFakeConfig(), fakeFiles{})
	if !errors.Is(err, coreerr.ErrInvalidState) {
		t.Fatalf("expected ERR_INVALID_STATE initializing before create, got %v", err)
	}
}

// TestRegistryNameUniqueness is property P1.
func TestRegistryNameUniqueness(t *testing.T) {
	r := New()
	_ = r.Create()
	cfg := newFakeConfig()
	cfg.strings["data_registry/renaming_input"] = "a:x"
	if err := r.Initialize(cfg, fakeFiles{}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	st := streamtype.New(streamtype.MetaPlainCType)
	if err := r.RegisterDataIn("a", st, false); err != nil {
		t.Fatalf("RegisterDataIn a: %v", err)
	}
	// "x" would collide with a's alias "x".
	err := r.RegisterDataIn("x", st, false)
	if !errors.Is(err, coreerr.ErrNotSupported) {
		t.Fatalf("expected ERR_NOT_SUPPORTED for alias collision, got %v", err)
	}
}

// TestRenamingConflictFailsInitialize is spec.md §8 end-to-end scenario
// 5: register both "x" and "y" before the renaming table is known, then
// configure renaming_input "x:y" so that x's alias and y's passthrough
// name collide. Initialize (not RegisterDataIn) must surface the
// failure, since both registrations happened before it ran.
func TestRenamingConflictFailsInitialize(t *testing.T) {
	r := New()
	_ = r.Create()

	st := streamtype.New(streamtype.MetaPlainCType)
	if err := r.RegisterDataIn("x", st, false); err != nil {
		t.Fatalf("RegisterDataIn x: %v", err)
	}
	if err := r.RegisterDataIn("y", st, false); err != nil {
		t.Fatalf("RegisterDataIn y: %v", err)
	}

	cfg := newFakeConfig()
	cfg.strings["data_registry/renaming_input"] = "x:y"
	err := r.Initialize(cfg, fakeFiles{})
	if !errors.Is(err, coreerr.ErrNotSupported) {
		t.Fatalf("expected ERR_NOT_SUPPORTED identifying the x/y alias collision, got %v", err)
	}
}

// TestRegistryTypeCompatibilityOnReregister is property P2.
func TestRegistryTypeCompatibilityOnReregister(t *testing.T) {
	r := New()
	_ = r.Create()
	_ = r.Initialize(newFakeConfig(), fakeFiles{})

	ddlA := streamtype.New(streamtype.MetaDDL)
	ddlA.Props.SetProperty("ddlstruct", "tPosition", "string")
	if err := r.RegisterDataIn("pos", ddlA, false); err != nil {
		t.Fatalf("RegisterDataIn: %v", err)
	}

	ddlSameStruct := streamtype.New(streamtype.MetaDDLFileRef)
	ddlSameStruct.Props.SetProperty("ddlstruct", "tPosition", "string")
	if err := r.RegisterDataIn("pos", ddlSameStruct, false); err != nil {
		t.Fatalf("expected same-ddlstruct re-registration to succeed idempotently, got %v", err)
	}

	ddlOther := streamtype.New(streamtype.MetaDDL)
	ddlOther.Props.SetProperty("ddlstruct", "tVelocity", "string")
	err := r.RegisterDataIn("pos", ddlOther, false)
	if !errors.Is(err, coreerr.ErrInvalidType) {
		t.Fatalf("expected ERR_INVALID_TYPE for conflicting ddlstruct, got %v", err)
	}

	plain := streamtype.New(streamtype.MetaPlainCType)
	if err := r.RegisterDataIn("speed", plain, false); err != nil {
		t.Fatalf("RegisterDataIn speed: %v", err)
	}
	if err := r.RegisterDataIn("speed", plain, false); err != nil {
		t.Fatalf("expected identical plain-type re-registration to succeed, got %v", err)
	}
	other := streamtype.New(streamtype.MetaAudio)
	err = r.RegisterDataIn("speed", other, false)
	if !errors.Is(err, coreerr.ErrInvalidType) {
		t.Fatalf("expected ERR_INVALID_TYPE for mismatched meta-type, got %v", err)
	}
}

func TestUnregisterDataInNotFound(t *testing.T) {
	r := New()
	err := r.UnregisterDataIn("missing")
	if !errors.Is(err, coreerr.ErrNotFound) {
		t.Fatalf("expected ERR_NOT_FOUND, got %v", err)
	}
}

func TestGetStreamTypeReturnsHookSentinelWhenAbsent(t *testing.T) {
	r := New()
	st := r.GetStreamType("nope")
	if st.MetaType != streamtype.MetaHook {
		t.Fatalf("expected hook sentinel, got %s", st.MetaType)
	}
}

func TestGetReaderAndWriterNilWhenUnregistered(t *testing.T) {
	r := New()
	if r.GetReader("nope", 0) != nil {
		t.Fatalf("expected nil reader for unregistered signal")
	}
	if r.GetWriter("nope", 0) != nil {
		t.Fatalf("expected nil writer for unregistered signal")
	}
}

// TestSignalNamesRenamingCommutesWithTense is property P9.
func TestSignalNamesRenamingCommutesWithTense(t *testing.T) {
	r := New()
	_ = r.Create()
	cfg := newFakeConfig()
	cfg.strings["data_registry/renaming_input"] = "speed:veh_speed"
	if err := r.Initialize(cfg, fakeFiles{}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	st := streamtype.New(streamtype.MetaPlainCType)
	if err := r.RegisterDataIn("speed", st, false); err != nil {
		t.Fatalf("RegisterDataIn: %v", err)
	}

	before := r.GetSignalInNames()
	if len(before) != 1 || before[0] != "speed" {
		t.Fatalf("expected original name before tense, got %v", before)
	}

	bus := newFakeBus()
	if err := r.Tense(bus); err != nil {
		t.Fatalf("Tense: %v", err)
	}
	after := r.GetSignalInNames()
	if len(after) != 1 || after[0] != "veh_speed" {
		t.Fatalf("expected aliased name after tense, got %v", after)
	}
}

func TestMappingRegistrationRedirectsSourcesToInputs(t *testing.T) {
	r := New()
	_ = r.Create()
	r.SetMappingConfig([]mapping.TargetMapping{
		{
			TargetName:    "target",
			TargetType:    streamtype.MetaDDL,
			Sources:       []mapping.Source{{Name: "src_a", Type: "tA"}, {Name: "src_b", Type: "tB"}},
			TriggerSource: "src_b",
			Synthesize: func(lastSeen map[string][]byte) []byte {
				return append(append([]byte{}, lastSeen["src_a"]...), lastSeen["src_b"]...)
			},
		},
	})
	if err := r.Initialize(newFakeConfig(), fakeFiles{}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	if err := r.RegisterDataIn("target", streamtype.New(streamtype.MetaDDL), false); err != nil {
		t.Fatalf("RegisterDataIn target: %v", err)
	}

	if _, ok := r.in["src_a"]; !ok {
		t.Fatalf("expected mapping source src_a registered as a normal input")
	}
	if _, ok := r.in["src_b"]; !ok {
		t.Fatalf("expected mapping source src_b registered as a normal input")
	}
	if !r.in["target"].mapped {
		t.Fatalf("expected target signal marked as mapped")
	}
}

// TestTenseSkipsMappedInputs confirms a mapped target signal is never
// attached to the transport, only its sources are (spec.md §4.6: "the
// signal is moved to the mapped-inputs collection and not attached to
// the transport").
func TestTenseSkipsMappedInputs(t *testing.T) {
	r := New()
	_ = r.Create()
	r.SetMappingConfig([]mapping.TargetMapping{
		{
			TargetName:    "target",
			TargetType:    streamtype.MetaDDL,
			Sources:       []mapping.Source{{Name: "src_a", Type: "tA"}},
			TriggerSource: "src_a",
			Synthesize: func(lastSeen map[string][]byte) []byte {
				return lastSeen["src_a"]
			},
		},
	})
	if err := r.Initialize(newFakeConfig(), fakeFiles{}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := r.RegisterDataIn("target", streamtype.New(streamtype.MetaDDL), false); err != nil {
		t.Fatalf("RegisterDataIn target: %v", err)
	}

	bus := newFakeBus()
	if err := r.Tense(bus); err != nil {
		t.Fatalf("Tense: %v", err)
	}

	if bus.readers["target"] {
		t.Fatalf("expected mapped target signal not registered at the transport")
	}
	if !bus.readers["src_a"] {
		t.Fatalf("expected mapping source src_a registered at the transport")
	}

	if err := r.Relax(); err != nil {
		t.Fatalf("Relax: %v", err)
	}
}

type recordingListener struct {
	received []sample.Sample
}

func (l *recordingListener) OnReceive(s sample.Sample) {
	l.received = append(l.received, s)
}

// TestTenseWiresBusDeliveryToRegisteredListener confirms a sample
// delivered by the transport for a registered input reaches a listener
// registered via RegisterDataReceiveListener (spec.md §4.4 "called from
// the transport thread; no dispatching").
func TestTenseWiresBusDeliveryToRegisteredListener(t *testing.T) {
	r := New()
	_ = r.Create()
	if err := r.Initialize(newFakeConfig(), fakeFiles{}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := r.RegisterDataIn("speed", streamtype.New(streamtype.MetaPlainCType), false); err != nil {
		t.Fatalf("RegisterDataIn: %v", err)
	}

	listener := &recordingListener{}
	if err := r.RegisterDataReceiveListener("speed", listener); err != nil {
		t.Fatalf("RegisterDataReceiveListener: %v", err)
	}

	bus := newFakeBus()
	if err := r.Tense(bus); err != nil {
		t.Fatalf("Tense: %v", err)
	}

	s := sample.NewHeapSample([]byte("42"))
	if !bus.Deliver("speed", s, 100) {
		t.Fatalf("expected bus to have a registered reader for speed")
	}
	if len(listener.received) != 1 {
		t.Fatalf("expected the listener to receive exactly one sample, got %d", len(listener.received))
	}
}
