// Package datasignal implements the per-name signal aggregates of
// spec.md §4.4/§4.5 (C4): Input binds a transport subscription to a set
// of reader queues and listener callbacks; Output binds a transport
// publisher to user writes.
//
// Go has no weak_ptr: where the original holds weak references to
// reader/writer proxies so an abandoned proxy is silently skipped on
// fan-out, this package uses spec.md §9's suggested substitute — an
// explicit-Close proxy registered in an identity-keyed map, removed by
// its own Close rather than discovered-expired at fan-out time (see
// DESIGN.md).
package datasignal

import (
	"sync"

	"github.com/cariad-tech/fep3-participant-sub000/coreerr"
	"github.com/cariad-tech/fep3-participant-sub000/dataqueue"
	"github.com/cariad-tech/fep3-participant-sub000/sample"
	"github.com/cariad-tech/fep3-participant-sub000/streamtype"
)

// Transport is the minimal subset of the external simulation-bus
// interface (spec.md §6) a signal needs: register/unregister a named
// reader or writer endpoint.
type Transport interface {
	// RegisterReader subscribes name at the transport, delivering every
	// arriving sample or stream-type change to onReceive/onType on the
	// transport's own reception thread (spec.md §4.4 steps 1-3).
	RegisterReader(name string, capacity int, onReceive func(s sample.Sample, t int64), onType func(st *streamtype.StreamType)) (TransportReader, error)
	RegisterWriter(name string, capacity int) (TransportWriter, error)
}

// TransportReader is the transport-side handle an Input attaches to.
type TransportReader interface {
	Unregister()
}

// TransportWriter is the transport-side handle an Output writes
// through.
type TransportWriter interface {
	WriteSample(s sample.Sample) error
	WriteType(st *streamtype.StreamType) error
	Transmit() error
	Unregister()
}

// Listener receives samples directly on the transport thread — the
// data-triggered fast path (spec.md §4.4: "called from the transport
// thread; no dispatching").
type Listener interface {
	OnReceive(s sample.Sample)
}

// ReaderProxy is what Input.GetReader returns: a handle a user polls
// via the queue it wraps, explicitly Closed to stop receiving further
// fan-out (the idiomatic substitute for a weak_ptr expiring).
type ReaderProxy struct {
	id    uint64
	queue *dataqueue.Queue
	owner *Input
}

// Queue exposes the underlying data queue for PopFront/NextTime/Size.
func (r *ReaderProxy) Queue() *dataqueue.Queue { return r.queue }

// Close detaches the proxy from its Input's fan-out set. Idempotent.
func (r *ReaderProxy) Close() {
	r.owner.removeReader(r.id)
}

// WriterProxy is what Output.GetWriter returns.
type WriterProxy struct {
	id       uint64
	capacity int
	owner    *Output
}

// Write enqueues a sample for eventual transmit via the owning Output.
func (w *WriterProxy) Write(s sample.Sample) error { return w.owner.Write(s) }

// WriteType updates the owning Output's active stream type.
func (w *WriterProxy) WriteType(st *streamtype.StreamType) error { return w.owner.WriteType(st) }

// Close removes the proxy from its Output's registry.
func (w *WriterProxy) Close() { w.owner.removeWriter(w.id) }

// Input is the C4-in signal aggregate.
type Input struct {
	name string

	mu         sync.RWMutex
	activeType *streamtype.StreamType
	transport  TransportReader
	nextID     uint64
	readers    map[uint64]*ReaderProxy
	listeners  map[uint64]Listener
	listenerID uint64
}

// NewInput creates an unattached Input for name.
func NewInput(name string) *Input {
	return &Input{
		name:    name,
		readers: make(map[uint64]*ReaderProxy),
		listeners: make(map[uint64]Listener),
	}
}

// Name returns the signal's registered name.
func (in *Input) Name() string { return in.name }

// ActiveType returns the most recently observed stream type, or nil if
// none has arrived yet.
func (in *Input) ActiveType() *streamtype.StreamType {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return in.activeType
}

// RegisterAtTransport attaches the Input to bus. The queue-capacity
// argument passed to the transport is the maximum capacity across all
// live reader proxies, clamped to at least 1 (spec.md §4.4). Fails with
// ERR_UNEXPECTED if the transport refuses (e.g. the name is already
// taken).
func (in *Input) RegisterAtTransport(bus Transport) error {
	in.mu.Lock()
	capacity := 1
	for _, r := range in.readers {
		if c := r.queue.Capacity(); c > capacity {
			capacity = c
		}
	}
	in.mu.Unlock()

	reader, err := bus.RegisterReader(in.name, capacity, in.OnReceiveSample, in.OnReceiveType)
	if err != nil {
		return coreerr.New(coreerr.Unexpected, "register reader "+in.name+": "+err.Error())
	}

	in.mu.Lock()
	in.transport = reader
	in.mu.Unlock()
	return nil
}

// UnregisterFromTransport detaches from the transport, if attached.
func (in *Input) UnregisterFromTransport() {
	in.mu.Lock()
	t := in.transport
	in.transport = nil
	in.mu.Unlock()
	if t != nil {
		t.Unregister()
	}
}

// RegisterDataListener adds l to the fast-path fan-out set and returns
// a token for UnregisterDataListener.
func (in *Input) RegisterDataListener(l Listener) uint64 {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.listenerID++
	id := in.listenerID
	in.listeners[id] = l
	return id
}

// UnregisterDataListener removes a listener previously registered with
// RegisterDataListener.
func (in *Input) UnregisterDataListener(id uint64) {
	in.mu.Lock()
	defer in.mu.Unlock()
	delete(in.listeners, id)
}

// GetReader creates a new reader proxy backed by a queue of the given
// capacity (0 == unbounded).
func (in *Input) GetReader(capacity int) *ReaderProxy {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.nextID++
	proxy := &ReaderProxy{id: in.nextID, queue: dataqueue.New(capacity), owner: in}
	in.readers[proxy.id] = proxy
	return proxy
}

func (in *Input) removeReader(id uint64) {
	in.mu.Lock()
	defer in.mu.Unlock()
	delete(in.readers, id)
}

// OnReceiveSample is invoked by the transport thread for every arriving
// sample (spec.md §4.4 step 2/3): fan out to every live reader queue,
// then synchronously to every listener.
func (in *Input) OnReceiveSample(s sample.Sample, t int64) {
	in.mu.RLock()
	readers := make([]*ReaderProxy, 0, len(in.readers))
	for _, r := range in.readers {
		readers = append(readers, r)
	}
	listeners := make([]Listener, 0, len(in.listeners))
	for _, l := range in.listeners {
		listeners = append(listeners, l)
	}
	in.mu.RUnlock()

	for _, r := range readers {
		r.queue.PushSample(s, t)
	}
	for _, l := range listeners {
		l.OnReceive(s)
	}
}

// OnReceiveType is invoked by the transport thread when a stream-type
// change arrives: updates active_type, then fans out to reader queues
// (spec.md §4.4 step 1/2). Stream-type items are not delivered to
// listeners (spec.md §4.10: "stream-type items are ignored" by the
// data-triggered path; listeners here mirror that and only see
// samples).
func (in *Input) OnReceiveType(st *streamtype.StreamType) {
	in.mu.Lock()
	in.activeType = st
	readers := make([]*ReaderProxy, 0, len(in.readers))
	for _, r := range in.readers {
		readers = append(readers, r)
	}
	in.mu.Unlock()

	for _, r := range readers {
		r.queue.PushType(st, 0)
	}
}

// Output is the C4-out signal aggregate.
type Output struct {
	name string

	mu         sync.RWMutex
	activeType *streamtype.StreamType
	transport  TransportWriter
	nextID     uint64
	writers    map[uint64]*WriterProxy
}

// NewOutput creates an unattached Output for name.
func NewOutput(name string) *Output {
	return &Output{name: name, writers: make(map[uint64]*WriterProxy)}
}

// Name returns the signal's registered name.
func (out *Output) Name() string { return out.name }

// RegisterAtTransport attaches the Output to bus. The queue-capacity
// argument passed to the transport is the maximum capacity across all
// live writer proxies, clamped to at least 1 (spec.md §3: "the
// transport writer's queue capacity equals the maximum capacity across
// all live writers"), mirroring Input.RegisterAtTransport's reader-side
// computation.
func (out *Output) RegisterAtTransport(bus Transport) error {
	out.mu.Lock()
	capacity := 1
	for _, w := range out.writers {
		if w.capacity > capacity {
			capacity = w.capacity
		}
	}
	out.mu.Unlock()

	writer, err := bus.RegisterWriter(out.name, capacity)
	if err != nil {
		return coreerr.New(coreerr.Unexpected, "register writer "+out.name+": "+err.Error())
	}
	out.mu.Lock()
	out.transport = writer
	out.mu.Unlock()
	return nil
}

// UnregisterFromTransport detaches from the transport, if attached.
func (out *Output) UnregisterFromTransport() {
	out.mu.Lock()
	t := out.transport
	out.transport = nil
	out.mu.Unlock()
	if t != nil {
		t.Unregister()
	}
}

// GetWriter creates a new writer proxy requesting the given queue
// capacity (clamped to at least 1).
func (out *Output) GetWriter(capacity int) *WriterProxy {
	if capacity < 1 {
		capacity = 1
	}
	out.mu.Lock()
	defer out.mu.Unlock()
	out.nextID++
	proxy := &WriterProxy{id: out.nextID, capacity: capacity, owner: out}
	out.writers[proxy.id] = proxy
	return proxy
}

func (out *Output) removeWriter(id uint64) {
	out.mu.Lock()
	defer out.mu.Unlock()
	delete(out.writers, id)
}

// Write forwards s to the transport. Fails with ERR_DEVICE_NOT_READY if
// the Output has not yet been attached (spec.md §4.5).
func (out *Output) Write(s sample.Sample) error {
	out.mu.RLock()
	t := out.transport
	out.mu.RUnlock()
	if t == nil {
		return coreerr.New(coreerr.DeviceNotReady, "output "+out.name+" not attached to transport")
	}
	return t.WriteSample(s)
}

// WriteType updates the active stream type and forwards it to the
// transport. Fails with ERR_DEVICE_NOT_READY if unattached.
func (out *Output) WriteType(st *streamtype.StreamType) error {
	out.mu.Lock()
	t := out.transport
	if t != nil {
		out.activeType = st
	}
	out.mu.Unlock()
	if t == nil {
		return coreerr.New(coreerr.DeviceNotReady, "output "+out.name+" not attached to transport")
	}
	return t.WriteType(st)
}

// ActiveType returns the most recently written stream type, or nil.
func (out *Output) ActiveType() *streamtype.StreamType {
	out.mu.RLock()
	defer out.mu.RUnlock()
	return out.activeType
}

// Transmit flushes any buffered data (spec.md §4.5: "semantics mirror
// the transport's"). Fails with ERR_DEVICE_NOT_READY if unattached.
func (out *Output) Transmit() error {
	out.mu.RLock()
	t := out.transport
	out.mu.RUnlock()
	if t == nil {
		return coreerr.New(coreerr.DeviceNotReady, "output "+out.name+" not attached to transport")
	}
	return t.Transmit()
}
