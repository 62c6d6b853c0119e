// Package mqttbus implements a concrete registry.Bus/datasignal.Transport
// over MQTT (spec.md §6's external simulation-bus collaborator): every
// signal gets a pair of topics under a configurable prefix, one for
// sample payloads (published unretained) and one for stream-type
// changes (published retained).
//
// Grounded directly on internal/mqtt.Publisher's autopaho connection
// setup (OnConnectionUp/OnConnectError, TLS-on-scheme, will message,
// resubscribe-on-reconnect since autopaho does not do it automatically)
// and internal/mqtt's messageRateLimiter (adapted here to guard the
// data-reception path against a flooding publisher instead of HA
// command topics).
package mqttbus

import (
	"context"
	"crypto/tls"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/cariad-tech/fep3-participant-sub000/datasignal"
	"github.com/cariad-tech/fep3-participant-sub000/sample"
	"github.com/cariad-tech/fep3-participant-sub000/streamtype"
)

// Config is the broker connection and topic-naming configuration for a
// Bus (spec.md §6 ConfigSource covers this indirectly via
// data_registry/* paths; wiring cfg into Config is the caller's job —
// see cmd/fepcore-demo).
type Config struct {
	Broker      string
	Username    string
	Password    string
	ClientID    string
	TopicPrefix string // default "fep3" if empty
}

func (c Config) prefix() string {
	if c.TopicPrefix == "" {
		return "fep3"
	}
	return c.TopicPrefix
}

func (c Config) dataTopic(name string) string {
	return c.prefix() + "/" + name + "/data"
}

func (c Config) typeTopic(name string) string {
	return c.prefix() + "/" + name + "/type"
}

// readerEntry is one RegisterReader registration, resubscribed on every
// (re-)connect (mirrors Publisher.subscribe's rationale).
type readerEntry struct {
	name      string
	onReceive func(sample.Sample, int64)
	onType    func(*streamtype.StreamType)
}

// Bus is a registry.Bus backed by a single autopaho connection. Safe
// for concurrent use; RegisterReader/RegisterWriter may be called
// before or after StartBlockingReception.
type Bus struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	cm      *autopaho.ConnectionManager
	readers map[string]*readerEntry // keyed by signal name
	cancel  context.CancelFunc

	limiter *messageRateLimiter
}

// New constructs an unconnected Bus. A nil logger is replaced with
// slog.Default.
func New(cfg Config, logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		cfg:     cfg,
		logger:  logger,
		readers: make(map[string]*readerEntry),
		limiter: newMessageRateLimiter(1000, time.Second, logger),
	}
}

// mqttReader is the TransportReader handle returned by RegisterReader.
type mqttReader struct {
	bus  *Bus
	name string
}

func (r *mqttReader) Unregister() {
	r.bus.mu.Lock()
	delete(r.bus.readers, r.name)
	cm := r.bus.cm
	r.bus.mu.Unlock()
	if cm != nil {
		_, _ = cm.Unsubscribe(context.Background(), &paho.Unsubscribe{
			Topics: []string{r.bus.cfg.dataTopic(r.name), r.bus.cfg.typeTopic(r.name)},
		})
	}
}

// RegisterReader subscribes name's data and type topics, delivering
// every arriving message to onReceive/onType from the transport's own
// reception goroutine (spec.md §4.4 "called from the transport
// thread").
func (b *Bus) RegisterReader(name string, capacity int, onReceive func(sample.Sample, int64), onType func(*streamtype.StreamType)) (datasignal.TransportReader, error) {
	b.mu.Lock()
	if _, exists := b.readers[name]; exists {
		b.mu.Unlock()
		return nil, fmt.Errorf("mqttbus: reader %q already registered", name)
	}
	b.readers[name] = &readerEntry{name: name, onReceive: onReceive, onType: onType}
	cm := b.cm
	b.mu.Unlock()

	if cm != nil {
		if err := b.subscribeOne(cm, name); err != nil {
			return nil, err
		}
	}
	return &mqttReader{bus: b, name: name}, nil
}

// mqttWriter is the TransportWriter handle returned by RegisterWriter.
type mqttWriter struct {
	bus          *Bus
	name         string
	unregistered atomic.Bool
}

func (w *mqttWriter) WriteSample(s sample.Sample) error {
	if w.bus.cm == nil {
		return fmt.Errorf("mqttbus: not connected")
	}
	payload := make([]byte, 8+s.GetSize())
	binary.BigEndian.PutUint64(payload[:8], uint64(s.GetTime()))
	s.Read(payload[8:])
	_, err := w.bus.cm.Publish(context.Background(), &paho.Publish{
		Topic:   w.bus.cfg.dataTopic(w.name),
		Payload: payload,
		QoS:     0,
	})
	return err
}

func (w *mqttWriter) WriteType(st *streamtype.StreamType) error {
	if w.bus.cm == nil {
		return fmt.Errorf("mqttbus: not connected")
	}
	payload, err := encodeStreamType(st)
	if err != nil {
		return fmt.Errorf("mqttbus: encode stream type for %q: %w", w.name, err)
	}
	_, err = w.bus.cm.Publish(context.Background(), &paho.Publish{
		Topic:   w.bus.cfg.typeTopic(w.name),
		Payload: payload,
		QoS:     1,
		Retain:  true,
	})
	return err
}

// Transmit is a no-op: every WriteSample/WriteType already publishes
// (semantics mirror datasignal.Output.Transmit's doc: "flushes any
// buffered data" — MQTT QoS-0/1 publish has nothing left to flush).
func (w *mqttWriter) Transmit() error { return nil }

func (w *mqttWriter) Unregister() { w.unregistered.Store(true) }

// RegisterWriter returns a writer publishing to name's data/type
// topics. capacity is unused here for the same reason RegisterReader's
// is: MQTT publish is synchronous per call, with no transport-side
// queue for this Bus to size. Always succeeds; the broker, not this
// call, is the point of failure for a real publish.
func (b *Bus) RegisterWriter(name string, capacity int) (datasignal.TransportWriter, error) {
	return &mqttWriter{bus: b, name: name}, nil
}

// StartBlockingReception connects to the broker and blocks until
// StopBlockingReception is called or the connection is permanently
// lost. onReady is invoked once the first connection is established
// (registry.Tense uses it to unblock its own caller).
func (b *Bus) StartBlockingReception(onReady func()) error {
	brokerURL, err := url.Parse(b.cfg.Broker)
	if err != nil {
		return fmt.Errorf("mqttbus: parse broker url: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	b.mu.Lock()
	b.cancel = cancel
	b.mu.Unlock()

	var readyOnce sync.Once

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:      []*url.URL{brokerURL},
		KeepAlive:       30,
		ConnectUsername: b.cfg.Username,
		ConnectPassword: []byte(b.cfg.Password),
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			b.logger.Info("mqttbus connected to broker", "broker", b.cfg.Broker)
			b.resubscribeAll(cm)
			if onReady != nil {
				readyOnce.Do(onReady)
			}
		},
		OnConnectError: func(err error) {
			b.logger.Warn("mqttbus connection error", "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: b.cfg.ClientID,
		},
	}
	if brokerURL.Scheme == "mqtts" || brokerURL.Scheme == "ssl" {
		pahoCfg.TlsCfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		cancel()
		return fmt.Errorf("mqttbus: connect: %w", err)
	}
	cm.AddOnPublishReceived(b.onPublishReceived)

	b.mu.Lock()
	b.cm = cm
	b.mu.Unlock()

	go b.limiter.start(ctx)

	connCtx, connCancel := context.WithTimeout(ctx, 30*time.Second)
	defer connCancel()
	if err := cm.AwaitConnection(connCtx); err != nil {
		b.logger.Warn("mqttbus initial connection timed out, will retry in background", "error", err)
	}

	<-ctx.Done()

	b.mu.Lock()
	b.cm = nil
	b.mu.Unlock()
	return nil
}

// StopBlockingReception cancels the connection and unblocks
// StartBlockingReception.
func (b *Bus) StopBlockingReception() error {
	b.mu.Lock()
	cancel := b.cancel
	b.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	return nil
}

func (b *Bus) resubscribeAll(cm *autopaho.ConnectionManager) {
	b.mu.Lock()
	names := make([]string, 0, len(b.readers))
	for name := range b.readers {
		names = append(names, name)
	}
	b.mu.Unlock()

	for _, name := range names {
		if err := b.subscribeOne(cm, name); err != nil {
			b.logger.Warn("mqttbus resubscribe failed", "signal", name, "error", err)
		}
	}
}

func (b *Bus) subscribeOne(cm *autopaho.ConnectionManager, name string) error {
	_, err := cm.Subscribe(context.Background(), &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{
			{Topic: b.cfg.dataTopic(name), QoS: 0},
			{Topic: b.cfg.typeTopic(name), QoS: 1},
		},
	})
	if err != nil {
		return fmt.Errorf("mqttbus: subscribe %q: %w", name, err)
	}
	return nil
}

func (b *Bus) onPublishReceived(pr autopaho.PublishReceived) (bool, error) {
	if !b.limiter.allow() {
		return true, nil
	}

	topic := pr.Packet.Topic
	name, isType, ok := b.cfg.splitTopic(topic)
	if !ok {
		return true, nil
	}

	b.mu.Lock()
	entry := b.readers[name]
	b.mu.Unlock()
	if entry == nil {
		return true, nil
	}

	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("mqttbus message handler panicked", "topic", topic, "panic", r)
		}
	}()

	if isType {
		st, err := decodeStreamType(pr.Packet.Payload)
		if err != nil {
			b.logger.Warn("mqttbus decode stream type failed", "topic", topic, "error", err)
			return true, nil
		}
		entry.onType(st)
		return true, nil
	}

	if len(pr.Packet.Payload) < 8 {
		b.logger.Warn("mqttbus data payload too short", "topic", topic, "size", len(pr.Packet.Payload))
		return true, nil
	}
	t := int64(binary.BigEndian.Uint64(pr.Packet.Payload[:8]))
	s := sample.NewHeapSample(pr.Packet.Payload[8:])
	entry.onReceive(s, t)
	return true, nil
}

// splitTopic reports the signal name and whether topic is a type
// (rather than data) topic for this bus's prefix, or ok=false if topic
// doesn't belong to either scheme.
func (c Config) splitTopic(topic string) (name string, isType bool, ok bool) {
	p := c.prefix() + "/"
	if len(topic) <= len(p) || topic[:len(p)] != p {
		return "", false, false
	}
	rest := topic[len(p):]
	const dataSuffix = "/data"
	const typeSuffix = "/type"
	if len(rest) > len(dataSuffix) && rest[len(rest)-len(dataSuffix):] == dataSuffix {
		return rest[:len(rest)-len(dataSuffix)], false, true
	}
	if len(rest) > len(typeSuffix) && rest[len(rest)-len(typeSuffix):] == typeSuffix {
		return rest[:len(rest)-len(typeSuffix)], true, true
	}
	return "", false, false
}

// wireProperty/wireStreamType are the JSON wire shapes for a
// streamtype.StreamType, ordered the same way streamtype.Properties
// enumerates (spec.md §4.1's property bag preserves insertion order).
type wireProperty struct {
	Name  string `json:"name"`
	Value string `json:"value"`
	Type  string `json:"type"`
}

type wireStreamType struct {
	MetaType   string         `json:"meta_type"`
	Properties []wireProperty `json:"properties"`
}

func encodeStreamType(st *streamtype.StreamType) ([]byte, error) {
	w := wireStreamType{MetaType: st.MetaType}
	for _, name := range st.Props.GetPropertyNames() {
		w.Properties = append(w.Properties, wireProperty{
			Name:  name,
			Value: st.Props.GetProperty(name),
			Type:  st.Props.GetPropertyType(name),
		})
	}
	return json.Marshal(w)
}

func decodeStreamType(payload []byte) (*streamtype.StreamType, error) {
	var w wireStreamType
	if err := json.Unmarshal(payload, &w); err != nil {
		return nil, err
	}
	st := streamtype.New(w.MetaType)
	for _, p := range w.Properties {
		st.Props.SetProperty(p.Name, p.Value, p.Type)
	}
	return st, nil
}
