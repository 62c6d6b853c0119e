// Command fepcore-demo wires the data registry (C1-C7) and the
// clock-based scheduler (C8-C13) into a runnable participant: it
// registers a couple of demo signals, binds a clock-triggered and a
// data-triggered job, tenses against an MQTT simulation bus, and runs
// until interrupted.
//
// Adapted from the shape of cmd/thane/main.go's runServe: parse flags,
// load config, build collaborators in dependency order, start, block
// on a signal, shut down in reverse order.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cariad-tech/fep3-participant-sub000/clockscheduler"
	"github.com/cariad-tech/fep3-participant-sub000/clocksvc"
	"github.com/cariad-tech/fep3-participant-sub000/configsvc"
	"github.com/cariad-tech/fep3-participant-sub000/datasignal"
	"github.com/cariad-tech/fep3-participant-sub000/healthsvc"
	"github.com/cariad-tech/fep3-participant-sub000/internal/buildinfo"
	"github.com/cariad-tech/fep3-participant-sub000/internal/connwatch"
	"github.com/cariad-tech/fep3-participant-sub000/jobregistry"
	"github.com/cariad-tech/fep3-participant-sub000/logsvc"
	"github.com/cariad-tech/fep3-participant-sub000/registry"
	"github.com/cariad-tech/fep3-participant-sub000/rpcsvc"
	"github.com/cariad-tech/fep3-participant-sub000/sample"
	"github.com/cariad-tech/fep3-participant-sub000/schedtask"
	"github.com/cariad-tech/fep3-participant-sub000/streamtype"
	"github.com/cariad-tech/fep3-participant-sub000/transport/mqttbus"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML configuration file (see spec.md §6's property table)")
	broker := flag.String("broker", "tcp://localhost:1883", "MQTT broker URL for the simulation bus")
	logLevel := flag.String("log-level", "info", "trace, debug, info, warn, or error")
	flag.Parse()

	if flag.NArg() > 0 && flag.Arg(0) == "version" {
		fmt.Println(buildinfo.String())
		for k, v := range buildinfo.BuildInfo() {
			fmt.Printf("  %-12s %s\n", k+":", v)
		}
		return
	}

	level, err := logsvc.ParseLevel(*logLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	base := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: logsvc.ReplaceLevelNames,
	}))
	logger := logsvc.NewLogger("fepcore-demo", base)

	logger.Info("starting fepcore-demo", "version", buildinfo.Version, "broker", *broker)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		logger.Fatal("load config", "error", err)
		os.Exit(1)
	}

	if err := run(cfg, base, logger, *broker); err != nil {
		logger.Fatal("fepcore-demo exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("fepcore-demo stopped")
}

// loadConfig reads path as YAML into a configsvc.Tree, or returns an
// empty tree (every property falls back to its default) if path is
// empty.
func loadConfig(path string) (*configsvc.Tree, error) {
	if path == "" {
		return configsvc.New(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	tree, err := configsvc.LoadYAML(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return tree, nil
}

// osFileReader implements registry.FileReader over the local
// filesystem (spec.md §6: "relative paths resolve against the binary
// location" is the caller's concern; this just reads bytes).
type osFileReader struct{}

func (osFileReader) ReadFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	return string(data), err
}

// demoSignals are the two signals this binary exercises: an input the
// clock-triggered job reads and republishes, and the output it writes
// to.
const (
	signalSpeedIn  = "vehicle.speed"
	signalSpeedOut = "vehicle.speed.echo"
)

func run(cfg *configsvc.Tree, base *slog.Logger, logger logsvc.Logger, broker string) error {
	health := healthsvc.NewRecorder()

	reg := registry.New()
	if err := reg.Create(); err != nil {
		return fmt.Errorf("registry create: %w", err)
	}

	rpc := rpcsvc.NewRegistry()
	if err := rpc.RegisterService("data_registry", rpcsvc.DataRegistryAdapter{Registry: reg}); err != nil {
		return fmt.Errorf("register data registry rpc service: %w", err)
	}
	schedulerName := activeSchedulerName(cfg)
	if err := rpc.RegisterService("scheduler", rpcsvc.StaticSchedulerService{ActiveName: schedulerName}); err != nil {
		return fmt.Errorf("register scheduler rpc service: %w", err)
	}

	plainType := streamtype.New(streamtype.MetaPlainCType)
	if err := reg.RegisterDataIn(signalSpeedIn, plainType, false); err != nil {
		return fmt.Errorf("register data in: %w", err)
	}
	if err := reg.RegisterDataOut(signalSpeedOut, plainType, false); err != nil {
		return fmt.Errorf("register data out: %w", err)
	}

	if err := reg.Initialize(cfg, osFileReader{}); err != nil {
		return fmt.Errorf("registry initialize: %w", err)
	}

	clock, driveClock := newDemoClock(cfg)

	logListener := logSampleListener{logger: logger, name: signalSpeedIn}
	if err := reg.RegisterDataReceiveListener(signalSpeedIn, logListener); err != nil {
		return fmt.Errorf("register data receive listener: %w", err)
	}

	jobs := jobregistry.NewStatic([]jobregistry.Entry{
		{
			Name:     "echo_speed",
			Callable: echoJob(reg, logger),
			Configuration: jobregistry.Configuration{
				ClockTriggered: &jobregistry.ClockTriggered{
					Period:            stepSizeNanos(cfg),
					InitialDelay:      0,
					MaxRuntime:        0,
					ViolationStrategy: jobregistry.Warn,
				},
			},
		},
		{
			Name:     "log_speed_arrival",
			Callable: func(int64) {},
			Configuration: jobregistry.Configuration{
				DataTriggered: &jobregistry.DataTriggered{
					SignalNames:       []string{signalSpeedIn},
					MaxRuntime:        0,
					ViolationStrategy: jobregistry.Ignore,
				},
			},
		},
	})

	if err := rpc.RegisterService("job_registry", rpcsvc.JobRegistryAdapter{Jobs: jobs}); err != nil {
		return fmt.Errorf("register job registry rpc service: %w", err)
	}

	store, err := schedtask.NewStore(taskHistoryDBPath(cfg))
	if err != nil {
		return fmt.Errorf("open task history store: %w", err)
	}
	defer store.Close()

	sched := clockscheduler.New(health, logger, clockscheduler.RunnerHooks{}, store)
	if err := sched.Initialize(jobs, clock, reg); err != nil {
		return fmt.Errorf("scheduler initialize: %w", err)
	}

	bus := mqttbus.New(mqttbus.Config{
		Broker:   broker,
		ClientID: "fepcore-demo",
	}, base)

	if err := reg.Tense(bus); err != nil {
		return fmt.Errorf("registry tense: %w", err)
	}
	logger.Info("registry tensed against simulation bus", "broker", broker)

	watchers := connwatch.NewManager(base)
	watchBrokerReachability(watchers, logger, broker)

	sched.Start()
	stopClock := driveClock(logger)
	logger.Info("scheduler started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutdown signal received")

	stopClock()
	sched.Stop()
	watchers.Stop()
	sched.Deinitialize(reg)

	_ = rpc.UnregisterService("job_registry")
	_ = rpc.UnregisterService("scheduler")
	_ = rpc.UnregisterService("data_registry")

	if err := reg.Relax(); err != nil {
		return fmt.Errorf("registry relax: %w", err)
	}
	if err := reg.Deinitialize(); err != nil {
		return fmt.Errorf("registry deinitialize: %w", err)
	}
	if err := reg.Destroy(); err != nil {
		return fmt.Errorf("registry destroy: %w", err)
	}

	if result, ok := health.Latest("echo_speed"); ok {
		logger.Info("final job health", "job", result.JobName, "violated", result.Violated)
	}
	return nil
}

// echoReceiver adapts a WriterProxy to dataqueue.Receiver: every popped
// sample is republished on the echo output; stream-type items are
// ignored (the echo job only mirrors data).
type echoReceiver struct {
	writer *datasignal.WriterProxy
	logger logsvc.Logger
}

func (e echoReceiver) OnSample(s sample.Sample) {
	if err := e.writer.Write(s); err != nil {
		e.logger.Warning("echo job write failed", "error", err)
	}
}

func (e echoReceiver) OnType(*streamtype.StreamType) {}

// echoJob drains every sample queued for the input signal on each tick
// and republishes it on the echo output, mirroring the
// read-process-write shape of a real clock-triggered job (spec.md
// §4.11).
func echoJob(reg *registry.Registry, logger logsvc.Logger) jobregistry.Callable {
	reader := reg.GetReader(signalSpeedIn, 4)
	writer := reg.GetWriter(signalSpeedOut, 1)
	if reader == nil || writer == nil {
		return func(int64) {}
	}
	receiver := echoReceiver{writer: writer, logger: logger}
	return func(timestamp int64) {
		for reader.Queue().PopFront(receiver) {
		}
	}
}

// logSampleListener logs every sample on the transport thread, the
// fast-path use case spec.md §4.4 calls out explicitly.
type logSampleListener struct {
	logger logsvc.Logger
	name   string
}

func (l logSampleListener) OnReceive(s sample.Sample) {
	l.logger.Debug("sample received", "signal", l.name, "size", s.GetSize(), "time", s.GetTime())
}

// activeSchedulerName reads scheduling/main_scheduler (spec.md §6),
// defaulting to the one scheduler this binary runs.
func activeSchedulerName(cfg *configsvc.Tree) string {
	if v, ok := cfg.GetString("scheduling/main_scheduler"); ok && v != "" {
		return v
	}
	return "clock_based_scheduler"
}

// taskHistoryDBPath reads scheduling/task_history_db (spec.md §6's
// property table), defaulting to an in-memory database so the demo
// binary never leaves a file behind when run without configuration.
func taskHistoryDBPath(cfg *configsvc.Tree) string {
	if v, ok := cfg.GetString("scheduling/task_history_db"); ok && v != "" {
		return v
	}
	return ":memory:"
}

// stepSizeNanos reads clock/step_size (spec.md §6), defaulting to one
// second when absent or malformed.
func stepSizeNanos(cfg *configsvc.Tree) int64 {
	const defaultStep = int64(time.Second)
	v, ok := cfg.GetString("clock/step_size")
	if !ok {
		return defaultStep
	}
	var n int64
	if _, err := fmt.Sscanf(v, "%d", &n); err != nil || n <= 0 {
		return defaultStep
	}
	return n
}

// newDemoClock builds the clock named by clock/main_clock (spec.md §6;
// "continuous" or anything else meaning "discrete") and returns a
// function that starts a goroutine driving it off the wall clock,
// itself returning a stop function.
//
// The core never implements a clock (spec.md §1); this is the minimal
// stand-in a demo binary needs in place of a real external clock
// service.
func newDemoClock(cfg *configsvc.Tree) (clocksvc.Clock, func(logsvc.Logger) func()) {
	kind := clocksvc.Discrete
	if v, ok := cfg.GetString("clock/main_clock"); ok && v == "continuous" {
		kind = clocksvc.Continuous
	}
	manual := clocksvc.NewManual(kind)
	step := stepSizeNanos(cfg)

	drive := func(logger logsvc.Logger) func() {
		stop := make(chan struct{})
		done := make(chan struct{})
		go func() {
			defer close(done)
			ticker := time.NewTicker(time.Duration(step))
			defer ticker.Stop()
			var now int64
			for {
				select {
				case <-stop:
					return
				case <-ticker.C:
					now += step
					next := now + step
					if kind == clocksvc.Discrete {
						manual.Tick(now, &next)
					} else {
						manual.Tick(now, nil)
					}
				}
			}
		}()
		return func() {
			close(stop)
			<-done
		}
	}
	return manual, drive
}

// watchBrokerReachability starts a connwatch.Watcher that independently
// probes the broker's TCP reachability (distinct from autopaho's own
// reconnect loop inside transport/mqttbus) purely for status logging.
func watchBrokerReachability(m *connwatch.Manager, logger logsvc.Logger, broker string) {
	u, err := url.Parse(broker)
	if err != nil || u.Host == "" {
		logger.Warning("broker reachability watch disabled: invalid broker URL", "broker", broker)
		return
	}
	host := u.Host
	m.Watch(context.Background(), connwatch.WatcherConfig{
		Name: "mqtt-broker",
		Probe: func(ctx context.Context) error {
			d := net.Dialer{}
			conn, err := d.DialContext(ctx, "tcp", host)
			if err != nil {
				return err
			}
			return conn.Close()
		},
		OnReady: func() { logger.Info("mqtt broker reachable", "broker", broker) },
		OnDown:  func(err error) { logger.Warning("mqtt broker unreachable", "broker", broker, "error", err) },
	})
}
