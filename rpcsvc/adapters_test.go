package rpcsvc

import (
	"testing"

	"github.com/cariad-tech/fep3-participant-sub000/configsvc"
	"github.com/cariad-tech/fep3-participant-sub000/jobregistry"
	"github.com/cariad-tech/fep3-participant-sub000/registry"
	"github.com/cariad-tech/fep3-participant-sub000/streamtype"
)

type noFiles struct{}

func (noFiles) ReadFile(path string) (string, error) { return "", nil }

func newInitializedRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	r := registry.New()
	if err := r.Create(); err != nil {
		t.Fatalf("Create: %v", err)
	}
	st := streamtype.New(streamtype.MetaDDL)
	st.Props.SetProperty("ddlstruct", "tSpeed", "string")
	if err := r.RegisterDataIn("speed", st, false); err != nil {
		t.Fatalf("RegisterDataIn: %v", err)
	}
	if err := r.RegisterDataOut("speed.echo", st, false); err != nil {
		t.Fatalf("RegisterDataOut: %v", err)
	}
	if err := r.Initialize(configsvc.New(), noFiles{}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return r
}

func TestDataRegistryAdapterReportsSignalNames(t *testing.T) {
	r := newInitializedRegistry(t)
	a := DataRegistryAdapter{Registry: r}

	if got := a.GetSignalInNames(); len(got) != 1 || got[0] != "speed" {
		t.Fatalf("GetSignalInNames = %v, want [speed]", got)
	}
	if got := a.GetSignalOutNames(); len(got) != 1 || got[0] != "speed.echo" {
		t.Fatalf("GetSignalOutNames = %v, want [speed.echo]", got)
	}
}

func TestDataRegistryAdapterConvertsStreamType(t *testing.T) {
	r := newInitializedRegistry(t)
	a := DataRegistryAdapter{Registry: r}

	view := a.GetStreamType("speed")
	if view.MetaType != streamtype.MetaDDL {
		t.Fatalf("MetaType = %q, want %q", view.MetaType, streamtype.MetaDDL)
	}
	if len(view.Properties) != 1 || view.Properties[0].Name != "ddlstruct" {
		t.Fatalf("Properties = %+v, want one ddlstruct entry", view.Properties)
	}
	if view.Properties[0].Value != "tSpeed" || view.Properties[0].Type != "string" {
		t.Fatalf("Properties[0] = %+v, want value tSpeed type string", view.Properties[0])
	}
}

func TestDataRegistryAdapterUnknownSignalReturnsHookSentinel(t *testing.T) {
	r := newInitializedRegistry(t)
	a := DataRegistryAdapter{Registry: r}

	view := a.GetStreamType("nope")
	if view.MetaType != streamtype.MetaHook || len(view.Properties) != 0 {
		t.Fatalf("expected hook sentinel StreamTypeView with no properties for unknown signal, got %+v", view)
	}
}

func TestStaticSchedulerServiceReportsConfiguredName(t *testing.T) {
	s := StaticSchedulerService{ActiveName: "clock_based_scheduler"}
	if got := s.GetSchedulerNames(); len(got) != 1 || got[0] != "clock_based_scheduler" {
		t.Fatalf("GetSchedulerNames = %v", got)
	}
	if got := s.GetActiveSchedulerName(); got != "clock_based_scheduler" {
		t.Fatalf("GetActiveSchedulerName = %q", got)
	}
}

func TestJobRegistryAdapterReportsClockTriggeredInfo(t *testing.T) {
	jobs := jobregistry.NewStatic([]jobregistry.Entry{
		{
			Name:     "echo_speed",
			Callable: func(int64) {},
			Configuration: jobregistry.Configuration{
				ClockTriggered: &jobregistry.ClockTriggered{
					Period:            1_000_000,
					InitialDelay:      500,
					MaxRuntime:        200,
					ViolationStrategy: jobregistry.Warn,
				},
			},
		},
	})
	a := JobRegistryAdapter{Jobs: jobs}

	if got := a.GetJobNames(); len(got) != 1 || got[0] != "echo_speed" {
		t.Fatalf("GetJobNames = %v", got)
	}
	info, ok := a.GetJobInfo("echo_speed")
	if !ok {
		t.Fatalf("expected echo_speed to be found")
	}
	want := JobInfo{
		JobName:           "echo_speed",
		CycleSimTime:      1_000_000,
		DelaySimTime:      500,
		MaxRuntimeReal:    200,
		ViolationStrategy: "warn",
	}
	if info != want {
		t.Fatalf("GetJobInfo = %+v, want %+v", info, want)
	}
}

func TestJobRegistryAdapterReportsDataTriggeredInfo(t *testing.T) {
	jobs := jobregistry.NewStatic([]jobregistry.Entry{
		{
			Name:     "log_speed_arrival",
			Callable: func(int64) {},
			Configuration: jobregistry.Configuration{
				DataTriggered: &jobregistry.DataTriggered{
					SignalNames:       []string{"speed"},
					MaxRuntime:        100,
					ViolationStrategy: jobregistry.Ignore,
				},
			},
		},
	})
	a := JobRegistryAdapter{Jobs: jobs}

	info, ok := a.GetJobInfo("log_speed_arrival")
	if !ok {
		t.Fatalf("expected log_speed_arrival to be found")
	}
	if info.CycleSimTime != 0 || info.DelaySimTime != 0 {
		t.Fatalf("expected zero cycle/delay sim time for a data-triggered job, got %+v", info)
	}
	if info.MaxRuntimeReal != 100 || info.ViolationStrategy != "ignore" {
		t.Fatalf("GetJobInfo = %+v", info)
	}
}

func TestJobRegistryAdapterUnknownJobReturnsFalse(t *testing.T) {
	jobs := jobregistry.NewStatic(nil)
	a := JobRegistryAdapter{Jobs: jobs}
	if _, ok := a.GetJobInfo("nope"); ok {
		t.Fatalf("expected unknown job to report not-found")
	}
}
