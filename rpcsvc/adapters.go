package rpcsvc

import (
	"github.com/cariad-tech/fep3-participant-sub000/jobregistry"
	"github.com/cariad-tech/fep3-participant-sub000/registry"
	"github.com/cariad-tech/fep3-participant-sub000/streamtype"
)

// DataRegistryAdapter implements DataRegistryService over a live
// *registry.Registry, converting its *streamtype.StreamType into the
// RPC-facing StreamTypeView shape.
type DataRegistryAdapter struct {
	Registry *registry.Registry
}

func (a DataRegistryAdapter) GetSignalInNames() []string { return a.Registry.GetSignalInNames() }

func (a DataRegistryAdapter) GetSignalOutNames() []string { return a.Registry.GetSignalOutNames() }

func (a DataRegistryAdapter) GetStreamType(name string) StreamTypeView {
	st := a.Registry.GetStreamType(name)
	if st == nil {
		return StreamTypeView{}
	}
	return toStreamTypeView(st)
}

func toStreamTypeView(st *streamtype.StreamType) StreamTypeView {
	names := st.Props.GetPropertyNames()
	props := make([]PropertyEntry, 0, len(names))
	for _, name := range names {
		props = append(props, PropertyEntry{
			Name:  name,
			Value: st.Props.GetProperty(name),
			Type:  st.Props.GetPropertyType(name),
		})
	}
	return StreamTypeView{MetaType: st.MetaType, Properties: props}
}

// StaticSchedulerService implements SchedulerService with a fixed name:
// the core runs exactly one scheduler at a time (spec.md §6's
// scheduling/main_scheduler), so there is nothing to enumerate beyond
// the one currently bound.
type StaticSchedulerService struct {
	ActiveName string
}

func (s StaticSchedulerService) GetSchedulerNames() []string { return []string{s.ActiveName} }

func (s StaticSchedulerService) GetActiveSchedulerName() string { return s.ActiveName }

// JobRegistryAdapter implements JobRegistryService over a
// jobregistry.Registry, projecting each Entry's configuration into the
// RPC-facing JobInfo shape. A data-triggered job has no cycle/delay
// sim time, so those fields report zero.
type JobRegistryAdapter struct {
	Jobs jobregistry.Registry
}

func (a JobRegistryAdapter) GetJobNames() []string {
	entries := a.Jobs.Jobs()
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name)
	}
	return names
}

func (a JobRegistryAdapter) GetJobInfo(name string) (JobInfo, bool) {
	for _, e := range a.Jobs.Jobs() {
		if e.Name != name {
			continue
		}
		info := JobInfo{JobName: e.Name}
		switch {
		case e.Configuration.ClockTriggered != nil:
			ct := e.Configuration.ClockTriggered
			info.CycleSimTime = ct.Period
			info.DelaySimTime = ct.InitialDelay
			info.MaxRuntimeReal = ct.MaxRuntime
			info.ViolationStrategy = string(ct.ViolationStrategy)
		case e.Configuration.DataTriggered != nil:
			dt := e.Configuration.DataTriggered
			info.MaxRuntimeReal = dt.MaxRuntime
			info.ViolationStrategy = string(dt.ViolationStrategy)
		}
		return info, true
	}
	return JobInfo{}, false
}
