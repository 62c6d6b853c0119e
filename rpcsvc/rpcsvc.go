// Package rpcsvc defines the external RPC-server interface of spec.md
// §6 ("registerService(iid, service) / unregisterService(iid)") plus
// the three RPC-facing services the core exposes through it: the data
// registry's signal-name/stream-type surface, the scheduler's
// active-scheduler surface, and the job registry's job-info surface.
//
// spec.md §1 places the RPC service bus (JSON-RPC over HTTP with
// SSDP-style discovery) explicitly out of core scope — this package
// defines only the registration surface and the payload shapes; no
// transport is implemented here.
package rpcsvc

import "sync"

// Server is the external RPC-server surface the core registers its
// services on.
type Server interface {
	RegisterService(iid string, service any) error
	UnregisterService(iid string) error
}

// Registry is an in-memory Server: it just keeps track of what is
// registered under which interface id, for tests and for
// cmd/fepcore-demo to report over its own thin status surface.
type Registry struct {
	mu       sync.Mutex
	services map[string]any
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{services: make(map[string]any)}
}

func (r *Registry) RegisterService(iid string, service any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.services[iid] = service
	return nil
}

func (r *Registry) UnregisterService(iid string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.services, iid)
	return nil
}

// Lookup returns the service registered under iid, if any.
func (r *Registry) Lookup(iid string) (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	svc, ok := r.services[iid]
	return svc, ok
}

// PropertyEntry is one entry of the stream-type property list
// getStreamType(name) exposes over RPC (spec.md §6).
type PropertyEntry struct {
	Name  string
	Value string
	Type  string
}

// StreamTypeView is the RPC-facing shape of getStreamType(name): {
// meta_type, properties:[{name,value,type}...] }.
type StreamTypeView struct {
	MetaType   string
	Properties []PropertyEntry
}

// DataRegistryService is the RPC surface spec.md §6 gives the data
// registry: getSignalInNames(), getSignalOutNames(),
// getStreamType(name).
type DataRegistryService interface {
	GetSignalInNames() []string
	GetSignalOutNames() []string
	GetStreamType(name string) StreamTypeView
}

// SchedulerService is the RPC surface spec.md §6 gives the scheduler:
// getSchedulerNames(), getActiveSchedulerName().
type SchedulerService interface {
	GetSchedulerNames() []string
	GetActiveSchedulerName() string
}

// JobInfo is the RPC-facing shape getJobInfo(name) returns (spec.md §6).
type JobInfo struct {
	JobName           string
	CycleSimTime      int64
	DelaySimTime      int64
	MaxRuntimeReal    int64
	ViolationStrategy string
}

// JobRegistryService is the RPC surface spec.md §6 gives the job
// registry: getJobNames(), getJobInfo(name).
type JobRegistryService interface {
	GetJobNames() []string
	GetJobInfo(name string) (JobInfo, bool)
}
