package rpcsvc

import "testing"

func TestRegistryRegisterAndLookup(t *testing.T) {
	reg := NewRegistry()
	if err := reg.RegisterService("data_registry", struct{}{}); err != nil {
		t.Fatalf("RegisterService: %v", err)
	}
	svc, ok := reg.Lookup("data_registry")
	if !ok || svc == nil {
		t.Fatalf("expected registered service to be found")
	}
}

func TestRegistryUnregisterRemovesService(t *testing.T) {
	reg := NewRegistry()
	_ = reg.RegisterService("scheduler", struct{}{})
	if err := reg.UnregisterService("scheduler"); err != nil {
		t.Fatalf("UnregisterService: %v", err)
	}
	if _, ok := reg.Lookup("scheduler"); ok {
		t.Fatalf("expected scheduler service to be gone after unregister")
	}
}

func TestLookupMissingServiceReturnsFalse(t *testing.T) {
	reg := NewRegistry()
	if _, ok := reg.Lookup("nope"); ok {
		t.Fatalf("expected missing service to report not-found")
	}
}
