package clocksvc

import "testing"

type recordingSink struct {
	updates    []int64
	resetCalls []int64
}

func (r *recordingSink) TimeUpdateBegin()                {}
func (r *recordingSink) TimeUpdateEnd()                  {}
func (r *recordingSink) TimeResetBegin(old, new int64)   {}
func (r *recordingSink) TimeResetEnd(new int64)          { r.resetCalls = append(r.resetCalls, new) }
func (r *recordingSink) TimeUpdating(t int64, next *int64) {
	r.updates = append(r.updates, t)
}

func TestManualTickFansOutToSinks(t *testing.T) {
	clock := NewManual(Discrete)
	sink := &recordingSink{}
	clock.RegisterSink(sink)

	for _, tick := range []int64{0, 10, 20} {
		clock.Tick(tick, nil)
	}

	if len(sink.updates) != 3 {
		t.Fatalf("expected 3 updates, got %v", sink.updates)
	}
	if clock.Now() != 20 {
		t.Fatalf("expected Now()==20, got %d", clock.Now())
	}
}

func TestManualUnregisterSinkStopsDelivery(t *testing.T) {
	clock := NewManual(Continuous)
	sink := &recordingSink{}
	clock.RegisterSink(sink)
	clock.Tick(0, nil)
	clock.UnregisterSink(sink)
	clock.Tick(10, nil)

	if len(sink.updates) != 1 {
		t.Fatalf("expected exactly 1 update before unregister, got %v", sink.updates)
	}
}

func TestManualResetFansOutBeginEnd(t *testing.T) {
	clock := NewManual(Discrete)
	sink := &recordingSink{}
	clock.RegisterSink(sink)
	clock.Reset(100, 0)

	if len(sink.resetCalls) != 1 || sink.resetCalls[0] != 0 {
		t.Fatalf("expected one reset-end call with new=0, got %v", sink.resetCalls)
	}
	if clock.Now() != 0 {
		t.Fatalf("expected Now()==0 after reset, got %d", clock.Now())
	}
}

func TestTypeString(t *testing.T) {
	if Discrete.String() != "discrete" || Continuous.String() != "continuous" {
		t.Fatalf("unexpected Type.String() values")
	}
}
