package healthsvc

import "testing"

func TestRecorderTracksLatestAndHistory(t *testing.T) {
	rec := NewRecorder()
	rec.UpdateJobStatus("job_a", Result{JobName: "job_a", Timestamp: 0, DurationNs: 100})
	rec.UpdateJobStatus("job_a", Result{JobName: "job_a", Timestamp: 10, DurationNs: 200, Violated: true})

	latest, ok := rec.Latest("job_a")
	if !ok || latest.Timestamp != 10 || !latest.Violated {
		t.Fatalf("expected latest result to reflect the second update, got %+v, %v", latest, ok)
	}

	history := rec.History()
	if len(history) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(history))
	}
}

func TestRecorderLatestMissingJob(t *testing.T) {
	rec := NewRecorder()
	if _, ok := rec.Latest("missing"); ok {
		t.Fatalf("expected no result for an unreported job")
	}
}
