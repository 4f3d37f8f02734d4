package gateway

import (
	"testing"
	"time"
)

func newTestTracker(threshold int, window time.Duration) (*FailureTracker, *time.Time) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	t := NewFailureTracker(threshold, window)
	t.now = func() time.Time { return now }
	return t, &now
}

func TestTrackerOpensAfterThreshold(t *testing.T) {
	tr, _ := newTestTracker(3, 5*time.Minute)
	if !tr.StreamUsable() {
		t.Fatal("fresh tracker must allow the stream")
	}
	tr.RecordFailure()
	tr.RecordFailure()
	if !tr.StreamUsable() {
		t.Fatal("below threshold the stream stays usable")
	}
	tr.RecordFailure()
	if tr.StreamUsable() {
		t.Fatal("at threshold the stream must close")
	}
}

func TestTrackerHalfOpenAfterRecoveryWindow(t *testing.T) {
	tr, now := newTestTracker(3, 5*time.Minute)
	for i := 0; i < 3; i++ {
		tr.RecordFailure()
	}
	if tr.StreamUsable() {
		t.Fatal("stream must be closed")
	}

	*now = now.Add(5*time.Minute + time.Second)
	if !tr.StreamUsable() {
		t.Fatal("after the recovery window one probe is allowed")
	}
	// The probe reset the counters, so the stream stays open.
	if !tr.StreamUsable() {
		t.Fatal("counters must reset after the half-open probe")
	}
	st := tr.Stats()
	if st.Failures != 0 || st.Successes != 0 {
		t.Errorf("counters not reset: %+v", st)
	}
}

func TestTrackerSuccessStreakDecaysFailures(t *testing.T) {
	tr, _ := newTestTracker(3, 5*time.Minute)
	tr.RecordFailure()
	tr.RecordFailure()
	for i := 0; i <= successDecayStreak; i++ {
		tr.RecordSuccess()
	}
	if got := tr.Stats().Failures; got != 1 {
		t.Errorf("failures = %d, want 1 after streak decay", got)
	}
	tr.RecordSuccess()
	if got := tr.Stats().Failures; got != 0 {
		t.Errorf("failures = %d, want 0", got)
	}
	tr.RecordSuccess()
	if got := tr.Stats().Failures; got != 0 {
		t.Errorf("failures must not go negative, got %d", got)
	}
}

func TestTrackerStatsDoesNotReset(t *testing.T) {
	tr, now := newTestTracker(3, 5*time.Minute)
	for i := 0; i < 3; i++ {
		tr.RecordFailure()
	}
	*now = now.Add(10 * time.Minute)
	st := tr.Stats()
	if !st.StreamUsable {
		t.Error("stats should report the stream usable after the window")
	}
	if st.Failures != 3 {
		t.Errorf("Stats must not reset counters, failures = %d", st.Failures)
	}
}
