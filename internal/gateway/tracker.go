// Package gateway routes classification between the stream and batch
// channels, tracking stream health so persistent failures shift the load
// to the batch channel until the stream recovers.
package gateway

import (
	"sync"
	"time"
)

// Tracker defaults. Three failures close the stream; after five minutes of
// quiet one probe request is allowed through.
const (
	DefaultFailureThreshold = 3
	DefaultRecoveryWindow   = 5 * time.Minute
	successDecayStreak      = 5
)

// FailureTracker decides whether the stream channel is healthy enough to
// use. Failures accumulate; a sustained success streak slowly pays them
// down; crossing the threshold closes the stream until the recovery window
// elapses, after which counters reset and one attempt is allowed.
type FailureTracker struct {
	mu             sync.Mutex
	failures       int
	successes      int
	lastFailure    time.Time
	threshold      int
	recoveryWindow time.Duration
	now            func() time.Time
}

// NewFailureTracker creates a tracker with the given threshold and recovery
// window; non-positive values take the defaults.
func NewFailureTracker(threshold int, recoveryWindow time.Duration) *FailureTracker {
	if threshold <= 0 {
		threshold = DefaultFailureThreshold
	}
	if recoveryWindow <= 0 {
		recoveryWindow = DefaultRecoveryWindow
	}
	return &FailureTracker{
		threshold:      threshold,
		recoveryWindow: recoveryWindow,
		now:            time.Now,
	}
}

// RecordFailure notes a stream failure.
func (t *FailureTracker) RecordFailure() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failures++
	t.lastFailure = t.now()
}

// RecordSuccess notes a stream success. A streak of successes beyond the
// decay threshold works off one accumulated failure.
func (t *FailureTracker) RecordSuccess() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.successes++
	if t.successes > successDecayStreak {
		if t.failures > 0 {
			t.failures--
		}
	}
}

// StreamUsable reports whether the stream channel should be tried. Once the
// failure threshold is reached it returns false until the recovery window
// has passed since the last failure; the first call after that resets the
// counters and lets one request probe the stream.
func (t *FailureTracker) StreamUsable() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.failures < t.threshold {
		return true
	}
	if !t.lastFailure.IsZero() && t.now().Sub(t.lastFailure) > t.recoveryWindow {
		t.failures = 0
		t.successes = 0
		return true
	}
	return false
}

// TrackerStats is a point-in-time snapshot for status reporting.
type TrackerStats struct {
	StreamUsable bool      `json:"stream_usable"`
	Failures     int       `json:"failures"`
	Successes    int       `json:"successes"`
	LastFailure  time.Time `json:"last_failure,omitzero"`
}

// Stats returns the current counters. It does not trigger the half-open
// reset.
func (t *FailureTracker) Stats() TrackerStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	usable := t.failures < t.threshold
	if !usable && !t.lastFailure.IsZero() && t.now().Sub(t.lastFailure) > t.recoveryWindow {
		usable = true
	}
	return TrackerStats{
		StreamUsable: usable,
		Failures:     t.failures,
		Successes:    t.successes,
		LastFailure:  t.lastFailure,
	}
}
