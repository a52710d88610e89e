package integrity

import (
	"testing"

	"github.com/rs/zerolog"
)

func TestCountedSignals(t *testing.T) {
	var warnings []int
	m := NewMonitor(2, Hooks{OnWarning: func(c int) { warnings = append(warnings, c) }}, zerolog.Nop())
	m.Start()

	m.Observe(SignalVisibilityLost)
	m.Observe(SignalNavigationAttempt) // warned elsewhere, never counted
	m.Observe(SignalPaste)
	m.Observe(SignalContextMenu)

	if got := m.Violations(); got != 1 {
		t.Fatalf("violations = %d, want 1", got)
	}
	if len(warnings) != 1 || warnings[0] != 1 {
		t.Fatalf("warnings = %v, want [1]", warnings)
	}
}

func TestLimitFiresExactlyOnce(t *testing.T) {
	limitCalls := 0
	m := NewMonitor(2, Hooks{OnLimit: func(int) { limitCalls++ }}, zerolog.Nop())
	m.Start()

	m.Observe(SignalVisibilityLost)
	m.Observe(SignalVisibilityLost)
	// A third violation lands before the submit transition completes.
	m.Observe(SignalVisibilityLost)

	if limitCalls != 1 {
		t.Fatalf("limit fired %d times, want 1", limitCalls)
	}
	if got := m.Violations(); got != 3 {
		t.Fatalf("violations = %d, want 3", got)
	}
}

func TestStoppedMonitorIgnoresSignals(t *testing.T) {
	m := NewMonitor(2, Hooks{}, zerolog.Nop())
	m.Start()
	m.Observe(SignalVisibilityLost)
	m.Stop()
	m.Stop() // idempotent

	m.Observe(SignalVisibilityLost)
	if got := m.Violations(); got != 1 {
		t.Fatalf("violations after stop = %d, want 1", got)
	}
}

func TestResumeDoesNotRefireLimit(t *testing.T) {
	limitCalls := 0
	m := NewMonitor(2, Hooks{OnLimit: func(int) { limitCalls++ }}, zerolog.Nop())
	m.Resume(2)
	m.Start()

	m.Observe(SignalVisibilityLost)
	if limitCalls != 0 {
		t.Fatalf("limit re-fired after resume, calls = %d", limitCalls)
	}
	if got := m.Violations(); got != 3 {
		t.Fatalf("violations = %d, want 3", got)
	}
}

func TestEventsRecordedForAllSignals(t *testing.T) {
	var events []Event
	m := NewMonitor(0, Hooks{OnEvent: func(ev Event) { events = append(events, ev) }}, zerolog.Nop())
	m.Start()

	m.Observe(SignalVisibilityLost)
	m.Observe(SignalCopy)

	if len(events) != 2 {
		t.Fatalf("events = %d, want 2", len(events))
	}
	if events[0].Violations != 1 || events[1].Violations != 1 {
		t.Errorf("event counts = %d,%d, want 1,1", events[0].Violations, events[1].Violations)
	}
}
