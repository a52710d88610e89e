package timer

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type memStore struct {
	saved   []Snapshot
	cleared int
}

func (m *memStore) Save(_ context.Context, snap Snapshot) error {
	m.saved = append(m.saved, snap)
	return nil
}

func (m *memStore) Load(_ context.Context) (Snapshot, bool, error) {
	if len(m.saved) == 0 {
		return Snapshot{}, false, nil
	}
	return m.saved[len(m.saved)-1], true, nil
}

func (m *memStore) Clear(_ context.Context) error {
	m.cleared++
	return nil
}

// testCountdown builds a countdown with a controllable clock. Ticks are
// driven directly through tick() instead of the wall-clock goroutine.
func testCountdown(totalMinutes int, start time.Time, store SnapshotStore, hooks Hooks) (*Countdown, *time.Time) {
	c := New(totalMinutes, start, store, hooks, zerolog.Nop())
	now := start
	c.now = func() time.Time { return now }
	c.running = true
	return c, &now
}

func TestRemainingAtAnchorsToOriginalStart(t *testing.T) {
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	snap := Snapshot{RemainingSeconds: 600, SessionStart: start, TotalMinutes: 10}

	cases := []struct {
		elapsed time.Duration
		want    int
	}{
		{0, 600},
		{4 * time.Minute, 360},
		{10 * time.Minute, 0},
		{25 * time.Minute, 0}, // clamped, never negative
	}
	for _, tc := range cases {
		if got := snap.RemainingAt(start.Add(tc.elapsed)); got != tc.want {
			t.Errorf("RemainingAt(+%v) = %d, want %d", tc.elapsed, got, tc.want)
		}
	}
}

func TestResumeDoesNotResetBudget(t *testing.T) {
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	snap := Snapshot{RemainingSeconds: 300, SessionStart: start, TotalMinutes: 10}

	// Student was away for 8 minutes total since start; a reload must charge
	// all of it, not restart from the persisted 300s.
	if got := snap.RemainingAt(start.Add(8 * time.Minute)); got != 120 {
		t.Fatalf("resumed remaining = %d, want 120", got)
	}
}

func TestRestoreUsesStoredSnapshot(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 8, 0, 0, time.UTC)
	origStart := now.Add(-8 * time.Minute)
	store := &memStore{saved: []Snapshot{
		{RemainingSeconds: 300, SessionStart: origStart, TotalMinutes: 10},
	}}

	// Rebuilt attempt anchored at "now": without the stored snapshot it
	// would think the full budget is left.
	c := New(10, now, store, Hooks{}, zerolog.Nop())
	c.now = func() time.Time { return now }

	if err := c.Restore(context.Background()); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if got := c.Remaining(); got != 120 {
		t.Fatalf("remaining after restore = %d, want 120", got)
	}
}

func TestRestoreNeverExtendsBudget(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 6, 0, 0, time.UTC)
	store := &memStore{saved: []Snapshot{
		// Stored start is LATER than the construction anchor. Taking it
		// would hand back four minutes.
		{RemainingSeconds: 480, SessionStart: now.Add(-2 * time.Minute), TotalMinutes: 10},
	}}

	c := New(10, now.Add(-6*time.Minute), store, Hooks{}, zerolog.Nop())
	c.now = func() time.Time { return now }

	if err := c.Restore(context.Background()); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if got := c.Remaining(); got != 240 {
		t.Fatalf("remaining after restore = %d, want 240", got)
	}
}

func TestRestoreWithoutSnapshotKeepsAnchor(t *testing.T) {
	store := &memStore{}
	c := New(10, time.Now().Add(-3*time.Minute), store, Hooks{}, zerolog.Nop())

	if err := c.Restore(context.Background()); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if got := c.Remaining(); got < 418 || got > 420 {
		t.Fatalf("remaining = %d, want about 420", got)
	}
}

func TestTickMonotonicAndPersisted(t *testing.T) {
	store := &memStore{}
	start := time.Now()
	c, now := testCountdown(10, start, store, Hooks{})

	prev := c.Remaining()
	for i := 1; i <= 5; i++ {
		*now = start.Add(time.Duration(i) * time.Second)
		c.tick(context.Background())
		if c.Remaining() > prev {
			t.Fatalf("remaining increased: %d -> %d", prev, c.Remaining())
		}
		prev = c.Remaining()
	}

	if len(store.saved) != 5 {
		t.Fatalf("snapshots saved = %d, want 5", len(store.saved))
	}
	last := store.saved[len(store.saved)-1]
	if !last.SessionStart.Equal(start) {
		t.Error("snapshot start drifted from the original session start")
	}
}

func TestThresholdsFireOnce(t *testing.T) {
	var warnings, criticals, expiries int
	store := &memStore{}
	start := time.Now()
	c, now := testCountdown(10, start, store, Hooks{
		OnWarning:  func(int) { warnings++ },
		OnCritical: func(int) { criticals++ },
		OnExpired:  func() { expiries++ },
	})

	steps := []time.Duration{
		5 * time.Minute,        // warning boundary
		5*time.Minute + time.Second,
		9 * time.Minute,        // critical boundary
		9*time.Minute + time.Second,
		10 * time.Minute,       // expiry
	}
	for _, d := range steps {
		*now = start.Add(d)
		c.tick(context.Background())
	}

	// Extra ticks after expiry are ignored.
	*now = start.Add(11 * time.Minute)
	c.tick(context.Background())
	c.tick(context.Background())

	if warnings != 1 || criticals != 1 || expiries != 1 {
		t.Errorf("warnings=%d criticals=%d expiries=%d, want 1 each", warnings, criticals, expiries)
	}
	if !c.Expired() {
		t.Error("countdown not marked expired")
	}
}

func TestZeroDurationNeverStarts(t *testing.T) {
	store := &memStore{}
	expired := false
	c := New(0, time.Now(), store, Hooks{OnExpired: func() { expired = true }}, zerolog.Nop())

	c.Start(context.Background())
	time.Sleep(10 * time.Millisecond)

	if c.running {
		t.Error("unlimited countdown should not run")
	}
	if expired {
		t.Error("unlimited countdown fired expiry")
	}
}

func TestStopIdempotentAndTeardownClears(t *testing.T) {
	store := &memStore{}
	c, _ := testCountdown(10, time.Now(), store, Hooks{})
	c.stopCh = make(chan struct{})

	c.Stop()
	c.Stop() // must not panic on double stop

	c.Teardown(context.Background())
	c.Teardown(context.Background())
	if store.cleared != 2 {
		t.Errorf("cleared = %d, want 2", store.cleared)
	}
}
