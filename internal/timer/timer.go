// Package timer owns the countdown for one attempt: remaining seconds,
// threshold events and the persisted snapshot that makes resume-after-reload
// safe against clock games.
package timer

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Threshold boundaries in seconds remaining.
const (
	WarningSeconds  = 300
	CriticalSeconds = 60
)

// Snapshot is the only durable state the timer owns. It is written on every
// tick and cleared on session teardown. Resume is always anchored to
// SessionStart — never to a freshly captured "now", which would let a student
// extend time by reloading.
type Snapshot struct {
	RemainingSeconds int       `json:"remaining_seconds"`
	SessionStart     time.Time `json:"session_start"`
	TotalMinutes     int       `json:"total_duration"`
}

// RemainingAt recomputes remaining time at the given instant from the
// original session start, clamped to zero.
func (s Snapshot) RemainingAt(now time.Time) int {
	total := s.TotalMinutes * 60
	elapsed := int(now.Sub(s.SessionStart).Seconds())
	remaining := total - elapsed
	if remaining < 0 {
		return 0
	}
	return remaining
}

// SnapshotStore persists timer snapshots between reloads.
type SnapshotStore interface {
	Save(ctx context.Context, snap Snapshot) error
	// Load returns the stored snapshot and whether one exists.
	Load(ctx context.Context) (Snapshot, bool, error)
	Clear(ctx context.Context) error
}

// Hooks are the observable threshold transitions. Each fires at most once
// for the lifetime of the countdown. Nil hooks are skipped.
type Hooks struct {
	OnTick     func(remaining int)
	OnWarning  func(remaining int)
	OnCritical func(remaining int)
	OnExpired  func()
}

// Countdown ticks once per wall-clock second while active. A total duration
// of zero means "no limit": Start is a no-op and expiry never fires.
type Countdown struct {
	mu    sync.Mutex
	snap  Snapshot
	store SnapshotStore
	hooks Hooks
	log   zerolog.Logger

	now      func() time.Time
	interval time.Duration

	running  bool
	warned   bool
	critical bool
	expired  bool
	stopCh   chan struct{}
}

// New creates a countdown for a session that started at sessionStart. When
// resuming, pass the original start from the persisted snapshot so elapsed
// offline time is charged against the budget.
func New(totalMinutes int, sessionStart time.Time, store SnapshotStore, hooks Hooks, log zerolog.Logger) *Countdown {
	snap := Snapshot{
		SessionStart: sessionStart,
		TotalMinutes: totalMinutes,
	}
	// Charge any time already elapsed since the original start, so a
	// countdown constructed on resume reports the true remaining budget
	// before its first tick.
	snap.RemainingSeconds = snap.RemainingAt(time.Now())

	return &Countdown{
		snap:     snap,
		store:    store,
		hooks:    hooks,
		log:      log.With().Str("component", "countdown").Logger(),
		now:      time.Now,
		interval: time.Second,
	}
}

// Restore re-anchors the countdown to the persisted snapshot, if one
// exists. The earlier session start wins, so a reload can shrink the
// remaining budget but never refill it, even when the rebuilt attempt
// carries a newer start than the one the previous run persisted.
func (c *Countdown) Restore(ctx context.Context) error {
	snap, ok, err := c.store.Load(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if snap.SessionStart.Before(c.snap.SessionStart) {
		c.snap.SessionStart = snap.SessionStart
	}
	c.snap.RemainingSeconds = c.snap.RemainingAt(c.now())
	return nil
}

// Start begins ticking. It is a no-op for unlimited tests or if already
// running or expired.
func (c *Countdown) Start(ctx context.Context) {
	c.mu.Lock()
	if c.snap.TotalMinutes <= 0 || c.running || c.expired {
		c.mu.Unlock()
		return
	}
	c.running = true
	c.stopCh = make(chan struct{})
	stopCh := c.stopCh
	c.mu.Unlock()

	go c.run(ctx, stopCh)
}

func (c *Countdown) run(ctx context.Context, stopCh chan struct{}) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			if done := c.tick(ctx); done {
				return
			}
		}
	}
}

// tick recomputes remaining time, persists the snapshot and fires any
// threshold transitions. Returns true once the countdown has expired.
func (c *Countdown) tick(ctx context.Context) bool {
	c.mu.Lock()
	if c.expired || !c.running {
		c.mu.Unlock()
		return true
	}

	remaining := c.snap.RemainingAt(c.now())
	c.snap.RemainingSeconds = remaining

	var fire []func()
	if c.hooks.OnTick != nil {
		onTick := c.hooks.OnTick
		fire = append(fire, func() { onTick(remaining) })
	}
	if remaining <= WarningSeconds && !c.warned {
		c.warned = true
		if c.hooks.OnWarning != nil {
			onWarning := c.hooks.OnWarning
			fire = append(fire, func() { onWarning(remaining) })
		}
	}
	if remaining <= CriticalSeconds && !c.critical {
		c.critical = true
		if c.hooks.OnCritical != nil {
			onCritical := c.hooks.OnCritical
			fire = append(fire, func() { onCritical(remaining) })
		}
	}

	done := remaining <= 0
	if done {
		c.expired = true
		c.running = false
		if c.hooks.OnExpired != nil {
			onExpired := c.hooks.OnExpired
			fire = append(fire, onExpired)
		}
	}

	snap := c.snap
	c.mu.Unlock()

	if err := c.store.Save(ctx, snap); err != nil {
		c.log.Warn().Err(err).Msg("Snapshot save failed")
	}

	for _, f := range fire {
		f()
	}
	return done
}

// Remaining returns the last computed remaining seconds.
func (c *Countdown) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap.RemainingSeconds
}

// Expired reports whether the countdown has fired its expiry transition.
func (c *Countdown) Expired() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.expired
}

// Stop halts ticking without clearing the snapshot. Idempotent.
func (c *Countdown) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return
	}
	c.running = false
	close(c.stopCh)
}

// Teardown stops the countdown and removes the persisted snapshot. Called
// once the session reaches a terminal state.
func (c *Countdown) Teardown(ctx context.Context) {
	c.Stop()
	if err := c.store.Clear(ctx); err != nil {
		c.log.Warn().Err(err).Msg("Snapshot clear failed")
	}
}
