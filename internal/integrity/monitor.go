// Package integrity counts environment signals reported during an attempt
// and turns them into session policy events.
package integrity

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Signal identifies one observed environment event.
type Signal string

const (
	// SignalVisibilityLost covers tab switches and app backgrounding. It is
	// the only signal that increments the violation counter.
	SignalVisibilityLost Signal = "visibility_lost"
	// SignalNavigationAttempt covers back-navigation and window unload. It
	// is warned about but never counted: an accidental trigger cannot be
	// told apart from a malicious one.
	SignalNavigationAttempt Signal = "navigation_attempt"

	// Suppressed UI affordances. Recorded for the audit trail only.
	SignalCopy        Signal = "copy"
	SignalCut         Signal = "cut"
	SignalPaste       Signal = "paste"
	SignalContextMenu Signal = "context_menu"
	SignalSelection   Signal = "selection"
)

// Counted reports whether the signal increments the violation counter.
func (s Signal) Counted() bool {
	return s == SignalVisibilityLost
}

// Event is one recorded signal with the violation count at that moment.
type Event struct {
	Signal     Signal    `json:"signal"`
	Violations int       `json:"violations"`
	At         time.Time `json:"at"`
}

// Hooks are the monitor's observable transitions. OnWarning fires with the
// new count on every counted violation; OnLimit fires exactly once when the
// count reaches the configured limit. Nil hooks are skipped.
type Hooks struct {
	OnWarning func(count int)
	OnLimit   func(count int)
	// OnEvent receives every recorded signal, counted or not, for
	// persistence.
	OnEvent func(Event)
}

// Monitor tracks integrity violations for one attempt. Stop is idempotent;
// a stopped monitor ignores further signals so no orphaned callback can
// mutate a disposed session.
type Monitor struct {
	mu         sync.Mutex
	limit      int
	violations int
	limitFired bool
	active     bool
	hooks      Hooks
	log        zerolog.Logger
	now        func() time.Time
}

// NewMonitor creates a monitor that calls OnLimit at the given violation
// count. A limit of zero disables the auto-submit policy.
func NewMonitor(limit int, hooks Hooks, log zerolog.Logger) *Monitor {
	return &Monitor{
		limit: limit,
		hooks: hooks,
		log:   log.With().Str("component", "integrity_monitor").Logger(),
		now:   time.Now,
	}
}

// Start activates signal processing.
func (m *Monitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active = true
}

// Stop deactivates the monitor. Idempotent.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active = false
}

// Resume restores a previously accumulated violation count after a reload.
// It does not re-fire the limit hook for counts already at the limit; the
// session controller decides what to do with the restored total.
func (m *Monitor) Resume(violations int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.violations = violations
	if m.limit > 0 && violations >= m.limit {
		m.limitFired = true
	}
}

// Violations returns the current count.
func (m *Monitor) Violations() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.violations
}

// Observe records one signal. Counted signals bump the violation counter and
// raise a warning; reaching the limit fires OnLimit exactly once, even if
// further violations land while the submit transition is still in flight.
func (m *Monitor) Observe(sig Signal) {
	m.mu.Lock()
	if !m.active {
		m.mu.Unlock()
		return
	}

	if sig.Counted() {
		m.violations++
	}
	ev := Event{Signal: sig, Violations: m.violations, At: m.now()}

	var fire []func()
	if m.hooks.OnEvent != nil {
		onEvent := m.hooks.OnEvent
		fire = append(fire, func() { onEvent(ev) })
	}
	if sig.Counted() {
		count := m.violations
		if m.hooks.OnWarning != nil {
			onWarning := m.hooks.OnWarning
			fire = append(fire, func() { onWarning(count) })
		}
		if m.limit > 0 && count >= m.limit && !m.limitFired {
			m.limitFired = true
			if m.hooks.OnLimit != nil {
				onLimit := m.hooks.OnLimit
				fire = append(fire, func() { onLimit(count) })
			}
		}
	}
	m.mu.Unlock()

	if sig.Counted() {
		m.log.Warn().Str("signal", string(sig)).Int("violations", ev.Violations).Msg("Integrity violation")
	}

	for _, f := range fire {
		f()
	}
}
