// Package session implements the per-attempt state machine that composes
// the countdown, the integrity monitor, the answer store and the code
// validator, and guarantees the final submission is built and sent exactly
// once.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/acadio/assess-backend/internal/answers"
	"github.com/acadio/assess-backend/internal/integrity"
	"github.com/acadio/assess-backend/internal/model"
	"github.com/acadio/assess-backend/internal/timer"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Phase is the top-level session state.
type Phase string

const (
	PhaseLoading          Phase = "LOADING"
	PhaseInProgress       Phase = "IN_PROGRESS"
	PhaseSubmitting       Phase = "SUBMITTING"
	PhaseSubmitted        Phase = "SUBMITTED"
	PhaseAlreadyAttempted Phase = "ALREADY_ATTEMPTED"
	PhaseLoadFailed       Phase = "LOAD_FAILED"
)

// SubmitTrigger identifies which of the three submit causes fired first.
type SubmitTrigger string

const (
	TriggerUser           SubmitTrigger = "user"
	TriggerTimerExpired   SubmitTrigger = "timer_expired"
	TriggerViolationLimit SubmitTrigger = "violation_limit"
)

// Sentinel errors surfaced to the API layer.
var (
	ErrNotActive = errors.New("session is not in progress")
	// ErrMissingAttempt is a fatal precondition: submission is blocked but
	// session state is kept so the student can reload and retry.
	ErrMissingAttempt  = errors.New("attempt identifier is missing")
	ErrIncomplete      = errors.New("not every question has a qualifying answer")
	ErrIndexOutOfRange = errors.New("question index out of range")
)

// Submitter is the grading/persistence collaborator. Submit is called at
// most once per attempt with the full payload; an error makes the submit
// retryable.
type Submitter interface {
	Submit(ctx context.Context, payload *model.SubmissionPayload) error
}

// Hooks let the transport layer observe session events (WebSocket pushes,
// autosave queueing, violation persistence). Nil hooks are skipped.
type Hooks struct {
	OnTimeWarning    func(remaining int)
	OnTimeCritical   func(remaining int)
	OnViolation      func(count int)
	OnIntegrityEvent func(ev integrity.Event)
	OnAnswerSaved    func(key string, a model.Answer)
	OnAutoSubmit     func(trigger SubmitTrigger)
	OnSubmitted      func(payload *model.SubmissionPayload)
}

// Config assembles one session.
type Config struct {
	Test           model.Test
	Questions      []model.Question
	AttemptID      uuid.UUID
	StudentID      int
	SessionStart   time.Time // original start, also after a reload
	ViolationLimit int
	SnapshotStore  timer.SnapshotStore
	Submitter      Submitter
	Hooks          Hooks
	Log            zerolog.Logger
}

// Controller runs one student through one test. All mutation is applied
// atomically under a single mutex: timer ticks, violations, user input and
// network responses are each processed to completion before the next event.
type Controller struct {
	mu sync.Mutex

	test      model.Test
	questions []model.Question
	byKey     map[string]*model.Question

	attemptID    uuid.UUID
	studentID    int
	sessionStart time.Time

	phase          Phase
	trigger        SubmitTrigger
	cursor         int
	violationLimit int

	// runCtx scopes the countdown goroutine to the session, not to whichever
	// HTTP request happened to start it.
	runCtx    context.Context
	runCancel context.CancelFunc

	store     *answers.Store
	countdown *timer.Countdown
	monitor   *integrity.Monitor
	submitter Submitter
	hooks     Hooks
	log       zerolog.Logger
	now       func() time.Time
}

// NewController creates a session in the Loading phase.
func NewController(cfg Config) *Controller {
	runCtx, runCancel := context.WithCancel(context.Background())

	c := &Controller{
		test:           cfg.Test,
		questions:      cfg.Questions,
		byKey:          make(map[string]*model.Question, len(cfg.Questions)),
		attemptID:      cfg.AttemptID,
		studentID:      cfg.StudentID,
		sessionStart:   cfg.SessionStart,
		phase:          PhaseLoading,
		violationLimit: cfg.ViolationLimit,
		runCtx:         runCtx,
		runCancel:      runCancel,
		store:          answers.NewStore(),
		submitter:      cfg.Submitter,
		hooks:          cfg.Hooks,
		log: cfg.Log.With().
			Str("component", "session_controller").
			Str("attempt_id", cfg.AttemptID.String()).
			Logger(),
		now: time.Now,
	}

	for i := range cfg.Questions {
		c.byKey[answers.Key(cfg.Questions[i].ID)] = &cfg.Questions[i]
	}

	c.countdown = timer.New(cfg.Test.DurationMinutes, cfg.SessionStart, cfg.SnapshotStore, timer.Hooks{
		OnWarning:  c.onTimeWarning,
		OnCritical: c.onTimeCritical,
		OnExpired:  c.onTimerExpired,
	}, cfg.Log)

	c.monitor = integrity.NewMonitor(cfg.ViolationLimit, integrity.Hooks{
		OnWarning: c.onViolationWarning,
		OnLimit:   c.onViolationLimit,
		OnEvent:   c.onIntegrityEvent,
	}, cfg.Log)

	return c
}

// Begin transitions Loading → InProgress and starts the countdown and the
// integrity monitor. saved restores autosaved answers and priorViolations
// carries the count accumulated before a reload. The countdown runs on the
// controller's own lifetime: the caller's ctx only scopes the snapshot read,
// since the request that starts a session ends long before the session does.
func (c *Controller) Begin(ctx context.Context, saved map[string]model.Answer, priorViolations int) error {
	c.mu.Lock()
	if c.phase != PhaseLoading {
		c.mu.Unlock()
		return fmt.Errorf("begin from %s: %w", c.phase, ErrNotActive)
	}
	if len(saved) > 0 {
		c.store.Restore(saved)
	}
	c.phase = PhaseInProgress
	c.mu.Unlock()

	// Re-anchor to the persisted snapshot if one survived a previous run.
	if err := c.countdown.Restore(ctx); err != nil {
		c.log.Warn().Err(err).Msg("Snapshot restore failed, keeping the attempt start anchor")
	}

	c.monitor.Resume(priorViolations)
	c.monitor.Start()
	c.countdown.Start(c.runCtx)

	c.log.Info().
		Int("questions", len(c.questions)).
		Int("duration_minutes", c.test.DurationMinutes).
		Msg("Session started")

	// A session restored already at the violation limit goes straight back
	// into the forced submit its previous run failed to complete.
	if c.violationLimit > 0 && priorViolations >= c.violationLimit {
		c.log.Warn().Int("violations", priorViolations).Msg("Restored violation count at limit, forcing submission")
		if err := c.submit(context.Background(), TriggerViolationLimit); err != nil {
			c.log.Error().Err(err).Msg("Auto-submit on restored violation limit failed")
		}
	}
	return nil
}

// FailLoad marks the terminal load-failure state.
func (c *Controller) FailLoad() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase == PhaseLoading {
		c.phase = PhaseLoadFailed
	}
}

// MarkAlreadyAttempted marks the terminal already-attempted state,
// reachable only from Loading.
func (c *Controller) MarkAlreadyAttempted() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase == PhaseLoading {
		c.phase = PhaseAlreadyAttempted
	}
}

// Phase returns the current top-level state.
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Question returns the question at the cursor.
func (c *Controller) Question() *model.Question {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.questions) == 0 {
		return nil
	}
	q := c.questions[c.cursor]
	return &q
}

// Navigate moves the cursor to an absolute index. Navigation never changes
// the top-level phase.
func (c *Controller) Navigate(index int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != PhaseInProgress {
		return ErrNotActive
	}
	if index < 0 || index >= len(c.questions) {
		return ErrIndexOutOfRange
	}
	c.cursor = index
	return nil
}

// QuestionByKey resolves a normalized question key.
func (c *Controller) QuestionByKey(key string) (*model.Question, bool) {
	q, ok := c.byKey[key]
	return q, ok
}

// ApplyAnswer merges an answer patch for a question. No-op outside
// InProgress so late callbacks cannot mutate a terminal session.
func (c *Controller) ApplyAnswer(key string, a model.Answer) error {
	c.mu.Lock()
	if c.phase != PhaseInProgress {
		c.mu.Unlock()
		return ErrNotActive
	}
	if _, ok := c.byKey[key]; !ok {
		c.mu.Unlock()
		return fmt.Errorf("unknown question %q", key)
	}
	c.store.Set(key, a)
	stored, _ := c.store.Get(key)
	c.mu.Unlock()

	if c.hooks.OnAnswerSaved != nil {
		c.hooks.OnAnswerSaved(key, stored)
	}
	return nil
}

// AttachResults records a validation run on a code answer. This is the only
// path that populates CodeAnswer.Results.
func (c *Controller) AttachResults(key string, summary *model.TestRunSummary) error {
	c.mu.Lock()
	if c.phase != PhaseInProgress {
		c.mu.Unlock()
		return ErrNotActive
	}
	c.store.AttachResults(key, summary)
	stored, ok := c.store.Get(key)
	c.mu.Unlock()

	if ok && c.hooks.OnAnswerSaved != nil {
		c.hooks.OnAnswerSaved(key, stored)
	}
	return nil
}

// Answer returns the stored answer for a question key.
func (c *Controller) Answer(key string) (model.Answer, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Get(key)
}

// Observe forwards an integrity signal to the monitor.
func (c *Controller) Observe(sig integrity.Signal) {
	c.monitor.Observe(sig)
}

// CanSubmit reports whether every question has a qualifying answer. The
// final submit control is only enabled when this holds.
func (c *Controller) CanSubmit() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.CompletionCount(c.questions) == len(c.questions)
}

// State returns a view for reload/resume.
func (c *Controller) State() model.SessionStateView {
	c.mu.Lock()
	defer c.mu.Unlock()
	return model.SessionStateView{
		TestID:           c.test.ID,
		StudentID:        c.studentID,
		AutosavedAnswers: c.store.Snapshot(),
		RemainingSeconds: c.countdown.Remaining(),
		ViolationCount:   c.monitor.Violations(),
	}
}

// RequestSubmit is the explicit user submit action. It enforces the
// completion gate; the automatic triggers do not.
func (c *Controller) RequestSubmit(ctx context.Context) error {
	return c.submit(ctx, TriggerUser)
}

// submit is the single submission path. The phase check under the mutex is
// the re-entrant guard: Submitting is entered at most once even when the
// timer expires in the same instant the user clicks submit, and a duplicate
// call while a submission is in flight is a no-op.
func (c *Controller) submit(ctx context.Context, trigger SubmitTrigger) error {
	c.mu.Lock()
	switch c.phase {
	case PhaseSubmitting, PhaseSubmitted:
		c.mu.Unlock()
		return nil
	case PhaseInProgress:
		// proceed
	default:
		c.mu.Unlock()
		return ErrNotActive
	}

	if c.attemptID == uuid.Nil {
		c.mu.Unlock()
		return ErrMissingAttempt
	}
	if trigger == TriggerUser && c.store.CompletionCount(c.questions) != len(c.questions) {
		c.mu.Unlock()
		return ErrIncomplete
	}

	c.phase = PhaseSubmitting
	c.trigger = trigger
	payload := c.buildPayloadLocked()
	c.mu.Unlock()

	c.countdown.Stop()
	c.monitor.Stop()

	if trigger != TriggerUser && c.hooks.OnAutoSubmit != nil {
		c.hooks.OnAutoSubmit(trigger)
	}

	if err := c.submitter.Submit(ctx, payload); err != nil {
		c.mu.Lock()
		c.phase = PhaseInProgress
		c.trigger = ""
		c.mu.Unlock()

		// The countdown and monitor resume only when the student caused the
		// submit; after expiry or a violation limit they stay stopped.
		if trigger == TriggerUser {
			c.monitor.Start()
			c.countdown.Start(c.runCtx)
		}
		c.log.Warn().Err(err).Str("trigger", string(trigger)).Msg("Submission rejected")
		return fmt.Errorf("submit answers: %w", err)
	}

	c.mu.Lock()
	c.phase = PhaseSubmitted
	c.mu.Unlock()

	c.countdown.Teardown(ctx)

	c.log.Info().
		Str("trigger", string(trigger)).
		Int("answers", len(payload.Answers)).
		Int64("time_taken_ms", payload.TimeTakenMS).
		Msg("Session submitted")

	if c.hooks.OnSubmitted != nil {
		c.hooks.OnSubmitted(payload)
	}
	return nil
}

// buildPayloadLocked serializes the answer store. Unanswered questions are
// omitted rather than defaulted, so the grading side can tell "no answer"
// from an empty answer. Caller holds c.mu.
func (c *Controller) buildPayloadLocked() *model.SubmissionPayload {
	return &model.SubmissionPayload{
		AttemptID:   c.attemptID,
		TestID:      c.test.ID,
		StudentID:   c.studentID,
		TimeTakenMS: c.now().Sub(c.sessionStart).Milliseconds(),
		Answers:     c.store.Snapshot(),
	}
}

// Teardown stops the countdown and the monitor without clearing durable
// state, used on manager shutdown. Idempotent.
func (c *Controller) Teardown() {
	c.runCancel()
	c.countdown.Stop()
	c.monitor.Stop()
}

// ─── Component hooks ────────────────────────────────────────────────

func (c *Controller) onTimeWarning(remaining int) {
	if c.hooks.OnTimeWarning != nil {
		c.hooks.OnTimeWarning(remaining)
	}
}

func (c *Controller) onTimeCritical(remaining int) {
	if c.hooks.OnTimeCritical != nil {
		c.hooks.OnTimeCritical(remaining)
	}
}

func (c *Controller) onTimerExpired() {
	if err := c.submit(context.Background(), TriggerTimerExpired); err != nil {
		c.log.Error().Err(err).Msg("Auto-submit on expiry failed")
	}
}

func (c *Controller) onViolationWarning(count int) {
	if c.hooks.OnViolation != nil {
		c.hooks.OnViolation(count)
	}
}

func (c *Controller) onViolationLimit(count int) {
	c.log.Warn().Int("violations", count).Msg("Violation limit reached, forcing submission")
	if err := c.submit(context.Background(), TriggerViolationLimit); err != nil {
		c.log.Error().Err(err).Msg("Auto-submit on violation limit failed")
	}
}

func (c *Controller) onIntegrityEvent(ev integrity.Event) {
	if c.hooks.OnIntegrityEvent != nil {
		c.hooks.OnIntegrityEvent(ev)
	}
}
