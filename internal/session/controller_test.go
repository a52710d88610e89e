package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/acadio/assess-backend/internal/answers"
	"github.com/acadio/assess-backend/internal/integrity"
	"github.com/acadio/assess-backend/internal/model"
	"github.com/acadio/assess-backend/internal/timer"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type fakeSnapshotStore struct {
	mu      sync.Mutex
	saved   int
	cleared int
}

func (f *fakeSnapshotStore) Save(context.Context, timer.Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved++
	return nil
}

func (f *fakeSnapshotStore) Load(context.Context) (timer.Snapshot, bool, error) {
	return timer.Snapshot{}, false, nil
}

func (f *fakeSnapshotStore) Clear(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared++
	return nil
}

func (f *fakeSnapshotStore) saves() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saved
}

type fakeSubmitter struct {
	mu       sync.Mutex
	payloads []*model.SubmissionPayload
	failures int
	delay    time.Duration
}

func (f *fakeSubmitter) Submit(_ context.Context, p *model.SubmissionPayload) error {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return errors.New("backend rejected submission")
	}
	f.payloads = append(f.payloads, p)
	return nil
}

func (f *fakeSubmitter) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.payloads)
}

func choiceQuestions(n int) []model.Question {
	qs := make([]model.Question, n)
	for i := range qs {
		qs[i] = model.Question{
			ID:           uuid.New(),
			QuestionType: model.QuestionTypeChoice,
			Prompt:       "pick one",
			OrderNum:     i,
			Options:      map[string]string{"A": "first", "B": "second"},
		}
	}
	return qs
}

func newTestController(t *testing.T, questions []model.Question, sub Submitter) *Controller {
	t.Helper()
	c := NewController(Config{
		Test:           model.Test{ID: uuid.New(), Title: "unit test", DurationMinutes: 10},
		Questions:      questions,
		AttemptID:      uuid.New(),
		StudentID:      7,
		SessionStart:   time.Now(),
		ViolationLimit: 2,
		SnapshotStore:  &fakeSnapshotStore{},
		Submitter:      sub,
		Log:            zerolog.Nop(),
	})
	if err := c.Begin(context.Background(), nil, 0); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	t.Cleanup(c.Teardown)
	return c
}

func answerChoice(t *testing.T, c *Controller, q model.Question, label string) {
	t.Helper()
	err := c.ApplyAnswer(answers.Key(q.ID), model.Answer{
		Kind:   model.AnswerKindChoice,
		Choice: &model.ChoiceAnswer{Selected: label},
	})
	if err != nil {
		t.Fatalf("ApplyAnswer: %v", err)
	}
}

func TestManualSubmitWithAllChoicesAnswered(t *testing.T) {
	qs := choiceQuestions(3)
	sub := &fakeSubmitter{}
	c := newTestController(t, qs, sub)

	start := time.Now().Add(-4 * time.Minute)
	c.mu.Lock()
	c.sessionStart = start
	c.mu.Unlock()

	for _, q := range qs {
		answerChoice(t, c, q, "B")
	}
	if !c.CanSubmit() {
		t.Fatal("submit gate closed with all questions answered")
	}

	if err := c.RequestSubmit(context.Background()); err != nil {
		t.Fatalf("RequestSubmit: %v", err)
	}
	if got := c.Phase(); got != PhaseSubmitted {
		t.Fatalf("phase = %s, want SUBMITTED", got)
	}

	p := sub.payloads[0]
	if len(p.Answers) != 3 {
		t.Fatalf("payload answers = %d, want 3", len(p.Answers))
	}
	for _, q := range qs {
		a, ok := p.Answers[answers.Key(q.ID)]
		if !ok {
			t.Fatalf("payload missing question key %s", answers.Key(q.ID))
		}
		if a.Kind != model.AnswerKindChoice || a.Code != nil {
			t.Errorf("unexpected answer variant: %+v", a)
		}
	}
	// Submitted at ~4 minutes elapsed of a 10 minute budget.
	if p.TimeTakenMS < 4*60*1000 || p.TimeTakenMS > 4*60*1000+5000 {
		t.Errorf("time_taken_ms = %d, want ≈240000", p.TimeTakenMS)
	}
}

func TestManualSubmitBlockedWhileIncomplete(t *testing.T) {
	qs := choiceQuestions(2)
	sub := &fakeSubmitter{}
	c := newTestController(t, qs, sub)

	answerChoice(t, c, qs[0], "A")

	if err := c.RequestSubmit(context.Background()); !errors.Is(err, ErrIncomplete) {
		t.Fatalf("err = %v, want ErrIncomplete", err)
	}
	if c.Phase() != PhaseInProgress || sub.calls() != 0 {
		t.Fatal("incomplete submit must not leave InProgress or reach the backend")
	}
}

func TestSubmitIsTerminalAndIdempotent(t *testing.T) {
	qs := choiceQuestions(1)
	sub := &fakeSubmitter{}
	c := newTestController(t, qs, sub)
	answerChoice(t, c, qs[0], "A")

	if err := c.RequestSubmit(context.Background()); err != nil {
		t.Fatalf("RequestSubmit: %v", err)
	}

	// Every later event must be a no-op.
	if err := c.RequestSubmit(context.Background()); err != nil {
		t.Fatalf("duplicate submit must be a no-op, got %v", err)
	}
	c.Observe(integrity.SignalVisibilityLost)
	c.Observe(integrity.SignalVisibilityLost)
	c.onTimerExpired()
	if err := c.ApplyAnswer(answers.Key(qs[0].ID), model.Answer{
		Kind:   model.AnswerKindChoice,
		Choice: &model.ChoiceAnswer{Selected: "B"},
	}); !errors.Is(err, ErrNotActive) {
		t.Fatalf("mutation after submit: err = %v, want ErrNotActive", err)
	}

	if sub.calls() != 1 {
		t.Fatalf("submitter called %d times, want 1", sub.calls())
	}
	if got := sub.payloads[0].Answers[answers.Key(qs[0].ID)].Choice.Selected; got != "A" {
		t.Errorf("payload mutated after submit: %s", got)
	}
}

func TestViolationLimitForcesSingleSubmit(t *testing.T) {
	qs := choiceQuestions(2)
	sub := &fakeSubmitter{}
	c := newTestController(t, qs, sub)
	answerChoice(t, c, qs[0], "A") // deliberately incomplete

	c.Observe(integrity.SignalVisibilityLost)
	if c.Phase() != PhaseInProgress {
		t.Fatal("one violation must not end the session")
	}

	c.Observe(integrity.SignalVisibilityLost)
	// A third violation arriving right after the limit must change nothing.
	c.Observe(integrity.SignalVisibilityLost)

	if got := c.Phase(); got != PhaseSubmitted {
		t.Fatalf("phase = %s, want SUBMITTED", got)
	}
	if sub.calls() != 1 {
		t.Fatalf("submitter called %d times, want 1", sub.calls())
	}
	// Auto-submit carries whatever answers exist, bypassing the gate.
	if len(sub.payloads[0].Answers) != 1 {
		t.Errorf("payload answers = %d, want 1", len(sub.payloads[0].Answers))
	}
}

func TestTimerExpiryForcesSubmit(t *testing.T) {
	qs := choiceQuestions(3)
	sub := &fakeSubmitter{}
	c := newTestController(t, qs, sub)

	c.onTimerExpired()

	if got := c.Phase(); got != PhaseSubmitted {
		t.Fatalf("phase = %s, want SUBMITTED", got)
	}
	if sub.calls() != 1 {
		t.Fatalf("submitter called %d times, want 1", sub.calls())
	}
	if len(sub.payloads[0].Answers) != 0 {
		t.Errorf("payload answers = %d, want 0 (nothing was answered)", len(sub.payloads[0].Answers))
	}
}

func TestConcurrentTriggersEnterSubmittingOnce(t *testing.T) {
	qs := choiceQuestions(1)
	sub := &fakeSubmitter{delay: 30 * time.Millisecond}
	c := newTestController(t, qs, sub)
	answerChoice(t, c, qs[0], "A")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_ = c.RequestSubmit(context.Background())
	}()
	go func() {
		defer wg.Done()
		c.onTimerExpired()
	}()
	wg.Wait()

	if sub.calls() != 1 {
		t.Fatalf("submitter called %d times, want 1", sub.calls())
	}
	if c.Phase() != PhaseSubmitted {
		t.Fatalf("phase = %s, want SUBMITTED", c.Phase())
	}
}

func TestRejectedSubmitIsRetryable(t *testing.T) {
	qs := choiceQuestions(1)
	sub := &fakeSubmitter{failures: 1}
	c := newTestController(t, qs, sub)
	answerChoice(t, c, qs[0], "A")

	if err := c.RequestSubmit(context.Background()); err == nil {
		t.Fatal("expected first submit to fail")
	}
	if got := c.Phase(); got != PhaseInProgress {
		t.Fatalf("phase after rejection = %s, want IN_PROGRESS", got)
	}
	if _, ok := c.Answer(answers.Key(qs[0].ID)); !ok {
		t.Fatal("answers lost on rejected submit")
	}

	if err := c.RequestSubmit(context.Background()); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if c.Phase() != PhaseSubmitted {
		t.Fatalf("phase = %s, want SUBMITTED", c.Phase())
	}
}

func TestMissingAttemptBlocksSubmitWithoutDiscardingState(t *testing.T) {
	qs := choiceQuestions(1)
	sub := &fakeSubmitter{}
	c := NewController(Config{
		Test:          model.Test{ID: uuid.New(), DurationMinutes: 10},
		Questions:     qs,
		AttemptID:     uuid.Nil,
		StudentID:     7,
		SessionStart:  time.Now(),
		SnapshotStore: &fakeSnapshotStore{},
		Submitter:     sub,
		Log:           zerolog.Nop(),
	})
	if err := c.Begin(context.Background(), nil, 0); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	answerChoice(t, c, qs[0], "A")

	if err := c.RequestSubmit(context.Background()); !errors.Is(err, ErrMissingAttempt) {
		t.Fatalf("err = %v, want ErrMissingAttempt", err)
	}
	if c.Phase() != PhaseInProgress || sub.calls() != 0 {
		t.Fatal("missing attempt must block submit without ending the session")
	}
	if _, ok := c.Answer(answers.Key(qs[0].ID)); !ok {
		t.Fatal("answers discarded on precondition failure")
	}
}

func TestNavigationBounds(t *testing.T) {
	qs := choiceQuestions(3)
	c := newTestController(t, qs, &fakeSubmitter{})

	if err := c.Navigate(2); err != nil {
		t.Fatalf("Navigate(2): %v", err)
	}
	if got := c.Question().OrderNum; got != 2 {
		t.Errorf("cursor at %d, want 2", got)
	}
	if err := c.Navigate(3); !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("Navigate(3) err = %v, want ErrIndexOutOfRange", err)
	}
	if err := c.Navigate(-1); !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("Navigate(-1) err = %v, want ErrIndexOutOfRange", err)
	}
	if c.Phase() != PhaseInProgress {
		t.Error("navigation changed the top-level phase")
	}
}

func TestAlreadyAttemptedReachableOnlyFromLoading(t *testing.T) {
	qs := choiceQuestions(1)
	c := NewController(Config{
		Test:          model.Test{ID: uuid.New(), DurationMinutes: 10},
		Questions:     qs,
		AttemptID:     uuid.New(),
		SessionStart:  time.Now(),
		SnapshotStore: &fakeSnapshotStore{},
		Submitter:     &fakeSubmitter{},
		Log:           zerolog.Nop(),
	})

	c.MarkAlreadyAttempted()
	if got := c.Phase(); got != PhaseAlreadyAttempted {
		t.Fatalf("phase = %s, want ALREADY_ATTEMPTED", got)
	}
	if err := c.Begin(context.Background(), nil, 0); err == nil {
		t.Fatal("Begin must fail from a terminal phase")
	}

	c2 := newTestController(t, qs, &fakeSubmitter{})
	c2.MarkAlreadyAttempted() // no-op outside Loading
	if c2.Phase() != PhaseInProgress {
		t.Error("MarkAlreadyAttempted must be a no-op once in progress")
	}
}

func TestCountdownOutlivesCallerContext(t *testing.T) {
	qs := choiceQuestions(1)
	store := &fakeSnapshotStore{}
	c := NewController(Config{
		Test:          model.Test{ID: uuid.New(), DurationMinutes: 10},
		Questions:     qs,
		AttemptID:     uuid.New(),
		StudentID:     7,
		SessionStart:  time.Now(),
		SnapshotStore: store,
		Submitter:     &fakeSubmitter{},
		Log:           zerolog.Nop(),
	})
	t.Cleanup(c.Teardown)

	reqCtx, cancel := context.WithCancel(context.Background())
	if err := c.Begin(reqCtx, nil, 0); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	// The start request finishes; the session must keep ticking without it.
	cancel()

	time.Sleep(2500 * time.Millisecond)
	if got := store.saves(); got < 2 {
		t.Fatalf("snapshot saves after caller context ended = %d, want >= 2", got)
	}
	if got := c.Phase(); got != PhaseInProgress {
		t.Fatalf("phase = %s, want IN_PROGRESS", got)
	}
}

func TestBeginAtViolationLimitForcesSubmit(t *testing.T) {
	qs := choiceQuestions(2)
	sub := &fakeSubmitter{}
	c := NewController(Config{
		Test:           model.Test{ID: uuid.New(), DurationMinutes: 10},
		Questions:      qs,
		AttemptID:      uuid.New(),
		StudentID:      7,
		SessionStart:   time.Now(),
		ViolationLimit: 2,
		SnapshotStore:  &fakeSnapshotStore{},
		Submitter:      sub,
		Log:            zerolog.Nop(),
	})
	t.Cleanup(c.Teardown)

	// A reload that comes back with the count already at the limit means the
	// previous run's forced submit never landed. It must not reopen.
	if err := c.Begin(context.Background(), nil, 2); err != nil {
		t.Fatalf("Begin: %v", err)
	}

	if got := c.Phase(); got != PhaseSubmitted {
		t.Fatalf("phase = %s, want SUBMITTED", got)
	}
	if sub.calls() != 1 {
		t.Fatalf("submitter called %d times, want 1", sub.calls())
	}

	c.Observe(integrity.SignalVisibilityLost)
	if sub.calls() != 1 {
		t.Fatal("violation after forced submit must change nothing")
	}
}

func TestBeginRestoresAutosavedState(t *testing.T) {
	qs := choiceQuestions(2)
	sub := &fakeSubmitter{}
	c := NewController(Config{
		Test:           model.Test{ID: uuid.New(), DurationMinutes: 10},
		Questions:      qs,
		AttemptID:      uuid.New(),
		StudentID:      7,
		SessionStart:   time.Now().Add(-3 * time.Minute),
		ViolationLimit: 2,
		SnapshotStore:  &fakeSnapshotStore{},
		Submitter:      sub,
		Log:            zerolog.Nop(),
	})

	saved := map[string]model.Answer{
		answers.Key(qs[0].ID): {Kind: model.AnswerKindChoice, Choice: &model.ChoiceAnswer{Selected: "A"}},
	}
	if err := c.Begin(context.Background(), saved, 1); err != nil {
		t.Fatalf("Begin: %v", err)
	}

	state := c.State()
	if len(state.AutosavedAnswers) != 1 {
		t.Errorf("restored answers = %d, want 1", len(state.AutosavedAnswers))
	}
	if state.ViolationCount != 1 {
		t.Errorf("restored violations = %d, want 1", state.ViolationCount)
	}
	// 3 minutes elapsed of 10: remaining ≈ 420s, not a reset 600s.
	if state.RemainingSeconds > 421 || state.RemainingSeconds < 415 {
		t.Errorf("remaining = %d, want ≈420", state.RemainingSeconds)
	}

	// One more violation reaches the limit of 2.
	c.Observe(integrity.SignalVisibilityLost)
	if c.Phase() != PhaseSubmitted {
		t.Errorf("phase = %s, want SUBMITTED after restored count reached limit", c.Phase())
	}
}
