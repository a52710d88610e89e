package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/acadio/assess-backend/internal/config"
	"github.com/acadio/assess-backend/internal/integrity"
	"github.com/acadio/assess-backend/internal/model"
	"github.com/acadio/assess-backend/internal/repository"
	"github.com/acadio/assess-backend/internal/session"
	"github.com/acadio/assess-backend/internal/timer"
	"github.com/acadio/assess-backend/internal/token"
)

// Sentinel errors surfaced to the handler layer.
var (
	ErrTestNotAvailable = errors.New("test is not available")
	ErrAlreadyAttempted = errors.New("test already attempted")
	ErrSessionNotFound  = errors.New("no live session for attempt")
)

// SessionService orchestrates attempt lifecycle: idempotent start, live
// controller registry, state resume and the durable side of autosave and
// violation reporting.
type SessionService struct {
	testRepo     *repository.TestRepository
	questionRepo *repository.QuestionRepository
	attemptRepo  *repository.AttemptRepository
	rdb          *redis.Client
	issuer       *token.Issuer
	manager      *session.Manager
	events       *Broadcaster
	cfg          *config.Config
	log          zerolog.Logger
}

// NewSessionService creates a new SessionService.
func NewSessionService(
	testRepo *repository.TestRepository,
	questionRepo *repository.QuestionRepository,
	attemptRepo *repository.AttemptRepository,
	rdb *redis.Client,
	issuer *token.Issuer,
	manager *session.Manager,
	events *Broadcaster,
	cfg *config.Config,
	log zerolog.Logger,
) *SessionService {
	return &SessionService{
		testRepo:     testRepo,
		questionRepo: questionRepo,
		attemptRepo:  attemptRepo,
		rdb:          rdb,
		issuer:       issuer,
		manager:      manager,
		events:       events,
		cfg:          cfg,
		log:          log.With().Str("component", "session_service").Logger(),
	}
}

// StartResult is returned from StartSession: the attempt token the client
// must present on every later call, the student-safe paper and the resume
// state (empty on a fresh start).
type StartResult struct {
	Attempt *model.Attempt         `json:"attempt"`
	Token   string                 `json:"token"`
	Paper   model.TestPayload      `json:"paper"`
	State   model.SessionStateView `json:"state"`
}

// StartSession is the idempotent session entry point. A fresh call creates
// the attempt and a live controller; a reload re-acquires or rebuilds the
// controller with restored answers, remaining time and violation count.
// A completed attempt returns ErrAlreadyAttempted.
func (s *SessionService) StartSession(ctx context.Context, testID uuid.UUID, studentID int) (*StartResult, error) {
	test, questions, err := s.loadTest(ctx, testID)
	if err != nil {
		return nil, err
	}
	if test.Status != model.TestStatusPublished {
		return nil, ErrTestNotAvailable
	}

	attempt, err := s.attemptRepo.Create(ctx, &model.Attempt{TestID: testID, StudentID: studentID})
	if err != nil {
		return nil, fmt.Errorf("create attempt: %w", err)
	}
	if attempt.Status == model.AttemptStatusCompleted {
		return nil, ErrAlreadyAttempted
	}

	// Keep the original start cached; DB and Redis carry the same instant so
	// remaining-time math survives reloads on any device.
	startKey := config.CacheKey.AttemptStartKey(testID.String(), studentID)
	if err := s.rdb.Set(ctx, startKey, attempt.StartedAt.Unix(), 0).Err(); err != nil {
		s.log.Warn().Err(err).Msg("Failed to cache attempt start time")
	}

	ctrl, err := s.buildController(ctx, test, questions, attempt)
	if err != nil {
		return nil, err
	}
	s.manager.Put(attempt.ID, ctrl)

	signed, err := s.issuer.Issue(attempt.ID, testID, studentID)
	if err != nil {
		return nil, fmt.Errorf("issue attempt token: %w", err)
	}

	return &StartResult{
		Attempt: attempt,
		Token:   signed,
		Paper:   buildPaper(test, questions),
		State:   ctrl.State(),
	}, nil
}

// Acquire returns the live controller for an attempt. After a process
// restart the registry is empty, so the controller is rebuilt from the
// durable state the claims point at.
func (s *SessionService) Acquire(ctx context.Context, claims *token.Claims) (*session.Controller, error) {
	if ctrl, ok := s.manager.Get(claims.AttemptID); ok {
		return ctrl, nil
	}

	attempt, err := s.attemptRepo.GetByTestAndStudent(ctx, claims.TestID, claims.StudentID)
	if err != nil {
		if errors.Is(err, repository.ErrAttemptNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("load attempt: %w", err)
	}
	if attempt.ID != claims.AttemptID {
		return nil, ErrSessionNotFound
	}
	if attempt.Status == model.AttemptStatusCompleted {
		return nil, ErrAlreadyAttempted
	}

	test, questions, err := s.loadTest(ctx, claims.TestID)
	if err != nil {
		return nil, err
	}

	ctrl, err := s.buildController(ctx, test, questions, attempt)
	if err != nil {
		return nil, err
	}
	s.manager.Put(attempt.ID, ctrl)
	return ctrl, nil
}

// buildController assembles a controller and takes it to InProgress with
// whatever autosaved answers and violations the previous run left behind.
func (s *SessionService) buildController(ctx context.Context, test *model.Test, questions []model.Question, attempt *model.Attempt) (*session.Controller, error) {
	attemptID := attempt.ID
	testID := test.ID
	studentID := attempt.StudentID

	ctrl := session.NewController(session.Config{
		Test:           *test,
		Questions:      questions,
		AttemptID:      attemptID,
		StudentID:      studentID,
		SessionStart:   attempt.StartedAt,
		ViolationLimit: s.cfg.ViolationLimit,
		SnapshotStore:  timer.NewRedisSnapshotStore(s.rdb, testID.String(), studentID),
		Submitter:      NewQueueSubmitter(s.rdb, s.log),
		Hooks: session.Hooks{
			OnAnswerSaved: func(key string, a model.Answer) {
				s.persistAnswer(testID, studentID, attemptID, key, a)
			},
			OnIntegrityEvent: func(ev integrity.Event) {
				s.persistViolation(testID, studentID, attemptID, ev)
			},
			OnViolation: func(count int) {
				s.events.Publish(attemptID, SessionEvent{
					Kind:       EventKindViolation,
					Violations: count,
					Limit:      s.cfg.ViolationLimit,
				})
			},
			OnTimeWarning: func(remaining int) {
				s.events.Publish(attemptID, SessionEvent{Kind: EventKindTimeWarning, RemainingSeconds: remaining})
			},
			OnTimeCritical: func(remaining int) {
				s.events.Publish(attemptID, SessionEvent{Kind: EventKindTimeCritical, RemainingSeconds: remaining})
			},
			OnAutoSubmit: func(trigger session.SubmitTrigger) {
				s.events.Publish(attemptID, SessionEvent{Kind: EventKindAutoSubmit, Trigger: string(trigger)})
			},
			OnSubmitted: func(payload *model.SubmissionPayload) {
				s.events.Publish(attemptID, SessionEvent{Kind: EventKindSubmitted})
				// Keep the terminal controller around briefly so open streams
				// can read the outcome, then let it go.
				s.ReleaseAfter(attemptID, time.Minute)
			},
		},
		Log: s.log,
	})

	saved, err := s.loadSavedAnswers(ctx, testID, studentID)
	if err != nil {
		ctrl.FailLoad()
		return nil, fmt.Errorf("restore answers: %w", err)
	}
	prior, err := s.loadViolationCount(ctx, testID, studentID)
	if err != nil {
		ctrl.FailLoad()
		return nil, fmt.Errorf("restore violations: %w", err)
	}

	if err := ctrl.Begin(ctx, saved, prior); err != nil {
		return nil, err
	}
	return ctrl, nil
}

// ─── Durable side of the hooks ──────────────────────────────────────

type answerQueueItem struct {
	AttemptID  string `json:"attempt_id"`
	TestID     string `json:"test_id"`
	StudentID  int    `json:"student_id"`
	QuestionID string `json:"question_id"`
	Answer     string `json:"answer"` // JSON-encoded model.Answer
}

func (s *SessionService) persistAnswer(testID uuid.UUID, studentID int, attemptID uuid.UUID, key string, a model.Answer) {
	ctx := context.Background()

	raw, err := json.Marshal(a)
	if err != nil {
		s.log.Error().Err(err).Str("question_id", key).Msg("Marshal answer failed")
		return
	}

	// Hot copy for reload, queue entry for the database worker.
	hashKey := config.CacheKey.StudentAnswersKey(testID.String(), studentID)
	if err := s.rdb.HSet(ctx, hashKey, key, raw).Err(); err != nil {
		s.log.Error().Err(err).Msg("Autosave cache write failed")
	}

	item, _ := json.Marshal(answerQueueItem{
		AttemptID:  attemptID.String(),
		TestID:     testID.String(),
		StudentID:  studentID,
		QuestionID: key,
		Answer:     string(raw),
	})
	if err := s.rdb.RPush(ctx, config.WorkerKey.PersistAnswersQueue, item).Err(); err != nil {
		s.log.Error().Err(err).Msg("Autosave enqueue failed")
	}

	if ctrl, ok := s.manager.Get(attemptID); ok {
		s.events.Publish(attemptID, SessionEvent{
			Kind:       EventKindSaved,
			QuestionID: key,
			Answered:   len(ctrl.State().AutosavedAnswers),
		})
	}
}

type violationQueueItem struct {
	AttemptID string `json:"attempt_id"`
	TestID    string `json:"test_id"`
	StudentID int    `json:"student_id"`
	Signal    string `json:"signal"`
	Timestamp int64  `json:"timestamp"`
}

func (s *SessionService) persistViolation(testID uuid.UUID, studentID int, attemptID uuid.UUID, ev integrity.Event) {
	ctx := context.Background()

	// The counted total is cached so a reload resumes at the same strike count.
	countKey := config.CacheKey.ViolationCountKey(testID.String(), studentID)
	if err := s.rdb.Set(ctx, countKey, ev.Violations, 0).Err(); err != nil {
		s.log.Error().Err(err).Msg("Violation count cache write failed")
	}

	item, _ := json.Marshal(violationQueueItem{
		AttemptID: attemptID.String(),
		TestID:    testID.String(),
		StudentID: studentID,
		Signal:    string(ev.Signal),
		Timestamp: ev.At.Unix(),
	})
	if err := s.rdb.RPush(ctx, config.WorkerKey.PersistViolationsQueue, item).Err(); err != nil {
		s.log.Error().Err(err).Msg("Violation enqueue failed")
	}
}

// ─── Cached test payload with PostgreSQL failover ───────────────────

// loadTest returns the test and its full question set (correct data and
// hidden cases included; stripping happens at the paper boundary). The set
// is cached in Redis and self-heals from PostgreSQL on a miss.
func (s *SessionService) loadTest(ctx context.Context, testID uuid.UUID) (*model.Test, []model.Question, error) {
	test, err := s.testRepo.GetByID(ctx, testID)
	if err != nil {
		return nil, nil, fmt.Errorf("get test: %w", err)
	}

	payloadKey := config.CacheKey.TestPayloadKey(testID.String())
	raw, err := s.rdb.Get(ctx, payloadKey).Bytes()
	if err == nil {
		var questions []model.Question
		if jsonErr := json.Unmarshal(raw, &questions); jsonErr == nil {
			return test, questions, nil
		}
		// Corrupt cache entry, fall through to the database.
		s.log.Warn().Str("test_id", testID.String()).Msg("Discarding corrupt cached payload")
	} else if err != redis.Nil {
		return nil, nil, fmt.Errorf("redis error getting payload: %w", err)
	}

	questions, err := s.questionRepo.ListByTest(ctx, testID)
	if err != nil {
		return nil, nil, fmt.Errorf("list questions: %w", err)
	}

	// Self-heal: next request hits the cache.
	if data, jsonErr := json.Marshal(questions); jsonErr == nil {
		_ = s.rdb.Set(ctx, payloadKey, data, 0)
		_ = s.rdb.Set(ctx, config.CacheKey.TestDurationKey(testID.String()), strconv.Itoa(test.DurationMinutes), 0)
	}
	return test, questions, nil
}

// PrewarmCaches loads every published test's question payload into Redis.
// Called once on startup so the first student of the day is not the one
// paying the database round trip.
func (s *SessionService) PrewarmCaches(ctx context.Context) {
	tests, err := s.testRepo.ListPublished(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("Cache prewarm skipped")
		return
	}
	for _, t := range tests {
		if _, _, err := s.loadTest(ctx, t.ID); err != nil {
			s.log.Warn().Err(err).Str("test_id", t.ID.String()).Msg("Prewarm failed for test")
		}
	}
	s.log.Info().Int("tests", len(tests)).Msg("Test payload caches prewarmed")
}

func (s *SessionService) loadSavedAnswers(ctx context.Context, testID uuid.UUID, studentID int) (map[string]model.Answer, error) {
	hashKey := config.CacheKey.StudentAnswersKey(testID.String(), studentID)
	raw, err := s.rdb.HGetAll(ctx, hashKey).Result()
	if err != nil {
		return nil, err
	}

	saved := make(map[string]model.Answer, len(raw))
	for key, val := range raw {
		var a model.Answer
		if err := json.Unmarshal([]byte(val), &a); err != nil {
			s.log.Warn().Str("question_id", key).Msg("Dropping undecodable autosaved answer")
			continue
		}
		saved[key] = a
	}
	return saved, nil
}

func (s *SessionService) loadViolationCount(ctx context.Context, testID uuid.UUID, studentID int) (int, error) {
	countKey := config.CacheKey.ViolationCountKey(testID.String(), studentID)
	val, err := s.rdb.Get(ctx, countKey).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	count, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid violation count in cache: %w", err)
	}
	return count, nil
}

// Paper returns the student-safe question set for a test.
func (s *SessionService) Paper(ctx context.Context, testID uuid.UUID) (model.TestPayload, error) {
	test, questions, err := s.loadTest(ctx, testID)
	if err != nil {
		return model.TestPayload{}, err
	}
	return buildPaper(test, questions), nil
}

// Events exposes the broadcaster for the streaming handler.
func (s *SessionService) Events() *Broadcaster {
	return s.events
}

func buildPaper(test *model.Test, questions []model.Question) model.TestPayload {
	paper := model.TestPayload{
		TestID:          test.ID,
		Title:           test.Title,
		DurationMinutes: test.DurationMinutes,
		Questions:       make([]model.QuestionForStudent, 0, len(questions)),
	}
	for i := range questions {
		paper.Questions = append(paper.Questions, questions[i].ForStudent())
	}
	return paper
}

// ReleaseAfter removes a terminal controller from the registry after the
// grace period the streaming layer needs to flush its last events.
func (s *SessionService) ReleaseAfter(attemptID uuid.UUID, d time.Duration) {
	go func() {
		time.Sleep(d)
		s.manager.Remove(attemptID)
	}()
}
