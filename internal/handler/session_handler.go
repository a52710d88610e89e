package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/acadio/assess-backend/internal/answers"
	"github.com/acadio/assess-backend/internal/grader"
	"github.com/acadio/assess-backend/internal/integrity"
	"github.com/acadio/assess-backend/internal/middleware"
	"github.com/acadio/assess-backend/internal/model"
	"github.com/acadio/assess-backend/internal/response"
	"github.com/acadio/assess-backend/internal/service"
	"github.com/acadio/assess-backend/internal/session"
	"github.com/acadio/assess-backend/internal/validator"
)

// SessionHandler serves the attempt lifecycle: start, paper, state, answer
// patches, code runs, violation reports and the final submit.
type SessionHandler struct {
	sessions  *service.SessionService
	validator *grader.Validator
	log       zerolog.Logger
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(sessions *service.SessionService, codeValidator *grader.Validator, log zerolog.Logger) *SessionHandler {
	return &SessionHandler{
		sessions:  sessions,
		validator: codeValidator,
		log:       log.With().Str("handler", "session").Logger(),
	}
}

// Start handles POST /tests/:testId/session.
// Idempotent: a reload returns the same attempt with restored state.
func (h *SessionHandler) Start(c *gin.Context) {
	testID, err := uuid.Parse(c.Param("testId"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.StartSessionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	result, err := h.sessions.StartSession(c.Request.Context(), testID, req.StudentID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrTestNotAvailable):
			response.Fail(c, http.StatusForbidden, response.ErrTestNotAvailable)
		case errors.Is(err, service.ErrAlreadyAttempted):
			response.Fail(c, http.StatusConflict, response.ErrAlreadyAttempted)
		default:
			h.log.Error().Err(err).Str("test_id", testID.String()).Msg("Start session failed")
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	response.Success(c, http.StatusOK, result)
}

// Paper handles GET /session/paper.
func (h *SessionHandler) Paper(c *gin.Context) {
	claims := middleware.GetAttemptClaims(c)

	paper, err := h.sessions.Paper(c.Request.Context(), claims.TestID)
	if err != nil {
		h.log.Error().Err(err).Msg("Load paper failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, paper)
}

// State handles GET /session/state. The remaining time is recomputed from
// the original start, so a reload never refills the clock.
func (h *SessionHandler) State(c *gin.Context) {
	ctrl, ok := h.acquire(c)
	if !ok {
		return
	}
	response.Success(c, http.StatusOK, ctrl.State())
}

// Navigate handles POST /session/navigate.
func (h *SessionHandler) Navigate(c *gin.Context) {
	ctrl, ok := h.acquire(c)
	if !ok {
		return
	}

	var req model.NavigateRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := ctrl.Navigate(req.Index); err != nil {
		switch {
		case errors.Is(err, session.ErrIndexOutOfRange):
			response.Fail(c, http.StatusBadRequest, response.ErrIndexOutOfRange)
		default:
			response.Fail(c, http.StatusConflict, response.ErrSessionNotActive)
		}
		return
	}
	response.Success(c, http.StatusOK, gin.H{"index": req.Index})
}

// PatchAnswer handles PATCH /session/answers/:questionId. The patch merges
// into any existing answer; a validated code answer keeps its results when
// only the source changes.
func (h *SessionHandler) PatchAnswer(c *gin.Context) {
	ctrl, key, q, ok := h.acquireQuestion(c)
	if !ok {
		return
	}

	var req model.AnswerPatchRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	a, err := buildAnswerPatch(q, &req)
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidPayload)
		return
	}

	if err := ctrl.ApplyAnswer(key, a); err != nil {
		response.Fail(c, http.StatusConflict, response.ErrSessionNotActive)
		return
	}

	stored, _ := ctrl.Answer(key)
	response.Success(c, http.StatusOK, stored)
}

// RunSample handles POST /session/questions/:questionId/run. It executes
// code once against arbitrary stdin and never touches the score.
func (h *SessionHandler) RunSample(c *gin.Context) {
	_, _, q, ok := h.acquireQuestion(c)
	if !ok {
		return
	}
	if q.QuestionType != model.QuestionTypeCode {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidPayload)
		return
	}

	var req model.RunSampleRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	result, err := h.validator.RunSample(c.Request.Context(), req.Source, req.Language, req.Stdin)
	if err != nil {
		h.log.Warn().Err(err).Msg("Sample run failed")
		response.Fail(c, http.StatusBadGateway, response.ErrSandboxFailure)
		return
	}
	response.Success(c, http.StatusOK, result)
}

// ValidateCode handles POST /session/questions/:questionId/validate. This is
// the only path that produces and attaches a scored run summary.
func (h *SessionHandler) ValidateCode(c *gin.Context) {
	ctrl, key, q, ok := h.acquireQuestion(c)
	if !ok {
		return
	}
	if q.QuestionType != model.QuestionTypeCode {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidPayload)
		return
	}

	var req model.ValidateCodeRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	// Store the source being graded, then attach the run outcome.
	patch := model.Answer{
		Kind: model.AnswerKindCode,
		Code: &model.CodeAnswer{Source: req.Source, Language: req.Language},
	}
	if err := ctrl.ApplyAnswer(key, patch); err != nil {
		response.Fail(c, http.StatusConflict, response.ErrSessionNotActive)
		return
	}

	summary, err := h.validator.ValidateAll(c.Request.Context(), req.Source, req.Language, q.TestCases)
	if err != nil {
		if errors.Is(err, grader.ErrNoTestCases) {
			response.Fail(c, http.StatusUnprocessableEntity, response.ErrNoTestCases)
			return
		}
		h.log.Error().Err(err).Msg("Validation run failed")
		response.Fail(c, http.StatusBadGateway, response.ErrSandboxFailure)
		return
	}

	if err := ctrl.AttachResults(key, summary); err != nil {
		response.Fail(c, http.StatusConflict, response.ErrSessionNotActive)
		return
	}
	response.Success(c, http.StatusOK, summary)
}

// ReportViolation handles POST /session/violations.
func (h *SessionHandler) ReportViolation(c *gin.Context) {
	ctrl, ok := h.acquire(c)
	if !ok {
		return
	}

	var req model.ViolationRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	ctrl.Observe(integrity.Signal(req.Signal))
	response.Success(c, http.StatusOK, gin.H{
		"violations": ctrl.State().ViolationCount,
	})
}

// Submit handles POST /session/submit, the explicit user submit. Automatic
// triggers bypass this endpoint entirely.
func (h *SessionHandler) Submit(c *gin.Context) {
	ctrl, ok := h.acquire(c)
	if !ok {
		return
	}

	if err := ctrl.RequestSubmit(c.Request.Context()); err != nil {
		switch {
		case errors.Is(err, session.ErrIncomplete):
			response.Fail(c, http.StatusConflict, response.ErrIncompleteAnswers)
		case errors.Is(err, session.ErrMissingAttempt):
			response.Fail(c, http.StatusConflict, response.ErrMissingAttempt)
		case errors.Is(err, session.ErrNotActive):
			response.Fail(c, http.StatusConflict, response.ErrSessionNotActive)
		default:
			h.log.Warn().Err(err).Msg("Submission rejected")
			response.Fail(c, http.StatusBadGateway, response.ErrSubmitRejected)
		}
		return
	}

	response.Success(c, http.StatusOK, gin.H{"phase": ctrl.Phase()})
}

// ─── Shared plumbing ────────────────────────────────────────────────

func (h *SessionHandler) acquire(c *gin.Context) (*session.Controller, bool) {
	return acquireSession(c, h.sessions, h.log)
}

func (h *SessionHandler) acquireQuestion(c *gin.Context) (*session.Controller, string, *model.Question, bool) {
	return acquireQuestion(c, h.sessions, h.log)
}

// acquireSession resolves the live controller behind the attempt token,
// rebuilding it from durable state after a restart.
func acquireSession(c *gin.Context, sessions *service.SessionService, log zerolog.Logger) (*session.Controller, bool) {
	claims := middleware.GetAttemptClaims(c)

	ctrl, err := sessions.Acquire(c.Request.Context(), claims)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrSessionNotFound):
			response.Fail(c, http.StatusNotFound, response.ErrSessionNotFound)
		case errors.Is(err, service.ErrAlreadyAttempted):
			response.Fail(c, http.StatusConflict, response.ErrAlreadyAttempted)
		default:
			log.Error().Err(err).Msg("Acquire session failed")
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return nil, false
	}
	return ctrl, true
}

func acquireQuestion(c *gin.Context, sessions *service.SessionService, log zerolog.Logger) (*session.Controller, string, *model.Question, bool) {
	ctrl, ok := acquireSession(c, sessions, log)
	if !ok {
		return nil, "", nil, false
	}

	questionID, err := uuid.Parse(c.Param("questionId"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return nil, "", nil, false
	}

	key := answers.Key(questionID)
	q, found := ctrl.QuestionByKey(key)
	if !found {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return nil, "", nil, false
	}
	return ctrl, key, q, true
}

// buildAnswerPatch maps a patch request onto the answer union, rejecting a
// kind that does not match the question's modality.
func buildAnswerPatch(q *model.Question, req *model.AnswerPatchRequest) (model.Answer, error) {
	kind := model.AnswerKind(req.Kind)

	expected := map[model.QuestionType]model.AnswerKind{
		model.QuestionTypeChoice:   model.AnswerKindChoice,
		model.QuestionTypeFreeText: model.AnswerKindText,
		model.QuestionTypeAudio:    model.AnswerKindAudio,
		model.QuestionTypeCode:     model.AnswerKindCode,
	}
	if expected[q.QuestionType] != kind {
		return model.Answer{}, errors.New("answer kind does not match question type")
	}

	a := model.Answer{Kind: kind}
	switch kind {
	case model.AnswerKindChoice:
		a.Choice = &model.ChoiceAnswer{Selected: req.Selected}
	case model.AnswerKindText:
		a.Text = &model.TextAnswer{Text: req.Text}
	case model.AnswerKindAudio:
		// Recording uploads go through the media endpoint; a patch can only
		// update the companion note.
		a.Audio = &model.AudioAnswer{Note: req.Note}
	case model.AnswerKindCode:
		a.Code = &model.CodeAnswer{Source: req.Source, Language: req.Language}
	}
	return a, nil
}
