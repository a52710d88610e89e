package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/acadio/assess-backend/internal/model"
	"github.com/acadio/assess-backend/internal/response"
	"github.com/acadio/assess-backend/internal/service"
)

// AudioHandler accepts recorded spoken responses and attaches them to the
// session's answer for the question.
type AudioHandler struct {
	sessions *service.SessionService
	media    *service.MediaService
	log      zerolog.Logger
}

// NewAudioHandler creates a new AudioHandler.
func NewAudioHandler(sessions *service.SessionService, media *service.MediaService, log zerolog.Logger) *AudioHandler {
	return &AudioHandler{
		sessions: sessions,
		media:    media,
		log:      log.With().Str("handler", "audio").Logger(),
	}
}

// Upload handles POST /session/questions/:questionId/audio. A re-recording
// replaces the previous file reference; any companion note is kept.
func (h *AudioHandler) Upload(c *gin.Context) {
	ctrl, key, q, ok := acquireQuestion(c, h.sessions, h.log)
	if !ok {
		return
	}
	if q.QuestionType != model.QuestionTypeAudio {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidPayload)
		return
	}

	fileHeader, err := c.FormFile("recording")
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrFileRequired)
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrFileRequired)
		return
	}
	defer file.Close()

	path, err := h.media.SaveRecording(file, fileHeader)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUnsupportedFileType):
			response.Fail(c, http.StatusUnsupportedMediaType, response.ErrUnsupportedFile)
		case errors.Is(err, service.ErrFileTooLarge):
			response.Fail(c, http.StatusRequestEntityTooLarge, response.ErrFileTooLarge)
		default:
			h.log.Error().Err(err).Msg("Recording save failed")
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	patch := model.Answer{
		Kind: model.AnswerKindAudio,
		Audio: &model.AudioAnswer{
			Path: path,
			MIME: fileHeader.Header.Get("Content-Type"),
			Note: c.PostForm("note"),
		},
	}
	if err := ctrl.ApplyAnswer(key, patch); err != nil {
		response.Fail(c, http.StatusConflict, response.ErrSessionNotActive)
		return
	}

	stored, _ := ctrl.Answer(key)
	response.Success(c, http.StatusOK, stored)
}
