package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/acadio/assess-backend/internal/answers"
	"github.com/acadio/assess-backend/internal/integrity"
	"github.com/acadio/assess-backend/internal/middleware"
	"github.com/acadio/assess-backend/internal/model"
	"github.com/acadio/assess-backend/internal/service"
	"github.com/acadio/assess-backend/internal/session"
	"github.com/acadio/assess-backend/internal/wsproto"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty allow-list permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams a live session: autosave and signals flow up, timer
// thresholds, violation warnings and submit outcomes flow down.
type WSHandler struct {
	sessions *service.SessionService
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(sessions *service.SessionService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		sessions: sessions,
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// SessionStream godoc
// WS /ws/v1/session/stream?token=...
// Upgrades to WebSocket for real-time autosave and session event pushes.
func (h *WSHandler) SessionStream(c *gin.Context) {
	claims := middleware.GetAttemptClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	ctrl, err := h.sessions.Acquire(c.Request.Context(), claims)
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "no active session for this attempt"})
		return
	}

	raw, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	conn := wsproto.Wrap(raw)
	defer conn.Close()

	wsLog := h.log.With().
		Int("student_id", claims.StudentID).
		Str("attempt_id", claims.AttemptID.String()).
		Logger()
	wsLog.Info().Msg("Student connected")

	// Fan session events out to this connection until it closes.
	events, cancel := h.sessions.Events().Subscribe(claims.AttemptID)
	defer cancel()

	go func() {
		for ev := range events {
			if err := writeEvent(conn, ev); err != nil {
				return
			}
		}
	}()

	for {
		var envelope wsproto.RequestEnvelope
		var rawMsg json.RawMessage
		if err := conn.ReadJSON(&rawMsg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Info().Msg("Student disconnected")
			}
			return
		}
		if err := json.Unmarshal(rawMsg, &envelope); err != nil {
			conn.WriteError("malformed message")
			continue
		}

		switch envelope.Action {
		case wsproto.ActionPing:
			conn.WriteTyped(wsproto.PongResponse{Event: wsproto.EventPong})

		case wsproto.ActionAutosave:
			h.handleAutosave(conn, ctrl, rawMsg)

		case wsproto.ActionSignal:
			var msg wsproto.SignalRequest
			if err := json.Unmarshal(rawMsg, &msg); err != nil {
				conn.WriteError("malformed signal")
				continue
			}
			ctrl.Observe(integrity.Signal(msg.Signal))

		case wsproto.ActionNavigate:
			var msg wsproto.NavigateRequest
			if err := json.Unmarshal(rawMsg, &msg); err != nil {
				conn.WriteError("malformed navigate")
				continue
			}
			if err := ctrl.Navigate(msg.Index); err != nil {
				conn.WriteError(err.Error())
			}

		case wsproto.ActionSubmit:
			if err := ctrl.RequestSubmit(c.Request.Context()); err != nil {
				conn.WriteError(err.Error())
				continue
			}
			conn.WriteTyped(wsproto.SubmittedResponse{
				Event:   wsproto.EventSubmitted,
				Trigger: string(session.TriggerUser),
			})

		default:
			conn.WriteError("unknown action")
		}
	}
}

func (h *WSHandler) handleAutosave(conn *wsproto.Conn, ctrl *session.Controller, rawMsg json.RawMessage) {
	var msg wsproto.AutosaveRequest
	if err := json.Unmarshal(rawMsg, &msg); err != nil {
		conn.WriteError("malformed autosave")
		return
	}

	key, q, ok := resolveQuestion(ctrl, msg.QuestionID)
	if !ok {
		conn.WriteError("unknown question")
		return
	}

	patch, err := buildAnswerPatch(q, &model.AnswerPatchRequest{
		Kind:     msg.Kind,
		Selected: msg.Selected,
		Text:     msg.Text,
		Source:   msg.Source,
		Language: msg.Language,
	})
	if err != nil {
		conn.WriteError(err.Error())
		return
	}

	if err := ctrl.ApplyAnswer(key, patch); err != nil {
		conn.WriteError(err.Error())
	}
	// The saved confirmation arrives through the event stream.
}

func resolveQuestion(ctrl *session.Controller, id string) (string, *model.Question, bool) {
	parsed, err := answers.ParseKey(id)
	if err != nil {
		return "", nil, false
	}
	key := answers.Key(parsed)
	q, ok := ctrl.QuestionByKey(key)
	return key, q, ok
}

func writeEvent(conn *wsproto.Conn, ev service.SessionEvent) error {
	switch ev.Kind {
	case service.EventKindSaved:
		return conn.WriteTyped(wsproto.SavedResponse{
			Event:      wsproto.EventSaved,
			QuestionID: ev.QuestionID,
			Answered:   ev.Answered,
		})
	case service.EventKindTimeWarning:
		return conn.WriteTyped(wsproto.TimeResponse{
			Event:            wsproto.EventTimeWarning,
			RemainingSeconds: ev.RemainingSeconds,
		})
	case service.EventKindTimeCritical:
		return conn.WriteTyped(wsproto.TimeResponse{
			Event:            wsproto.EventTimeCritical,
			RemainingSeconds: ev.RemainingSeconds,
		})
	case service.EventKindViolation:
		return conn.WriteTyped(wsproto.ViolationResponse{
			Event:      wsproto.EventViolation,
			Signal:     ev.Signal,
			Violations: ev.Violations,
			Limit:      ev.Limit,
		})
	case service.EventKindAutoSubmit:
		return conn.WriteTyped(wsproto.AutoSubmitResponse{
			Event:  wsproto.EventAutoSubmit,
			Reason: ev.Trigger,
		})
	case service.EventKindSubmitted:
		return conn.WriteTyped(wsproto.SubmittedResponse{
			Event:   wsproto.EventSubmitted,
			Trigger: ev.Trigger,
		})
	}
	return nil
}
