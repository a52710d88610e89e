package wsproto

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAutosave Action = "autosave"
	ActionSignal   Action = "signal"
	ActionNavigate Action = "navigate"
	ActionSubmit   Action = "submit"
	ActionPing     Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// AutosaveRequest is sent by the client to save a single answer.
type AutosaveRequest struct {
	Action     Action `json:"action"`
	QuestionID string `json:"question_id"`
	Kind       string `json:"kind"`
	Selected   string `json:"selected,omitempty"`
	Text       string `json:"text,omitempty"`
	Source     string `json:"source,omitempty"`
	Language   string `json:"language,omitempty"`
}

// SignalRequest is sent by the client to report an integrity signal.
type SignalRequest struct {
	Action Action `json:"action"`
	Signal string `json:"signal"`
}

// NavigateRequest is sent by the client when the focused question changes.
type NavigateRequest struct {
	Action Action `json:"action"`
	Index  int    `json:"index"`
}

// SubmitRequest is sent by the client to finish the session.
type SubmitRequest struct {
	Action Action `json:"action"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError        Event = "error"
	EventSaved        Event = "saved"
	EventSubmitted    Event = "submitted"
	EventAutoSubmit   Event = "auto_submit"
	EventTimeWarning  Event = "time_warning"
	EventTimeCritical Event = "time_critical"
	EventViolation    Event = "violation_warning"
	EventPong         Event = "pong"
)

type SavedResponse struct {
	Event      Event  `json:"event"`
	QuestionID string `json:"question_id"`
	Answered   int    `json:"answered"`
}

type SubmittedResponse struct {
	Event   Event  `json:"event"`
	Trigger string `json:"trigger"`
}

type AutoSubmitResponse struct {
	Event  Event  `json:"event"`
	Reason string `json:"reason"`
}

type TimeResponse struct {
	Event            Event `json:"event"`
	RemainingSeconds int   `json:"remaining_seconds"`
}

type ViolationResponse struct {
	Event      Event  `json:"event"`
	Signal     string `json:"signal"`
	Violations int    `json:"violations"`
	Limit      int    `json:"limit"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
