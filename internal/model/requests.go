package model

// StartSessionRequest is the payload for starting (or resuming) an attempt.
type StartSessionRequest struct {
	StudentID int `json:"student_id" binding:"required,min=1"`
}

// AnswerPatchRequest is a partial answer update for one question. Fields are
// merged into any existing answer; absent fields are left untouched.
type AnswerPatchRequest struct {
	Kind     string `json:"kind" binding:"required,oneof=CHOICE TEXT AUDIO CODE"`
	Selected string `json:"selected" binding:"omitempty,max=10"`
	Text     string `json:"text" binding:"omitempty,max=20000"`
	Note     string `json:"note" binding:"omitempty,max=20000"`
	Source   string `json:"source" binding:"omitempty,max=100000"`
	Language string `json:"language" binding:"omitempty,max=32"`
}

// RunSampleRequest runs code against stdin once for quick iteration.
// It never affects the score.
type RunSampleRequest struct {
	Source   string `json:"source" binding:"required,max=100000"`
	Language string `json:"language" binding:"required,max=32"`
	Stdin    string `json:"stdin" binding:"omitempty,max=100000"`
}

// ValidateCodeRequest grades code against every test case of the question.
type ValidateCodeRequest struct {
	Source   string `json:"source" binding:"required,max=100000"`
	Language string `json:"language" binding:"required,max=32"`
}

// ViolationRequest reports one integrity signal from the client environment.
type ViolationRequest struct {
	Signal string `json:"signal" binding:"required,oneof=visibility_lost navigation_attempt copy cut paste context_menu selection"`
}

// NavigateRequest moves the session cursor to a question index.
type NavigateRequest struct {
	Index int `json:"index" binding:"min=0"`
}
