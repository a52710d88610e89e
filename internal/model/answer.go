package model

// AnswerKind tags the variant carried by an Answer.
type AnswerKind string

const (
	AnswerKindChoice AnswerKind = "CHOICE"
	AnswerKindText   AnswerKind = "TEXT"
	AnswerKindAudio  AnswerKind = "AUDIO"
	AnswerKindCode   AnswerKind = "CODE"
)

// Answer is the tagged union of per-question responses. Exactly one variant
// field is populated, matching Kind. Answers are always keyed by the
// canonical string form of the question ID.
type Answer struct {
	Kind   AnswerKind    `json:"kind"`
	Choice *ChoiceAnswer `json:"choice,omitempty"`
	Text   *TextAnswer   `json:"text,omitempty"`
	Audio  *AudioAnswer  `json:"audio,omitempty"`
	Code   *CodeAnswer   `json:"code,omitempty"`
}

// ChoiceAnswer holds the selected option label.
type ChoiceAnswer struct {
	Selected string `json:"selected"`
}

// TextAnswer holds a raw free-text response.
type TextAnswer struct {
	Text string `json:"text"`
}

// AudioAnswer references the recorded blob for a question. Note carries the
// optional free-text companion response on speaking questions.
type AudioAnswer struct {
	Path string `json:"path"`
	MIME string `json:"mime"`
	Note string `json:"note,omitempty"`
}

// CodeAnswer holds the code response for a code question. Results stays nil
// until ValidateAll has run; editing Source never clears an existing Results.
type CodeAnswer struct {
	Source   string          `json:"source"`
	Language string          `json:"language"`
	Results  *TestRunSummary `json:"results,omitempty"`
}

// CaseStatus is the three-way outcome of a single test case.
type CaseStatus string

const (
	CaseStatusCorrect CaseStatus = "CORRECT"
	CaseStatusPartial CaseStatus = "PARTIAL"
	CaseStatusWrong   CaseStatus = "WRONG"
)

// TestRunSummary aggregates a full validation run over a code question.
// Partial cases are tallied separately: they are neither passed nor failed.
type TestRunSummary struct {
	TotalScore   float64      `json:"total_score"`
	MaxScore     float64      `json:"max_score"`
	PassedCount  int          `json:"passed_count"`
	PartialCount int          `json:"partial_count"`
	FailedCount  int          `json:"failed_count"`
	Cases        []CaseResult `json:"cases"`
}

// CaseResult is the outcome of one test case, in run order. Input, Expected
// and Actual are only populated for sample cases.
type CaseResult struct {
	Status   CaseStatus `json:"status"`
	Score    float64    `json:"score"`
	Points   float64    `json:"points"`
	IsSample bool       `json:"is_sample"`
	Input    string     `json:"input,omitempty"`
	Expected string     `json:"expected,omitempty"`
	Actual   string     `json:"actual,omitempty"`
	TimeMS   int64      `json:"time_ms"`
	Error    string     `json:"error,omitempty"`
}
