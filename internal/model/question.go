package model

import (
	"github.com/google/uuid"
)

// QuestionType enumerates the supported question modalities.
type QuestionType string

const (
	QuestionTypeChoice   QuestionType = "CHOICE"
	QuestionTypeFreeText QuestionType = "FREE_TEXT"
	QuestionTypeAudio    QuestionType = "AUDIO"
	QuestionTypeCode     QuestionType = "CODE"
)

// Question represents a single test question. Questions are immutable for
// the duration of a session.
type Question struct {
	ID           uuid.UUID         `json:"id"`
	TestID       uuid.UUID         `json:"test_id"`
	QuestionType QuestionType      `json:"question_type"`
	Prompt       string            `json:"prompt"`
	OrderNum     int               `json:"order_num"`
	Options      map[string]string `json:"options,omitempty"` // CHOICE: label → text
	Language     string            `json:"language,omitempty"`
	StarterCode  string            `json:"starter_code,omitempty"`
	TestCases    []TestCase        `json:"test_cases,omitempty"` // CODE only, in run order
}

// TestCase is a single input/expected-output pair for a code question.
type TestCase struct {
	Input    string  `json:"input"`
	Expected string  `json:"expected"`
	Points   float64 `json:"points"`
	IsSample bool    `json:"is_sample"`
	// MaxTimeMS, when set, is the response-time ceiling. Output that matches
	// but runs over it earns half points.
	MaxTimeMS *int64 `json:"max_time_ms,omitempty"`
}

// MaxScore returns the sum of test-case points, which is the question's
// maximum score by invariant.
func (q *Question) MaxScore() float64 {
	var total float64
	for _, tc := range q.TestCases {
		total += tc.Points
	}
	return total
}

// SampleCases returns the test cases visible to the student.
func (q *Question) SampleCases() []TestCase {
	var samples []TestCase
	for _, tc := range q.TestCases {
		if tc.IsSample {
			samples = append(samples, tc)
		}
	}
	return samples
}

// QuestionForStudent is a question as delivered to the test taker: choice
// options keep no correct marker and only sample test cases survive.
type QuestionForStudent struct {
	ID           uuid.UUID         `json:"id"`
	QuestionType QuestionType      `json:"question_type"`
	Prompt       string            `json:"prompt"`
	OrderNum     int               `json:"order_num"`
	Options      map[string]string `json:"options,omitempty"`
	Language     string            `json:"language,omitempty"`
	StarterCode  string            `json:"starter_code,omitempty"`
	SampleCases  []TestCase        `json:"sample_cases,omitempty"`
}

// ForStudent strips scoring-only data from a question.
func (q *Question) ForStudent() QuestionForStudent {
	return QuestionForStudent{
		ID:           q.ID,
		QuestionType: q.QuestionType,
		Prompt:       q.Prompt,
		OrderNum:     q.OrderNum,
		Options:      q.Options,
		Language:     q.Language,
		StarterCode:  q.StarterCode,
		SampleCases:  q.SampleCases(),
	}
}
