package model

import (
	"time"

	"github.com/google/uuid"
)

// TestStatus enumerates the possible states of a test.
type TestStatus string

const (
	TestStatusDraft     TestStatus = "DRAFT"
	TestStatusPublished TestStatus = "PUBLISHED"
	TestStatusArchived  TestStatus = "ARCHIVED"
)

// Test represents a timed assessment definition.
type Test struct {
	ID    uuid.UUID `json:"id"`
	Title string    `json:"title"`
	// DurationMinutes of 0 means the test has no time limit and the
	// countdown never starts.
	DurationMinutes int        `json:"duration_minutes"`
	Status          TestStatus `json:"status"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// TestPayload is the question set sent to students. Correct options and
// hidden test-case data are stripped when the payload is built.
type TestPayload struct {
	TestID          uuid.UUID            `json:"test_id"`
	Title           string               `json:"title"`
	DurationMinutes int                  `json:"duration_minutes"`
	Questions       []QuestionForStudent `json:"questions"`
}
