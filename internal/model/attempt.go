package model

import (
	"time"

	"github.com/google/uuid"
)

// AttemptStatus enumerates attempt states.
type AttemptStatus string

const (
	AttemptStatusInProgress AttemptStatus = "IN_PROGRESS"
	AttemptStatusCompleted  AttemptStatus = "COMPLETED"
)

// Attempt represents one student's single run through a test.
type Attempt struct {
	ID         uuid.UUID     `json:"id"`
	TestID     uuid.UUID     `json:"test_id"`
	StudentID  int           `json:"student_id"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt *time.Time    `json:"finished_at,omitempty"`
	Status     AttemptStatus `json:"status"`
	FinalScore *float64      `json:"final_score,omitempty"`
}

// SubmissionPayload is what the session controller sends exactly once when
// an attempt ends. Answers are keyed by the canonical string question ID —
// the same form the grading side uses for lookup.
type SubmissionPayload struct {
	AttemptID   uuid.UUID         `json:"attempt_id"`
	TestID      uuid.UUID         `json:"test_id"`
	StudentID   int               `json:"student_id"`
	TimeTakenMS int64             `json:"time_taken_ms"`
	Answers     map[string]Answer `json:"answers"`
}

// SessionStateView is returned on reload so the client can restore its
// position: autosaved answers plus the recomputed remaining time.
type SessionStateView struct {
	TestID           uuid.UUID         `json:"test_id"`
	StudentID        int               `json:"student_id"`
	AutosavedAnswers map[string]Answer `json:"autosaved_answers"`
	RemainingSeconds int               `json:"remaining_seconds"`
	ViolationCount   int               `json:"violation_count"`
}
