package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// TimerSnapshotKey returns the cache key for a student's timer snapshot on a test.
// The snapshot schema {remaining_seconds, session_start, total_duration} must stay
// stable across reloads so resume math keeps working.
func (r *CacheKeyStruct) TimerSnapshotKey(testID string, studentID int) string {
	return fmt.Sprintf("student:%d:test:%s:timer", studentID, testID)
}

// StudentAnswersKey returns the cache key for a student's autosaved answers hash.
func (r *CacheKeyStruct) StudentAnswersKey(testID string, studentID int) string {
	return fmt.Sprintf("student:%d:test:%s:answers", studentID, testID)
}

// AttemptStartKey returns the cache key for a student's attempt start timestamp.
func (r *CacheKeyStruct) AttemptStartKey(testID string, studentID int) string {
	return fmt.Sprintf("student:%d:test:%s:attempt_start", studentID, testID)
}

// TestPayloadKey returns the cache key for a test's question payload.
func (r *CacheKeyStruct) TestPayloadKey(testID string) string {
	return fmt.Sprintf("test:%s:payload", testID)
}

// TestDurationKey returns the cache key for a test's duration in minutes.
func (r *CacheKeyStruct) TestDurationKey(testID string) string {
	return fmt.Sprintf("test:%s:duration", testID)
}

// ViolationCountKey returns the cache key for a student's counted violation total.
func (r *CacheKeyStruct) ViolationCountKey(testID string, studentID int) string {
	return fmt.Sprintf("student:%d:test:%s:violations", studentID, testID)
}

var CacheKey = NewCacheKeyStruct()
