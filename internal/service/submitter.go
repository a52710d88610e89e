package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/acadio/assess-backend/internal/config"
	"github.com/acadio/assess-backend/internal/model"
)

// QueueSubmitter accepts a submission by enqueueing it for the persistence
// worker. The enqueue must succeed for the submission to count as accepted;
// a Redis failure keeps the session retryable.
type QueueSubmitter struct {
	rdb *redis.Client
	log zerolog.Logger
}

// NewQueueSubmitter creates a QueueSubmitter.
func NewQueueSubmitter(rdb *redis.Client, log zerolog.Logger) *QueueSubmitter {
	return &QueueSubmitter{
		rdb: rdb,
		log: log.With().Str("component", "queue_submitter").Logger(),
	}
}

// Submit enqueues the payload exactly once. The worker owns scoring and the
// attempt row update; duplicate deliveries are absorbed there by the
// IN_PROGRESS status guard.
func (q *QueueSubmitter) Submit(ctx context.Context, payload *model.SubmissionPayload) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal submission: %w", err)
	}

	if err := q.rdb.RPush(ctx, config.WorkerKey.PersistSubmissionsQueue, raw).Err(); err != nil {
		return fmt.Errorf("enqueue submission: %w", err)
	}

	q.log.Info().
		Str("attempt_id", payload.AttemptID.String()).
		Int("answers", len(payload.Answers)).
		Msg("Submission accepted")
	return nil
}
