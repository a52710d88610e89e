package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/acadio/assess-backend/internal/config"
	"github.com/acadio/assess-backend/internal/model"
)

const (
	SubmitBatchSize    = 50
	SubmitBatchTimeout = 2 * time.Second
	SubmitPollTimeout  = 1 * time.Second
)

// SubmissionWorker consumes persist_submissions_queue: it writes the final
// answers, finalizes the attempt row and clears the session's Redis keys.
// The IN_PROGRESS status guard on the UPDATE absorbs duplicate deliveries.
type SubmissionWorker struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
	log  zerolog.Logger
}

// NewSubmissionWorker creates a new SubmissionWorker.
func NewSubmissionWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *SubmissionWorker {
	return &SubmissionWorker{
		pool: pool,
		rdb:  rdb,
		log:  log.With().Str("component", "submission_worker").Logger(),
	}
}

// ----------------------------------------------------------------
// Worker loop with batching
// ----------------------------------------------------------------

// Start begins the batching worker loop. Call in a goroutine.
func (w *SubmissionWorker) Start(ctx context.Context) {
	w.log.Info().Msg("SubmissionWorker started")

	batch := make([]*model.SubmissionPayload, 0, SubmitBatchSize)
	lastFlush := time.Now()

	for {
		// Should flush?
		if len(batch) > 0 &&
			(len(batch) >= SubmitBatchSize || time.Since(lastFlush) >= SubmitBatchTimeout) {

			w.flushSafe(ctx, batch)
			batch = batch[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.log.Info().Msg("Shutdown requested. Flushing remaining batch...")
			w.flushSafe(context.Background(), batch)
			return

		default:
			item, err := w.rdb.BLPop(ctx, SubmitPollTimeout, config.WorkerKey.PersistSubmissionsQueue).Result()
			if err != nil {
				if err != redis.Nil && ctx.Err() == nil {
					w.log.Error().Err(err).Msg("BLPop error")
				}
				continue
			}

			if len(item) < 2 {
				continue
			}

			var p model.SubmissionPayload
			if err := json.Unmarshal([]byte(item[1]), &p); err != nil {
				w.log.Error().Err(err).Msg("Invalid JSON payload")
				continue
			}

			batch = append(batch, &p)
		}
	}
}

// ----------------------------------------------------------------
// Flush wrapper
// ----------------------------------------------------------------

func (w *SubmissionWorker) flushSafe(ctx context.Context, batch []*model.SubmissionPayload) {
	if len(batch) == 0 {
		return
	}

	ok := make([]*model.SubmissionPayload, 0, len(batch))
	for _, p := range batch {
		if err := w.persistSubmission(ctx, p); err != nil {
			w.log.Error().Err(err).
				Str("attempt_id", p.AttemptID.String()).
				Msg("Persist submission failed, requeueing")
			raw, _ := json.Marshal(p)
			w.rdb.RPush(ctx, config.WorkerKey.PersistSubmissionsQueue, raw)
			continue
		}
		ok = append(ok, p)
	}

	// After successful finalization, the session's hot keys are garbage.
	w.bulkClearSessionKeys(ctx, ok)
}

// persistSubmission writes the answers and finalizes the attempt in one
// transaction, so a crash between the two cannot leave a half-submitted row.
func (w *SubmissionWorker) persistSubmission(ctx context.Context, p *model.SubmissionPayload) error {
	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for key, a := range p.Answers {
		raw, err := json.Marshal(a)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO submission_answers (attempt_id, question_id, answer)
			 VALUES ($1, $2::uuid, $3::jsonb)
			 ON CONFLICT (attempt_id, question_id) DO UPDATE
			 SET answer = EXCLUDED.answer`,
			p.AttemptID, key, raw,
		)
		if err != nil {
			return err
		}
	}

	// Only code questions carry a machine score; the rest are graded later.
	score := machineScore(p)

	_, err = tx.Exec(ctx,
		`UPDATE attempts
		 SET status = 'COMPLETED', final_score = $1, finished_at = NOW()
		 WHERE id = $2 AND status = 'IN_PROGRESS'`,
		score, p.AttemptID,
	)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func machineScore(p *model.SubmissionPayload) float64 {
	var total float64
	for _, a := range p.Answers {
		if a.Kind == model.AnswerKindCode && a.Code != nil && a.Code.Results != nil {
			total += a.Code.Results.TotalScore
		}
	}
	return total
}

// ----------------------------------------------------------------
// BULK Redis DEL for retired session keys
// ----------------------------------------------------------------

func (w *SubmissionWorker) bulkClearSessionKeys(ctx context.Context, batch []*model.SubmissionPayload) {
	if len(batch) == 0 {
		return
	}

	pipe := w.rdb.Pipeline()
	for _, p := range batch {
		testID := p.TestID.String()
		pipe.Del(ctx, config.CacheKey.StudentAnswersKey(testID, p.StudentID))
		pipe.Del(ctx, config.CacheKey.ViolationCountKey(testID, p.StudentID))
		pipe.Del(ctx, config.CacheKey.AttemptStartKey(testID, p.StudentID))
	}
	_, _ = pipe.Exec(ctx)
}
