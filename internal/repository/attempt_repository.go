package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/acadio/assess-backend/internal/model"
)

// ErrAttemptNotFound is returned when no attempt row exists.
var ErrAttemptNotFound = errors.New("attempt not found")

// AttemptRepository handles attempt data access.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

// GetByTestAndStudent retrieves the attempt for a (test, student) pair.
// A student has at most one attempt per test, enforced by a unique index.
func (r *AttemptRepository) GetByTestAndStudent(ctx context.Context, testID uuid.UUID, studentID int) (*model.Attempt, error) {
	a := &model.Attempt{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, test_id, student_id, started_at, finished_at, status, final_score
		 FROM attempts WHERE test_id = $1 AND student_id = $2`,
		testID, studentID,
	).Scan(&a.ID, &a.TestID, &a.StudentID, &a.StartedAt, &a.FinishedAt, &a.Status, &a.FinalScore)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAttemptNotFound
		}
		return nil, err
	}
	return a, nil
}

// Create inserts a new IN_PROGRESS attempt. The unique (test_id, student_id)
// index makes a concurrent double-start lose the race; ON CONFLICT DO NOTHING
// plus a re-read keeps start idempotent.
func (r *AttemptRepository) Create(ctx context.Context, a *model.Attempt) (*model.Attempt, error) {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO attempts (test_id, student_id, status)
		 VALUES ($1, $2, 'IN_PROGRESS')
		 ON CONFLICT (test_id, student_id) DO NOTHING
		 RETURNING id, started_at, status`,
		a.TestID, a.StudentID,
	).Scan(&a.ID, &a.StartedAt, &a.Status)
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	// Conflict path: a row already exists, return it.
	return r.GetByTestAndStudent(ctx, a.TestID, a.StudentID)
}

// MarkSubmitted finalizes an attempt with its score. Only an IN_PROGRESS row
// transitions, so a duplicate submission payload is a no-op.
func (r *AttemptRepository) MarkSubmitted(ctx context.Context, attemptID uuid.UUID, finalScore float64) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE attempts
		 SET status = 'COMPLETED', final_score = $1, finished_at = NOW()
		 WHERE id = $2 AND status = 'IN_PROGRESS'`,
		finalScore, attemptID)
	return err
}
