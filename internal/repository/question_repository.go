package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/acadio/assess-backend/internal/model"
)

// QuestionRepository handles question data access.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

// ListByTest retrieves all questions for a given test, ordered by order_num.
// Test cases for code questions are stored as a jsonb column and decoded
// into model.TestCase slices.
func (r *QuestionRepository) ListByTest(ctx context.Context, testID uuid.UUID) ([]model.Question, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, test_id, question_type, prompt, order_num, options,
		        language, starter_code, test_cases
		 FROM questions WHERE test_id = $1
		 ORDER BY order_num`, testID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.Question
	for rows.Next() {
		var q model.Question
		if err := rows.Scan(&q.ID, &q.TestID, &q.QuestionType, &q.Prompt, &q.OrderNum,
			&q.Options, &q.Language, &q.StarterCode, &q.TestCases); err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// GetByID retrieves a single question with its test cases.
func (r *QuestionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Question, error) {
	q := &model.Question{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, test_id, question_type, prompt, order_num, options,
		        language, starter_code, test_cases
		 FROM questions WHERE id = $1`, id,
	).Scan(&q.ID, &q.TestID, &q.QuestionType, &q.Prompt, &q.OrderNum,
		&q.Options, &q.Language, &q.StarterCode, &q.TestCases)
	if err != nil {
		return nil, err
	}
	return q, nil
}
