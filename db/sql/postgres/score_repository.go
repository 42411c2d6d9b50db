package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/adeilh/qacache/scoring"
)

// ScoreRepository persists graded answers in score_results.
type ScoreRepository struct {
	db *sql.DB
}

func NewScoreRepository(db *sql.DB) *ScoreRepository {
	return &ScoreRepository{db: db}
}

// Save inserts r and returns it with its id and creation time.
func (r *ScoreRepository) Save(ctx context.Context, res scoring.Result) (scoring.Result, error) {
	const query = `INSERT INTO score_results (question, answer_yahoo, answer_llm, quality_score, times_querried)
                   VALUES ($1, $2, $3, $4, $5) RETURNING id, created_at`
	times := res.TimesQueried
	if times <= 0 {
		times = 1
	}
	err := r.db.QueryRowContext(ctx, query, res.Question, res.AnswerYahoo, res.AnswerLLM, res.QualityScore, times).
		Scan(&res.ID, &res.CreatedAt)
	if err != nil {
		return scoring.Result{}, fmt.Errorf("postgres: save score: %w", translateError(err))
	}
	res.TimesQueried = times
	return res, nil
}

// Latest returns the newest result for question and increments its
// times_querried counter in the same statement.
func (r *ScoreRepository) Latest(ctx context.Context, question string) (scoring.Result, error) {
	const query = `UPDATE score_results SET times_querried = times_querried + 1
                   WHERE id = (SELECT id FROM score_results WHERE question = $1 ORDER BY id DESC LIMIT 1)
                   RETURNING id, question, answer_yahoo, answer_llm, quality_score, times_querried, created_at`
	var res scoring.Result
	err := r.db.QueryRowContext(ctx, query, question).Scan(
		&res.ID,
		&res.Question,
		&res.AnswerYahoo,
		&res.AnswerLLM,
		&res.QualityScore,
		&res.TimesQueried,
		&res.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return scoring.Result{}, scoring.ErrNoResult
		}
		return scoring.Result{}, fmt.Errorf("postgres: latest score: %w", translateError(err))
	}
	return res, nil
}
