package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/adeilh/qacache/traffic"
)

// CorpusRepository reads the question/answer corpus from yahoo_data.
type CorpusRepository struct {
	db *sql.DB
}

func NewCorpusRepository(db *sql.DB) *CorpusRepository {
	return &CorpusRepository{db: db}
}

// Load returns every corpus row in id order.
func (r *CorpusRepository) Load(ctx context.Context) ([]traffic.Pair, error) {
	const query = `SELECT question_title, best_answer FROM yahoo_data ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: load corpus: %w", translateError(err))
	}
	defer rows.Close()

	var out []traffic.Pair
	for rows.Next() {
		var p traffic.Pair
		if err := rows.Scan(&p.Question, &p.Answer); err != nil {
			return nil, fmt.Errorf("postgres: scan corpus row: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: load corpus: %w", err)
	}
	return out, nil
}

// Insert adds corpus rows in one transaction.
func (r *CorpusRepository) Insert(ctx context.Context, pairs ...traffic.Pair) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", translateError(err))
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO yahoo_data (question_title, best_answer) VALUES ($1, $2)`)
	if err != nil {
		return fmt.Errorf("postgres: prepare corpus insert: %w", translateError(err))
	}
	defer stmt.Close()
	for _, p := range pairs {
		if _, err := stmt.ExecContext(ctx, p.Question, p.Answer); err != nil {
			return fmt.Errorf("postgres: insert corpus row: %w", translateError(err))
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("postgres: commit: %w", translateError(err))
	}
	return nil
}
