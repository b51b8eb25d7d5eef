package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"speech-flow-bot/internal/domain/model"
	"speech-flow-bot/internal/domain/ports/repository"
)

var _ repository.ErrorLogRepository = (*errorLogRepo)(nil)

type errorLogRepo struct {
	pool *pgxpool.Pool
}

func NewErrorLogRepo(pool *pgxpool.Pool) repository.ErrorLogRepository {
	return &errorLogRepo{pool: pool}
}

func (r *errorLogRepo) Add(ctx context.Context, tx repository.Tx, e *model.ErrorLogEntry) error {
	const q = `
INSERT INTO error_logs (id, user_id, category, mistake_text, created_at)
VALUES ($1, $2, $3, $4, $5)`
	_, err := execSQL(ctx, r.pool, tx, q, e.ID, e.UserID, e.Category, e.MistakeText, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("add error log: %w", err)
	}
	return nil
}

func (r *errorLogRepo) CountByCategory(ctx context.Context, tx repository.Tx, userID string) (map[string]int, error) {
	const q = `
SELECT category, COUNT(*)
  FROM error_logs
 WHERE user_id=$1
 GROUP BY category`
	rows, err := queryRows(ctx, r.pool, tx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("count error categories: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var (
			cat string
			n   int
		)
		if err := rows.Scan(&cat, &n); err != nil {
			return nil, err
		}
		out[cat] = n
	}
	return out, rows.Err()
}
