package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"speech-flow-bot/internal/domain"
	"speech-flow-bot/internal/domain/model"
	"speech-flow-bot/internal/domain/ports/repository"
)

var _ repository.UserRepository = (*PostgresUserRepo)(nil)

type PostgresUserRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresUserRepo(pool *pgxpool.Pool) *PostgresUserRepo {
	return &PostgresUserRepo{pool: pool}
}

const userColumns = `id, telegram_id, username, level, streak_days, total_tokens_used, messages_used, last_active_at, created_at`

func (r *PostgresUserRepo) Save(ctx context.Context, tx repository.Tx, u *model.User) error {
	const q = `
INSERT INTO users (` + userColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (id) DO UPDATE SET username=$3;
`
	_, err := execSQL(ctx, r.pool, tx, q,
		u.ID, u.TelegramID, u.Username, string(u.Level), u.StreakDays, u.TotalTokensUsed,
		u.MessagesUsed, nullTime(u.LastActiveAt), u.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	return nil
}

func (r *PostgresUserRepo) FindByTelegramID(ctx context.Context, tx repository.Tx, tgID int64) (*model.User, error) {
	const q = `SELECT ` + userColumns + ` FROM users WHERE telegram_id=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, tgID)
	if err != nil {
		return nil, err
	}
	return scanUser(row)
}

func (r *PostgresUserRepo) UpdateLevel(ctx context.Context, tx repository.Tx, tgID int64, level model.Level) error {
	tag, err := execSQL(ctx, r.pool, tx, `UPDATE users SET level=$2 WHERE telegram_id=$1;`, tgID, string(level))
	if err != nil {
		return fmt.Errorf("update level: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// RecordActivity applies the streak rule in SQL so concurrent messages of one
// user never lose an increment and never touch the level.
func (r *PostgresUserRepo) RecordActivity(ctx context.Context, tx repository.Tx, tgID int64, now time.Time, tokens int64) error {
	const q = `
UPDATE users SET
  streak_days = CASE
    WHEN last_active_at IS NULL OR streak_days = 0 THEN 1
    WHEN ($2::timestamptz AT TIME ZONE 'UTC')::date <= (last_active_at AT TIME ZONE 'UTC')::date THEN streak_days
    WHEN ($2::timestamptz AT TIME ZONE 'UTC')::date = (last_active_at AT TIME ZONE 'UTC')::date + 1 THEN streak_days + 1
    ELSE 1
  END,
  messages_used = messages_used + 1,
  total_tokens_used = total_tokens_used + GREATEST($3::bigint, 0),
  last_active_at = $2
WHERE telegram_id = $1;
`
	tag, err := execSQL(ctx, r.pool, tx, q, tgID, now.UTC(), tokens)
	if err != nil {
		return fmt.Errorf("record activity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *PostgresUserRepo) CountUsers(ctx context.Context, tx repository.Tx) (int, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT COUNT(*) FROM users;`)
	if err != nil {
		return 0, err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

func scanUser(row pgx.Row) (*model.User, error) {
	var (
		u     model.User
		level string
		last  *time.Time
	)
	err := row.Scan(&u.ID, &u.TelegramID, &u.Username, &level, &u.StreakDays, &u.TotalTokensUsed,
		&u.MessagesUsed, &last, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	u.Level = model.Level(level)
	if last != nil {
		u.LastActiveAt = *last
	}
	return &u, nil
}
