package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"speech-flow-bot/internal/domain/model"
	"speech-flow-bot/internal/domain/ports/repository"
)

var _ repository.VocabularyRepository = (*vocabularyRepo)(nil)

type vocabularyRepo struct {
	pool *pgxpool.Pool
}

func NewVocabularyRepo(pool *pgxpool.Pool) repository.VocabularyRepository {
	return &vocabularyRepo{pool: pool}
}

// Add keeps one row per (user, word); a repeated word refreshes its context.
func (r *vocabularyRepo) Add(ctx context.Context, tx repository.Tx, e *model.VocabularyEntry) error {
	const q = `
INSERT INTO vocabulary (id, user_id, word_or_phrase, translation, context_sentence, mastery_score, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (user_id, word_or_phrase) DO UPDATE SET
  translation      = COALESCE(NULLIF(EXCLUDED.translation, ''), vocabulary.translation),
  context_sentence = EXCLUDED.context_sentence;
`
	_, err := execSQL(ctx, r.pool, tx, q,
		e.ID, e.UserID, e.WordOrPhrase, e.Translation, e.ContextSentence, e.MasteryScore, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("add vocabulary: %w", err)
	}
	return nil
}

func (r *vocabularyRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string, limit int) ([]*model.VocabularyEntry, error) {
	const q = `
SELECT id, user_id, word_or_phrase, translation, context_sentence, mastery_score, created_at
  FROM vocabulary
 WHERE user_id=$1
 ORDER BY created_at DESC, word_or_phrase
 LIMIT NULLIF($2, 0);
`
	rows, err := queryRows(ctx, r.pool, tx, q, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list vocabulary: %w", err)
	}
	defer rows.Close()

	var out []*model.VocabularyEntry
	for rows.Next() {
		var e model.VocabularyEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.WordOrPhrase, &e.Translation, &e.ContextSentence, &e.MasteryScore, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

func (r *vocabularyRepo) CountByUser(ctx context.Context, tx repository.Tx, userID string) (int, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT COUNT(*) FROM vocabulary WHERE user_id=$1;`, userID)
	if err != nil {
		return 0, err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("count vocabulary: %w", err)
	}
	return n, nil
}

func (r *vocabularyRepo) DeleteByUser(ctx context.Context, tx repository.Tx, userID string) (int, error) {
	tag, err := execSQL(ctx, r.pool, tx, `DELETE FROM vocabulary WHERE user_id=$1;`, userID)
	if err != nil {
		return 0, fmt.Errorf("clear vocabulary: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
