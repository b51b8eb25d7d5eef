package repository

import (
	"context"

	"speech-flow-bot/internal/domain/model"
)

// -----------------------------
// Vocabulary & error log
// -----------------------------

type VocabularyRepository interface {
	Add(ctx context.Context, tx Tx, e *model.VocabularyEntry) error
	// ListByUser returns the newest entries first.
	ListByUser(ctx context.Context, tx Tx, userID string, limit int) ([]*model.VocabularyEntry, error)
	CountByUser(ctx context.Context, tx Tx, userID string) (int, error)
	DeleteByUser(ctx context.Context, tx Tx, userID string) (int, error)
}

type ErrorLogRepository interface {
	Add(ctx context.Context, tx Tx, e *model.ErrorLogEntry) error
	CountByCategory(ctx context.Context, tx Tx, userID string) (map[string]int, error)
}
