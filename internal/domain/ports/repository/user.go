package repository

import (
	"context"
	"time"

	"speech-flow-bot/internal/domain/model"
)

// -----------------------------
// Users
// -----------------------------

type UserRepository interface {
	// Save inserts the user or, for an existing id, refreshes the profile
	// (username). Level and activity counters have their own writes.
	Save(ctx context.Context, tx Tx, u *model.User) error
	FindByTelegramID(ctx context.Context, tx Tx, tgID int64) (*model.User, error)
	UpdateLevel(ctx context.Context, tx Tx, tgID int64, level model.Level) error
	// RecordActivity counts one message and moves the streak in a single
	// atomic write, following model.User.RecordActivity.
	RecordActivity(ctx context.Context, tx Tx, tgID int64, now time.Time, tokens int64) error
	CountUsers(ctx context.Context, tx Tx) (int, error)
}
