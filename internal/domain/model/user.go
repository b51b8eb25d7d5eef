package model

import (
	"time"

	"speech-flow-bot/internal/domain"

	"github.com/google/uuid"
)

// User is a learner known to the bot, keyed by Telegram ID.
type User struct {
	ID              string
	TelegramID      int64
	Username        string
	Level           Level
	StreakDays      int
	TotalTokensUsed int64
	MessagesUsed    int
	LastActiveAt    time.Time
	CreatedAt       time.Time
}

func NewUser(id string, tgID int64, username string) (*User, error) {
	if id == "" {
		id = uuid.NewString()
	}
	if tgID <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	return &User{
		ID:         id,
		TelegramID: tgID,
		Username:   username,
		Level:      DefaultLevel,
		CreatedAt:  time.Now().UTC(),
	}, nil
}

func (u *User) IsZero() bool { return u == nil || u.ID == "" }

// RecordActivity bumps usage counters and maintains the daily streak.
// Activity on the same UTC day keeps the streak, the next day extends it,
// and any longer gap starts a new streak of one.
func (u *User) RecordActivity(now time.Time, tokens int64) {
	now = now.UTC()
	today := truncateDay(now)
	switch {
	case u.LastActiveAt.IsZero() || u.StreakDays == 0:
		u.StreakDays = 1
	default:
		last := truncateDay(u.LastActiveAt.UTC())
		switch days := int(today.Sub(last).Hours() / 24); {
		case days <= 0:
		case days == 1:
			u.StreakDays++
		default:
			u.StreakDays = 1
		}
	}
	if tokens > 0 {
		u.TotalTokensUsed += tokens
	}
	u.MessagesUsed++
	u.LastActiveAt = now
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
