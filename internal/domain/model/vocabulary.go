package model

import (
	"strings"
	"time"

	"speech-flow-bot/internal/domain"

	"github.com/google/uuid"
)

// VocabularyEntry is a word or phrase saved for a learner after a correction.
type VocabularyEntry struct {
	ID              string
	UserID          string
	WordOrPhrase    string
	Translation     string
	ContextSentence string
	MasteryScore    int
	CreatedAt       time.Time
}

func NewVocabularyEntry(userID string, item VocabularyItem, context string) (*VocabularyEntry, error) {
	word := strings.TrimSpace(item.Word)
	if userID == "" || word == "" {
		return nil, domain.ErrInvalidArgument
	}
	return &VocabularyEntry{
		ID:              uuid.NewString(),
		UserID:          userID,
		WordOrPhrase:    word,
		Translation:     strings.TrimSpace(item.Definition),
		ContextSentence: context,
		CreatedAt:       time.Now().UTC(),
	}, nil
}

// ErrorLogEntry records one grammar mistake category for statistics.
type ErrorLogEntry struct {
	ID          string
	UserID      string
	Category    string
	MistakeText string
	CreatedAt   time.Time
}

func NewErrorLogEntry(userID, category, mistake string) (*ErrorLogEntry, error) {
	if userID == "" || strings.TrimSpace(category) == "" {
		return nil, domain.ErrInvalidArgument
	}
	return &ErrorLogEntry{
		ID:          uuid.NewString(),
		UserID:      userID,
		Category:    strings.TrimSpace(category),
		MistakeText: mistake,
		CreatedAt:   time.Now().UTC(),
	}, nil
}

// Stats is the per-user progress summary shown by /stats.
type Stats struct {
	User            User
	VocabularyCount int
	ErrorStats      map[string]int
}
