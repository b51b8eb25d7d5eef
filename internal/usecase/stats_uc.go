package usecase

import (
	"context"

	"speech-flow-bot/internal/domain/model"
	"speech-flow-bot/internal/domain/ports/repository"
	"speech-flow-bot/internal/infra/logging"

	"github.com/rs/zerolog"
)

// Compile-time check
var _ StatsUseCase = (*statsUC)(nil)

type StatsUseCase interface {
	ForUser(ctx context.Context, tgID int64) (*model.Stats, error)
	LogMistake(ctx context.Context, userID, category, mistake string) error
	TotalUsers(ctx context.Context) (int, error)
}

type statsUC struct {
	users  repository.UserRepository
	vocab  repository.VocabularyRepository
	errors repository.ErrorLogRepository

	log *zerolog.Logger
}

func NewStatsUseCase(users repository.UserRepository, vocab repository.VocabularyRepository, errorLog repository.ErrorLogRepository, logger *zerolog.Logger) *statsUC {
	return &statsUC{users: users, vocab: vocab, errors: errorLog, log: logger}
}

func (s *statsUC) ForUser(ctx context.Context, tgID int64) (*model.Stats, error) {
	defer logging.TraceDuration(s.log, "StatsUC.ForUser")()

	u, err := s.users.FindByTelegramID(ctx, repository.NoTX, tgID)
	if err != nil {
		return nil, err
	}
	words, err := s.vocab.CountByUser(ctx, repository.NoTX, u.ID)
	if err != nil {
		return nil, err
	}
	byCategory, err := s.errors.CountByCategory(ctx, repository.NoTX, u.ID)
	if err != nil {
		return nil, err
	}
	if byCategory == nil {
		byCategory = map[string]int{}
	}
	return &model.Stats{User: *u, VocabularyCount: words, ErrorStats: byCategory}, nil
}

func (s *statsUC) LogMistake(ctx context.Context, userID, category, mistake string) error {
	e, err := model.NewErrorLogEntry(userID, category, mistake)
	if err != nil {
		return err
	}
	return s.errors.Add(ctx, repository.NoTX, e)
}

func (s *statsUC) TotalUsers(ctx context.Context) (int, error) {
	return s.users.CountUsers(ctx, repository.NoTX)
}
