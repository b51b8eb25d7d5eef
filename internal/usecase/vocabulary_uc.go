package usecase

import (
	"context"
	"strings"

	"speech-flow-bot/internal/domain/model"
	"speech-flow-bot/internal/domain/ports/repository"
	"speech-flow-bot/internal/infra/logging"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

var _ VocabularyUseCase = (*vocabularyUC)(nil)

type VocabularyUseCase interface {
	// List returns the newest entries first; limit <= 0 returns everything.
	List(ctx context.Context, userID string, limit int) ([]*model.VocabularyEntry, error)
	Count(ctx context.Context, userID string) (int, error)
	Clear(ctx context.Context, userID string) (int, error)
	// Record saves suggested items; an item already saved is refreshed, not duplicated.
	Record(ctx context.Context, userID string, items []model.VocabularyItem, contextSentence string) (int, error)
}

type vocabularyUC struct {
	vocab repository.VocabularyRepository
	log   *zerolog.Logger
}

func NewVocabularyUseCase(vocab repository.VocabularyRepository, logger *zerolog.Logger) *vocabularyUC {
	return &vocabularyUC{vocab: vocab, log: logger}
}

func (v *vocabularyUC) List(ctx context.Context, userID string, limit int) ([]*model.VocabularyEntry, error) {
	defer logging.TraceDuration(v.log, "VocabularyUC.List")()
	if limit < 0 {
		limit = 0
	}
	return v.vocab.ListByUser(ctx, repository.NoTX, userID, limit)
}

func (v *vocabularyUC) Count(ctx context.Context, userID string) (int, error) {
	return v.vocab.CountByUser(ctx, repository.NoTX, userID)
}

func (v *vocabularyUC) Clear(ctx context.Context, userID string) (int, error) {
	defer logging.TraceDuration(v.log, "VocabularyUC.Clear")()
	n, err := v.vocab.DeleteByUser(ctx, repository.NoTX, userID)
	if err != nil {
		return 0, err
	}
	logging.With(ctx, v.log).Info().Int("removed", n).Msg("vocabulary cleared")
	return n, nil
}

func (v *vocabularyUC) Record(ctx context.Context, userID string, items []model.VocabularyItem, contextSentence string) (int, error) {
	items = lo.UniqBy(items, func(it model.VocabularyItem) string {
		return strings.ToLower(strings.TrimSpace(it.Word))
	})
	saved := 0
	for _, it := range items {
		e, err := model.NewVocabularyEntry(userID, it, contextSentence)
		if err != nil {
			// blank words are skipped
			continue
		}
		if err := v.vocab.Add(ctx, repository.NoTX, e); err != nil {
			return saved, err
		}
		saved++
	}
	return saved, nil
}
