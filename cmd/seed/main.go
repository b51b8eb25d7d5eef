package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"speech-flow-bot/internal/config"
	"speech-flow-bot/internal/domain"
	"speech-flow-bot/internal/domain/model"
	"speech-flow-bot/internal/domain/ports/repository"
	pg "speech-flow-bot/internal/infra/db/postgres"
	"speech-flow-bot/internal/infra/logging"
)

// seed prepares a predictable learner for manual testing: a known Telegram ID
// with a level, a few saved words and a small mistake history.
func main() {
	tgID := flag.Int64("tg-id", 42424242, "telegram id of the demo learner")
	level := flag.String("level", string(model.LevelIntermediate), "level of the demo learner")
	reset := flag.Bool("reset", false, "wipe users, vocabulary and error logs first")

	// ---- Config ----
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Connect Postgres
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()

	if *reset {
		logger.Warn().Msg("wiping users, vocabulary and error logs")
		if _, err := pool.Exec(ctx, `TRUNCATE users, vocabulary, error_logs CASCADE`); err != nil {
			logger.Fatal().Err(err).Msg("truncate")
		}
	}

	lvl, err := model.ParseLevel(*level)
	if err != nil {
		logger.Fatal().Err(err).Str("level", *level).Msg("invalid level")
	}

	users := pg.NewPostgresUserRepo(pool)
	vocab := pg.NewVocabularyRepo(pool)
	errLog := pg.NewErrorLogRepo(pool)
	tm := pg.NewTxManager(pool)

	err = tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		u, err := users.FindByTelegramID(ctx, tx, *tgID)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			if u, err = model.NewUser("", *tgID, "demo"); err != nil {
				return err
			}
			u.RecordActivity(time.Now(), 120)
			if err := users.Save(ctx, tx, u); err != nil {
				return fmt.Errorf("save user: %w", err)
			}
		case err != nil:
			return fmt.Errorf("find user: %w", err)
		default:
			fmt.Printf("learner %d already present (id=%s); refreshing demo data\n", *tgID, u.ID)
		}
		if err := users.UpdateLevel(ctx, tx, *tgID, lvl); err != nil {
			return fmt.Errorf("update level: %w", err)
		}
		return seedHistory(ctx, tx, u.ID, vocab, errLog, logger)
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("seed")
	}
	fmt.Printf("✅ Seeding complete: learner %d at level %s.\n", *tgID, lvl)
}

func seedHistory(ctx context.Context, tx repository.Tx, userID string, vocab repository.VocabularyRepository, errLog repository.ErrorLogRepository, log *zerolog.Logger) error {
	words := []struct {
		model.VocabularyItem
		Context string
	}{
		{model.VocabularyItem{Word: "went", Definition: "past tense of go"}, "Yesterday I went to the park."},
		{model.VocabularyItem{Word: "look forward to", Definition: "to be excited about something coming"}, "I look forward to the weekend."},
		{model.VocabularyItem{Word: "despite", Definition: "without being affected by"}, "Despite the rain, we walked home."},
	}
	for _, w := range words {
		e, err := model.NewVocabularyEntry(userID, w.VocabularyItem, w.Context)
		if err != nil {
			return err
		}
		if err := vocab.Add(ctx, tx, e); err != nil {
			return fmt.Errorf("add %q: %w", w.Word, err)
		}
	}

	mistakes := []struct{ Category, Text string }{
		{"Grammar", "I goed to the park"},
		{"Grammar", "She don't like it"},
		{"Vocabulary", "I am boring in class"},
		{"Spelling", "recieve"},
	}
	for _, m := range mistakes {
		e, err := model.NewErrorLogEntry(userID, m.Category, m.Text)
		if err != nil {
			return err
		}
		if err := errLog.Add(ctx, tx, e); err != nil {
			return fmt.Errorf("log mistake: %w", err)
		}
	}
	log.Info().Int("words", len(words)).Int("mistakes", len(mistakes)).Msg("history seeded")
	return nil
}
