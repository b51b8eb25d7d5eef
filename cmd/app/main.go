// File: cmd/app/main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"speech-flow-bot/internal/application"
	"speech-flow-bot/internal/config"
	"speech-flow-bot/internal/domain/ports/adapter"
	"speech-flow-bot/internal/domain/ports/repository"
	aiAdapters "speech-flow-bot/internal/infra/adapters/ai"
	tele "speech-flow-bot/internal/infra/adapters/telegram"
	"speech-flow-bot/internal/infra/audio"
	pg "speech-flow-bot/internal/infra/db/postgres"
	"speech-flow-bot/internal/infra/dispatch"
	httpserver "speech-flow-bot/internal/infra/http"
	"speech-flow-bot/internal/infra/i18n"
	"speech-flow-bot/internal/infra/logging"
	"speech-flow-bot/internal/infra/memory"
	"speech-flow-bot/internal/infra/metrics"
	red "speech-flow-bot/internal/infra/redis"
	"speech-flow-bot/internal/infra/scheduler"
	"speech-flow-bot/internal/infra/worker"
	"speech-flow-bot/internal/usecase"
)

// Set with -ldflags "-X main.version=... -X main.commit=...".
var (
	version = "dev"
	commit  = "none"
)

const (
	taskWorkers     = 4
	shutdownTimeout = 10 * time.Second
	poolStatsPeriod = 15 * time.Second

	limiterPrunePeriod = 10 * time.Minute
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- Config & logging ----
	cfg, err := config.LoadConfig()
	if err != nil {
		l := zerolog.New(os.Stderr)
		l.Fatal().Err(err).Msg("config")
	}
	log := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		log.Info().Msg("[DEV MODE] Enabled")
	}

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, log)
	if err != nil {
		log.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()
	poolStats := scheduler.NewScheduler("db_pool_stats", poolStatsPeriod, pg.PoolStatsJob(pool), log)
	poolStats.Start(ctx)
	defer poolStats.Stop()

	checks := map[string]httpserver.Check{"postgres": pool.Ping}

	// ---- Repositories, cache, limits ----
	var (
		userRepo repository.UserRepository = pg.NewPostgresUserRepo(pool)
		limiter  tele.RateLimiter
		locker   red.Locker
	)
	if strings.TrimSpace(cfg.Redis.URL) != "" {
		redisClient, err := red.NewClient(ctx, &cfg.Redis)
		if err != nil {
			log.Fatal().Err(err).Msg("redis")
		}
		defer redisClient.Close()
		userRepo = pg.NewUserRepoCacheDecorator(userRepo, redisClient, cfg.Redis.TTL, log)
		limiter = red.NewRateLimiter(redisClient)
		locker = red.NewLocker(redisClient)
		checks["redis"] = redisClient.Ping
		log.Info().Msg("redis enabled for cache, rate limits and turn locks")
	} else {
		userRepo = pg.NewUserRepoMemCache(userRepo, cfg.Redis.TTL)
		memLimiter := memory.NewRateLimiter()
		limiter = memLimiter
		locker = memory.NewLocker()
		prune := scheduler.NewScheduler("rate_limit_prune", limiterPrunePeriod, func(context.Context) error {
			if n := memLimiter.Prune(); n > 0 {
				log.Debug().Int("keys", n).Msg("pruned idle rate limit buckets")
			}
			return nil
		}, log)
		prune.Start(ctx)
		defer prune.Stop()
		log.Info().Msg("redis not configured; using in-process cache and limits")
	}
	vocabRepo := pg.NewVocabularyRepo(pool)
	errorLogRepo := pg.NewErrorLogRepo(pool)
	txManager := pg.NewTxManager(pool)

	// ---- AI providers ----
	retry := dispatch.Options{
		BaseDelay:             cfg.AI.Retry.BaseDelay,
		Jitter:                cfg.AI.Retry.Jitter,
		AttemptsPerCredential: cfg.AI.Retry.AttemptsPerCredential,
	}
	groq := aiAdapters.NewGroqAdapter(cfg.AI.GroqKeys, aiAdapters.GroqOptions{
		BaseURL:         cfg.AI.GroqBaseURL,
		Timeout:         cfg.AI.Timeout,
		TranscribeModel: cfg.AI.TranscribeModel,
		CorrectionModel: cfg.AI.CorrectionModel,
		DialogueModel:   cfg.AI.DialogueModel,
	}, retry, log)
	providers := map[string]adapter.SpeechService{"groq": groq}
	dispatchers := []*dispatch.Dispatcher{groq.Dispatcher()}
	log.Info().Int("keys", groq.Dispatcher().Size()).Str("model", cfg.AI.DialogueModel).Msg("AI provider: groq")

	if len(cfg.AI.GeminiKeys) > 0 {
		gemini, err := aiAdapters.NewGeminiAdapter(ctx, cfg.AI.GeminiKeys, "", cfg.AI.GeminiModel, cfg.AI.Timeout, retry, log)
		if err != nil {
			log.Fatal().Err(err).Msg("gemini adapter")
		}
		providers["gemini"] = gemini
		dispatchers = append(dispatchers, gemini.Dispatcher())
		log.Info().Int("keys", gemini.Dispatcher().Size()).Str("model", cfg.AI.GeminiModel).Msg("AI provider: gemini")
	} else if cfg.AI.Provider == "gemini" {
		log.Fatal().Msg("ai.provider=gemini requires ai.gemini_keys")
	}
	if groq.Dispatcher().Size() == 0 && len(cfg.AI.GeminiKeys) == 0 {
		log.Warn().Msg("no AI keys configured; every turn will answer with its fallback")
	}
	speech := aiAdapters.NewLimitedSpeech(
		aiAdapters.NewMultiSpeechAdapter(cfg.AI.Provider, providers, log),
		cfg.AI.ConcurrentLimit,
	)

	// ---- Text to speech ----
	var synth adapter.Synthesizer
	voice := ""
	switch cfg.TTS.Provider {
	case "piper":
		piper := aiAdapters.NewPiperSynthesizer(cfg.TTS.PiperURL, cfg.TTS.PiperVoice, cfg.TTS.Timeout)
		synth = piper
		voice = cfg.TTS.PiperVoice
		checks["piper"] = piper.Health
	case "groq":
		synth = aiAdapters.NewGroqSpeechAdapter(groq, cfg.TTS.GroqModel, cfg.TTS.GroqVoice, cfg.TTS.Timeout)
		voice = cfg.TTS.GroqVoice
	default:
		synth = aiAdapters.NewNoopSynthesizer()
	}
	converter := audio.NewFFmpegConverter(audio.FFmpegOptions{
		Path:       cfg.TTS.FFmpegPath,
		SampleRate: cfg.TTS.SampleRate,
		Bitrate:    cfg.TTS.OpusBitrate,
		Timeout:    cfg.TTS.Timeout,
	}, log)
	log.Info().Str("tts", cfg.TTS.Provider).Str("voice_reply", cfg.Bot.VoiceReply).Msg("voice configured")

	// An update must outlive every retry its AI calls may need.
	if budget := turnBudget(dispatchers, cfg.AI.Timeout, groq.Dispatcher().Budget(cfg.TTS.Timeout)); budget > cfg.Bot.UpdateTimeout {
		cfg.Bot.UpdateTimeout = budget
	}
	log.Info().Dur("update_timeout", cfg.Bot.UpdateTimeout).Msg("update budget")

	// ---- Background tasks ----
	tasks := worker.NewPool(taskWorkers, log)
	tasks.Start(ctx)

	// ---- Use cases ----
	tr, err := i18n.NewTranslator(i18n.LocalesFS, cfg.Bot.Language)
	if err != nil {
		log.Fatal().Err(err).Msg("i18n")
	}
	userUC := usecase.NewUserUseCase(userRepo, txManager, cfg.Bot.AdminIDs, cfg.Bot.FreeMessagesLimit, log)
	vocabUC := usecase.NewVocabularyUseCase(vocabRepo, log)
	statsUC := usecase.NewStatsUseCase(userRepo, vocabRepo, errorLogRepo, log)
	tutorUC := usecase.NewTutorUseCase(speech, synth, converter, userUC, vocabUC, statsUC, tasks, tr, usecase.TutorOptions{
		Language:       cfg.AI.Language,
		Voice:          voice,
		MaxSpeechChars: cfg.TTS.MaxChars,
	}, log)

	// ---- Facade ----
	facade := application.NewBotFacade(userUC, vocabUC, statsUC, tutorUC, tr, application.FacadeOptions{
		VocabularyPageSize: cfg.Bot.VocabularyLimit,
		KeyCount: func() int {
			n := 0
			for _, d := range dispatchers {
				n += d.Size()
			}
			return n
		},
	}, log)

	// ---- Telegram ----
	botAdapter, err := tele.NewRealTelegramBotAdapter(&cfg.Bot, facade, limiter, locker, log)
	if err != nil {
		log.Fatal().Err(err).Msg("telegram")
	}
	if mode := strings.ToLower(cfg.Bot.Mode); mode != "" && mode != "polling" {
		log.Warn().Str("mode", cfg.Bot.Mode).Msg("bot mode not implemented; falling back to polling")
	}
	go func() {
		if err := botAdapter.StartPolling(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("telegram polling stopped")
		}
	}()

	// ---- HTTP health & metrics ----
	var server *httpserver.Server
	if cfg.HTTP.Port > 0 {
		server = httpserver.NewServer(cfg.HTTP.Port, checks, log)
		go func() {
			if err := server.Start(); err != nil {
				log.Error().Err(err).Msg("http server error")
			}
		}()
	}

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	log.Info().Msg("shutdown requested")
	botAdapter.StopPolling()

	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	if server != nil {
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("http shutdown")
		}
	}
	// Queued bookkeeping finishes before the root context goes away.
	tasks.Stop()
	cancel()
	log.Info().Msg("bye")
}

// turnBudget covers transcription, correction and reply one after another,
// each possibly falling through every provider, plus speech synthesis.
func turnBudget(dispatchers []*dispatch.Dispatcher, aiTimeout, speech time.Duration) time.Duration {
	var stage time.Duration
	for _, d := range dispatchers {
		stage += d.Budget(aiTimeout)
	}
	return 3*stage + speech
}
