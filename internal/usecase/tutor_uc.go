// File: internal/usecase/tutor_uc.go
package usecase

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"speech-flow-bot/internal/domain"
	"speech-flow-bot/internal/domain/model"
	"speech-flow-bot/internal/domain/ports/adapter"
	"speech-flow-bot/internal/infra/i18n"
	"speech-flow-bot/internal/infra/logging"
	"speech-flow-bot/internal/infra/metrics"
	"speech-flow-bot/internal/infra/worker"

	"github.com/rs/zerolog"
)

// Compile-time check
var _ TutorUseCase = (*tutorUC)(nil)

// TutorUseCase wraps the language services with fallbacks: callers always get
// something to show, never a raw upstream error.
type TutorUseCase interface {
	// Transcribe reports ok=false when no usable text came back.
	Transcribe(ctx context.Context, audio []byte) (text string, ok bool)
	Correct(ctx context.Context, text string, level model.Level) model.Correction
	Reply(ctx context.Context, text string, level model.Level) string
	// Speak returns an ogg/opus voice note, or nil when speech is unavailable.
	Speak(ctx context.Context, text string) []byte
	// ProcessMessage answers one learner message and schedules the progress
	// bookkeeping in the background.
	ProcessMessage(ctx context.Context, user *model.User, text string) model.Turn
}

// TaskSubmitter is the part of worker.Pool the tutor needs.
type TaskSubmitter interface {
	Submit(name string, task worker.Task) error
}

type TutorOptions struct {
	Language       string // transcription hint
	Voice          string // synthesizer voice, empty for its default
	MaxSpeechChars int
}

type tutorUC struct {
	speech adapter.SpeechService
	synth  adapter.Synthesizer
	conv   adapter.AudioConverter

	users UserUseCase
	vocab VocabularyUseCase
	stats StatsUseCase
	tasks TaskSubmitter

	tr   *i18n.Translator
	opts TutorOptions
	log  *zerolog.Logger
}

func NewTutorUseCase(
	speech adapter.SpeechService,
	synth adapter.Synthesizer,
	conv adapter.AudioConverter,
	users UserUseCase,
	vocab VocabularyUseCase,
	stats StatsUseCase,
	tasks TaskSubmitter,
	tr *i18n.Translator,
	opts TutorOptions,
	logger *zerolog.Logger,
) *tutorUC {
	if opts.Language == "" {
		opts.Language = "en"
	}
	if opts.MaxSpeechChars <= 0 {
		opts.MaxSpeechChars = 1000
	}
	return &tutorUC{
		speech: speech, synth: synth, conv: conv,
		users: users, vocab: vocab, stats: stats, tasks: tasks,
		tr: tr, opts: opts, log: logger,
	}
}

func (t *tutorUC) Transcribe(ctx context.Context, audio []byte) (string, bool) {
	defer logging.TraceDuration(t.log, "TutorUC.Transcribe")()

	res, err := t.speech.Transcribe(ctx, audio, "voice.ogg", t.opts.Language)
	if err != nil {
		t.fallback(ctx, "transcribe", err)
		return "", false
	}
	text := strings.TrimSpace(res.Text)
	return text, text != ""
}

func (t *tutorUC) Correct(ctx context.Context, text string, level model.Level) model.Correction {
	defer logging.TraceDuration(t.log, "TutorUC.Correct")()

	if strings.TrimSpace(text) != "" {
		corr, err := t.speech.Correct(ctx, text, level)
		if err == nil {
			return corr
		}
		t.fallback(ctx, "correct", err)
	}
	return model.Correction{
		CorrectedText:   text,
		Explanation:     t.tr.T("fallback_correction"),
		VocabularyItems: []model.VocabularyItem{},
		ErrorCategory:   model.ErrorCategoryNone,
	}
}

func (t *tutorUC) Reply(ctx context.Context, text string, level model.Level) string {
	r, _ := t.reply(ctx, text, level)
	return r.Text
}

func (t *tutorUC) reply(ctx context.Context, text string, level model.Level) (model.Reply, bool) {
	defer logging.TraceDuration(t.log, "TutorUC.Reply")()

	if strings.TrimSpace(text) != "" {
		r, err := t.speech.Reply(ctx, text, level)
		if err == nil && strings.TrimSpace(r.Text) != "" {
			return r, true
		}
		if err == nil {
			err = domain.ErrEmptyResponse
		}
		t.fallback(ctx, "reply", err)
	}
	return model.Reply{Text: t.tr.T("fallback_reply")}, false
}

func (t *tutorUC) Speak(ctx context.Context, text string) []byte {
	defer logging.TraceDuration(t.log, "TutorUC.Speak")()

	text = speakable(text, t.opts.MaxSpeechChars)
	if text == "" || t.synth == nil {
		return nil
	}
	speech, err := t.synth.Synthesize(ctx, text, t.opts.Voice)
	if err != nil {
		if !errors.Is(err, domain.ErrTTSDisabled) {
			t.fallback(ctx, "speak", err)
		}
		return nil
	}
	audio := speech.Audio
	if speech.Format != "ogg" {
		if t.conv == nil {
			t.fallback(ctx, "speak", domain.ErrAudioConversion)
			return nil
		}
		audio, err = t.conv.ToVoice(ctx, speech.Audio)
		if err != nil {
			t.fallback(ctx, "speak", err)
			return nil
		}
	}
	metrics.AddTTSBytes(len(audio))
	return audio
}

func (t *tutorUC) ProcessMessage(ctx context.Context, user *model.User, text string) model.Turn {
	defer logging.TraceDuration(t.log, "TutorUC.ProcessMessage")()

	level := user.Level
	if level == "" {
		level = model.DefaultLevel
	}

	corr := t.Correct(ctx, text, level)
	reply, _ := t.reply(ctx, text, level)

	var sb strings.Builder
	if corr.HasMistake() && !strings.EqualFold(strings.TrimSpace(corr.CorrectedText), strings.TrimSpace(text)) {
		sb.WriteString(t.tr.T("correction_block", corr.CorrectedText, corr.Explanation))
	}
	sb.WriteString(reply.Text)

	t.schedule(ctx, user, text, corr, int64(corr.TokensUsed+reply.TokensUsed))

	return model.Turn{Correction: corr, Reply: reply.Text, Text: sb.String()}
}

// schedule submits independent bookkeeping tasks. A failed or dropped task
// never changes the reply already composed.
func (t *tutorUC) schedule(ctx context.Context, user *model.User, text string, corr model.Correction, tokens int64) {
	log := logging.With(ctx, t.log)
	submit := func(name string, task worker.Task) {
		if err := t.tasks.Submit(name, task); err != nil {
			log.Warn().Err(err).Str("task", name).Msg("background task not scheduled")
		}
	}

	if len(corr.VocabularyItems) > 0 {
		items := append([]model.VocabularyItem(nil), corr.VocabularyItems...)
		submit("vocabulary.record", func(ctx context.Context) error {
			_, err := t.vocab.Record(ctx, user.ID, items, text)
			return err
		})
	}
	if corr.HasMistake() {
		category, mistake := corr.ErrorCategory, corr.MistakeText
		submit("errors.log", func(ctx context.Context) error {
			return t.stats.LogMistake(ctx, user.ID, category, mistake)
		})
	}
	tgID := user.TelegramID
	submit("user.activity", func(ctx context.Context) error {
		return t.users.RecordActivity(ctx, tgID, tokens)
	})
}

func (t *tutorUC) fallback(ctx context.Context, op string, err error) {
	metrics.IncAIFallback(op)
	logging.With(ctx, t.log).Error().Err(err).Str("operation", op).Msg("tutor fallback")
}

// speakable drops Markdown markers and caps the length on a word boundary.
func speakable(s string, max int) string {
	s = strings.NewReplacer("*", "", "_", "", "`", "").Replace(s)
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)[:max]
	cut := string(r)
	if i := strings.LastIndexAny(cut, " \n"); i > max/2 {
		cut = cut[:i]
	}
	return strings.TrimSpace(cut)
}
